package coord

import (
	"encoding/json"

	"github.com/ValentinKolb/dCoord/lib/files"
	"github.com/ValentinKolb/dCoord/lib/retry"
)

// Sub folders created in every project folder.
var projectSubFolders = []string{"Documents", "Deliverables"}

const briefFileName = "project.json"

type brief struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Client    string `json:"client"`
	Type      string `json:"type"`
	StartDate string `json:"startDate"`
}

// provision creates the folder tree of p and returns the project folder.
//
// Every step looks for an existing entry before creating one, so a retried step
// reuses what an earlier attempt created. The lookup is not atomic with the
// create: a concurrent provisioning of the same project can still produce a
// duplicate folder.
func (c *Coordinator) provision(p Project) (files.Handle, *ProvisioningError) {
	fail := func(step string, err error) (files.Handle, *ProvisioningError) {
		return files.Handle{}, &ProvisioningError{ProjectID: p.ID, Step: step, Err: err}
	}

	root, err := c.ensureFolder(c.files.Root(), p.FolderName())
	if err != nil {
		return fail("project folder", err)
	}
	for _, name := range projectSubFolders {
		if _, err := c.ensureFolder(root, name); err != nil {
			return fail("folder "+name, err)
		}
	}

	content, err := json.MarshalIndent(brief{ID: p.ID, Name: p.Name, Client: p.Client, Type: p.Type, StartDate: p.StartDate}, "", "  ")
	if err != nil {
		return fail(briefFileName, err)
	}
	err = c.exec.Do(c.cfg.FilePolicy, func() error {
		existing, err := c.files.ListFilesByName(root, briefFileName)
		if err != nil || len(existing) > 0 {
			return err
		}
		_, err = c.files.CreateFile(root, content, "application/json", briefFileName)
		return err
	})
	if err != nil {
		return fail(briefFileName, err)
	}
	return root, nil
}

func (c *Coordinator) ensureFolder(parent files.Handle, name string) (files.Handle, error) {
	return retry.Execute(c.exec, c.cfg.FilePolicy, func() (files.Handle, error) {
		existing, err := c.files.ListFoldersByName(parent, name)
		if err != nil {
			return files.Handle{}, err
		}
		for _, h := range existing {
			if h.Name == name {
				return h, nil
			}
		}
		return c.files.CreateFolder(parent, name)
	})
}
