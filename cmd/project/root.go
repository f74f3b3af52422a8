package project

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/dCoord/cmd/util"
	"github.com/ValentinKolb/dCoord/lib/coord"
	"github.com/ValentinKolb/dCoord/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcClient *client.Client

	// ProjectCommands represents the project command group
	ProjectCommands = &cobra.Command{
		Use:               "project",
		Short:             "Perform project operations",
		Long:              "Create, read, update and delete projects on a dCoord server. Every write runs under the lock of the project.",
		PersistentPreRunE: setupProjectClient,
	}
)

func init() {
	ProjectCommands.AddCommand(createCmd)
	ProjectCommands.AddCommand(getCmd)
	ProjectCommands.AddCommand(listCmd)
	ProjectCommands.AddCommand(updateCmd)
	ProjectCommands.AddCommand(deleteCmd)
	ProjectCommands.AddCommand(regenerateCmd)
	ProjectCommands.AddCommand(provisionCmd)
	ProjectCommands.AddCommand(auditCmd)
	ProjectCommands.AddCommand(statusCmd)

	util.SetupClientFlags(ProjectCommands)
}

// setupProjectClient initializes the project client
func setupProjectClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	rpcClient, err = client.NewClient(util.GetClientConfig())
	return err
}

// parseAssignments converts 'name:role' values into assignment inputs
func parseAssignments(values []string) ([]coord.AssignmentInput, error) {
	out := make([]coord.AssignmentInput, 0, len(values))
	for _, v := range values {
		assignee, role, _ := strings.Cut(v, ":")
		assignee = strings.TrimSpace(assignee)
		if assignee == "" {
			return nil, fmt.Errorf("invalid assignment %q (expected name[:role])", v)
		}
		out = append(out, coord.AssignmentInput{Assignee: assignee, Role: strings.TrimSpace(role)})
	}
	return out, nil
}
