package server

import (
	"bytes"
	"embed"
	"fmt"

	"github.com/ValentinKolb/dCoord/lib/coord"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBaseURL = "https://github.com/ValentinKolb/dCoord/schemas/"

const (
	schemaCreateProject = "create_project.json"
	schemaUpdateProject = "update_project.json"
	schemaSetProp       = "set_prop.json"
)

// schemas holds the compiled request body schemas by file name.
type schemas struct {
	byName map[string]*jsonschema.Schema
}

func compileSchemas() (*schemas, error) {
	c := jsonschema.NewCompiler()
	names := []string{schemaCreateProject, schemaUpdateProject, schemaSetProp}

	for _, name := range names {
		raw, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, err
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("parse schema %s: %w", name, err)
		}
		if err := c.AddResource(schemaBaseURL+name, doc); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
	}

	out := &schemas{byName: make(map[string]*jsonschema.Schema, len(names))}
	for _, name := range names {
		sch, err := c.Compile(schemaBaseURL + name)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		out.byName[name] = sch
	}
	return out, nil
}

// validate checks body against the named schema. Every failure is an invalid request.
func (s *schemas) validate(name string, body []byte) error {
	sch, ok := s.byName[name]
	if !ok {
		return fmt.Errorf("unknown schema %s", name)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: malformed json body: %v", coord.ErrInvalid, err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", coord.ErrInvalid, err)
	}
	return nil
}
