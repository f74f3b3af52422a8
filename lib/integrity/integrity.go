// Package integrity checks parent/child relations between tables. It is a
// validation layer of its own: the coordinator runs it before persisting and
// it knows nothing about locking.
package integrity

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/dCoord/lib/table"
)

// ErrIntegrity is matched by every *Violation.
var ErrIntegrity = errors.New("referential integrity violation")

// Relation states that Child.ChildColumn references Parent.ParentColumn.
type Relation struct {
	Child        string
	ChildColumn  string
	Parent       string
	ParentColumn string
}

func (r Relation) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s", r.Child, r.ChildColumn, r.Parent, r.ParentColumn)
}

// Violation is a child row whose reference has no parent.
type Violation struct {
	Relation Relation
	Value    string
	// Row is the index of the offending row in the child table, or -1 for rows not yet persisted.
	Row int
}

func (v *Violation) Error() string {
	if v.Row < 0 {
		return fmt.Sprintf("%s: no parent with %s %q", v.Relation, v.Relation.ParentColumn, v.Value)
	}
	return fmt.Sprintf("%s: row %d references missing %q", v.Relation, v.Row, v.Value)
}

func (v *Violation) Is(target error) bool {
	return target == ErrIntegrity
}

// Permanent marks violations as not retryable.
func (v *Violation) Permanent() bool { return true }

// Validator checks a fixed set of relations.
type Validator struct {
	relations []Relation
}

// NewValidator creates a validator for relations.
func NewValidator(relations ...Relation) *Validator {
	return &Validator{relations: relations}
}

// Relations returns the configured relations.
func (v *Validator) Relations() []Relation {
	return append([]Relation(nil), v.relations...)
}

// ChildrenOf returns the relations whose parent is parent.
func (v *Validator) ChildrenOf(parent string) []Relation {
	out := make([]Relation, 0)
	for _, r := range v.relations {
		if r.Parent == parent {
			out = append(out, r)
		}
	}
	return out
}

// CheckRows validates rows that are about to be written to child. A reference is
// satisfied if the parent row exists in the store or its key is listed in pending
// (parents written in the same operation, by table name).
func (v *Validator) CheckRows(s table.IStore, child string, rows []table.Row, pending map[string][]string) error {
	for _, rel := range v.relations {
		if rel.Child != child {
			continue
		}
		var parents map[string]struct{}
		for _, row := range rows {
			ref := row[rel.ChildColumn]
			if contains(pending[rel.Parent], ref) {
				continue
			}
			if parents == nil {
				var err error
				if parents, err = keys(s, rel.Parent, rel.ParentColumn); err != nil {
					return err
				}
			}
			if _, ok := parents[ref]; !ok {
				return &Violation{Relation: rel, Value: ref, Row: -1}
			}
		}
	}
	return nil
}

// Dependents counts, per child table, the rows referencing parent key value.
func (v *Validator) Dependents(s table.IStore, parent, value string) (map[string]int, error) {
	out := make(map[string]int)
	for _, rel := range v.ChildrenOf(parent) {
		t, err := s.ReadTable(rel.Child)
		if err != nil {
			return nil, err
		}
		if err := table.RequireColumns(t, rel.ChildColumn); err != nil {
			return nil, err
		}
		out[rel.Child] += len(table.Filter(t, rel.ChildColumn, value))
	}
	return out, nil
}

// Audit scans all relations and returns every orphaned child row.
func (v *Validator) Audit(s table.IStore) ([]Violation, error) {
	out := make([]Violation, 0)
	for _, rel := range v.relations {
		parents, err := keys(s, rel.Parent, rel.ParentColumn)
		if err != nil {
			return nil, err
		}
		t, err := s.ReadTable(rel.Child)
		if err != nil {
			return nil, err
		}
		if err := table.RequireColumns(t, rel.ChildColumn); err != nil {
			return nil, err
		}
		for i, row := range t.Rows {
			if _, ok := parents[row[rel.ChildColumn]]; !ok {
				out = append(out, Violation{Relation: rel, Value: row[rel.ChildColumn], Row: i})
			}
		}
	}
	return out, nil
}

func keys(s table.IStore, name, col string) (map[string]struct{}, error) {
	t, err := s.ReadTable(name)
	if err != nil {
		return nil, err
	}
	if err := table.RequireColumns(t, col); err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(t.Rows))
	for _, r := range t.Rows {
		out[r[col]] = struct{}{}
	}
	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
