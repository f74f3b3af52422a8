package integrity

import (
	"testing"

	"github.com/ValentinKolb/dCoord/lib/table"
	"github.com/ValentinKolb/dCoord/lib/table/ltable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tasksRel       = Relation{Child: "Tasks", ChildColumn: "projectId", Parent: "Projects", ParentColumn: "id"}
	assignmentsRel = Relation{Child: "Assignments", ChildColumn: "projectId", Parent: "Projects", ParentColumn: "id"}
)

func fixture(t *testing.T) *ltable.Store {
	t.Helper()
	s := ltable.NewStore()
	require.NoError(t, s.CreateTable("Projects", "id", "name"))
	require.NoError(t, s.CreateTable("Tasks", "id", "projectId"))
	require.NoError(t, s.CreateTable("Assignments", "id", "projectId"))
	require.NoError(t, s.AppendRow("Projects", table.Row{"id": "p1"}))
	require.NoError(t, s.AppendRow("Tasks", table.Row{"id": "t1", "projectId": "p1"}))
	require.NoError(t, s.AppendRow("Tasks", table.Row{"id": "t2", "projectId": "p1"}))
	require.NoError(t, s.AppendRow("Assignments", table.Row{"id": "a1", "projectId": "p1"}))
	return s
}

func TestCheckRows(t *testing.T) {
	s := fixture(t)
	v := NewValidator(tasksRel, assignmentsRel)

	assert.NoError(t, v.CheckRows(s, "Tasks", []table.Row{{"projectId": "p1"}}, nil))
	assert.NoError(t, v.CheckRows(s, "Tasks", []table.Row{{"projectId": "p2"}}, map[string][]string{"Projects": {"p2"}}))

	err := v.CheckRows(s, "Assignments", []table.Row{{"projectId": "p9"}}, nil)
	assert.ErrorIs(t, err, ErrIntegrity)
	assert.Contains(t, err.Error(), "p9")

	assert.NoError(t, v.CheckRows(s, "Unrelated", []table.Row{{"x": "y"}}, nil))
}

func TestDependentsAndAudit(t *testing.T) {
	s := fixture(t)
	v := NewValidator(tasksRel, assignmentsRel)

	deps, err := v.Dependents(s, "Projects", "p1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Tasks": 2, "Assignments": 1}, deps)

	orphans, err := v.Audit(s)
	require.NoError(t, err)
	assert.Empty(t, orphans)

	require.NoError(t, s.AppendRow("Tasks", table.Row{"id": "t3", "projectId": "ghost"}))
	orphans, err = v.Audit(s)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, 2, orphans[0].Row)
	assert.Equal(t, "ghost", orphans[0].Value)
}

func TestMissingTableIsStructural(t *testing.T) {
	s := ltable.NewStore()
	v := NewValidator(tasksRel)

	_, err := v.Audit(s)
	assert.ErrorIs(t, err, table.ErrStructural)
}
