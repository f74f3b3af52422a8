package ltable

import (
	"testing"

	"github.com/ValentinKolb/dCoord/lib/table"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTasks(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	require.NoError(t, s.CreateTable("Tasks", "id", "projectId", "name"))
	return s
}

func names(t *testing.T, s table.IStore) []string {
	t.Helper()
	tbl, err := s.ReadTable("Tasks")
	require.NoError(t, err)
	out := make([]string, len(tbl.Rows))
	for i, r := range tbl.Rows {
		out[i] = r["name"]
	}
	return out
}

func TestRowOperations(t *testing.T) {
	s := newTasks(t)

	require.NoError(t, s.AppendRow("Tasks", table.Row{"id": "1", "name": "a"}))
	require.NoError(t, s.AppendRow("Tasks", table.Row{"id": "2", "name": "b"}))
	require.NoError(t, s.AppendRow("Tasks", table.Row{"id": "3", "name": "c"}))
	assert.Equal(t, []string{"a", "b", "c"}, names(t, s))

	require.NoError(t, s.OverwriteRange("Tasks", 2, []table.Row{{"name": "C"}, {"name": "d"}}))
	assert.Equal(t, []string{"a", "b", "C", "d"}, names(t, s))

	require.NoError(t, s.DeleteRow("Tasks", 1))
	assert.Equal(t, []string{"a", "C", "d"}, names(t, s))

	assert.ErrorIs(t, s.DeleteRow("Tasks", 3), table.ErrRowOutOfRange)
	assert.ErrorIs(t, s.OverwriteRange("Tasks", 5, nil), table.ErrRowOutOfRange)

	tbl, err := s.ReadTable("Tasks")
	require.NoError(t, err)
	assert.Equal(t, "", tbl.Rows[0]["projectId"], "missing columns are filled")
}

func TestReadReturnsCopies(t *testing.T) {
	s := newTasks(t)
	require.NoError(t, s.AppendRow("Tasks", table.Row{"name": "a"}))

	tbl, err := s.ReadTable("Tasks")
	require.NoError(t, err)
	tbl.Rows[0]["name"] = "mutated"

	assert.Equal(t, []string{"a"}, names(t, s))
}

func TestStructuralErrors(t *testing.T) {
	s := newTasks(t)

	_, err := s.ReadTable("Nope")
	assert.ErrorIs(t, err, table.ErrStructural)

	err = s.AppendRow("Tasks", table.Row{"color": "red"})
	var se *table.StructuralError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "color", se.Column)
	assert.True(t, se.Permanent())
}

func TestReplaceWhere(t *testing.T) {
	for name, wrap := range map[string]func(*Store) table.IStore{
		"batch":   func(s *Store) table.IStore { return s },
		"rowwise": func(s *Store) table.IStore { return rowOnly{s} },
	} {
		t.Run(name, func(t *testing.T) {
			s := newTasks(t)
			for _, r := range []table.Row{
				{"projectId": "p1", "name": "a"},
				{"projectId": "p2", "name": "b"},
				{"projectId": "p1", "name": "c"},
				{"projectId": "p2", "name": "d"},
			} {
				require.NoError(t, s.AppendRow("Tasks", r))
			}
			store := wrap(s)

			dropped, err := table.ReplaceWhere(store, "Tasks",
				func(r table.Row) bool { return r["projectId"] == "p1" },
				[]table.Row{{"projectId": "p1", "name": "x"}})
			require.NoError(t, err)
			assert.Equal(t, 2, dropped)
			assert.Equal(t, []string{"b", "d", "x"}, names(t, store))

			dropped, err = table.ReplaceWhere(store, "Tasks",
				func(r table.Row) bool { return true }, nil)
			require.NoError(t, err)
			assert.Equal(t, 3, dropped)
			assert.Empty(t, names(t, store))

			_, err = table.ReplaceWhere(store, "Tasks", nil, []table.Row{{"bogus": "1"}})
			assert.ErrorIs(t, err, table.ErrStructural)
		})
	}
}

func TestUpsertRow(t *testing.T) {
	s := newTasks(t)
	require.NoError(t, s.AppendRow("Tasks", table.Row{"id": "1", "name": "a"}))
	require.NoError(t, s.AppendRow("Tasks", table.Row{"id": "2", "name": "b"}))

	inserted, err := table.UpsertRow(s, "Tasks", "id", table.Row{"id": "1", "name": "A"})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, []string{"A", "b"}, names(t, s), "updates keep the row position")

	inserted, err = table.UpsertRow(rowOnly{s}, "Tasks", "id", table.Row{"id": "3", "name": "c"})
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, []string{"A", "b", "c"}, names(t, s))
}

func TestRewriteErrorLeavesTableUnchanged(t *testing.T) {
	s := newTasks(t)
	require.NoError(t, s.AppendRow("Tasks", table.Row{"id": "1", "name": "a"}))

	err := s.Rewrite("Tasks", func(table.Table) ([]table.Row, error) {
		return []table.Row{{"id": "1", "unknown": "x"}}, nil
	})
	assert.ErrorIs(t, err, table.ErrStructural)
	assert.Equal(t, []string{"a"}, names(t, s))
}

// rowOnly hides Rewrite so ReplaceWhere takes the row-by-row path.
type rowOnly struct{ s *Store }

func (r rowOnly) ReadTable(name string) (table.Table, error)           { return r.s.ReadTable(name) }
func (r rowOnly) AppendRow(name string, row table.Row) error           { return r.s.AppendRow(name, row) }
func (r rowOnly) OverwriteRange(n string, i int, rs []table.Row) error { return r.s.OverwriteRange(n, i, rs) }
func (r rowOnly) DeleteRow(name string, index int) error               { return r.s.DeleteRow(name, index) }

func TestSnapshotPersistence(t *testing.T) {
	fsys := afero.NewMemMapFs()

	s, err := Open(fsys, "/data/tables.json")
	require.NoError(t, err)
	require.NoError(t, s.CreateTable("Tasks", "id", "projectId", "name"))
	require.NoError(t, s.AppendRow("Tasks", table.Row{"id": "1", "name": "a"}))

	reopened, err := Open(fsys, "/data/tables.json")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names(t, reopened))

	exists, err := afero.Exists(fsys, "/data/tables.json.tmp")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, afero.WriteFile(fsys, "/data/broken.json", []byte("{"), 0o644))
	_, err = Open(fsys, "/data/broken.json")
	assert.Error(t, err)
}

func TestFailedSnapshotWriteLeavesTableUnchanged(t *testing.T) {
	mem := afero.NewMemMapFs()
	s, err := Open(mem, "/data/tables.json")
	require.NoError(t, err)
	require.NoError(t, s.CreateTable("Tasks", "id", "projectId", "name"))
	require.NoError(t, s.AppendRow("Tasks", table.Row{"id": "1", "name": "a"}))
	require.NoError(t, s.AppendRow("Tasks", table.Row{"id": "2", "name": "b"}))

	// every later snapshot write fails
	s.fs = afero.NewReadOnlyFs(mem)

	assert.Error(t, s.AppendRow("Tasks", table.Row{"id": "3", "name": "c"}))
	assert.Error(t, s.OverwriteRange("Tasks", 1, []table.Row{{"name": "B"}, {"name": "c"}}))
	assert.Error(t, s.DeleteRow("Tasks", 0))
	assert.Error(t, s.Rewrite("Tasks", func(table.Table) ([]table.Row, error) { return nil, nil }))
	_, err = table.ReplaceWhere(s, "Tasks", func(table.Row) bool { return true }, nil)
	assert.Error(t, err)
	assert.Equal(t, []string{"a", "b"}, names(t, s))

	assert.Error(t, s.CreateTable("Tasks", "done"))
	tbl, err := s.ReadTable("Tasks")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "projectId", "name"}, tbl.Columns)
	_, hasDone := tbl.Rows[0]["done"]
	assert.False(t, hasDone)

	assert.Error(t, s.CreateTable("Projects", "id"))
	_, err = s.ReadTable("Projects")
	assert.Error(t, err, "a table whose creation was not persisted does not exist")

	// the snapshot on disk still matches memory
	reopened, err := Open(mem, "/data/tables.json")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names(t, reopened))
}
