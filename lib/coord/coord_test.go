package coord

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dCoord/lib/clock"
	"github.com/ValentinKolb/dCoord/lib/files"
	"github.com/ValentinKolb/dCoord/lib/files/lfiles"
	"github.com/ValentinKolb/dCoord/lib/lockmgr"
	"github.com/ValentinKolb/dCoord/lib/occ"
	"github.com/ValentinKolb/dCoord/lib/props"
	"github.com/ValentinKolb/dCoord/lib/props/lprops"
	"github.com/ValentinKolb/dCoord/lib/retry"
	"github.com/ValentinKolb/dCoord/lib/table"
	"github.com/ValentinKolb/dCoord/lib/table/ltable"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

// --------------------------------------------------------------------------
// Test environment
// --------------------------------------------------------------------------

type hookTables struct {
	*ltable.Store
	onRewrite func(name string)
	// failRewrite makes Rewrite of the named tables fail until cleared
	failRewrite map[string]error
}

func (h *hookTables) Rewrite(name string, fn func(table.Table) ([]table.Row, error)) error {
	if hook := h.onRewrite; hook != nil {
		hook(name)
	}
	if err := h.failRewrite[name]; err != nil {
		return err
	}
	return h.Store.Rewrite(name, fn)
}

var errDiskFull = errors.New("disk full")

type flakyFiles struct {
	files.IStore
	mu       sync.Mutex
	passes   int // CreateFolder calls that succeed before failures start
	failures int // remaining failing CreateFolder calls, -1 fails forever
	err      error
}

func (f *flakyFiles) CreateFolder(parent files.Handle, name string) (files.Handle, error) {
	f.mu.Lock()
	if f.passes > 0 {
		f.passes--
		f.mu.Unlock()
		return f.IStore.CreateFolder(parent, name)
	}
	if f.failures != 0 {
		if f.failures > 0 {
			f.failures--
		}
		f.mu.Unlock()
		return files.Handle{}, f.err
	}
	f.mu.Unlock()
	return f.IStore.CreateFolder(parent, name)
}

// failAfter lets the next passes CreateFolder calls succeed and fails all later ones.
func (f *flakyFiles) failAfter(passes int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.passes = passes
	f.failures = -1
	f.err = err
}

func (f *flakyFiles) fail(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = n
	f.err = err
}

type env struct {
	fake   *clock.Fake
	store  props.IConditionalStore
	locks  lockmgr.ILockManager
	tables *hookTables
	fsys   afero.Fs
	files  *flakyFiles
	c      *Coordinator
}

func newEnv(t *testing.T, mutate func(*Config)) *env {
	t.Helper()
	e := &env{fake: clock.NewFake(t0), store: lprops.NewLocalStore(), fsys: afero.NewMemMapFs()}
	e.locks = lockmgr.NewLockManager(e.store, lockmgr.Options{Clock: e.fake})

	e.tables = &hookTables{Store: ltable.NewStore()}
	require.NoError(t, EnsureSchema(e.tables))
	_, err := SeedTemplates(e.tables, DefaultTemplates())
	require.NoError(t, err)

	fs, err := lfiles.NewStore(e.fsys, "/drive", "file:///drive")
	require.NoError(t, err)
	e.files = &flakyFiles{IStore: fs}

	cfg := Config{Clock: e.fake, LockTimeout: time.Second}
	if mutate != nil {
		mutate(&cfg)
	}
	e.c = New(e.locks, e.tables, e.files, cfg)
	return e
}

func (e *env) create(t *testing.T) Project {
	t.Helper()
	res := e.c.CreateProject("alice", CreateProjectRequest{
		Name:        "Alpha",
		Client:      "ACME",
		Type:        "standard",
		StartDate:   "2024-07-01",
		Assignments: []AssignmentInput{{Assignee: "alice", Role: "lead"}},
	})
	require.NoError(t, res.Err)
	require.Equal(t, Committed, res.Outcome)
	return *res.Project
}

func ptr[T any](v T) *T { return &v }

func (e *env) requireUnlocked(t *testing.T, key lockmgr.ResourceKey) {
	t.Helper()
	locked, err := e.locks.IsLocked(key)
	require.NoError(t, err)
	assert.False(t, locked, "%s must be released", key)
}

// --------------------------------------------------------------------------
// Create
// --------------------------------------------------------------------------

func TestCreateProject(t *testing.T) {
	e := newEnv(t, nil)
	p := e.create(t)

	assert.Equal(t, "planned", p.Status)
	assert.True(t, p.Active)
	assert.Equal(t, t0, p.LastModified)
	assert.Equal(t, fmt.Sprintf("Alpha [%s]", p.ID), p.FolderID)
	assert.False(t, NeedsRemediation(p))
	e.requireUnlocked(t, projectKey(p.ID))

	for _, sub := range []string{"Documents", "Deliverables"} {
		exists, err := afero.DirExists(e.fsys, "/drive/"+p.FolderID+"/"+sub)
		require.NoError(t, err)
		assert.True(t, exists, sub)
	}
	exists, err := afero.Exists(e.fsys, "/drive/"+p.FolderID+"/project.json")
	require.NoError(t, err)
	assert.True(t, exists)

	got := e.c.GetProject(p.ID)
	require.NoError(t, got.Err)
	assert.Equal(t, p, *got.Project)
	require.Len(t, got.Tasks, 5)
	assert.Equal(t, "Kickoff meeting", got.Tasks[0].Name)
	assert.Equal(t, "2024-07-01", got.Tasks[0].DueDate)
	assert.Equal(t, "2024-08-30", got.Tasks[4].DueDate)
	require.Len(t, got.Assignments, 1)
	assert.Equal(t, "lead", got.Assignments[0].Role)
}

func TestCreateProjectRetriesTransientFolderErrors(t *testing.T) {
	e := newEnv(t, nil)
	e.files.fail(2, errors.New("User rate limit exceeded"))

	p := e.create(t)
	assert.False(t, NeedsRemediation(p))
	assert.Len(t, e.fake.Sleeps(), 2, "two backoff sleeps, no lock waits")
}

func TestCreateProjectPartialProvisioning(t *testing.T) {
	e := newEnv(t, nil)
	e.files.fail(-1, errors.New("Quota exceeded"))

	res := e.c.CreateProject("alice", CreateProjectRequest{Name: "Beta", Type: "express"})
	require.NoError(t, res.Err)
	assert.Equal(t, Committed, res.Outcome)
	require.NotNil(t, res.Partial)
	assert.True(t, errors.Is(res.Partial, ErrPartialProvisioning))

	var exhausted *retry.ExhaustedError
	assert.True(t, errors.As(res.Partial, &exhausted))

	got := e.c.GetProject(res.Project.ID)
	require.NoError(t, got.Err)
	assert.Equal(t, SentinelFolder, got.Project.FolderID)
	assert.True(t, NeedsRemediation(*got.Project))
	assert.Len(t, got.Tasks, 2, "the project is still created")

	e.files.fail(0, nil)
	fixed := e.c.RetryProvisioning("alice", res.Project.ID)
	require.NoError(t, fixed.Err)
	assert.False(t, NeedsRemediation(*fixed.Project))
	e.requireUnlocked(t, projectKey(res.Project.ID))
}

func TestCreateProjectRejectsInvalidInput(t *testing.T) {
	e := newEnv(t, nil)

	for name, req := range map[string]CreateProjectRequest{
		"no name":     {Type: "standard"},
		"slash":       {Name: "a/b", Type: "standard"},
		"no type":     {Name: "x"},
		"bad date":    {Name: "x", Type: "standard", StartDate: "01.07.2024"},
		"no assignee": {Name: "x", Type: "standard", Assignments: []AssignmentInput{{Role: "lead"}}},
	} {
		t.Run(name, func(t *testing.T) {
			res := e.c.CreateProject("alice", req)
			assert.Equal(t, AbortedError, res.Outcome)
			assert.Equal(t, KindInvalid, KindOf(res.Err))
		})
	}
	projects, err := e.c.ListProjects()
	require.NoError(t, err)
	assert.Empty(t, projects)
}

// --------------------------------------------------------------------------
// Concurrency
// --------------------------------------------------------------------------

func TestConcurrentEditObservesBusy(t *testing.T) {
	e := newEnv(t, nil)
	p := e.create(t)

	var resB Result
	var bPersisted bool
	e.tables.onRewrite = func(name string) {
		if name != TableProjects {
			return
		}
		// request A is persisting while holding the lock; request B starts now
		e.tables.onRewrite = func(string) { bPersisted = true }
		resB = e.c.UpdateProject("bob", UpdateProjectRequest{ID: p.ID, Name: ptr("Bob's name"), KnownLastModified: p.LastModified})
		e.tables.onRewrite = nil
	}

	resA := e.c.UpdateProject("alice", UpdateProjectRequest{ID: p.ID, Name: ptr("Alice's name"), KnownLastModified: p.LastModified})
	require.NoError(t, resA.Err)
	assert.Equal(t, Committed, resA.Outcome)

	assert.Equal(t, AbortedBusy, resB.Outcome)
	assert.True(t, errors.Is(resB.Err, ErrBusy))
	assert.False(t, bPersisted, "a busy request never reaches persist")

	got := e.c.GetProject(p.ID)
	assert.Equal(t, "Alice's name", got.Project.Name)

	resB = e.c.UpdateProject("bob", UpdateProjectRequest{ID: p.ID, Name: ptr("Bob's name"), KnownLastModified: got.Project.LastModified})
	require.NoError(t, resB.Err)
	assert.Equal(t, "Bob's name", resB.Project.Name)
	e.requireUnlocked(t, projectKey(p.ID))
}

func TestStaleUpdateIsRejected(t *testing.T) {
	e := newEnv(t, nil)
	p := e.create(t)
	original := p.LastModified

	e.fake.Advance(5 * time.Second)
	first := e.c.UpdateProject("alice", UpdateProjectRequest{ID: p.ID, Status: ptr("running"), KnownLastModified: original.UnixMilli()})
	require.NoError(t, first.Err)
	before := e.c.GetProject(p.ID)

	stale := e.c.UpdateProject("bob", UpdateProjectRequest{ID: p.ID, Status: ptr("cancelled"), KnownLastModified: original.Format(time.RFC3339Nano)})
	assert.Equal(t, AbortedConflict, stale.Outcome)
	assert.True(t, errors.Is(stale.Err, occ.ErrConflict))
	assert.Equal(t, KindConflict, KindOf(stale.Err))

	after := e.c.GetProject(p.ID)
	assert.Equal(t, before.Project, after.Project, "persisted record unchanged")
	assert.Equal(t, before.Tasks, after.Tasks)
	e.requireUnlocked(t, projectKey(p.ID))

	withinTolerance := before.Project.LastModified.Add(-500 * time.Millisecond)
	ok := e.c.UpdateProject("bob", UpdateProjectRequest{ID: p.ID, Status: ptr("done"), KnownLastModified: withinTolerance})
	require.NoError(t, ok.Err)
	assert.Equal(t, "done", ok.Project.Status)
}

func TestCoarseFallback(t *testing.T) {
	e := newEnv(t, func(c *Config) {
		c.CoarseFallback = true
		c.GlobalLockTimeout = time.Second
	})
	p := e.create(t)
	e.requireUnlocked(t, lockmgr.GlobalKey)

	ok, err := e.locks.TryAcquire("maintenance", lockmgr.GlobalKey, 0)
	require.NoError(t, err)
	require.True(t, ok)

	res := e.c.UpdateProject("alice", UpdateProjectRequest{ID: p.ID, Status: ptr("x"), KnownLastModified: p.LastModified})
	assert.Equal(t, AbortedBusy, res.Outcome)
	var busy *BusyError
	require.ErrorAs(t, res.Err, &busy)
	assert.Equal(t, lockmgr.GlobalKey, busy.Key)
	e.requireUnlocked(t, projectKey(p.ID))
}

// --------------------------------------------------------------------------
// Dependent rows
// --------------------------------------------------------------------------

type taskShape struct {
	Name, Phase, DueDate string
	Position             int
	Done                 bool
}

func shapes(tasks []Task) []taskShape {
	out := make([]taskShape, len(tasks))
	for i, t := range tasks {
		out[i] = taskShape{t.Name, t.Phase, t.DueDate, t.Position, t.Done}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func TestRegenerateTasksIsIdempotent(t *testing.T) {
	e := newEnv(t, nil)
	p := e.create(t)

	// mark one task done directly in the table
	initial := e.c.GetProject(p.ID).Tasks
	row := taskToRow(initial[1])
	row["done"] = "TRUE"
	_, err := table.UpsertRow(e.tables, TableTasks, "id", row)
	require.NoError(t, err)

	first := e.c.RegenerateTasks("alice", p.ID)
	require.NoError(t, first.Err)
	second := e.c.RegenerateTasks("alice", p.ID)
	require.NoError(t, second.Err)

	assert.Len(t, second.Tasks, len(first.Tasks))
	assert.Equal(t, shapes(first.Tasks), shapes(second.Tasks))
	assert.NotEqual(t, first.Tasks[0].ID, second.Tasks[0].ID)
	assert.True(t, second.Tasks[1].Done, "done flags survive regeneration")

	all, err := e.tables.ReadTable(TableTasks)
	require.NoError(t, err)
	assert.Len(t, all.Rows, 5, "old rows are replaced, not appended")

	after := e.c.GetProject(p.ID)
	assert.Equal(t, p.LastModified, after.Project.LastModified)
}

func TestUpdateRegeneratesTasksOnTypeChange(t *testing.T) {
	e := newEnv(t, nil)
	p := e.create(t)
	other := e.c.CreateProject("bob", CreateProjectRequest{Name: "Other", Type: "standard"})
	require.NoError(t, other.Err)

	res := e.c.UpdateProject("alice", UpdateProjectRequest{
		ID:                p.ID,
		Type:              ptr("express"),
		StartDate:         ptr("2024-09-01"),
		Assignments:       []AssignmentInput{{Assignee: "carol", Role: "dev"}, {Assignee: "dave", Role: "qa"}},
		KnownLastModified: p.LastModified,
	})
	require.NoError(t, res.Err)
	require.Len(t, res.Tasks, 2)
	assert.Equal(t, "2024-09-15", res.Tasks[1].DueDate)
	assert.Len(t, res.Assignments, 2)

	untouched := e.c.GetProject(other.Project.ID)
	assert.Len(t, untouched.Tasks, 5, "rows of other projects are kept")
}

func TestDeleteProject(t *testing.T) {
	e := newEnv(t, nil)
	p := e.create(t)

	res := e.c.DeleteProject("alice", p.ID, p.LastModified)
	require.NoError(t, res.Err)
	assert.Nil(t, res.Partial)

	exists, err := afero.DirExists(e.fsys, "/drive/"+p.FolderID)
	require.NoError(t, err)
	assert.False(t, exists)

	got := e.c.GetProject(p.ID)
	assert.Equal(t, KindNotFound, KindOf(got.Err))
	for _, name := range []string{TableTasks, TableAssignments} {
		tbl, err := e.tables.ReadTable(name)
		require.NoError(t, err)
		assert.Empty(t, tbl.Rows, name)
	}

	again := e.c.DeleteProject("alice", p.ID, nil)
	assert.Equal(t, AbortedError, again.Outcome)
	assert.Equal(t, KindNotFound, KindOf(again.Err))
	e.requireUnlocked(t, projectKey(p.ID))
}

// --------------------------------------------------------------------------
// Failed writes leave no partial state
// --------------------------------------------------------------------------

// rowsOf returns the rows of a table belonging to a project.
func (e *env) rowsOf(t *testing.T, name, projectID string) []table.Row {
	t.Helper()
	tbl, err := e.tables.ReadTable(name)
	require.NoError(t, err)
	return table.Filter(tbl, "projectId", projectID)
}

func TestFailedUpdateLeavesProjectUnchanged(t *testing.T) {
	for _, failing := range []string{TableTasks, TableAssignments, TableProjects} {
		t.Run(failing, func(t *testing.T) {
			e := newEnv(t, nil)
			p := e.create(t)
			tasksBefore := e.rowsOf(t, TableTasks, p.ID)
			assignmentsBefore := e.rowsOf(t, TableAssignments, p.ID)

			e.fake.Advance(time.Minute)
			e.tables.failRewrite = map[string]error{failing: errDiskFull}
			res := e.c.UpdateProject("alice", UpdateProjectRequest{
				ID:                p.ID,
				Name:              ptr("Renamed"),
				StartDate:         ptr("2024-09-01"),
				Assignments:       []AssignmentInput{{Assignee: "carol", Role: "dev"}},
				KnownLastModified: p.LastModified,
			})
			e.tables.failRewrite = nil

			assert.Equal(t, AbortedError, res.Outcome)
			assert.ErrorIs(t, res.Err, errDiskFull)

			got := e.c.GetProject(p.ID)
			require.NoError(t, got.Err)
			assert.Equal(t, "Alpha", got.Project.Name)
			assert.Equal(t, "2024-07-01", got.Project.StartDate)
			assert.Equal(t, p.LastModified, got.Project.LastModified)
			assert.ElementsMatch(t, tasksBefore, e.rowsOf(t, TableTasks, p.ID))
			assert.ElementsMatch(t, assignmentsBefore, e.rowsOf(t, TableAssignments, p.ID))
			e.requireUnlocked(t, projectKey(p.ID))
		})
	}
}

func TestFailedDeleteLeavesProjectIntact(t *testing.T) {
	for _, failing := range []string{TableAssignments, TableProjects} {
		t.Run(failing, func(t *testing.T) {
			e := newEnv(t, nil)
			p := e.create(t)
			tasksBefore := e.rowsOf(t, TableTasks, p.ID)
			assignmentsBefore := e.rowsOf(t, TableAssignments, p.ID)

			e.tables.failRewrite = map[string]error{failing: errDiskFull}
			res := e.c.DeleteProject("alice", p.ID, p.LastModified)
			e.tables.failRewrite = nil

			assert.Equal(t, AbortedError, res.Outcome)
			assert.ErrorIs(t, res.Err, errDiskFull)

			got := e.c.GetProject(p.ID)
			require.NoError(t, got.Err)
			assert.ElementsMatch(t, tasksBefore, e.rowsOf(t, TableTasks, p.ID))
			assert.ElementsMatch(t, assignmentsBefore, e.rowsOf(t, TableAssignments, p.ID))

			exists, err := afero.DirExists(e.fsys, "/drive/"+p.FolderID)
			require.NoError(t, err)
			assert.True(t, exists, "the folder is only trashed after the rows are gone")
			e.requireUnlocked(t, projectKey(p.ID))
		})
	}
}

func TestFailedCreateTrashesFolder(t *testing.T) {
	for _, failing := range []string{TableProjects, TableTasks} {
		t.Run(failing, func(t *testing.T) {
			e := newEnv(t, nil)
			e.tables.failRewrite = map[string]error{failing: errDiskFull}
			res := e.c.CreateProject("alice", CreateProjectRequest{Name: "Beta", Type: "standard", StartDate: "2024-07-01"})
			e.tables.failRewrite = nil

			assert.Equal(t, AbortedError, res.Outcome)
			assert.ErrorIs(t, res.Err, errDiskFull)

			projects, err := e.c.ListProjects()
			require.NoError(t, err)
			assert.Empty(t, projects)

			entries, err := afero.ReadDir(e.fsys, "/drive")
			require.NoError(t, err)
			for _, entry := range entries {
				assert.Equal(t, ".trash", entry.Name(), "no project folder is left on the drive")
			}
		})
	}
}

func TestFailedCreateAfterPartialProvisioningTrashesFolder(t *testing.T) {
	e := newEnv(t, nil)
	// the project folder is created, its first sub folder is not
	e.files.failAfter(1, errors.New("quota exceeded"))
	e.tables.failRewrite = map[string]error{TableProjects: errDiskFull}
	res := e.c.CreateProject("alice", CreateProjectRequest{Name: "Beta", Type: "standard", StartDate: "2024-07-01"})
	e.tables.failRewrite = nil

	assert.Equal(t, AbortedError, res.Outcome)
	entries, err := afero.ReadDir(e.fsys, "/drive")
	require.NoError(t, err)
	for _, entry := range entries {
		assert.Equal(t, ".trash", entry.Name())
	}
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

func TestStructuralErrorReleasesLockAndRollsBack(t *testing.T) {
	e := newEnv(t, nil)
	broken := ltable.NewStore()
	require.NoError(t, broken.CreateTable(TableProjects, Schema[TableProjects]...))
	require.NoError(t, broken.CreateTable(TableTaskTemplates, Schema[TableTaskTemplates]...))
	require.NoError(t, broken.CreateTable(TableAssignments, Schema[TableAssignments]...))
	_, err := SeedTemplates(broken, DefaultTemplates())
	require.NoError(t, err)
	c := New(e.locks, broken, e.files, Config{Clock: e.fake})

	res := c.CreateProject("alice", CreateProjectRequest{Name: "Gamma", Type: "standard"})
	assert.Equal(t, AbortedError, res.Outcome)
	assert.Equal(t, KindStructural, KindOf(res.Err))
	assert.Empty(t, e.fake.Sleeps(), "structural errors are not retried")

	projects, err := c.ListProjects()
	require.NoError(t, err)
	assert.Empty(t, projects, "the project row is rolled back")

	entries, err := afero.ReadDir(e.fsys, "/drive")
	require.NoError(t, err)
	for _, entry := range entries {
		assert.Equal(t, ".trash", entry.Name(), "the folder is trashed")
	}

	keys, err := e.store.ListKeys()
	require.NoError(t, err)
	assert.Empty(t, keys, "no lock is left behind")
}

func TestLockStoreFailureIsFatal(t *testing.T) {
	e := newEnv(t, nil)
	c := New(failingLocks{}, e.tables, e.files, Config{Clock: e.fake})

	res := c.CreateProject("alice", CreateProjectRequest{Name: "Delta", Type: "standard"})
	assert.Equal(t, AbortedError, res.Outcome)
	assert.Equal(t, KindTransient, KindOf(res.Err))
}

type failingLocks struct{ lockmgr.ILockManager }

func (failingLocks) TryAcquire(string, lockmgr.ResourceKey, time.Duration) (bool, error) {
	return false, props.NewError(props.RetCUnavailable, "store down")
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, ""},
		{&BusyError{Key: lockmgr.GlobalKey}, KindBusy},
		{fmt.Errorf("x: %w", &occ.ConflictError{}), KindConflict},
		{&table.StructuralError{Table: "Tasks"}, KindStructural},
		{&ProvisioningError{Err: &retry.ExhaustedError{Last: errors.New("timeout")}}, KindTransient},
		{&ProvisioningError{Err: errors.New("boom")}, KindInternal},
		{invalidf("bad"), KindInvalid},
		{lockmgr.ErrInvalidKey, KindInvalid},
		{fmt.Errorf("%w: p", ErrNotFound), KindNotFound},
		{props.NewError(props.RetCUnavailable, "down"), KindTransient},
		{props.NewError(props.RetCInternalError, "bug"), KindInternal},
		{errors.New("other"), KindInternal},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, KindOf(tc.err), "%v", tc.err)
	}
}

func TestStatsRecordOperations(t *testing.T) {
	e := newEnv(t, nil)
	p := e.create(t)
	e.c.GetProject(p.ID)

	snap := e.c.Stats().Snapshot()
	assert.Equal(t, int64(1), snap["create"].Count)
	assert.Equal(t, int64(1), snap["get"].Count)
	assert.Equal(t, []string{"create", "get"}, e.c.Stats().Operations())
}
