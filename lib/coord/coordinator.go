package coord

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ValentinKolb/dCoord/lib/clock"
	"github.com/ValentinKolb/dCoord/lib/files"
	"github.com/ValentinKolb/dCoord/lib/integrity"
	"github.com/ValentinKolb/dCoord/lib/lockmgr"
	"github.com/ValentinKolb/dCoord/lib/occ"
	"github.com/ValentinKolb/dCoord/lib/retry"
	"github.com/ValentinKolb/dCoord/lib/table"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("coord")

// Config configures a Coordinator. Zero values select the defaults.
type Config struct {
	// LockTimeout bounds the wait for the granular lock (default 10s).
	LockTimeout time.Duration
	// CoarseFallback additionally serializes all writes through the global lock.
	CoarseFallback bool
	// GlobalLockTimeout bounds the wait for the global lock (default 30s).
	GlobalLockTimeout time.Duration
	// Tolerance of the optimistic concurrency check (default 1s).
	Tolerance   time.Duration
	FilePolicy  retry.Policy
	TablePolicy retry.Policy
	Clock       clock.Clock
}

func (c Config) withDefaults() Config {
	if c.LockTimeout <= 0 {
		c.LockTimeout = 10 * time.Second
	}
	if c.GlobalLockTimeout <= 0 {
		c.GlobalLockTimeout = 30 * time.Second
	}
	if c.Tolerance <= 0 {
		c.Tolerance = occ.DefaultTolerance
	}
	if c.FilePolicy.MaxAttempts == 0 {
		c.FilePolicy = retry.FileStorePolicy()
	}
	if c.TablePolicy.MaxAttempts == 0 {
		c.TablePolicy = retry.TableStorePolicy()
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	return c
}

// Coordinator runs the acquire, validate, provision, persist, release protocol
// for every write to a project and its dependent rows.
type Coordinator struct {
	locks     lockmgr.ILockManager
	tables    table.IStore
	files     files.IStore
	exec      *retry.Executor
	guard     occ.Guard
	integrity *integrity.Validator
	cfg       Config
	stats     *Stats
	newID     func() string
}

// New creates a coordinator.
func New(locks lockmgr.ILockManager, tables table.IStore, fs files.IStore, cfg Config) *Coordinator {
	cfg = cfg.withDefaults()
	return &Coordinator{
		locks:     locks,
		tables:    tables,
		files:     fs,
		exec:      retry.NewExecutor(cfg.Clock),
		guard:     occ.Guard{Tolerance: cfg.Tolerance},
		integrity: integrity.NewValidator(Relations()...),
		cfg:       cfg,
		stats:     newStats(),
		newID:     uuid.NewString,
	}
}

// Stats returns the operation timers.
func (c *Coordinator) Stats() *Stats { return c.stats }

// Integrity returns the validator used before persisting.
func (c *Coordinator) Integrity() *integrity.Validator { return c.integrity }

// Audit lists every persisted row that references a missing parent.
func (c *Coordinator) Audit() ([]integrity.Violation, error) {
	return c.integrity.Audit(c.tables)
}

// --------------------------------------------------------------------------
// Requests
// --------------------------------------------------------------------------

type AssignmentInput struct {
	Assignee string `json:"assignee"`
	Role     string `json:"role"`
}

type CreateProjectRequest struct {
	Name        string            `json:"name"`
	Client      string            `json:"client"`
	Type        string            `json:"type"`
	StartDate   string            `json:"startDate"`
	Status      string            `json:"status"`
	Assignments []AssignmentInput `json:"assignments"`
}

// UpdateProjectRequest changes the non-nil fields of a project. A nil Assignments
// slice keeps the assignments, an empty one removes them.
type UpdateProjectRequest struct {
	ID          string            `json:"id"`
	Name        *string           `json:"name,omitempty"`
	Client      *string           `json:"client,omitempty"`
	Type        *string           `json:"type,omitempty"`
	StartDate   *string           `json:"startDate,omitempty"`
	Status      *string           `json:"status,omitempty"`
	Active      *bool             `json:"active,omitempty"`
	Assignments []AssignmentInput `json:"assignments,omitempty"`
	// KnownLastModified is the lastModified value the caller based its edit on.
	// Any representation accepted by occ.Parse is allowed.
	KnownLastModified any `json:"knownLastModified"`
}

// --------------------------------------------------------------------------
// Operations
// --------------------------------------------------------------------------

// CreateProject provisions and persists a new project with generated tasks.
// A failed folder provisioning does not abort the operation; the project is
// stored with the SentinelFolder and Result.Partial is set.
func (c *Coordinator) CreateProject(caller string, req CreateProjectRequest) Result {
	start := time.Now()
	p := Project{
		ID:        c.newID(),
		Name:      strings.TrimSpace(req.Name),
		Client:    strings.TrimSpace(req.Client),
		Type:      strings.TrimSpace(req.Type),
		StartDate: strings.TrimSpace(req.StartDate),
		Status:    strings.TrimSpace(req.Status),
		Active:    true,
	}
	if p.Status == "" {
		p.Status = "planned"
	}
	if err := validateProject(p); err != nil {
		return c.finish("create", start, Result{Err: err})
	}
	if err := validateAssignments(req.Assignments); err != nil {
		return c.finish("create", start, Result{Err: err})
	}

	res := c.withLock(caller, projectKey(p.ID), func() (res Result, err error) {
		// from here on every failure removes what was already written, including the folder
		defer func() {
			if err != nil {
				c.rollbackCreate(p)
			}
		}()

		var partial *ProvisioningError
		if folder, err := c.provision(p); err != nil {
			partial = err
			p.FolderID = SentinelFolder
			p.FolderURL = ""
			log.Warningf("project %s: %v; stored with folder sentinel", p.ID, err)
		} else {
			p.FolderID = folder.ID
			p.FolderURL = folder.URL
		}

		now := c.now()
		p.LastModified = now

		tasks, err := c.generateTasks(p, nil, now)
		if err != nil {
			return Result{Partial: partial}, err
		}
		assignments := c.buildAssignments(p.ID, req.Assignments, now)

		pending := map[string][]string{TableProjects: {p.ID}}
		if err := c.checkIntegrity(tasks, assignments, pending); err != nil {
			return Result{Partial: partial}, err
		}

		if err := c.persistProject(p); err != nil {
			return Result{Partial: partial}, err
		}
		if err := c.persistDependents(p.ID, tasks, assignments); err != nil {
			return Result{Partial: partial}, err
		}
		return Result{Project: &p, Tasks: tasks, Assignments: assignments, Partial: partial}, nil
	})
	return c.finish("create", start, res)
}

// UpdateProject applies req after checking it against the persisted version.
// Tasks are regenerated when the type or start date changes.
func (c *Coordinator) UpdateProject(caller string, req UpdateProjectRequest) Result {
	start := time.Now()
	known, err := occ.Parse(req.KnownLastModified)
	if err != nil {
		return c.finish("update", start, Result{Err: invalidf("knownLastModified: %v", err)})
	}
	if req.ID == "" {
		return c.finish("update", start, Result{Err: invalidf("missing project id")})
	}
	if req.Assignments != nil {
		if err := validateAssignments(req.Assignments); err != nil {
			return c.finish("update", start, Result{Err: err})
		}
	}

	res := c.withLock(caller, projectKey(req.ID), func() (Result, error) {
		current, err := c.loadProject(req.ID)
		if err != nil {
			return Result{}, err
		}
		if err := c.guard.Check("project", current.ID, occ.FromTime(current.LastModified), known); err != nil {
			return Result{Project: &current}, err
		}

		next := applyUpdate(current, req)
		if err := validateProject(next); err != nil {
			return Result{}, err
		}
		now := c.now()
		next.LastModified = now

		var tasks []Task
		regenerate := next.Type != current.Type || next.StartDate != current.StartDate
		if regenerate {
			existing, err := c.loadTasks(next.ID)
			if err != nil {
				return Result{}, err
			}
			if tasks, err = c.generateTasks(next, existing, now); err != nil {
				return Result{}, err
			}
		}
		var assignments []Assignment
		if req.Assignments != nil {
			assignments = c.buildAssignments(next.ID, req.Assignments, now)
		}
		if err := c.checkIntegrity(tasks, assignments, nil); err != nil {
			return Result{}, err
		}

		// dependent rows first, the project row last: a failure before the
		// project row is written restores the snapshot
		var writes []func() error
		var touched []string
		if regenerate {
			touched = append(touched, TableTasks)
			writes = append(writes, func() error { return c.replaceRows(TableTasks, next.ID, tasksToRows(tasks)) })
		}
		if req.Assignments != nil {
			touched = append(touched, TableAssignments)
			writes = append(writes, func() error {
				return c.replaceRows(TableAssignments, next.ID, assignmentsToRows(assignments))
			})
		}
		writes = append(writes, func() error { return c.persistProject(next) })

		snap, err := c.snapshot(current.ID, touched...)
		if err != nil {
			return Result{}, err
		}
		if err := c.commit(snap, writes...); err != nil {
			return Result{}, err
		}
		return c.readFull(next)
	})
	return c.finish("update", start, res)
}

// DeleteProject removes the project with all dependent rows and trashes its folder.
// The rows go first; if one of the writes fails they are restored and the folder
// is left alone. A failure to trash the folder afterwards is reported in
// Result.Partial and does not undo the deletion.
func (c *Coordinator) DeleteProject(caller, id string, knownLastModified any) Result {
	start := time.Now()
	known, err := occ.Parse(knownLastModified)
	if err != nil {
		return c.finish("delete", start, Result{Err: invalidf("knownLastModified: %v", err)})
	}

	res := c.withLock(caller, projectKey(id), func() (Result, error) {
		current, err := c.loadProject(id)
		if err != nil {
			return Result{}, err
		}
		if err := c.guard.Check("project", id, occ.FromTime(current.LastModified), known); err != nil {
			return Result{Project: &current}, err
		}

		var children []string
		var writes []func() error
		for _, rel := range c.integrity.ChildrenOf(TableProjects) {
			child := rel.Child
			children = append(children, child)
			writes = append(writes, func() error { return c.replaceRows(child, id, nil) })
		}
		writes = append(writes, func() error {
			return c.exec.Do(c.cfg.TablePolicy, func() error {
				_, err := table.ReplaceWhere(c.tables, TableProjects, func(r table.Row) bool { return r["id"] == id }, nil)
				return err
			})
		})

		snap, err := c.snapshot(id, children...)
		if err != nil {
			return Result{}, err
		}
		if err := c.commit(snap, writes...); err != nil {
			return Result{}, err
		}

		var partial *ProvisioningError
		if current.FolderID != "" && !NeedsRemediation(current) {
			folder := files.Handle{ID: current.FolderID, URL: current.FolderURL, Folder: true}
			err := c.exec.Do(c.cfg.FilePolicy, func() error {
				err := c.files.Trash(folder)
				if errors.Is(err, files.ErrNotFound) {
					return nil
				}
				return err
			})
			if err != nil {
				partial = &ProvisioningError{ProjectID: id, Step: "trash folder", Err: err}
				log.Warningf("project %s: %v", id, partial)
			}
		}
		return Result{Project: &current, Partial: partial}, nil
	})
	return c.finish("delete", start, res)
}

// RegenerateTasks rewrites the tasks of a project from the templates of its type.
// Done flags are carried over by task name, so running it twice in a row yields
// the same rows apart from ids and creation times.
func (c *Coordinator) RegenerateTasks(caller, id string) Result {
	start := time.Now()
	res := c.withLock(caller, projectKey(id), func() (Result, error) {
		p, err := c.loadProject(id)
		if err != nil {
			return Result{}, err
		}
		existing, err := c.loadTasks(id)
		if err != nil {
			return Result{}, err
		}
		tasks, err := c.generateTasks(p, existing, c.now())
		if err != nil {
			return Result{}, err
		}
		if err := c.checkIntegrity(tasks, nil, nil); err != nil {
			return Result{}, err
		}
		if err := c.replaceRows(TableTasks, id, tasksToRows(tasks)); err != nil {
			return Result{}, err
		}
		return Result{Project: &p, Tasks: tasks}, nil
	})
	return c.finish("regenerate", start, res)
}

// RetryProvisioning provisions the folder of a project stored with the SentinelFolder.
// Projects with a folder are returned unchanged.
func (c *Coordinator) RetryProvisioning(caller, id string) Result {
	start := time.Now()
	res := c.withLock(caller, projectKey(id), func() (Result, error) {
		p, err := c.loadProject(id)
		if err != nil {
			return Result{}, err
		}
		if !NeedsRemediation(p) {
			return Result{Project: &p}, nil
		}
		folder, perr := c.provision(p)
		if perr != nil {
			return Result{Project: &p, Partial: perr}, perr
		}
		p.FolderID = folder.ID
		p.FolderURL = folder.URL
		p.LastModified = c.now()
		if err := c.persistProject(p); err != nil {
			return Result{}, err
		}
		return Result{Project: &p}, nil
	})
	return c.finish("provision", start, res)
}

// GetProject reads a project with its tasks and assignments without locking.
func (c *Coordinator) GetProject(id string) Result {
	start := time.Now()
	p, err := c.loadProject(id)
	if err != nil {
		return c.finish("get", start, Result{Err: err})
	}
	res, err := c.readFull(p)
	res.Err = err
	return c.finish("get", start, res)
}

// ListProjects returns all projects without locking.
func (c *Coordinator) ListProjects() ([]Project, error) {
	t, err := c.readTable(TableProjects)
	if err != nil {
		return nil, err
	}
	out := make([]Project, 0, len(t.Rows))
	for _, r := range t.Rows {
		p, err := projectFromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Protocol
// --------------------------------------------------------------------------

// withLock holds the granular lock (and the global lock if configured) while fn runs.
// The locks are released whatever fn returns, and also if it panics.
func (c *Coordinator) withLock(caller string, key lockmgr.ResourceKey, fn func() (Result, error)) Result {
	release, ok, err := c.acquire(caller, key, c.cfg.LockTimeout)
	if err != nil {
		return Result{Err: err}
	}
	if !ok {
		return Result{Err: &BusyError{Key: key}}
	}
	defer release()

	if c.cfg.CoarseFallback {
		releaseGlobal, ok, err := c.acquire(caller, lockmgr.GlobalKey, c.cfg.GlobalLockTimeout)
		if err != nil {
			return Result{Err: err}
		}
		if !ok {
			return Result{Err: &BusyError{Key: lockmgr.GlobalKey}}
		}
		defer releaseGlobal()
	}

	res, err := fn()
	res.Err = err
	return res
}

// acquire takes key for caller and returns the matching release func. Lock
// managers that hand out tokens are released by token, so a holder whose lock
// went stale and was reclaimed never deletes the new holder's record.
func (c *Coordinator) acquire(caller string, key lockmgr.ResourceKey, timeout time.Duration) (func(), bool, error) {
	if tl, ok := c.locks.(lockmgr.ITokenLockManager); ok {
		token, ok, err := tl.AcquireToken(caller, key, timeout)
		if err != nil || !ok {
			return nil, ok, err
		}
		return func() {
			released, err := tl.ReleaseToken(key, token)
			logRelease(caller, key, released, err)
		}, true, nil
	}

	ok, err := c.locks.TryAcquire(caller, key, timeout)
	if err != nil || !ok {
		return nil, ok, err
	}
	return func() {
		released, err := c.locks.Release(caller, key)
		logRelease(caller, key, released, err)
	}, true, nil
}

func logRelease(caller string, key lockmgr.ResourceKey, released bool, err error) {
	if err != nil {
		log.Errorf("release %s for %s: %v", key, caller, err)
	} else if !released {
		log.Warningf("lock %s was no longer held by %s at release", key, caller)
	}
}

func (c *Coordinator) finish(op string, start time.Time, res Result) Result {
	res.Outcome = outcomeOf(res.Err)
	c.stats.observe(op, res.Outcome, start)
	if res.Err != nil {
		log.Infof("%s: %s: %v", op, res.Outcome, res.Err)
	}
	return res
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func projectKey(id string) lockmgr.ResourceKey {
	return lockmgr.ResourceKey{Kind: lockmgr.KindProject, ID: id}
}

func (c *Coordinator) now() time.Time {
	return c.cfg.Clock.Now().UTC().Truncate(time.Millisecond)
}

func (c *Coordinator) readTable(name string) (table.Table, error) {
	return retry.Execute(c.exec, c.cfg.TablePolicy, func() (table.Table, error) {
		t, err := c.tables.ReadTable(name)
		if err != nil {
			return table.Table{}, err
		}
		return t, table.RequireColumns(t, Schema[name]...)
	})
}

func (c *Coordinator) loadProject(id string) (Project, error) {
	t, err := c.readTable(TableProjects)
	if err != nil {
		return Project{}, err
	}
	i := table.Find(t, "id", id)
	if i < 0 {
		return Project{}, invalidOrMissing(id)
	}
	return projectFromRow(t.Rows[i])
}

func invalidOrMissing(id string) error {
	if id == "" {
		return invalidf("missing project id")
	}
	return fmt.Errorf("%w: project %s", ErrNotFound, id)
}

func (c *Coordinator) loadTasks(projectID string) ([]Task, error) {
	t, err := c.readTable(TableTasks)
	if err != nil {
		return nil, err
	}
	rows := table.Filter(t, "projectId", projectID)
	out := make([]Task, 0, len(rows))
	for _, r := range rows {
		task, err := taskFromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (c *Coordinator) loadAssignments(projectID string) ([]Assignment, error) {
	t, err := c.readTable(TableAssignments)
	if err != nil {
		return nil, err
	}
	rows := table.Filter(t, "projectId", projectID)
	out := make([]Assignment, 0, len(rows))
	for _, r := range rows {
		a, err := assignmentFromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (c *Coordinator) readFull(p Project) (Result, error) {
	tasks, err := c.loadTasks(p.ID)
	if err != nil {
		return Result{Project: &p}, err
	}
	assignments, err := c.loadAssignments(p.ID)
	if err != nil {
		return Result{Project: &p}, err
	}
	return Result{Project: &p, Tasks: tasks, Assignments: assignments}, nil
}

// generateTasks builds the task list of p from the templates of its type.
// Done flags of existing tasks with the same name are kept.
func (c *Coordinator) generateTasks(p Project, existing []Task, now time.Time) ([]Task, error) {
	t, err := c.readTable(TableTaskTemplates)
	if err != nil {
		return nil, err
	}
	templates := make([]TaskTemplate, 0)
	for _, r := range table.Filter(t, "projectType", p.Type) {
		tpl, err := templateFromRow(r)
		if err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	sort.SliceStable(templates, func(i, j int) bool { return templates[i].Position < templates[j].Position })

	done := make(map[string]bool, len(existing))
	for _, e := range existing {
		done[e.Name] = done[e.Name] || e.Done
	}
	startDate, _ := table.ParseDate(p.StartDate)

	tasks := make([]Task, 0, len(templates))
	for _, tpl := range templates {
		due := ""
		if !startDate.IsZero() {
			due = table.FormatDate(startDate.AddDate(0, 0, tpl.OffsetDays))
		}
		tasks = append(tasks, Task{
			ID:        c.newID(),
			ProjectID: p.ID,
			Name:      tpl.Name,
			Phase:     tpl.Phase,
			Position:  tpl.Position,
			DueDate:   due,
			Done:      done[tpl.Name],
			CreatedAt: now,
		})
	}
	return tasks, nil
}

func (c *Coordinator) buildAssignments(projectID string, in []AssignmentInput, now time.Time) []Assignment {
	out := make([]Assignment, 0, len(in))
	for _, a := range in {
		out = append(out, Assignment{
			ID:        c.newID(),
			ProjectID: projectID,
			Assignee:  strings.TrimSpace(a.Assignee),
			Role:      strings.TrimSpace(a.Role),
			CreatedAt: now,
		})
	}
	return out
}

func (c *Coordinator) checkIntegrity(tasks []Task, assignments []Assignment, pending map[string][]string) error {
	if len(tasks) > 0 {
		if err := c.integrity.CheckRows(c.tables, TableTasks, tasksToRows(tasks), pending); err != nil {
			return err
		}
	}
	if len(assignments) > 0 {
		if err := c.integrity.CheckRows(c.tables, TableAssignments, assignmentsToRows(assignments), pending); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) persistProject(p Project) error {
	return c.exec.Do(c.cfg.TablePolicy, func() error {
		_, err := table.UpsertRow(c.tables, TableProjects, "id", projectToRow(p))
		return err
	})
}

// persistDependents replaces the tasks and assignments of a project.
func (c *Coordinator) persistDependents(projectID string, tasks []Task, assignments []Assignment) error {
	if err := c.replaceRows(TableTasks, projectID, tasksToRows(tasks)); err != nil {
		return err
	}
	return c.replaceRows(TableAssignments, projectID, assignmentsToRows(assignments))
}

// replaceRows swaps all rows of a project in a dependent table for rows in one batched write.
func (c *Coordinator) replaceRows(name, projectID string, rows []table.Row) error {
	return c.exec.Do(c.cfg.TablePolicy, func() error {
		_, err := table.ReplaceWhere(c.tables, name, func(r table.Row) bool { return r["projectId"] == projectID }, rows)
		return err
	})
}

// rollbackCreate removes whatever a failed create already wrote, including its folder.
// Errors are only logged.
func (c *Coordinator) rollbackCreate(p Project) {
	for _, name := range []string{TableTasks, TableAssignments} {
		if _, err := table.ReplaceWhere(c.tables, name, func(r table.Row) bool { return r["projectId"] == p.ID }, nil); err != nil {
			log.Errorf("rollback of project %s: clean %s: %v", p.ID, name, err)
		}
	}
	if _, err := table.ReplaceWhere(c.tables, TableProjects, func(r table.Row) bool { return r["id"] == p.ID }, nil); err != nil {
		log.Errorf("rollback of project %s: %v", p.ID, err)
	}
	folders := []files.Handle{{ID: p.FolderID, Folder: true}}
	if p.FolderID == "" || NeedsRemediation(p) {
		// provisioning may have stopped after creating the project folder
		var err error
		if folders, err = c.files.ListFoldersByName(c.files.Root(), p.FolderName()); err != nil {
			log.Errorf("rollback of project %s: look up folder: %v", p.ID, err)
			return
		}
	}
	for _, folder := range folders {
		if err := c.files.Trash(folder); err != nil {
			log.Errorf("rollback of project %s: trash folder: %v", p.ID, err)
		}
	}
}

// snapshot holds the persisted rows of one project so a failed write sequence
// can be put back.
type snapshot struct {
	projectID string
	project   table.Row              // nil if the project row did not exist
	children  map[string][]table.Row // per dependent table
}

// snapshot reads the project row of id and its rows in the given dependent tables.
func (c *Coordinator) snapshot(id string, children ...string) (snapshot, error) {
	snap := snapshot{projectID: id, children: make(map[string][]table.Row, len(children))}

	t, err := c.readTable(TableProjects)
	if err != nil {
		return snap, err
	}
	if i := table.Find(t, "id", id); i >= 0 {
		snap.project = t.Rows[i].Clone()
	}
	for _, name := range children {
		t, err := c.readTable(name)
		if err != nil {
			return snap, err
		}
		rows := table.Filter(t, "projectId", id)
		for i, r := range rows {
			rows[i] = r.Clone()
		}
		snap.children[name] = rows
	}
	return snap, nil
}

// commit runs writes in order. When one fails, the rows recorded in snap are
// written back and the error of the failed write is returned.
func (c *Coordinator) commit(snap snapshot, writes ...func() error) error {
	for _, write := range writes {
		if err := write(); err != nil {
			c.restore(snap)
			return err
		}
	}
	return nil
}

// restore writes snap back. Errors are only logged.
func (c *Coordinator) restore(snap snapshot) {
	id := snap.projectID
	for name, rows := range snap.children {
		if err := c.replaceRows(name, id, rows); err != nil {
			log.Errorf("restore of project %s: %s: %v", id, name, err)
		}
	}
	err := c.exec.Do(c.cfg.TablePolicy, func() error {
		if snap.project == nil {
			_, err := table.ReplaceWhere(c.tables, TableProjects, func(r table.Row) bool { return r["id"] == id }, nil)
			return err
		}
		_, err := table.UpsertRow(c.tables, TableProjects, "id", snap.project)
		return err
	})
	if err != nil {
		log.Errorf("restore of project %s: %v", id, err)
	}
}

func applyUpdate(p Project, req UpdateProjectRequest) Project {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&p.Name, req.Name)
	set(&p.Client, req.Client)
	set(&p.Type, req.Type)
	set(&p.StartDate, req.StartDate)
	set(&p.Status, req.Status)
	if req.Active != nil {
		p.Active = *req.Active
	}
	return p
}

func validateProject(p Project) error {
	if p.Name == "" {
		return invalidf("project name is required")
	}
	if err := files.ValidName(p.FolderName()); err != nil {
		return invalidf("project name %q cannot be used as a folder name", p.Name)
	}
	if p.Type == "" {
		return invalidf("project type is required")
	}
	if _, err := table.ParseDate(p.StartDate); err != nil {
		return invalidf("startDate %q is not a YYYY-MM-DD date", p.StartDate)
	}
	return nil
}

func validateAssignments(in []AssignmentInput) error {
	for i, a := range in {
		if strings.TrimSpace(a.Assignee) == "" {
			return invalidf("assignment %d has no assignee", i)
		}
	}
	return nil
}

func tasksToRows(tasks []Task) []table.Row {
	rows := make([]table.Row, len(tasks))
	for i, t := range tasks {
		rows[i] = taskToRow(t)
	}
	return rows
}

func assignmentsToRows(as []Assignment) []table.Row {
	rows := make([]table.Row, len(as))
	for i, a := range as {
		rows[i] = assignmentToRow(a)
	}
	return rows
}
