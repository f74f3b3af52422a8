package server

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/dCoord/lib/coord"
	"github.com/ValentinKolb/dCoord/lib/lockmgr"
	"github.com/ValentinKolb/dCoord/lib/props"
	"github.com/ValentinKolb/dCoord/rpc/common"
)

// maxLockTimeout bounds the timeoutMs of a lock request.
const maxLockTimeout = 5 * time.Minute

// --------------------------------------------------------------------------
// Projects
// --------------------------------------------------------------------------

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req coord.CreateProjectRequest
	if err := s.decodeBody(r, schemaCreateProject, &req); err != nil {
		writeFailure(w, err)
		return
	}
	writeResult(w, s.coord.CreateProject(callerOf(r), req))
}

func (s *Server) handleListProjects(w http.ResponseWriter, _ *http.Request) {
	ps, err := s.coord.ListProjects()
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, common.ProjectListPayload{Projects: ps})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	writeResult(w, s.coord.GetProject(r.PathValue("id")))
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var req coord.UpdateProjectRequest
	if err := s.decodeBody(r, schemaUpdateProject, &req); err != nil {
		writeFailure(w, err)
		return
	}
	id := r.PathValue("id")
	if req.ID != "" && req.ID != id {
		writeFailure(w, fmt.Errorf("%w: body id %q does not match path id %q", coord.ErrInvalid, req.ID, id))
		return
	}
	req.ID = id
	writeResult(w, s.coord.UpdateProject(callerOf(r), req))
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	var known any
	if v := r.URL.Query().Get("lastModified"); v != "" {
		known = v
	}
	writeResult(w, s.coord.DeleteProject(callerOf(r), r.PathValue("id"), known))
}

func (s *Server) handleRegenerateTasks(w http.ResponseWriter, r *http.Request) {
	writeResult(w, s.coord.RegenerateTasks(callerOf(r), r.PathValue("id")))
}

func (s *Server) handleRetryProvisioning(w http.ResponseWriter, r *http.Request) {
	writeResult(w, s.coord.RetryProvisioning(callerOf(r), r.PathValue("id")))
}

func (s *Server) handleIntegrity(w http.ResponseWriter, _ *http.Request) {
	vs, err := s.coord.Audit()
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, common.NewIntegrityPayload(vs))
}

// --------------------------------------------------------------------------
// Locks
// --------------------------------------------------------------------------

// lockKey parses the {kind}/{id} path values.
func lockKey(r *http.Request) (lockmgr.ResourceKey, error) {
	kind, err := lockmgr.ParseResourceKind(r.PathValue("kind"))
	if err != nil {
		return lockmgr.ResourceKey{}, fmt.Errorf("%w: %v", coord.ErrInvalid, err)
	}
	key := lockmgr.ResourceKey{Kind: kind, ID: r.PathValue("id")}
	if err := key.Validate(); err != nil {
		return lockmgr.ResourceKey{}, fmt.Errorf("%w: %v", coord.ErrInvalid, err)
	}
	return key, nil
}

// lockTimeout reads ?timeoutMs=, falling back to the configured lock timeout.
func (s *Server) lockTimeout(r *http.Request) (time.Duration, error) {
	raw := r.URL.Query().Get("timeoutMs")
	if raw == "" {
		return s.config.LockTimeout, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms < 0 {
		return 0, fmt.Errorf("%w: timeoutMs must be a non-negative integer", coord.ErrInvalid)
	}
	d := time.Duration(ms) * time.Millisecond
	if d > maxLockTimeout {
		return 0, fmt.Errorf("%w: timeoutMs exceeds %s", coord.ErrInvalid, maxLockTimeout)
	}
	return d, nil
}

func (s *Server) handleAcquire(w http.ResponseWriter, r *http.Request) {
	key, err := lockKey(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	timeout, err := s.lockTimeout(r)
	if err != nil {
		writeFailure(w, err)
		return
	}

	owner, err := lockOwnerOf(r)
	if err != nil {
		writeFailure(w, err)
		return
	}

	ok, err := s.locks.TryAcquire(owner, key, timeout)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if !ok {
		writeFailure(w, &coord.BusyError{Key: key})
		return
	}
	writeSuccess(w, common.AcquirePayload{Acquired: true, Key: key.String()})
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	key, err := lockKey(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	owner, err := lockOwnerOf(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	ok, err := s.locks.Release(owner, key)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, common.ReleasePayload{Released: ok})
}

func (s *Server) handleLockStatus(w http.ResponseWriter, r *http.Request) {
	key, err := lockKey(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	rec, locked, err := s.locks.Inspect(key)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, common.NewLockPayload(key, rec, locked, s.clock.Now()))
}

func (s *Server) handleSweep(w http.ResponseWriter, _ *http.Request) {
	n, err := s.locks.CleanExpiredLocks()
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, common.SweepPayload{Removed: n})
}

// --------------------------------------------------------------------------
// Properties
// --------------------------------------------------------------------------

func (s *Server) handleListProps(w http.ResponseWriter, r *http.Request) {
	keys, err := props.ListKeysWithPrefix(s.props, r.URL.Query().Get("prefix"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	sort.Strings(keys)
	writeSuccess(w, common.PropKeysPayload{Keys: keys})
}

func (s *Server) handleGetProp(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	v, ok, err := s.props.Get(key)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if !ok {
		writeFailure(w, fmt.Errorf("%w: property %s", coord.ErrNotFound, key))
		return
	}
	writeSuccess(w, common.PropPayload{Key: key, Value: v})
}

func (s *Server) handleSetProp(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if strings.TrimSpace(key) == "" {
		writeFailure(w, fmt.Errorf("%w: empty property key", coord.ErrInvalid))
		return
	}
	var req common.PropSetRequest
	if err := s.decodeBody(r, schemaSetProp, &req); err != nil {
		writeFailure(w, err)
		return
	}
	if err := s.props.Set(key, req.Value); err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, common.PropPayload{Key: key, Value: req.Value})
}

func (s *Server) handleDeleteProp(w http.ResponseWriter, r *http.Request) {
	if err := s.props.Delete(r.PathValue("key")); err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, nil)
}

// --------------------------------------------------------------------------
// Observability
// --------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, common.StatusPayload{
		Backend:    s.config.Backend,
		Uptime:     s.clock.Now().Sub(s.started).Truncate(time.Second).String(),
		Operations: s.coord.Stats().Snapshot(),
	})
}
