package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dCoord/lib/clock"
	"github.com/ValentinKolb/dCoord/lib/coord"
	"github.com/ValentinKolb/dCoord/lib/files/lfiles"
	"github.com/ValentinKolb/dCoord/lib/lockmgr"
	"github.com/ValentinKolb/dCoord/lib/props/lprops"
	"github.com/ValentinKolb/dCoord/lib/table/ltable"
	"github.com/ValentinKolb/dCoord/rpc/common"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)

type testServer struct {
	fake    *clock.Fake
	server  *Server
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	fake := clock.NewFake(t0)
	store := lprops.NewLocalStore()
	locks := lockmgr.NewLockManager(store, lockmgr.Options{Clock: fake})

	tables := ltable.NewStore()
	require.NoError(t, coord.EnsureSchema(tables))
	_, err := coord.SeedTemplates(tables, coord.DefaultTemplates())
	require.NoError(t, err)

	fs, err := lfiles.NewStore(afero.NewMemMapFs(), "/drive", "file:///drive")
	require.NoError(t, err)

	c := coord.New(locks, tables, fs, coord.Config{Clock: fake, LockTimeout: time.Second})
	config := common.ServerConfig{Backend: common.BackendLocal, LockTimeout: time.Second}

	s, err := NewServer(config, c, locks, store, fake)
	require.NoError(t, err)
	return &testServer{fake: fake, server: s, handler: s.Handler()}
}

// do sends a request and decodes the envelope.
func (ts *testServer) do(t *testing.T, method, path, caller string, body any) (int, common.Response) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if caller != "" {
		req.Header.Set(CallerHeader, caller)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	var resp common.Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec.Code, resp
}

func (ts *testServer) createProject(t *testing.T) common.ProjectPayload {
	t.Helper()
	code, resp := ts.do(t, http.MethodPost, "/projects", "alice", map[string]any{
		"name":        "Alpha",
		"client":      "ACME",
		"type":        "standard",
		"startDate":   "2024-07-01",
		"assignments": []map[string]string{{"assignee": "alice", "role": "lead"}},
	})
	require.Equal(t, http.StatusOK, code, "%+v", resp.Error)

	var payload common.ProjectPayload
	require.NoError(t, resp.Decode(&payload))
	require.NotNil(t, payload.Project)
	return payload
}

func errorKind(t *testing.T, resp common.Response) coord.Kind {
	t.Helper()
	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	return resp.Error.Kind
}

// --------------------------------------------------------------------------
// Projects
// --------------------------------------------------------------------------

func TestProjectLifecycle(t *testing.T) {
	ts := newTestServer(t)
	created := ts.createProject(t)
	id := created.Project.ID

	assert.Equal(t, coord.Committed, created.Outcome)
	assert.Len(t, created.Tasks, 5)
	assert.Len(t, created.Assignments, 1)
	assert.False(t, created.NeedsRemediation)

	t.Run("get", func(t *testing.T) {
		code, resp := ts.do(t, http.MethodGet, "/projects/"+id, "", nil)
		require.Equal(t, http.StatusOK, code)
		var got common.ProjectPayload
		require.NoError(t, resp.Decode(&got))
		assert.Equal(t, "Alpha", got.Project.Name)
		assert.Len(t, got.Tasks, 5)
	})

	t.Run("list", func(t *testing.T) {
		code, resp := ts.do(t, http.MethodGet, "/projects", "", nil)
		require.Equal(t, http.StatusOK, code)
		var list common.ProjectListPayload
		require.NoError(t, resp.Decode(&list))
		require.Len(t, list.Projects, 1)
		assert.Equal(t, id, list.Projects[0].ID)
	})

	t.Run("update", func(t *testing.T) {
		code, resp := ts.do(t, http.MethodPut, "/projects/"+id, "bob", map[string]any{
			"status":            "running",
			"knownLastModified": created.Project.LastModified.Format(time.RFC3339Nano),
		})
		require.Equal(t, http.StatusOK, code, "%+v", resp.Error)
		var got common.ProjectPayload
		require.NoError(t, resp.Decode(&got))
		assert.Equal(t, "running", got.Project.Status)
	})

	t.Run("regenerate", func(t *testing.T) {
		code, resp := ts.do(t, http.MethodPost, "/projects/"+id+"/tasks/regenerate", "bob", nil)
		require.Equal(t, http.StatusOK, code, "%+v", resp.Error)
		var got common.ProjectPayload
		require.NoError(t, resp.Decode(&got))
		assert.Len(t, got.Tasks, 5)
	})

	t.Run("delete", func(t *testing.T) {
		code, resp := ts.do(t, http.MethodDelete, "/projects/"+id, "bob", nil)
		require.Equal(t, http.StatusOK, code, "%+v", resp.Error)

		code, resp = ts.do(t, http.MethodGet, "/projects/"+id, "", nil)
		assert.Equal(t, http.StatusNotFound, code)
		assert.Equal(t, coord.KindNotFound, errorKind(t, resp))
	})
}

func TestCreateProjectSchemaValidation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body any
	}{
		{"missing name", map[string]any{"type": "standard", "startDate": "2024-07-01"}},
		{"bad date", map[string]any{"name": "A", "type": "standard", "startDate": "01.07.2024"}},
		{"unknown field", map[string]any{"name": "A", "type": "standard", "startDate": "2024-07-01", "owner": "x"}},
		{"assignment without assignee", map[string]any{
			"name": "A", "type": "standard", "startDate": "2024-07-01",
			"assignments": []map[string]string{{"role": "lead"}},
		}},
		{"malformed json", `{"name": "A",`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := ts.do(t, http.MethodPost, "/projects", "alice", tt.body)
			assert.Equal(t, http.StatusUnprocessableEntity, code)
			assert.Equal(t, coord.KindInvalid, errorKind(t, resp))
		})
	}

	code, resp := ts.do(t, http.MethodGet, "/projects", "", nil)
	require.Equal(t, http.StatusOK, code)
	var list common.ProjectListPayload
	require.NoError(t, resp.Decode(&list))
	assert.Empty(t, list.Projects)
}

func TestUpdateProjectConflicts(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createProject(t).Project.ID

	t.Run("stale lastModified", func(t *testing.T) {
		code, resp := ts.do(t, http.MethodPut, "/projects/"+id, "bob", map[string]any{
			"status":            "late",
			"knownLastModified": "2020-01-01T00:00:00.000Z",
		})
		assert.Equal(t, http.StatusConflict, code)
		assert.Equal(t, coord.KindConflict, errorKind(t, resp))
	})

	t.Run("locked by another caller", func(t *testing.T) {
		code, _ := ts.do(t, http.MethodPost, "/locks/project/"+id+"/acquire?timeoutMs=0", "carol", nil)
		require.Equal(t, http.StatusOK, code)

		code, resp := ts.do(t, http.MethodPut, "/projects/"+id, "bob", map[string]any{"status": "x"})
		assert.Equal(t, http.StatusConflict, code)
		assert.Equal(t, coord.KindBusy, errorKind(t, resp))

		code, _ = ts.do(t, http.MethodPost, "/locks/project/"+id+"/release", "carol", nil)
		require.Equal(t, http.StatusOK, code)
	})

	t.Run("path and body id differ", func(t *testing.T) {
		code, resp := ts.do(t, http.MethodPut, "/projects/"+id, "bob", map[string]any{"id": "other"})
		assert.Equal(t, http.StatusUnprocessableEntity, code)
		assert.Equal(t, coord.KindInvalid, errorKind(t, resp))
	})
}

// --------------------------------------------------------------------------
// Locks
// --------------------------------------------------------------------------

func TestLockEndpoints(t *testing.T) {
	ts := newTestServer(t)
	base := "/locks/task/t-1"

	code, resp := ts.do(t, http.MethodPost, base+"/acquire", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	var acq common.AcquirePayload
	require.NoError(t, resp.Decode(&acq))
	assert.True(t, acq.Acquired)

	// contention is reported as busy
	code, resp = ts.do(t, http.MethodPost, base+"/acquire?timeoutMs=500", "bob", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, coord.KindBusy, errorKind(t, resp))

	code, resp = ts.do(t, http.MethodGet, base, "", nil)
	require.Equal(t, http.StatusOK, code)
	var status common.LockPayload
	require.NoError(t, resp.Decode(&status))
	assert.True(t, status.Locked)
	assert.Equal(t, "alice", status.Owner)

	// only the owner releases
	code, resp = ts.do(t, http.MethodPost, base+"/release", "bob", nil)
	require.Equal(t, http.StatusOK, code)
	var rel common.ReleasePayload
	require.NoError(t, resp.Decode(&rel))
	assert.False(t, rel.Released)

	code, resp = ts.do(t, http.MethodPost, base+"/release", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, resp.Decode(&rel))
	assert.True(t, rel.Released)

	code, resp = ts.do(t, http.MethodGet, base, "", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, resp.Decode(&status))
	assert.False(t, status.Locked)
}

func TestLockEndpointValidation(t *testing.T) {
	ts := newTestServer(t)

	code, resp := ts.do(t, http.MethodPost, "/locks/folder/x/acquire", "alice", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, coord.KindInvalid, errorKind(t, resp))

	code, resp = ts.do(t, http.MethodPost, "/locks/task/x/acquire?timeoutMs=-1", "alice", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, coord.KindInvalid, errorKind(t, resp))

	code, _ = ts.do(t, http.MethodPost, "/locks/task/x/acquire?timeoutMs=600000", "alice", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestAnonymousCaller(t *testing.T) {
	ts := newTestServer(t)

	// lock operations need an explicit owner
	code, resp := ts.do(t, http.MethodPost, "/locks/assignment/a-1/acquire", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, coord.KindInvalid, errorKind(t, resp))

	code, _ = ts.do(t, http.MethodPost, "/locks/assignment/a-1/acquire", "alice", nil)
	require.Equal(t, http.StatusOK, code)

	// an anonymous caller cannot release alice's lock
	code, resp = ts.do(t, http.MethodPost, "/locks/assignment/a-1/release", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, coord.KindInvalid, errorKind(t, resp))

	_, resp = ts.do(t, http.MethodGet, "/locks/assignment/a-1", "", nil)
	var status common.LockPayload
	require.NoError(t, resp.Decode(&status))
	assert.True(t, status.Locked)
	assert.Equal(t, "alice", status.Owner)

	// project operations fall back to the default identity
	code, resp = ts.do(t, http.MethodPost, "/projects", "", map[string]any{
		"name": "Anon", "type": "express", "startDate": "2024-07-01",
	})
	require.Equal(t, http.StatusOK, code)
	var created common.ProjectPayload
	require.NoError(t, resp.Decode(&created))
	assert.Equal(t, "Anon", created.Project.Name)
}

func TestSweepAndJanitor(t *testing.T) {
	ts := newTestServer(t)

	code, _ := ts.do(t, http.MethodPost, "/locks/project/p-1/acquire", "alice", nil)
	require.Equal(t, http.StatusOK, code)

	code, resp := ts.do(t, http.MethodPost, "/locks/sweep", "", nil)
	require.Equal(t, http.StatusOK, code)
	var sweep common.SweepPayload
	require.NoError(t, resp.Decode(&sweep))
	assert.Equal(t, 0, sweep.Removed)

	ts.fake.Advance(121 * time.Second)
	assert.Equal(t, 1, ts.server.sweep())

	_, resp = ts.do(t, http.MethodGet, "/locks/project/p-1", "", nil)
	var status common.LockPayload
	require.NoError(t, resp.Decode(&status))
	assert.False(t, status.Locked)
}

// --------------------------------------------------------------------------
// Properties
// --------------------------------------------------------------------------

func TestPropsEndpoints(t *testing.T) {
	ts := newTestServer(t)

	code, _ := ts.do(t, http.MethodPut, "/props/color", "", map[string]string{"value": "blue"})
	require.Equal(t, http.StatusOK, code)
	code, _ = ts.do(t, http.MethodPut, "/props/size", "", map[string]string{"value": "xl"})
	require.Equal(t, http.StatusOK, code)

	code, resp := ts.do(t, http.MethodGet, "/props/color", "", nil)
	require.Equal(t, http.StatusOK, code)
	var prop common.PropPayload
	require.NoError(t, resp.Decode(&prop))
	assert.Equal(t, "blue", prop.Value)

	code, resp = ts.do(t, http.MethodGet, "/props?prefix=co", "", nil)
	require.Equal(t, http.StatusOK, code)
	var keys common.PropKeysPayload
	require.NoError(t, resp.Decode(&keys))
	assert.Equal(t, []string{"color"}, keys.Keys)

	code, _ = ts.do(t, http.MethodDelete, "/props/color", "", nil)
	require.Equal(t, http.StatusOK, code)

	code, resp = ts.do(t, http.MethodGet, "/props/color", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, coord.KindNotFound, errorKind(t, resp))

	code, resp = ts.do(t, http.MethodPut, "/props/size", "", map[string]any{"value": 42})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, coord.KindInvalid, errorKind(t, resp))
}

func TestLockRecordsAreVisibleAsProps(t *testing.T) {
	ts := newTestServer(t)
	code, _ := ts.do(t, http.MethodPost, "/locks/project/p-9/acquire", "alice", nil)
	require.Equal(t, http.StatusOK, code)

	_, resp := ts.do(t, http.MethodGet, "/props?prefix="+lockmgr.KeyPrefix, "", nil)
	var keys common.PropKeysPayload
	require.NoError(t, resp.Decode(&keys))
	assert.Equal(t, []string{lockmgr.ResourceKey{Kind: lockmgr.KindProject, ID: "p-9"}.StoreKey()}, keys.Keys)
}

// --------------------------------------------------------------------------
// Observability
// --------------------------------------------------------------------------

func TestStatusMetricsAndIntegrity(t *testing.T) {
	ts := newTestServer(t)
	ts.createProject(t)

	code, resp := ts.do(t, http.MethodGet, "/status", "", nil)
	require.Equal(t, http.StatusOK, code)
	var status common.StatusPayload
	require.NoError(t, resp.Decode(&status))
	assert.Equal(t, common.BackendLocal, status.Backend)
	assert.Equal(t, int64(1), status.Operations["create"].Count)

	code, resp = ts.do(t, http.MethodGet, "/integrity", "", nil)
	require.Equal(t, http.StatusOK, code)
	var audit common.IntegrityPayload
	require.NoError(t, resp.Decode(&audit))
	assert.Empty(t, audit.Violations)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dcoord_lock_acquire_total")
	assert.Contains(t, rec.Body.String(), "dcoord_coord_operations_total")
}

func TestStatusFor(t *testing.T) {
	tests := map[coord.Kind]int{
		coord.KindBusy:       http.StatusConflict,
		coord.KindConflict:   http.StatusConflict,
		coord.KindIntegrity:  http.StatusUnprocessableEntity,
		coord.KindInvalid:    http.StatusUnprocessableEntity,
		coord.KindNotFound:   http.StatusNotFound,
		coord.KindTransient:  http.StatusServiceUnavailable,
		coord.KindStructural: http.StatusInternalServerError,
		coord.KindInternal:   http.StatusInternalServerError,
	}
	for kind, want := range tests {
		assert.Equal(t, want, statusFor(kind), string(kind))
	}
}
