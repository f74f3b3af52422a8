// Package server implements the HTTP API of dCoord. It exposes the project
// coordinator, the granular lock manager and the property store that holds the
// lock records, and runs a janitor that sweeps expired locks.
//
// The package focuses on:
//   - Routing requests to coord.Coordinator, lockmgr.ILockManager and props.IPropertyStore
//   - Validating request bodies against embedded JSON schemas
//   - Mapping error kinds to HTTP status codes inside a common.Response envelope
//   - Building the property store backend (local, raft or postgres) from a ServerConfig
//
// Routes:
//
//	POST   /projects                         create a project
//	GET    /projects                         list projects
//	GET    /projects/{id}                    project with tasks and assignments
//	PUT    /projects/{id}                    update (optimistic check on knownLastModified)
//	DELETE /projects/{id}?lastModified=      delete
//	POST   /projects/{id}/tasks/regenerate   rebuild the task list from the templates
//	POST   /projects/{id}/folder             retry a failed folder provisioning
//	GET    /integrity                        orphaned rows
//	POST   /locks/{kind}/{id}/acquire        ?timeoutMs= (default: configured lock timeout)
//	POST   /locks/{kind}/{id}/release
//	GET    /locks/{kind}/{id}
//	POST   /locks/sweep
//	GET    /props, GET|PUT|DELETE /props/{key}
//	GET    /health, /status, /metrics
//
// The caller identity is taken from the X-Caller-Identity header and defaults
// to "anonymous". Locks are owned by that identity, so acquire and release
// reject requests without the header.
//
// Status codes: 200 success, 409 busy or conflict, 422 invalid or integrity,
// 404 not found, 503 transient store failure, 500 otherwise.
//
// Usage Example:
//
//	s, err := server.Bootstrap(common.ServerConfig{
//	  Backend:         common.BackendLocal,
//	  Endpoint:        "0.0.0.0:8080",
//	  TablesFile:      "data/tables.json",
//	  FilesRoot:       "data/files",
//	  LockTimeout:     10 * time.Second,
//	  JanitorInterval: time.Minute,
//	  LogLevel:        "info",
//	})
//	if err != nil {
//	  log.Fatalf("setup error: %v", err)
//	}
//	if err := s.Serve(context.Background()); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
package server
