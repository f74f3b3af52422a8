// Package client implements HTTP clients for the dCoord server.
//
// Key Components:
//
//   - Client: typed access to the project endpoints (create, get, list, update,
//     delete, regenerate tasks, retry provisioning) plus /integrity and /status.
//
//   - NewRemoteLockMgr: a lockmgr.ILockManager whose operations run on the
//     server. The owner of TryAcquire and Release is sent as X-Caller-Identity,
//     and a busy answer is reported as (false, nil) like a local timeout.
//
//   - NewRemoteStore: a props.IPropertyStore over the property admin endpoints.
//     It has no conditional write, so a lock manager on top of it runs in plain
//     mode.
//
// All clients share the same transport: endpoints are used round-robin, and
// unreachable servers as well as 503 (transient) answers are retried with
// exponential backoff up to ClientConfig.RetryCount attempts. Failed envelopes
// are returned as *common.RemoteError, which matches coord.ErrBusy,
// coord.ErrNotFound and coord.ErrInvalid with errors.Is.
//
// Usage Example:
//
//	c, err := client.NewClient(common.ClientConfig{
//	  Endpoints:     []string{"http://localhost:8080"},
//	  TimeoutSecond: 5,
//	  RetryCount:    3,
//	  Caller:        "alice",
//	})
//	if err != nil {
//	  log.Fatal(err)
//	}
//	res, err := c.CreateProject(coord.CreateProjectRequest{Name: "Alpha", Type: "standard", StartDate: "2024-07-01"})
package client
