package common

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ValentinKolb/dCoord/lib/coord"
	"github.com/ValentinKolb/dCoord/lib/integrity"
	"github.com/ValentinKolb/dCoord/lib/lockmgr"
)

// --------------------------------------------------------------------------
// Envelope
// --------------------------------------------------------------------------

// Response is the envelope of every HTTP response.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *ErrorBody      `json:"error,omitempty"`
}

// ErrorBody describes a failed request. Kind is one of the coord.Kind values.
type ErrorBody struct {
	Kind    coord.Kind `json:"kind"`
	Message string     `json:"message"`
}

// RemoteError is returned by clients for a response with success=false.
type RemoteError struct {
	Kind    coord.Kind
	Message string
	Status  int
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches the sentinel errors of the coord package so callers can use
// errors.Is(err, coord.ErrBusy) on remote results.
func (e *RemoteError) Is(target error) bool {
	switch e.Kind {
	case coord.KindBusy:
		return target == coord.ErrBusy
	case coord.KindNotFound:
		return target == coord.ErrNotFound
	case coord.KindInvalid:
		return target == coord.ErrInvalid
	}
	return false
}

// NewSuccessResponse wraps data into a successful envelope.
func NewSuccessResponse(data any) (Response, error) {
	if data == nil {
		return Response{Success: true}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Response{}, err
	}
	return Response{Success: true, Data: raw}, nil
}

// NewErrorResponse creates a failed envelope for err.
func NewErrorResponse(err error) Response {
	kind := coord.KindOf(err)
	if kind == "" {
		kind = coord.KindInternal
	}
	return Response{Error: &ErrorBody{Kind: kind, Message: err.Error()}}
}

// Decode unmarshals the data of a successful response into v.
func (r Response) Decode(v any) error {
	if !r.Success {
		if r.Error == nil {
			return &RemoteError{Kind: coord.KindInternal, Message: "unsuccessful response without error"}
		}
		return &RemoteError{Kind: r.Error.Kind, Message: r.Error.Message}
	}
	if v == nil || len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// --------------------------------------------------------------------------
// Payloads
// --------------------------------------------------------------------------

// ProjectPayload is the data of every project endpoint.
type ProjectPayload struct {
	Outcome          coord.Outcome      `json:"outcome"`
	Project          *coord.Project     `json:"project,omitempty"`
	Tasks            []coord.Task       `json:"tasks"`
	Assignments      []coord.Assignment `json:"assignments"`
	NeedsRemediation bool               `json:"needsRemediation"`
	Partial          *PartialPayload    `json:"partial,omitempty"`
}

// PartialPayload reports a side effect that failed although the operation committed.
type PartialPayload struct {
	Step    string `json:"step"`
	Message string `json:"message"`
}

// NewProjectPayload converts a committed coordinator result.
func NewProjectPayload(res coord.Result) ProjectPayload {
	out := ProjectPayload{
		Outcome:     res.Outcome,
		Project:     res.Project,
		Tasks:       res.Tasks,
		Assignments: res.Assignments,
	}
	if out.Tasks == nil {
		out.Tasks = []coord.Task{}
	}
	if out.Assignments == nil {
		out.Assignments = []coord.Assignment{}
	}
	if res.Project != nil {
		out.NeedsRemediation = coord.NeedsRemediation(*res.Project)
	}
	if res.Partial != nil {
		msg := ""
		if res.Partial.Err != nil {
			msg = res.Partial.Err.Error()
		}
		out.Partial = &PartialPayload{Step: res.Partial.Step, Message: msg}
	}
	return out
}

type ProjectListPayload struct {
	Projects []coord.Project `json:"projects"`
}

// LockPayload describes the state of one lock.
type LockPayload struct {
	Kind       lockmgr.ResourceKind `json:"kind"`
	ID         string               `json:"id"`
	Locked     bool                 `json:"locked"`
	Owner      string               `json:"owner,omitempty"`
	AcquiredAt *time.Time           `json:"acquiredAt,omitempty"`
	AgeMs      int64                `json:"ageMs,omitempty"`
}

// NewLockPayload converts the result of ILockManager.Inspect.
func NewLockPayload(key lockmgr.ResourceKey, rec lockmgr.LockRecord, locked bool, now time.Time) LockPayload {
	out := LockPayload{Kind: key.Kind, ID: key.ID, Locked: locked}
	if locked {
		at := rec.AcquiredAt()
		out.Owner = rec.Owner
		out.AcquiredAt = &at
		out.AgeMs = rec.Age(now).Milliseconds()
	}
	return out
}

type AcquirePayload struct {
	Acquired bool   `json:"acquired"`
	Key      string `json:"key"`
}

type ReleasePayload struct {
	Released bool `json:"released"`
}

type SweepPayload struct {
	Removed int `json:"removed"`
}

type PropPayload struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type PropKeysPayload struct {
	Keys []string `json:"keys"`
}

// StatusPayload is returned by GET /status.
type StatusPayload struct {
	Backend    PropsBackend                `json:"backend"`
	Uptime     string                      `json:"uptime"`
	Operations map[string]coord.TimerStats `json:"operations"`
}

// ViolationPayload is one orphaned row found by the integrity audit.
type ViolationPayload struct {
	Relation string `json:"relation"`
	Value    string `json:"value"`
	Row      int    `json:"row"`
}

type IntegrityPayload struct {
	Violations []ViolationPayload `json:"violations"`
}

// NewIntegrityPayload converts audit results.
func NewIntegrityPayload(vs []integrity.Violation) IntegrityPayload {
	out := IntegrityPayload{Violations: make([]ViolationPayload, 0, len(vs))}
	for _, v := range vs {
		out.Violations = append(out.Violations, ViolationPayload{
			Relation: v.Relation.String(),
			Value:    v.Value,
			Row:      v.Row,
		})
	}
	return out
}

// --------------------------------------------------------------------------
// Request bodies
// --------------------------------------------------------------------------

// PropSetRequest is the body of PUT /props/{key}.
type PropSetRequest struct {
	Value string `json:"value"`
}
