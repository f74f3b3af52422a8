package coord

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/dCoord/lib/files"
	"github.com/ValentinKolb/dCoord/lib/integrity"
	"github.com/ValentinKolb/dCoord/lib/lockmgr"
	"github.com/ValentinKolb/dCoord/lib/occ"
	"github.com/ValentinKolb/dCoord/lib/props"
	"github.com/ValentinKolb/dCoord/lib/retry"
	"github.com/ValentinKolb/dCoord/lib/table"
)

var (
	ErrBusy                = errors.New("resource busy")
	ErrNotFound            = errors.New("not found")
	ErrInvalid             = errors.New("invalid request")
	ErrPartialProvisioning = errors.New("partial provisioning")
)

// BusyError reports that a lock could not be acquired in time.
type BusyError struct {
	Key lockmgr.ResourceKey
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("%s is locked by another operation, retry later", e.Key)
}

func (e *BusyError) Is(target error) bool {
	return target == ErrBusy
}

// ProvisioningError reports a failed folder provisioning step.
type ProvisioningError struct {
	ProjectID string
	Step      string
	Err       error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning of project %s failed at %s: %v", e.ProjectID, e.Step, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

func (e *ProvisioningError) Is(target error) bool {
	return target == ErrPartialProvisioning
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Kind classifies errors for API responses.
type Kind string

const (
	KindBusy       Kind = "busy"
	KindConflict   Kind = "conflict"
	KindTransient  Kind = "transient"
	KindStructural Kind = "structural"
	KindIntegrity  Kind = "integrity"
	KindInvalid    Kind = "invalid"
	KindNotFound   Kind = "not_found"
	KindInternal   Kind = "internal"
)

// KindOf maps err to its Kind. It returns "" for nil.
func KindOf(err error) Kind {
	var exhausted *retry.ExhaustedError
	var pe *props.Error

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBusy):
		return KindBusy
	case errors.Is(err, occ.ErrConflict):
		return KindConflict
	case errors.Is(err, table.ErrStructural):
		return KindStructural
	case errors.Is(err, integrity.ErrIntegrity):
		return KindIntegrity
	case errors.Is(err, ErrNotFound), errors.Is(err, files.ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalid), errors.Is(err, lockmgr.ErrInvalidKey), errors.Is(err, files.ErrInvalidName):
		return KindInvalid
	case errors.As(err, &exhausted):
		return KindTransient
	case errors.As(err, &pe) && pe.Code == props.RetCUnavailable:
		return KindTransient
	default:
		return KindInternal
	}
}
