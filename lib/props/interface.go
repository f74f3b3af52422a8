package props

import (
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IPropertyStore is the generic interface for the shared property store.
type IPropertyStore interface {
	// Get returns the value for a key. The boolean return value indicates whether a value for the key was found.
	Get(key string) (value string, found bool, err error)
	// Set inserts or updates a key–value pair.
	Set(key, value string) (err error)
	// Delete removes a key–value pair. Deleting a missing key is not an error.
	Delete(key string) (err error)
	// ListKeys returns all keys currently present in the store, in no particular order.
	ListKeys() (keys []string, err error)
}

// IConditionalStore is implemented by stores that offer a native conditional write.
type IConditionalStore interface {
	IPropertyStore
	// SetIfUnset stores the value only if the key does not exist.
	// The boolean return value reports whether this call stored the value.
	SetIfUnset(key, value string) (stored bool, err error)
}

// AsConditional returns the conditional view of s, if it has one.
func AsConditional(s IPropertyStore) (IConditionalStore, bool) {
	c, ok := s.(IConditionalStore)
	return c, ok
}

// ListKeysWithPrefix is a helper that filters ListKeys by prefix.
func ListKeysWithPrefix(s IPropertyStore, prefix string) ([]string, error) {
	keys, err := s.ListKeys()
	if err != nil {
		return nil, err
	}
	out := keys[:0]
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Plain wrapper
// --------------------------------------------------------------------------

// Plain hides the conditional extension of s (if any) so only the four basic
// operations are visible to the caller.
func Plain(s IPropertyStore) IPropertyStore {
	return plainStore{inner: s}
}

type plainStore struct {
	inner IPropertyStore
}

func (p plainStore) Get(key string) (string, bool, error) { return p.inner.Get(key) }
func (p plainStore) Set(key, value string) error          { return p.inner.Set(key, value) }
func (p plainStore) Delete(key string) error              { return p.inner.Delete(key) }
func (p plainStore) ListKeys() ([]string, error)          { return p.inner.ListKeys() }

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("PropertyStoreError (code %s): %s", e.Code, e.Msg)
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by the backend.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCUnavailable                         // 4: Backend temporarily unavailable.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCUnavailable:
		return "Unavailable"
	default:
		return "Unknown"
	}
}
