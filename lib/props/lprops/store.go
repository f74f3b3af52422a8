package lprops

import (
	"github.com/ValentinKolb/dCoord/lib/props"
	"github.com/puzpuzpuz/xsync/v3"
)

type storeImpl struct {
	data *xsync.MapOf[string, string]
}

// NewLocalStore creates a new local store instance.
// This store implementation is not distributed and only works on a single node.
func NewLocalStore() props.IConditionalStore {
	return &storeImpl{
		data: xsync.NewMapOf[string, string](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see props/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Get(key string) (string, bool, error) {
	val, ok := s.data.Load(key)
	return val, ok, nil
}

func (s *storeImpl) Set(key, value string) error {
	if key == "" {
		return props.NewError(props.RetCInvalidOperation, "empty key")
	}
	s.data.Store(key, value)
	return nil
}

func (s *storeImpl) SetIfUnset(key, value string) (bool, error) {
	if key == "" {
		return false, props.NewError(props.RetCInvalidOperation, "empty key")
	}
	_, loaded := s.data.LoadOrStore(key, value)
	return !loaded, nil
}

func (s *storeImpl) Delete(key string) error {
	s.data.Delete(key)
	return nil
}

func (s *storeImpl) ListKeys() ([]string, error) {
	keys := make([]string, 0, s.data.Size())
	s.data.Range(func(key string, _ string) bool {
		keys = append(keys, key)
		return true
	})
	return keys, nil
}
