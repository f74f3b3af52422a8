package client

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/ValentinKolb/dCoord/lib/coord"
	"github.com/ValentinKolb/dCoord/lib/props"
	"github.com/ValentinKolb/dCoord/rpc/common"
)

// NewRemoteStore creates a props.IPropertyStore backed by the property endpoints of a dCoord server.
func NewRemoteStore(config common.ClientConfig) (props.IPropertyStore, error) {
	a, err := newHTTPAdapter(config)
	if err != nil {
		return nil, err
	}
	return &remoteStore{a}, nil
}

type remoteStore struct {
	*httpAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the props package in interface.go)
// --------------------------------------------------------------------------

func (s *remoteStore) Get(key string) (string, bool, error) {
	var out common.PropPayload
	err := s.invoke(http.MethodGet, "/props/"+escape(key), nil, nil, &out)
	if errors.Is(err, coord.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return out.Value, true, nil
}

func (s *remoteStore) Set(key, value string) error {
	return s.invoke(http.MethodPut, "/props/"+escape(key), nil, common.PropSetRequest{Value: value}, nil)
}

func (s *remoteStore) Delete(key string) error {
	return s.invoke(http.MethodDelete, "/props/"+escape(key), nil, nil, nil)
}

func (s *remoteStore) ListKeys() ([]string, error) {
	return s.ListKeysWithPrefix("")
}

// ListKeysWithPrefix filters on the server.
func (s *remoteStore) ListKeysWithPrefix(prefix string) ([]string, error) {
	var q url.Values
	if prefix != "" {
		q = url.Values{"prefix": {prefix}}
	}
	var out common.PropKeysPayload
	if err := s.invoke(http.MethodGet, "/props", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Keys, nil
}
