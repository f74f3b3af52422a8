package dprops

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/dCoord/lib/props"
	"github.com/ValentinKolb/dCoord/lib/props/dprops/internal"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/logger"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

var (
	retries = 5
	log     = logger.GetLogger("props")
)

// storeImpl encapsulates a Dragonboat NodeHost which is used to communicate with the state machine.
type storeImpl struct {
	nh      *dragonboat.NodeHost
	shardID uint64
	cs      *client.Session
	timeout time.Duration
}

// NewDistributedStore creates a new distributed property store which uses raft consensus to ensure strict linearizability
// across multiple nodes.
func NewDistributedStore(nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration) props.IConditionalStore {
	return &storeImpl{
		nh:      nh,
		shardID: shardID,
		cs:      nh.GetNoOPSession(shardID),
		timeout: timeout,
	}
}

// --------------------------------------------------------------------------
// Internal write and read operations (used by interface methods)
// --------------------------------------------------------------------------

// write proposes a command and waits for it to be applied.
// ErrSystemBusy is retried a fixed number of times, all other errors are returned.
func (s *storeImpl) write(cmd internal.Command) (sm.Result, error) {
	for i := 0; i < retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		res, err := s.nh.SyncPropose(ctx, s.cs, cmd.Serialize())
		cancel()

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}
		if err != nil {
			return sm.Result{}, props.NewError(props.RetCUnavailable, err.Error())
		}
		if res.Value != uint64(props.RetCSuccess) {
			return sm.Result{}, props.NewError(props.RetCode(res.Value), string(res.Data))
		}
		return res, nil
	}
	return sm.Result{}, props.NewError(props.RetCUnavailable, "timeout")
}

// read queries the state machine and converts the response into R.
// If linearizability is not required, stale can be set to use the faster StaleRead.
func read[R any](s *storeImpl, q internal.Query, stale bool) (R, error) {
	var zero R
	for i := 0; i < retries; i++ {
		var res interface{}
		var err error

		if stale {
			res, err = s.nh.StaleRead(s.shardID, q)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			res, err = s.nh.SyncRead(ctx, s.shardID, q)
			cancel()
		}

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}
		if err != nil {
			var pe *props.Error
			if errors.As(err, &pe) {
				return zero, pe
			}
			return zero, props.NewError(props.RetCUnavailable, err.Error())
		}

		casted, ok := res.(R)
		if !ok {
			return zero, props.NewError(props.RetCInternalError,
				fmt.Sprintf("unexpected type: received %T, expected %T", res, zero))
		}
		return casted, nil
	}
	return zero, props.NewError(props.RetCUnavailable, "timeout")
}

// --------------------------------------------------------------------------
// Interface Methods (docs see props/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Get(key string) (string, bool, error) {
	res, err := read[internal.QueryResult](s, internal.Query{Type: internal.QueryTGet, Key: key}, false)
	if err != nil {
		return "", false, err
	}
	return res.Value, res.Ok, nil
}

func (s *storeImpl) Set(key, value string) error {
	_, err := s.write(internal.Command{Type: internal.CommandTSet, Key: key, Value: value})
	return err
}

func (s *storeImpl) SetIfUnset(key, value string) (bool, error) {
	res, err := s.write(internal.Command{Type: internal.CommandTSetIfUnset, Key: key, Value: value})
	if err != nil {
		return false, err
	}
	return len(res.Data) == 1 && res.Data[0] == 1, nil
}

func (s *storeImpl) Delete(key string) error {
	_, err := s.write(internal.Command{Type: internal.CommandTDelete, Key: key})
	return err
}

func (s *storeImpl) ListKeys() ([]string, error) {
	return read[[]string](s, internal.Query{Type: internal.QueryTListKeys}, true)
}
