package dprops

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/dCoord/lib/props"
	"github.com/ValentinKolb/dCoord/lib/props/dprops/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// PropsStateMachine is a state machine implementation for Dragonboat RAFT
type PropsStateMachine struct {
	replicaID uint64
	shardID   uint64
	data      *xsync.MapOf[string, string]
}

// CreateStateMachineFactory returns a function that can be used by dragonboat to create a new state machine for a node host
func CreateStateMachineFactory() func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		return newStateMachine(shardID, replicaID)
	}
}

func newStateMachine(shardID, replicaID uint64) *PropsStateMachine {
	return &PropsStateMachine{
		replicaID: replicaID,
		shardID:   shardID,
		data:      xsync.NewMapOf[string, string](),
	}
}

// Lookup handles read-only queries.
func (fsm *PropsStateMachine) Lookup(itf interface{}) (interface{}, error) {
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, props.NewError(props.RetCInternalError, fmt.Sprintf("invalid Query type: %T", itf))
	}

	switch q.Type {
	case internal.QueryTGet:
		val, ok := fsm.data.Load(q.Key)
		return internal.QueryResult{
			Value: val,
			Ok:    ok,
		}, nil
	case internal.QueryTListKeys:
		keys := make([]string, 0, fsm.data.Size())
		fsm.data.Range(func(key string, _ string) bool {
			keys = append(keys, key)
			return true
		})
		return keys, nil
	default:
		return nil, props.NewError(props.RetCInvalidOperation, fmt.Sprintf("unknown Query operation: %d", q.Type))
	}
}

// Update handles write commands.
// All write operations are serialized into []byte and are accessible via the entries struct
func (fsm *PropsStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {
	if len(entries) == 0 {
		return entries, nil
	}

	start := time.Now()

	for idx, e := range entries {
		if len(e.Cmd) == 0 {
			entries[idx].Result = sm.Result{Value: uint64(props.RetCInvalidOperation), Data: []byte("empty command ignored")}
			continue
		}

		cmd := internal.Command{}
		if err := cmd.Deserialize(e.Cmd); err != nil {
			entries[idx].Result = sm.Result{Value: uint64(props.RetCInternalError), Data: []byte(fmt.Sprintf("failed to deserialize command: %v", err))}
			continue
		}

		switch cmd.Type {
		case internal.CommandTSet:
			fsm.data.Store(cmd.Key, cmd.Value)
			entries[idx].Result = sm.Result{Value: uint64(props.RetCSuccess)}
		case internal.CommandTSetIfUnset:
			_, loaded := fsm.data.LoadOrStore(cmd.Key, cmd.Value)
			stored := byte(0)
			if !loaded {
				stored = 1
			}
			entries[idx].Result = sm.Result{Value: uint64(props.RetCSuccess), Data: []byte{stored}}
		case internal.CommandTDelete:
			fsm.data.Delete(cmd.Key)
			entries[idx].Result = sm.Result{Value: uint64(props.RetCSuccess)}
		default:
			entries[idx].Result = sm.Result{
				Value: uint64(props.RetCInvalidOperation),
				Data:  []byte(fmt.Sprintf("unknown Command operation: %s", cmd.Type)),
			}
		}
	}

	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("State machine took long to update. Batch updated %d entries, took %.2fms", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

// PrepareSnapshot is not used, the snapshot is taken fuzzily from the concurrent map
func (fsm *PropsStateMachine) PrepareSnapshot() (interface{}, error) {
	return nil, nil
}

// SaveSnapshot writes all entries as a JSON object
func (fsm *PropsStateMachine) SaveSnapshot(_ interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	snapshot := make(map[string]string, fsm.data.Size())
	fsm.data.Range(func(key string, value string) bool {
		snapshot[key] = value
		return true
	})
	return json.NewEncoder(writer).Encode(snapshot)
}

// RecoverFromSnapshot replaces the state with the snapshot content
func (fsm *PropsStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	snapshot := map[string]string{}
	if err := json.NewDecoder(r).Decode(&snapshot); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	fsm.data.Clear()
	for k, v := range snapshot {
		fsm.data.Store(k, v)
	}
	return nil
}

// Close performs any necessary cleanup.
func (fsm *PropsStateMachine) Close() error {
	return nil
}
