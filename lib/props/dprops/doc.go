// Package dprops implements a distributed property store on top of the
// Dragonboat RAFT library. Every write is proposed to the raft log and
// applied by a replicated state machine, so all replicas observe the same
// sequence of Set, SetIfUnset and Delete operations.
//
// Because SetIfUnset is applied inside the state machine, it is a true
// linearizable compare-and-set across the whole cluster. The lock manager
// picks it up automatically through props.IConditionalStore.
//
// Reads use SyncRead (linearizable) for Get and StaleRead for ListKeys, which
// is only used by the periodic lock sweep.
//
// Usage Example:
//
//	nh, _ := dragonboat.NewNodeHost(conf.ToNodeHostConfig())
//	_ = nh.StartConcurrentReplica(members, false, dprops.CreateStateMachineFactory(), conf.ToDragonboatConfig(shardID))
//	store := dprops.NewDistributedStore(nh, shardID, 5*time.Second)
package dprops
