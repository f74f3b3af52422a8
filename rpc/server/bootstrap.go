package server

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/dCoord/lib/coord"
	"github.com/ValentinKolb/dCoord/lib/files"
	"github.com/ValentinKolb/dCoord/lib/files/lfiles"
	"github.com/ValentinKolb/dCoord/lib/lockmgr"
	"github.com/ValentinKolb/dCoord/lib/props"
	"github.com/ValentinKolb/dCoord/lib/props/dprops"
	"github.com/ValentinKolb/dCoord/lib/props/lprops"
	"github.com/ValentinKolb/dCoord/lib/props/pgprops"
	"github.com/ValentinKolb/dCoord/lib/table/ltable"
	"github.com/ValentinKolb/dCoord/rpc/common"
	"github.com/lni/dragonboat/v4"
	"github.com/spf13/afero"
)

// Bootstrap builds every component described by config and returns a ready server.
//
// Usage:
//
//	s, err := server.Bootstrap(*config)
//	if err != nil {
//		return err
//	}
//	return s.Serve(context.Background())
func Bootstrap(config common.ServerConfig) (*Server, error) {
	if err := common.InitLoggers(config.LogLevel); err != nil {
		return nil, err
	}
	Logger.Infof("Created dCoord server")
	Logger.Infof(config.String())

	store, closeStore, err := openProps(config)
	if err != nil {
		return nil, err
	}
	closers := []func() error{closeStore}
	fail := func(err error) (*Server, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	// the lock manager uses conditional writes unless explicitly disabled
	var lockStore props.IPropertyStore = store
	if config.PlainWrites {
		lockStore = props.Plain(store)
	}
	opts := lockmgr.DefaultOptions()
	if config.StaleAfter > 0 {
		opts.StaleAfter = config.StaleAfter
	}
	locks := lockmgr.NewLockManager(lockStore, opts)

	tables, err := openTables(config)
	if err != nil {
		return fail(err)
	}
	if err := coord.EnsureSchema(tables); err != nil {
		return fail(err)
	}
	seeded, err := coord.SeedTemplates(tables, coord.DefaultTemplates())
	if err != nil {
		return fail(fmt.Errorf("seed task templates: %w", err))
	}
	if seeded {
		Logger.Infof("seeded default task templates")
	}

	fs, err := openFiles(config)
	if err != nil {
		return fail(err)
	}

	c := coord.New(locks, tables, fs, coord.Config{
		LockTimeout:       config.LockTimeout,
		CoarseFallback:    config.CoarseFallback,
		GlobalLockTimeout: config.GlobalLockTimeout,
	})

	s, err := NewServer(config, c, locks, store, nil)
	if err != nil {
		return fail(err)
	}
	s.closers = closers

	Logger.Infof("dCoord setup completed successfully")
	return s, nil
}

// openProps creates the property store backend. The returned func closes it.
func openProps(config common.ServerConfig) (props.IConditionalStore, func() error, error) {
	noop := func() error { return nil }

	switch config.Backend {
	case common.BackendLocal, "":
		Logger.Infof("using local property store")
		return lprops.NewLocalStore(), noop, nil

	case common.BackendPostgres:
		st, err := pgprops.NewStore(config.PostgresDSN, "")
		if err != nil {
			return nil, nil, err
		}
		Logger.Infof("using postgres property store")
		return st, st.Close, nil

	case common.BackendRaft:
		if _, ok := config.ClusterMembers[config.ReplicaID]; !ok {
			return nil, nil, fmt.Errorf("replica %d is not a cluster member", config.ReplicaID)
		}
		nodeHost, err := dragonboat.NewNodeHost(config.ToNodeHostConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create node host: %w", err)
		}
		if err := nodeHost.StartConcurrentReplica(config.ClusterMembers, false, dprops.CreateStateMachineFactory(), config.ToDragonboatConfig()); err != nil {
			nodeHost.Close()
			return nil, nil, fmt.Errorf("failed to start shard %d: %w", config.ShardID, err)
		}
		Logger.Infof("started raft shard %d as replica %d", config.ShardID, config.ReplicaID)

		timeout := time.Duration(config.TimeoutSecond) * time.Second
		closeFn := func() error {
			nodeHost.Close()
			return nil
		}
		return dprops.NewDistributedStore(nodeHost, config.ShardID, timeout), closeFn, nil

	default:
		return nil, nil, fmt.Errorf("unknown props backend %q", config.Backend)
	}
}

// openTables loads the table snapshot file, or creates a volatile store without one.
func openTables(config common.ServerConfig) (*ltable.Store, error) {
	if config.TablesFile == "" {
		Logger.Warningf("no tables file configured, project data is not persisted")
		return ltable.NewStore(), nil
	}
	return ltable.Open(afero.NewOsFs(), config.TablesFile)
}

// openFiles roots the file store on disk, or in memory without a root directory.
func openFiles(config common.ServerConfig) (files.IStore, error) {
	if config.FilesRoot == "" {
		Logger.Warningf("no files root configured, project folders are kept in memory")
		return lfiles.NewStore(afero.NewMemMapFs(), "/files", config.FilesBaseURL)
	}
	return lfiles.NewStore(afero.NewOsFs(), config.FilesRoot, config.FilesBaseURL)
}
