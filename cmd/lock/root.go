package lock

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/dCoord/cmd/util"
	"github.com/ValentinKolb/dCoord/lib/lockmgr"
	"github.com/ValentinKolb/dCoord/rpc/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	rpcLockMgr  lockmgr.ILockManager
	acquireWait time.Duration

	// LockCommands represents the lock command group
	LockCommands = &cobra.Command{
		Use:               "lock",
		Short:             "Perform lock operations",
		Long:              "Inspect and manipulate resource locks. Locks are owned by the caller identity (--caller).",
		PersistentPreRunE: setupLockClient,
	}

	// acquireCmd represents the acquire command
	acquireCmd = &cobra.Command{
		Use:   "acquire [kind] [id]",
		Short: "Acquire a lock",
		Args:  cobra.ExactArgs(2),
		RunE:  runAcquire,
	}

	// releaseCmd represents the release command
	releaseCmd = &cobra.Command{
		Use:   "release [kind] [id]",
		Short: "Release a lock owned by the caller",
		Args:  cobra.ExactArgs(2),
		RunE:  runRelease,
	}

	// statusCmd represents the status command
	statusCmd = &cobra.Command{
		Use:   "status [kind] [id]",
		Short: "Show the holder of a lock",
		Args:  cobra.ExactArgs(2),
		RunE:  runStatus,
	}

	// sweepCmd represents the sweep command
	sweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Remove all expired locks",
		Args:  cobra.NoArgs,
		RunE:  runSweep,
	}
)

func init() {
	// Add subcommands to lock command
	LockCommands.AddCommand(acquireCmd)
	LockCommands.AddCommand(releaseCmd)
	LockCommands.AddCommand(statusCmd)
	LockCommands.AddCommand(sweepCmd)

	// Add common client flags to the lock command
	util.SetupClientFlags(LockCommands)

	// Add flags specific to acquire
	acquireCmd.Flags().DurationVar(&acquireWait, "wait", 0, "How long to wait for a held lock (0 tries once)")
}

// setupLockClient initializes the lock manager client
func setupLockClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	rpcLockMgr, err = client.NewRemoteLockMgr(util.GetClientConfig())
	return err
}

// parseKey builds a resource key from the kind and id arguments
func parseKey(args []string) (lockmgr.ResourceKey, error) {
	kind, err := lockmgr.ParseResourceKind(args[0])
	if err != nil {
		return lockmgr.ResourceKey{}, err
	}
	key := lockmgr.ResourceKey{Kind: kind, ID: args[1]}
	return key, key.Validate()
}

// runAcquire handles the acquire lock command
func runAcquire(_ *cobra.Command, args []string) error {
	key, err := parseKey(args)
	if err != nil {
		return err
	}

	acquired, err := rpcLockMgr.TryAcquire(viper.GetString("caller"), key, acquireWait)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %v", err)
	}

	fmt.Printf("acquired=%v, key=%s\n", acquired, key)
	return nil
}

// runRelease handles the release lock command
func runRelease(_ *cobra.Command, args []string) error {
	key, err := parseKey(args)
	if err != nil {
		return err
	}

	released, err := rpcLockMgr.Release(viper.GetString("caller"), key)
	if err != nil {
		return fmt.Errorf("failed to release lock: %v", err)
	}

	fmt.Printf("released=%v\n", released)
	return nil
}

// runStatus prints the lock record of a resource
func runStatus(_ *cobra.Command, args []string) error {
	key, err := parseKey(args)
	if err != nil {
		return err
	}

	rec, found, err := rpcLockMgr.Inspect(key)
	if err != nil {
		return fmt.Errorf("failed to inspect lock: %v", err)
	}
	if !found {
		fmt.Printf("locked=false, key=%s\n", key)
		return nil
	}

	fmt.Printf("locked=true, key=%s, owner=%s, acquiredAt=%s, age=%s\n",
		key, rec.Owner, rec.AcquiredAt().Format(time.RFC3339), rec.Age(time.Now()).Round(time.Millisecond))
	return nil
}

// runSweep removes expired locks on the server
func runSweep(_ *cobra.Command, _ []string) error {
	removed, err := rpcLockMgr.CleanExpiredLocks()
	if err != nil {
		return fmt.Errorf("failed to sweep locks: %v", err)
	}
	fmt.Printf("removed=%d\n", removed)
	return nil
}
