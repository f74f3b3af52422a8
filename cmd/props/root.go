package props

import (
	"fmt"
	"sort"

	"github.com/ValentinKolb/dCoord/cmd/util"
	"github.com/ValentinKolb/dCoord/lib/props"
	"github.com/ValentinKolb/dCoord/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcStore   props.IPropertyStore
	listPrefix string

	// PropCommands represents the props command group
	PropCommands = &cobra.Command{
		Use:               "props",
		Short:             "Perform property store operations",
		Long:              "Read and write the property store of a dCoord server. Lock records live below the prefix 'LOCK_'.",
		PersistentPreRunE: setupPropsClient,
	}

	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Get a value",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet,
	}

	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Set a value",
		Args:  cobra.ExactArgs(2),
		RunE:  runSet,
	}

	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Delete a key",
		Args:  cobra.ExactArgs(1),
		RunE:  runDelete,
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List keys",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
)

// prefixLister is implemented by stores that filter keys on the server
type prefixLister interface {
	ListKeysWithPrefix(prefix string) ([]string, error)
}

func init() {
	PropCommands.AddCommand(getCmd)
	PropCommands.AddCommand(setCmd)
	PropCommands.AddCommand(delCmd)
	PropCommands.AddCommand(listCmd)

	util.SetupClientFlags(PropCommands)

	listCmd.Flags().StringVar(&listPrefix, "prefix", "", "Only list keys with this prefix")
}

// setupPropsClient initializes the property store client
func setupPropsClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	rpcStore, err = client.NewRemoteStore(util.GetClientConfig())
	return err
}

func runGet(_ *cobra.Command, args []string) error {
	value, found, err := rpcStore.Get(args[0])
	if err != nil {
		return fmt.Errorf("failed to get value: %v", err)
	}
	if !found {
		fmt.Println("found=false")
		return nil
	}
	fmt.Printf("found=true, value=%s\n", value)
	return nil
}

func runSet(_ *cobra.Command, args []string) error {
	if err := rpcStore.Set(args[0], args[1]); err != nil {
		return fmt.Errorf("failed to set value: %v", err)
	}
	fmt.Println("ok")
	return nil
}

func runDelete(_ *cobra.Command, args []string) error {
	if err := rpcStore.Delete(args[0]); err != nil {
		return fmt.Errorf("failed to delete key: %v", err)
	}
	fmt.Println("ok")
	return nil
}

func runList(_ *cobra.Command, _ []string) error {
	var keys []string
	var err error
	if pl, ok := rpcStore.(prefixLister); ok {
		keys, err = pl.ListKeysWithPrefix(listPrefix)
	} else {
		keys, err = props.ListKeysWithPrefix(rpcStore, listPrefix)
	}
	if err != nil {
		return fmt.Errorf("failed to list keys: %v", err)
	}

	sort.Strings(keys)
	for _, k := range keys {
		fmt.Println(k)
	}
	return nil
}
