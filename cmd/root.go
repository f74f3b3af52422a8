package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dCoord/cmd/lock"
	"github.com/ValentinKolb/dCoord/cmd/project"
	"github.com/ValentinKolb/dCoord/cmd/props"
	"github.com/ValentinKolb/dCoord/cmd/serve"
	"github.com/ValentinKolb/dCoord/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dcoord",
		Short: "cooperative locking for project provisioning",
		Long: fmt.Sprintf(`dCoord (v%s)

Cooperative mutual exclusion and optimistic concurrency for
multi-step project provisioning, backed by a key-value property store.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dCoord",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dCoord v%s\n", Version)
		},
	}
)

func init() {
	// read .env files and DCOORD_ variables before any command runs
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(lock.LockCommands)
	RootCmd.AddCommand(props.PropCommands)
	RootCmd.AddCommand(project.ProjectCommands)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
