package project

import (
	"fmt"

	"github.com/ValentinKolb/dCoord/cmd/util"
	"github.com/ValentinKolb/dCoord/lib/coord"
	"github.com/ValentinKolb/dCoord/rpc/common"
	"github.com/spf13/cobra"
)

var (
	createReq         coord.CreateProjectRequest
	createAssignments []string

	updateName, updateClient, updateType, updateStart, updateStatus string
	updateActive                                                    bool
	updateAssignments                                               []string
	updateKnown                                                     string

	deleteKnown string

	createCmd = &cobra.Command{
		Use:   "create",
		Short: "Create a project with its tasks, assignments and folder",
		Args:  cobra.NoArgs,
		RunE:  runCreate,
	}

	getCmd = &cobra.Command{
		Use:   "get [id]",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return printResult(rpcClient.GetProject(args[0]))
		},
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List all projects",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			projects, err := rpcClient.ListProjects()
			if err != nil {
				return err
			}
			for _, p := range projects {
				fmt.Printf("%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Status, p.LastModified.Format("2006-01-02T15:04:05.000Z07:00"))
			}
			return nil
		},
	}

	updateCmd = &cobra.Command{
		Use:   "update [id]",
		Short: "Update a project (only the given flags are changed)",
		Long:  "Update a project. The --known flag carries the lastModified value the edit is based on; the update is rejected if the project changed since.",
		Args:  cobra.ExactArgs(1),
		RunE:  runUpdate,
	}

	deleteCmd = &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a project and everything that belongs to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return printResult(rpcClient.DeleteProject(args[0], deleteKnown))
		},
	}

	regenerateCmd = &cobra.Command{
		Use:   "regenerate [id]",
		Short: "Add missing tasks from the templates of the project type",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return printResult(rpcClient.RegenerateTasks(args[0]))
		},
	}

	provisionCmd = &cobra.Command{
		Use:   "provision [id]",
		Short: "Retry the folder provisioning of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return printResult(rpcClient.RetryProvisioning(args[0]))
		},
	}

	auditCmd = &cobra.Command{
		Use:   "audit",
		Short: "List rows that reference a missing parent",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			res, err := rpcClient.Integrity()
			if err != nil {
				return err
			}
			return util.PrintJSON(res)
		},
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show server status and operation timings",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			res, err := rpcClient.Status()
			if err != nil {
				return err
			}
			return util.PrintJSON(res)
		},
	}
)

func init() {
	createCmd.Flags().StringVar(&createReq.Name, "name", "", "Project name")
	createCmd.Flags().StringVar(&createReq.Client, "client", "", "Client the project is run for")
	createCmd.Flags().StringVar(&createReq.Type, "type", "", "Project type, selects the task templates")
	createCmd.Flags().StringVar(&createReq.StartDate, "start", "", "Start date (YYYY-MM-DD)")
	createCmd.Flags().StringVar(&createReq.Status, "status", "", "Initial status")
	createCmd.Flags().StringArrayVar(&createAssignments, "assign", nil, "Assignment as name:role (repeatable)")
	_ = createCmd.MarkFlagRequired("name")
	_ = createCmd.MarkFlagRequired("type")
	_ = createCmd.MarkFlagRequired("start")

	updateCmd.Flags().StringVar(&updateName, "name", "", "New name")
	updateCmd.Flags().StringVar(&updateClient, "client", "", "New client")
	updateCmd.Flags().StringVar(&updateType, "type", "", "New project type")
	updateCmd.Flags().StringVar(&updateStart, "start", "", "New start date (YYYY-MM-DD)")
	updateCmd.Flags().StringVar(&updateStatus, "status", "", "New status")
	updateCmd.Flags().BoolVar(&updateActive, "active", true, "Whether the project is active")
	updateCmd.Flags().StringArrayVar(&updateAssignments, "assign", nil, "Replace the assignments, name:role (repeatable)")
	updateCmd.Flags().StringVar(&updateKnown, "known", "", "lastModified value the edit is based on")

	deleteCmd.Flags().StringVar(&deleteKnown, "known", "", "lastModified value the delete is based on (empty skips the check)")
}

func runCreate(_ *cobra.Command, _ []string) error {
	assignments, err := parseAssignments(createAssignments)
	if err != nil {
		return err
	}
	req := createReq
	req.Assignments = assignments
	return printResult(rpcClient.CreateProject(req))
}

func runUpdate(cmd *cobra.Command, args []string) error {
	req := coord.UpdateProjectRequest{ID: args[0]}

	// only send what was set on the command line
	flags := cmd.Flags()
	if flags.Changed("name") {
		req.Name = &updateName
	}
	if flags.Changed("client") {
		req.Client = &updateClient
	}
	if flags.Changed("type") {
		req.Type = &updateType
	}
	if flags.Changed("start") {
		req.StartDate = &updateStart
	}
	if flags.Changed("status") {
		req.Status = &updateStatus
	}
	if flags.Changed("active") {
		req.Active = &updateActive
	}
	if flags.Changed("assign") {
		assignments, err := parseAssignments(updateAssignments)
		if err != nil {
			return err
		}
		req.Assignments = assignments
	}
	if updateKnown != "" {
		req.KnownLastModified = updateKnown
	}

	return printResult(rpcClient.UpdateProject(req))
}

// printResult prints a project payload as JSON
func printResult(res common.ProjectPayload, err error) error {
	if err != nil {
		return err
	}
	if res.Partial != nil {
		fmt.Printf("warning: provisioning stopped at %s: %s\n", res.Partial.Step, res.Partial.Message)
	}
	return util.PrintJSON(res)
}
