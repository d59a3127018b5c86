package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/hpckit/slurmbench/pkg/instance"
)

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Inspect the service discovery registry",
	Long: `The discovery registry maps service names to the node and ports their
backing job received from the scheduler. Services publish a record at deploy
time; clients resolving a service target read it.`,
}

var discoveryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered services",
	RunE:  runDiscoveryList,
}

var discoveryShowCmd = &cobra.Command{
	Use:   "show <service>",
	Short: "Show one service record",
	Args:  cobra.ExactArgs(1),
	RunE:  runDiscoveryShow,
}

var discoveryClearCmd = &cobra.Command{
	Use:   "clear <service>",
	Short: "Remove a service record",
	Long: `Clear removes a service record from the registry. Clearing an absent
record is a no-op. The backing job, if any, keeps running.`,
	Args: cobra.ExactArgs(1),
	RunE: runDiscoveryClear,
}

var discoveryUpdateCmd = &cobra.Command{
	Use:   "update <service>",
	Short: "Refresh a service record from the scheduler",
	Long: `Update re-queries the scheduler for the record's job and rewrites the
record's node assignment. Useful after a job was requeued onto a different
node.

Examples:
  slurmbench discovery update vllm`,
	Args: cobra.ExactArgs(1),
	RunE: runDiscoveryUpdate,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.AddCommand(discoveryListCmd)
	discoveryCmd.AddCommand(discoveryShowCmd)
	discoveryCmd.AddCommand(discoveryClearCmd)
	discoveryCmd.AddCommand(discoveryUpdateCmd)
}

func runDiscoveryList(cmd *cobra.Command, _ []string) error {
	app, err := buildApp()
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to initialize", err)
	}

	services, err := app.discovery.List()
	if err != nil {
		return exitError(foundry.ExitFileReadError, fmt.Sprintf("Failed to read discovery directory %s", app.discovery.RootDir()), err)
	}
	if len(services) == 0 {
		_, _ = fmt.Fprintln(os.Stderr, "No registered services")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SERVICE\tJOB\tNODE\tENDPOINT\tUPDATED")
	for _, service := range services {
		rec, err := app.discovery.Read(service)
		if err != nil || rec == nil {
			continue
		}
		endpoint := "-"
		if ep, ok := rec.Endpoint(); ok {
			endpoint = ep
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			rec.Service, orDash(rec.JobID), orDash(rec.Node), endpoint,
			rec.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func runDiscoveryShow(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to initialize", err)
	}

	rec, err := app.discovery.Read(args[0])
	if err != nil {
		return exitError(foundry.ExitFileReadError, fmt.Sprintf("Failed to read record for %q", args[0]), err)
	}
	if rec == nil {
		return exitError(foundry.ExitFileNotFound, fmt.Sprintf("Service %q is not registered", args[0]), errors.New("record not found"))
	}
	return printJSON(rec)
}

func runDiscoveryClear(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to initialize", err)
	}

	if err := app.discovery.Clear(args[0]); err != nil {
		return exitError(foundry.ExitFileWriteError, fmt.Sprintf("Failed to clear record for %q", args[0]), err)
	}
	fmt.Printf("Cleared %s\n", args[0])
	return nil
}

func runDiscoveryUpdate(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to initialize", err)
	}

	rec, err := app.discovery.Read(args[0])
	if err != nil {
		return exitError(foundry.ExitFileReadError, fmt.Sprintf("Failed to read record for %q", args[0]), err)
	}
	if rec == nil {
		return exitError(foundry.ExitFileNotFound, fmt.Sprintf("Service %q is not registered", args[0]), errors.New("record not found"))
	}
	if rec.JobID == "" {
		return exitError(foundry.ExitInvalidArgument, fmt.Sprintf("Record for %q has no job to query", args[0]), errors.New("job id missing"))
	}

	status, err := app.gateway.QueryStatus(cmd.Context(), rec.JobID)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, fmt.Sprintf("Failed to query job %s", rec.JobID), err)
	}
	if status.State.Terminal() {
		return exitError(foundry.ExitExternalServiceUnavailable,
			fmt.Sprintf("Job %s is %s; clear the record instead", rec.JobID, status.State),
			errors.New("backing job is terminal"))
	}
	if status.State != instance.StatusRunning || status.Node == "" {
		_, _ = fmt.Fprintf(os.Stderr, "Job %s is %s and not yet placed; record unchanged\n", rec.JobID, status.State)
		return nil
	}

	rec.Node = status.Node
	if err := app.discovery.Write(rec); err != nil {
		return exitError(foundry.ExitFileWriteError, fmt.Sprintf("Failed to write record for %q", args[0]), err)
	}
	fmt.Printf("Updated %s: node %s\n", rec.Service, rec.Node)
	return nil
}
