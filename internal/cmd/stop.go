package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/hpckit/slurmbench/pkg/instance"
	"github.com/hpckit/slurmbench/pkg/manager"
)

var stopCmd = &cobra.Command{
	Use:   "stop <instance-id>",
	Short: "Stop a running instance",
	Long: `Stop cancels every live scheduler job owned by the instance, clears
its discovery registration, and marks the instance canceled.

Stopping an already-terminal instance is a no-op. If some jobs cancel and
others fail, the failures are reported and the instance is marked failed.

Examples:
  slurmbench stop 3f2a81c4-1b09-4c5f-9d6a-2e7f8c9a0b1c
  slurmbench stop --all`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStop,
}

var stopAll bool

func init() {
	rootCmd.AddCommand(stopCmd)
	stopCmd.Flags().BoolVar(&stopAll, "all", false, "Stop every non-terminal instance")
}

func runStop(cmd *cobra.Command, args []string) error {
	if !stopAll && len(args) == 0 {
		return exitError(foundry.ExitInvalidArgument, "Missing instance ID", errors.New("provide an instance ID or --all"))
	}

	app, err := buildApp()
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to initialize", err)
	}

	if stopAll {
		stopped, err := app.manager.StopAll(cmd.Context())
		for _, id := range stopped {
			fmt.Printf("Stopped instance %s\n", id)
		}
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Some instances failed to stop", err)
		}
		if len(stopped) == 0 {
			_, _ = fmt.Fprintln(os.Stderr, "No running instances")
		}
		return nil
	}

	id := args[0]
	if inst, err := app.manager.Get(id); err == nil && inst.Status.Terminal() {
		fmt.Printf("Instance %s is already %s\n", id, inst.Status)
		return nil
	}
	if _, err := app.manager.Stop(cmd.Context(), id); err != nil {
		var partial *manager.PartialFailureError
		switch {
		case errors.Is(err, instance.ErrNotFound):
			return exitError(foundry.ExitFileNotFound, fmt.Sprintf("Instance %q not found", id), err)
		case errors.As(err, &partial):
			for _, f := range partial.Failed {
				_, _ = fmt.Fprintf(os.Stderr, "  %s: %v\n", f.Name, f.Err)
			}
			return exitError(foundry.ExitExternalServiceUnavailable, fmt.Sprintf("Instance %s partially stopped", id), err)
		default:
			return exitError(foundry.ExitExternalServiceUnavailable, fmt.Sprintf("Failed to stop instance %s", id), err)
		}
	}
	fmt.Printf("Stopped instance %s\n", id)
	return nil
}
