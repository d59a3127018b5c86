package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/hpckit/slurmbench/pkg/manager"
	"github.com/hpckit/slurmbench/pkg/recipe"
)

var (
	deployCount   int
	deployNoWait  bool
	deployTimeout time.Duration
)

var deployCmd = &cobra.Command{
	Use:   "deploy <recipe>",
	Short: "Deploy a recipe onto the cluster",
	Long: `Deploy submits the named recipe to the scheduler and records a new
instance in the state directory.

Service recipes register themselves in the discovery directory and, unless
--no-wait is given, block until the job is placed and its endpoint is known.
Client recipes resolve their target endpoints before submission. Monitor
recipes additionally deploy the recipe's monitoring infrastructure against
the resolved targets.

Examples:
  slurmbench deploy vllm-server
  slurmbench deploy vllm-server --count 3 --no-wait
  slurmbench deploy bench-client --timeout 10m`,
	Args: cobra.ExactArgs(1),
	RunE: runDeploy,
}

func init() {
	rootCmd.AddCommand(deployCmd)
	deployCmd.Flags().IntVar(&deployCount, "count", 1, "Number of replicas to deploy (service recipes only)")
	deployCmd.Flags().BoolVar(&deployNoWait, "no-wait", false, "Do not wait for job placement")
	deployCmd.Flags().DurationVar(&deployTimeout, "timeout", 0, "Endpoint resolution timeout (overrides config)")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	recipeName := args[0]

	app, err := buildApp()
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to initialize", err)
	}

	opts := manager.DeployOptions{
		Count:  deployCount,
		NoWait: deployNoWait,
	}
	if deployTimeout > 0 {
		opts.ResolveTimeout = deployTimeout
	}

	instances, err := app.manager.Deploy(cmd.Context(), recipeName, opts)
	if err != nil {
		switch {
		case errors.Is(err, recipe.ErrNotFound):
			return exitError(foundry.ExitFileNotFound, fmt.Sprintf("Recipe %q not found in %s", recipeName, app.recipes.Dir()), err)
		case errors.Is(err, recipe.ErrValidationFailed):
			return exitError(foundry.ExitInvalidArgument, fmt.Sprintf("Recipe %q is invalid", recipeName), err)
		default:
			return exitError(foundry.ExitExternalServiceUnavailable, fmt.Sprintf("Deploy of %q failed", recipeName), err)
		}
	}

	for _, inst := range instances {
		fmt.Printf("Deployed %s as instance %s (job %s, status %s)\n",
			inst.RecipeName, inst.ID, orDash(inst.JobID), inst.Status)
		for name, endpoint := range inst.Endpoints {
			fmt.Printf("  %s: http://%s\n", name, endpoint)
		}
	}
	if deployNoWait {
		_, _ = fmt.Fprintln(os.Stderr, "Submitted without waiting for placement; run 'slurmbench status' to check progress")
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
