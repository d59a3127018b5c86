package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/hpckit/slurmbench/pkg/instance"
)

var (
	listStatus string
	listJSON   bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked instances from cached state",
	Long: `List prints every tracked instance from the persisted state file
without querying the scheduler. Use 'slurmbench status' for reconciled
state.

Examples:
  slurmbench list
  slurmbench list --status running
  slurmbench list --json`,
	RunE: runList,
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove terminal instances from the state file",
	Long: `Prune deletes completed, failed and canceled instances from the
state file. Live instances are never touched.`,
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(pruneCmd)
	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (submitted, starting, running, completed, failed, canceled)")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")
}

func runList(cmd *cobra.Command, _ []string) error {
	app, err := buildApp()
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to initialize", err)
	}

	instances := app.manager.List(instance.Status(listStatus))

	if listJSON {
		return printJSON(instances)
	}
	if len(instances) == 0 {
		_, _ = fmt.Fprintln(os.Stderr, "No instances")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tRECIPE\tSTATUS\tJOB\tCREATED")
	for _, inst := range instances {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			inst.ShortID(), inst.RecipeName, inst.Status, orDash(inst.JobID),
			inst.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func runPrune(cmd *cobra.Command, _ []string) error {
	app, err := buildApp()
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to initialize", err)
	}

	pruned, err := app.manager.Prune()
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to prune state", err)
	}
	if len(pruned) == 0 {
		_, _ = fmt.Fprintln(os.Stderr, "Nothing to prune")
		return nil
	}
	for _, id := range pruned {
		fmt.Printf("Pruned instance %s\n", id)
	}
	return nil
}
