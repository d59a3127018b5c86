package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hpckit/slurmbench/pkg/instance"
	"github.com/hpckit/slurmbench/pkg/manager"
	"github.com/hpckit/slurmbench/pkg/output"
)

var (
	statusJSON  bool
	statusJSONL bool
)

var statusCmd = &cobra.Command{
	Use:   "status [instance-id]",
	Short: "Show instance status, refreshed from the scheduler",
	Long: `Status queries the scheduler for every tracked instance (or the one
named) and prints the reconciled state.

Jobs the scheduler no longer reports are treated as completed. Query
failures leave the cached state untouched.

Examples:
  slurmbench status
  slurmbench status 3f2a81c4-1b09-4c5f-9d6a-2e7f8c9a0b1c
  slurmbench status --jsonl > run.jsonl`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
	statusCmd.Flags().BoolVar(&statusJSONL, "jsonl", false, "Output as a JSONL record stream")
}

func runStatus(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to initialize", err)
	}

	var snapshots []*manager.Snapshot
	if len(args) == 1 {
		snap, err := app.manager.RefreshStatus(cmd.Context(), args[0])
		if err != nil {
			if errors.Is(err, instance.ErrNotFound) {
				return exitError(foundry.ExitFileNotFound, fmt.Sprintf("Instance %q not found", args[0]), err)
			}
			return exitError(foundry.ExitExternalServiceUnavailable, "Status query failed", err)
		}
		snapshots = []*manager.Snapshot{snap}
	} else {
		snapshots, err = app.manager.RefreshAll(cmd.Context())
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Status query failed", err)
		}
	}

	switch {
	case statusJSONL:
		return writeStatusJSONL(cmd.Context(), snapshots)
	case statusJSON:
		return printJSON(snapshots)
	default:
		printStatusTable(snapshots)
		return nil
	}
}

func printStatusTable(snapshots []*manager.Snapshot) {
	if len(snapshots) == 0 {
		_, _ = fmt.Fprintln(os.Stderr, "No instances")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tRECIPE\tSTATUS\tJOB\tUPTIME\tENDPOINTS")
	for _, s := range snapshots {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(s.ID), s.RecipeName, s.Status, orDash(s.JobID), s.Uptime, formatEndpoints(s.Endpoints))
	}
	_ = w.Flush()
}

// writeStatusJSONL emits one instance record per snapshot plus a final
// summary record, all correlated by a fresh run id.
func writeStatusJSONL(ctx context.Context, snapshots []*manager.Snapshot) error {
	jw := output.NewJSONLWriter(os.Stdout, uuid.NewString(), "slurm")
	defer func() { _ = jw.Close() }()

	byStatus := make(map[string]int)
	for _, s := range snapshots {
		if err := jw.WriteInstance(ctx, instanceRecordOf(s)); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write record", err)
		}
		byStatus[string(s.Status)]++
	}
	if err := jw.WriteSummary(ctx, &output.SummaryRecord{Total: len(snapshots), ByStatus: byStatus}); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write summary", err)
	}
	return nil
}

func instanceRecordOf(s *manager.Snapshot) *output.InstanceRecord {
	rec := &output.InstanceRecord{
		ID:          s.ID,
		RecipeName:  s.RecipeName,
		Status:      string(s.Status),
		JobID:       s.JobID,
		Endpoints:   s.Endpoints,
		CreatedAt:   s.CreatedAt,
		CompletedAt: s.CompletedAt,
		Uptime:      s.Uptime,
		Metadata:    s.Metadata,
	}
	names := make([]string, 0, len(s.Components))
	for name := range s.Components {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := s.Components[name]
		rec.Components = append(rec.Components, output.ComponentRecord{
			Name:     name,
			JobID:    c.JobID,
			Endpoint: c.Endpoint,
			Status:   string(c.Status),
		})
	}
	return rec
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to encode JSON", err)
	}
	return nil
}

func formatEndpoints(endpoints map[string]string) string {
	if len(endpoints) == 0 {
		return "-"
	}
	names := make([]string, 0, len(endpoints))
	for name := range endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	out := ""
	for i, name := range names {
		if i > 0 {
			out += ","
		}
		out += name + "=" + endpoints[name]
	}
	return out
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
