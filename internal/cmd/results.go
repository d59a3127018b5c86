package cmd

import (
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/hpckit/slurmbench/internal/observability"
	"github.com/hpckit/slurmbench/pkg/results"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Manage benchmark result files",
}

var (
	resultsBucket string
	resultsPrefix string
	resultsDryRun bool
)

var resultsSyncCmd = &cobra.Command{
	Use:   "sync [dir]",
	Short: "Upload result files to object storage",
	Long: `Sync uploads the files under the results directory (or the given dir)
to the configured S3-compatible bucket, preserving relative paths under the
key prefix.

Include/exclude patterns, credentials and the endpoint come from the
results section of the configuration. Uploads are rate limited; per-file
failures are collected and reported after the sweep, but credential errors
abort immediately.

Examples:
  slurmbench results sync
  slurmbench results sync ./results --bucket bench-artifacts --dry-run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runResultsSync,
}

func init() {
	rootCmd.AddCommand(resultsCmd)
	resultsCmd.AddCommand(resultsSyncCmd)
	resultsSyncCmd.Flags().StringVar(&resultsBucket, "bucket", "", "Destination bucket (overrides config)")
	resultsSyncCmd.Flags().StringVar(&resultsPrefix, "prefix", "", "Key prefix (overrides config)")
	resultsSyncCmd.Flags().BoolVar(&resultsDryRun, "dry-run", false, "List the files that would upload without uploading")
}

func runResultsSync(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to initialize", err)
	}

	dir := app.cfg.Paths.Results
	if len(args) == 1 {
		dir = args[0]
	}

	rc := app.cfg.Results
	syncCfg := results.Config{
		Bucket:           rc.Bucket,
		Prefix:           rc.Prefix,
		Region:           rc.Region,
		Endpoint:         rc.Endpoint,
		Profile:          rc.Profile,
		AccessKeyID:      rc.AccessKeyID,
		SecretAccessKey:  rc.SecretAccessKey,
		ForcePathStyle:   rc.ForcePathStyle,
		Include:          rc.Include,
		Exclude:          rc.Exclude,
		UploadsPerSecond: rc.UploadsPerSecond,
	}
	if resultsBucket != "" {
		syncCfg.Bucket = resultsBucket
	}
	if resultsPrefix != "" {
		syncCfg.Prefix = resultsPrefix
	}
	if err := syncCfg.Validate(); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid results configuration", err)
	}

	syncer, err := results.New(cmd.Context(), syncCfg, observability.CLILogger)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to create S3 client", err)
	}

	if resultsDryRun {
		files, err := syncer.Plan(dir)
		if err != nil {
			return exitError(foundry.ExitFileReadError, fmt.Sprintf("Failed to scan %s", dir), err)
		}
		if len(files) == 0 {
			_, _ = fmt.Fprintln(os.Stderr, "Nothing to upload")
			return nil
		}
		for _, f := range files {
			fmt.Println(f)
		}
		return nil
	}

	report, err := syncer.Sync(cmd.Context(), dir)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Sync failed", err)
	}
	fmt.Printf("Uploaded %d file(s) to s3://%s/%s", len(report.Uploaded), syncCfg.Bucket, syncCfg.Prefix)
	fmt.Println()
	if report.Skipped > 0 {
		fmt.Printf("Skipped %d file(s) by pattern\n", report.Skipped)
	}
	if len(report.Failed) > 0 {
		for _, f := range report.Failed {
			_, _ = fmt.Fprintf(os.Stderr, "  %s: %v\n", f.Path, f.Err)
		}
		return exitError(foundry.ExitExternalServiceUnavailable,
			fmt.Sprintf("%d file(s) failed to upload", len(report.Failed)), report.Failed[0].Err)
	}
	return nil
}
