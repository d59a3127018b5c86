package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/hpckit/slurmbench/internal/observability"
	"github.com/hpckit/slurmbench/internal/server"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the read-only HTTP status API",
	Long: `Serve starts an HTTP server exposing tracked instances, recipes and
discovery records under /api/v1. The API is read-only; deploy and stop stay
CLI operations.

The server runs until interrupted, then shuts down gracefully.

Examples:
  slurmbench serve
  slurmbench serve --port 9000`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	app, err := buildApp()
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to initialize", err)
	}

	cfg := app.cfg.Server
	if serveHost != "" {
		cfg.Host = serveHost
	}
	if servePort != 0 {
		cfg.Port = servePort
	}

	srv := server.New(cfg, versionInfo.Version, app.manager, app.discovery, observability.ServerLogger)
	if err := srv.Start(cmd.Context()); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", err)
	}
	return nil
}
