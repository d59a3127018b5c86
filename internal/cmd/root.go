// Package cmd implements the slurmbench command-line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/hpckit/slurmbench/internal/config"
	"github.com/hpckit/slurmbench/internal/observability"
	"github.com/hpckit/slurmbench/pkg/discovery"
	"github.com/hpckit/slurmbench/pkg/instance"
	"github.com/hpckit/slurmbench/pkg/manager"
	"github.com/hpckit/slurmbench/pkg/recipe"
	"github.com/hpckit/slurmbench/pkg/resolve"
	"github.com/hpckit/slurmbench/pkg/slurm"
)

// versionInfo holds build-time version metadata injected from main.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "none",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata for the version command.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildDate)
}

var (
	flagRecipesDir string
	flagLogLevel   string
)

// appCfg is loaded once per invocation in the root PersistentPreRunE.
var appCfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "slurmbench",
	Short: "Deploy and track benchmark workloads on a SLURM cluster",
	Long: `slurmbench deploys recipe-described workloads (long-running services,
benchmark clients, monitoring stacks) onto a SLURM batch scheduler, tracks
their lifecycle across invocations, and resolves the network endpoints
services receive once placed.

Recipes are YAML or JSON files in the recipes directory. Instance state is
persisted under the state directory and survives process restarts.

Examples:
  slurmbench deploy vllm-server
  slurmbench status
  slurmbench stop 3f2a81c4
  slurmbench recipes list`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		appCfg, err = config.Load(cmd.Context())
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
		}
		if flagRecipesDir != "" {
			appCfg.Paths.Recipes = flagRecipesDir
		}
		if flagLogLevel != "" {
			appCfg.Logging.Level = flagLogLevel
		}
		if err := observability.Init(appCfg.Logging.Level, appCfg.Logging.Profile); err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid logging configuration", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagRecipesDir, "recipes", "", "Recipes directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
}

// Execute runs the CLI with signal-aware cancellation.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer observability.Sync()
	return rootCmd.ExecuteContext(ctx)
}

// app bundles the wired components commands operate on.
type app struct {
	cfg       *config.Config
	recipes   *recipe.Store
	registry  *instance.Registry
	discovery *discovery.Store
	gateway   slurm.Gateway
	manager   *manager.Manager
}

// buildApp wires the component graph from the loaded configuration and
// reloads persisted instance state.
func buildApp() (*app, error) {
	logger := observability.CLILogger

	recipes := recipe.NewStore(appCfg.Paths.Recipes)
	store := instance.NewStore(filepath.Join(appCfg.Paths.State, "instances.json"))
	registry := instance.NewRegistry(store, logger)
	if err := registry.Reload(recipes); err != nil {
		return nil, fmt.Errorf("reload instance state: %w", err)
	}

	disc := discovery.NewStore(appCfg.Paths.Discovery)
	gateway := slurm.NewClient(slurm.Defaults{
		Account:   appCfg.Slurm.Account,
		Partition: appCfg.Slurm.Partition,
		QOS:       appCfg.Slurm.QOS,
		TimeLimit: appCfg.Slurm.TimeLimit,
	}, logger)
	resolver := resolve.NewResolver(gateway, disc, appCfg.Resolver.PollInterval, logger)

	mgr, err := manager.New(manager.Params{
		Recipes:        recipes,
		Gateway:        gateway,
		Resolver:       resolver,
		Registry:       registry,
		Discovery:      disc,
		StateDir:       appCfg.Paths.State,
		ResolveTimeout: appCfg.Resolver.ResolveTimeout,
		InfraTimeout:   appCfg.Resolver.InfraTimeout,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:       appCfg,
		recipes:   recipes,
		registry:  registry,
		discovery: disc,
		gateway:   gateway,
		manager:   mgr,
	}, nil
}

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return fmt.Errorf("%s: %w (exit code %d)", message, err, code)
}
