package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	ctx := context.Background()

	// Run from an empty directory so a developer's local slurmbench.yaml
	// cannot leak into the assertions.
	t.Chdir(t.TempDir())

	t.Run("LoadDefaults", func(t *testing.T) {
		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "./recipes", cfg.Paths.Recipes)
		assert.NotEmpty(t, cfg.Paths.State)
		assert.NotEmpty(t, cfg.Paths.Discovery)

		assert.Equal(t, "01:00:00", cfg.Slurm.TimeLimit)
		assert.Empty(t, cfg.Slurm.Account)

		assert.Equal(t, 2.0, cfg.Resolver.PollInterval)
		assert.Equal(t, 5*time.Minute, cfg.Resolver.ResolveTimeout)
		assert.Equal(t, 5*time.Minute, cfg.Resolver.InfraTimeout)

		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "structured", cfg.Logging.Profile)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		overrides := map[string]any{
			"server": map[string]any{
				"port": 9000,
				"host": "0.0.0.0",
			},
			"logging": map[string]any{
				"level": "debug",
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Logging.Level)

		// Non-overridden values keep their defaults.
		assert.Equal(t, "structured", cfg.Logging.Profile)
		assert.Equal(t, "01:00:00", cfg.Slurm.TimeLimit)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		t.Setenv("SLURMBENCH_SERVER_PORT", "3000")
		t.Setenv("SLURMBENCH_LOGGING_LEVEL", "warn")
		t.Setenv("SLURMBENCH_RESOLVER_RESOLVE_TIMEOUT", "90s")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Equal(t, 90*time.Second, cfg.Resolver.ResolveTimeout)
	})

	t.Run("ClusterEnvCompat", func(t *testing.T) {
		t.Setenv("SLURM_ACCOUNT", "proj-42")
		t.Setenv("SLURM_PARTITION", "gpu")
		t.Setenv("SLURM_TIME_LIMIT", "02:00:00")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, "proj-42", cfg.Slurm.Account)
		assert.Equal(t, "gpu", cfg.Slurm.Partition)
		assert.Equal(t, "02:00:00", cfg.Slurm.TimeLimit)
	})

	t.Run("PrefixedEnvWinsOverClusterEnv", func(t *testing.T) {
		t.Setenv("SLURM_ACCOUNT", "proj-42")
		t.Setenv("SLURMBENCH_SLURM_ACCOUNT", "proj-99")

		cfg, err := Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "proj-99", cfg.Slurm.Account)
	})

	t.Run("InvalidLevel", func(t *testing.T) {
		t.Setenv("SLURMBENCH_LOGGING_LEVEL", "loud")

		_, err := Load(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logging level")
	})
}
