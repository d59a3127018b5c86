package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load builds the configuration.
//
// Precedence, lowest to highest: built-in defaults, a slurmbench.yaml config
// file (current directory, then the state root), SLURMBENCH_* environment
// variables, then any runtime override maps passed by the caller.
//
// The cluster submission defaults additionally honor the conventional
// SLURM_ACCOUNT, SLURM_PARTITION, SLURM_QOS, and SLURM_TIME_LIMIT variables
// so existing batch environments work without a config file.
func Load(_ context.Context, overrides ...map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("slurmbench")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if root := defaultStateRoot(); root != "" {
		v.AddConfigPath(root)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix("SLURMBENCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindClusterEnv(v)

	for _, override := range overrides {
		applyOverride(v, "", override)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	root := defaultStateRoot()

	v.SetDefault("paths.recipes", "./recipes")
	v.SetDefault("paths.state", root)
	v.SetDefault("paths.discovery", filepath.Join(root, "discover"))
	v.SetDefault("paths.results", "./results")

	v.SetDefault("slurm.account", "")
	v.SetDefault("slurm.partition", "")
	v.SetDefault("slurm.qos", "")
	v.SetDefault("slurm.time_limit", "01:00:00")

	v.SetDefault("resolver.poll_interval", 2.0)
	v.SetDefault("resolver.resolve_timeout", "5m")
	v.SetDefault("resolver.infra_timeout", "5m")

	v.SetDefault("results.bucket", "")
	v.SetDefault("results.prefix", "")
	v.SetDefault("results.uploads_per_second", 10.0)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")
}

// applyOverride flattens nested override maps into explicit Set calls, which
// sit above environment variables in viper's precedence.
func applyOverride(v *viper.Viper, prefix string, m map[string]any) {
	for key, val := range m {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if sub, ok := val.(map[string]any); ok {
			applyOverride(v, full, sub)
			continue
		}
		v.Set(full, val)
	}
}

// bindClusterEnv maps the site-conventional SLURM_* variables onto the
// submission defaults, after the SLURMBENCH_-prefixed forms.
func bindClusterEnv(v *viper.Viper) {
	_ = v.BindEnv("slurm.account", "SLURMBENCH_SLURM_ACCOUNT", "SLURM_ACCOUNT")
	_ = v.BindEnv("slurm.partition", "SLURMBENCH_SLURM_PARTITION", "SLURM_PARTITION")
	_ = v.BindEnv("slurm.qos", "SLURMBENCH_SLURM_QOS", "SLURM_QOS")
	_ = v.BindEnv("slurm.time_limit", "SLURMBENCH_SLURM_TIME_LIMIT", "SLURM_TIME_LIMIT")
}

func defaultStateRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".slurmbench"
	}
	return filepath.Join(home, ".slurmbench")
}

func validate(cfg *Config) error {
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level %q", cfg.Logging.Level)
	}
	switch strings.ToLower(cfg.Logging.Profile) {
	case "structured", "console":
	default:
		return fmt.Errorf("invalid logging profile %q", cfg.Logging.Profile)
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	if cfg.Resolver.PollInterval <= 0 {
		return fmt.Errorf("resolver poll interval must be positive")
	}
	return nil
}
