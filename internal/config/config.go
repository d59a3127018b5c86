// Package config loads slurmbench configuration from defaults, an optional
// config file, environment variables, and runtime overrides, in increasing
// precedence.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Paths    PathsConfig    `mapstructure:"paths"`
	Slurm    SlurmConfig    `mapstructure:"slurm"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Results  ResultsConfig  `mapstructure:"results"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// PathsConfig locates the tool's working directories.
type PathsConfig struct {
	// Recipes is the directory recipe files are loaded from.
	Recipes string `mapstructure:"recipes"`

	// State is the root directory for instance state, rendered job
	// artifacts, and logs.
	State string `mapstructure:"state"`

	// Discovery is the cross-process service discovery directory.
	Discovery string `mapstructure:"discovery"`

	// Results is the local directory benchmark results are written to.
	Results string `mapstructure:"results"`
}

// SlurmConfig carries cluster-wide submission defaults. Recipe-level values
// override these per job.
type SlurmConfig struct {
	Account   string `mapstructure:"account"`
	Partition string `mapstructure:"partition"`
	QOS       string `mapstructure:"qos"`
	TimeLimit string `mapstructure:"time_limit"`
}

// ResolverConfig tunes endpoint resolution.
type ResolverConfig struct {
	// PollInterval is the seconds between placement polls.
	PollInterval float64 `mapstructure:"poll_interval"`

	// ResolveTimeout bounds target resolution per deploy.
	ResolveTimeout time.Duration `mapstructure:"resolve_timeout"`

	// InfraTimeout bounds infra component placement waits.
	InfraTimeout time.Duration `mapstructure:"infra_timeout"`
}

// ResultsConfig configures results sync to object storage.
type ResultsConfig struct {
	Bucket           string   `mapstructure:"bucket"`
	Prefix           string   `mapstructure:"prefix"`
	Region           string   `mapstructure:"region"`
	Endpoint         string   `mapstructure:"endpoint"`
	Profile          string   `mapstructure:"profile"`
	AccessKeyID      string   `mapstructure:"access_key_id"`
	SecretAccessKey  string   `mapstructure:"secret_access_key"`
	ForcePathStyle   bool     `mapstructure:"force_path_style"`
	Include          []string `mapstructure:"include"`
	Exclude          []string `mapstructure:"exclude"`
	UploadsPerSecond float64  `mapstructure:"uploads_per_second"`
}

// ServerConfig configures the read-only status API server.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	// Level is the minimum level: debug, info, warn, error.
	Level string `mapstructure:"level"`

	// Profile selects the encoder: "structured" (JSON) or "console".
	Profile string `mapstructure:"profile"`
}
