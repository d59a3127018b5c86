package manager

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// DeployOptions tunes a single deploy request. Zero values fall back to the
// manager's configured defaults.
type DeployOptions struct {
	// Count is the number of replicas to submit. Default 1. Only service
	// recipes may be replicated.
	Count int `mapstructure:"count"`

	// ResolveTimeout bounds target endpoint resolution and service
	// placement waits.
	ResolveTimeout time.Duration `mapstructure:"resolve_timeout"`

	// InfraTimeout bounds the wait for infra component placement in
	// composite deploys.
	InfraTimeout time.Duration `mapstructure:"infra_timeout"`

	// NoWait skips the placement wait after submission; the instance is
	// left in the starting state and picked up by a later status refresh.
	NoWait bool `mapstructure:"no_wait"`
}

// DecodeDeployOptions builds DeployOptions from a loosely-typed map, as
// received from config files or API request bodies. Duration fields accept
// Go duration strings ("90s", "5m").
func DecodeDeployOptions(raw map[string]any) (DeployOptions, error) {
	var opts DeployOptions
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &opts,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		ErrorUnused:      true,
	})
	if err != nil {
		return opts, fmt.Errorf("build options decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return opts, fmt.Errorf("decode deploy options: %w", err)
	}
	return opts, nil
}

func (o DeployOptions) withDefaults(resolveTimeout, infraTimeout time.Duration) DeployOptions {
	if o.Count <= 0 {
		o.Count = 1
	}
	if o.ResolveTimeout <= 0 {
		o.ResolveTimeout = resolveTimeout
	}
	if o.InfraTimeout <= 0 {
		o.InfraTimeout = infraTimeout
	}
	return o
}
