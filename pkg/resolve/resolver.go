// Package resolve turns workload target declarations into concrete
// network endpoints.
//
// A target may specify its endpoint three ways, tried in priority order:
//
//  1. a literal endpoint, returned as-is with no I/O
//  2. a service name, looked up in the discovery registry
//  3. a scheduler job handle, located by querying job placement
//
// The last two are inherently racy against job startup, so resolution
// polls until the endpoint materializes or the caller's context expires.
// Polling is paced with a rate limiter so a slow-starting job does not
// hammer the discovery directory or the scheduler CLI.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hpckit/slurmbench/pkg/discovery"
	"github.com/hpckit/slurmbench/pkg/instance"
	"github.com/hpckit/slurmbench/pkg/recipe"
	"github.com/hpckit/slurmbench/pkg/slurm"
)

// ErrResolutionTimeout indicates the target never became resolvable before
// the caller's deadline.
var ErrResolutionTimeout = errors.New("endpoint resolution timed out")

// ErrUnresolvableTarget indicates the target declares no endpoint source.
var ErrUnresolvableTarget = errors.New("target has no endpoint source")

// Resolver resolves target declarations to "host:port" endpoints.
type Resolver struct {
	gateway   slurm.Gateway
	discovery *discovery.Store
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// NewResolver creates a Resolver. pollInterval bounds how often discovery
// or scheduler state is re-checked while waiting for a target.
func NewResolver(gateway slurm.Gateway, disc *discovery.Store, pollInterval float64, logger *zap.Logger) *Resolver {
	if pollInterval <= 0 {
		pollInterval = 2.0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		gateway:   gateway,
		discovery: disc,
		limiter:   rate.NewLimiter(rate.Limit(1.0/pollInterval), 1),
		logger:    logger,
	}
}

// Resolve returns the endpoint for a single target. The caller bounds the
// wait through ctx; when the deadline passes before the target becomes
// resolvable, the error wraps ErrResolutionTimeout.
func (r *Resolver) Resolve(ctx context.Context, target *recipe.TargetSpec) (string, error) {
	switch {
	case target.Endpoint != "":
		return target.Endpoint, nil
	case target.Service != "":
		return r.resolveService(ctx, target)
	case target.JobID != "":
		return r.resolveJob(ctx, target)
	default:
		return "", fmt.Errorf("target %s: %w", target.Name, ErrUnresolvableTarget)
	}
}

// ResolveAll resolves every target, failing on the first unresolvable one.
// Results are keyed by target name.
func (r *Resolver) ResolveAll(ctx context.Context, targets []recipe.TargetSpec) (map[string]string, error) {
	endpoints := make(map[string]string, len(targets))
	for i := range targets {
		ep, err := r.Resolve(ctx, &targets[i])
		if err != nil {
			return nil, err
		}
		endpoints[targets[i].Name] = ep
	}
	return endpoints, nil
}

func (r *Resolver) resolveService(ctx context.Context, target *recipe.TargetSpec) (string, error) {
	waiting := false
	for {
		rec, err := r.discovery.Read(target.Service)
		if err != nil {
			return "", fmt.Errorf("resolve target %s: %w", target.Name, err)
		}
		if rec.Complete() {
			ep, _ := rec.Endpoint()
			if target.Port > 0 {
				ep = net.JoinHostPort(rec.Node, fmt.Sprintf("%d", target.Port))
			}
			r.logger.Info("target resolved via discovery",
				zap.String("target", target.Name),
				zap.String("service", target.Service),
				zap.String("endpoint", ep))
			return ep, nil
		}

		if !waiting {
			waiting = true
			r.logger.Info("waiting for service discovery record",
				zap.String("target", target.Name),
				zap.String("service", target.Service))
		}
		if err := r.pause(ctx, target); err != nil {
			return "", err
		}
	}
}

func (r *Resolver) resolveJob(ctx context.Context, target *recipe.TargetSpec) (string, error) {
	lastState := instance.Status("")
	for {
		status, err := r.gateway.QueryStatus(ctx, target.JobID)
		if err != nil {
			return "", fmt.Errorf("resolve target %s: %w", target.Name, err)
		}
		if status.State.Terminal() {
			return "", fmt.Errorf("resolve target %s: job %s is %s", target.Name, target.JobID, status.State)
		}
		if status.State == instance.StatusRunning && status.Node != "" {
			ep := net.JoinHostPort(status.Node, fmt.Sprintf("%d", target.Port))
			r.logger.Info("target resolved via job placement",
				zap.String("target", target.Name),
				zap.String("job_id", target.JobID),
				zap.String("endpoint", ep))
			return ep, nil
		}

		if status.State != lastState {
			lastState = status.State
			r.logger.Info("waiting for job placement",
				zap.String("target", target.Name),
				zap.String("job_id", target.JobID),
				zap.String("state", string(status.State)))
		}
		if err := r.pause(ctx, target); err != nil {
			return "", err
		}
	}
}

func (r *Resolver) pause(ctx context.Context, target *recipe.TargetSpec) error {
	if err := r.limiter.Wait(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return fmt.Errorf("target %s: %w", target.Name, ErrResolutionTimeout)
		}
		return err
	}
	return nil
}
