// Package manager is the orchestration façade over recipes, the scheduler
// gateway, endpoint resolution, and the instance registry.
//
// A deploy request loads a recipe, submits it as one or more scheduler jobs,
// resolves any declared target endpoints before dependent components are
// submitted, and records the resulting instance. Stop and refresh operate on
// every live handle an instance owns, isolating per-handle failures so one
// bad job never blocks the rest. All public operations run synchronously on
// the calling goroutine; blocking is bounded by the caller's context and the
// configured resolution timeouts.
package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hpckit/slurmbench/pkg/discovery"
	"github.com/hpckit/slurmbench/pkg/instance"
	"github.com/hpckit/slurmbench/pkg/recipe"
	"github.com/hpckit/slurmbench/pkg/resolve"
	"github.com/hpckit/slurmbench/pkg/slurm"
)

// Instance metadata keys written by the manager.
const (
	metaKind        = "kind"
	metaServiceName = "service_name"
	metaNode        = "node"
	metaError       = "error"
)

// Params configures a Manager. Recipes, Gateway, Resolver, and Registry are
// required; the rest default sensibly.
type Params struct {
	Recipes   *recipe.Store
	Gateway   slurm.Gateway
	Resolver  *resolve.Resolver
	Registry  *instance.Registry
	Discovery *discovery.Store

	// StateDir holds rendered job artifacts (batch logs, generated
	// monitoring configs).
	StateDir string

	// ResolveTimeout bounds target resolution and service placement waits.
	// Default 5m.
	ResolveTimeout time.Duration

	// InfraTimeout bounds infra component placement waits. Default 5m.
	InfraTimeout time.Duration

	Logger *zap.Logger
}

// Manager coordinates deploy, stop, and status operations.
type Manager struct {
	recipes   *recipe.Store
	gateway   slurm.Gateway
	resolver  *resolve.Resolver
	registry  *instance.Registry
	discovery *discovery.Store

	stateDir       string
	resolveTimeout time.Duration
	infraTimeout   time.Duration
	logger         *zap.Logger
}

// New creates a Manager from Params.
func New(p Params) (*Manager, error) {
	if p.Recipes == nil {
		return nil, fmt.Errorf("recipe store is required")
	}
	if p.Gateway == nil {
		return nil, fmt.Errorf("scheduler gateway is required")
	}
	if p.Resolver == nil {
		return nil, fmt.Errorf("endpoint resolver is required")
	}
	if p.Registry == nil {
		return nil, fmt.Errorf("instance registry is required")
	}
	if p.ResolveTimeout <= 0 {
		p.ResolveTimeout = 5 * time.Minute
	}
	if p.InfraTimeout <= 0 {
		p.InfraTimeout = 5 * time.Minute
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	return &Manager{
		recipes:        p.Recipes,
		gateway:        p.Gateway,
		resolver:       p.Resolver,
		registry:       p.Registry,
		discovery:      p.Discovery,
		stateDir:       p.StateDir,
		resolveTimeout: p.ResolveTimeout,
		infraTimeout:   p.InfraTimeout,
		logger:         p.Logger,
	}, nil
}

// Deploy loads and deploys a recipe, returning the created instances.
//
// Load failures abort before any submission. Submission or resolution
// failures mark the affected instance failed with the triggering error in
// metadata; the instance is still returned alongside the error so callers
// can report its id.
func (m *Manager) Deploy(ctx context.Context, recipeName string, opts DeployOptions) ([]*instance.Instance, error) {
	rec, err := m.recipes.Load(recipeName)
	if err != nil {
		return nil, err
	}

	opts = opts.withDefaults(m.resolveTimeout, m.infraTimeout)
	if opts.Count > 1 && rec.Kind() != recipe.KindService {
		return nil, fmt.Errorf("recipe %s: only service recipes can be replicated", rec.Name)
	}

	var deployed []*instance.Instance
	for i := 0; i < opts.Count; i++ {
		inst, err := m.deployOne(ctx, rec, opts)
		if inst != nil {
			deployed = append(deployed, inst)
		}
		if err != nil {
			return deployed, err
		}
	}
	return deployed, nil
}

func (m *Manager) deployOne(ctx context.Context, rec *recipe.Recipe, opts DeployOptions) (*instance.Instance, error) {
	inst := instance.New(rec.Name)
	inst.Metadata[metaKind] = string(rec.Kind())
	if rec.Kind() == recipe.KindService {
		inst.Metadata[metaServiceName] = rec.ServiceName
	}
	if err := m.registry.Create(inst); err != nil {
		return nil, err
	}

	var err error
	switch rec.Kind() {
	case recipe.KindService:
		err = m.deployService(ctx, rec, inst, opts)
	case recipe.KindClient:
		err = m.deployClient(ctx, rec, inst, opts)
	case recipe.KindMonitor:
		err = m.deployMonitor(ctx, rec, inst, opts)
	}
	if err != nil {
		m.markFailed(inst, err)
		return inst, fmt.Errorf("deploy recipe %s (instance %s): %w", rec.Name, inst.ShortID(), err)
	}
	return inst, nil
}

func (m *Manager) deployService(ctx context.Context, rec *recipe.Recipe, inst *instance.Instance, opts DeployOptions) error {
	spec := m.jobSpec(rec, inst, "Service Deployment", rec.Service.Command,
		rec.Service.WorkingDir, rec.Service.Env, rec.Service.Ports)

	handle, err := m.gateway.Submit(ctx, spec)
	if err != nil {
		return err
	}
	inst.JobID = handle
	inst.Transition(instance.StatusStarting)
	if err := m.registry.Persist(); err != nil {
		return err
	}
	m.logger.Info("service submitted",
		zap.String("recipe", rec.Name),
		zap.String("instance_id", inst.ShortID()),
		zap.String("job_id", handle))

	// Publish the handle immediately so consumers can start polling; the
	// record stays incomplete until placement is known.
	m.publishDiscovery(rec, inst, "", nil)

	if opts.NoWait {
		return nil
	}

	port := 8000
	if len(rec.Service.Ports) > 0 {
		port = rec.Service.Ports[0]
	}
	waitCtx, cancel := context.WithTimeout(ctx, opts.ResolveTimeout)
	defer cancel()

	ep, err := m.resolver.Resolve(waitCtx, &recipe.TargetSpec{
		Name:  rec.ServiceName,
		JobID: handle,
		Port:  port,
	})
	if err != nil {
		if errors.Is(err, resolve.ErrResolutionTimeout) {
			// Not a failure: the job may still be queued. A later status
			// refresh picks it up.
			m.logger.Warn("service placement not confirmed before timeout",
				zap.String("instance_id", inst.ShortID()),
				zap.String("job_id", handle))
			return nil
		}
		return err
	}

	node, _, splitErr := net.SplitHostPort(ep)
	if splitErr == nil {
		inst.Metadata[metaNode] = node
	}
	inst.Endpoints[rec.ServiceName] = ep
	inst.Transition(instance.StatusRunning)
	m.publishDiscovery(rec, inst, node, rec.Service.Ports)
	return m.registry.Persist()
}

func (m *Manager) deployClient(ctx context.Context, rec *recipe.Recipe, inst *instance.Instance, opts DeployOptions) error {
	resolveCtx, cancel := context.WithTimeout(ctx, opts.ResolveTimeout)
	defer cancel()

	endpoints, err := m.resolver.ResolveAll(resolveCtx, rec.Targets)
	if err != nil {
		return fmt.Errorf("resolve targets: %w", err)
	}
	for name, ep := range endpoints {
		inst.Endpoints[name] = ep
	}

	primary := endpoints[rec.Targets[0].Name]
	command := buildWorkloadCommand(rec, inst, primary)

	env := map[string]string{"TARGET_ENDPOINT": primary}
	spec := m.jobSpec(rec, inst, "Benchmark Client", command, "", env, nil)

	handle, err := m.gateway.Submit(ctx, spec)
	if err != nil {
		return err
	}
	inst.JobID = handle
	inst.Transition(instance.StatusStarting)
	m.logger.Info("benchmark client submitted",
		zap.String("recipe", rec.Name),
		zap.String("instance_id", inst.ShortID()),
		zap.String("job_id", handle),
		zap.String("target", primary))
	return m.registry.Persist()
}

// buildWorkloadCommand renders the workload runner invocation from the
// recipe's workload parameters.
func buildWorkloadCommand(rec *recipe.Recipe, inst *instance.Instance, endpoint string) string {
	w := rec.Workload
	outPath := filepath.Join(rec.Output.Destination,
		fmt.Sprintf("%s_%s.json", rec.Name, inst.ShortID()))

	args := []string{
		"slurmbench-runner",
		"--endpoint", "http://" + endpoint,
		"--pattern", w.Pattern,
		"--duration", strconv.Itoa(w.DurationSeconds),
		"--users", strconv.Itoa(w.ConcurrentUsers),
		"--output", outPath,
	}
	if w.ThinkTimeMS > 0 {
		args = append(args, "--think-time", strconv.Itoa(w.ThinkTimeMS))
	}
	if w.RequestsPerUser > 0 {
		args = append(args, "--requests", strconv.Itoa(w.RequestsPerUser))
	}
	if len(w.Payload) > 0 {
		if b, err := json.Marshal(w.Payload); err == nil {
			args = append(args, "--payload", "'"+string(b)+"'")
		}
	}
	if len(w.Headers) > 0 {
		if b, err := json.Marshal(w.Headers); err == nil {
			args = append(args, "--headers", "'"+string(b)+"'")
		}
	}
	return strings.Join(args, " ")
}

// Stop cancels every live handle owned by an instance.
//
// Stopping an already-terminal instance is a no-op returning true. Returns
// true only when every cancellation succeeded or was already unnecessary;
// otherwise the instance is marked failed and the error is a
// PartialFailureError naming the components that did and did not cancel.
func (m *Manager) Stop(ctx context.Context, id string) (bool, error) {
	inst, err := m.registry.Get(id)
	if err != nil {
		return false, err
	}
	if inst.Status.Terminal() {
		return true, nil
	}

	handles := inst.LiveHandles()
	names := make([]string, 0, len(handles))
	for name := range handles {
		names = append(names, name)
	}
	sort.Strings(names)

	var succeeded []string
	var failed []ComponentFailure
	for _, name := range names {
		handle := handles[name]
		label := name
		if label == "" {
			label = inst.RecipeName
		}

		if _, err := m.gateway.Cancel(ctx, handle); err != nil {
			m.logger.Warn("cancel failed",
				zap.String("instance_id", inst.ShortID()),
				zap.String("component", label),
				zap.String("job_id", handle),
				zap.Error(err))
			failed = append(failed, ComponentFailure{Name: label, Err: err})
			continue
		}
		succeeded = append(succeeded, label)
		if c, ok := inst.Components[name]; ok {
			c.Transition(instance.StatusCanceled)
		}
	}

	m.retractDiscovery(inst)

	if len(failed) > 0 {
		pf := &PartialFailureError{
			Op:         "stop",
			InstanceID: inst.ID,
			Succeeded:  succeeded,
			Failed:     failed,
		}
		m.markFailed(inst, pf)
		return false, pf
	}

	inst.Transition(instance.StatusCanceled)
	if err := m.registry.Persist(); err != nil {
		return false, err
	}
	m.logger.Info("instance stopped",
		zap.String("instance_id", inst.ShortID()),
		zap.String("recipe", inst.RecipeName))
	return true, nil
}

// StopAll stops every non-terminal instance, returning the ids of those
// stopped cleanly. Per-instance failures are aggregated, never short-circuit.
func (m *Manager) StopAll(ctx context.Context) ([]string, error) {
	var stopped []string
	var errs []error
	for _, inst := range m.registry.List() {
		if inst.Status.Terminal() {
			continue
		}
		ok, err := m.Stop(ctx, inst.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			stopped = append(stopped, inst.ID)
		}
	}
	return stopped, errors.Join(errs...)
}

// RefreshStatus re-queries the scheduler for every live handle an instance
// owns, updates statuses, and returns a read-only snapshot. A query failure
// on one handle is logged and skipped so it cannot block the rest.
func (m *Manager) RefreshStatus(ctx context.Context, id string) (*Snapshot, error) {
	inst, err := m.registry.Get(id)
	if err != nil {
		return nil, err
	}
	if m.refreshInstance(ctx, inst) {
		if err := m.registry.Persist(); err != nil {
			return nil, err
		}
	}
	return snapshotOf(inst), nil
}

// RefreshAll refreshes every non-terminal instance and returns snapshots of
// the full table in creation order.
func (m *Manager) RefreshAll(ctx context.Context) ([]*Snapshot, error) {
	changed := false
	instances := m.registry.List()
	for _, inst := range instances {
		if inst.Status.Terminal() {
			continue
		}
		if m.refreshInstance(ctx, inst) {
			changed = true
		}
	}
	if changed {
		if err := m.registry.Persist(); err != nil {
			return nil, err
		}
	}

	snaps := make([]*Snapshot, 0, len(instances))
	for _, inst := range instances {
		snaps = append(snaps, snapshotOf(inst))
	}
	return snaps, nil
}

func (m *Manager) refreshInstance(ctx context.Context, inst *instance.Instance) bool {
	changed := false
	for name, handle := range inst.LiveHandles() {
		status, err := m.gateway.QueryStatus(ctx, handle)
		if err != nil {
			m.logger.Warn("status query failed",
				zap.String("instance_id", inst.ShortID()),
				zap.String("job_id", handle),
				zap.Error(err))
			continue
		}

		if name == "" {
			if status.Node != "" && inst.Metadata[metaNode] != status.Node {
				inst.Metadata[metaNode] = status.Node
				changed = true
			}
			if inst.Transition(status.State) {
				changed = true
			}
			continue
		}
		if c, ok := inst.Components[name]; ok && c.Transition(status.State) {
			changed = true
		}
	}

	// Composite instances without a job of their own derive their status
	// from their components.
	if inst.JobID == "" && len(inst.Components) > 0 {
		if inst.Transition(aggregateStatus(inst.Components)) {
			changed = true
		}
	}
	return changed
}

// aggregateStatus folds component statuses into a parent status: running if
// any component runs, terminal once all components are terminal (failed wins
// over completed), otherwise starting.
func aggregateStatus(components map[string]*instance.Component) instance.Status {
	allTerminal := true
	anyRunning := false
	anyFailed := false
	for _, c := range components {
		if !c.Status.Terminal() {
			allTerminal = false
		}
		if c.Status == instance.StatusRunning {
			anyRunning = true
		}
		if c.Status == instance.StatusFailed {
			anyFailed = true
		}
	}
	switch {
	case anyRunning:
		return instance.StatusRunning
	case allTerminal && anyFailed:
		return instance.StatusFailed
	case allTerminal:
		return instance.StatusCompleted
	default:
		return instance.StatusStarting
	}
}

// Snapshot returns a read-only snapshot of one instance without querying
// the scheduler.
func (m *Manager) Snapshot(id string) (*Snapshot, error) {
	inst, err := m.registry.Get(id)
	if err != nil {
		return nil, err
	}
	return snapshotOf(inst), nil
}

// Snapshots returns read-only snapshots of all instances in creation order,
// without querying the scheduler.
func (m *Manager) Snapshots() []*Snapshot {
	instances := m.registry.List()
	snaps := make([]*Snapshot, 0, len(instances))
	for _, inst := range instances {
		snaps = append(snaps, snapshotOf(inst))
	}
	return snaps
}

// List returns instances, optionally filtered by status.
func (m *Manager) List(filter instance.Status) []*instance.Instance {
	if filter == "" {
		return m.registry.List()
	}
	return m.registry.ListByStatus(filter)
}

// Get returns an instance by id or unambiguous id prefix.
func (m *Manager) Get(id string) (*instance.Instance, error) {
	return m.registry.Get(id)
}

// Prune removes terminal instances from the registry.
func (m *Manager) Prune() ([]string, error) {
	return m.registry.Prune()
}

// ListRecipes enumerates available recipe names.
func (m *Manager) ListRecipes() ([]string, error) {
	return m.recipes.List()
}

// RecipeInfo returns summary information for a recipe.
func (m *Manager) RecipeInfo(name string) (*recipe.Info, error) {
	return m.recipes.Info(name)
}

func (m *Manager) jobSpec(rec *recipe.Recipe, inst *instance.Instance, kindLabel, command, workingDir string, env map[string]string, ports []int) *slurm.JobSpec {
	name := fmt.Sprintf("%s_%s", rec.Name, inst.ShortID())
	spec := &slurm.JobSpec{
		Name:       name,
		Kind:       kindLabel,
		InstanceID: inst.ID,
		Command:    command,
		WorkingDir: workingDir,
		Env:        env,
		Ports:      ports,
		CPUCores:   rec.Orchestration.Resources.CPUCores,
		MemoryGB:   rec.Orchestration.Resources.MemoryGB,
		GPUCount:   rec.Orchestration.Resources.GPUCount,
		Partition:  rec.Orchestration.Partition,
		QOS:        rec.Orchestration.QOS,
		Account:    rec.Orchestration.Account,
		TimeLimit:  rec.Orchestration.TimeLimit,
	}
	if m.stateDir != "" {
		spec.LogPath = filepath.Join(m.stateDir, "logs", name+".log")
	}
	return spec
}

func (m *Manager) markFailed(inst *instance.Instance, cause error) {
	inst.Metadata[metaError] = cause.Error()
	inst.Transition(instance.StatusFailed)
	if err := m.registry.Persist(); err != nil {
		m.logger.Error("persist after failure", zap.Error(err))
	}
}

func (m *Manager) publishDiscovery(rec *recipe.Recipe, inst *instance.Instance, node string, ports []int) {
	if m.discovery == nil || rec.ServiceName == "" {
		return
	}
	err := m.discovery.Write(&discovery.Record{
		Service:    rec.ServiceName,
		JobID:      inst.JobID,
		Node:       node,
		Ports:      ports,
		InstanceID: inst.ID,
	})
	if err != nil {
		m.logger.Warn("discovery publish failed",
			zap.String("service", rec.ServiceName),
			zap.Error(err))
	}
}

// retractDiscovery clears this instance's discovery record, leaving records
// owned by other instances alone.
func (m *Manager) retractDiscovery(inst *instance.Instance) {
	service := inst.Metadata[metaServiceName]
	if m.discovery == nil || service == "" {
		return
	}
	rec, err := m.discovery.Read(service)
	if err != nil || rec == nil || rec.InstanceID != inst.ID {
		return
	}
	if err := m.discovery.Clear(service); err != nil {
		m.logger.Warn("discovery retract failed",
			zap.String("service", service),
			zap.Error(err))
	}
}
