package manager

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hpckit/slurmbench/pkg/instance"
	"github.com/hpckit/slurmbench/pkg/recipe"
	"github.com/hpckit/slurmbench/pkg/resolve"
)

// infraComponent is the component name the monitoring infra job is
// registered under.
const infraComponent = "prometheus"

// Prometheus configuration document, rendered per deploy.
type promConfig struct {
	Global        promGlobal   `yaml:"global"`
	ScrapeConfigs []promScrape `yaml:"scrape_configs"`
}

type promGlobal struct {
	ScrapeInterval string `yaml:"scrape_interval"`
}

type promScrape struct {
	JobName       string       `yaml:"job_name"`
	MetricsPath   string       `yaml:"metrics_path,omitempty"`
	StaticConfigs []promStatic `yaml:"static_configs"`
}

type promStatic struct {
	Targets []string `yaml:"targets"`
}

// deployMonitor deploys a composite monitoring stack: every declared target
// must resolve to an endpoint before the infra component is submitted, so a
// scrape config never references an unplaced service.
func (m *Manager) deployMonitor(ctx context.Context, rec *recipe.Recipe, inst *instance.Instance, opts DeployOptions) error {
	resolveCtx, cancel := context.WithTimeout(ctx, opts.ResolveTimeout)
	defer cancel()

	endpoints, err := m.resolver.ResolveAll(resolveCtx, rec.Targets)
	if err != nil {
		return fmt.Errorf("resolve monitoring targets: %w", err)
	}
	for name, ep := range endpoints {
		inst.Endpoints[name] = ep
	}

	if !rec.InfraEnabled() {
		// Nothing to run: the stack only records resolved endpoints.
		inst.Transition(instance.StatusCompleted)
		return m.registry.Persist()
	}

	infra := rec.Infra
	if infra == nil {
		infra = &recipe.InfraSpec{}
	}
	if infra.Image == "" {
		infra.Image = "docker://prom/prometheus:latest"
	}
	if infra.ScrapeInterval == "" {
		infra.ScrapeInterval = "15s"
	}
	if infra.RetentionTime == "" {
		infra.RetentionTime = "24h"
	}
	if infra.Port == 0 {
		infra.Port = 9090
	}

	cfgPath, err := m.writeInfraConfig(rec, inst, infra, endpoints)
	if err != nil {
		return err
	}

	dataDir := filepath.Join(m.stateDir, "prometheus", "data-"+inst.ShortID())
	command := buildInfraCommand(infra, cfgPath, dataDir)

	spec := m.jobSpec(rec, inst, "Monitoring Stack", command, "", nil, []int{infra.Port})
	handle, err := m.gateway.Submit(ctx, spec)
	if err != nil {
		return fmt.Errorf("submit infra component: %w", err)
	}

	comp := inst.AddComponent(infraComponent, handle, "", instance.StatusSubmitted)
	comp.Transition(instance.StatusStarting)
	inst.Transition(instance.StatusStarting)
	if err := m.registry.Persist(); err != nil {
		return err
	}
	m.logger.Info("infra component submitted",
		zap.String("recipe", rec.Name),
		zap.String("instance_id", inst.ShortID()),
		zap.String("job_id", handle))

	if opts.NoWait {
		return nil
	}

	waitCtx, cancelWait := context.WithTimeout(ctx, opts.InfraTimeout)
	defer cancelWait()

	ep, err := m.resolver.Resolve(waitCtx, &recipe.TargetSpec{
		Name:  infraComponent,
		JobID: handle,
		Port:  infra.Port,
	})
	if err != nil {
		if errors.Is(err, resolve.ErrResolutionTimeout) {
			m.logger.Warn("infra placement not confirmed before timeout",
				zap.String("instance_id", inst.ShortID()),
				zap.String("job_id", handle))
			return nil
		}
		// The infra job was submitted but will never serve; best-effort
		// rollback before reporting the failure.
		if _, cancelErr := m.gateway.Cancel(ctx, handle); cancelErr != nil {
			m.logger.Warn("rollback cancel failed",
				zap.String("job_id", handle),
				zap.Error(cancelErr))
		}
		comp.Transition(instance.StatusCanceled)
		return fmt.Errorf("infra placement: %w", err)
	}

	comp.Endpoint = ep
	comp.Transition(instance.StatusRunning)
	inst.Endpoints[infraComponent] = ep
	if node, _, splitErr := net.SplitHostPort(ep); splitErr == nil {
		inst.Metadata[metaNode] = node
	}
	inst.Transition(instance.StatusRunning)
	return m.registry.Persist()
}

// writeInfraConfig renders and writes the instance's Prometheus scrape
// config, returning its path.
func (m *Manager) writeInfraConfig(rec *recipe.Recipe, inst *instance.Instance, infra *recipe.InfraSpec, endpoints map[string]string) (string, error) {
	cfg := promConfig{
		Global: promGlobal{ScrapeInterval: infra.ScrapeInterval},
	}
	for _, target := range rec.Targets {
		ep, ok := endpoints[target.Name]
		if !ok {
			continue
		}
		cfg.ScrapeConfigs = append(cfg.ScrapeConfigs, promScrape{
			JobName:       target.Name,
			MetricsPath:   target.MetricsPath,
			StaticConfigs: []promStatic{{Targets: []string{ep}}},
		})
	}

	b, err := yaml.Marshal(&cfg)
	if err != nil {
		return "", fmt.Errorf("render scrape config: %w", err)
	}

	dir := filepath.Join(m.stateDir, "prometheus")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	path := filepath.Join(dir, inst.ShortID()+".yml")
	if err := os.WriteFile(path, b, 0644); err != nil {
		return "", fmt.Errorf("write scrape config: %w", err)
	}
	return path, nil
}

func buildInfraCommand(infra *recipe.InfraSpec, cfgPath, dataDir string) string {
	parts := []string{
		"apptainer", "exec",
		"--bind", cfgPath + ":/etc/prometheus/prometheus.yml",
		infra.Image,
		"prometheus",
		"--config.file=/etc/prometheus/prometheus.yml",
		"--storage.tsdb.path=" + dataDir,
		"--storage.tsdb.retention.time=" + infra.RetentionTime,
		fmt.Sprintf("--web.listen-address=0.0.0.0:%d", infra.Port),
	}
	return strings.Join(parts, " ")
}
