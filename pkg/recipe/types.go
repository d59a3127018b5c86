// Package recipe provides loading and validation of slurmbench deployment recipes.
//
// A recipe is a YAML or JSON file that describes one deployable workload: a
// long-running service, a benchmark client, or a monitoring stack. Recipes are
// validated against a JSON Schema and a set of semantic checks before any job
// is submitted, so an invalid recipe fails at load time, never at submission
// time.
//
// Example recipe (YAML):
//
//	name: vllm-server
//	description: vLLM inference server
//	service_name: vllm
//	service:
//	  command: python -m vllm.entrypoints.openai.api_server
//	  working_dir: ./
//	  env:
//	    HF_HOME: /scratch/hf
//	  ports: [8000]
//	orchestration:
//	  resources:
//	    cpu_cores: 8
//	    memory_gb: 32
//	    gpu_count: 1
//	  partition: gpu
package recipe

// Kind classifies a recipe by the execution unit it describes.
type Kind string

const (
	// KindService is a long-running service deployment.
	KindService Kind = "service"

	// KindClient is a benchmark client run against a target endpoint.
	KindClient Kind = "client"

	// KindMonitor is a composite monitoring stack (infra component plus
	// one or more monitored targets).
	KindMonitor Kind = "monitor"
)

// Recipe represents a validated deployment recipe.
//
// Exactly one execution unit must be present: Service for service recipes,
// Workload for client recipes, or Infra (with Targets) for monitor recipes.
type Recipe struct {
	// Schema is an optional JSON Schema reference for editor support.
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	// Name identifies the recipe. Required.
	Name string `json:"name" yaml:"name"`

	// Description is free-form operator documentation.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// ServiceName is the logical name this deployment publishes to the
	// discovery store. Defaults to Name.
	ServiceName string `json:"service_name,omitempty" yaml:"service_name,omitempty"`

	// Service configures a long-running service deployment.
	Service *ServiceSpec `json:"service,omitempty" yaml:"service,omitempty"`

	// Workload configures a benchmark client run.
	Workload *WorkloadSpec `json:"workload,omitempty" yaml:"workload,omitempty"`

	// Targets lists named dependencies whose endpoints must resolve before
	// dependent components are submitted.
	Targets []TargetSpec `json:"targets,omitempty" yaml:"targets,omitempty"`

	// Infra configures the monitoring infra component (Prometheus).
	Infra *InfraSpec `json:"infra,omitempty" yaml:"infra,omitempty"`

	// Orchestration configures scheduler resources and hints.
	Orchestration OrchestrationSpec `json:"orchestration,omitempty" yaml:"orchestration,omitempty"`

	// Output configures where the workload writes its results.
	Output OutputSpec `json:"output,omitempty" yaml:"output,omitempty"`
}

// ServiceSpec describes the execution unit of a service recipe.
type ServiceSpec struct {
	// Command is the literal command executed on the allocated node. Required.
	Command string `json:"command" yaml:"command"`

	// WorkingDir is the directory the command runs in. Defaults to the
	// submitting process's working directory.
	WorkingDir string `json:"working_dir,omitempty" yaml:"working_dir,omitempty"`

	// Env is exported into the job environment before the command runs.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// Ports the service listens on. The first port is used when resolving
	// this service's endpoint for consumers.
	Ports []int `json:"ports,omitempty" yaml:"ports,omitempty"`
}

// WorkloadSpec describes a benchmark client's request-generation parameters.
//
// The fields are passed through to the workload runner command line; the
// request loop itself is external to this tool.
type WorkloadSpec struct {
	Pattern         string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty" yaml:"duration_seconds,omitempty"`
	ConcurrentUsers int    `json:"concurrent_users,omitempty" yaml:"concurrent_users,omitempty"`
	ThinkTimeMS     int    `json:"think_time_ms,omitempty" yaml:"think_time_ms,omitempty"`
	RequestsPerUser int    `json:"requests_per_user,omitempty" yaml:"requests_per_user,omitempty"`

	// Payload is the request body template, kept loosely typed because its
	// shape depends on the target service.
	Payload map[string]any `json:"payload,omitempty" yaml:"payload,omitempty"`

	// Headers are added to every request.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// TargetSpec names a dependency whose network endpoint must be resolved.
//
// Resolution sources are tried in priority order: Endpoint (direct, no
// polling), Service (discovery store lookup), JobID (scheduler polling).
// At least one source must be set.
type TargetSpec struct {
	// Name identifies the target within the recipe.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Endpoint is a directly-configured "host:port".
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	// Service is a discovery-store service name to look up.
	Service string `json:"service,omitempty" yaml:"service,omitempty"`

	// JobID is a scheduler handle to poll for placement.
	JobID string `json:"job_id,omitempty" yaml:"job_id,omitempty"`

	// Port is the target's listen port, used when resolution yields only a
	// node name. Default: 8000.
	Port int `json:"port,omitempty" yaml:"port,omitempty"`

	// MetricsPath is the scrape path for monitor recipes. Default: /metrics.
	MetricsPath string `json:"metrics_path,omitempty" yaml:"metrics_path,omitempty"`
}

// InfraSpec configures the Prometheus infra component of a monitor recipe.
type InfraSpec struct {
	// Enabled controls whether the infra component is deployed. Default: true.
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`

	// Image is the container image reference. Default: docker://prom/prometheus:latest.
	Image string `json:"image,omitempty" yaml:"image,omitempty"`

	// ScrapeInterval is the Prometheus scrape interval. Default: 15s.
	ScrapeInterval string `json:"scrape_interval,omitempty" yaml:"scrape_interval,omitempty"`

	// RetentionTime is the TSDB retention window. Default: 24h.
	RetentionTime string `json:"retention_time,omitempty" yaml:"retention_time,omitempty"`

	// Port is the Prometheus listen port. Default: 9090.
	Port int `json:"port,omitempty" yaml:"port,omitempty"`
}

// OrchestrationSpec carries the scheduler resource request and hints.
type OrchestrationSpec struct {
	Resources ResourceSpec `json:"resources,omitempty" yaml:"resources,omitempty"`

	// Partition overrides the configured default partition.
	Partition string `json:"partition,omitempty" yaml:"partition,omitempty"`

	// QOS overrides the configured default QOS.
	QOS string `json:"qos,omitempty" yaml:"qos,omitempty"`

	// Account overrides the configured default account.
	Account string `json:"account,omitempty" yaml:"account,omitempty"`

	// TimeLimit overrides the configured default time limit (HH:MM:SS).
	TimeLimit string `json:"time_limit,omitempty" yaml:"time_limit,omitempty"`
}

// ResourceSpec is the per-job resource request.
type ResourceSpec struct {
	// CPUCores requested per task. Default: 1.
	CPUCores int `json:"cpu_cores,omitempty" yaml:"cpu_cores,omitempty"`

	// MemoryGB requested per node. Default: 4.
	MemoryGB int `json:"memory_gb,omitempty" yaml:"memory_gb,omitempty"`

	// GPUCount requested via gres. Default: 0.
	GPUCount int `json:"gpu_count,omitempty" yaml:"gpu_count,omitempty"`
}

// OutputSpec configures result output.
type OutputSpec struct {
	// Destination is the directory workload results are written to.
	// Default: ./results.
	Destination string `json:"destination,omitempty" yaml:"destination,omitempty"`
}

// Kind returns the recipe classification derived from the execution unit.
func (r *Recipe) Kind() Kind {
	switch {
	case r.Workload != nil:
		return KindClient
	case r.Infra != nil || len(r.Targets) > 0 && r.Service == nil:
		return KindMonitor
	default:
		return KindService
	}
}

// InfraEnabled reports whether the infra component should be deployed.
func (r *Recipe) InfraEnabled() bool {
	if r.Infra == nil {
		return r.Kind() == KindMonitor
	}
	if r.Infra.Enabled == nil {
		return true
	}
	return *r.Infra.Enabled
}

// ApplyDefaults fills optional fields with their documented defaults.
func (r *Recipe) ApplyDefaults() {
	if r.ServiceName == "" {
		r.ServiceName = r.Name
	}
	if r.Workload != nil {
		if r.Workload.Pattern == "" {
			r.Workload.Pattern = "closed-loop"
		}
		if r.Workload.DurationSeconds == 0 {
			r.Workload.DurationSeconds = 60
		}
		if r.Workload.ConcurrentUsers == 0 {
			r.Workload.ConcurrentUsers = 1
		}
		if r.Workload.RequestsPerUser == 0 {
			r.Workload.RequestsPerUser = 100
		}
	}
	for i := range r.Targets {
		if r.Targets[i].Port == 0 {
			r.Targets[i].Port = 8000
		}
		if r.Targets[i].MetricsPath == "" {
			r.Targets[i].MetricsPath = "/metrics"
		}
		if r.Targets[i].Name == "" {
			r.Targets[i].Name = r.Name
		}
	}
	if r.Infra != nil {
		if r.Infra.Image == "" {
			r.Infra.Image = "docker://prom/prometheus:latest"
		}
		if r.Infra.ScrapeInterval == "" {
			r.Infra.ScrapeInterval = "15s"
		}
		if r.Infra.RetentionTime == "" {
			r.Infra.RetentionTime = "24h"
		}
		if r.Infra.Port == 0 {
			r.Infra.Port = 9090
		}
	}
	if r.Orchestration.Resources.CPUCores == 0 {
		r.Orchestration.Resources.CPUCores = 1
	}
	if r.Orchestration.Resources.MemoryGB == 0 {
		r.Orchestration.Resources.MemoryGB = 4
	}
	if r.Output.Destination == "" {
		r.Output.Destination = "./results"
	}
}
