package recipe

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validServiceYAML returns a minimal valid service recipe in YAML format.
func validServiceYAML() string {
	return `name: vllm-server
service:
  command: python -m vllm.entrypoints.openai.api_server
  ports: [8000]
`
}

// validClientYAML returns a benchmark client recipe with a direct target.
func validClientYAML() string {
	return `name: bench-a
workload:
  duration_seconds: 30
  concurrent_users: 4
targets:
  - name: svc-a
    endpoint: 10.0.0.5:8000
`
}

// validMonitorYAML returns a monitoring stack recipe.
func validMonitorYAML() string {
	return `name: mon-1
service_name: mon-1
targets:
  - name: svc-a
    endpoint: 10.0.0.5:8000
infra:
  port: 9090
`
}

func TestLoadFromBytes_ValidService(t *testing.T) {
	r, err := LoadFromBytes([]byte(validServiceYAML()), "vllm-server.yaml")
	require.NoError(t, err)
	require.NotNil(t, r)

	assert.Equal(t, "vllm-server", r.Name)
	assert.Equal(t, KindService, r.Kind())
	// Defaults applied
	assert.Equal(t, "vllm-server", r.ServiceName)
	assert.Equal(t, 1, r.Orchestration.Resources.CPUCores)
	assert.Equal(t, 4, r.Orchestration.Resources.MemoryGB)
	assert.Equal(t, "./results", r.Output.Destination)
}

func TestLoadFromBytes_ValidClient(t *testing.T) {
	r, err := LoadFromBytes([]byte(validClientYAML()), "bench-a.yaml")
	require.NoError(t, err)

	assert.Equal(t, KindClient, r.Kind())
	require.Len(t, r.Targets, 1)
	assert.Equal(t, "10.0.0.5:8000", r.Targets[0].Endpoint)
	assert.Equal(t, 8000, r.Targets[0].Port)
	assert.Equal(t, "/metrics", r.Targets[0].MetricsPath)
	assert.Equal(t, "closed-loop", r.Workload.Pattern)
	assert.Equal(t, 100, r.Workload.RequestsPerUser)
}

func TestLoadFromBytes_ValidMonitor(t *testing.T) {
	r, err := LoadFromBytes([]byte(validMonitorYAML()), "mon-1.yaml")
	require.NoError(t, err)

	assert.Equal(t, KindMonitor, r.Kind())
	assert.True(t, r.InfraEnabled())
	assert.Equal(t, "docker://prom/prometheus:latest", r.Infra.Image)
	assert.Equal(t, "15s", r.Infra.ScrapeInterval)
	assert.Equal(t, 9090, r.Infra.Port)
}

func TestLoadFromBytes_EmptyInput(t *testing.T) {
	_, err := LoadFromBytes(nil, "empty.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestLoadFromBytes_UnknownFieldRejected(t *testing.T) {
	data := `name: bad
service:
  command: sleep 60
sevrice_extras: true
`
	_, err := LoadFromBytes([]byte(data), "bad.yaml")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestLoadFromBytes_MissingExecutionUnit(t *testing.T) {
	_, err := LoadFromBytes([]byte("name: nothing\n"), "nothing.yaml")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestLoadFromBytes_TargetWithoutSource(t *testing.T) {
	data := `name: mon-bad
infra:
  port: 9090
targets:
  - name: svc-a
    port: 8000
`
	_, err := LoadFromBytes([]byte(data), "mon-bad.yaml")
	require.Error(t, err)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Contains(t, verrs.Error(), "endpoint")
}

func TestLoadFromBytes_InvalidPort(t *testing.T) {
	data := `name: bad-port
service:
  command: sleep 60
  ports: [70000]
`
	_, err := LoadFromBytes([]byte(data), "bad-port.yaml")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestLoadFromBytes_JSONInput(t *testing.T) {
	data := `{
  "name": "bench-json",
  "workload": {"duration_seconds": 10},
  "targets": [{"name": "svc", "endpoint": "n1:8000"}]
}`
	r, err := LoadFromBytes([]byte(data), "bench-json.json")
	require.NoError(t, err)
	assert.Equal(t, KindClient, r.Kind())
}

func TestRecipe_Kind(t *testing.T) {
	enabled := true
	tests := []struct {
		name string
		r    Recipe
		want Kind
	}{
		{"service", Recipe{Name: "s", Service: &ServiceSpec{Command: "x"}}, KindService},
		{"client", Recipe{Name: "c", Workload: &WorkloadSpec{}, Targets: []TargetSpec{{Endpoint: "a:1"}}}, KindClient},
		{"monitor", Recipe{Name: "m", Infra: &InfraSpec{Enabled: &enabled}, Targets: []TargetSpec{{Endpoint: "a:1"}}}, KindMonitor},
		{"monitor from targets", Recipe{Name: "m2", Targets: []TargetSpec{{Endpoint: "a:1"}}}, KindMonitor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.r.Kind())
		})
	}
}

func TestStore_LoadCachesByName(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "svc.yaml"), []byte(validServiceYAML()), 0644))

	s := NewStore(dir)
	first, err := s.Load("svc")
	require.NoError(t, err)

	// Corrupt the file; the cached copy must still be served.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "svc.yaml"), []byte("::bad"), 0644))

	second, err := s.Load("svc")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestStore_LoadNotFound(t *testing.T) {
	s := NewStore(t.TempDir())
	_, err := s.Load("missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListSortedAndDeduplicated(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yml"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	s := NewStore(dir)
	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestStore_ListMissingDirectory(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "does-not-exist"))
	names, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestStore_CreateTemplate(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	path, err := s.CreateTemplate("starter")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "starter.yaml"), path)

	// Template must load back as a valid recipe.
	r, err := s.Load("starter")
	require.NoError(t, err)
	assert.Equal(t, "starter", r.Name)
	assert.Equal(t, KindService, r.Kind())

	// Second create for the same name fails.
	_, err = s.CreateTemplate("starter")
	require.Error(t, err)
}

func TestStore_Info(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "svc.yaml"), []byte(validServiceYAML()), 0644))

	s := NewStore(dir)
	info, err := s.Info("svc")
	require.NoError(t, err)
	assert.Equal(t, "vllm-server", info.Name)
	assert.Equal(t, KindService, info.Kind)
	assert.Equal(t, filepath.Join(dir, "svc.yaml"), info.FilePath)
}
