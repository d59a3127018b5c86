package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hpckit/slurmbench/internal/config"
	"github.com/hpckit/slurmbench/pkg/discovery"
	"github.com/hpckit/slurmbench/pkg/instance"
	"github.com/hpckit/slurmbench/pkg/manager"
	"github.com/hpckit/slurmbench/pkg/recipe"
	"github.com/hpckit/slurmbench/pkg/resolve"
	"github.com/hpckit/slurmbench/pkg/slurm"
)

// idleGateway satisfies slurm.Gateway; the status API never calls it.
type idleGateway struct{}

func (idleGateway) Submit(context.Context, *slurm.JobSpec) (string, error) { return "", nil }
func (idleGateway) Cancel(context.Context, string) (bool, error)           { return false, nil }
func (idleGateway) QueryStatus(context.Context, string) (slurm.JobStatus, error) {
	return slurm.JobStatus{State: instance.StatusCompleted}, nil
}

func newTestServer(t *testing.T) (*Server, *instance.Registry, *discovery.Store) {
	t.Helper()

	root := t.TempDir()
	recipeDir := filepath.Join(root, "recipes")
	require.NoError(t, os.MkdirAll(recipeDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(recipeDir, "bench-svc.yml"), []byte(`name: bench-svc
description: test service
service:
  command: ./serve
  ports: [8000]
`), 0644))

	recipes := recipe.NewStore(recipeDir)
	registry := instance.NewRegistry(instance.NewStore(filepath.Join(root, "instances.json")), zap.NewNop())
	disc := discovery.NewStore(filepath.Join(root, "discover"))
	gw := idleGateway{}
	resolver := resolve.NewResolver(gw, disc, 1, zap.NewNop())

	mgr, err := manager.New(manager.Params{
		Recipes:  recipes,
		Gateway:  gw,
		Resolver: resolver,
		Registry: registry,
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)

	cfg := config.ServerConfig{
		Host:            "127.0.0.1",
		Port:            0,
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		ShutdownTimeout: time.Second,
	}
	return New(cfg, "1.2.3", mgr, disc, zap.NewNop()), registry, disc
}

func doGet(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestUnknownRouteReturnsJSONEnvelope(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doGet(t, srv, "/does-not-exist")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, CodeNotFound, body.Error.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/version", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	var body HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, CodeMethodNotAllowed, body.Error.Code)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doGet(t, srv, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "1.2.3", body.Version)
}

func TestListInstancesWithStatusFilter(t *testing.T) {
	srv, registry, _ := newTestServer(t)

	running := instance.New("bench-svc")
	running.Transition(instance.StatusStarting)
	running.Transition(instance.StatusRunning)
	require.NoError(t, registry.Create(running))

	failed := instance.New("bench-svc")
	failed.Transition(instance.StatusFailed)
	require.NoError(t, registry.Create(failed))

	rec := doGet(t, srv, "/api/v1/instances")
	require.Equal(t, http.StatusOK, rec.Code)
	var all instancesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&all))
	assert.Equal(t, 2, all.Total)

	rec = doGet(t, srv, "/api/v1/instances?status=running")
	require.Equal(t, http.StatusOK, rec.Code)
	var filtered instancesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&filtered))
	require.Equal(t, 1, filtered.Total)
	assert.Equal(t, running.ID, filtered.Instances[0].ID)
}

func TestGetInstance(t *testing.T) {
	srv, registry, _ := newTestServer(t)

	inst := instance.New("bench-svc")
	inst.JobID = "42"
	require.NoError(t, registry.Create(inst))

	rec := doGet(t, srv, "/api/v1/instances/"+inst.ID)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap manager.Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	assert.Equal(t, inst.ID, snap.ID)
	assert.Equal(t, "42", snap.JobID)
}

func TestGetInstanceNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doGet(t, srv, "/api/v1/instances/aaaaaaaa-0000")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, CodeNotFound, body.Error.Code)
}

func TestListRecipes(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doGet(t, srv, "/api/v1/recipes")
	require.Equal(t, http.StatusOK, rec.Code)

	var body recipesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, []string{"bench-svc"}, body.Recipes)
}

func TestGetRecipeInfo(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doGet(t, srv, "/api/v1/recipes/bench-svc")
	require.Equal(t, http.StatusOK, rec.Code)

	var info recipe.Info
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	assert.Equal(t, "bench-svc", info.Name)
	assert.Equal(t, recipe.KindService, info.Kind)
}

func TestGetRecipeNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doGet(t, srv, "/api/v1/recipes/ghost")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDiscoveryRoutes(t *testing.T) {
	srv, _, disc := newTestServer(t)

	require.NoError(t, disc.Write(&discovery.Record{
		Service: "bench", Node: "node-1", Ports: []int{8000},
	}))

	rec := doGet(t, srv, "/api/v1/discovery")
	require.Equal(t, http.StatusOK, rec.Code)
	var list discoveryResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "bench", list.Services[0].Service)

	rec = doGet(t, srv, "/api/v1/discovery/bench")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doGet(t, srv, "/api/v1/discovery/ghost")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
