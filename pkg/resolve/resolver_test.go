package resolve

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hpckit/slurmbench/pkg/discovery"
	"github.com/hpckit/slurmbench/pkg/instance"
	"github.com/hpckit/slurmbench/pkg/recipe"
	"github.com/hpckit/slurmbench/pkg/slurm"
)

type fakeGateway struct {
	mu       sync.Mutex
	statuses map[string][]slurm.JobStatus
	calls    map[string]int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		statuses: make(map[string][]slurm.JobStatus),
		calls:    make(map[string]int),
	}
}

// setStatuses queues the statuses QueryStatus returns for a handle; the
// last one repeats once the queue is drained.
func (f *fakeGateway) setStatuses(handle string, statuses ...slurm.JobStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[handle] = statuses
}

func (f *fakeGateway) Submit(context.Context, *slurm.JobSpec) (string, error) {
	return "", nil
}

func (f *fakeGateway) Cancel(context.Context, string) (bool, error) {
	return false, nil
}

func (f *fakeGateway) QueryStatus(_ context.Context, handle string) (slurm.JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	queue := f.statuses[handle]
	if len(queue) == 0 {
		return slurm.JobStatus{State: instance.StatusCompleted}, nil
	}
	idx := f.calls[handle]
	if idx >= len(queue) {
		idx = len(queue) - 1
	}
	f.calls[handle]++
	return queue[idx], nil
}

func newTestResolver(t *testing.T, gw slurm.Gateway, disc *discovery.Store) *Resolver {
	t.Helper()
	// Tight polling keeps the waiting paths fast under test.
	return NewResolver(gw, disc, 0.005, zap.NewNop())
}

func TestResolveDirectEndpoint(t *testing.T) {
	r := newTestResolver(t, newFakeGateway(), discovery.NewStore(t.TempDir()))

	ep, err := r.Resolve(context.Background(), &recipe.TargetSpec{
		Name:     "api",
		Endpoint: "10.0.0.5:8080",
	})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5:8080", ep)
}

func TestResolveViaDiscovery(t *testing.T) {
	disc := discovery.NewStore(t.TempDir())
	require.NoError(t, disc.Write(&discovery.Record{
		Service: "vllm",
		Node:    "gpu-node-03",
		Ports:   []int{8000},
	}))

	r := newTestResolver(t, newFakeGateway(), disc)

	ep, err := r.Resolve(context.Background(), &recipe.TargetSpec{
		Name:    "llm",
		Service: "vllm",
	})
	require.NoError(t, err)
	assert.Equal(t, "gpu-node-03:8000", ep)
}

func TestResolveViaDiscoveryPortOverride(t *testing.T) {
	disc := discovery.NewStore(t.TempDir())
	require.NoError(t, disc.Write(&discovery.Record{
		Service: "vllm",
		Node:    "gpu-node-03",
		Ports:   []int{8000},
	}))

	r := newTestResolver(t, newFakeGateway(), disc)

	ep, err := r.Resolve(context.Background(), &recipe.TargetSpec{
		Name:    "llm",
		Service: "vllm",
		Port:    9100,
	})
	require.NoError(t, err)
	assert.Equal(t, "gpu-node-03:9100", ep)
}

func TestResolveViaDiscoveryWaitsForRecord(t *testing.T) {
	disc := discovery.NewStore(t.TempDir())
	r := newTestResolver(t, newFakeGateway(), disc)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = disc.Write(&discovery.Record{
			Service: "late",
			Node:    "node-9",
			Ports:   []int{8000},
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ep, err := r.Resolve(ctx, &recipe.TargetSpec{Name: "t", Service: "late"})
	require.NoError(t, err)
	assert.Equal(t, "node-9:8000", ep)
}

func TestResolveDiscoveryTimeout(t *testing.T) {
	r := newTestResolver(t, newFakeGateway(), discovery.NewStore(t.TempDir()))

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	_, err := r.Resolve(ctx, &recipe.TargetSpec{Name: "t", Service: "never"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResolutionTimeout)
}

func TestResolveViaJobPlacement(t *testing.T) {
	gw := newFakeGateway()
	gw.setStatuses("42",
		slurm.JobStatus{State: instance.StatusSubmitted},
		slurm.JobStatus{State: instance.StatusRunning, Node: "node-7"},
	)

	r := newTestResolver(t, gw, discovery.NewStore(t.TempDir()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ep, err := r.Resolve(ctx, &recipe.TargetSpec{Name: "t", JobID: "42", Port: 8000})
	require.NoError(t, err)
	assert.Equal(t, "node-7:8000", ep)
}

func TestResolveJobAlreadyTerminal(t *testing.T) {
	gw := newFakeGateway()
	gw.setStatuses("42", slurm.JobStatus{State: instance.StatusFailed})

	r := newTestResolver(t, gw, discovery.NewStore(t.TempDir()))

	_, err := r.Resolve(context.Background(), &recipe.TargetSpec{Name: "t", JobID: "42", Port: 8000})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")
}

func TestResolveNoSource(t *testing.T) {
	r := newTestResolver(t, newFakeGateway(), discovery.NewStore(t.TempDir()))

	_, err := r.Resolve(context.Background(), &recipe.TargetSpec{Name: "bare"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnresolvableTarget)
}

func TestResolveAll(t *testing.T) {
	disc := discovery.NewStore(t.TempDir())
	require.NoError(t, disc.Write(&discovery.Record{
		Service: "svc",
		Node:    "node-1",
		Ports:   []int{8000},
	}))

	r := newTestResolver(t, newFakeGateway(), disc)

	endpoints, err := r.ResolveAll(context.Background(), []recipe.TargetSpec{
		{Name: "a", Endpoint: "host-a:1234"},
		{Name: "b", Service: "svc"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"a": "host-a:1234",
		"b": "node-1:8000",
	}, endpoints)
}
