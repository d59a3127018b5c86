package instance

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpckit/slurmbench/pkg/recipe"
)

// fakeResolver resolves a fixed set of recipe names.
type fakeResolver struct {
	known map[string]*recipe.Recipe
}

func (f *fakeResolver) Load(name string) (*recipe.Recipe, error) {
	if r, ok := f.known[name]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("%w: %s", recipe.ErrNotFound, name)
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	store := NewStore(filepath.Join(t.TempDir(), "instances.json"))
	return NewRegistry(store, nil)
}

func TestTransition_MonotonicForward(t *testing.T) {
	inst := New("svc")
	require.Equal(t, StatusSubmitted, inst.Status)

	assert.True(t, inst.Transition(StatusStarting))
	assert.True(t, inst.Transition(StatusRunning))
	assert.True(t, inst.Transition(StatusCompleted))
	assert.NotNil(t, inst.CompletedAt)
}

func TestTransition_BackwardIgnored(t *testing.T) {
	inst := New("svc")
	inst.Transition(StatusStarting)

	// Scheduler still reporting pending must not move the instance back.
	assert.False(t, inst.Transition(StatusSubmitted))
	assert.Equal(t, StatusStarting, inst.Status)
}

func TestTransition_TerminalIsFinal(t *testing.T) {
	inst := New("svc")
	inst.Transition(StatusStarting)
	inst.Transition(StatusFailed)
	stamped := inst.CompletedAt
	require.NotNil(t, stamped)

	assert.False(t, inst.Transition(StatusRunning))
	assert.False(t, inst.Transition(StatusCompleted))
	assert.Equal(t, StatusFailed, inst.Status)
	assert.Equal(t, stamped, inst.CompletedAt)
}

func TestTransition_SkipAheadAllowed(t *testing.T) {
	inst := New("svc")
	// Submission failure goes straight to failed.
	assert.True(t, inst.Transition(StatusFailed))
	assert.True(t, inst.Status.Terminal())
}

func TestRegistry_CreateGetUpdate(t *testing.T) {
	r := newTestRegistry(t)

	inst := New("svc")
	require.NoError(t, r.Create(inst))

	got, err := r.Get(inst.ID)
	require.NoError(t, err)
	assert.Same(t, inst, got)

	require.NoError(t, r.Update(inst.ID, StatusStarting))
	assert.Equal(t, StatusStarting, inst.Status)
}

func TestRegistry_GetByShortPrefix(t *testing.T) {
	r := newTestRegistry(t)
	inst := New("svc")
	require.NoError(t, r.Create(inst))

	got, err := r.Get(inst.ShortID())
	require.NoError(t, err)
	assert.Equal(t, inst.ID, got.ID)
}

func TestRegistry_UpdateUnknownID(t *testing.T) {
	r := newTestRegistry(t)
	err := r.Update("00000000-0000-0000-0000-000000000000", StatusRunning)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_ListByStatus(t *testing.T) {
	r := newTestRegistry(t)

	a := New("svc-a")
	b := New("svc-b")
	require.NoError(t, r.Create(a))
	require.NoError(t, r.Create(b))
	require.NoError(t, r.Update(b.ID, StatusStarting))

	assert.Len(t, r.ListByStatus(StatusSubmitted), 1)
	assert.Len(t, r.ListByStatus(StatusStarting), 1)
	assert.Len(t, r.List(), 2)
}

func TestRegistry_ReloadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instances.json")
	store := NewStore(path)
	r := NewRegistry(store, nil)

	inst := New("svc")
	inst.JobID = "100"
	inst.Endpoints["svc"] = "node001:8000"
	require.NoError(t, r.Create(inst))
	require.NoError(t, r.Update(inst.ID, StatusRunning))

	resolver := &fakeResolver{known: map[string]*recipe.Recipe{"svc": {Name: "svc"}}}

	reloaded := NewRegistry(NewStore(path), nil)
	require.NoError(t, reloaded.Reload(resolver))

	got, err := reloaded.Get(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
	assert.Equal(t, "100", got.JobID)
	assert.Equal(t, "node001:8000", got.Endpoints["svc"])
}

func TestRegistry_ReloadSkipsOrphanedRecipes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instances.json")
	r := NewRegistry(NewStore(path), nil)

	kept := New("svc")
	orphan := New("deleted-recipe")
	require.NoError(t, r.Create(kept))
	require.NoError(t, r.Create(orphan))

	resolver := &fakeResolver{known: map[string]*recipe.Recipe{"svc": {Name: "svc"}}}

	reloaded := NewRegistry(NewStore(path), nil)
	require.NoError(t, reloaded.Reload(resolver))

	_, err := reloaded.Get(kept.ID)
	assert.NoError(t, err)
	_, err = reloaded.Get(orphan.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_Prune(t *testing.T) {
	r := newTestRegistry(t)

	live := New("svc-live")
	done := New("svc-done")
	require.NoError(t, r.Create(live))
	require.NoError(t, r.Create(done))
	require.NoError(t, r.Update(done.ID, StatusCompleted))

	removed, err := r.Prune()
	require.NoError(t, err)
	assert.Equal(t, []string{done.ID}, removed)
	assert.Len(t, r.List(), 1)
}

func TestInstance_LiveHandles(t *testing.T) {
	inst := New("mon-1")
	inst.JobID = "10"
	inst.AddComponent("prometheus", "11", "node002:9090", StatusRunning)
	inst.AddComponent("done", "12", "", StatusCompleted)

	handles := inst.LiveHandles()
	assert.Equal(t, "10", handles[""])
	assert.Equal(t, "11", handles["prometheus"])
	_, ok := handles["done"]
	assert.False(t, ok)
}
