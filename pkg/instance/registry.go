package instance

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/hpckit/slurmbench/pkg/recipe"
)

// ErrNotFound indicates no instance exists for the requested id.
var ErrNotFound = errors.New("instance not found")

// RecipeResolver loads a recipe by name. Satisfied by *recipe.Store.
type RecipeResolver interface {
	Load(name string) (*recipe.Recipe, error)
}

// Registry owns the in-memory instance table and its persistence protocol.
//
// Public operations are synchronous; the internal mutex only protects the
// table against concurrent reads from the status HTTP server within the same
// process. Every mutation that changes status or endpoints is followed by a
// whole-file persist.
type Registry struct {
	mu        sync.RWMutex
	store     *Store
	instances map[string]*Instance
	order     []string
	logger    *zap.Logger
}

// NewRegistry creates an empty Registry persisting through store.
func NewRegistry(store *Store, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		store:     store,
		instances: make(map[string]*Instance),
		logger:    logger,
	}
}

// Reload reads durable storage and rebuilds the table.
//
// Each persisted instance is re-associated with its recipe by name through
// the resolver; entries whose recipe can no longer be loaded are skipped with
// a warning rather than failing startup.
func (r *Registry) Reload(recipes RecipeResolver) error {
	persisted, err := r.store.Read()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.instances = make(map[string]*Instance, len(persisted))
	r.order = r.order[:0]
	for _, inst := range persisted {
		if inst == nil || inst.ID == "" {
			continue
		}
		if recipes != nil {
			if _, err := recipes.Load(inst.RecipeName); err != nil {
				r.logger.Warn("skipping instance with unloadable recipe",
					zap.String("instance_id", inst.ID),
					zap.String("recipe", inst.RecipeName),
					zap.Error(err))
				continue
			}
		}
		r.instances[inst.ID] = inst
		r.order = append(r.order, inst.ID)
	}
	return nil
}

// Create adds a new instance and persists the table.
func (r *Registry) Create(inst *Instance) error {
	if inst == nil {
		return fmt.Errorf("cannot register nil instance")
	}
	if inst.ID == "" {
		return fmt.Errorf("instance has empty id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.instances[inst.ID]; exists {
		return fmt.Errorf("instance %s already registered", inst.ID)
	}
	r.instances[inst.ID] = inst
	r.order = append(r.order, inst.ID)
	return r.persistLocked()
}

// Get returns an instance by id, or ErrNotFound.
//
// Short id prefixes are accepted when unambiguous, matching CLI usage.
func (r *Registry) Get(id string) (*Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if inst, ok := r.instances[id]; ok {
		return inst, nil
	}

	var match *Instance
	for _, inst := range r.instances {
		if len(id) >= 8 && len(inst.ID) > len(id) && inst.ID[:len(id)] == id {
			if match != nil {
				return nil, fmt.Errorf("ambiguous instance id prefix: %s", id)
			}
			match = inst
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return match, nil
}

// Update transitions an instance's status and persists when it changed.
//
// An unknown id is reported as ErrNotFound, never a crash.
func (r *Registry) Update(id string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.instances[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !inst.Transition(status) {
		return nil
	}
	return r.persistLocked()
}

// Persist rewrites durable storage from the current table. Callers that
// mutate an instance's endpoints, components, or metadata directly must call
// this afterwards.
func (r *Registry) Persist() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.persistLocked()
}

// List returns all instances in creation order.
func (r *Registry) List() []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Instance, 0, len(r.order))
	for _, id := range r.order {
		if inst, ok := r.instances[id]; ok {
			out = append(out, inst)
		}
	}
	return out
}

// ListByStatus returns instances currently in the given status.
func (r *Registry) ListByStatus(status Status) []*Instance {
	var out []*Instance
	for _, inst := range r.List() {
		if inst.Status == status {
			out = append(out, inst)
		}
	}
	return out
}

// Prune removes terminal instances from the table and persists.
// Returns the ids removed.
func (r *Registry) Prune() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	kept := r.order[:0]
	for _, id := range r.order {
		inst, ok := r.instances[id]
		if !ok {
			continue
		}
		if inst.Status.Terminal() {
			delete(r.instances, id)
			removed = append(removed, id)
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept

	if len(removed) == 0 {
		return nil, nil
	}
	sort.Strings(removed)
	return removed, r.persistLocked()
}

func (r *Registry) persistLocked() error {
	out := make([]*Instance, 0, len(r.order))
	for _, id := range r.order {
		if inst, ok := r.instances[id]; ok {
			out = append(out, inst)
		}
	}
	return r.store.Write(out)
}
