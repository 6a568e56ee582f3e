package msgstore

import (
	"sort"
	"sync"
)

// Registry holds named stores created on demand with a shared Config.
type Registry struct {
	mu     sync.RWMutex
	cfg    Config
	stores map[string]*Store
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:    cfg,
		stores: make(map[string]*Store),
	}
}

// Get returns the store registered under key, if any.
func (r *Registry) Get(key string) (*Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	store, ok := r.stores[key]
	return store, ok
}

// GetOrCreate returns the store under key, creating it if needed.
func (r *Registry) GetOrCreate(key string) *Store {
	if store, ok := r.Get(key); ok {
		return store
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if store, ok := r.stores[key]; ok {
		return store
	}
	store := New(r.cfg)
	r.stores[key] = store
	return store
}

// Remove forgets the store under key. Existing subscribers are unaffected.
func (r *Registry) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.stores, key)
}

// Keys returns the registered keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.stores))
	for key := range r.stores {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Store keys for the entity subscription surfaces.
const ProjectsKey = "projects"

// ProjectTasksKey is the store carrying task patches for one project.
func ProjectTasksKey(projectID string) string {
	return "project:" + projectID + ":tasks"
}

// TaskExecutionsKey is the store carrying execution process patches for
// one task.
func TaskExecutionsKey(taskID string) string {
	return "task:" + taskID + ":executions"
}

// ExecutionLogKey is the per-execution log store.
func ExecutionLogKey(executionID string) string {
	return "execution:" + executionID
}
