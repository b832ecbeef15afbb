package media

import (
	"sort"

	"github.com/goodtune/beacon/internal/metrics"
)

// Registry is the owned map of tracked entities for one adapter, keyed by a
// stable entity key.
type Registry struct {
	provider string
	entities map[string]*Entity
}

// NewRegistry creates an empty registry.
func NewRegistry(provider string) *Registry {
	return &Registry{
		provider: provider,
		entities: make(map[string]*Entity),
	}
}

// Lookup returns the entity registered under key.
func (r *Registry) Lookup(key string) (*Entity, bool) {
	e, ok := r.entities[key]
	return e, ok
}

// Insert registers e. It reports false, leaving the registry untouched, if
// the key is already present.
func (r *Registry) Insert(e *Entity) bool {
	if _, exists := r.entities[e.key]; exists {
		return false
	}
	r.entities[e.key] = e
	metrics.MediaEntitiesActive.WithLabelValues(r.provider).Inc()
	return true
}

// Remove closes and forgets the entity under key.
func (r *Registry) Remove(key string) bool {
	e, ok := r.entities[key]
	if !ok {
		return false
	}
	e.Close()
	delete(r.entities, key)
	metrics.MediaEntitiesActive.WithLabelValues(r.provider).Dec()
	return true
}

// Len returns the number of tracked entities.
func (r *Registry) Len() int {
	return len(r.entities)
}

// Keys returns the tracked keys in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.entities))
	for k := range r.entities {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Close removes every entity.
func (r *Registry) Close() {
	for _, key := range r.Keys() {
		r.Remove(key)
	}
}
