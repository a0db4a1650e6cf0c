// Package registry tracks the live Matcher for every loaded puzzle. Matchers
// hold native feature data, so the registry owns their lifecycle: replacing
// or removing an entry closes the matcher it displaces.
package registry

import (
	"sync"

	"github.com/puzzleworks/piecefinder/pkg/match"
)

// Registry maps puzzle IDs to their ready-to-match Matcher.
type Registry struct {
	// mu is a read write sync mutex for locking the mapping of matchers
	mu sync.RWMutex

	// matchers is the in memory map of matchers keyed by puzzle ID
	matchers map[string]*match.Matcher
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		matchers: make(map[string]*match.Matcher),
	}
}

// Get retrieves the matcher for a puzzle ID.
func (r *Registry) Get(id string) (*match.Matcher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.matchers[id]
	if !ok {
		return nil, NotFoundError{ID: id}
	}

	return m, nil
}

// Has checks whether a matcher exists for a puzzle ID.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.matchers[id]
	return ok
}

// Put registers a matcher under a puzzle ID, closing any matcher it
// replaces.
func (r *Registry) Put(id string, m *match.Matcher) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.matchers[id]; ok && old != m {
		old.Close()
	}

	r.matchers[id] = m
}

// Delete removes and closes the matcher for a puzzle ID. Removing an absent
// ID is a no-op.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.matchers[id]; ok {
		m.Close()
		delete(r.matchers, id)
	}
}

// Len returns the number of registered matchers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.matchers)
}

// Close closes every registered matcher and empties the registry.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, m := range r.matchers {
		m.Close()
		delete(r.matchers, id)
	}
}
