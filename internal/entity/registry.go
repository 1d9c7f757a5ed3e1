package entity

import (
	"fmt"
	"sync"

	"github.com/jamesprial/nobreak-mcp/internal/nobreak"
)

var _ Registry = (*MemoryRegistry)(nil)

// MemoryRegistry is an in-process Registry that keeps entities in
// registration order. It is safe for concurrent use.
type MemoryRegistry struct {
	mu    sync.RWMutex
	byID  map[string]Entity
	order []string
}

// NewMemoryRegistry returns an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{byID: make(map[string]Entity)}
}

// Add registers entities. It is all-or-nothing: if any unique ID is already
// taken (or repeated in the batch) nothing is added.
func (r *MemoryRegistry) Add(entities ...Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		id := e.UniqueID()
		if _, ok := r.byID[id]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateEntity, id)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateEntity, id)
		}
		seen[id] = struct{}{}
	}
	for _, e := range entities {
		r.byID[e.UniqueID()] = e
		r.order = append(r.order, e.UniqueID())
	}
	return nil
}

// Remove unregisters the given unique IDs. Unknown IDs are ignored.
func (r *MemoryRegistry) Remove(uniqueIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range uniqueIDs {
		delete(r.byID, id)
	}
	kept := r.order[:0]
	for _, id := range r.order {
		if _, ok := r.byID[id]; ok {
			kept = append(kept, id)
		}
	}
	r.order = kept
}

// Get looks up an entity by unique ID.
func (r *MemoryRegistry) Get(uniqueID string) (Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[uniqueID]
	return e, ok
}

// States returns the state of every entity of the given kind, in
// registration order. An empty kind matches everything.
func (r *MemoryRegistry) States(kind Kind) []State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]State, 0, len(r.order))
	for _, id := range r.order {
		e := r.byID[id]
		if kind != "" && e.Kind() != kind {
			continue
		}
		out = append(out, e.State())
	}
	return out
}

// Build returns every sensor and switch for the device, sensors first.
func Build(c nobreak.Client) []Entity {
	out := make([]Entity, 0, len(SensorDescriptions)+2)
	for _, d := range SensorDescriptions {
		out = append(out, NewSensor(d))
	}
	out = append(out, NewBeepSwitch(c), NewTestSwitch(c))
	return out
}
