package agent

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds agent descriptors by role.
type Registry struct {
	mu    sync.RWMutex
	descs map[Role]Descriptor
	order []Role
}

// NewRegistry creates a Registry from descs. Duplicate or invalid descriptors
// are rejected.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	r := &Registry{descs: make(map[Role]Descriptor, len(descs))}
	for _, d := range descs {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds d.
func (r *Registry) Register(d Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.descs[d.ID]; dup {
		return fmt.Errorf("agent: duplicate agent %q", d.ID)
	}
	r.descs[d.ID] = d
	r.order = append(r.order, d.ID)
	return nil
}

// Lookup returns the descriptor for role.
func (r *Registry) Lookup(role Role) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descs[role]
	return d, ok
}

// All returns descriptors in registration order.
func (r *Registry) All() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.descs[id])
	}
	return out
}

// ByWave groups descriptors by wave number, preserving registration order
// within a wave. The returned wave numbers are ascending.
func (r *Registry) ByWave() ([]int, map[int][]Descriptor) {
	groups := make(map[int][]Descriptor)
	for _, d := range r.All() {
		groups[d.Wave] = append(groups[d.Wave], d)
	}
	waves := make([]int, 0, len(groups))
	for w := range groups {
		waves = append(waves, w)
	}
	sort.Ints(waves)
	return waves, groups
}
