package market

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the listed instruments. Safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	instruments map[string]*Instrument
	order       []string
}

func NewRegistry() *Registry {
	return &Registry{
		instruments: make(map[string]*Instrument),
	}
}

// Register lists an instrument. Ids must be unique.
func (r *Registry) Register(in *Instrument) error {
	if in == nil {
		return fmt.Errorf("cannot register nil instrument")
	}
	if err := in.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.instruments[in.ID]; exists {
		return fmt.Errorf("instrument %s already registered", in.ID)
	}
	r.instruments[in.ID] = in
	r.order = append(r.order, in.ID)
	return nil
}

func (r *Registry) Get(id string) (*Instrument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	in, exists := r.instruments[id]
	if !exists {
		return nil, fmt.Errorf("instrument %s not found", id)
	}
	return in, nil
}

// List returns instruments in registration order.
func (r *Registry) List() []*Instrument {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Instrument, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.instruments[id])
	}
	return out
}

// Categories returns the distinct category ids, sorted.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, in := range r.instruments {
		if !seen[in.CategoryID] {
			seen[in.CategoryID] = true
			out = append(out, in.CategoryID)
		}
	}
	sort.Strings(out)
	return out
}

// UpdateStatus halts or resumes trading of an instrument.
func (r *Registry) UpdateStatus(id string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	in, exists := r.instruments[id]
	if !exists {
		return fmt.Errorf("instrument %s not found", id)
	}
	in.Status = status
	return nil
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instruments)
}

// Exists reports whether id is listed and active. It satisfies
// orderbook.InstrumentCatalog.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	in, ok := r.instruments[id]
	return ok && in.Status == Active
}
