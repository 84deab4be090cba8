package market

import (
	"fmt"
	"sync"
)

// Registry manages the set of authorized trading pairs in a thread-safe
// manner. Pair creation is restricted to an authorized caller; verifying
// that authorization is the surrounding system's job, not the registry's.
//
// The registry hands out shared *Pair records. The Active flag on a
// registered pair is mutated only by the matching engine under the owning
// pair's domain lock; read it through the engine rather than from a
// retained pointer.
type Registry struct {
	mu    sync.RWMutex
	pairs map[PairKey]*Pair
}

func NewRegistry() *Registry {
	return &Registry{pairs: make(map[PairKey]*Pair)}
}

// Add registers a new pair. Fails with ErrPairExists when the (base, quote)
// key is already taken.
func (r *Registry) Add(p *Pair) error {
	if p == nil {
		return fmt.Errorf("nil pair: %w", ErrInvalidParams)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	k := p.Key()
	if _, exists := r.pairs[k]; exists {
		return fmt.Errorf("%s: %w", k.Symbol(), ErrPairExists)
	}
	r.pairs[k] = p
	return nil
}

// Get returns the pair for key, or (nil, false).
func (r *Registry) Get(k PairKey) (*Pair, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pairs[k]
	return p, ok
}

// List returns a copy of all registered pairs.
func (r *Registry) List() []*Pair {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Pair, 0, len(r.pairs))
	for _, p := range r.pairs {
		out = append(out, p)
	}
	return out
}
