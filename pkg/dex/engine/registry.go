package engine

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"spotdex/pkg/dex/book"
	"spotdex/pkg/dex/market"
)

// orderRegistry is the global id -> order index plus the per-account list
// of active order ids.
//
// It is arena-style by design: the pair key is copied into the entry at
// registration so lookups never have to read mutable order fields, and the
// book stays the sole owner of live matching state. Terminal orders keep
// their entry for audit (a second cancel must fail "already terminal", not
// "not found") but leave the active list the moment they go terminal.
type orderRegistry struct {
	mu        sync.RWMutex
	orders    map[uint64]*registryEntry
	byAccount map[common.Address][]uint64 // active ids, insertion order
}

type registryEntry struct {
	order *book.Order
	pair  market.PairKey
}

func newOrderRegistry() *orderRegistry {
	return &orderRegistry{
		orders:    make(map[uint64]*registryEntry),
		byAccount: make(map[common.Address][]uint64),
	}
}

// register indexes a freshly accepted order as active.
func (r *orderRegistry) register(o *book.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = &registryEntry{order: o, pair: o.Pair}
	r.byAccount[o.Account] = append(r.byAccount[o.Account], o.ID)
}

// retire drops the order from its account's active list. The id entry
// stays behind for status queries.
func (r *orderRegistry) retire(o *book.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.byAccount[o.Account]
	for i, id := range ids {
		if id == o.ID {
			r.byAccount[o.Account] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(r.byAccount[o.Account]) == 0 {
		delete(r.byAccount, o.Account)
	}
}

// lookup returns the pair an order was submitted to.
func (r *orderRegistry) lookup(id uint64) (market.PairKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.orders[id]
	if !ok {
		return market.PairKey{}, false
	}
	return e.pair, true
}

// get returns the indexed order record. Callers must hold the order's
// pair domain lock before reading mutable fields.
func (r *orderRegistry) get(id uint64) (*book.Order, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.orders[id]
	if !ok {
		return nil, false
	}
	return e.order, true
}

// activeOrdersOf returns the account's open order ids in insertion order.
func (r *orderRegistry) activeOrdersOf(acct common.Address) []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]uint64(nil), r.byAccount[acct]...)
}
