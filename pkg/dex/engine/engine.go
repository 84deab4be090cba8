// Package engine implements the matching engine: order validation, fund
// locking, price-time priority matching, settlement and cancellation.
//
// Concurrency model: every trading pair owns one consistency domain (its
// book plus the matching state of its resting orders), guarded by a
// per-pair RWMutex. Mutating operations take the write side, so at most
// one placement/cancellation runs per pair at a time while distinct pairs
// match concurrently. Queries take the read side and therefore always see
// the result of a completed operation. The ledger has its own table lock,
// acquired strictly inside a domain critical section.
package engine

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"spotdex/pkg/dex/book"
	"spotdex/pkg/dex/ledger"
	"spotdex/pkg/dex/market"
	"spotdex/pkg/metrics"
	"spotdex/pkg/util"
)

// Engine drives all order flow for every registered pair.
type Engine struct {
	log   *zap.SugaredLogger
	led   *ledger.Ledger
	pairs *market.Registry
	reg   *orderRegistry
	store Store // nil means in-memory only
	clock util.Clock

	mu      sync.RWMutex
	domains map[market.PairKey]*domain

	fillMu  sync.RWMutex
	fillLog []book.Fill

	nextOrderID atomic.Uint64
	nextSeq     atomic.Uint64
}

// domain is one pair's exclusive matching scope.
type domain struct {
	mu   sync.RWMutex
	pair *market.Pair
	book *book.Book
}

// New builds an engine over the given ledger. store may be nil for a
// purely in-memory engine (tests, dry runs).
func New(led *ledger.Ledger, log *zap.Logger, store Store, clock util.Clock) *Engine {
	if clock == nil {
		clock = util.RealClock{}
	}
	return &Engine{
		log:     log.Sugar(),
		led:     led,
		pairs:   market.NewRegistry(),
		reg:     newOrderRegistry(),
		store:   store,
		clock:   clock,
		domains: make(map[market.PairKey]*domain),
	}
}

// Pairs exposes the trading pair registry.
func (e *Engine) Pairs() *market.Registry {
	return e.pairs
}

func (e *Engine) domain(k market.PairKey) (*domain, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.domains[k]
	return d, ok
}

// AddPair registers a new market and opens its matching domain. The
// caller's authorization is verified by the surrounding system.
func (e *Engine) AddPair(base, quote common.Address, minOrderSize, pricePrecision uint64) (*market.Pair, error) {
	p, err := market.NewPair(base, quote, minOrderSize, pricePrecision, e.clock.Now().UnixMilli())
	if err != nil {
		return nil, err
	}
	if err := e.pairs.Add(p); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.domains[p.Key()] = &domain{pair: p, book: book.New()}
	e.mu.Unlock()

	if err := e.commit(&Mutation{Pairs: []*market.Pair{p}}); err != nil {
		return nil, err
	}

	metrics.PairsRegistered.Inc()
	e.log.Infow("pair_added",
		"pair", p.Key().Symbol(),
		"min_order_size", minOrderSize,
		"price_precision", pricePrecision,
	)
	return p, nil
}

// SetPairActive toggles trading on a pair. Taken under the pair's domain
// lock so in-flight matches never observe the flip halfway.
func (e *Engine) SetPairActive(k market.PairKey, active bool) error {
	d, ok := e.domain(k)
	if !ok {
		return fmt.Errorf("%s: %w", k.Symbol(), market.ErrPairNotFound)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pair.Active = active
	if err := e.commit(&Mutation{Pairs: []*market.Pair{d.pair}}); err != nil {
		return err
	}
	e.log.Infow("pair_active_changed", "pair", k.Symbol(), "active", active)
	return nil
}

// Cancel removes a resting order, returning exactly its remaining locked
// funds to the owner's available balance.
func (e *Engine) Cancel(id uint64, caller common.Address) error {
	k, ok := e.reg.lookup(id)
	if !ok {
		return fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	d, ok := e.domain(k)
	if !ok {
		return fmt.Errorf("order %d: %w", id, ErrNotFound)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	o, ok := e.reg.get(id)
	if !ok {
		return fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	if o.Account != caller {
		return fmt.Errorf("order %d: %w", id, ErrNotOwner)
	}
	if o.Status.Terminal() {
		return fmt.Errorf("order %d (%s): %w", id, o.Status, ErrAlreadyTerminal)
	}

	d.book.Remove(id)

	refundToken := d.pair.Base
	if o.Side == book.Buy {
		refundToken = d.pair.Quote
	}
	if err := e.led.Unlock(o.Account, refundToken, o.LockedRemaining); err != nil {
		return fmt.Errorf("cancel order %d: %w", id, err)
	}
	o.LockedRemaining = 0
	o.Status = book.Cancelled
	e.reg.retire(o)

	if err := e.commit(&Mutation{
		Orders:      []*book.Order{o},
		Balances:    e.balancesOf(ledger.Key{Account: o.Account, Token: refundToken}),
		NextOrderID: e.nextOrderID.Load(),
		NextSeq:     e.nextSeq.Load(),
	}); err != nil {
		return err
	}

	metrics.OrdersCancelled.Inc()
	metrics.OpenOrders.Dec()
	e.log.Infow("order_cancelled",
		"id", id,
		"pair", k.Symbol(),
		"account", caller.Hex(),
		"unfilled", o.AmountRemaining,
	)
	return nil
}

// Depth returns the pair's aggregated book snapshot.
func (e *Engine) Depth(k market.PairKey) (book.Depth, error) {
	d, ok := e.domain(k)
	if !ok {
		return book.Depth{}, fmt.Errorf("%s: %w", k.Symbol(), market.ErrPairNotFound)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.pair.Active {
		return book.Depth{}, fmt.Errorf("%s inactive: %w", k.Symbol(), ErrInvalidOrder)
	}
	return d.book.Snapshot(), nil
}

// OrdersOf returns the account's active order ids in submission order.
func (e *Engine) OrdersOf(acct common.Address) []uint64 {
	return e.reg.activeOrdersOf(acct)
}

// GetOrder returns a copy of an order's current state.
func (e *Engine) GetOrder(id uint64) (book.Order, bool) {
	k, ok := e.reg.lookup(id)
	if !ok {
		return book.Order{}, false
	}
	d, ok := e.domain(k)
	if !ok {
		return book.Order{}, false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	o, ok := e.reg.get(id)
	if !ok {
		return book.Order{}, false
	}
	return *o, true
}

// Fills returns the pair's trade history, oldest first.
func (e *Engine) Fills(k market.PairKey) []book.Fill {
	e.fillMu.RLock()
	defer e.fillMu.RUnlock()

	var out []book.Fill
	for _, f := range e.fillLog {
		if f.Pair == k {
			out = append(out, f)
		}
	}
	return out
}

func (e *Engine) recordFills(fs []book.Fill) {
	if len(fs) == 0 {
		return
	}
	e.fillMu.Lock()
	e.fillLog = append(e.fillLog, fs...)
	e.fillMu.Unlock()
}

// balancesOf reads the post-operation state of the touched ledger buckets.
func (e *Engine) balancesOf(keys ...ledger.Key) []BalanceUpdate {
	out := make([]BalanceUpdate, 0, len(keys))
	seen := make(map[ledger.Key]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, BalanceUpdate{
			Account: k.Account,
			Token:   k.Token,
			Balance: e.led.Balance(k.Account, k.Token),
		})
	}
	return out
}

func (e *Engine) commit(m *Mutation) error {
	if e.store == nil {
		return nil
	}
	if err := e.store.Commit(m); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	return nil
}

// ---- Restore path (used by storage bootstrap; not thread-safe, call
// before serving traffic) ----

// LoadPair reinstalls a persisted pair and its matching domain.
func (e *Engine) LoadPair(p *market.Pair) error {
	if err := e.pairs.Add(p); err != nil {
		return err
	}
	e.mu.Lock()
	e.domains[p.Key()] = &domain{pair: p, book: book.New()}
	e.mu.Unlock()
	return nil
}

// LoadOrder reinstalls a persisted order. Callers must feed orders in
// ascending sequence so FIFO priority within a level is rebuilt exactly.
// Terminal orders are indexed for audit only.
func (e *Engine) LoadOrder(o *book.Order) error {
	d, ok := e.domain(o.Pair)
	if !ok {
		return fmt.Errorf("%s: %w", o.Pair.Symbol(), market.ErrPairNotFound)
	}
	e.reg.register(o)
	if o.Status.Terminal() {
		e.reg.retire(o)
		return nil
	}
	d.book.Insert(o)
	metrics.OpenOrders.Inc()
	return nil
}

// LoadFills reinstalls the persisted trade history.
func (e *Engine) LoadFills(fs []book.Fill) {
	e.fillMu.Lock()
	e.fillLog = append(e.fillLog, fs...)
	e.fillMu.Unlock()
}

// SetCounters restores the id/sequence counters after a restart.
func (e *Engine) SetCounters(nextOrderID, nextSeq uint64) {
	e.nextOrderID.Store(nextOrderID)
	e.nextSeq.Store(nextSeq)
}
