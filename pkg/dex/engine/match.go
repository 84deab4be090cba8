package engine

import (
	"fmt"
	"math/bits"

	"github.com/ethereum/go-ethereum/common"

	"spotdex/pkg/dex/book"
	"spotdex/pkg/dex/ledger"
	"spotdex/pkg/dex/market"
	"spotdex/pkg/metrics"
)

// PlaceResult is the outcome of an accepted order submission.
type PlaceResult struct {
	OrderID uint64
	Status  book.Status
	Fills   []book.Fill
}

// PlaceLimit validates, funds and matches a limit order; any remainder
// rests in the book.
func (e *Engine) PlaceLimit(acct common.Address, k market.PairKey, side book.Side, amount, price uint64) (*PlaceResult, error) {
	d, ok := e.domain(k)
	if !ok {
		return nil, fmt.Errorf("%s: %w", k.Symbol(), market.ErrPairNotFound)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	pair := d.pair
	if err := e.validate(pair, amount); err != nil {
		return nil, err
	}
	if !pair.ValidPrice(price) {
		return nil, fmt.Errorf("price %d not a positive multiple of %d: %w", price, pair.PricePrecision, ErrInvalidOrder)
	}

	// Reserve funds up front: quote at the order's own limit price for a
	// buy, base for a sell. A failed lock aborts before any book mutation.
	var lockAmt uint64
	lockToken := pair.Base
	if side == book.Buy {
		var err error
		lockAmt, err = mulU64(price, amount)
		if err != nil {
			return nil, fmt.Errorf("lock %d x %d: %w", price, amount, err)
		}
		lockToken = pair.Quote
	} else {
		lockAmt = amount
	}
	if err := e.led.Lock(acct, lockToken, lockAmt); err != nil {
		return nil, err
	}

	o := &book.Order{
		ID:              e.nextOrderID.Add(1),
		Account:         acct,
		Pair:            k,
		Side:            side,
		Kind:            book.Limit,
		Price:           price,
		AmountTotal:     amount,
		AmountRemaining: amount,
		LockedRemaining: lockAmt,
		Seq:             e.nextSeq.Add(1),
		CreatedAt:       e.clock.Now().UnixMilli(),
		Status:          book.Open,
	}
	e.reg.register(o)

	fills, makers, err := e.match(d, o)
	if err != nil {
		return nil, e.abortPlace(d, o, lockToken, fills, makers, err)
	}

	switch {
	case o.AmountRemaining == 0:
		o.Status = book.Filled
		e.reg.retire(o)
	case len(fills) > 0:
		o.Status = book.PartiallyFilled
		d.book.Insert(o)
		metrics.OpenOrders.Inc()
	default:
		d.book.Insert(o)
		metrics.OpenOrders.Inc()
	}

	if err := e.finish(d, o, fills, makers); err != nil {
		return nil, err
	}
	return &PlaceResult{OrderID: o.ID, Status: o.Status, Fills: fills}, nil
}

// PlaceMarket validates, funds and matches a market order. amount is
// always in base units; a buy additionally carries maxSpend, the quote
// budget to lock while sweeping the asks. Market orders never rest: any
// remainder is released and the order goes terminal with its partial
// amount.
func (e *Engine) PlaceMarket(acct common.Address, k market.PairKey, side book.Side, amount, maxSpend uint64) (*PlaceResult, error) {
	d, ok := e.domain(k)
	if !ok {
		return nil, fmt.Errorf("%s: %w", k.Symbol(), market.ErrPairNotFound)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	pair := d.pair
	if err := e.validate(pair, amount); err != nil {
		return nil, err
	}

	var lockAmt uint64
	lockToken := pair.Base
	if side == book.Buy {
		if maxSpend == 0 {
			return nil, fmt.Errorf("market buy needs a max spend: %w", ErrInvalidOrder)
		}
		lockAmt = maxSpend
		lockToken = pair.Quote
	} else {
		lockAmt = amount
	}
	if err := e.led.Lock(acct, lockToken, lockAmt); err != nil {
		return nil, err
	}

	o := &book.Order{
		ID:              e.nextOrderID.Add(1),
		Account:         acct,
		Pair:            k,
		Side:            side,
		Kind:            book.Market,
		AmountTotal:     amount,
		AmountRemaining: amount,
		LockedRemaining: lockAmt,
		Seq:             e.nextSeq.Add(1),
		CreatedAt:       e.clock.Now().UnixMilli(),
		Status:          book.Open,
	}
	e.reg.register(o)

	fills, makers, err := e.match(d, o)
	if err != nil {
		return nil, e.abortPlace(d, o, lockToken, fills, makers, err)
	}

	// Release whatever the sweep did not consume.
	if o.LockedRemaining > 0 {
		if err := e.led.Unlock(acct, lockToken, o.LockedRemaining); err != nil {
			return nil, fmt.Errorf("release market remainder: %w", err)
		}
		o.LockedRemaining = 0
	}
	o.Status = book.Filled
	e.reg.retire(o)

	if err := e.finish(d, o, fills, makers); err != nil {
		return nil, err
	}
	return &PlaceResult{OrderID: o.ID, Status: o.Status, Fills: fills}, nil
}

func (e *Engine) validate(pair *market.Pair, amount uint64) error {
	if !pair.Active {
		return fmt.Errorf("%s inactive: %w", pair.Key().Symbol(), ErrInvalidOrder)
	}
	if amount < pair.MinOrderSize {
		return fmt.Errorf("amount %d below minimum %d: %w", amount, pair.MinOrderSize, ErrInvalidOrder)
	}
	return nil
}

// match sweeps the opposite side of the book while the taker still crosses.
// Fills always execute at the maker's resting price; a limit taker buying
// below its own limit gets the difference unlocked back immediately, so a
// resting buy's locked quote is always exactly price x remaining.
func (e *Engine) match(d *domain, taker *book.Order) ([]book.Fill, []*book.Order, error) {
	var (
		fills  []book.Fill
		makers []*book.Order
		pair   = d.pair
	)

	for taker.AmountRemaining > 0 {
		maker, ok := d.book.PeekBest(taker.Side.Opposite())
		if !ok {
			break
		}
		if taker.Kind == book.Limit {
			if taker.Side == book.Buy && maker.Price > taker.Price {
				break
			}
			if taker.Side == book.Sell && maker.Price < taker.Price {
				break
			}
		}

		qty := minU64(taker.AmountRemaining, maker.AmountRemaining)
		if taker.Side == book.Buy && taker.Kind == book.Market {
			// A market buy is additionally bounded by its unspent budget.
			afford := taker.LockedRemaining / maker.Price
			if afford == 0 {
				break
			}
			if afford < qty {
				qty = afford
			}
		}

		// Bounded by a lock that was overflow-checked at placement; the
		// checked multiply stays as a guard against bookkeeping bugs.
		cost, err := mulU64(qty, maker.Price)
		if err != nil {
			return fills, makers, fmt.Errorf("fill %d x %d: %w", qty, maker.Price, err)
		}

		if err := e.settle(pair, taker, maker, qty, cost); err != nil {
			return fills, makers, err
		}

		taker.AmountRemaining -= qty
		maker.AmountRemaining -= qty

		fills = append(fills, book.Fill{
			MakerOrderID: maker.ID,
			TakerOrderID: taker.ID,
			Pair:         pair.Key(),
			Price:        maker.Price,
			Amount:       qty,
			Seq:          e.nextSeq.Add(1),
			Time:         e.clock.Now().UnixMilli(),
		})
		makers = append(makers, maker)

		if maker.AmountRemaining == 0 {
			maker.Status = book.Filled
			d.book.DropBest(maker.Side)
			e.reg.retire(maker)
			metrics.OpenOrders.Dec()
		} else if maker.Status == book.Open {
			maker.Status = book.PartiallyFilled
		}
	}

	if len(fills) > 0 && taker.AmountRemaining > 0 && taker.Status == book.Open {
		taker.Status = book.PartiallyFilled
	}
	return fills, makers, nil
}

// settle moves both legs of one fill through the ledger as one atomic
// step: cost quote from the buyer's locked bucket to the seller, qty base
// from the seller's locked bucket to the buyer. A limit taker buying
// under its own limit gets the price improvement unlocked back in the
// same step, so a resting buy's locked quote is always exactly
// price x remaining. A failed settle leaves the ledger untouched.
func (e *Engine) settle(pair *market.Pair, taker, maker *book.Order, qty, cost uint64) error {
	buyer, seller := taker, maker
	if taker.Side == book.Sell {
		buyer, seller = maker, taker
	}

	// The maker side never needs a refund: a resting buy only ever trades
	// at its own price. Bounded by the taker's checked lock.
	var refund uint64
	if buyer == taker && taker.Kind == book.Limit && taker.Price > maker.Price {
		refund = (taker.Price - maker.Price) * qty
	}

	if err := e.led.SettleTrade(buyer.Account, seller.Account, pair.Base, pair.Quote, qty, cost, refund); err != nil {
		return err
	}
	buyer.LockedRemaining -= cost
	seller.LockedRemaining -= qty
	if refund > 0 {
		taker.LockedRemaining -= refund
	}
	return nil
}

// abortPlace unwinds a placement whose sweep failed partway. Fills that
// already settled stand — their funds have moved and both sides saw a
// complete trade — so they are recorded and persisted; the taker's
// remaining reservation is released and the order goes terminal without
// ever resting, leaving no active entry behind.
func (e *Engine) abortPlace(d *domain, o *book.Order, lockToken common.Address, fills []book.Fill, makers []*book.Order, cause error) error {
	if o.LockedRemaining > 0 {
		if err := e.led.Unlock(o.Account, lockToken, o.LockedRemaining); err != nil {
			e.log.Errorw("abort_unlock_failed", "id", o.ID, "err", err)
		} else {
			o.LockedRemaining = 0
		}
	}
	o.Status = book.Cancelled
	e.reg.retire(o)
	e.recordFills(fills)

	keys := []ledger.Key{
		{Account: o.Account, Token: d.pair.Base},
		{Account: o.Account, Token: d.pair.Quote},
	}
	for _, m := range makers {
		keys = append(keys,
			ledger.Key{Account: m.Account, Token: d.pair.Base},
			ledger.Key{Account: m.Account, Token: d.pair.Quote},
		)
	}
	if err := e.commit(&Mutation{
		Orders:      append([]*book.Order{o}, makers...),
		Balances:    e.balancesOf(keys...),
		Fills:       fills,
		NextOrderID: e.nextOrderID.Load(),
		NextSeq:     e.nextSeq.Load(),
	}); err != nil {
		e.log.Errorw("abort_persist_failed", "id", o.ID, "err", err)
	}

	e.log.Warnw("order_aborted",
		"id", o.ID,
		"pair", d.pair.Key().Symbol(),
		"account", o.Account.Hex(),
		"fills", len(fills),
		"err", cause,
	)
	return fmt.Errorf("order %d aborted after %d fills: %w", o.ID, len(fills), cause)
}

// finish persists one completed placement, records history and emits
// telemetry.
func (e *Engine) finish(d *domain, taker *book.Order, fills []book.Fill, makers []*book.Order) error {
	e.recordFills(fills)

	keys := []ledger.Key{
		{Account: taker.Account, Token: d.pair.Base},
		{Account: taker.Account, Token: d.pair.Quote},
	}
	orders := append([]*book.Order{taker}, makers...)
	for _, m := range makers {
		keys = append(keys,
			ledger.Key{Account: m.Account, Token: d.pair.Base},
			ledger.Key{Account: m.Account, Token: d.pair.Quote},
		)
	}

	if err := e.commit(&Mutation{
		Orders:      orders,
		Balances:    e.balancesOf(keys...),
		Fills:       fills,
		NextOrderID: e.nextOrderID.Load(),
		NextSeq:     e.nextSeq.Load(),
	}); err != nil {
		return err
	}

	metrics.OrdersPlaced.WithLabelValues(taker.Kind.String(), taker.Side.String()).Inc()
	var volume uint64
	for _, f := range fills {
		volume += f.Price * f.Amount
		metrics.FillsTotal.Inc()
	}
	if volume > 0 {
		metrics.QuoteVolume.Add(float64(volume))
	}

	e.log.Infow("order_placed",
		"id", taker.ID,
		"pair", d.pair.Key().Symbol(),
		"account", taker.Account.Hex(),
		"side", taker.Side.String(),
		"kind", taker.Kind.String(),
		"price", taker.Price,
		"amount", taker.AmountTotal,
		"filled", taker.FilledAmount(),
		"status", taker.Status.String(),
		"fills", len(fills),
	)
	return nil
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// mulU64 is the overflow-checked multiply used for every quote-value
// computation. Exceeding 64 bits reports ledger.ErrOverflow, never wraps.
func mulU64(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ledger.ErrOverflow
	}
	return lo, nil
}
