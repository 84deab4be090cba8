// Package dex is the exchange facade: one method per client request, glued
// over the ledger, pair registry and matching engine. The surrounding
// transport layer (JSON-RPC, signing, accounts) is out of scope here; this
// package is the boundary it calls into.
package dex

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"spotdex/pkg/dex/book"
	"spotdex/pkg/dex/engine"
	"spotdex/pkg/dex/ledger"
	"spotdex/pkg/dex/market"
	"spotdex/pkg/storage"
	"spotdex/pkg/util"
)

// Re-exported types so callers deal with one package.
type (
	Side        = book.Side
	Kind        = book.Kind
	Status      = book.Status
	Order       = book.Order
	Fill        = book.Fill
	Depth       = book.Depth
	Balance     = ledger.Balance
	PairKey     = market.PairKey
	Pair        = market.Pair
	PlaceResult = engine.PlaceResult
)

const (
	Buy  = book.Buy
	Sell = book.Sell
)

// Options configures an Exchange. Zero values give an in-memory exchange
// with a production logger.
type Options struct {
	Logger  *zap.Logger
	Store   engine.Store        // nil: no persistence
	Journal storage.FillJournal // nil: no trade journal
	Clock   util.Clock          // nil: wall clock
}

// Exchange owns the full engine state and exposes the request surface.
type Exchange struct {
	log     *zap.SugaredLogger
	led     *ledger.Ledger
	eng     *engine.Engine
	store   engine.Store
	journal storage.FillJournal
}

func New(opts Options) (*Exchange, error) {
	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = util.NewLogger()
		if err != nil {
			return nil, err
		}
	}
	journal := opts.Journal
	if journal == nil {
		journal = storage.NewNopJournal()
	}

	led := ledger.New()
	return &Exchange{
		log:     logger.Sugar(),
		led:     led,
		eng:     engine.New(led, logger, opts.Store, opts.Clock),
		store:   opts.Store,
		journal: journal,
	}, nil
}

// Engine exposes the matching engine, mainly for restore bootstrap.
func (x *Exchange) Engine() *engine.Engine { return x.eng }

// Ledger exposes the balance table, mainly for restore bootstrap.
func (x *Exchange) Ledger() *ledger.Ledger { return x.led }

// AddTradingPair registers a (base, quote) market. Caller authorization is
// enforced by the surrounding system.
func (x *Exchange) AddTradingPair(base, quote common.Address, minOrderSize, pricePrecision uint64) (*Pair, error) {
	return x.eng.AddPair(base, quote, minOrderSize, pricePrecision)
}

// SetPairActive pauses or resumes trading on a pair.
func (x *Exchange) SetPairActive(base, quote common.Address, active bool) error {
	return x.eng.SetPairActive(PairKey{Base: base, Quote: quote}, active)
}

// PlaceLimitOrder submits a limit order; amount is in base units, price in
// quote units per base unit.
func (x *Exchange) PlaceLimitOrder(acct, base, quote common.Address, side Side, amount, price uint64) (*PlaceResult, error) {
	res, err := x.eng.PlaceLimit(acct, PairKey{Base: base, Quote: quote}, side, amount, price)
	if err != nil {
		return nil, err
	}
	x.journalFills(res.Fills)
	return res, nil
}

// PlaceMarketOrder submits a market order. amount is in base units; buys
// additionally carry maxSpend, the quote budget reserved for the sweep
// (ignored for sells).
func (x *Exchange) PlaceMarketOrder(acct, base, quote common.Address, side Side, amount, maxSpend uint64) (*PlaceResult, error) {
	res, err := x.eng.PlaceMarket(acct, PairKey{Base: base, Quote: quote}, side, amount, maxSpend)
	if err != nil {
		return nil, err
	}
	x.journalFills(res.Fills)
	return res, nil
}

// CancelOrder cancels a resting order owned by caller.
func (x *Exchange) CancelOrder(id uint64, caller common.Address) error {
	return x.eng.Cancel(id, caller)
}

// GetOrderBook returns the aggregated depth of a pair's book.
func (x *Exchange) GetOrderBook(base, quote common.Address) (Depth, error) {
	return x.eng.Depth(PairKey{Base: base, Quote: quote})
}

// GetUserOrders returns the account's active order ids, oldest first.
func (x *Exchange) GetUserOrders(acct common.Address) []uint64 {
	return x.eng.OrdersOf(acct)
}

// GetOrder returns a copy of one order's current state.
func (x *Exchange) GetOrder(id uint64) (Order, bool) {
	return x.eng.GetOrder(id)
}

// GetBalance returns the account's buckets for one token.
func (x *Exchange) GetBalance(acct, token common.Address) Balance {
	return x.led.Balance(acct, token)
}

// GetFills returns a pair's trade history, oldest first.
func (x *Exchange) GetFills(base, quote common.Address) []Fill {
	return x.eng.Fills(PairKey{Base: base, Quote: quote})
}

// Deposit credits bridged funds into the account's available balance.
func (x *Exchange) Deposit(acct, token common.Address, amount uint64) error {
	if err := x.led.Credit(acct, token, amount); err != nil {
		return err
	}
	if err := x.commitBalance(acct, token); err != nil {
		return err
	}
	x.log.Infow("deposit", "account", acct.Hex(), "token", token.Hex(), "amount", amount)
	return nil
}

// Withdraw debits the account's available balance back out to the bridge.
// Locked funds are not withdrawable.
func (x *Exchange) Withdraw(acct, token common.Address, amount uint64) error {
	if err := x.led.Withdraw(acct, token, amount); err != nil {
		return err
	}
	if err := x.commitBalance(acct, token); err != nil {
		return err
	}
	x.log.Infow("withdraw", "account", acct.Hex(), "token", token.Hex(), "amount", amount)
	return nil
}

func (x *Exchange) commitBalance(acct, token common.Address) error {
	if x.store == nil {
		return nil
	}
	return x.store.Commit(&engine.Mutation{
		Balances: []engine.BalanceUpdate{{
			Account: acct,
			Token:   token,
			Balance: x.led.Balance(acct, token),
		}},
	})
}

func (x *Exchange) journalFills(fills []Fill) {
	for _, f := range fills {
		x.journal.Append(fmt.Sprintf("fill seq=%d pair=%s maker=%d taker=%d price=%d amount=%d",
			f.Seq, f.Pair.Symbol(), f.MakerOrderID, f.TakerOrderID, f.Price, f.Amount))
	}
}
