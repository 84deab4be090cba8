// Package book implements a single trading pair's limit order book:
// price-sorted resting orders with FIFO queues per price level.
package book

import (
	"github.com/ethereum/go-ethereum/common"

	"spotdex/pkg/dex/market"
)

// Side is the order direction.
type Side int8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Opposite returns the matching side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Kind distinguishes limit from market orders.
type Kind int8

const (
	Limit Kind = iota
	Market
)

func (k Kind) String() string {
	if k == Limit {
		return "limit"
	}
	return "market"
}

// Status is the order lifecycle state.
type Status int8

const (
	Open Status = iota
	PartiallyFilled
	Filled
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Open:
		return "open"
	case PartiallyFilled:
		return "partially_filled"
	case Filled:
		return "filled"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the order can no longer trade.
func (s Status) Terminal() bool {
	return s == Filled || s == Cancelled
}

// Order is one submitted order. IDs are engine-assigned, monotonic and
// never reused; Seq is the global submission sequence used for time
// priority among equal prices.
//
// LockedRemaining tracks the funds still reserved in the ledger for this
// order: price x remaining quote units for a resting buy, remaining base
// units for a sell, and the unspent max-spend for an in-flight market buy.
// It reaches zero exactly when the order goes terminal.
type Order struct {
	ID      uint64         `json:"id"`
	Account common.Address `json:"account"`
	Pair    market.PairKey `json:"pair"`
	Side    Side           `json:"side"`
	Kind    Kind           `json:"kind"`

	Price           uint64 `json:"price"` // quote units per base unit; 0 for market orders
	AmountTotal     uint64 `json:"amount_total"`
	AmountRemaining uint64 `json:"amount_remaining"`
	LockedRemaining uint64 `json:"locked_remaining"`

	Seq       uint64 `json:"seq"`
	CreatedAt int64  `json:"created_at"` // unix milliseconds
	Status    Status `json:"status"`
}

// FilledAmount returns the executed quantity so far.
func (o *Order) FilledAmount() uint64 {
	return o.AmountTotal - o.AmountRemaining
}

// Fill is the immutable record of one match. Price is always the maker's
// resting price. Seq orders the append-only trade history.
type Fill struct {
	MakerOrderID uint64         `json:"maker_order_id"`
	TakerOrderID uint64         `json:"taker_order_id"`
	Pair         market.PairKey `json:"pair"`
	Price        uint64         `json:"price"`
	Amount       uint64         `json:"amount"`
	Seq          uint64         `json:"seq"`
	Time         int64          `json:"time"` // unix milliseconds
}

// Depth is a price-level aggregated snapshot of one book, best levels
// first on both sides.
type Depth struct {
	BidPrices  []uint64 `json:"bid_prices"`
	BidAmounts []uint64 `json:"bid_amounts"`
	AskPrices  []uint64 `json:"ask_prices"`
	AskAmounts []uint64 `json:"ask_amounts"`
}
