// Package market defines trading pairs and the authorized pair registry.
package market

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrPairExists    = errors.New("trading pair already registered")
	ErrPairNotFound  = errors.New("trading pair not found")
	ErrInvalidParams = errors.New("invalid pair parameters")
)

// PairKey uniquely identifies a market by its token addresses.
type PairKey struct {
	Base  common.Address
	Quote common.Address
}

// Symbol renders the key in a short human form for logs,
// e.g. "0x1234..abcd/0x5678..ef01".
func (k PairKey) Symbol() string {
	return shortAddr(k.Base) + "/" + shortAddr(k.Quote)
}

func shortAddr(a common.Address) string {
	h := a.Hex()
	return h[:6] + ".." + h[len(h)-4:]
}

// Pair holds the immutable parameters of one (base, quote) market.
//
// PricePrecision is the tick size: a valid limit price is a positive
// multiple of it, quoted in the quote token's smallest unit per one base
// unit. MinOrderSize is in base units. Only Active may change after
// creation.
type Pair struct {
	Base           common.Address `json:"base"`
	Quote          common.Address `json:"quote"`
	MinOrderSize   uint64         `json:"min_order_size"`
	PricePrecision uint64         `json:"price_precision"`
	Active         bool           `json:"active"`
	CreatedAt      int64          `json:"created_at"` // unix milliseconds
}

func (p *Pair) Key() PairKey {
	return PairKey{Base: p.Base, Quote: p.Quote}
}

// ValidPrice reports whether price is usable for a limit order on this
// pair: positive and aligned to the tick.
func (p *Pair) ValidPrice(price uint64) bool {
	return price > 0 && price%p.PricePrecision == 0
}

// NewPair validates parameters and builds an active pair.
func NewPair(base, quote common.Address, minOrderSize, pricePrecision uint64, now int64) (*Pair, error) {
	if base == quote {
		return nil, fmt.Errorf("base equals quote: %w", ErrInvalidParams)
	}
	if minOrderSize == 0 {
		return nil, fmt.Errorf("min order size is zero: %w", ErrInvalidParams)
	}
	if pricePrecision == 0 {
		return nil, fmt.Errorf("price precision is zero: %w", ErrInvalidParams)
	}
	return &Pair{
		Base:           base,
		Quote:          quote,
		MinOrderSize:   minOrderSize,
		PricePrecision: pricePrecision,
		Active:         true,
		CreatedAt:      now,
	}, nil
}
