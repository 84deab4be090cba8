package engine

import "errors"

var (
	// ErrInvalidOrder covers inactive pairs, sizes below the pair minimum,
	// prices off the tick grid and missing market-buy spend limits.
	ErrInvalidOrder = errors.New("invalid order")

	ErrNotFound        = errors.New("order not found")
	ErrNotOwner        = errors.New("caller does not own order")
	ErrAlreadyTerminal = errors.New("order already filled or cancelled")
)
