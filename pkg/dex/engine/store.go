package engine

import (
	"github.com/ethereum/go-ethereum/common"

	"spotdex/pkg/dex/book"
	"spotdex/pkg/dex/ledger"
	"spotdex/pkg/dex/market"
)

// BalanceUpdate is the post-operation state of one touched ledger bucket.
type BalanceUpdate struct {
	Account common.Address
	Token   common.Address
	Balance ledger.Balance
}

// Mutation captures everything one mutating operation changed, so a store
// can commit it as a single atomic batch and a restart resumes matching
// exactly where it left off.
type Mutation struct {
	Pairs    []*market.Pair
	Orders   []*book.Order // upserts; terminal orders keep their terminal status
	Balances []BalanceUpdate
	Fills    []book.Fill

	NextOrderID uint64
	NextSeq     uint64
}

// Store persists engine state. Implementations must apply a Mutation
// atomically and durably before returning.
type Store interface {
	Commit(m *Mutation) error
}
