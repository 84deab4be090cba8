// Package ledger tracks per-account, per-token custody balances.
//
// The ledger is the single source of truth for funds. Every unit of a token
// is either Available (spendable, withdrawable) or Locked (reserved against an
// open order). Matching moves value between the two buckets and between
// accounts; nothing here ever creates or destroys value except Credit and
// Withdraw, the two bridge endpoints.
package ledger

import (
	"errors"
	"fmt"
	"math/bits"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrOverflow          = errors.New("amount overflow")
)

// Key identifies one balance bucket: an (account, token) pair.
type Key struct {
	Account common.Address
	Token   common.Address
}

// Balance holds the two buckets for one (account, token) pair.
// All amounts are uint64 in the token's smallest unit.
type Balance struct {
	Available uint64 `json:"available"`
	Locked    uint64 `json:"locked"`
}

// Ledger is a thread-safe balance table. A single RWMutex guards the whole
// table: settles touch two accounts and must be atomic as one step, and a
// table-wide lock makes the two-key update trivially deadlock-free.
type Ledger struct {
	mu       sync.RWMutex
	balances map[Key]*Balance
}

func New() *Ledger {
	return &Ledger{balances: make(map[Key]*Balance)}
}

func (l *Ledger) get(acct, token common.Address) *Balance {
	k := Key{Account: acct, Token: token}
	b, ok := l.balances[k]
	if !ok {
		b = &Balance{}
		l.balances[k] = b
	}
	return b
}

// Credit adds amount to the account's available balance (deposit from the
// bridge). A zero amount succeeds without effect.
func (l *Ledger) Credit(acct, token common.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.get(acct, token)
	sum, carry := addU64(b.Available, amount)
	if carry {
		return fmt.Errorf("credit %s: %w", acct.Hex(), ErrOverflow)
	}
	b.Available = sum
	return nil
}

// Lock reserves amount from available into locked, failing with
// ErrInsufficientFunds when the available bucket is too small.
func (l *Ledger) Lock(acct, token common.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.get(acct, token)
	if b.Available < amount {
		return fmt.Errorf("lock %d, available %d: %w", amount, b.Available, ErrInsufficientFunds)
	}
	b.Available -= amount
	b.Locked += amount
	return nil
}

// Unlock releases amount from locked back to available. Releasing more than
// is locked indicates a bookkeeping bug upstream and is rejected.
func (l *Ledger) Unlock(acct, token common.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.get(acct, token)
	if b.Locked < amount {
		return fmt.Errorf("unlock %d, locked %d: %w", amount, b.Locked, ErrInsufficientFunds)
	}
	b.Locked -= amount
	b.Available += amount
	return nil
}

// SettleTrade executes both legs of one fill in a single atomic step:
// cost quote moves from the buyer's locked bucket to the seller's
// available bucket, qty base moves from the seller's locked bucket to the
// buyer's available bucket, and refund quote (a taker's price
// improvement, usually zero) moves from the buyer's locked bucket back to
// its own available bucket. Every leg is validated before any is applied,
// so a failed settle leaves the table untouched.
func (l *Ledger) SettleTrade(buyer, seller, base, quote common.Address, qty, cost, refund uint64) error {
	if qty == 0 && cost == 0 && refund == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	bq := l.get(buyer, quote)
	sq := l.get(seller, quote)
	sb := l.get(seller, base)
	bb := l.get(buyer, base)

	outflow, carry := addU64(cost, refund)
	if carry {
		return fmt.Errorf("settle quote outflow: %w", ErrOverflow)
	}
	if bq.Locked < outflow {
		return fmt.Errorf("settle quote leg %d, locked %d: %w", outflow, bq.Locked, ErrInsufficientFunds)
	}
	if sb.Locked < qty {
		return fmt.Errorf("settle base leg %d, locked %d: %w", qty, sb.Locked, ErrInsufficientFunds)
	}

	// Inflow headroom. Buyer and seller may be the same account (a
	// self-cross), in which case proceeds and refund land in one bucket.
	if buyer == seller {
		if _, c := addU64(bq.Available, outflow); c {
			return fmt.Errorf("settle quote to %s: %w", seller.Hex(), ErrOverflow)
		}
	} else {
		if _, c := addU64(sq.Available, cost); c {
			return fmt.Errorf("settle quote to %s: %w", seller.Hex(), ErrOverflow)
		}
		if _, c := addU64(bq.Available, refund); c {
			return fmt.Errorf("refund quote to %s: %w", buyer.Hex(), ErrOverflow)
		}
	}
	if _, c := addU64(bb.Available, qty); c {
		return fmt.Errorf("settle base to %s: %w", buyer.Hex(), ErrOverflow)
	}

	bq.Locked -= outflow
	bq.Available += refund
	sq.Available += cost
	sb.Locked -= qty
	bb.Available += qty
	return nil
}

// Withdraw removes amount from the account's available balance (out to the
// bridge). Locked funds are never withdrawable.
func (l *Ledger) Withdraw(acct, token common.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.get(acct, token)
	if b.Available < amount {
		return fmt.Errorf("withdraw %d, available %d: %w", amount, b.Available, ErrInsufficientFunds)
	}
	b.Available -= amount
	return nil
}

// Balance returns a copy of the (account, token) buckets. Missing entries
// read as zero.
func (l *Ledger) Balance(acct, token common.Address) Balance {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if b, ok := l.balances[Key{Account: acct, Token: token}]; ok {
		return *b
	}
	return Balance{}
}

// Entries returns a copy of every non-zero balance, for persistence and
// audits.
func (l *Ledger) Entries() map[Key]Balance {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[Key]Balance, len(l.balances))
	for k, b := range l.balances {
		if b.Available == 0 && b.Locked == 0 {
			continue
		}
		out[k] = *b
	}
	return out
}

// Restore installs a balance directly, used when reloading from storage.
func (l *Ledger) Restore(acct, token common.Address, b Balance) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[Key{Account: acct, Token: token}] = &Balance{Available: b.Available, Locked: b.Locked}
}

func addU64(a, b uint64) (uint64, bool) {
	sum, carry := bits.Add64(a, b, 0)
	return sum, carry != 0
}
