package ledger

import (
	"errors"
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	alice = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	bob   = common.HexToAddress("0xBB00000000000000000000000000000000000000")
	wETH  = common.HexToAddress("0x0100000000000000000000000000000000000000")
	usdc  = common.HexToAddress("0x1100000000000000000000000000000000000000")
)

func TestCreditAndBalance(t *testing.T) {
	l := New()

	if err := l.Credit(alice, usdc, 1000); err != nil {
		t.Fatalf("credit: %v", err)
	}
	b := l.Balance(alice, usdc)
	if b.Available != 1000 || b.Locked != 0 {
		t.Errorf("got %+v, want available=1000 locked=0", b)
	}

	// missing entries read as zero
	b = l.Balance(bob, usdc)
	if b.Available != 0 || b.Locked != 0 {
		t.Errorf("expected zero balance, got %+v", b)
	}
}

func TestLockUnlock(t *testing.T) {
	l := New()
	l.Credit(alice, usdc, 100)

	if err := l.Lock(alice, usdc, 60); err != nil {
		t.Fatalf("lock: %v", err)
	}
	b := l.Balance(alice, usdc)
	if b.Available != 40 || b.Locked != 60 {
		t.Errorf("after lock: %+v", b)
	}

	if err := l.Lock(alice, usdc, 41); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}

	if err := l.Unlock(alice, usdc, 60); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	b = l.Balance(alice, usdc)
	if b.Available != 100 || b.Locked != 0 {
		t.Errorf("after unlock: %+v", b)
	}

	if err := l.Unlock(alice, usdc, 1); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("unlocking more than locked should fail, got %v", err)
	}
}

func TestSettleTradeMovesBothLegs(t *testing.T) {
	l := New()
	l.Credit(alice, usdc, 500)
	l.Lock(alice, usdc, 500)
	l.Credit(bob, wETH, 10)
	l.Lock(bob, wETH, 10)

	// alice buys 10 base from bob for 300 quote
	if err := l.SettleTrade(alice, bob, wETH, usdc, 10, 300, 0); err != nil {
		t.Fatalf("settle: %v", err)
	}

	if a := l.Balance(alice, usdc); a.Locked != 200 || a.Available != 0 {
		t.Errorf("alice quote after settle: %+v", a)
	}
	if a := l.Balance(alice, wETH); a.Available != 10 || a.Locked != 0 {
		t.Errorf("alice base after settle: %+v", a)
	}
	if b := l.Balance(bob, usdc); b.Available != 300 || b.Locked != 0 {
		t.Errorf("bob quote after settle: %+v", b)
	}
	if b := l.Balance(bob, wETH); b.Available != 0 || b.Locked != 0 {
		t.Errorf("bob base after settle: %+v", b)
	}

	if err := l.SettleTrade(alice, bob, wETH, usdc, 1, 201, 0); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("settling beyond locked should fail, got %v", err)
	}
}

func TestSettleTradeRefundsPriceImprovement(t *testing.T) {
	l := New()
	l.Credit(alice, usdc, 550)
	l.Lock(alice, usdc, 550)
	l.Credit(bob, wETH, 5)
	l.Lock(bob, wETH, 5)

	// limit 110 filled at 100: cost 500, refund 50 back to alice
	if err := l.SettleTrade(alice, bob, wETH, usdc, 5, 500, 50); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if a := l.Balance(alice, usdc); a.Available != 50 || a.Locked != 0 {
		t.Errorf("alice quote after refund: %+v", a)
	}
	if b := l.Balance(bob, usdc); b.Available != 500 {
		t.Errorf("bob quote: %+v", b)
	}
}

// A settle that cannot complete must not apply either leg: here the quote
// leg could succeed but the base leg would overflow the buyer's balance.
func TestSettleTradeFailureLeavesTableUntouched(t *testing.T) {
	l := New()
	l.Credit(alice, usdc, 1000)
	l.Lock(alice, usdc, 1000)
	l.Credit(alice, wETH, math.MaxUint64)
	l.Credit(bob, wETH, 10)
	l.Lock(bob, wETH, 10)

	if err := l.SettleTrade(alice, bob, wETH, usdc, 10, 1000, 0); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}

	if a := l.Balance(alice, usdc); a.Available != 0 || a.Locked != 1000 {
		t.Errorf("alice quote mutated by failed settle: %+v", a)
	}
	if b := l.Balance(bob, usdc); b.Available != 0 || b.Locked != 0 {
		t.Errorf("bob quote mutated by failed settle: %+v", b)
	}
	if b := l.Balance(bob, wETH); b.Locked != 10 {
		t.Errorf("bob base mutated by failed settle: %+v", b)
	}
	if a := l.Balance(alice, wETH); a.Available != math.MaxUint64 {
		t.Errorf("alice base mutated by failed settle: %+v", a)
	}
}

func TestWithdraw(t *testing.T) {
	l := New()
	l.Credit(alice, usdc, 100)
	l.Lock(alice, usdc, 70)

	if err := l.Withdraw(alice, usdc, 31); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("locked funds must not be withdrawable, got %v", err)
	}
	if err := l.Withdraw(alice, usdc, 30); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	b := l.Balance(alice, usdc)
	if b.Available != 0 || b.Locked != 70 {
		t.Errorf("after withdraw: %+v", b)
	}
}

func TestZeroAmountsAreNoOps(t *testing.T) {
	l := New()
	for _, err := range []error{
		l.Credit(alice, usdc, 0),
		l.Lock(alice, usdc, 0),
		l.Unlock(alice, usdc, 0),
		l.SettleTrade(alice, bob, wETH, usdc, 0, 0, 0),
		l.Withdraw(alice, usdc, 0),
	} {
		if err != nil {
			t.Errorf("zero amount should succeed, got %v", err)
		}
	}
	if len(l.Entries()) != 0 {
		t.Errorf("no entries expected, got %v", l.Entries())
	}
}

func TestCreditOverflow(t *testing.T) {
	l := New()
	l.Credit(alice, usdc, math.MaxUint64)
	if err := l.Credit(alice, usdc, 1); !errors.Is(err, ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
	// the failed credit must not change the balance
	if b := l.Balance(alice, usdc); b.Available != math.MaxUint64 {
		t.Errorf("balance mutated on failed credit: %+v", b)
	}
}

// Conservation: lock/unlock/settle only move value between buckets and
// accounts, never create or destroy it.
func TestConservationAcrossOperations(t *testing.T) {
	l := New()
	l.Credit(alice, usdc, 1000)
	l.Credit(bob, wETH, 50)

	total := func(token common.Address) uint64 {
		var sum uint64
		for k, b := range l.Entries() {
			if k.Token == token {
				sum += b.Available + b.Locked
			}
		}
		return sum
	}
	wantQuote, wantBase := total(usdc), total(wETH)

	l.Lock(alice, usdc, 700)
	l.Lock(bob, wETH, 30)
	l.SettleTrade(alice, bob, wETH, usdc, 20, 400, 40)
	l.Unlock(alice, usdc, 260)
	l.Unlock(bob, wETH, 10)

	if got := total(usdc); got != wantQuote {
		t.Errorf("quote not conserved: got %d, want %d", got, wantQuote)
	}
	if got := total(wETH); got != wantBase {
		t.Errorf("base not conserved: got %d, want %d", got, wantBase)
	}
}

func TestEntriesAndRestoreRoundTrip(t *testing.T) {
	l := New()
	l.Credit(alice, usdc, 250)
	l.Lock(alice, usdc, 100)

	restored := New()
	for k, b := range l.Entries() {
		restored.Restore(k.Account, k.Token, b)
	}
	got := restored.Balance(alice, usdc)
	if got.Available != 150 || got.Locked != 100 {
		t.Errorf("restored balance: %+v", got)
	}
}
