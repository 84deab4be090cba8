package storage_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"spotdex/pkg/dex"
	"spotdex/pkg/dex/engine"
	"spotdex/pkg/storage"
)

var (
	alice = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	bob   = common.HexToAddress("0xBB00000000000000000000000000000000000000")

	wETH = common.HexToAddress("0x0100000000000000000000000000000000000000")
	usdc = common.HexToAddress("0x0200000000000000000000000000000000000000")
)

func openExchange(t *testing.T, path string) (*dex.Exchange, *storage.PebbleStore) {
	t.Helper()
	store, err := storage.Open(path)
	require.NoError(t, err)

	ex, err := dex.New(dex.Options{Logger: zap.NewNop(), Store: store})
	require.NoError(t, err)
	require.NoError(t, store.Restore(ex.Engine(), ex.Ledger()))
	return ex, store
}

// Exchange state written by one process must come back identically in the
// next: pairs, book depth (with FIFO priority), balances, fills, counters.
func TestRestoreAfterRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")

	ex, store := openExchange(t, path)
	_, err := ex.AddTradingPair(wETH, usdc, 1, 1)
	require.NoError(t, err)
	require.NoError(t, ex.Deposit(bob, wETH, 10))
	require.NoError(t, ex.Deposit(alice, usdc, 1000))

	sell, err := ex.PlaceLimitOrder(bob, wETH, usdc, dex.Sell, 10, 100)
	require.NoError(t, err)
	buy, err := ex.PlaceLimitOrder(alice, wETH, usdc, dex.Buy, 4, 100)
	require.NoError(t, err)
	require.Len(t, buy.Fills, 1)
	require.NoError(t, store.Close())

	ex2, store2 := openExchange(t, path)
	defer store2.Close()

	d, err := ex2.GetOrderBook(wETH, usdc)
	require.NoError(t, err)
	require.Equal(t, []uint64{100}, d.AskPrices)
	require.Equal(t, []uint64{6}, d.AskAmounts)

	require.Equal(t, dex.Balance{Available: 4, Locked: 0}, ex2.GetBalance(alice, wETH))
	require.Equal(t, dex.Balance{Available: 600, Locked: 0}, ex2.GetBalance(alice, usdc))
	require.Equal(t, dex.Balance{Available: 0, Locked: 6}, ex2.GetBalance(bob, wETH))
	require.Equal(t, dex.Balance{Available: 400, Locked: 0}, ex2.GetBalance(bob, usdc))

	fills := ex2.GetFills(wETH, usdc)
	require.Len(t, fills, 1)
	require.Equal(t, sell.OrderID, fills[0].MakerOrderID)

	// counters continue, never reuse ids
	res, err := ex2.PlaceLimitOrder(alice, wETH, usdc, dex.Buy, 1, 99)
	require.NoError(t, err)
	require.Greater(t, res.OrderID, buy.OrderID)

	// the restored ask is still cancellable by its owner
	require.NoError(t, ex2.CancelOrder(sell.OrderID, bob))
	require.Equal(t, dex.Balance{Available: 6, Locked: 0}, ex2.GetBalance(bob, wETH))
}

// Terminal orders survive restarts so a stale cancel still gets the right
// error instead of a not-found.
func TestTerminalOrdersSurviveRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")

	ex, store := openExchange(t, path)
	_, err := ex.AddTradingPair(wETH, usdc, 1, 1)
	require.NoError(t, err)
	require.NoError(t, ex.Deposit(alice, usdc, 1000))

	res, err := ex.PlaceLimitOrder(alice, wETH, usdc, dex.Buy, 5, 100)
	require.NoError(t, err)
	require.NoError(t, ex.CancelOrder(res.OrderID, alice))
	require.NoError(t, store.Close())

	ex2, store2 := openExchange(t, path)
	defer store2.Close()

	err = ex2.CancelOrder(res.OrderID, alice)
	require.ErrorIs(t, err, engine.ErrAlreadyTerminal)

	d, err := ex2.GetOrderBook(wETH, usdc)
	require.NoError(t, err)
	require.Empty(t, d.BidPrices)
}

// FIFO priority within a price level is rebuilt from the persisted
// sequence numbers, not from key order.
func TestRestoreKeepsTimePriority(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")

	ex, store := openExchange(t, path)
	_, err := ex.AddTradingPair(wETH, usdc, 1, 1)
	require.NoError(t, err)
	require.NoError(t, ex.Deposit(alice, usdc, 1000))
	require.NoError(t, ex.Deposit(bob, usdc, 1000))
	require.NoError(t, ex.Deposit(bob, wETH, 5))

	first, err := ex.PlaceLimitOrder(alice, wETH, usdc, dex.Buy, 5, 100)
	require.NoError(t, err)
	_, err = ex.PlaceLimitOrder(bob, wETH, usdc, dex.Buy, 5, 100)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	ex2, store2 := openExchange(t, path)
	defer store2.Close()

	res, err := ex2.PlaceLimitOrder(bob, wETH, usdc, dex.Sell, 5, 100)
	require.NoError(t, err)
	require.Len(t, res.Fills, 1)
	require.Equal(t, first.OrderID, res.Fills[0].MakerOrderID)
}

func TestZeroBalancesDeletedOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")

	ex, store := openExchange(t, path)
	require.NoError(t, ex.Deposit(alice, usdc, 100))
	require.NoError(t, ex.Withdraw(alice, usdc, 100))
	require.NoError(t, store.Close())

	ex2, store2 := openExchange(t, path)
	defer store2.Close()
	require.Equal(t, dex.Balance{}, ex2.GetBalance(alice, usdc))
	require.Empty(t, ex2.Ledger().Entries())
}

func TestFileJournalAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fills.log")

	j, err := storage.NewFileJournal(path)
	require.NoError(t, err)
	j.Append("fill seq=1 pair=A/B maker=1 taker=2 price=100 amount=5")
	j.Append("fill seq=2 pair=A/B maker=1 taker=3 price=100 amount=2")
	require.NoError(t, j.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "seq=1")
	require.Contains(t, lines[1], "seq=2")
}
