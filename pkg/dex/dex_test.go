package dex_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"spotdex/pkg/dex"
	"spotdex/pkg/dex/ledger"
)

var (
	alice = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	bob   = common.HexToAddress("0xBB00000000000000000000000000000000000000")

	wETH = common.HexToAddress("0x0100000000000000000000000000000000000000")
	usdc = common.HexToAddress("0x0200000000000000000000000000000000000000")
)

func newExchange(t *testing.T) *dex.Exchange {
	t.Helper()
	ex, err := dex.New(dex.Options{Logger: zap.NewNop()})
	require.NoError(t, err)
	return ex
}

// Full trade lifecycle through the request surface: deposits, a resting
// ask, a crossing bid, balance movement and history.
func TestExchangeTradeLifecycle(t *testing.T) {
	ex := newExchange(t)

	_, err := ex.AddTradingPair(wETH, usdc, 1, 1)
	require.NoError(t, err)

	require.NoError(t, ex.Deposit(bob, wETH, 10))
	require.NoError(t, ex.Deposit(alice, usdc, 1000))

	sell, err := ex.PlaceLimitOrder(bob, wETH, usdc, dex.Sell, 10, 100)
	require.NoError(t, err)
	require.Equal(t, []uint64{sell.OrderID}, ex.GetUserOrders(bob))

	buy, err := ex.PlaceLimitOrder(alice, wETH, usdc, dex.Buy, 4, 100)
	require.NoError(t, err)
	require.Len(t, buy.Fills, 1)

	require.Equal(t, dex.Balance{Available: 4, Locked: 0}, ex.GetBalance(alice, wETH))
	require.Equal(t, dex.Balance{Available: 600, Locked: 0}, ex.GetBalance(alice, usdc))
	require.Equal(t, dex.Balance{Available: 400, Locked: 0}, ex.GetBalance(bob, usdc))
	require.Equal(t, dex.Balance{Available: 0, Locked: 6}, ex.GetBalance(bob, wETH))

	d, err := ex.GetOrderBook(wETH, usdc)
	require.NoError(t, err)
	require.Equal(t, []uint64{100}, d.AskPrices)
	require.Equal(t, []uint64{6}, d.AskAmounts)

	fills := ex.GetFills(wETH, usdc)
	require.Len(t, fills, 1)
	require.Equal(t, sell.OrderID, fills[0].MakerOrderID)
	require.Equal(t, buy.OrderID, fills[0].TakerOrderID)

	o, ok := ex.GetOrder(sell.OrderID)
	require.True(t, ok)
	require.Equal(t, uint64(4), o.FilledAmount())
}

func TestWithdrawRespectsLockedFunds(t *testing.T) {
	ex := newExchange(t)

	_, err := ex.AddTradingPair(wETH, usdc, 1, 1)
	require.NoError(t, err)
	require.NoError(t, ex.Deposit(alice, usdc, 1000))

	res, err := ex.PlaceLimitOrder(alice, wETH, usdc, dex.Buy, 5, 100)
	require.NoError(t, err)

	// 500 sits under the resting bid
	err = ex.Withdraw(alice, usdc, 600)
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	require.NoError(t, ex.Withdraw(alice, usdc, 500))

	require.NoError(t, ex.CancelOrder(res.OrderID, alice))
	require.NoError(t, ex.Withdraw(alice, usdc, 500))
	require.Equal(t, dex.Balance{}, ex.GetBalance(alice, usdc))
}

func TestMarketOrderThroughFacade(t *testing.T) {
	ex := newExchange(t)

	_, err := ex.AddTradingPair(wETH, usdc, 1, 1)
	require.NoError(t, err)
	require.NoError(t, ex.Deposit(bob, wETH, 5))
	require.NoError(t, ex.Deposit(alice, usdc, 700))

	_, err = ex.PlaceLimitOrder(bob, wETH, usdc, dex.Sell, 5, 100)
	require.NoError(t, err)

	res, err := ex.PlaceMarketOrder(alice, wETH, usdc, dex.Buy, 5, 700)
	require.NoError(t, err)
	require.Len(t, res.Fills, 1)
	require.Equal(t, dex.Balance{Available: 200, Locked: 0}, ex.GetBalance(alice, usdc))
	require.Equal(t, dex.Balance{Available: 5, Locked: 0}, ex.GetBalance(alice, wETH))
}

func TestPauseBlocksTrading(t *testing.T) {
	ex := newExchange(t)

	_, err := ex.AddTradingPair(wETH, usdc, 1, 1)
	require.NoError(t, err)
	require.NoError(t, ex.Deposit(alice, usdc, 1000))

	require.NoError(t, ex.SetPairActive(wETH, usdc, false))
	_, err = ex.PlaceLimitOrder(alice, wETH, usdc, dex.Buy, 5, 100)
	require.Error(t, err)

	require.NoError(t, ex.SetPairActive(wETH, usdc, true))
	_, err = ex.PlaceLimitOrder(alice, wETH, usdc, dex.Buy, 5, 100)
	require.NoError(t, err)
}
