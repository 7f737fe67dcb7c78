package engine

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icebook/icebook/models"
)

func startEngine(t *testing.T) *MatchingEngine {
	t.Helper()
	me := NewMatchingEngine()
	require.NoError(t, me.Start(context.Background()))
	t.Cleanup(func() {
		if me.IsRunning() {
			_ = me.Stop()
		}
	})
	return me
}

func newLimitOrder(id models.OrderID, side models.OrderSide, price, qty int64) *models.Order {
	return models.NewOrder(id, side,
		decimal.NewFromInt(price), decimal.NewFromInt(qty), decimal.Zero)
}

func newIcebergOrder(id models.OrderID, side models.OrderSide, price, qty, peak int64) *models.Order {
	return models.NewOrder(id, side,
		decimal.NewFromInt(price), decimal.NewFromInt(qty), decimal.NewFromInt(peak))
}

func submit(t *testing.T, me *MatchingEngine, order *models.Order) *SubmitResult {
	t.Helper()
	result, err := me.SubmitOrder(order)
	require.NoError(t, err)
	return result
}

func assertTrade(t *testing.T, trade *Trade, buyID, sellID models.OrderID, price, qty int64) {
	t.Helper()
	assert.Equal(t, buyID, trade.BuyOrderID, "buy order id")
	assert.Equal(t, sellID, trade.SellOrderID, "sell order id")
	assert.True(t, trade.Price.Equal(decimal.NewFromInt(price)),
		"expected price %d, got %s", price, trade.Price)
	assert.True(t, trade.Quantity.Equal(decimal.NewFromInt(qty)),
		"expected quantity %d, got %s", qty, trade.Quantity)
}

func TestEngineLifecycle(t *testing.T) {
	me := NewMatchingEngine()

	_, err := me.SubmitOrder(newLimitOrder(1, models.OrderSideBuy, 100, 10))
	assert.ErrorIs(t, err, ErrEngineStopped)

	require.NoError(t, me.Start(context.Background()))
	assert.True(t, me.IsRunning())
	assert.Error(t, me.Start(context.Background()), "double start must fail")

	require.NoError(t, me.Stop())
	assert.False(t, me.IsRunning())
	assert.ErrorIs(t, me.Stop(), ErrEngineStopped)
}

func TestRestWithoutMatch(t *testing.T) {
	me := startEngine(t)

	result := submit(t, me, newLimitOrder(1, models.OrderSideBuy, 99, 10))

	assert.Empty(t, result.Trades)
	assert.True(t, result.Rested)
	assert.Equal(t, 1, me.GetOrderBook().Size())
}

func TestExactFill(t *testing.T) {
	me := startEngine(t)

	submit(t, me, newLimitOrder(1, models.OrderSideBuy, 100, 10))
	result := submit(t, me, newLimitOrder(2, models.OrderSideSell, 100, 10))

	require.Len(t, result.Trades, 1)
	assertTrade(t, result.Trades[0], 1, 2, 100, 10)
	assert.False(t, result.Rested)
	assert.Equal(t, 0, me.GetOrderBook().Size(), "both orders fully consumed")
}

func TestPartialFillRestsResidual(t *testing.T) {
	me := startEngine(t)

	submit(t, me, newLimitOrder(1, models.OrderSideBuy, 100, 5))
	result := submit(t, me, newLimitOrder(2, models.OrderSideSell, 100, 8))

	require.Len(t, result.Trades, 1)
	assertTrade(t, result.Trades[0], 1, 2, 100, 5)
	assert.True(t, result.Rested)

	resting := me.GetOrderBook().GetOrder(2)
	require.NotNil(t, resting)
	assert.True(t, resting.VisibleQty.Equal(decimal.NewFromInt(3)))
}

func TestNoCrossNoTrade(t *testing.T) {
	me := startEngine(t)

	submit(t, me, newLimitOrder(1, models.OrderSideBuy, 99, 10))
	result := submit(t, me, newLimitOrder(2, models.OrderSideSell, 100, 10))

	assert.Empty(t, result.Trades)
	assert.True(t, result.Rested)
	assert.Equal(t, 2, me.GetOrderBook().Size())
}

func TestTradePriceIsRestingPrice(t *testing.T) {
	me := startEngine(t)

	submit(t, me, newLimitOrder(1, models.OrderSideSell, 100, 10))
	result := submit(t, me, newLimitOrder(2, models.OrderSideBuy, 105, 10))

	require.Len(t, result.Trades, 1)
	assertTrade(t, result.Trades[0], 2, 1, 100, 10)
}

func TestPricePriorityAcrossLevels(t *testing.T) {
	me := startEngine(t)

	submit(t, me, newLimitOrder(1, models.OrderSideSell, 101, 5))
	submit(t, me, newLimitOrder(2, models.OrderSideSell, 100, 5))

	result := submit(t, me, newLimitOrder(3, models.OrderSideBuy, 101, 8))

	require.Len(t, result.Trades, 2)
	assertTrade(t, result.Trades[0], 3, 2, 100, 5)
	assertTrade(t, result.Trades[1], 3, 1, 101, 3)
}

func TestTimePriorityWithinLevel(t *testing.T) {
	me := startEngine(t)

	submit(t, me, newLimitOrder(1, models.OrderSideBuy, 100, 5))
	submit(t, me, newLimitOrder(2, models.OrderSideBuy, 100, 5))

	result := submit(t, me, newLimitOrder(3, models.OrderSideSell, 100, 7))

	require.Len(t, result.Trades, 2)
	assertTrade(t, result.Trades[0], 1, 3, 100, 5)
	assertTrade(t, result.Trades[1], 2, 3, 100, 2)
	assert.False(t, result.Rested)
}

func TestAggregationPerCounterparty(t *testing.T) {
	me := startEngine(t)

	// Iceberg shows 10 at a time out of 30; the big buy consumes it across
	// three slices but reports a single aggregated trade.
	submit(t, me, newIcebergOrder(1, models.OrderSideSell, 100, 30, 10))
	result := submit(t, me, newLimitOrder(2, models.OrderSideBuy, 100, 30))

	require.Len(t, result.Trades, 1)
	assertTrade(t, result.Trades[0], 2, 1, 100, 30)
	assert.Equal(t, 0, me.GetOrderBook().Size())
}

func TestAggregationFirstTouchOrder(t *testing.T) {
	me := startEngine(t)

	// Order 1 is touched first, refills behind order 2, then is touched
	// again. The aggregate for order 1 must still come first.
	submit(t, me, newIcebergOrder(1, models.OrderSideSell, 100, 20, 10))
	submit(t, me, newLimitOrder(2, models.OrderSideSell, 100, 5))

	result := submit(t, me, newLimitOrder(3, models.OrderSideBuy, 100, 25))

	require.Len(t, result.Trades, 2)
	assertTrade(t, result.Trades[0], 3, 1, 100, 20)
	assertTrade(t, result.Trades[1], 3, 2, 100, 5)
	assert.Equal(t, 0, me.GetOrderBook().Size())
}

func TestIcebergRefillLosesTimePriority(t *testing.T) {
	me := startEngine(t)

	submit(t, me, newIcebergOrder(1, models.OrderSideSell, 100, 20, 10))
	submit(t, me, newLimitOrder(2, models.OrderSideSell, 100, 5))

	// Consume exactly the visible peak of order 1. Its refill splices it
	// behind order 2.
	result := submit(t, me, newLimitOrder(3, models.OrderSideBuy, 100, 10))
	require.Len(t, result.Trades, 1)
	assertTrade(t, result.Trades[0], 3, 1, 100, 10)

	// The next buy must now hit order 2 first.
	result = submit(t, me, newLimitOrder(4, models.OrderSideBuy, 100, 5))
	require.Len(t, result.Trades, 1)
	assertTrade(t, result.Trades[0], 4, 2, 100, 5)

	resting := me.GetOrderBook().GetOrder(1)
	require.NotNil(t, resting)
	assert.True(t, resting.VisibleQty.Equal(decimal.NewFromInt(10)))
	assert.True(t, resting.HiddenQty.IsZero())
}

func TestIcebergRefillSizes(t *testing.T) {
	tests := []struct {
		name        string
		total       int64
		peak        int64
		consume     int64
		wantVisible int64
		wantHidden  int64
	}{
		{name: "full peak refill", total: 100, peak: 10, consume: 10, wantVisible: 10, wantHidden: 80},
		{name: "final short slice", total: 12, peak: 10, consume: 10, wantVisible: 2, wantHidden: 0},
		{name: "partial visible no refill", total: 100, peak: 10, consume: 4, wantVisible: 6, wantHidden: 90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			me := startEngine(t)

			submit(t, me, newIcebergOrder(1, models.OrderSideSell, 100, tt.total, tt.peak))
			submit(t, me, newLimitOrder(2, models.OrderSideBuy, 100, tt.consume))

			resting := me.GetOrderBook().GetOrder(1)
			require.NotNil(t, resting)
			assert.True(t, resting.VisibleQty.Equal(decimal.NewFromInt(tt.wantVisible)),
				"expected visible %d, got %s", tt.wantVisible, resting.VisibleQty)
			assert.True(t, resting.HiddenQty.Equal(decimal.NewFromInt(tt.wantHidden)),
				"expected hidden %d, got %s", tt.wantHidden, resting.HiddenQty)
		})
	}
}

func TestIcebergEntrySplit(t *testing.T) {
	tests := []struct {
		name        string
		total       int64
		peak        int64
		liquidity   int64
		wantVisible int64
		wantHidden  int64
	}{
		{name: "no fill full peak", total: 100, peak: 10, liquidity: 0, wantVisible: 10, wantHidden: 90},
		{name: "partial fill mod remainder", total: 100, peak: 10, liquidity: 3, wantVisible: 7, wantHidden: 90},
		{name: "fill of whole peaks", total: 100, peak: 10, liquidity: 20, wantVisible: 10, wantHidden: 70},
		{name: "residual at most peak", total: 25, peak: 10, liquidity: 17, wantVisible: 8, wantHidden: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			me := startEngine(t)

			if tt.liquidity > 0 {
				submit(t, me, newLimitOrder(1, models.OrderSideBuy, 100, tt.liquidity))
			}
			submit(t, me, newIcebergOrder(2, models.OrderSideSell, 100, tt.total, tt.peak))

			resting := me.GetOrderBook().GetOrder(2)
			require.NotNil(t, resting)
			assert.True(t, resting.VisibleQty.Equal(decimal.NewFromInt(tt.wantVisible)),
				"expected visible %d, got %s", tt.wantVisible, resting.VisibleQty)
			assert.True(t, resting.HiddenQty.Equal(decimal.NewFromInt(tt.wantHidden)),
				"expected hidden %d, got %s", tt.wantHidden, resting.HiddenQty)
		})
	}
}

func TestIcebergAggressesLikeLimit(t *testing.T) {
	me := startEngine(t)

	// On entry the iceberg matches with its full quantity, hidden included.
	submit(t, me, newLimitOrder(1, models.OrderSideBuy, 100, 25))
	result := submit(t, me, newIcebergOrder(2, models.OrderSideSell, 100, 25, 10))

	require.Len(t, result.Trades, 1)
	assertTrade(t, result.Trades[0], 1, 2, 100, 25)
	assert.False(t, result.Rested)
	assert.Equal(t, 0, me.GetOrderBook().Size())
}

func TestCancelRestingOrder(t *testing.T) {
	me := startEngine(t)

	submit(t, me, newIcebergOrder(1, models.OrderSideSell, 100, 30, 10))

	cancelled, err := me.CancelOrder(1)
	require.NoError(t, err)
	assert.True(t, cancelled.Remaining().Equal(decimal.NewFromInt(30)),
		"cancel removes visible and hidden remainder alike")
	assert.Equal(t, 0, me.GetOrderBook().Size())
}

func TestCancelUnknownOrder(t *testing.T) {
	me := startEngine(t)

	_, err := me.CancelOrder(99)
	assert.ErrorIs(t, err, ErrUnknownOrder)

	// A drained id behaves exactly like one never seen.
	submit(t, me, newLimitOrder(1, models.OrderSideBuy, 100, 10))
	submit(t, me, newLimitOrder(2, models.OrderSideSell, 100, 10))
	_, err = me.CancelOrder(1)
	assert.ErrorIs(t, err, ErrUnknownOrder)
}

func TestCancelledLevelReclaimedDuringMatch(t *testing.T) {
	me := startEngine(t)

	submit(t, me, newLimitOrder(1, models.OrderSideSell, 100, 10))
	submit(t, me, newLimitOrder(2, models.OrderSideSell, 101, 10))
	_, err := me.CancelOrder(1)
	require.NoError(t, err)

	// The drained 100 level is skipped; the buy trades through to 101.
	result := submit(t, me, newLimitOrder(3, models.OrderSideBuy, 101, 10))
	require.Len(t, result.Trades, 1)
	assertTrade(t, result.Trades[0], 3, 2, 101, 10)
}

func TestInvalidOrderRejected(t *testing.T) {
	me := startEngine(t)

	_, err := me.SubmitOrder(newLimitOrder(1, models.OrderSideBuy, 100, 0))
	assert.Error(t, err)
	assert.Equal(t, 0, me.GetOrderBook().Size())
}
