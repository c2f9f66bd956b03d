package exchange

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdoElHodaky/hedgeengine/internal/order"
)

func btcSymbols() map[string]SymbolInfo {
	return map[string]SymbolInfo{
		"BTCUSDT": {Symbol: "BTCUSDT", PriceTick: 0.5, QuantityStep: 0.001, MinQuantity: 0.001, MinNotional: 5, Status: "TRADING"},
	}
}

func TestFormatQuantityRoundsDownToStep(t *testing.T) {
	a := NewSimAdapter(true, btcSymbols())
	qty, err := a.FormatQuantity("BTCUSDT", 0.0137)
	require.NoError(t, err)
	assert.InDelta(t, 0.013, qty, 1e-9)
}

func TestFormatPriceRoundsToNearestTick(t *testing.T) {
	a := NewSimAdapter(true, btcSymbols())
	price, err := a.FormatPrice("BTCUSDT", 100.26)
	require.NoError(t, err)
	assert.InDelta(t, 100.5, price, 1e-9)
}

func TestFormatQuantityUnknownSymbolIsNonRetryable(t *testing.T) {
	a := NewSimAdapter(true, btcSymbols())
	_, err := a.FormatQuantity("DOGEUSDT", 1)
	require.Error(t, err)
	var re RetryableError
	require.ErrorAs(t, err, &re)
	assert.False(t, re.Retryable())
}

func TestCalcMinQuantityUsesNotionalFloorWhenLarger(t *testing.T) {
	a := NewSimAdapter(true, btcSymbols())
	// min_notional 5 / price 1000 = 0.005, above min_quantity 0.001.
	min, err := a.CalcMinQuantity("BTCUSDT", 1000)
	require.NoError(t, err)
	assert.InDelta(t, 0.005, min, 1e-9)
}

func TestCalcMinQuantityFallsBackToMinQuantityFloor(t *testing.T) {
	a := NewSimAdapter(true, btcSymbols())
	// min_notional 5 / price 100000 = 0.00005, below min_quantity 0.001.
	min, err := a.CalcMinQuantity("BTCUSDT", 100000)
	require.NoError(t, err)
	assert.Equal(t, 0.001, min)
}

func TestCalcMinQuantityRejectsNonPositivePrice(t *testing.T) {
	a := NewSimAdapter(true, btcSymbols())
	_, err := a.CalcMinQuantity("BTCUSDT", 0)
	assert.Error(t, err)
}

func TestPlaceOrderMarketFillsImmediately(t *testing.T) {
	a := NewSimAdapter(true, btcSymbols())
	o := order.New("BTCUSDT", order.SideBuy, order.TypeMarket, 1, 100, order.PositionSideLong)
	res, err := a.PlaceOrder(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, order.StatusFilled, res.Status)
	assert.Equal(t, 100.0, res.AvgFillPrice)
}

func TestPlaceOrderStopStartsOpenUntilFilled(t *testing.T) {
	a := NewSimAdapter(true, btcSymbols())
	o := order.New("BTCUSDT", order.SideSell, order.TypeStop, 1, 90, order.PositionSideLong)
	res, err := a.PlaceOrder(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, order.StatusNew, res.Status)

	open, err := a.ListOpenOrders(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, o.OrderID, open[0].OrderID)
}

func TestSetFillPriceOverridesMarketFillPrice(t *testing.T) {
	a := NewSimAdapter(true, btcSymbols())
	o := order.New("BTCUSDT", order.SideBuy, order.TypeLimit, 1, 100, order.PositionSideLong)
	a.SetFillPrice(o.OrderID, 95)
	res, err := a.PlaceOrder(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, 95.0, res.AvgFillPrice)
}

func TestQueryOrderChecksOpenThenTerminalThenDefaultsToFilled(t *testing.T) {
	a := NewSimAdapter(true, btcSymbols())
	o := order.New("BTCUSDT", order.SideSell, order.TypeStop, 1, 90, order.PositionSideLong)
	_, err := a.PlaceOrder(context.Background(), o)
	require.NoError(t, err)

	res, err := a.QueryOrder(context.Background(), "BTCUSDT", o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusNew, res.Status, "still open")

	require.NoError(t, a.Fill("BTCUSDT", o.OrderID))
	res, err = a.QueryOrder(context.Background(), "BTCUSDT", o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusFilled, res.Status, "now terminal")

	res, err = a.QueryOrder(context.Background(), "BTCUSDT", "never-placed")
	require.NoError(t, err)
	assert.Equal(t, order.StatusFilled, res.Status, "unknown order id defaults to filled")
}

func TestCancelOrderIsIdempotentOnAbsentOrder(t *testing.T) {
	a := NewSimAdapter(true, btcSymbols())
	err := a.CancelOrder(context.Background(), "BTCUSDT", "never-placed")
	assert.NoError(t, err)
}

func TestVerifyHedgeModeReportsConfiguredValue(t *testing.T) {
	a := NewSimAdapter(true, btcSymbols())
	ok, err := a.VerifyHedgeMode(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}
