package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdoElHodaky/hedgeengine/internal/exchange"
	"github.com/abdoElHodaky/hedgeengine/internal/lock"
	"github.com/abdoElHodaky/hedgeengine/internal/logging"
	"github.com/abdoElHodaky/hedgeengine/internal/oco"
	"github.com/abdoElHodaky/hedgeengine/internal/position"
	"github.com/abdoElHodaky/hedgeengine/internal/risk"
	"github.com/abdoElHodaky/hedgeengine/internal/signal"
	"github.com/abdoElHodaky/hedgeengine/internal/strategyposition"
)

// newTestDispatcher wires a Dispatcher whose lock.Manager wraps a nil Mongo
// collection. Every case exercised here returns before the pipeline reaches
// lock acquisition, so the nil collection is never dereferenced; the
// lock-acquire-through-venue-execution path needs a live Mongo deployment
// and is out of scope for this package's unit tests.
func newTestDispatcher(t *testing.T, adapter exchange.Adapter, riskEngine *risk.Engine) (*Dispatcher, *position.Manager, *strategyposition.Tracker) {
	t.Helper()
	positions := position.NewManager()
	strategies := strategyposition.NewTracker()
	locks := lock.NewManager(nil, time.Minute)
	d := New(Config{HolderID: "test-instance"}, logging.NewNop(), adapter, locks, riskEngine, positions, strategies, nil)
	return d, positions, strategies
}

func passingRisk() *risk.Engine {
	return risk.NewEngine(risk.Limits{}, noopExposure{})
}

type noopExposure struct{}

func (noopExposure) SymbolExposure(string) float64 { return 0 }
func (noopExposure) TotalExposure() float64        { return 0 }

func symbols() map[string]exchange.SymbolInfo {
	return map[string]exchange.SymbolInfo{
		"BTCUSDT": {Symbol: "BTCUSDT", QuantityStep: 0.001, MinQuantity: 0.001, MinNotional: 5, Status: "TRADING"},
	}
}

func TestDispatchRejectsMalformedSignal(t *testing.T) {
	d, _, _ := newTestDispatcher(t, exchange.NewSimAdapter(true, symbols()), passingRisk())
	_, err := d.Dispatch(context.Background(), signal.Signal{})
	assert.Error(t, err)
}

func TestDispatchHoldIsRejectedWithoutExecution(t *testing.T) {
	d, positions, _ := newTestDispatcher(t, exchange.NewSimAdapter(true, symbols()), passingRisk())
	s := signal.Signal{
		StrategyID: "s1", Symbol: "BTCUSDT", Action: signal.ActionHold,
		Confidence: 0.9, Timeframe: signal.Timeframe1h, CurrentPrice: 100,
	}
	result, err := d.Dispatch(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Rejected)
	assert.Equal(t, "hold", result.RejectReason)

	_, ok := positions.Get(position.Key{Symbol: "BTCUSDT", Side: "LONG"})
	assert.False(t, ok, "a hold signal must never open a position")
}

func TestDispatchRejectsBelowMinConfidenceAsValidationFailure(t *testing.T) {
	positions := position.NewManager()
	strategies := strategyposition.NewTracker()
	locks := lock.NewManager(nil, time.Minute)
	d := New(Config{MinConfidence: 0.5}, logging.NewNop(), exchange.NewSimAdapter(true, symbols()), locks, passingRisk(), positions, strategies, nil)

	s := signal.Signal{
		StrategyID: "s1", Symbol: "BTCUSDT", Action: signal.ActionBuy,
		Confidence: 0.1, Timeframe: signal.Timeframe1h, CurrentPrice: 100,
		Quantity: 1,
	}
	result, err := d.Dispatch(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Rejected)
	assert.Equal(t, "rejected_by_validation", result.RejectReason)

	_, ok := positions.Get(position.Key{Symbol: "BTCUSDT", Side: "LONG"})
	assert.False(t, ok, "a below-confidence signal must never open a position")
}

func TestDispatchRejectsSignalWithoutQuantityOrPositionSizePct(t *testing.T) {
	d, _, _ := newTestDispatcher(t, exchange.NewSimAdapter(true, symbols()), passingRisk())
	s := signal.Signal{
		StrategyID: "s1", Symbol: "BTCUSDT", Action: signal.ActionBuy,
		Confidence: 0.9, Timeframe: signal.Timeframe1h, CurrentPrice: 100,
	}
	_, err := d.Dispatch(context.Background(), s)
	assert.Error(t, err)
}

func TestDispatchRejectsPositionSizePctSizing(t *testing.T) {
	d, _, _ := newTestDispatcher(t, exchange.NewSimAdapter(true, symbols()), passingRisk())
	s := signal.Signal{
		StrategyID: "s1", Symbol: "BTCUSDT", Action: signal.ActionBuy,
		Confidence: 0.9, Timeframe: signal.Timeframe1h, CurrentPrice: 100,
		PositionSizePct: 0.1,
	}
	_, err := d.Dispatch(context.Background(), s)
	assert.Error(t, err, "position_size_pct sizing against account equity is out of this core's scope")
}

func TestDispatchRejectsOnRiskCheckBeforeTouchingTheLock(t *testing.T) {
	tightRisk := risk.NewEngine(risk.Limits{MaxPositionNotional: 1}, noopExposure{})
	d, positions, _ := newTestDispatcher(t, exchange.NewSimAdapter(true, symbols()), tightRisk)
	s := signal.Signal{
		StrategyID: "s1", Symbol: "BTCUSDT", Action: signal.ActionBuy,
		Confidence: 0.9, Timeframe: signal.Timeframe1h, CurrentPrice: 100,
		Quantity: 1,
	}
	result, err := d.Dispatch(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Rejected)

	_, ok := positions.Get(position.Key{Symbol: "BTCUSDT", Side: "LONG"})
	assert.False(t, ok)
}

func TestResolveQuantityFloorsAtVenueMinimum(t *testing.T) {
	d, _, _ := newTestDispatcher(t, exchange.NewSimAdapter(true, symbols()), passingRisk())
	s := signal.Signal{Symbol: "BTCUSDT", CurrentPrice: 100, Quantity: 0.0001}
	qty, err := d.resolveQuantity(s)
	require.NoError(t, err)
	assert.Equal(t, 0.05, qty, "min_notional 5 / price 100 floors the tiny requested quantity up to 0.05")
}

func TestResolveQuantityRejectsUnknownSymbol(t *testing.T) {
	d, _, _ := newTestDispatcher(t, exchange.NewSimAdapter(true, symbols()), passingRisk())
	s := signal.Signal{Symbol: "DOGEUSDT", CurrentPrice: 100, Quantity: 1}
	_, err := d.resolveQuantity(s)
	assert.Error(t, err)
}

func TestResolveProtectionPricesPrefersExplicitSignalLevels(t *testing.T) {
	d, _, _ := newTestDispatcher(t, exchange.NewSimAdapter(true, symbols()), passingRisk())
	s := signal.Signal{Action: signal.ActionBuy, StopLoss: 95, TakeProfit: 110}
	sl, tp := d.resolveProtectionPrices(s, 100)
	assert.Equal(t, 95.0, sl)
	assert.Equal(t, 110.0, tp)
}

func TestResolveProtectionPricesFallsBackToConfiguredPercentagesLong(t *testing.T) {
	positions := position.NewManager()
	strategies := strategyposition.NewTracker()
	locks := lock.NewManager(nil, time.Minute)
	d := New(Config{StopLossPct: 0.02, TakeProfitPct: 0.04}, logging.NewNop(), exchange.NewSimAdapter(true, symbols()), locks, passingRisk(), positions, strategies, nil)

	s := signal.Signal{Action: signal.ActionBuy}
	sl, tp := d.resolveProtectionPrices(s, 100)
	assert.InDelta(t, 98, sl, 1e-9)
	assert.InDelta(t, 104, tp, 1e-9)
}

func TestResolveProtectionPricesFallsBackToConfiguredPercentagesShort(t *testing.T) {
	positions := position.NewManager()
	strategies := strategyposition.NewTracker()
	locks := lock.NewManager(nil, time.Minute)
	d := New(Config{StopLossPct: 0.02, TakeProfitPct: 0.04}, logging.NewNop(), exchange.NewSimAdapter(true, symbols()), locks, passingRisk(), positions, strategies, nil)

	s := signal.Signal{Action: signal.ActionSell}
	sl, tp := d.resolveProtectionPrices(s, 100)
	assert.InDelta(t, 102, sl, 1e-9)
	assert.InDelta(t, 96, tp, 1e-9)
}

// ensure oco.Manager's zero value isn't silently required; a nil ocoMgr must
// be accepted by New. This test covers construction only.
func TestDispatcherToleratesNilOCOManager(t *testing.T) {
	var ocoMgr *oco.Manager
	positions := position.NewManager()
	strategies := strategyposition.NewTracker()
	locks := lock.NewManager(nil, time.Minute)
	d := New(Config{}, logging.NewNop(), exchange.NewSimAdapter(true, symbols()), locks, passingRisk(), positions, strategies, ocoMgr)
	assert.NotNil(t, d)
}
