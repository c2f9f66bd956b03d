package aggregator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdoElHodaky/hedgeengine/internal/logging"
	"github.com/abdoElHodaky/hedgeengine/internal/signal"
)

func baseSignal(strategyID, symbol string, action signal.Action, confidence float64, tf signal.Timeframe, arrival time.Time) signal.Signal {
	return signal.Signal{
		StrategyID:   strategyID,
		Symbol:       symbol,
		Action:       action,
		Confidence:   confidence,
		Timeframe:    tf,
		CurrentPrice: 100,
		ArrivalTime:  arrival,
	}
}

type capture struct {
	mu        sync.Mutex
	decisions []Decision
}

func (c *capture) handle(ctx context.Context, d Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decisions = append(c.decisions, d)
}

func (c *capture) all() []Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Decision, len(c.decisions))
	copy(out, c.decisions)
	return out
}

func TestSubmitRejectsMalformedSignal(t *testing.T) {
	cap := &capture{}
	a := New(Config{Window: 20 * time.Millisecond}, logging.NewNop(), cap.handle)
	err := a.Submit(context.Background(), signal.Signal{})
	assert.Error(t, err)
}

func TestSubmitAdmitsLowConfidenceSignalIntoWindow(t *testing.T) {
	// Minimum-confidence filtering belongs to the Dispatcher's Validate
	// step (rejected_by_validation), not the aggregator, so the
	// aggregator must admit a low-confidence signal into its window
	// rather than drop it.
	cap := &capture{}
	a := New(Config{Window: 20 * time.Millisecond}, logging.NewNop(), cap.handle)
	err := a.Submit(context.Background(), baseSignal("s1", "BTCUSDT", signal.ActionBuy, 0.01, signal.Timeframe1h, time.Now()))
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)

	decisions := cap.all()
	require.Len(t, decisions, 1)
	require.NotNil(t, decisions[0].Winner)
	assert.Equal(t, 0.01, decisions[0].Winner.Confidence)
}

func TestHoldBypassesWindowingEntirely(t *testing.T) {
	cap := &capture{}
	a := New(Config{Window: time.Hour}, logging.NewNop(), cap.handle)
	err := a.Submit(context.Background(), baseSignal("s1", "BTCUSDT", signal.ActionHold, 0.9, signal.Timeframe1h, time.Now()))
	require.NoError(t, err)

	decisions := cap.all()
	require.Len(t, decisions, 1)
	assert.Nil(t, decisions[0].Winner)
	assert.Equal(t, "hold", decisions[0].RejectedReason)
}

func TestImmediateSignalBypassesWindowing(t *testing.T) {
	cap := &capture{}
	a := New(Config{Window: time.Hour}, logging.NewNop(), cap.handle)
	s := baseSignal("s1", "BTCUSDT", signal.ActionBuy, 0.9, signal.Timeframe1h, time.Now())
	s.Immediate = true
	err := a.Submit(context.Background(), s)
	require.NoError(t, err)

	decisions := cap.all()
	require.Len(t, decisions, 1)
	require.NotNil(t, decisions[0].Winner)
	assert.Equal(t, "s1", decisions[0].Winner.StrategyID)
}

func TestWindowFlushesAfterDuration(t *testing.T) {
	cap := &capture{}
	a := New(Config{Window: 30 * time.Millisecond}, logging.NewNop(), cap.handle)
	err := a.Submit(context.Background(), baseSignal("s1", "BTCUSDT", signal.ActionBuy, 0.9, signal.Timeframe1h, time.Now()))
	require.NoError(t, err)

	assert.Empty(t, cap.all(), "a window must not flush before its duration elapses")
	time.Sleep(60 * time.Millisecond)
	assert.Len(t, cap.all(), 1)
}

func TestHedgeModeSidesNeverContendInTheSameWindow(t *testing.T) {
	cap := &capture{}
	a := New(Config{Window: 30 * time.Millisecond, Policy: PolicyStrongestWins}, logging.NewNop(), cap.handle)
	now := time.Now()
	require.NoError(t, a.Submit(context.Background(), baseSignal("s1", "BTCUSDT", signal.ActionBuy, 0.9, signal.Timeframe1h, now)))
	require.NoError(t, a.Submit(context.Background(), baseSignal("s2", "BTCUSDT", signal.ActionSell, 0.9, signal.Timeframe1h, now)))

	time.Sleep(60 * time.Millisecond)
	decisions := cap.all()
	require.Len(t, decisions, 2, "a LONG-side buy and a SHORT-side sell on the same symbol key into independent windows")
	for _, d := range decisions {
		require.NotNil(t, d.Winner)
	}
}

func TestResolveSameDirectionAccumulate(t *testing.T) {
	a := New(Config{SameDirectionPolicy: SameDirectionAccumulate}, logging.NewNop(), nil)
	now := time.Now()
	signals := []signal.Signal{
		baseSignal("s1", "BTCUSDT", signal.ActionBuy, 0.5, signal.Timeframe1h, now),
		baseSignal("s2", "BTCUSDT", signal.ActionBuy, 0.6, signal.Timeframe1h, now.Add(time.Millisecond)),
	}
	d := a.resolve(key{Symbol: "BTCUSDT", Side: "LONG"}, signals)
	require.NotNil(t, d.Winner)
	assert.Len(t, d.Accumulated, 2)
}

func TestResolveSameDirectionReplaceTakesLatest(t *testing.T) {
	a := New(Config{SameDirectionPolicy: SameDirectionReplace}, logging.NewNop(), nil)
	now := time.Now()
	signals := []signal.Signal{
		baseSignal("s1", "BTCUSDT", signal.ActionBuy, 0.5, signal.Timeframe1h, now),
		baseSignal("s2", "BTCUSDT", signal.ActionBuy, 0.6, signal.Timeframe1h, now.Add(time.Millisecond)),
	}
	d := a.resolve(key{Symbol: "BTCUSDT", Side: "LONG"}, signals)
	require.NotNil(t, d.Winner)
	assert.Equal(t, "s2", d.Winner.StrategyID)
}

func TestResolveSameDirectionRejectOnMultiple(t *testing.T) {
	a := New(Config{SameDirectionPolicy: SameDirectionReject}, logging.NewNop(), nil)
	now := time.Now()
	signals := []signal.Signal{
		baseSignal("s1", "BTCUSDT", signal.ActionBuy, 0.5, signal.Timeframe1h, now),
		baseSignal("s2", "BTCUSDT", signal.ActionBuy, 0.6, signal.Timeframe1h, now),
	}
	d := a.resolve(key{Symbol: "BTCUSDT", Side: "LONG"}, signals)
	assert.Nil(t, d.Winner)
	assert.Equal(t, "same_direction_conflict", d.RejectedReason)
}

func TestResolveOpposingHigherTimeframeWins(t *testing.T) {
	a := New(Config{Policy: PolicyHigherTimeframeWins}, logging.NewNop(), nil)
	now := time.Now()
	buys := []signal.Signal{baseSignal("s1", "BTCUSDT", signal.ActionBuy, 0.5, signal.Timeframe1m, now)}
	sells := []signal.Signal{baseSignal("s2", "BTCUSDT", signal.ActionSell, 0.5, signal.Timeframe1d, now)}
	d := a.resolveOpposing(key{Symbol: "BTCUSDT", Side: "LONG"}, buys, sells)
	require.NotNil(t, d.Winner)
	assert.Equal(t, "s2", d.Winner.StrategyID, "1d outweighs 1m")
}

func TestResolveOpposingStrongestWins(t *testing.T) {
	a := New(Config{Policy: PolicyStrongestWins}, logging.NewNop(), nil)
	now := time.Now()
	buys := []signal.Signal{{StrategyID: "s1", Action: signal.ActionBuy, Strength: signal.StrengthWeak, ArrivalTime: now}}
	sells := []signal.Signal{{StrategyID: "s2", Action: signal.ActionSell, Strength: signal.StrengthStrong, ArrivalTime: now}}
	d := a.resolveOpposing(key{Symbol: "BTCUSDT", Side: "LONG"}, buys, sells)
	require.NotNil(t, d.Winner)
	assert.Equal(t, "s2", d.Winner.StrategyID)
}

func TestResolveOpposingFirstComeFirstServed(t *testing.T) {
	a := New(Config{Policy: PolicyFirstComeFirstServed}, logging.NewNop(), nil)
	now := time.Now()
	buys := []signal.Signal{{StrategyID: "s1", Action: signal.ActionBuy, ArrivalTime: now.Add(10 * time.Millisecond)}}
	sells := []signal.Signal{{StrategyID: "s2", Action: signal.ActionSell, ArrivalTime: now}}
	d := a.resolveOpposing(key{Symbol: "BTCUSDT", Side: "LONG"}, buys, sells)
	require.NotNil(t, d.Winner)
	assert.Equal(t, "s2", d.Winner.StrategyID, "earlier arrival wins")
}

func TestResolveOpposingManualReview(t *testing.T) {
	a := New(Config{Policy: PolicyManualReview}, logging.NewNop(), nil)
	buys := []signal.Signal{{StrategyID: "s1", Action: signal.ActionBuy}}
	sells := []signal.Signal{{StrategyID: "s2", Action: signal.ActionSell}}
	d := a.resolveOpposing(key{Symbol: "BTCUSDT", Side: "LONG"}, buys, sells)
	assert.Nil(t, d.Winner)
	assert.True(t, d.ManualReview)
}

func TestResolveOpposingTimeframeWeighted(t *testing.T) {
	a := New(Config{Policy: PolicyTimeframeWeighted}, logging.NewNop(), nil)
	now := time.Now()
	// buy side: one weak-timeframe high-confidence signal.
	buys := []signal.Signal{baseSignal("s1", "BTCUSDT", signal.ActionBuy, 0.9, signal.TimeframeTick, now)}
	// sell side: one strong-timeframe signal that should outweigh it.
	sells := []signal.Signal{baseSignal("s2", "BTCUSDT", signal.ActionSell, 0.9, signal.Timeframe1w, now)}
	d := a.resolveOpposing(key{Symbol: "BTCUSDT", Side: "LONG"}, buys, sells)
	require.NotNil(t, d.Winner)
	assert.Equal(t, "s2", d.Winner.StrategyID)
}
