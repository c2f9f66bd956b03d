// Package aggregator collects signals from every configured source over a
// sliding window keyed by (symbol, position_side), resolves conflicts
// between signals pointed at the same key, and forwards the winner to the
// dispatcher. Grounded on the teacher's per-key actor pattern in
// internal/architecture/coordination.LockManager (one goroutine and
// channel per resource key rather than a single global mutex), generalized
// from lock bookkeeping to windowed signal accumulation.
package aggregator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/abdoElHodaky/hedgeengine/internal/logging"
	"github.com/abdoElHodaky/hedgeengine/internal/signal"
)

// ResolutionPolicy selects which of several conflicting signals wins.
type ResolutionPolicy string

const (
	PolicyHigherTimeframeWins     ResolutionPolicy = "higher_timeframe_wins"
	PolicyTimeframeWeighted       ResolutionPolicy = "timeframe_weighted"
	PolicyStrongestWins           ResolutionPolicy = "strongest_wins"
	PolicyFirstComeFirstServed    ResolutionPolicy = "first_come_first_served"
	PolicyManualReview            ResolutionPolicy = "manual_review"
)

// SameDirectionPolicy controls what happens when two signals for the same
// (symbol, position_side) agree on direction within one window.
type SameDirectionPolicy string

const (
	SameDirectionAccumulate SameDirectionPolicy = "accumulate"
	SameDirectionReplace    SameDirectionPolicy = "replace"
	SameDirectionReject     SameDirectionPolicy = "reject"
)

var strengthRank = map[signal.Strength]int{
	signal.StrengthWeak:     1,
	signal.StrengthModerate: 2,
	signal.StrengthStrong:   3,
}

// Config configures the aggregator's window and conflict resolution.
// Minimum-confidence filtering is not an aggregator concern: it belongs to
// the Dispatcher's Validate step, which reports a rejected_by_validation
// status rather than silently dropping the signal.
type Config struct {
	Window              time.Duration
	Policy              ResolutionPolicy
	SameDirectionPolicy SameDirectionPolicy
}

// Decision is the aggregator's output for one resolved window: either a
// winning signal to dispatch, or a rejection/manual-review outcome.
type Decision struct {
	Key            string
	Winner         *signal.Signal
	Accumulated    []signal.Signal // when SameDirectionAccumulate combined several
	RejectedReason string          // non-empty when the window produced no actionable signal
	ManualReview   bool
}

// DecisionHandler receives the aggregator's resolved decision for a
// window, typically wired to the dispatcher's entrypoint.
type DecisionHandler func(ctx context.Context, d Decision)

// key uniquely identifies an aggregation window: hedge mode means LONG and
// SHORT signals on the same symbol never conflict, so side is part of the
// key, not an attribute resolved after the fact.
type key struct {
	Symbol string
	Side   string // "LONG" or "SHORT", derived from signal.ResolvedSide()
}

// window accumulates signals for one key over the configured duration.
type window struct {
	mu       sync.Mutex
	signals  []signal.Signal
	timer    *time.Timer
}

// Aggregator fans incoming signals out to one per-key window, each flushed
// independently once its own timer fires — mirroring the teacher's
// per-resource actor rather than a single global tick.
type Aggregator struct {
	cfg     Config
	log     logging.Logger
	onFlush DecisionHandler

	mu      sync.Mutex
	windows map[key]*window
}

// New builds an Aggregator. onFlush is invoked once per window close.
func New(cfg Config, log logging.Logger, onFlush DecisionHandler) *Aggregator {
	if cfg.Window <= 0 {
		cfg.Window = 200 * time.Millisecond
	}
	return &Aggregator{
		cfg:     cfg,
		log:     log,
		onFlush: onFlush,
		windows: make(map[key]*window),
	}
}

// Submit validates and admits a signal into its window, opening a new
// window (and starting its flush timer) if none is currently accumulating
// for this (symbol, side). A hold action or a malformed signal never opens
// or extends a window.
func (a *Aggregator) Submit(ctx context.Context, s signal.Signal) error {
	if err := s.Validate(); err != nil {
		a.log.Warn("aggregator: rejecting malformed signal",
			zap.String("strategy_id", s.StrategyID), zap.Error(err))
		return err
	}
	if s.ArrivalTime.IsZero() {
		s.ArrivalTime = time.Now()
	}

	if s.Action == signal.ActionHold {
		a.dispatchHold(ctx, s)
		return nil
	}

	if s.Immediate {
		a.resolveAndFlush(ctx, key{Symbol: s.Symbol, Side: s.ResolvedSide()}, []signal.Signal{s})
		return nil
	}

	k := key{Symbol: s.Symbol, Side: s.ResolvedSide()}

	a.mu.Lock()
	w, exists := a.windows[k]
	if !exists {
		w = &window{}
		a.windows[k] = w
		w.timer = time.AfterFunc(a.cfg.Window, func() {
			a.flush(ctx, k)
		})
	}
	a.mu.Unlock()

	w.mu.Lock()
	w.signals = append(w.signals, s)
	w.mu.Unlock()

	return nil
}

// dispatchHold forwards a hold signal straight through as a decision with
// no winner, letting the dispatcher record/ignore it without it ever
// contending with a buy/sell signal for the same key's window.
func (a *Aggregator) dispatchHold(ctx context.Context, s signal.Signal) {
	if a.onFlush == nil {
		return
	}
	a.onFlush(ctx, Decision{
		Key:            key{Symbol: s.Symbol, Side: s.ResolvedSide()}.String(),
		RejectedReason: "hold",
	})
}

func (k key) String() string { return k.Symbol + ":" + k.Side }

func (a *Aggregator) flush(ctx context.Context, k key) {
	a.mu.Lock()
	w, ok := a.windows[k]
	if ok {
		delete(a.windows, k)
	}
	a.mu.Unlock()
	if !ok {
		return
	}

	w.mu.Lock()
	signals := w.signals
	w.mu.Unlock()

	if len(signals) == 0 {
		return
	}

	a.resolveAndFlush(ctx, k, signals)
}

func (a *Aggregator) resolveAndFlush(ctx context.Context, k key, signals []signal.Signal) {
	decision := a.resolve(k, signals)
	if a.onFlush != nil {
		a.onFlush(ctx, decision)
	}
}

// resolve applies the conflict resolution policy. Opposite-direction
// signals never reach here together since they key on different (symbol,
// side) pairs in hedge mode; resolve only ever sees same-(symbol,side)
// signals, which may still disagree in direction if a strategy flips its
// own call mid-window, or agree in direction and need the
// same-direction policy instead.
func (a *Aggregator) resolve(k key, signals []signal.Signal) Decision {
	if len(signals) == 1 {
		return Decision{Key: k.String(), Winner: &signals[0]}
	}

	buys, sells := split(signals)
	if len(buys) > 0 && len(sells) > 0 {
		return a.resolveOpposing(k, buys, sells)
	}

	same := buys
	if len(same) == 0 {
		same = sells
	}
	return a.resolveSameDirection(k, same)
}

func split(signals []signal.Signal) (buys, sells []signal.Signal) {
	for _, s := range signals {
		if s.Action == signal.ActionBuy {
			buys = append(buys, s)
		} else if s.Action == signal.ActionSell {
			sells = append(sells, s)
		}
	}
	return
}

func (a *Aggregator) resolveSameDirection(k key, signals []signal.Signal) Decision {
	switch a.cfg.SameDirectionPolicy {
	case SameDirectionReject:
		if len(signals) > 1 {
			return Decision{Key: k.String(), RejectedReason: "same_direction_conflict"}
		}
		return Decision{Key: k.String(), Winner: &signals[0]}
	case SameDirectionReplace:
		latest := signals[0]
		for _, s := range signals[1:] {
			if s.ArrivalTime.After(latest.ArrivalTime) {
				latest = s
			}
		}
		return Decision{Key: k.String(), Winner: &latest}
	default: // accumulate
		winner := signals[0]
		return Decision{Key: k.String(), Winner: &winner, Accumulated: signals}
	}
}

func (a *Aggregator) resolveOpposing(k key, buys, sells []signal.Signal) Decision {
	switch a.cfg.Policy {
	case PolicyHigherTimeframeWins:
		return Decision{Key: k.String(), Winner: pickHighestTimeframe(buys, sells)}
	case PolicyStrongestWins:
		return Decision{Key: k.String(), Winner: pickStrongest(buys, sells)}
	case PolicyFirstComeFirstServed:
		return Decision{Key: k.String(), Winner: pickEarliest(buys, sells)}
	case PolicyManualReview:
		return Decision{Key: k.String(), ManualReview: true, RejectedReason: "manual_review_required"}
	default: // timeframe_weighted
		return Decision{Key: k.String(), Winner: pickTimeframeWeighted(buys, sells)}
	}
}

func weightOf(tf signal.Timeframe) float64 {
	w, _ := tf.Weight()
	return w
}

func allOf(buys, sells []signal.Signal) []signal.Signal {
	out := make([]signal.Signal, 0, len(buys)+len(sells))
	out = append(out, buys...)
	out = append(out, sells...)
	return out
}

func pickHighestTimeframe(buys, sells []signal.Signal) *signal.Signal {
	all := allOf(buys, sells)
	best := &all[0]
	for i := 1; i < len(all); i++ {
		if weightOf(all[i].Timeframe) > weightOf(best.Timeframe) {
			best = &all[i]
		}
	}
	return best
}

func pickStrongest(buys, sells []signal.Signal) *signal.Signal {
	all := allOf(buys, sells)
	best := &all[0]
	bestScore := strengthRank[best.Strength]
	for i := 1; i < len(all); i++ {
		score := strengthRank[all[i].Strength]
		if score > bestScore {
			best = &all[i]
			bestScore = score
		}
	}
	return best
}

func pickEarliest(buys, sells []signal.Signal) *signal.Signal {
	all := allOf(buys, sells)
	best := &all[0]
	for i := 1; i < len(all); i++ {
		if all[i].ArrivalTime.Before(best.ArrivalTime) {
			best = &all[i]
		}
	}
	return best
}

// pickTimeframeWeighted sums confidence*timeframe_weight per direction and
// returns the single highest-weighted signal on the winning side.
func pickTimeframeWeighted(buys, sells []signal.Signal) *signal.Signal {
	buyScore, sellScore := weighSide(buys), weighSide(sells)
	side := buys
	if sellScore > buyScore {
		side = sells
	}
	best := &side[0]
	bestWeight := best.Confidence * weightOf(best.Timeframe)
	for i := 1; i < len(side); i++ {
		w := side[i].Confidence * weightOf(side[i].Timeframe)
		if w > bestWeight {
			best = &side[i]
			bestWeight = w
		}
	}
	return best
}

func weighSide(signals []signal.Signal) float64 {
	var total float64
	for _, s := range signals {
		total += s.Confidence * weightOf(s.Timeframe)
	}
	return total
}
