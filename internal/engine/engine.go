// Package engine wires the aggregator, dispatcher, OCO manager, position
// manager, and strategy position tracker into the single object the HTTP
// and NATS entrypoints submit signals to. It owns the one piece of cross-
// component glue the specification leaves implicit: what happens to
// position and strategy-position state when an OCO leg fills.
package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/abdoElHodaky/hedgeengine/internal/aggregator"
	"github.com/abdoElHodaky/hedgeengine/internal/alert"
	"github.com/abdoElHodaky/hedgeengine/internal/dispatch"
	"github.com/abdoElHodaky/hedgeengine/internal/logging"
	"github.com/abdoElHodaky/hedgeengine/internal/metrics"
	"github.com/abdoElHodaky/hedgeengine/internal/oco"
	"github.com/abdoElHodaky/hedgeengine/internal/position"
	"github.com/abdoElHodaky/hedgeengine/internal/risk"
	"github.com/abdoElHodaky/hedgeengine/internal/signal"
	"github.com/abdoElHodaky/hedgeengine/internal/strategyposition"
)

// Engine is the assembled core the API and bus entrypoints drive.
type Engine struct {
	log          logging.Logger
	aggregator   *aggregator.Aggregator
	dispatcher   *dispatch.Dispatcher
	ocoMgr       *oco.Manager
	positions    *position.Manager
	strategies   *strategyposition.Tracker
	risk         *risk.Engine
	metrics      *metrics.Registry
	alerts       alert.Sink
}

// Build assembles the engine from already-constructed collaborators: the
// aggregator's onFlush is wired here to call Dispatch, and the OCO
// manager's onFill (set by the caller to e.OnOCOFill after construction)
// reduces position and strategy-position state on a protection fill, so no
// other package needs to know both exist.
func Build(
	log logging.Logger,
	aggCfg aggregator.Config,
	dispatchCfg dispatch.Config,
	positions *position.Manager,
	strategies *strategyposition.Tracker,
	riskEngine *risk.Engine,
	dispatcher *dispatch.Dispatcher,
	ocoMgr *oco.Manager,
	metricsReg *metrics.Registry,
	alerts alert.Sink,
) *Engine {
	e := &Engine{
		log:        log,
		dispatcher: dispatcher,
		ocoMgr:     ocoMgr,
		positions:  positions,
		strategies: strategies,
		risk:       riskEngine,
		metrics:    metricsReg,
		alerts:     alerts,
	}
	e.aggregator = aggregator.New(aggCfg, log, e.onDecision)
	return e
}

// Submit admits a signal into the aggregator, the single entrypoint both
// the HTTP handler and the NATS consumer call.
func (e *Engine) Submit(ctx context.Context, s signal.Signal) error {
	err := e.aggregator.Submit(ctx, s)
	if e.metrics != nil {
		if err != nil {
			e.metrics.SignalsRejected.WithLabelValues("malformed_signal").Inc()
		} else {
			e.metrics.SignalsReceived.WithLabelValues(s.Symbol).Inc()
		}
	}
	return err
}

func (e *Engine) onDecision(ctx context.Context, d aggregator.Decision) {
	if d.Winner == nil {
		if e.metrics != nil {
			outcome := d.RejectedReason
			if outcome == "" {
				outcome = "no_winner"
			}
			e.metrics.AggregationDecisions.WithLabelValues(outcome).Inc()
		}
		return
	}

	if e.metrics != nil {
		e.metrics.AggregationDecisions.WithLabelValues("dispatched").Inc()
	}

	res, err := e.dispatcher.Dispatch(ctx, *d.Winner)
	if err != nil {
		e.log.Error("engine: dispatch failed", zap.String("symbol", d.Winner.Symbol), zap.Error(err))
		if e.metrics != nil {
			e.metrics.VenueAPIFailures.WithLabelValues("dispatch_error").Inc()
		}
		return
	}
	if res.Rejected {
		if e.metrics != nil {
			e.metrics.RiskRejections.WithLabelValues(res.RejectReason).Inc()
		}
		return
	}
	if res.Order != nil && e.metrics != nil {
		e.metrics.OrdersPlaced.WithLabelValues(res.Order.Symbol, string(res.Order.Side)).Inc()
		if res.Order.IsTerminal() && res.Order.Status == "FILLED" {
			e.metrics.OrdersFilled.WithLabelValues(res.Order.Symbol).Inc()
		}
	}
	if res.OCOPair == nil && res.StrategyPositionID != "" && (d.Winner.StopLoss > 0 || d.Winner.TakeProfit > 0) {
		e.raiseUnprotected(ctx, res.StrategyPositionID, d.Winner.Symbol, "oco placement did not complete")
	}
}

func (e *Engine) raiseUnprotected(ctx context.Context, strategyPositionID, symbol, reason string) {
	if e.metrics != nil {
		e.metrics.StrategyUnprotected.Inc()
	}
	if e.alerts != nil {
		e.alerts.Send(ctx, alert.Unprotected(strategyPositionID, symbol, reason))
	}
}

// OnOCOFill is the oco.FillHandler that cmd/tradeengine sets on the OCO
// manager through SetFillHandler after both are constructed. It holds the
// pair's exchange-key mutex while it closes the filled share of the
// strategy position that owns the pair — and only that strategy's share —
// using its own entry price for PnL, then folds the realized PnL into the
// exchange position and the risk engine's daily loss tracking.
func (e *Engine) OnOCOFill(ctx context.Context, pair oco.OCOPair, side string, fillPrice float64) {
	keyMu := e.positions.LockKey(pair.ExchangeKey)
	keyMu.Lock()
	defer keyMu.Unlock()

	isLong := pair.ExchangeKey.Side == "LONG"

	sp, pnl, err := e.strategies.Reduce(pair.StrategyPositionID, pair.Quantity, fillPrice, isLong)
	if err != nil {
		e.log.Error("engine: failed to reduce strategy position on oco fill",
			zap.String("strategy_position_id", pair.StrategyPositionID), zap.Error(err))
		return
	}

	if _, err := e.positions.ReduceQuantity(pair.ExchangeKey, pair.Quantity, pnl, pair.StrategyPositionID); err != nil {
		e.log.Error("engine: failed to reduce exchange position on oco fill",
			zap.String("exchange_key", pair.ExchangeKey.String()), zap.Error(err))
	}

	e.risk.RecordRealizedPnL(pnl)

	if pair.ClosedReason == "both_filled_anomaly" {
		if e.metrics != nil {
			e.metrics.OCOAnomalies.Inc()
		}
		if e.alerts != nil {
			e.alerts.Send(ctx, alert.OCOAnomaly(pair.PairID, pair.ExchangeKey.Symbol))
		}
	}

	e.log.Info("engine: oco leg filled, strategy position reduced",
		zap.String("strategy_position_id", sp.StrategyPositionID),
		zap.String("side", side), zap.Float64("pnl", pnl))
}

// Positions exposes the position manager for read-only API handlers.
func (e *Engine) Positions() *position.Manager { return e.positions }

// Strategies exposes the strategy position tracker for read-only API
// handlers.
func (e *Engine) Strategies() *strategyposition.Tracker { return e.strategies }

// OCOManager exposes the OCO manager for read-only API handlers and
// lifecycle control.
func (e *Engine) OCOManager() *oco.Manager { return e.ocoMgr }
