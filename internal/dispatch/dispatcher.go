// Package dispatch sequences order execution under a distributed lock:
// validate and hold filter, quantity sizing, risk check, lock acquire,
// signal-to-order conversion, venue execution, post-trade bookkeeping, lock
// release. Grounded
// on the split-into-processors pipeline style of the teacher's
// internal/orders service, generalized with the distributed lock and
// hedge-mode bookkeeping steps the specification adds. Each pipeline step
// lives in its own file (validate.go, risk.go, convert.go, execute.go,
// posttrade.go), with this file sequencing them.
package dispatch

import (
	"context"
	"time"

	"github.com/abdoElHodaky/hedgeengine/internal/apperrors"
	"github.com/abdoElHodaky/hedgeengine/internal/exchange"
	"github.com/abdoElHodaky/hedgeengine/internal/lock"
	"github.com/abdoElHodaky/hedgeengine/internal/logging"
	"github.com/abdoElHodaky/hedgeengine/internal/oco"
	"github.com/abdoElHodaky/hedgeengine/internal/order"
	"github.com/abdoElHodaky/hedgeengine/internal/position"
	"github.com/abdoElHodaky/hedgeengine/internal/risk"
	"github.com/abdoElHodaky/hedgeengine/internal/signal"
	"github.com/abdoElHodaky/hedgeengine/internal/strategyposition"
)

// Config configures dispatcher-owned defaults not carried on the signal
// itself.
type Config struct {
	LockTimeout      time.Duration
	DefaultOrderType order.Type
	StopLossPct      float64
	TakeProfitPct    float64
	MinConfidence    float64
	HolderID         string
}

// Dispatcher owns the sequencing of a resolved aggregator decision into an
// executed, protected, attributed trade.
type Dispatcher struct {
	cfg        Config
	log        logging.Logger
	adapter    exchange.Adapter
	locks      *lock.Manager
	risk       *risk.Engine
	positions  *position.Manager
	strategies *strategyposition.Tracker
	ocoMgr     *oco.Manager
}

// New wires a Dispatcher from its collaborators.
func New(cfg Config, log logging.Logger, adapter exchange.Adapter, locks *lock.Manager, riskEngine *risk.Engine, positions *position.Manager, strategies *strategyposition.Tracker, ocoMgr *oco.Manager) *Dispatcher {
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 60 * time.Second
	}
	if cfg.DefaultOrderType == "" {
		cfg.DefaultOrderType = order.TypeMarket
	}
	return &Dispatcher{
		cfg:        cfg,
		log:        log,
		adapter:    adapter,
		locks:      locks,
		risk:       riskEngine,
		positions:  positions,
		strategies: strategies,
		ocoMgr:     ocoMgr,
	}
}

// Result is the outcome of dispatching one signal.
type Result struct {
	Order              *order.TradeOrder
	StrategyPositionID string
	OCOPair            *oco.OCOPair
	Rejected           bool
	RejectReason       string
}

// Dispatch runs the full pipeline for a single resolved signal: validate,
// size, risk-check, lock, convert, execute, post-trade. It always releases
// any lock it acquired, even on a panic recovered by the caller's
// goroutine wrapper, since release happens via defer immediately after
// acquire succeeds.
func (d *Dispatcher) Dispatch(ctx context.Context, s signal.Signal) (*Result, error) {
	if rejected, err := d.validate(s); err != nil || rejected != nil {
		return rejected, err
	}

	positionSide, side := resolveSides(s)
	key := position.Key{Symbol: s.Symbol, Side: positionSide}

	quantity, err := d.resolveQuantity(s)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "quantity_resolution_failed", err.Error(), err)
	}

	notional := quantity * s.CurrentPrice
	if rejected, err := d.checkRisk(s.Symbol, s.StrategyID, notional); err != nil || rejected != nil {
		return rejected, err
	}

	keyMu := d.positions.LockKey(key)
	keyMu.Lock()
	defer keyMu.Unlock()

	release, err := d.acquireLock(ctx, "dispatch:"+key.String())
	if err != nil {
		return nil, err
	}
	defer release()

	tradeOrder := d.buildOrder(s, side, positionSide, quantity)

	placeResult, err := d.placeOnVenue(ctx, tradeOrder)
	if err != nil {
		return nil, err
	}

	return d.applyPostTrade(ctx, s, key, tradeOrder, placeResult)
}
