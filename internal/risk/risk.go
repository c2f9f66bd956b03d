// Package risk implements the synchronous pre-trade checks the dispatcher
// runs after hold-filtering a signal and before converting it to an order:
// a daily realized-loss limit, a per-symbol max position notional cap, and
// a portfolio-wide exposure cap. Grounded on the teacher's
// internal/risk/risk_limits.go check-then-reject shape, generalized from
// its single-limit design to the specification's three independent checks.
package risk

import (
	"fmt"
	"sync"
	"time"
)

// Reason enumerates why a risk check rejected a signal, used as the
// risk_rejections_total{reason} metric label.
type Reason string

const (
	ReasonDailyLoss        Reason = "daily_loss_limit"
	ReasonMaxPositionSize  Reason = "max_position_size"
	ReasonPortfolioExposure Reason = "portfolio_exposure"
)

// RejectionError is returned by Engine.Check when a limit is breached.
type RejectionError struct {
	Reason Reason
	Detail string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("risk rejection (%s): %s", e.Reason, e.Detail)
}

// Limits configures the three checks.
type Limits struct {
	DailyLossLimit       float64
	MaxPositionNotional  float64
	MaxPortfolioExposure float64
}

// ExposureSource is the subset of the position manager the risk engine
// needs, kept as an interface so tests don't need a full manager.
type ExposureSource interface {
	SymbolExposure(symbol string) float64
	TotalExposure() float64
}

// Engine runs the synchronous pre-trade risk checks. It tracks the running
// daily realized loss itself, reset at UTC midnight, since that figure is
// engine-owned rather than derived from position state.
type Engine struct {
	mu          sync.Mutex
	limits      Limits
	dailyLoss   float64
	dayAnchor   time.Time
	exposure    ExposureSource
}

// NewEngine builds a risk engine against limits and a position exposure
// source.
func NewEngine(limits Limits, exposure ExposureSource) *Engine {
	return &Engine{limits: limits, exposure: exposure, dayAnchor: dayStart(time.Now())}
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// RecordRealizedPnL folds a closed trade's realized PnL into the running
// daily total, rolling over the counter if UTC midnight has passed since
// the last update.
func (e *Engine) RecordRealizedPnL(pnl float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rolloverLocked()
	if pnl < 0 {
		e.dailyLoss += -pnl
	}
}

func (e *Engine) rolloverLocked() {
	today := dayStart(time.Now())
	if today.After(e.dayAnchor) {
		e.dailyLoss = 0
		e.dayAnchor = today
	}
}

// DailyLoss returns the current day's accumulated realized loss.
func (e *Engine) DailyLoss() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rolloverLocked()
	return e.dailyLoss
}

// Check runs all three limits against a proposed order of notional
// orderNotional on symbol. It returns a *RejectionError naming the first
// limit breached, or nil if the order passes every check.
func (e *Engine) Check(symbol string, orderNotional float64) error {
	e.mu.Lock()
	e.rolloverLocked()
	dailyLoss := e.dailyLoss
	e.mu.Unlock()

	if e.limits.DailyLossLimit > 0 && dailyLoss >= e.limits.DailyLossLimit {
		return &RejectionError{Reason: ReasonDailyLoss, Detail: fmt.Sprintf("daily loss %.2f >= limit %.2f", dailyLoss, e.limits.DailyLossLimit)}
	}

	if e.limits.MaxPositionNotional > 0 {
		projected := e.exposure.SymbolExposure(symbol) + orderNotional
		if projected > e.limits.MaxPositionNotional {
			return &RejectionError{Reason: ReasonMaxPositionSize, Detail: fmt.Sprintf("projected symbol exposure %.2f > limit %.2f", projected, e.limits.MaxPositionNotional)}
		}
	}

	if e.limits.MaxPortfolioExposure > 0 {
		projected := e.exposure.TotalExposure() + orderNotional
		if projected > e.limits.MaxPortfolioExposure {
			return &RejectionError{Reason: ReasonPortfolioExposure, Detail: fmt.Sprintf("projected portfolio exposure %.2f > limit %.2f", projected, e.limits.MaxPortfolioExposure)}
		}
	}

	return nil
}
