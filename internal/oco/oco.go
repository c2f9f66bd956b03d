// Package oco enforces one-cancels-other across concurrent strategies that
// share an exchange position: each OCOPair belongs to exactly one
// strategy_position_id, and closing it must never touch another strategy's
// protection orders on the same (symbol, position_side). Grounded on the
// teacher's NatsEventBus/LockManager goroutine-lifecycle shape (a
// long-lived background loop started with a cancellable context and
// stopped via a done channel) generalized to a polling monitor.
package oco

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/hedgeengine/internal/apperrors"
	"github.com/abdoElHodaky/hedgeengine/internal/exchange"
	"github.com/abdoElHodaky/hedgeengine/internal/logging"
	"github.com/abdoElHodaky/hedgeengine/internal/order"
	"github.com/abdoElHodaky/hedgeengine/internal/position"
)

// PairStatus is the lifecycle state of an OCO pair.
type PairStatus string

const (
	PairActive      PairStatus = "active"
	PairClosed      PairStatus = "closed"
	PairCancelled   PairStatus = "cancelled"
	PairUnprotected PairStatus = "unprotected" // one leg failed to place; alert raised
)

// OCOPair is one stop-loss/take-profit pair protecting a single strategy's
// share of an exchange position.
type OCOPair struct {
	PairID             string
	ExchangeKey        position.Key
	StrategyPositionID string
	SLOrderID          string
	TPOrderID          string
	Quantity           float64
	Status             PairStatus
	CreatedAt          time.Time
	ClosedAt           time.Time
	ClosedReason       string // "sl_filled", "tp_filled", "cancelled", "both_filled_anomaly"
}

// FillHandler is invoked by the monitor when one leg of a pair fills,
// letting the caller (the dispatcher's wiring) update position and
// strategy-position state and release any anomaly alerts. side is "sl" or
// "tp".
type FillHandler func(ctx context.Context, pair OCOPair, side string, fillPrice float64)

// Manager owns active_pairs[exchange_key][]*OCOPair and the background
// monitor that polls the venue for leg fills.
type Manager struct {
	adapter exchange.Adapter
	log     logging.Logger
	onFill  FillHandler

	mu    sync.Mutex
	pairs map[position.Key][]*OCOPair

	pollInterval time.Duration
	stopCh       chan struct{}
	doneCh       chan struct{}
}

// NewManager constructs an OCO Manager. onFill may be nil; pollInterval
// defaults to 2s, the specification's default OCO monitor interval.
func NewManager(adapter exchange.Adapter, log logging.Logger, pollInterval time.Duration, onFill FillHandler) *Manager {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Manager{
		adapter:      adapter,
		log:          log,
		onFill:       onFill,
		pairs:        make(map[position.Key][]*OCOPair),
		pollInterval: pollInterval,
	}
}

// PlacePair places a stop-loss and take-profit order protecting quantity of
// a strategy's share of key, honoring the hedge-mode side convention: a
// LONG position is protected by two SELL orders (stop-market SL,
// take-profit-market TP); a SHORT position by two BUY orders. If the SL leg
// fails, nothing is placed. If the TP leg fails, the SL leg is cancelled and
// no pair is returned; only when that cancel also fails is the pair
// registered and returned as unprotected.
func (m *Manager) PlacePair(ctx context.Context, key position.Key, strategyPositionID string, quantity, slPrice, tpPrice float64) (*OCOPair, error) {
	side := order.SideSell
	if key.Side == order.PositionSideShort {
		side = order.SideBuy
	}

	slOrder := order.New(key.Symbol, side, order.TypeStop, quantity, slPrice, key.Side)
	slOrder.StopPrice = slPrice
	slOrder.ReduceOnly = true

	tpOrder := order.New(key.Symbol, side, order.TypeTakeProfit, quantity, tpPrice, key.Side)
	tpOrder.StopPrice = tpPrice
	tpOrder.ReduceOnly = true

	slRes, slErr := m.adapter.PlaceOrder(ctx, slOrder)
	if slErr != nil {
		return nil, apperrors.Wrap(apperrors.KindOCOPlacementPartial, "sl_place_failed",
			"failed to place stop-loss leg", slErr)
	}

	tpRes, tpErr := m.adapter.PlaceOrder(ctx, tpOrder)
	if tpErr != nil {
		// Roll back the leg that did place so we never leave a naked stop
		// with no matching take-profit.
		if cancelErr := m.adapter.CancelOrder(ctx, key.Symbol, slRes.OrderID); cancelErr != nil {
			m.log.Error("failed to cancel orphaned sl leg after tp placement failure",
				zap.String("symbol", key.Symbol), zap.String("order_id", slRes.OrderID), zap.Error(cancelErr))
			pair := m.registerPair(key, strategyPositionID, slRes.OrderID, "", quantity, PairUnprotected)
			return pair, apperrors.Wrap(apperrors.KindOCOPlacementPartial, "tp_place_failed_sl_cancel_failed",
				"take-profit leg failed to place and stop-loss cancel also failed; position unprotected", tpErr)
		}
		return nil, apperrors.Wrap(apperrors.KindOCOPlacementPartial, "tp_place_failed",
			"failed to place take-profit leg; stop-loss leg rolled back", tpErr)
	}

	pair := m.registerPair(key, strategyPositionID, slRes.OrderID, tpRes.OrderID, quantity, PairActive)
	return pair, nil
}

func (m *Manager) registerPair(key position.Key, strategyPositionID, slID, tpID string, quantity float64, status PairStatus) *OCOPair {
	pair := &OCOPair{
		PairID:             uuid.NewString(),
		ExchangeKey:        key,
		StrategyPositionID: strategyPositionID,
		SLOrderID:          slID,
		TPOrderID:          tpID,
		Quantity:           quantity,
		Status:             status,
		CreatedAt:          time.Now(),
	}
	m.mu.Lock()
	m.pairs[key] = append(m.pairs[key], pair)
	m.mu.Unlock()
	return pair
}

// CancelPair cancels both legs of an active pair and marks it cancelled.
// Only the pair's own legs are touched; other strategies sharing key are
// unaffected.
func (m *Manager) CancelPair(ctx context.Context, pairID string) error {
	m.mu.Lock()
	var target *OCOPair
	for _, list := range m.pairs {
		for _, p := range list {
			if p.PairID == pairID {
				target = p
				break
			}
		}
	}
	m.mu.Unlock()

	if target == nil {
		return fmt.Errorf("unknown oco pair %s", pairID)
	}
	if target.Status != PairActive {
		return nil
	}

	var errs []error
	if target.SLOrderID != "" {
		if err := m.adapter.CancelOrder(ctx, target.ExchangeKey.Symbol, target.SLOrderID); err != nil {
			errs = append(errs, err)
		}
	}
	if target.TPOrderID != "" {
		if err := m.adapter.CancelOrder(ctx, target.ExchangeKey.Symbol, target.TPOrderID); err != nil {
			errs = append(errs, err)
		}
	}

	m.mu.Lock()
	target.Status = PairCancelled
	target.ClosedAt = time.Now()
	target.ClosedReason = "cancelled"
	m.mu.Unlock()

	if len(errs) > 0 {
		return apperrors.Wrap(apperrors.KindOCOCancelRace, "cancel_partial_failure",
			"one or more oco legs failed to cancel, may already be filled", errs[0])
	}
	return nil
}

// SetFillHandler sets or replaces the callback invoked on leg fills. Used
// to break the construction-order cycle between the OCO manager and the
// engine wiring that owns the fill handler's position/strategy-position
// side effects.
func (m *Manager) SetFillHandler(h FillHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFill = h
}

// ActivePairs returns a copy of the active pairs protecting key.
func (m *Manager) ActivePairs(key position.Key) []OCOPair {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []OCOPair
	for _, p := range m.pairs[key] {
		if p.Status == PairActive {
			out = append(out, *p)
		}
	}
	return out
}

// Keys returns every exchange key with at least one active pair, the set
// the monitor polls each tick.
func (m *Manager) Keys() []position.Key {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []position.Key
	for k, list := range m.pairs {
		for _, p := range list {
			if p.Status == PairActive {
				out = append(out, k)
				break
			}
		}
	}
	return out
}

// Start launches the single background polling monitor. It batches
// ListOpenOrders per symbol per poll rather than querying every order
// individually, per the specification's scalability requirement.
func (m *Manager) Start(ctx context.Context) {
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.run(ctx)
}

// Stop signals the monitor to exit and waits for it to finish its current
// tick.
func (m *Manager) Stop() {
	if m.stopCh == nil {
		return
	}
	close(m.stopCh)
	<-m.doneCh
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.doneCh)
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

// poll batches open orders per symbol, then reconciles each active pair
// against the batch: a leg missing from the open set has filled or been
// cancelled and must be queried individually to disambiguate.
func (m *Manager) poll(ctx context.Context) {
	keys := m.Keys()
	bySymbol := make(map[string][]exchange.OpenOrder)
	for _, k := range dedupeSymbols(keys) {
		open, err := m.adapter.ListOpenOrders(ctx, k)
		if err != nil {
			m.log.Warn("oco monitor: list open orders failed", zap.String("symbol", k), zap.Error(err))
			continue
		}
		bySymbol[k] = open
	}

	for _, key := range keys {
		for _, pair := range m.snapshotPairs(key) {
			m.reconcilePair(ctx, pair, bySymbol[key.Symbol])
		}
	}
}

func dedupeSymbols(keys []position.Key) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, k := range keys {
		if _, ok := seen[k.Symbol]; !ok {
			seen[k.Symbol] = struct{}{}
			out = append(out, k.Symbol)
		}
	}
	return out
}

func (m *Manager) snapshotPairs(key position.Key) []OCOPair {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []OCOPair
	for _, p := range m.pairs[key] {
		if p.Status == PairActive {
			out = append(out, *p)
		}
	}
	return out
}

func stillOpen(open []exchange.OpenOrder, orderID string) bool {
	for _, o := range open {
		if o.OrderID == orderID {
			return true
		}
	}
	return false
}

func (m *Manager) reconcilePair(ctx context.Context, pair OCOPair, open []exchange.OpenOrder) {
	slOpen := stillOpen(open, pair.SLOrderID)
	tpOpen := stillOpen(open, pair.TPOrderID)

	if slOpen && tpOpen {
		return
	}

	if !slOpen && !tpOpen {
		// Both legs vanished in the same poll: almost certainly a race
		// where both filled before cancellation could land. Query both to
		// confirm rather than assume, and raise an anomaly either way.
		m.log.Error("oco monitor: both legs absent in same poll, querying to disambiguate",
			zap.String("pair_id", pair.PairID), zap.String("symbol", pair.ExchangeKey.Symbol))
		slRes, slErr := m.adapter.QueryOrder(ctx, pair.ExchangeKey.Symbol, pair.SLOrderID)
		tpRes, tpErr := m.adapter.QueryOrder(ctx, pair.ExchangeKey.Symbol, pair.TPOrderID)
		slFilled := slErr == nil && slRes.Status == order.StatusFilled
		tpFilled := tpErr == nil && tpRes.Status == order.StatusFilled

		if slFilled && tpFilled {
			m.log.Error("oco anomaly: both legs filled", zap.String("pair_id", pair.PairID))
			m.closePair(ctx, pair.PairID, "both_filled_anomaly")
			pair.Status = PairClosed
			pair.ClosedReason = "both_filled_anomaly"
			if m.onFill != nil {
				m.onFill(ctx, pair, "tp", tpRes.AvgFillPrice)
			}
			return
		}
		if slFilled {
			m.closePair(ctx, pair.PairID, "sl_filled")
			if m.onFill != nil {
				m.onFill(ctx, pair, "sl", slRes.AvgFillPrice)
			}
			return
		}
		if tpFilled {
			m.closePair(ctx, pair.PairID, "tp_filled")
			if m.onFill != nil {
				m.onFill(ctx, pair, "tp", tpRes.AvgFillPrice)
			}
			return
		}
		if slErr != nil || tpErr != nil {
			// A query itself failed rather than reporting a definitive
			// non-filled status: we cannot tell fill from cancel from
			// here, so leave the pair active and let the next poll retry
			// rather than assume cancellation.
			m.log.Warn("oco monitor: disambiguation query failed, leaving pair active",
				zap.String("pair_id", pair.PairID))
			return
		}
		m.closePair(ctx, pair.PairID, "cancelled")
		return
	}

	if !slOpen {
		res, err := m.adapter.QueryOrder(ctx, pair.ExchangeKey.Symbol, pair.SLOrderID)
		if err != nil {
			m.log.Warn("oco monitor: sl query failed", zap.String("pair_id", pair.PairID), zap.Error(err))
			return
		}
		if res.Status != order.StatusFilled {
			// Confirmed cancelled, not filled: the pair is closed as
			// cancelled. The TP leg is not cancelled here and stays on
			// the venue.
			m.closePair(ctx, pair.PairID, "cancelled")
			return
		}
		if err := m.adapter.CancelOrder(ctx, pair.ExchangeKey.Symbol, pair.TPOrderID); err != nil {
			m.log.Error("oco monitor: failed to cancel tp leg after sl fill",
				zap.String("pair_id", pair.PairID), zap.Error(err))
		}
		m.closePair(ctx, pair.PairID, "sl_filled")
		if m.onFill != nil {
			m.onFill(ctx, pair, "sl", res.AvgFillPrice)
		}
		return
	}

	// !tpOpen
	res, err := m.adapter.QueryOrder(ctx, pair.ExchangeKey.Symbol, pair.TPOrderID)
	if err != nil {
		m.log.Warn("oco monitor: tp query failed", zap.String("pair_id", pair.PairID), zap.Error(err))
		return
	}
	if res.Status != order.StatusFilled {
		m.closePair(ctx, pair.PairID, "cancelled")
		return
	}
	if err := m.adapter.CancelOrder(ctx, pair.ExchangeKey.Symbol, pair.SLOrderID); err != nil {
		m.log.Error("oco monitor: failed to cancel sl leg after tp fill",
			zap.String("pair_id", pair.PairID), zap.Error(err))
	}
	m.closePair(ctx, pair.PairID, "tp_filled")
	if m.onFill != nil {
		m.onFill(ctx, pair, "tp", res.AvgFillPrice)
	}
}

// closePair marks the pair closed. Only the named pair_id is mutated,
// preserving attribution isolation among concurrent pairs on the same key.
func (m *Manager) closePair(ctx context.Context, pairID, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, list := range m.pairs {
		for _, p := range list {
			if p.PairID == pairID {
				if reason == "cancelled" {
					p.Status = PairCancelled
				} else {
					p.Status = PairClosed
				}
				p.ClosedAt = time.Now()
				p.ClosedReason = reason
				return
			}
		}
	}
}
