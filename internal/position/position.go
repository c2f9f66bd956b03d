// Package position owns the aggregate exchange position keyed by
// (symbol, position_side), generalizing the (userID, symbol)-keyed
// single-sided map in internal/trading/positions/manager.go of the teacher
// repo to the hedge-mode pair-keying the specification requires: a LONG and
// a SHORT on the same symbol are distinct entities and never offset.
package position

import (
	"fmt"
	"sync"
	"time"

	"github.com/abdoElHodaky/hedgeengine/internal/order"
)

// Status is the lifecycle state of an aggregate exchange position.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Key identifies an aggregate exchange position.
type Key struct {
	Symbol string
	Side   order.PositionSide
}

func (k Key) String() string { return fmt.Sprintf("%s:%s", k.Symbol, k.Side) }

// ExchangePosition is the aggregate venue-reported position for a
// (symbol, side) pair.
type ExchangePosition struct {
	Key                  Key
	Quantity             float64
	AvgEntryPrice        float64
	RealizedPnL          float64
	LastUpdate           time.Time
	Status               Status
	ContributingStrategy map[string]struct{} // strategy_position_id set
}

// snapshot returns a value copy safe to hand to callers outside the lock.
func (p *ExchangePosition) snapshot() ExchangePosition {
	cp := *p
	cp.ContributingStrategy = make(map[string]struct{}, len(p.ContributingStrategy))
	for k := range p.ContributingStrategy {
		cp.ContributingStrategy[k] = struct{}{}
	}
	return cp
}

// Fill describes a single fill applied to an exchange position.
type Fill struct {
	Quantity           float64
	Price              float64
	Commission         float64
	ReduceOnly         bool
	StrategyPositionID string
}

// Manager owns the (symbol, position_side) -> ExchangePosition map. It is
// the single source of truth the Dispatcher writes on fill and the OCO
// Manager writes on protection fill; both hold the same per-key mutex while
// mutating, mirroring the teacher's per-resource-mutex idiom.
type Manager struct {
	mu        sync.RWMutex
	positions map[Key]*ExchangePosition
	keyLocks  sync.Map // Key -> *sync.Mutex, the per-(symbol,side) exclusion the spec requires
}

// NewManager creates an empty position manager.
func NewManager() *Manager {
	return &Manager{positions: make(map[Key]*ExchangePosition)}
}

// LockKey returns the in-process mutex guarding key, creating it if needed.
// The Dispatcher holds it for a whole dispatch, including OCO placement, and
// the engine's OCO fill handler holds it while reducing the position. The
// OCO Manager's own pair-status updates use the OCO Manager's internal
// mutex, not this one.
func (m *Manager) LockKey(key Key) *sync.Mutex {
	v, _ := m.keyLocks.LoadOrStore(key, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// ApplyFill updates avg_price = (old_qty*old_avg + fill_qty*fill_price) /
// (old_qty+fill_qty) and accumulates quantity on a non-reduce-only fill; on
// a reduce-only fill it decrements quantity and, should quantity reach
// zero, marks the position closed. It does not compute realized PnL;
// ReduceQuantity takes a realized delta from its caller. Caller must hold
// LockKey(key).
func (m *Manager) ApplyFill(key Key, f Fill) (*ExchangePosition, error) {
	if f.Quantity <= 0 {
		return nil, fmt.Errorf("fill quantity must be positive")
	}
	if f.Price <= 0 {
		return nil, fmt.Errorf("fill price must be positive")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pos, exists := m.positions[key]
	if !exists {
		pos = &ExchangePosition{
			Key:                  key,
			Status:               StatusOpen,
			ContributingStrategy: make(map[string]struct{}),
		}
		m.positions[key] = pos
	}

	if f.StrategyPositionID != "" {
		pos.ContributingStrategy[f.StrategyPositionID] = struct{}{}
	}

	if f.ReduceOnly {
		pos.Quantity -= f.Quantity
		if pos.Quantity < 1e-12 {
			pos.Quantity = 0
		}
	} else {
		newQty := pos.Quantity + f.Quantity
		if newQty > 0 {
			pos.AvgEntryPrice = (pos.Quantity*pos.AvgEntryPrice + f.Quantity*f.Price) / newQty
		}
		pos.Quantity = newQty
	}

	if pos.Quantity == 0 {
		pos.Status = StatusClosed
	} else {
		pos.Status = StatusOpen
	}
	pos.LastUpdate = time.Now()

	cp := pos.snapshot()
	return &cp, nil
}

// ReduceQuantity reduces the aggregate position by qty without touching
// average entry price (partial close attribution is driven by the caller,
// typically the Strategy Position Tracker closing its own share). Used by
// OCO fills and manual closes. Caller must hold LockKey(key).
func (m *Manager) ReduceQuantity(key Key, qty, realizedDelta float64, contributorID string) (*ExchangePosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[key]
	if !ok {
		return nil, fmt.Errorf("no exchange position for %s", key)
	}

	pos.Quantity -= qty
	if pos.Quantity < 1e-12 {
		pos.Quantity = 0
	}
	pos.RealizedPnL += realizedDelta
	pos.LastUpdate = time.Now()
	if contributorID != "" {
		delete(pos.ContributingStrategy, contributorID)
	}
	if pos.Quantity == 0 {
		pos.Status = StatusClosed
	}

	cp := pos.snapshot()
	return &cp, nil
}

// AddContributor records that strategyPositionID holds a share of the
// exchange position at key, used once the dispatcher has opened the
// strategy position that followed a fill applied before that id existed.
func (m *Manager) AddContributor(key Key, strategyPositionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[key]
	if !ok {
		return fmt.Errorf("no exchange position for %s", key)
	}
	pos.ContributingStrategy[strategyPositionID] = struct{}{}
	return nil
}

// Get returns a snapshot of the position at key, if any.
func (m *Manager) Get(key Key) (*ExchangePosition, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.positions[key]
	if !ok {
		return nil, false
	}
	cp := pos.snapshot()
	return &cp, true
}

// Snapshot returns a copy of every tracked position.
func (m *Manager) Snapshot() []ExchangePosition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ExchangePosition, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p.snapshot())
	}
	return out
}

// TotalExposure sums quantity*avg_entry_price across every open position,
// used by the dispatcher's portfolio exposure cap risk check.
func (m *Manager) TotalExposure() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total float64
	for _, p := range m.positions {
		if p.Status == StatusOpen {
			total += p.Quantity * p.AvgEntryPrice
		}
	}
	return total
}

// SymbolExposure sums quantity*avg_entry_price across both sides of symbol.
func (m *Manager) SymbolExposure(symbol string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total float64
	for k, p := range m.positions {
		if k.Symbol == symbol && p.Status == StatusOpen {
			total += p.Quantity * p.AvgEntryPrice
		}
	}
	return total
}
