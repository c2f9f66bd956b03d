// Package strategyposition attributes a share of an aggregate exchange
// position to the strategy that opened it, so PnL is computed from the
// strategy's own entry price rather than the venue's blended average.
// Grounded on the ledger/contribution shape of the teacher's position
// manager generalized with the reverse index the specification requires.
package strategyposition

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abdoElHodaky/hedgeengine/internal/position"
)

// Status is the lifecycle state of a strategy's virtual position.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// StrategyPosition is one strategy's claim on a slice of an aggregate
// exchange position, carrying its own entry price for PnL attribution
// independent of any other strategy sharing the same exchange position.
type StrategyPosition struct {
	StrategyPositionID string
	StrategyID         string
	ExchangeKey         position.Key
	Quantity           float64
	EntryPrice         float64
	RealizedPnL        float64
	Status             Status
	OpenedAt           time.Time
	ClosedAt           time.Time
}

// Contribution is one append-only ledger entry recording a change to a
// strategy position's quantity, used for audit and PnL reconstruction.
type Contribution struct {
	StrategyPositionID string
	ExchangeKey        position.Key
	Quantity           float64
	Price              float64
	RealizedPnL        float64
	Kind               string // "open", "add", "reduce", "close"
	Timestamp          time.Time
}

// Tracker owns the strategy_position_id -> StrategyPosition map and its
// exchange_key -> []strategy_position_id reverse index, plus the append-only
// contribution ledger.
type Tracker struct {
	mu           sync.RWMutex
	positions    map[string]*StrategyPosition
	byExchangeKey map[position.Key][]string
	ledger       []Contribution
}

// NewTracker creates an empty strategy position tracker.
func NewTracker() *Tracker {
	return &Tracker{
		positions:     make(map[string]*StrategyPosition),
		byExchangeKey: make(map[position.Key][]string),
	}
}

// Open creates a new strategy position against an exchange key and records
// the opening contribution.
func (t *Tracker) Open(strategyID string, key position.Key, quantity, price float64) (*StrategyPosition, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}
	if price <= 0 {
		return nil, fmt.Errorf("price must be positive")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	sp := &StrategyPosition{
		StrategyPositionID: uuid.NewString(),
		StrategyID:         strategyID,
		ExchangeKey:        key,
		Quantity:           quantity,
		EntryPrice:         price,
		Status:             StatusOpen,
		OpenedAt:           time.Now(),
	}
	t.positions[sp.StrategyPositionID] = sp
	t.byExchangeKey[key] = append(t.byExchangeKey[key], sp.StrategyPositionID)
	t.appendLocked(Contribution{
		StrategyPositionID: sp.StrategyPositionID,
		ExchangeKey:        key,
		Quantity:           quantity,
		Price:              price,
		Kind:               "open",
		Timestamp:          sp.OpenedAt,
	})

	cp := *sp
	return &cp, nil
}

// Add increases an existing strategy position's quantity, recomputing its
// own volume-weighted entry price independent of the aggregate exchange
// position's average.
func (t *Tracker) Add(strategyPositionID string, quantity, price float64) (*StrategyPosition, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	sp, ok := t.positions[strategyPositionID]
	if !ok {
		return nil, fmt.Errorf("unknown strategy position %s", strategyPositionID)
	}
	if sp.Status != StatusOpen {
		return nil, fmt.Errorf("strategy position %s is not open", strategyPositionID)
	}

	newQty := sp.Quantity + quantity
	sp.EntryPrice = (sp.Quantity*sp.EntryPrice + quantity*price) / newQty
	sp.Quantity = newQty

	t.appendLocked(Contribution{
		StrategyPositionID: sp.StrategyPositionID,
		ExchangeKey:        sp.ExchangeKey,
		Quantity:           quantity,
		Price:              price,
		Kind:               "add",
		Timestamp:          time.Now(),
	})

	cp := *sp
	return &cp, nil
}

// Reduce decrements a strategy position by quantity at exitPrice, computing
// realized PnL from the strategy's own entry price — never the aggregate
// exchange VWAP — and closes the position once it reaches zero.
func (t *Tracker) Reduce(strategyPositionID string, quantity, exitPrice float64, isLong bool) (*StrategyPosition, float64, error) {
	if quantity <= 0 {
		return nil, 0, fmt.Errorf("quantity must be positive")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	sp, ok := t.positions[strategyPositionID]
	if !ok {
		return nil, 0, fmt.Errorf("unknown strategy position %s", strategyPositionID)
	}
	if quantity > sp.Quantity+1e-9 {
		quantity = sp.Quantity
	}

	var pnl float64
	if isLong {
		pnl = (exitPrice - sp.EntryPrice) * quantity
	} else {
		pnl = (sp.EntryPrice - exitPrice) * quantity
	}

	sp.Quantity -= quantity
	if sp.Quantity < 1e-12 {
		sp.Quantity = 0
	}
	sp.RealizedPnL += pnl

	kind := "reduce"
	if sp.Quantity == 0 {
		sp.Status = StatusClosed
		sp.ClosedAt = time.Now()
		kind = "close"
	}

	t.appendLocked(Contribution{
		StrategyPositionID: sp.StrategyPositionID,
		ExchangeKey:        sp.ExchangeKey,
		Quantity:           quantity,
		Price:              exitPrice,
		RealizedPnL:        pnl,
		Kind:               kind,
		Timestamp:          time.Now(),
	})

	cp := *sp
	return &cp, pnl, nil
}

// Get returns a copy of the strategy position, if tracked.
func (t *Tracker) Get(strategyPositionID string) (*StrategyPosition, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sp, ok := t.positions[strategyPositionID]
	if !ok {
		return nil, false
	}
	cp := *sp
	return &cp, true
}

// ByExchangeKey returns every strategy position, open or closed, attributed
// to an aggregate exchange position — the reverse index the contributions
// API handler reads to find which strategies share a (symbol,
// position_side).
func (t *Tracker) ByExchangeKey(key position.Key) []StrategyPosition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := t.byExchangeKey[key]
	out := make([]StrategyPosition, 0, len(ids))
	for _, id := range ids {
		if sp, ok := t.positions[id]; ok {
			out = append(out, *sp)
		}
	}
	return out
}

// OpenByExchangeKey returns only the currently open strategy positions
// sharing key.
func (t *Tracker) OpenByExchangeKey(key position.Key) []StrategyPosition {
	all := t.ByExchangeKey(key)
	out := all[:0:0]
	for _, sp := range all {
		if sp.Status == StatusOpen {
			out = append(out, sp)
		}
	}
	return out
}

// ByStrategy returns every strategy position ever opened by strategyID.
func (t *Tracker) ByStrategy(strategyID string) []StrategyPosition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []StrategyPosition
	for _, sp := range t.positions {
		if sp.StrategyID == strategyID {
			out = append(out, *sp)
		}
	}
	return out
}

// Contributions returns a copy of the append-only ledger for a strategy
// position, in chronological order.
func (t *Tracker) Contributions(strategyPositionID string) []Contribution {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Contribution
	for _, c := range t.ledger {
		if c.StrategyPositionID == strategyPositionID {
			out = append(out, c)
		}
	}
	return out
}

// appendLocked appends to the ledger. Caller must hold t.mu.
func (t *Tracker) appendLocked(c Contribution) {
	t.ledger = append(t.ledger, c)
}
