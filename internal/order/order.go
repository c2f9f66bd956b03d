// Package order defines the TradeOrder the dispatcher constructs from an
// accepted signal, grounded on the order type/side/status enums of
// internal/exchanges/adapters/base.go in the teacher repo, generalized with
// the position_id / position_side hedge-mode fields the specification adds.
package order

import (
	"time"

	"github.com/google/uuid"
)

// Side is the order's buy/sell direction.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Type enumerates the order types the venue accepts.
type Type string

const (
	TypeMarket           Type = "market"
	TypeLimit            Type = "limit"
	TypeStop             Type = "stop"
	TypeStopLimit        Type = "stop_limit"
	TypeTakeProfit       Type = "take_profit"
	TypeTakeProfitLimit  Type = "take_profit_limit"
)

// TimeInForce enumerates supported order durations.
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceIOC TimeInForce = "IOC"
	TimeInForceFOK TimeInForce = "FOK"
)

// PositionSide tags which hedge-mode position an order acts on.
type PositionSide string

const (
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
)

// Status is the lifecycle state an order moves through on the venue.
type Status string

const (
	StatusNew             Status = "NEW"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
	StatusCancelled       Status = "CANCELLED"
	StatusRejected        Status = "REJECTED"
)

// SignalMeta is the slice of the originating signal a TradeOrder carries
// through for audit and post-trade bookkeeping.
type SignalMeta struct {
	StrategyID   string
	Timeframe    string
	Confidence   float64
	StrategyMode string
	Rationale    string
}

// TradeOrder is the concrete order the dispatcher constructs from a
// validated signal. Created by the dispatcher; mutated only by lifecycle
// transitions (fills reported by the exchange adapter); destroyed (dropped
// from in-flight tracking) once terminal.
type TradeOrder struct {
	OrderID      string
	Symbol       string
	Side         Side
	Type         Type
	Quantity     float64
	TargetPrice  float64
	StopPrice    float64
	TimeInForce  TimeInForce
	PositionID   string
	PositionSide PositionSide
	ReduceOnly   bool
	Signal       SignalMeta
	Status       Status
	FilledQty    float64
	AvgFillPrice float64
	Commission   float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// New constructs a TradeOrder with generated OrderID and PositionID, as the
// dispatcher's signal-to-order conversion step does.
func New(symbol string, side Side, typ Type, quantity, targetPrice float64, positionSide PositionSide) *TradeOrder {
	now := time.Now()
	return &TradeOrder{
		OrderID:      uuid.NewString(),
		Symbol:       symbol,
		Side:         side,
		Type:         typ,
		Quantity:     quantity,
		TargetPrice:  targetPrice,
		PositionID:   uuid.NewString(),
		PositionSide: positionSide,
		TimeInForce:  TimeInForceGTC,
		Status:       StatusNew,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsTerminal reports whether the order has reached a state that no longer
// requires tracking.
func (o *TradeOrder) IsTerminal() bool {
	return o.Status == StatusFilled || o.Status == StatusCancelled || o.Status == StatusRejected
}

// PositionSideFromAction derives the hedge-mode position side an opening
// order's side implies: buy opens/adds-to LONG, sell opens/adds-to SHORT.
// Reduce-only protection orders (OCO legs) do not use this helper; they
// carry the position_side of the position they protect directly.
func PositionSideFromAction(side Side) PositionSide {
	if side == SideSell {
		return PositionSideShort
	}
	return PositionSideLong
}
