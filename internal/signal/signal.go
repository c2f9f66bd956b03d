// Package signal defines the trading signal ingested from strategy bots,
// its timeframe taxonomy, and the validation the aggregator applies before a
// signal is allowed into conflict resolution.
package signal

import (
	"fmt"
	"time"
)

// Action is the directional intent carried by a signal.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Strength is an optional qualitative tag a strategy may attach.
type Strength string

const (
	StrengthWeak     Strength = "weak"
	StrengthModerate Strength = "moderate"
	StrengthStrong   Strength = "strong"
)

// Timeframe enumerates the candle intervals a strategy may signal on, each
// carrying the numeric weight used by the weighted aggregation policies.
type Timeframe string

const (
	TimeframeTick Timeframe = "tick"
	Timeframe1m   Timeframe = "1m"
	Timeframe3m   Timeframe = "3m"
	Timeframe5m   Timeframe = "5m"
	Timeframe15m  Timeframe = "15m"
	Timeframe30m  Timeframe = "30m"
	Timeframe1h   Timeframe = "1h"
	Timeframe2h   Timeframe = "2h"
	Timeframe4h   Timeframe = "4h"
	Timeframe6h   Timeframe = "6h"
	Timeframe8h   Timeframe = "8h"
	Timeframe12h  Timeframe = "12h"
	Timeframe1d   Timeframe = "1d"
	Timeframe3d   Timeframe = "3d"
	Timeframe1w   Timeframe = "1w"
	Timeframe1M   Timeframe = "1M"
)

// timeframeWeights holds the [0.3, 2.0] numeric weight per timeframe named
// in the specification's data model.
var timeframeWeights = map[Timeframe]float64{
	TimeframeTick: 0.3,
	Timeframe1m:   0.4,
	Timeframe3m:   0.5,
	Timeframe5m:   0.6,
	Timeframe15m:  0.8,
	Timeframe30m:  0.9,
	Timeframe1h:   1.0,
	Timeframe2h:   1.1,
	Timeframe4h:   1.3,
	Timeframe6h:   1.4,
	Timeframe8h:   1.5,
	Timeframe12h:  1.6,
	Timeframe1d:   1.8,
	Timeframe3d:   1.9,
	Timeframe1w:   2.0,
	Timeframe1M:   2.0,
}

// Weight returns the configured numeric weight for tf, or false if tf is not
// a recognised timeframe.
func (tf Timeframe) Weight() (float64, bool) {
	w, ok := timeframeWeights[tf]
	return w, ok
}

// OrderTypeHint mirrors the order types a signal may request.
type OrderTypeHint string

const (
	OrderTypeMarket             OrderTypeHint = "market"
	OrderTypeLimit              OrderTypeHint = "limit"
	OrderTypeStop               OrderTypeHint = "stop"
	OrderTypeStopLimit          OrderTypeHint = "stop_limit"
	OrderTypeTakeProfit         OrderTypeHint = "take_profit"
	OrderTypeTakeProfitLimit    OrderTypeHint = "take_profit_limit"
)

// TimeInForce mirrors the supported time-in-force values.
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceIOC TimeInForce = "IOC"
	TimeInForceFOK TimeInForce = "FOK"
)

// StrategyMode tags how a strategy produced its signal, used by the
// timeframe_weighted policy's mode_multiplier.
type StrategyMode string

const (
	ModeDeterministic StrategyMode = "deterministic"
	ModeLLMReasoning  StrategyMode = "llm_reasoning"
	ModeMLModel       StrategyMode = "ml_model"
)

// Signal is the immutable, strategy-produced trading intent described in
// the specification's data model. Identity is
// (StrategyID, Symbol, Timeframe, ArrivalTime).
type Signal struct {
	StrategyID      string
	Symbol          string
	Action          Action
	Confidence      float64
	Strength        Strength
	Timeframe       Timeframe
	CurrentPrice    float64
	OrderType       OrderTypeHint
	TimeInForce     TimeInForce
	StrategyMode    StrategyMode
	PositionSizePct float64
	StopLoss        float64
	TakeProfit      float64
	Quantity        float64
	Rationale       string
	Meta            map[string]interface{}
	Immediate       bool
	ArrivalTime     time.Time
}

// Key identifies the signal for aggregation window purposes.
func (s *Signal) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s", s.StrategyID, s.Symbol, s.Timeframe, s.ArrivalTime.Format(time.RFC3339Nano))
}

// Validate checks the required-field contract the aggregator enforces
// before a signal may enter conflict resolution (spec.md §4.1 failure
// modes: malformed_signal on missing timeframe, current_price, confidence).
func (s *Signal) Validate() error {
	if s.StrategyID == "" {
		return fmt.Errorf("malformed_signal: strategy_id required")
	}
	if s.Symbol == "" {
		return fmt.Errorf("malformed_signal: symbol required")
	}
	switch s.Action {
	case ActionBuy, ActionSell, ActionHold:
	default:
		return fmt.Errorf("malformed_signal: invalid action %q", s.Action)
	}
	if _, ok := s.Timeframe.Weight(); !ok {
		return fmt.Errorf("malformed_signal: unknown timeframe %q", s.Timeframe)
	}
	if s.CurrentPrice <= 0 {
		return fmt.Errorf("malformed_signal: current_price must be positive")
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("malformed_signal: confidence must be in [0,1]")
	}
	return nil
}

// ResolvedSide is the position side a signal's action implies: buy opens
// LONG, sell opens SHORT.
func (s *Signal) ResolvedSide() string {
	if s.Action == ActionSell {
		return "SHORT"
	}
	return "LONG"
}
