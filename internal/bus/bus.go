// Package bus consumes signals off a NATS queue group, feeding the same
// engine entrypoint the HTTP API uses, so a signal posted via either
// transport is aggregated identically. Grounded on the teacher's
// nats_adapter.go, generalized from its JetStream replay-from-sequence
// design to a plain queue-group subscription: the specification's signal
// intake has no replay requirement, only at-least-once delivery across
// however many engine instances are running.
package bus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/hedgeengine/internal/logging"
	"github.com/abdoElHodaky/hedgeengine/internal/signal"
)

// wireSignal is the JSON shape a strategy bot publishes to the signals
// subject.
type wireSignal struct {
	StrategyID      string                 `json:"strategy_id"`
	Symbol          string                 `json:"symbol"`
	Action          string                 `json:"action"`
	Confidence      float64                `json:"confidence"`
	Strength        string                 `json:"strength"`
	Timeframe       string                 `json:"timeframe"`
	CurrentPrice    float64                `json:"current_price"`
	OrderType       string                 `json:"order_type"`
	TimeInForce     string                 `json:"time_in_force"`
	StrategyMode    string                 `json:"strategy_mode"`
	PositionSizePct float64                `json:"position_size_pct"`
	StopLoss        float64                `json:"stop_loss"`
	TakeProfit      float64                `json:"take_profit"`
	Quantity        float64                `json:"quantity"`
	Rationale       string                 `json:"rationale"`
	Meta            map[string]interface{} `json:"meta"`
	Immediate       bool                   `json:"immediate"`
}

func (w wireSignal) toSignal() signal.Signal {
	return signal.Signal{
		StrategyID:      w.StrategyID,
		Symbol:          w.Symbol,
		Action:          signal.Action(w.Action),
		Confidence:      w.Confidence,
		Strength:        signal.Strength(w.Strength),
		Timeframe:       signal.Timeframe(w.Timeframe),
		CurrentPrice:    w.CurrentPrice,
		OrderType:       signal.OrderTypeHint(w.OrderType),
		TimeInForce:     signal.TimeInForce(w.TimeInForce),
		StrategyMode:    signal.StrategyMode(w.StrategyMode),
		PositionSizePct: w.PositionSizePct,
		StopLoss:        w.StopLoss,
		TakeProfit:      w.TakeProfit,
		Quantity:        w.Quantity,
		Rationale:       w.Rationale,
		Meta:            w.Meta,
		Immediate:       w.Immediate,
		ArrivalTime:     time.Now(),
	}
}

// SignalHandler admits a parsed signal into the engine.
type SignalHandler func(ctx context.Context, s signal.Signal) error

// Consumer subscribes to the configured subject within a queue group, so
// exactly one instance among any number of replicas handles each message.
type Consumer struct {
	conn    *nats.Conn
	log     logging.Logger
	subject string
	group   string
	handler SignalHandler
	sub     *nats.Subscription
}

// Connect dials url and returns a Consumer ready to Start.
func Connect(url string, log logging.Logger, subject, group string, handler SignalHandler) (*Consumer, error) {
	conn, err := nats.Connect(url, nats.MaxReconnects(-1), nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, err
	}
	return &Consumer{conn: conn, log: log, subject: subject, group: group, handler: handler}, nil
}

// Start subscribes and begins handling messages asynchronously. Decode or
// handler errors are logged and the message is dropped rather than
// retried indefinitely, since a malformed signal will never become valid
// on redelivery.
func (c *Consumer) Start(ctx context.Context) error {
	sub, err := c.conn.QueueSubscribe(c.subject, c.group, func(msg *nats.Msg) {
		var w wireSignal
		if err := json.Unmarshal(msg.Data, &w); err != nil {
			c.log.Warn("bus: failed to decode signal message", zap.Error(err))
			return
		}
		if err := c.handler(ctx, w.toSignal()); err != nil {
			c.log.Warn("bus: handler rejected signal",
				zap.String("strategy_id", w.StrategyID), zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	c.sub = sub
	return nil
}

// Stop unsubscribes and drains the underlying connection.
func (c *Consumer) Stop() error {
	if c.sub != nil {
		if err := c.sub.Unsubscribe(); err != nil {
			return err
		}
	}
	return c.conn.Drain()
}
