// Package alert routes the loud, must-not-be-silent failures the
// specification calls out — an unprotected position and a both-legs-filled
// OCO anomaly — to an operator-visible sink.
// Grounded on the teacher's structured zap logging used as the delivery
// mechanism for its own critical-path warnings; a paging integration
// (PagerDuty, Slack webhook) is a Sink implementation outside this core.
package alert

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/abdoElHodaky/hedgeengine/internal/logging"
)

// Severity classifies an alert for routing.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is one alertable occurrence.
type Event struct {
	Severity  Severity
	Kind      string
	Message   string
	Fields    map[string]string
	Timestamp time.Time
}

// Sink receives alert events for delivery to an external channel.
type Sink interface {
	Send(ctx context.Context, e Event)
}

// LogSink delivers alerts through the structured logger, the always-on
// fallback every deployment has even without an external paging
// integration configured.
type LogSink struct {
	log logging.Logger
}

// NewLogSink builds a Sink backed by log.
func NewLogSink(log logging.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Send(ctx context.Context, e Event) {
	fields := make([]zap.Field, 0, len(e.Fields)+2)
	fields = append(fields, zap.String("kind", e.Kind), zap.String("severity", string(e.Severity)))
	for k, v := range e.Fields {
		fields = append(fields, zap.String(k, v))
	}
	if e.Severity == SeverityCritical {
		s.log.Error(e.Message, fields...)
	} else {
		s.log.Warn(e.Message, fields...)
	}
}

// MultiSink fans an event out to every configured sink, letting a
// deployment combine the log sink with an external paging sink.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks into one.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Send(ctx context.Context, e Event) {
	for _, s := range m.sinks {
		s.Send(ctx, e)
	}
}

// Unprotected builds the alert event raised when an OCO pair could not be
// fully placed and a filled position is left without protection.
func Unprotected(strategyPositionID, symbol, reason string) Event {
	return Event{
		Severity: SeverityCritical,
		Kind:     "strategy_unprotected",
		Message:  "strategy position is unprotected: " + reason,
		Fields: map[string]string{
			"strategy_position_id": strategyPositionID,
			"symbol":               symbol,
		},
		Timestamp: time.Now(),
	}
}

// OCOAnomaly builds the alert event raised when the OCO monitor observes
// both legs of a pair filled in the same poll.
func OCOAnomaly(pairID, symbol string) Event {
	return Event{
		Severity: SeverityCritical,
		Kind:     "oco_anomaly",
		Message:  "both oco legs filled before cancellation could land",
		Fields: map[string]string{
			"pair_id": pairID,
			"symbol":  symbol,
		},
		Timestamp: time.Now(),
	}
}
