package alert

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/abdoElHodaky/hedgeengine/internal/logging"
)

type recordingSink struct {
	events []Event
}

func (r *recordingSink) Send(ctx context.Context, e Event) {
	r.events = append(r.events, e)
}

func TestLogSinkDoesNotPanicOnCriticalAndWarning(t *testing.T) {
	sink := NewLogSink(logging.NewNop())
	assert.NotPanics(t, func() {
		sink.Send(context.Background(), Unprotected("sp-1", "BTCUSDT", "tp_leg_failed"))
		sink.Send(context.Background(), Event{Severity: SeverityWarning, Kind: "info", Message: "heads up"})
	})
}

func TestMultiSinkFansOutToEverySink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	m := NewMultiSink(a, b)
	e := OCOAnomaly("pair-1", "BTCUSDT")
	m.Send(context.Background(), e)

	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
	assert.Equal(t, e.Kind, a.events[0].Kind)
}

func TestUnprotectedEventCarriesAttributionFields(t *testing.T) {
	e := Unprotected("sp-1", "BTCUSDT", "tp_leg_failed")
	assert.Equal(t, SeverityCritical, e.Severity)
	assert.Equal(t, "strategy_unprotected", e.Kind)
	assert.Equal(t, "sp-1", e.Fields["strategy_position_id"])
	assert.Equal(t, "BTCUSDT", e.Fields["symbol"])
	assert.False(t, e.Timestamp.IsZero())
}

func TestOCOAnomalyEventCarriesPairID(t *testing.T) {
	e := OCOAnomaly("pair-1", "BTCUSDT")
	assert.Equal(t, SeverityCritical, e.Severity)
	assert.Equal(t, "oco_anomaly", e.Kind)
	assert.Equal(t, "pair-1", e.Fields["pair_id"])
}
