package dispatch

import (
	"go.uber.org/zap"

	"github.com/abdoElHodaky/hedgeengine/internal/apperrors"
	"github.com/abdoElHodaky/hedgeengine/internal/signal"
)

// validate runs the pipeline's first step: structural validation, the
// minimum-confidence floor, and the hold short-circuit. A non-nil error
// means the signal is malformed and the caller should treat dispatch as
// failed outright; a non-nil Result with no error means the signal is
// well-formed but rejected before reaching risk or execution.
func (d *Dispatcher) validate(s signal.Signal) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "invalid_signal", err.Error(), err)
	}
	if s.Confidence < d.cfg.MinConfidence {
		d.log.Info("dispatch: signal below minimum confidence",
			zap.String("strategy_id", s.StrategyID), zap.Float64("confidence", s.Confidence))
		return &Result{Rejected: true, RejectReason: "rejected_by_validation"}, nil
	}
	if s.Action == signal.ActionHold {
		return &Result{Rejected: true, RejectReason: "hold"}, nil
	}
	return nil, nil
}
