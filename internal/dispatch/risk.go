package dispatch

import "go.uber.org/zap"

// checkRisk runs the pipeline's risk-check step ahead of any lock
// acquisition or venue call, so a rejected signal never touches the
// distributed lock or places an order.
func (d *Dispatcher) checkRisk(symbol, strategyID string, notional float64) (*Result, error) {
	if err := d.risk.Check(symbol, notional); err != nil {
		d.log.Warn("dispatch: risk check rejected signal",
			zap.String("symbol", symbol), zap.String("strategy_id", strategyID), zap.Error(err))
		return &Result{Rejected: true, RejectReason: err.Error()}, nil
	}
	return nil, nil
}
