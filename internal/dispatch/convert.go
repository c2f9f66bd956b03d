package dispatch

import (
	"fmt"

	"github.com/abdoElHodaky/hedgeengine/internal/order"
	"github.com/abdoElHodaky/hedgeengine/internal/signal"
)

// resolveSides maps a signal's action onto the order side and the hedge
// position side it opens or adds to.
func resolveSides(s signal.Signal) (positionSide order.PositionSide, side order.Side) {
	if s.Action == signal.ActionSell {
		return order.PositionSideShort, order.SideSell
	}
	return order.PositionSideLong, order.SideBuy
}

// resolveQuantity derives an order quantity from an explicit
// signal.Quantity only, rounded to the venue's quantity step and floored at
// the venue's minimum quantity. A signal sized by position_size_pct alone is
// rejected.
func (d *Dispatcher) resolveQuantity(s signal.Signal) (float64, error) {
	raw := s.Quantity
	if raw <= 0 && s.PositionSizePct > 0 {
		// position_size_pct sizing against account equity is an external
		// concern (account balance lookup); callers that want pct sizing
		// must pre-resolve Quantity before submission in this core.
		return 0, fmt.Errorf("position_size_pct sizing requires pre-resolved quantity")
	}
	if raw <= 0 {
		return 0, fmt.Errorf("signal must carry a positive quantity")
	}

	formatted, err := d.adapter.FormatQuantity(s.Symbol, raw)
	if err != nil {
		return 0, err
	}
	minQty, err := d.adapter.CalcMinQuantity(s.Symbol, s.CurrentPrice)
	if err != nil {
		return 0, err
	}
	if formatted < minQty {
		formatted = minQty
	}
	return formatted, nil
}

// resolveProtectionPrices derives stop-loss/take-profit prices from the
// signal's explicit levels if present, else from the dispatcher's
// configured default percentages.
func (d *Dispatcher) resolveProtectionPrices(s signal.Signal, fillPrice float64) (slPrice, tpPrice float64) {
	slPrice, tpPrice = s.StopLoss, s.TakeProfit

	isLong := s.Action == signal.ActionBuy
	if slPrice <= 0 && d.cfg.StopLossPct > 0 {
		if isLong {
			slPrice = fillPrice * (1 - d.cfg.StopLossPct)
		} else {
			slPrice = fillPrice * (1 + d.cfg.StopLossPct)
		}
	}
	if tpPrice <= 0 && d.cfg.TakeProfitPct > 0 {
		if isLong {
			tpPrice = fillPrice * (1 + d.cfg.TakeProfitPct)
		} else {
			tpPrice = fillPrice * (1 - d.cfg.TakeProfitPct)
		}
	}
	return
}

// buildOrder converts a validated, sized signal into a TradeOrder ready
// for venue placement.
func (d *Dispatcher) buildOrder(s signal.Signal, side order.Side, positionSide order.PositionSide, quantity float64) *order.TradeOrder {
	orderType := d.cfg.DefaultOrderType
	if s.OrderType != "" {
		orderType = order.Type(s.OrderType)
	}

	tradeOrder := order.New(s.Symbol, side, orderType, quantity, s.CurrentPrice, positionSide)
	tradeOrder.Signal = order.SignalMeta{
		StrategyID:   s.StrategyID,
		Timeframe:    string(s.Timeframe),
		Confidence:   s.Confidence,
		StrategyMode: string(s.StrategyMode),
		Rationale:    s.Rationale,
	}
	return tradeOrder
}
