package dispatch

import (
	"context"

	"go.uber.org/zap"

	"github.com/abdoElHodaky/hedgeengine/internal/apperrors"
	"github.com/abdoElHodaky/hedgeengine/internal/exchange"
	"github.com/abdoElHodaky/hedgeengine/internal/order"
	"github.com/abdoElHodaky/hedgeengine/internal/position"
	"github.com/abdoElHodaky/hedgeengine/internal/signal"
)

// applyPostTrade records a filled order against the exchange position and
// strategy position trackers and places protective orders. It is the
// pipeline's final step, reached only after a successful venue placement;
// an unfilled (e.g. resting limit) order returns past it untouched.
func (d *Dispatcher) applyPostTrade(ctx context.Context, s signal.Signal, key position.Key, tradeOrder *order.TradeOrder, placeResult *exchange.PlaceResult) (*Result, error) {
	result := &Result{Order: tradeOrder}
	if placeResult.Status != order.StatusFilled {
		return result, nil
	}

	fillPrice := placeResult.AvgFillPrice
	if fillPrice == 0 {
		fillPrice = s.CurrentPrice
	}

	if _, err := d.positions.ApplyFill(key, position.Fill{
		Quantity: placeResult.FilledQty,
		Price:    fillPrice,
	}); err != nil {
		return nil, apperrors.Wrap(apperrors.KindPersistenceSecondary, "position_apply_fill_failed", "failed to apply fill to exchange position", err)
	}

	sp, err := d.strategies.Open(s.StrategyID, key, placeResult.FilledQty, fillPrice)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindPersistenceSecondary, "strategy_position_open_failed", "failed to open strategy position", err)
	}
	result.StrategyPositionID = sp.StrategyPositionID

	if err := d.positions.AddContributor(key, sp.StrategyPositionID); err != nil {
		d.log.Error("dispatch: failed to record contributor on exchange position",
			zap.String("strategy_position_id", sp.StrategyPositionID), zap.Error(err))
	}

	if d.ocoMgr != nil && (s.StopLoss > 0 || s.TakeProfit > 0) {
		slPrice, tpPrice := d.resolveProtectionPrices(s, fillPrice)
		pair, ocoErr := d.ocoMgr.PlacePair(ctx, key, sp.StrategyPositionID, placeResult.FilledQty, slPrice, tpPrice)
		if ocoErr != nil {
			d.log.Error("dispatch: oco placement failed, strategy position left unprotected",
				zap.String("strategy_position_id", sp.StrategyPositionID), zap.Error(ocoErr))
			return result, ocoErr
		}
		result.OCOPair = pair
	}

	return result, nil
}
