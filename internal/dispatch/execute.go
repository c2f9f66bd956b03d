package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/abdoElHodaky/hedgeengine/internal/apperrors"
	"github.com/abdoElHodaky/hedgeengine/internal/exchange"
	"github.com/abdoElHodaky/hedgeengine/internal/order"
)

// acquireLock takes the distributed lock guarding concurrent dispatch for
// one position key, returning a release function the caller must defer
// immediately.
func (d *Dispatcher) acquireLock(ctx context.Context, lockName string) (release func(), err error) {
	handle, err := d.locks.Acquire(ctx, lockName, d.cfg.HolderID)
	if err != nil {
		return nil, err
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if rerr := handle.Release(releaseCtx); rerr != nil {
			d.log.Error("dispatch: failed to release lock", zap.String("lock", lockName), zap.Error(rerr))
		}
	}, nil
}

// placeOnVenue executes the order against the exchange adapter under the
// shared retry policy, mutating tradeOrder in place with the venue's
// reported state.
func (d *Dispatcher) placeOnVenue(ctx context.Context, tradeOrder *order.TradeOrder) (*exchange.PlaceResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, exchange.CallTimeout)
	defer cancel()

	var placeResult *exchange.PlaceResult
	err := exchange.WithRetry(callCtx, exchange.DefaultRetryOptions(), func() error {
		res, perr := d.adapter.PlaceOrder(callCtx, tradeOrder)
		if perr != nil {
			return perr
		}
		placeResult = res
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindVenueNonRetryable, "place_order_failed", "order placement failed", err)
	}

	tradeOrder.Status = placeResult.Status
	tradeOrder.FilledQty = placeResult.FilledQty
	tradeOrder.AvgFillPrice = placeResult.AvgFillPrice
	tradeOrder.Commission = placeResult.Commission
	return placeResult, nil
}
