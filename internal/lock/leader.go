package lock

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/abdoElHodaky/hedgeengine/internal/logging"
)

// leaderLockName is the single document name every instance contends for.
const leaderLockName = "leader_election:oco_monitor"

// Elector uses the lock collection to elect a single leader instance and
// reports leadership changes through onElected and onDemoted; it does not
// start or stop anything itself. cmd/tradeengine starts the OCO monitor on
// every instance and its elector callbacks only log.
type Elector struct {
	manager  *Manager
	log      logging.Logger
	holderID string
	ttl      time.Duration
	renewEvery time.Duration

	onElected func(ctx context.Context)
	onDemoted func()

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewElector builds a leader elector. holderID should be stable per
// instance (hostname + pid is sufficient). onElected is invoked once this
// instance becomes leader; onDemoted is invoked if it loses leadership
// (renewal failed) so the caller can stop whatever it started.
func NewElector(manager *Manager, log logging.Logger, holderID string, ttl time.Duration, onElected func(ctx context.Context), onDemoted func()) *Elector {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &Elector{
		manager:    manager,
		log:        log,
		holderID:   holderID,
		ttl:        ttl,
		renewEvery: ttl / 3,
		onElected:  onElected,
		onDemoted:  onDemoted,
	}
}

// Start launches the campaign loop: attempt to acquire leadership, and
// while held, renew on a fraction of the TTL so a brief Mongo hiccup
// doesn't immediately cost the lease.
func (e *Elector) Start(ctx context.Context) {
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	go e.run(ctx)
}

// Stop ends the campaign and releases leadership if held.
func (e *Elector) Stop() {
	if e.stopCh == nil {
		return
	}
	close(e.stopCh)
	<-e.doneCh
}

func (e *Elector) run(ctx context.Context) {
	defer close(e.doneCh)
	campaignTicker := time.NewTicker(e.ttl / 2)
	defer campaignTicker.Stop()

	var handle *Handle
	for {
		if handle == nil {
			h, err := e.manager.Acquire(ctx, leaderLockName, e.holderID)
			if err == nil {
				handle = h
				e.log.Info("elected oco monitor leader", zap.String("holder", e.holderID))
				if e.onElected != nil {
					go e.onElected(ctx)
				}
			}
		}

		select {
		case <-ctx.Done():
			if handle != nil {
				release(handle)
			}
			return
		case <-e.stopCh:
			if handle != nil {
				release(handle)
			}
			return
		case <-campaignTicker.C:
			if handle != nil {
				if err := handle.Renew(ctx, e.ttl); err != nil {
					e.log.Warn("lost oco monitor leadership, rejoining campaign", zap.Error(err))
					handle = nil
					if e.onDemoted != nil {
						e.onDemoted()
					}
				}
			}
		}
	}
}

func release(h *Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = h.Release(ctx)
}
