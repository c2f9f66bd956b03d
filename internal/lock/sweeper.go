package lock

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/hedgeengine/internal/logging"
)

// Sweeper periodically deletes expired lock documents as an in-process
// backstop alongside the collection's TTL index, so a crashed instance's
// locks are reclaimed promptly rather than waiting on Mongo's TTL monitor,
// which only guarantees eventual (not immediate) cleanup.
type Sweeper struct {
	manager  *Manager
	log      logging.Logger
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewSweeper builds a sweeper that runs every interval (default 30s).
func NewSweeper(manager *Manager, log logging.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{manager: manager, log: log, interval: interval}
}

// Start launches the sweep loop in a goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.run(ctx)
}

// Stop signals the loop to exit and waits for the current sweep to finish.
func (s *Sweeper) Stop() {
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	<-s.doneCh
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	res, err := s.manager.coll.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": time.Now()}})
	if err != nil {
		s.log.Warn("lock sweeper: delete failed", zap.Error(err))
		return
	}
	if res.DeletedCount > 0 {
		s.log.Info("lock sweeper: reclaimed expired locks", zap.Int64("count", res.DeletedCount))
	}
}
