// Package lock implements the MongoDB-backed distributed lock the
// dispatcher acquires before placing an order and the OCO monitor acquires
// to elect a single active instance. Grounded on the named-lock /
// holder-identity / expiry shape of the teacher's
// internal/architecture/coordination.LockManager, backed by a real
// go.mongodb.org/mongo-driver collection instead of the teacher's
// in-process map, since the specification requires locking across
// instances, not just goroutines within one process.
package lock

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/abdoElHodaky/hedgeengine/internal/apperrors"
)

// ErrAlreadyHeld is returned by Acquire when another holder has a live lock
// on the same name.
var ErrAlreadyHeld = errors.New("lock already held")

// Document is the on-disk shape of a lock, stored one document per name in
// the distributed_locks collection.
type Document struct {
	Name       string    `bson:"_id"`
	Holder     string    `bson:"holder"`
	AcquiredAt time.Time `bson:"acquired_at"`
	ExpiresAt  time.Time `bson:"expires_at"`
}

// Handle is a held lock; the caller must call Release (typically via
// defer) to give it up before expiry.
type Handle struct {
	name     string
	holder   string
	manager  *Manager
	released bool
}

// Manager acquires and releases named exclusive locks backed by a Mongo
// collection, and extends one it already holds (renew) without losing it.
type Manager struct {
	coll    *mongo.Collection
	ttl     time.Duration
}

// NewManager wraps coll as the backing store for named locks. ttl is the
// default lease duration (the specification's lock timeout, default 60s).
func NewManager(coll *mongo.Collection, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Manager{coll: coll, ttl: ttl}
}

// EnsureIndexes creates the indexes the lock collection needs: a TTL index
// on expires_at so the sweeper has a server-side backstop even if the
// in-process Sweeper is not running.
func (m *Manager) EnsureIndexes(ctx context.Context) error {
	_, err := m.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	return err
}

// Acquire attempts to take the named lock for holder. It upserts a
// document if none exists or the existing one has expired, using Mongo's
// document-level atomicity as the exclusion mechanism: FindOneAndUpdate
// with a filter that only matches an absent or expired lock makes the
// acquire itself the compare-and-swap.
func (m *Manager) Acquire(ctx context.Context, name, holder string) (*Handle, error) {
	now := time.Now()
	filter := bson.M{
		"_id": name,
		"$or": []bson.M{
			{"expires_at": bson.M{"$lte": now}},
			{"_id": bson.M{"$exists": false}},
		},
	}
	update := bson.M{
		"$set": bson.M{
			"holder":      holder,
			"acquired_at": now,
			"expires_at":  now.Add(m.ttl),
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc Document
	err := m.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, apperrors.New(apperrors.KindLockTimeout, "lock_held",
				"lock "+name+" is held by another instance")
		}
		return nil, err
	}
	if doc.Holder != holder {
		return nil, apperrors.New(apperrors.KindLockTimeout, "lock_held",
			"lock "+name+" is held by another instance")
	}

	return &Handle{name: name, holder: holder, manager: m}, nil
}

// AcquireWithRetry retries Acquire with the given backoff until ctx is
// done, for callers willing to wait out a short-lived holder rather than
// fail immediately.
func (m *Manager) AcquireWithRetry(ctx context.Context, name, holder string, retryEvery time.Duration) (*Handle, error) {
	for {
		h, err := m.Acquire(ctx, name, holder)
		if err == nil {
			return h, nil
		}
		if !apperrors.Is(err, apperrors.KindLockTimeout) {
			return nil, err
		}
		timer := time.NewTimer(retryEvery)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, apperrors.Wrap(apperrors.KindLockTimeout, "acquire_timeout",
				"timed out waiting for lock "+name, ctx.Err())
		case <-timer.C:
		}
	}
}

// Renew extends the lock's expiry, used by long-running holders (the OCO
// monitor's leader lease) to stay elected without reacquiring.
func (h *Handle) Renew(ctx context.Context, ttl time.Duration) error {
	if h.released {
		return errors.New("lock handle already released")
	}
	res, err := h.manager.coll.UpdateOne(ctx,
		bson.M{"_id": h.name, "holder": h.holder},
		bson.M{"$set": bson.M{"expires_at": time.Now().Add(ttl)}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperrors.New(apperrors.KindLockTimeout, "lock_lost",
			"lock "+h.name+" was lost before renewal")
	}
	return nil
}

// Release gives up the lock if this handle is still its holder. It is
// idempotent and safe to call from a deferred statement even if the lock
// expired naturally in the meantime.
func (h *Handle) Release(ctx context.Context) error {
	if h.released {
		return nil
	}
	h.released = true
	_, err := h.manager.coll.DeleteOne(ctx, bson.M{"_id": h.name, "holder": h.holder})
	return err
}

// Name returns the locked resource name.
func (h *Handle) Name() string { return h.name }
