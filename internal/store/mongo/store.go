// Package mongo is the primary persistence layer: it defines the persisted
// shapes of exchange positions, strategy positions, orders, OCO pairs, and
// contribution ledger entries, and the methods that write and read them.
// Named (not grounded in any example
// repo's code, since none of the pack uses MongoDB), but required by the
// specification's distributed lock and persistent state requirements;
// go.mongodb.org/mongo-driver is the standard ecosystem client for it.
package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/abdoElHodaky/hedgeengine/internal/oco"
	"github.com/abdoElHodaky/hedgeengine/internal/order"
	"github.com/abdoElHodaky/hedgeengine/internal/position"
	"github.com/abdoElHodaky/hedgeengine/internal/strategyposition"
)

// Store wraps the database handle and exposes one collection accessor per
// persisted entity.
type Store struct {
	db *mongo.Database
}

// Connect dials uri and returns a Store bound to dbName, pinging to fail
// fast on a bad connection string rather than on the first write.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, err
	}
	return &Store{db: client.Database(dbName)}, nil
}

func (s *Store) orders() *mongo.Collection             { return s.db.Collection("orders") }
func (s *Store) positions() *mongo.Collection          { return s.db.Collection("exchange_positions") }
func (s *Store) strategyPositions() *mongo.Collection  { return s.db.Collection("strategy_positions") }
func (s *Store) contributions() *mongo.Collection      { return s.db.Collection("position_contributions") }
func (s *Store) ocoPairs() *mongo.Collection           { return s.db.Collection("oco_pairs") }

// Locks returns the collection backing internal/lock.Manager.
func (s *Store) Locks() *mongo.Collection { return s.db.Collection("distributed_locks") }

// EnsureIndexes creates the lookup indexes the query patterns in this
// package rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.positions().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "symbol", Value: 1}, {Key: "side", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}
	_, err = s.strategyPositions().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "symbol", Value: 1}, {Key: "side", Value: 1}},
	})
	if err != nil {
		return err
	}
	_, err = s.contributions().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "strategy_position_id", Value: 1}},
	})
	return err
}

// orderDoc is the on-disk shape of a TradeOrder.
type orderDoc struct {
	OrderID      string    `bson:"_id"`
	Symbol       string    `bson:"symbol"`
	Side         string    `bson:"side"`
	Type         string    `bson:"type"`
	Quantity     float64   `bson:"quantity"`
	TargetPrice  float64   `bson:"target_price"`
	PositionSide string    `bson:"position_side"`
	Status       string    `bson:"status"`
	FilledQty    float64   `bson:"filled_qty"`
	AvgFillPrice float64   `bson:"avg_fill_price"`
	StrategyID   string    `bson:"strategy_id"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

// UpsertOrder writes the current state of a TradeOrder, replacing any
// earlier record with the same order id.
func (s *Store) UpsertOrder(ctx context.Context, o *order.TradeOrder) error {
	doc := orderDoc{
		OrderID:      o.OrderID,
		Symbol:       o.Symbol,
		Side:         string(o.Side),
		Type:         string(o.Type),
		Quantity:     o.Quantity,
		TargetPrice:  o.TargetPrice,
		PositionSide: string(o.PositionSide),
		Status:       string(o.Status),
		FilledQty:    o.FilledQty,
		AvgFillPrice: o.AvgFillPrice,
		StrategyID:   o.Signal.StrategyID,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
	_, err := s.orders().ReplaceOne(ctx, bson.M{"_id": o.OrderID}, doc, options.Replace().SetUpsert(true))
	return err
}

// positionDoc is the on-disk shape of an ExchangePosition.
type positionDoc struct {
	Symbol        string    `bson:"symbol"`
	Side          string    `bson:"side"`
	Quantity      float64   `bson:"quantity"`
	AvgEntryPrice float64   `bson:"avg_entry_price"`
	RealizedPnL   float64   `bson:"realized_pnl"`
	Status        string    `bson:"status"`
	LastUpdate    time.Time `bson:"last_update"`
}

// UpsertPosition writes the current state of an aggregate exchange
// position, keyed by (symbol, side).
func (s *Store) UpsertPosition(ctx context.Context, p position.ExchangePosition) error {
	doc := positionDoc{
		Symbol:        p.Key.Symbol,
		Side:          string(p.Key.Side),
		Quantity:      p.Quantity,
		AvgEntryPrice: p.AvgEntryPrice,
		RealizedPnL:   p.RealizedPnL,
		Status:        string(p.Status),
		LastUpdate:    p.LastUpdate,
	}
	_, err := s.positions().ReplaceOne(ctx,
		bson.M{"symbol": p.Key.Symbol, "side": string(p.Key.Side)},
		doc, options.Replace().SetUpsert(true))
	return err
}

// strategyPositionDoc is the on-disk shape of a StrategyPosition.
type strategyPositionDoc struct {
	StrategyPositionID string    `bson:"_id"`
	StrategyID         string    `bson:"strategy_id"`
	Symbol             string    `bson:"symbol"`
	Side               string    `bson:"side"`
	Quantity           float64   `bson:"quantity"`
	EntryPrice         float64   `bson:"entry_price"`
	RealizedPnL        float64   `bson:"realized_pnl"`
	Status             string    `bson:"status"`
	OpenedAt           time.Time `bson:"opened_at"`
	ClosedAt           time.Time `bson:"closed_at,omitempty"`
}

// UpsertStrategyPosition persists a strategy's virtual position.
func (s *Store) UpsertStrategyPosition(ctx context.Context, sp strategyposition.StrategyPosition) error {
	doc := strategyPositionDoc{
		StrategyPositionID: sp.StrategyPositionID,
		StrategyID:         sp.StrategyID,
		Symbol:             sp.ExchangeKey.Symbol,
		Side:               string(sp.ExchangeKey.Side),
		Quantity:           sp.Quantity,
		EntryPrice:         sp.EntryPrice,
		RealizedPnL:        sp.RealizedPnL,
		Status:             string(sp.Status),
		OpenedAt:           sp.OpenedAt,
		ClosedAt:           sp.ClosedAt,
	}
	_, err := s.strategyPositions().ReplaceOne(ctx,
		bson.M{"_id": sp.StrategyPositionID}, doc, options.Replace().SetUpsert(true))
	return err
}

// contributionDoc is the on-disk, append-only shape of a Contribution.
type contributionDoc struct {
	StrategyPositionID string    `bson:"strategy_position_id"`
	Symbol             string    `bson:"symbol"`
	Side               string    `bson:"side"`
	Quantity           float64   `bson:"quantity"`
	Price              float64   `bson:"price"`
	RealizedPnL        float64   `bson:"realized_pnl"`
	Kind               string    `bson:"kind"`
	Timestamp          time.Time `bson:"timestamp"`
}

// AppendContribution inserts one ledger entry. Never updates or deletes,
// matching the append-only contract the specification requires for audit.
func (s *Store) AppendContribution(ctx context.Context, c strategyposition.Contribution) error {
	doc := contributionDoc{
		StrategyPositionID: c.StrategyPositionID,
		Symbol:             c.ExchangeKey.Symbol,
		Side:               string(c.ExchangeKey.Side),
		Quantity:           c.Quantity,
		Price:              c.Price,
		RealizedPnL:        c.RealizedPnL,
		Kind:               c.Kind,
		Timestamp:          c.Timestamp,
	}
	_, err := s.contributions().InsertOne(ctx, doc)
	return err
}

// ContributionsByStrategyPosition returns the ledger for one strategy
// position, oldest first.
func (s *Store) ContributionsByStrategyPosition(ctx context.Context, strategyPositionID string) ([]strategyposition.Contribution, error) {
	cur, err := s.contributions().Find(ctx,
		bson.M{"strategy_position_id": strategyPositionID},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []strategyposition.Contribution
	for cur.Next(ctx) {
		var doc contributionDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, strategyposition.Contribution{
			StrategyPositionID: doc.StrategyPositionID,
			ExchangeKey:        position.Key{Symbol: doc.Symbol, Side: order.PositionSide(doc.Side)},
			Quantity:           doc.Quantity,
			Price:              doc.Price,
			RealizedPnL:        doc.RealizedPnL,
			Kind:               doc.Kind,
			Timestamp:          doc.Timestamp,
		})
	}
	return out, cur.Err()
}

// ocoPairDoc is the on-disk shape of an OCOPair.
type ocoPairDoc struct {
	PairID             string    `bson:"_id"`
	Symbol             string    `bson:"symbol"`
	Side               string    `bson:"side"`
	StrategyPositionID string    `bson:"strategy_position_id"`
	SLOrderID          string    `bson:"sl_order_id"`
	TPOrderID          string    `bson:"tp_order_id"`
	Quantity           float64   `bson:"quantity"`
	Status             string    `bson:"status"`
	CreatedAt          time.Time `bson:"created_at"`
	ClosedAt           time.Time `bson:"closed_at,omitempty"`
	ClosedReason       string    `bson:"closed_reason,omitempty"`
}

// UpsertOCOPair persists the current state of an OCO pair.
func (s *Store) UpsertOCOPair(ctx context.Context, p oco.OCOPair) error {
	doc := ocoPairDoc{
		PairID:             p.PairID,
		Symbol:             p.ExchangeKey.Symbol,
		Side:               string(p.ExchangeKey.Side),
		StrategyPositionID: p.StrategyPositionID,
		SLOrderID:          p.SLOrderID,
		TPOrderID:          p.TPOrderID,
		Quantity:           p.Quantity,
		Status:             string(p.Status),
		CreatedAt:          p.CreatedAt,
		ClosedAt:           p.ClosedAt,
		ClosedReason:       p.ClosedReason,
	}
	_, err := s.ocoPairs().ReplaceOne(ctx, bson.M{"_id": p.PairID}, doc, options.Replace().SetUpsert(true))
	return err
}
