// Package analytics mirrors closed trades and contributions into Postgres
// for reporting and ad hoc SQL that a document store serves poorly:
// per-strategy PnL rollups, time-bucketed win rate, and similar queries an
// analyst runs interactively. Mongo remains the primary, authoritative
// store; this mirror is best-effort and reconciled by a Sync pass rather
// than a transactional dual write, since losing an analytics
// row is recoverable while losing the primary record is not. Grounded on
// the teacher's gorm.io/gorm + jmoiron/sqlx combination: gorm for the
// schema-owning writer, sqlx for hand-written reporting queries.
package analytics

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"gorm.io/gorm"
)

// ClosedTrade is one row of the trade_history table: a fully closed
// strategy position contribution, written once the contribution's Kind is
// "close".
type ClosedTrade struct {
	ID                 uint      `gorm:"primaryKey"`
	StrategyPositionID string    `gorm:"column:strategy_position_id;index"`
	StrategyID         string    `gorm:"column:strategy_id;index"`
	Symbol             string    `gorm:"column:symbol;index"`
	Side               string    `gorm:"column:side"`
	Quantity           float64   `gorm:"column:quantity"`
	EntryPrice         float64   `gorm:"column:entry_price"`
	ExitPrice          float64   `gorm:"column:exit_price"`
	RealizedPnL        float64   `gorm:"column:realized_pnl"`
	ClosedReason       string    `gorm:"column:closed_reason"`
	ClosedAt           time.Time `gorm:"column:closed_at;index"`
}

// TableName pins the gorm model to a descriptive table name rather than
// the pluralized default.
func (ClosedTrade) TableName() string { return "trade_history" }

// Store is the analytics mirror, holding both a gorm handle (schema
// migration and simple writes) and an sqlx handle over the same
// connection pool (hand-written reporting queries).
type Store struct {
	db   *gorm.DB
	sqlx *sqlx.DB
}

// New wraps an already-opened gorm.DB and the sqlx.DB sharing its
// underlying *sql.DB, so both APIs operate against one connection pool.
func New(db *gorm.DB, sqlxDB *sqlx.DB) *Store {
	return &Store{db: db, sqlx: sqlxDB}
}

// Migrate creates/updates the trade_history schema.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&ClosedTrade{})
}

// RecordClose inserts one closed-trade row. Its only caller in this tree is
// Sync.Run; the trading path never writes to this mirror.
func (s *Store) RecordClose(ctx context.Context, t ClosedTrade) error {
	return s.db.WithContext(ctx).Create(&t).Error
}

// StrategyPnL is one row of the per-strategy realized PnL rollup.
type StrategyPnL struct {
	StrategyID  string  `db:"strategy_id"`
	TradeCount  int64   `db:"trade_count"`
	TotalPnL    float64 `db:"total_pnl"`
	WinCount    int64   `db:"win_count"`
}

// StrategyPnLReport runs the hand-written rollup query sqlx is used for:
// gorm's query builder does not comfortably express conditional
// aggregation like the win-count CASE expression below.
func (s *Store) StrategyPnLReport(ctx context.Context, since time.Time) ([]StrategyPnL, error) {
	const q = `
		SELECT
			strategy_id,
			COUNT(*) AS trade_count,
			COALESCE(SUM(realized_pnl), 0) AS total_pnl,
			SUM(CASE WHEN realized_pnl > 0 THEN 1 ELSE 0 END) AS win_count
		FROM trade_history
		WHERE closed_at >= $1
		GROUP BY strategy_id
		ORDER BY total_pnl DESC`

	var out []StrategyPnL
	if err := s.sqlx.SelectContext(ctx, &out, q, since); err != nil {
		return nil, err
	}
	return out, nil
}

// SymbolExposureHistory returns the realized PnL per symbol per day over
// the trailing window, used by an operator dashboard's daily-loss chart.
func (s *Store) SymbolExposureHistory(ctx context.Context, symbol string, days int) (map[string]float64, error) {
	const q = `
		SELECT to_char(closed_at, 'YYYY-MM-DD') AS day, COALESCE(SUM(realized_pnl), 0) AS pnl
		FROM trade_history
		WHERE symbol = $1 AND closed_at >= NOW() - ($2 || ' days')::interval
		GROUP BY day
		ORDER BY day`

	rows, err := s.sqlx.QueryxContext(ctx, q, symbol, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var day string
		var pnl float64
		if err := rows.Scan(&day, &pnl); err != nil {
			return nil, err
		}
		out[day] = pnl
	}
	return out, rows.Err()
}

// Sync reconciles the analytics mirror against the primary store's
// contribution ledger; each Run is a single pass. cmd/tradeengine opens the
// analytics connection but does not construct or run a Sync.
// Reconciliation, not a dual write lock, is the durability story for this
// mirror.
type Sync struct {
	store  *Store
	source ContributionSource
}

// ContributionSource is the subset of the primary store's read API the
// reconciliation loop needs.
type ContributionSource interface {
	ClosedContributionsSince(ctx context.Context, since time.Time) ([]ClosedTrade, error)
}

// NewSync builds a reconciliation loop against store and source.
func NewSync(store *Store, source ContributionSource) *Sync {
	return &Sync{store: store, source: source}
}

// Run performs one reconciliation pass, inserting any closed trade from
// source not already present by strategy_position_id.
func (s *Sync) Run(ctx context.Context, since time.Time) (int, error) {
	trades, err := s.source.ClosedContributionsSince(ctx, since)
	if err != nil {
		return 0, err
	}

	inserted := 0
	for _, t := range trades {
		var count int64
		if err := s.store.db.WithContext(ctx).Model(&ClosedTrade{}).
			Where("strategy_position_id = ?", t.StrategyPositionID).Count(&count).Error; err != nil {
			return inserted, err
		}
		if count > 0 {
			continue
		}
		if err := s.store.RecordClose(ctx, t); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}
