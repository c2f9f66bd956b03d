package config

import (
	"fmt"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"
)

// TradingParams is the 32-parameter configuration tree that backs the
// engine's /api/v1/config/trading control surface. Every field is a pointer
// so a given override level (global / symbol / symbol-side) can leave a
// parameter unset and let it fall through to a less specific level.
type TradingParams struct {
	MinConfidence                   *float64       `json:"min_confidence,omitempty"`
	QuorumThreshold                 *float64       `json:"quorum_threshold,omitempty"`
	AggregationWindow                *time.Duration `json:"aggregation_window,omitempty"`
	ResolutionPolicy                 *string        `json:"resolution_policy,omitempty"`
	SameDirectionConflictResolution  *string        `json:"same_direction_conflict_resolution,omitempty"`
	DailyLossLimit                   *float64       `json:"daily_loss_limit,omitempty"`
	MaxSymbolPositionNotional        *float64       `json:"max_symbol_position_notional,omitempty"`
	MaxPortfolioExposure             *float64       `json:"max_portfolio_exposure,omitempty"`
	LockTimeout                      *time.Duration `json:"lock_timeout,omitempty"`
	VenueCallTimeout                 *time.Duration `json:"venue_call_timeout,omitempty"`
	VenueMaxRetries                  *int           `json:"venue_max_retries,omitempty"`
	VenueBackoffBase                 *time.Duration `json:"venue_backoff_base,omitempty"`
	OCOPollInterval                  *time.Duration `json:"oco_poll_interval,omitempty"`
	AutoCloseUnprotected              *bool          `json:"auto_close_unprotected,omitempty"`
	DefaultOrderType                 *string        `json:"default_order_type,omitempty"`
	DefaultTimeInForce                *string        `json:"default_time_in_force,omitempty"`
	DefaultStopLossPct               *float64       `json:"default_stop_loss_pct,omitempty"`
	DefaultTakeProfitPct             *float64       `json:"default_take_profit_pct,omitempty"`
	MaxLeverage                      *float64       `json:"max_leverage,omitempty"`
	MinOrderNotional                 *float64       `json:"min_order_notional,omitempty"`
	MaxOpenPositionsPerSymbol        *int           `json:"max_open_positions_per_symbol,omitempty"`
	MaxOpenPositionsPortfolio        *int           `json:"max_open_positions_portfolio,omitempty"`
	EnableHedgeMode                  *bool          `json:"enable_hedge_mode,omitempty"`
	SignalImmediateOverridesWindow   *bool          `json:"signal_immediate_overrides_window,omitempty"`
	MinTimeframeWeight               *float64       `json:"min_timeframe_weight,omitempty"`
	MaxTimeframeWeight               *float64       `json:"max_timeframe_weight,omitempty"`
	StrategyWeightDefault            *float64       `json:"strategy_weight_default,omitempty"`
	ModeMultiplierDeterministic      *float64       `json:"mode_multiplier_deterministic,omitempty"`
	ModeMultiplierLLMReasoning       *float64       `json:"mode_multiplier_llm_reasoning,omitempty"`
	ModeMultiplierMLModel            *float64       `json:"mode_multiplier_ml_model,omitempty"`
	RiskCheckEnabled                 *bool          `json:"risk_check_enabled,omitempty"`
	AnalyticsDualWriteEnabled        *bool          `json:"analytics_dual_write_enabled,omitempty"`
}

// scopeKey is the four override tiers, ordered most to least specific.
type scopeKey struct {
	symbol string
	side   string // "" for symbol-level and global scopes
}

func (k scopeKey) String() string {
	if k.side == "" {
		if k.symbol == "" {
			return "global"
		}
		return k.symbol
	}
	return k.symbol + ":" + k.side
}

// AuditEntry records a single write to the trading configuration tree.
type AuditEntry struct {
	Time   time.Time      `json:"time"`
	Scope  string         `json:"scope"`
	Params TradingParams  `json:"params"`
	Actor  string         `json:"actor"`
}

// TradingConfigStore holds the hierarchical trading configuration tree:
// symbol-side overrides, symbol overrides, and one global override, layered
// on top of Defaults(). Reads are served from an in-memory cache with a 60s
// TTL (mirroring internal/risk/risk_limits.go's use of patrickmn/go-cache);
// writes flush the whole resolved-value cache and append to the audit log.
type TradingConfigStore struct {
	mu       sync.RWMutex
	global   TradingParams
	symbol   map[string]TradingParams
	symSide  map[scopeKey]TradingParams
	cache    *cache.Cache
	audit    []AuditEntry
	auditMu  sync.Mutex
}

// NewTradingConfigStore creates an empty trading config tree.
func NewTradingConfigStore() *TradingConfigStore {
	return &TradingConfigStore{
		symbol:  make(map[string]TradingParams),
		symSide: make(map[scopeKey]TradingParams),
		cache:   cache.New(60*time.Second, 2*time.Minute),
	}
}

// Defaults returns the hard-coded fallback values for every parameter,
// used whenever no override at any level sets a given field.
func Defaults() TradingParams {
	f := func(v float64) *float64 { return &v }
	d := func(v time.Duration) *time.Duration { return &v }
	i := func(v int) *int { return &v }
	b := func(v bool) *bool { return &v }
	s := func(v string) *string { return &v }
	return TradingParams{
		MinConfidence:                  f(0.5),
		QuorumThreshold:                f(0.15),
		AggregationWindow:              d(200 * time.Millisecond),
		ResolutionPolicy:               s("timeframe_weighted"),
		SameDirectionConflictResolution: s("accumulate"),
		DailyLossLimit:                 f(5000),
		MaxSymbolPositionNotional:      f(50000),
		MaxPortfolioExposure:           f(250000),
		LockTimeout:                    d(60 * time.Second),
		VenueCallTimeout:               d(10 * time.Second),
		VenueMaxRetries:                i(3),
		VenueBackoffBase:               d(1 * time.Second),
		OCOPollInterval:                d(2 * time.Second),
		AutoCloseUnprotected:           b(false),
		DefaultOrderType:               s("market"),
		DefaultTimeInForce:             s("GTC"),
		DefaultStopLossPct:             f(0.02),
		DefaultTakeProfitPct:           f(0.04),
		MaxLeverage:                    f(10),
		MinOrderNotional:               f(10),
		MaxOpenPositionsPerSymbol:      i(5),
		MaxOpenPositionsPortfolio:      i(50),
		EnableHedgeMode:                b(true),
		SignalImmediateOverridesWindow: b(true),
		MinTimeframeWeight:             f(0.3),
		MaxTimeframeWeight:             f(2.0),
		StrategyWeightDefault:          f(1.0),
		ModeMultiplierDeterministic:    f(1.0),
		ModeMultiplierLLMReasoning:     f(0.9),
		ModeMultiplierMLModel:          f(1.1),
		RiskCheckEnabled:               b(true),
		AnalyticsDualWriteEnabled:      b(true),
	}
}

// Resolve merges symbol-side > symbol > global > defaults, most specific
// field-by-field, and caches the result for 60s under the scope's key.
func (s *TradingConfigStore) Resolve(symbol, side string) TradingParams {
	key := scopeKey{symbol: symbol, side: side}.String()
	if v, ok := s.cache.Get(key); ok {
		return v.(TradingParams)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	merged := Defaults()
	merge(&merged, s.global)
	if symbol != "" {
		merge(&merged, s.symbol[symbol])
		if side != "" {
			merge(&merged, s.symSide[scopeKey{symbol: symbol, side: side}])
		}
	}

	s.cache.Set(key, merged, cache.DefaultExpiration)
	return merged
}

// SetGlobal overrides the global tier.
func (s *TradingConfigStore) SetGlobal(p TradingParams, actor string) {
	s.mu.Lock()
	merge(&s.global, p)
	s.mu.Unlock()
	s.cache.Flush()
	s.recordAudit("global", p, actor)
}

// SetSymbol overrides a symbol tier.
func (s *TradingConfigStore) SetSymbol(symbol string, p TradingParams, actor string) {
	s.mu.Lock()
	cur := s.symbol[symbol]
	merge(&cur, p)
	s.symbol[symbol] = cur
	s.mu.Unlock()
	s.cache.Flush()
	s.recordAudit(symbol, p, actor)
}

// SetSymbolSide overrides a symbol+side tier.
func (s *TradingConfigStore) SetSymbolSide(symbol, side string, p TradingParams, actor string) {
	key := scopeKey{symbol: symbol, side: side}
	s.mu.Lock()
	cur := s.symSide[key]
	merge(&cur, p)
	s.symSide[key] = cur
	s.mu.Unlock()
	s.cache.Flush()
	s.recordAudit(key.String(), p, actor)
}

// Delete removes an override at the given scope, falling back to the next
// less specific tier.
func (s *TradingConfigStore) Delete(symbol, side, actor string) error {
	s.mu.Lock()
	switch {
	case symbol == "" && side == "":
		s.global = TradingParams{}
	case symbol != "" && side == "":
		delete(s.symbol, symbol)
	case symbol != "" && side != "":
		delete(s.symSide, scopeKey{symbol: symbol, side: side})
	default:
		s.mu.Unlock()
		return fmt.Errorf("invalid scope: side %q without symbol", side)
	}
	s.mu.Unlock()
	s.cache.Flush()
	s.recordAudit(scopeKey{symbol: symbol, side: side}.String()+":deleted", TradingParams{}, actor)
	return nil
}

// Audit returns a copy of the append-only audit trail.
func (s *TradingConfigStore) Audit() []AuditEntry {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	out := make([]AuditEntry, len(s.audit))
	copy(out, s.audit)
	return out
}

func (s *TradingConfigStore) recordAudit(scope string, p TradingParams, actor string) {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	s.audit = append(s.audit, AuditEntry{Time: time.Now(), Scope: scope, Params: p, Actor: actor})
}

// merge copies every non-nil field of src into dst, leaving dst's existing
// value in place for fields src leaves nil.
func merge(dst *TradingParams, src TradingParams) {
	if src.MinConfidence != nil {
		dst.MinConfidence = src.MinConfidence
	}
	if src.QuorumThreshold != nil {
		dst.QuorumThreshold = src.QuorumThreshold
	}
	if src.AggregationWindow != nil {
		dst.AggregationWindow = src.AggregationWindow
	}
	if src.ResolutionPolicy != nil {
		dst.ResolutionPolicy = src.ResolutionPolicy
	}
	if src.SameDirectionConflictResolution != nil {
		dst.SameDirectionConflictResolution = src.SameDirectionConflictResolution
	}
	if src.DailyLossLimit != nil {
		dst.DailyLossLimit = src.DailyLossLimit
	}
	if src.MaxSymbolPositionNotional != nil {
		dst.MaxSymbolPositionNotional = src.MaxSymbolPositionNotional
	}
	if src.MaxPortfolioExposure != nil {
		dst.MaxPortfolioExposure = src.MaxPortfolioExposure
	}
	if src.LockTimeout != nil {
		dst.LockTimeout = src.LockTimeout
	}
	if src.VenueCallTimeout != nil {
		dst.VenueCallTimeout = src.VenueCallTimeout
	}
	if src.VenueMaxRetries != nil {
		dst.VenueMaxRetries = src.VenueMaxRetries
	}
	if src.VenueBackoffBase != nil {
		dst.VenueBackoffBase = src.VenueBackoffBase
	}
	if src.OCOPollInterval != nil {
		dst.OCOPollInterval = src.OCOPollInterval
	}
	if src.AutoCloseUnprotected != nil {
		dst.AutoCloseUnprotected = src.AutoCloseUnprotected
	}
	if src.DefaultOrderType != nil {
		dst.DefaultOrderType = src.DefaultOrderType
	}
	if src.DefaultTimeInForce != nil {
		dst.DefaultTimeInForce = src.DefaultTimeInForce
	}
	if src.DefaultStopLossPct != nil {
		dst.DefaultStopLossPct = src.DefaultStopLossPct
	}
	if src.DefaultTakeProfitPct != nil {
		dst.DefaultTakeProfitPct = src.DefaultTakeProfitPct
	}
	if src.MaxLeverage != nil {
		dst.MaxLeverage = src.MaxLeverage
	}
	if src.MinOrderNotional != nil {
		dst.MinOrderNotional = src.MinOrderNotional
	}
	if src.MaxOpenPositionsPerSymbol != nil {
		dst.MaxOpenPositionsPerSymbol = src.MaxOpenPositionsPerSymbol
	}
	if src.MaxOpenPositionsPortfolio != nil {
		dst.MaxOpenPositionsPortfolio = src.MaxOpenPositionsPortfolio
	}
	if src.EnableHedgeMode != nil {
		dst.EnableHedgeMode = src.EnableHedgeMode
	}
	if src.SignalImmediateOverridesWindow != nil {
		dst.SignalImmediateOverridesWindow = src.SignalImmediateOverridesWindow
	}
	if src.MinTimeframeWeight != nil {
		dst.MinTimeframeWeight = src.MinTimeframeWeight
	}
	if src.MaxTimeframeWeight != nil {
		dst.MaxTimeframeWeight = src.MaxTimeframeWeight
	}
	if src.StrategyWeightDefault != nil {
		dst.StrategyWeightDefault = src.StrategyWeightDefault
	}
	if src.ModeMultiplierDeterministic != nil {
		dst.ModeMultiplierDeterministic = src.ModeMultiplierDeterministic
	}
	if src.ModeMultiplierLLMReasoning != nil {
		dst.ModeMultiplierLLMReasoning = src.ModeMultiplierLLMReasoning
	}
	if src.ModeMultiplierMLModel != nil {
		dst.ModeMultiplierMLModel = src.ModeMultiplierMLModel
	}
	if src.RiskCheckEnabled != nil {
		dst.RiskCheckEnabled = src.RiskCheckEnabled
	}
	if src.AnalyticsDualWriteEnabled != nil {
		dst.AnalyticsDualWriteEnabled = src.AnalyticsDualWriteEnabled
	}
}
