// Package exchange defines the logical exchange adapter contract the core
// consumes (specification §4.3) and a simulated reference implementation
// used by tests and local runs. The real venue connector is out of scope,
// exactly as the HTTP wire format is out of scope for the core.
package exchange

import (
	"context"
	"time"

	"github.com/abdoElHodaky/hedgeengine/internal/order"
)

// SymbolInfo carries the exchange filters the dispatcher needs to size and
// round an order.
type SymbolInfo struct {
	Symbol       string
	PriceTick    float64
	QuantityStep float64
	MinQuantity  float64
	MinNotional  float64
	Status       string // "TRADING", "HALT", ...
}

// PlaceResult is the venue's response to a PlaceOrder call.
type PlaceResult struct {
	OrderID      string
	Status       order.Status
	FilledQty    float64
	AvgFillPrice float64
	Commission   float64
}

// OpenOrder is a single open order as reported by ListOpenOrders.
type OpenOrder struct {
	OrderID string
	Symbol  string
	Type    order.Type
	Status  order.Status
}

// QueryResult is the venue's response to a QueryOrder call.
type QueryResult struct {
	Status       order.Status
	FilledQty    float64
	AvgFillPrice float64
}

// Adapter is the boundary the core consumes to talk to a hedge-mode futures
// venue. Implementations normalise order placement/cancel/query and expose
// symbol filters; they are responsible for sending both Side and
// PositionSide on every order and for never sending an explicit reduceOnly
// flag alongside PositionSide (the venue derives it).
type Adapter interface {
	LoadSymbolInfo(ctx context.Context) (map[string]SymbolInfo, error)
	FormatQuantity(symbol string, qty float64) (float64, error)
	FormatPrice(symbol string, price float64) (float64, error)
	CalcMinQuantity(symbol string, price float64) (float64, error)

	PlaceOrder(ctx context.Context, o *order.TradeOrder) (*PlaceResult, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	QueryOrder(ctx context.Context, symbol, orderID string) (*QueryResult, error)
	ListOpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error)

	VerifyHedgeMode(ctx context.Context) (bool, error)
}

// RetryableError, when implemented by an error returned from an Adapter
// call, tells the dispatcher and OCO manager whether the failure is safe to
// retry with backoff (transient venue errors) or must fail immediately
// (invalid symbol/quantity, insufficient balance, bad key, permission).
type RetryableError interface {
	error
	Retryable() bool
}

// VenueError wraps a venue failure with its retry classification.
type VenueError struct {
	Code      string
	Message   string
	retryable bool
}

func (e *VenueError) Error() string   { return e.Code + ": " + e.Message }
func (e *VenueError) Retryable() bool { return e.retryable }

// NewRetryableVenueError builds a VenueError the caller should retry.
func NewRetryableVenueError(code, msg string) *VenueError {
	return &VenueError{Code: code, Message: msg, retryable: true}
}

// NewNonRetryableVenueError builds a VenueError the caller must not retry.
func NewNonRetryableVenueError(code, msg string) *VenueError {
	return &VenueError{Code: code, Message: msg, retryable: false}
}

// nonRetryableCodes mirrors the specification's list: invalid symbol,
// invalid quantity, insufficient balance, invalid key, permission.
var nonRetryableCodes = map[string]bool{
	"invalid_symbol":       true,
	"invalid_quantity":     true,
	"insufficient_balance": true,
	"invalid_key":          true,
	"permission_denied":    true,
}

// ClassifyCode reports whether a venue error code is retryable.
func ClassifyCode(code string) bool {
	return !nonRetryableCodes[code]
}

// CallTimeout is the per-attempt venue call timeout named in the
// specification's concurrency model (§5).
const CallTimeout = 10 * time.Second
