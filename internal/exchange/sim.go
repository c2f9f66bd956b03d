package exchange

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/abdoElHodaky/hedgeengine/internal/order"
)

// SimAdapter is a reference Adapter implementation backed by in-memory
// state. It satisfies the Adapter contract for tests and local runs; a real
// venue connector implements the same interface against the exchange's wire
// format, which is out of this core's scope.
type SimAdapter struct {
	mu         sync.Mutex
	symbols    map[string]SymbolInfo
	open       map[string]map[string]OpenOrder // symbol -> orderID -> order
	terminal   map[string]order.Status         // orderID -> terminal status, once left open
	fillPrices map[string]float64              // orderID -> price to fill at, set by tests
	hedgeMode  bool
}

// NewSimAdapter creates a simulated adapter seeded with symbol filters.
func NewSimAdapter(hedgeMode bool, symbols map[string]SymbolInfo) *SimAdapter {
	return &SimAdapter{
		symbols:    symbols,
		open:       make(map[string]map[string]OpenOrder),
		terminal:   make(map[string]order.Status),
		fillPrices: make(map[string]float64),
		hedgeMode:  hedgeMode,
	}
}

func (s *SimAdapter) LoadSymbolInfo(ctx context.Context) (map[string]SymbolInfo, error) {
	out := make(map[string]SymbolInfo, len(s.symbols))
	for k, v := range s.symbols {
		out[k] = v
	}
	return out, nil
}

func (s *SimAdapter) info(symbol string) (SymbolInfo, error) {
	info, ok := s.symbols[symbol]
	if !ok {
		return SymbolInfo{}, NewNonRetryableVenueError("invalid_symbol", symbol)
	}
	return info, nil
}

func (s *SimAdapter) FormatQuantity(symbol string, qty float64) (float64, error) {
	info, err := s.info(symbol)
	if err != nil {
		return 0, err
	}
	if info.QuantityStep <= 0 {
		return qty, nil
	}
	steps := math.Floor(qty / info.QuantityStep)
	return steps * info.QuantityStep, nil
}

func (s *SimAdapter) FormatPrice(symbol string, price float64) (float64, error) {
	info, err := s.info(symbol)
	if err != nil {
		return 0, err
	}
	if info.PriceTick <= 0 {
		return price, nil
	}
	return math.Round(price/info.PriceTick) * info.PriceTick, nil
}

// CalcMinQuantity returns max(min_quantity, ceil(min_notional/price, step)).
func (s *SimAdapter) CalcMinQuantity(symbol string, price float64) (float64, error) {
	info, err := s.info(symbol)
	if err != nil {
		return 0, err
	}
	if price <= 0 {
		return 0, NewNonRetryableVenueError("invalid_price", "price must be positive")
	}
	minByNotional := info.MinNotional / price
	if info.QuantityStep > 0 {
		minByNotional = math.Ceil(minByNotional/info.QuantityStep) * info.QuantityStep
	}
	if minByNotional < info.MinQuantity {
		return info.MinQuantity, nil
	}
	return minByNotional, nil
}

// PlaceOrder immediately fills at the order's target price unless a test
// has pre-seeded a different fill price via SetFillPrice, mirroring a
// market order against a simulated book.
func (s *SimAdapter) PlaceOrder(ctx context.Context, o *order.TradeOrder) (*PlaceResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.info(o.Symbol); err != nil {
		return nil, err
	}
	if o.Quantity <= 0 {
		return nil, NewNonRetryableVenueError("invalid_quantity", "quantity must be positive")
	}

	fillPrice := o.TargetPrice
	if p, ok := s.fillPrices[o.OrderID]; ok {
		fillPrice = p
	}

	if s.open[o.Symbol] == nil {
		s.open[o.Symbol] = make(map[string]OpenOrder)
	}
	// Protection orders (stop/take-profit) start OPEN until the monitor
	// observes a fill; market/limit entry orders fill immediately.
	switch o.Type {
	case order.TypeStop, order.TypeStopLimit, order.TypeTakeProfit, order.TypeTakeProfitLimit:
		s.open[o.Symbol][o.OrderID] = OpenOrder{OrderID: o.OrderID, Symbol: o.Symbol, Type: o.Type, Status: order.StatusNew}
		return &PlaceResult{OrderID: o.OrderID, Status: order.StatusNew}, nil
	default:
		return &PlaceResult{OrderID: o.OrderID, Status: order.StatusFilled, FilledQty: o.Quantity, AvgFillPrice: fillPrice}, nil
	}
}

func (s *SimAdapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.open[symbol]; ok {
		delete(m, orderID)
	}
	// Absent-order cancel is treated as success (idempotent per contract).
	return nil
}

func (s *SimAdapter) QueryOrder(ctx context.Context, symbol, orderID string) (*QueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.open[symbol]; ok {
		if o, ok := m[orderID]; ok {
			return &QueryResult{Status: o.Status}, nil
		}
	}
	if st, ok := s.terminal[orderID]; ok {
		return &QueryResult{Status: st}, nil
	}
	return &QueryResult{Status: order.StatusFilled}, nil
}

func (s *SimAdapter) ListOpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []OpenOrder
	for _, o := range s.open[symbol] {
		out = append(out, o)
	}
	return out, nil
}

func (s *SimAdapter) VerifyHedgeMode(ctx context.Context) (bool, error) {
	return s.hedgeMode, nil
}

// --- test/simulation helpers, not part of the Adapter contract ---

// SetFillPrice pre-seeds the price a future PlaceOrder for orderID fills at.
func (s *SimAdapter) SetFillPrice(orderID string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fillPrices[orderID] = price
}

// Fill marks a previously-placed protection order as FILLED, simulating the
// venue executing it, and removes it from the open-orders set (matching
// real venues, where a filled order no longer appears as open).
func (s *SimAdapter) Fill(symbol, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.open[symbol]
	if !ok {
		return fmt.Errorf("no open orders for %s", symbol)
	}
	delete(m, orderID)
	s.terminal[orderID] = order.StatusFilled
	return nil
}

// Cancelled marks a previously-placed protection order as user-cancelled
// and removes it from the open set, distinguishing it from Fill for the
// OCO monitor's disambiguation query.
func (s *SimAdapter) Cancelled(symbol, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.open[symbol]
	if !ok {
		return fmt.Errorf("no open orders for %s", symbol)
	}
	delete(m, orderID)
	s.terminal[orderID] = order.StatusCancelled
	return nil
}
