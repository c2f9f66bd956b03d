package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/abdoElHodaky/hedgeengine/internal/config"
	"github.com/abdoElHodaky/hedgeengine/internal/order"
	"github.com/abdoElHodaky/hedgeengine/internal/position"
	"github.com/abdoElHodaky/hedgeengine/internal/signal"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "live"})
}

func (s *Server) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if _, err := s.adapter.LoadSymbolInfo(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// tradeRequest is the wire shape of POST /trade, mirroring the fields the
// NATS bus decodes, since both entrypoints feed the same engine signal.
type tradeRequest struct {
	StrategyID      string                 `json:"strategy_id" binding:"required"`
	Symbol          string                 `json:"symbol" binding:"required"`
	Action          string                 `json:"action" binding:"required"`
	Confidence      float64                `json:"confidence"`
	Strength        string                 `json:"strength"`
	Timeframe       string                 `json:"timeframe" binding:"required"`
	CurrentPrice    float64                `json:"current_price" binding:"required"`
	OrderType       string                 `json:"order_type"`
	TimeInForce     string                 `json:"time_in_force"`
	StrategyMode    string                 `json:"strategy_mode"`
	PositionSizePct float64                `json:"position_size_pct"`
	StopLoss        float64                `json:"stop_loss"`
	TakeProfit      float64                `json:"take_profit"`
	Quantity        float64                `json:"quantity"`
	Rationale       string                 `json:"rationale"`
	Meta            map[string]interface{} `json:"meta"`
	Immediate       bool                   `json:"immediate"`
}

func (s *Server) postTrade(c *gin.Context) {
	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sig := signal.Signal{
		StrategyID:      req.StrategyID,
		Symbol:          req.Symbol,
		Action:          signal.Action(req.Action),
		Confidence:      req.Confidence,
		Strength:        signal.Strength(req.Strength),
		Timeframe:       signal.Timeframe(req.Timeframe),
		CurrentPrice:    req.CurrentPrice,
		OrderType:       signal.OrderTypeHint(req.OrderType),
		TimeInForce:     signal.TimeInForce(req.TimeInForce),
		StrategyMode:    signal.StrategyMode(req.StrategyMode),
		PositionSizePct: req.PositionSizePct,
		StopLoss:        req.StopLoss,
		TakeProfit:      req.TakeProfit,
		Quantity:        req.Quantity,
		Rationale:       req.Rationale,
		Meta:            req.Meta,
		Immediate:       req.Immediate,
		ArrivalTime:     time.Now(),
	}

	if err := s.core.Submit(c.Request.Context(), sig); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (s *Server) getAccount(c *gin.Context) {
	snapshot := s.core.Positions().Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"total_exposure": s.core.Positions().TotalExposure(),
		"positions":      snapshot,
	})
}

func (s *Server) getPrice(c *gin.Context) {
	symbol := c.Param("symbol")
	infos, err := s.adapter.LoadSymbolInfo(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	info, ok := infos[symbol]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol"})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) getOrder(c *gin.Context) {
	symbol, orderID := c.Param("symbol"), c.Param("order_id")
	res, err := s.adapter.QueryOrder(c.Request.Context(), symbol, orderID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) cancelOrder(c *gin.Context) {
	symbol, orderID := c.Param("symbol"), c.Param("order_id")
	if err := s.adapter.CancelOrder(c.Request.Context(), symbol, orderID); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (s *Server) getContributions(c *gin.Context) {
	symbol := c.Param("symbol")
	side := order.PositionSide(c.Param("side"))
	key := position.Key{Symbol: symbol, Side: side}

	strategyPositions := s.core.Strategies().ByExchangeKey(key)
	out := make(map[string]interface{}, len(strategyPositions))
	for _, sp := range strategyPositions {
		out[sp.StrategyPositionID] = gin.H{
			"strategy_id": sp.StrategyID,
			"status":      sp.Status,
			"quantity":    sp.Quantity,
			"entry_price": sp.EntryPrice,
			"pnl":         sp.RealizedPnL,
			"ledger":      s.core.Strategies().Contributions(sp.StrategyPositionID),
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getGlobalConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg.Resolve("", ""))
}

func (s *Server) putGlobalConfig(c *gin.Context) {
	var params config.TradingParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.cfg.SetGlobal(params, actor(c))
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (s *Server) getSymbolConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg.Resolve(c.Param("symbol"), ""))
}

func (s *Server) putSymbolConfig(c *gin.Context) {
	var params config.TradingParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.cfg.SetSymbol(c.Param("symbol"), params, actor(c))
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (s *Server) deleteSymbolConfig(c *gin.Context) {
	if err := s.cfg.Delete(c.Param("symbol"), "", actor(c)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (s *Server) getSymbolSideConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg.Resolve(c.Param("symbol"), c.Param("side")))
}

func (s *Server) putSymbolSideConfig(c *gin.Context) {
	var params config.TradingParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.cfg.SetSymbolSide(c.Param("symbol"), c.Param("side"), params, actor(c))
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (s *Server) deleteSymbolSideConfig(c *gin.Context) {
	if err := s.cfg.Delete(c.Param("symbol"), c.Param("side"), actor(c)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (s *Server) getConfigAudit(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg.Audit())
}

func actor(c *gin.Context) string {
	if v, ok := c.Get("request_id"); ok {
		if id, ok := v.(string); ok {
			return "api:" + id
		}
	}
	return "api"
}
