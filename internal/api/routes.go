// Package api exposes the engine over HTTP via gin, grounded on the
// teacher's cmd/main.go router assembly: one engine.Engine held on the
// Server struct, routes grouped by concern, consistent JSON envelopes.
package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abdoElHodaky/hedgeengine/internal/api/middleware"
	"github.com/abdoElHodaky/hedgeengine/internal/config"
	"github.com/abdoElHodaky/hedgeengine/internal/engine"
	"github.com/abdoElHodaky/hedgeengine/internal/exchange"
	"github.com/abdoElHodaky/hedgeengine/internal/logging"
	"github.com/abdoElHodaky/hedgeengine/internal/metrics"
)

// Server bundles the gin engine with the trading engine it serves.
type Server struct {
	router *gin.Engine
	core   *engine.Engine
	cfg    *config.TradingConfigStore
	adapter exchange.Adapter
	log    logging.Logger
}

// New assembles the full route tree. srvCfg governs CORS: when disabled,
// no cors.Handler is added to the chain at all.
func New(core *engine.Engine, cfg *config.TradingConfigStore, adapter exchange.Adapter, log logging.Logger, metricsReg *metrics.Registry, srvCfg config.ServerConfig) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog(log), middleware.RateLimit(100, time.Minute))
	if srvCfg.EnableCORS {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     srvCfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	s := &Server{router: r, core: core, cfg: cfg, adapter: adapter, log: log}

	r.GET("/health", s.health)
	r.GET("/ready", s.ready)
	r.GET("/live", s.live)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metricsReg.Registerer(), promhttp.HandlerOpts{})))

	r.POST("/trade", s.postTrade)
	r.GET("/account", s.getAccount)
	r.GET("/price/:symbol", s.getPrice)
	r.GET("/order/:symbol/:order_id", s.getOrder)
	r.DELETE("/order/:symbol/:order_id", s.cancelOrder)
	r.GET("/position/:symbol/:side/contributions", s.getContributions)

	cfgGroup := r.Group("/api/v1/config/trading")
	{
		cfgGroup.GET("", s.getGlobalConfig)
		cfgGroup.PUT("", s.putGlobalConfig)
		cfgGroup.GET("/:symbol", s.getSymbolConfig)
		cfgGroup.PUT("/:symbol", s.putSymbolConfig)
		cfgGroup.DELETE("/:symbol", s.deleteSymbolConfig)
		cfgGroup.GET("/:symbol/:side", s.getSymbolSideConfig)
		cfgGroup.PUT("/:symbol/:side", s.putSymbolSideConfig)
		cfgGroup.DELETE("/:symbol/:side", s.deleteSymbolSideConfig)
		cfgGroup.GET("/audit", s.getConfigAudit)
	}

	return s
}

// Handler returns the underlying http.Handler for use with an http.Server,
// keeping graceful shutdown ownership in cmd/tradeengine.
func (s *Server) Handler() http.Handler { return s.router }
