// Command tradeengine boots the signal aggregator, dispatcher, OCO
// manager, and their HTTP/NATS entrypoints as a single process. Grounded
// on the teacher's cmd/server/main.go wiring shape: construct
// collaborators bottom-up, register an os.Signal-driven graceful shutdown,
// and drive everything through context.Context cancellation.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/abdoElHodaky/hedgeengine/internal/aggregator"
	"github.com/abdoElHodaky/hedgeengine/internal/alert"
	"github.com/abdoElHodaky/hedgeengine/internal/api"
	"github.com/abdoElHodaky/hedgeengine/internal/bus"
	"github.com/abdoElHodaky/hedgeengine/internal/config"
	"github.com/abdoElHodaky/hedgeengine/internal/dispatch"
	"github.com/abdoElHodaky/hedgeengine/internal/engine"
	"github.com/abdoElHodaky/hedgeengine/internal/exchange"
	"github.com/abdoElHodaky/hedgeengine/internal/lock"
	"github.com/abdoElHodaky/hedgeengine/internal/logging"
	"github.com/abdoElHodaky/hedgeengine/internal/metrics"
	"github.com/abdoElHodaky/hedgeengine/internal/oco"
	"github.com/abdoElHodaky/hedgeengine/internal/order"
	"github.com/abdoElHodaky/hedgeengine/internal/position"
	"github.com/abdoElHodaky/hedgeengine/internal/risk"
	mongostore "github.com/abdoElHodaky/hedgeengine/internal/store/mongo"
	"github.com/abdoElHodaky/hedgeengine/internal/strategyposition"
)

func main() {
	os.Exit(run())
}

// run wires and drives the engine, returning the process exit code (spec.md
// §6) rather than calling os.Exit directly so every deferred teardown
// (sweeper, OCO monitor, leader elector, bus consumer, HTTP server) still
// runs before the process exits.
func run() int {
	cfg, err := config.Load(os.Getenv("TRADEENGINE_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		return exitConfigError
	}

	log := logging.New("tradeengine", cfg.Logging.Level, cfg.Logging.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mongoCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	store, err := mongostore.Connect(mongoCtx, cfg.Mongo.URI, cfg.Mongo.Database)
	cancel()
	if err != nil {
		log.Error("failed to connect to mongo", zap.Error(err))
		return exitPersistenceUnavailable
	}
	if err := store.EnsureIndexes(ctx); err != nil {
		log.Error("failed to ensure mongo indexes", zap.Error(err))
	}

	lockManager := lock.NewManager(store.Locks(), cfg.Dispatch.LockTimeout)
	if err := lockManager.EnsureIndexes(ctx); err != nil {
		log.Error("failed to ensure lock indexes", zap.Error(err))
	}
	sweeper := lock.NewSweeper(lockManager, log, 30*time.Second)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	adapter := exchange.NewSimAdapter(cfg.Exchange.HedgeModeEnabled, defaultSymbolInfo())

	startupCtx, startupCancel := context.WithTimeout(ctx, cfg.Exchange.CallTimeout)
	venueHedgeMode, err := adapter.VerifyHedgeMode(startupCtx)
	startupCancel()
	if err != nil {
		log.Error("venue auth/connectivity check failed on startup", zap.Error(err))
		return exitVenueAuthFailure
	}
	if cfg.Exchange.HedgeModeEnabled && !venueHedgeMode {
		log.Error("hedge mode is enabled in configuration but the venue reports one-way mode")
		return exitHedgeModeMismatch
	}

	positions := position.NewManager()
	strategies := strategyposition.NewTracker()
	metricsReg := metrics.New()
	alertSink := alert.NewLogSink(log)

	riskEngine := risk.NewEngine(risk.Limits{
		DailyLossLimit:       cfg.Risk.DailyLossLimit,
		MaxPositionNotional:  cfg.Risk.MaxSymbolPositionNotional,
		MaxPortfolioExposure: cfg.Risk.MaxPortfolioExposure,
	}, positions)

	ocoMgr := oco.NewManager(adapter, log, cfg.OCO.PollInterval, nil)

	holderID := hostnamePID()
	dispatcherCfg := dispatch.Config{
		LockTimeout:      cfg.Dispatch.LockTimeout,
		DefaultOrderType: order.Type(cfg.Dispatch.DefaultOrderType),
		StopLossPct:      cfg.Dispatch.DefaultStopLossPct,
		TakeProfitPct:    cfg.Dispatch.DefaultTakeProfitPct,
		MinConfidence:    cfg.Dispatch.MinConfidence,
		HolderID:         holderID,
	}
	dispatcher := dispatch.New(dispatcherCfg, log, adapter, lockManager, riskEngine, positions, strategies, ocoMgr)

	core := engine.Build(log, aggregator.Config{
		Window:              cfg.Aggregator.WindowDuration,
		Policy:              aggregator.ResolutionPolicy(cfg.Aggregator.DefaultPolicy),
		SameDirectionPolicy: aggregator.SameDirectionPolicy(cfg.Aggregator.SameDirectionConflictResolution),
	}, dispatcherCfg, positions, strategies, riskEngine, dispatcher, ocoMgr, metricsReg, alertSink)

	// The fill handler closes the construction cycle between the OCO
	// manager and the engine that owns its side effects.
	ocoMgr.SetFillHandler(core.OnOCOFill)
	ocoMgr.Start(ctx)
	defer ocoMgr.Stop()

	leaderElector := lock.NewElector(lockManager, log, holderID, 15*time.Second,
		func(ctx context.Context) { log.Info("this instance is the oco monitor leader") },
		func() { log.Warn("this instance lost oco monitor leadership") })
	leaderElector.Start(ctx)
	defer leaderElector.Stop()

	tradingCfgStore := config.NewTradingConfigStore()

	consumer, err := bus.Connect(strings.Join(cfg.NATS.URLs, ","), log, cfg.NATS.Subject, cfg.NATS.QueueGroup, core.Submit)
	if err != nil {
		log.Error("failed to connect to nats, running without bus intake", zap.Error(err))
	} else if err := consumer.Start(ctx); err != nil {
		log.Error("failed to start nats consumer", zap.Error(err))
	} else {
		defer consumer.Stop()
	}

	if _, sqlxDB, err := connectAnalytics(cfg.Analytics.DSN); err != nil {
		log.Warn("analytics mirror unavailable, continuing with mongo as sole store", zap.Error(err))
	} else {
		defer sqlxDB.Close()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := api.New(core, tradingCfgStore, adapter, log, metricsReg, cfg.Server)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("tradeengine listening", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received, draining")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Dispatch.ShutdownGrace)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", zap.Error(err))
	}
	return exitGracefulShutdown
}

// Exit codes, spec.md §6: 0 success, 1 fatal config error, 2 persistence
// unavailable, 3 venue auth failure on startup, 64 hedge mode mismatch,
// 130 graceful shutdown.
const (
	exitConfigError            = 1
	exitPersistenceUnavailable = 2
	exitVenueAuthFailure       = 3
	exitHedgeModeMismatch      = 64
	exitGracefulShutdown       = 130
)

func connectAnalytics(dsn string) (*gorm.DB, *sqlx.DB, error) {
	if dsn == "" {
		return nil, nil, fmt.Errorf("no analytics dsn configured")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, nil, err
	}
	return gdb, sqlx.NewDb(sqlDB, "pgx"), nil
}

func defaultSymbolInfo() map[string]exchange.SymbolInfo {
	return map[string]exchange.SymbolInfo{
		"BTCUSDT": {Symbol: "BTCUSDT", PriceTick: 0.1, QuantityStep: 0.001, MinQuantity: 0.001, MinNotional: 5, Status: "TRADING"},
		"ETHUSDT": {Symbol: "ETHUSDT", PriceTick: 0.01, QuantityStep: 0.01, MinQuantity: 0.01, MinNotional: 5, Status: "TRADING"},
	}
}

func hostnamePID() string {
	host, _ := os.Hostname()
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}
