package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	webAdapter "stock-tracker/internal/adapters/web"
	"stock-tracker/internal/ai"
	"stock-tracker/internal/app"
	"stock-tracker/internal/config"
	"stock-tracker/internal/core"
	"stock-tracker/internal/db"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		config.NewLogger("info", "json").Fatalf("config: %v", err)
	}
	logger := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.RequireServer(); err != nil {
		logger.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	version, err := db.Migrate(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("migrate: %v", err)
	}
	logger.WithField("schema_version", version).Info("schema up to date")

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer pool.Close()

	var locker core.UnitLocker
	if cfg.RedisAddress != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		locker = core.NewRedisLocker(rdb, cfg.UnitLockTTL)
		logger.WithField("redis", cfg.RedisAddress).Info("using distributed unit locks")
	} else {
		locker = core.NewLocalLocker()
		logger.Info("REDIS_ADDRESS not set; using in-process unit locks (single instance only)")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := core.NewPrometheusMetrics(reg)

	engine := core.NewTransitionEngine(pool, locker, core.EngineOptions{
		SaleCodePrefix: cfg.SaleCodePrefix,
		BulkMaxUnits:   cfg.BulkMaxUnits,
		Metrics:        metrics,
	})
	rules := core.NewCommissionRules(pool)

	services := app.Services{
		Store:   core.NewInventoryStore(pool, cfg.BulkMaxUnits),
		Ledger:  core.NewSaleLedger(pool),
		Assign:  core.NewAssignmentIndex(pool, locker, cfg.BulkMaxUnits, metrics),
		Engine:  engine,
		Queue:   core.NewApprovalQueue(pool, engine, locker, metrics),
		Users:   core.NewUserService(pool),
		Rules:   rules,
		Reports: core.NewReportingService(pool, rules),
		Logger:  logger,
	}
	if cfg.OpenAIAPIKey != "" {
		services.Agent = ai.NewAgent(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	} else {
		logger.Warn("OPENAI_API_KEY is not set; text proposals are disabled")
	}

	handler := webAdapter.NewHandler(webAdapter.Options{
		Service:        app.NewAppService(services),
		JWTSecret:      cfg.JWTSecret,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
		Gatherer:       reg,
		DB:             pool,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("graceful shutdown failed")
		}
	}()

	logger.Infof("server starting on :%s", cfg.ServerPort)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("server: %v", err)
	}
}
