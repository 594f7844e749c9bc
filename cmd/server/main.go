package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kdiawara/branchstock/internal/config"
	"github.com/kdiawara/branchstock/internal/repository/mongodb"
	"github.com/kdiawara/branchstock/internal/repository/sheets"
	"github.com/kdiawara/branchstock/internal/scheduler"
	"github.com/kdiawara/branchstock/internal/server/handlers"
	"github.com/kdiawara/branchstock/internal/server/router"
	requisitionsvc "github.com/kdiawara/branchstock/internal/service/requisition"
	"github.com/kdiawara/branchstock/internal/service/transfer"
	"github.com/kdiawara/branchstock/pkg/clients/identity"
	"github.com/kdiawara/branchstock/pkg/logger"
	"github.com/kdiawara/branchstock/pkg/ratelimit"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New())
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	mongoClient, err := mongodb.NewClient(context.Background(), cfg.MongoDB.URI, cfg.MongoDB.DBName)
	if err != nil {
		baseLogger.Fatal("failed to init mongodb client", zap.Error(err))
	}
	defer func() {
		if err := mongoClient.Close(context.Background()); err != nil {
			baseLogger.Error("failed to close mongodb connection", zap.Error(err))
		}
	}()

	db := mongoClient.Database()
	requisitionRepo := mongodb.NewRequisitionRepository(db)
	productRepo := mongodb.NewProductRepository(db)

	// The audit sink is optional infrastructure: without a spreadsheet the
	// trail lands in the application log.
	var auditSink transfer.AuditSink
	if cfg.Audit.SpreadsheetID != "" {
		sheetSink, err := sheets.NewAuditSink(context.Background(), cfg.Audit, baseLogger.Named("audit.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init audit sink", zap.Error(err))
		}
		auditSink = sheetSink
		baseLogger.Info("google sheets audit sink enabled")
	} else {
		auditSink = transfer.LogSink{Logger: baseLogger.Named("audit.log")}
		baseLogger.Warn("audit spreadsheet missing, audit entries go to the log only")
	}

	executor := transfer.NewExecutor(productRepo, auditSink, baseLogger.Named("svc.transfer"))
	requisitionSvc := requisitionsvc.NewService(requisitionRepo, executor, baseLogger.Named("svc.requisition"))

	identityClient := identity.NewClient(cfg.Identity)

	var limiter ratelimit.Limiter
	if cfg.RateLimit.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RateLimit.RedisAddr,
			Password: cfg.RateLimit.RedisPassword,
		})
		redisLimiter := ratelimit.NewRedisLimiter(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.Window)
		defer func() { _ = redisLimiter.Close() }()
		limiter = redisLimiter
		baseLogger.Info("redis rate limiter enabled", zap.String("addr", cfg.RateLimit.RedisAddr))
	} else {
		baseLogger.Warn("redis address missing, rate limiting disabled")
	}

	handler := handlers.NewRequisitionHandler(requisitionSvc, baseLogger.Named("handlers.requisition"))
	productHandler := handlers.NewProductHandler(productRepo, baseLogger.Named("handlers.product"))
	engine := router.New(handler, productHandler, identityClient, limiter, baseLogger.Named("router"))

	sched := scheduler.NewScheduler(cfg.Reconcile, requisitionRepo, auditSink, baseLogger.Named("scheduler"))
	sched.Start()
	defer sched.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
