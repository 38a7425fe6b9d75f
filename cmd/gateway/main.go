package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/notifyhub/dispatch/internal/api"
	"github.com/notifyhub/dispatch/internal/broker"
	"github.com/notifyhub/dispatch/internal/cache"
	"github.com/notifyhub/dispatch/internal/config"
	"github.com/notifyhub/dispatch/internal/db"
	"github.com/notifyhub/dispatch/internal/directory"
	"github.com/notifyhub/dispatch/internal/metrics"
	"github.com/notifyhub/dispatch/internal/repository"
	"github.com/notifyhub/dispatch/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.LoadGateway()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ---- database ----
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	// ---- fast store ----
	store, err := cache.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}

	// ---- broker ----
	brk := broker.NewAMQPBroker(cfg.AMQPURL, cfg.ExchangeName, logger)
	defer brk.Close()

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	repo := repository.NewPgNotificationRepository(pool)
	resolver := directory.NewClient(
		cfg.UserServiceURL, cfg.UserServiceTimeout,
		store, cfg.UserCacheTTL, logger,
	)

	svc := service.NewAdmissionService(repo, store, brk, resolver, service.Options{
		RateLimit:       cfg.RateLimit,
		RateLimitWindow: cfg.RateLimitWindow,
		IdempotencyTTL:  cfg.IdempotencyTTL,
	}, m.AdmissionHooks(), logger)

	// ---- HTTP server ----
	router := api.NewRouter(svc, reg, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("gateway starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	logger.Info("gateway stopped cleanly")
}
