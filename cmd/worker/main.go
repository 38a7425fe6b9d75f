package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/notifyhub/dispatch/internal/broker"
	"github.com/notifyhub/dispatch/internal/config"
	"github.com/notifyhub/dispatch/internal/domain"
	"github.com/notifyhub/dispatch/internal/metrics"
	"github.com/notifyhub/dispatch/internal/ratelimiter"
	"github.com/notifyhub/dispatch/internal/render"
	"github.com/notifyhub/dispatch/internal/resilience"
	"github.com/notifyhub/dispatch/internal/sender"
	"github.com/notifyhub/dispatch/internal/status"
	"github.com/notifyhub/dispatch/internal/worker"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.LoadWorker()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	logger = logger.With(zap.String("channel", string(cfg.WorkerChannel)))

	// ---- broker ----
	brk := broker.NewAMQPBroker(cfg.AMQPURL, cfg.ExchangeName, logger)
	defer brk.Close()

	// ---- collaborators ----
	renderer := newRenderer(cfg)
	reporter := status.NewClient(cfg.GatewayURL, cfg.StatusTimeout)
	limiter := ratelimiter.New(cfg.SendRatePerSec)
	snd := newSender(cfg, logger)

	// ---- metrics ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	// ---- worker pool ----
	ctx := context.Background()
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	pool := worker.NewPool(
		cfg.WorkerCount, cfg.WorkerChannel, brk, renderer, snd, reporter, limiter,
		worker.RetryConfig{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.RetryBaseDelay,
			MaxDelay:   cfg.RetryMaxDelay,
		},
		logger, m.WorkerHooks(),
	)
	pool.Start(workerCtx)

	// ---- metrics endpoint ----
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: mux}
	go func() {
		logger.Info("worker metrics server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("metrics server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	poolDone := make(chan struct{})
	go func() {
		pool.Wait()
		close(poolDone)
	}()

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case <-poolDone:
		// Every consumer lost its subscription (broker connection dropped).
		// Exit non-zero so the supervisor restarts the process; idling here
		// would be a silent delivery outage.
		logger.Fatal("worker pool exited without a shutdown signal")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", zap.Error(err))
	}

	// Stop consuming and wait for the in-flight task to finish.
	cancelWorkers()
	pool.Wait()

	logger.Info("worker stopped cleanly")
}

// newRenderer prefers the remote template service; when no URL is configured
// it falls back to a small built-in template set so the worker can run
// standalone in development.
func newRenderer(cfg *config.Config) render.Renderer {
	if cfg.TemplateServiceURL != "" {
		return render.NewClient(cfg.TemplateServiceURL, cfg.TemplateTimeout)
	}
	return render.NewStaticRenderer(map[string]render.Template{
		"welcome": {
			Subject: "Welcome, {{name}}!",
			Body:    "<p>Hi {{name}}, your account is ready.</p>",
		},
	})
}

// newSender builds the channel transport wrapped with retry and a circuit
// breaker. An unconfigured transport selects the simulated sender, which
// logs and succeeds.
func newSender(cfg *config.Config, logger *zap.Logger) sender.Sender {
	var inner sender.Sender
	switch cfg.WorkerChannel {
	case domain.ChannelEmail:
		if cfg.SMTPHost == "" {
			inner = sender.NewSimulatedSender("email", logger)
		} else {
			inner = sender.NewEmailSender(sender.EmailConfig{
				Host:     cfg.SMTPHost,
				Port:     cfg.SMTPPort,
				User:     cfg.SMTPUser,
				Password: cfg.SMTPPassword,
				From:     cfg.SMTPFrom,
				StartTLS: cfg.SMTPStartTLS,
			})
		}
	case domain.ChannelPush:
		if cfg.FCMEndpoint == "" {
			inner = sender.NewSimulatedSender("push", logger)
		} else {
			inner = sender.NewPushSender(cfg.FCMEndpoint, cfg.FCMAPIKey, cfg.FCMTimeout)
		}
	}

	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Name:             string(cfg.WorkerChannel) + "-sender",
		FailureThreshold: cfg.BreakerThreshold,
		Cooldown:         cfg.BreakerCooldown,
	}, logger)

	retrier := &resilience.Retrier{
		MaxRetries: 1,
		BaseDelay:  cfg.RetryBaseDelay,
		MaxDelay:   cfg.RetryMaxDelay,
		Retryable:  sender.DefaultRetryable,
	}

	return sender.NewResilient(inner, retrier, breaker)
}
