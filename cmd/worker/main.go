package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/trustflowpay/internal/app"
	"github.com/noah-isme/trustflowpay/internal/config"
	"github.com/noah-isme/trustflowpay/internal/lock"
	"github.com/noah-isme/trustflowpay/internal/obs"
	"github.com/noah-isme/trustflowpay/internal/payment"
	"github.com/noah-isme/trustflowpay/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Str("service", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	deps, err := app.Open(startCtx, cfg, logger, app.Options{Service: "worker"})
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close(context.Background())

	if err := run(ctx, cfg, deps, logger); err != nil {
		logger.Error().Err(err).Msg("worker stopped with error")
		return
	}
	logger.Info().Msg("worker shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, deps *app.Dependencies, logger zerolog.Logger) error {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse redis uri: %w", err)
	}

	client := asynq.NewClient(redisOpt)
	defer client.Close()

	tasks := &payment.Tasks{
		Enquirer:  deps.Enquirer(),
		Store:     deps.Orders,
		Locker:    lock.Locker{R: deps.Redis, RetryBackoff: cfg.LockRetryBackoff},
		LockTTL:   cfg.LockTTL,
		Queue:     queue.Enqueuer{Client: client, Queue: cfg.QueueName, MaxAttempts: cfg.QueueMaxAttempts, Timeout: cfg.EnquiryTimeout + 10*time.Second},
		BatchSize: cfg.WorkerBatchSize,
		MinAge:    cfg.WorkerMinAge,
		Logger:    deps.PaymentLogger(),
	}

	mux := asynq.NewServeMux()
	mux.Use(queue.Instrument(logger))
	tasks.Register(mux)

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:     cfg.QueueConcurrency,
		Queues:          map[string]int{cfg.QueueName: 1},
		Logger:          queue.Logger(logger),
		ShutdownTimeout: cfg.EnquiryTimeout + 5*time.Second,
	})
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Location: time.UTC, Logger: queue.Logger(logger)})
	entryID, err := scheduler.Register(
		"@every "+cfg.WorkerSweepInterval.String(),
		payment.NewEnquirySweepTask(),
		asynq.Queue(cfg.QueueName),
		asynq.Unique(cfg.WorkerSweepInterval),
		asynq.MaxRetry(0),
	)
	if err != nil {
		return fmt.Errorf("register sweep: %w", err)
	}

	metricsSrv := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{Registry: deps.Registry}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	if err := srv.Start(mux); err != nil {
		return fmt.Errorf("start task server: %w", err)
	}
	if err := scheduler.Start(); err != nil {
		srv.Shutdown()
		return fmt.Errorf("start scheduler: %w", err)
	}
	logger.Info().
		Str("queue", cfg.QueueName).
		Str("sweep_entry", entryID).
		Dur("sweep_interval", cfg.WorkerSweepInterval).
		Msg("worker starting")

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	scheduler.Shutdown()
	srv.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return metricsSrv.Shutdown(shutdownCtx)
}
