package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lawknot/legal-assistant/internal/bootstrap"
	"github.com/lawknot/legal-assistant/internal/config"
	"github.com/lawknot/legal-assistant/internal/observability/logging"
	"github.com/lawknot/legal-assistant/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	// The api process and cmd/migrate own the schema.
	cfg.MigrateOnStart = false

	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("worker_failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	app.OnRetry(func(operation string, _ int, _ error) {
		workerMetrics.RecordRetry("worker", operation)
	})

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", workerMetrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_error", "error", err)
		}
	}()

	pool := app.NewWorkerPool("worker", workerMetrics)
	logger.Info("worker_started",
		"worker_id", pool.WorkerID(),
		"concurrency", cfg.WorkerConcurrency,
		"job_subject", cfg.NATSJobSubject,
	)
	runErr := pool.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	logger.Info("worker_stopped")
	return runErr
}
