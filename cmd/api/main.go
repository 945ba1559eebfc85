package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	httpadapter "github.com/lawknot/legal-assistant/internal/adapters/http"
	mcpadapter "github.com/lawknot/legal-assistant/internal/adapters/mcp"
	"github.com/lawknot/legal-assistant/internal/bootstrap"
	"github.com/lawknot/legal-assistant/internal/config"
	"github.com/lawknot/legal-assistant/internal/observability/logging"
	"github.com/lawknot/legal-assistant/internal/observability/metrics"
)

var version = "dev"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api_failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	_, openAPI, err := httpadapter.LoadOpenAPI(ctx)
	if err != nil {
		return err
	}

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	app.OnRetry(func(operation string, _ int, _ error) {
		httpMetrics.RecordRetry("api", operation)
	})

	router := httpadapter.NewRouter(cfg, httpadapter.Dependencies{
		Intake:   app.Intake,
		Analyses: app.Analyses,
		Cases:    app.CaseSearch,
		Chat:     app.Chat,
		MCP:      mcpadapter.NewServer(app.CaseSearch, version).WithLogger(logger).Handler(),
		Metrics:  httpMetrics,
		OpenAPI:  openAPI,
		Ready:    app.Ready,
	}).Handler()

	// Long polls and chat calls hold the response open.
	writeTimeout := max(cfg.PollMaxWait, cfg.InferenceTimeout) + 15*time.Second
	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       90 * time.Second,
	}

	listener, err := net.Listen("tcp", ":"+cfg.APIPort)
	if err != nil {
		return err
	}
	if cfg.APIMaxConns > 0 {
		listener = netutil.LimitListener(listener, cfg.APIMaxConns)
	}

	workerDone := make(chan error, 1)
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	if cfg.APIEmbeddedWorker {
		pool := app.NewWorkerPool("api", nil)
		logger.Info("embedded_worker_started", "worker_id", pool.WorkerID(), "concurrency", cfg.WorkerConcurrency)
		go func() { workerDone <- pool.Run(workerCtx) }()
	} else {
		close(workerDone)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("api_listening", "port", cfg.APIPort, "max_conns", cfg.APIMaxConns, "version", version)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api_shutdown_error", "error", err)
	}
	stopWorker()
	if err := <-workerDone; err != nil {
		logger.Warn("embedded_worker_stopped", "error", err)
	}
	logger.Info("api_stopped")
	return nil
}
