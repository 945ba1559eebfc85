package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lawknot/legal-assistant/internal/config"
	"github.com/lawknot/legal-assistant/internal/core/ports"
	"github.com/lawknot/legal-assistant/internal/core/usecase"
	"github.com/lawknot/legal-assistant/internal/infrastructure/analyzer"
	"github.com/lawknot/legal-assistant/internal/infrastructure/extractor"
	"github.com/lawknot/legal-assistant/internal/infrastructure/llm/inference"
	"github.com/lawknot/legal-assistant/internal/infrastructure/notify/memory"
	"github.com/lawknot/legal-assistant/internal/infrastructure/queue/nats"
	"github.com/lawknot/legal-assistant/internal/infrastructure/repository/postgres"
	"github.com/lawknot/legal-assistant/internal/infrastructure/resilience"
	"github.com/lawknot/legal-assistant/internal/infrastructure/storage/localfs"
	"github.com/lawknot/legal-assistant/internal/infrastructure/storage/s3"
	"github.com/lawknot/legal-assistant/internal/infrastructure/worker"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	DB   *sql.DB
	Jobs *postgres.JobRepository

	Signal   ports.JobSignal
	Notifier ports.StatusNotifier

	Intake       *usecase.IntakeUseCase
	Analyses     *usecase.AnalysisQueryUseCase
	AnalysisJobs *usecase.AnalysisJobUseCase
	CaseSearch   *usecase.CaseSearchUseCase
	Chat         *usecase.ChatUseCase

	executors []*resilience.Executor
	closers   []func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	db, err := postgres.OpenDB(ctx, cfg.PostgresDSN, postgres.PoolOptions{
		MaxOpenConns: cfg.PostgresMaxOpenConns,
		MaxIdleConns: cfg.PostgresMaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.DB = db
	app.closers = append(app.closers, func() { _ = db.Close() })

	if cfg.MigrateOnStart {
		if err := postgres.RunMigrations(ctx, db); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	storage, err := newStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	docAnalyzer, err := newAnalyzer(cfg, storage)
	if err != nil {
		return nil, fmt.Errorf("init analyzer: %w", err)
	}

	resilienceCfg := resilienceConfig(cfg)
	publishExec := resilience.NewExecutor(resilienceCfg.ForPublish()).WithLogger(logger)
	chatExec := resilience.NewExecutor(resilienceCfg).WithLogger(logger)
	app.executors = []*resilience.Executor{publishExec, chatExec}

	if err := app.initMessaging(cfg, publishExec); err != nil {
		return nil, err
	}

	documents := postgres.NewDocumentRepository(db)
	app.Jobs = postgres.NewJobRepository(db)
	cases := postgres.NewCaseRepository(db)

	app.Intake = usecase.NewIntakeUseCase(documents, storage, app.Signal, cfg.UploadMaxBytes, cfg.WorkerMaxAttempts).
		WithLogger(logger)
	app.Analyses = usecase.NewAnalysisQueryUseCase(documents, app.Notifier, cfg.PollMaxWait).
		WithLogger(logger)
	app.AnalysisJobs = usecase.NewAnalysisJobUseCase(documents, app.Jobs, docAnalyzer, app.Notifier, cfg.WorkerRetryBackoff).
		WithLogger(logger)
	app.CaseSearch = usecase.NewCaseSearchUseCase(cases)
	app.Chat = usecase.NewChatUseCase(inference.New(cfg.InferenceURL, inference.Options{
		Timeout:  cfg.InferenceTimeout,
		Executor: chatExec,
	}))

	return app, nil
}

// initMessaging connects to NATS when configured and otherwise falls back to
// the in-process hub, which only reaches workers embedded in the same process.
func (a *App) initMessaging(cfg config.Config, exec *resilience.Executor) error {
	if strings.TrimSpace(cfg.NATSURL) == "" {
		hub := memory.NewHub()
		a.Signal, a.Notifier = hub, hub
		a.Logger.Warn("nats_disabled", "reason", "NATS_URL is empty; using in-process notifications")
		return nil
	}

	conn, err := nats.Connect(cfg.NATSURL, nats.Options{
		Name:               "legal-assistant",
		ResilienceExecutor: exec,
		Logger:             a.Logger,
	})
	if err != nil {
		return fmt.Errorf("init nats: %w", err)
	}
	a.closers = append(a.closers, conn.Close)
	a.Signal = nats.NewJobSignal(conn, cfg.NATSJobSubject)
	a.Notifier = nats.NewStatusNotifier(conn, cfg.NATSStatusSubjectPrefix)
	return nil
}

func newStorage(ctx context.Context, cfg config.Config) (ports.ObjectStorage, error) {
	switch cfg.StorageBackend {
	case "", "localfs":
		return localfs.New(cfg.StoragePath)
	case "s3":
		return s3.New(ctx, s3.Options{
			Region:   cfg.S3Region,
			Bucket:   cfg.S3Bucket,
			Prefix:   cfg.S3Prefix,
			Endpoint: cfg.S3Endpoint,
			KMSKeyID: cfg.S3KMSKeyID,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func newAnalyzer(cfg config.Config, storage ports.ObjectStorage) (*analyzer.Analyzer, error) {
	catalog, err := analyzer.LoadCatalog(cfg.AnalyzerCatalogPath)
	if err != nil {
		return nil, err
	}

	var textExtractor ports.TextExtractor
	switch cfg.AnalyzerMode {
	case "", "canned":
	case "content":
		textExtractor = extractor.New(storage, cfg.UploadMaxBytes)
	default:
		return nil, fmt.Errorf("unknown analyzer mode %q", cfg.AnalyzerMode)
	}
	return analyzer.New(catalog, cfg.AnalyzerDelay, textExtractor), nil
}

func resilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	out.RetryMaxAttempts = cfg.ResilienceRetryMaxAttempts
	out.RetryInitialBackoff = cfg.ResilienceRetryInitialBackoff
	out.RetryMaxBackoff = cfg.ResilienceRetryMaxBackoff
	out.BreakerEnabled = cfg.ResilienceBreakerEnabled
	out.BreakerFailureRatio = cfg.ResilienceBreakerFailureRatio
	out.BreakerOpenTimeout = cfg.ResilienceBreakerOpenTimeout
	if cfg.ResilienceBreakerMinRequests > 0 {
		out.BreakerMinRequests = uint32(cfg.ResilienceBreakerMinRequests)
	}
	if cfg.ResilienceBreakerHalfOpenCalls > 0 {
		out.BreakerHalfOpenMaxCalls = uint32(cfg.ResilienceBreakerHalfOpenCalls)
	}
	return out
}

// OnRetry registers observer on every resilience executor the app built.
func (a *App) OnRetry(observer resilience.RetryObserver) {
	for _, exec := range a.executors {
		exec.OnRetry(observer)
	}
}

// NewWorkerPool builds the analysis worker pool. metrics may be nil.
func (a *App) NewWorkerPool(service string, metrics worker.Metrics) *worker.Pool {
	cfg := a.Config
	return worker.New(a.Jobs, a.AnalysisJobs, worker.Options{
		Service:          service,
		Concurrency:      cfg.WorkerConcurrency,
		JobTimeout:       cfg.WorkerJobTimeout,
		PollInterval:     cfg.WorkerPollInterval,
		MaxAttempts:      cfg.WorkerMaxAttempts,
		StaleUploadAfter: cfg.WorkerStaleUploadAge,
		Signal:           a.Signal,
		Stats:            a.queueStats,
		Metrics:          metrics,
		Logger:           a.Logger,
	})
}

func (a *App) queueStats(ctx context.Context) (int, int, time.Duration, error) {
	stats, err := a.Jobs.Stats(ctx)
	if err != nil {
		return 0, 0, 0, err
	}
	return stats.Ready, stats.Running, stats.OldestLag, nil
}

// Ready pings the database.
func (a *App) Ready(ctx context.Context) error {
	return a.DB.PingContext(ctx)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
