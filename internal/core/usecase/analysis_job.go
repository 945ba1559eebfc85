package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lawknot/legal-assistant/internal/core/domain"
	"github.com/lawknot/legal-assistant/internal/core/ports"
)

// AnalysisJobUseCase drives one claimed job through the analyzer and records
// the outcome on both the document and the job row.
type AnalysisJobUseCase struct {
	repo     ports.DocumentRepository
	queue    ports.JobQueue
	analyzer ports.Analyzer
	notifier ports.StatusNotifier
	backoff  time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

func NewAnalysisJobUseCase(
	repo ports.DocumentRepository,
	queue ports.JobQueue,
	analyzer ports.Analyzer,
	notifier ports.StatusNotifier,
	backoff time.Duration,
) *AnalysisJobUseCase {
	if backoff <= 0 {
		backoff = 5 * time.Second
	}
	return &AnalysisJobUseCase{
		repo:     repo,
		queue:    queue,
		analyzer: analyzer,
		notifier: notifier,
		backoff:  backoff,
		now:      time.Now,
		logger:   slog.Default(),
	}
}

func (uc *AnalysisJobUseCase) WithLogger(logger *slog.Logger) *AnalysisJobUseCase {
	if logger != nil {
		uc.logger = logger
	}
	return uc
}

func (uc *AnalysisJobUseCase) HandleJob(ctx context.Context, job domain.AnalysisJob) error {
	if job.Overrun() {
		return uc.fail(ctx, job, fmt.Errorf("abandoned after %d attempts without a result", job.MaxAttempts))
	}

	doc, err := uc.repo.GetByID(ctx, job.DocumentID)
	if err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			return uc.fail(ctx, job, err)
		}
		return uc.retryOrFail(ctx, job, fmt.Errorf("fetch document by id: %w", err))
	}

	switch {
	case doc.Status.IsTerminal():
		// A duplicate delivery after the result was written.
		if err := uc.queue.MarkDone(ctx, job.DocumentID); err != nil {
			return fmt.Errorf("close job of terminal document: %w", err)
		}
		return nil
	case doc.Status != domain.StatusAnalyzing:
		return uc.retryOrFail(ctx, job, domain.WrapError(
			domain.ErrConflict, "handle analysis job", fmt.Errorf("document in status %s", doc.Status),
		))
	}

	analysis, err := uc.analyzer.Analyze(ctx, doc)
	if err == nil {
		err = analysis.Validate()
	}
	if err != nil {
		if isPermanent(err) {
			return uc.fail(ctx, job, err)
		}
		return uc.retryOrFail(ctx, job, fmt.Errorf("analyze document: %w", err))
	}

	if err := uc.repo.CompleteAnalysis(ctx, job.DocumentID, analysis); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			uc.logger.Warn("analysis_job_result_discarded", "document_id", job.DocumentID, "attempt", job.Attempts)
			return err
		}
		return uc.retryOrFail(ctx, job, fmt.Errorf("store analysis: %w", err))
	}

	uc.notify(ctx, job.DocumentID, domain.StatusCompleted)
	uc.logger.Info("analysis_job_completed",
		"document_id", job.DocumentID,
		"attempt", job.Attempts,
		"document_type", analysis.DocumentType,
	)
	return nil
}

// retryOrFail requeues a transient failure with linear backoff until the job
// runs out of attempts. Work cut short by worker shutdown is released instead.
func (uc *AnalysisJobUseCase) retryOrFail(ctx context.Context, job domain.AnalysisJob, cause error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return uc.release(ctx, job, cause)
	}
	if job.Exhausted() {
		return uc.fail(ctx, job, cause)
	}

	attempt := max(job.Attempts, 1)
	runAt := uc.now().UTC().Add(uc.backoff * time.Duration(attempt))
	if err := uc.queue.Retry(context.WithoutCancel(ctx), job.DocumentID, runAt, cause.Error()); err != nil {
		return fmt.Errorf("%w; requeue job: %v", cause, err)
	}
	uc.logger.Warn("analysis_job_retry_scheduled",
		"document_id", job.DocumentID,
		"attempt", job.Attempts,
		"run_at", runAt,
		"error", cause,
	)
	return cause
}

func (uc *AnalysisJobUseCase) release(ctx context.Context, job domain.AnalysisJob, cause error) error {
	if err := uc.queue.Release(context.WithoutCancel(ctx), job.DocumentID, job.LeaseOwner); err != nil {
		return fmt.Errorf("%w; release job: %v", cause, err)
	}
	uc.logger.Info("analysis_job_released", "document_id", job.DocumentID, "attempt", job.Attempts)
	return cause
}

func (uc *AnalysisJobUseCase) fail(ctx context.Context, job domain.AnalysisJob, cause error) error {
	if err := uc.repo.FailAnalysis(context.WithoutCancel(ctx), job.DocumentID, failureReason(cause)); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return err
		}
		return fmt.Errorf("%w; mark failed status: %v", cause, err)
	}
	uc.notify(ctx, job.DocumentID, domain.StatusFailed)
	uc.logger.Error("analysis_job_failed",
		"document_id", job.DocumentID,
		"attempt", job.Attempts,
		"error", cause,
	)
	return cause
}

func (uc *AnalysisJobUseCase) notify(ctx context.Context, documentID string, status domain.DocumentStatus) {
	if uc.notifier == nil {
		return
	}
	if err := uc.notifier.PublishStatus(context.WithoutCancel(ctx), documentID, status); err != nil {
		uc.logger.Warn("document_status_notify_failed", "document_id", documentID, "status", status, "error", err)
	}
}

func isPermanent(err error) bool {
	return errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrDocumentNotFound)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "analysis timed out"
	case errors.Is(err, domain.ErrInvalidInput):
		return err.Error()
	default:
		return "analysis failed: " + err.Error()
	}
}
