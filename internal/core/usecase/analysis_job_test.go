package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lawknot/legal-assistant/internal/core/domain"
)

func newJobUseCaseForTest(analyzer *analyzerFake) (*AnalysisJobUseCase, *docRepoFake, *jobQueueFake, *notifierFake) {
	repo := newDocRepoFake()
	queue := &jobQueueFake{}
	notifier := newNotifierFake()
	uc := NewAnalysisJobUseCase(repo, queue, analyzer, notifier, time.Second)
	uc.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return uc, repo, queue, notifier
}

func analyzingDoc(id string) domain.Document {
	return domain.Document{ID: id, OwnerID: "u", Status: domain.StatusAnalyzing}
}

func TestHandleJobCompletesDocument(t *testing.T) {
	analyzer := &analyzerFake{analysis: validAnalysis()}
	uc, repo, _, notifier := newJobUseCaseForTest(analyzer)
	repo.put(analyzingDoc("doc-1"))

	err := uc.HandleJob(context.Background(), domain.AnalysisJob{DocumentID: "doc-1", Attempts: 1, MaxAttempts: 3})
	if err != nil {
		t.Fatalf("HandleJob() error = %v", err)
	}
	doc, _ := repo.GetByID(context.Background(), "doc-1")
	if doc.Status != domain.StatusCompleted || doc.Analysis == nil {
		t.Fatalf("expected completed with analysis, got %+v", doc)
	}
	if notifier.published["doc-1"] != domain.StatusCompleted {
		t.Fatalf("expected completed notification, got %v", notifier.published)
	}
}

func TestHandleJobRetriesTransientFailure(t *testing.T) {
	analyzer := &analyzerFake{err: domain.WrapError(domain.ErrTemporary, "analyze", errors.New("busy"))}
	uc, repo, queue, notifier := newJobUseCaseForTest(analyzer)
	repo.put(analyzingDoc("doc-1"))

	err := uc.HandleJob(context.Background(), domain.AnalysisJob{DocumentID: "doc-1", Attempts: 2, MaxAttempts: 3})
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(queue.retries) != 1 {
		t.Fatalf("expected one retry, got %d", len(queue.retries))
	}
	wantRunAt := uc.now().Add(2 * time.Second)
	if !queue.retries[0].runAt.Equal(wantRunAt) {
		t.Fatalf("expected run at %v, got %v", wantRunAt, queue.retries[0].runAt)
	}
	doc, _ := repo.GetByID(context.Background(), "doc-1")
	if doc.Status != domain.StatusAnalyzing {
		t.Fatalf("expected analyzing while retrying, got %s", doc.Status)
	}
	if len(notifier.published) != 0 {
		t.Fatalf("expected no notification on retry")
	}
}

func TestHandleJobFailsWhenAttemptsExhausted(t *testing.T) {
	analyzer := &analyzerFake{err: errors.New("boom")}
	uc, repo, queue, notifier := newJobUseCaseForTest(analyzer)
	repo.put(analyzingDoc("doc-1"))

	err := uc.HandleJob(context.Background(), domain.AnalysisJob{DocumentID: "doc-1", Attempts: 3, MaxAttempts: 3})
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(queue.retries) != 0 {
		t.Fatalf("expected no retry")
	}
	doc, _ := repo.GetByID(context.Background(), "doc-1")
	if doc.Status != domain.StatusFailed || doc.FailureReason == "" || doc.Analysis != nil {
		t.Fatalf("expected failed with reason and no payload, got %+v", doc)
	}
	if notifier.published["doc-1"] != domain.StatusFailed {
		t.Fatalf("expected failed notification")
	}
}

func TestHandleJobOverrunFailsWithoutAnalyzing(t *testing.T) {
	analyzer := &analyzerFake{analysis: validAnalysis()}
	uc, repo, queue, notifier := newJobUseCaseForTest(analyzer)
	repo.put(analyzingDoc("doc-1"))

	err := uc.HandleJob(context.Background(), domain.AnalysisJob{DocumentID: "doc-1", Attempts: 9, MaxAttempts: 3})
	if err == nil {
		t.Fatalf("expected error")
	}
	if analyzer.calls != 0 {
		t.Fatalf("analyzer ran %d times for an overrun job", analyzer.calls)
	}
	if len(queue.retries) != 0 {
		t.Fatalf("expected no retry, got %d", len(queue.retries))
	}
	doc, _ := repo.GetByID(context.Background(), "doc-1")
	if doc.Status != domain.StatusFailed || doc.FailureReason == "" {
		t.Fatalf("expected failed with reason, got %+v", doc)
	}
	if notifier.published["doc-1"] != domain.StatusFailed {
		t.Fatalf("expected failed notification")
	}
}

func TestHandleJobCancelledReleasesLease(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	analyzer := &analyzerFake{err: context.Canceled}
	uc, repo, queue, notifier := newJobUseCaseForTest(analyzer)
	repo.put(analyzingDoc("doc-1"))

	err := uc.HandleJob(ctx, domain.AnalysisJob{DocumentID: "doc-1", Attempts: 3, MaxAttempts: 3, LeaseOwner: "worker-1"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(queue.released) != 1 || queue.released[0] != "doc-1" {
		t.Fatalf("expected job release, got %v", queue.released)
	}
	if len(queue.retries) != 0 {
		t.Fatalf("cancelled job must not be charged a retry")
	}
	doc, _ := repo.GetByID(context.Background(), "doc-1")
	if doc.Status != domain.StatusAnalyzing {
		t.Fatalf("expected analyzing after shutdown, got %s", doc.Status)
	}
	if len(notifier.published) != 0 {
		t.Fatalf("expected no notification, got %v", notifier.published)
	}
}

func TestHandleJobTimeoutStillFails(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	analyzer := &analyzerFake{err: context.DeadlineExceeded}
	uc, repo, queue, _ := newJobUseCaseForTest(analyzer)
	repo.put(analyzingDoc("doc-1"))

	_ = uc.HandleJob(ctx, domain.AnalysisJob{DocumentID: "doc-1", Attempts: 3, MaxAttempts: 3})

	if len(queue.released) != 0 {
		t.Fatalf("timed out job must not be released")
	}
	doc, _ := repo.GetByID(context.Background(), "doc-1")
	if doc.Status != domain.StatusFailed || doc.FailureReason != "analysis timed out" {
		t.Fatalf("expected timed out failure, got %+v", doc)
	}
}

func TestHandleJobInvalidPayloadFailsImmediately(t *testing.T) {
	bad := validAnalysis()
	bad.Confidence = 150
	analyzer := &analyzerFake{analysis: bad}
	uc, repo, queue, _ := newJobUseCaseForTest(analyzer)
	repo.put(analyzingDoc("doc-1"))

	_ = uc.HandleJob(context.Background(), domain.AnalysisJob{DocumentID: "doc-1", Attempts: 1, MaxAttempts: 3})

	doc, _ := repo.GetByID(context.Background(), "doc-1")
	if doc.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", doc.Status)
	}
	if doc.Analysis != nil {
		t.Fatalf("invalid payload must never be written")
	}
	if len(queue.retries) != 0 {
		t.Fatalf("expected no retry for invalid payload")
	}
}

func TestHandleJobTerminalDocumentIsIdempotent(t *testing.T) {
	analyzer := &analyzerFake{analysis: validAnalysis()}
	uc, repo, queue, _ := newJobUseCaseForTest(analyzer)
	completed := analyzingDoc("doc-1")
	completed.Status = domain.StatusCompleted
	original := validAnalysis()
	completed.Analysis = &original
	repo.put(completed)

	if err := uc.HandleJob(context.Background(), domain.AnalysisJob{DocumentID: "doc-1", Attempts: 2, MaxAttempts: 3}); err != nil {
		t.Fatalf("HandleJob() error = %v", err)
	}
	if analyzer.calls != 0 {
		t.Fatalf("analyzer must not run for a terminal document")
	}
	if len(queue.done) != 1 {
		t.Fatalf("expected job to be closed, got %v", queue.done)
	}
}

func TestHandleJobConflictLeavesFirstResult(t *testing.T) {
	analyzer := &analyzerFake{analysis: validAnalysis()}
	uc, repo, _, _ := newJobUseCaseForTest(analyzer)
	repo.put(analyzingDoc("doc-1"))

	if err := uc.HandleJob(context.Background(), domain.AnalysisJob{DocumentID: "doc-1", Attempts: 1, MaxAttempts: 3}); err != nil {
		t.Fatalf("first HandleJob() error = %v", err)
	}

	// A duplicate write races past the status check.
	second := validAnalysis()
	second.DocumentType = "Legal Brief"
	err := repo.CompleteAnalysis(context.Background(), "doc-1", second)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	doc, _ := repo.GetByID(context.Background(), "doc-1")
	if doc.Analysis.DocumentType != "NDA" {
		t.Fatalf("completed analysis must be immutable, got %s", doc.Analysis.DocumentType)
	}
}

func TestHandleJobMissingDocumentFails(t *testing.T) {
	analyzer := &analyzerFake{analysis: validAnalysis()}
	uc, _, queue, _ := newJobUseCaseForTest(analyzer)

	err := uc.HandleJob(context.Background(), domain.AnalysisJob{DocumentID: "ghost", Attempts: 1, MaxAttempts: 3})
	if !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(queue.retries) != 0 {
		t.Fatalf("expected no retry for a missing document")
	}
}

func TestFailureReasonForTimeout(t *testing.T) {
	if got := failureReason(context.DeadlineExceeded); got != "analysis timed out" {
		t.Fatalf("unexpected reason %q", got)
	}
}
