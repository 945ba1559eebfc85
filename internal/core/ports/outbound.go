package ports

import (
	"context"
	"io"
	"time"

	"github.com/lawknot/legal-assistant/internal/core/domain"
)

// DocumentRepository persists document records and their analysis lifecycle.
// Every status write is guarded on the expected current status.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	GetForOwner(ctx context.Context, ownerID, id string) (*domain.Document, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Document, error)

	// BeginAnalysis moves uploaded -> analyzing and enqueues the job in one transaction.
	BeginAnalysis(ctx context.Context, id string, maxAttempts int) error
	// CompleteAnalysis writes the payload, flips analyzing -> completed and closes the job atomically.
	CompleteAnalysis(ctx context.Context, id string, analysis domain.Analysis) error
	// FailAnalysis flips analyzing -> failed with a reason and marks the job dead atomically.
	FailAnalysis(ctx context.Context, id string, reason string) error
}

// JobQueue is the durable analysis job queue.
type JobQueue interface {
	Claim(ctx context.Context, workerID string, lease time.Duration) (*domain.AnalysisJob, error)
	Retry(ctx context.Context, documentID string, runAt time.Time, lastError string) error
	MarkDone(ctx context.Context, documentID string) error
	// Release returns a running job to the queue without charging the attempt.
	Release(ctx context.Context, documentID, leaseOwner string) error
	// RequeueStaleUploads enqueues records stuck in uploaded for longer than olderThan.
	RequeueStaleUploads(ctx context.Context, olderThan time.Duration, maxAttempts int) (int, error)
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// JobSignal wakes idle workers when a job is enqueued. Signals are hints only:
// the queue itself is the durable record.
type JobSignal interface {
	PublishJobEnqueued(ctx context.Context, documentID string) error
	SubscribeJobEnqueued(ctx context.Context, handler func(context.Context, string)) error
}

// StatusNotifier fans out terminal status changes per document id.
type StatusNotifier interface {
	PublishStatus(ctx context.Context, documentID string, status domain.DocumentStatus) error
	// Watch returns a channel that receives the next status change of documentID.
	// The returned stop function releases the subscription.
	Watch(ctx context.Context, documentID string) (<-chan domain.DocumentStatus, func(), error)
}

// TextExtractor extracts plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (string, error)
}

// Analyzer produces an analysis payload for a document or fails.
type Analyzer interface {
	Analyze(ctx context.Context, doc *domain.Document) (domain.Analysis, error)
}

// CaseRepository delegates search to the store's text index and aggregations.
type CaseRepository interface {
	Search(ctx context.Context, query domain.CaseQuery) ([]domain.CaseSummary, int, error)
	GetByID(ctx context.Context, id string) (*domain.Case, error)
	Stats(ctx context.Context, recent int) (*domain.CaseStats, error)
}

// Assistant forwards a chat message to the external inference service.
type Assistant interface {
	Reply(ctx context.Context, message string) (string, error)
}
