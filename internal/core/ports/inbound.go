package ports

import (
	"context"
	"io"
	"time"

	"github.com/lawknot/legal-assistant/internal/core/domain"
)

type UploadRequest struct {
	OwnerID      string
	OriginalName string
	MimeType     string
	Size         int64
	Body         io.Reader
}

// DocumentIntake is the inbound contract for upload orchestration.
type DocumentIntake interface {
	Upload(ctx context.Context, req UploadRequest) (*domain.Document, error)
}

// AnalysisReader is the owner-scoped read model pollers use.
type AnalysisReader interface {
	GetAnalysis(ctx context.Context, ownerID, documentID string, wait time.Duration) (domain.AnalysisView, error)
	ListDocuments(ctx context.Context, ownerID string) ([]domain.Document, error)
}

// AnalysisJobHandler runs one claimed job to a terminal or retry state.
type AnalysisJobHandler interface {
	HandleJob(ctx context.Context, job domain.AnalysisJob) error
}

// CaseSearcher is the inbound contract for the case-law corpus.
type CaseSearcher interface {
	Search(ctx context.Context, query domain.CaseQuery) (*domain.CasePage, error)
	GetCase(ctx context.Context, id string) (*domain.Case, error)
	Stats(ctx context.Context) (*domain.CaseStats, error)
}

// ChatService is the inbound contract for the assistant proxy.
type ChatService interface {
	Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatReply, error)
}
