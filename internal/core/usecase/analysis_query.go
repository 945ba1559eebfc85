package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lawknot/legal-assistant/internal/core/domain"
	"github.com/lawknot/legal-assistant/internal/core/ports"
)

type AnalysisQueryUseCase struct {
	repo     ports.DocumentRepository
	notifier ports.StatusNotifier
	maxWait  time.Duration
	logger   *slog.Logger
}

func NewAnalysisQueryUseCase(repo ports.DocumentRepository, notifier ports.StatusNotifier, maxWait time.Duration) *AnalysisQueryUseCase {
	return &AnalysisQueryUseCase{
		repo:     repo,
		notifier: notifier,
		maxWait:  maxWait,
		logger:   slog.Default(),
	}
}

func (uc *AnalysisQueryUseCase) WithLogger(logger *slog.Logger) *AnalysisQueryUseCase {
	if logger != nil {
		uc.logger = logger
	}
	return uc
}

// GetAnalysis returns the owner's view of a document. With wait > 0 and a
// non-terminal record it blocks until a terminal status is announced or the
// wait expires, then re-reads the record.
func (uc *AnalysisQueryUseCase) GetAnalysis(ctx context.Context, ownerID, documentID string, wait time.Duration) (domain.AnalysisView, error) {
	if strings.TrimSpace(ownerID) == "" {
		return domain.AnalysisView{}, domain.WrapError(domain.ErrUnauthorized, "get analysis", errors.New("owner is required"))
	}

	doc, err := uc.repo.GetForOwner(ctx, ownerID, documentID)
	if err != nil {
		return domain.AnalysisView{}, err
	}
	if doc.Status.IsTerminal() || wait <= 0 || uc.notifier == nil {
		return doc.View(), nil
	}
	if uc.maxWait > 0 && wait > uc.maxWait {
		wait = uc.maxWait
	}

	updates, stop, err := uc.notifier.Watch(ctx, documentID)
	if err != nil {
		uc.logger.Warn("document_status_watch_failed", "document_id", documentID, "error", err)
		return doc.View(), nil
	}
	defer stop()

	// Re-read after subscribing so a transition between the first read and
	// the subscription is not missed.
	doc, err = uc.repo.GetForOwner(ctx, ownerID, documentID)
	if err != nil {
		return domain.AnalysisView{}, err
	}
	if doc.Status.IsTerminal() {
		return doc.View(), nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return doc.View(), nil
		case <-timer.C:
			return uc.reread(ctx, ownerID, documentID, doc)
		case status, ok := <-updates:
			if !ok {
				return uc.reread(ctx, ownerID, documentID, doc)
			}
			if status.IsTerminal() {
				return uc.reread(ctx, ownerID, documentID, doc)
			}
		}
	}
}

func (uc *AnalysisQueryUseCase) reread(ctx context.Context, ownerID, documentID string, fallback *domain.Document) (domain.AnalysisView, error) {
	doc, err := uc.repo.GetForOwner(ctx, ownerID, documentID)
	if err != nil {
		if ctx.Err() != nil {
			return fallback.View(), nil
		}
		return domain.AnalysisView{}, err
	}
	return doc.View(), nil
}

func (uc *AnalysisQueryUseCase) ListDocuments(ctx context.Context, ownerID string) ([]domain.Document, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "list documents", errors.New("owner is required"))
	}
	docs, err := uc.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	for i := range docs {
		if docs[i].Status != domain.StatusCompleted {
			docs[i].Analysis = nil
		}
	}
	return docs, nil
}
