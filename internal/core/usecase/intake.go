package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lawknot/legal-assistant/internal/core/domain"
	"github.com/lawknot/legal-assistant/internal/core/ports"
)

const DefaultUploadMaxBytes int64 = 10 << 20

// acceptedTypes maps an allowed extension to the media types accepted for it.
// The first entry is the canonical type stored on the record.
var acceptedTypes = map[string][]string{
	".pdf":  {"application/pdf", "application/x-pdf"},
	".doc":  {"application/msword"},
	".docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
	".txt":  {"text/plain"},
}

type IntakeUseCase struct {
	repo        ports.DocumentRepository
	storage     ports.ObjectStorage
	signal      ports.JobSignal
	maxBytes    int64
	maxAttempts int
	now         func() time.Time
	logger      *slog.Logger
}

func NewIntakeUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	signal ports.JobSignal,
	maxBytes int64,
	maxAttempts int,
) *IntakeUseCase {
	if maxBytes <= 0 {
		maxBytes = DefaultUploadMaxBytes
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &IntakeUseCase{
		repo:        repo,
		storage:     storage,
		signal:      signal,
		maxBytes:    maxBytes,
		maxAttempts: maxAttempts,
		now:         time.Now,
		logger:      slog.Default(),
	}
}

func (uc *IntakeUseCase) WithLogger(logger *slog.Logger) *IntakeUseCase {
	if logger != nil {
		uc.logger = logger
	}
	return uc
}

func (uc *IntakeUseCase) Upload(ctx context.Context, req ports.UploadRequest) (*domain.Document, error) {
	ext, mimeType, err := uc.validate(req)
	if err != nil {
		return nil, err
	}

	now := uc.now().UTC()
	storedName := fmt.Sprintf("document-%d-%d%s", now.UnixMilli(), rand.Int64N(1_000_000_000), ext)
	id := uuid.NewString()
	storageKey := id + "_" + storedName

	written, err := uc.storage.Save(ctx, storageKey, io.LimitReader(req.Body, uc.maxBytes+1))
	if err != nil {
		uc.discard(ctx, storageKey)
		return nil, fmt.Errorf("save to object storage: %w", err)
	}
	if written > uc.maxBytes {
		uc.discard(ctx, storageKey)
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", fmt.Errorf("file exceeds %d bytes", uc.maxBytes))
	}
	if req.Size > 0 && written != req.Size {
		uc.discard(ctx, storageKey)
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", fmt.Errorf("short write: %d of %d bytes", written, req.Size))
	}
	if written == 0 {
		uc.discard(ctx, storageKey)
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("file is empty"))
	}

	doc := &domain.Document{
		ID:           id,
		OwnerID:      req.OwnerID,
		Filename:     storedName,
		OriginalName: req.OriginalName,
		StoragePath:  storageKey,
		FileSize:     written,
		MimeType:     mimeType,
		Status:       domain.StatusUploaded,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		uc.discard(ctx, storageKey)
		return nil, fmt.Errorf("create document record: %w", err)
	}

	// The sweeper re-enqueues records left in uploaded if this step fails.
	if err := uc.repo.BeginAnalysis(ctx, doc.ID, uc.maxAttempts); err != nil {
		return nil, fmt.Errorf("begin analysis: %w", err)
	}
	doc.Status = domain.StatusAnalyzing

	if err := uc.signal.PublishJobEnqueued(ctx, doc.ID); err != nil {
		uc.logger.Warn("analysis_job_signal_failed", "document_id", doc.ID, "error", err)
	}

	return doc, nil
}

func (uc *IntakeUseCase) validate(req ports.UploadRequest) (string, string, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return "", "", domain.WrapError(domain.ErrUnauthorized, "upload document", errors.New("owner is required"))
	}
	if req.Body == nil || strings.TrimSpace(req.OriginalName) == "" {
		return "", "", domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("no file uploaded"))
	}
	if req.Size > uc.maxBytes {
		return "", "", domain.WrapError(domain.ErrInvalidInput, "upload document", fmt.Errorf("file exceeds %d bytes", uc.maxBytes))
	}

	ext := strings.ToLower(filepath.Ext(req.OriginalName))
	accepted, ok := acceptedTypes[ext]
	if !ok {
		return "", "", domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("only PDF, DOC, DOCX, and TXT files are allowed"))
	}

	mimeType, err := normalizeMediaType(req.MimeType)
	if err != nil {
		return "", "", domain.WrapError(domain.ErrInvalidInput, "upload document", err)
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		return ext, accepted[0], nil
	}
	for _, candidate := range accepted {
		if candidate == mimeType {
			return ext, accepted[0], nil
		}
	}
	return "", "", domain.WrapError(domain.ErrInvalidInput, "upload document", fmt.Errorf("media type %q does not match %s", mimeType, ext))
}

func normalizeMediaType(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return "", fmt.Errorf("malformed media type %q", raw)
	}
	return strings.ToLower(mediaType), nil
}

func (uc *IntakeUseCase) discard(ctx context.Context, key string) {
	if err := uc.storage.Delete(context.WithoutCancel(ctx), key); err != nil {
		uc.logger.Warn("stored_object_cleanup_failed", "key", key, "error", err)
	}
}
