package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lawknot/legal-assistant/internal/core/domain"
)

const documentColumns = `id, owner_id, filename, original_name, storage_path, file_size, mime_type, analysis, status, failure_reason, version, created_at, updated_at`

type DocumentRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db, now: time.Now}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, owner_id, filename, original_name, storage_path, file_size, mime_type, status, version, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
		doc.ID, doc.OwnerID, doc.Filename, doc.OriginalName, doc.StoragePath, doc.FileSize, doc.MimeType,
		string(domain.StatusUploaded), doc.Version, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE id = $1
`, id)
	return scanDocumentRow(row, id)
}

func (r *DocumentRepository) GetForOwner(ctx context.Context, ownerID, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE id = $1 AND owner_id = $2
`, id, ownerID)
	return scanDocumentRow(row, id)
}

func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE owner_id = $1
ORDER BY created_at DESC
`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (r *DocumentRepository) BeginAnalysis(ctx context.Context, id string, maxAttempts int) error {
	now := r.now().UTC()
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
UPDATE documents
SET status = $2, version = version + 1, updated_at = $3
WHERE id = $1 AND status = $4
`, id, string(domain.StatusAnalyzing), now, string(domain.StatusUploaded))
		if err != nil {
			return fmt.Errorf("set status=analyzing: %w", err)
		}
		if err := expectOneRow(result, "begin analysis", id); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO analysis_jobs (document_id, status, attempts, max_attempts, run_at, created_at, updated_at)
VALUES ($1, $2, 0, $3, $4, $4, $4)
ON CONFLICT (document_id) DO NOTHING
`, id, string(domain.JobQueued), maxAttempts, now); err != nil {
			return fmt.Errorf("enqueue analysis job: %w", err)
		}
		return nil
	})
}

// CompleteAnalysis is the only write that sets the analysis payload. The
// status guard makes a duplicate completion a no-op that reports ErrConflict.
func (r *DocumentRepository) CompleteAnalysis(ctx context.Context, id string, analysis domain.Analysis) error {
	payload, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	now := r.now().UTC()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
UPDATE documents
SET analysis = $2, status = $3, failure_reason = NULL, version = version + 1, updated_at = $4
WHERE id = $1 AND status = $5
`, id, payload, string(domain.StatusCompleted), now, string(domain.StatusAnalyzing))
		if err != nil {
			return fmt.Errorf("store analysis: %w", err)
		}
		if err := expectOneRow(result, "complete analysis", id); err != nil {
			return err
		}

		if err := closeJob(ctx, tx, id, domain.JobDone, "", now); err != nil {
			return err
		}
		return nil
	})
}

func (r *DocumentRepository) FailAnalysis(ctx context.Context, id string, reason string) error {
	now := r.now().UTC()
	var conflict error

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
UPDATE documents
SET status = $2, failure_reason = $3, version = version + 1, updated_at = $4
WHERE id = $1 AND status = $5
`, id, string(domain.StatusFailed), reason, now, string(domain.StatusAnalyzing))
		if err != nil {
			return fmt.Errorf("set status=failed: %w", err)
		}
		conflict = expectOneRow(result, "fail analysis", id)

		// The job is retired even when the record already left analyzing.
		return closeJob(ctx, tx, id, domain.JobDead, reason, now)
	})
	if err != nil {
		return err
	}
	return conflict
}

func closeJob(ctx context.Context, tx *sql.Tx, documentID string, status domain.JobStatus, lastError string, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
UPDATE analysis_jobs
SET status = $2, last_error = NULLIF($3, ''), lease_owner = NULL, lease_expires_at = NULL, updated_at = $4
WHERE document_id = $1
`, documentID, string(status), lastError, now)
	if err != nil {
		return fmt.Errorf("set job status=%s: %w", status, err)
	}
	return nil
}

func expectOneRow(result sql.Result, operation, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrConflict, operation, fmt.Errorf("document %s is not in the expected status", id))
	}
	return nil
}

func scanDocumentRow(row rowScanner, id string) (*domain.Document, error) {
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return &doc, nil
}

func scanDocument(row rowScanner) (domain.Document, error) {
	var (
		doc           domain.Document
		analysisRaw   []byte
		status        string
		failureReason sql.NullString
	)
	err := row.Scan(
		&doc.ID,
		&doc.OwnerID,
		&doc.Filename,
		&doc.OriginalName,
		&doc.StoragePath,
		&doc.FileSize,
		&doc.MimeType,
		&analysisRaw,
		&status,
		&failureReason,
		&doc.Version,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return domain.Document{}, err
	}

	doc.Status = domain.DocumentStatus(status)
	doc.FailureReason = failureReason.String
	if len(analysisRaw) > 0 {
		var analysis domain.Analysis
		if err := json.Unmarshal(analysisRaw, &analysis); err != nil {
			return domain.Document{}, fmt.Errorf("unmarshal analysis: %w", err)
		}
		doc.Analysis = &analysis
	}
	return doc, nil
}
