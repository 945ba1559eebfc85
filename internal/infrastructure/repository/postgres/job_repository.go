package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lawknot/legal-assistant/internal/core/domain"
)

const jobColumns = `document_id, status, attempts, max_attempts, run_at, lease_owner, lease_expires_at, last_error, created_at, updated_at`

// JobRepository is the durable analysis queue. One row per document and the
// lease columns keep at most one worker on a document at a time.
type JobRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db, now: time.Now}
}

// Claim leases the oldest runnable job: a queued job whose run_at has passed
// or a running job whose lease expired. It returns nil when nothing is due.
func (r *JobRepository) Claim(ctx context.Context, workerID string, lease time.Duration) (*domain.AnalysisJob, error) {
	now := r.now().UTC()
	row := r.db.QueryRowContext(ctx, `
UPDATE analysis_jobs
SET status = $1, attempts = attempts + 1, lease_owner = $2, lease_expires_at = $3, updated_at = $4
WHERE document_id = (
	SELECT document_id
	FROM analysis_jobs
	WHERE (status = $5 AND run_at <= $4)
	   OR (status = $1 AND lease_expires_at < $4)
	ORDER BY run_at
	FOR UPDATE SKIP LOCKED
	LIMIT 1
)
RETURNING `+jobColumns,
		string(domain.JobRunning), workerID, now.Add(lease), now, string(domain.JobQueued),
	)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim analysis job: %w", err)
	}
	return &job, nil
}

func (r *JobRepository) Retry(ctx context.Context, documentID string, runAt time.Time, lastError string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE analysis_jobs
SET status = $2, run_at = $3, last_error = $4, lease_owner = NULL, lease_expires_at = NULL, updated_at = $5
WHERE document_id = $1 AND status = $6
`, documentID, string(domain.JobQueued), runAt.UTC(), lastError, r.now().UTC(), string(domain.JobRunning))
	if err != nil {
		return fmt.Errorf("requeue analysis job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("requeue analysis job rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrConflict, "requeue analysis job", fmt.Errorf("job %s is not running", documentID))
	}
	return nil
}

// Release undoes a claim that was interrupted before the job could run to an
// outcome. Only the current lease holder can release.
func (r *JobRepository) Release(ctx context.Context, documentID, leaseOwner string) error {
	now := r.now().UTC()
	result, err := r.db.ExecContext(ctx, `
UPDATE analysis_jobs
SET status = $3, attempts = greatest(attempts - 1, 0), run_at = $4, lease_owner = NULL, lease_expires_at = NULL, updated_at = $4
WHERE document_id = $1 AND lease_owner = $2 AND status = $5
`, documentID, leaseOwner, string(domain.JobQueued), now, string(domain.JobRunning))
	if err != nil {
		return fmt.Errorf("release analysis job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("release analysis job rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrConflict, "release analysis job", fmt.Errorf("job %s is not leased by %s", documentID, leaseOwner))
	}
	return nil
}

func (r *JobRepository) MarkDone(ctx context.Context, documentID string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE analysis_jobs
SET status = $2, lease_owner = NULL, lease_expires_at = NULL, updated_at = $3
WHERE document_id = $1
`, documentID, string(domain.JobDone), r.now().UTC())
	if err != nil {
		return fmt.Errorf("mark analysis job done: %w", err)
	}
	return nil
}

// RequeueStaleUploads moves records stranded in uploaded to analyzing and
// enqueues their jobs in one statement.
func (r *JobRepository) RequeueStaleUploads(ctx context.Context, olderThan time.Duration, maxAttempts int) (int, error) {
	now := r.now().UTC()
	result, err := r.db.ExecContext(ctx, `
WITH stale AS (
	UPDATE documents
	SET status = $1, version = version + 1, updated_at = $2
	WHERE status = $3 AND updated_at < $4
	RETURNING id
)
INSERT INTO analysis_jobs (document_id, status, attempts, max_attempts, run_at, created_at, updated_at)
SELECT id, $5, 0, $6, $2, $2, $2 FROM stale
ON CONFLICT (document_id) DO NOTHING
`, string(domain.StatusAnalyzing), now, string(domain.StatusUploaded), now.Add(-olderThan), string(domain.JobQueued), maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("requeue stale uploads: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("requeue stale uploads rows affected: %w", err)
	}
	return int(rows), nil
}

type QueueStats struct {
	Ready     int
	Running   int
	OldestLag time.Duration
}

// Stats reports the queue depth and how long the oldest runnable job has waited.
func (r *JobRepository) Stats(ctx context.Context) (QueueStats, error) {
	var (
		stats      QueueStats
		lagSeconds float64
	)
	err := r.db.QueryRowContext(ctx, `
SELECT
	count(*) FILTER (WHERE status = $1 AND run_at <= $3),
	count(*) FILTER (WHERE status = $2),
	coalesce(extract(epoch FROM $3 - min(run_at) FILTER (WHERE status = $1 AND run_at <= $3)), 0)::float8
FROM analysis_jobs
`, string(domain.JobQueued), string(domain.JobRunning), r.now().UTC()).Scan(&stats.Ready, &stats.Running, &lagSeconds)
	if err != nil {
		return QueueStats{}, fmt.Errorf("analysis queue stats: %w", err)
	}
	stats.OldestLag = time.Duration(lagSeconds * float64(time.Second))
	return stats, nil
}

func scanJob(row rowScanner) (domain.AnalysisJob, error) {
	var (
		job            domain.AnalysisJob
		status         string
		leaseOwner     sql.NullString
		leaseExpiresAt sql.NullTime
		lastError      sql.NullString
	)
	err := row.Scan(
		&job.DocumentID,
		&status,
		&job.Attempts,
		&job.MaxAttempts,
		&job.RunAt,
		&leaseOwner,
		&leaseExpiresAt,
		&lastError,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return domain.AnalysisJob{}, err
	}
	job.Status = domain.JobStatus(status)
	job.LeaseOwner = leaseOwner.String
	job.LastError = lastError.String
	if leaseExpiresAt.Valid {
		t := leaseExpiresAt.Time
		job.LeaseExpiresAt = &t
	}
	return job, nil
}
