package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/lawknot/legal-assistant/internal/core/domain"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newDocumentRepoWithMock(t *testing.T) (*DocumentRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	repo := NewDocumentRepository(db)
	repo.now = func() time.Time { return fixedNow }
	return repo, mock, func() { _ = db.Close() }
}

func documentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "owner_id", "filename", "original_name", "storage_path", "file_size", "mime_type",
		"analysis", "status", "failure_reason", "version", "created_at", "updated_at",
	})
}

func TestDocumentGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newDocumentRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, owner_id, filename").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDocumentGetForOwnerDecodesAnalysis(t *testing.T) {
	repo, mock, done := newDocumentRepoWithMock(t)
	defer done()

	payload, _ := json.Marshal(domain.Analysis{
		DocumentType:   "NDA",
		KeyPoints:      []string{"Confidentiality provisions included"},
		RiskAssessment: domain.RiskLow,
		Confidence:     88,
	})
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND owner_id = $2")).
		WithArgs("doc-1", "alice").
		WillReturnRows(documentRows().AddRow(
			"doc-1", "alice", "document-1-2.pdf", "nda.pdf", "doc-1_document-1-2.pdf", int64(512000), "application/pdf",
			payload, "completed", nil, int64(2), fixedNow, fixedNow,
		))

	doc, err := repo.GetForOwner(context.Background(), "alice", "doc-1")
	if err != nil {
		t.Fatalf("GetForOwner() error = %v", err)
	}
	if doc.Status != domain.StatusCompleted || doc.Analysis == nil || doc.Analysis.Confidence != 88 {
		t.Fatalf("unexpected document %+v", doc)
	}
	if doc.FailureReason != "" {
		t.Fatalf("expected empty failure reason, got %q", doc.FailureReason)
	}
}

func TestDocumentListByOwnerNewestFirst(t *testing.T) {
	repo, mock, done := newDocumentRepoWithMock(t)
	defer done()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE owner_id = $1 ORDER BY created_at DESC")).
		WithArgs("alice").
		WillReturnRows(documentRows().
			AddRow("b", "alice", "f", "o", "p", int64(1), "text/plain", nil, "analyzing", nil, int64(1), fixedNow, fixedNow).
			AddRow("a", "alice", "f", "o", "p", int64(1), "text/plain", nil, "failed", "analysis timed out", int64(2), fixedNow, fixedNow))

	docs, err := repo.ListByOwner(context.Background(), "alice")
	if err != nil {
		t.Fatalf("ListByOwner() error = %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "b" || docs[1].FailureReason != "analysis timed out" {
		t.Fatalf("unexpected documents %+v", docs)
	}
}

func TestBeginAnalysisTransitionsAndEnqueuesInOneTx(t *testing.T) {
	repo, mock, done := newDocumentRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE documents SET status").
		WithArgs("doc-1", "analyzing", fixedNow, "uploaded").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO analysis_jobs")).
		WithArgs("doc-1", "queued", 3, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.BeginAnalysis(context.Background(), "doc-1", 3); err != nil {
		t.Fatalf("BeginAnalysis() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestBeginAnalysisConflictRollsBack(t *testing.T) {
	repo, mock, done := newDocumentRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE documents SET status").
		WithArgs("doc-1", "analyzing", fixedNow, "uploaded").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.BeginAnalysis(context.Background(), "doc-1", 3)
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCompleteAnalysisWritesPayloadAndClosesJob(t *testing.T) {
	repo, mock, done := newDocumentRepoWithMock(t)
	defer done()

	analysis := domain.Analysis{DocumentType: "NDA", RiskAssessment: domain.RiskHigh, Confidence: 95}
	payload, _ := json.Marshal(analysis)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE documents SET analysis").
		WithArgs("doc-1", payload, "completed", fixedNow, "analyzing").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE analysis_jobs SET status").
		WithArgs("doc-1", "done", "", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.CompleteAnalysis(context.Background(), "doc-1", analysis); err != nil {
		t.Fatalf("CompleteAnalysis() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCompleteAnalysisDuplicateWritesNothing(t *testing.T) {
	repo, mock, done := newDocumentRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE documents SET analysis").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.CompleteAnalysis(context.Background(), "doc-1", domain.Analysis{DocumentType: "NDA", RiskAssessment: domain.RiskLow})
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFailAnalysisRetiresJobEvenOnConflict(t *testing.T) {
	repo, mock, done := newDocumentRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE documents SET status").
		WithArgs("doc-1", "failed", "analysis timed out", fixedNow, "analyzing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE analysis_jobs SET status").
		WithArgs("doc-1", "dead", "analysis timed out", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.FailAnalysis(context.Background(), "doc-1", "analysis timed out")
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
