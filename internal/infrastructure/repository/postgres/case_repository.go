package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lawknot/legal-assistant/internal/core/domain"
)

// CaseRepository delegates search to the cases.search_vector GIN index.
type CaseRepository struct {
	db *sql.DB
}

func NewCaseRepository(db *sql.DB) *CaseRepository {
	return &CaseRepository{db: db}
}

type caseFilter struct {
	where []string
	args  []any
}

func (f *caseFilter) add(cond string, arg any) {
	f.args = append(f.args, arg)
	f.where = append(f.where, fmt.Sprintf(cond, len(f.args)))
}

func (f *caseFilter) clause() string {
	if len(f.where) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(f.where, " AND ")
}

func buildCaseFilter(q domain.CaseQuery) *caseFilter {
	f := &caseFilter{}
	if q.Text != "" {
		f.add("search_vector @@ websearch_to_tsquery('english', $%d)", q.Text)
	}
	if q.Jurisdiction != "" {
		f.add(`jurisdiction ILIKE $%d ESCAPE '\'`, containsPattern(q.Jurisdiction))
	}
	if q.CaseType != "" {
		f.add(`case_type ILIKE $%d ESCAPE '\'`, containsPattern(q.CaseType))
	}
	if q.Court != "" {
		f.add(`court ILIKE $%d ESCAPE '\'`, containsPattern(q.Court))
	}
	if q.DateFrom != nil {
		f.add("decided_on >= $%d", q.DateFrom.UTC())
	}
	if q.DateTo != nil {
		f.add("decided_on <= $%d", q.DateTo.UTC())
	}
	return f
}

func (r *CaseRepository) Search(ctx context.Context, q domain.CaseQuery) ([]domain.CaseSummary, int, error) {
	f := buildCaseFilter(q)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM cases `+f.clause(), f.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count cases: %w", err)
	}
	if total == 0 || q.Offset() < 0 || q.Offset() >= total {
		return []domain.CaseSummary{}, total, nil
	}

	score := "0::float8"
	if q.Text != "" {
		// The text query is always the first bound argument.
		score = "ts_rank(search_vector, websearch_to_tsquery('english', $1))::float8"
	}

	args := append([]any(nil), f.args...)
	args = append(args, q.Limit, q.Offset())
	query := fmt.Sprintf(`
SELECT id, title, citation, court, decided_on, jurisdiction, case_type, summary, key_points, tags, coalesce(precedent_value, ''), %s AS score
FROM cases
%s
ORDER BY %s
LIMIT $%d OFFSET $%d
`, score, f.clause(), caseOrder(q), len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search cases: %w", err)
	}
	defer rows.Close()

	out := make([]domain.CaseSummary, 0, q.Limit)
	for rows.Next() {
		var (
			c                  domain.CaseSummary
			keyPoints, tagsRaw []byte
		)
		if err := rows.Scan(&c.ID, &c.Title, &c.Citation, &c.Court, &c.Date, &c.Jurisdiction, &c.CaseType,
			&c.Summary, &keyPoints, &tagsRaw, &c.PrecedentValue, &c.Score); err != nil {
			return nil, 0, fmt.Errorf("scan case: %w", err)
		}
		if c.KeyPoints, err = decodeStrings(keyPoints); err != nil {
			return nil, 0, err
		}
		if c.Tags, err = decodeStrings(tagsRaw); err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate cases: %w", err)
	}
	return out, total, nil
}

// caseOrder is relevance (rank, then newest) when a text query is present,
// oldest-first on request, newest-first otherwise.
func caseOrder(q domain.CaseQuery) string {
	switch {
	case q.Sort == domain.SortRelevance && q.Text != "":
		return "score DESC, decided_on DESC, id"
	case q.Sort == domain.SortOldest:
		return "decided_on ASC, id"
	default:
		return "decided_on DESC, id"
	}
}

func (r *CaseRepository) GetByID(ctx context.Context, id string) (*domain.Case, error) {
	var (
		c                  domain.Case
		keyPoints, tagsRaw []byte
		precedent          sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
SELECT id, title, citation, court, decided_on, jurisdiction, case_type, summary, key_points, tags, precedent_value, full_text, created_at
FROM cases
WHERE id = $1
`, id).Scan(&c.ID, &c.Title, &c.Citation, &c.Court, &c.Date, &c.Jurisdiction, &c.CaseType, &c.Summary,
		&keyPoints, &tagsRaw, &precedent, &c.FullText, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrCaseNotFound, "get case", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("get case: %w", err)
	}
	c.PrecedentValue = precedent.String
	if c.KeyPoints, err = decodeStrings(keyPoints); err != nil {
		return nil, err
	}
	if c.Tags, err = decodeStrings(tagsRaw); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CaseRepository) Stats(ctx context.Context, recent int) (*domain.CaseStats, error) {
	stats := &domain.CaseStats{}
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM cases`).Scan(&stats.TotalCases); err != nil {
		return nil, fmt.Errorf("count cases: %w", err)
	}

	var err error
	if stats.CasesByType, err = r.buckets(ctx, "case_type"); err != nil {
		return nil, err
	}
	if stats.CasesByJurisdiction, err = r.buckets(ctx, "jurisdiction"); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, title, citation, decided_on, court
FROM cases
ORDER BY decided_on DESC, id
LIMIT $1
`, recent)
	if err != nil {
		return nil, fmt.Errorf("recent cases: %w", err)
	}
	defer rows.Close()

	stats.RecentCases = make([]domain.RecentCase, 0, recent)
	for rows.Next() {
		var rc domain.RecentCase
		if err := rows.Scan(&rc.ID, &rc.Title, &rc.Citation, &rc.Date, &rc.Court); err != nil {
			return nil, fmt.Errorf("scan recent case: %w", err)
		}
		stats.RecentCases = append(stats.RecentCases, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent cases: %w", err)
	}
	return stats, nil
}

// buckets groups cases by column, largest group first. column is never user input.
func (r *CaseRepository) buckets(ctx context.Context, column string) ([]domain.CaseBucket, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
SELECT %[1]s, count(*) AS n
FROM cases
GROUP BY %[1]s
ORDER BY n DESC, %[1]s
`, column))
	if err != nil {
		return nil, fmt.Errorf("group cases by %s: %w", column, err)
	}
	defer rows.Close()

	out := make([]domain.CaseBucket, 0)
	for rows.Next() {
		var b domain.CaseBucket
		if err := rows.Scan(&b.Key, &b.Count); err != nil {
			return nil, fmt.Errorf("scan %s bucket: %w", column, err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s buckets: %w", column, err)
	}
	return out, nil
}

func containsPattern(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(v) + "%"
}

func decodeStrings(raw []byte) ([]string, error) {
	out := []string{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal string list: %w", err)
	}
	return out, nil
}
