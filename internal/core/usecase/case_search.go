package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lawknot/legal-assistant/internal/core/domain"
	"github.com/lawknot/legal-assistant/internal/core/ports"
)

const (
	defaultCaseLimit = 10
	maxCaseLimit     = 100
	recentCaseCount  = 5
)

type CaseSearchUseCase struct {
	repo ports.CaseRepository
}

func NewCaseSearchUseCase(repo ports.CaseRepository) *CaseSearchUseCase {
	return &CaseSearchUseCase{repo: repo}
}

func (uc *CaseSearchUseCase) Search(ctx context.Context, query domain.CaseQuery) (*domain.CasePage, error) {
	query, err := NormalizeCaseQuery(query)
	if err != nil {
		return nil, err
	}

	hits, total, err := uc.repo.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search cases: %w", err)
	}
	if hits == nil {
		hits = []domain.CaseSummary{}
	}

	return &domain.CasePage{
		Cases:       hits,
		TotalPages:  totalPages(total, query.Limit),
		CurrentPage: query.Page,
		Total:       total,
	}, nil
}

func (uc *CaseSearchUseCase) GetCase(ctx context.Context, id string) (*domain.Case, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get case", errors.New("case id is required"))
	}
	return uc.repo.GetByID(ctx, id)
}

func (uc *CaseSearchUseCase) Stats(ctx context.Context) (*domain.CaseStats, error) {
	stats, err := uc.repo.Stats(ctx, recentCaseCount)
	if err != nil {
		return nil, fmt.Errorf("case stats: %w", err)
	}
	return stats, nil
}

// NormalizeCaseQuery applies defaults and turns "all" filters off.
func NormalizeCaseQuery(q domain.CaseQuery) (domain.CaseQuery, error) {
	q.Text = strings.TrimSpace(q.Text)
	q.Jurisdiction = normalizeFilter(q.Jurisdiction)
	q.CaseType = strings.ReplaceAll(normalizeFilter(q.CaseType), "-", " ")
	q.Court = normalizeFilter(q.Court)

	if q.Page < 1 {
		q.Page = 1
	}
	switch {
	case q.Limit <= 0:
		q.Limit = defaultCaseLimit
	case q.Limit > maxCaseLimit:
		q.Limit = maxCaseLimit
	}

	switch q.Sort {
	case "":
		q.Sort = domain.SortRelevance
	case domain.SortRelevance, domain.SortNewest, domain.SortOldest:
	default:
		return q, domain.WrapError(domain.ErrInvalidInput, "search cases", fmt.Errorf("unknown sort %q", q.Sort))
	}

	if q.DateFrom != nil && q.DateTo != nil && q.DateFrom.After(*q.DateTo) {
		return q, domain.WrapError(domain.ErrInvalidInput, "search cases", errors.New("dateFrom is after dateTo"))
	}
	return q, nil
}

func normalizeFilter(v string) string {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, "all") {
		return ""
	}
	return v
}

func totalPages(total, limit int) int {
	if total <= 0 || limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
