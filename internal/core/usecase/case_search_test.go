package usecase

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/lawknot/legal-assistant/internal/core/domain"
)

type caseRepoFake struct {
	lastQuery   domain.CaseQuery
	hits        []domain.CaseSummary
	total       int
	recentLimit int
	cases       map[string]domain.Case
	err         error
}

func (f *caseRepoFake) Search(_ context.Context, query domain.CaseQuery) ([]domain.CaseSummary, int, error) {
	f.lastQuery = query
	if f.err != nil {
		return nil, 0, f.err
	}
	if query.Offset() >= f.total {
		return nil, f.total, nil
	}
	return f.hits, f.total, nil
}

func (f *caseRepoFake) GetByID(_ context.Context, id string) (*domain.Case, error) {
	c, ok := f.cases[id]
	if !ok {
		return nil, domain.ErrCaseNotFound
	}
	return &c, nil
}

func (f *caseRepoFake) Stats(_ context.Context, recent int) (*domain.CaseStats, error) {
	f.recentLimit = recent
	return &domain.CaseStats{TotalCases: 3}, nil
}

func TestSearchAppliesDefaultsAndFilters(t *testing.T) {
	repo := &caseRepoFake{total: 25, hits: []domain.CaseSummary{{ID: "c1"}}}
	uc := NewCaseSearchUseCase(repo)

	page, err := uc.Search(context.Background(), domain.CaseQuery{
		Text:         "  contract breach ",
		Jurisdiction: "all",
		CaseType:     "intellectual-property",
		Court:        "Supreme Court",
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	q := repo.lastQuery
	if q.Text != "contract breach" || q.Jurisdiction != "" || q.CaseType != "intellectual property" || q.Court != "Supreme Court" {
		t.Fatalf("unexpected normalized query %+v", q)
	}
	if q.Page != 1 || q.Limit != 10 || q.Sort != domain.SortRelevance {
		t.Fatalf("unexpected defaults %+v", q)
	}
	if page.TotalPages != 3 || page.CurrentPage != 1 || page.Total != 25 {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestSearchPageBeyondRangeIsEmpty(t *testing.T) {
	repo := &caseRepoFake{total: 5, hits: []domain.CaseSummary{{ID: "c1"}}}
	uc := NewCaseSearchUseCase(repo)

	page, err := uc.Search(context.Background(), domain.CaseQuery{Page: 9, Limit: 10})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if page.Cases == nil || len(page.Cases) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", page.Cases)
	}
	if page.TotalPages != 1 || page.CurrentPage != 9 {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestSearchHugePageIsEmpty(t *testing.T) {
	repo := &caseRepoFake{total: 3, hits: []domain.CaseSummary{{ID: "c1"}}}
	uc := NewCaseSearchUseCase(repo)

	page, err := uc.Search(context.Background(), domain.CaseQuery{Page: math.MaxInt64 / 50, Limit: 100})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if repo.lastQuery.Offset() < 0 {
		t.Fatalf("offset overflowed: %d", repo.lastQuery.Offset())
	}
	if len(page.Cases) != 0 || page.Total != 3 {
		t.Fatalf("expected empty page, got %+v", page)
	}
}

func TestSearchRejectsBadInput(t *testing.T) {
	uc := NewCaseSearchUseCase(&caseRepoFake{})

	if _, err := uc.Search(context.Background(), domain.CaseQuery{Sort: "alphabetical"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid sort, got %v", err)
	}

	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	if _, err := uc.Search(context.Background(), domain.CaseQuery{DateFrom: &from, DateTo: &to}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid date range, got %v", err)
	}
}

func TestSearchClampsLimit(t *testing.T) {
	repo := &caseRepoFake{}
	uc := NewCaseSearchUseCase(repo)

	if _, err := uc.Search(context.Background(), domain.CaseQuery{Limit: 5000}); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if repo.lastQuery.Limit != 100 {
		t.Fatalf("expected clamp to 100, got %d", repo.lastQuery.Limit)
	}
}

func TestTotalPages(t *testing.T) {
	cases := []struct{ total, limit, want int }{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
	}
	for _, tc := range cases {
		if got := totalPages(tc.total, tc.limit); got != tc.want {
			t.Fatalf("totalPages(%d, %d) = %d, want %d", tc.total, tc.limit, got, tc.want)
		}
	}
}

func TestGetCaseAndStats(t *testing.T) {
	repo := &caseRepoFake{cases: map[string]domain.Case{"c1": {ID: "c1", FullText: "full"}}}
	uc := NewCaseSearchUseCase(repo)

	c, err := uc.GetCase(context.Background(), "c1")
	if err != nil || c.FullText != "full" {
		t.Fatalf("unexpected case %+v err=%v", c, err)
	}
	if _, err := uc.GetCase(context.Background(), "nope"); !errors.Is(err, domain.ErrCaseNotFound) {
		t.Fatalf("expected case not found, got %v", err)
	}

	if _, err := uc.Stats(context.Background()); err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if repo.recentLimit != 5 {
		t.Fatalf("expected 5 recent cases, got %d", repo.recentLimit)
	}
}
