package httpadapter

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lawknot/legal-assistant/internal/config"
	"github.com/lawknot/legal-assistant/internal/core/domain"
)

func TestSearchCasesBindsQuery(t *testing.T) {
	cases := &casesFake{page: &domain.CasePage{Cases: []domain.CaseSummary{{ID: "c1"}}, CurrentPage: 2, TotalPages: 3, Total: 11}}
	metrics := &metricsFake{}
	handler := newTestHandler(config.Config{}, Dependencies{Cases: cases, Metrics: metrics})

	url := "/api/cases/search?q=breach+of+contract&caseType=contract&court=Supreme+Court&dateFrom=2023-01-01&dateTo=2023-12-31&page=2&limit=5&sort=newest"
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, url, nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", res.Code, res.Body.String())
	}

	q := cases.query
	if q.Text != "breach of contract" || q.CaseType != "contract" || q.Court != "Supreme Court" || q.Jurisdiction != "" {
		t.Fatalf("unexpected filters %+v", q)
	}
	if q.Page != 2 || q.Limit != 5 || q.Sort != domain.SortNewest {
		t.Fatalf("unexpected paging %+v", q)
	}
	if q.DateFrom == nil || !q.DateFrom.Equal(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected dateFrom %v", q.DateFrom)
	}
	if q.DateTo == nil || !q.DateTo.Equal(time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected dateTo %v", q.DateTo)
	}

	body := decodeBody(t, res)
	if body["totalPages"] != float64(3) || body["currentPage"] != float64(2) || body["total"] != float64(11) {
		t.Fatalf("unexpected body %v", body)
	}
	if len(metrics.searches) != 1 || metrics.searches[0] != "newest" {
		t.Fatalf("unexpected search metrics %v", metrics.searches)
	}
}

func TestSearchCasesRejectsMalformedParameters(t *testing.T) {
	handler := newTestHandler(config.Config{}, Dependencies{})

	cases := []struct{ query, want string }{
		{"page=abc", "invalid page parameter"},
		{"limit=1.5", "invalid limit parameter"},
		{"dateFrom=yesterday", "invalid dateFrom parameter"},
	}
	for _, tc := range cases {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/cases/search?"+tc.query, nil))
		if res.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", tc.query, res.Code)
		}
		if body := decodeBody(t, res); body["error"] != tc.want {
			t.Fatalf("%s: unexpected body %v", tc.query, body)
		}
	}
}

func TestSearchCasesMapsUseCaseValidation(t *testing.T) {
	cases := &casesFake{err: domain.WrapError(domain.ErrInvalidInput, "search", errors.New("invalid sort"))}
	handler := newTestHandler(config.Config{}, Dependencies{Cases: cases})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/cases/search?sort=alphabetical", nil))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if cases.query.Sort != "alphabetical" {
		t.Fatalf("expected raw sort to reach the use case, got %q", cases.query.Sort)
	}
}

func TestExportCasesWritesWorkbook(t *testing.T) {
	cases := &casesFake{page: &domain.CasePage{
		Cases:       []domain.CaseSummary{{ID: "c1", Title: "Smith v. Jones", Date: time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)}},
		CurrentPage: 1,
		TotalPages:  1,
		Total:       1,
	}}
	handler := newTestHandler(config.Config{}, Dependencies{Cases: cases})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/cases/export?q=smith", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", res.Code, res.Body.String())
	}
	if got := res.Header().Get("Content-Type"); got != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("unexpected content type %q", got)
	}
	if got := res.Header().Get("Content-Disposition"); got != `attachment; filename="cases-page-1.xlsx"` {
		t.Fatalf("unexpected disposition %q", got)
	}
	if !bytes.HasPrefix(res.Body.Bytes(), []byte("PK")) {
		t.Fatalf("expected a zip container")
	}
	if cases.query.Text != "smith" {
		t.Fatalf("unexpected export query %+v", cases.query)
	}
}

func TestGetCase(t *testing.T) {
	cases := &casesFake{c: &domain.Case{ID: "c1", Title: "Smith v. Jones", FullText: "full"}}
	handler := newTestHandler(config.Config{}, Dependencies{Cases: cases})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/cases/c1", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if body := decodeBody(t, res); body["fullText"] != "full" {
		t.Fatalf("unexpected body %v", body)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/cases/missing", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
	if body := decodeBody(t, res); body["error"] != "Case not found" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestCaseStatsRouteWinsOverCaseID(t *testing.T) {
	handler := newTestHandler(config.Config{}, Dependencies{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/cases/stats/overview", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if body := decodeBody(t, res); body["totalCases"] != float64(7) {
		t.Fatalf("unexpected body %v", body)
	}
}
