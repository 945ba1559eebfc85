package httpadapter

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/oapi-codegen/runtime"
	"github.com/oapi-codegen/runtime/types"

	"github.com/lawknot/legal-assistant/internal/core/domain"
	"github.com/lawknot/legal-assistant/internal/infrastructure/export/xlsx"
)

type caseSearchParams struct {
	Q            *string
	Jurisdiction *string
	CaseType     *string
	Court        *string
	DateFrom     *types.Date
	DateTo       *types.Date
	Page         *int
	Limit        *int
	Sort         *string
}

// bindCaseQuery decodes the search query string with the same binder the
// generated OpenAPI server stubs use.
func bindCaseQuery(r *http.Request) (domain.CaseQuery, error) {
	var params caseSearchParams
	values := r.URL.Query()

	bindings := []struct {
		name string
		dest any
	}{
		{"q", &params.Q},
		{"jurisdiction", &params.Jurisdiction},
		{"caseType", &params.CaseType},
		{"court", &params.Court},
		{"dateFrom", &params.DateFrom},
		{"dateTo", &params.DateTo},
		{"page", &params.Page},
		{"limit", &params.Limit},
		{"sort", &params.Sort},
	}
	for _, b := range bindings {
		if err := runtime.BindQueryParameter("form", true, false, b.name, values, b.dest); err != nil {
			return domain.CaseQuery{}, domain.WrapError(domain.ErrInvalidInput, "bind case query", fmt.Errorf("invalid %s parameter", b.name))
		}
	}

	q := domain.CaseQuery{
		Text:         deref(params.Q),
		Jurisdiction: deref(params.Jurisdiction),
		CaseType:     deref(params.CaseType),
		Court:        deref(params.Court),
		Sort:         domain.CaseSort(deref(params.Sort)),
	}
	if params.Page != nil {
		q.Page = *params.Page
	}
	if params.Limit != nil {
		q.Limit = *params.Limit
	}
	if params.DateFrom != nil {
		from := params.DateFrom.Time
		q.DateFrom = &from
	}
	if params.DateTo != nil {
		to := params.DateTo.Time
		q.DateTo = &to
	}
	return q, nil
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func (rt *Router) searchCases(w http.ResponseWriter, r *http.Request) {
	query, err := bindCaseQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	started := time.Now()
	page, err := rt.deps.Cases.Search(r.Context(), query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt.recordSearch(query, page.Total, time.Since(started))
	writeJSON(w, http.StatusOK, page)
}

// exportCases renders the requested result page as a spreadsheet.
func (rt *Router) exportCases(w http.ResponseWriter, r *http.Request) {
	query, err := bindCaseQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	started := time.Now()
	page, err := rt.deps.Cases.Search(r.Context(), query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt.recordSearch(query, page.Total, time.Since(started))

	var buf bytes.Buffer
	if err := xlsx.WriteCases(&buf, page.Cases); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsx.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="cases-page-%d.xlsx"`, page.CurrentPage))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (rt *Router) getCase(w http.ResponseWriter, r *http.Request) {
	c, err := rt.deps.Cases.GetCase(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (rt *Router) caseStats(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.deps.Cases.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (rt *Router) recordSearch(q domain.CaseQuery, total int, took time.Duration) {
	if rt.deps.Metrics == nil {
		return
	}
	sort := string(q.Sort)
	if sort == "" {
		sort = string(domain.SortRelevance)
	}
	rt.deps.Metrics.RecordSearch(serviceName, sort, total, took)
}
