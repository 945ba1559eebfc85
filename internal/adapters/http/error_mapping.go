package httpadapter

import (
	"log/slog"
	"net/http"

	"github.com/lawknot/legal-assistant/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrDocumentNotFound), domain.IsKind(err, domain.ErrCaseNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrConflict):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrUpstreamUnavailable), domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage is what the client sees. Validation errors carry their reason;
// server-side failures never leak internals.
func errorMessage(status int, err error) string {
	switch {
	case status == http.StatusBadRequest:
		return domain.Reason(err)
	case domain.IsKind(err, domain.ErrDocumentNotFound):
		return "Document not found"
	case domain.IsKind(err, domain.ErrCaseNotFound):
		return "Case not found"
	case status == http.StatusUnauthorized:
		return "authentication required"
	case status == http.StatusConflict:
		return "request conflicts with the current document state"
	case domain.IsKind(err, domain.ErrUpstreamUnavailable):
		return domain.ErrUpstreamUnavailable.Error()
	case status == http.StatusServiceUnavailable:
		return "service temporarily unavailable"
	default:
		return "internal server error"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": errorMessage(status, err)})
}
