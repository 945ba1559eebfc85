package httpadapter

import (
	"errors"
	"net/http"
	"testing"

	"github.com/lawknot/legal-assistant/internal/core/domain"
)

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.WrapError(domain.ErrInvalidInput, "op", errors.New("bad")), http.StatusBadRequest},
		{domain.WrapError(domain.ErrUnauthorized, "op", errors.New("no user")), http.StatusUnauthorized},
		{domain.WrapError(domain.ErrDocumentNotFound, "op", errors.New("id=x")), http.StatusNotFound},
		{domain.WrapError(domain.ErrCaseNotFound, "op", errors.New("id=x")), http.StatusNotFound},
		{domain.WrapError(domain.ErrConflict, "op", errors.New("stale")), http.StatusConflict},
		{domain.WrapError(domain.ErrUpstreamUnavailable, "op", errors.New("refused")), http.StatusServiceUnavailable},
		{domain.WrapError(domain.ErrTemporary, "op", errors.New("timeout")), http.StatusServiceUnavailable},
		{errors.New("pq: relation does not exist"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := mapErrorToHTTPStatus(tc.err); got != tc.want {
			t.Fatalf("mapErrorToHTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestErrorMessageHidesInternals(t *testing.T) {
	err := errors.New("pq: password authentication failed for user legal")
	if got := errorMessage(mapErrorToHTTPStatus(err), err); got != "internal server error" {
		t.Fatalf("unexpected message %q", got)
	}
}
