package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/lawknot/legal-assistant/internal/core/domain"
)

const maxChatBodyBytes = 64 << 10

func (rt *Router) chat(w http.ResponseWriter, r *http.Request) {
	var req domain.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes)).Decode(&req); err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "decode chat request", errors.New("invalid json")))
		return
	}

	started := time.Now()
	reply, err := rt.deps.Chat.Chat(r.Context(), req)
	rt.recordChat(err, time.Since(started))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (rt *Router) recordChat(err error, took time.Duration) {
	if rt.deps.Metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidInput):
		outcome = "rejected"
	case errors.Is(err, domain.ErrUpstreamUnavailable), errors.Is(err, domain.ErrTemporary):
		outcome = "unavailable"
	default:
		outcome = "error"
	}
	rt.deps.Metrics.RecordChat(serviceName, outcome, took)
}
