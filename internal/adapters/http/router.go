package httpadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/lawknot/legal-assistant/internal/config"
	"github.com/lawknot/legal-assistant/internal/core/ports"
)

const serviceName = "api"

// Metrics is the slice of the Prometheus recorder the router reports to.
type Metrics interface {
	Handler() http.Handler
	Middleware(service string, next http.Handler) http.Handler
	RecordUpload(service, outcome string, size int64)
	RecordPoll(service, mode, state string)
	RecordChat(service, outcome string, duration time.Duration)
	RecordSearch(service, sort string, total int, duration time.Duration)
}

type Dependencies struct {
	Intake   ports.DocumentIntake
	Analyses ports.AnalysisReader
	Cases    ports.CaseSearcher
	Chat     ports.ChatService

	// Optional.
	MCP     http.Handler
	Metrics Metrics
	OpenAPI []byte
	Ready   func(ctx context.Context) error
}

type Router struct {
	cfg  config.Config
	deps Dependencies
}

func NewRouter(cfg config.Config, deps Dependencies) *Router {
	return &Router{cfg: cfg, deps: deps}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /readyz", rt.readyz)
	if rt.deps.OpenAPI != nil {
		mux.HandleFunc("GET /openapi.json", serveOpenAPI(rt.deps.OpenAPI))
	}
	if rt.deps.Metrics != nil {
		mux.Handle("GET /metrics", rt.deps.Metrics.Handler())
	}

	mux.HandleFunc("POST /api/documents/upload", rt.uploadDocument)
	mux.HandleFunc("GET /api/documents", rt.listDocuments)
	mux.HandleFunc("GET /api/documents/{id}/analysis", rt.getAnalysis)

	mux.HandleFunc("GET /api/cases/search", rt.searchCases)
	mux.HandleFunc("GET /api/cases/export", rt.exportCases)
	mux.HandleFunc("GET /api/cases/stats/overview", rt.caseStats)
	mux.HandleFunc("GET /api/cases/{id}", rt.getCase)

	mux.HandleFunc("POST /api/ai/chat", rt.chat)

	if rt.deps.MCP != nil {
		mux.Handle("/mcp", rt.deps.MCP)
		mux.Handle("/mcp/", rt.deps.MCP)
	}

	var handler http.Handler = mux
	handler = apiKeyMiddleware(handler, rt.cfg.APIKey)
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.deps.Metrics != nil {
		handler = rt.deps.Metrics.Middleware(serviceName, handler)
	}
	handler = recoverMiddleware(handler)
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) readyz(w http.ResponseWriter, r *http.Request) {
	if rt.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := rt.deps.Ready(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
