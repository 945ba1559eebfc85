package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/lawknot/legal-assistant/internal/core/domain"
	"github.com/lawknot/legal-assistant/internal/core/ports"
)

const (
	serverName = "legal-assistant"
	dateLayout = "2006-01-02"
)

// Server exposes the case-law corpus as read-only MCP tools.
type Server struct {
	cases  ports.CaseSearcher
	mcp    *server.MCPServer
	logger *slog.Logger
}

func NewServer(cases ports.CaseSearcher, version string) *Server {
	s := &Server{
		cases:  cases,
		mcp:    server.NewMCPServer(serverName, version, server.WithToolCapabilities(false)),
		logger: slog.Default(),
	}
	s.registerTools()
	return s
}

func (s *Server) WithLogger(logger *slog.Logger) *Server {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Handler serves the streamable HTTP transport.
func (s *Server) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("search_cases",
		mcp.WithDescription("Full-text search over the case-law corpus with optional filters. Returns one page of matching case summaries."),
		mcp.WithString("q", mcp.Description("Free-text query; supports quoted phrases and -exclusions")),
		mcp.WithString("jurisdiction", mcp.Description("Jurisdiction filter; \"all\" disables it")),
		mcp.WithString("caseType", mcp.Description("Case type filter, e.g. contract or intellectual-property")),
		mcp.WithString("court", mcp.Description("Court name substring")),
		mcp.WithString("dateFrom", mcp.Description("Earliest decision date, YYYY-MM-DD")),
		mcp.WithString("dateTo", mcp.Description("Latest decision date, YYYY-MM-DD")),
		mcp.WithNumber("page", mcp.Description("1-based page number")),
		mcp.WithNumber("limit", mcp.Description("Page size, at most 100")),
		mcp.WithString("sort", mcp.Description("Result order"), mcp.Enum(
			string(domain.SortRelevance), string(domain.SortNewest), string(domain.SortOldest),
		)),
	), s.searchCases)

	s.mcp.AddTool(mcp.NewTool("get_case",
		mcp.WithDescription("Fetch one case including its full text."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Case id")),
	), s.getCase)

	s.mcp.AddTool(mcp.NewTool("case_stats",
		mcp.WithDescription("Corpus overview: totals by case type and jurisdiction plus the most recent decisions."),
	), s.caseStats)
}

func (s *Server) searchCases(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := domain.CaseQuery{
		Text:         req.GetString("q", ""),
		Jurisdiction: req.GetString("jurisdiction", ""),
		CaseType:     req.GetString("caseType", ""),
		Court:        req.GetString("court", ""),
		Page:         req.GetInt("page", 0),
		Limit:        req.GetInt("limit", 0),
		Sort:         domain.CaseSort(req.GetString("sort", "")),
	}
	var err error
	if query.DateFrom, err = parseDate("dateFrom", req.GetString("dateFrom", "")); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if query.DateTo, err = parseDate("dateTo", req.GetString("dateTo", "")); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	page, err := s.cases.Search(ctx, query)
	if err != nil {
		return s.toolError("search_cases", err)
	}
	return jsonResult(page)
}

func (s *Server) getCase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil || strings.TrimSpace(id) == "" {
		return mcp.NewToolResultError("id is required"), nil
	}
	c, err := s.cases.GetCase(ctx, strings.TrimSpace(id))
	if err != nil {
		return s.toolError("get_case", err)
	}
	return jsonResult(c)
}

func (s *Server) caseStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.cases.Stats(ctx)
	if err != nil {
		return s.toolError("case_stats", err)
	}
	return jsonResult(stats)
}

// toolError reports caller mistakes as tool results and everything else as
// a protocol error.
func (s *Server) toolError(tool string, err error) (*mcp.CallToolResult, error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return mcp.NewToolResultError(domain.Reason(err)), nil
	case errors.Is(err, domain.ErrCaseNotFound):
		return mcp.NewToolResultError("Case not found"), nil
	}
	s.logger.Error("mcp_tool_failed", "tool", tool, "error", err)
	return nil, fmt.Errorf("%s failed", tool)
}

func parseDate(name, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s parameter", name)
	}
	return &t, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
