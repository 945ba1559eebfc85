package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded  DocumentStatus = "uploaded"
	StatusAnalyzing DocumentStatus = "analyzing"
	StatusCompleted DocumentStatus = "completed"
	StatusFailed    DocumentStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusUploaded, StatusAnalyzing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// CanTransition encodes the forward-only lifecycle
// uploaded -> analyzing -> {completed | failed}.
func CanTransition(from, to DocumentStatus) bool {
	switch from {
	case StatusUploaded:
		return to == StatusAnalyzing
	case StatusAnalyzing:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

type Document struct {
	ID            string         `json:"id"`
	OwnerID       string         `json:"ownerId"`
	Filename      string         `json:"filename"`
	OriginalName  string         `json:"originalName"`
	StoragePath   string         `json:"-"`
	FileSize      int64          `json:"fileSize"`
	MimeType      string         `json:"mimeType"`
	Analysis      *Analysis      `json:"analysis,omitempty"`
	Status        DocumentStatus `json:"status"`
	FailureReason string         `json:"failureReason,omitempty"`
	Version       int            `json:"-"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// AnalysisView is what pollers observe. The payload is only exposed once the
// record reached completed.
type AnalysisView struct {
	Status   DocumentStatus `json:"status"`
	Analysis *Analysis      `json:"analysis,omitempty"`
}

func (d *Document) View() AnalysisView {
	view := AnalysisView{Status: d.Status}
	if d.Status == StatusCompleted && d.Analysis != nil {
		a := *d.Analysis
		view.Analysis = &a
	}
	return view
}
