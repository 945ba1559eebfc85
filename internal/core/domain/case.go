package domain

import (
	"math"
	"time"
)

type CaseSort string

const (
	SortRelevance CaseSort = "relevance"
	SortNewest    CaseSort = "newest"
	SortOldest    CaseSort = "oldest"
)

type Case struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Citation       string    `json:"citation"`
	Court          string    `json:"court"`
	Date           time.Time `json:"date"`
	Jurisdiction   string    `json:"jurisdiction"`
	CaseType       string    `json:"caseType"`
	Summary        string    `json:"summary"`
	KeyPoints      []string  `json:"keyPoints"`
	Tags           []string  `json:"tags"`
	PrecedentValue string    `json:"precedentValue,omitempty"`
	FullText       string    `json:"fullText,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// CaseSummary is a search hit; heavy fields such as the full text are left out.
type CaseSummary struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Citation       string    `json:"citation"`
	Court          string    `json:"court"`
	Date           time.Time `json:"date"`
	Jurisdiction   string    `json:"jurisdiction"`
	CaseType       string    `json:"caseType"`
	Summary        string    `json:"summary"`
	KeyPoints      []string  `json:"keyPoints"`
	Tags           []string  `json:"tags"`
	PrecedentValue string    `json:"precedentValue,omitempty"`
	Score          float64   `json:"score,omitempty"`
}

type CaseQuery struct {
	Text         string
	Jurisdiction string
	CaseType     string
	Court        string
	DateFrom     *time.Time
	DateTo       *time.Time
	Page         int
	Limit        int
	Sort         CaseSort
}

// Offset is the number of rows skipped before the requested page. It
// saturates at math.MaxInt instead of overflowing for huge page numbers.
func (q CaseQuery) Offset() int {
	if q.Page <= 1 || q.Limit <= 0 {
		return 0
	}
	if q.Page-1 > math.MaxInt/q.Limit {
		return math.MaxInt
	}
	return (q.Page - 1) * q.Limit
}

type CasePage struct {
	Cases       []CaseSummary `json:"cases"`
	TotalPages  int           `json:"totalPages"`
	CurrentPage int           `json:"currentPage"`
	Total       int           `json:"total"`
}

type CaseBucket struct {
	Key   string `json:"_id"`
	Count int    `json:"count"`
}

type RecentCase struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Citation string    `json:"citation"`
	Date     time.Time `json:"date"`
	Court    string    `json:"court"`
}

type CaseStats struct {
	TotalCases          int          `json:"totalCases"`
	CasesByType         []CaseBucket `json:"casesByType"`
	CasesByJurisdiction []CaseBucket `json:"casesByJurisdiction"`
	RecentCases         []RecentCase `json:"recentCases"`
}
