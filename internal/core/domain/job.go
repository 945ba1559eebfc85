package domain

import "time"

type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobDead    JobStatus = "dead"
)

// AnalysisJob is the durable unit of deferred work. There is at most one job
// per document.
type AnalysisJob struct {
	DocumentID     string     `json:"documentId"`
	Status         JobStatus  `json:"status"`
	Attempts       int        `json:"attempts"`
	MaxAttempts    int        `json:"maxAttempts"`
	RunAt          time.Time  `json:"runAt"`
	LeaseOwner     string     `json:"leaseOwner,omitempty"`
	LeaseExpiresAt *time.Time `json:"leaseExpiresAt,omitempty"`
	LastError      string     `json:"lastError,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func (j AnalysisJob) Exhausted() bool {
	return j.MaxAttempts > 0 && j.Attempts >= j.MaxAttempts
}

// Overrun reports a job claimed more times than it is allowed to run. This
// happens when earlier leases expired without the worker reporting back.
func (j AnalysisJob) Overrun() bool {
	return j.MaxAttempts > 0 && j.Attempts > j.MaxAttempts
}
