package models

import "time"

type SyncRunStatus string

const (
	RunRunning   SyncRunStatus = "running"
	RunCompleted SyncRunStatus = "completed"
	RunFailed    SyncRunStatus = "failed"
)

// SyncRun records one execution of the ingestion algorithm for one
// account. Rows are created at run start and terminal-updated exactly
// once; throttle-skipped calls never create a row.
type SyncRun struct {
	ID          string        `json:"id"`
	AccountID   int64         `json:"account_id"`
	Status      SyncRunStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Found       int           `json:"found"`
	New         int           `json:"new"`
	Error       *string       `json:"error,omitempty"`
	FromDate    time.Time     `json:"from_date"`
	ToDate      time.Time     `json:"to_date"`
}

// SyncOutcome is what RunSync reports back to callers.
type SyncOutcome struct {
	Status string `json:"status"` // completed, failed, skipped, already_running
	RunID  string `json:"run_id,omitempty"`
	Found  int    `json:"found"`
	New    int    `json:"new"`
	Error  string `json:"error,omitempty"`
}

const (
	OutcomeCompleted      = "completed"
	OutcomeFailed         = "failed"
	OutcomeSkipped        = "skipped"
	OutcomeAlreadyRunning = "already_running"
)
