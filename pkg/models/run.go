package models

import "time"

type RunStatus string

const (
	PendingRunStatus   RunStatus = "PENDING"
	RunningRunStatus   RunStatus = "RUNNING"
	DoneRunStatus      RunStatus = "DONE"
	FailedRunStatus    RunStatus = "FAILED"
	CancelledRunStatus RunStatus = "CANCELLED"
)

// Terminal reports whether the run has finished.
func (s RunStatus) Terminal() bool {
	return s == DoneRunStatus || s == FailedRunStatus || s == CancelledRunStatus
}

// Run is one execution instance of a flattened workflow graph bound to
// concrete top-level inputs. ID is a UUID assigned at submission.
type Run struct {
	ID            string     `json:"id" db:"id"`
	Workflow      string     `json:"workflow" db:"workflow"`
	Status        RunStatus  `json:"status" db:"status"`
	FailureReason string     `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
	StartedAt     *time.Time `json:"started_at,omitempty" db:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty" db:"finished_at"`
	Tasks         []TaskNode `json:"tasks,omitempty"` // populated at runtime
}
