package models

import "time"

type TaskStatus string

const (
	PendingTaskStatus    TaskStatus = "PENDING"
	ReadyTaskStatus      TaskStatus = "READY"
	DispatchedTaskStatus TaskStatus = "DISPATCHED"
	RunningTaskStatus    TaskStatus = "RUNNING"
	DoneTaskStatus       TaskStatus = "DONE"
	FailedTaskStatus     TaskStatus = "FAILED"
	CancelledTaskStatus  TaskStatus = "CANCELLED"
)

// Terminal reports whether a task in this status will never change again.
func (s TaskStatus) Terminal() bool {
	return s == DoneTaskStatus || s == FailedTaskStatus || s == CancelledTaskStatus
}

// TaskNode is one task of a flattened run graph. Alias is the
// dot-qualified path within the flattened DAG (e.g. "parent.child.t1"),
// unique per run.
type TaskNode struct {
	RunID       string     `json:"run_id" db:"run_id"`
	Alias       string     `json:"alias" db:"alias"`
	Op          string     `json:"op" db:"op"`
	Status      TaskStatus `json:"status" db:"status"`
	Attempts    int        `json:"attempts" db:"attempts"`
	Fingerprint string     `json:"fingerprint,omitempty" db:"fingerprint"`
	CacheHit    bool       `json:"cache_hit" db:"cache_hit"`
	ErrorMsg    string     `json:"error,omitempty" db:"error_msg"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}
