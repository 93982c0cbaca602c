package storage

import (
	"github.com/pkg/errors"
	"github.com/shankarkarande/farmvibes-ai/pkg/models"
)

// ErrNotFound is returned when a run or task does not exist.
var ErrNotFound = errors.New("not found")

// Store persists run and task state. Begin returns a transactional view
// of the store; Commit/Rollback apply only to such views.
type Store interface {
	Begin() (Store, error)
	Commit() error
	Rollback() error
	Close() error

	// Run operations
	SaveRun(r models.Run) error
	GetRun(id string) (models.Run, error)
	ListRuns() ([]models.Run, error)
	UpdateRunStatus(id string, status models.RunStatus, reason string) error

	// Task operations
	SaveTask(t models.TaskNode) error
	GetTask(runID, alias string) (models.TaskNode, error)
	UpdateTaskStatus(runID, alias string, status models.TaskStatus, errorMsg string) error
	UpdateTaskAttempts(runID, alias string, attempts int) error
}
