package service

import (
	"fmt"

	"github.com/shankarkarande/farmvibes-ai/pkg/models"
	"github.com/shankarkarande/farmvibes-ai/pkg/storage"
)

// TaskService wraps the store with the transaction bookkeeping the
// scheduler needs when recording run and task state.
type TaskService struct {
	store  storage.Store
	logger Logger
}

func NewTaskService(store storage.Store, logger Logger) *TaskService {
	return &TaskService{
		store:  store,
		logger: logger,
	}
}

// withTx runs fn inside a transaction with commit/rollback handling.
func (ts *TaskService) withTx(fn func(tx storage.Store) error) (err error) {
	txStore, err := ts.store.Begin()
	if err != nil {
		ts.logger.Errorf("Failed to begin transaction: %v", err)
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				ts.logger.Errorf("Failed to rollback: %v", rollbackErr)
			}
		} else {
			if commitErr := txStore.Commit(); commitErr != nil {
				ts.logger.Errorf("Failed to commit: %v", commitErr)
				err = commitErr
			}
		}
	}()
	err = fn(txStore)
	return err
}

func (ts *TaskService) SaveRun(r models.Run) error {
	return ts.withTx(func(tx storage.Store) error {
		if err := tx.SaveRun(r); err != nil {
			ts.logger.Errorf("Failed to save run %s: %v", r.ID, err)
			return fmt.Errorf("failed to save run %s: %v", r.ID, err)
		}
		return nil
	})
}

func (ts *TaskService) UpdateRunStatus(runID string, status models.RunStatus, reason string) error {
	return ts.withTx(func(tx storage.Store) error {
		if err := tx.UpdateRunStatus(runID, status, reason); err != nil {
			ts.logger.Errorf("Failed to update run %s status to %s: %v", runID, status, err)
			return fmt.Errorf("failed to update run %s status: %v", runID, err)
		}
		return nil
	})
}

func (ts *TaskService) SaveTask(task models.TaskNode) error {
	return ts.withTx(func(tx storage.Store) error {
		if err := tx.SaveTask(task); err != nil {
			ts.logger.Errorf("Failed to save task %s: %v", task.Alias, err)
			return fmt.Errorf("failed to save task %s: %v", task.Alias, err)
		}
		return nil
	})
}

func (ts *TaskService) UpdateTaskStatus(runID, alias string, status models.TaskStatus, errMsg string) error {
	return ts.withTx(func(tx storage.Store) error {
		if err := tx.UpdateTaskStatus(runID, alias, status, errMsg); err != nil {
			ts.logger.Errorf("Failed to update task %s status to %s: %v", alias, status, err)
			return fmt.Errorf("failed to update task %s status: %v", alias, err)
		}
		return nil
	})
}

func (ts *TaskService) UpdateTaskAttempts(runID, alias string, attempts int) error {
	return ts.withTx(func(tx storage.Store) error {
		if err := tx.UpdateTaskAttempts(runID, alias, attempts); err != nil {
			ts.logger.Errorf("Failed to update task %s attempts to %d: %v", alias, attempts, err)
			return fmt.Errorf("failed to update task %s attempts: %v", alias, err)
		}
		return nil
	})
}
