package storage

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shankarkarande/farmvibes-ai/pkg/models"
	"github.com/shankarkarande/farmvibes-ai/pkg/storage"
)

type DBInterface interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	QueryRowx(query string, args ...interface{}) *sqlx.Row
	Exec(query string, args ...interface{}) (sql.Result, error)
}

type PostgresStore struct {
	db DBInterface
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Begin() (storage.Store, error) {
	if db, ok := s.db.(*sqlx.DB); ok {
		tx, err := db.Beginx()
		if err != nil {
			return nil, err
		}
		return &PostgresStore{db: tx}, nil
	}
	return nil, fmt.Errorf("cannot begin transaction on unknown type")
}

func (s *PostgresStore) Commit() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Commit()
	}
	return fmt.Errorf("cannot commit: not a transaction")
}

func (s *PostgresStore) Rollback() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Rollback()
	}
	return fmt.Errorf("cannot rollback: not a transaction")
}

func (s *PostgresStore) Close() error {
	if db, ok := s.db.(*sqlx.DB); ok {
		return db.Close()
	}
	return nil // No-op for *sqlx.Tx
}

// SaveRun records a new run.
func (s *PostgresStore) SaveRun(r models.Run) error {
	_, err := s.db.Exec(`INSERT INTO runs (id, workflow, status, failure_reason, created_at, updated_at, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.Workflow, r.Status, r.FailureReason, r.CreatedAt, r.UpdatedAt, r.StartedAt, r.FinishedAt)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID, including its tasks.
func (s *PostgresStore) GetRun(id string) (models.Run, error) {
	var run models.Run
	err := s.db.Get(&run, "SELECT id, workflow, status, failure_reason, created_at, updated_at, started_at, finished_at FROM runs WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return models.Run{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Run{}, err
	}

	err = s.db.Select(&run.Tasks, "SELECT run_id, alias, op, status, attempts, fingerprint, cache_hit, error_msg, started_at, finished_at FROM run_tasks WHERE run_id = $1 ORDER BY alias", id)
	if err != nil {
		return models.Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

func (s *PostgresStore) ListRuns() ([]models.Run, error) {
	runs := []models.Run{}
	query := "SELECT id, workflow, status, failure_reason, created_at, updated_at, started_at, finished_at FROM runs ORDER BY created_at DESC"
	err := s.db.Select(&runs, query)
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// UpdateRunStatus updates the status and failure reason of a run,
// stamping started_at/finished_at on the matching transitions.
func (s *PostgresStore) UpdateRunStatus(id string, status models.RunStatus, reason string) error {
	_, err := s.db.Exec(`
		UPDATE runs
		SET status = $1,
		failure_reason = $2,
		updated_at = CURRENT_TIMESTAMP,
		started_at = CASE WHEN $3 = 'RUNNING' AND started_at IS NULL THEN CURRENT_TIMESTAMP ELSE started_at END,
		finished_at = CASE WHEN $4 IN ('DONE', 'FAILED', 'CANCELLED') THEN CURRENT_TIMESTAMP ELSE finished_at END
		WHERE id = $5`,
		status, reason, status, status, id)
	return err
}

// SaveTask upserts a task row; the scheduler re-saves a task when its
// fingerprint becomes known at dispatch time.
func (s *PostgresStore) SaveTask(t models.TaskNode) error {
	_, err := s.db.Exec(`
		INSERT INTO run_tasks (run_id, alias, op, status, attempts, fingerprint, cache_hit, error_msg, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (run_id, alias) DO UPDATE
		SET status = EXCLUDED.status, fingerprint = EXCLUDED.fingerprint, cache_hit = EXCLUDED.cache_hit`,
		t.RunID, t.Alias, t.Op, t.Status, t.Attempts, t.Fingerprint, t.CacheHit, t.ErrorMsg, t.StartedAt, t.FinishedAt)
	return err
}

// GetTask retrieves a task by run ID and alias.
func (s *PostgresStore) GetTask(runID, alias string) (models.TaskNode, error) {
	var task models.TaskNode
	err := s.db.Get(&task, "SELECT run_id, alias, op, status, attempts, fingerprint, cache_hit, error_msg, started_at, finished_at FROM run_tasks WHERE run_id = $1 AND alias = $2", runID, alias)
	if err == sql.ErrNoRows {
		return models.TaskNode{}, storage.ErrNotFound
	}
	if err != nil {
		return models.TaskNode{}, err
	}
	return task, nil
}

// UpdateTaskStatus updates the status and error message of a task.
func (s *PostgresStore) UpdateTaskStatus(runID, alias string, status models.TaskStatus, errorMsg string) error {
	_, err := s.db.Exec(`
		UPDATE run_tasks
		SET status = $1,
		error_msg = $2,
		started_at = CASE WHEN $3 = 'RUNNING' AND started_at IS NULL THEN CURRENT_TIMESTAMP ELSE started_at END,
		finished_at = CASE WHEN $4 IN ('DONE', 'FAILED', 'CANCELLED') THEN CURRENT_TIMESTAMP ELSE finished_at END
		WHERE run_id = $5 AND alias = $6`,
		status, errorMsg, status, status, runID, alias)
	return err
}

// UpdateTaskAttempts records the current attempt count of a task.
func (s *PostgresStore) UpdateTaskAttempts(runID, alias string, attempts int) error {
	_, err := s.db.Exec("UPDATE run_tasks SET attempts = $1 WHERE run_id = $2 AND alias = $3", attempts, runID, alias)
	return err
}
