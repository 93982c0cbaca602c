package storage

import (
	"sync"
	"time"

	"github.com/shankarkarande/farmvibes-ai/pkg/models"
)

// mockStore implements Store with in-memory state. It is used by the
// engine when no database is configured and by tests. The scheduler
// writes task status from worker goroutines, so access is locked.
type mockStore struct {
	mu    *sync.Mutex
	runs  map[string]*models.Run
	tasks map[string]map[string]*models.TaskNode // run id -> alias -> task
}

// NewMockStore returns an empty in-memory Store.
func NewMockStore() Store {
	return &mockStore{
		mu:    &sync.Mutex{},
		runs:  make(map[string]*models.Run),
		tasks: make(map[string]map[string]*models.TaskNode),
	}
}

// Begin returns the store itself: in-memory writes are applied
// immediately and Commit/Rollback are no-ops.
func (m *mockStore) Begin() (Store, error) { return m, nil }
func (m *mockStore) Commit() error         { return nil }
func (m *mockStore) Rollback() error       { return nil }
func (m *mockStore) Close() error          { return nil }

func (m *mockStore) SaveRun(r models.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := r
	m.runs[r.ID] = &cp
	return nil
}

func (m *mockStore) GetRun(id string) (models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return models.Run{}, ErrNotFound
	}
	out := *r
	out.Tasks = nil
	for _, t := range m.tasks[id] {
		out.Tasks = append(out.Tasks, *t)
	}
	return out, nil
}

func (m *mockStore) ListRuns() ([]models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	runs := make([]models.Run, 0, len(m.runs))
	for _, r := range m.runs {
		runs = append(runs, *r)
	}
	return runs, nil
}

func (m *mockStore) UpdateRunStatus(id string, status models.RunStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	r.Status = status
	r.FailureReason = reason
	r.UpdatedAt = now
	if status == models.RunningRunStatus && r.StartedAt == nil {
		r.StartedAt = &now
	}
	if status.Terminal() {
		r.FinishedAt = &now
	}
	return nil
}

func (m *mockStore) SaveTask(t models.TaskNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[t.RunID]; !ok {
		m.tasks[t.RunID] = make(map[string]*models.TaskNode)
	}
	if existing, ok := m.tasks[t.RunID][t.Alias]; ok {
		existing.Status = t.Status
		existing.Fingerprint = t.Fingerprint
		existing.CacheHit = t.CacheHit
		return nil
	}
	cp := t
	m.tasks[t.RunID][t.Alias] = &cp
	return nil
}

func (m *mockStore) GetTask(runID, alias string) (models.TaskNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[runID][alias]
	if !ok {
		return models.TaskNode{}, ErrNotFound
	}
	return *t, nil
}

func (m *mockStore) UpdateTaskStatus(runID, alias string, status models.TaskStatus, errorMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[runID][alias]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	t.Status = status
	t.ErrorMsg = errorMsg
	if status == models.RunningTaskStatus && t.StartedAt == nil {
		t.StartedAt = &now
	}
	if status.Terminal() {
		t.FinishedAt = &now
	}
	return nil
}

func (m *mockStore) UpdateTaskAttempts(runID, alias string, attempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[runID][alias]
	if !ok {
		return ErrNotFound
	}
	t.Attempts = attempts
	return nil
}
