package service

import (
	"sync"
	"time"

	"github.com/shankarkarande/farmvibes-ai/pkg/models"
)

// TaskEvent is one state change of a run, pushed to subscribers.
// Task is empty for run-level transitions.
type TaskEvent struct {
	RunID     string            `json:"run_id"`
	Task      string            `json:"task,omitempty"`
	Status    models.TaskStatus `json:"status,omitempty"`
	RunStatus models.RunStatus  `json:"run_status,omitempty"`
	CacheHit  bool              `json:"cache_hit,omitempty"`
	Error     string            `json:"error,omitempty"`
	Time      time.Time         `json:"time"`
}

// subscriber events are buffered; when a consumer stops draining, new
// events for it are dropped rather than blocking the scheduler.
const subscriberBuffer = 128

// Monitor fans task and run state changes out to subscribers.
// Snapshots are served by the service from the store; the monitor only
// owns the push side.
type Monitor struct {
	mu     sync.Mutex
	subs   map[string]map[int]chan TaskEvent
	nextID int
	logger Logger
}

func NewMonitor(logger Logger) *Monitor {
	return &Monitor{subs: make(map[string]map[int]chan TaskEvent), logger: logger}
}

// Subscribe returns a channel of state-change events for runID and a
// cancel function that releases the subscription and closes the
// channel. Subscribing to an already-terminal run yields no events;
// callers should query a snapshot first.
func (m *Monitor) Subscribe(runID string) (<-chan TaskEvent, func()) {
	ch := make(chan TaskEvent, subscriberBuffer)
	m.mu.Lock()
	if m.subs[runID] == nil {
		m.subs[runID] = make(map[int]chan TaskEvent)
	}
	id := m.nextID
	m.nextID++
	m.subs[runID][id] = ch
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs[runID], id)
			if len(m.subs[runID]) == 0 {
				delete(m.subs, runID)
			}
			m.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// publish delivers ev to every subscriber of its run without blocking.
func (m *Monitor) publish(ev TaskEvent) {
	ev.Time = time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs[ev.RunID] {
		select {
		case ch <- ev:
		default:
			m.logger.Debugf("monitor: dropping event for slow subscriber of run %s", ev.RunID)
		}
	}
}
