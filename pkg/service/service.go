package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shankarkarande/farmvibes-ai/internal/secrets"
	"github.com/shankarkarande/farmvibes-ai/pkg/cache"
	"github.com/shankarkarande/farmvibes-ai/pkg/graph"
	"github.com/shankarkarande/farmvibes-ai/pkg/models"
	"github.com/shankarkarande/farmvibes-ai/pkg/params"
	"github.com/shankarkarande/farmvibes-ai/pkg/spec"
	"github.com/shankarkarande/farmvibes-ai/pkg/storage"
	"golang.org/x/sync/singleflight"
)

// Logger defines the logging interface for WorkflowService
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Config tunes the engine. Zero values fall back to defaults.
type Config struct {
	Workers     int
	Retry       RetryPolicy
	TaskTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Workers:     0, // NumCPU
		Retry:       DefaultRetryPolicy(),
		TaskTimeout: DefaultTaskTimeout,
	}
}

// Option configures a WorkflowService at construction.
type Option func(*WorkflowService)

// WithConfig replaces the default engine configuration.
func WithConfig(cfg Config) Option {
	return func(s *WorkflowService) {
		if cfg.Workers != 0 {
			s.cfg.Workers = cfg.Workers
		}
		if cfg.Retry.Interval != 0 || cfg.Retry.MaxRetries != 0 {
			s.cfg.Retry = cfg.Retry
		}
		if cfg.TaskTimeout != 0 {
			s.cfg.TaskTimeout = cfg.TaskTimeout
		}
	}
}

// WithCache replaces the default in-memory result cache.
func WithCache(c cache.Store) Option {
	return func(s *WorkflowService) { s.cache = c }
}

// WithSecrets replaces the default env-backed secret provider.
func WithSecrets(p secrets.Provider) Option {
	return func(s *WorkflowService) { s.secrets = p }
}

// WithRegistry replaces the default in-memory workflow registry, e.g.
// with a DirRegistry loading sub-workflows lazily from disk.
func WithRegistry(r spec.Registry) Option {
	return func(s *WorkflowService) {
		s.registry = r
		s.mem = nil
	}
}

// WorkflowService is the run control surface: it validates and submits
// workflow runs, schedules their tasks on the worker pool, and serves
// status snapshots, progress events, outputs and cancellation.
type WorkflowService struct {
	cfg      Config
	ctx      context.Context
	store    storage.Store
	tasks    *TaskService
	cache    cache.Store
	secrets  secrets.Provider
	registry spec.Registry
	mem      *spec.MemRegistry // nil when a custom registry is installed
	ops      *OpRegistry
	monitor  *Monitor
	pool     *WorkerPool
	logger   Logger
	flight   singleflight.Group

	mu   sync.RWMutex
	runs map[string]*runExec
}

func NewWorkflowService(ctx context.Context, store storage.Store, logger Logger, opts ...Option) *WorkflowService {
	mem := spec.NewMemRegistry()
	s := &WorkflowService{
		cfg:      DefaultConfig(),
		ctx:      ctx,
		store:    store,
		tasks:    NewTaskService(store, logger),
		cache:    cache.NewMemoryStore(),
		secrets:  secrets.NewEnvProvider(),
		registry: mem,
		mem:      mem,
		ops:      NewOpRegistry(),
		logger:   logger,
		runs:     make(map[string]*runExec),
	}
	s.monitor = NewMonitor(logger)
	for _, opt := range opts {
		opt(s)
	}
	s.pool = NewWorkerPool(ctx, logger)
	s.pool.Start(s.cfg.Workers)
	return s
}

// Stop drains the worker pool. Submitted runs should be terminal or
// cancelled first.
func (s *WorkflowService) Stop() {
	s.pool.Stop()
}

// RegisterWorkflow adds a workflow spec to the in-memory registry so
// runs and nested references can resolve it by name.
func (s *WorkflowService) RegisterWorkflow(ws *models.WorkflowSpec) error {
	if s.mem == nil {
		return errors.New("workflow registration requires the built-in registry")
	}
	if err := s.mem.Register(ws); err != nil {
		return err
	}
	s.logger.Infof("Registered workflow '%s' with %d tasks", ws.Name, len(ws.Tasks))
	return nil
}

// RegisterOp binds a primitive operation identifier to its
// implementation.
func (s *WorkflowService) RegisterOp(name string, op Operation, opts ...OpOption) error {
	if err := s.ops.Register(name, op, opts...); err != nil {
		return err
	}
	s.logger.Infof("Registered operation '%s'", name)
	return nil
}

// Submit resolves, validates and flattens the named workflow against
// the given top-level inputs and parameter overrides, then starts an
// asynchronous run and returns its handle. All spec, parameter and
// graph errors surface here, before any task executes; no run is
// recorded on failure.
func (s *WorkflowService) Submit(workflow string, inputs map[string]interface{}, overrides map[string]interface{}) (string, error) {
	ws, err := s.registry.Get(workflow)
	if err != nil {
		return "", err
	}
	return s.submit(ws, inputs, overrides)
}

// SubmitSpec submits an ad-hoc spec that is not in the registry.
// Nested workflow references inside it still resolve through the
// registry.
func (s *WorkflowService) SubmitSpec(ws *models.WorkflowSpec, inputs map[string]interface{}, overrides map[string]interface{}) (string, error) {
	if err := spec.Validate(ws); err != nil {
		return "", err
	}
	return s.submit(ws, inputs, overrides)
}

func (s *WorkflowService) submit(ws *models.WorkflowSpec, inputs map[string]interface{}, overrides map[string]interface{}) (string, error) {
	g, err := graph.NewBuilder(s.registry).Build(ws, overrides)
	if err != nil {
		return "", err
	}

	for _, alias := range g.Order {
		node := g.Nodes[alias]
		if _, ok := s.ops.Get(node.Op); !ok {
			return "", models.NewTaskError(models.ErrPermanentTaskFailure, alias,
				"operation %q is not registered", node.Op)
		}
	}
	for name := range g.Sources {
		if _, ok := inputs[name]; !ok {
			return "", models.NewError(models.ErrUnboundParameter,
				"no input provided for source %q", name)
		}
	}
	for name := range inputs {
		if _, ok := g.Sources[name]; !ok {
			return "", models.NewError(models.ErrMalformedSpec,
				"input %q does not match any declared source", name)
		}
	}

	now := time.Now()
	run := models.Run{
		ID:        uuid.NewString(),
		Workflow:  ws.Name,
		Status:    models.PendingRunStatus,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.tasks.SaveRun(run); err != nil {
		return "", err
	}
	for _, alias := range g.Order {
		if err := s.tasks.SaveTask(models.TaskNode{
			RunID:  run.ID,
			Alias:  alias,
			Op:     g.Nodes[alias].Op,
			Status: models.PendingTaskStatus,
		}); err != nil {
			return "", err
		}
	}

	bound := make(map[string]models.Artifact, len(inputs))
	for name, v := range inputs {
		bound[name] = models.Artifact{ID: cache.HashValue(v), Value: v}
	}

	runCtx, cancel := context.WithCancel(s.ctx)
	re := newRunExec(s, run.ID, g, bound, runCtx, cancel)
	s.mu.Lock()
	s.runs[run.ID] = re
	s.mu.Unlock()
	go re.run()

	s.logger.Infof("Submitted run %s for workflow '%s' (%d tasks)", run.ID, ws.Name, len(g.Nodes))
	return run.ID, nil
}

// Status returns a consistent snapshot of the run: overall state,
// failure reason, and every task with its status, timestamps and
// error.
func (s *WorkflowService) Status(runID string) (models.Run, error) {
	run, err := s.store.GetRun(runID)
	if err != nil {
		return models.Run{}, err
	}
	sort.Slice(run.Tasks, func(i, j int) bool { return run.Tasks[i].Alias < run.Tasks[j].Alias })
	return run, nil
}

// ListRuns returns all known runs without their tasks.
func (s *WorkflowService) ListRuns() ([]models.Run, error) {
	return s.store.ListRuns()
}

// Subscribe returns push-based progress notifications for a run.
func (s *WorkflowService) Subscribe(runID string) (<-chan TaskEvent, func(), error) {
	if _, err := s.store.GetRun(runID); err != nil {
		return nil, nil, err
	}
	ch, cancel := s.monitor.Subscribe(runID)
	return ch, cancel, nil
}

// Cancel stops dispatch for the run immediately and signals running
// tasks to stop. Cached completions stay valid. Cancelling a terminal
// run is a no-op.
func (s *WorkflowService) Cancel(runID string) error {
	s.mu.RLock()
	re, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		if _, err := s.store.GetRun(runID); err != nil {
			return err
		}
		return nil // known run from a previous process; nothing in flight
	}
	re.requestCancel()
	return nil
}

// Outputs returns the sink artifacts of a completed run.
func (s *WorkflowService) Outputs(runID string) (map[string]models.Artifact, error) {
	s.mu.RLock()
	re, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return re.Outputs()
}

// Wait blocks until the run reaches a terminal status or ctx ends,
// and returns the final snapshot.
func (s *WorkflowService) Wait(ctx context.Context, runID string) (models.Run, error) {
	events, cancel, err := s.Subscribe(runID)
	if err != nil {
		return models.Run{}, err
	}
	defer cancel()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		run, err := s.Status(runID)
		if err != nil {
			return models.Run{}, err
		}
		if run.Status.Terminal() {
			return run, nil
		}
		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-events:
		case <-ticker.C:
		}
	}
}

// resolveSecrets walks a literal parameter table and substitutes
// "@secret(name)" references through the secret provider.
func (s *WorkflowService) resolveSecrets(table map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(table))
	for k, v := range table {
		rv, err := s.resolveSecretValue(v)
		if err != nil {
			return nil, err
		}
		out[k] = rv
	}
	return out, nil
}

func (s *WorkflowService) resolveSecretValue(v interface{}) (interface{}, error) {
	if name, ok := params.SecretRef(v); ok {
		return s.secrets.Lookup(name)
	}
	switch t := v.(type) {
	case map[string]interface{}:
		return s.resolveSecrets(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			rv, err := s.resolveSecretValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}
