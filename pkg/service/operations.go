package service

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shankarkarande/farmvibes-ai/pkg/models"
)

// OpArgs carries everything a worker needs to execute one task:
// the qualified task alias, the fully resolved literal parameters
// (secrets substituted) and the input artifacts keyed by port name.
type OpArgs struct {
	Task       string
	Parameters map[string]interface{}
	Inputs     map[string]models.Artifact
}

// Operation is the worker invocation interface: it executes one
// primitive operation and returns the produced artifacts keyed by
// output port, or a failure. Implementations must honor ctx.
type Operation func(ctx context.Context, args OpArgs) (models.ArtifactSet, error)

// OpConfig holds per-operation execution overrides.
type OpConfig struct {
	Timeout    *time.Duration
	MaxRetries *int
}

// OpOption configures an operation at registration time.
type OpOption func(*OpConfig)

// WithTimeout overrides the engine's default per-attempt timeout.
func WithTimeout(d time.Duration) OpOption {
	return func(c *OpConfig) { c.Timeout = &d }
}

// WithMaxRetries overrides the engine's default transient retry budget.
func WithMaxRetries(n int) OpOption {
	return func(c *OpConfig) { c.MaxRetries = &n }
}

// OpRegistry maps primitive operation identifiers to implementations.
type OpRegistry struct {
	mu      sync.RWMutex
	ops     map[string]Operation
	configs map[string]OpConfig
}

func NewOpRegistry() *OpRegistry {
	return &OpRegistry{
		ops:     make(map[string]Operation),
		configs: make(map[string]OpConfig),
	}
}

// Register binds an operation identifier to its implementation.
// Registering the same identifier again replaces the previous binding.
func (r *OpRegistry) Register(name string, op Operation, opts ...OpOption) error {
	if name == "" {
		return errors.New("empty operation name")
	}
	if op == nil {
		return errors.Errorf("nil operation for %q", name)
	}
	cfg := OpConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[name] = op
	r.configs[name] = cfg
	return nil
}

// Get returns the operation registered under name.
func (r *OpRegistry) Get(name string) (Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[name]
	return op, ok
}

// Config returns the registration-time overrides for name.
func (r *OpRegistry) Config(name string) OpConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.configs[name]
}
