package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shankarkarande/farmvibes-ai/internal/metrics"
	"github.com/shankarkarande/farmvibes-ai/pkg/cache"
	"github.com/shankarkarande/farmvibes-ai/pkg/graph"
	"github.com/shankarkarande/farmvibes-ai/pkg/models"
)

// outcome is a worker's report for one task execution.
type outcome struct {
	alias    string
	outputs  models.ArtifactSet
	cacheHit bool
	err      error
}

// runExec owns the scheduling state of a single run: per-task status,
// unmet dependency counts and produced artifacts. The orchestration
// goroutine consuming the outcomes channel performs all readiness
// bookkeeping; workers only execute tasks and report back.
type runExec struct {
	svc    *WorkflowService
	id     string
	graph  *graph.Graph
	inputs map[string]models.Artifact // source name -> bound input

	ctx      context.Context
	cancelFn context.CancelFunc

	mu              sync.Mutex
	status          map[string]models.TaskStatus
	artifacts       map[models.PortRef]models.Artifact
	remaining       map[string]int
	completed       int
	failure         string
	cancelRequested bool
	final           models.RunStatus

	// buffered to the node count so workers never block reporting
	outcomes chan outcome
}

func newRunExec(svc *WorkflowService, id string, g *graph.Graph, inputs map[string]models.Artifact, ctx context.Context, cancel context.CancelFunc) *runExec {
	re := &runExec{
		svc:       svc,
		id:        id,
		graph:     g,
		inputs:    inputs,
		ctx:       ctx,
		cancelFn:  cancel,
		status:    make(map[string]models.TaskStatus, len(g.Nodes)),
		artifacts: make(map[models.PortRef]models.Artifact),
		remaining: make(map[string]int, len(g.Nodes)),
		outcomes:  make(chan outcome, len(g.Nodes)),
	}
	for alias := range g.Nodes {
		re.status[alias] = models.PendingTaskStatus
		re.remaining[alias] = len(g.Deps[alias])
	}
	return re
}

// run drives the DAG to completion. It dispatches every task whose
// dependencies are satisfied, consumes worker outcomes, and reacts to
// cancellation; it never blocks on a task itself.
func (re *runExec) run() {
	re.persistRun(models.RunningRunStatus, "")

	var ready []string
	re.mu.Lock()
	for _, alias := range re.graph.Order {
		if re.remaining[alias] == 0 {
			ready = append(ready, alias)
		}
	}
	re.mu.Unlock()
	for _, alias := range ready {
		re.dispatch(alias)
	}

	total := len(re.graph.Nodes)
	cancelC := re.ctx.Done()
	for {
		re.mu.Lock()
		done := re.completed >= total
		re.mu.Unlock()
		if done {
			break
		}
		select {
		case out := <-re.outcomes:
			re.handleOutcome(out)
		case <-cancelC:
			re.handleCancellation()
			cancelC = nil // keep draining outcomes of in-flight tasks
		}
	}
	re.finalize()
}

// dispatch hands one ready task to the worker pool. Called without
// re.mu held: Submit may block on pool capacity and workers take the
// lock while collecting inputs.
func (re *runExec) dispatch(alias string) {
	re.setTaskStatus(alias, models.ReadyTaskStatus, "")
	re.setTaskStatus(alias, models.DispatchedTaskStatus, "")
	metrics.TasksDispatched.Inc()

	node := re.graph.Nodes[alias]
	submitted := re.svc.pool.Submit(func() {
		re.outcomes <- re.execute(node)
	})
	if !submitted {
		// service shutting down
		re.outcomes <- outcome{alias: alias, err: context.Canceled}
	}
}

// execute runs on a pool worker: it collects the task's inputs,
// consults the cache, and otherwise joins the single in-flight
// execution for the task's fingerprint.
func (re *runExec) execute(node *graph.Node) outcome {
	if re.ctx.Err() != nil {
		return outcome{alias: node.Alias, err: re.ctx.Err()}
	}

	feeds := re.graph.Inputs[node.Alias]
	inputs := make(map[string]models.Artifact, len(feeds))
	inputIDs := make(map[string]string, len(feeds))
	re.mu.Lock()
	for port, ref := range feeds {
		var art models.Artifact
		if ref.Source != "" {
			art = re.inputs[ref.Source]
		} else {
			art = re.artifacts[ref.Origin]
		}
		inputs[port] = art
		inputIDs[port] = art.ID
	}
	re.mu.Unlock()

	fp := cache.Fingerprint(node.Op, node.Parameters, inputIDs)
	if err := re.svc.tasks.SaveTask(models.TaskNode{
		RunID:       re.id,
		Alias:       node.Alias,
		Op:          node.Op,
		Status:      models.DispatchedTaskStatus,
		Fingerprint: fp,
	}); err != nil {
		re.svc.logger.Errorf("Failed to record fingerprint for task %s: %v", node.Alias, err)
	}

	if outputs, ok, err := re.svc.cache.Get(re.ctx, fp); err != nil {
		re.svc.logger.Errorf("Cache lookup for task %s failed, executing: %v", node.Alias, err)
	} else if ok {
		re.svc.logger.Debugf("Task %s satisfied from cache (%s)", node.Alias, fp)
		metrics.CacheHits.Inc()
		re.markCacheHit(node, fp)
		return outcome{alias: node.Alias, outputs: outputs, cacheHit: true}
	}

	// At most one execution per fingerprint is in flight across all
	// runs; concurrent requests join it. The flight runs on the
	// service context so a cancelled run stops waiting without
	// aborting work another run may be subscribed to.
	ch := re.svc.flight.DoChan(fp, func() (interface{}, error) {
		return re.invoke(node, fp, OpArgs{Task: node.Alias, Parameters: node.Parameters, Inputs: inputs})
	})
	re.setTaskStatus(node.Alias, models.RunningTaskStatus, "")

	select {
	case res := <-ch:
		if res.Err != nil {
			return outcome{alias: node.Alias, err: res.Err}
		}
		if res.Shared {
			re.markCacheHit(node, fp)
		}
		return outcome{alias: node.Alias, outputs: res.Val.(models.ArtifactSet), cacheHit: res.Shared}
	case <-re.ctx.Done():
		return outcome{alias: node.Alias, err: re.ctx.Err()}
	}
}

// markCacheHit records that the task's outputs came from the cache or a
// shared in-flight execution rather than a fresh invocation.
func (re *runExec) markCacheHit(node *graph.Node, fp string) {
	if err := re.svc.tasks.SaveTask(models.TaskNode{
		RunID:       re.id,
		Alias:       node.Alias,
		Op:          node.Op,
		Status:      models.DispatchedTaskStatus,
		Fingerprint: fp,
		CacheHit:    true,
	}); err != nil {
		re.svc.logger.Errorf("Failed to record cache hit for task %s: %v", node.Alias, err)
	}
}

// invoke performs the actual operation call with secret resolution,
// per-attempt timeout and the transient retry budget, and populates
// the cache on success.
func (re *runExec) invoke(node *graph.Node, fp string, args OpArgs) (models.ArtifactSet, error) {
	op, ok := re.svc.ops.Get(node.Op)
	if !ok {
		// validated at submission; a miss here means deregistration raced
		return nil, models.NewTaskError(models.ErrPermanentTaskFailure, node.Alias,
			"operation %q is not registered", node.Op)
	}

	resolvedParams, err := re.svc.resolveSecrets(args.Parameters)
	if err != nil {
		return nil, err
	}
	args.Parameters = resolvedParams

	cfg := re.svc.ops.Config(node.Op)
	policy := re.svc.cfg.Retry
	if cfg.MaxRetries != nil {
		policy.MaxRetries = *cfg.MaxRetries
	}
	timeout := re.svc.cfg.TaskTimeout
	if cfg.Timeout != nil {
		timeout = *cfg.Timeout
	}

	var result models.ArtifactSet
	attempt := 0
	operation := func() error {
		attempt++
		if err := re.svc.tasks.UpdateTaskAttempts(re.id, node.Alias, attempt); err != nil {
			re.svc.logger.Errorf("Failed to update attempts for task %s: %v", node.Alias, err)
		}
		attemptCtx, cancel := context.WithTimeout(re.svc.ctx, timeout)
		defer cancel()

		metrics.RunningTasks.Inc()
		out, err := op(attemptCtx, args)
		metrics.RunningTasks.Dec()
		if err != nil {
			switch Classify(err) {
			case ClassPermanent, ClassCancelled:
				return backoff.Permanent(err)
			}
			return err
		}
		result = withArtifactIDs(out)
		return nil
	}

	notify := func(err error, wait time.Duration) {
		metrics.TaskRetries.Inc()
		re.svc.logger.Infof("Task %s failed transiently (attempt %d), retrying in %s: %v",
			node.Alias, attempt, wait, err)
	}

	if err := backoff.RetryNotify(operation, policy.backOff(re.svc.ctx), notify); err != nil {
		if Classify(err) == ClassTransient {
			err = models.NewTaskError(models.ErrRetryBudgetExhausted, node.Alias,
				"failed after %d attempts: %v", attempt, err)
		}
		return nil, err
	}

	if err := re.svc.cache.Put(re.svc.ctx, fp, result); err != nil {
		re.svc.logger.Errorf("Failed to cache outputs of task %s: %v", node.Alias, err)
	}
	return result, nil
}

// handleOutcome applies one worker report: records artifacts, advances
// downstream readiness, or propagates failure/cancellation.
func (re *runExec) handleOutcome(out outcome) {
	var ready []string

	re.mu.Lock()
	if re.status[out.alias].Terminal() {
		re.mu.Unlock()
		return
	}
	re.completed++

	if out.err != nil {
		switch Classify(out.err) {
		case ClassCancelled:
			re.setTaskStatusLocked(out.alias, models.CancelledTaskStatus, "run cancelled")
			re.cascadeLocked(out.alias, models.CancelledTaskStatus, "run cancelled")
		default:
			metrics.TaskFailures.Inc()
			re.setTaskStatusLocked(out.alias, models.FailedTaskStatus, out.err.Error())
			if re.failure == "" {
				re.failure = out.err.Error()
			}
			re.cascadeLocked(out.alias, models.FailedTaskStatus,
				fmt.Sprintf("upstream task %s failed", out.alias))
		}
		re.mu.Unlock()
		return
	}

	for port, art := range out.outputs {
		re.artifacts[models.PortRef{Task: out.alias, Port: port}] = art
	}
	if out.cacheHit {
		re.svc.monitor.publish(TaskEvent{RunID: re.id, Task: out.alias,
			Status: models.DoneTaskStatus, CacheHit: true})
	}
	re.setTaskStatusLocked(out.alias, models.DoneTaskStatus, "")

	for _, dep := range re.graph.Dependents[out.alias] {
		if re.status[dep].Terminal() {
			continue
		}
		re.remaining[dep]--
		if re.remaining[dep] == 0 {
			ready = append(ready, dep)
		}
	}
	re.mu.Unlock()

	for _, alias := range ready {
		re.dispatch(alias)
	}
}

// cascadeLocked marks every transitive dependent of alias that has not
// started yet with the given terminal status. Dependents cannot be in
// flight: their dependencies were by definition not all done.
func (re *runExec) cascadeLocked(alias string, status models.TaskStatus, reason string) {
	for _, dep := range re.graph.Dependents[alias] {
		if re.status[dep].Terminal() {
			continue
		}
		re.completed++
		re.setTaskStatusLocked(dep, status, reason)
		re.cascadeLocked(dep, status, reason)
	}
}

// handleCancellation marks every task that was never handed to the
// pool as cancelled. Dispatched and running tasks report their own
// outcomes once they notice the dead context.
func (re *runExec) handleCancellation() {
	re.svc.logger.Infof("Run %s cancelled, stopping dispatch", re.id)
	re.mu.Lock()
	defer re.mu.Unlock()
	for alias, st := range re.status {
		if st == models.PendingTaskStatus || st == models.ReadyTaskStatus {
			re.completed++
			re.setTaskStatusLocked(alias, models.CancelledTaskStatus, "run cancelled")
		}
	}
}

// finalize computes and persists the run's terminal status.
func (re *runExec) finalize() {
	re.mu.Lock()
	status := models.DoneRunStatus
	reason := ""
	switch {
	case re.failure != "":
		status = models.FailedRunStatus
		reason = re.failure
	case re.cancelRequested || re.ctx.Err() != nil:
		status = models.CancelledRunStatus
	default:
		for name, port := range re.graph.Sinks {
			if _, ok := re.artifacts[port]; !ok {
				status = models.FailedRunStatus
				reason = models.NewError(models.ErrUnreachableSink,
					"sink %q was never populated by task port %s", name, port).Error()
				break
			}
		}
	}
	re.final = status
	re.mu.Unlock()

	re.persistRun(status, reason)
	re.svc.logger.Infof("Run %s finished with status %s", re.id, status)
}

// requestCancel records the external cancellation request and stops
// dispatch by killing the run context.
func (re *runExec) requestCancel() {
	re.mu.Lock()
	re.cancelRequested = true
	re.mu.Unlock()
	re.cancelFn()
}

// Outputs returns the artifacts bound to the run's sinks. Only valid
// once the run is done.
func (re *runExec) Outputs() (map[string]models.Artifact, error) {
	re.mu.Lock()
	defer re.mu.Unlock()
	if re.final != models.DoneRunStatus {
		return nil, fmt.Errorf("run %s has no outputs (status %s)", re.id, re.final)
	}
	out := make(map[string]models.Artifact, len(re.graph.Sinks))
	for name, port := range re.graph.Sinks {
		out[name] = re.artifacts[port]
	}
	return out, nil
}

func (re *runExec) persistRun(status models.RunStatus, reason string) {
	if err := re.svc.tasks.UpdateRunStatus(re.id, status, reason); err != nil {
		re.svc.logger.Errorf("Failed to persist run %s status %s: %v", re.id, status, err)
	}
	re.svc.monitor.publish(TaskEvent{RunID: re.id, RunStatus: status, Error: reason})
}

// setTaskStatus updates a task's state, persists it and notifies
// subscribers.
func (re *runExec) setTaskStatus(alias string, status models.TaskStatus, errMsg string) {
	re.mu.Lock()
	re.setTaskStatusLocked(alias, status, errMsg)
	re.mu.Unlock()
}

func (re *runExec) setTaskStatusLocked(alias string, status models.TaskStatus, errMsg string) {
	re.status[alias] = status
	if err := re.svc.tasks.UpdateTaskStatus(re.id, alias, status, errMsg); err != nil {
		re.svc.logger.Errorf("Failed to persist task %s status %s: %v", alias, status, err)
	}
	re.svc.monitor.publish(TaskEvent{RunID: re.id, Task: alias, Status: status, Error: errMsg})
}

// withArtifactIDs assigns content-derived identities to artifacts an
// operation returned without one.
func withArtifactIDs(outputs models.ArtifactSet) models.ArtifactSet {
	if outputs == nil {
		return models.ArtifactSet{}
	}
	out := make(models.ArtifactSet, len(outputs))
	for port, art := range outputs {
		if art.ID == "" {
			art.ID = cache.HashValue(art.Value)
		}
		out[port] = art
	}
	return out
}
