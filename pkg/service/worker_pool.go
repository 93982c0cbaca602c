package service

import (
	"context"
	"runtime"
	"sync"
	"time"
)

const (
	// default per-attempt task timeout is 1m
	DefaultTaskTimeout = 60 * time.Second
)

// taskJob is one unit of work handed to the pool.
type taskJob func()

// WorkerPool runs task executions on a fixed set of workers. Jobs are
// consumed in FIFO order from a shared channel, so no ready task
// starves while capacity exists.
type WorkerPool struct {
	taskChan chan taskJob
	wg       sync.WaitGroup
	ctx      context.Context
	logger   Logger
	stopOnce sync.Once
}

func NewWorkerPool(mainCtx context.Context, logger Logger) *WorkerPool {
	return &WorkerPool{ctx: mainCtx, logger: logger}
}

// Start begins the worker pool with the specified number of workers.
func (wp *WorkerPool) Start(workers int) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	wp.taskChan = make(chan taskJob, workers)
	for i := 0; i < workers; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}
}

// Stop gracefully stops the worker pool, waiting for in-flight jobs.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		close(wp.taskChan)
		wp.wg.Wait()
	})
}

// Submit queues a job for execution. It blocks while all workers are
// busy and the channel buffer is full; callers dispatch from their own
// goroutines so the scheduler loop itself never blocks here.
func (wp *WorkerPool) Submit(job taskJob) bool {
	select {
	case <-wp.ctx.Done():
		return false
	case wp.taskChan <- job:
		return true
	}
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()
	// Jobs check their own run context and bail out fast after
	// cancellation, so the pool keeps draining unconditionally and no
	// scheduler goroutine is left waiting for an outcome.
	for job := range wp.taskChan {
		job()
	}
}
