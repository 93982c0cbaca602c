// Package metrics exposes the engine's prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "farmvibes_tasks_dispatched_total",
		Help: "Tasks handed to the worker pool for execution.",
	})
	TaskRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "farmvibes_task_retries_total",
		Help: "Transient task failures that were retried.",
	})
	TaskFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "farmvibes_task_failures_total",
		Help: "Tasks that reached the FAILED state.",
	})
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "farmvibes_cache_hits_total",
		Help: "Task executions satisfied from the result cache.",
	})
	RunningTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "farmvibes_running_tasks",
		Help: "Tasks currently executing on the worker pool.",
	})
)
