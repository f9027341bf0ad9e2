package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verdandi_engine_executions_total",
		Help: "The total number of workflow executions by terminal status",
	}, []string{"status", "trigger"})

	ExecutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "verdandi_engine_execution_duration_seconds",
		Help:    "Time taken to run a workflow end to end",
		Buckets: prometheus.DefBuckets,
	})

	NodeExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verdandi_engine_node_executions_total",
		Help: "The total number of node executions by type and status",
	}, []string{"type", "status"})

	CronFires = promauto.NewCounter(prometheus.CounterOpts{
		Name: "verdandi_scheduler_cron_fires_total",
		Help: "The total number of schedule-triggered dispatches",
	})

	DispatchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "verdandi_dispatcher_retries_total",
		Help: "The total number of task re-enqueues after infrastructure failures",
	})

	ExecutionsPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "verdandi_scheduler_executions_pruned_total",
		Help: "The total number of execution records removed by retention cleanup",
	})

	WorkflowsDisabled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "verdandi_scheduler_workflows_disabled_total",
		Help: "The total number of workflows force-disabled by revalidation",
	})
)
