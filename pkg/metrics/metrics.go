package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Workflow/task gauges
	WorkflowsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bee_workflows_total",
			Help: "Total number of workflows by state",
		},
		[]string{"state"},
	)

	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bee_tasks_total",
			Help: "Total number of tasks by state",
		},
		[]string{"state"},
	)

	// Graph Store metrics
	GSApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bee_gs_apply_duration_seconds",
			Help:    "Time taken to apply a graph store mutation command",
			Buckets: prometheus.DefBuckets,
		},
	)

	GSTransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bee_gs_transactions_total",
			Help: "Total number of graph store mutation commands by op and outcome",
		},
		[]string{"op", "outcome"},
	)

	// Scheduler metrics
	SchedulingLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bee_scheduling_latency_seconds",
			Help:    "Time taken to run schedule_all in seconds, by algorithm",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"algorithm"},
	)

	TasksScheduled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bee_tasks_scheduled_total",
			Help: "Total number of tasks allocated by the scheduler, by algorithm",
		},
		[]string{"algorithm"},
	)

	TasksUnschedulable = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bee_tasks_unschedulable_total",
			Help: "Total number of tasks that could not be scheduled in a batch, by algorithm",
		},
		[]string{"algorithm"},
	)

	// Task Manager metrics
	TMTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bee_tm_tick_duration_seconds",
			Help:    "Time taken for one Task Manager tick (submit+poll) in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	TMSubmitTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bee_tm_submit_total",
			Help: "Total number of backend submit() calls by outcome",
		},
		[]string{"outcome"},
	)

	TMZombieTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bee_tm_zombie_total",
			Help: "Total number of job_queue entries escalated ZOMBIE -> FAILED",
		},
	)

	TMQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bee_tm_queue_depth",
			Help: "Current depth of the TM's submit_queue and job_queue",
		},
		[]string{"queue"},
	)

	// Workflow Manager / API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bee_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bee_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	WorkflowArchiveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bee_workflow_archive_duration_seconds",
			Help:    "Time taken to tar+gzip a completed workflow directory",
			Buckets: prometheus.DefBuckets,
		},
	)

	WorkflowRestartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bee_workflow_restarts_total",
			Help: "Total number of restart_task events across all workflows",
		},
	)
)

func init() {
	prometheus.MustRegister(WorkflowsTotal)
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(GSApplyDuration)
	prometheus.MustRegister(GSTransactionsTotal)
	prometheus.MustRegister(SchedulingLatency)
	prometheus.MustRegister(TasksScheduled)
	prometheus.MustRegister(TasksUnschedulable)
	prometheus.MustRegister(TMTickDuration)
	prometheus.MustRegister(TMSubmitTotal)
	prometheus.MustRegister(TMZombieTotal)
	prometheus.MustRegister(TMQueueDepth)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(WorkflowArchiveDuration)
	prometheus.MustRegister(WorkflowRestartsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
