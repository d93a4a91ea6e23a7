/*
Package metrics defines and registers BEE's Prometheus metrics and
exposes them for scraping via Handler.

All metrics are package-level prometheus.Collector values registered
in this package's init function, so importing pkg/metrics anywhere in
a binary is enough to make every metric show up on the /metrics
endpoint wired in pkg/api.

# Metric families

Workflow/Task state gauges, labeled by state:

  - bee_workflows_total
  - bee_tasks_total

Graph Store:

  - bee_gs_apply_duration_seconds — time to apply one mutation command
  - bee_gs_transactions_total{op,outcome} — mutation count by op/outcome

Scheduler:

  - bee_scheduling_latency_seconds{algorithm} — time per schedule_all pass
  - bee_tasks_scheduled_total{algorithm}
  - bee_tasks_unschedulable_total{algorithm}

Task Manager:

  - bee_tm_tick_duration_seconds — time per submit+poll tick
  - bee_tm_submit_total{outcome} — backend Submit() calls by outcome
  - bee_tm_zombie_total — job_queue entries escalated ZOMBIE -> FAILED
  - bee_tm_queue_depth{queue} — current submit_queue/job_queue depth

Workflow Manager / API:

  - bee_api_requests_total{method,status}
  - bee_api_request_duration_seconds{method}
  - bee_workflow_archive_duration_seconds
  - bee_workflow_restarts_total

# Timer

Timer is a small helper for the histogram-observation pattern used
throughout this package's callers:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.GSApplyDuration)

ObserveDurationVec is the equivalent for a HistogramVec that needs
label values, e.g. the algorithm name for SchedulingLatency.
*/
package metrics
