// Package taskmanager implements the Task Manager (TM): a long-lived
// control loop that drains a submit queue into the workload backend,
// polls running jobs, and reports state changes upstream to the
// Workflow Manager (spec.md §3, §6.2). Grounded on the teacher's
// pkg/worker/health_monitor.go ticker-loop shape and
// original_source/beeflow/task_manager/task_manager.py's
// submit_queue/job_queue semantics.
package taskmanager

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/bee/pkg/backend"
	"github.com/cuemby/bee/pkg/log"
	"github.com/cuemby/bee/pkg/metrics"
	"github.com/cuemby/bee/pkg/types"
	"github.com/rs/zerolog"
)

const (
	// DefaultTickInterval matches the original's apscheduler interval.
	DefaultTickInterval = 5 * time.Second
	// DefaultZombieThreshold is N in "ZOMBIE after N consecutive poll
	// failures" (spec.md §6.3, §7).
	DefaultZombieThreshold = 3

	backoffBase = 1 * time.Second
	backoffCap  = 30 * time.Second
)

// jobQueueEntry tracks one submitted, still-monitored job.
type jobQueueEntry struct {
	task        *types.Task
	jobID       string
	jobState    backend.JobState
	failures    int
	nextAttempt time.Time
}

// Config configures a TaskManager.
type Config struct {
	Backend         backend.Backend
	Reporter        Reporter
	TickInterval    time.Duration
	ZombieThreshold int
}

// TaskManager drains a submit queue into Backend and polls job_queue
// entries, reporting every state change to Reporter. All queue access
// is protected by one mutex; I/O (backend calls, HTTP callbacks)
// happens outside the lock, matching the snapshot-under-lock /
// release / do-I/O / reacquire pattern the teacher's worker loops use.
type TaskManager struct {
	backend         backend.Backend
	reporter        Reporter
	tickInterval    time.Duration
	zombieThreshold int

	mu           sync.Mutex
	submitQueue  []*types.Task
	jobQueue     []*jobQueueEntry

	stopCh chan struct{}
	logger zerolog.Logger
}

// New creates a TaskManager from cfg, filling in defaults.
func New(cfg Config) *TaskManager {
	tick := cfg.TickInterval
	if tick == 0 {
		tick = DefaultTickInterval
	}
	threshold := cfg.ZombieThreshold
	if threshold == 0 {
		threshold = DefaultZombieThreshold
	}
	return &TaskManager{
		backend:         cfg.Backend,
		reporter:        cfg.Reporter,
		tickInterval:    tick,
		zombieThreshold: threshold,
		stopCh:          make(chan struct{}),
		logger:          log.WithComponent("taskmanager"),
	}
}

// Submit enqueues task for submission on the next tick (TaskSubmit,
// spec.md §6.2's POST /tasks/submit).
func (tm *TaskManager) Submit(task *types.Task) {
	tm.mu.Lock()
	tm.submitQueue = append(tm.submitQueue, task)
	tm.mu.Unlock()
	tm.logger.Info().Str("task_id", task.ID).Msg("added to submit queue")
}

// CancelAll cancels every job currently in job_queue, mirroring
// TaskActions.delete (the DELETE /tasks endpoint).
func (tm *TaskManager) CancelAll(ctx context.Context) {
	tm.mu.Lock()
	entries := tm.jobQueue
	tm.jobQueue = nil
	tm.mu.Unlock()

	for _, e := range entries {
		tm.cancelEntry(ctx, e)
	}
}

// Cancel cancels a single job by task id (DELETE /tasks/{id}).
func (tm *TaskManager) Cancel(ctx context.Context, taskID string) bool {
	tm.mu.Lock()
	var found *jobQueueEntry
	kept := tm.jobQueue[:0]
	for _, e := range tm.jobQueue {
		if e.task.ID == taskID && found == nil {
			found = e
			continue
		}
		kept = append(kept, e)
	}
	tm.jobQueue = kept
	tm.mu.Unlock()

	if found == nil {
		return false
	}
	tm.cancelEntry(ctx, found)
	return true
}

func (tm *TaskManager) cancelEntry(ctx context.Context, e *jobQueueEntry) {
	if err := tm.backend.Cancel(ctx, e.jobID); err != nil {
		tm.logger.Warn().Err(err).Str("task_id", e.task.ID).Msg("cancel failed")
	}
	tm.report(e.task, string(backend.JobCancelled))
}

// Start runs the tick loop in a background goroutine until Stop is
// called (grounded on HealthMonitor.Start/monitorLoop).
func (tm *TaskManager) Start(ctx context.Context) {
	go tm.loop(ctx)
}

func (tm *TaskManager) Stop() {
	close(tm.stopCh)
}

func (tm *TaskManager) loop(ctx context.Context) {
	ticker := time.NewTicker(tm.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tm.tick(ctx)
		case <-tm.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// tick runs one round of submit-drain then poll, timed and counted per
// metrics.TMTickDuration (spec.md §6.2 tick algorithm).
func (tm *TaskManager) tick(ctx context.Context) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.TMTickDuration)

	tm.submitJobs(ctx)
	tm.updateJobs(ctx)

	tm.mu.Lock()
	submitDepth := len(tm.submitQueue)
	jobDepth := len(tm.jobQueue)
	tm.mu.Unlock()
	metrics.TMQueueDepth.WithLabelValues("submit").Set(float64(submitDepth))
	metrics.TMQueueDepth.WithLabelValues("job").Set(float64(jobDepth))
}

// submitJobs drains submit_queue, submitting each task to the backend.
// At-most-once submission is guaranteed by removing a task from the
// queue only after the backend acknowledges success or terminal
// failure (spec.md §6.2 step 1).
func (tm *TaskManager) submitJobs(ctx context.Context) {
	for {
		tm.mu.Lock()
		if len(tm.submitQueue) == 0 {
			tm.mu.Unlock()
			return
		}
		task := tm.submitQueue[0]
		tm.mu.Unlock()

		jobID, err := tm.backend.Submit(ctx, task)

		tm.mu.Lock()
		tm.submitQueue = tm.submitQueue[1:]
		tm.mu.Unlock()
		if err != nil {
			tm.logger.Warn().Err(err).Str("task_id", task.ID).Msg("submit failed")
			metrics.TMSubmitTotal.WithLabelValues("fail").Inc()
			tm.report(task, "SUBMIT_FAIL")
			continue
		}

		metrics.TMSubmitTotal.WithLabelValues("ok").Inc()
		entry := &jobQueueEntry{task: task, jobID: jobID, jobState: backend.JobPending}
		tm.mu.Lock()
		tm.jobQueue = append(tm.jobQueue, entry)
		tm.mu.Unlock()
		tm.report(task, string(backend.JobPending))
	}
}

// updateJobs polls every job_queue entry whose backoff window has
// elapsed, translates the raw state, and reports changes upstream
// (spec.md §6.2 step 2-3).
func (tm *TaskManager) updateJobs(ctx context.Context) {
	tm.mu.Lock()
	entries := make([]*jobQueueEntry, len(tm.jobQueue))
	copy(entries, tm.jobQueue)
	tm.mu.Unlock()

	now := time.Now()
	var remaining []*jobQueueEntry
	for _, e := range entries {
		if now.Before(e.nextAttempt) {
			remaining = append(remaining, e)
			continue
		}

		raw, err := tm.backend.Query(ctx, e.jobID)
		var js backend.JobState
		var ok bool
		if err == nil {
			js, ok = tm.backend.Translate(raw)
		}

		if err != nil || !ok {
			if err != nil {
				tm.logger.Warn().Err(err).Str("task_id", e.task.ID).Msg("poll failed")
			} else {
				tm.logger.Warn().Str("task_id", e.task.ID).Str("raw_state", string(raw)).Msg("unmapped backend state")
			}
			e.failures++
			if e.failures >= tm.zombieThreshold {
				metrics.TMZombieTotal.Inc()
				tm.report(e.task, string(backend.JobFailed))
				continue // drop: escalated to ZOMBIE -> FAILED
			}
			e.nextAttempt = now.Add(backoffDelay(e.failures))
			remaining = append(remaining, e)
			continue
		}

		e.failures = 0
		if js != e.jobState {
			e.jobState = js
			tm.report(e.task, string(js))
		}
		if !js.Terminal() {
			remaining = append(remaining, e)
		}
	}

	tm.mu.Lock()
	tm.jobQueue = remaining
	tm.mu.Unlock()
}

func (tm *TaskManager) report(task *types.Task, jobState string) {
	if tm.reporter == nil {
		return
	}
	if err := tm.reporter.Report(task.WorkflowID, Update{TaskID: task.ID, JobState: jobState}); err != nil {
		tm.logger.Warn().Err(err).Str("task_id", task.ID).Msg("report to wfm failed")
	}
}

// backoffDelay returns the exponential backoff for the nth consecutive
// poll failure: base 1s, doubling, capped at 30s (spec.md §7
// "Propagation policy").
func backoffDelay(failures int) time.Duration {
	d := backoffBase
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= backoffCap {
			return backoffCap
		}
	}
	if d > backoffCap {
		return backoffCap
	}
	return d
}
