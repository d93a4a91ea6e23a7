// Package workflow implements the Workflow Manager (WFM): the facade
// that owns a workflow's state machine, reacts to task state changes,
// invokes the Scheduler on newly-ready tasks, and hands scheduled tasks
// to the Task Manager (spec.md §4.4). Grounded on the teacher's
// pkg/manager/manager.go facade shape (a struct wrapping the store plus
// sub-components, one method per operation) with Raft/mTLS/DNS/ingress
// stripped — a single orchestrator instance owns a workflow here.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cuemby/bee/pkg/backend"
	"github.com/cuemby/bee/pkg/errs"
	"github.com/cuemby/bee/pkg/events"
	"github.com/cuemby/bee/pkg/graphstore"
	"github.com/cuemby/bee/pkg/log"
	"github.com/cuemby/bee/pkg/metrics"
	"github.com/cuemby/bee/pkg/scheduler"
	"github.com/cuemby/bee/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// sentinelOutput is the default value given to an output port with no
// declared glob at task finalization (spec.md §4.4, §9 Design Notes).
const sentinelOutput = "temp"

// DefaultMaxRestarts bounds restart_task's per-task counter absent an
// explicit override on the CheckpointRequirement hint (spec.md §7).
const DefaultMaxRestarts = 3

// Submitter is the subset of taskmanager.TaskManager the WFM depends
// on, kept as an interface so tests can substitute a fake TM.
type Submitter interface {
	Submit(task *types.Task)
	Cancel(ctx context.Context, taskID string) bool
}

// Archiver persists a completed workflow's working directory to
// long-term storage (pkg/archive) and is invoked once a workflow
// reaches a terminal state.
type Archiver interface {
	Archive(wf *types.Workflow) (string, error)
}

// Config configures a Service.
type Config struct {
	Store       graphstore.Store
	TM          Submitter
	Events      *events.Broker
	Archiver    Archiver
	Resources   []*types.Resource
	ChooseOpts  scheduler.ChooseOptions
	MaxRestarts int
}

// Service is the Workflow Manager facade: one method per operation,
// all mutation routed through the Graph Store.
type Service struct {
	store       graphstore.Store
	tm          Submitter
	events      *events.Broker
	archiver    Archiver
	resources   []*types.Resource
	chooseOpts  scheduler.ChooseOptions
	maxRestarts int
	logger      zerolog.Logger
}

func New(cfg Config) *Service {
	max := cfg.MaxRestarts
	if max == 0 {
		max = DefaultMaxRestarts
	}
	return &Service{
		store:       cfg.Store,
		tm:          cfg.TM,
		events:      cfg.Events,
		archiver:    cfg.Archiver,
		resources:   cfg.Resources,
		chooseOpts:  cfg.ChooseOpts,
		maxRestarts: max,
		logger:      log.WithComponent("workflow"),
	}
}

func (s *Service) publish(evtType events.EventType, wfID, taskID, msg string) {
	if s.events == nil {
		return
	}
	s.events.Publish(&events.Event{Type: evtType, WorkflowID: wfID, TaskID: taskID, Message: msg})
}

// SubmitWorkflow creates the workflow and loads every task, deriving
// dependency edges (spec.md §4.1). Tasks must be supplied in an order
// where producers needn't precede consumers — LoadTask's dependency
// derivation is load-order independent.
func (s *Service) SubmitWorkflow(wf *types.Workflow, tasks []*types.Task) error {
	if err := s.store.InitializeWorkflow(wf); err != nil {
		return err
	}
	for _, t := range tasks {
		if err := s.store.LoadTask(wf.ID, t); err != nil {
			return err
		}
	}
	s.publish(events.EventWorkflowSubmitted, wf.ID, "", "")
	return nil
}

// StartWorkflow moves a Pending workflow to Running, promotes its
// entry tasks to READY, and dispatches them.
func (s *Service) StartWorkflow(ctx context.Context, wfID string) error {
	empty, err := s.store.Empty(wfID)
	if err != nil {
		return err
	}
	if empty {
		return s.archive(wfID)
	}

	if err := s.store.ExecuteWorkflow(wfID); err != nil {
		return err
	}
	s.publish(events.EventWorkflowStarted, wfID, "", "")

	ready, err := s.store.GetReadyTasks(wfID)
	if err != nil {
		return err
	}
	return s.dispatch(ctx, wfID, ready)
}

// PauseWorkflow stops handing tasks to the TM; state updates already
// in flight continue to be written to GS.
func (s *Service) PauseWorkflow(wfID string) error {
	if err := s.store.PauseWorkflow(wfID); err != nil {
		return err
	}
	s.publish(events.EventWorkflowPaused, wfID, "", "")
	return nil
}

// ResumeWorkflow resumes dispatch and immediately hands every
// currently-ready task to the scheduler then the TM.
func (s *Service) ResumeWorkflow(ctx context.Context, wfID string) error {
	if err := s.store.ResumeWorkflow(wfID); err != nil {
		return err
	}
	s.publish(events.EventWorkflowResumed, wfID, "", "")

	ready, err := s.store.GetReadyTasks(wfID)
	if err != nil {
		return err
	}
	return s.dispatch(ctx, wfID, ready)
}

// CancelWorkflow cancels every active task via the TM, sets each of
// those tasks to CANCELLED, and archives the workflow.
func (s *Service) CancelWorkflow(ctx context.Context, wfID string) error {
	wf, err := s.store.GetWorkflow(wfID)
	if err != nil {
		return err
	}
	for _, t := range wf.Tasks {
		if !t.State.Active() {
			continue
		}
		s.tm.Cancel(ctx, t.ID)
		if err := s.store.SetTaskState(wfID, t.ID, types.TaskStateCancelled); err != nil {
			return err
		}
	}
	return s.archive(wfID)
}

// dispatch runs the scheduler over ready and hands every task that got
// an allocation to the TM, marking it RUNNING so it is never
// re-dispatched (spec.md §8 invariant 2: no double submit). Tasks that
// did not fit stay READY and are reconsidered on the next dispatch
// call (e.g. the next on_task_state or resume).
func (s *Service) dispatch(ctx context.Context, wfID string, ready []*types.Task) error {
	if len(ready) == 0 {
		return nil
	}
	wf, err := s.store.GetWorkflow(wfID)
	if err != nil {
		return err
	}
	if wf.State == types.WorkflowPaused {
		return nil
	}

	for _, t := range ready {
		s.publish(events.EventTaskReady, wfID, t.ID, "")
	}

	algo := scheduler.Choose(ready, s.chooseOpts)
	opts := scheduler.Options{Now: time.Now().Unix(), Existing: existingAllocations(wf.Tasks)}
	if err := algo.ScheduleAll(ready, s.resources, opts); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}

	for _, t := range ready {
		if t.Allocation == nil {
			continue // unschedulable for now; retried on next dispatch
		}
		s.publish(events.EventTaskScheduled, wfID, t.ID, "")
		s.tm.Submit(t)
		if err := s.store.SetTaskState(wfID, t.ID, types.TaskStateRunning); err != nil {
			return err
		}
		s.publish(events.EventTaskSubmitted, wfID, t.ID, "")
	}
	return nil
}

// existingAllocations collects the allocations already committed to
// active tasks of wf, so a fresh scheduling pass doesn't double-book
// their resources.
func existingAllocations(tasks []*types.Task) []*types.Allocation {
	var out []*types.Allocation
	for _, t := range tasks {
		if t.Allocation != nil && t.State.Active() {
			out = append(out, t.Allocation)
		}
	}
	return out
}

// JobStateToTaskState bridges the TM's backend.JobState callback
// vocabulary onto the canonical TaskState set GS stores (spec.md §6.3
// collapses PENDING and RUNNING into one active state, as Slurm's own
// mapping table already does).
func JobStateToTaskState(js string) (types.TaskState, bool) {
	switch backend.JobState(js) {
	case backend.JobPending, backend.JobRunning:
		return types.TaskStateRunning, true
	case backend.JobCompleted:
		return types.TaskStateCompleted, true
	case backend.JobFailed:
		return types.TaskStateFailed, true
	case backend.JobCancelled:
		return types.TaskStateCancelled, true
	case backend.JobPaused:
		return types.TaskStatePaused, true
	case "SUBMIT_FAIL":
		return types.TaskStateFailed, true
	default:
		return "", false
	}
}

// OnTaskState is the TM -> WFM callback handler (spec.md §4.4).
func (s *Service) OnTaskState(ctx context.Context, wfID, taskID string, jobState string) error {
	newState, ok := JobStateToTaskState(jobState)
	if !ok {
		return fmt.Errorf("on_task_state %s/%s: unrecognised job state %q: %w", wfID, taskID, jobState, errs.ErrBadRequest)
	}

	cur, err := s.store.GetTask(wfID, taskID)
	if err != nil {
		return err
	}
	if cur.State == newState {
		return nil // repeated delivery of an update already applied
	}

	if err := s.store.SetTaskState(wfID, taskID, newState); err != nil {
		return err
	}
	s.publish(events.EventTaskStateChanged, wfID, taskID, string(newState))

	if !newState.Terminal() {
		return nil
	}

	task, err := s.store.GetTask(wfID, taskID)
	if err != nil {
		return err
	}
	wf, err := s.store.GetWorkflow(wfID)
	if err != nil {
		return err
	}

	values := make(map[string]any, len(task.Outputs))
	for _, o := range task.Outputs {
		values[o.ID] = resolveOutput(wf, task, o)
	}
	if err := s.store.SetTaskOutputs(wfID, taskID, values); err != nil {
		return err
	}

	ready, err := s.store.FinalizeTask(wfID, taskID)
	if err != nil {
		return err
	}
	s.publish(events.EventTaskFinalized, wfID, taskID, "")

	if newState == types.TaskStateFailed {
		restarted, err := s.maybeRestart(ctx, wfID, task)
		if err != nil {
			return err
		}
		if !restarted && !isOptional(task) {
			s.publish(events.EventWorkflowFailed, wfID, task.ID, "required task failed")
			return s.archive(wfID) // terminates the workflow; no further dispatch
		}
	}

	if wf.State != types.WorkflowPaused {
		if err := s.dispatch(ctx, wfID, ready); err != nil {
			return err
		}
	}

	return s.checkCompletion(wfID)
}

// resolveOutput picks an output port's final value: the declared glob
// pattern's match (if any file exists under the task's working
// directory), else the sentinel default (spec.md §4.4, §6.4 path
// layout).
func resolveOutput(wf *types.Workflow, task *types.Task, port *types.Port) any {
	if port.Glob == "" {
		return sentinelOutput
	}
	dir := filepath.Join(wf.WorkDir, "workflows", wf.ID, fmt.Sprintf("%s-%s", task.Name, task.ID))
	matches, err := filepath.Glob(filepath.Join(dir, port.Glob))
	if err != nil || len(matches) == 0 {
		return sentinelOutput
	}
	if len(matches) == 1 {
		return matches[0]
	}
	return matches
}

// checkpointPolicy reports whether task carries a CheckpointRequirement
// hint, and the restart bound it specifies (or the service default).
func (s *Service) checkpointPolicy(task *types.Task) (applies bool, maxRestarts int) {
	maxRestarts = s.maxRestarts
	for _, h := range task.Hints {
		if h.Class == "CheckpointRequirement" {
			applies = true
			if h.Key == "max_restarts" {
				if n, ok := h.Value.(float64); ok {
					maxRestarts = int(n)
				} else if n, ok := h.Value.(int); ok {
					maxRestarts = n
				}
			}
		}
	}
	return applies, maxRestarts
}

// maybeRestart applies the restart policy to a failed task (spec.md
// §4.4: "If new_state == FAILED and a restart policy applies ... call
// GS.restart_task and submit the new task").
func (s *Service) maybeRestart(ctx context.Context, wfID string, task *types.Task) (bool, error) {
	applies, maxRestarts := s.checkpointPolicy(task)
	if !applies {
		return false, nil
	}

	newTask := cloneTaskForRestart(task)
	restarted, err := s.store.RestartTask(wfID, task.ID, newTask, maxRestarts)
	if err != nil {
		if errors.Is(err, errs.ErrInvariant) {
			return false, nil // restart limit exceeded: fall through to ordinary failure handling
		}
		return false, err
	}

	metrics.WorkflowRestartsTotal.Inc()
	s.publish(events.EventTaskRestarted, wfID, restarted.ID, fmt.Sprintf("replaces %s", task.ID))
	s.tm.Submit(restarted)
	if err := s.store.SetTaskState(wfID, restarted.ID, types.TaskStateRunning); err != nil {
		return false, err
	}
	return true, nil
}

// cloneTaskForRestart builds the replacement task for restart_task: a
// fresh id, WAITING ports reset to their pre-execution shape so the
// rerun produces its own outputs.
func cloneTaskForRestart(old *types.Task) *types.Task {
	nt := &types.Task{
		ID:           uuid.New().String(),
		Name:         old.Name,
		BaseCommand:  append([]string{}, old.BaseCommand...),
		Requirements: old.Requirements,
		Hints:        old.Hints,
		Stdout:       old.Stdout,
	}
	for _, in := range old.Inputs {
		cp := *in
		nt.Inputs = append(nt.Inputs, &cp)
	}
	for _, out := range old.Outputs {
		cp := *out
		cp.Value = nil
		nt.Outputs = append(nt.Outputs, &cp)
	}
	return nt
}

// isOptional reports whether task's failure must not fail the workflow
// as a whole (spec.md §4.4, §7 — every task not explicitly optional is
// required).
func isOptional(task *types.Task) bool {
	return types.HasClass(task.Hints, "Optional")
}

// checkCompletion archives the workflow once every task has reached a
// terminal state.
func (s *Service) checkCompletion(wfID string) error {
	done, err := s.store.WorkflowCompleted(wfID)
	if err != nil || !done {
		return err
	}
	return s.archive(wfID)
}

func (s *Service) archive(wfID string) error {
	wf, err := s.store.GetWorkflow(wfID)
	if err != nil {
		return err
	}
	if s.archiver != nil {
		timer := metrics.NewTimer()
		if _, err := s.archiver.Archive(wf); err != nil {
			s.logger.Warn().Err(err).Str("workflow_id", wfID).Msg("archive failed")
		}
		timer.ObserveDuration(metrics.WorkflowArchiveDuration)
	}
	if err := s.store.Cleanup(wfID); err != nil {
		return err
	}
	s.publish(events.EventWorkflowArchived, wfID, "", "")
	return nil
}
