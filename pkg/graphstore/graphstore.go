// Package graphstore implements the Graph Store (GS): transactional CRUD
// over Workflow, Task and port nodes, plus the dependency edges derived
// from input/output sources (spec §4.1).
package graphstore

import "github.com/cuemby/bee/pkg/types"

// Store is the Graph Store contract. Every mutating method runs as a
// single transaction (see Apply in store.go); concurrent readers see
// either the pre- or post-state, never a partial write.
type Store interface {
	// InitializeWorkflow creates the workflow plus its input/output
	// nodes. Fails with errs.ErrInvariant if the id is already present.
	InitializeWorkflow(wf *types.Workflow) error

	// LoadTask adds a task node and materialises its dependency edges.
	// Idempotent: loading the same task id twice is a no-op.
	LoadTask(wfID string, task *types.Task) error

	// ExecuteWorkflow sets every workflow-entry task with no unsatisfied
	// dependencies from WAITING to READY, filling its inputs from
	// workflow inputs or defaults.
	ExecuteWorkflow(wfID string) error

	// PauseWorkflow / ResumeWorkflow map RUNNING <-> PAUSED.
	PauseWorkflow(wfID string) error
	ResumeWorkflow(wfID string) error

	// ResetWorkflow sets every task to WAITING, clears all port values,
	// and reassigns the workflow id to newID.
	ResetWorkflow(wfID, newID string) error

	// InitializeReadyTasks transitions every WAITING task whose every
	// input port has a non-null value to READY.
	InitializeReadyTasks(wfID string) ([]*types.Task, error)

	// FinalizeTask propagates t's output values to downstream inputs and
	// to matching workflow outputs, applies defaults where still null,
	// runs InitializeReadyTasks, and returns the new ready set. t must
	// already be in a terminal state.
	FinalizeTask(wfID, taskID string) ([]*types.Task, error)

	// RestartTask adds newTask linked as a child of oldTaskID, inheriting
	// oldTaskID's position in the dependency graph; the new task passes
	// through RESTARTED and is stored READY. Enforces the per-task
	// restart counter against maxRestarts.
	RestartTask(wfID, oldTaskID string, newTask *types.Task, maxRestarts int) (*types.Task, error)

	GetReadyTasks(wfID string) ([]*types.Task, error)
	GetDependentTasks(wfID, taskID string) ([]*types.Task, error)
	GetTask(wfID, taskID string) (*types.Task, error)
	GetTaskState(wfID, taskID string) (types.TaskState, error)
	SetTaskState(wfID, taskID string, state types.TaskState) error
	GetTaskMetadata(wfID, taskID, key string) (string, bool, error)
	SetTaskMetadata(wfID, taskID, key, value string) error

	// SetTaskOutputs sets output port values by port id, ahead of a
	// FinalizeTask call. The caller (Workflow Manager) resolves each
	// value — from a declared glob pattern or the "temp" sentinel
	// default — before invoking this (spec §4.4).
	SetTaskOutputs(wfID, taskID string, values map[string]any) error

	GetWorkflow(wfID string) (*types.Workflow, error)
	ListWorkflows() ([]*types.Workflow, error)

	// WorkflowCompleted reports whether every task in wfID is terminal.
	WorkflowCompleted(wfID string) (bool, error)

	// Empty reports whether the workflow has zero tasks (immediately
	// archivable).
	Empty(wfID string) (bool, error)

	// Cleanup removes all of the workflow's records and in-memory
	// adjacency state; called after archival.
	Cleanup(wfID string) error

	Close() error
}

// adjacency is the in-memory per-task, in- and out-neighbour index kept
// in sync with the edges bucket on every mutation (§9 Design Notes:
// "prefer a directed adjacency structure where every node stores both
// in- and out-neighbours").
type adjacency struct {
	// In holds the ids of tasks this task DEPENDS on (predecessors).
	In []string
	// Out holds the ids of tasks that DEPEND on this task (successors).
	Out []string
	// Begins is true if this task has a BEGINS edge to the workflow
	// (i.e. it is a workflow-entry task).
	Begins bool
}

func (a *adjacency) addIn(id string) {
	for _, x := range a.In {
		if x == id {
			return
		}
	}
	a.In = append(a.In, id)
}

func (a *adjacency) addOut(id string) {
	for _, x := range a.Out {
		if x == id {
			return
		}
	}
	a.Out = append(a.Out, id)
}
