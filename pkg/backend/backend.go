// Package backend abstracts the workload manager BEE submits jobs to.
// The teacher's container-runtime boundary (pkg/runtime.ContainerdRuntime,
// one concrete driver behind a thin interface) is the model: three
// operations, with all workload-manager-specific detail — directives,
// state translation, submit/query/cancel commands — pushed into the
// concrete adapters (spec.md §6.3).
package backend

import (
	"context"

	"github.com/cuemby/bee/pkg/types"
)

// RawState is whatever state string a backend reports verbatim
// (e.g. "PEND", "RUNNING", "DONE"), before translation.
type RawState string

// JobState is the canonical job-queue state a Backend translates raw
// states into (spec.md §6.3's mapping tables target this set, distinct
// from types.TaskState: a job can be JobPending while its task is
// still RUNNING from the Task Manager's perspective).
type JobState string

const (
	JobPending   JobState = "PENDING"
	JobRunning   JobState = "RUNNING"
	JobCompleted JobState = "COMPLETED"
	JobFailed    JobState = "FAILED"
	JobCancelled JobState = "CANCELLED"
	JobPaused    JobState = "PAUSED"
)

// Terminal reports whether js ends the job_queue entry's lifecycle.
func (js JobState) Terminal() bool {
	switch js {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// Backend submits, polls and cancels jobs on a workload manager.
type Backend interface {
	// Name identifies the backend for logging/metrics ("slurm", "lsf",
	// "simple").
	Name() string

	// Submit renders task's job script and hands it to the workload
	// manager, returning an opaque job id.
	Submit(ctx context.Context, task *types.Task) (jobID string, err error)

	// Query returns the backend's raw state string for jobID.
	Query(ctx context.Context, jobID string) (RawState, error)

	// Cancel terminates jobID.
	Cancel(ctx context.Context, jobID string) error

	// Translate maps a raw state string to a canonical JobState. An
	// unrecognised string returns ("", false) — callers treat that as
	// ZOMBIE (spec.md §6.3: "An unmapped backend state must map to
	// ZOMBIE").
	Translate(raw RawState) (JobState, bool)
}
