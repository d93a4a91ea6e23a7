package taskmanager

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/bee/pkg/backend"
	"github.com/cuemby/bee/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is a scriptable backend.Backend: each jobID's Query
// responses are consumed in order, letting a test drive a job through
// a specific raw-state sequence.
type fakeBackend struct {
	mu         sync.Mutex
	submitErr  error
	nextJobID  int
	translate  map[backend.RawState]backend.JobState
	queryQueue map[string][]backend.RawState
	cancelled  []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		translate: map[backend.RawState]backend.JobState{
			"RUNNING":   backend.JobRunning,
			"COMPLETED": backend.JobCompleted,
			"FAILED":    backend.JobFailed,
		},
		queryQueue: map[string][]backend.RawState{},
	}
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Submit(ctx context.Context, task *types.Task) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.mu.Lock()
	f.nextJobID++
	id := task.ID
	f.mu.Unlock()
	return id, nil
}

func (f *fakeBackend) Query(ctx context.Context, jobID string) (backend.RawState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := f.queryQueue[jobID]
	if len(q) == 0 {
		return "RUNNING", nil
	}
	next := q[0]
	f.queryQueue[jobID] = q[1:]
	return next, nil
}

func (f *fakeBackend) Cancel(ctx context.Context, jobID string) error {
	f.mu.Lock()
	f.cancelled = append(f.cancelled, jobID)
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) Translate(raw backend.RawState) (backend.JobState, bool) {
	js, ok := f.translate[raw]
	return js, ok
}

// fakeReporter records every Update delivered upstream.
type fakeReporter struct {
	mu      sync.Mutex
	updates []Update
}

func (f *fakeReporter) Report(workflowID string, update Update) error {
	f.mu.Lock()
	f.updates = append(f.updates, update)
	f.mu.Unlock()
	return nil
}

func (f *fakeReporter) states() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.updates))
	for i, u := range f.updates {
		out[i] = u.JobState
	}
	return out
}

func TestSubmitJobsMovesTaskFromSubmitToJobQueue(t *testing.T) {
	be := newFakeBackend()
	rep := &fakeReporter{}
	tm := New(Config{Backend: be, Reporter: rep})

	tm.Submit(&types.Task{ID: "t1", WorkflowID: "wf1"})
	tm.submitJobs(context.Background())

	tm.mu.Lock()
	assert.Empty(t, tm.submitQueue)
	assert.Len(t, tm.jobQueue, 1)
	tm.mu.Unlock()
	assert.Contains(t, rep.states(), string(backend.JobPending))
}

func TestUpdateJobsReportsStateChangesAndDropsTerminal(t *testing.T) {
	be := newFakeBackend()
	be.queryQueue["t1"] = []backend.RawState{"RUNNING", "COMPLETED"}
	rep := &fakeReporter{}
	tm := New(Config{Backend: be, Reporter: rep})

	tm.Submit(&types.Task{ID: "t1", WorkflowID: "wf1"})
	tm.submitJobs(context.Background())

	tm.updateJobs(context.Background())
	tm.mu.Lock()
	assert.Len(t, tm.jobQueue, 1, "still running, stays in the queue")
	tm.mu.Unlock()

	tm.updateJobs(context.Background())
	tm.mu.Lock()
	assert.Empty(t, tm.jobQueue, "terminal state drops the entry")
	tm.mu.Unlock()

	assert.Contains(t, rep.states(), string(backend.JobCompleted))
}

func TestUpdateJobsEscalatesToZombieAfterThreshold(t *testing.T) {
	be := newFakeBackend()
	be.translate = map[backend.RawState]backend.JobState{} // every Translate call fails
	rep := &fakeReporter{}
	tm := New(Config{Backend: be, Reporter: rep, ZombieThreshold: 2})

	tm.Submit(&types.Task{ID: "t1", WorkflowID: "wf1"})
	tm.submitJobs(context.Background())

	tm.jobQueue[0].nextAttempt = time.Time{} // force immediate poll eligibility
	tm.updateJobs(context.Background())
	tm.mu.Lock()
	assert.Len(t, tm.jobQueue, 1, "below threshold, still retrying")
	tm.mu.Unlock()

	tm.jobQueue[0].nextAttempt = time.Time{}
	tm.updateJobs(context.Background())
	tm.mu.Lock()
	assert.Empty(t, tm.jobQueue, "escalated to ZOMBIE and dropped")
	tm.mu.Unlock()

	assert.Contains(t, rep.states(), string(backend.JobFailed))
}

func TestCancelRemovesOneEntryAndCallsBackend(t *testing.T) {
	be := newFakeBackend()
	rep := &fakeReporter{}
	tm := New(Config{Backend: be, Reporter: rep})

	tm.Submit(&types.Task{ID: "t1", WorkflowID: "wf1"})
	tm.Submit(&types.Task{ID: "t2", WorkflowID: "wf1"})
	tm.submitJobs(context.Background())

	ok := tm.Cancel(context.Background(), "t1")
	assert.True(t, ok)
	assert.Contains(t, be.cancelled, "t1")

	tm.mu.Lock()
	assert.Len(t, tm.jobQueue, 1)
	assert.Equal(t, "t2", tm.jobQueue[0].task.ID)
	tm.mu.Unlock()

	assert.False(t, tm.Cancel(context.Background(), "no-such-task"))
}

func TestBackoffDelayDoublesAndCaps(t *testing.T) {
	require.Equal(t, backoffBase, backoffDelay(1))
	assert.Equal(t, 2*backoffBase, backoffDelay(2))
	assert.Equal(t, backoffCap, backoffDelay(10))
}
