package workflow

import (
	"context"
	"sync"
	"testing"

	"github.com/cuemby/bee/pkg/backend"
	"github.com/cuemby/bee/pkg/graphstore"
	"github.com/cuemby/bee/pkg/scheduler"
	"github.com/cuemby/bee/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSubmitter records every task handed to it, standing in for a
// remote taskmanager.TaskManager.
type fakeSubmitter struct {
	mu        sync.Mutex
	submitted []*types.Task
	cancelled []string
}

func (f *fakeSubmitter) Submit(task *types.Task) {
	f.mu.Lock()
	f.submitted = append(f.submitted, task)
	f.mu.Unlock()
}

func (f *fakeSubmitter) Cancel(ctx context.Context, taskID string) bool {
	f.mu.Lock()
	f.cancelled = append(f.cancelled, taskID)
	f.mu.Unlock()
	return true
}

func (f *fakeSubmitter) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.submitted))
	for i, t := range f.submitted {
		out[i] = t.ID
	}
	return out
}

// fakeArchiver records every workflow handed to Archive without
// touching the filesystem.
type fakeArchiver struct {
	mu       sync.Mutex
	archived []string
}

func (f *fakeArchiver) Archive(wf *types.Workflow) (string, error) {
	f.mu.Lock()
	f.archived = append(f.archived, wf.ID)
	f.mu.Unlock()
	return "/tmp/" + wf.ID + ".tar.gz", nil
}

func nodeReq(nodes int) []types.Tag {
	return []types.Tag{
		{Class: "ResourceRequirement", Key: "nodes", Value: nodes},
		{Class: "ResourceRequirement", Key: "max_runtime", Value: 10},
	}
}

func newService(t *testing.T) (*Service, *graphstore.BoltStore, *fakeSubmitter, *fakeArchiver) {
	t.Helper()
	store, err := graphstore.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	sub := &fakeSubmitter{}
	arch := &fakeArchiver{}
	svc := New(Config{
		Store:       store,
		TM:          sub,
		Archiver:    arch,
		Resources:   []*types.Resource{{ID: "r1", Nodes: 4, CoresPerNode: 1, MemPerNode: 1 << 30}},
		ChooseOpts:  scheduler.ChooseOptions{Algorithm: "fcfs"},
		MaxRestarts: 2,
	})
	return svc, store, sub, arch
}

// linearWorkflow builds A -> B, each requiring one node, mirroring
// the GS-level fixture but at the WFM layer.
func linearWorkflow(t *testing.T, svc *Service) (wfID string) {
	t.Helper()
	wf := &types.Workflow{
		ID:     uuid.New().String(),
		Name:   "linear",
		Inputs: []*types.Port{{ID: "wf_in", Value: "start"}},
	}
	a := &types.Task{
		ID: "A", Name: "A",
		Inputs:       []*types.Port{{ID: "a_in", Source: "wf_in"}},
		Outputs:      []*types.Port{{ID: "a_out"}},
		Requirements: nodeReq(1),
	}
	b := &types.Task{
		ID: "B", Name: "B",
		Inputs:       []*types.Port{{ID: "b_in", Source: "a_out"}},
		Outputs:      []*types.Port{{ID: "b_out"}},
		Requirements: nodeReq(1),
	}
	require.NoError(t, svc.SubmitWorkflow(wf, []*types.Task{a, b}))
	return wf.ID
}

func TestStartWorkflowSchedulesAndSubmitsEntryTasks(t *testing.T) {
	svc, store, sub, _ := newService(t)
	wfID := linearWorkflow(t, svc)

	require.NoError(t, svc.StartWorkflow(context.Background(), wfID))

	assert.Equal(t, []string{"A"}, sub.ids())
	a, err := store.GetTask(wfID, "A")
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateRunning, a.State, "dispatch marks a scheduled task RUNNING so it is never re-dispatched")
}

func TestStartWorkflowOnEmptyWorkflowArchivesImmediately(t *testing.T) {
	svc, _, _, arch := newService(t)
	wf := &types.Workflow{ID: uuid.New().String(), Name: "empty"}
	require.NoError(t, svc.SubmitWorkflow(wf, nil))

	require.NoError(t, svc.StartWorkflow(context.Background(), wf.ID))
	assert.Contains(t, arch.archived, wf.ID)
}

func TestOnTaskStateCompletedPropagatesAndDispatchesNext(t *testing.T) {
	svc, store, sub, _ := newService(t)
	wfID := linearWorkflow(t, svc)
	require.NoError(t, svc.StartWorkflow(context.Background(), wfID))

	require.NoError(t, svc.OnTaskState(context.Background(), wfID, "A", string(backend.JobCompleted)))

	b, err := store.GetTask(wfID, "B")
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateRunning, b.State, "B was readied by A's completion and dispatched")
	assert.Equal(t, []string{"A", "B"}, sub.ids())
}

func TestOnTaskStateRejectsUnrecognisedJobState(t *testing.T) {
	svc, _, _, _ := newService(t)
	wfID := linearWorkflow(t, svc)
	require.NoError(t, svc.StartWorkflow(context.Background(), wfID))

	err := svc.OnTaskState(context.Background(), wfID, "A", "NOT_A_REAL_STATE")
	assert.Error(t, err)
}

func TestOnTaskStateFailedWithoutCheckpointArchivesWorkflow(t *testing.T) {
	svc, _, _, arch := newService(t)
	wfID := linearWorkflow(t, svc)
	require.NoError(t, svc.StartWorkflow(context.Background(), wfID))

	require.NoError(t, svc.OnTaskState(context.Background(), wfID, "A", string(backend.JobFailed)))
	assert.Contains(t, arch.archived, wfID, "a required task's failure with no restart policy terminates the workflow")
}

func TestOnTaskStateFailedWithCheckpointRestarts(t *testing.T) {
	svc, store, sub, arch := newService(t)
	wf := &types.Workflow{ID: uuid.New().String(), Name: "checkpointed", Inputs: []*types.Port{{ID: "wf_in", Value: "start"}}}
	a := &types.Task{
		ID: "A", Name: "A",
		Inputs:       []*types.Port{{ID: "a_in", Source: "wf_in"}},
		Requirements: nodeReq(1),
		Hints:        []types.Tag{{Class: "CheckpointRequirement", Key: "max_restarts", Value: 2}},
	}
	require.NoError(t, svc.SubmitWorkflow(wf, []*types.Task{a}))
	require.NoError(t, svc.StartWorkflow(context.Background(), wf.ID))

	require.NoError(t, svc.OnTaskState(context.Background(), wf.ID, "A", string(backend.JobFailed)))

	assert.Len(t, sub.submitted, 2, "original submission plus the restarted replacement")
	assert.Empty(t, arch.archived, "restart must not terminate the workflow")

	deps, err := store.ListWorkflows()
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, types.WorkflowRunning, deps[0].State)
}

func TestPauseWorkflowStopsDispatchUntilResumed(t *testing.T) {
	svc, store, sub, _ := newService(t)
	wfID := linearWorkflow(t, svc)
	require.NoError(t, svc.StartWorkflow(context.Background(), wfID))
	require.NoError(t, svc.PauseWorkflow(wfID))

	require.NoError(t, svc.OnTaskState(context.Background(), wfID, "A", string(backend.JobCompleted)))
	b, err := store.GetTask(wfID, "B")
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateReady, b.State, "B is readied but not dispatched while paused")
	assert.Equal(t, []string{"A"}, sub.ids())

	require.NoError(t, svc.ResumeWorkflow(context.Background(), wfID))
	assert.Equal(t, []string{"A", "B"}, sub.ids())
}

func TestCancelWorkflowCancelsActiveTasksAndArchives(t *testing.T) {
	svc, store, sub, arch := newService(t)
	wfID := linearWorkflow(t, svc)
	require.NoError(t, svc.StartWorkflow(context.Background(), wfID))

	require.NoError(t, svc.CancelWorkflow(context.Background(), wfID))
	assert.Equal(t, []string{"A"}, sub.cancelled)
	assert.Contains(t, arch.archived, wfID)

	_, err := store.GetWorkflow(wfID)
	assert.Error(t, err, "archive cleans the workflow out of the store")
}
