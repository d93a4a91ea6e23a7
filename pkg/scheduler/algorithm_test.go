package scheduler

import (
	"testing"

	"github.com/cuemby/bee/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func task(id string, nodes int, maxRuntime int64) *types.Task {
	return &types.Task{
		ID:   id,
		Name: id,
		Requirements: []types.Tag{
			{Class: "ResourceRequirement", Key: "nodes", Value: nodes},
			{Class: "ResourceRequirement", Key: "max_runtime", Value: maxRuntime},
		},
	}
}

func oneResource(nodes int) []*types.Resource {
	return []*types.Resource{{ID: "r1", Nodes: nodes, CoresPerNode: 1, MemPerNode: 1 << 30}}
}

// TestFCFSLinearWorkflow mirrors spec.md scenario S1: three tasks each
// requiring one node on a single one-node resource must serialize.
func TestFCFSLinearWorkflow(t *testing.T) {
	tasks := []*types.Task{task("A", 1, 10), task("B", 1, 10), task("C", 1, 10)}
	resources := oneResource(1)

	err := (&FCFS{}).ScheduleAll(tasks, resources, Options{Now: 0})
	require.NoError(t, err)

	require.NotNil(t, tasks[0].Allocation)
	require.NotNil(t, tasks[1].Allocation)
	require.NotNil(t, tasks[2].Allocation)
	assert.Equal(t, int64(0), tasks[0].Allocation.StartTime)
	assert.Equal(t, int64(10), tasks[1].Allocation.StartTime)
	assert.Equal(t, int64(20), tasks[2].Allocation.StartTime)
}

// TestBackfillConcurrentFit mirrors spec.md scenario S2: a head task
// that cannot start until an existing allocation frees the resource
// gets a reserved shadow time, and two short tasks backfill into the
// gap before that deadline, running concurrently at t=0.
func TestBackfillConcurrentFit(t *testing.T) {
	resources := oneResource(3)
	existing := &types.Allocation{
		TaskID:     "X",
		ResourceID: "r1",
		StartTime:  0,
		MaxRuntime: 10,
		Requested:  types.Capacity{Nodes: 1},
	}

	head := task("H", 3, 50)
	s1 := task("S1", 1, 5)
	s2 := task("S2", 1, 5)

	err := (&Backfill{}).ScheduleAll([]*types.Task{head, s1, s2}, resources, Options{Now: 0, Existing: []*types.Allocation{existing}})
	require.NoError(t, err)

	require.NotNil(t, head.Allocation)
	require.NotNil(t, s1.Allocation)
	require.NotNil(t, s2.Allocation)
	assert.Equal(t, int64(10), head.Allocation.StartTime, "head waits for the existing allocation to free the resource")
	assert.Equal(t, int64(0), s1.Allocation.StartTime, "short task backfills into the gap before the shadow deadline")
	assert.Equal(t, int64(0), s2.Allocation.StartTime, "second short task backfills concurrently with the first")
}

func TestSJFOrdersByRuntimeThenFCFS(t *testing.T) {
	long := task("long", 1, 100)
	short := task("short", 1, 10)
	resources := oneResource(1)

	err := (&SJF{}).ScheduleAll([]*types.Task{long, short}, resources, Options{Now: 0})
	require.NoError(t, err)

	require.NotNil(t, short.Allocation)
	require.NotNil(t, long.Allocation)
	assert.Equal(t, int64(0), short.Allocation.StartTime)
	assert.Equal(t, int64(10), long.Allocation.StartTime)
}

func TestScheduleAllRejectsNegativeRequirements(t *testing.T) {
	bad := task("bad", -1, 10)
	err := (&FCFS{}).ScheduleAll([]*types.Task{bad}, oneResource(1), Options{Now: 0})
	assert.Error(t, err)
}

func TestUnschedulableTaskIsSkippedNotErrored(t *testing.T) {
	tooBig := task("big", 10, 10)
	resources := oneResource(1)

	err := (&FCFS{}).ScheduleAll([]*types.Task{tooBig}, resources, Options{Now: 0})
	require.NoError(t, err)
	assert.Nil(t, tooBig.Allocation)
}
