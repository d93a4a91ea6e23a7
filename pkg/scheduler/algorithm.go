// Package scheduler implements the Scheduler (SCH): given a batch of
// ready tasks and a description of cluster resources, it decides when
// and where each task runs (§4.2). FCFS, SJF, Backfill and MARS all
// implement the one Algorithm interface, grounded on
// original_source/beeflow/scheduler/algorithms.py's AlgorithmWrapper /
// load / choose form (the newer of the two divergent source files,
// adopted per the spec's resolved Open Question).
package scheduler

import (
	"fmt"

	"github.com/cuemby/bee/pkg/errs"
	"github.com/cuemby/bee/pkg/types"
)

// Options carries the scheduling batch's opaque time base and any
// allocations already committed elsewhere (e.g. running tasks) that
// still occupy capacity (§9: "record that epoch alongside the
// allocations").
type Options struct {
	Now      int64
	Existing []*types.Allocation
}

// Algorithm assigns tasks[i].Allocation for an independent batch of
// READY tasks. It never mutates resources, and never mutates the order
// or identity of tasks. Unscheduleable tasks are simply left with a nil
// Allocation — the algorithm never errors on that account, only on
// malformed input (§4.2 Failure semantics).
type Algorithm interface {
	Name() string
	ScheduleAll(tasks []*types.Task, resources []*types.Resource, opts Options) error
}

func validate(tasks []*types.Task) error {
	for _, t := range tasks {
		req := t.RequirementSpec()
		if req.MaxRuntime < 0 || req.Nodes < 0 {
			return fmt.Errorf("task %s: negative runtime or node count: %w", t.ID, errs.ErrBadRequest)
		}
	}
	return nil
}

// FCFS walks tasks in arrival order, allocating each at the earliest
// start time that fits.
type FCFS struct{}

func (FCFS) Name() string { return "fcfs" }

func (FCFS) ScheduleAll(tasks []*types.Task, resources []*types.Resource, opts Options) error {
	if err := validate(tasks); err != nil {
		return err
	}
	allocs := append([]*types.Allocation{}, opts.Existing...)
	for _, task := range tasks {
		req := task.RequirementSpec()
		if req.Nodes == 0 || req.MaxRuntime == 0 {
			continue
		}
		start, resID, ok := earliestFit(task, resources, allocs, opts.Now, unbounded)
		if !ok {
			continue
		}
		allocs = append(allocs, allocate(task, start, resID, opts.Now))
	}
	return nil
}

// SJF is FCFS after stable-sorting by ascending max_runtime.
type SJF struct{}

func (SJF) Name() string { return "sjf" }

func (SJF) ScheduleAll(tasks []*types.Task, resources []*types.Resource, opts Options) error {
	if err := validate(tasks); err != nil {
		return err
	}
	ordered := make([]*types.Task, len(tasks))
	copy(ordered, tasks)
	stableSortByRuntime(ordered)
	return FCFS{}.ScheduleAll(ordered, resources, opts)
}

func stableSortByRuntime(tasks []*types.Task) {
	// insertion sort: stable, and the batches are small (a scheduling
	// tick's worth of ready tasks), so O(n^2) is not a concern here.
	for i := 1; i < len(tasks); i++ {
		j := i
		for j > 0 && tasks[j-1].RequirementSpec().MaxRuntime > tasks[j].RequirementSpec().MaxRuntime {
			tasks[j-1], tasks[j] = tasks[j], tasks[j-1]
			j--
		}
	}
}

// Backfill implements EASY-style backfilling: the head of the queue
// either runs now or gets a reserved "shadow time" slot; every task
// behind it may jump ahead into that slot if doing so would not delay
// the reservation.
type Backfill struct{}

func (Backfill) Name() string { return "backfill" }

func (Backfill) ScheduleAll(tasks []*types.Task, resources []*types.Resource, opts Options) error {
	if err := validate(tasks); err != nil {
		return err
	}
	allocs := append([]*types.Allocation{}, opts.Existing...)
	queue := append([]*types.Task{}, tasks...)

	for len(queue) > 0 {
		head := queue[0]
		queue = queue[1:]

		req := head.RequirementSpec()
		if req.Nodes == 0 || req.MaxRuntime == 0 {
			continue
		}

		start, resID, ok := earliestFit(head, resources, allocs, opts.Now, unbounded)
		if !ok {
			continue // never schedulable against this inventory
		}
		allocs = append(allocs, allocate(head, start, resID, opts.Now))

		if start == opts.Now {
			continue // ran now, nothing to backfill against
		}

		// head is reserved at its shadow time (`start`). Try to backfill
		// every remaining task into the gap before that deadline.
		shadow := start
		var stillBlocked []*types.Task
		for _, t := range queue {
			tReq := t.RequirementSpec()
			if tReq.Nodes == 0 || tReq.MaxRuntime == 0 {
				continue
			}
			bfStart, bfRes, bfOK := earliestFit(t, resources, allocs, opts.Now, shadow)
			if bfOK {
				allocs = append(allocs, allocate(t, bfStart, bfRes, opts.Now))
			} else {
				stillBlocked = append(stillBlocked, t)
			}
		}
		queue = stillBlocked
	}
	return nil
}
