package scheduler

import (
	"sort"

	"github.com/cuemby/bee/pkg/types"
)

// remainingCapacity returns the capacity left on resourceID across the
// interval [start, start+dur) after subtracting every allocation in
// allocs whose resource matches and whose interval overlaps (§4.2
// overlap math).
func remainingCapacity(resources []*types.Resource, resourceID string, start, dur int64, allocs []*types.Allocation) types.Capacity {
	var res *types.Resource
	for _, r := range resources {
		if r.ID == resourceID {
			res = r
			break
		}
	}
	if res == nil {
		return types.Capacity{}
	}
	cap := res.Capacity()
	for _, a := range allocs {
		if a.ResourceID != resourceID {
			continue
		}
		if a.Overlaps(start, dur) {
			cap = cap.Sub(a.Requested)
		}
	}
	return cap
}

// sortedResourceIDs returns resource ids in ascending order, giving the
// "prefer the lower-id resource" tie-break (§4.2) for free from iteration
// order.
func sortedResourceIDs(resources []*types.Resource) []string {
	ids := make([]string, len(resources))
	for i, r := range resources {
		ids[i] = r.ID
	}
	sort.Strings(ids)
	return ids
}

// fitsAt returns the lowest-id resource (if any) with enough remaining
// capacity for need over [start, start+dur).
func fitsAt(resources []*types.Resource, allocs []*types.Allocation, start, dur int64, need types.Capacity) (string, bool) {
	for _, rid := range sortedResourceIDs(resources) {
		if remainingCapacity(resources, rid, start, dur, allocs).Fits(need) {
			return rid, true
		}
	}
	return "", false
}

// candidateTimes returns the set of instants at which remaining capacity
// can change: `from` itself, plus every allocation end time after `from`.
// Because capacity is piecewise-constant between these instants, checking
// fitsAt only at these candidates is sufficient to find the earliest fit.
func candidateTimes(allocs []*types.Allocation, from int64) []int64 {
	seen := map[int64]bool{from: true}
	for _, a := range allocs {
		if end := a.EndTime(); end > from {
			seen[end] = true
		}
	}
	times := make([]int64, 0, len(seen))
	for t := range seen {
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	return times
}

// earliestFit finds the earliest start time at or after `from`, with
// `start+task.max_runtime <= deadline`, at which task's requirement fits
// some resource. Returns ok=false if no such time exists within the
// candidate set (which, for deadline=unbounded, means the task can never
// be scheduled against this resource inventory).
func earliestFit(task *types.Task, resources []*types.Resource, allocs []*types.Allocation, from, deadline int64) (start int64, resourceID string, ok bool) {
	req := task.RequirementSpec()
	need := types.Capacity{Nodes: req.Nodes, MemPerNode: req.MemPerNode, Accelerators: req.Accelerators}
	for _, t := range candidateTimes(allocs, from) {
		if t+req.MaxRuntime > deadline {
			break
		}
		if rid, fit := fitsAt(resources, allocs, t, req.MaxRuntime, need); fit {
			return t, rid, true
		}
	}
	return 0, "", false
}

func allocate(task *types.Task, start int64, resourceID string, epoch int64) *types.Allocation {
	req := task.RequirementSpec()
	a := &types.Allocation{
		TaskID:     task.ID,
		ResourceID: resourceID,
		StartTime:  start,
		MaxRuntime: req.MaxRuntime,
		Requested:  types.Capacity{Nodes: req.Nodes, MemPerNode: req.MemPerNode, Accelerators: req.Accelerators},
		Epoch:      epoch,
	}
	task.Allocation = a
	return a
}

const unbounded = int64(1) << 62
