package scheduler

import "github.com/cuemby/bee/pkg/types"

// Loader abstracts a learned placement policy (MARS: Multi-Agent
// Reinforcement Scheduler). Nothing in this package trains or serialises
// a model — Loader only asks an already-loaded policy to rank a small
// set of candidate placements for one task.
type Loader interface {
	// Available reports whether a usable model is loaded.
	Available() bool
	// ChooseIndex asks the policy to pick among candidates, returning an
	// index into the slice. An error or out-of-range index falls back to
	// candidates[0].
	ChooseIndex(task *types.Task, candidates []types.Allocation) (int, error)
}

// NullLoader is never available — scheduling a batch with it always
// falls back to MARS.Fallback.
type NullLoader struct{}

func (NullLoader) Available() bool { return false }
func (NullLoader) ChooseIndex(*types.Task, []types.Allocation) (int, error) { return 0, nil }

// candidatesPerTask bounds how many start-time/resource candidates MARS
// asks its loader to rank, keeping the policy call cheap.
const candidatesPerTask = 4

// MARS asks Loader to rank a handful of earliest-fit candidates per
// task, and falls back to Fallback wholesale when no model is loaded
// (§4.2: "MARS ... falls back to the configured default algorithm when
// no model is available").
type MARS struct {
	Loader   Loader
	Fallback Algorithm
}

func (m MARS) Name() string { return "mars" }

func (m MARS) ScheduleAll(tasks []*types.Task, resources []*types.Resource, opts Options) error {
	if m.Loader == nil || !m.Loader.Available() {
		return m.Fallback.ScheduleAll(tasks, resources, opts)
	}
	if err := validate(tasks); err != nil {
		return err
	}

	allocs := append([]*types.Allocation{}, opts.Existing...)
	for _, task := range tasks {
		req := task.RequirementSpec()
		if req.Nodes == 0 || req.MaxRuntime == 0 {
			continue
		}

		candidates := m.candidates(task, resources, allocs, opts.Now)
		if len(candidates) == 0 {
			continue
		}

		idx, err := m.Loader.ChooseIndex(task, candidates)
		if err != nil || idx < 0 || idx >= len(candidates) {
			idx = 0
		}
		chosen := candidates[idx]
		alloc := allocate(task, chosen.StartTime, chosen.ResourceID, opts.Now)
		allocs = append(allocs, alloc)
	}
	return nil
}

// candidates gathers up to candidatesPerTask earliest-fit placements for
// task, walking forward through candidateTimes the same way earliestFit
// does, so MARS only ever offers placements the deterministic
// algorithms would also consider valid.
func (m MARS) candidates(task *types.Task, resources []*types.Resource, allocs []*types.Allocation, from int64) []types.Allocation {
	req := task.RequirementSpec()
	need := types.Capacity{Nodes: req.Nodes, MemPerNode: req.MemPerNode, Accelerators: req.Accelerators}

	var out []types.Allocation
	for _, t := range candidateTimes(allocs, from) {
		for _, rid := range sortedResourceIDs(resources) {
			if len(out) >= candidatesPerTask {
				return out
			}
			if remainingCapacity(resources, rid, t, req.MaxRuntime, allocs).Fits(need) {
				out = append(out, types.Allocation{
					TaskID:     task.ID,
					ResourceID: rid,
					StartTime:  t,
					MaxRuntime: req.MaxRuntime,
					Requested:  need,
				})
			}
		}
	}
	return out
}
