package scheduler

import (
	"fmt"
	"io"

	"github.com/cuemby/bee/pkg/metrics"
	"github.com/cuemby/bee/pkg/types"
)

// DefaultMARSThreshold is the minimum batch size at which Choose will
// prefer MARS over the configured default, mirroring the original's
// MEDIAN constant (§4.2/§9).
const DefaultMARSThreshold = 2

// AlgorithmWrapper instruments an Algorithm with metrics and an optional
// SWF-like allocation log, the way the teacher's scheduler wraps its
// placement strategies with duration/outcome observations.
type AlgorithmWrapper struct {
	Algorithm
	Log io.Writer
}

// ScheduleAll runs the wrapped algorithm, recording per-algorithm
// scheduling latency and per-task scheduled/unschedulable counts.
func (w *AlgorithmWrapper) ScheduleAll(tasks []*types.Task, resources []*types.Resource, opts Options) error {
	timer := metrics.NewTimer()
	err := w.Algorithm.ScheduleAll(tasks, resources, opts)
	timer.ObserveDurationVec(metrics.SchedulingLatency, w.Algorithm.Name())

	for _, t := range tasks {
		if t.Allocation != nil {
			metrics.TasksScheduled.WithLabelValues(w.Algorithm.Name()).Inc()
			if w.Log != nil {
				fmt.Fprintf(w.Log, "%s %s start=%d runtime=%d resource=%s\n",
					w.Algorithm.Name(), t.ID, t.Allocation.StartTime, t.Allocation.MaxRuntime, t.Allocation.ResourceID)
			}
		} else {
			metrics.TasksUnschedulable.WithLabelValues(w.Algorithm.Name()).Inc()
		}
	}
	return err
}

// ChooseOptions parameterises Choose's algorithm-selection heuristic.
type ChooseOptions struct {
	// Algorithm, if non-empty, forces this algorithm by name
	// ("fcfs", "sjf", "backfill", "mars") and skips the heuristic.
	Algorithm string
	// DefaultAlgorithm is used when MARS is not selected; "" means
	// "backfill" (§4.2's canonical default).
	DefaultAlgorithm string
	// MARSThreshold overrides DefaultMARSThreshold; 0 means use the
	// default.
	MARSThreshold int
	// MARSLoader, if non-nil and Available(), makes MARS eligible once
	// the batch is large enough.
	MARSLoader Loader
	// Log receives one line per scheduled task, if non-nil.
	Log io.Writer
}

func byName(name string, marsLoader Loader, fallback Algorithm) Algorithm {
	switch name {
	case "fcfs":
		return FCFS{}
	case "sjf":
		return SJF{}
	case "backfill":
		return Backfill{}
	case "mars":
		return MARS{Loader: marsLoader, Fallback: fallback}
	default:
		return Backfill{}
	}
}

// Choose picks a scheduling algorithm for a batch of tasks: an explicit
// ChooseOptions.Algorithm wins outright; otherwise MARS is used once the
// batch reaches the threshold and a model is loaded; otherwise the
// configured (or default) deterministic algorithm runs (§4.2, §9).
func Choose(tasks []*types.Task, opts ChooseOptions) *AlgorithmWrapper {
	threshold := opts.MARSThreshold
	if threshold == 0 {
		threshold = DefaultMARSThreshold
	}

	defaultName := opts.DefaultAlgorithm
	if defaultName == "" {
		defaultName = "backfill"
	}
	fallback := byName(defaultName, nil, nil)

	var chosen Algorithm
	switch {
	case opts.Algorithm != "":
		chosen = byName(opts.Algorithm, opts.MARSLoader, fallback)
	case opts.MARSLoader != nil && opts.MARSLoader.Available() && len(tasks) >= threshold:
		chosen = MARS{Loader: opts.MARSLoader, Fallback: fallback}
	default:
		chosen = fallback
	}

	return &AlgorithmWrapper{Algorithm: chosen, Log: opts.Log}
}
