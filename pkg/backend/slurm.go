package backend

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cuemby/bee/pkg/types"
)

// slurmStates is the canonical mapping table from spec.md §6.3.
var slurmStates = map[RawState]JobState{
	"PENDING":     JobRunning,
	"RUNNING":     JobRunning,
	"CONFIGURING": JobRunning,
	"COMPLETING":  JobRunning,
	"COMPLETED":   JobCompleted,
	"FAILED":      JobFailed,
	"TIMEOUT":     JobFailed,
	"NODE_FAIL":   JobFailed,
	"CANCELLED":   JobCancelled,
}

// Slurm shells out to sbatch/squeue/scancel.
type Slurm struct {
	Runner  CommandRunner
	WorkDir string
}

// NewSlurm returns a Slurm adapter rooted at workdir, using the real
// process runner.
func NewSlurm(workdir string) *Slurm {
	return &Slurm{Runner: ExecRunner{}, WorkDir: workdir}
}

func (s *Slurm) Name() string { return "slurm" }

func (s *Slurm) Submit(ctx context.Context, task *types.Task) (string, error) {
	script, err := renderScript(slurmTemplate, s.WorkDir, task)
	if err != nil {
		return "", err
	}
	scriptPath := filepath.Join(s.WorkDir, "workflows", task.WorkflowID, fmt.Sprintf("%s-%s.sh", task.Name, task.ID))
	if err := writeScript(scriptPath, script); err != nil {
		return "", fmt.Errorf("write script: %w", err)
	}

	out, err := s.Runner.Run(ctx, "sbatch", "--parsable", scriptPath)
	if err != nil {
		return "", fmt.Errorf("sbatch: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (s *Slurm) Query(ctx context.Context, jobID string) (RawState, error) {
	out, err := s.Runner.Run(ctx, "squeue", "-h", "-j", jobID, "-o", "%T")
	if err != nil {
		return "", fmt.Errorf("squeue: %w", err)
	}
	state := strings.TrimSpace(out)
	if state == "" {
		// Not in the queue any more: squeue only shows active jobs.
		// sacct would distinguish COMPLETED from FAILED; without it we
		// report an unmapped state and let Translate signal ZOMBIE.
		return "UNKNOWN", nil
	}
	return RawState(state), nil
}

func (s *Slurm) Cancel(ctx context.Context, jobID string) error {
	_, err := s.Runner.Run(ctx, "scancel", jobID)
	if err != nil {
		return fmt.Errorf("scancel: %w", err)
	}
	return nil
}

func (s *Slurm) Translate(raw RawState) (JobState, bool) {
	st, ok := slurmStates[raw]
	return st, ok
}

// ParseJobID is a convenience for backends whose submit output is a
// bare integer job id (sbatch --parsable). bsub's "Job <id> is
// submitted" line is not a bare integer and does not parse here.
func ParseJobID(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}
