package backend

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cuemby/bee/pkg/types"
)

// lsfStates is the canonical mapping table from spec.md §6.3.
var lsfStates = map[RawState]JobState{
	"PEND":  JobPending,
	"RUN":   JobRunning,
	"DONE":  JobCompleted,
	"QUIT":  JobFailed,
	"PSUSP": JobPaused,
	"USUSP": JobPaused,
	"SSUSP": JobPaused,
}

// LSF shells out to bsub/bjobs/bkill.
type LSF struct {
	Runner  CommandRunner
	WorkDir string
}

func NewLSF(workdir string) *LSF {
	return &LSF{Runner: ExecRunner{}, WorkDir: workdir}
}

func (l *LSF) Name() string { return "lsf" }

func (l *LSF) Submit(ctx context.Context, task *types.Task) (string, error) {
	script, err := renderScript(lsfTemplate, l.WorkDir, task)
	if err != nil {
		return "", err
	}
	scriptPath := filepath.Join(l.WorkDir, "workflows", task.WorkflowID, fmt.Sprintf("%s-%s.sh", task.Name, task.ID))
	if err := writeScript(scriptPath, script); err != nil {
		return "", fmt.Errorf("write script: %w", err)
	}

	out, err := l.Runner.Run(ctx, "bsub", scriptPath)
	if err != nil {
		return "", fmt.Errorf("bsub: %w", err)
	}
	jobID, perr := parseBsubOutput(out)
	if perr != nil {
		return "", fmt.Errorf("parse bsub output %q: %w", out, perr)
	}
	return jobID, nil
}

// parseBsubOutput extracts the job id from bsub's "Job <123> is
// submitted to queue <normal>." line.
func parseBsubOutput(out string) (string, error) {
	i := strings.Index(out, "<")
	j := strings.Index(out, ">")
	if i < 0 || j < 0 || j <= i {
		return "", fmt.Errorf("no job id found")
	}
	return out[i+1 : j], nil
}

func (l *LSF) Query(ctx context.Context, jobID string) (RawState, error) {
	out, err := l.Runner.Run(ctx, "bjobs", "-noheader", "-o", "stat", jobID)
	if err != nil {
		return "", fmt.Errorf("bjobs: %w", err)
	}
	state := strings.TrimSpace(out)
	if state == "" {
		return "UNKNOWN", nil
	}
	return RawState(state), nil
}

func (l *LSF) Cancel(ctx context.Context, jobID string) error {
	_, err := l.Runner.Run(ctx, "bkill", jobID)
	if err != nil {
		return fmt.Errorf("bkill: %w", err)
	}
	return nil
}

func (l *LSF) Translate(raw RawState) (JobState, bool) {
	st, ok := lsfStates[raw]
	return st, ok
}
