package backend

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/cuemby/bee/pkg/types"
)

// simpleJob tracks one subprocess: Submit starts a background waiter so
// Query can poll without blocking on (or double-calling) cmd.Wait.
type simpleJob struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

// Simple runs rendered scripts as local subprocesses, the "no workload
// manager" path (grounded on
// original_source/src/beeflow/common/worker/simple_worker.py): submit
// starts a process and returns its pid as the job id; query reports
// whether it has exited and with what code.
type Simple struct {
	WorkDir string

	mu   sync.Mutex
	jobs map[string]*simpleJob
}

func NewSimple(workdir string) *Simple {
	return &Simple{WorkDir: workdir, jobs: make(map[string]*simpleJob)}
}

func (s *Simple) Name() string { return "simple" }

func (s *Simple) Submit(ctx context.Context, task *types.Task) (string, error) {
	script, err := renderScript(simpleTemplate, s.WorkDir, task)
	if err != nil {
		return "", err
	}
	scriptPath := filepath.Join(s.WorkDir, "workflows", task.WorkflowID, fmt.Sprintf("%s-%s.sh", task.Name, task.ID))
	if err := writeScript(scriptPath, script); err != nil {
		return "", fmt.Errorf("write script: %w", err)
	}

	cmd := exec.Command("/bin/sh", scriptPath)
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start script: %w", err)
	}

	job := &simpleJob{cmd: cmd, done: make(chan struct{})}
	go func() {
		job.err = cmd.Wait()
		close(job.done)
	}()

	jobID := strconv.Itoa(cmd.Process.Pid)
	s.mu.Lock()
	s.jobs[jobID] = job
	s.mu.Unlock()
	return jobID, nil
}

func (s *Simple) Query(ctx context.Context, jobID string) (RawState, error) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	s.mu.Unlock()
	if !ok {
		return "UNKNOWN", nil
	}

	select {
	case <-job.done:
		if job.cmd.ProcessState.ExitCode() == 0 {
			return "exit0", nil
		}
		return "exitN", nil
	default:
		return "running", nil
	}
}

func (s *Simple) Cancel(ctx context.Context, jobID string) error {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("simple: unknown job %s", jobID)
	}
	return job.cmd.Process.Kill()
}

func (s *Simple) Translate(raw RawState) (JobState, bool) {
	switch raw {
	case "running":
		return JobRunning, true
	case "exit0":
		return JobCompleted, true
	case "exitN":
		return JobFailed, true
	default:
		return "", false
	}
}
