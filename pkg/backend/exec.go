package backend

import (
	"context"
	"os"
	"os/exec"
)

// CommandRunner runs an external command and returns its combined
// stdout. Adapters call through this seam instead of os/exec directly
// so tests can inject a fake workload manager CLI (spec.md §6.3:
// "Slurm/LSF ... shells out to sbatch/squeue/scancel").
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner is the real CommandRunner, invoking the named binary on
// PATH.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// writeScript writes script to a new executable file at path.
func writeScript(path, script string) error {
	return os.WriteFile(path, []byte(script), 0700)
}
