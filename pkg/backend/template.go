package backend

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/cuemby/bee/pkg/types"
)

// scriptData is the substitution set a job script template renders
// against (spec.md §6.4: job name, stdout/stderr paths, node/tasks-per-
// node directives, the run command).
type scriptData struct {
	JobName      string
	WorkflowID   string
	TaskID       string
	StdoutPath   string
	StderrPath   string
	Nodes        int
	TasksPerNode int
	Accelerators int
	MaxRuntime   int64 // minutes, rounded up from the task's max_runtime seconds
	Command      string
}

// preamble templates: one per backend, selected by the adapter. Kept as
// named text/template strings (spec §9 Design Notes: "keep the template
// pure-text ... any templating library will do" — text/template is the
// sanctioned standard-library choice here, see DESIGN.md).
const (
	slurmPreamble = `#!/bin/sh
#SBATCH --job-name={{.JobName}}
#SBATCH --output={{.StdoutPath}}
#SBATCH --error={{.StderrPath}}
#SBATCH --nodes={{.Nodes}}
{{- if gt .TasksPerNode 0}}
#SBATCH --ntasks-per-node={{.TasksPerNode}}
{{- end}}
{{- if gt .Accelerators 0}}
#SBATCH --gres=gpu:{{.Accelerators}}
{{- end}}
{{- if gt .MaxRuntime 0}}
#SBATCH --time={{.MaxRuntime}}
{{- end}}
`

	lsfPreamble = `#!/bin/sh
#BSUB -J {{.JobName}}
#BSUB -o {{.StdoutPath}}
#BSUB -e {{.StderrPath}}
#BSUB -n {{.Nodes}}
{{- if gt .Accelerators 0}}
#BSUB -gpu "num={{.Accelerators}}"
{{- end}}
{{- if gt .MaxRuntime 0}}
#BSUB -W {{.MaxRuntime}}
{{- end}}
`

	simplePreamble = `#!/bin/sh
# job: {{.JobName}}
`

	commandBody = `{{.Command}} > {{.StdoutPath}} 2> {{.StderrPath}}
`
)

var (
	slurmTemplate  = template.Must(template.New("slurm").Parse(slurmPreamble + commandBody))
	lsfTemplate    = template.Must(template.New("lsf").Parse(lsfPreamble + commandBody))
	simpleTemplate = template.Must(template.New("simple").Parse(simplePreamble + commandBody))
)

// stdoutPaths returns the stdout/stderr file paths under
// workdir/workflows/{wf_id}/{task-name}-{task-id}/ (§6.5).
func stdoutPaths(workdir string, task *types.Task) (stdout, stderr string) {
	dir := filepath.Join(workdir, "workflows", task.WorkflowID, fmt.Sprintf("%s-%s", task.Name, task.ID))
	stdout = filepath.Join(dir, "stdout")
	if task.Stdout != "" {
		stdout = filepath.Join(dir, task.Stdout)
	}
	stderr = filepath.Join(dir, "stderr")
	return stdout, stderr
}

// tasksPerNode reads the MPIRequirement tag, if any (§6.4: "tasks-per-
// node directives derived from MPIRequirement").
func tasksPerNode(task *types.Task) int {
	for _, tag := range task.Requirements {
		if tag.Class == "MPIRequirement" && tag.Key == "tasks_per_node" {
			switch v := tag.Value.(type) {
			case int:
				return v
			case int64:
				return int(v)
			case float64:
				return int(v)
			}
		}
	}
	return 0
}

// runText turns base_command into a shell command line. The
// container-runtime interface that would normally wrap this
// (run_text(task) -> command tokens, §6.4) is external to this module;
// adapters here consume base_command directly, equivalent to a
// no-op container-runtime driver.
func runText(task *types.Task) string {
	return strings.Join(task.BaseCommand, " ")
}

// renderScript builds a job script for task using the named preamble
// template and the given working directory root.
func renderScript(tmpl *template.Template, workdir string, task *types.Task) (string, error) {
	stdout, stderr := stdoutPaths(workdir, task)
	data := scriptData{
		JobName:      fmt.Sprintf("%s-%s", task.Name, task.ID),
		WorkflowID:   task.WorkflowID,
		TaskID:       task.ID,
		StdoutPath:   stdout,
		StderrPath:   stderr,
		Nodes:        task.RequirementSpec().Nodes,
		TasksPerNode: tasksPerNode(task),
		Accelerators: task.RequirementSpec().Accelerators,
		MaxRuntime:   (task.RequirementSpec().MaxRuntime + 59) / 60,
		Command:      runText(task),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render job script: %w", err)
	}
	return buf.String(), nil
}
