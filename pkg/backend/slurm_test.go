package backend

import (
	"context"
	"testing"

	"github.com/cuemby/bee/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner records the commands passed to it and returns canned
// output, so Slurm/LSF's Submit/Query/Cancel can be tested without a
// real scheduler CLI on PATH.
type fakeRunner struct {
	out string
	err error

	lastName string
	lastArgs []string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	f.lastName = name
	f.lastArgs = args
	return f.out, f.err
}

func TestSlurmSubmitParsesJobID(t *testing.T) {
	workdir := t.TempDir()
	task := &types.Task{ID: "t1", WorkflowID: "wf1", Name: "job", BaseCommand: []string{"echo", "hi"}}
	prepareTaskDir(t, workdir, task)

	runner := &fakeRunner{out: "12345\n"}
	s := &Slurm{Runner: runner, WorkDir: workdir}

	jobID, err := s.Submit(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, "12345", jobID)
	assert.Equal(t, "sbatch", runner.lastName)
}

func TestSlurmQueryReportsUnknownWhenNotQueued(t *testing.T) {
	s := &Slurm{Runner: &fakeRunner{out: "\n"}, WorkDir: t.TempDir()}
	state, err := s.Query(context.Background(), "12345")
	require.NoError(t, err)
	assert.Equal(t, RawState("UNKNOWN"), state)
}

func TestSlurmTranslateMapsCanonicalStates(t *testing.T) {
	s := &Slurm{}
	cases := map[RawState]JobState{
		"PENDING":   JobRunning,
		"RUNNING":   JobRunning,
		"COMPLETED": JobCompleted,
		"FAILED":    JobFailed,
		"CANCELLED": JobCancelled,
	}
	for raw, want := range cases {
		got, ok := s.Translate(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}

	_, ok := s.Translate("UNKNOWN")
	assert.False(t, ok)
}

func TestParseJobID(t *testing.T) {
	id, err := ParseJobID(" 42 \n")
	require.NoError(t, err)
	assert.Equal(t, 42, id)

	_, err = ParseJobID("not-a-number")
	assert.Error(t, err)
}
