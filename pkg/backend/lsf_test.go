package backend

import (
	"context"
	"testing"

	"github.com/cuemby/bee/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLSFSubmitParsesBsubOutput(t *testing.T) {
	workdir := t.TempDir()
	task := &types.Task{ID: "t1", WorkflowID: "wf1", Name: "job", BaseCommand: []string{"echo", "hi"}}
	prepareTaskDir(t, workdir, task)

	runner := &fakeRunner{out: "Job <987> is submitted to queue <normal>.\n"}
	l := &LSF{Runner: runner, WorkDir: workdir}

	jobID, err := l.Submit(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, "987", jobID)
}

func TestLSFSubmitRejectsMalformedBsubOutput(t *testing.T) {
	workdir := t.TempDir()
	task := &types.Task{ID: "t1", WorkflowID: "wf1", Name: "job", BaseCommand: []string{"echo"}}
	prepareTaskDir(t, workdir, task)

	l := &LSF{Runner: &fakeRunner{out: "garbage"}, WorkDir: workdir}
	_, err := l.Submit(context.Background(), task)
	assert.Error(t, err)
}

func TestLSFTranslateMapsSuspendedStatesToPaused(t *testing.T) {
	l := &LSF{}
	for _, raw := range []RawState{"PSUSP", "USUSP", "SSUSP"} {
		got, ok := l.Translate(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, JobPaused, got, raw)
	}
}
