package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/bee/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prepareTaskDir(t *testing.T, workdir string, task *types.Task) {
	t.Helper()
	dir := filepath.Join(workdir, "workflows", task.WorkflowID)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, task.Name+"-"+task.ID), 0755))
}

func TestSimpleBackendCompletesSuccessfulJob(t *testing.T) {
	workdir := t.TempDir()
	task := &types.Task{ID: "t1", WorkflowID: "wf1", Name: "ok", BaseCommand: []string{"true"}}
	prepareTaskDir(t, workdir, task)

	be := NewSimple(workdir)
	jobID, err := be.Submit(context.Background(), task)
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	waitForTerminal(t, be, jobID)

	raw, err := be.Query(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, RawState("exit0"), raw)

	js, ok := be.Translate(raw)
	require.True(t, ok)
	assert.Equal(t, JobCompleted, js)
}

func TestSimpleBackendReportsFailedJob(t *testing.T) {
	workdir := t.TempDir()
	task := &types.Task{ID: "t2", WorkflowID: "wf1", Name: "bad", BaseCommand: []string{"false"}}
	prepareTaskDir(t, workdir, task)

	be := NewSimple(workdir)
	jobID, err := be.Submit(context.Background(), task)
	require.NoError(t, err)

	waitForTerminal(t, be, jobID)

	raw, err := be.Query(context.Background(), jobID)
	require.NoError(t, err)
	js, ok := be.Translate(raw)
	require.True(t, ok)
	assert.Equal(t, JobFailed, js)
}

func TestSimpleBackendQueryUnknownJob(t *testing.T) {
	be := NewSimple(t.TempDir())
	raw, err := be.Query(context.Background(), "no-such-job")
	require.NoError(t, err)
	assert.Equal(t, RawState("UNKNOWN"), raw)
}

func waitForTerminal(t *testing.T, be *Simple, jobID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		raw, err := be.Query(context.Background(), jobID)
		require.NoError(t, err)
		if raw != "running" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal state in time")
}
