package archive

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/cuemby/bee/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readTarEntries(t *testing.T, path string) map[string][]byte {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	entries := map[string][]byte{}
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if hdr.Typeflag == tar.TypeDir {
			continue
		}
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		entries[hdr.Name] = data
	}
	return entries
}

func TestArchiveBundlesWorkflowDirAndManifest(t *testing.T) {
	workdir := t.TempDir()
	wf := &types.Workflow{
		ID:      "wf-1",
		Name:    "demo",
		WorkDir: workdir,
		State:   types.WorkflowArchived,
		Tasks:   []*types.Task{{ID: "A", State: types.TaskStateCompleted}},
	}

	taskDir := filepath.Join(workdir, "workflows", wf.ID, "A-A")
	require.NoError(t, os.MkdirAll(taskDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(taskDir, "stdout.log"), []byte("hello\n"), 0644))

	archiveRoot := t.TempDir()
	svc, err := New(archiveRoot)
	require.NoError(t, err)

	dest, err := svc.Archive(wf)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(archiveRoot, "wf-1.tgz"), dest)
	assert.True(t, svc.Exists(wf.ID))

	entries := readTarEntries(t, dest)
	assert.Equal(t, []byte("hello\n"), entries[filepath.ToSlash(filepath.Join("workflow", "A-A", "stdout.log"))])

	var manifest archiveManifest
	require.NoError(t, json.Unmarshal(entries["manifest.json"], &manifest))
	assert.Equal(t, "wf-1", manifest.WorkflowID)
	assert.Equal(t, "COMPLETED", manifest.TaskStates["A"])
}

func TestArchiveToleratesMissingWorkflowDir(t *testing.T) {
	archiveRoot := t.TempDir()
	svc, err := New(archiveRoot)
	require.NoError(t, err)

	wf := &types.Workflow{ID: "wf-empty", Name: "none", WorkDir: t.TempDir()}
	dest, err := svc.Archive(wf)
	require.NoError(t, err)

	entries := readTarEntries(t, dest)
	_, hasManifest := entries["manifest.json"]
	assert.True(t, hasManifest)
}

func TestExistsAndOpen(t *testing.T) {
	archiveRoot := t.TempDir()
	svc, err := New(archiveRoot)
	require.NoError(t, err)

	assert.False(t, svc.Exists("no-such-workflow"))

	wf := &types.Workflow{ID: "wf-2", Name: "x", WorkDir: t.TempDir()}
	_, err = svc.Archive(wf)
	require.NoError(t, err)

	assert.True(t, svc.Exists("wf-2"))
	f, err := svc.Open("wf-2")
	require.NoError(t, err)
	defer f.Close()
}
