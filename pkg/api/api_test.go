package api

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuemby/bee/pkg/archive"
	"github.com/cuemby/bee/pkg/backend"
	"github.com/cuemby/bee/pkg/graphstore"
	"github.com/cuemby/bee/pkg/scheduler"
	"github.com/cuemby/bee/pkg/taskmanager"
	"github.com/cuemby/bee/pkg/types"
	"github.com/cuemby/bee/pkg/workflow"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const demoCWL = `
name: will-be-overwritten
inputs:
  - id: wf_in
    type: string
    default: hi
steps:
  - id: a
    base_command: ["echo"]
    outputs:
      - id: a_out
`

func buildArchiveTar(t *testing.T, filename, contents string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{Name: filename, Mode: 0644, Size: int64(len(contents))}
	require.NoError(t, tw.WriteHeader(hdr))
	_, err := tw.Write([]byte(contents))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	return &buf
}

func submitMultipart(t *testing.T, wfName string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("wf_name", wfName))
	require.NoError(t, w.WriteField("main_cwl", "main.cwl"))

	tarBuf := buildArchiveTar(t, "main.cwl", demoCWL)
	part, err := w.CreateFormFile("workflow_archive", "wf.tar")
	require.NoError(t, err)
	_, err = part.Write(tarBuf.Bytes())
	require.NoError(t, err)
	boundary := w.Boundary()
	require.NoError(t, w.Close())
	return &body, boundary
}

type noopSubmitter struct{}

func (noopSubmitter) Submit(task *types.Task)                        {}
func (noopSubmitter) Cancel(ctx context.Context, taskID string) bool { return true }

func newTestServer(t *testing.T) (*mux.Router, *workflow.Service, graphstore.Store) {
	t.Helper()
	store, err := graphstore.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	arch, err := archive.New(t.TempDir())
	require.NoError(t, err)

	wfm := workflow.New(workflow.Config{
		Store:      store,
		TM:         noopSubmitter{},
		Archiver:   arch,
		Resources:  []*types.Resource{{ID: "r1", Nodes: 4, CoresPerNode: 1, MemPerNode: 1 << 30}},
		ChooseOpts: scheduler.ChooseOptions{Algorithm: "fcfs"},
	})

	router := mux.NewRouter()
	NewWorkflowServer(router, wfm, store, arch, t.TempDir())
	return router, wfm, store
}

func TestSubmitStartAndGetWorkflow(t *testing.T) {
	router, _, _ := newTestServer(t)

	body, boundary := submitMultipart(t, "demo")
	req := httptest.NewRequest(http.MethodPost, "/workflows", body)
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	wfID := created["wf_id"]
	require.NotEmpty(t, wfID)

	startReq := httptest.NewRequest(http.MethodPost, "/workflows/"+wfID+"/start", nil)
	startW := httptest.NewRecorder()
	router.ServeHTTP(startW, startReq)
	assert.Equal(t, http.StatusOK, startW.Code, startW.Body.String())

	getReq := httptest.NewRequest(http.MethodGet, "/workflows/"+wfID, nil)
	getW := httptest.NewRecorder()
	router.ServeHTTP(getW, getReq)
	assert.Equal(t, http.StatusOK, getW.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(getW.Body.Bytes(), &got))
	assert.Equal(t, wfID, got["wf_id"])
}

func TestSubmitRejectsMissingFields(t *testing.T) {
	router, _, _ := newTestServer(t)
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/workflows", &body)
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+w.Boundary())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUnknownWorkflowReturnsNotFound(t *testing.T) {
	router, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/workflows/no-such-id", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTaskUpdateCallbackDrivesWorkflowForward(t *testing.T) {
	router, wfm, store := newTestServer(t)

	wfObj := buildRunningWorkflow(t, wfm, store)

	update := taskmanager.Update{TaskID: "a", JobState: string(backend.JobCompleted)}
	buf, err := json.Marshal(update)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/workflows/"+wfObj+"/update/", bytes.NewReader(buf))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func buildRunningWorkflow(t *testing.T, wfm *workflow.Service, store graphstore.Store) string {
	t.Helper()
	wf := &types.Workflow{ID: "wf-cb", Name: "cb"}
	a := &types.Task{ID: "a", Name: "a"}
	require.NoError(t, wfm.SubmitWorkflow(wf, []*types.Task{a}))
	require.NoError(t, wfm.StartWorkflow(context.Background(), wf.ID))
	return wf.ID
}
