package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuemby/bee/pkg/backend"
	"github.com/cuemby/bee/pkg/taskmanager"
	"github.com/cuemby/bee/pkg/types"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTaskManagerTestServer(t *testing.T) *mux.Router {
	t.Helper()
	tm := taskmanager.New(taskmanager.Config{Backend: backend.NewSimple(t.TempDir())})
	router := mux.NewRouter()
	NewTaskManagerServer(router, tm)
	return router
}

func TestSubmitTaskAccepted(t *testing.T) {
	router := newTaskManagerTestServer(t)
	task := types.Task{ID: "t1", WorkflowID: "wf1", Name: "noop"}
	body, err := json.Marshal(task)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/tasks/submit", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestSubmitTaskRejectsMissingID(t *testing.T) {
	router := newTaskManagerTestServer(t)
	body, err := json.Marshal(types.Task{Name: "noop"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/tasks/submit", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelUnknownTaskReturnsNotFound(t *testing.T) {
	router := newTaskManagerTestServer(t)
	req := httptest.NewRequest(http.MethodDelete, "/tasks/no-such-task", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelAllReturnsOK(t *testing.T) {
	router := newTaskManagerTestServer(t)
	req := httptest.NewRequest(http.MethodDelete, "/tasks", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
