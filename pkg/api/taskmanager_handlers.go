package api

import (
	"encoding/json"
	"net/http"

	"github.com/cuemby/bee/pkg/taskmanager"
	"github.com/cuemby/bee/pkg/types"
	"github.com/gorilla/mux"
)

// TaskManagerServer implements the Task Manager API (spec.md §6.2):
// submission from the WFM into the TM's submit_queue, and cancellation
// of queued or running jobs.
type TaskManagerServer struct {
	tm *taskmanager.TaskManager
}

// NewTaskManagerServer registers §6.2's TM-facing routes on r.
func NewTaskManagerServer(r *mux.Router, tm *taskmanager.TaskManager) *TaskManagerServer {
	s := &TaskManagerServer{tm: tm}
	r.HandleFunc("/tasks/submit", s.submit).Methods(http.MethodPost)
	r.HandleFunc("/tasks", s.cancelAll).Methods(http.MethodDelete)
	r.HandleFunc("/tasks/{id}", s.cancelOne).Methods(http.MethodDelete)
	return s
}

// submit handles POST /tasks/submit: the WFM hands over a fully
// resolved *types.Task (ports bound, allocation attached by the
// Scheduler) for the TM to place on its submit_queue, spec.md §4.3.
func (s *TaskManagerServer) submit(w http.ResponseWriter, r *http.Request) {
	var task types.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		writeError(w, http.StatusBadRequest, "malformed task")
		return
	}
	if task.ID == "" {
		writeError(w, http.StatusBadRequest, "task id is required")
		return
	}
	s.tm.Submit(&task)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "ok"})
}

// cancelAll handles DELETE /tasks: cancel every queued/running job, used
// when a workflow is cancelled wholesale (spec.md §4.4).
func (s *TaskManagerServer) cancelAll(w http.ResponseWriter, r *http.Request) {
	s.tm.CancelAll(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// cancelOne handles DELETE /tasks/{id}: cancel a single job.
func (s *TaskManagerServer) cancelOne(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.tm.Cancel(r.Context(), id) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
