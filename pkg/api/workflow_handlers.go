package api

import (
	"archive/tar"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/cuemby/bee/pkg/archive"
	"github.com/cuemby/bee/pkg/cwl"
	"github.com/cuemby/bee/pkg/errs"
	"github.com/cuemby/bee/pkg/graphstore"
	"github.com/cuemby/bee/pkg/log"
	"github.com/cuemby/bee/pkg/taskmanager"
	"github.com/cuemby/bee/pkg/workflow"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const maxUploadBytes = 1 << 30 // 1 GiB, generous ceiling for a workflow_archive tarball

// WorkflowServer implements the Workflow Submission API (spec.md §6.1)
// and the TM -> WFM state-update callback (§6.2).
type WorkflowServer struct {
	wfm     *workflow.Service
	store   graphstore.Store
	archive *archive.Service
	workdir string
	logger  zerolog.Logger
}

// NewWorkflowServer registers §6.1/§6.2's WFM-facing routes on r.
func NewWorkflowServer(r *mux.Router, wfm *workflow.Service, store graphstore.Store, arch *archive.Service, workdir string) *WorkflowServer {
	s := &WorkflowServer{wfm: wfm, store: store, archive: arch, workdir: workdir, logger: log.WithComponent("api.workflow")}

	r.HandleFunc("/workflows", s.submit).Methods(http.MethodPost)
	r.HandleFunc("/workflows", s.list).Methods(http.MethodGet)
	r.HandleFunc("/workflows/{id}", s.get).Methods(http.MethodGet)
	r.HandleFunc("/workflows/{id}/start", s.start).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id}", s.patch).Methods(http.MethodPatch)
	r.HandleFunc("/workflows/{id}", s.cancel).Methods(http.MethodDelete)
	r.HandleFunc("/workflows/{id}/archive", s.downloadArchive).Methods(http.MethodGet)
	r.HandleFunc("/workflows/{wf_id}/update/", s.taskUpdate).Methods(http.MethodPut)
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"msg": msg, "status": "error"})
}

// statusFor maps the error taxonomy (spec.md §7) onto an HTTP status.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case isErr(err, errs.ErrNotFound):
		return http.StatusNotFound
	case isErr(err, errs.ErrBadRequest), isErr(err, errs.ErrBadTransition):
		return http.StatusBadRequest
	case isErr(err, errs.ErrBuildError):
		return http.StatusTeapot // 418, spec.md §6.1
	case isErr(err, errs.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func isErr(err, target error) bool {
	for e := err; e != nil; e = unwrap(e) {
		if e == target {
			return true
		}
	}
	return false
}

func unwrap(err error) error {
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return u.Unwrap()
	}
	return nil
}

// submit handles POST /workflows: a multipart form with wf_name,
// main_cwl (filename within workflow_archive), yaml (optional inputs),
// wf_filename, workdir, and workflow_archive (the tarball itself),
// spec.md §6.1.
func (s *WorkflowServer) submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("parse multipart form: %v", err))
		return
	}

	wfName := r.FormValue("wf_name")
	mainCWL := r.FormValue("main_cwl")
	workdir := r.FormValue("workdir")
	if workdir == "" {
		workdir = s.workdir
	}
	if wfName == "" || mainCWL == "" {
		writeError(w, http.StatusBadRequest, "wf_name and main_cwl are required")
		return
	}

	archiveFile, _, err := r.FormFile("workflow_archive")
	if err != nil {
		writeError(w, http.StatusBadRequest, "workflow_archive is required")
		return
	}
	defer archiveFile.Close()

	docBytes, err := extractFromTar(archiveFile, mainCWL)
	if err != nil {
		writeError(w, http.StatusTeapot, fmt.Sprintf("extract %s: %v", mainCWL, err))
		return
	}

	var inputsBytes []byte
	if yamlFile, _, err := r.FormFile("yaml"); err == nil {
		defer yamlFile.Close()
		inputsBytes, _ = io.ReadAll(yamlFile)
	}

	doc, err := cwl.ParseDocument(docBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	doc.Name = wfName
	inputs, err := cwl.ParseInputs(inputsBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	wfDir := filepath.Join(workdir, "workflows")
	wf, tasks := cwl.Build(doc, workdir, inputs)
	if err := os.MkdirAll(filepath.Join(wfDir, wf.ID), 0755); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.wfm.SubmitWorkflow(wf, tasks); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"wf_id": wf.ID, "status": "ok"})
}

// extractFromTar reads name's contents out of a tar stream (the
// workflow_archive tarball). Supports a plain (non-gzipped) tar only;
// a gzip-wrapped archive is not detected or decompressed anywhere and
// fails to parse.
func extractFromTar(r io.Reader, name string) ([]byte, error) {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("%s not found in archive", name)
		}
		if err != nil {
			return nil, err
		}
		if filepath.Base(hdr.Name) == name {
			return io.ReadAll(tr)
		}
	}
}

func (s *WorkflowServer) start(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.wfm.StartWorkflow(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type patchBody struct {
	Option string `json:"option"`
}

func (s *WorkflowServer) patch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body patchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	var err error
	switch body.Option {
	case "pause":
		err = s.wfm.PauseWorkflow(id)
	case "resume":
		err = s.wfm.ResumeWorkflow(r.Context(), id)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown option %q", body.Option))
		return
	}
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *WorkflowServer) cancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.wfm.CancelWorkflow(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *WorkflowServer) get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	wf, err := s.store.GetWorkflow(id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	states := make(map[string]string, len(wf.Tasks))
	for _, t := range wf.Tasks {
		states[t.ID] = string(t.State)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"wf_id":  wf.ID,
		"name":   wf.Name,
		"status": wf.State,
		"tasks":  states,
	})
}

func (s *WorkflowServer) list(w http.ResponseWriter, r *http.Request) {
	wfs, err := s.store.ListWorkflows()
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	out := make([]map[string]any, 0, len(wfs))
	for _, wf := range wfs {
		out = append(out, map[string]any{"name": wf.Name, "id": wf.ID, "status": wf.State})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *WorkflowServer) downloadArchive(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if s.archive == nil || !s.archive.Exists(id) {
		writeError(w, http.StatusNotFound, "archive not found")
		return
	}
	f, err := s.archive.Open(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.tgz"`, id))
	_, _ = io.Copy(w, f)
}

// taskUpdate handles the TM -> WFM callback (spec.md §6.2): PUT
// /workflows/{wf_id}/update/ with {task_id, job_state, metadata?}.
// Delivery is at-least-once; OnTaskState ignores an update whose state
// equals the task's stored state (spec.md §8 invariant 6).
func (s *WorkflowServer) taskUpdate(w http.ResponseWriter, r *http.Request) {
	wfID := mux.Vars(r)["wf_id"]
	var body taskmanager.Update
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	ctx := r.Context()
	if err := s.wfm.OnTaskState(ctx, wfID, body.TaskID, body.JobState); err != nil {
		s.logger.Warn().Err(err).Str("workflow_id", wfID).Str("task_id", body.TaskID).Msg("on_task_state failed")
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
