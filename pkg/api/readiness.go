package api

import (
	"net/http"

	"github.com/cuemby/bee/pkg/health"
	"github.com/gorilla/mux"
)

// ReadinessServer exposes a liveness/readiness endpoint backed by a
// health.Checker: the Task Manager's genuine use of pkg/health, probing
// that the configured workload backend's CLI is actually on PATH
// (spec.md §6.3's Slurm/LSF/Simple backends all shell out; a missing
// binary should surface as unready rather than as a mystery submit
// failure on the first real job).
type ReadinessServer struct {
	checker health.Checker
	status  *health.Status
	cfg     health.Config
}

// NewReadinessServer registers GET /ready on r, backed by checker.
func NewReadinessServer(r *mux.Router, checker health.Checker) *ReadinessServer {
	cfg := health.DefaultConfig()
	cfg.Retries = 1 // a single failed probe reports unready
	s := &ReadinessServer{checker: checker, status: health.NewStatus(), cfg: cfg}
	r.HandleFunc("/ready", s.ready).Methods(http.MethodGet)
	return s
}

func (s *ReadinessServer) ready(w http.ResponseWriter, r *http.Request) {
	result := s.checker.Check(r.Context())
	s.status.Update(result, s.cfg)

	status := http.StatusOK
	if !s.status.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"healthy":              s.status.Healthy,
		"consecutive_failures": s.status.ConsecutiveFailures,
		"message":              result.Message,
	})
}
