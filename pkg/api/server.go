// Package api implements BEE's HTTP surface: the Workflow Submission
// API (spec.md §6.1) and the Task Manager API (§6.2). The teacher
// speaks gRPC end to end; spec.md §6 specifies a plain HTTP contract
// (multipart POST, JSON, a streamed tarball) for both the client-facing
// API and the WFM<->TM channel, so routing here is grounded on
// pulumi-pulumi's and lookatitude-beluga-ai's gorilla/mux usage instead
// — the pack's HTTP routers, since the teacher's own gRPC method
// dispatch can't express this. The request-timing/logging wrapper is
// grounded on the teacher's pkg/api/interceptor.go gRPC interceptor,
// translated into an http.Handler middleware.
package api

import (
	"net/http"
	"time"

	"github.com/cuemby/bee/pkg/log"
	"github.com/cuemby/bee/pkg/metrics"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// loggingMiddleware times every request and records it to
// metrics.APIRequestsTotal/APIRequestDuration, the HTTP-handler
// equivalent of the teacher's gRPC unary interceptor.
func loggingMiddleware(logger zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			dur := time.Since(start)

			metrics.APIRequestsTotal.WithLabelValues(r.Method, http.StatusText(sw.status)).Inc()
			metrics.APIRequestDuration.WithLabelValues(r.Method).Observe(dur.Seconds())
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", sw.status).
				Dur("duration", dur).
				Msg("request")
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// NewRouter builds the base *mux.Router with logging middleware and the
// Prometheus /metrics endpoint wired in; callers register their own
// route groups (WorkflowServer, TaskManagerServer) on top of it.
func NewRouter(component string) *mux.Router {
	r := mux.NewRouter()
	r.Use(loggingMiddleware(log.WithComponent(component)))
	r.Handle("/metrics", metrics.Handler())
	r.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}
