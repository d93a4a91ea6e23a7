// Package errs defines the error taxonomy shared across the orchestration
// core (§7): sentinel values wrapped with fmt.Errorf("...: %w", ...) in
// the teacher's idiom, mapped to HTTP status codes at the API boundary by
// pkg/api's isErr, which walks the Unwrap chain.
package errs

import "errors"

var (
	// ErrNotFound is an unknown workflow id or task id (HTTP 404).
	ErrNotFound = errors.New("not found")

	// ErrBadRequest is a malformed submission or invalid state transition (400).
	ErrBadRequest = errors.New("bad request")

	// ErrBadTransition is a specific BadRequest: an invalid workflow state
	// machine transition.
	ErrBadTransition = errors.New("bad transition")

	// ErrInvariant is an internal consistency violation; the caller should
	// abort the current operation, log, and surface 500.
	ErrInvariant = errors.New("invariant violation")

	// ErrStoreUnavailable means the graph store backend is down; retry
	// with backoff in TM polling paths, 503 on client paths.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrBackendError means the workload manager is unreachable or
	// returned an unknown state; the TM escalates to ZOMBIE -> FAILED
	// after N retries.
	ErrBackendError = errors.New("backend error")

	// ErrSubmitFail means the backend refused the job outright; the task
	// transitions directly to FAILED without entering RUNNING.
	ErrSubmitFail = errors.New("submit failed")

	// ErrBuildError means the container was not available at submission
	// prep time; workflow submission is rejected (418).
	ErrBuildError = errors.New("build error")
)
