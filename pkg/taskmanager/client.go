package taskmanager

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/bee/pkg/log"
	"github.com/cuemby/bee/pkg/types"
)

// Client is the WFM-side handle onto a remote Task Manager process: it
// implements workflow.Submitter over the Task Manager API (spec.md
// §6.2) so the Workflow Manager never needs to hold a *TaskManager
// directly. Mirrors HTTPReporter's plain net/http.Client approach for
// the same reason (see DESIGN.md): a handful of small JSON requests to
// one upstream host needs no retry/client library.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient returns a Client pointed at a Task Manager's baseURL.
func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTP: &http.Client{Timeout: 10 * time.Second}}
}

// Submit hands task to the Task Manager's submit_queue (POST
// /tasks/submit). Errors are logged rather than returned: Submitter's
// signature matches the in-process TaskManager.Submit, which is also
// fire-and-forget, so the remote leg fails the same way — at the next
// GetReadyTasks cycle (spec.md §4.3) a stuck task shows up as one that
// never started running and can be resubmitted.
func (c *Client) Submit(task *types.Task) {
	body, err := json.Marshal(task)
	if err != nil {
		log.Logger.Error().Err(err).Str("task_id", task.ID).Msg("marshal task for submit")
		return
	}
	req, err := http.NewRequest(http.MethodPost, c.BaseURL+"/tasks/submit", bytes.NewReader(body))
	if err != nil {
		log.Logger.Error().Err(err).Msg("build submit request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		log.Logger.Error().Err(err).Str("task_id", task.ID).Msg("submit task")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Logger.Error().Str("task_id", task.ID).Str("status", resp.Status).Msg("task manager rejected submit")
	}
}

// Cancel asks the Task Manager to cancel taskID (DELETE /tasks/{id}).
func (c *Client) Cancel(ctx context.Context, taskID string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, fmt.Sprintf("%s/tasks/%s", c.BaseURL, taskID), nil)
	if err != nil {
		return false
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 300
}
