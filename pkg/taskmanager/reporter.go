package taskmanager

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Update is the body of the TM -> WFM callback (spec.md §6.2):
// PUT /workflows/{wf_id}/update/ with {task_id, job_state, metadata?}.
type Update struct {
	TaskID   string            `json:"task_id"`
	JobState string            `json:"job_state"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Reporter delivers a task state update upstream to the Workflow
// Manager.
type Reporter interface {
	Report(workflowID string, update Update) error
}

// HTTPReporter PUTs updates to the WFM's HTTP endpoint. A single PUT
// with a small JSON body needs no retry/client library beyond
// net/http (see DESIGN.md).
type HTTPReporter struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPReporter(baseURL string) *HTTPReporter {
	return &HTTPReporter{BaseURL: baseURL, Client: &http.Client{Timeout: 10 * time.Second}}
}

func (r *HTTPReporter) Report(workflowID string, update Update) error {
	body, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}

	url := fmt.Sprintf("%s/workflows/%s/update/", r.BaseURL, workflowID)
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return fmt.Errorf("put update: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("wfm update rejected: %s", resp.Status)
	}
	return nil
}
