package types

import "time"

// TaskState is the canonical task lifecycle state, distinct from any
// workload backend's native state strings (see pkg/backend).
type TaskState string

const (
	TaskStateWaiting   TaskState = "WAITING"
	TaskStateReady     TaskState = "READY"
	TaskStateRunning   TaskState = "RUNNING"
	TaskStatePaused    TaskState = "PAUSED"
	TaskStateCompleted TaskState = "COMPLETED"
	TaskStateFailed    TaskState = "FAILED"
	TaskStateCancelled TaskState = "CANCELLED"
	TaskStateRestarted TaskState = "RESTARTED"
)

// Terminal reports whether s is one of the terminal task states.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCancelled:
		return true
	default:
		return false
	}
}

// Active reports whether s is one of the at-most-one-per-task-identity
// lifecycle states (READY|RUNNING|PAUSED).
func (s TaskState) Active() bool {
	switch s {
	case TaskStateReady, TaskStateRunning, TaskStatePaused:
		return true
	default:
		return false
	}
}

// WorkflowState is the lifecycle state of a workflow as a whole.
type WorkflowState string

const (
	WorkflowPending  WorkflowState = "Pending"
	WorkflowRunning  WorkflowState = "Running"
	WorkflowPaused   WorkflowState = "Paused"
	WorkflowFailed   WorkflowState = "Failed"
	WorkflowArchived WorkflowState = "Archived"
)

// Port is a StepInput or StepOutput: a typed data-flow endpoint attached
// to a task, or, for workflow-level inputs/outputs, to the workflow
// itself. A port's Value is nil until bound.
type Port struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Source   string `json:"source,omitempty"` // id of the producing port, if any
	Default  any    `json:"default,omitempty"`
	Value    any    `json:"value,omitempty"`
	Glob     string `json:"glob,omitempty"`   // output file discovery pattern
	Prefix   string `json:"prefix,omitempty"` // CLI binding hint
	Position int    `json:"position,omitempty"`
}

// Bound reports whether the port has a non-nil value or default — the
// condition under which a task may leave WAITING.
func (p *Port) Bound() bool {
	return p.Value != nil || p.Default != nil
}

// EffectiveValue returns Value if set, else Default, else nil.
func (p *Port) EffectiveValue() any {
	if p.Value != nil {
		return p.Value
	}
	return p.Default
}

// Tag is a Requirement (hard) or a Hint (soft): a class tag, a key, and a
// value. Requirements are hard constraints and hints are advisory; no
// code in this module rejects a task over an unmet requirement.
type Tag struct {
	Class string `json:"class"` // e.g. "MPIRequirement", "DockerRequirement", "CheckpointRequirement"
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// HasClass reports whether tags contains one with the given Class.
func HasClass(tags []Tag, class string) bool {
	for _, t := range tags {
		if t.Class == class {
			return true
		}
	}
	return false
}

// Requirements is the well-known subset of tags the Scheduler consults
// directly, flattened from a Task's Requirements slice at schedule time.
type Requirements struct {
	MaxRuntime   int64 `json:"max_runtime"` // seconds
	Nodes        int   `json:"nodes"`
	MemPerNode   int64 `json:"mem_per_node"` // bytes
	Accelerators int   `json:"accelerators,omitempty"`
}

// Task is a single step of a Workflow. Its identity derives from
// (WorkflowID, ID); names are unique within a workflow.
type Task struct {
	ID           string            `json:"id"`
	WorkflowID   string            `json:"workflow_id"`
	Name         string            `json:"name"`
	BaseCommand  []string          `json:"base_command"`
	Inputs       []*Port           `json:"inputs"`
	Outputs      []*Port           `json:"outputs"`
	Requirements []Tag             `json:"requirements,omitempty"`
	Hints        []Tag             `json:"hints,omitempty"`
	Stdout       string            `json:"stdout,omitempty"`
	State        TaskState         `json:"state"`
	ParentID     string            `json:"parent_id,omitempty"` // restart lineage
	Metadata     map[string]string `json:"metadata,omitempty"`

	// Allocation is populated by the Scheduler once a start time and
	// resource are decided for this task; nil until then.
	Allocation *Allocation `json:"allocation,omitempty"`
}

// RequirementSpec flattens the Requirements tag slice into the fields the
// scheduler needs (§4.2 "Required task fields").
func (t *Task) RequirementSpec() Requirements {
	var r Requirements
	for _, tag := range t.Requirements {
		switch tag.Key {
		case "max_runtime":
			r.MaxRuntime = toInt64(tag.Value)
		case "nodes":
			r.Nodes = int(toInt64(tag.Value))
		case "mem_per_node":
			r.MemPerNode = toInt64(tag.Value)
		case "accelerators":
			r.Accelerators = int(toInt64(tag.Value))
		}
	}
	return r
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// GetMetadata is get_task_metadata (§4.1).
func (t *Task) GetMetadata(key string) (string, bool) {
	if t.Metadata == nil {
		return "", false
	}
	v, ok := t.Metadata[key]
	return v, ok
}

// SetMetadata is set_task_metadata (§4.1).
func (t *Task) SetMetadata(key, value string) {
	if t.Metadata == nil {
		t.Metadata = make(map[string]string)
	}
	t.Metadata[key] = value
}

// Restarts returns the monotonic restart counter, 0 if unset. Reset only
// by reset_workflow (a fresh workflow id) — see DESIGN.md Open Questions.
func (t *Task) Restarts() int {
	v, ok := t.GetMetadata("restarts")
	if !ok || v == "" {
		return 0
	}
	n := 0
	for _, c := range v {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// Workflow is the top-level value object: an id, name, input/output
// parameters, requirements/hints, and a set of tasks. Immutable except for
// task state.
type Workflow struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Inputs       []*Port           `json:"inputs"`
	Outputs      []*Port           `json:"outputs"`
	Requirements []Tag             `json:"requirements,omitempty"`
	Hints        []Tag             `json:"hints,omitempty"`
	Tasks        []*Task           `json:"tasks"`
	State        WorkflowState     `json:"state"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`

	// WorkDir is the on-disk directory holding the cwl document, inputs,
	// and per-task stdout/stderr/script files (§6.5).
	WorkDir string `json:"workdir,omitempty"`
}

// Resource describes a schedulable capacity vector: nodes, cores-per-node,
// memory-per-node, and an optional accelerator count.
type Resource struct {
	ID           string `json:"id"`
	Nodes        int    `json:"nodes"`
	CoresPerNode int    `json:"cores_per_node"`
	MemPerNode   int64  `json:"mem_per_node"`
	Accelerators int    `json:"accelerators,omitempty"`
}

// Capacity is the per-task requested (or available) share of a Resource,
// used for the overlap/remaining-capacity math in §4.2.
type Capacity struct {
	Nodes        int   `json:"nodes"`
	MemPerNode   int64 `json:"mem_per_node"`
	Accelerators int   `json:"accelerators,omitempty"`
}

// Sub returns c minus o, clamped at zero per field.
func (c Capacity) Sub(o Capacity) Capacity {
	out := Capacity{
		Nodes:        c.Nodes - o.Nodes,
		MemPerNode:   c.MemPerNode - o.MemPerNode,
		Accelerators: c.Accelerators - o.Accelerators,
	}
	if out.Nodes < 0 {
		out.Nodes = 0
	}
	if out.MemPerNode < 0 {
		out.MemPerNode = 0
	}
	if out.Accelerators < 0 {
		out.Accelerators = 0
	}
	return out
}

// Add returns the element-wise sum of c and o.
func (c Capacity) Add(o Capacity) Capacity {
	return Capacity{
		Nodes:        c.Nodes + o.Nodes,
		MemPerNode:   c.MemPerNode + o.MemPerNode,
		Accelerators: c.Accelerators + o.Accelerators,
	}
}

// Fits reports whether need fits within c (every field of need <= c).
func (c Capacity) Fits(need Capacity) bool {
	return need.Nodes <= c.Nodes && need.MemPerNode <= c.MemPerNode && need.Accelerators <= c.Accelerators
}

// Capacity returns r's total capacity vector.
func (r *Resource) Capacity() Capacity {
	return Capacity{Nodes: r.Nodes, MemPerNode: r.MemPerNode, Accelerators: r.Accelerators}
}

// Allocation is a reservation of resource capacity over a time interval,
// attached to a task. Scheduling times are opaque integer seconds from an
// arbitrary but fixed epoch chosen at the start of a scheduling batch
// (§9 Design Notes).
type Allocation struct {
	TaskID     string   `json:"task_id"`
	ResourceID string   `json:"resource_id"`
	StartTime  int64    `json:"start_time"`
	MaxRuntime int64    `json:"max_runtime"`
	Requested  Capacity `json:"requested_capacity"`
	Epoch      int64    `json:"epoch"` // the batch's Now; StartTime is on the same time base, not an offset from it
}

// EndTime returns StartTime + MaxRuntime.
func (a *Allocation) EndTime() int64 { return a.StartTime + a.MaxRuntime }

// Overlaps reports whether a's interval overlaps [s, s+d) per the §4.2
// overlap test: s < s'+d' && s' < s+d.
func (a *Allocation) Overlaps(s, d int64) bool {
	return s < a.EndTime() && a.StartTime < s+d
}

// Event is a generic state-change notification shape. The broker in
// pkg/events publishes its own events.Event, and the TM->WFM callback
// carries taskmanager.Update; neither uses this type.
type Event struct {
	Type       string            `json:"type"`
	Timestamp  time.Time         `json:"timestamp"`
	WorkflowID string            `json:"workflow_id"`
	TaskID     string            `json:"task_id,omitempty"`
	Message    string            `json:"message,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}
