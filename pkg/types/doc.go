/*
Package types defines the core data structures shared by every BEE
component.

This package has no dependencies on the rest of the module: the Graph
Store, Scheduler, Task Manager, and Workflow Manager all exchange
values of these types rather than package-local structs, so a
Workflow or Task built by one component is exactly what the next
component reads.

# Core Types

Workflow is the top-level value object: an id, name, input/output
Ports, Requirement/Hint Tags, and the Tasks that make it up. A
Workflow's WorkflowState (Pending, Running, Paused, Failed, Archived)
tracks the workflow as a whole; it does not change once a workflow
reaches Archived.

Task is a single step of a Workflow. Its identity is the pair
(WorkflowID, ID); a restarted task gets a fresh ID with ParentID set
to the task it replaces, so restart lineage is traceable without
overwriting history. TaskState (WAITING, READY, RUNNING, PAUSED,
COMPLETED, FAILED, CANCELLED, RESTARTED) is distinct from any workload
backend's own job-state vocabulary — see pkg/backend for the
translation between the two.

Port is a typed data-flow endpoint: a task input, a task output, or a
workflow-level input/output. A port becomes Bound once it has a Value
or a Default; EffectiveValue resolves the two. Source records the id
of the producing port for a dependency edge derived at submission
time.

Tag attaches a class/key/value triple to a Task or Workflow —
Requirements (e.g. DockerRequirement, CheckpointRequirement,
MPIRequirement) are hard constraints and Hints are advisory; nothing
in the module rejects a task at submission over an unmet requirement. RequirementSpec flattens the
well-known scheduling tags (max_runtime, nodes, mem_per_node,
accelerators) into a Requirements struct for the Scheduler.

Resource, Capacity, and Allocation model the Scheduler's view of the
world: a Resource is a pool of schedulable capacity, a Capacity is a
requested or available share of one (with Add/Sub/Fits helpers for
the overlap arithmetic backfill and MARS both need), and an
Allocation binds a Task to a Resource over a start-time/max-runtime
interval. Allocation.Overlaps implements the standard interval
overlap test used throughout pkg/scheduler.

Event is a generic state-change notification shape. It is not what
pkg/events publishes (events.Event) nor what the TM -> WFM HTTP
callback carries (taskmanager.Update).

# Usage

Construct a Workflow and its Tasks (typically via pkg/cwl), hand them
to the Workflow Manager's SubmitWorkflow, and let the Graph Store,
Scheduler, and Task Manager carry the state machine forward from
there. Application code should treat Task.Allocation and Task.State
as owned by those components and read-only everywhere else.
*/
package types
