package graphstore

import (
	"fmt"
	"strconv"

	"github.com/cuemby/bee/pkg/errs"
	"github.com/cuemby/bee/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// InitializeWorkflow creates the workflow plus its input/output nodes.
// Fails if the id is already present.
func (s *BoltStore) InitializeWorkflow(wf *types.Workflow) error {
	_, err := s.Apply("initialize_workflow", func() (interface{}, error) {
		return nil, s.db.Update(func(tx *bolt.Tx) error {
			if tx.Bucket(bucketWorkflows).Get([]byte(wf.ID)) != nil {
				return fmt.Errorf("workflow %s: %w", wf.ID, errs.ErrInvariant)
			}
			cp := *wf
			cp.Tasks = nil // tasks are loaded individually via LoadTask
			if cp.State == "" {
				cp.State = types.WorkflowPending
			}
			return s.putWorkflow(tx, &cp)
		})
	})
	return err
}

// LoadTask adds a task node and materialises BEGINS/DEPENDS edges
// derived from matching port sources (§4.1 dependency derivation
// algorithm). Idempotent: loading the same task id twice is a no-op.
func (s *BoltStore) LoadTask(wfID string, task *types.Task) error {
	_, err := s.Apply("load_task", func() (interface{}, error) {
		return nil, s.db.Update(func(tx *bolt.Tx) error {
			wf, err := s.getWorkflowTx(tx, wfID)
			if err != nil {
				return err
			}
			if tx.Bucket(bucketTasks).Get(key(wfID, task.ID)) != nil {
				return nil // idempotent on retry
			}
			if task.State == "" {
				task.State = types.TaskStateWaiting
			}
			task.WorkflowID = wfID

			others, err := s.listTasksTx(tx, wfID)
			if err != nil {
				return err
			}

			a := &adjacency{}
			// (a) each input's source vs. every existing output id, or a workflow input id.
			for _, in := range task.Inputs {
				if in.Source == "" {
					continue
				}
				matched := false
				for _, other := range others {
					for _, out := range other.Outputs {
						if out.ID == in.Source {
							a.addIn(other.ID)
							oa := s.getOrInitAdj(wfID, other.ID)
							oa.addOut(task.ID)
							if err := s.persistAdj(tx, wfID, other.ID, oa); err != nil {
								return err
							}
							s.setAdj(wfID, other.ID, oa)
							matched = true
						}
					}
				}
				if !matched {
					for _, wfIn := range wf.Inputs {
						if wfIn.ID == in.Source {
							a.Begins = true
						}
					}
				}
			}
			// (b) symmetric: each output vs. existing inputs of other tasks.
			for _, out := range task.Outputs {
				for _, other := range others {
					for _, in := range other.Inputs {
						if in.Source == out.ID {
							a.addOut(other.ID)
							oa := s.getOrInitAdj(wfID, other.ID)
							oa.addIn(task.ID)
							if err := s.persistAdj(tx, wfID, other.ID, oa); err != nil {
								return err
							}
							s.setAdj(wfID, other.ID, oa)
						}
					}
				}
			}

			if err := s.putTask(tx, wfID, task); err != nil {
				return err
			}
			if err := s.persistAdj(tx, wfID, task.ID, a); err != nil {
				return err
			}
			s.setAdj(wfID, task.ID, a)
			return nil
		})
	})
	return err
}

func (s *BoltStore) getOrInitAdj(wfID, taskID string) *adjacency {
	if a := s.getAdj(wfID, taskID); a != nil {
		cp := *a
		cp.In = append([]string{}, a.In...)
		cp.Out = append([]string{}, a.Out...)
		return &cp
	}
	return &adjacency{}
}

// ExecuteWorkflow sets every workflow-entry task with no unsatisfied
// dependencies from WAITING to READY, filling its inputs from workflow
// inputs or defaults.
func (s *BoltStore) ExecuteWorkflow(wfID string) error {
	_, err := s.Apply("execute_workflow", func() (interface{}, error) {
		return nil, s.db.Update(func(tx *bolt.Tx) error {
			wf, err := s.getWorkflowTx(tx, wfID)
			if err != nil {
				return err
			}
			wf.State = types.WorkflowRunning
			if err := s.putWorkflow(tx, wf); err != nil {
				return err
			}
			tasks, err := s.listTasksTx(tx, wfID)
			if err != nil {
				return err
			}
			for _, t := range tasks {
				a := s.getAdj(wfID, t.ID)
				if a == nil || !a.Begins || t.State != types.TaskStateWaiting {
					continue
				}
				for _, in := range t.Inputs {
					if in.Value != nil {
						continue
					}
					for _, wfIn := range wf.Inputs {
						if wfIn.ID == in.Source {
							in.Value = wfIn.EffectiveValue()
						}
					}
				}
				if allBound(t) {
					t.State = types.TaskStateReady
				}
				if err := s.putTask(tx, wfID, t); err != nil {
					return err
				}
			}
			return nil
		})
	})
	return err
}

func allBound(t *types.Task) bool {
	for _, in := range t.Inputs {
		if !in.Bound() {
			return false
		}
	}
	return true
}

// PauseWorkflow maps RUNNING -> PAUSED.
func (s *BoltStore) PauseWorkflow(wfID string) error {
	return s.setWorkflowState(wfID, types.WorkflowRunning, types.WorkflowPaused)
}

// ResumeWorkflow maps PAUSED -> RUNNING.
func (s *BoltStore) ResumeWorkflow(wfID string) error {
	return s.setWorkflowState(wfID, types.WorkflowPaused, types.WorkflowRunning)
}

func (s *BoltStore) setWorkflowState(wfID string, from, to types.WorkflowState) error {
	_, err := s.Apply("set_workflow_state", func() (interface{}, error) {
		return nil, s.db.Update(func(tx *bolt.Tx) error {
			wf, err := s.getWorkflowTx(tx, wfID)
			if err != nil {
				return err
			}
			if wf.State != from {
				return fmt.Errorf("workflow %s: cannot move %s -> %s: %w", wfID, wf.State, to, errs.ErrBadTransition)
			}
			wf.State = to
			return s.putWorkflow(tx, wf)
		})
	})
	return err
}

// ResetWorkflow sets every task to WAITING, clears all port values, and
// reassigns the workflow id to newID.
func (s *BoltStore) ResetWorkflow(wfID, newID string) error {
	_, err := s.Apply("reset_workflow", func() (interface{}, error) {
		return nil, s.db.Update(func(tx *bolt.Tx) error {
			wf, err := s.getWorkflowTx(tx, wfID)
			if err != nil {
				return err
			}
			tasks, err := s.listTasksTx(tx, wfID)
			if err != nil {
				return err
			}

			oldID := wf.ID
			wf.ID = newID
			wf.State = types.WorkflowPending
			for _, p := range wf.Inputs {
				p.Value = nil
			}
			for _, p := range wf.Outputs {
				p.Value = nil
			}
			if err := s.putWorkflow(tx, wf); err != nil {
				return err
			}
			if err := tx.Bucket(bucketWorkflows).Delete([]byte(oldID)); err != nil {
				return err
			}

			for _, t := range tasks {
				t.WorkflowID = newID
				t.State = types.TaskStateWaiting
				t.Metadata = nil
				for _, p := range t.Inputs {
					p.Value = nil
				}
				for _, p := range t.Outputs {
					p.Value = nil
				}
				if err := s.putTask(tx, newID, t); err != nil {
					return err
				}
				if err := s.deleteTaskTx(tx, oldID, t.ID); err != nil {
					return err
				}
				a := s.getOrInitAdj(oldID, t.ID)
				if err := s.persistAdj(tx, newID, t.ID, a); err != nil {
					return err
				}
				s.setAdj(newID, t.ID, a)
				if err := tx.Bucket(bucketEdges).Delete(key(oldID, t.ID)); err != nil {
					return err
				}
			}
			delete(s.adj, oldID)
			return nil
		})
	})
	return err
}

// InitializeReadyTasks transitions every WAITING task whose every input
// port has a non-null value to READY, returning the transitioned tasks.
func (s *BoltStore) InitializeReadyTasks(wfID string) ([]*types.Task, error) {
	result, err := s.Apply("initialize_ready_tasks", func() (interface{}, error) {
		var ready []*types.Task
		err := s.db.Update(func(tx *bolt.Tx) error {
			tasks, err := s.listTasksTx(tx, wfID)
			if err != nil {
				return err
			}
			for _, t := range tasks {
				if t.State == types.TaskStateWaiting && allBound(t) {
					t.State = types.TaskStateReady
					if err := s.putTask(tx, wfID, t); err != nil {
						return err
					}
					ready = append(ready, t)
				}
			}
			return nil
		})
		return ready, err
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.([]*types.Task), nil
}

// FinalizeTask propagates t's output values to downstream inputs and to
// matching workflow outputs, applies defaults where still null, runs
// InitializeReadyTasks, and returns the new ready set.
func (s *BoltStore) FinalizeTask(wfID, taskID string) ([]*types.Task, error) {
	result, err := s.Apply("finalize_task", func() (interface{}, error) {
		var ready []*types.Task
		err := s.db.Update(func(tx *bolt.Tx) error {
			t, err := s.getTaskTx(tx, wfID, taskID)
			if err != nil {
				return err
			}
			if !t.State.Terminal() {
				return fmt.Errorf("finalize_task %s: not terminal (%s): %w", taskID, t.State, errs.ErrInvariant)
			}
			wf, err := s.getWorkflowTx(tx, wfID)
			if err != nil {
				return err
			}
			others, err := s.listTasksTx(tx, wfID)
			if err != nil {
				return err
			}

			changed := map[string]*types.Task{}
			for _, o := range t.Outputs {
				if o.Value == nil {
					continue
				}
				for _, other := range others {
					if other.ID == t.ID {
						continue
					}
					for _, in := range other.Inputs {
						if in.Source == o.ID {
							in.Value = o.Value
							changed[other.ID] = other
						}
					}
				}
			}

			// Inputs whose every sibling dependency is now COMPLETED and
			// which are still null: copy defaults.
			for _, other := range others {
				for _, in := range other.Inputs {
					if in.Value != nil || in.Source == "" {
						continue
					}
					producer := findProducer(others, in.Source)
					if producer != nil && producer.State == types.TaskStateCompleted && in.Default != nil {
						in.Value = in.Default
						changed[other.ID] = other
					}
				}
			}

			for _, wfOut := range wf.Outputs {
				for _, o := range t.Outputs {
					if wfOut.Source == o.ID && o.Value != nil {
						wfOut.Value = o.Value
					}
				}
			}

			for _, other := range changed {
				if err := s.putTask(tx, wfID, other); err != nil {
					return err
				}
			}
			if err := s.putWorkflow(tx, wf); err != nil {
				return err
			}

			tasks, err := s.listTasksTx(tx, wfID)
			if err != nil {
				return err
			}
			for _, ct := range tasks {
				if ct.State == types.TaskStateWaiting && allBound(ct) {
					ct.State = types.TaskStateReady
					if err := s.putTask(tx, wfID, ct); err != nil {
						return err
					}
					ready = append(ready, ct)
				}
			}
			return nil
		})
		return ready, err
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.([]*types.Task), nil
}

func findProducer(tasks []*types.Task, portID string) *types.Task {
	for _, t := range tasks {
		for _, o := range t.Outputs {
			if o.ID == portID {
				return t
			}
		}
	}
	return nil
}

// RestartTask adds newTask linked as a child of oldTaskID with state
// RESTARTED, inheriting oldTaskID's position in the dependency graph,
// then transitions it to READY (S6). Enforces the per-task max-restart
// counter.
func (s *BoltStore) RestartTask(wfID, oldTaskID string, newTask *types.Task, maxRestarts int) (*types.Task, error) {
	result, err := s.Apply("restart_task", func() (interface{}, error) {
		var out *types.Task
		err := s.db.Update(func(tx *bolt.Tx) error {
			old, err := s.getTaskTx(tx, wfID, oldTaskID)
			if err != nil {
				return err
			}
			restarts := old.Restarts() + 1
			if restarts > maxRestarts {
				return fmt.Errorf("task %s: restart limit %d exceeded: %w", oldTaskID, maxRestarts, errs.ErrInvariant)
			}

			newTask.WorkflowID = wfID
			newTask.ParentID = old.ID
			newTask.State = types.TaskStateRestarted
			newTask.SetMetadata("restarts", strconv.Itoa(restarts))

			oldAdj := s.getOrInitAdj(wfID, old.ID)
			newAdj := &adjacency{
				In:     append([]string{}, oldAdj.In...),
				Out:    append([]string{}, oldAdj.Out...),
				Begins: oldAdj.Begins,
			}
			for _, predID := range newAdj.In {
				pa := s.getOrInitAdj(wfID, predID)
				pa.Out = replaceID(pa.Out, old.ID, newTask.ID)
				if err := s.persistAdj(tx, wfID, predID, pa); err != nil {
					return err
				}
				s.setAdj(wfID, predID, pa)
			}
			for _, succID := range newAdj.Out {
				sa := s.getOrInitAdj(wfID, succID)
				sa.In = replaceID(sa.In, old.ID, newTask.ID)
				if err := s.persistAdj(tx, wfID, succID, sa); err != nil {
					return err
				}
				s.setAdj(wfID, succID, sa)
			}
			if err := s.persistAdj(tx, wfID, newTask.ID, newAdj); err != nil {
				return err
			}
			s.setAdj(wfID, newTask.ID, newAdj)

			// S6: "R' enters with fresh id, state RESTARTED -> READY".
			newTask.State = types.TaskStateReady
			if err := s.putTask(tx, wfID, newTask); err != nil {
				return err
			}
			out = newTask
			return nil
		})
		return out, err
	})
	if err != nil {
		return nil, err
	}
	return result.(*types.Task), nil
}

func replaceID(list []string, old, new string) []string {
	out := make([]string, len(list))
	for i, v := range list {
		if v == old {
			out[i] = new
		} else {
			out[i] = v
		}
	}
	return out
}

// GetReadyTasks returns every task currently in state READY.
func (s *BoltStore) GetReadyTasks(wfID string) ([]*types.Task, error) {
	result, err := s.Apply("get_ready_tasks", func() (interface{}, error) {
		var ready []*types.Task
		err := s.db.View(func(tx *bolt.Tx) error {
			tasks, err := s.listTasksTx(tx, wfID)
			if err != nil {
				return err
			}
			for _, t := range tasks {
				if t.State == types.TaskStateReady {
					ready = append(ready, t)
				}
			}
			return nil
		})
		return ready, err
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.([]*types.Task), nil
}

// GetDependentTasks returns the tasks that depend on taskID's outputs
// (its adjacency successors).
func (s *BoltStore) GetDependentTasks(wfID, taskID string) ([]*types.Task, error) {
	result, err := s.Apply("get_dependent_tasks", func() (interface{}, error) {
		a := s.getAdj(wfID, taskID)
		if a == nil {
			return nil, nil
		}
		var out []*types.Task
		err := s.db.View(func(tx *bolt.Tx) error {
			for _, id := range a.Out {
				t, err := s.getTaskTx(tx, wfID, id)
				if err != nil {
					return err
				}
				out = append(out, t)
			}
			return nil
		})
		return out, err
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.([]*types.Task), nil
}

// GetTask returns a single task by id.
func (s *BoltStore) GetTask(wfID, taskID string) (*types.Task, error) {
	result, err := s.Apply("get_task", func() (interface{}, error) {
		var t *types.Task
		err := s.db.View(func(tx *bolt.Tx) error {
			got, err := s.getTaskTx(tx, wfID, taskID)
			t = got
			return err
		})
		return t, err
	})
	if err != nil {
		return nil, err
	}
	return result.(*types.Task), nil
}

// GetTaskState returns a task's current canonical state.
func (s *BoltStore) GetTaskState(wfID, taskID string) (types.TaskState, error) {
	t, err := s.GetTask(wfID, taskID)
	if err != nil {
		return "", err
	}
	return t.State, nil
}

// SetTaskState sets a task's canonical state.
func (s *BoltStore) SetTaskState(wfID, taskID string, state types.TaskState) error {
	_, err := s.Apply("set_task_state", func() (interface{}, error) {
		return nil, s.db.Update(func(tx *bolt.Tx) error {
			t, err := s.getTaskTx(tx, wfID, taskID)
			if err != nil {
				return err
			}
			t.State = state
			return s.putTask(tx, wfID, t)
		})
	})
	return err
}

// GetTaskMetadata is get_task_metadata.
func (s *BoltStore) GetTaskMetadata(wfID, taskID, mkey string) (string, bool, error) {
	t, err := s.GetTask(wfID, taskID)
	if err != nil {
		return "", false, err
	}
	v, ok := t.GetMetadata(mkey)
	return v, ok, nil
}

// SetTaskMetadata is set_task_metadata.
func (s *BoltStore) SetTaskMetadata(wfID, taskID, mkey, value string) error {
	_, err := s.Apply("set_task_metadata", func() (interface{}, error) {
		return nil, s.db.Update(func(tx *bolt.Tx) error {
			t, err := s.getTaskTx(tx, wfID, taskID)
			if err != nil {
				return err
			}
			t.SetMetadata(mkey, value)
			return s.putTask(tx, wfID, t)
		})
	})
	return err
}

// SetTaskOutputs sets output port values by port id.
func (s *BoltStore) SetTaskOutputs(wfID, taskID string, values map[string]any) error {
	_, err := s.Apply("set_task_outputs", func() (interface{}, error) {
		return nil, s.db.Update(func(tx *bolt.Tx) error {
			t, err := s.getTaskTx(tx, wfID, taskID)
			if err != nil {
				return err
			}
			for _, o := range t.Outputs {
				if v, ok := values[o.ID]; ok {
					o.Value = v
				}
			}
			return s.putTask(tx, wfID, t)
		})
	})
	return err
}

// GetWorkflow returns a workflow with its tasks populated.
func (s *BoltStore) GetWorkflow(wfID string) (*types.Workflow, error) {
	result, err := s.Apply("get_workflow", func() (interface{}, error) {
		var wf *types.Workflow
		err := s.db.View(func(tx *bolt.Tx) error {
			got, err := s.getWorkflowTx(tx, wfID)
			if err != nil {
				return err
			}
			tasks, err := s.listTasksTx(tx, wfID)
			if err != nil {
				return err
			}
			got.Tasks = tasks
			wf = got
			return nil
		})
		return wf, err
	})
	if err != nil {
		return nil, err
	}
	return result.(*types.Workflow), nil
}

// ListWorkflows returns every workflow (without populating Tasks, for
// the workflow-list endpoint's {name, id, status} shape).
func (s *BoltStore) ListWorkflows() ([]*types.Workflow, error) {
	result, err := s.Apply("list_workflows", func() (interface{}, error) {
		var out []*types.Workflow
		err := s.db.View(func(tx *bolt.Tx) error {
			return tx.Bucket(bucketWorkflows).ForEach(func(k, v []byte) error {
				wf, err := s.getWorkflowTx(tx, string(k))
				if err != nil {
					return err
				}
				out = append(out, wf)
				return nil
			})
		})
		return out, err
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.([]*types.Workflow), nil
}

// WorkflowCompleted reports whether every task in wfID is terminal.
func (s *BoltStore) WorkflowCompleted(wfID string) (bool, error) {
	result, err := s.Apply("workflow_completed", func() (interface{}, error) {
		done := true
		err := s.db.View(func(tx *bolt.Tx) error {
			tasks, err := s.listTasksTx(tx, wfID)
			if err != nil {
				return err
			}
			for _, t := range tasks {
				if !t.State.Terminal() {
					done = false
					break
				}
			}
			return nil
		})
		return done, err
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

// Empty reports whether the workflow has zero tasks.
func (s *BoltStore) Empty(wfID string) (bool, error) {
	result, err := s.Apply("empty", func() (interface{}, error) {
		var n int
		err := s.db.View(func(tx *bolt.Tx) error {
			tasks, err := s.listTasksTx(tx, wfID)
			n = len(tasks)
			return err
		})
		return n == 0, err
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

// Cleanup removes all of the workflow's records and in-memory adjacency
// state; called after archival.
func (s *BoltStore) Cleanup(wfID string) error {
	_, err := s.Apply("cleanup", func() (interface{}, error) {
		return nil, s.db.Update(func(tx *bolt.Tx) error {
			tasks, err := s.listTasksTx(tx, wfID)
			if err != nil {
				return err
			}
			for _, t := range tasks {
				if err := s.deleteTaskTx(tx, wfID, t.ID); err != nil {
					return err
				}
				if err := tx.Bucket(bucketEdges).Delete(key(wfID, t.ID)); err != nil {
					return err
				}
			}
			delete(s.adj, wfID)
			return tx.Bucket(bucketWorkflows).Delete([]byte(wfID))
		})
	})
	return err
}
