// Package cwl is a thin boundary adapter that turns an uploaded
// workflow document (the `main_cwl` file of spec.md §6.1's multipart
// submission) plus a YAML inputs file into a *types.Workflow and its
// []*types.Task, good enough to drive the orchestration core end to
// end. It is not a CWL implementation: full CWL parsing is explicitly
// out of scope (spec.md §1), a collaborator that produces the Workflow
// value object described in §3. The field subset here (base_command,
// inputs/outputs with id/type/source/default/glob, requirements/hints)
// is grounded on the shape original_source/beeflow/common/parser/parse_cwl.py
// pulls out of a real CWL document — id, type, inputBinding.position for
// inputs, outputSource for workflow outputs — re-expressed as a direct
// YAML document instead of depending on the CWL grammar itself.
package cwl

import (
	"fmt"
	"time"

	"github.com/cuemby/bee/pkg/types"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Document is the subset-of-CWL shape this loader understands: a
// workflow's inputs/outputs and an ordered list of steps, each with a
// base command and its own inputs/outputs.
type Document struct {
	Name    string         `yaml:"name"`
	Inputs  []PortDoc      `yaml:"inputs"`
	Outputs []PortDoc      `yaml:"outputs"`
	Hints   []TagDoc       `yaml:"hints"`
	Steps   []StepDoc      `yaml:"steps"`
}

// PortDoc is one StepInput/StepOutput/workflow-level parameter.
type PortDoc struct {
	ID       string `yaml:"id"`
	Type     string `yaml:"type"`
	Source   string `yaml:"source,omitempty"`
	Default  any    `yaml:"default,omitempty"`
	Glob     string `yaml:"glob,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
	Position int    `yaml:"position,omitempty"`
}

// TagDoc is a Requirement or Hint: class, key, value.
type TagDoc struct {
	Class string `yaml:"class"`
	Key   string `yaml:"key"`
	Value any    `yaml:"value"`
}

// StepDoc is one task: a base command plus its own ports and
// requirements/hints.
type StepDoc struct {
	ID           string    `yaml:"id"`
	BaseCommand  []string  `yaml:"base_command"`
	Inputs       []PortDoc `yaml:"inputs"`
	Outputs      []PortDoc `yaml:"outputs"`
	Requirements []TagDoc  `yaml:"requirements"`
	Hints        []TagDoc  `yaml:"hints"`
	Stdout       string    `yaml:"stdout,omitempty"`
}

// Inputs is the YAML inputs file's shape: a flat map of input port id
// to the value bound to it at submission time.
type Inputs map[string]any

// ParseDocument unmarshals a main_cwl document from raw bytes.
func ParseDocument(raw []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse workflow document: %w", err)
	}
	if doc.Name == "" {
		return nil, fmt.Errorf("workflow document missing name")
	}
	return &doc, nil
}

// ParseInputs unmarshals an optional YAML inputs file. Empty/nil raw
// yields an empty Inputs map (the `yaml` multipart field is optional,
// spec.md §6.1).
func ParseInputs(raw []byte) (Inputs, error) {
	if len(raw) == 0 {
		return Inputs{}, nil
	}
	var in Inputs
	if err := yaml.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("parse inputs: %w", err)
	}
	if in == nil {
		in = Inputs{}
	}
	return in, nil
}

// Build turns doc and bound into a fresh *types.Workflow and its tasks,
// ready for workflow.Service.SubmitWorkflow. Workflow-level input ports
// get their Value from bound (if present), else stay nil so the Graph
// Store's execute_workflow falls through to Default (spec.md §4.1).
func Build(doc *Document, workdir string, bound Inputs) (*types.Workflow, []*types.Task) {
	wf := &types.Workflow{
		ID:           uuid.New().String(),
		Name:         doc.Name,
		Inputs:       toPorts(doc.Inputs, bound),
		Outputs:      toPorts(doc.Outputs, nil),
		Hints:        toTags(doc.Hints),
		State:        types.WorkflowPending,
		CreatedAt:    time.Now(),
		WorkDir:      workdir,
	}

	tasks := make([]*types.Task, 0, len(doc.Steps))
	for _, step := range doc.Steps {
		t := &types.Task{
			ID:           step.ID,
			Name:         step.ID,
			BaseCommand:  append([]string{}, step.BaseCommand...),
			Inputs:       toPorts(step.Inputs, bound),
			Outputs:      toPorts(step.Outputs, nil),
			Requirements: toTags(step.Requirements),
			Hints:        toTags(step.Hints),
			Stdout:       step.Stdout,
			State:        types.TaskStateWaiting,
		}
		tasks = append(tasks, t)
	}
	return wf, tasks
}

func toPorts(docs []PortDoc, bound Inputs) []*types.Port {
	ports := make([]*types.Port, 0, len(docs))
	for _, d := range docs {
		p := &types.Port{
			ID:       d.ID,
			Type:     d.Type,
			Source:   d.Source,
			Default:  d.Default,
			Glob:     d.Glob,
			Prefix:   d.Prefix,
			Position: d.Position,
		}
		if bound != nil {
			if v, ok := bound[d.ID]; ok {
				p.Value = v
			}
		}
		ports = append(ports, p)
	}
	return ports
}

func toTags(docs []TagDoc) []types.Tag {
	tags := make([]types.Tag, 0, len(docs))
	for _, d := range docs {
		tags = append(tags, types.Tag{Class: d.Class, Key: d.Key, Value: d.Value})
	}
	return tags
}
