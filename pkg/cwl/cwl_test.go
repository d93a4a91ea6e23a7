package cwl

import (
	"testing"

	"github.com/cuemby/bee/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `
name: demo
inputs:
  - id: wf_in
    type: string
outputs:
  - id: wf_out
    source: b_out
steps:
  - id: a
    base_command: ["echo", "hi"]
    inputs:
      - id: a_in
        source: wf_in
    outputs:
      - id: a_out
        glob: "*.txt"
    requirements:
      - class: ResourceRequirement
        key: nodes
        value: 1
  - id: b
    base_command: ["cat"]
    inputs:
      - id: b_in
        source: a_out
    outputs:
      - id: b_out
`

func TestParseDocumentHappyPath(t *testing.T) {
	doc, err := ParseDocument([]byte(sampleDoc))
	require.NoError(t, err)
	assert.Equal(t, "demo", doc.Name)
	require.Len(t, doc.Steps, 2)
	assert.Equal(t, []string{"echo", "hi"}, doc.Steps[0].BaseCommand)
}

func TestParseDocumentRejectsMissingName(t *testing.T) {
	_, err := ParseDocument([]byte("inputs: []\n"))
	assert.Error(t, err)
}

func TestParseDocumentRejectsMalformedYAML(t *testing.T) {
	_, err := ParseDocument([]byte("name: [this is not valid\n"))
	assert.Error(t, err)
}

func TestParseInputsEmptyYieldsEmptyMap(t *testing.T) {
	in, err := ParseInputs(nil)
	require.NoError(t, err)
	assert.Empty(t, in)
}

func TestParseInputsUnmarshalsFlatMap(t *testing.T) {
	in, err := ParseInputs([]byte("wf_in: hello\ncount: 3\n"))
	require.NoError(t, err)
	assert.Equal(t, "hello", in["wf_in"])
	assert.Equal(t, 3, in["count"])
}

func TestBuildProducesWorkflowAndTasks(t *testing.T) {
	doc, err := ParseDocument([]byte(sampleDoc))
	require.NoError(t, err)
	bound := Inputs{"wf_in": "from-submission"}

	wf, tasks := Build(doc, "/var/lib/bee", bound)

	assert.Equal(t, "demo", wf.Name)
	assert.Equal(t, types.WorkflowPending, wf.State)
	require.Len(t, wf.Inputs, 1)
	assert.Equal(t, "from-submission", wf.Inputs[0].Value)

	require.Len(t, tasks, 2)
	a := tasks[0]
	assert.Equal(t, "a", a.ID)
	assert.Equal(t, types.TaskStateWaiting, a.State)
	require.Len(t, a.Requirements, 1)
	assert.Equal(t, "nodes", a.Requirements[0].Key)
	assert.Equal(t, "wf_in", a.Inputs[0].Source)
	assert.Equal(t, "*.txt", a.Outputs[0].Glob)

	b := tasks[1]
	assert.Equal(t, "a_out", b.Inputs[0].Source)
}

func TestBuildWithoutBoundInputsLeavesPortValueNil(t *testing.T) {
	doc, err := ParseDocument([]byte(sampleDoc))
	require.NoError(t, err)

	wf, _ := Build(doc, "/var/lib/bee", Inputs{})
	assert.Nil(t, wf.Inputs[0].Value)
}
