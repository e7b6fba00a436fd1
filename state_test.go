package filesaga

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSagaInputValidate(t *testing.T) {
	valid := SagaInput{FileURL: "http://example.com/data.json", Filename: "data.json"}
	assert.NoError(t, valid.Validate())

	err := SagaInput{Filename: "data.json"}.Validate()
	require.Error(t, err)
	assert.True(t, IsTerminal(err), "a missing input can never be retried into existence")

	assert.Error(t, SagaInput{FileURL: "http://example.com/data.json"}.Validate())
}

func TestProcessingStateRefusesOverwrite(t *testing.T) {
	state := NewProcessingState()

	require.NoError(t, state.Record(StageResult{Stage: "download", Output: "a"}))
	err := state.Record(StageResult{Stage: "download", Output: "b"})
	require.Error(t, err)

	result, ok := state.Lookup("download")
	require.True(t, ok)
	assert.Equal(t, "a", result.Output, "the first recording wins")
	assert.Equal(t, 1, state.Len())
}

func TestProcessingStateResultsOrdered(t *testing.T) {
	state := NewProcessingState()
	require.NoError(t, state.Record(StageResult{Stage: "upload"}))
	require.NoError(t, state.Record(StageResult{Stage: "download"}))
	require.NoError(t, state.Record(StageResult{Stage: "parse"}))

	results := state.Results()
	require.Len(t, results, 3)
	assert.Equal(t, StageName("download"), results[0].Stage)
	assert.Equal(t, StageName("parse"), results[1].Stage)
	assert.Equal(t, StageName("upload"), results[2].Stage)
}

type fetchOutput struct {
	Path  string `json:"path"`
	Bytes int64  `json:"bytes"`
}

func TestLookupOutputTyped(t *testing.T) {
	state := NewProcessingState()
	require.NoError(t, state.Record(StageResult{
		Stage:  "download",
		Output: fetchOutput{Path: "input/a.json", Bytes: 42},
	}))
	rc := &RunContext{WorkflowID: "wf-1", state: state}

	out, ok := LookupOutput[fetchOutput](rc, "download")
	require.True(t, ok)
	assert.Equal(t, "input/a.json", out.Path)

	_, ok = LookupOutput[fetchOutput](rc, "missing")
	assert.False(t, ok)

	_, ok = LookupOutput[string](rc, "download")
	assert.False(t, ok, "a wrong type assertion must not panic or succeed")
}

func TestLookupOutputFromRawJSON(t *testing.T) {
	// After a resume, persisted outputs come back as raw JSON.
	state := NewProcessingState()
	raw, err := json.Marshal(fetchOutput{Path: "input/a.json", Bytes: 42})
	require.NoError(t, err)
	require.NoError(t, state.Record(StageResult{
		Stage:  "download",
		Output: json.RawMessage(raw),
	}))
	rc := &RunContext{WorkflowID: "wf-1", state: state}

	out, ok := LookupOutput[fetchOutput](rc, "download")
	require.True(t, ok)
	assert.Equal(t, "input/a.json", out.Path)
	assert.Equal(t, int64(42), out.Bytes)
}

func TestRunContextLookupNilState(t *testing.T) {
	rc := &RunContext{WorkflowID: "wf-1"}
	_, ok := rc.Lookup("download")
	assert.False(t, ok)
}
