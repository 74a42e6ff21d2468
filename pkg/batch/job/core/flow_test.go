package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubElement string

func (s stubElement) ID() string { return string(s) }

func TestFlowDefinition_FindTransition(t *testing.T) {
	flow := NewFlowDefinition("step1")
	require.NoError(t, flow.AddElement("step1", stubElement("step1")))
	require.NoError(t, flow.AddElement("step2", stubElement("step2")))
	require.NoError(t, flow.AddElement("cleanup", stubElement("cleanup")))
	assert.Error(t, flow.AddElement("step1", stubElement("step1")))

	flow.AddTransitionRule("step1", Transition{On: "*", To: "cleanup"})
	flow.AddTransitionRule("step1", Transition{On: "COMPLETED", To: "step2"})
	flow.AddTransitionRule("step2", Transition{On: "COMP*", End: true})
	require.NoError(t, flow.Validate())

	tr, ok := flow.FindTransition("step1", ExitStatusCompleted)
	require.True(t, ok)
	assert.Equal(t, "step2", tr.To, "完全一致を優先する")

	tr, ok = flow.FindTransition("step1", ExitStatusFailed)
	require.True(t, ok)
	assert.Equal(t, "cleanup", tr.To)

	tr, ok = flow.FindTransition("step2", ExitStatusCompleted)
	require.True(t, ok)
	assert.True(t, tr.End)

	_, ok = flow.FindTransition("step2", ExitStatusFailed)
	assert.False(t, ok)

	assert.Equal(t, []string{"step1", "step2", "cleanup"}, flow.Order)
}

func TestFlowDefinition_Validate(t *testing.T) {
	flow := NewFlowDefinition("missing")
	assert.Error(t, flow.Validate())

	flow = NewFlowDefinition("a")
	require.NoError(t, flow.AddElement("a", stubElement("a")))
	flow.AddTransitionRule("a", Transition{On: "*", To: "b"})
	assert.Error(t, flow.Validate())

	flow = NewFlowDefinition("a")
	require.NoError(t, flow.AddElement("a", stubElement("a")))
	flow.AddTransitionRule("a", Transition{On: "*"})
	assert.Error(t, flow.Validate())
}

func TestConditionalDecision(t *testing.T) {
	je := NewJobExecution(&JobInstance{ID: "i", JobName: "job"}, NewJobParameters())
	je.ExecutionContext.Put("result", map[string]interface{}{"state": "ok"})
	params := NewJobParameters()
	params.PutString("mode", "full")

	tests := []struct {
		name     string
		props    map[string]string
		expected ExitStatus
	}{
		{"context match", map[string]string{"conditionKey": "result.state", "expectedValue": "ok"}, ExitStatusCompleted},
		{"parameter match", map[string]string{"conditionKey": "mode", "expectedValue": "full"}, ExitStatusCompleted},
		{"mismatch uses default", map[string]string{"conditionKey": "mode", "expectedValue": "delta", "defaultStatus": "NOOP"}, ExitStatusNoOp},
		{"missing key", map[string]string{"conditionKey": "nothing", "expectedValue": "x"}, ExitStatusFailed},
		{"no key configured", map[string]string{}, ExitStatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewConditionalDecision("decide")
			d.SetProperties(tt.props)
			status, err := d.Decide(context.Background(), je, params)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, status)
		})
	}
}
