package jsl_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batchadmin/pkg/batch/job/jsl"
)

const chunkJobYAML = `
id: job1
name: job1
launch: sync
incrementer: run-id
flow:
  start-element: step1
  elements:
    step1:
      chunk:
        reader:
          ref: listReader
        writer:
          ref: ecWriter
        item-count: 2
      transitions:
        - on: COMPLETED
          to: check
        - on: FAILED
          fail: true
    check:
      decider:
        ref: conditional
        properties:
          conditionKey: mode
          expectedValue: full
          defaultStatus: SKIPPED
      transitions:
        - on: COMPLETED
          to: step2
        - on: "*"
          end: true
    step2:
      tasklet:
        ref: hello
`

func TestLoadJSLDefinitionFromBytes(t *testing.T) {
	def, err := jsl.LoadJSLDefinitionFromBytes([]byte(chunkJobYAML))
	require.NoError(t, err)

	assert.Equal(t, "job1", def.ID)
	assert.Equal(t, "sync", def.Launch)
	assert.True(t, def.IsRestartable())
	require.Len(t, def.Flow.Elements, 3)

	// 記述順が保たれること
	ids := make([]string, 0, len(def.Flow.Elements))
	for _, el := range def.Flow.Elements {
		ids = append(ids, el.ID)
	}
	assert.Equal(t, []string{"step1", "check", "step2"}, ids)

	step1, ok := def.Flow.Elements.Get("step1")
	require.True(t, ok)
	require.NotNil(t, step1.Step)
	require.NotNil(t, step1.Step.Chunk)
	assert.Equal(t, 2, step1.Step.Chunk.ItemCount)
	assert.Len(t, step1.Step.Transitions, 2)

	check, ok := def.Flow.Elements.Get("check")
	require.True(t, ok)
	require.NotNil(t, check.Decision)
	assert.Equal(t, "mode", check.Decision.Decider.Properties["conditionKey"])
}

func TestLoadJSLDefinitionFromBytes_NotRestartable(t *testing.T) {
	def, err := jsl.LoadJSLDefinitionFromBytes([]byte(`
id: once
name: once
restartable: false
flow:
  start-element: s
  elements:
    s:
      tasklet:
        ref: hello
`))
	require.NoError(t, err)
	assert.False(t, def.IsRestartable())
}

func TestLoadJSLDefinitionFromBytes_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		message string
	}{
		{
			name:    "broken yaml",
			yaml:    "id: [",
			message: "パースに失敗",
		},
		{
			name:    "missing id",
			yaml:    "name: x\nflow:\n  start-element: s\n  elements:\n    s:\n      tasklet:\n        ref: t\n",
			message: "'id'",
		},
		{
			name:    "unknown launch mode",
			yaml:    "id: x\nname: x\nlaunch: later\nflow:\n  start-element: s\n  elements:\n    s:\n      tasklet:\n        ref: t\n",
			message: "'launch'",
		},
		{
			name:    "unknown incrementer",
			yaml:    "id: x\nname: x\nincrementer: uuid\nflow:\n  start-element: s\n  elements:\n    s:\n      tasklet:\n        ref: t\n",
			message: "'incrementer'",
		},
		{
			name:    "missing start element",
			yaml:    "id: x\nname: x\nflow:\n  start-element: nope\n  elements:\n    s:\n      tasklet:\n        ref: t\n",
			message: "'nope'",
		},
		{
			name:    "both tasklet and chunk",
			yaml:    "id: x\nname: x\nflow:\n  start-element: s\n  elements:\n    s:\n      tasklet:\n        ref: t\n      chunk:\n        reader:\n          ref: r\n        writer:\n          ref: w\n",
			message: "どちらか一方",
		},
		{
			name:    "chunk without writer",
			yaml:    "id: x\nname: x\nflow:\n  start-element: s\n  elements:\n    s:\n      chunk:\n        reader:\n          ref: r\n",
			message: "'writer'",
		},
		{
			name:    "unknown transition target",
			yaml:    "id: x\nname: x\nflow:\n  start-element: s\n  elements:\n    s:\n      tasklet:\n        ref: t\n      transitions:\n        - on: COMPLETED\n          to: ghost\n",
			message: "'ghost'",
		},
		{
			name:    "transition without target",
			yaml:    "id: x\nname: x\nflow:\n  start-element: s\n  elements:\n    s:\n      tasklet:\n        ref: t\n      transitions:\n        - on: COMPLETED\n",
			message: "終了指定",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := jsl.LoadJSLDefinitionFromBytes([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}
