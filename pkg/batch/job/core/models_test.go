package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobStatus_Predicates(t *testing.T) {
	tests := []struct {
		status       JobStatus
		running      bool
		unsuccessful bool
	}{
		{BatchStatusStarting, true, false},
		{BatchStatusStarted, true, false},
		{BatchStatusStopping, true, false},
		{BatchStatusCompleted, false, false},
		{BatchStatusFailed, false, true},
		{BatchStatusStopped, false, true},
		{BatchStatusAbandoned, false, true},
		{BatchStatusUnknown, false, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.running, tt.status.IsRunning())
			assert.Equal(t, !tt.running, tt.status.IsFinished())
			assert.Equal(t, tt.unsuccessful, tt.status.IsUnsuccessful())
		})
	}
}

func TestJobExecution_Lifecycle(t *testing.T) {
	instance := &JobInstance{ID: "inst-1", JobName: "job1"}
	je := NewJobExecution(instance, NewJobParameters())

	assert.Equal(t, "job1", je.JobName)
	assert.Equal(t, "inst-1", je.JobInstanceID)
	assert.Equal(t, BatchStatusStarting, je.Status)
	assert.True(t, je.IsRunning())
	assert.True(t, je.StartTime.IsZero())

	je.MarkAsStarted()
	assert.Equal(t, BatchStatusStarted, je.Status)
	assert.False(t, je.StartTime.IsZero())

	se := NewStepExecution("step1", je)
	assert.Same(t, je, se.JobExecution)
	assert.Len(t, je.StepExecutions, 1)

	cause := errors.New("boom")
	se.MarkAsFailed(cause)
	je.MarkAsFailed(nil)

	assert.False(t, je.IsRunning())
	assert.Equal(t, BatchStatusFailed, je.Status)
	assert.Equal(t, ExitStatusFailed, je.ExitStatus)
	assert.Equal(t, 1, je.ExitCode)
	assert.Equal(t, "boom", se.ExitMessage)
	assert.Equal(t, []error{cause}, je.AllFailureExceptions())
}

func TestStepExecution_KeepsCustomExitStatusOnCompletion(t *testing.T) {
	se := NewStepExecution("step1", nil)
	se.ExitStatus = ExitStatusNoOp
	se.MarkAsCompleted()

	assert.Equal(t, BatchStatusCompleted, se.Status)
	assert.Equal(t, ExitStatusNoOp, se.ExitStatus)
	assert.Equal(t, "", se.JobExecutionID())
}

func TestJobExecution_Snapshot(t *testing.T) {
	je := NewJobExecution(&JobInstance{ID: "i", JobName: "job1"}, NewJobParameters())
	je.ExecutionContext.Put("k", "v")
	NewStepExecution("step1", je)

	snap := je.Snapshot()
	je.ExecutionContext.Put("k", "changed")
	je.StepExecutions[0].ReadCount = 10
	je.MarkAsCompleted()

	v, _ := snap.ExecutionContext.GetString("k")
	assert.Equal(t, "v", v)
	assert.Equal(t, 0, snap.StepExecutions[0].ReadCount)
	assert.Same(t, snap, snap.StepExecutions[0].JobExecution)
	assert.Equal(t, BatchStatusStarting, snap.Status)
}

func TestExecutionContext(t *testing.T) {
	ec := NewExecutionContext()
	ec.Put("count", float64(3))
	ec.Put("nested", map[string]interface{}{"a": map[string]interface{}{"b": "x"}})

	n, ok := ec.GetInt("count")
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	v, ok := ec.GetNested("nested.a.b")
	assert.True(t, ok)
	assert.Equal(t, "x", v)

	_, ok = ec.GetNested("nested.z")
	assert.False(t, ok)

	other := NewExecutionContext()
	other.Put("count", 4)
	cp := ec.Copy()
	cp.Merge(other)
	n, _ = cp.GetInt("count")
	assert.Equal(t, 4, n)
	n, _ = ec.GetInt("count")
	assert.Equal(t, 3, n)
}
