package factory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batchadmin/pkg/batch/config"
	"batchadmin/pkg/batch/job/component"
	core "batchadmin/pkg/batch/job/core"
	"batchadmin/pkg/batch/job/factory"
	"batchadmin/pkg/batch/job/jsl"
	"batchadmin/pkg/batch/job/runner"
	"batchadmin/pkg/batch/repository/job"
	exception "batchadmin/pkg/batch/util/exception"
)

type noopTasklet struct{}

func (noopTasklet) Execute(ctx context.Context, se *core.StepExecution) (core.ExitStatus, error) {
	return core.ExitStatusCompleted, nil
}
func (noopTasklet) Close(ctx context.Context) error { return nil }
func (noopTasklet) SetExecutionContext(ctx context.Context, ec core.ExecutionContext) error {
	return nil
}
func (noopTasklet) GetExecutionContext(ctx context.Context) (core.ExecutionContext, error) {
	return core.NewExecutionContext(), nil
}

const asyncJob = `
id: jsr352-job
name: JSR-352 job
launch: async
restartable: false
incrementer: timestamp
flow:
  start-element: step1
  elements:
    step1:
      tasklet:
        ref: noop
`

func newFactory(t *testing.T) *factory.JobFactory {
	t.Helper()
	registry := component.NewRegistry()
	registry.Register("noop", func(cfg *config.Config, repo job.JobRepository, properties map[string]string) (any, error) {
		return noopTasklet{}, nil
	})
	return factory.NewJobFactory(config.NewConfig(), nil, registry)
}

func TestJobFactory_RegisterJSL(t *testing.T) {
	f := newFactory(t)
	def, err := jsl.LoadJSLDefinitionFromBytes([]byte(asyncJob))
	require.NoError(t, err)
	require.NoError(t, f.RegisterJSL(def))

	assert.True(t, f.IsRegistered("jsr352-job"))
	assert.Equal(t, factory.LaunchModeAsync, f.LaunchMode("jsr352-job"))

	j, err := f.CreateJob(context.Background(), "jsr352-job")
	require.NoError(t, err)
	assert.Equal(t, "jsr352-job", j.JobName())
	assert.False(t, j.Restartable())
	assert.NotNil(t, j.Incrementer())
	assert.Equal(t, "step1", j.GetFlow().StartElement)

	// 起動ごとに新しいインスタンスを生成する
	j2, err := f.CreateJob(context.Background(), "jsr352-job")
	require.NoError(t, err)
	assert.NotSame(t, j, j2)
}

func TestJobFactory_RegisterJobBuilder(t *testing.T) {
	f := newFactory(t)
	f.RegisterJobBuilder("javaJob", func(cfg *config.Config, repo job.JobRepository) (core.Job, error) {
		return runner.NewFlowJob("javaJob", core.NewFlowDefinition("s"), repo, nil), nil
	})
	f.RegisterJobBuilder("brokenJob", func(cfg *config.Config, repo job.JobRepository) (core.Job, error) {
		return nil, errors.New("boom")
	})

	assert.Equal(t, []string{"brokenJob", "javaJob"}, f.GetJobNames())
	// 個別指定が無ければ batch.task_executor の既定値 (sync)
	assert.Equal(t, factory.LaunchModeSync, f.LaunchMode("javaJob"))

	j, err := f.CreateJob(context.Background(), "javaJob")
	require.NoError(t, err)
	assert.True(t, j.Restartable())
	assert.Nil(t, j.Incrementer())

	_, err = f.CreateJob(context.Background(), "brokenJob")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestJobFactory_UnknownJob(t *testing.T) {
	f := newFactory(t)
	_, err := f.CreateJob(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, exception.ErrNoSuchJob)
	assert.False(t, f.IsRegistered("nope"))
}

func TestParseLaunchMode(t *testing.T) {
	tests := []struct {
		in      string
		want    factory.LaunchMode
		wantErr bool
	}{
		{in: "", want: factory.LaunchModeSync},
		{in: "SYNC", want: factory.LaunchModeSync},
		{in: " async ", want: factory.LaunchModeAsync},
		{in: "later", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := factory.ParseLaunchMode(tt.in, factory.LaunchModeSync)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
