package jsl_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batchadmin/pkg/batch/config"
	"batchadmin/pkg/batch/database"
	"batchadmin/pkg/batch/database/connector"
	"batchadmin/pkg/batch/job/component"
	core "batchadmin/pkg/batch/job/core"
	"batchadmin/pkg/batch/job/jsl"
	"batchadmin/pkg/batch/job/runner"
	"batchadmin/pkg/batch/repository/job"
	sqlrepo "batchadmin/pkg/batch/repository/sql"
	"batchadmin/pkg/batch/step/listener"
	"batchadmin/pkg/batch/step/reader"
	"batchadmin/pkg/batch/step/writer"
)

type countingTasklet struct {
	calls int
}

func (t *countingTasklet) Execute(ctx context.Context, se *core.StepExecution) (core.ExitStatus, error) {
	t.calls++
	return core.ExitStatusCompleted, nil
}

func (t *countingTasklet) Close(ctx context.Context) error { return nil }

func (t *countingTasklet) SetExecutionContext(ctx context.Context, ec core.ExecutionContext) error {
	return nil
}

func (t *countingTasklet) GetExecutionContext(ctx context.Context) (core.ExecutionContext, error) {
	return core.NewExecutionContext(), nil
}

type fixture struct {
	repo     job.JobRepository
	registry *component.Registry
	tasklet  *countingTasklet
	writer   *writer.ExecutionContextWriter[any]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	conn, err := connector.Open(ctx, config.DatabaseConfig{Type: "sqlite3", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(ctx, conn, "", ""))
	repo := sqlrepo.NewSQLJobRepository(conn)
	t.Cleanup(func() { repo.Close() })

	f := &fixture{repo: repo, registry: component.NewRegistry(), tasklet: &countingTasklet{}}
	f.registry.Register("listReader", func(cfg *config.Config, repo job.JobRepository, properties map[string]string) (any, error) {
		return reader.NewListReader[any]("listReader", []any{"a", "b", "c"}), nil
	})
	f.registry.Register("ecWriter", func(cfg *config.Config, repo job.JobRepository, properties map[string]string) (any, error) {
		f.writer = writer.NewExecutionContextWriter[any]("written")
		return f.writer, nil
	})
	f.registry.Register("hello", func(cfg *config.Config, repo job.JobRepository, properties map[string]string) (any, error) {
		return f.tasklet, nil
	})
	f.registry.Register("chunkLogger", func(cfg *config.Config, repo job.JobRepository, properties map[string]string) (any, error) {
		return listener.NewLoggingChunkListener(), nil
	})
	return f
}

func (f *fixture) run(t *testing.T, def jsl.Job, params core.JobParameters) *core.JobExecution {
	t.Helper()
	ctx := context.Background()
	flow, jobListeners, err := jsl.NewConverter(f.registry, config.NewConfig(), f.repo).ConvertJSLToCoreFlow(def)
	require.NoError(t, err)

	flowJob := runner.NewFlowJob(def.Name, flow, f.repo, jobListeners)
	instance, err := f.repo.CreateJobInstance(ctx, def.Name, params)
	require.NoError(t, err)
	je := core.NewJobExecution(instance, params)
	require.NoError(t, f.repo.SaveJobExecution(ctx, je))
	je.MarkAsStarted()
	require.NoError(t, flowJob.Run(ctx, je, params))
	return je
}

func TestConverter_ChunkAndDecision(t *testing.T) {
	def, err := jsl.LoadJSLDefinitionFromBytes([]byte(chunkJobYAML))
	require.NoError(t, err)

	tests := []struct {
		name         string
		mode         string
		taskletCalls int
		steps        int
	}{
		{name: "decision routes to step2", mode: "full", taskletCalls: 1, steps: 2},
		{name: "decision ends job", mode: "quick", taskletCalls: 0, steps: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			params := core.NewJobParameters()
			params.Put("mode", tt.mode)

			je := f.run(t, def, params)

			assert.Equal(t, core.BatchStatusCompleted, je.Status)
			assert.Equal(t, tt.taskletCalls, f.tasklet.calls)
			assert.Len(t, je.StepExecutions, tt.steps)
			require.NotNil(t, f.writer)
			assert.Equal(t, []any{"a", "b", "c"}, f.writer.Items())
			assert.Equal(t, 3, je.StepExecutions[0].ReadCount)
			assert.Equal(t, 2, je.StepExecutions[0].CommitCount)
		})
	}
}

func TestConverter_StepListenersAndPromotion(t *testing.T) {
	def, err := jsl.LoadJSLDefinitionFromBytes([]byte(`
id: promote
name: promote
flow:
  start-element: load
  elements:
    load:
      chunk:
        reader:
          ref: listReader
        writer:
          ref: ecWriter
      listeners:
        - ref: chunkLogger
      execution-context-promotion:
        keys:
          - written
        job-level-keys:
          written: shared.items
`))
	require.NoError(t, err)

	f := newFixture(t)
	je := f.run(t, def, core.NewJobParameters())

	assert.Equal(t, core.BatchStatusCompleted, je.Status)
	v, ok := je.ExecutionContext.GetNested("shared.items")
	require.True(t, ok)
	assert.Equal(t, []any{"a", "b", "c"}, v)
}

func TestConverter_UnknownComponent(t *testing.T) {
	def, err := jsl.LoadJSLDefinitionFromBytes([]byte(`
id: broken
name: broken
flow:
  start-element: s
  elements:
    s:
      tasklet:
        ref: missing
`))
	require.NoError(t, err)

	f := newFixture(t)
	_, _, err = jsl.NewConverter(f.registry, config.NewConfig(), f.repo).ConvertJSLToCoreFlow(def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestConverter_WrongComponentType(t *testing.T) {
	def, err := jsl.LoadJSLDefinitionFromBytes([]byte(`
id: wrong
name: wrong
flow:
  start-element: s
  elements:
    s:
      tasklet:
        ref: listReader
`))
	require.NoError(t, err)

	f := newFixture(t)
	_, _, err = jsl.NewConverter(f.registry, config.NewConfig(), f.repo).ConvertJSLToCoreFlow(def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Tasklet")
}
