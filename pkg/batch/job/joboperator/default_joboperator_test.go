package joboperator_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batchadmin/pkg/batch/config"
	"batchadmin/pkg/batch/database"
	"batchadmin/pkg/batch/database/connector"
	"batchadmin/pkg/batch/job/component"
	core "batchadmin/pkg/batch/job/core"
	"batchadmin/pkg/batch/job/factory"
	"batchadmin/pkg/batch/job/joblauncher"
	"batchadmin/pkg/batch/job/joboperator"
	"batchadmin/pkg/batch/job/jsl"
	"batchadmin/pkg/batch/repository/job"
	sqlrepo "batchadmin/pkg/batch/repository/sql"
	exception "batchadmin/pkg/batch/util/exception"
)

// controlledTasklet はテストから失敗とブロックを切り替えられる Tasklet です。
type controlledTasklet struct {
	fail    atomic.Bool
	block   atomic.Bool
	started chan struct{}
}

func (t *controlledTasklet) Execute(ctx context.Context, se *core.StepExecution) (core.ExitStatus, error) {
	if t.block.Load() {
		t.started <- struct{}{}
		<-ctx.Done()
		return core.ExitStatusStopped, ctx.Err()
	}
	if t.fail.Load() {
		return core.ExitStatusFailed, errors.New("controlled failure")
	}
	return core.ExitStatusCompleted, nil
}
func (t *controlledTasklet) Close(ctx context.Context) error { return nil }
func (t *controlledTasklet) SetExecutionContext(ctx context.Context, ec core.ExecutionContext) error {
	return nil
}
func (t *controlledTasklet) GetExecutionContext(ctx context.Context) (core.ExecutionContext, error) {
	return core.NewExecutionContext(), nil
}

const operatorJob = `
id: opJob
name: operator job
flow:
  start-element: work
  elements:
    work:
      tasklet:
        ref: controlled
`

type fixture struct {
	repo     job.JobRepository
	operator *joboperator.DefaultJobOperator
	tasklet  *controlledTasklet
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	conn, err := connector.Open(ctx, config.DatabaseConfig{Type: "sqlite3", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(ctx, conn, "", ""))
	repo := sqlrepo.NewSQLJobRepository(conn)

	tasklet := &controlledTasklet{started: make(chan struct{}, 1)}
	registry := component.NewRegistry()
	registry.Register("controlled", func(cfg *config.Config, repo job.JobRepository, properties map[string]string) (any, error) {
		return tasklet, nil
	})
	jobFactory := factory.NewJobFactory(config.NewConfig(), repo, registry)
	def, err := jsl.LoadJSLDefinitionFromBytes([]byte(operatorJob))
	require.NoError(t, err)
	require.NoError(t, jobFactory.RegisterJSL(def))

	launcher := joblauncher.NewSimpleJobLauncher(repo, nil)
	operator := joboperator.NewDefaultJobOperator(repo, jobFactory, launcher)
	t.Cleanup(func() {
		operator.Wait()
		repo.Close()
	})
	return &fixture{repo: repo, operator: operator, tasklet: tasklet}
}

func TestStartAndLookups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	params := core.NewJobParameters()
	params.PutString("input", "a.csv")

	id, err := f.operator.Start(ctx, "opJob", params)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	f.operator.Wait()

	je, err := f.operator.GetJobExecution(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusCompleted, je.Status)

	steps, err := f.operator.GetStepExecutions(ctx, id)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, "work", steps[0].StepName)

	got, err := f.operator.GetParameters(ctx, id)
	require.NoError(t, err)
	assert.True(t, params.Equal(got))

	executions, err := f.operator.GetJobExecutions(ctx, je.JobInstanceID)
	require.NoError(t, err)
	assert.Len(t, executions, 1)

	last, err := f.operator.GetLastJobExecution(ctx, je.JobInstanceID)
	require.NoError(t, err)
	assert.Equal(t, id, last.ID)

	instances, err := f.operator.GetJobInstances(ctx, "opJob", 0, 10)
	require.NoError(t, err)
	assert.Len(t, instances, 1)

	names, err := f.operator.GetJobNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"opJob"}, names)

	running, err := f.operator.GetRunningExecutions(ctx, "opJob")
	require.NoError(t, err)
	assert.Empty(t, running)

	_, err = f.operator.Start(ctx, "unknownJob", params)
	assert.ErrorIs(t, err, exception.ErrNoSuchJob)

	_, err = f.operator.GetJobExecution(ctx, "no-such-id")
	assert.ErrorIs(t, err, exception.ErrNoSuchJobExecution)
}

func TestRestart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	params := core.NewJobParameters()
	params.PutString("input", "b.csv")

	f.tasklet.fail.Store(true)
	id, err := f.operator.Start(ctx, "opJob", params)
	require.NoError(t, err)
	f.operator.Wait()

	failed, err := f.operator.GetJobExecution(ctx, id)
	require.NoError(t, err)
	require.Equal(t, core.BatchStatusFailed, failed.Status)

	f.tasklet.fail.Store(false)
	restarted, err := f.operator.Restart(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusCompleted, restarted.Status)
	assert.Equal(t, failed.JobInstanceID, restarted.JobInstanceID)

	// 完了済み、または最新でない実行は再起動できない
	_, err = f.operator.Restart(ctx, restarted.ID)
	assert.ErrorIs(t, err, exception.ErrJobRestart)
	_, err = f.operator.Restart(ctx, id)
	assert.ErrorIs(t, err, exception.ErrJobRestart)
}

func TestStopLocalThenAbandon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.tasklet.block.Store(true)
	id, err := f.operator.Start(ctx, "opJob", core.NewJobParameters())
	require.NoError(t, err)

	select {
	case <-f.tasklet.started:
	case <-time.After(5 * time.Second):
		t.Fatal("ジョブが開始されませんでした")
	}

	running, err := f.operator.GetRunningExecutions(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{id}, running)

	_, err = f.operator.Abandon(ctx, id)
	assert.ErrorIs(t, err, exception.ErrJobExecutionAlreadyRunning)

	require.NoError(t, f.operator.Stop(ctx, id))
	f.operator.Wait()

	stopped, err := f.operator.GetJobExecution(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusStopped, stopped.Status)

	err = f.operator.Stop(ctx, id)
	assert.ErrorIs(t, err, exception.ErrJobExecutionNotRunning)

	abandoned, err := f.operator.Abandon(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusAbandoned, abandoned.Status)

	_, err = f.operator.Restart(ctx, id)
	assert.ErrorIs(t, err, exception.ErrJobRestart)
}

func TestStopRemoteExecutionMarksStopping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 他のプロセスで実行中の JobExecution を模す
	instance, err := f.repo.CreateJobInstance(ctx, "opJob", core.NewJobParameters())
	require.NoError(t, err)
	je := core.NewJobExecution(instance, core.NewJobParameters())
	require.NoError(t, f.repo.SaveJobExecution(ctx, je))
	je.MarkAsStarted()
	require.NoError(t, f.repo.UpdateJobExecution(ctx, je))

	require.NoError(t, f.operator.Stop(ctx, je.ID))

	stored, err := f.operator.GetJobExecution(ctx, je.ID)
	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusStopping, stored.Status)

	// STOPPING の実行は放棄できる
	abandoned, err := f.operator.Abandon(ctx, je.ID)
	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusAbandoned, abandoned.Status)
}
