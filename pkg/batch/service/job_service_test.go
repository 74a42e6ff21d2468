package service_test

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
	"batchadmin/pkg/batch/service"
	exception "batchadmin/pkg/batch/util/exception"
)

type switchTasklet struct {
	fail    atomic.Bool
	block   atomic.Bool
	started chan struct{}
}

func (t *switchTasklet) Execute(ctx context.Context, se *core.StepExecution) (core.ExitStatus, error) {
	if t.block.Load() {
		t.started <- struct{}{}
		<-ctx.Done()
		return core.ExitStatusStopped, ctx.Err()
	}
	if t.fail.Load() {
		return core.ExitStatusFailed, errors.New("switch failure")
	}
	return core.ExitStatusCompleted, nil
}
func (t *switchTasklet) Close(ctx context.Context) error { return nil }
func (t *switchTasklet) SetExecutionContext(ctx context.Context, ec core.ExecutionContext) error {
	return nil
}
func (t *switchTasklet) GetExecutionContext(ctx context.Context) (core.ExecutionContext, error) {
	return core.NewExecutionContext(), nil
}

const syncJobYAML = `
id: syncJob
name: sync job
incrementer: run-id
flow:
  start-element: work
  elements:
    work:
      tasklet:
        ref: switch
`

const asyncJobYAML = `
id: asyncJob
name: async job
launch: async
flow:
  start-element: work
  elements:
    work:
      tasklet:
        ref: switch
`

type fixture struct {
	repo    job.JobRepository
	service *service.JobService
	tasklet *switchTasklet
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	conn, err := connector.Open(ctx, config.DatabaseConfig{Type: "sqlite3", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(ctx, conn, "", ""))
	repo := sqlrepo.NewSQLJobRepository(conn)

	tasklet := &switchTasklet{started: make(chan struct{}, 1)}
	registry := component.NewRegistry()
	registry.Register("switch", func(cfg *config.Config, repo job.JobRepository, properties map[string]string) (any, error) {
		return tasklet, nil
	})
	jobFactory := factory.NewJobFactory(config.NewConfig(), repo, registry)
	for _, src := range []string{syncJobYAML, asyncJobYAML} {
		def, err := jsl.LoadJSLDefinitionFromBytes([]byte(src))
		require.NoError(t, err)
		require.NoError(t, jobFactory.RegisterJSL(def))
	}

	launcher := joblauncher.NewSimpleJobLauncher(repo, nil)
	operator := joboperator.NewDefaultJobOperator(repo, jobFactory, launcher)
	svc := service.NewJobService(repo, jobFactory, launcher, operator)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		svc.Close(ctx)
	})
	return &fixture{repo: repo, service: svc, tasklet: tasklet}
}

func TestLaunchUnknownJob(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Launch(context.Background(), "missing", core.NewJobParameters())
	assert.ErrorIs(t, err, exception.ErrNoSuchJob)
}

func TestLaunchAppliesIncrementer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.Launch(ctx, "syncJob", core.NewJobParameters())
	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusCompleted, first.Status)
	runID, ok := first.Parameters.GetLong("run.id")
	require.True(t, ok)
	assert.Equal(t, int64(1), runID)

	last, err := f.service.GetLastJobParameters(ctx, "syncJob")
	require.NoError(t, err)
	second, err := f.service.Launch(ctx, "syncJob", last)
	require.NoError(t, err)
	runID, _ = second.Parameters.GetLong("run.id")
	assert.Equal(t, int64(2), runID)
	assert.NotEqual(t, first.JobInstanceID, second.JobInstanceID)

	count, err := f.service.CountJobInstances(ctx, "syncJob")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	count, err = f.service.CountJobExecutionsForJob(ctx, "syncJob")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestLaunchRestartsFailedExecution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.tasklet.fail.Store(true)
	failed, err := f.service.Launch(ctx, "syncJob", core.NewJobParameters())
	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusFailed, failed.Status)

	// 前回失敗したパラメータで起動すると incrementer は適用されず再起動になる
	f.tasklet.fail.Store(false)
	restarted, err := f.service.Launch(ctx, "syncJob", failed.Parameters)
	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusCompleted, restarted.Status)
	assert.Equal(t, failed.JobInstanceID, restarted.JobInstanceID)

	executions, err := f.service.GetJobExecutionsForJobInstance(ctx, "syncJob", failed.JobInstanceID)
	require.NoError(t, err)
	require.Len(t, executions, 2)
	assert.Equal(t, restarted.ID, executions[0].ID)

	_, err = f.service.GetJobExecutionsForJobInstance(ctx, "asyncJob", failed.JobInstanceID)
	assert.ErrorIs(t, err, exception.ErrNoSuchJobInstance)
}

func TestJobQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	je, err := f.service.Launch(ctx, "syncJob", core.NewJobParameters())
	require.NoError(t, err)

	names, err := f.service.ListJobs(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"asyncJob", "syncJob"}, names)
	names, err = f.service.ListJobs(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"syncJob"}, names)
	total, err := f.service.CountJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	assert.True(t, f.service.IsLaunchable("syncJob"))
	assert.False(t, f.service.IsLaunchable("missing"))
	assert.True(t, f.service.IsIncrementable(ctx, "syncJob"))
	assert.False(t, f.service.IsIncrementable(ctx, "asyncJob"))

	executions, err := f.service.ListJobExecutions(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, je.ID, executions[0].ID)
	total, err = f.service.CountJobExecutions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	instances, err := f.service.ListJobInstances(ctx, "syncJob", 0, 10)
	require.NoError(t, err)
	assert.Len(t, instances, 1)

	steps, err := f.service.GetStepExecutions(ctx, je.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	step, err := f.service.GetStepExecution(ctx, je.ID, steps[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "work", step.StepName)

	other, err := f.service.Launch(ctx, "syncJob", je.Parameters)
	require.NoError(t, err)
	_, err = f.service.GetStepExecution(ctx, other.ID, steps[0].ID)
	assert.ErrorIs(t, err, exception.ErrNoSuchStepExecution)

	for _, call := range []func() error{
		func() error { _, err := f.service.ListJobExecutionsForJob(ctx, "missing", 0, 10); return err },
		func() error { _, err := f.service.CountJobExecutionsForJob(ctx, "missing"); return err },
		func() error { _, err := f.service.ListJobInstances(ctx, "missing", 0, 10); return err },
		func() error { _, err := f.service.CountJobInstances(ctx, "missing"); return err },
		func() error { _, err := f.service.GetLastJobParameters(ctx, "missing"); return err },
	} {
		assert.ErrorIs(t, call(), exception.ErrNoSuchJob)
	}

	params, err := f.service.GetLastJobParameters(ctx, "asyncJob")
	require.NoError(t, err)
	assert.True(t, params.IsEmpty())
}

func TestAsyncLaunchStopAndAbandon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.tasklet.block.Store(true)
	je, err := f.service.Launch(ctx, "asyncJob", core.NewJobParameters())
	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusStarting, je.Status)

	select {
	case <-f.tasklet.started:
	case <-time.After(5 * time.Second):
		t.Fatal("ジョブが開始されませんでした")
	}

	_, err = f.service.Abandon(ctx, je.ID)
	assert.ErrorIs(t, err, exception.ErrJobExecutionAlreadyRunning)

	stopped, err := f.service.StopAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stopped)

	require.Eventually(t, func() bool {
		current, err := f.service.GetJobExecution(ctx, je.ID)
		return err == nil && current.Status == core.BatchStatusStopped
	}, 5*time.Second, 20*time.Millisecond)

	_, err = f.service.Stop(ctx, je.ID)
	assert.ErrorIs(t, err, exception.ErrJobExecutionNotRunning)

	abandoned, err := f.service.Abandon(ctx, je.ID)
	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusAbandoned, abandoned.Status)
}

func TestRestartStoppedExecution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.tasklet.block.Store(true)
	je, err := f.service.Launch(ctx, "asyncJob", core.NewJobParameters())
	require.NoError(t, err)
	<-f.tasklet.started
	_, err = f.service.Stop(ctx, je.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		current, err := f.service.GetJobExecution(ctx, je.ID)
		return err == nil && current.Status == core.BatchStatusStopped
	}, 5*time.Second, 20*time.Millisecond)

	f.tasklet.block.Store(false)
	restarted, err := f.service.Restart(ctx, je.ID)
	require.NoError(t, err)
	assert.Equal(t, je.JobInstanceID, restarted.JobInstanceID)
	require.Eventually(t, func() bool {
		current, err := f.service.GetJobExecution(ctx, restarted.ID)
		return err == nil && current.Status == core.BatchStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)
}
