package initializer_test

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batchadmin/pkg/batch/config"
	core "batchadmin/pkg/batch/job/core"
	"batchadmin/pkg/batch/job/factory"
	"batchadmin/pkg/batch/initializer"
	"batchadmin/pkg/batch/repository/job"
)

type okTasklet struct{}

func (okTasklet) Execute(ctx context.Context, se *core.StepExecution) (core.ExitStatus, error) {
	return core.ExitStatusCompleted, nil
}
func (okTasklet) Close(ctx context.Context) error { return nil }
func (okTasklet) SetExecutionContext(ctx context.Context, ec core.ExecutionContext) error {
	return nil
}
func (okTasklet) GetExecutionContext(ctx context.Context) (core.ExecutionContext, error) {
	return core.NewExecutionContext(), nil
}

const jobYAML = `
id: fsJob
name: job from fs
flow:
  start-element: only
  elements:
    only:
      tasklet:
        ref: ok
`

func newConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Database.Path = ":memory:"
	cfg.Batch.JobDefinitions = []string{"jobs/fs-job.yaml"}
	return cfg
}

func newInitializer(cfg *config.Config) *initializer.BatchInitializer {
	bi := initializer.NewBatchInitializer(cfg)
	bi.JobDefinitionFS = fstest.MapFS{"jobs/fs-job.yaml": {Data: []byte(jobYAML)}}
	bi.Registry.Register("ok", func(cfg *config.Config, repo job.JobRepository, properties map[string]string) (any, error) {
		return okTasklet{}, nil
	})
	return bi
}

func TestInitialize(t *testing.T) {
	ctx := context.Background()
	bi := newInitializer(newConfig())
	registered := false
	bi.JobRegistrars = append(bi.JobRegistrars, func(f *factory.JobFactory) error {
		registered = f.IsRegistered("fsJob")
		f.SetLaunchMode("fsJob", factory.LaunchModeSync)
		return nil
	})

	svc, err := bi.Initialize(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, bi.Close(ctx)) })

	assert.True(t, registered)
	assert.Equal(t, []string{"fsJob"}, bi.JobFactory.GetJobNames())

	je, err := svc.Launch(ctx, "fsJob", core.NewJobParameters())
	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusCompleted, je.Status)
}

func TestInitializeErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(bi *initializer.BatchInitializer)
	}{
		{
			name: "未対応のデータベース",
			modify: func(bi *initializer.BatchInitializer) {
				bi.Config.Database.Type = "oracle"
				bi.Config.Database.ConnectRetries = 2
			},
		},
		{
			name: "JSL ファイルが存在しない",
			modify: func(bi *initializer.BatchInitializer) {
				bi.Config.Batch.JobDefinitions = []string{"jobs/missing.yaml"}
			},
		},
		{
			name: "JobDefinitionFS が未設定",
			modify: func(bi *initializer.BatchInitializer) {
				bi.JobDefinitionFS = nil
			},
		},
		{
			name: "登録処理のエラー",
			modify: func(bi *initializer.BatchInitializer) {
				bi.JobRegistrars = append(bi.JobRegistrars, func(f *factory.JobFactory) error {
					return errors.New("registrar failure")
				})
			},
		},
		{
			name: "JSL の start-element が無い",
			modify: func(bi *initializer.BatchInitializer) {
				bi.JobDefinitionFS = fstest.MapFS{"jobs/fs-job.yaml": {Data: []byte(
					"id: broken\nname: broken\nflow:\n  elements:\n    only:\n      tasklet:\n        ref: ok\n")}}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bi := newInitializer(newConfig())
			tt.modify(bi)
			_, err := bi.Initialize(context.Background())
			assert.Error(t, err)
			assert.Nil(t, bi.JobService)
			assert.NoError(t, bi.Close(context.Background()))
		})
	}
}
