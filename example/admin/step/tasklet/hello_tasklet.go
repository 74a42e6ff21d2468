package tasklet

import (
	"context"

	"batchadmin/pkg/batch/config"
	core "batchadmin/pkg/batch/job/core"
	"batchadmin/pkg/batch/repository/job"
	logger "batchadmin/pkg/batch/util/logger"
)

// HelloTasklet は挨拶をログに出力して完了する Tasklet です。
type HelloTasklet struct {
	greeting         string
	executionContext core.ExecutionContext
}

// NewHelloTasklet は新しい HelloTasklet を作成します。
func NewHelloTasklet(cfg *config.Config, repo job.JobRepository, properties map[string]string) (*HelloTasklet, error) {
	greeting := "Hello World!"
	if g, ok := properties["greeting"]; ok && g != "" {
		greeting = g
	}
	return &HelloTasklet{greeting: greeting, executionContext: core.NewExecutionContext()}, nil
}

// Execute は挨拶を出力します。
func (t *HelloTasklet) Execute(ctx context.Context, stepExecution *core.StepExecution) (core.ExitStatus, error) {
	select {
	case <-ctx.Done():
		logger.Warnf("HelloTasklet '%s': Context がキャンセルされたため中断します: %v", stepExecution.StepName, ctx.Err())
		return core.ExitStatusStopped, ctx.Err()
	default:
	}
	logger.Infof("HelloTasklet '%s': %s", stepExecution.StepName, t.greeting)
	t.executionContext.Put("greeting", t.greeting)
	return core.ExitStatusCompleted, nil
}

// Close は何もしません。
func (t *HelloTasklet) Close(ctx context.Context) error {
	return nil
}

// SetExecutionContext は ExecutionContext を保持します。
func (t *HelloTasklet) SetExecutionContext(ctx context.Context, ec core.ExecutionContext) error {
	if ec == nil {
		ec = core.NewExecutionContext()
	}
	t.executionContext = ec
	return nil
}

// GetExecutionContext は保持している ExecutionContext を返します。
func (t *HelloTasklet) GetExecutionContext(ctx context.Context) (core.ExecutionContext, error) {
	return t.executionContext, nil
}

var _ core.Tasklet = (*HelloTasklet)(nil)
