package writer

import (
	"context"
	"strconv"

	"batchadmin/pkg/batch/config"
	"batchadmin/pkg/batch/database"
	core "batchadmin/pkg/batch/job/core"
	"batchadmin/pkg/batch/repository/job"
	itemwriter "batchadmin/pkg/batch/step/writer"
	exception "batchadmin/pkg/batch/util/exception"
	logger "batchadmin/pkg/batch/util/logger"
)

// FailParameter はこの Writer を失敗させるジョブパラメータ名です。
const FailParameter = "fail"

// ExampleItemWriter はアイテムをログに出力するだけの Writer です。
// ジョブパラメータ fail が "true" の場合は書き込み時に失敗します。
type ExampleItemWriter struct {
	fail             bool
	executionContext core.ExecutionContext
}

// NewExampleItemWriter は新しい ExampleItemWriter を作成します。
// properties の fail はジョブパラメータが無い場合の既定値です。
func NewExampleItemWriter(cfg *config.Config, repo job.JobRepository, properties map[string]string) (*ExampleItemWriter, error) {
	w := &ExampleItemWriter{executionContext: core.NewExecutionContext()}
	if v, ok := properties[FailParameter]; ok {
		fail, err := strconv.ParseBool(v)
		if err != nil {
			return nil, exception.NewBatchError("example_item_writer", "プロパティ fail が不正です", err, false, false)
		}
		w.fail = fail
	}
	return w, nil
}

// BeforeStep はジョブパラメータから fail を読み取ります。
func (w *ExampleItemWriter) BeforeStep(ctx context.Context, stepExecution *core.StepExecution) {
	if stepExecution.JobExecution == nil {
		return
	}
	if fail, ok := stepExecution.JobExecution.Parameters.GetBool(FailParameter); ok {
		w.fail = fail
	}
}

// AfterStep は何もしません。
func (w *ExampleItemWriter) AfterStep(ctx context.Context, stepExecution *core.StepExecution) {}

// Write はアイテムをログに出力します。
func (w *ExampleItemWriter) Write(ctx context.Context, tx database.Tx, items []any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if w.fail {
		return exception.NewBatchErrorf("example_item_writer", "計画された失敗です (アイテム数: %d)", len(items))
	}
	for _, item := range items {
		logger.Infof("ExampleItemWriter: %v", item)
	}
	return nil
}

// Close は何もしません。
func (w *ExampleItemWriter) Close(ctx context.Context) error {
	return nil
}

// SetExecutionContext は ExecutionContext を保持します。
func (w *ExampleItemWriter) SetExecutionContext(ctx context.Context, ec core.ExecutionContext) error {
	w.executionContext = ec
	return nil
}

// GetExecutionContext は保持している ExecutionContext を返します。
func (w *ExampleItemWriter) GetExecutionContext(ctx context.Context) (core.ExecutionContext, error) {
	return w.executionContext, nil
}

var (
	_ itemwriter.Writer[any]     = (*ExampleItemWriter)(nil)
	_ core.StepExecutionListener = (*ExampleItemWriter)(nil)
)
