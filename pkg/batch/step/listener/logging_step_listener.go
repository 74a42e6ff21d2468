package listener

import (
	"context"

	core "batchadmin/pkg/batch/job/core"
	logger "batchadmin/pkg/batch/util/logger"
)

// LoggingStepListener はステップの開始と終了をログに出力します。
type LoggingStepListener struct{}

// NewLoggingStepListener は新しい LoggingStepListener のインスタンスを作成します。
func NewLoggingStepListener() *LoggingStepListener {
	return &LoggingStepListener{}
}

// BeforeStep はステップ開始前に呼び出されます。
func (l *LoggingStepListener) BeforeStep(ctx context.Context, stepExecution *core.StepExecution) {
	logger.Infof("ステップ '%s' (Execution ID: %s) を開始します。", stepExecution.StepName, stepExecution.ID)
}

// AfterStep はステップ終了後に呼び出されます。
func (l *LoggingStepListener) AfterStep(ctx context.Context, stepExecution *core.StepExecution) {
	logger.Infof("ステップ '%s' (Execution ID: %s) が終了しました。ステータス: %s, 終了ステータス: %s, 読込: %d, 書込: %d, フィルタ: %d, コミット: %d, ロールバック: %d",
		stepExecution.StepName, stepExecution.ID, stepExecution.Status, stepExecution.ExitStatus,
		stepExecution.ReadCount, stepExecution.WriteCount, stepExecution.FilterCount,
		stepExecution.CommitCount, stepExecution.RollbackCount)
}

var _ core.StepExecutionListener = (*LoggingStepListener)(nil)
