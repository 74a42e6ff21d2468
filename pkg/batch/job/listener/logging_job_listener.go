package listener

import (
	"context"

	core "batchadmin/pkg/batch/job/core"
	logger "batchadmin/pkg/batch/util/logger"
)

// LoggingJobListener はジョブの開始と終了をログに出力する JobExecutionListener です。
type LoggingJobListener struct{}

// NewLoggingJobListener は新しい LoggingJobListener を作成します。
func NewLoggingJobListener() *LoggingJobListener {
	return &LoggingJobListener{}
}

// BeforeJob はジョブ開始前に呼び出されます。
func (l *LoggingJobListener) BeforeJob(ctx context.Context, jobExecution *core.JobExecution) {
	logger.Infof("ジョブ '%s' (Execution ID: %s) を開始します。パラメータ: %s",
		jobExecution.JobName, jobExecution.ID, jobExecution.Parameters)
}

// AfterJob はジョブ終了後に呼び出されます。
func (l *LoggingJobListener) AfterJob(ctx context.Context, jobExecution *core.JobExecution) {
	duration := jobExecution.EndTime.Sub(jobExecution.StartTime)
	if jobExecution.Status == core.BatchStatusCompleted {
		logger.Infof("ジョブ '%s' (Execution ID: %s) が完了しました。終了ステータス: %s, 所要時間: %s",
			jobExecution.JobName, jobExecution.ID, jobExecution.ExitStatus, duration)
		return
	}
	logger.Warnf("ジョブ '%s' (Execution ID: %s) が終了しました。ステータス: %s, 終了ステータス: %s, メッセージ: %s",
		jobExecution.JobName, jobExecution.ID, jobExecution.Status, jobExecution.ExitStatus, jobExecution.ExitMessage)
}

var _ core.JobExecutionListener = (*LoggingJobListener)(nil)
