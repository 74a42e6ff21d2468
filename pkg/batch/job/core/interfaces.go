package core

import (
	"context"
)

// FlowElement はフロー内の要素（Step または Decision）の共通インターフェースです。
type FlowElement interface {
	ID() string
}

// Job は実行可能なバッチジョブのインターフェースです。
// Run はジョブやステップの失敗を jobExecution に記録し、error は返しません。
// error を返すのはリポジトリ障害など実行基盤側の問題に限ります。
type Job interface {
	Run(ctx context.Context, jobExecution *JobExecution, jobParameters JobParameters) error
	JobName() string
	GetFlow() *FlowDefinition
	ValidateParameters(params JobParameters) error
	Incrementer() JobParametersIncrementer
	Restartable() bool
}

// Step はジョブ内で実行される単一のステップのインターフェースです。
type Step interface {
	Execute(ctx context.Context, jobExecution *JobExecution, stepExecution *StepExecution) error
	StepName() string
	ID() string
}

// Tasklet は単一の操作を実行するステップ本体です。JSR-352 の Batchlet に相当します。
type Tasklet interface {
	Execute(ctx context.Context, stepExecution *StepExecution) (ExitStatus, error)
	Close(ctx context.Context) error
	SetExecutionContext(ctx context.Context, ec ExecutionContext) error
	GetExecutionContext(ctx context.Context) (ExecutionContext, error)
}

// Decision はフロー内の条件分岐ポイントです。
type Decision interface {
	Decide(ctx context.Context, jobExecution *JobExecution, jobParameters JobParameters) (ExitStatus, error)
	DecisionName() string
	ID() string
}

// JobParametersIncrementer は次回実行用の JobParameters を生成します。
type JobParametersIncrementer interface {
	GetNext(params JobParameters) JobParameters
}

// JobExecutionListener はジョブの実行ライフサイクルイベントを受け取ります。
type JobExecutionListener interface {
	BeforeJob(ctx context.Context, jobExecution *JobExecution)
	AfterJob(ctx context.Context, jobExecution *JobExecution)
}

// StepExecutionListener はステップ実行イベントを受け取ります。
type StepExecutionListener interface {
	BeforeStep(ctx context.Context, stepExecution *StepExecution)
	AfterStep(ctx context.Context, stepExecution *StepExecution)
}

// ChunkListener はチャンク単位のイベントを受け取ります。
type ChunkListener interface {
	BeforeChunk(ctx context.Context, stepExecution *StepExecution)
	AfterChunk(ctx context.Context, stepExecution *StepExecution)
	AfterChunkError(ctx context.Context, stepExecution *StepExecution, err error)
}
