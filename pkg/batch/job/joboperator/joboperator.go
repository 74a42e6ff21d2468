package joboperator

import (
	"context"

	core "batchadmin/pkg/batch/job/core"
)

// JobOperator はバッチ実行の管理操作を行うためのインターフェースです。
// JSR352 の JobOperator に相当します。
type JobOperator interface {
	// Start はジョブを非同期で起動し、JobExecution の ID を返します。
	Start(ctx context.Context, jobName string, params core.JobParameters) (string, error)

	// Restart は指定された JobExecution の JobInstance を再開します。
	Restart(ctx context.Context, executionID string) (*core.JobExecution, error)

	// Stop は指定された JobExecution を停止します。
	Stop(ctx context.Context, executionID string) error

	// Abandon は停止済みの JobExecution を放棄し、再起動の対象外にします。
	Abandon(ctx context.Context, executionID string) (*core.JobExecution, error)

	// GetJobExecution は指定された ID の JobExecution を取得します。
	GetJobExecution(ctx context.Context, executionID string) (*core.JobExecution, error)

	// GetJobExecutions は指定された JobInstance に関連する全ての JobExecution を取得します。
	GetJobExecutions(ctx context.Context, instanceID string) ([]*core.JobExecution, error)

	// GetLastJobExecution は指定された JobInstance の最新の JobExecution を取得します。
	GetLastJobExecution(ctx context.Context, instanceID string) (*core.JobExecution, error)

	// GetJobInstance は指定された ID の JobInstance を取得します。
	GetJobInstance(ctx context.Context, instanceID string) (*core.JobInstance, error)

	// GetJobInstances はジョブ名の JobInstance を新しい順に返します。
	GetJobInstances(ctx context.Context, jobName string, start, count int) ([]*core.JobInstance, error)

	// GetStepExecutions は JobExecution の StepExecution を開始順に返します。
	GetStepExecutions(ctx context.Context, executionID string) ([]*core.StepExecution, error)

	// GetJobNames は登録されている全てのジョブ名を取得します。
	GetJobNames(ctx context.Context) ([]string, error)

	// GetRunningExecutions は実行中の JobExecution の ID を返します。
	GetRunningExecutions(ctx context.Context, jobName string) ([]string, error)

	// GetParameters は指定された JobExecution の JobParameters を取得します。
	GetParameters(ctx context.Context, executionID string) (core.JobParameters, error)
}
