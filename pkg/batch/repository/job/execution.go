package job

import (
	"context"

	core "batchadmin/pkg/batch/job/core"
)

// JobExecution は JobExecution の永続化と取得に関する操作を定義します。
// 一覧系のメソッドは作成日時の新しい順に返します。
type JobExecution interface {
	// SaveJobExecution は新しい JobExecution とそのパラメータを永続化します。ID が空なら採番します。
	SaveJobExecution(ctx context.Context, jobExecution *core.JobExecution) error

	// UpdateJobExecution は既存の JobExecution を楽観的ロック付きで更新し、Version を進めます。
	UpdateJobExecution(ctx context.Context, jobExecution *core.JobExecution) error

	// FindJobExecutionByID はパラメータと StepExecution を含めて JobExecution を取得します。
	// 見つからない場合は exception.ErrNoSuchJobExecution を返します。
	FindJobExecutionByID(ctx context.Context, executionID string) (*core.JobExecution, error)

	// FindLatestJobExecution は JobInstance の最新の JobExecution を返します。無い場合は nil です。
	FindLatestJobExecution(ctx context.Context, jobInstanceID string) (*core.JobExecution, error)

	// GetLastJobExecution はジョブ名とパラメータに対応する JobInstance の最新実行を返します。無い場合は nil です。
	GetLastJobExecution(ctx context.Context, jobName string, params core.JobParameters) (*core.JobExecution, error)

	FindJobExecutionsByJobInstance(ctx context.Context, jobInstanceID string) ([]*core.JobExecution, error)
	FindJobExecutions(ctx context.Context, start, count int) ([]*core.JobExecution, error)
	FindJobExecutionsByJobName(ctx context.Context, jobName string, start, count int) ([]*core.JobExecution, error)

	// FindRunningJobExecutions は実行中の JobExecution を返します。jobName が空なら全ジョブが対象です。
	FindRunningJobExecutions(ctx context.Context, jobName string) ([]*core.JobExecution, error)

	CountJobExecutions(ctx context.Context) (int, error)
	CountJobExecutionsByJobName(ctx context.Context, jobName string) (int, error)
}
