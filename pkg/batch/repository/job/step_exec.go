package job

import (
	"context"

	core "batchadmin/pkg/batch/job/core"
)

// StepExecution は StepExecution の永続化と取得に関する操作を定義します。
type StepExecution interface {
	// SaveStepExecution は新しい StepExecution を永続化します。ID が空なら採番します。
	SaveStepExecution(ctx context.Context, stepExecution *core.StepExecution) error

	// UpdateStepExecution は既存の StepExecution を楽観的ロック付きで更新します。
	UpdateStepExecution(ctx context.Context, stepExecution *core.StepExecution) error

	// FindStepExecutionByID は見つからない場合 exception.ErrNoSuchStepExecution を返します。
	FindStepExecutionByID(ctx context.Context, executionID string) (*core.StepExecution, error)

	// FindStepExecutionsByJobExecutionID は開始順に StepExecution を返します。
	FindStepExecutionsByJobExecutionID(ctx context.Context, jobExecutionID string) ([]*core.StepExecution, error)

	// FindLastStepExecution は JobInstance の全実行を通じて、指定ステップの最新の StepExecution を返します。
	// 再起動時に完了済みステップを判定するために使用します。無い場合は nil です。
	FindLastStepExecution(ctx context.Context, jobInstanceID, stepName string) (*core.StepExecution, error)
}
