package job

import (
	"context"

	core "batchadmin/pkg/batch/job/core"
)

// JobInstance は JobInstance の永続化と取得に関する操作を定義します。
type JobInstance interface {
	// CreateJobInstance はジョブ名と識別パラメータから JobInstance を作成・永続化します。
	CreateJobInstance(ctx context.Context, jobName string, params core.JobParameters) (*core.JobInstance, error)

	// FindJobInstanceByJobNameAndParameters は一致する JobInstance を検索します。見つからない場合は nil を返します。
	FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params core.JobParameters) (*core.JobInstance, error)

	// FindJobInstanceByID は指定された ID の JobInstance を検索します。
	// 見つからない場合は exception.ErrNoSuchJobInstance を返します。
	FindJobInstanceByID(ctx context.Context, instanceID string) (*core.JobInstance, error)

	// FindJobInstancesByJobName は新しい順に JobInstance を返します。
	FindJobInstancesByJobName(ctx context.Context, jobName string, start, count int) ([]*core.JobInstance, error)

	// CountJobInstances は指定されたジョブ名の JobInstance の数を返します。
	CountJobInstances(ctx context.Context, jobName string) (int, error)

	// GetJobNames はリポジトリに存在する全てのジョブ名をソートして返します。
	GetJobNames(ctx context.Context) ([]string, error)
}
