package joboperator

import (
	"context"
	"fmt"

	core "batchadmin/pkg/batch/job/core"
	"batchadmin/pkg/batch/job/factory"
	"batchadmin/pkg/batch/job/joblauncher"
	"batchadmin/pkg/batch/repository/job"
	exception "batchadmin/pkg/batch/util/exception"
	logger "batchadmin/pkg/batch/util/logger"
)

// DefaultJobOperator は JobOperator インターフェースのデフォルト実装です。
// JobRepository を使用してバッチメタデータを管理し、ジョブの実行を調整します。
type DefaultJobOperator struct {
	jobRepository job.JobRepository
	jobFactory    *factory.JobFactory
	jobLauncher   *joblauncher.SimpleJobLauncher
}

// DefaultJobOperator が JobOperator インターフェースを満たすことを確認します。
var _ JobOperator = (*DefaultJobOperator)(nil)

// NewDefaultJobOperator は新しい DefaultJobOperator のインスタンスを作成します。
func NewDefaultJobOperator(jobRepository job.JobRepository, jobFactory *factory.JobFactory, jobLauncher *joblauncher.SimpleJobLauncher) *DefaultJobOperator {
	return &DefaultJobOperator{
		jobRepository: jobRepository,
		jobFactory:    jobFactory,
		jobLauncher:   jobLauncher,
	}
}

// Start はジョブを非同期で起動し、JobExecution の ID を返します。
func (o *DefaultJobOperator) Start(ctx context.Context, jobName string, params core.JobParameters) (string, error) {
	jobExecution, err := o.StartExecution(ctx, jobName, params)
	if err != nil {
		return "", err
	}
	return jobExecution.ID, nil
}

// StartExecution はジョブを非同期で起動し、STARTING 状態の JobExecution のスナップショットを返します。
func (o *DefaultJobOperator) StartExecution(ctx context.Context, jobName string, params core.JobParameters) (*core.JobExecution, error) {
	logger.Infof("JobOperator: ジョブ '%s' を非同期で起動します。", jobName)
	batchJob, err := o.jobFactory.CreateJob(ctx, jobName)
	if err != nil {
		return nil, err
	}
	return o.jobLauncher.LaunchWith(ctx, batchJob, params, joblauncher.AsyncTaskExecutor{})
}

// Restart は指定された JobExecution を再開します。
// FAILED または STOPPED で終わった JobExecution のみ対象で、ジョブの起動方式に従って実行します。
func (o *DefaultJobOperator) Restart(ctx context.Context, executionID string) (*core.JobExecution, error) {
	logger.Infof("JobOperator: JobExecution (ID: %s) の再起動を要求されました。", executionID)

	prev, err := o.jobRepository.FindJobExecutionByID(ctx, executionID)
	if err != nil {
		return nil, exception.NewBatchError("job_operator", fmt.Sprintf("再起動処理エラー: JobExecution (ID: %s) のロードに失敗しました", executionID), err, false, false)
	}
	if prev.IsRunning() {
		return nil, exception.NewBatchErrorf("job_operator", "JobExecution (ID: %s): %w", executionID, exception.ErrJobExecutionAlreadyRunning)
	}
	if !prev.Status.IsUnsuccessful() || prev.Status == core.BatchStatusAbandoned {
		return nil, exception.NewBatchErrorf("job_operator", "JobExecution (ID: %s) は再起動可能な状態ではありません (現在の状態: %s): %w", executionID, prev.Status, exception.ErrJobRestart)
	}

	latest, err := o.jobRepository.FindLatestJobExecution(ctx, prev.JobInstanceID)
	if err != nil {
		return nil, exception.NewBatchError("job_operator", "再起動処理エラー: 最新の JobExecution の取得に失敗しました", err, false, false)
	}
	if latest != nil && latest.ID != prev.ID {
		return nil, exception.NewBatchErrorf("job_operator", "JobExecution (ID: %s) は JobInstance の最新の実行ではありません (最新: %s): %w", executionID, latest.ID, exception.ErrJobRestart)
	}

	batchJob, err := o.jobFactory.CreateJob(ctx, prev.JobName)
	if err != nil {
		return nil, err
	}

	var executor joblauncher.TaskExecutor = joblauncher.SyncTaskExecutor{}
	if o.jobFactory.LaunchMode(prev.JobName) == factory.LaunchModeAsync {
		executor = joblauncher.AsyncTaskExecutor{}
	}
	return o.jobLauncher.LaunchWith(ctx, batchJob, prev.Parameters, executor)
}

// Stop は指定された JobExecution を停止します。
// このプロセスで実行中ならキャンセルし、そうでなければ STOPPING として記録します。
func (o *DefaultJobOperator) Stop(ctx context.Context, executionID string) error {
	logger.Infof("JobOperator: JobExecution (ID: %s) の停止を要求されました。", executionID)

	jobExecution, err := o.jobRepository.FindJobExecutionByID(ctx, executionID)
	if err != nil {
		return exception.NewBatchError("job_operator", fmt.Sprintf("停止処理エラー: JobExecution (ID: %s) のロードに失敗しました", executionID), err, false, false)
	}
	if !jobExecution.IsRunning() {
		return exception.NewBatchErrorf("job_operator", "JobExecution (ID: %s) の状態は %s です: %w", executionID, jobExecution.Status, exception.ErrJobExecutionNotRunning)
	}

	if o.jobLauncher.Stop(executionID) {
		return nil
	}

	// 他のプロセスで実行中のジョブは状態のみ更新する
	jobExecution.Status = core.BatchStatusStopping
	if err := o.jobRepository.UpdateJobExecution(ctx, jobExecution); err != nil {
		return exception.NewBatchError("job_operator", fmt.Sprintf("停止処理エラー: JobExecution (ID: %s) の状態更新に失敗しました", executionID), err, false, false)
	}
	logger.Infof("JobExecution (ID: %s) を STOPPING に更新しました。", executionID)
	return nil
}

// Abandon は指定された JobExecution を放棄します。STARTING / STARTED の実行は放棄できません。
func (o *DefaultJobOperator) Abandon(ctx context.Context, executionID string) (*core.JobExecution, error) {
	logger.Infof("JobOperator: JobExecution (ID: %s) の放棄を要求されました。", executionID)

	jobExecution, err := o.jobRepository.FindJobExecutionByID(ctx, executionID)
	if err != nil {
		return nil, exception.NewBatchError("job_operator", fmt.Sprintf("放棄処理エラー: JobExecution (ID: %s) のロードに失敗しました", executionID), err, false, false)
	}
	if jobExecution.Status == core.BatchStatusStarting || jobExecution.Status == core.BatchStatusStarted {
		return nil, exception.NewBatchErrorf("job_operator", "JobExecution (ID: %s) は実行中のため放棄できません: %w", executionID, exception.ErrJobExecutionAlreadyRunning)
	}

	jobExecution.MarkAsAbandoned()
	if jobExecution.EndTime.IsZero() {
		jobExecution.EndTime = jobExecution.LastUpdated
	}
	if err := o.jobRepository.UpdateJobExecution(ctx, jobExecution); err != nil {
		return nil, exception.NewBatchError("job_operator", fmt.Sprintf("放棄処理エラー: JobExecution (ID: %s) の状態更新に失敗しました", executionID), err, false, false)
	}
	logger.Infof("JobExecution (ID: %s) を放棄しました。", executionID)
	return jobExecution, nil
}

// GetJobExecution は指定された ID の JobExecution を取得します。
func (o *DefaultJobOperator) GetJobExecution(ctx context.Context, executionID string) (*core.JobExecution, error) {
	return o.jobRepository.FindJobExecutionByID(ctx, executionID)
}

// GetJobExecutions は指定された JobInstance に関連する全ての JobExecution を取得します。
func (o *DefaultJobOperator) GetJobExecutions(ctx context.Context, instanceID string) ([]*core.JobExecution, error) {
	if _, err := o.jobRepository.FindJobInstanceByID(ctx, instanceID); err != nil {
		return nil, err
	}
	return o.jobRepository.FindJobExecutionsByJobInstance(ctx, instanceID)
}

// GetLastJobExecution は指定された JobInstance の最新の JobExecution を取得します。無い場合は nil です。
func (o *DefaultJobOperator) GetLastJobExecution(ctx context.Context, instanceID string) (*core.JobExecution, error) {
	return o.jobRepository.FindLatestJobExecution(ctx, instanceID)
}

// GetJobInstance は指定された ID の JobInstance を取得します。
func (o *DefaultJobOperator) GetJobInstance(ctx context.Context, instanceID string) (*core.JobInstance, error) {
	return o.jobRepository.FindJobInstanceByID(ctx, instanceID)
}

// GetJobInstances はジョブ名の JobInstance を新しい順に返します。
func (o *DefaultJobOperator) GetJobInstances(ctx context.Context, jobName string, start, count int) ([]*core.JobInstance, error) {
	return o.jobRepository.FindJobInstancesByJobName(ctx, jobName, start, count)
}

// GetStepExecutions は JobExecution の StepExecution を開始順に返します。
func (o *DefaultJobOperator) GetStepExecutions(ctx context.Context, executionID string) ([]*core.StepExecution, error) {
	if _, err := o.jobRepository.FindJobExecutionByID(ctx, executionID); err != nil {
		return nil, err
	}
	return o.jobRepository.FindStepExecutionsByJobExecutionID(ctx, executionID)
}

// GetJobNames は JobFactory に登録されている全てのジョブ名を返します。
func (o *DefaultJobOperator) GetJobNames(ctx context.Context) ([]string, error) {
	return o.jobFactory.GetJobNames(), nil
}

// GetRunningExecutions は実行中の JobExecution の ID を返します。jobName が空なら全ジョブが対象です。
func (o *DefaultJobOperator) GetRunningExecutions(ctx context.Context, jobName string) ([]string, error) {
	executions, err := o.jobRepository.FindRunningJobExecutions(ctx, jobName)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(executions))
	for _, je := range executions {
		ids = append(ids, je.ID)
	}
	return ids, nil
}

// GetParameters は指定された JobExecution の JobParameters を取得します。
func (o *DefaultJobOperator) GetParameters(ctx context.Context, executionID string) (core.JobParameters, error) {
	jobExecution, err := o.jobRepository.FindJobExecutionByID(ctx, executionID)
	if err != nil {
		return core.JobParameters{}, err
	}
	return jobExecution.Parameters, nil
}

// Wait は非同期で起動したジョブの終了を待ちます。
func (o *DefaultJobOperator) Wait() {
	o.jobLauncher.Wait()
}
