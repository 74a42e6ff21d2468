package service

import (
	"context"
	"fmt"
	"sort"

	core "batchadmin/pkg/batch/job/core"
	"batchadmin/pkg/batch/job/factory"
	"batchadmin/pkg/batch/job/joblauncher"
	"batchadmin/pkg/batch/job/joboperator"
	"batchadmin/pkg/batch/repository/job"
	exception "batchadmin/pkg/batch/util/exception"
	logger "batchadmin/pkg/batch/util/logger"
)

// JobService はジョブの起動、実行履歴の参照、実行制御をまとめた管理用のサービスです。
type JobService struct {
	jobRepository job.JobRepository
	jobFactory    *factory.JobFactory
	jobLauncher   *joblauncher.SimpleJobLauncher
	jobOperator   *joboperator.DefaultJobOperator
}

// NewJobService は新しい JobService を作成します。
func NewJobService(
	jobRepository job.JobRepository,
	jobFactory *factory.JobFactory,
	jobLauncher *joblauncher.SimpleJobLauncher,
	jobOperator *joboperator.DefaultJobOperator,
) *JobService {
	return &JobService{
		jobRepository: jobRepository,
		jobFactory:    jobFactory,
		jobLauncher:   jobLauncher,
		jobOperator:   jobOperator,
	}
}

// Launch はジョブを起動します。
//
// 前回の実行が失敗または停止で終わっていれば同じパラメータで再起動し、
// そうでなければジョブの JobParametersIncrementer で次のパラメータを生成します。
// 起動方式が async のジョブは STARTING 状態のスナップショットを返します。
func (s *JobService) Launch(ctx context.Context, jobName string, params core.JobParameters) (*core.JobExecution, error) {
	if !s.jobFactory.IsRegistered(jobName) {
		return nil, exception.NewBatchErrorf("job_service", "ジョブ '%s' は起動できません: %w", jobName, exception.ErrNoSuchJob)
	}
	if params.Params == nil {
		params = core.NewJobParameters()
	}
	batchJob, err := s.jobFactory.CreateJob(ctx, jobName)
	if err != nil {
		return nil, err
	}

	lastExecution, err := s.jobRepository.GetLastJobExecution(ctx, jobName, params)
	if err != nil {
		return nil, exception.NewBatchError("job_service", fmt.Sprintf("ジョブ '%s' の前回の実行の取得に失敗しました", jobName), err, false, false)
	}
	restart := lastExecution != nil && lastExecution.Status.IsUnsuccessful() && lastExecution.Status != core.BatchStatusAbandoned
	if !restart {
		if inc := batchJob.Incrementer(); inc != nil {
			params = inc.GetNext(params)
			logger.Debugf("ジョブ '%s': JobParametersIncrementer でパラメータを更新しました: %s", jobName, params)
		}
	}

	if s.jobFactory.LaunchMode(jobName) == factory.LaunchModeAsync {
		return s.jobOperator.StartExecution(ctx, jobName, params)
	}
	return s.jobLauncher.LaunchWith(ctx, batchJob, params, joblauncher.SyncTaskExecutor{})
}

// GetJobExecution は ID で JobExecution を取得します。
func (s *JobService) GetJobExecution(ctx context.Context, executionID string) (*core.JobExecution, error) {
	return s.jobRepository.FindJobExecutionByID(ctx, executionID)
}

// GetJobExecutionsForJobInstance は JobInstance の JobExecution を新しい順に返します。
func (s *JobService) GetJobExecutionsForJobInstance(ctx context.Context, jobName, instanceID string) ([]*core.JobExecution, error) {
	instance, err := s.jobRepository.FindJobInstanceByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if instance.JobName != jobName {
		return nil, exception.NewBatchErrorf("job_service", "JobInstance (ID: %s) はジョブ '%s' のものではありません: %w", instanceID, jobName, exception.ErrNoSuchJobInstance)
	}
	return s.jobRepository.FindJobExecutionsByJobInstance(ctx, instanceID)
}

// GetStepExecutions は JobExecution の StepExecution を開始順に返します。
func (s *JobService) GetStepExecutions(ctx context.Context, executionID string) ([]*core.StepExecution, error) {
	return s.jobOperator.GetStepExecutions(ctx, executionID)
}

// GetStepExecution は JobExecution に属する StepExecution を取得します。
func (s *JobService) GetStepExecution(ctx context.Context, executionID, stepExecutionID string) (*core.StepExecution, error) {
	stepExecution, err := s.jobRepository.FindStepExecutionByID(ctx, stepExecutionID)
	if err != nil {
		return nil, err
	}
	if stepExecution.JobExecutionID() != executionID {
		return nil, exception.NewBatchErrorf("job_service", "StepExecution (ID: %s) は JobExecution (ID: %s) のものではありません: %w", stepExecutionID, executionID, exception.ErrNoSuchStepExecution)
	}
	return stepExecution, nil
}

// ListJobs は登録済みのジョブと実行履歴のあるジョブの名前をソートして返します。
func (s *JobService) ListJobs(ctx context.Context, start, count int) ([]string, error) {
	names, err := s.allJobNames(ctx)
	if err != nil {
		return nil, err
	}
	return page(names, start, count), nil
}

// CountJobs は ListJobs の対象となるジョブの数を返します。
func (s *JobService) CountJobs(ctx context.Context) (int, error) {
	names, err := s.allJobNames(ctx)
	if err != nil {
		return 0, err
	}
	return len(names), nil
}

func (s *JobService) allJobNames(ctx context.Context) ([]string, error) {
	set := make(map[string]struct{})
	for _, name := range s.jobFactory.GetJobNames() {
		set[name] = struct{}{}
	}
	stored, err := s.jobRepository.GetJobNames(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range stored {
		set[name] = struct{}{}
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// IsLaunchable はジョブがこのプロセスで起動できるかどうかを返します。
func (s *JobService) IsLaunchable(jobName string) bool {
	return s.jobFactory.IsRegistered(jobName)
}

// IsIncrementable はジョブが JobParametersIncrementer を持つかどうかを返します。
func (s *JobService) IsIncrementable(ctx context.Context, jobName string) bool {
	if !s.jobFactory.IsRegistered(jobName) {
		return false
	}
	batchJob, err := s.jobFactory.CreateJob(ctx, jobName)
	if err != nil {
		logger.Warnf("ジョブ '%s' の作成に失敗しました: %v", jobName, err)
		return false
	}
	return batchJob.Incrementer() != nil
}

// ListJobExecutions は全ジョブの JobExecution を新しい順に返します。
func (s *JobService) ListJobExecutions(ctx context.Context, start, count int) ([]*core.JobExecution, error) {
	return s.jobRepository.FindJobExecutions(ctx, start, count)
}

// ListJobExecutionsForJob はジョブの JobExecution を新しい順に返します。
func (s *JobService) ListJobExecutionsForJob(ctx context.Context, jobName string, start, count int) ([]*core.JobExecution, error) {
	if err := s.checkJobExists(ctx, jobName); err != nil {
		return nil, err
	}
	return s.jobRepository.FindJobExecutionsByJobName(ctx, jobName, start, count)
}

// CountJobExecutions は全ジョブの JobExecution の数を返します。
func (s *JobService) CountJobExecutions(ctx context.Context) (int, error) {
	return s.jobRepository.CountJobExecutions(ctx)
}

// CountJobExecutionsForJob はジョブの JobExecution の数を返します。
func (s *JobService) CountJobExecutionsForJob(ctx context.Context, jobName string) (int, error) {
	if err := s.checkJobExists(ctx, jobName); err != nil {
		return 0, err
	}
	return s.jobRepository.CountJobExecutionsByJobName(ctx, jobName)
}

// ListJobInstances はジョブの JobInstance を新しい順に返します。
func (s *JobService) ListJobInstances(ctx context.Context, jobName string, start, count int) ([]*core.JobInstance, error) {
	if err := s.checkJobExists(ctx, jobName); err != nil {
		return nil, err
	}
	return s.jobRepository.FindJobInstancesByJobName(ctx, jobName, start, count)
}

// CountJobInstances はジョブの JobInstance の数を返します。
func (s *JobService) CountJobInstances(ctx context.Context, jobName string) (int, error) {
	if err := s.checkJobExists(ctx, jobName); err != nil {
		return 0, err
	}
	return s.jobRepository.CountJobInstances(ctx, jobName)
}

// GetLastJobParameters はジョブの最新の JobInstance で最後に使われたパラメータを返します。
// 実行履歴が無い場合は空の JobParameters です。
func (s *JobService) GetLastJobParameters(ctx context.Context, jobName string) (core.JobParameters, error) {
	if err := s.checkJobExists(ctx, jobName); err != nil {
		return core.JobParameters{}, err
	}
	instances, err := s.jobRepository.FindJobInstancesByJobName(ctx, jobName, 0, 1)
	if err != nil {
		return core.JobParameters{}, err
	}
	if len(instances) == 0 {
		return core.NewJobParameters(), nil
	}
	last, err := s.jobRepository.FindLatestJobExecution(ctx, instances[0].ID)
	if err != nil {
		return core.JobParameters{}, err
	}
	if last == nil {
		return core.NewJobParameters(), nil
	}
	return last.Parameters, nil
}

// Restart は失敗または停止した JobExecution を再起動します。
func (s *JobService) Restart(ctx context.Context, executionID string) (*core.JobExecution, error) {
	return s.jobOperator.Restart(ctx, executionID)
}

// Stop は JobExecution を停止し、停止要求後の状態を返します。
func (s *JobService) Stop(ctx context.Context, executionID string) (*core.JobExecution, error) {
	if err := s.jobOperator.Stop(ctx, executionID); err != nil {
		return nil, err
	}
	return s.jobRepository.FindJobExecutionByID(ctx, executionID)
}

// StopAll は実行中の全ての JobExecution を停止し、停止を要求した数を返します。
func (s *JobService) StopAll(ctx context.Context) (int, error) {
	running, err := s.jobRepository.FindRunningJobExecutions(ctx, "")
	if err != nil {
		return 0, err
	}
	stopped := 0
	for _, je := range running {
		if err := s.jobOperator.Stop(ctx, je.ID); err != nil {
			logger.Warnf("JobExecution (ID: %s) の停止に失敗しました: %v", je.ID, err)
			continue
		}
		stopped++
	}
	return stopped, nil
}

// Abandon は停止した JobExecution を放棄します。
func (s *JobService) Abandon(ctx context.Context, executionID string) (*core.JobExecution, error) {
	return s.jobOperator.Abandon(ctx, executionID)
}

// Close は非同期実行中のジョブの終了を待ってからリポジトリを閉じます。
// ctx が先に終了した場合は実行中のジョブを停止してから待ちます。
func (s *JobService) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.jobLauncher.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warnf("JobService: 終了待ちがタイムアウトしました。実行中のジョブを停止します。")
		for _, id := range s.jobLauncher.RunningExecutionIDs() {
			s.jobLauncher.Stop(id)
		}
		<-done
	}
	return s.jobRepository.Close()
}

func (s *JobService) checkJobExists(ctx context.Context, jobName string) error {
	if s.jobFactory.IsRegistered(jobName) {
		return nil
	}
	count, err := s.jobRepository.CountJobInstances(ctx, jobName)
	if err != nil {
		return err
	}
	if count == 0 {
		return exception.NewBatchErrorf("job_service", "ジョブ '%s': %w", jobName, exception.ErrNoSuchJob)
	}
	return nil
}

func page(names []string, start, count int) []string {
	if start < 0 {
		start = 0
	}
	if start >= len(names) {
		return []string{}
	}
	end := len(names)
	if count >= 0 && start+count < end {
		end = start + count
	}
	return names[start:end]
}
