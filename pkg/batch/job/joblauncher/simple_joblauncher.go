package joblauncher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	core "batchadmin/pkg/batch/job/core"
	"batchadmin/pkg/batch/repository/job"
	exception "batchadmin/pkg/batch/util/exception"
	logger "batchadmin/pkg/batch/util/logger"
)

// SimpleJobLauncher は JobLauncher インターフェースのシンプルな実装です。
// JobExecution の基本的なライフサイクル管理と JobRepository を使用した永続化を行います。
// 実行中のジョブのキャンセル関数を保持し、Stop で停止できるようにします。
type SimpleJobLauncher struct {
	jobRepository job.JobRepository
	taskExecutor  TaskExecutor

	activeJobCancellations map[string]context.CancelFunc
	mu                     sync.Mutex
	wg                     sync.WaitGroup
}

var _ JobLauncher = (*SimpleJobLauncher)(nil)

// NewSimpleJobLauncher は新しい SimpleJobLauncher のインスタンスを作成します。
// taskExecutor が nil の場合は SyncTaskExecutor を使用します。
func NewSimpleJobLauncher(jobRepository job.JobRepository, taskExecutor TaskExecutor) *SimpleJobLauncher {
	if taskExecutor == nil {
		taskExecutor = SyncTaskExecutor{}
	}
	return &SimpleJobLauncher{
		jobRepository:          jobRepository,
		taskExecutor:           taskExecutor,
		activeJobCancellations: make(map[string]context.CancelFunc),
	}
}

func (l *SimpleJobLauncher) registerCancelFunc(executionID string, cancelFunc context.CancelFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.activeJobCancellations[executionID] = cancelFunc
	logger.Debugf("JobExecution (ID: %s) の CancelFunc を登録しました。", executionID)
}

func (l *SimpleJobLauncher) unregisterCancelFunc(executionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cancelFunc, ok := l.activeJobCancellations[executionID]; ok {
		cancelFunc()
		delete(l.activeJobCancellations, executionID)
		logger.Debugf("JobExecution (ID: %s) の CancelFunc を登録解除しました。", executionID)
	}
}

// Stop はこのランチャーで実行中の JobExecution をキャンセルします。
// 対象がこのプロセスで実行されていない場合は false を返します。
func (l *SimpleJobLauncher) Stop(executionID string) bool {
	l.mu.Lock()
	cancelFunc, ok := l.activeJobCancellations[executionID]
	l.mu.Unlock()
	if !ok {
		return false
	}
	logger.Infof("JobExecution (ID: %s) にキャンセルを要求します。", executionID)
	cancelFunc()
	return true
}

// IsRunningLocally は JobExecution がこのランチャーで実行中かどうかを返します。
func (l *SimpleJobLauncher) IsRunningLocally(executionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.activeJobCancellations[executionID]
	return ok
}

// RunningExecutionIDs はこのランチャーで実行中の JobExecution の ID を返します。
func (l *SimpleJobLauncher) RunningExecutionIDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.activeJobCancellations))
	for id := range l.activeJobCancellations {
		ids = append(ids, id)
	}
	return ids
}

// Wait は非同期で起動した全てのジョブの終了を待ちます。
func (l *SimpleJobLauncher) Wait() {
	l.wg.Wait()
}

// Launch は既定の TaskExecutor でジョブを起動します。
func (l *SimpleJobLauncher) Launch(ctx context.Context, batchJob core.Job, params core.JobParameters) (*core.JobExecution, error) {
	return l.LaunchWith(ctx, batchJob, params, l.taskExecutor)
}

// LaunchWith は指定された TaskExecutor でジョブを起動します。
//
// 同期実行では終了状態の JobExecution を返します。
// 非同期実行では STARTING 状態の JobExecution のスナップショットを返し、
// 実行中のジョブは呼び出し元の ctx がキャンセルされても継続します。停止には Stop を使います。
func (l *SimpleJobLauncher) LaunchWith(ctx context.Context, batchJob core.Job, params core.JobParameters, taskExecutor TaskExecutor) (*core.JobExecution, error) {
	if batchJob == nil {
		return nil, exception.NewBatchErrorf("job_launcher", "起動するジョブが指定されていません: %w", exception.ErrInvalidJobParameters)
	}
	if params.Params == nil {
		params = core.NewJobParameters()
	}
	jobName := batchJob.JobName()
	logger.Infof("JobLauncher を使用して Job '%s' を起動します。パラメータ: %s", jobName, params)

	jobInstance, err := l.jobRepository.FindJobInstanceByJobNameAndParameters(ctx, jobName, params)
	if err != nil {
		return nil, exception.NewBatchError("job_launcher", "起動処理エラー: JobInstance の検索に失敗しました", err, false, false)
	}

	var lastExecution *core.JobExecution
	if jobInstance == nil {
		jobInstance, err = l.jobRepository.CreateJobInstance(ctx, jobName, params)
		if err != nil {
			return nil, exception.NewBatchError("job_launcher", "起動処理エラー: 新しい JobInstance の保存に失敗しました", err, false, false)
		}
		logger.Infof("新しい JobInstance (ID: %s, JobName: %s) を作成しました。", jobInstance.ID, jobInstance.JobName)
	} else {
		logger.Infof("既存の JobInstance (ID: %s, JobName: %s) を使用します。", jobInstance.ID, jobInstance.JobName)
		lastExecution, err = l.jobRepository.FindLatestJobExecution(ctx, jobInstance.ID)
		if err != nil {
			return nil, exception.NewBatchError("job_launcher", "起動処理エラー: 前回の JobExecution の取得に失敗しました", err, false, false)
		}
	}

	restart := false
	if lastExecution != nil {
		if err := checkLastExecution(batchJob, params, lastExecution); err != nil {
			logger.Warnf("Job '%s' を起動できません: %v", jobName, err)
			return nil, err
		}
		restart = lastExecution.Status.IsUnsuccessful() && lastExecution.Status != core.BatchStatusAbandoned
	}

	if err := batchJob.ValidateParameters(params); err != nil {
		logger.Errorf("Job '%s': JobParameters のバリデーションに失敗しました: %v", jobName, err)
		return nil, err
	}

	jobExecution := core.NewJobExecution(jobInstance, params)
	if restart {
		jobExecution.ExecutionContext = lastExecution.ExecutionContext.Copy()
		jobExecution.CurrentStepName = lastExecution.CurrentStepName
		logger.Infof("Job '%s' を再起動します。前回の JobExecution (ID: %s, Status: %s)", jobName, lastExecution.ID, lastExecution.Status)
	}
	if err := l.jobRepository.SaveJobExecution(ctx, jobExecution); err != nil {
		logger.Errorf("JobExecution の初期永続化に失敗しました: %v", err)
		return nil, exception.NewBatchError("job_launcher", "起動処理エラー: JobExecution の初期保存に失敗しました", err, false, false)
	}
	logger.Debugf("JobExecution (ID: %s) を JobRepository に初期保存しました。", jobExecution.ID)

	parent := ctx
	if taskExecutor.IsAsync() {
		parent = context.WithoutCancel(ctx)
	}
	jobCtx, cancel := context.WithCancel(parent)
	l.registerCancelFunc(jobExecution.ID, cancel)

	var result *core.JobExecution
	if taskExecutor.IsAsync() {
		result = jobExecution.Snapshot()
		l.wg.Add(1)
	}

	var runErr error
	taskExecutor.Execute(func() {
		if taskExecutor.IsAsync() {
			defer l.wg.Done()
		}
		defer l.unregisterCancelFunc(jobExecution.ID)
		runErr = l.run(jobCtx, batchJob, jobExecution, params)
		if runErr != nil && taskExecutor.IsAsync() {
			logger.Errorf("Job '%s' (Execution ID: %s) の非同期実行でエラーが発生しました: %v", jobName, jobExecution.ID, runErr)
		}
	})

	if taskExecutor.IsAsync() {
		logger.Infof("Job '%s' (Execution ID: %s) を非同期で起動しました。", jobName, jobExecution.ID)
		return result, nil
	}
	return jobExecution, runErr
}

// checkLastExecution は前回の JobExecution の状態から起動可否を判定します。
func checkLastExecution(batchJob core.Job, params core.JobParameters, lastExecution *core.JobExecution) error {
	jobName := batchJob.JobName()
	switch {
	case lastExecution.IsRunning():
		return exception.NewBatchErrorf("job_launcher", "Job '%s' (Execution ID: %s): %w", jobName, lastExecution.ID, exception.ErrJobExecutionAlreadyRunning)
	case (lastExecution.Status == core.BatchStatusCompleted || lastExecution.Status == core.BatchStatusAbandoned) && !params.Identifying().IsEmpty():
		return exception.NewBatchErrorf("job_launcher", "Job '%s' (パラメータ: %s): %w", jobName, params, exception.ErrJobInstanceAlreadyComplete)
	case lastExecution.Status.IsUnsuccessful() && lastExecution.Status != core.BatchStatusAbandoned && !batchJob.Restartable():
		return exception.NewBatchErrorf("job_launcher", "Job '%s' はリスタート不可です: %w", jobName, exception.ErrJobRestart)
	}
	return nil
}

// run は JobExecution を開始状態にしてジョブを実行し、最終状態を永続化します。
func (l *SimpleJobLauncher) run(ctx context.Context, batchJob core.Job, jobExecution *core.JobExecution, params core.JobParameters) error {
	persistCtx := context.WithoutCancel(ctx)
	jobName := batchJob.JobName()

	jobExecution.MarkAsStarted()
	if err := l.jobRepository.UpdateJobExecution(persistCtx, jobExecution); err != nil {
		logger.Errorf("JobExecution (ID: %s) の Started 状態への更新に失敗しました: %v", jobExecution.ID, err)
		return exception.NewBatchError("job_launcher", "JobExecution 状態更新エラー (Started)", err, false, false)
	}

	logger.Infof("Job '%s' (Execution ID: %s, Job Instance ID: %s) を実行します。", jobName, jobExecution.ID, jobExecution.JobInstanceID)
	runErr := batchJob.Run(ctx, jobExecution, params)
	if runErr != nil && jobExecution.IsRunning() {
		if errors.Is(runErr, context.Canceled) {
			jobExecution.AddFailureException(runErr)
			jobExecution.MarkAsStopped()
		} else {
			jobExecution.MarkAsFailed(runErr)
		}
	}

	if updateErr := l.jobRepository.UpdateJobExecution(persistCtx, jobExecution); updateErr != nil {
		logger.Errorf("JobExecution (ID: %s) の最終状態の更新に失敗しました: %v", jobExecution.ID, updateErr)
		if runErr == nil {
			return exception.NewBatchError("job_launcher", "JobExecution 最終状態の永続化に失敗しました", updateErr, false, false)
		}
		return exception.NewBatchError("job_launcher", fmt.Sprintf("Job実行エラー (%v), 永続化エラー (%v)", runErr, updateErr), runErr, false, false)
	}
	logger.Debugf("JobExecution (ID: %s) を JobRepository で最終状態 (%s) に更新しました。", jobExecution.ID, jobExecution.Status)
	return runErr
}
