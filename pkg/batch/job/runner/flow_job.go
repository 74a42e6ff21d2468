package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	core "batchadmin/pkg/batch/job/core"
	"batchadmin/pkg/batch/repository/job"
	exception "batchadmin/pkg/batch/util/exception"
	logger "batchadmin/pkg/batch/util/logger"
)

// FlowJob はフロー定義に基づいてステップと Decision を実行する core.Job の実装です。
//
// ステップやフローの失敗は JobExecution の状態に記録し、Run の戻り値にはしません。
// Run が error を返すのは、状態をリポジトリに保存できない場合などに限られます。
type FlowJob struct {
	name               string
	flow               *core.FlowDefinition
	jobRepository      job.JobRepository
	jobListeners       []core.JobExecutionListener
	incrementer        core.JobParametersIncrementer
	restartable        bool
	requiredParameters []string
}

var _ core.Job = (*FlowJob)(nil)

// NewFlowJob は新しい FlowJob のインスタンスを作成します。既定でリスタート可能です。
func NewFlowJob(
	name string,
	flow *core.FlowDefinition,
	jobRepository job.JobRepository,
	jobListeners []core.JobExecutionListener,
) *FlowJob {
	return &FlowJob{
		name:          name,
		flow:          flow,
		jobRepository: jobRepository,
		jobListeners:  jobListeners,
		restartable:   true,
	}
}

// SetIncrementer は JobParametersIncrementer を設定します。
func (j *FlowJob) SetIncrementer(incrementer core.JobParametersIncrementer) {
	j.incrementer = incrementer
}

// SetRestartable はリスタート可否を設定します。
func (j *FlowJob) SetRestartable(restartable bool) {
	j.restartable = restartable
}

// SetRequiredParameters は必須のジョブパラメータのキーを設定します。
func (j *FlowJob) SetRequiredParameters(keys ...string) {
	j.requiredParameters = keys
}

// JobName はジョブ名を返します。
func (j *FlowJob) JobName() string {
	return j.name
}

// GetFlow はジョブのフロー定義を返します。
func (j *FlowJob) GetFlow() *core.FlowDefinition {
	return j.flow
}

// Incrementer は JobParametersIncrementer を返します。未設定なら nil です。
func (j *FlowJob) Incrementer() core.JobParametersIncrementer {
	return j.incrementer
}

// Restartable はリスタート可能かどうかを返します。
func (j *FlowJob) Restartable() bool {
	return j.restartable
}

// ValidateParameters は必須パラメータの存在を検証します。
func (j *FlowJob) ValidateParameters(params core.JobParameters) error {
	for _, key := range j.requiredParameters {
		if _, ok := params.Get(key); !ok {
			return exception.NewBatchErrorf(j.name, "必須パラメータ '%s' が見つかりません: %w", key, exception.ErrInvalidJobParameters)
		}
	}
	return nil
}

func (j *FlowJob) notifyBeforeJob(ctx context.Context, jobExecution *core.JobExecution) {
	for _, l := range j.jobListeners {
		l.BeforeJob(ctx, jobExecution)
	}
}

func (j *FlowJob) notifyAfterJob(ctx context.Context, jobExecution *core.JobExecution) {
	for _, l := range j.jobListeners {
		l.AfterJob(ctx, jobExecution)
	}
}

// Run はフローの開始要素から遷移ルールに従って要素を実行します。
// 遷移ルールが見つからない場合は登録順で次の要素に進み、最後の要素の後でジョブを完了します。
func (j *FlowJob) Run(ctx context.Context, jobExecution *core.JobExecution, jobParameters core.JobParameters) error {
	logger.Infof("ジョブ '%s' (Execution ID: %s) を開始します。", j.name, jobExecution.ID)

	j.notifyBeforeJob(ctx, jobExecution)
	defer func() {
		if jobExecution.EndTime.IsZero() {
			jobExecution.EndTime = time.Now()
		}
		j.notifyAfterJob(ctx, jobExecution)
	}()

	if err := ctx.Err(); err != nil {
		j.markInterrupted(jobExecution, err)
		return nil
	}

	restart, err := j.isRestart(ctx, jobExecution)
	if err != nil {
		jobExecution.MarkAsFailed(err)
		return err
	}

	currentElementID := j.flow.StartElement
	for currentElementID != "" {
		if err := ctx.Err(); err != nil {
			j.markInterrupted(jobExecution, err)
			return nil
		}

		element, ok := j.flow.GetElement(currentElementID)
		if !ok {
			err := exception.NewBatchErrorf(j.name, "フロー要素 '%s' が見つかりません", currentElementID)
			logger.Errorf("ジョブ '%s': %v", j.name, err)
			jobExecution.MarkAsFailed(err)
			return nil
		}

		var (
			exitStatus core.ExitStatus
			elementErr error
		)
		switch elem := element.(type) {
		case core.Step:
			outcome, err := j.executeStep(ctx, jobExecution, elem, restart)
			if err != nil {
				jobExecution.MarkAsFailed(err)
				return err
			}
			exitStatus, elementErr = outcome.exitStatus, outcome.err
		case core.Decision:
			exitStatus, elementErr = elem.Decide(ctx, jobExecution, jobParameters)
			if elementErr != nil {
				logger.Errorf("ジョブ '%s': Decision '%s' の実行中にエラーが発生しました: %v", j.name, elem.DecisionName(), elementErr)
				exitStatus = core.ExitStatusFailed
			} else {
				logger.Infof("ジョブ '%s': Decision '%s' の結果: %s", j.name, elem.DecisionName(), exitStatus)
			}
		default:
			err := exception.NewBatchErrorf(j.name, "不明なフロー要素の型です: %T (ID: %s)", elem, currentElementID)
			logger.Errorf("ジョブ '%s': %v", j.name, err)
			jobExecution.MarkAsFailed(err)
			return nil
		}

		transition, found := j.flow.FindTransition(element.ID(), exitStatus)
		switch {
		case found && transition.End:
			logger.Infof("ジョブ '%s': '%s' (終了ステータス: %s) からの end 遷移でジョブを完了します。", j.name, element.ID(), exitStatus)
			jobExecution.MarkAsCompleted()
			return nil
		case found && transition.Fail:
			err := elementErr
			if err == nil {
				err = fmt.Errorf("'%s' (終了ステータス: %s) からの fail 遷移でジョブを失敗させました", element.ID(), exitStatus)
			}
			logger.Errorf("ジョブ '%s': %v", j.name, err)
			jobExecution.MarkAsFailed(err)
			return nil
		case found && transition.Stop:
			logger.Infof("ジョブ '%s': '%s' からの stop 遷移でジョブを停止します。", j.name, element.ID())
			jobExecution.MarkAsStopped()
			return nil
		case found:
			currentElementID = transition.To
			continue
		}

		if elementErr != nil {
			if isInterrupted(elementErr) || exitStatus == core.ExitStatusStopped {
				jobExecution.AddFailureException(elementErr)
				jobExecution.MarkAsStopped()
			} else {
				jobExecution.MarkAsFailed(elementErr)
			}
			return nil
		}
		if exitStatus == core.ExitStatusStopped {
			jobExecution.MarkAsStopped()
			return nil
		}
		currentElementID = j.nextInOrder(element.ID())
	}

	jobExecution.MarkAsCompleted()
	logger.Infof("ジョブ '%s' (Execution ID: %s) のフローが完了しました。", j.name, jobExecution.ID)
	return nil
}

// stepOutcome はステップの終了ステータスとステップ自身が返したエラーです。
type stepOutcome struct {
	exitStatus core.ExitStatus
	err        error
}

func (j *FlowJob) markInterrupted(jobExecution *core.JobExecution, err error) {
	logger.Warnf("Context がキャンセルされたため、ジョブ '%s' の実行を中断します: %v", j.name, err)
	jobExecution.AddFailureException(err)
	jobExecution.MarkAsStopped()
}

// isRestart は同じ JobInstance の直前の実行が成功せずに終わっているかどうかを返します。
func (j *FlowJob) isRestart(ctx context.Context, jobExecution *core.JobExecution) (bool, error) {
	executions, err := j.jobRepository.FindJobExecutionsByJobInstance(context.WithoutCancel(ctx), jobExecution.JobInstanceID)
	if err != nil {
		return false, exception.NewBatchError(j.name, "以前の JobExecution の取得に失敗しました", err, false, false)
	}
	for _, prev := range executions {
		if prev.ID == jobExecution.ID {
			continue
		}
		return prev.Status.IsUnsuccessful() && prev.Status != core.BatchStatusAbandoned, nil
	}
	return false, nil
}

// executeStep はステップを 1 つ実行します。戻り値の error はリポジトリ障害です。
// 再起動時は、以前の実行で COMPLETED になったステップは実行せず、その終了ステータスを返します。
// 未完了で終わったステップは ExecutionContext を引き継いで再実行します。
func (j *FlowJob) executeStep(ctx context.Context, jobExecution *core.JobExecution, step core.Step, restart bool) (stepOutcome, error) {
	stepName := step.StepName()
	jobExecution.CurrentStepName = stepName

	var last *core.StepExecution
	if restart {
		var err error
		last, err = j.jobRepository.FindLastStepExecution(context.WithoutCancel(ctx), jobExecution.JobInstanceID, stepName)
		if err != nil {
			return stepOutcome{}, err
		}
	}
	if last != nil && last.JobExecutionID() != jobExecution.ID && last.Status == core.BatchStatusCompleted {
		logger.Infof("ジョブ '%s': ステップ '%s' は以前の実行 (ID: %s) で完了済みのためスキップします。", j.name, stepName, last.JobExecutionID())
		return stepOutcome{exitStatus: last.ExitStatus}, nil
	}

	stepExecution := core.NewStepExecution(stepName, jobExecution)
	if last != nil && last.Status != core.BatchStatusCompleted {
		stepExecution.ExecutionContext = last.ExecutionContext.Copy()
		logger.Infof("ジョブ '%s': ステップ '%s' を以前の実行 (Step Execution ID: %s) の ExecutionContext から再開します。", j.name, stepName, last.ID)
	}

	stepErr := step.Execute(ctx, jobExecution, stepExecution)
	if stepErr != nil {
		logger.Errorf("ジョブ '%s': ステップ '%s' の実行中にエラーが発生しました: %v", j.name, stepName, stepErr)
	} else {
		logger.Infof("ジョブ '%s': ステップ '%s' が完了しました。ExitStatus: %s", j.name, stepName, stepExecution.ExitStatus)
	}

	if err := j.jobRepository.UpdateJobExecution(context.WithoutCancel(ctx), jobExecution); err != nil {
		return stepOutcome{}, exception.NewBatchError(j.name, "JobExecution のチェックポイント更新に失敗しました", err, false, false)
	}
	return stepOutcome{exitStatus: stepExecution.ExitStatus, err: stepErr}, nil
}

// nextInOrder は登録順で次の要素の ID を返します。最後の要素なら空文字です。
func (j *FlowJob) nextInOrder(id string) string {
	for i, elementID := range j.flow.Order {
		if elementID == id && i+1 < len(j.flow.Order) {
			return j.flow.Order[i+1]
		}
	}
	return ""
}

func isInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
