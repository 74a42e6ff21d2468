package step

import (
	"context"
	"fmt"

	core "batchadmin/pkg/batch/job/core"
	"batchadmin/pkg/batch/repository/job"
	exception "batchadmin/pkg/batch/util/exception"
	logger "batchadmin/pkg/batch/util/logger"
)

// stepSupport は TaskletStep と ChunkStep に共通するライフサイクル処理です。
type stepSupport struct {
	name                      string
	jobRepository             job.JobRepository
	stepListeners             []core.StepExecutionListener
	executionContextPromotion *core.ExecutionContextPromotion
}

// addListenerIfImplements は component が StepExecutionListener を実装していれば登録します。
// Reader や Writer が BeforeStep でジョブパラメータを受け取るために使います。
func (s *stepSupport) addListenerIfImplements(component any) {
	if component == nil {
		return
	}
	l, ok := component.(core.StepExecutionListener)
	if !ok {
		return
	}
	s.stepListeners = append(s.stepListeners, l)
}

// open は StepExecution を初回のみ永続化し、STARTED に更新します。
// キャンセル済みの ctx でも記録は残し、停止の判定は本処理に任せます。
func (s *stepSupport) open(ctx context.Context, stepExecution *core.StepExecution) error {
	ctx = context.WithoutCancel(ctx)
	if stepExecution.ID == "" {
		if err := s.jobRepository.SaveStepExecution(ctx, stepExecution); err != nil {
			return exception.NewBatchError(s.name, fmt.Sprintf("StepExecution (ステップ: %s) の保存に失敗しました", s.name), err, false, false)
		}
	}
	stepExecution.MarkAsStarted()
	if err := s.jobRepository.UpdateStepExecution(ctx, stepExecution); err != nil {
		return exception.NewBatchError(s.name, fmt.Sprintf("StepExecution (ID: %s) の状態更新に失敗しました", stepExecution.ID), err, false, false)
	}
	return nil
}

func (s *stepSupport) notifyBeforeStep(ctx context.Context, stepExecution *core.StepExecution) {
	for _, l := range s.stepListeners {
		l.BeforeStep(ctx, stepExecution)
	}
}

func (s *stepSupport) notifyAfterStep(ctx context.Context, stepExecution *core.StepExecution) {
	for _, l := range s.stepListeners {
		l.AfterStep(ctx, stepExecution)
	}
}

// promoteExecutionContext は StepExecutionContext の指定されたキーを JobExecutionContext にプロモートします。
func (s *stepSupport) promoteExecutionContext(jobExecution *core.JobExecution, stepExecution *core.StepExecution) {
	if s.executionContextPromotion == nil || len(s.executionContextPromotion.Keys) == 0 {
		return
	}
	for _, key := range s.executionContextPromotion.Promote(stepExecution.ExecutionContext, jobExecution.ExecutionContext) {
		logger.Warnf("ステップ '%s': StepExecutionContext にプロモート対象のキー '%s' が見つかりませんでした。", s.name, key)
	}
}

// finish は終了状態を確定させて永続化します。ctx がキャンセル済みでも保存できるよう WithoutCancel を使います。
func (s *stepSupport) finish(ctx context.Context, jobExecution *core.JobExecution, stepExecution *core.StepExecution) error {
	s.notifyAfterStep(ctx, stepExecution)
	s.promoteExecutionContext(jobExecution, stepExecution)

	if err := s.jobRepository.UpdateStepExecution(context.WithoutCancel(ctx), stepExecution); err != nil {
		logger.Errorf("ステップ '%s' の最終 StepExecution (ID: %s) の更新に失敗しました: %v", s.name, stepExecution.ID, err)
		return exception.NewBatchError(s.name, "StepExecution の最終更新に失敗しました", err, false, false)
	}
	return nil
}

// markInterrupted はコンテキストのキャンセルを STOPPED として記録します。
func markInterrupted(stepExecution *core.StepExecution, err error) {
	stepExecution.AddFailureException(err)
	stepExecution.MarkAsStopped()
}
