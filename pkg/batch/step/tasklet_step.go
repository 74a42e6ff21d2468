package step

import (
	"context"
	"errors"

	core "batchadmin/pkg/batch/job/core"
	"batchadmin/pkg/batch/repository/job"
	exception "batchadmin/pkg/batch/util/exception"
	logger "batchadmin/pkg/batch/util/logger"
)

// taskletContextKey は Tasklet の ExecutionContext を StepExecutionContext に保存するキーです。
const taskletContextKey = "tasklet_context"

// TaskletStep は Tasklet インターフェースをラップし、core.Step インターフェースを実装します。
// JSR352 の Batchlet ステップに相当します。
type TaskletStep struct {
	stepSupport
	tasklet core.Tasklet
}

var _ core.Step = (*TaskletStep)(nil)

// NewTaskletStep は新しい TaskletStep のインスタンスを作成します。
// tasklet が StepExecutionListener を実装していれば自動で登録されます。
func NewTaskletStep(
	name string,
	tasklet core.Tasklet,
	jobRepository job.JobRepository,
	stepListeners []core.StepExecutionListener,
	executionContextPromotion *core.ExecutionContextPromotion,
) *TaskletStep {
	s := &TaskletStep{
		stepSupport: stepSupport{
			name:                      name,
			jobRepository:             jobRepository,
			stepListeners:             append([]core.StepExecutionListener(nil), stepListeners...),
			executionContextPromotion: executionContextPromotion,
		},
		tasklet: tasklet,
	}
	s.addListenerIfImplements(tasklet)
	return s
}

// StepName はステップ名を返します。
func (s *TaskletStep) StepName() string {
	return s.name
}

// ID はステップの ID を返します。core.FlowElement インターフェースの実装です。
func (s *TaskletStep) ID() string {
	return s.name
}

// Execute は Tasklet を実行し、結果を StepExecution に記録します。
// Tasklet が失敗した場合は StepExecution を FAILED にしてエラーを返します。
func (s *TaskletStep) Execute(ctx context.Context, jobExecution *core.JobExecution, stepExecution *core.StepExecution) error {
	logger.Infof("Taskletステップ '%s' を開始します。", s.name)

	if err := s.open(ctx, stepExecution); err != nil {
		stepExecution.MarkAsFailed(err)
		return err
	}

	if err := s.restoreTaskletContext(ctx, stepExecution); err != nil {
		stepExecution.MarkAsFailed(err)
		return s.finishWith(ctx, jobExecution, stepExecution, err)
	}

	s.notifyBeforeStep(ctx, stepExecution)

	exitStatus, execErr := s.tasklet.Execute(ctx, stepExecution)

	if taskletEC, ecErr := s.tasklet.GetExecutionContext(ctx); ecErr == nil {
		stepExecution.ExecutionContext.Put(taskletContextKey, map[string]interface{}(taskletEC))
	} else {
		logger.Errorf("Taskletステップ '%s': Tasklet の ExecutionContext 取得に失敗しました: %v", s.name, ecErr)
		stepExecution.AddFailureException(ecErr)
	}
	if closeErr := s.tasklet.Close(ctx); closeErr != nil {
		logger.Errorf("Taskletステップ '%s': Tasklet のクローズに失敗しました: %v", s.name, closeErr)
		stepExecution.AddFailureException(closeErr)
	}

	switch {
	case execErr != nil && (errors.Is(execErr, context.Canceled) || errors.Is(execErr, context.DeadlineExceeded)):
		logger.Warnf("Taskletステップ '%s' がコンテキストキャンセルにより停止されました: %v", s.name, execErr)
		markInterrupted(stepExecution, execErr)
	case execErr != nil:
		logger.Errorf("Taskletステップ '%s' の実行中にエラーが発生しました: %v", s.name, execErr)
		execErr = exception.NewBatchError(s.name, "Tasklet 実行エラー", execErr, false, false)
		stepExecution.MarkAsFailed(execErr)
	case exitStatus == core.ExitStatusFailed:
		execErr = exception.NewBatchErrorf(s.name, "Tasklet が終了ステータス %s を返しました", exitStatus)
		stepExecution.MarkAsFailed(execErr)
	case exitStatus == core.ExitStatusStopped:
		stepExecution.MarkAsStopped()
	default:
		if exitStatus != "" {
			stepExecution.ExitStatus = exitStatus
		}
		stepExecution.MarkAsCompleted()
	}

	return s.finishWith(ctx, jobExecution, stepExecution, execErr)
}

func (s *TaskletStep) finishWith(ctx context.Context, jobExecution *core.JobExecution, stepExecution *core.StepExecution, execErr error) error {
	if err := s.finish(ctx, jobExecution, stepExecution); err != nil && execErr == nil {
		return err
	}
	if execErr == nil {
		logger.Infof("Taskletステップ '%s' が完了しました。ExitStatus: %s", s.name, stepExecution.ExitStatus)
	}
	return execErr
}

// restoreTaskletContext はリスタート時に保存済みの Tasklet の状態を戻します。
func (s *TaskletStep) restoreTaskletContext(ctx context.Context, stepExecution *core.StepExecution) error {
	raw, ok := stepExecution.ExecutionContext.Get(taskletContextKey)
	if !ok {
		return nil
	}
	var taskletEC core.ExecutionContext
	switch v := raw.(type) {
	case core.ExecutionContext:
		taskletEC = v
	case map[string]interface{}:
		taskletEC = core.ExecutionContext(v)
	default:
		logger.Warnf("Taskletステップ '%s': Tasklet の ExecutionContext が予期しない型です: %T", s.name, raw)
		return nil
	}
	logger.Debugf("Taskletステップ '%s': ExecutionContext から Tasklet の状態を復元します。", s.name)
	if err := s.tasklet.SetExecutionContext(ctx, taskletEC); err != nil {
		return exception.NewBatchError(s.name, "Tasklet の ExecutionContext 復元エラー", err, false, false)
	}
	return nil
}
