package exception

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ジョブ起動・操作時のエラー。errors.Is で判定できます。
var (
	ErrNoSuchJob                   = errors.New("ジョブが登録されていません")
	ErrNoSuchJobExecution          = errors.New("JobExecution が見つかりません")
	ErrNoSuchJobInstance           = errors.New("JobInstance が見つかりません")
	ErrNoSuchStepExecution         = errors.New("StepExecution が見つかりません")
	ErrJobInstanceAlreadyComplete  = errors.New("JobInstance は既に完了しています")
	ErrJobExecutionAlreadyRunning  = errors.New("JobExecution は既に実行中です")
	ErrJobRestart                  = errors.New("ジョブを再起動できません")
	ErrJobExecutionNotRunning      = errors.New("JobExecution は実行中ではありません")
	ErrJobExecutionAlreadyFinished = errors.New("JobExecution は既に終了しています")
	ErrOptimisticLockingFailure    = errors.New("楽観的ロックに失敗しました")
	ErrInvalidJobParameters        = errors.New("JobParameters が不正です")
)

// BatchError はバッチ処理中に発生するカスタムエラー型です。
// エラーの発生元モジュール、メッセージ、ラップされた元のエラー、
// そしてリトライ可能か、スキップ可能かのフラグを保持します。
type BatchError struct {
	Module      string // エラーが発生したモジュール (例: "launcher", "repository", "writer")
	Message     string
	OriginalErr error
	isRetryable bool
	isSkippable bool
	StackTrace  string // デバッグ用
}

// NewBatchError は新しい BatchError のインスタンスを作成します。
func NewBatchError(module, message string, originalErr error, isRetryable, isSkippable bool) *BatchError {
	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
		StackTrace:  captureStack(),
	}
}

// NewBatchErrorf はフォーマット文字列からリトライ・スキップ不可の BatchError を作成します。
// 元のエラーをラップする場合は %w を使用します。
func NewBatchErrorf(module, format string, a ...interface{}) *BatchError {
	wrapped := fmt.Errorf(format, a...)
	return &BatchError{
		Module:      module,
		Message:     wrapped.Error(),
		OriginalErr: errors.Unwrap(wrapped),
		StackTrace:  captureStack(),
	}
}

func captureStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// Error は error インターフェースの実装です。
func (e *BatchError) Error() string {
	if e.OriginalErr != nil && !strings.Contains(e.Message, e.OriginalErr.Error()) {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap は errors.Unwrap のために元のエラーを返します。
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable はこのエラーがリトライ可能かどうかを返します。
func (e *BatchError) IsRetryable() bool {
	return e.isRetryable
}

// IsSkippable はこのエラーがスキップ可能かどうかを返します。
func (e *BatchError) IsSkippable() bool {
	return e.isSkippable
}

// IsTemporary は一時的なエラーかどうかを判定します。
// BatchError の場合は IsRetryable フラグを優先します。
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	var be *BatchError
	if errors.As(err, &be) {
		return be.IsRetryable()
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "database is locked")
}

// IsFatal は致命的なエラーかどうかを判定します。
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var be *BatchError
	if errors.As(err, &be) {
		return !be.IsSkippable()
	}
	errStr := err.Error()
	return strings.Contains(errStr, "invalid argument") ||
		strings.Contains(errStr, "permission denied")
}

// IsErrorOfType はエラーが指定された型名（例: "*net.OpError"）に一致するか、
// メッセージに指定文字列を含むかを、ラップされたエラーまで遡って判定します。
func IsErrorOfType(err error, errorTypeName string) bool {
	for ; err != nil; err = errors.Unwrap(err) {
		typeName := fmt.Sprintf("%T", err)
		if typeName == errorTypeName || strings.TrimPrefix(typeName, "*") == errorTypeName {
			return true
		}
		if strings.Contains(err.Error(), errorTypeName) {
			return true
		}
	}
	return false
}
