package joblauncher

import (
	"context"

	core "batchadmin/pkg/batch/job/core"
)

// JobLauncher は Job を JobParameters とともに起動するためのインターフェースです。
// Spring Batchの JobLauncher に相当します。
type JobLauncher interface {
	// Launch は指定された Job を JobParameters とともに起動し、JobExecution を返します。
	// ここで返されるエラーは、ジョブ自体の実行エラーではなく、起動処理自体のエラーです。
	Launch(ctx context.Context, job core.Job, params core.JobParameters) (*core.JobExecution, error)
}

// TaskExecutor はジョブの実行をどのゴルーチンで行うかを決めます。
type TaskExecutor interface {
	// Execute は task を実行します。非同期の実装は task の完了を待たずに戻ります。
	Execute(task func())
	// IsAsync は Execute が task の完了前に戻るかどうかを返します。
	IsAsync() bool
}

// SyncTaskExecutor は呼び出し元のゴルーチンで task を実行します。
type SyncTaskExecutor struct{}

// Execute は task を実行し、完了してから戻ります。
func (SyncTaskExecutor) Execute(task func()) { task() }

// IsAsync は false を返します。
func (SyncTaskExecutor) IsAsync() bool { return false }

// AsyncTaskExecutor は新しいゴルーチンで task を実行します。
type AsyncTaskExecutor struct{}

// Execute は task をゴルーチンで開始し、即座に戻ります。
func (AsyncTaskExecutor) Execute(task func()) { go task() }

// IsAsync は true を返します。
func (AsyncTaskExecutor) IsAsync() bool { return true }
