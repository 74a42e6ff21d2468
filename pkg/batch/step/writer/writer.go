package writer

import (
	"context"

	"batchadmin/pkg/batch/database"
	core "batchadmin/pkg/batch/job/core"
)

// Writer はデータを書き込むステップのインターフェースです。
// I は書き込まれるアイテムの型です。tx はチャンクのトランザクションで、コミットはステップが行います。
type Writer[I any] interface {
	Write(ctx context.Context, tx database.Tx, items []I) error
	Close(ctx context.Context) error
	SetExecutionContext(ctx context.Context, ec core.ExecutionContext) error
	GetExecutionContext(ctx context.Context) (core.ExecutionContext, error)
}
