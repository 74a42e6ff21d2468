package reader

import (
	"context"

	core "batchadmin/pkg/batch/job/core"
)

// Reader はデータを読み込むステップのインターフェースです。
// O は読み込まれるアイテムの型です。データの終端では io.EOF を返します。
type Reader[O any] interface {
	Read(ctx context.Context) (O, error)
	Close(ctx context.Context) error
	SetExecutionContext(ctx context.Context, ec core.ExecutionContext) error
	GetExecutionContext(ctx context.Context) (core.ExecutionContext, error)
}
