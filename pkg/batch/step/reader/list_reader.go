package reader

import (
	"context"
	"io"

	core "batchadmin/pkg/batch/job/core"
	logger "batchadmin/pkg/batch/util/logger"
)

// ListReader はメモリ上のスライスから順にアイテムを返す Reader です。
// 読み込み位置を ExecutionContext に保存するため、リスタート時は続きから読み込みます。
type ListReader[T any] struct {
	name  string
	items []T
	index int
}

// NewListReader は新しい ListReader を作成します。name は ExecutionContext のキーの接頭辞になります。
func NewListReader[T any](name string, items []T) *ListReader[T] {
	return &ListReader[T]{name: name, items: items}
}

func (r *ListReader[T]) indexKey() string {
	return r.name + ".read.count"
}

// Read は次のアイテムを返します。終端では io.EOF を返します。
func (r *ListReader[T]) Read(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	default:
	}
	if r.index >= len(r.items) {
		return zero, io.EOF
	}
	item := r.items[r.index]
	r.index++
	return item, nil
}

// Close は読み込み位置を先頭に戻します。
func (r *ListReader[T]) Close(ctx context.Context) error {
	r.index = 0
	return nil
}

// SetExecutionContext は保存された読み込み位置を復元します。
func (r *ListReader[T]) SetExecutionContext(ctx context.Context, ec core.ExecutionContext) error {
	if idx, ok := ec.GetInt(r.indexKey()); ok && idx >= 0 && idx <= len(r.items) {
		r.index = idx
		logger.Debugf("ListReader '%s': 読み込み位置 %d から再開します。", r.name, idx)
	}
	return nil
}

// GetExecutionContext は現在の読み込み位置を返します。
func (r *ListReader[T]) GetExecutionContext(ctx context.Context) (core.ExecutionContext, error) {
	ec := core.NewExecutionContext()
	ec.Put(r.indexKey(), r.index)
	return ec, nil
}

var _ Reader[string] = (*ListReader[string])(nil)
