package writer

import (
	"context"

	"batchadmin/pkg/batch/database"
	core "batchadmin/pkg/batch/job/core"
	logger "batchadmin/pkg/batch/util/logger"
)

// ExecutionContextWriter は受け取ったアイテムを StepExecutionContext の dataKey に追記します。
// ExecutionContextPromotion と組み合わせると、後続のステップにデータを渡せます。
// トランザクションは使用しません。
type ExecutionContextWriter[T any] struct {
	dataKey string
	items   []any
}

// NewExecutionContextWriter は新しい ExecutionContextWriter を作成します。
func NewExecutionContextWriter[T any](dataKey string) *ExecutionContextWriter[T] {
	return &ExecutionContextWriter[T]{dataKey: dataKey, items: make([]any, 0)}
}

// Write はチャンクのアイテムを追記します。
func (w *ExecutionContextWriter[T]) Write(ctx context.Context, tx database.Tx, items []T) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	for _, item := range items {
		w.items = append(w.items, item)
	}
	logger.Debugf("ExecutionContextWriter: アイテム %d 件を書き込みました。キー: '%s'", len(items), w.dataKey)
	return nil
}

// Close は何もしません。
func (w *ExecutionContextWriter[T]) Close(ctx context.Context) error {
	return nil
}

// SetExecutionContext は既存のデータを読み込みます。JSON 復元後の []interface{} もそのまま扱います。
func (w *ExecutionContextWriter[T]) SetExecutionContext(ctx context.Context, ec core.ExecutionContext) error {
	raw, ok := ec.Get(w.dataKey)
	if !ok || raw == nil {
		return nil
	}
	if loaded, ok := raw.([]any); ok {
		w.items = append(make([]any, 0, len(loaded)), loaded...)
		return nil
	}
	logger.Warnf("ExecutionContextWriter: ExecutionContext の既存データ '%s' の型が予期せぬものです: %T", w.dataKey, raw)
	return nil
}

// GetExecutionContext は書き込み済みのアイテムを返します。
func (w *ExecutionContextWriter[T]) GetExecutionContext(ctx context.Context) (core.ExecutionContext, error) {
	ec := core.NewExecutionContext()
	ec.Put(w.dataKey, append([]any(nil), w.items...))
	return ec, nil
}

// Items は書き込み済みのアイテムを返します。
func (w *ExecutionContextWriter[T]) Items() []any {
	return append([]any(nil), w.items...)
}

var _ Writer[string] = (*ExecutionContextWriter[string])(nil)
