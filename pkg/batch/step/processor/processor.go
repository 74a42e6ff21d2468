package processor

import (
	"context"
	"errors"
	"fmt"
)

// ErrItemFiltered を返したアイテムはフィルタされ、書き込まれません。
var ErrItemFiltered = errors.New("アイテムはフィルタされました")

// Processor はアイテムを変換するステップのインターフェースです。
// I は入力アイテムの型、O は出力アイテムの型です。
// ErrItemFiltered を返すか、nil のインターフェース・ポインタを返したアイテムはフィルタされます。
// 0 や空文字などのゼロ値はそのまま書き込まれます。
type Processor[I, O any] interface {
	Process(ctx context.Context, item I) (O, error)
}

// PassThroughProcessor は入力をそのまま返します。
type PassThroughProcessor[T any] struct{}

// Process はアイテムをそのまま返します。
func (PassThroughProcessor[T]) Process(ctx context.Context, item T) (T, error) {
	return item, nil
}

// FuncProcessor は関数を Processor として扱います。
type FuncProcessor[I, O any] func(ctx context.Context, item I) (O, error)

// Process は関数を呼び出します。
func (f FuncProcessor[I, O]) Process(ctx context.Context, item I) (O, error) {
	if f == nil {
		var zero O
		return zero, fmt.Errorf("FuncProcessor が nil です")
	}
	return f(ctx, item)
}
