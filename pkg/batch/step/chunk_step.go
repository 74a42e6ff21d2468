package step

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"

	core "batchadmin/pkg/batch/job/core"
	"batchadmin/pkg/batch/repository/job"
	"batchadmin/pkg/batch/step/processor"
	"batchadmin/pkg/batch/step/reader"
	"batchadmin/pkg/batch/step/writer"
	exception "batchadmin/pkg/batch/util/exception"
	logger "batchadmin/pkg/batch/util/logger"
)

// DefaultChunkSize は chunkSize が 0 以下の場合に使用するチャンクサイズです。
const DefaultChunkSize = 10

// ChunkStep はチャンク指向のステップを実装します。
// Reader, Processor, Writer を使用してアイテムを処理し、チャンクごとにトランザクションをコミットします。
type ChunkStep[I, O any] struct {
	stepSupport
	reader         reader.Reader[I]
	processor      processor.Processor[I, O]
	writer         writer.Writer[O]
	chunkSize      int
	chunkListeners []core.ChunkListener
}

var _ core.Step = (*ChunkStep[any, any])(nil)

// NewChunkStep は新しい ChunkStep のインスタンスを作成します。
// processor が nil の場合、I を O としてそのまま渡します。
// Reader, Processor, Writer のうち StepExecutionListener を実装するものは自動で登録されます。
func NewChunkStep[I, O any](
	name string,
	r reader.Reader[I],
	p processor.Processor[I, O],
	w writer.Writer[O],
	chunkSize int,
	repo job.JobRepository,
	stepListeners []core.StepExecutionListener,
	chunkListeners []core.ChunkListener,
	executionContextPromotion *core.ExecutionContextPromotion,
) *ChunkStep[I, O] {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	cs := &ChunkStep[I, O]{
		stepSupport: stepSupport{
			name:                      name,
			jobRepository:             repo,
			stepListeners:             append([]core.StepExecutionListener(nil), stepListeners...),
			executionContextPromotion: executionContextPromotion,
		},
		reader:         r,
		processor:      p,
		writer:         w,
		chunkSize:      chunkSize,
		chunkListeners: chunkListeners,
	}
	cs.addListenerIfImplements(r)
	if p != nil {
		cs.addListenerIfImplements(p)
	}
	cs.addListenerIfImplements(w)
	return cs
}

// ID はステップの ID を返します。
func (cs *ChunkStep[I, O]) ID() string {
	return cs.name
}

// StepName はステップの名前を返します。
func (cs *ChunkStep[I, O]) StepName() string {
	return cs.name
}

// ChunkSize はチャンクサイズを返します。
func (cs *ChunkStep[I, O]) ChunkSize() int {
	return cs.chunkSize
}

// Execute はチャンクステップを実行します。
// 失敗したチャンクはロールバックされ、StepExecution は FAILED になります。
func (cs *ChunkStep[I, O]) Execute(ctx context.Context, jobExecution *core.JobExecution, stepExecution *core.StepExecution) error {
	logger.Infof("ステップ '%s' の実行を開始します。(チャンクサイズ: %d)", cs.name, cs.chunkSize)

	if err := cs.open(ctx, stepExecution); err != nil {
		stepExecution.MarkAsFailed(err)
		return err
	}

	if err := cs.reader.SetExecutionContext(ctx, stepExecution.ExecutionContext); err != nil {
		err = exception.NewBatchError(cs.name, "Reader の ExecutionContext 設定に失敗しました", err, false, false)
		stepExecution.MarkAsFailed(err)
		return cs.finishWith(ctx, jobExecution, stepExecution, err)
	}
	if err := cs.writer.SetExecutionContext(ctx, stepExecution.ExecutionContext); err != nil {
		err = exception.NewBatchError(cs.name, "Writer の ExecutionContext 設定に失敗しました", err, false, false)
		stepExecution.MarkAsFailed(err)
		return cs.finishWith(ctx, jobExecution, stepExecution, err)
	}

	cs.notifyBeforeStep(ctx, stepExecution)

	runErr := cs.processChunks(ctx, stepExecution)

	cs.saveComponentContexts(ctx, stepExecution)
	if err := cs.reader.Close(ctx); err != nil {
		logger.Errorf("ステップ '%s': Reader のクローズに失敗しました: %v", cs.name, err)
		stepExecution.AddFailureException(err)
	}
	if err := cs.writer.Close(ctx); err != nil {
		logger.Errorf("ステップ '%s': Writer のクローズに失敗しました: %v", cs.name, err)
		stepExecution.AddFailureException(err)
	}

	switch {
	case runErr == nil:
		stepExecution.MarkAsCompleted()
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		logger.Warnf("ステップ '%s' がコンテキストキャンセルにより停止されました: %v", cs.name, runErr)
		markInterrupted(stepExecution, runErr)
	default:
		logger.Errorf("ステップ '%s' の実行中にエラーが発生しました: %v", cs.name, runErr)
		stepExecution.MarkAsFailed(runErr)
	}
	return cs.finishWith(ctx, jobExecution, stepExecution, runErr)
}

func (cs *ChunkStep[I, O]) finishWith(ctx context.Context, jobExecution *core.JobExecution, stepExecution *core.StepExecution, runErr error) error {
	if err := cs.finish(ctx, jobExecution, stepExecution); err != nil && runErr == nil {
		return err
	}
	logger.Infof("ステップ '%s' の実行が完了しました。ステータス: %s, 終了ステータス: %s", cs.name, stepExecution.Status, stepExecution.ExitStatus)
	return runErr
}

// processChunks はデータの終端までチャンクを繰り返します。
func (cs *ChunkStep[I, O]) processChunks(ctx context.Context, stepExecution *core.StepExecution) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		done, err := cs.processChunk(ctx, stepExecution)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// processChunk は 1 チャンク分を読み込み、変換し、1 トランザクションで書き込みます。
// StepExecution の更新はコミットの後に行います。
func (cs *ChunkStep[I, O]) processChunk(ctx context.Context, stepExecution *core.StepExecution) (bool, error) {
	for _, l := range cs.chunkListeners {
		l.BeforeChunk(ctx, stepExecution)
	}

	items, readCount, filterCount, done, err := cs.readAndProcess(ctx)
	stepExecution.ReadCount += readCount
	stepExecution.FilterCount += filterCount
	if err != nil {
		cs.notifyChunkError(ctx, stepExecution, err)
		return false, err
	}
	if readCount == 0 {
		return true, nil
	}

	if len(items) > 0 {
		if err := cs.write(ctx, items); err != nil {
			stepExecution.RollbackCount++
			cs.notifyChunkError(ctx, stepExecution, err)
			return false, err
		}
	}
	stepExecution.CommitCount++
	stepExecution.WriteCount += len(items)

	for _, l := range cs.chunkListeners {
		l.AfterChunk(ctx, stepExecution)
	}

	cs.saveComponentContexts(ctx, stepExecution)
	if err := cs.jobRepository.UpdateStepExecution(ctx, stepExecution); err != nil {
		return false, exception.NewBatchError(cs.name, fmt.Sprintf("StepExecution (ID: %s) のチェックポイント更新に失敗しました", stepExecution.ID), err, false, false)
	}
	logger.Debugf("ステップ '%s': %d アイテムを読み込み、%d アイテムを書き込みました。コミットカウント: %d",
		cs.name, readCount, len(items), stepExecution.CommitCount)
	return done, nil
}

func (cs *ChunkStep[I, O]) readAndProcess(ctx context.Context) (items []O, readCount, filterCount int, done bool, err error) {
	items = make([]O, 0, cs.chunkSize)
	for readCount < cs.chunkSize {
		item, readErr := cs.reader.Read(ctx)
		if errors.Is(readErr, io.EOF) {
			return items, readCount, filterCount, true, nil
		}
		if readErr != nil {
			return nil, readCount, filterCount, false, exception.NewBatchError(cs.name, "アイテムの読み込みに失敗しました", readErr, false, false)
		}
		readCount++

		out, procErr := cs.process(ctx, item)
		if errors.Is(procErr, processor.ErrItemFiltered) {
			filterCount++
			continue
		}
		if procErr != nil {
			return nil, readCount, filterCount, false, exception.NewBatchError(cs.name, "アイテムの処理に失敗しました", procErr, false, false)
		}
		if isNil(out) {
			filterCount++
			continue
		}
		items = append(items, out)
	}
	return items, readCount, filterCount, false, nil
}

func (cs *ChunkStep[I, O]) process(ctx context.Context, item I) (O, error) {
	if cs.processor != nil {
		return cs.processor.Process(ctx, item)
	}
	out, ok := any(item).(O)
	if !ok {
		var zero O
		return zero, fmt.Errorf("Processor が未設定で、アイテムの型 %T を出力型に変換できません", item)
	}
	return out, nil
}

// write はチャンクのトランザクション内で Writer を呼び出します。
func (cs *ChunkStep[I, O]) write(ctx context.Context, items []O) error {
	tx, err := cs.jobRepository.GetDBConnection().BeginTx(ctx, nil)
	if err != nil {
		return exception.NewBatchError(cs.name, "トランザクションの開始に失敗しました", err, true, false)
	}
	if err := cs.writer.Write(ctx, tx, items); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Errorf("ステップ '%s': ロールバックに失敗しました: %v", cs.name, rbErr)
		}
		return exception.NewBatchError(cs.name, "アイテムの書き込みに失敗しました", err, false, false)
	}
	if err := tx.Commit(); err != nil {
		return exception.NewBatchError(cs.name, "トランザクションのコミットに失敗しました", err, true, false)
	}
	return nil
}

func (cs *ChunkStep[I, O]) notifyChunkError(ctx context.Context, stepExecution *core.StepExecution, err error) {
	for _, l := range cs.chunkListeners {
		l.AfterChunkError(ctx, stepExecution, err)
	}
}

// saveComponentContexts は Reader と Writer の状態を StepExecutionContext に反映します。
func (cs *ChunkStep[I, O]) saveComponentContexts(ctx context.Context, stepExecution *core.StepExecution) {
	if ec, err := cs.reader.GetExecutionContext(ctx); err == nil {
		stepExecution.ExecutionContext.Merge(ec)
	} else {
		logger.Errorf("Reader の ExecutionContext 取得に失敗しました: %v", err)
	}
	if ec, err := cs.writer.GetExecutionContext(ctx); err == nil {
		stepExecution.ExecutionContext.Merge(ec)
	} else {
		logger.Errorf("Writer の ExecutionContext 取得に失敗しました: %v", err)
	}
}

// isNil は Processor が nil のインターフェースまたはポインタを返したかどうかを判定します。
func isNil[T any](v T) bool {
	rv := reflect.ValueOf(&v).Elem()
	switch rv.Kind() {
	case reflect.Interface, reflect.Pointer:
		return rv.IsNil()
	}
	return false
}
