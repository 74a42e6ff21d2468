package initializer

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"batchadmin/pkg/batch/config"
	"batchadmin/pkg/batch/job/component"
	"batchadmin/pkg/batch/job/factory"
	"batchadmin/pkg/batch/job/joblauncher"
	"batchadmin/pkg/batch/job/joboperator"
	"batchadmin/pkg/batch/job/jsl"
	"batchadmin/pkg/batch/repository"
	"batchadmin/pkg/batch/service"
	exception "batchadmin/pkg/batch/util/exception"
	logger "batchadmin/pkg/batch/util/logger"
)

// JobRegistrar はプログラムで組み立てるジョブを JobFactory に登録する関数です。
type JobRegistrar func(f *factory.JobFactory) error

// BatchInitializer はバッチアプリケーションの初期化処理を担当します。
type BatchInitializer struct {
	Config *config.Config
	// JobDefinitionFS から Config.Batch.JobDefinitions の JSL ファイルを読み込みます。
	JobDefinitionFS fs.FS
	// Registry は JSL から参照されるコンポーネントです。
	Registry *component.Registry
	// JobRegistrars はプログラムで組み立てるジョブの登録処理です。
	JobRegistrars []JobRegistrar

	JobRepository repository.JobRepository
	JobFactory    *factory.JobFactory
	JobLauncher   *joblauncher.SimpleJobLauncher
	JobOperator   *joboperator.DefaultJobOperator
	JobService    *service.JobService
}

// NewBatchInitializer は新しい BatchInitializer のインスタンスを作成します。
func NewBatchInitializer(cfg *config.Config) *BatchInitializer {
	return &BatchInitializer{
		Config:   cfg,
		Registry: component.NewRegistry(),
	}
}

// connectWithRetry はリトライ付きで JobRepository を生成します。
func connectWithRetry(ctx context.Context, cfg *config.Config) (repository.JobRepository, error) {
	maxRetries := cfg.Database.ConnectRetries
	if maxRetries < 1 {
		maxRetries = 1
	}
	delay := time.Duration(cfg.Database.ConnectRetryIntervalSeconds) * time.Second

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		logger.Debugf("データベース接続を試行中 (試行 %d/%d)...", i+1, maxRetries)
		repo, err := repository.NewJobRepository(ctx, *cfg)
		if err == nil {
			return repo, nil
		}
		lastErr = err
		logger.Warnf("データベース接続に失敗しました: %v", err)
		if i+1 == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("データベースへの接続に最大試行回数 (%d) 失敗しました: %w", maxRetries, lastErr)
}

// Initialize はバッチアプリケーションの初期化処理を実行し、JobService を返します。
// .env ファイルと設定ファイルのロードは呼び出し元で行います。
func (bi *BatchInitializer) Initialize(ctx context.Context) (*service.JobService, error) {
	logger.Debugf("BatchInitializer.Initialize が呼び出されました。")
	if bi.Config == nil {
		bi.Config = config.NewConfig()
	}
	if bi.Registry == nil {
		bi.Registry = component.NewRegistry()
	}

	logger.SetLogLevel(bi.Config.System.Logging.Level)
	logger.Infof("ロギングレベルを '%s' に設定しました。", bi.Config.System.Logging.Level)

	jobRepository, err := connectWithRetry(ctx, bi.Config)
	if err != nil {
		return nil, exception.NewBatchError("initializer", "Job Repository の生成に失敗しました", err, false, false)
	}
	bi.JobRepository = jobRepository
	logger.Infof("Job Repository を生成しました (Type: %s)。", bi.Config.Database.Type)

	jobFactory := factory.NewJobFactory(bi.Config, jobRepository, bi.Registry)
	if err := bi.loadJobDefinitions(jobFactory); err != nil {
		bi.closeRepository()
		return nil, err
	}
	for _, register := range bi.JobRegistrars {
		if err := register(jobFactory); err != nil {
			bi.closeRepository()
			return nil, exception.NewBatchError("initializer", "ジョブの登録に失敗しました", err, false, false)
		}
	}
	bi.JobFactory = jobFactory
	logger.Infof("JobFactory を生成しました。登録ジョブ: %v", jobFactory.GetJobNames())

	var executor joblauncher.TaskExecutor = joblauncher.SyncTaskExecutor{}
	mode, err := factory.ParseLaunchMode(bi.Config.Batch.TaskExecutor, factory.LaunchModeSync)
	if err != nil {
		logger.Warnf("batch.task_executor が不正なため sync として扱います: %v", err)
	} else if mode == factory.LaunchModeAsync {
		executor = joblauncher.AsyncTaskExecutor{}
	}
	bi.JobLauncher = joblauncher.NewSimpleJobLauncher(jobRepository, executor)
	bi.JobOperator = joboperator.NewDefaultJobOperator(jobRepository, jobFactory, bi.JobLauncher)
	bi.JobService = service.NewJobService(jobRepository, jobFactory, bi.JobLauncher, bi.JobOperator)
	logger.Infof("JobService を生成しました。")

	return bi.JobService, nil
}

// loadJobDefinitions は設定に列挙された JSL ファイルを読み込んで登録します。
func (bi *BatchInitializer) loadJobDefinitions(jobFactory *factory.JobFactory) error {
	names := bi.Config.Batch.JobDefinitions
	if len(names) == 0 {
		return nil
	}
	if bi.JobDefinitionFS == nil {
		return exception.NewBatchErrorf("initializer", "JSL ファイル %v を読み込む JobDefinitionFS が設定されていません", names)
	}
	for _, name := range names {
		data, err := fs.ReadFile(bi.JobDefinitionFS, name)
		if err != nil {
			return exception.NewBatchError("initializer", fmt.Sprintf("JSL ファイル '%s' の読み込みに失敗しました", name), err, false, false)
		}
		def, err := jsl.LoadJSLDefinitionFromBytes(data)
		if err != nil {
			return exception.NewBatchError("initializer", fmt.Sprintf("JSL ファイル '%s' のロードに失敗しました", name), err, false, false)
		}
		if err := jobFactory.RegisterJSL(def); err != nil {
			return err
		}
	}
	logger.Infof("JSL 定義のロードが完了しました。ロードされたジョブ数: %d", len(names))
	return nil
}

func (bi *BatchInitializer) closeRepository() {
	if bi.JobRepository == nil {
		return
	}
	if err := bi.JobRepository.Close(); err != nil {
		logger.Errorf("Job Repository のクローズに失敗しました: %v", err)
	}
	bi.JobRepository = nil
}

// Close は BatchInitializer が保持するリソースを解放します。
// 非同期実行中のジョブは ctx の期限まで終了を待ちます。
func (bi *BatchInitializer) Close(ctx context.Context) error {
	if bi.JobService != nil {
		err := bi.JobService.Close(ctx)
		bi.JobService = nil
		bi.JobRepository = nil
		if err != nil {
			logger.Errorf("JobService のクローズに失敗しました: %v", err)
			return err
		}
		logger.Infof("Job Repository を正常にクローズしました。")
		return nil
	}
	bi.closeRepository()
	return nil
}
