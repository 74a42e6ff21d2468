package app

import (
	"context"
	"errors"
	"io/fs"

	godotenv "github.com/joho/godotenv"

	"batchadmin/pkg/batch/config"
	"batchadmin/pkg/batch/database"
	"batchadmin/pkg/batch/initializer"
	"batchadmin/pkg/batch/job/component"
	joblistener "batchadmin/pkg/batch/job/listener"
	"batchadmin/pkg/batch/repository/job"
	"batchadmin/pkg/batch/service"
	steplistener "batchadmin/pkg/batch/step/listener"
	itemwriter "batchadmin/pkg/batch/step/writer"
	exception "batchadmin/pkg/batch/util/exception"
	logger "batchadmin/pkg/batch/util/logger"

	"batchadmin/example/admin/jobs"
	examplereader "batchadmin/example/admin/step/reader"
	exampletasklet "batchadmin/example/admin/step/tasklet"
	examplewriter "batchadmin/example/admin/step/writer"
)

// Application は初期化済みのバッチ管理アプリケーションです。
type Application struct {
	Initializer *initializer.BatchInitializer
	JobService  *service.JobService
}

// RegisterComponents は JSL から参照されるサンプルのコンポーネントを登録します。
func RegisterComponents(registry *component.Registry) {
	registry.Register("exampleItemReader", func(cfg *config.Config, repo job.JobRepository, properties map[string]string) (any, error) {
		return examplereader.NewExampleItemReader(cfg, repo, properties)
	})
	registry.Register("exampleItemWriter", func(cfg *config.Config, repo job.JobRepository, properties map[string]string) (any, error) {
		return examplewriter.NewExampleItemWriter(cfg, repo, properties)
	})
	registry.Register("executionContextItemWriter", func(cfg *config.Config, repo job.JobRepository, properties map[string]string) (any, error) {
		key := properties["key"]
		if key == "" {
			key = "items"
		}
		return itemwriter.NewExecutionContextWriter[any](key), nil
	})
	registry.Register("helloTasklet", func(cfg *config.Config, repo job.JobRepository, properties map[string]string) (any, error) {
		return exampletasklet.NewHelloTasklet(cfg, repo, properties)
	})

	registry.Register("loggingJobListener", func(cfg *config.Config, repo job.JobRepository, properties map[string]string) (any, error) {
		return joblistener.NewLoggingJobListener(), nil
	})
	registry.Register("loggingStepListener", func(cfg *config.Config, repo job.JobRepository, properties map[string]string) (any, error) {
		return steplistener.NewLoggingStepListener(), nil
	})
	registry.Register("loggingChunkListener", func(cfg *config.Config, repo job.JobRepository, properties map[string]string) (any, error) {
		return steplistener.NewLoggingChunkListener(), nil
	})

	logger.Debugf("全てのアプリケーションコンポーネントビルダーを登録しました。")
}

// NewApplication は .env と埋め込み設定を読み込み、アプリケーションを初期化します。
// jobDefinitions は設定の batch.job_definitions に列挙された JSL ファイルを含む必要があります。
func NewApplication(ctx context.Context, envFilePath string, embeddedConfig []byte, jobDefinitions fs.FS) (*Application, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env ファイル '%s' のロードに失敗しました (本番環境では環境変数を使用): %v", envFilePath, err)
		} else {
			logger.Infof(".env ファイル '%s' をロードしました。", envFilePath)
		}
	} else {
		logger.Debugf(".env ファイルのパスが指定されていないため、ロードをスキップします。")
	}

	cfg, err := config.NewBytesConfigLoader(embeddedConfig).Load()
	if err != nil {
		return nil, exception.NewBatchError("app", "設定のロードに失敗しました", err, false, false)
	}

	batchInitializer := initializer.NewBatchInitializer(cfg)
	batchInitializer.JobDefinitionFS = jobDefinitions
	RegisterComponents(batchInitializer.Registry)
	batchInitializer.JobRegistrars = append(batchInitializer.JobRegistrars, jobs.RegisterJavaJob)

	jobService, err := batchInitializer.Initialize(ctx)
	if err != nil {
		return nil, exception.NewBatchError("app", "バッチアプリケーションの初期化に失敗しました", err, false, false)
	}
	logger.Infof("バッチアプリケーションの初期化が完了しました。")

	return &Application{Initializer: batchInitializer, JobService: jobService}, nil
}

// DB は JobRepository が使用しているデータベース接続を返します。
func (a *Application) DB() (database.DBConnection, error) {
	if a.Initializer.JobRepository == nil {
		return nil, errors.New("JobRepository はクローズ済みです")
	}
	return a.Initializer.JobRepository.GetDBConnection(), nil
}

// Close は実行中のジョブの終了を待ってリソースを解放します。
func (a *Application) Close(ctx context.Context) error {
	return a.Initializer.Close(ctx)
}
