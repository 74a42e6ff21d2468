package repository

import (
	"context"
	"fmt"

	"batchadmin/pkg/batch/config"
	"batchadmin/pkg/batch/database"
	"batchadmin/pkg/batch/database/connector"
	"batchadmin/pkg/batch/repository/job"
	sqlrepo "batchadmin/pkg/batch/repository/sql"
	exception "batchadmin/pkg/batch/util/exception"
	logger "batchadmin/pkg/batch/util/logger"
)

// JobRepository は job.JobRepository の別名です。
type JobRepository = job.JobRepository

// NewJobRepository は JobRepository のインスタンスを作成します。
// アプリケーションの設定を基にデータベース接続を確立し、必要ならマイグレーションを適用します。
func NewJobRepository(ctx context.Context, cfg config.Config) (JobRepository, error) {
	module := "repository_factory"
	logger.Debugf("JobRepository の生成を開始します (Type: %s).", cfg.Database.Type)

	dbConn, err := connector.Open(ctx, cfg.Database)
	if err != nil {
		logger.Errorf("JobRepository 用のデータベース接続確立に失敗しました (Type: %s): %v", cfg.Database.Type, err)
		return nil, exception.NewBatchError(module, fmt.Sprintf("JobRepository 用のデータベース接続確立に失敗しました (Type: %s)", cfg.Database.Type), err, false, false)
	}

	if cfg.Database.AutoMigrate {
		url, err := connector.MigrationURL(cfg.Database)
		if err != nil {
			dbConn.Close()
			return nil, err
		}
		if err := database.RunMigrations(ctx, dbConn, url, cfg.Database.MigrationsTable); err != nil {
			dbConn.Close()
			logger.Errorf("JobRepository のマイグレーションに失敗しました (Type: %s): %v", cfg.Database.Type, err)
			return nil, exception.NewBatchError(module, "JobRepository のマイグレーションに失敗しました", err, false, false)
		}
	}

	logger.Debugf("SQLJobRepository を生成しました。")
	return sqlrepo.NewSQLJobRepository(dbConn), nil
}
