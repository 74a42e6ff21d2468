package sql

import (
	"context"
	"database/sql"
	"time"

	"batchadmin/pkg/batch/database"
	"batchadmin/pkg/batch/repository/job"
	exception "batchadmin/pkg/batch/util/exception"
	logger "batchadmin/pkg/batch/util/logger"
)

// SQLJobRepository は JobRepository インターフェースの SQL データベース実装です。
// 各リポジトリの具体的な実装を埋め込み、委譲します。
type SQLJobRepository struct {
	dbConnection database.DBConnection

	*SQLJobInstanceRepository
	*SQLJobExecutionRepository
	*SQLStepExecutionRepository
}

// NewSQLJobRepository は確立済みのデータベース接続から SQLJobRepository を作成します。
func NewSQLJobRepository(dbConn database.DBConnection) *SQLJobRepository {
	instanceRepo := NewSQLJobInstanceRepository(dbConn)
	stepRepo := NewSQLStepExecutionRepository(dbConn)
	executionRepo := NewSQLJobExecutionRepository(dbConn, instanceRepo, stepRepo)

	return &SQLJobRepository{
		dbConnection:               dbConn,
		SQLJobInstanceRepository:   instanceRepo,
		SQLJobExecutionRepository:  executionRepo,
		SQLStepExecutionRepository: stepRepo,
	}
}

// GetDBConnection は JobRepository インターフェースの実装です。
func (r *SQLJobRepository) GetDBConnection() database.DBConnection {
	return r.dbConnection
}

// Close はデータベース接続を閉じます。
func (r *SQLJobRepository) Close() error {
	if r.dbConnection == nil {
		return nil
	}
	if err := r.dbConnection.Close(); err != nil {
		return exception.NewBatchError("job_repository", "データベース接続を閉じるのに失敗しました", err, false, false)
	}
	logger.Debugf("Job Repository のデータベース接続を閉じました。")
	return nil
}

var _ job.JobRepository = (*SQLJobRepository)(nil)

// querier は DBConnection と Tx の共通部分です。
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// 時刻は UTC で保存する。sqlite3 では文字列として保存されるため、順序比較を揃える目的もある。
func dbTime(t time.Time) time.Time {
	return t.UTC()
}

// nullableTime はゼロ値を NULL として保存します。
func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func fromNullTime(nt sql.NullTime) time.Time {
	if !nt.Valid {
		return time.Time{}
	}
	return nt.Time
}

func fromNullString(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}

// withTx はトランザクション内で fn を実行し、エラー時はロールバックします。
func withTx(ctx context.Context, conn database.DBConnection, fn func(tx database.Tx) error) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Errorf("トランザクションのロールバックに失敗しました: %v", rbErr)
		}
		return err
	}
	return tx.Commit()
}
