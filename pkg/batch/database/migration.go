package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"    // MySQL ドライバを登録
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // PostgreSQL および Redshift ドライバを登録
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"batchadmin/pkg/batch/util/exception"
	"batchadmin/pkg/batch/util/logger"
)

//go:embed migrations
var migrationsFS embed.FS

// DefaultMigrationsTable はフレームワークのマイグレーション履歴テーブル名です。
const DefaultMigrationsTable = "batch_schema_migrations"

// MigrationDir は方言ごとの埋め込みマイグレーションディレクトリを返します。
func MigrationDir(dialect Dialect) (string, error) {
	switch dialect {
	case DialectPostgres:
		return "migrations/postgres", nil
	case DialectMySQL:
		return "migrations/mysql", nil
	case DialectSQLite:
		return "migrations/sqlite3", nil
	default:
		return "", exception.NewBatchErrorf("migration", "方言 '%s' のマイグレーションはありません", dialect)
	}
}

// RunMigrations はバッチメタデータのスキーマを最新にします。
//
// databaseURL は golang-migrate 形式の URL (postgres://..., mysql://...) です。
// sqlite3 は URL を使わず、既存の接続に対して実行します (":memory:" でも同一 DB に適用されます)。
// snowflake はスキーマを管理しないため何もしません。
func RunMigrations(ctx context.Context, conn DBConnection, databaseURL, migrationsTable string) error {
	dialect := conn.Dialect()
	if dialect == DialectSnowflake {
		logger.Warnf("データベースタイプ 'snowflake' のマイグレーションはサポートされていません。スキーマは事前に作成してください。")
		return nil
	}
	if migrationsTable == "" {
		migrationsTable = DefaultMigrationsTable
	}

	dir, err := MigrationDir(dialect)
	if err != nil {
		return err
	}
	src, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return exception.NewBatchError("migration", "マイグレーションソースの読み込みに失敗しました", err, false, false)
	}

	logger.Infof("データベースマイグレーションを開始します。方言: %s, ソース: %s", dialect, dir)

	var m *migrate.Migrate
	switch dialect {
	case DialectSQLite:
		driver, err := sqlite3.WithInstance(conn.DB(), &sqlite3.Config{MigrationsTable: migrationsTable})
		if err != nil {
			return exception.NewBatchError("migration", "sqlite3 マイグレーションドライバの作成に失敗しました", err, false, false)
		}
		m, err = migrate.NewWithInstance("iofs", src, "sqlite3", driver)
		if err != nil {
			return exception.NewBatchError("migration", "マイグレーションインスタンスの作成に失敗しました", err, false, false)
		}
		// m.Close() は共有している *sql.DB まで閉じるため呼び出さない
		defer src.Close()
	default:
		url := withMigrationParams(dialect, databaseURL, migrationsTable)
		m, err = migrate.NewWithSourceInstance("iofs", src, url)
		if err != nil {
			return exception.NewBatchError("migration", "マイグレーションインスタンスの作成に失敗しました", err, false, false)
		}
		defer func() {
			if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
				logger.Warnf("マイグレーションのクローズに失敗しました: source=%v, database=%v", srcErr, dbErr)
			}
		}()
	}

	done := make(chan error, 1)
	go func() { done <- m.Up() }()
	select {
	case <-ctx.Done():
		m.GracefulStop <- true
		<-done
		return exception.NewBatchError("migration", "マイグレーションが中断されました", ctx.Err(), false, false)
	case err = <-done:
	}

	if errors.Is(err, migrate.ErrNoChange) {
		logger.Infof("マイグレーションは不要です。データベースは最新の状態です。")
		return nil
	}
	if err != nil {
		return exception.NewBatchError("migration", "マイグレーションの適用に失敗しました", err, false, false)
	}
	logger.Infof("データベースマイグレーションが正常に完了しました。")
	return nil
}

func withMigrationParams(dialect Dialect, databaseURL, migrationsTable string) string {
	sep := "?"
	if strings.Contains(databaseURL, "?") {
		sep = "&"
	}
	url := fmt.Sprintf("%s%sx-migrations-table=%s", databaseURL, sep, migrationsTable)
	if dialect == DialectMySQL && !strings.Contains(url, "multiStatements") {
		url += "&multiStatements=true"
	}
	return url
}
