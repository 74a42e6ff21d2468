package connector

import (
	"database/sql"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite ドライバ (組み込み DB)

	"batchadmin/pkg/batch/config"
	"batchadmin/pkg/batch/database"
	"batchadmin/pkg/batch/util/exception"
)

// sqliteConnector は組み込みの SQLite に接続します。テストと単体起動で使用します。
type sqliteConnector struct{}

func sqliteDSN(path string) string {
	params := url.Values{}
	params.Set("_busy_timeout", "5000")
	params.Set("_foreign_keys", "on")
	if path == ":memory:" {
		// Open ごとに独立したインメモリ DB
		params.Set("mode", "memory")
		params.Set("cache", "shared")
		return fmt.Sprintf("file:batch-%s?%s", uuid.NewString(), params.Encode())
	}
	return fmt.Sprintf("file:%s?%s", path, params.Encode())
}

func (c *sqliteConnector) Connect(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", sqliteDSN(cfg.Path))
	if err != nil {
		return nil, exception.NewBatchError("database", "SQLite のオープンに失敗しました", err, false, false)
	}
	// SQLite は書き込みが単一接続に限られ、インメモリ DB は接続を閉じると消えるため 1 接続に固定する
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	return db, nil
}

func (c *sqliteConnector) Dialect() database.Dialect {
	return database.DialectSQLite
}

func (c *sqliteConnector) MigrationURL(cfg config.DatabaseConfig) string {
	return ""
}

func init() {
	RegisterConnector("sqlite3", &sqliteConnector{})
}
