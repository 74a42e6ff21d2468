package connector

import (
	"database/sql"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"batchadmin/pkg/batch/config"
	"batchadmin/pkg/batch/database"
	"batchadmin/pkg/batch/util/exception"
)

// pgxConnector は pgx の database/sql アダプタで PostgreSQL に接続します。
type pgxConnector struct{}

func (c *pgxConnector) Connect(cfg config.DatabaseConfig) (*sql.DB, error) {
	connConfig, err := pgx.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, exception.NewBatchError("database", "pgx 接続設定のパースに失敗しました", err, false, false)
	}
	db := stdlib.OpenDB(*connConfig)
	applyPool(db, cfg.ConnectionPool)
	return db, nil
}

func (c *pgxConnector) Dialect() database.Dialect {
	return database.DialectPostgres
}

// マイグレーションは lib/pq ベースの postgres ドライバで行います。
func (c *pgxConnector) MigrationURL(cfg config.DatabaseConfig) string {
	return cfg.ConnectionString()
}

func init() {
	RegisterConnector("pgx", &pgxConnector{})
}
