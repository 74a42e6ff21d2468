package connector

import (
	"database/sql"

	"github.com/snowflakedb/gosnowflake"

	"batchadmin/pkg/batch/config"
	"batchadmin/pkg/batch/database"
	"batchadmin/pkg/batch/util/exception"
)

// snowflakeConnector は Snowflake に接続します。実行履歴の参照・集計用です。
type snowflakeConnector struct{}

func snowflakeDSN(cfg config.DatabaseConfig) (string, error) {
	sc := &gosnowflake.Config{
		Account:   cfg.Account,
		User:      cfg.User,
		Password:  cfg.Password,
		Database:  cfg.Database,
		Schema:    cfg.Schema,
		Warehouse: cfg.Warehouse,
		Role:      cfg.Role,
	}
	return gosnowflake.DSN(sc)
}

func (c *snowflakeConnector) Connect(cfg config.DatabaseConfig) (*sql.DB, error) {
	dsn, err := snowflakeDSN(cfg)
	if err != nil {
		return nil, exception.NewBatchError("database", "Snowflake の DSN 作成に失敗しました", err, false, false)
	}
	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, exception.NewBatchError("database", "Snowflake への接続に失敗しました", err, false, false)
	}
	applyPool(db, cfg.ConnectionPool)
	return db, nil
}

func (c *snowflakeConnector) Dialect() database.Dialect {
	return database.DialectSnowflake
}

func (c *snowflakeConnector) MigrationURL(cfg config.DatabaseConfig) string {
	return ""
}

func init() {
	RegisterConnector("snowflake", &snowflakeConnector{})
}
