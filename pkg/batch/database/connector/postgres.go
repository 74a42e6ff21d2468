package connector

import (
	"database/sql"

	_ "github.com/lib/pq" // PostgreSQL ドライバ

	"batchadmin/pkg/batch/config"
	"batchadmin/pkg/batch/database"
	"batchadmin/pkg/batch/util/exception"
)

// postgresConnector は lib/pq で PostgreSQL に接続します。
type postgresConnector struct {
	name string
}

func (c *postgresConnector) Connect(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.ConnectionString())
	if err != nil {
		return nil, exception.NewBatchError("database", c.name+" への接続に失敗しました", err, false, false)
	}
	applyPool(db, cfg.ConnectionPool)
	return db, nil
}

func (c *postgresConnector) Dialect() database.Dialect {
	return database.DialectPostgres
}

func (c *postgresConnector) MigrationURL(cfg config.DatabaseConfig) string {
	return cfg.ConnectionString()
}

func init() {
	RegisterConnector("postgres", &postgresConnector{name: "PostgreSQL"})
	// Redshift は PostgreSQL と互換性があるため、pq ドライバを使用
	RegisterConnector("redshift", &postgresConnector{name: "Redshift"})
}
