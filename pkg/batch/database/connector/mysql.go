package connector

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"batchadmin/pkg/batch/config"
	"batchadmin/pkg/batch/database"
	"batchadmin/pkg/batch/util/exception"
)

// mysqlConnector は go-sql-driver/mysql で MySQL に接続します。
type mysqlConnector struct{}

// DSN は TIMESTAMP を time.Time として扱う MySQL の DSN を組み立てます。
func mysqlDSN(cfg config.DatabaseConfig) string {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	mc.DBName = cfg.Database
	mc.ParseTime = true
	mc.Loc = time.UTC
	return mc.FormatDSN()
}

func (c *mysqlConnector) Connect(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", mysqlDSN(cfg))
	if err != nil {
		return nil, exception.NewBatchError("database", "MySQL への接続に失敗しました", err, false, false)
	}
	applyPool(db, cfg.ConnectionPool)
	return db, nil
}

func (c *mysqlConnector) Dialect() database.Dialect {
	return database.DialectMySQL
}

func (c *mysqlConnector) MigrationURL(cfg config.DatabaseConfig) string {
	return "mysql://" + mysqlDSN(cfg)
}

func init() {
	RegisterConnector("mysql", &mysqlConnector{})
}
