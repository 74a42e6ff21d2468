package connector

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"batchadmin/pkg/batch/config"
	"batchadmin/pkg/batch/database"
	"batchadmin/pkg/batch/util/exception"
	"batchadmin/pkg/batch/util/logger"
)

// DBConnector は特定のデータベースタイプへの接続を確立するためのインターフェースです。
type DBConnector interface {
	// Connect は *sql.DB を開きます。接続確認 (Ping) は Open が行います。
	Connect(cfg config.DatabaseConfig) (*sql.DB, error)
	// Dialect はクエリの書き換えとマイグレーションに使う方言です。
	Dialect() database.Dialect
	// MigrationURL は golang-migrate 用のデータベース URL を返します。
	// 既存接続に対してマイグレーションする方言では空文字列を返します。
	MigrationURL(cfg config.DatabaseConfig) string
}

var (
	mu         sync.RWMutex
	connectors = make(map[string]DBConnector)
)

// RegisterConnector は指定されたタイプ名で DBConnector を登録します。
func RegisterConnector(dbType string, connector DBConnector) {
	mu.Lock()
	defer mu.Unlock()
	key := strings.ToLower(dbType)
	if _, exists := connectors[key]; exists {
		logger.Warnf("データベースタイプ '%s' のコネクタは既に登録されています。上書きします。", dbType)
	}
	connectors[key] = connector
}

// Lookup は登録済みの DBConnector を取得します。
func Lookup(dbType string) (DBConnector, error) {
	mu.RLock()
	defer mu.RUnlock()
	c, ok := connectors[strings.ToLower(dbType)]
	if !ok {
		return nil, exception.NewBatchError("database", fmt.Sprintf("未対応のデータベースタイプ: %s", dbType), nil, false, false)
	}
	return c, nil
}

// Registered は登録済みのデータベースタイプをソートして返します。
func Registered() []string {
	mu.RLock()
	defer mu.RUnlock()
	types := make([]string, 0, len(connectors))
	for t := range connectors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Open は設定に合うコネクタで接続し、Ping で疎通を確認した DBConnection を返します。
func Open(ctx context.Context, cfg config.DatabaseConfig) (database.DBConnection, error) {
	c, err := Lookup(cfg.Type)
	if err != nil {
		return nil, err
	}
	db, err := c.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, exception.NewBatchError("database", fmt.Sprintf("データベース (%s) への Ping に失敗しました", cfg.Type), err, true, false)
	}
	logger.Debugf("データベース (%s) に接続しました。", cfg.Type)
	return database.NewSQLDBAdapter(db, c.Dialect()), nil
}

// MigrationURL は設定のデータベースタイプに対応する golang-migrate 用 URL を返します。
func MigrationURL(cfg config.DatabaseConfig) (string, error) {
	c, err := Lookup(cfg.Type)
	if err != nil {
		return "", err
	}
	return c.MigrationURL(cfg), nil
}

// applyPool は接続プール設定を適用します。
func applyPool(db *sql.DB, pool config.ConnectionPoolConfig) {
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetimeSeconds > 0 {
		db.SetConnMaxLifetime(time.Duration(pool.ConnMaxLifetimeSeconds) * time.Second)
	}
}
