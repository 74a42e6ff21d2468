package config

import (
	"fmt"
	"net/url"
	"strings"
)

// EmbeddedConfig は main.go から渡される埋め込み設定ファイルの内容です。
type EmbeddedConfig []byte

// ConnectionPoolConfig はデータベースコネクションプールの設定を保持します。
// 0 は database/sql の既定値を意味します。
type ConnectionPoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `yaml:"conn_max_lifetime_seconds"`
}

// DatabaseConfig は JobRepository が使用するデータベースの設定です。
type DatabaseConfig struct {
	// postgres, pgx, redshift, mysql, sqlite3, snowflake
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Sslmode  string `yaml:"sslmode"`
	// sqlite3 のデータベースファイルパス。":memory:" も指定できます。
	Path string `yaml:"path"`
	// snowflake 用
	Account   string `yaml:"account"`
	Warehouse string `yaml:"warehouse"`
	Schema    string `yaml:"schema"`
	Role      string `yaml:"role"`

	// マイグレーション履歴テーブル名
	MigrationsTable string `yaml:"migrations_table"`
	// false の場合は起動時のスキーママイグレーションを行いません。
	AutoMigrate    bool                 `yaml:"auto_migrate"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
	// 起動時の接続試行回数と間隔。0 以下なら 1 回だけ試行します。
	ConnectRetries              int `yaml:"connect_retries"`
	ConnectRetryIntervalSeconds int `yaml:"connect_retry_interval_seconds"`
}

// ConnectionString は postgres 系データベースの URL 形式の接続文字列を返します。
// golang-migrate のデータベース URL としてもそのまま使用できます。
// postgres 系以外のタイプは各コネクタが DSN を組み立てます。
func (c DatabaseConfig) ConnectionString() string {
	switch strings.ToLower(c.Type) {
	case "postgres", "pgx", "redshift":
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(c.User, c.Password),
			Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
			Path:   "/" + c.Database,
		}
		if c.Sslmode != "" {
			u.RawQuery = url.Values{"sslmode": []string{c.Sslmode}}.Encode()
		}
		return u.String()
	default:
		return ""
	}
}

// BatchConfig はバッチ実行基盤の設定です。
type BatchConfig struct {
	// CLI で -job が省略された場合に起動するジョブ
	JobName   string `yaml:"job_name"`
	ChunkSize int    `yaml:"chunk_size"`
	// ジョブ定義でlaunchが省略された場合の起動方式 (sync / async)
	TaskExecutor string `yaml:"task_executor"`
	// 埋め込み JSL ファイル名。アプリケーションが解決します。
	JobDefinitions []string `yaml:"job_definitions"`
}

// LoggingConfig はログ設定です。
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SystemConfig はプロセス全体の設定です。
type SystemConfig struct {
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

// Config はアプリケーション全体の設定です。
type Config struct {
	Database       DatabaseConfig `yaml:"database"`
	Batch          BatchConfig    `yaml:"batch"`
	System         SystemConfig   `yaml:"system"`
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

// NewConfig は既定値を設定した Config を返します。
func NewConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Type:            "sqlite3",
			Path:            "batch.db",
			MigrationsTable: "batch_schema_migrations",
			AutoMigrate:     true,
		},
		Batch: BatchConfig{
			ChunkSize:    10,
			TaskExecutor: "sync",
		},
		System: SystemConfig{
			Timezone: "UTC",
			Logging:  LoggingConfig{Level: "INFO"},
		},
	}
}

// Validate は設定値の整合性を検証します。
func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Type) {
	case "postgres", "pgx", "redshift", "mysql":
		if c.Database.Host == "" {
			return fmt.Errorf("database.host が指定されていません (type: %s)", c.Database.Type)
		}
	case "sqlite3":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path が指定されていません (type: sqlite3)")
		}
	case "snowflake":
		if c.Database.Account == "" {
			return fmt.Errorf("database.account が指定されていません (type: snowflake)")
		}
	default:
		return fmt.Errorf("未対応のデータベースタイプです: '%s'", c.Database.Type)
	}
	switch strings.ToLower(c.Batch.TaskExecutor) {
	case "", "sync", "async":
	default:
		return fmt.Errorf("batch.task_executor は sync または async を指定してください: '%s'", c.Batch.TaskExecutor)
	}
	if c.Batch.ChunkSize < 0 {
		return fmt.Errorf("batch.chunk_size は 0 以上を指定してください: %d", c.Batch.ChunkSize)
	}
	return nil
}
