package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	logger "batchadmin/pkg/batch/util/logger"
)

// ConfigLoader は Config をロードするためのインターフェースです。
type ConfigLoader interface {
	Load() (*Config, error)
}

// BytesConfigLoader はバイトスライスから設定をロードする ConfigLoader の実装です。
type BytesConfigLoader struct {
	data []byte
}

// NewBytesConfigLoader は新しい BytesConfigLoader のインスタンスを作成します。
func NewBytesConfigLoader(data []byte) *BytesConfigLoader {
	return &BytesConfigLoader{data: data}
}

// Load は埋め込まれた YAML を既定値の上に読み込み、環境変数で上書きします。
func (l *BytesConfigLoader) Load() (*Config, error) {
	cfg := NewConfig()
	if err := yaml.Unmarshal(l.data, cfg); err != nil {
		return nil, fmt.Errorf("YAML設定のパースに失敗しました: %w", err)
	}
	cfg.EmbeddedConfig = l.data

	loadEnvVars(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定が不正です: %w", err)
	}
	return cfg, nil
}

var _ ConfigLoader = (*BytesConfigLoader)(nil)

func envString(name string, target *string) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		*target = v
	}
}

func envInt(name string, target *int) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warnf("環境変数 %s の値 '%s' が無効です。設定ファイルの値を使用します。", name, v)
		return
	}
	*target = n
}

func envBool(name string, target *bool) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warnf("環境変数 %s の値 '%s' が無効です。設定ファイルの値を使用します。", name, v)
		return
	}
	*target = b
}

// 環境変数で個別の設定値を上書きする
func loadEnvVars(cfg *Config) {
	db := &cfg.Database
	envString("DATABASE_TYPE", &db.Type)
	envString("DATABASE_HOST", &db.Host)
	envInt("DATABASE_PORT", &db.Port)
	envString("DATABASE_DATABASE", &db.Database)
	envString("DATABASE_USER", &db.User)
	envString("DATABASE_PASSWORD", &db.Password)
	envString("DATABASE_SSLMODE", &db.Sslmode)
	envString("DATABASE_PATH", &db.Path)
	envString("DATABASE_ACCOUNT", &db.Account)
	envString("DATABASE_WAREHOUSE", &db.Warehouse)
	envString("DATABASE_SCHEMA", &db.Schema)
	envString("DATABASE_ROLE", &db.Role)
	envString("DATABASE_MIGRATIONS_TABLE", &db.MigrationsTable)
	envBool("DATABASE_AUTO_MIGRATE", &db.AutoMigrate)
	envInt("DATABASE_MAX_OPEN_CONNS", &db.ConnectionPool.MaxOpenConns)
	envInt("DATABASE_MAX_IDLE_CONNS", &db.ConnectionPool.MaxIdleConns)
	envInt("DATABASE_CONN_MAX_LIFETIME_SECONDS", &db.ConnectionPool.ConnMaxLifetimeSeconds)
	envInt("DATABASE_CONNECT_RETRIES", &db.ConnectRetries)
	envInt("DATABASE_CONNECT_RETRY_INTERVAL_SECONDS", &db.ConnectRetryIntervalSeconds)

	envString("BATCH_JOB_NAME", &cfg.Batch.JobName)
	envInt("BATCH_CHUNK_SIZE", &cfg.Batch.ChunkSize)
	envString("BATCH_TASK_EXECUTOR", &cfg.Batch.TaskExecutor)
	if defs := os.Getenv("BATCH_JOB_DEFINITIONS"); defs != "" {
		cfg.Batch.JobDefinitions = strings.Split(defs, ",")
	}

	envString("SYSTEM_TIMEZONE", &cfg.System.Timezone)
	envString("SYSTEM_LOGGING_LEVEL", &cfg.System.Logging.Level)
}
