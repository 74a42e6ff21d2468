package database

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) DBConnection {
	t.Helper()
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", t.Name()))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return NewSQLDBAdapter(db, DialectSQLite)
}

func TestRunMigrations_SQLite(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t)

	require.NoError(t, RunMigrations(ctx, conn, "", ""))
	// 2 回目は変更なし
	require.NoError(t, RunMigrations(ctx, conn, "", ""))

	for _, table := range []string{"batch_job_instance", "batch_job_execution", "batch_job_execution_params", "batch_step_execution"} {
		var count int
		err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
		require.NoError(t, err, table)
		assert.Equal(t, 0, count, table)
	}

	var version int
	require.NoError(t, conn.QueryRowContext(ctx, "SELECT version FROM "+DefaultMigrationsTable).Scan(&version))
	assert.Equal(t, 2, version)
	assert.NoError(t, conn.PingContext(ctx), "マイグレーション後も接続は開いたまま")
}

func TestRunMigrations_SnowflakeIsSkipped(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	conn := NewSQLDBAdapter(db, DialectSnowflake)
	assert.NoError(t, RunMigrations(context.Background(), conn, "", ""))
}

func TestMigrationDir(t *testing.T) {
	dir, err := MigrationDir(DialectMySQL)
	require.NoError(t, err)
	assert.Equal(t, "migrations/mysql", dir)

	_, err = MigrationDir(DialectSnowflake)
	assert.Error(t, err)
}

func TestWithMigrationParams(t *testing.T) {
	assert.Equal(t,
		"postgres://u:p@h:5432/db?sslmode=disable&x-migrations-table=batch_schema_migrations",
		withMigrationParams(DialectPostgres, "postgres://u:p@h:5432/db?sslmode=disable", DefaultMigrationsTable))
	assert.Equal(t,
		"mysql://u:p@tcp(h:3306)/db?x-migrations-table=m&multiStatements=true",
		withMigrationParams(DialectMySQL, "mysql://u:p@tcp(h:3306)/db", "m"))
}

func TestAdapter_TxRebind(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t)
	_, err := conn.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS adapter_t (id INTEGER, name TEXT)")
	require.NoError(t, err)

	tx, err := conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, DialectSQLite, tx.Dialect())
	_, err = tx.ExecContext(ctx, "INSERT INTO adapter_t (id, name) VALUES (?, ?)", 1, "a")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	var count int
	require.NoError(t, conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM adapter_t").Scan(&count))
	assert.Equal(t, 0, count)
}
