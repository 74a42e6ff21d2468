package database

import (
	"context"
	"database/sql"
)

// Tx はデータベーストランザクションのインターフェースです。
// sql.Tx の必要なメソッドを抽象化します。
type Tx interface {
	Commit() error
	Rollback() error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	Dialect() Dialect
}

// DBConnection はデータベース接続のインターフェースです。
// クエリは "?" プレースホルダで記述し、Rebind で方言に合わせて渡します。
type DBConnection interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error)
	Close() error
	PingContext(ctx context.Context) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	Dialect() Dialect
	// DB は下位の *sql.DB を返します。マイグレーションなどで使用します。
	DB() *sql.DB
}

// sqlTxAdapter は sql.Tx を Tx インターフェースに適合させるアダプターです。
// クエリは発行前に方言に合わせて書き換えられます。
type sqlTxAdapter struct {
	tx      *sql.Tx
	dialect Dialect
}

func (a *sqlTxAdapter) Commit() error {
	return a.tx.Commit()
}

func (a *sqlTxAdapter) Rollback() error {
	return a.tx.Rollback()
}

func (a *sqlTxAdapter) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return a.tx.ExecContext(ctx, Rebind(a.dialect, query), args...)
}

func (a *sqlTxAdapter) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return a.tx.QueryContext(ctx, Rebind(a.dialect, query), args...)
}

func (a *sqlTxAdapter) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return a.tx.QueryRowContext(ctx, Rebind(a.dialect, query), args...)
}

func (a *sqlTxAdapter) Dialect() Dialect {
	return a.dialect
}

// sqlDBAdapter は sql.DB を DBConnection インターフェースに適合させるアダプターです。
type sqlDBAdapter struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLDBAdapter は新しい sqlDBAdapter のインスタンスを作成します。
func NewSQLDBAdapter(db *sql.DB, dialect Dialect) DBConnection {
	return &sqlDBAdapter{db: db, dialect: dialect}
}

func (a *sqlDBAdapter) BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error) {
	tx, err := a.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &sqlTxAdapter{tx: tx, dialect: a.dialect}, nil
}

func (a *sqlDBAdapter) Close() error {
	return a.db.Close()
}

func (a *sqlDBAdapter) PingContext(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

func (a *sqlDBAdapter) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return a.db.ExecContext(ctx, Rebind(a.dialect, query), args...)
}

func (a *sqlDBAdapter) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return a.db.QueryContext(ctx, Rebind(a.dialect, query), args...)
}

func (a *sqlDBAdapter) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return a.db.QueryRowContext(ctx, Rebind(a.dialect, query), args...)
}

func (a *sqlDBAdapter) Dialect() Dialect {
	return a.dialect
}

func (a *sqlDBAdapter) DB() *sql.DB {
	return a.db
}
