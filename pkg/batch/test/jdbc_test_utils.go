// Package test はバッチのメタデータテーブルを検証するためのテスト用ヘルパーです。
package test

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	exception "batchadmin/pkg/batch/util/exception"
	logger "batchadmin/pkg/batch/util/logger"
)

// Querier は database.DBConnection と database.Tx の両方が満たす最小のインターフェースです。
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// テーブル名はスキーマ修飾を 1 段まで許可します。
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

func validateTableName(table string) error {
	if !identifierPattern.MatchString(table) {
		return exception.NewBatchErrorf("test_utils", "テーブル名 '%s' が不正です", table)
	}
	return nil
}

// CountRowsInTable はテーブルの行数を返します。
func CountRowsInTable(ctx context.Context, db Querier, table string) (int, error) {
	return CountRowsInTableWhere(ctx, db, table, "")
}

// CountRowsInTableWhere は where 句に一致する行数を返します。where が空なら全行です。
// where には "?" プレースホルダと args を使用します。
func CountRowsInTableWhere(ctx context.Context, db Querier, table, where string, args ...any) (int, error) {
	if err := validateTableName(table); err != nil {
		return 0, err
	}
	query := "SELECT COUNT(*) FROM " + table
	if where != "" {
		query += " WHERE " + where
	}
	var count int
	if err := db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, exception.NewBatchError("test_utils", fmt.Sprintf("テーブル '%s' の行数の取得に失敗しました", table), err, false, false)
	}
	return count, nil
}

// DeleteFromTables は指定されたテーブルの全行を順に削除し、削除した合計行数を返します。
// 外部キーのある子テーブルを先に指定してください。
func DeleteFromTables(ctx context.Context, db Querier, tables ...string) (int64, error) {
	var total int64
	for _, table := range tables {
		if err := validateTableName(table); err != nil {
			return total, err
		}
		result, err := db.ExecContext(ctx, "DELETE FROM "+table)
		if err != nil {
			return total, exception.NewBatchError("test_utils", fmt.Sprintf("テーブル '%s' の削除に失敗しました", table), err, false, false)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, err
		}
		logger.Debugf("テーブル '%s' から %d 行を削除しました。", table, n)
		total += n
	}
	return total, nil
}
