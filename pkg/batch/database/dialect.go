package database

import (
	"strconv"
	"strings"
)

// Dialect は SQL 方言の種類です。
type Dialect string

const (
	DialectPostgres  Dialect = "postgres"
	DialectMySQL     Dialect = "mysql"
	DialectSQLite    Dialect = "sqlite3"
	DialectSnowflake Dialect = "snowflake"
)

// Rebind は "?" プレースホルダを方言に合わせて書き換えます。
// postgres 系は $1, $2, ... に変換し、それ以外はそのまま返します。
// 文字列リテラル内の "?" は変換しません。
func Rebind(dialect Dialect, query string) string {
	if dialect != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			sb.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
