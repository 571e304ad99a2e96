package database

import (
	"fmt"
	"strings"

	"github.com/koustreak/piiscan/internal/errs"
)

// Dialect controls identifier quoting, placeholders and row limiting.
type Dialect int

const (
	// DialectPostgres uses "ident", $1 placeholders and LIMIT (also Redshift).
	DialectPostgres Dialect = iota

	// DialectMySQL uses `ident`, ? placeholders and LIMIT.
	DialectMySQL

	// DialectSQLServer uses [ident], @p1 placeholders and TOP (n).
	DialectSQLServer
)

// SelectBuilder constructs the bounded sampling SELECT for one table.
// The row limit is always passed as an argument, never interpolated.
//
// Usage (SQL Server):
//
//	sql, args, err := Select("patients", DialectSQLServer).
//	    InSchema("dbo").
//	    Limit(200).
//	    Build()
//	// SELECT TOP (@p1) * FROM [dbo].[patients]   args: [200]
type SelectBuilder struct {
	schema  string
	table   string
	dialect Dialect
	columns []string
	limit   *int
}

// Select starts a new SelectBuilder for the given table and dialect.
func Select(table string, d Dialect) *SelectBuilder {
	return &SelectBuilder{table: table, dialect: d}
}

// InSchema qualifies the table with a schema (or database, for MySQL).
func (b *SelectBuilder) InSchema(schema string) *SelectBuilder {
	b.schema = schema
	return b
}

// Columns restricts the SELECT to the specified columns.
// If not called, SELECT * is used.
func (b *SelectBuilder) Columns(cols ...string) *SelectBuilder {
	b.columns = cols
	return b
}

// Limit sets the maximum number of rows to return.
func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limit = &n
	return b
}

// Build produces the final SQL string and argument slice.
func (b *SelectBuilder) Build() (string, []any, error) {
	if strings.TrimSpace(b.table) == "" {
		return "", nil, errs.New(errs.ErrKindInvalidInput, "table name is required")
	}
	if b.limit != nil && *b.limit < 0 {
		return "", nil, errs.Newf(errs.ErrKindInvalidInput, "invalid row limit %d", *b.limit)
	}

	cols := "*"
	if len(b.columns) > 0 {
		quoted := make([]string, len(b.columns))
		for i, c := range b.columns {
			quoted[i] = b.quoteIdent(c)
		}
		cols = strings.Join(quoted, ", ")
	}

	from := b.quoteIdent(b.table)
	if b.schema != "" {
		from = b.quoteIdent(b.schema) + "." + from
	}

	var args []any
	var sb strings.Builder
	sb.WriteString("SELECT ")
	if b.limit != nil && b.dialect == DialectSQLServer {
		sb.WriteString(fmt.Sprintf("TOP (%s) ", b.placeholder(1)))
		args = append(args, *b.limit)
	}
	sb.WriteString(cols)
	sb.WriteString(" FROM ")
	sb.WriteString(from)

	if b.limit != nil && b.dialect != DialectSQLServer {
		sb.WriteString(" LIMIT ")
		sb.WriteString(b.placeholder(1))
		args = append(args, *b.limit)
	}

	return sb.String(), args, nil
}

// placeholder returns the parameter placeholder for the dialect.
func (b *SelectBuilder) placeholder(idx int) string {
	switch b.dialect {
	case DialectMySQL:
		return "?"
	case DialectSQLServer:
		return fmt.Sprintf("@p%d", idx)
	default:
		return fmt.Sprintf("$%d", idx)
	}
}

// quoteIdent quotes a SQL identifier for the dialect, doubling any
// embedded closing quote character.
func (b *SelectBuilder) quoteIdent(name string) string {
	switch b.dialect {
	case DialectMySQL:
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	case DialectSQLServer:
		return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
	default:
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
}
