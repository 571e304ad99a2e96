package mysql

import (
	"context"
	"database/sql"

	"github.com/koustreak/piiscan/internal/database"
)

// table_rows is an InnoDB estimate and NULL for views or unanalysed tables.
const listTablesQuery = `
	SELECT table_schema,
	       table_name,
	       table_rows
	FROM information_schema.tables
	WHERE table_schema = DATABASE()
	  AND table_type   = 'BASE TABLE'
	ORDER BY table_name`

const listColumnsQuery = `
	SELECT table_schema,
	       table_name,
	       column_name,
	       data_type,
	       is_nullable = 'YES'
	FROM information_schema.columns
	WHERE table_schema = DATABASE()
	ORDER BY table_name, ordinal_position`

// ListTables returns every base table of the connected database with its
// approximate row count and columns.
func (in *Inspector) ListTables(ctx context.Context) ([]database.TableInfo, error) {
	ctx, cancel := database.WithQueryTimeout(ctx, in.queryTimeout)
	defer cancel()

	c, err := in.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	tables, err := fetchTables(ctx, c)
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return tables, nil
	}

	columns, err := fetchColumns(ctx, c)
	if err != nil {
		return nil, err
	}
	return database.AttachColumns(tables, columns), nil
}

func fetchTables(ctx context.Context, c *sql.Conn) ([]database.TableInfo, error) {
	rows, err := c.QueryContext(ctx, listTablesQuery)
	if err != nil {
		return nil, mapError(err, "failed to list tables")
	}
	defer rows.Close()

	tables := make([]database.TableInfo, 0)
	for rows.Next() {
		var t database.TableInfo
		var estimate sql.NullInt64
		if err := rows.Scan(&t.Schema, &t.Name, &estimate); err != nil {
			return nil, mapError(err, "failed to scan table row")
		}
		t.Engine = database.EngineMySQL
		t.EstimatedRows = database.UnknownRowCount
		if estimate.Valid {
			t.EstimatedRows = database.NormalizeEstimate(estimate.Int64)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating tables")
	}
	return tables, nil
}

func fetchColumns(ctx context.Context, c *sql.Conn) ([]database.CatalogColumn, error) {
	rows, err := c.QueryContext(ctx, listColumnsQuery)
	if err != nil {
		return nil, mapError(err, "failed to fetch columns")
	}
	defer rows.Close()

	var cols []database.CatalogColumn
	for rows.Next() {
		var col database.CatalogColumn
		if err := rows.Scan(&col.Schema, &col.Table, &col.Column.Name, &col.Column.DataType, &col.Column.Nullable); err != nil {
			return nil, mapError(err, "failed to scan column info")
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating columns")
	}
	return cols, nil
}
