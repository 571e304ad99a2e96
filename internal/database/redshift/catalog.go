package redshift

import (
	"context"
	"database/sql"

	"github.com/koustreak/piiscan/internal/database"
)

// svv_table_info only lists tables that hold data, hence the LEFT JOIN.
const listTablesQuery = `
	SELECT t.table_schema,
	       t.table_name,
	       COALESCE(i.tbl_rows, 0)::bigint
	FROM information_schema.tables t
	LEFT JOIN svv_table_info i
	  ON i."schema" = t.table_schema
	 AND i."table"  = t.table_name
	WHERE t.table_type = 'BASE TABLE'
	  AND t.table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_internal')
	  AND ($1::varchar = '' OR t.table_schema = $1::varchar)
	ORDER BY t.table_schema, t.table_name`

const listColumnsQuery = `
	SELECT table_schema,
	       table_name,
	       column_name,
	       data_type,
	       is_nullable = 'YES'
	FROM information_schema.columns
	WHERE table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_internal')
	  AND ($1::varchar = '' OR table_schema = $1::varchar)
	ORDER BY table_schema, table_name, ordinal_position`

// ListTables returns every user table with its approximate row count and
// columns.
func (in *Inspector) ListTables(ctx context.Context) ([]database.TableInfo, error) {
	ctx, cancel := database.WithQueryTimeout(ctx, in.queryTimeout)
	defer cancel()

	c, err := in.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	tables, err := in.fetchTables(ctx, c)
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return tables, nil
	}

	columns, err := in.fetchColumns(ctx, c)
	if err != nil {
		return nil, err
	}
	return database.AttachColumns(tables, columns), nil
}

func (in *Inspector) fetchTables(ctx context.Context, c *sql.Conn) ([]database.TableInfo, error) {
	rows, err := c.QueryContext(ctx, listTablesQuery, in.schema)
	if err != nil {
		return nil, mapError(err, "failed to list tables")
	}
	defer rows.Close()

	tables := make([]database.TableInfo, 0)
	for rows.Next() {
		var t database.TableInfo
		var estimate int64
		if err := rows.Scan(&t.Schema, &t.Name, &estimate); err != nil {
			return nil, mapError(err, "failed to scan table row")
		}
		t.Engine = database.EngineRedshift
		t.EstimatedRows = database.NormalizeEstimate(estimate)
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating tables")
	}
	return tables, nil
}

func (in *Inspector) fetchColumns(ctx context.Context, c *sql.Conn) ([]database.CatalogColumn, error) {
	rows, err := c.QueryContext(ctx, listColumnsQuery, in.schema)
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
