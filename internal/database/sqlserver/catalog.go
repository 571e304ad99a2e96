package sqlserver

import (
	"context"
	"database/sql"

	"github.com/koustreak/piiscan/internal/database"
)

// Row counts come from sys.partitions for the heap or clustered index only,
// so non-clustered indexes are not double counted.
const listTablesQuery = `
	SELECT s.name,
	       t.name,
	       COALESCE(SUM(p.rows), 0)
	FROM sys.tables t
	JOIN sys.schemas s ON s.schema_id = t.schema_id
	LEFT JOIN sys.partitions p ON p.object_id = t.object_id AND p.index_id IN (0, 1)
	WHERE t.is_ms_shipped = 0
	  AND (@p1 = '' OR s.name = @p1)
	GROUP BY s.name, t.name
	ORDER BY s.name, t.name`

const listColumnsQuery = `
	SELECT TABLE_SCHEMA,
	       TABLE_NAME,
	       COLUMN_NAME,
	       DATA_TYPE,
	       CASE WHEN IS_NULLABLE = 'YES' THEN 1 ELSE 0 END
	FROM INFORMATION_SCHEMA.COLUMNS
	WHERE (@p1 = '' OR TABLE_SCHEMA = @p1)
	ORDER BY TABLE_SCHEMA, TABLE_NAME, ORDINAL_POSITION`

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
		t.Engine = database.EngineSQLServer
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
