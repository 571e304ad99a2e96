package postgres

import (
	"context"

	"github.com/koustreak/piiscan/internal/database"
)

// Row estimates come from pg_class.reltuples, which is -1 (PG14+) or 0 for
// tables that were never vacuumed or analysed.
const listTablesQuery = `
	SELECT n.nspname,
	       c.relname,
	       c.reltuples::bigint
	FROM pg_class c
	JOIN pg_namespace n ON n.oid = c.relnamespace
	WHERE c.relkind IN ('r', 'p')
	  AND NOT c.relispartition
	  AND n.nspname NOT IN ('pg_catalog', 'information_schema')
	  AND n.nspname NOT LIKE 'pg_toast%'
	  AND n.nspname NOT LIKE 'pg_temp%'
	  AND ($1::text = '' OR n.nspname = $1::text)
	ORDER BY n.nspname, c.relname`

const listColumnsQuery = `
	SELECT table_schema,
	       table_name,
	       column_name,
	       data_type,
	       is_nullable = 'YES'
	FROM information_schema.columns
	WHERE table_schema NOT IN ('pg_catalog', 'information_schema')
	  AND ($1::text = '' OR table_schema = $1::text)
	ORDER BY table_schema, table_name, ordinal_position`

// ListTables returns every user table with its approximate row count and
// columns. Both catalog queries run on the same pooled connection.
func (in *Inspector) ListTables(ctx context.Context) ([]database.TableInfo, error) {
	ctx, cancel := database.WithQueryTimeout(ctx, in.queryTimeout)
	defer cancel()

	conn, err := in.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tables, err := in.fetchTables(ctx, conn)
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return tables, nil
	}

	columns, err := in.fetchColumns(ctx, conn)
	if err != nil {
		return nil, err
	}
	return database.AttachColumns(tables, columns), nil
}

func (in *Inspector) fetchTables(ctx context.Context, conn pooledConn) ([]database.TableInfo, error) {
	rows, err := conn.Query(ctx, listTablesQuery, in.schema)
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
		t.Engine = database.EnginePostgres
		t.EstimatedRows = database.NormalizeEstimate(estimate)
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating tables")
	}
	return tables, nil
}

func (in *Inspector) fetchColumns(ctx context.Context, conn pooledConn) ([]database.CatalogColumn, error) {
	rows, err := conn.Query(ctx, listColumnsQuery, in.schema)
	if err != nil {
		return nil, mapError(err, "failed to fetch columns")
	}
	defer rows.Close()

	var cols []database.CatalogColumn
	for rows.Next() {
		var c database.CatalogColumn
		if err := rows.Scan(&c.Schema, &c.Table, &c.Column.Name, &c.Column.DataType, &c.Column.Nullable); err != nil {
			return nil, mapError(err, "failed to scan column info")
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating columns")
	}
	return cols, nil
}
