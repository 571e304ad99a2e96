package database

import "context"

// Inspector is the per-engine contract the scanner talks to. Layers above
// this package never import the engine subpackages directly; they obtain an
// Inspector from Open, selected once per scan by engine name.
//
// Every method acquires one pooled connection and releases it before
// returning, on success and on error alike.
type Inspector interface {
	// Engine reports which engine this inspector speaks to.
	Engine() Engine

	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error

	// ListTables returns every user table with its approximate row count and
	// columns, in catalog order (schema, then table name).
	ListTables(ctx context.Context) ([]TableInfo, error)

	// SampleRows reads at most n rows from table.
	SampleRows(ctx context.Context, table TableInfo, n int) (*Sample, error)

	// Close releases all resources held by the connection pool.
	Close()
}

// Rows is the subset of a result set CollectSample needs. *sql.Rows
// satisfies it directly; pgx rows are adapted by the postgres driver.
// Callers remain responsible for closing the underlying result set.
type Rows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
}
