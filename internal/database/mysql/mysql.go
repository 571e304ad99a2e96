// Package mysql implements database.Inspector for MySQL and MariaDB on top of
// database/sql and go-sql-driver/mysql. Importing the package registers it
// under database.EngineMySQL.
package mysql

import (
	"context"
	"database/sql"
	"time"

	"github.com/koustreak/piiscan/internal/database"
)

func init() {
	database.Register(database.EngineMySQL, database.Driver{
		Open: func(ctx context.Context, cfg *database.Config) (database.Inspector, error) {
			in, err := New(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return in, nil
		},
		HostFromDSN: hostFromDSN,
	})
}

// Inspector is a MySQL implementation of database.Inspector.
// It is safe for concurrent use by multiple goroutines.
type Inspector struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// New opens a MySQL connection pool using the provided Config and pings it
// before returning.
func New(ctx context.Context, cfg *database.Config) (*Inspector, error) {
	db, err := buildPool(cfg)
	if err != nil {
		return nil, err
	}

	in := NewWithDB(db)
	in.queryTimeout = cfg.QueryTimeout

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	if err := in.Ping(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return in, nil
}

// NewWithDB wraps an already configured *sql.DB, e.g. one from sqlmock.
// The Inspector takes ownership and closes db on Close.
func NewWithDB(db *sql.DB) *Inspector {
	return &Inspector{db: db}
}

// Engine reports database.EngineMySQL.
func (in *Inspector) Engine() database.Engine { return database.EngineMySQL }

// Ping verifies the database is reachable.
func (in *Inspector) Ping(ctx context.Context) error {
	if err := in.db.PingContext(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close shuts down the connection pool.
func (in *Inspector) Close() {
	_ = in.db.Close()
}

// conn checks a single connection out of the pool. The caller must Close it.
func (in *Inspector) conn(ctx context.Context) (*sql.Conn, error) {
	c, err := in.db.Conn(ctx)
	if err != nil {
		return nil, mapError(err, "failed to acquire connection")
	}
	return c, nil
}

// SampleRows reads at most n rows from table.
func (in *Inspector) SampleRows(ctx context.Context, table database.TableInfo, n int) (*database.Sample, error) {
	ctx, cancel := database.WithQueryTimeout(ctx, in.queryTimeout)
	defer cancel()

	q, args, err := database.Select(table.Name, database.DialectMySQL).
		InSchema(table.Schema).
		Limit(n).
		Build()
	if err != nil {
		return nil, err
	}

	c, err := in.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	rows, err := c.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapError(err, "sample query failed for "+table.QualifiedName())
	}
	defer rows.Close()

	return database.CollectSample(rows, n, mapError)
}
