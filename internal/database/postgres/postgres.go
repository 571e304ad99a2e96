// Package postgres implements database.Inspector for PostgreSQL on top of
// pgxpool. Importing the package registers it under database.EnginePostgres.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koustreak/piiscan/internal/database"
)

func init() {
	database.Register(database.EnginePostgres, database.Driver{
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

// pooledConn is the part of *pgxpool.Conn the inspector uses.
type pooledConn interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Release()
}

// connPool is the part of *pgxpool.Pool the inspector uses.
type connPool interface {
	Acquire(ctx context.Context) (pooledConn, error)
	Ping(ctx context.Context) error
	Close()
}

// pgxPool adapts *pgxpool.Pool to connPool.
type pgxPool struct {
	*pgxpool.Pool
}

func (p pgxPool) Acquire(ctx context.Context) (pooledConn, error) {
	conn, err := p.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Inspector is a PostgreSQL implementation of database.Inspector.
// It is safe for concurrent use by multiple goroutines.
type Inspector struct {
	pool         connPool
	schema       string
	queryTimeout time.Duration
}

// New connects to PostgreSQL using the provided Config and returns an
// Inspector. It pings before returning so a bad target fails fast.
func New(ctx context.Context, cfg *database.Config) (*Inspector, error) {
	pool, err := buildPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	in := &Inspector{pool: pgxPool{pool}, schema: cfg.Schema, queryTimeout: cfg.QueryTimeout}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	if err := in.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return in, nil
}

// Engine reports database.EnginePostgres.
func (in *Inspector) Engine() database.Engine { return database.EnginePostgres }

// Ping verifies the database is reachable by acquiring and releasing a connection.
func (in *Inspector) Ping(ctx context.Context) error {
	if err := in.pool.Ping(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close drains the connection pool.
func (in *Inspector) Close() {
	in.pool.Close()
}

// acquire checks a connection out of the pool. The caller must Release it.
func (in *Inspector) acquire(ctx context.Context) (pooledConn, error) {
	conn, err := in.pool.Acquire(ctx)
	if err != nil {
		return nil, mapError(err, "failed to acquire connection")
	}
	return conn, nil
}

// SampleRows reads at most n rows from table.
func (in *Inspector) SampleRows(ctx context.Context, table database.TableInfo, n int) (*database.Sample, error) {
	ctx, cancel := database.WithQueryTimeout(ctx, in.queryTimeout)
	defer cancel()

	q, args, err := database.Select(table.Name, database.DialectPostgres).
		InSchema(table.Schema).
		Limit(n).
		Build()
	if err != nil {
		return nil, err
	}

	conn, err := in.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, q, args...)
	if err != nil {
		return nil, mapError(err, "sample query failed for "+table.QualifiedName())
	}
	defer rows.Close()

	return database.CollectSample(&pgxRows{rows: rows}, n, mapError)
}

// pgxRows adapts pgx.Rows to database.Rows.
type pgxRows struct {
	rows pgx.Rows
}

func (r *pgxRows) Next() bool             { return r.rows.Next() }
func (r *pgxRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r *pgxRows) Err() error             { return r.rows.Err() }

func (r *pgxRows) Columns() ([]string, error) {
	descs := r.rows.FieldDescriptions()
	cols := make([]string, len(descs))
	for i, d := range descs {
		cols[i] = d.Name
	}
	return cols, nil
}
