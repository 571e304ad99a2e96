// Package redshift implements database.Inspector for Amazon Redshift using
// lib/pq. Redshift speaks the Postgres wire protocol but rejects several
// pgx startup parameters and exposes row estimates through svv_table_info
// instead of pg_class, so it gets its own driver. Importing the package
// registers it under database.EngineRedshift.
package redshift

import (
	"context"
	"database/sql"
	"time"

	"github.com/koustreak/piiscan/internal/database"
)

func init() {
	database.Register(database.EngineRedshift, database.Driver{
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

// Inspector is a Redshift implementation of database.Inspector.
type Inspector struct {
	db           *sql.DB
	schema       string
	queryTimeout time.Duration
}

// New opens a Redshift connection pool and pings it before returning.
func New(ctx context.Context, cfg *database.Config) (*Inspector, error) {
	db, err := buildPool(cfg)
	if err != nil {
		return nil, err
	}

	in := NewWithDB(db, cfg.Schema)
	in.queryTimeout = cfg.QueryTimeout

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	if err := in.Ping(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return in, nil
}

// NewWithDB wraps an already configured *sql.DB.
func NewWithDB(db *sql.DB, schema string) *Inspector {
	return &Inspector{db: db, schema: schema}
}

// Engine reports database.EngineRedshift.
func (in *Inspector) Engine() database.Engine { return database.EngineRedshift }

// Ping verifies the cluster is reachable.
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

	q, args, err := database.Select(table.Name, database.DialectPostgres).
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
