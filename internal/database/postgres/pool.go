package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koustreak/piiscan/internal/database"
	"github.com/koustreak/piiscan/internal/errs"
)

// buildPool creates a pgxpool from the given config. cfg is expected to have
// been passed through Config.Effective.
func buildPool(ctx context.Context, cfg *database.Config) (*pgxpool.Pool, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = buildDSN(cfg)
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid postgres DSN", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	// Scanning is read-only; make that explicit to the server too.
	if poolCfg.ConnConfig.RuntimeParams == nil {
		poolCfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolCfg.ConnConfig.RuntimeParams["default_transaction_read_only"] = "on"
	poolCfg.ConnConfig.RuntimeParams["application_name"] = "piiscan"

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, mapError(err, "failed to create connection pool")
	}
	return pool, nil
}

// buildDSN constructs a key=value postgres connection string from discrete
// fields. Values are quoted so passwords with spaces or quotes survive.
func buildDSN(cfg *database.Config) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	parts := []string{
		kv("host", cfg.Host),
		fmt.Sprintf("port=%d", cfg.PortOrDefault()),
	}
	if cfg.User != "" {
		parts = append(parts, kv("user", cfg.User))
	}
	if cfg.Password != "" {
		parts = append(parts, kv("password", cfg.Password))
	}
	if cfg.Database != "" {
		parts = append(parts, kv("dbname", cfg.Database))
	}
	parts = append(parts, kv("sslmode", sslMode))
	return strings.Join(parts, " ")
}

// kv renders one key=value pair, single-quoting the value when needed.
func kv(key, val string) string {
	if val != "" && !strings.ContainsAny(val, ` '\`) {
		return key + "=" + val
	}
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(val)
	return key + "='" + escaped + "'"
}

// hostFromDSN returns the first host named by a URL or key=value DSN.
// Unix socket directories such as /cloudsql/project:region:instance are
// returned as-is.
func hostFromDSN(dsn string) (string, error) {
	cfg, err := pgconn.ParseConfig(dsn)
	if err != nil {
		return "", errs.Wrap(errs.ErrKindInvalidInput, "invalid postgres DSN", err)
	}
	return cfg.Host, nil
}
