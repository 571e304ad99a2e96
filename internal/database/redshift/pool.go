package redshift

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/koustreak/piiscan/internal/database"
	"github.com/koustreak/piiscan/internal/errs"
	"github.com/lib/pq"
)

// buildPool opens a *sql.DB through a lib/pq connector so that DSN errors
// surface before the first query.
func buildPool(cfg *database.Config) (*sql.DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = buildDSN(cfg)
	}

	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid redshift DSN", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(int(cfg.MaxConns))
	db.SetMaxIdleConns(int(cfg.MinConns))
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)
	return db, nil
}

// buildDSN constructs a key=value connection string. Redshift clusters
// require TLS by default, so sslmode falls back to require.
func buildDSN(cfg *database.Config) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "require"
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
	if cfg.ConnectTimeout > 0 {
		parts = append(parts, fmt.Sprintf("connect_timeout=%d", int(cfg.ConnectTimeout.Seconds())))
	}
	parts = append(parts, kv("sslmode", sslMode))
	return strings.Join(parts, " ")
}

func kv(key, val string) string {
	if val != "" && !strings.ContainsAny(val, ` '\`) {
		return key + "=" + val
	}
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(val)
	return key + "='" + escaped + "'"
}

// hostFromDSN returns the host from a postgres:// URL or key=value DSN.
func hostFromDSN(dsn string) (string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		converted, err := pq.ParseURL(dsn)
		if err != nil {
			return "", errs.Wrap(errs.ErrKindInvalidInput, "invalid redshift DSN", err)
		}
		dsn = converted
	}
	for _, field := range strings.Fields(dsn) {
		if v, ok := strings.CutPrefix(field, "host="); ok {
			return strings.Trim(v, "'"), nil
		}
	}
	return "", errs.New(errs.ErrKindInvalidInput, "redshift DSN does not name a host")
}
