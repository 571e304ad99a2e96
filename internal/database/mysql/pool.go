package mysql

import (
	"database/sql"
	"net"
	"strconv"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/koustreak/piiscan/internal/database"
	"github.com/koustreak/piiscan/internal/errs"
)

// buildPool configures and returns a *sql.DB with pool settings. cfg is
// expected to have been passed through Config.Effective.
func buildPool(cfg *database.Config) (*sql.DB, error) {
	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to open mysql", err)
	}

	db.SetMaxOpenConns(int(cfg.MaxConns))
	db.SetMaxIdleConns(int(cfg.MinConns))
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	return db, nil
}

// buildDSN returns the go-sql-driver DSN for cfg. A user supplied DSN is
// parsed and normalised; otherwise one is assembled from discrete fields.
// Either way the DSN must name a database, since introspection is scoped to
// DATABASE().
func buildDSN(cfg *database.Config) (string, error) {
	var mc *gomysql.Config
	if cfg.DSN != "" {
		parsed, err := gomysql.ParseDSN(cfg.DSN)
		if err != nil {
			return "", errs.Wrap(errs.ErrKindInvalidInput, "invalid mysql DSN", err)
		}
		mc = parsed
	} else {
		mc = gomysql.NewConfig()
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.PortOrDefault()))
		mc.DBName = cfg.Database
		mc.TLSConfig = tlsConfigFor(cfg.SSLMode)
	}

	if mc.DBName == "" {
		return "", errs.New(errs.ErrKindInvalidInput, "mysql DSN must name a database")
	}

	mc.ParseTime = true
	if mc.Timeout == 0 {
		mc.Timeout = cfg.ConnectTimeout
	}
	return mc.FormatDSN(), nil
}

// tlsConfigFor maps libpq-style sslmode values onto go-sql-driver's tls
// parameter.
func tlsConfigFor(sslMode string) string {
	switch sslMode {
	case "disable":
		return "false"
	case "require":
		return "skip-verify"
	case "verify-ca", "verify-full":
		return "true"
	default:
		return "preferred"
	}
}

// hostFromDSN returns the server host named by a go-sql-driver DSN, or the
// socket path for unix connections.
func hostFromDSN(dsn string) (string, error) {
	mc, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return "", errs.Wrap(errs.ErrKindInvalidInput, "invalid mysql DSN", err)
	}
	if mc.Net == "unix" {
		return mc.Addr, nil
	}
	host, _, err := net.SplitHostPort(mc.Addr)
	if err != nil {
		return mc.Addr, nil
	}
	return host, nil
}
