// Package config loads piiscan settings from an optional YAML file and
// PIISCAN_* environment variables. Environment values win over the file.
package config

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/koustreak/piiscan/internal/database"
	"github.com/koustreak/piiscan/internal/errs"
	"github.com/koustreak/piiscan/internal/filestore"
	"github.com/koustreak/piiscan/internal/logger"
	"github.com/koustreak/piiscan/internal/report"
	"github.com/koustreak/piiscan/internal/scanner"
	"go.yaml.in/yaml/v3"
)

type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	Scan       ScanConfig       `yaml:"scan"`
	Log        LogConfig        `yaml:"log"`
	Report     ReportConfig     `yaml:"report"`
	Server     ServerConfig     `yaml:"server"`
}

type ConnectionConfig struct {
	Engine   string `yaml:"engine"`
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	Schema   string `yaml:"schema"`

	MaxConns       int32         `yaml:"maxConns"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
}

type ScanConfig struct {
	Mode             string        `yaml:"mode"`
	MaxTables        int           `yaml:"maxTables"`
	TableTimeout     time.Duration `yaml:"tableTimeout"`
	QueriesPerSecond float64       `yaml:"queriesPerSecond"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ReportConfig struct {
	Format string      `yaml:"format"`
	Output string      `yaml:"output"`
	Upload bool        `yaml:"upload"`
	Store  StoreConfig `yaml:"store"`
}

type StoreConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	AccessKey  string        `yaml:"accessKey"`
	SecretKey  string        `yaml:"secretKey"`
	UseSSL     bool          `yaml:"useSSL"`
	Region     string        `yaml:"region"`
	Bucket     string        `yaml:"bucket"`
	Prefix     string        `yaml:"prefix"`
	PresignTTL time.Duration `yaml:"presignTTL"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`

	// ScanTimeout bounds one API-triggered scan.
	ScanTimeout time.Duration `yaml:"scanTimeout"`

	// MaxConcurrentScans caps scans running at once through the API.
	MaxConcurrentScans int `yaml:"maxConcurrentScans"`
}

// Default returns the settings used when neither file nor environment say
// otherwise.
func Default() *Config {
	return &Config{
		Scan: ScanConfig{
			Mode:         "smart",
			TableTimeout: scanner.DefaultTableTimeout,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Report: ReportConfig{
			Format: string(report.FormatJSON),
			Store: StoreConfig{
				Bucket:     "piiscan-reports",
				Prefix:     "scans",
				PresignTTL: filestore.DefaultPresignTTL,
			},
		},
		Server: ServerConfig{
			Addr:               ":8080",
			ScanTimeout:        15 * time.Minute,
			MaxConcurrentScans: 4,
		},
	}
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, errs.Wrap(errs.ErrKindNotFound, "config file not found: "+path, err)
			}
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "read config file", err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode rejects unknown keys so typos in the file surface immediately.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return errs.Wrap(errs.ErrKindInvalidInput, "parse config", err)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	str("PIISCAN_ENGINE", &c.Connection.Engine)
	str("PIISCAN_DSN", &c.Connection.DSN)
	str("PIISCAN_DB_HOST", &c.Connection.Host)
	str("PIISCAN_DB_NAME", &c.Connection.Database)
	str("PIISCAN_DB_USER", &c.Connection.User)
	str("PIISCAN_DB_PASSWORD", &c.Connection.Password)
	str("PIISCAN_DB_SSLMODE", &c.Connection.SSLMode)
	str("PIISCAN_DB_SCHEMA", &c.Connection.Schema)
	str("PIISCAN_MODE", &c.Scan.Mode)
	str("PIISCAN_LOG_LEVEL", &c.Log.Level)
	str("PIISCAN_LOG_FORMAT", &c.Log.Format)
	str("PIISCAN_REPORT_FORMAT", &c.Report.Format)
	str("PIISCAN_S3_ENDPOINT", &c.Report.Store.Endpoint)
	str("PIISCAN_S3_ACCESS_KEY", &c.Report.Store.AccessKey)
	str("PIISCAN_S3_SECRET_KEY", &c.Report.Store.SecretKey)
	str("PIISCAN_S3_REGION", &c.Report.Store.Region)
	str("PIISCAN_S3_BUCKET", &c.Report.Store.Bucket)
	str("PIISCAN_SERVER_ADDR", &c.Server.Addr)

	if v, ok := lookup("PIISCAN_DB_PORT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errs.Wrap(errs.ErrKindInvalidInput, "PIISCAN_DB_PORT", err)
		}
		c.Connection.Port = n
	}
	if v, ok := lookup("PIISCAN_MAX_TABLES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errs.Wrap(errs.ErrKindInvalidInput, "PIISCAN_MAX_TABLES", err)
		}
		c.Scan.MaxTables = n
	}
	if v, ok := lookup("PIISCAN_TABLE_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errs.Wrap(errs.ErrKindInvalidInput, "PIISCAN_TABLE_TIMEOUT", err)
		}
		c.Scan.TableTimeout = d
	}
	if v, ok := lookup("PIISCAN_S3_USE_SSL"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errs.Wrap(errs.ErrKindInvalidInput, "PIISCAN_S3_USE_SSL", err)
		}
		c.Report.Store.UseSSL = b
	}
	return nil
}

// Validate checks settings that do not depend on a reachable database.
// Connection details are validated when a scan opens them, since the API
// server receives them per request.
func (c *Config) Validate() error {
	if err := c.ScanOptions().Validate(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error", "disabled", "off":
	default:
		return errs.Newf(errs.ErrKindInvalidInput, "unknown log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		return errs.Newf(errs.ErrKindInvalidInput, "unknown log format %q", c.Log.Format)
	}
	if _, err := report.ParseFormat(c.Report.Format); err != nil {
		return err
	}
	if c.Connection.Engine != "" {
		if _, err := database.ParseEngine(c.Connection.Engine); err != nil {
			return err
		}
	}
	if c.Connection.Port < 0 || c.Connection.Port > 65535 {
		return errs.Newf(errs.ErrKindInvalidInput, "invalid port %d", c.Connection.Port)
	}
	if c.Report.Upload {
		if err := c.FileStore().Validate(); err != nil {
			return err
		}
	}
	if c.Server.MaxConcurrentScans < 0 {
		return errs.New(errs.ErrKindInvalidInput, "server.maxConcurrentScans must not be negative")
	}
	return nil
}

// Database converts the connection section into a database.Config with
// pool defaults applied.
func (c *Config) Database() *database.Config {
	cc := c.Connection
	out := database.DefaultConfig(database.Engine(cc.Engine))
	out.DSN = cc.DSN
	out.Host = cc.Host
	out.Port = cc.Port
	out.Database = cc.Database
	out.User = cc.User
	out.Password = cc.Password
	out.SSLMode = cc.SSLMode
	out.Schema = cc.Schema
	if cc.MaxConns > 0 {
		out.MaxConns = cc.MaxConns
		out.MinConns = min(out.MinConns, cc.MaxConns)
	}
	if cc.ConnectTimeout > 0 {
		out.ConnectTimeout = cc.ConnectTimeout
	}
	if c.Scan.TableTimeout > 0 {
		out.QueryTimeout = c.Scan.TableTimeout
	}
	return out
}

// ScanOptions converts the scan section.
func (c *Config) ScanOptions() scanner.Options {
	return scanner.Options{
		Mode:             c.Scan.Mode,
		MaxTables:        c.Scan.MaxTables,
		TableTimeout:     c.Scan.TableTimeout,
		QueriesPerSecond: c.Scan.QueriesPerSecond,
	}
}

// Logger converts the log section. Output defaults to stderr.
func (c *Config) Logger() *logger.Config {
	lc := logger.DefaultConfig()
	if c.Log.Level != "" {
		lc.Level = strings.ToLower(c.Log.Level)
	}
	if c.Log.Format != "" {
		lc.Format = c.Log.Format
	}
	return lc
}

// FileStore converts the report store section.
func (c *Config) FileStore() *filestore.Config {
	s := c.Report.Store
	return &filestore.Config{
		Provider:   filestore.ProviderMinIO,
		Endpoint:   s.Endpoint,
		AccessKey:  s.AccessKey,
		SecretKey:  s.SecretKey,
		UseSSL:     s.UseSSL,
		Region:     s.Region,
		Bucket:     s.Bucket,
		Prefix:     s.Prefix,
		PresignTTL: s.PresignTTL,
	}
}
