package main

import (
	"github.com/koustreak/piiscan/internal/config"
	"github.com/koustreak/piiscan/internal/logger"
	"github.com/spf13/cobra"
)

// connFlags override the connection section of the config file.
type connFlags struct {
	Engine   string
	DSN      string
	Host     string
	Port     int
	Database string
	User     string
	SSLMode  string
	Schema   string
}

func (f *connFlags) AddFlags(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.Engine, "engine", "", "postgres|mysql|sqlserver|redshift")
	fs.StringVar(&f.DSN, "dsn", "", "engine-native connection string")
	fs.StringVar(&f.Host, "host", "", "database host")
	fs.IntVar(&f.Port, "port", 0, "database port (engine default when unset)")
	fs.StringVar(&f.Database, "database", "", "database name")
	fs.StringVar(&f.User, "user", "", "database user (password via PIISCAN_DB_PASSWORD)")
	fs.StringVar(&f.SSLMode, "sslmode", "", "TLS mode passed to the driver")
	fs.StringVar(&f.Schema, "schema", "", "restrict the scan to one schema")
}

func (f *connFlags) apply(cmd *cobra.Command, c *config.ConnectionConfig) {
	fs := cmd.Flags()
	if fs.Changed("engine") {
		c.Engine = f.Engine
	}
	if fs.Changed("dsn") {
		c.DSN = f.DSN
	}
	if fs.Changed("host") {
		c.Host = f.Host
	}
	if fs.Changed("port") {
		c.Port = f.Port
	}
	if fs.Changed("database") {
		c.Database = f.Database
	}
	if fs.Changed("user") {
		c.User = f.User
	}
	if fs.Changed("sslmode") {
		c.SSLMode = f.SSLMode
	}
	if fs.Changed("schema") {
		c.Schema = f.Schema
	}
}

// scanFlags override the scan and report sections.
type scanFlags struct {
	Mode      string
	MaxTables int
	QPS       float64
	Format    string
	Out       string
	Upload    bool
}

func (f *scanFlags) AddFlags(cmd *cobra.Command, withReport bool) {
	fs := cmd.Flags()
	fs.StringVar(&f.Mode, "mode", "", "smart|fast|deep")
	fs.IntVar(&f.MaxTables, "max-tables", 0, "cap on tables sampled (0 means strategy decides)")
	fs.Float64Var(&f.QPS, "qps", 0, "sample queries per second (0 means unlimited)")
	fs.StringVar(&f.Format, "format", "", "json|table")
	if withReport {
		fs.StringVarP(&f.Out, "out", "o", "", "write the JSON report to this file")
		fs.BoolVar(&f.Upload, "upload", false, "upload the JSON report to the configured object store")
	}
}

func (f *scanFlags) apply(cmd *cobra.Command, c *config.Config) {
	fs := cmd.Flags()
	if fs.Changed("mode") {
		c.Scan.Mode = f.Mode
	}
	if fs.Changed("max-tables") {
		c.Scan.MaxTables = f.MaxTables
	}
	if fs.Changed("qps") {
		c.Scan.QueriesPerSecond = f.QPS
	}
	if fs.Changed("format") {
		c.Report.Format = f.Format
	}
	if fs.Changed("out") {
		c.Report.Output = f.Out
	}
	if fs.Changed("upload") {
		c.Report.Upload = f.Upload
	}
}

// loadConfig reads the config file and env, lets flags win, and
// re-validates the merged result.
func loadConfig(cmd *cobra.Command, path string, apply ...func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	pf := cmd.Flags()
	if pf.Changed("log-level") {
		cfg.Log.Level, _ = pf.GetString("log-level")
	}
	if pf.Changed("log-format") {
		cfg.Log.Format, _ = pf.GetString("log-format")
	}
	for _, fn := range apply {
		fn(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger and installs it as the global one.
func newLogger(cmd *cobra.Command, cfg *config.Config) *logger.Logger {
	lc := cfg.Logger()
	lc.Output = cmd.ErrOrStderr()
	log := logger.New(lc)
	logger.SetGlobal(log)
	return log
}
