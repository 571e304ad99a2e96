// Package scanner drives a compliance scan end to end: connect, introspect,
// score, choose a strategy, sample the chosen tables concurrently, and
// aggregate findings into a Result.
package scanner

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/koustreak/piiscan/internal/cloud"
	"github.com/koustreak/piiscan/internal/database"
	"github.com/koustreak/piiscan/internal/detect"
	"github.com/koustreak/piiscan/internal/errs"
	"github.com/koustreak/piiscan/internal/logger"
	"github.com/koustreak/piiscan/internal/metrics"
	"github.com/koustreak/piiscan/internal/priority"
	"github.com/koustreak/piiscan/internal/risk"
	"github.com/koustreak/piiscan/internal/strategy"
	"golang.org/x/time/rate"
)

// OpenFunc connects to a scan target. database.Open is the default.
type OpenFunc func(ctx context.Context, cfg *database.Config) (database.Inspector, error)

// Options tune one scan.
type Options struct {
	// Mode is fast, smart or deep. Empty means smart.
	Mode string

	// MaxTables caps the number of tables scanned. Zero keeps the
	// strategy default.
	MaxTables int

	// TableTimeout bounds each table. Zero means DefaultTableTimeout.
	TableTimeout time.Duration

	// QueriesPerSecond paces sample queries. Zero disables pacing.
	QueriesPerSecond float64
}

// Validate rejects options that can never produce a scan.
func (o Options) Validate() error {
	if _, err := strategy.ParseMode(o.Mode); err != nil {
		return err
	}
	if o.MaxTables < 0 {
		return errs.Newf(errs.ErrKindInvalidInput, "max tables must not be negative, got %d", o.MaxTables)
	}
	if o.TableTimeout < 0 {
		return errs.New(errs.ErrKindInvalidInput, "table timeout must not be negative")
	}
	if o.QueriesPerSecond < 0 {
		return errs.New(errs.ErrKindInvalidInput, "queries per second must not be negative")
	}
	return nil
}

// Scanner wires the collaborators of a scan. All fields are optional; New
// fills in the production defaults.
type Scanner struct {
	Open     OpenFunc
	Detector detect.Detector
	Scorer   *priority.Scorer
	Logger   *logger.Logger
	Metrics  Recorder
}

// New returns a Scanner using the registered engine drivers, the pattern
// detector, the default priority tables and Prometheus metrics.
func New(log *logger.Logger) *Scanner {
	return &Scanner{
		Open:     database.Open,
		Detector: detect.NewPatternDetector(),
		Scorer:   priority.NewDefault(),
		Logger:   log,
		Metrics:  metrics.Prometheus{},
	}
}

// Result is the outcome of one scan, serialised as the report document.
type Result struct {
	ScanID          string            `json:"scanId"`
	Engine          database.Engine   `json:"engine"`
	Database        string            `json:"database,omitempty"`
	StartedAt       time.Time         `json:"startedAt"`
	Mode            strategy.Mode     `json:"mode"`
	RiskLevel       priority.Level    `json:"riskLevel"`
	Strategy        strategy.Strategy `json:"strategy"`
	TablesScanned   int               `json:"tablesScanned"`
	TablesSkipped   []SkippedTable    `json:"tablesSkipped"`
	Tables          []TableReport     `json:"tables"`
	Findings        []detect.Finding  `json:"findings"`
	RiskScore       int               `json:"riskScore"`
	ComplianceScore float64           `json:"complianceScore"`
	Summary         risk.Summary      `json:"summary"`
	ElapsedSeconds  float64           `json:"elapsedSeconds"`
	CloudProvider   cloud.Info        `json:"cloudProvider"`
	Cancelled       bool              `json:"cancelled,omitempty"`
}

// PlannedTable is one table a scan would sample, in dispatch order.
type PlannedTable struct {
	Table         string  `json:"table"`
	Priority      float64 `json:"priority"`
	EstimatedRows int64   `json:"estimatedRows"`
	SampleRows    int     `json:"sampleRows"`
}

// Plan is what a scan would do, without sampling any rows.
type Plan struct {
	Engine             database.Engine   `json:"engine"`
	Database           string            `json:"database,omitempty"`
	Mode               strategy.Mode     `json:"mode"`
	RiskLevel          priority.Level    `json:"riskLevel"`
	TotalTables        int               `json:"totalTables"`
	EstimatedTotalRows int64             `json:"estimatedTotalRows"`
	Strategy           strategy.Strategy `json:"strategy"`
	Tables             []PlannedTable    `json:"tables"`
	CloudProvider      cloud.Info        `json:"cloudProvider"`
}

// prepared is the shared front half of Scan and Plan.
type prepared struct {
	inspector database.Inspector
	mode      strategy.Mode
	ranked    []database.TableInfo
	level     priority.Level
	rows      int64
	strategy  strategy.Strategy
	cloud     cloud.Info
}

// Scan runs a full scan. A failure to connect or to read the catalog is
// fatal and returns an error with no Result; per-table failures are
// reported in Result.TablesSkipped. Cancelling ctx stops dispatching tables
// and returns the partial Result with Cancelled set.
func (s *Scanner) Scan(ctx context.Context, cfg *database.Config, opts Options) (*Result, error) {
	started := time.Now()
	engineLabel := ""
	if cfg != nil {
		engineLabel = string(cfg.Engine)
	}

	p, err := s.prepare(ctx, cfg, opts)
	if err != nil {
		s.scanDone(engineLabel, metrics.StatusFailed, time.Since(started))
		s.log(ctx).ErrorWith("scan failed", err, map[string]interface{}{"engine": engineLabel})
		return nil, err
	}
	defer p.inspector.Close()

	engine := p.inspector.Engine()
	log := s.log(ctx).With().
		Str("engine", string(engine)).
		Str("provider", string(p.cloud.Provider)).
		Str("mode", string(p.mode)).
		Logger()

	log.InfoWith("strategy selected", map[string]interface{}{
		"strategy":    p.strategy.Type,
		"tables":      p.strategy.TargetTableCount,
		"total":       len(p.ranked),
		"sample_rows": p.strategy.SampleRowsPerTable,
		"workers":     p.strategy.WorkerCount,
		"risk_level":  p.level,
		"estimate_s":  p.strategy.EstimatedDurationSeconds,
	})

	orch := &Orchestrator{
		Sampler:      p.inspector,
		Logger:       log,
		TableTimeout: opts.TableTimeout,
		Metrics:      s.Metrics,
		Engine:       string(engine),
	}
	if opts.QueriesPerSecond > 0 {
		orch.Limiter = rate.NewLimiter(rate.Limit(opts.QueriesPerSecond), 1)
	}
	out := orch.Execute(ctx, p.strategy, p.ranked, s.detector())

	riskScore, compliance := risk.Aggregate(out.Findings, len(out.Scanned))
	res := &Result{
		ScanID:          uuid.NewString(),
		Engine:          engine,
		Database:        cfg.Database,
		StartedAt:       started.UTC(),
		Mode:            p.mode,
		RiskLevel:       p.level,
		Strategy:        p.strategy,
		TablesScanned:   len(out.Scanned),
		TablesSkipped:   out.Skipped,
		Tables:          out.Scanned,
		Findings:        out.Findings,
		RiskScore:       riskScore,
		ComplianceScore: compliance,
		Summary:         risk.Summarize(out.Findings, len(out.Scanned)),
		CloudProvider:   p.cloud,
		Cancelled:       out.Interrupted(),
	}
	elapsed := time.Since(started)
	res.ElapsedSeconds = elapsed.Seconds()

	status := metrics.StatusOK
	if res.Cancelled {
		status = metrics.StatusCancelled
	}
	s.scanDone(string(engine), status, elapsed)

	log.InfoWith("scan finished", map[string]interface{}{
		"scan_id":    res.ScanID,
		"scanned":    res.TablesScanned,
		"skipped":    len(res.TablesSkipped),
		"findings":   len(res.Findings),
		"risk":       res.RiskScore,
		"compliance": res.ComplianceScore,
		"elapsed_s":  res.ElapsedSeconds,
		"cancelled":  res.Cancelled,
	})
	return res, nil
}

// Plan connects, reads the catalog and reports the strategy and table order
// a scan with the same options would use.
func (s *Scanner) Plan(ctx context.Context, cfg *database.Config, opts Options) (*Plan, error) {
	p, err := s.prepare(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}
	defer p.inspector.Close()

	target := p.ranked[:min(p.strategy.TargetTableCount, len(p.ranked))]
	tables := make([]PlannedTable, len(target))
	for i, t := range target {
		n := p.strategy.SampleRowsPerTable
		if t.RowsKnown() && t.EstimatedRows < int64(n) {
			n = int(t.EstimatedRows)
		}
		tables[i] = PlannedTable{
			Table:         t.QualifiedName(),
			Priority:      t.Priority,
			EstimatedRows: t.EstimatedRows,
			SampleRows:    n,
		}
	}

	return &Plan{
		Engine:             p.inspector.Engine(),
		Database:           cfg.Database,
		Mode:               p.mode,
		RiskLevel:          p.level,
		TotalTables:        len(p.ranked),
		EstimatedTotalRows: p.rows,
		Strategy:           p.strategy,
		Tables:             tables,
		CloudProvider:      p.cloud,
	}, nil
}

func (s *Scanner) prepare(ctx context.Context, cfg *database.Config, opts Options) (*prepared, error) {
	if cfg == nil {
		return nil, errs.New(errs.ErrKindInvalidInput, "database config is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	mode, _ := strategy.ParseMode(opts.Mode)

	info := cloud.ClassifyHost(database.HostName(cfg))
	s.log(ctx).With().
		Str("engine", string(cfg.Engine)).
		Str("provider", string(info.Provider)).
		Str("service", info.Service).
		Str("mode", string(mode)).
		Logger().
		Info("scan starting")

	open := s.Open
	if open == nil {
		open = database.Open
	}
	insp, err := open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tables, err := insp.ListTables(ctx)
	if err != nil {
		insp.Close()
		return nil, err
	}

	scorer := s.Scorer
	if scorer == nil {
		scorer = priority.NewDefault()
	}
	ranked := scorer.Rank(tables)
	level := priority.RiskLevel(ranked)

	var rows int64
	for _, t := range ranked {
		if t.RowsKnown() {
			rows += t.EstimatedRows
		}
	}

	return &prepared{
		inspector: insp,
		mode:      mode,
		ranked:    ranked,
		level:     level,
		rows:      rows,
		strategy: strategy.Select(strategy.Input{
			TotalTables:        len(ranked),
			EstimatedTotalRows: rows,
			RiskLevel:          level,
			Mode:               mode,
			MaxTables:          opts.MaxTables,
		}),
		cloud: info,
	}, nil
}

func (s *Scanner) detector() detect.Detector {
	if s.Detector != nil {
		return s.Detector
	}
	return detect.NewPatternDetector()
}

// log prefers a logger carried by ctx, such as one tagged with an HTTP
// request ID.
func (s *Scanner) log(ctx context.Context) *logger.Logger {
	fallback := s.Logger
	if fallback == nil {
		fallback = logger.Nop()
	}
	return logger.Ctx(ctx, fallback)
}

func (s *Scanner) scanDone(engine, status string, elapsed time.Duration) {
	if s.Metrics != nil {
		s.Metrics.ScanDone(engine, status, elapsed)
	}
}
