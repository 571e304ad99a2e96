package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/koustreak/piiscan/internal/database"
	"github.com/koustreak/piiscan/internal/detect"
	"github.com/koustreak/piiscan/internal/errs"
	"github.com/koustreak/piiscan/internal/logger"
	"github.com/koustreak/piiscan/internal/metrics"
	"github.com/koustreak/piiscan/internal/strategy"
	"golang.org/x/time/rate"
)

// DefaultTableTimeout bounds sampling and classification of one table.
const DefaultTableTimeout = 30 * time.Second

// ReasonCancelled is the skip reason for tables never started because the
// scan was cancelled.
const ReasonCancelled = "scan cancelled"

// Sampler reads rows from one table. database.Inspector satisfies it.
type Sampler interface {
	SampleRows(ctx context.Context, table database.TableInfo, n int) (*database.Sample, error)
}

// Recorder receives scan events. metrics.Prometheus satisfies it.
type Recorder interface {
	TableDone(engine, outcome string, elapsed time.Duration)
	Finding(findingType, severity string)
	ScanDone(engine, status string, elapsed time.Duration)
}

// SkippedTable is a table that was selected but produced no findings
// because sampling or classification failed.
type SkippedTable struct {
	Table  string `json:"table"`
	Reason string `json:"reason"`
	Kind   string `json:"kind"`
}

// TableReport summarises one successfully scanned table.
type TableReport struct {
	Table         string  `json:"table"`
	Priority      float64 `json:"priority"`
	EstimatedRows int64   `json:"estimatedRows"`
	SampledRows   int     `json:"sampledRows"`
	Findings      int     `json:"findings"`
	ElapsedMillis int64   `json:"elapsedMillis"`
}

// Outcome is what Execute produces. Scanned and Skipped are in dispatch
// order; Findings are grouped by table in dispatch order, then by row and
// column.
type Outcome struct {
	Scanned  []TableReport
	Skipped  []SkippedTable
	Findings []detect.Finding
}

// Interrupted reports whether cancellation kept any selected table from
// being scanned.
func (o *Outcome) Interrupted() bool {
	for _, sk := range o.Skipped {
		if sk.Reason == ReasonCancelled {
			return true
		}
	}
	return false
}

// Orchestrator runs a strategy over prioritised tables with a fixed-size
// worker pool. The zero value is not usable; Sampler is required.
type Orchestrator struct {
	Sampler Sampler
	Logger  *logger.Logger

	// TableTimeout bounds each table end to end. Zero means DefaultTableTimeout.
	TableTimeout time.Duration

	// Limiter paces sample queries across all workers. Nil means unpaced.
	Limiter *rate.Limiter

	// Metrics is optional.
	Metrics Recorder

	// Engine labels metrics.
	Engine string
}

type job struct {
	seq   int
	table database.TableInfo
}

type tableResult struct {
	seq      int
	report   TableReport
	findings []detect.Finding
	skip     *SkippedTable
}

// Execute sorts tables by priority descending (stable, so ties keep catalog
// order), keeps the first s.TargetTableCount, and scans them with
// s.WorkerCount workers. Per-table failures become skipped entries. Once ctx
// is done every table not yet started is skipped with ReasonCancelled.
//
// Workers only touch their own result buffer; buffers are merged after all
// workers return, so the outcome never depends on completion order.
func (o *Orchestrator) Execute(ctx context.Context, s strategy.Strategy, tables []database.TableInfo, det detect.Detector) *Outcome {
	ordered := make([]database.TableInfo, len(tables))
	copy(ordered, tables)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})
	if s.TargetTableCount < len(ordered) {
		ordered = ordered[:max(s.TargetTableCount, 0)]
	}

	out := &Outcome{
		Scanned:  make([]TableReport, 0, len(ordered)),
		Skipped:  make([]SkippedTable, 0),
		Findings: make([]detect.Finding, 0),
	}
	if len(ordered) == 0 {
		return out
	}

	jobs := make(chan job, len(ordered))
	for i, t := range ordered {
		jobs <- job{seq: i, table: t}
	}
	close(jobs)

	workers := min(max(s.WorkerCount, 1), len(ordered))
	buffers := make([][]tableResult, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for j := range jobs {
				if ctx.Err() != nil {
					buffers[w] = append(buffers[w], cancelled(j))
					continue
				}
				buffers[w] = append(buffers[w], o.scanTable(ctx, j, s.SampleRowsPerTable, det))
			}
		}(w)
	}
	wg.Wait()

	var merged []tableResult
	for _, b := range buffers {
		merged = append(merged, b...)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].seq < merged[j].seq })

	for _, r := range merged {
		if r.skip != nil {
			out.Skipped = append(out.Skipped, *r.skip)
			o.tableDone(metrics.OutcomeSkipped, 0)
			continue
		}
		out.Scanned = append(out.Scanned, r.report)
		out.Findings = append(out.Findings, r.findings...)
		o.tableDone(metrics.OutcomeScanned, time.Duration(r.report.ElapsedMillis)*time.Millisecond)
		if o.Metrics != nil {
			for _, f := range r.findings {
				o.Metrics.Finding(f.Type, string(f.Severity))
			}
		}
	}
	return out
}

func cancelled(j job) tableResult {
	return tableResult{seq: j.seq, skip: &SkippedTable{
		Table:  j.table.QualifiedName(),
		Reason: ReasonCancelled,
		Kind:   errs.ErrKindCancelled.String(),
	}}
}

// scanTable samples and classifies one table. It never panics and never
// returns partial findings: any failure yields a skip.
func (o *Orchestrator) scanTable(ctx context.Context, j job, rows int, det detect.Detector) (res tableResult) {
	name := j.table.QualifiedName()
	log := o.log().With().Str("table", name).Logger()
	start := time.Now()

	skip := func(kind errs.ErrKind, reason string) tableResult {
		log.WarnWith("table skipped", nil, map[string]interface{}{"reason": reason, "kind": kind.String()})
		return tableResult{seq: j.seq, skip: &SkippedTable{Table: name, Reason: reason, Kind: kind.String()}}
	}

	defer func() {
		if p := recover(); p != nil {
			res = skip(errs.ErrKindUnknown, fmt.Sprintf("panic: %v", p))
		}
	}()

	if o.Limiter != nil {
		if err := o.Limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return cancelled(j)
			}
			return skip(errs.ErrKindTimeout, err.Error())
		}
	}

	timeout := o.timeout()
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	n := rows
	if j.table.RowsKnown() && j.table.EstimatedRows < int64(n) {
		n = int(j.table.EstimatedRows)
	}

	sample, err := o.Sampler.SampleRows(tctx, j.table, n)
	if err != nil {
		kind, reason := o.classify(ctx, tctx, err)
		return skip(kind, reason)
	}
	if sample == nil {
		sample = &database.Sample{}
	}

	var findings []detect.Finding
	for i, row := range sample.Rows {
		if tctx.Err() != nil {
			kind, reason := o.classify(ctx, tctx, tctx.Err())
			return skip(kind, reason)
		}
		for c, v := range row {
			if c >= len(sample.Columns) {
				break
			}
			col := sample.Columns[c]
			text, ok := database.CellString(v)
			if !ok {
				continue
			}
			dets, err := det.Classify(text, col)
			if err != nil {
				return skip(errs.ErrKindQueryFailed, fmt.Sprintf("detector failed on column %s: %v", col, err))
			}
			for _, d := range dets {
				findings = append(findings, detect.Finding{
					Table:      name,
					Column:     col,
					Type:       d.Type,
					Severity:   d.Severity,
					Confidence: clampConfidence(d.Confidence),
					SampleRef:  fmt.Sprintf("%s:%d:%s", name, i, col),
				})
			}
		}
	}

	elapsed := time.Since(start)
	log.With().Int("rows", sample.Len()).Int("findings", len(findings)).Logger().Debug("table scanned")

	return tableResult{
		seq: j.seq,
		report: TableReport{
			Table:         name,
			Priority:      j.table.Priority,
			EstimatedRows: j.table.EstimatedRows,
			SampledRows:   sample.Len(),
			Findings:      len(findings),
			ElapsedMillis: elapsed.Milliseconds(),
		},
		findings: findings,
	}
}

// classify turns a sampling failure into a skip kind and reason. A deadline
// on the table context is a per-table timeout; a done parent is the overall
// scan being cancelled.
func (o *Orchestrator) classify(parent, table context.Context, err error) (errs.ErrKind, string) {
	switch {
	case parent.Err() != nil:
		return errs.ErrKindCancelled, ReasonCancelled
	case errors.Is(table.Err(), context.DeadlineExceeded) || errs.IsTimeout(err):
		return errs.ErrKindTimeout, fmt.Sprintf("timed out after %s", o.timeout())
	default:
		kind := errs.KindOf(err)
		if kind == errs.ErrKindUnknown {
			kind = errs.ErrKindQueryFailed
		}
		return kind, err.Error()
	}
}

func (o *Orchestrator) timeout() time.Duration {
	if o.TableTimeout > 0 {
		return o.TableTimeout
	}
	return DefaultTableTimeout
}

func (o *Orchestrator) log() *logger.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logger.Nop()
}

func (o *Orchestrator) tableDone(outcome string, elapsed time.Duration) {
	if o.Metrics != nil {
		o.Metrics.TableDone(o.Engine, outcome, elapsed)
	}
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}
