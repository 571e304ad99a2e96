// Package strategy decides how much of a database to scan: how many tables,
// how many rows per table, and how many concurrent workers.
package strategy

import (
	"strings"

	"github.com/koustreak/piiscan/internal/errs"
	"github.com/koustreak/piiscan/internal/priority"
)

// Mode is the scan mode requested by the caller.
type Mode string

const (
	ModeFast  Mode = "fast"
	ModeSmart Mode = "smart"
	ModeDeep  Mode = "deep"
)

// ParseMode normalises a user supplied mode. Empty means smart.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeSmart:
		return ModeSmart, nil
	case ModeFast:
		return ModeFast, nil
	case ModeDeep:
		return ModeDeep, nil
	default:
		return "", errs.Newf(errs.ErrKindUnsupported, "unsupported scan mode %q", s)
	}
}

// Type names the chosen strategy.
type Type string

const (
	Comprehensive    Type = "comprehensive"
	Balanced         Type = "balanced"
	PrioritySampling Type = "prioritySampling"
	SamplingOnly     Type = "samplingOnly"
	PriorityDeep     Type = "priorityDeep"
)

// Thresholds and per-strategy profiles.
const (
	LargeRowThreshold   = 100_000
	LargeTableThreshold = 100
	WideTableThreshold  = 50

	fastTableCap     = 15
	deepTableCap     = 75
	samplingTableCap = 40
)

// Strategy is computed once per scan and is read-only afterwards.
type Strategy struct {
	Type                     Type `json:"type"`
	TargetTableCount         int  `json:"targetTableCount"`
	SampleRowsPerTable       int  `json:"sampleRowsPerTable"`
	WorkerCount              int  `json:"workerCount"`
	EstimatedDurationSeconds int  `json:"estimatedDurationSeconds"`
}

// Input carries the aggregate catalog statistics Select decides on.
type Input struct {
	TotalTables        int
	EstimatedTotalRows int64
	RiskLevel          priority.Level
	Mode               Mode

	// MaxTables caps the number of tables scanned. Zero means use the
	// strategy's default cap.
	MaxTables int
}

// Select picks a strategy. It is pure and total; the first matching rule
// wins:
//
//  1. fast mode: comprehensive, up to 15 tables, 100 rows, 2 workers
//  2. deep mode or high risk: priorityDeep, up to 75 tables, 500 rows, 3 workers
//  3. more than 100,000 rows or 100 tables: samplingOnly, up to 40 tables, 200 rows, 3 workers
//  4. more than 50 tables: prioritySampling, up to 40 tables, 200 rows, 3 workers
//  5. otherwise: balanced, every table, 200 rows, 3 workers
//
// A positive MaxTables replaces the default cap of rules 2 to 4 and further
// limits rules 1 and 5. TargetTableCount never exceeds TotalTables.
func Select(in Input) Strategy {
	total := max(in.TotalTables, 0)

	var s Strategy
	switch {
	case in.Mode == ModeFast:
		s = Strategy{Type: Comprehensive, SampleRowsPerTable: 100, WorkerCount: 2}
		s.TargetTableCount = min(total, fastTableCap, capOr(in.MaxTables, fastTableCap))
	case in.Mode == ModeDeep || in.RiskLevel == priority.LevelHigh:
		s = Strategy{Type: PriorityDeep, SampleRowsPerTable: 500, WorkerCount: 3}
		s.TargetTableCount = min(total, capOr(in.MaxTables, deepTableCap))
	case in.EstimatedTotalRows > LargeRowThreshold || total > LargeTableThreshold:
		s = Strategy{Type: SamplingOnly, SampleRowsPerTable: 200, WorkerCount: 3}
		s.TargetTableCount = min(total, capOr(in.MaxTables, samplingTableCap))
	case total > WideTableThreshold:
		s = Strategy{Type: PrioritySampling, SampleRowsPerTable: 200, WorkerCount: 3}
		s.TargetTableCount = min(total, capOr(in.MaxTables, samplingTableCap))
	default:
		s = Strategy{Type: Balanced, SampleRowsPerTable: 200, WorkerCount: 3}
		s.TargetTableCount = min(total, capOr(in.MaxTables, total))
	}

	s.EstimatedDurationSeconds = estimateSeconds(s)
	return s
}

func capOr(maxTables, def int) int {
	if maxTables > 0 {
		return maxTables
	}
	return def
}

// estimateSeconds is a rough wall-clock figure for progress reporting,
// assuming sample cost grows with rows per table.
func estimateSeconds(s Strategy) int {
	perTable := 2
	switch s.SampleRowsPerTable {
	case 100:
		perTable = 1
	case 500:
		perTable = 4
	}
	if s.WorkerCount <= 0 || s.TargetTableCount == 0 {
		return 0
	}
	return (s.TargetTableCount*perTable + s.WorkerCount - 1) / s.WorkerCount
}
