// Package priority assigns sensitivity weights to tables and columns from
// their names. Scores drive both scan ordering and strategy selection, so
// they must be deterministic: the same catalog always yields the same order.
package priority

import (
	"sort"
	"strings"

	"github.com/koustreak/piiscan/internal/database"
)

// Score bounds. Every score the package returns lies within them.
const (
	MinScore     = 0.5
	MaxScore     = 3.0
	DefaultScore = 1.0

	// ColumnBonus is added to a table's score per sensitive column.
	ColumnBonus = 0.5

	// HighThreshold is the score at which a table counts as high priority
	// for RiskLevel.
	HighThreshold = 2.5
)

// Pattern pairs a lower-case substring with the base score it implies.
type Pattern struct {
	Substring string
	Score     float64
}

// DefaultTablePatterns are matched against lower-cased table names. The
// highest matching score wins.
var DefaultTablePatterns = []Pattern{
	{"user", 3.0},
	{"customer", 3.0},
	{"patient", 3.0},
	{"medical", 3.0},
	{"employee", 3.0},
	{"person", 3.0},
	{"health", 3.0},
	{"salary", 3.0},
	{"payroll", 3.0},
	{"client", 2.8},
	{"member", 2.8},
	{"contact", 2.8},
	{"payment", 2.8},
	{"address", 2.8},
	{"billing", 2.6},
	{"account", 2.5},
	{"profile", 2.5},
	{"invoice", 2.4},
	{"transaction", 2.3},
	{"order", 2.0},
	{"session", 1.5},
	{"log", 1.2},
	{"audit", 1.2},
	{"backup", 0.8},
	{"config", 0.8},
	{"setting", 0.8},
	{"cache", 0.6},
	{"system", 0.5},
	{"temp", 0.5},
	{"tmp", 0.5},
	{"test", 0.5},
	{"migration", 0.5},
}

// DefaultColumnIndicators are matched against lower-cased column names.
// A match marks the column sensitive; the score is its column priority.
var DefaultColumnIndicators = []Pattern{
	{"ssn", 3.0},
	{"bsn", 3.0},
	{"social_security", 3.0},
	{"national_id", 3.0},
	{"passport", 3.0},
	{"password", 3.0},
	{"passwd", 3.0},
	{"secret", 3.0},
	{"medical", 3.0},
	{"diagnosis", 3.0},
	{"health", 3.0},
	{"iban", 3.0},
	{"credit_card", 3.0},
	{"card_number", 3.0},
	{"cvv", 3.0},
	{"tax_id", 2.5},
	{"salary", 2.5},
	{"birth", 2.5},
	{"dob", 2.5},
	{"api_key", 2.5},
	{"token", 2.5},
	{"email", 2.0},
	{"phone", 2.0},
}

// Level summarises how sensitive a catalog looks overall.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Scorer computes priority scores from immutable pattern tables. A Scorer
// is safe for concurrent use.
type Scorer struct {
	tables  []Pattern
	columns []Pattern
}

// New returns a Scorer over copies of the given pattern tables. Patterns
// are lower-cased; empty substrings are dropped.
func New(tablePatterns, columnIndicators []Pattern) *Scorer {
	return &Scorer{
		tables:  normalize(tablePatterns),
		columns: normalize(columnIndicators),
	}
}

// NewDefault returns a Scorer over the default pattern tables.
func NewDefault() *Scorer {
	return New(DefaultTablePatterns, DefaultColumnIndicators)
}

func normalize(in []Pattern) []Pattern {
	out := make([]Pattern, 0, len(in))
	for _, p := range in {
		s := strings.ToLower(strings.TrimSpace(p.Substring))
		if s == "" {
			continue
		}
		out = append(out, Pattern{Substring: s, Score: p.Score})
	}
	return out
}

// ScoreTable returns the table's base score (maximum matching pattern,
// DefaultScore if none match) plus ColumnBonus for every sensitive column,
// clamped to [MinScore, MaxScore].
func (s *Scorer) ScoreTable(name string, columns []string) float64 {
	score, ok := maxMatch(s.tables, name)
	if !ok {
		score = DefaultScore
	}
	for _, c := range columns {
		if s.IsSensitiveColumn(c) {
			score += ColumnBonus
		}
	}
	return clamp(score)
}

// ScoreColumn returns the highest matching indicator score for a column,
// or DefaultScore, clamped to [MinScore, MaxScore].
func (s *Scorer) ScoreColumn(name string) float64 {
	score, ok := maxMatch(s.columns, name)
	if !ok {
		return DefaultScore
	}
	return clamp(score)
}

// IsSensitiveColumn reports whether any indicator matches the column name.
func (s *Scorer) IsSensitiveColumn(name string) bool {
	_, ok := maxMatch(s.columns, name)
	return ok
}

// Rank returns scored copies of tables, sorted by priority descending.
// Equal scores keep their catalog order. The input slice is not modified.
func (s *Scorer) Rank(tables []database.TableInfo) []database.TableInfo {
	ranked := make([]database.TableInfo, len(tables))
	for i, t := range tables {
		cols := make([]database.ColumnInfo, len(t.Columns))
		for j, c := range t.Columns {
			c.Priority = s.ScoreColumn(c.Name)
			cols[j] = c
		}
		t.Columns = cols
		t.Priority = s.ScoreTable(t.Name, t.ColumnNames())
		ranked[i] = t
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Priority > ranked[j].Priority
	})
	return ranked
}

// RiskLevel classifies scored tables: high when at least ten tables, or at
// least a quarter of a catalog of eight or more, reach HighThreshold;
// medium when any table does; low otherwise.
func RiskLevel(tables []database.TableInfo) Level {
	high := 0
	for _, t := range tables {
		if t.Priority >= HighThreshold {
			high++
		}
	}
	switch {
	case high >= 10:
		return LevelHigh
	case len(tables) >= 8 && float64(high)/float64(len(tables)) >= 0.25:
		return LevelHigh
	case high > 0:
		return LevelMedium
	default:
		return LevelLow
	}
}

func maxMatch(patterns []Pattern, name string) (float64, bool) {
	lower := strings.ToLower(name)
	best, found := 0.0, false
	for _, p := range patterns {
		if strings.Contains(lower, p.Substring) && (!found || p.Score > best) {
			best, found = p.Score, true
		}
	}
	return best, found
}

func clamp(v float64) float64 {
	switch {
	case v < MinScore:
		return MinScore
	case v > MaxScore:
		return MaxScore
	default:
		return v
	}
}
