// Package detect classifies sampled cell values as sensitive data.
//
// The scanner depends only on the Detector interface; PatternDetector is the
// built-in implementation used by the CLI and API.
package detect

// Severity ranks how damaging exposure of a finding type would be.
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityHigh     Severity = "High"
	SeverityMedium   Severity = "Medium"
	SeverityLow      Severity = "Low"
)

// Severities lists every severity from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// Detection is one classification of a single value.
type Detection struct {
	Type       string   `json:"type"`
	Severity   Severity `json:"severity"`
	Confidence float64  `json:"confidence"` // 0.0 to 1.0
}

// Finding is a Detection located in a scanned table. SampleRef points at the
// sampled cell as "table:row:column" without carrying the value itself.
type Finding struct {
	Table      string   `json:"table"`
	Column     string   `json:"column"`
	Type       string   `json:"type"`
	Severity   Severity `json:"severity"`
	Confidence float64  `json:"confidence"`
	SampleRef  string   `json:"sampleRef"`
}

// Detector classifies one cell value. column is the column name, given as
// context for confidence. Implementations must be safe for concurrent use.
type Detector interface {
	Classify(value, column string) ([]Detection, error)
}

// Func adapts a plain function to Detector.
type Func func(value, column string) ([]Detection, error)

// Classify calls f.
func (f Func) Classify(value, column string) ([]Detection, error) {
	return f(value, column)
}
