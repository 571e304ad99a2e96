// Package risk turns findings into a weighted risk score and a compliance
// score. Every function here is pure and independent of finding order.
package risk

import (
	"sort"

	"github.com/koustreak/piiscan/internal/detect"
)

type Posture string

const (
	Low      Posture = "LOW"
	Moderate Posture = "MODERATE"
	High     Posture = "HIGH"
	Critical Posture = "CRITICAL"
)

// Weight returns the risk contribution of one finding of the given severity.
func Weight(s detect.Severity) int {
	switch s {
	case detect.SeverityCritical:
		return 25
	case detect.SeverityHigh:
		return 15
	case detect.SeverityMedium:
		return 7
	case detect.SeverityLow:
		return 2
	default:
		return 0
	}
}

// Aggregate returns the risk score (sum of weights, unbounded) and the
// compliance score: 100 minus the average weight per scanned table, clamped
// to [0, 100]. With no scanned tables compliance is 100.
func Aggregate(findings []detect.Finding, tablesScanned int) (riskScore int, complianceScore float64) {
	for _, f := range findings {
		riskScore += Weight(f.Severity)
	}
	if tablesScanned <= 0 {
		return riskScore, 100
	}
	complianceScore = 100 - float64(riskScore)/float64(tablesScanned)
	switch {
	case complianceScore < 0:
		complianceScore = 0
	case complianceScore > 100:
		complianceScore = 100
	}
	return riskScore, complianceScore
}

// FromScore maps a compliance score to a posture band.
func FromScore(score float64) Posture {
	switch {
	case score >= 90:
		return Low
	case score >= 70:
		return Moderate
	case score >= 50:
		return High
	default:
		return Critical
	}
}

// Summary is the breakdown reported next to the scores.
type Summary struct {
	BySeverity         map[detect.Severity]int `json:"bySeverity"`
	ByType             map[string]int          `json:"byType"`
	TablesWithFindings []string                `json:"tablesWithFindings"`
	Posture            Posture                 `json:"posture"`
}

// Summarize counts findings per severity and type and lists the affected
// tables in name order.
func Summarize(findings []detect.Finding, tablesScanned int) Summary {
	s := Summary{
		BySeverity:         make(map[detect.Severity]int, len(detect.Severities)),
		ByType:             make(map[string]int),
		TablesWithFindings: make([]string, 0),
	}
	for _, sev := range detect.Severities {
		s.BySeverity[sev] = 0
	}

	seen := make(map[string]bool)
	for _, f := range findings {
		s.BySeverity[f.Severity]++
		s.ByType[f.Type]++
		if !seen[f.Table] {
			seen[f.Table] = true
			s.TablesWithFindings = append(s.TablesWithFindings, f.Table)
		}
	}
	sort.Strings(s.TablesWithFindings)

	_, compliance := Aggregate(findings, tablesScanned)
	s.Posture = FromScore(compliance)
	return s
}
