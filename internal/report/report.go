// Package report renders scan results for people and machines and ships
// them to object storage.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/koustreak/piiscan/internal/detect"
	"github.com/koustreak/piiscan/internal/errs"
	"github.com/koustreak/piiscan/internal/filestore"
	"github.com/koustreak/piiscan/internal/scanner"
	"github.com/olekukonko/tablewriter"
)

// Format selects the output rendering.
type Format string

const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
)

// ParseFormat accepts "json" and "table"; empty means json.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatTable:
		return FormatTable, nil
	default:
		return "", errs.Newf(errs.ErrKindInvalidInput, "unknown output format %q", s)
	}
}

// WriteJSON writes v as indented JSON followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "failed to encode report", err)
	}
	return nil
}

// WriteFile writes the JSON report to path, creating parent directories.
// The report goes to a temporary sibling first and is renamed into place.
func WriteFile(path string, res *scanner.Result) error {
	if path == "" {
		return errs.New(errs.ErrKindInvalidInput, "report path is required")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fileError(err, "failed to create report directory")
	}

	tmp, err := os.CreateTemp(dir, ".piiscan-*.json")
	if err != nil {
		return fileError(err, "failed to create report file")
	}
	defer os.Remove(tmp.Name())

	if err := WriteJSON(tmp, res); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fileError(err, "failed to write report file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fileError(err, "failed to move report into place")
	}
	return nil
}

// fileError classifies a local filesystem failure.
func fileError(err error, msg string) *errs.Error {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return errs.Wrap(errs.ErrKindPermissionDenied, msg, err)
	case errors.Is(err, fs.ErrNotExist):
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	default:
		return errs.Wrap(errs.ErrKindUnknown, msg, err)
	}
}

// WriteTable prints a human readable summary: headline scores, findings
// grouped by table and column, then skipped tables.
func WriteTable(w io.Writer, res *scanner.Result) error {
	fmt.Fprintf(w, "Scan %s  engine=%s  mode=%s  strategy=%s\n", res.ScanID, res.Engine, res.Mode, res.Strategy.Type)
	fmt.Fprintf(w, "Hosting: %s", res.CloudProvider.Provider)
	if res.CloudProvider.Service != "" {
		fmt.Fprintf(w, " / %s", res.CloudProvider.Service)
	}
	if res.CloudProvider.Region != "" {
		fmt.Fprintf(w, " (%s)", res.CloudProvider.Region)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Tables scanned: %d  skipped: %d  findings: %d  elapsed: %.1fs\n",
		res.TablesScanned, len(res.TablesSkipped), len(res.Findings), res.ElapsedSeconds)
	fmt.Fprintf(w, "Risk score: %d  Compliance: %.1f/100  Posture: %s\n", res.RiskScore, res.ComplianceScore, res.Summary.Posture)
	if res.Cancelled {
		fmt.Fprintln(w, "Scan was cancelled; results are partial.")
	}

	if rows := findingRows(res); len(rows) > 0 {
		fmt.Fprintln(w)
		tw := tablewriter.NewWriter(w)
		tw.SetHeader([]string{"Table", "Column", "Type", "Severity", "Count", "Max confidence"})
		tw.SetAutoWrapText(false)
		tw.AppendBulk(rows)
		tw.Render()
	}

	if len(res.TablesSkipped) > 0 {
		fmt.Fprintln(w)
		tw := tablewriter.NewWriter(w)
		tw.SetHeader([]string{"Skipped table", "Kind", "Reason"})
		tw.SetAutoWrapText(false)
		for _, s := range res.TablesSkipped {
			tw.Append([]string{s.Table, s.Kind, s.Reason})
		}
		tw.Render()
	}
	return nil
}

// WritePlanTable prints the tables a scan would sample, in dispatch order.
func WritePlanTable(w io.Writer, p *scanner.Plan) error {
	fmt.Fprintf(w, "Engine: %s  mode=%s  risk=%s  hosting=%s\n", p.Engine, p.Mode, p.RiskLevel, p.CloudProvider.Provider)
	fmt.Fprintf(w, "Strategy: %s  tables=%d/%d  rows/table=%d  workers=%d  est=%ds\n",
		p.Strategy.Type, p.Strategy.TargetTableCount, p.TotalTables,
		p.Strategy.SampleRowsPerTable, p.Strategy.WorkerCount, p.Strategy.EstimatedDurationSeconds)

	if len(p.Tables) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"#", "Table", "Priority", "Est. rows", "Sample"})
	for i, t := range p.Tables {
		est := "unknown"
		if t.EstimatedRows >= 0 {
			est = strconv.FormatInt(t.EstimatedRows, 10)
		}
		tw.Append([]string{
			strconv.Itoa(i + 1),
			t.Table,
			strconv.FormatFloat(t.Priority, 'f', 1, 64),
			est,
			strconv.Itoa(t.SampleRows),
		})
	}
	tw.Render()
	return nil
}

type findingKey struct {
	table, column, typ string
}

// findingRows collapses findings per (table, column, type) in first-seen
// order, which is dispatch order.
func findingRows(res *scanner.Result) [][]string {
	type agg struct {
		severity string
		count    int
		maxConf  float64
	}
	var order []findingKey
	groups := make(map[findingKey]*agg)
	for _, f := range res.Findings {
		k := findingKey{f.Table, f.Column, f.Type}
		g, ok := groups[k]
		if !ok {
			g = &agg{severity: string(f.Severity)}
			groups[k] = g
			order = append(order, k)
		}
		g.count++
		g.maxConf = max(g.maxConf, f.Confidence)
	}

	rows := make([][]string, 0, len(order))
	for _, k := range order {
		g := groups[k]
		rows = append(rows, []string{
			k.table, k.column, k.typ, g.severity,
			strconv.Itoa(g.count),
			strconv.FormatFloat(g.maxConf, 'f', 2, 64),
		})
	}
	return rows
}

// Upload stores the JSON report in bucket under prefix and Key, creating
// the bucket if needed, and returns a presigned download URL valid for ttl.
func Upload(ctx context.Context, store filestore.Store, bucket, prefix string, ttl time.Duration, res *scanner.Result) (string, error) {
	if res.ScanID == "" {
		return "", errs.New(errs.ErrKindInvalidInput, "result has no scan id")
	}

	var buf bytes.Buffer
	if err := WriteJSON(&buf, res); err != nil {
		return "", err
	}

	if err := store.EnsureBucket(ctx, bucket); err != nil {
		return "", err
	}
	key := filestore.ObjectKey(prefix, Key(res))
	if _, err := store.PutObject(ctx, bucket, key, &buf, int64(buf.Len()), "application/json"); err != nil {
		return "", err
	}
	return store.PresignGetURL(ctx, bucket, key, ttl)
}

// Key names a report object: date partition then scan id.
func Key(res *scanner.Result) string {
	return res.StartedAt.UTC().Format("2006/01/02") + "/" + res.ScanID + ".json"
}

// SeverityCounts returns "Critical=1 High=0 Medium=3 Low=0" for log lines
// and CLI footers.
func SeverityCounts(res *scanner.Result) string {
	var b bytes.Buffer
	for i, sev := range detect.Severities {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%d", sev, res.Summary.BySeverity[sev])
	}
	return b.String()
}
