package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/koustreak/piiscan/internal/cloud"
	"github.com/koustreak/piiscan/internal/database"
	"github.com/koustreak/piiscan/internal/detect"
	"github.com/koustreak/piiscan/internal/errs"
	"github.com/koustreak/piiscan/internal/metrics"
	"github.com/koustreak/piiscan/internal/priority"
	"github.com/koustreak/piiscan/internal/risk"
	"github.com/koustreak/piiscan/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func catalog() []database.TableInfo {
	return []database.TableInfo{
		{Schema: "public", Name: "audit_log", EstimatedRows: 500, Columns: []database.ColumnInfo{{Name: "id"}, {Name: "message"}}},
		{Schema: "public", Name: "customers", EstimatedRows: 120, Columns: []database.ColumnInfo{{Name: "id"}, {Name: "email"}, {Name: "bsn"}}},
		{Schema: "public", Name: "products", EstimatedRows: 40, Columns: []database.ColumnInfo{{Name: "id"}, {Name: "title"}}},
	}
}

func newTestScanner(insp *fakeInspector, opened *int) *Scanner {
	return &Scanner{
		Open: func(ctx context.Context, cfg *database.Config) (database.Inspector, error) {
			if opened != nil {
				*opened++
			}
			return insp, nil
		},
		Detector: detect.NewPatternDetector(),
		Scorer:   priority.NewDefault(),
	}
}

func TestScan_EndToEnd(t *testing.T) {
	insp := &fakeInspector{
		engine:  database.EnginePostgres,
		catalog: catalog(),
		fakeSampler: newFakeSampler(map[string]behaviour{
			"public.customers": {
				cols: []string{"id", "email", "bsn"},
				rows: [][]any{{1, "ann@example.com", "111222333"}, {2, "bob@example.com", nil}},
			},
			"public.audit_log": {cols: []string{"id", "message"}, rows: [][]any{{1, "login ok"}}},
			"public.products":  {err: errs.New(errs.ErrKindPermissionDenied, "denied")},
		}),
	}
	cfg := &database.Config{
		Engine:   database.EnginePostgres,
		Host:     "mycluster-ro-1.abcdefg.eu-west-1.rds.amazonaws.com",
		Database: "shop",
	}

	res, err := newTestScanner(insp, nil).Scan(context.Background(), cfg, Options{})
	require.NoError(t, err)

	assert.NotEmpty(t, res.ScanID)
	assert.Equal(t, database.EnginePostgres, res.Engine)
	assert.Equal(t, "shop", res.Database)
	assert.Equal(t, strategy.ModeSmart, res.Mode)
	assert.Equal(t, strategy.Balanced, res.Strategy.Type)
	assert.Equal(t, 3, res.Strategy.TargetTableCount)

	assert.Equal(t, 2, res.TablesScanned)
	require.Len(t, res.TablesSkipped, 1)
	assert.Equal(t, "public.products", res.TablesSkipped[0].Table)
	assert.Equal(t, "public.customers", res.Tables[0].Table, "highest priority table is dispatched first")

	scanned := map[string]bool{}
	for _, tr := range res.Tables {
		scanned[tr.Table] = true
	}
	for _, f := range res.Findings {
		assert.True(t, scanned[f.Table], "finding references unscanned table %s", f.Table)
	}
	assert.Len(t, res.Findings, 3)

	wantRisk, wantCompliance := risk.Aggregate(res.Findings, res.TablesScanned)
	assert.Equal(t, wantRisk, res.RiskScore)
	assert.Equal(t, wantCompliance, res.ComplianceScore)
	assert.Equal(t, 1, res.Summary.BySeverity[detect.SeverityCritical])

	assert.Equal(t, cloud.ProviderAWS, res.CloudProvider.Provider)
	assert.Equal(t, "eu-west-1", res.CloudProvider.Region)
	assert.False(t, res.Cancelled)
	assert.True(t, insp.closed.Load(), "inspector must be closed")
}

func TestScan_ResultJSONFields(t *testing.T) {
	insp := &fakeInspector{engine: database.EngineMySQL, catalog: catalog(), fakeSampler: newFakeSampler(nil)}
	cfg := &database.Config{Engine: database.EngineMySQL, Host: "10.0.0.5", Database: "shop"}

	res, err := newTestScanner(insp, nil).Scan(context.Background(), cfg, Options{Mode: "fast"})
	require.NoError(t, err)

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))

	for _, key := range []string{"scanId", "tablesScanned", "tablesSkipped", "findings", "riskScore", "complianceScore", "elapsedSeconds", "cloudProvider", "strategy", "summary"} {
		assert.Contains(t, doc, key)
	}
	assert.Equal(t, "on-premise", doc["cloudProvider"].(map[string]any)["provider"])
	assert.Equal(t, "comprehensive", doc["strategy"].(map[string]any)["type"])
	assert.Equal(t, 100.0, doc["complianceScore"])
}

func TestScan_FatalErrors(t *testing.T) {
	tests := []struct {
		name     string
		cfg      *database.Config
		opts     Options
		open     OpenFunc
		wantKind errs.ErrKind
		opened   bool
	}{
		{
			name:     "unsupported mode",
			cfg:      &database.Config{Engine: database.EnginePostgres, Host: "db"},
			opts:     Options{Mode: "turbo"},
			wantKind: errs.ErrKindUnsupported,
		},
		{
			name:     "negative max tables",
			cfg:      &database.Config{Engine: database.EnginePostgres, Host: "db"},
			opts:     Options{MaxTables: -1},
			wantKind: errs.ErrKindInvalidInput,
		},
		{
			name:     "nil config",
			wantKind: errs.ErrKindInvalidInput,
		},
		{
			name: "connection failure",
			cfg:  &database.Config{Engine: database.EnginePostgres, Host: "db"},
			open: func(ctx context.Context, cfg *database.Config) (database.Inspector, error) {
				return nil, errs.Wrap(errs.ErrKindConnectionFailed, "ping failed", fmt.Errorf("refused"))
			},
			wantKind: errs.ErrKindConnectionFailed,
			opened:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opened := false
			s := &Scanner{Open: func(ctx context.Context, cfg *database.Config) (database.Inspector, error) {
				opened = true
				if tt.open != nil {
					return tt.open(ctx, cfg)
				}
				return &fakeInspector{engine: database.EnginePostgres, fakeSampler: newFakeSampler(nil)}, nil
			}}

			res, err := s.Scan(context.Background(), tt.cfg, tt.opts)
			assert.Nil(t, res)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, errs.KindOf(err))
			assert.Equal(t, tt.opened, opened)
		})
	}
}

func TestScan_CatalogFailureIsFatalAndCloses(t *testing.T) {
	insp := &fakeInspector{
		engine:      database.EngineSQLServer,
		listErr:     errs.New(errs.ErrKindPermissionDenied, "VIEW DEFINITION denied"),
		fakeSampler: newFakeSampler(nil),
	}
	cfg := &database.Config{Engine: database.EngineSQLServer, Host: "srv.database.windows.net"}

	res, err := newTestScanner(insp, nil).Scan(context.Background(), cfg, Options{})
	assert.Nil(t, res)
	assert.True(t, errs.IsPermissionDenied(err))
	assert.True(t, insp.closed.Load())
}

func TestScan_CancelledReturnsPartialResult(t *testing.T) {
	insp := &fakeInspector{engine: database.EnginePostgres, catalog: catalog(), fakeSampler: newFakeSampler(nil)}
	cfg := &database.Config{Engine: database.EnginePostgres, Host: "localhost"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newTestScanner(insp, nil).Scan(ctx, cfg, Options{})
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Equal(t, 0, res.TablesScanned)
	assert.Len(t, res.TablesSkipped, 3)
	assert.Equal(t, 100.0, res.ComplianceScore)
}

// lateCancel cancels the scan context as soon as the first table outcome is
// recorded, which happens only after every worker has returned.
type lateCancel struct {
	cancel context.CancelFunc
	status string
}

func (r *lateCancel) TableDone(engine, outcome string, elapsed time.Duration) { r.cancel() }
func (r *lateCancel) Finding(findingType, severity string)                     {}
func (r *lateCancel) ScanDone(engine, status string, elapsed time.Duration)    { r.status = status }

func TestScan_CancelAfterAllTablesIsNotPartial(t *testing.T) {
	insp := &fakeInspector{engine: database.EnginePostgres, catalog: catalog(), fakeSampler: newFakeSampler(nil)}
	cfg := &database.Config{Engine: database.EnginePostgres, Host: "localhost"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &lateCancel{cancel: cancel}
	sc := newTestScanner(insp, nil)
	sc.Metrics = rec

	res, err := sc.Scan(ctx, cfg, Options{})
	require.NoError(t, err)
	require.Error(t, ctx.Err())

	assert.Equal(t, 3, res.TablesScanned)
	assert.Empty(t, res.TablesSkipped)
	assert.False(t, res.Cancelled, "every selected table was scanned")
	assert.Equal(t, metrics.StatusOK, rec.status)
}

func TestScan_MaxTables(t *testing.T) {
	insp := &fakeInspector{engine: database.EnginePostgres, catalog: catalog(), fakeSampler: newFakeSampler(nil)}
	cfg := &database.Config{Engine: database.EnginePostgres, Host: "localhost"}

	res, err := newTestScanner(insp, nil).Scan(context.Background(), cfg, Options{MaxTables: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Strategy.TargetTableCount)
	assert.Equal(t, 1, res.TablesScanned)
	assert.Equal(t, []string{"public.customers"}, insp.dispatched())
}

func TestPlan_DoesNotSample(t *testing.T) {
	insp := &fakeInspector{engine: database.EnginePostgres, catalog: catalog(), fakeSampler: newFakeSampler(nil)}
	cfg := &database.Config{Engine: database.EnginePostgres, Host: "/cloudsql/proj:europe-west4:db"}

	opened := 0
	plan, err := newTestScanner(insp, &opened).Plan(context.Background(), cfg, Options{Mode: "deep"})
	require.NoError(t, err)

	assert.Equal(t, 1, opened)
	assert.Empty(t, insp.dispatched())
	assert.True(t, insp.closed.Load())

	assert.Equal(t, strategy.PriorityDeep, plan.Strategy.Type)
	assert.Equal(t, 3, plan.TotalTables)
	assert.Equal(t, int64(660), plan.EstimatedTotalRows)
	require.Len(t, plan.Tables, 3)
	assert.Equal(t, "public.customers", plan.Tables[0].Table)
	assert.Equal(t, 120, plan.Tables[0].SampleRows)
	assert.Equal(t, 40, plan.Tables[2].SampleRows)
	assert.Equal(t, cloud.ProviderGCP, plan.CloudProvider.Provider)
}

func TestOptions_Validate(t *testing.T) {
	assert.NoError(t, Options{}.Validate())
	assert.NoError(t, Options{Mode: "DEEP", MaxTables: 10, QueriesPerSecond: 2}.Validate())
	assert.True(t, errs.IsUnsupported(Options{Mode: "x"}.Validate()))
	assert.True(t, errs.IsInvalidInput(Options{TableTimeout: -1}.Validate()))
	assert.True(t, errs.IsInvalidInput(Options{QueriesPerSecond: -1}.Validate()))
}
