package scanner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koustreak/piiscan/internal/database"
	"github.com/koustreak/piiscan/internal/detect"
)

// behaviour of one table in fakeSampler.
type behaviour struct {
	rows   [][]any
	cols   []string
	err    error
	block  bool // wait for ctx to be done
	panics bool
	delay  time.Duration
}

type fakeSampler struct {
	mu      sync.Mutex
	tables  map[string]behaviour
	order   []string
	sizes   map[string]int
	active  atomic.Int32
	maxSeen atomic.Int32
	closed  atomic.Bool
}

func newFakeSampler(tables map[string]behaviour) *fakeSampler {
	return &fakeSampler{tables: tables, sizes: map[string]int{}}
}

func (f *fakeSampler) SampleRows(ctx context.Context, t database.TableInfo, n int) (*database.Sample, error) {
	cur := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if cur <= seen || f.maxSeen.CompareAndSwap(seen, cur) {
			break
		}
	}

	name := t.QualifiedName()
	f.mu.Lock()
	f.order = append(f.order, name)
	f.sizes[name] = n
	b := f.tables[name]
	f.mu.Unlock()

	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if b.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if b.panics {
		panic("driver bug")
	}
	if b.err != nil {
		return nil, b.err
	}
	cols := b.cols
	if cols == nil {
		cols = []string{"value"}
	}
	rows := b.rows
	if len(rows) > n {
		rows = rows[:n]
	}
	return &database.Sample{Columns: cols, Rows: rows}, nil
}

func (f *fakeSampler) dispatched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

// fakeInspector adds catalog and lifecycle methods to fakeSampler.
type fakeInspector struct {
	*fakeSampler
	engine  database.Engine
	catalog []database.TableInfo
	listErr error
}

func (f *fakeInspector) Engine() database.Engine        { return f.engine }
func (f *fakeInspector) Ping(ctx context.Context) error { return nil }
func (f *fakeInspector) Close()                         { f.closed.Store(true) }

func (f *fakeInspector) ListTables(ctx context.Context) ([]database.TableInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.catalog, nil
}

// emailDetector flags any value containing '@'.
var emailDetector = detect.Func(func(value, column string) ([]detect.Detection, error) {
	for _, r := range value {
		if r == '@' {
			return []detect.Detection{{Type: "email", Severity: detect.SeverityMedium, Confidence: 0.9}}, nil
		}
	}
	return nil, nil
})

var errDetector = errors.New("model unavailable")

func table(name string, priority float64, rows int64) database.TableInfo {
	return database.TableInfo{Name: name, Priority: priority, EstimatedRows: rows, Engine: database.EnginePostgres}
}

func emails(n int) [][]any {
	out := make([][]any, n)
	for i := range out {
		out[i] = []any{"user@example.com"}
	}
	return out
}
