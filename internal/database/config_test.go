package database

import (
	"context"
	"testing"
	"time"

	"github.com/koustreak/piiscan/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEngine(t *testing.T) {
	aliases := map[string]Engine{
		"postgres":   EnginePostgres,
		"PostgreSQL": EnginePostgres,
		" pg ":       EnginePostgres,
		"mysql":      EngineMySQL,
		"MariaDB":    EngineMySQL,
		"mssql":      EngineSQLServer,
		"azuresql":   EngineSQLServer,
		"redshift":   EngineRedshift,
	}
	for in, want := range aliases {
		got, err := ParseEngine(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseEngine("oracle")
	assert.True(t, errs.IsUnsupported(err))

	_, err = ParseEngine("")
	assert.True(t, errs.IsInvalidInput(err))
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{Engine: "postgresql", Host: "localhost"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, EnginePostgres, cfg.Engine, "engine is normalised")

	assert.True(t, errs.IsInvalidInput((&Config{Engine: "postgres"}).Validate()))
	assert.True(t, errs.IsInvalidInput((&Config{Engine: "mysql", Host: "db"}).Validate()))
	assert.True(t, errs.IsInvalidInput((&Config{Engine: "postgres", Host: "db", Port: 70000}).Validate()))
	assert.True(t, errs.IsInvalidInput((&Config{Engine: "postgres", Host: "db", MaxConns: 1, MinConns: 2}).Validate()))
	assert.True(t, errs.IsUnsupported((&Config{Engine: "db2", Host: "db"}).Validate()))

	var nilCfg *Config
	assert.True(t, errs.IsInvalidInput(nilCfg.Validate()))
}

func TestConfigEffective(t *testing.T) {
	cfg := &Config{Engine: EngineMySQL, MaxConns: 2, QueryTimeout: time.Second}
	eff := cfg.Effective()

	assert.Equal(t, int32(2), eff.MaxConns)
	assert.Equal(t, int32(1), eff.MinConns)
	assert.Equal(t, time.Second, eff.QueryTimeout)
	assert.Equal(t, 10*time.Second, eff.ConnectTimeout)
	assert.Equal(t, int32(0), cfg.MinConns, "original is not mutated")
}

func TestWithQueryTimeout(t *testing.T) {
	ctx, cancel := WithQueryTimeout(context.Background(), time.Minute)
	defer cancel()
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)

	ctx, cancel = WithQueryTimeout(context.Background(), 0)
	defer cancel()
	_, ok = ctx.Deadline()
	assert.False(t, ok, "zero leaves the context unbounded")
}

func TestPortOrDefault(t *testing.T) {
	assert.Equal(t, 5432, (&Config{Engine: EnginePostgres}).PortOrDefault())
	assert.Equal(t, 3306, (&Config{Engine: EngineMySQL}).PortOrDefault())
	assert.Equal(t, 1433, (&Config{Engine: EngineSQLServer}).PortOrDefault())
	assert.Equal(t, 5439, (&Config{Engine: EngineRedshift}).PortOrDefault())
	assert.Equal(t, 6000, (&Config{Engine: EngineRedshift, Port: 6000}).PortOrDefault())
}

func TestOpen_RejectsBeforeConnecting(t *testing.T) {
	_, err := Open(context.Background(), &Config{Engine: "oracle", Host: "db"})
	assert.True(t, errs.IsUnsupported(err))

	_, err = Open(context.Background(), &Config{Engine: "postgres"})
	assert.True(t, errs.IsInvalidInput(err))
}

func TestLookup_Unregistered(t *testing.T) {
	// No engine subpackage is imported by this package's tests.
	_, err := Lookup(EnginePostgres)
	assert.True(t, errs.IsUnsupported(err))
}

func TestAttachColumns(t *testing.T) {
	tables := []TableInfo{{Schema: "a", Name: "t1"}, {Name: "t2"}}
	cols := []CatalogColumn{
		{Schema: "a", Table: "t1", Column: ColumnInfo{Name: "id"}},
		{Table: "t2", Column: ColumnInfo{Name: "x"}},
		{Schema: "a", Table: "t1", Column: ColumnInfo{Name: "email"}},
		{Schema: "b", Table: "t1", Column: ColumnInfo{Name: "ghost"}},
	}

	out := AttachColumns(tables, cols)
	assert.Equal(t, []string{"id", "email"}, out[0].ColumnNames())
	assert.Equal(t, []string{"x"}, out[1].ColumnNames())
}

func TestNormalizeEstimate(t *testing.T) {
	assert.Equal(t, UnknownRowCount, NormalizeEstimate(-1))
	assert.Equal(t, UnknownRowCount, NormalizeEstimate(0))
	assert.Equal(t, int64(42), NormalizeEstimate(42))
}
