package database

import (
	"testing"

	"github.com/koustreak/piiscan/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectBuilder_Dialects(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		want    string
	}{
		{"postgres", DialectPostgres, `SELECT * FROM "public"."users" LIMIT $1`},
		{"mysql", DialectMySQL, "SELECT * FROM `public`.`users` LIMIT ?"},
		{"sqlserver", DialectSQLServer, "SELECT TOP (@p1) * FROM [public].[users]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := Select("users", tt.dialect).InSchema("public").Limit(200).Build()
			require.NoError(t, err)
			assert.Equal(t, tt.want, sql)
			assert.Equal(t, []any{200}, args)
		})
	}
}

func TestSelectBuilder_QuotesEmbeddedDelimiters(t *testing.T) {
	sql, _, err := Select(`we"ird`, DialectPostgres).Build()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "we""ird"`, sql)

	sql, _, err = Select("a`b", DialectMySQL).Build()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `a``b`", sql)

	sql, _, err = Select("x]y", DialectSQLServer).Build()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM [x]]y]", sql)
}

func TestSelectBuilder_Columns(t *testing.T) {
	sql, args, err := Select("patients", DialectPostgres).Columns("id", "bsn").Build()
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id", "bsn" FROM "patients"`, sql)
	assert.Empty(t, args)
}

func TestSelectBuilder_Invalid(t *testing.T) {
	_, _, err := Select(" ", DialectPostgres).Build()
	assert.True(t, errs.IsInvalidInput(err))

	_, _, err = Select("t", DialectMySQL).Limit(-1).Build()
	assert.True(t, errs.IsInvalidInput(err))
}
