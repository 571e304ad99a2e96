package mysql

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	gomysql "github.com/go-sql-driver/mysql"
	"github.com/koustreak/piiscan/internal/database"
	"github.com/koustreak/piiscan/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*Inspector, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	in := NewWithDB(db)
	t.Cleanup(func() {
		mock.ExpectClose()
		in.Close()
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return in, mock
}

func TestListTables(t *testing.T) {
	in, mock := newMock(t)

	mock.ExpectQuery(`FROM information_schema.tables`).
		WillReturnRows(sqlmock.NewRows([]string{"table_schema", "table_name", "table_rows"}).
			AddRow("crm", "customers", int64(12000)).
			AddRow("crm", "audit_log", nil).
			AddRow("crm", "empty_table", int64(0)))
	mock.ExpectQuery(`FROM information_schema.columns`).
		WillReturnRows(sqlmock.NewRows([]string{"table_schema", "table_name", "column_name", "data_type", "nullable"}).
			AddRow("crm", "audit_log", "id", "bigint", false).
			AddRow("crm", "customers", "id", "bigint", false).
			AddRow("crm", "customers", "email", "varchar", true))

	tables, err := in.ListTables(context.Background())
	require.NoError(t, err)
	require.Len(t, tables, 3)

	assert.Equal(t, "customers", tables[0].Name)
	assert.Equal(t, "crm", tables[0].Schema)
	assert.Equal(t, database.EngineMySQL, tables[0].Engine)
	assert.Equal(t, int64(12000), tables[0].EstimatedRows)
	assert.Equal(t, []string{"id", "email"}, tables[0].ColumnNames())
	assert.True(t, tables[0].Columns[1].Nullable)

	assert.Equal(t, database.UnknownRowCount, tables[1].EstimatedRows, "NULL table_rows is unknown")
	assert.Equal(t, database.UnknownRowCount, tables[2].EstimatedRows, "zero estimate is unknown")
	assert.Empty(t, tables[2].Columns)
}

func TestListTables_EmptyDatabaseSkipsColumnQuery(t *testing.T) {
	in, mock := newMock(t)

	mock.ExpectQuery(`FROM information_schema.tables`).
		WillReturnRows(sqlmock.NewRows([]string{"table_schema", "table_name", "table_rows"}))

	tables, err := in.ListTables(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestListTables_PermissionDenied(t *testing.T) {
	in, mock := newMock(t)

	mock.ExpectQuery(`FROM information_schema.tables`).
		WillReturnError(&gomysql.MySQLError{Number: 1142, Message: "SELECT command denied"})

	_, err := in.ListTables(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsPermissionDenied(err))
}

func TestSampleRows(t *testing.T) {
	in, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `crm`.`customers` LIMIT ?")).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "avatar"}).
			AddRow(int64(1), []byte("alice@example.com"), []byte{0xff, 0xfe}).
			AddRow(int64(2), nil, nil))

	sample, err := in.SampleRows(context.Background(), database.TableInfo{Schema: "crm", Name: "customers"}, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "email", "avatar"}, sample.Columns)
	require.Equal(t, 2, sample.Len())
	assert.Equal(t, "alice@example.com", sample.Rows[0][1])
	assert.Nil(t, sample.Rows[0][2], "binary values are dropped")
	assert.Nil(t, sample.Rows[1][1])
}

func TestSampleRows_MissingTable(t *testing.T) {
	in, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `crm`.`gone` LIMIT ?")).
		WithArgs(100).
		WillReturnError(&gomysql.MySQLError{Number: 1146, Message: "Table 'crm.gone' doesn't exist"})

	_, err := in.SampleRows(context.Background(), database.TableInfo{Schema: "crm", Name: "gone"}, 100)
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
	assert.Contains(t, err.Error(), "crm.gone")
}

func TestSampleRows_Timeout(t *testing.T) {
	in, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `crm`.`big` LIMIT ?")).
		WithArgs(100).
		WillReturnError(context.DeadlineExceeded)

	_, err := in.SampleRows(context.Background(), database.TableInfo{Schema: "crm", Name: "big"}, 100)
	assert.True(t, errs.IsTimeout(err))
}

func TestBuildDSN(t *testing.T) {
	cfg := database.DefaultConfig(database.EngineMySQL)
	cfg.Host = "db.internal"
	cfg.User = "scanner"
	cfg.Password = "p@ss:word"
	cfg.Database = "crm"
	cfg.SSLMode = "disable"

	dsn, err := buildDSN(cfg)
	require.NoError(t, err)

	parsed, err := gomysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "db.internal:3306", parsed.Addr)
	assert.Equal(t, "p@ss:word", parsed.Passwd)
	assert.Equal(t, "crm", parsed.DBName)
	assert.True(t, parsed.ParseTime)
	assert.Equal(t, cfg.ConnectTimeout, parsed.Timeout)
}

func TestBuildDSN_RequiresDatabase(t *testing.T) {
	cfg := database.DefaultConfig(database.EngineMySQL)
	cfg.DSN = "scanner:secret@tcp(db.internal:3306)/"

	_, err := buildDSN(cfg)
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestHostFromDSN(t *testing.T) {
	host, err := hostFromDSN("u:p@tcp(crm.cluster-abc.eu-central-1.rds.amazonaws.com:3306)/crm")
	require.NoError(t, err)
	assert.Equal(t, "crm.cluster-abc.eu-central-1.rds.amazonaws.com", host)

	host, err = hostFromDSN("u:p@unix(/cloudsql/proj:europe-west1:crm)/crm")
	require.NoError(t, err)
	assert.Equal(t, "/cloudsql/proj:europe-west1:crm", host)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.ErrKind
	}{
		{"access denied", &gomysql.MySQLError{Number: 1045}, errs.ErrKindConnectionFailed},
		{"unknown database", &gomysql.MySQLError{Number: 1049}, errs.ErrKindConnectionFailed},
		{"table denied", &gomysql.MySQLError{Number: 1142}, errs.ErrKindPermissionDenied},
		{"no such table", &gomysql.MySQLError{Number: 1146}, errs.ErrKindNotFound},
		{"max execution time", &gomysql.MySQLError{Number: 3024}, errs.ErrKindTimeout},
		{"syntax", &gomysql.MySQLError{Number: 1064}, errs.ErrKindQueryFailed},
		{"cancelled", context.Canceled, errs.ErrKindCancelled},
		{"bad conn", gomysql.ErrInvalidConn, errs.ErrKindConnectionFailed},
		{"other", errors.New("broken pipe"), errs.ErrKindConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mapError(tt.err, "op").Kind)
		})
	}
	assert.Nil(t, mapError(nil, "op"))
}
