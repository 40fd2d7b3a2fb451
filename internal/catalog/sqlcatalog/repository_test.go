package sqlcatalog

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/duckmesh/tabletalk/internal/catalog"
	"github.com/duckmesh/tabletalk/internal/warehouse"
)

func TestListTablesHidesInternalTables(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db, zeroRetry(3))

	mock.ExpectQuery(regexp.QuoteMeta(listTablesQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).
			AddRow("orders").
			AddRow("reviews").
			AddRow("tabletalk_schema_migrations").
			AddRow("tabletalk_turn_log"))

	tables, err := repo.ListTables(context.Background())
	if err != nil {
		t.Fatalf("ListTables() error = %v", err)
	}
	if len(tables) != 2 || tables[0] != "orders" || tables[1] != "reviews" {
		t.Fatalf("tables = %v", tables)
	}
	assertSQLMock(t, mock)
}

func TestListTablesRetriesDroppedConnection(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db, zeroRetry(3))

	mock.ExpectQuery(regexp.QuoteMeta(listTablesQuery)).WillReturnError(&pgconn.PgError{Code: "08006", Message: "connection failure"})
	mock.ExpectQuery(regexp.QuoteMeta(listTablesQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("reviews"))

	tables, err := repo.ListTables(context.Background())
	if err != nil {
		t.Fatalf("ListTables() error = %v", err)
	}
	if len(tables) != 1 {
		t.Fatalf("tables = %v", tables)
	}
	assertSQLMock(t, mock)
}

func TestListTablesDoesNotRetryQueryErrors(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db, zeroRetry(3))

	mock.ExpectQuery(regexp.QuoteMeta(listTablesQuery)).WillReturnError(errors.New("permission denied"))

	if _, err := repo.ListTables(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	assertSQLMock(t, mock)
}

func TestGetSchemaReturnsOrderedColumns(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db, zeroRetry(1))

	mock.ExpectQuery(regexp.QuoteMeta(getSchemaQuery)).
		WithArgs("reviews").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type"}).
			AddRow("userid", "bigint").
			AddRow("usergender", "text").
			AddRow("reviewrating", "double precision"))

	schema, err := repo.GetSchema(context.Background(), "reviews")
	if err != nil {
		t.Fatalf("GetSchema() error = %v", err)
	}
	if schema.Table != "reviews" || len(schema.Columns) != 3 {
		t.Fatalf("schema = %+v", schema)
	}
	if schema.Columns[2] != (catalog.Column{Name: "reviewrating", Type: "double precision"}) {
		t.Fatalf("Columns[2] = %+v", schema.Columns[2])
	}
	assertSQLMock(t, mock)
}

func TestGetSchemaMissingTable(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db, zeroRetry(1))

	mock.ExpectQuery(regexp.QuoteMeta(getSchemaQuery)).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type"}))

	_, err := repo.GetSchema(context.Background(), "ghost")
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("GetSchema() error = %v, want ErrNotFound", err)
	}
	assertSQLMock(t, mock)
}

func TestHealthCheckPings(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	mock.ExpectPing().WillReturnError(errors.New("down"))

	repo := NewRepository(db, zeroRetry(1))
	if err := repo.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected ping error")
	}
	assertSQLMock(t, mock)
}

func zeroRetry(attempts int) warehouse.RetryPolicy {
	return warehouse.RetryPolicy{
		Attempts:   attempts,
		NewBackOff: func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	}
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
