package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// maxStatementParams is the bind-parameter limit of the Postgres wire
// protocol; DuckDB accepts the same placeholders.
const maxStatementParams = 65535

// Loader replaces warehouse tables inside a single transaction.
type Loader struct {
	db        *sql.DB
	chunkSize int
}

func NewLoader(db *sql.DB, chunkSize int) *Loader {
	if chunkSize <= 0 {
		chunkSize = 50_000
	}
	return &Loader{db: db, chunkSize: chunkSize}
}

// Replace drops table if it exists, recreates it from types and inserts
// every row of ds. Nothing is visible to readers until the commit.
func (l *Loader) Replace(ctx context.Context, table string, ds Dataset, types []ColumnType) (int, error) {
	if l == nil || l.db == nil {
		return 0, fmt.Errorf("loader database is not configured")
	}
	if len(types) != len(ds.Columns) {
		return 0, fmt.Errorf("got %d column types for %d columns", len(types), len(ds.Columns))
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin load tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(table)); err != nil {
		return 0, fmt.Errorf("drop table %s: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx, CreateTableStatement(table, ds.Columns, types)); err != nil {
		return 0, fmt.Errorf("create table %s: %w", table, err)
	}

	batch := l.rowsPerStatement(len(ds.Columns))
	inserted := 0
	for start := 0; start < len(ds.Rows); start += batch {
		end := min(start+batch, len(ds.Rows))
		args, err := bindArgs(ds.Rows[start:end], types)
		if err != nil {
			return 0, fmt.Errorf("convert rows %d-%d: %w", start+1, end, err)
		}
		stmt := InsertStatement(table, ds.Columns, end-start)
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return 0, fmt.Errorf("insert rows %d-%d into %s: %w", start+1, end, table, err)
		}
		inserted += end - start
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit load tx: %w", err)
	}
	return inserted, nil
}

func (l *Loader) rowsPerStatement(columns int) int {
	limit := maxStatementParams / max(columns, 1)
	return max(min(l.chunkSize, limit), 1)
}

// CreateTableStatement renders the CREATE TABLE for columns and types.
func CreateTableStatement(table string, columns []string, types []ColumnType) string {
	defs := make([]string, len(columns))
	for i, column := range columns {
		defs[i] = quoteIdent(column) + " " + string(types[i])
	}
	return "CREATE TABLE " + quoteIdent(table) + " (" + strings.Join(defs, ", ") + ")"
}

// InsertStatement renders a multi-row INSERT with numbered placeholders.
func InsertStatement(table string, columns []string, rows int) string {
	quoted := make([]string, len(columns))
	for i, column := range columns {
		quoted[i] = quoteIdent(column)
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(quoteIdent(table))
	b.WriteString(" (")
	b.WriteString(strings.Join(quoted, ", "))
	b.WriteString(") VALUES ")
	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range columns {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}

func bindArgs(rows [][]sql.NullString, types []ColumnType) ([]any, error) {
	args := make([]any, 0, len(rows)*len(types))
	for _, row := range rows {
		for c, cell := range row {
			value, err := Convert(cell, types[c])
			if err != nil {
				return nil, err
			}
			args = append(args, value)
		}
	}
	return args, nil
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
