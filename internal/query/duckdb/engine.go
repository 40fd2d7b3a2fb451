// Package duckdb runs questions against a table's published Parquet
// snapshot inside an in-process DuckDB, leaving the warehouse untouched.
package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marcboeker/go-duckdb/v2"

	"github.com/duckmesh/tabletalk/internal/query"
	"github.com/duckmesh/tabletalk/internal/storage"
)

type Engine struct {
	Store storage.ObjectStore
}

func NewEngine(store storage.ObjectStore) *Engine {
	return &Engine{Store: store}
}

func (e *Engine) Run(ctx context.Context, request query.Request) (query.Result, error) {
	sqlText := query.StripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return query.Result{}, executionErr("sql is required")
	}
	if strings.TrimSpace(request.Table) == "" {
		return query.Result{}, executionErr("table is required for snapshot queries")
	}
	if e.Store == nil {
		return query.Result{}, executionErr("object store is required")
	}

	start := time.Now()
	workDir, err := os.MkdirTemp("", "tabletalk-snapshot-")
	if err != nil {
		return query.Result{}, &query.ExecutionError{Err: fmt.Errorf("create query temp dir: %w", err)}
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	localPath, err := e.download(ctx, request.Table, workDir)
	if err != nil {
		return query.Result{}, &query.ExecutionError{Err: err}
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return query.Result{}, &query.DatabaseError{Err: fmt.Errorf("open duckdb: %w", err)}
	}
	defer func() { _ = db.Close() }()

	viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)`, quoteIdent(request.Table), quoteString(localPath))
	if _, err := db.ExecContext(ctx, viewSQL); err != nil {
		return query.Result{}, &query.ExecutionError{Err: fmt.Errorf("create view for table %q: %w", request.Table, err)}
	}

	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, &query.DatabaseError{Err: err}
	}
	defer func() { _ = rows.Close() }()

	columns, records, err := query.ScanRows(rows)
	if err != nil {
		var execErr *query.ExecutionError
		if errors.As(err, &execErr) {
			return query.Result{}, execErr
		}
		return query.Result{}, &query.DatabaseError{Err: err}
	}
	for _, record := range records {
		for column, value := range record {
			record[column] = normalizeDuckValue(value)
		}
	}

	return query.Result{
		Columns:  columns,
		Rows:     records,
		Duration: time.Since(start),
	}, nil
}

func (e *Engine) download(ctx context.Context, table, workDir string) (string, error) {
	key, err := storage.BuildSnapshotPath(table)
	if err != nil {
		return "", err
	}
	info, err := e.Store.Stat(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return "", fmt.Errorf("no snapshot published for table %q", table)
		}
		return "", fmt.Errorf("stat snapshot %q: %w", key, err)
	}
	if info.Size <= 0 {
		return "", fmt.Errorf("snapshot for table %q is empty", table)
	}

	reader, err := e.Store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return "", fmt.Errorf("snapshot for table %q was removed during download", table)
		}
		return "", fmt.Errorf("get snapshot %q: %w", key, err)
	}
	defer func() { _ = reader.Close() }()

	localPath := filepath.Join(workDir, sanitizeFileComponent(table)+".parquet")
	if err := saveSnapshot(localPath, reader, info.Size); err != nil {
		return "", fmt.Errorf("save snapshot %q: %w", key, err)
	}
	return localPath, nil
}

// saveSnapshot copies the object to path and fails when the byte count
// differs from the size reported by Stat, which happens when an upload
// replaces the snapshot mid-download.
func saveSnapshot(path string, reader io.Reader, size int64) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	written, err := io.Copy(file, reader)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	if written != size {
		return fmt.Errorf("read %d bytes, want %d", written, size)
	}
	return nil
}

func normalizeDuckValue(value any) any {
	switch typed := value.(type) {
	case duckdb.Decimal:
		return typed.Float64()
	default:
		return value
	}
}

func executionErr(message string) error {
	return &query.ExecutionError{Err: errors.New(message)}
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "table"
	}
	return value
}
