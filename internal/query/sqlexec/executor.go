// Package sqlexec runs generated SELECT statements against the warehouse.
package sqlexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/duckmesh/tabletalk/internal/query"
	"github.com/duckmesh/tabletalk/internal/warehouse"
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type Executor struct {
	db           queryer
	retry        warehouse.RetryPolicy
	queryTimeout time.Duration
}

func New(db *sql.DB, retry warehouse.RetryPolicy, queryTimeout time.Duration) *Executor {
	return &Executor{db: db, retry: retry, queryTimeout: queryTimeout}
}

type scanned struct {
	columns []string
	rows    []query.Row
}

func (e *Executor) Run(ctx context.Context, request query.Request) (query.Result, error) {
	sqlText := query.StripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return query.Result{}, &query.ExecutionError{Err: fmt.Errorf("sql is required")}
	}
	if e.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.queryTimeout)
		defer cancel()
	}

	start := time.Now()
	out, err := warehouse.Retry(ctx, e.retry, func() (scanned, error) {
		rows, err := e.db.QueryContext(ctx, sqlText)
		if err != nil {
			return scanned{}, err
		}
		defer func() { _ = rows.Close() }()
		columns, records, err := query.ScanRows(rows)
		if err != nil {
			return scanned{}, err
		}
		return scanned{columns: columns, rows: records}, nil
	})
	if err != nil {
		var execErr *query.ExecutionError
		if errors.As(err, &execErr) {
			return query.Result{}, execErr
		}
		return query.Result{}, &query.DatabaseError{Err: err, Transient: warehouse.IsTransient(err)}
	}

	return query.Result{
		Columns:  out.columns,
		Rows:     out.rows,
		Duration: time.Since(start),
	}, nil
}
