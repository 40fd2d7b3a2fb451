package query

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Row is one result record keyed by column name.
type Row map[string]any

type Request struct {
	SQL string
	// Table names the table the SQL targets. Engines that materialize data
	// per table need it; the warehouse executor ignores it.
	Table string
}

type Result struct {
	Columns  []string
	Rows     []Row
	Duration time.Duration
}

// String renders the rows as a JSON array of objects, the form handed to
// the summarizer. An empty result renders as "[]".
func (r Result) String() string {
	if len(r.Rows) == 0 {
		return "[]"
	}
	encoded, err := json.Marshal(r.Rows)
	if err != nil {
		return fmt.Sprint(r.Rows)
	}
	return string(encoded)
}

type Executor interface {
	Run(ctx context.Context, request Request) (Result, error)
}

// DatabaseError is a failure reported by the database driver. Transient is
// set for connection-level failures that were retried before giving up.
type DatabaseError struct {
	Err       error
	Transient bool
}

func (e *DatabaseError) Error() string {
	return "database error: " + e.Err.Error()
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// ExecutionError covers failures outside the driver: empty statements,
// unreadable values, snapshots that cannot be loaded.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string {
	return "execution error: " + e.Err.Error()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
