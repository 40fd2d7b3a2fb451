// Package sqlcatalog reads table listings and column metadata from the
// warehouse's information_schema.
package sqlcatalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/duckmesh/tabletalk/internal/catalog"
	"github.com/duckmesh/tabletalk/internal/warehouse"
)

const listTablesQuery = `
SELECT table_name
FROM information_schema.tables
WHERE table_type = 'BASE TABLE'
  AND table_schema = current_schema()
ORDER BY table_name`

const getSchemaQuery = `
SELECT column_name, data_type
FROM information_schema.columns
WHERE table_schema = current_schema()
  AND table_name = $1
ORDER BY ordinal_position`

type dbTX interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PingContext(ctx context.Context) error
}

type Repository struct {
	db    dbTX
	retry warehouse.RetryPolicy
}

func NewRepository(db *sql.DB, retry warehouse.RetryPolicy) *Repository {
	return &Repository{db: db, retry: retry}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping warehouse db: %w", err)
	}
	return nil
}

// ListTables returns user tables in the current schema, hiding the
// service's own bookkeeping tables.
func (r *Repository) ListTables(ctx context.Context) ([]string, error) {
	tables, err := warehouse.Retry(ctx, r.retry, func() ([]string, error) {
		rows, err := r.db.QueryContext(ctx, listTablesQuery)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		out := make([]string, 0)
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return nil, err
			}
			if catalog.IsInternalTable(name) {
				continue
			}
			out = append(out, name)
		}
		return out, rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return tables, nil
}

func (r *Repository) GetSchema(ctx context.Context, table string) (catalog.Schema, error) {
	table = strings.TrimSpace(table)
	if table == "" {
		return catalog.Schema{}, catalog.ErrNotFound
	}
	columns, err := warehouse.Retry(ctx, r.retry, func() ([]catalog.Column, error) {
		rows, err := r.db.QueryContext(ctx, getSchemaQuery, table)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		out := make([]catalog.Column, 0)
		for rows.Next() {
			var column catalog.Column
			if err := rows.Scan(&column.Name, &column.Type); err != nil {
				return nil, err
			}
			out = append(out, column)
		}
		return out, rows.Err()
	})
	if err != nil {
		return catalog.Schema{}, fmt.Errorf("get schema for %s: %w", table, err)
	}
	if len(columns) == 0 {
		return catalog.Schema{}, catalog.ErrNotFound
	}
	return catalog.Schema{Table: table, Columns: columns}, nil
}
