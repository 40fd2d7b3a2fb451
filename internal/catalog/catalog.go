package catalog

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

var ErrNotFound = errors.New("catalog: not found")

// InternalTablePrefix marks service-owned tables that are never offered to
// the model as query targets.
const InternalTablePrefix = "tabletalk_"

type Catalog interface {
	ListTables(ctx context.Context) ([]string, error)
	GetSchema(ctx context.Context, table string) (Schema, error)
}

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type Schema struct {
	Table   string   `json:"table"`
	Columns []Column `json:"columns"`
}

// Describe renders the column-to-type mapping in ordinal order, the compact
// form used inside prompts.
func (s Schema) Describe() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, column := range s.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.Quote(column.Name))
		b.WriteString(": ")
		b.WriteString(strconv.Quote(column.Type))
	}
	b.WriteByte('}')
	return b.String()
}

func (s Schema) ColumnNames() []string {
	names := make([]string, 0, len(s.Columns))
	for _, column := range s.Columns {
		names = append(names, column.Name)
	}
	return names
}

func (s Schema) ColumnList() string {
	return strings.Join(s.ColumnNames(), ", ")
}

func IsInternalTable(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), InternalTablePrefix)
}
