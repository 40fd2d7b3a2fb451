package ingest

import (
	"bytes"
	"database/sql"
	"fmt"

	"github.com/parquet-go/parquet-go"
)

// EncodeParquet writes ds as a single Parquet file whose columns are all
// optional and typed after types.
func EncodeParquet(table string, ds Dataset, types []ColumnType) ([]byte, error) {
	if len(types) != len(ds.Columns) {
		return nil, fmt.Errorf("got %d column types for %d columns", len(types), len(ds.Columns))
	}

	group := parquet.Group{}
	for i, column := range ds.Columns {
		group[column] = parquet.Optional(parquetNode(types[i]))
	}
	schema := parquet.NewSchema(table, group)

	// Group fields are laid out by the schema, not by upload order.
	leafIndex := make(map[string]int, len(ds.Columns))
	for i, path := range schema.Columns() {
		leafIndex[path[0]] = i
	}
	order := make([]int, len(ds.Columns))
	for i, column := range ds.Columns {
		order[leafIndex[column]] = i
	}

	rows := make([]parquet.Row, 0, len(ds.Rows))
	for r, record := range ds.Rows {
		row := make(parquet.Row, len(order))
		for leaf, c := range order {
			value, err := parquetValue(record[c], types[c])
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", r+1, ds.Columns[c], err)
			}
			row[leaf] = value.Level(0, definitionLevel(record[c].Valid), leaf)
		}
		rows = append(rows, row)
	}

	buf := &bytes.Buffer{}
	writer := parquet.NewGenericWriter[any](buf, schema)
	if _, err := writer.WriteRows(rows); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func parquetNode(typ ColumnType) parquet.Node {
	switch typ {
	case TypeBigInt:
		return parquet.Leaf(parquet.Int64Type)
	case TypeDouble:
		return parquet.Leaf(parquet.DoubleType)
	case TypeBoolean:
		return parquet.Leaf(parquet.BooleanType)
	default:
		return parquet.String()
	}
}

func definitionLevel(valid bool) int {
	if valid {
		return 1
	}
	return 0
}

func parquetValue(cell sql.NullString, typ ColumnType) (parquet.Value, error) {
	converted, err := Convert(cell, typ)
	if err != nil {
		return parquet.Value{}, err
	}
	switch v := converted.(type) {
	case nil:
		return parquet.NullValue(), nil
	case int64:
		return parquet.Int64Value(v), nil
	case float64:
		return parquet.DoubleValue(v), nil
	case bool:
		return parquet.BooleanValue(v), nil
	case string:
		return parquet.ByteArrayValue([]byte(v)), nil
	default:
		return parquet.Value{}, fmt.Errorf("unsupported value %T", converted)
	}
}
