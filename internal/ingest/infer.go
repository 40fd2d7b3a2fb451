package ingest

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// ColumnType is the warehouse type chosen for an uploaded column.
type ColumnType string

const (
	TypeBigInt  ColumnType = "BIGINT"
	TypeDouble  ColumnType = "DOUBLE PRECISION"
	TypeBoolean ColumnType = "BOOLEAN"
	TypeText    ColumnType = "TEXT"
)

// InferTypes picks the narrowest type that fits every non-null cell of
// each column. Columns with no values at all become TEXT.
func InferTypes(ds Dataset) []ColumnType {
	types := make([]ColumnType, len(ds.Columns))
	for c := range ds.Columns {
		types[c] = inferColumn(ds.Rows, c)
	}
	return types
}

func inferColumn(rows [][]sql.NullString, c int) ColumnType {
	isInt, isFloat, isBool := true, true, true
	seen := false
	for _, row := range rows {
		cell := row[c]
		if !cell.Valid {
			continue
		}
		seen = true
		value := strings.TrimSpace(cell.String)
		if isInt {
			if _, err := strconv.ParseInt(value, 10, 64); err != nil {
				isInt = false
			}
		}
		if isFloat {
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				isFloat = false
			}
		}
		if isBool {
			if _, ok := parseBool(value); !ok {
				isBool = false
			}
		}
		if !isInt && !isFloat && !isBool {
			return TypeText
		}
	}
	switch {
	case !seen:
		return TypeText
	case isInt:
		return TypeBigInt
	case isFloat:
		return TypeDouble
	case isBool:
		return TypeBoolean
	default:
		return TypeText
	}
}

func parseBool(value string) (bool, bool) {
	switch {
	case strings.EqualFold(value, "true"):
		return true, true
	case strings.EqualFold(value, "false"):
		return false, true
	default:
		return false, false
	}
}

// Convert returns the Go value for cell under typ, nil for NULL.
func Convert(cell sql.NullString, typ ColumnType) (any, error) {
	if !cell.Valid {
		return nil, nil
	}
	value := strings.TrimSpace(cell.String)
	switch typ {
	case TypeBigInt:
		return strconv.ParseInt(value, 10, 64)
	case TypeDouble:
		return strconv.ParseFloat(value, 64)
	case TypeBoolean:
		b, ok := parseBool(value)
		if !ok {
			return nil, fmt.Errorf("invalid boolean %q", value)
		}
		return b, nil
	default:
		return cell.String, nil
	}
}
