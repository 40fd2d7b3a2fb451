// Package ingest replaces a warehouse table with the contents of an
// uploaded CSV or Excel file.
package ingest

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrValidation wraps every rejection caused by the upload itself rather
// than by the backend.
var ErrValidation = errors.New("validation failed")

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Dataset is a cleaned upload: normalized column names and rows whose
// cells are NULL when Valid is false.
type Dataset struct {
	Columns []string
	Rows    [][]sql.NullString
}

var tableNamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// NormalizeTableName trims and lower-cases name and rejects anything that
// is not a plain identifier.
func NormalizeTableName(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", validationf("table name is required")
	}
	if !tableNamePattern.MatchString(name) {
		return "", validationf("table name %q may only contain letters, digits and underscores", name)
	}
	if len(name) > 63 {
		return "", validationf("table name %q is longer than 63 characters", name)
	}
	return name, nil
}

// NormalizeHeader strips, lower-cases and replaces spaces and hyphens with
// underscores.
func NormalizeHeader(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "_")
	return strings.ReplaceAll(name, "-", "_")
}

func normalizeHeaders(raw []string) []string {
	out := make([]string, len(raw))
	seen := make(map[string]int, len(raw))
	for i, header := range raw {
		name := NormalizeHeader(header)
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = name + "_" + strconv.Itoa(n+1)
		}
		seen[name]++
		out[i] = name
	}
	return out
}

func isNullCell(value string) bool {
	trimmed := strings.TrimSpace(value)
	return trimmed == "" || trimmed == "NaN" || trimmed == "nan"
}

// buildDataset turns raw records (header first) into a Dataset, enforcing
// maxRows on the raw data row count before any cleaning.
func buildDataset(records [][]string, maxRows int) (Dataset, error) {
	if len(records) == 0 {
		return Dataset{}, validationf("file is empty")
	}
	header := records[0]
	if len(header) == 0 {
		return Dataset{}, validationf("file has no header row")
	}
	body := records[1:]
	if maxRows > 0 && len(body) > maxRows {
		return Dataset{}, validationf("file has %d rows, more than the limit of %d", len(body), maxRows)
	}

	columns := normalizeHeaders(header)
	rows := make([][]sql.NullString, 0, len(body))
	seen := make(map[string]struct{}, len(body))
	for i, record := range body {
		if len(record) > len(columns) {
			extra := record[len(columns):]
			if !allNull(extra) {
				return Dataset{}, validationf("row %d has %d fields, header has %d", i+2, len(record), len(columns))
			}
			record = record[:len(columns)]
		}
		row := make([]sql.NullString, len(columns))
		empty := true
		for c := range columns {
			if c < len(record) && !isNullCell(record[c]) {
				row[c] = sql.NullString{String: record[c], Valid: true}
				empty = false
			}
		}
		if empty {
			continue
		}
		key := rowKey(row)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return Dataset{}, validationf("file has no data rows after cleaning")
	}
	return Dataset{Columns: columns, Rows: rows}, nil
}

func allNull(values []string) bool {
	for _, value := range values {
		if !isNullCell(value) {
			return false
		}
	}
	return true
}

func rowKey(row []sql.NullString) string {
	var b strings.Builder
	for _, cell := range row {
		if cell.Valid {
			b.WriteByte('v')
			b.WriteString(cell.String)
		} else {
			b.WriteByte('n')
		}
		b.WriteByte(0x1f)
	}
	return b.String()
}
