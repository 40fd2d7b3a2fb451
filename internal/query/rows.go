package query

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// ScanRows drains rows into records. Scan failures come back as
// *ExecutionError; iteration errors are returned as the driver reported them.
func ScanRows(rows *sql.Rows) ([]string, []Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, &ExecutionError{Err: fmt.Errorf("query columns: %w", err)}
	}

	out := make([]Row, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, nil, &ExecutionError{Err: fmt.Errorf("scan row: %w", err)}
		}
		record := make(Row, len(columns))
		for i, column := range columns {
			record[column] = NormalizeValue(values[i])
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return columns, out, nil
}

func NormalizeValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	case time.Time:
		return typed.Format(time.RFC3339)
	default:
		return typed
	}
}

func StripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
