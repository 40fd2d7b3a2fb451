// Package audit keeps an append-only record of answered turns in the
// warehouse.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const DefaultListLimit = 50

type Entry struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Query      string    `json:"query"`
	TableName  string    `json:"table_name,omitempty"`
	SQL        string    `json:"sql,omitempty"`
	Filters    string    `json:"filters,omitempty"`
	LastAction string    `json:"last_action,omitempty"`
	Answer     string    `json:"answer"`
	CreatedAt  time.Time `json:"created_at"`
}

// Recorder persists and lists turn log entries.
type Recorder interface {
	Record(ctx context.Context, entry Entry) (Entry, error)
	List(ctx context.Context, sessionID string, limit int) ([]Entry, error)
}

type Log struct {
	db    *sql.DB
	now   func() time.Time
	newID func() string
}

func NewLog(db *sql.DB) *Log {
	return &Log{db: db, now: time.Now, newID: uuid.NewString}
}

func (l *Log) Record(ctx context.Context, entry Entry) (Entry, error) {
	if strings.TrimSpace(entry.SessionID) == "" {
		return Entry{}, fmt.Errorf("session id is required")
	}
	if entry.ID == "" {
		entry.ID = l.newID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.now().UTC()
	}

	query := `
INSERT INTO tabletalk_turn_log (id, session_id, query, table_name, sql_text, filters, last_action, answer, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := l.db.ExecContext(ctx, query,
		entry.ID,
		entry.SessionID,
		entry.Query,
		nullable(entry.TableName),
		nullable(entry.SQL),
		nullable(entry.Filters),
		nullable(entry.LastAction),
		entry.Answer,
		entry.CreatedAt,
	); err != nil {
		return Entry{}, fmt.Errorf("insert turn log entry: %w", err)
	}
	return entry, nil
}

// List returns up to limit entries for sessionID, newest first.
func (l *Log) List(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query := `
SELECT id, session_id, query, table_name, sql_text, filters, last_action, answer, created_at
FROM tabletalk_turn_log
WHERE session_id = $1
ORDER BY created_at DESC
LIMIT $2`
	rows, err := l.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list turn log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]Entry, 0)
	for rows.Next() {
		var entry Entry
		var table, sqlText, filters, action sql.NullString
		if err := rows.Scan(&entry.ID, &entry.SessionID, &entry.Query, &table, &sqlText, &filters, &action, &entry.Answer, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn log entry: %w", err)
		}
		entry.TableName = table.String
		entry.SQL = sqlText.String
		entry.Filters = filters.String
		entry.LastAction = action.String
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn log: %w", err)
	}
	return entries, nil
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}
