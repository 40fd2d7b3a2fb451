// Package session keeps each chat session's turn history, the source of
// the conversational memory handed to the pipeline.
package session

import (
	"context"
	"strings"
)

const DefaultID = "default"

// Turn is one question and its answer. The context fields record where the
// pipeline left off so a follow-up can resume from them.
type Turn struct {
	User string `json:"user"`
	Bot  string `json:"bot"`

	TableName  string `json:"table_name,omitempty"`
	Filters    string `json:"filters,omitempty"`
	LastAction string `json:"last_action,omitempty"`
	LastGroup  string `json:"last_group,omitempty"`
}

type Store interface {
	History(ctx context.Context, sessionID string) ([]Turn, error)
	// Append adds turn atomically and returns the full updated history.
	Append(ctx context.Context, sessionID string, turn Turn) ([]Turn, error)
	Sessions(ctx context.Context) ([]string, error)
}

// MemoryText renders the last maxTurns turns as "User:"/"AI:" lines. A
// maxTurns of zero or less keeps every turn.
func MemoryText(turns []Turn, maxTurns int) string {
	if maxTurns > 0 && len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}
	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		lines = append(lines, "User: "+turn.User+"\nAI: "+turn.Bot)
	}
	return strings.Join(lines, "\n")
}

// NormalizeID maps a blank session id to DefaultID.
func NormalizeID(sessionID string) string {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return DefaultID
	}
	return sessionID
}
