package migrations

import (
	"strings"
	"testing"
)

func TestTurnLogMigrationContainsTableAndIndex(t *testing.T) {
	up, err := embeddedFS.ReadFile("sql/000001_turn_log.up.sql")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	for _, snippet := range []string{
		"CREATE TABLE tabletalk_turn_log",
		"session_id TEXT NOT NULL",
		"sql_text TEXT",
		"CREATE INDEX idx_tabletalk_turn_log_session_created",
	} {
		if !strings.Contains(string(up), snippet) {
			t.Fatalf("up migration missing %q", snippet)
		}
	}

	down, err := embeddedFS.ReadFile("sql/000001_turn_log.down.sql")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(down), "DROP TABLE IF EXISTS tabletalk_turn_log") {
		t.Fatalf("down migration = %q", down)
	}
}

func TestEmbeddedMigrationsLoad(t *testing.T) {
	items, err := loadMigrations(embeddedFS)
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(items) == 0 || items[0].Version != 1 || items[0].Name != "turn_log" {
		t.Fatalf("items = %+v", items)
	}
}
