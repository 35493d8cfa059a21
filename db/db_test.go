package db

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"
)

// openTestDB connects using TEST_PG_DSN and applies the embedded schema.
// Tests are skipped when no test database is configured.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := Migrate(context.Background(), database); err != nil {
		database.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestMigrateIdempotent(t *testing.T) {
	database := openTestDB(t)
	// Second run must be a no-op, not an error.
	if err := Migrate(context.Background(), database); err != nil {
		t.Fatalf("second Migrate run failed: %v", err)
	}
}

func TestCommandScopeUniqueness(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	t.Cleanup(func() {
		_, _ = database.ExecContext(context.Background(), `DELETE FROM commands WHERE command = 'uniq_test'`)
	})

	if _, err := database.ExecContext(ctx,
		`INSERT INTO commands (command, module_name) VALUES ('uniq_test', 'mod_a')`); err != nil {
		t.Fatalf("insert global: %v", err)
	}
	if _, err := database.ExecContext(ctx,
		`INSERT INTO commands (command, module_name) VALUES ('uniq_test', 'mod_b')`); err == nil {
		t.Errorf("expected unique violation for duplicate global command")
	}
	// Same name scoped to a community is a different scope, must be allowed.
	if _, err := database.ExecContext(ctx,
		`INSERT INTO commands (command, module_name, community_id) VALUES ('uniq_test', 'mod_c', 42)`); err != nil {
		t.Errorf("community-scoped duplicate of global name should be allowed: %v", err)
	}
	if _, err := database.ExecContext(ctx,
		`INSERT INTO commands (command, module_name, community_id) VALUES ('uniq_test', 'mod_d', 42)`); err == nil {
		t.Errorf("expected unique violation for duplicate scoped command")
	}
}

func TestEmoteCacheUniqueness(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	t.Cleanup(func() {
		_, _ = database.ExecContext(context.Background(), `DELETE FROM emote_cache WHERE emote_code = 'UniqKappa'`)
	})

	exp := time.Now().Add(time.Hour)
	if _, err := database.ExecContext(ctx,
		`INSERT INTO emote_cache (platform, emote_source, emote_code, expires_at) VALUES ('twitch', 'global', 'UniqKappa', $1)`, exp); err != nil {
		t.Fatalf("insert global emote: %v", err)
	}
	if _, err := database.ExecContext(ctx,
		`INSERT INTO emote_cache (platform, emote_source, emote_code, expires_at) VALUES ('twitch', 'global', 'UniqKappa', $1)`, exp); err == nil {
		t.Errorf("expected unique violation for duplicate global emote")
	}
	if _, err := database.ExecContext(ctx,
		`INSERT INTO emote_cache (platform, channel_id, emote_source, emote_code, expires_at) VALUES ('twitch', '123', 'global', 'UniqKappa', $1)`, exp); err != nil {
		t.Errorf("channel-scoped duplicate of global emote should be allowed: %v", err)
	}
}
