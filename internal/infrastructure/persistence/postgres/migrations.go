package postgres

import (
	"context"
	"fmt"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE CHILD RECORDS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create child_records table
-- Version: 001

CREATE TABLE IF NOT EXISTS child_records (
    slot VARCHAR(64) PRIMARY KEY,
    user_id VARCHAR(100) NOT NULL,
    username VARCHAR(100) NOT NULL DEFAULT '',
    name VARCHAR(100) NOT NULL DEFAULT '',
    surname VARCHAR(100) NOT NULL DEFAULT '',
    school VARCHAR(200) NOT NULL DEFAULT '',
    server VARCHAR(300) NOT NULL,

    -- Token pair, sealed with ChaCha20-Poly1305 before it touches disk
    access_token_sealed TEXT NOT NULL DEFAULT '',
    refresh_token_sealed TEXT NOT NULL DEFAULT '',

    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_child_records_server_user
    ON child_records(server, user_id);
`

// Migrate applies all pending migrations.
func Migrate(ctx context.Context, conn *Connection) error {
	migrations := []struct {
		version string
		up      string
	}{
		{"001_create_child_records", migration001Up},
	}

	for _, m := range migrations {
		if _, err := conn.Exec(ctx, m.up); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMigrationFailed, m.version, err)
		}
	}
	return nil
}
