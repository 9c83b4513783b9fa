// CLAUDE:SUMMARY SQLite handle and schema for templio templates: owner-scoped rows, screenshot size bounded by a CHECK.
// Package store provides the SQLite persistence layer for templates.
package store

import (
	"database/sql"
	"fmt"
)

// MaxScreenshotBytes bounds the stored data URI. Mirrored by the CHECK
// constraint below.
const MaxScreenshotBytes = 2 << 20

// Schema holds the templates table DDL.
const Schema = `
CREATE TABLE IF NOT EXISTS templates (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    title       TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    html_code   TEXT NOT NULL,
    screenshot  TEXT NOT NULL DEFAULT '' CHECK (length(screenshot) <= 2097152),
    is_favorite INTEGER NOT NULL DEFAULT 0,
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_templates_user_created ON templates(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_templates_user_fav ON templates(user_id, is_favorite, created_at DESC);
`

// Store is the templates database handle.
type Store struct {
	DB *sql.DB
}

// New wraps an already open database and applies the schema.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{DB: db}, nil
}
