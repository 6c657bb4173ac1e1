package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements create the tables the store relies on. Idempotent so the
// daemon can apply them on every start.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS changes (
		seq BIGSERIAL PRIMARY KEY,
		change_id TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		target_name TEXT NOT NULL,
		data JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_changes_target_name ON changes(target_name)`,

	`CREATE TABLE IF NOT EXISTS hooks (
		hook_id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		endpoint TEXT NOT NULL,
		secret TEXT NOT NULL DEFAULT '',
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_hooks_name ON hooks(type, name)`,
	`CREATE INDEX IF NOT EXISTS idx_hooks_owner ON hooks(type, owner_id)`,

	`CREATE TABLE IF NOT EXISTS tasks (
		task_id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		state TEXT NOT NULL,
		biz_id TEXT NOT NULL UNIQUE,
		attempts INTEGER NOT NULL DEFAULT 0,
		data JSONB NOT NULL DEFAULT '{}',
		error TEXT NOT NULL DEFAULT '',
		abandoned BOOLEAN NOT NULL DEFAULT FALSE,
		next_retry_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_claim ON tasks(type, state, next_retry_at)`,

	`CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS package_owners (
		target_name TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(user_id)
	)`,
}

func applySchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}
