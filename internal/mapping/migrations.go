package mapping

import (
	"context"
	"database/sql"
	"fmt"
)

// migration is one forward-only schema step, grounded on the teacher's
// numbered internal/storage/sqlite/migrations/NNN_*.go files: each step is
// named, ordered, and applied at most once per database, tracked in
// schema_migrations.
type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		name:    "initial schema",
		sql: `
CREATE TABLE IF NOT EXISTS projects (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	external_a_id  INTEGER NOT NULL UNIQUE,
	external_a_key TEXT NOT NULL,
	last_sync_at   TEXT
);

CREATE TABLE IF NOT EXISTS remote_projects_b (
	project_id          INTEGER PRIMARY KEY REFERENCES projects(id) ON DELETE CASCADE,
	external_b_id       INTEGER,
	path_with_namespace TEXT NOT NULL,
	url                 TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS issue_mappings (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id          INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	external_a_issue_id INTEGER NOT NULL,
	external_b_issue_id INTEGER NOT NULL,
	canonical_json      TEXT
);

-- An issue belongs to exactly one mapping at any time (spec §3), so these
-- are global, not scoped by project_id.
CREATE UNIQUE INDEX IF NOT EXISTS issue_mappings_external_a_issue_id ON issue_mappings (external_a_issue_id);
CREATE UNIQUE INDEX IF NOT EXISTS issue_mappings_external_b_issue_id ON issue_mappings (external_b_issue_id);

CREATE TABLE IF NOT EXISTS users (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	external_a_user_id INTEGER,
	external_b_user_id INTEGER,
	display_key        TEXT NOT NULL UNIQUE
);

-- A platform user id correlates to exactly one neutral row (spec §6).
-- sqlite treats NULLs as distinct within a unique index, so a user known on
-- only one platform never collides with another single-sided row.
CREATE UNIQUE INDEX IF NOT EXISTS users_external_a_user_id ON users (external_a_user_id);
CREATE UNIQUE INDEX IF NOT EXISTS users_external_b_user_id ON users (external_b_user_id);

CREATE TABLE IF NOT EXISTS trackers_a (
	external_id INTEGER PRIMARY KEY,
	name        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS statuses_a (
	external_id INTEGER PRIMARY KEY,
	name        TEXT NOT NULL
);
`,
	},
}

// migrate applies every migration not yet recorded in schema_migrations, in
// version order, each inside its own transaction.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := map[int]bool{}
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("scan schema_migrations: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d %s: %w", m.version, m.name, err)
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d %s: %w", m.version, m.name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d %s: %w", m.version, m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d %s: %w", m.version, m.name, err)
		}
	}
	return nil
}
