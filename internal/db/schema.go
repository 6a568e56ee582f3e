package db

import (
	"database/sql"
	"fmt"
)

// SchemaSQL is the complete schema for fresh kanband installs.
// This schema reflects the current state after all migrations.
//
// # Schema Drift Protection
//
// This is the SINGLE SOURCE OF TRUTH for the database schema. All tests use
// this schema via GetSchemaSQL(). If repository code references a column
// that doesn't exist here, tests fail immediately with "no such column".
//
// When adding new columns or tables:
//  1. Add a migration in migrations.go
//  2. Update SchemaSQL here
//  3. Run `make test` to verify alignment
const SchemaSQL = `
-- Projects (top-level boards, one per repository)
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	repo_path TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Tasks (cards on a project board)
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT,
	status TEXT NOT NULL CHECK(status IN ('todo', 'inprogress', 'inreview', 'done', 'cancelled')) DEFAULT 'todo',
	parent_task_id TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE,
	FOREIGN KEY (parent_task_id) REFERENCES tasks(id) ON DELETE SET NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);

-- Execution processes (script runs and agent sessions for a task)
CREATE TABLE IF NOT EXISTS execution_processes (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	run_reason TEXT NOT NULL CHECK(run_reason IN ('setupscript', 'codingagent', 'cleanupscript', 'devserver')),
	executor TEXT NOT NULL CHECK(executor IN ('script', 'appserver')),
	status TEXT NOT NULL CHECK(status IN ('running', 'completed', 'failed', 'killed')) DEFAULT 'running',
	exit_code INTEGER,
	session_id TEXT,
	started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	completed_at DATETIME,
	FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_execution_processes_task ON execution_processes(task_id);

-- Transactional outbox: one row per entity mutation, written in the same
-- transaction and published to the message stores by the dispatcher.
CREATE TABLE IF NOT EXISTS event_outbox (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid TEXT NOT NULL UNIQUE,
	event_type TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_uuid TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	published_at DATETIME,
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT,
	parked_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_event_outbox_pending ON event_outbox(published_at, parked_at, created_at, id);

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// InitSchema creates the schema on a fresh database and runs pending
// migrations on an existing one.
func InitSchema(database *sql.DB) error {
	var tableCount int
	err := database.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='event_outbox'").Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("failed to inspect schema: %w", err)
	}

	if tableCount > 0 {
		return RunMigrations(database)
	}

	// Fresh install: create the current schema and mark every migration as
	// applied.
	if _, err := database.Exec(SchemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	for _, m := range migrations {
		if _, err := database.Exec("INSERT INTO schema_version (version) VALUES (?)", m.Version); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// GetSchemaSQL returns the authoritative schema SQL for use by tests.
// Tests should use this instead of hardcoding their own schema to prevent drift.
func GetSchemaSQL() string {
	return SchemaSQL
}
