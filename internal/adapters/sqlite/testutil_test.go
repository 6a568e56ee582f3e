// Package sqlite_test contains integration tests for SQLite repositories.
//
// # Schema Protection
//
// This file is the SINGLE POINT where the database schema is loaded for tests.
// All test setup functions use db.GetSchemaSQL() to ensure tests run against
// the authoritative schema, preventing drift between test and production.
//
// DO NOT hardcode CREATE TABLE statements in test files. Use setupTestDB()
// and the seed* helpers instead.
package sqlite_test

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/example/kanband/internal/db"
)

// setupTestDB creates an in-memory database with the authoritative schema.
// The pool is pinned to one connection: every connection to ":memory:" is a
// separate database.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	testDB, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	testDB.SetMaxOpenConns(1)

	if _, err := testDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	// Use the authoritative schema from schema.go
	if _, err := testDB.Exec(db.GetSchemaSQL()); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() {
		testDB.Close()
	})

	return testDB
}

// seedProject inserts a project without an outbox row and returns its ID.
func seedProject(t *testing.T, db *sql.DB, id string) string {
	t.Helper()
	if id == "" {
		id = "proj-1"
	}
	_, err := db.Exec("INSERT INTO projects (id, name, repo_path) VALUES (?, ?, ?)", id, "Test Project", "/tmp/"+id)
	if err != nil {
		t.Fatalf("failed to seed project: %v", err)
	}
	return id
}

// seedTask inserts a task without an outbox row and returns its ID.
func seedTask(t *testing.T, db *sql.DB, id, projectID string) string {
	t.Helper()
	if id == "" {
		id = "task-1"
	}
	if projectID == "" {
		projectID = "proj-1"
	}
	_, err := db.Exec("INSERT INTO tasks (id, project_id, title) VALUES (?, ?, ?)", id, projectID, "Test Task")
	if err != nil {
		t.Fatalf("failed to seed task: %v", err)
	}
	return id
}

// seedExecution inserts a running execution without an outbox row.
func seedExecution(t *testing.T, db *sql.DB, id, taskID string) string {
	t.Helper()
	if id == "" {
		id = "exec-1"
	}
	if taskID == "" {
		taskID = "task-1"
	}
	_, err := db.Exec(
		"INSERT INTO execution_processes (id, task_id, run_reason, executor) VALUES (?, ?, 'codingagent', 'script')",
		id, taskID,
	)
	if err != nil {
		t.Fatalf("failed to seed execution: %v", err)
	}
	return id
}

// outboxRow is the routing part of an outbox row.
type outboxRow struct {
	EventType  string
	EntityUUID string
	Payload    string
}

// outboxRows returns the outbox rows in insertion order.
func outboxRows(t *testing.T, db *sql.DB) []outboxRow {
	t.Helper()
	rows, err := db.Query("SELECT event_type, entity_uuid, payload FROM event_outbox ORDER BY id")
	if err != nil {
		t.Fatalf("failed to query outbox: %v", err)
	}
	defer rows.Close()

	var out []outboxRow
	for rows.Next() {
		var r outboxRow
		if err := rows.Scan(&r.EventType, &r.EntityUUID, &r.Payload); err != nil {
			t.Fatalf("failed to scan outbox: %v", err)
		}
		out = append(out, r)
	}
	return out
}

// outboxTypes returns the event types of the outbox rows in insertion order.
func outboxTypes(t *testing.T, db *sql.DB) []string {
	t.Helper()
	var types []string
	for _, r := range outboxRows(t, db) {
		types = append(types, r.EventType)
	}
	return types
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
