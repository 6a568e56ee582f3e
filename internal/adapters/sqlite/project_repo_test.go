package sqlite_test

import (
	"context"
	"strings"
	"testing"

	"github.com/example/kanband/internal/adapters/sqlite"
	"github.com/example/kanband/internal/ports/secondary"
)

func TestProjectRepository_Create(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewProjectRepository(db)
	ctx := context.Background()

	err := repo.Create(ctx, &secondary.ProjectRecord{ID: "p1", Name: "kanband", RepoPath: "/src/kanband"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := repo.GetByID(ctx, "p1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Name != "kanband" || got.RepoPath != "/src/kanband" {
		t.Errorf("unexpected project %+v", got)
	}
	if got.CreatedAt == "" {
		t.Error("expected created_at to be set")
	}

	rows := outboxRows(t, db)
	if len(rows) != 1 {
		t.Fatalf("expected 1 outbox row, got %d", len(rows))
	}
	if rows[0].EventType != "project.created" || rows[0].EntityUUID != "p1" || rows[0].Payload != `{"id":"p1"}` {
		t.Errorf("unexpected outbox row %+v", rows[0])
	}
}

func TestProjectRepository_Create_DuplicateRollsBackOutbox(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewProjectRepository(db)
	ctx := context.Background()

	seedProject(t, db, "p1")
	if err := repo.Create(ctx, &secondary.ProjectRecord{ID: "p1", Name: "again", RepoPath: "/x"}); err == nil {
		t.Fatal("expected duplicate id to fail")
	}
	if rows := outboxRows(t, db); len(rows) != 0 {
		t.Errorf("expected no outbox row for failed insert, got %d", len(rows))
	}
}

func TestProjectRepository_FindByID_Missing(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewProjectRepository(db)

	got, err := repo.FindByID(context.Background(), "nope")
	if err != nil || got != nil {
		t.Errorf("expected nil, nil; got %+v, %v", got, err)
	}

	_, err = repo.GetByID(context.Background(), "nope")
	if err == nil || !strings.Contains(err.Error(), "project nope not found") {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestProjectRepository_List(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewProjectRepository(db)
	ctx := context.Background()

	for _, p := range []*secondary.ProjectRecord{
		{ID: "p2", Name: "zebra", RepoPath: "/z"},
		{ID: "p1", Name: "alpha", RepoPath: "/a"},
	} {
		if err := repo.Create(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	projects, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(projects) != 2 || projects[0].Name != "alpha" || projects[1].Name != "zebra" {
		t.Errorf("expected projects ordered by name, got %+v", projects)
	}
}

func TestProjectRepository_Update(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewProjectRepository(db)
	ctx := context.Background()
	seedProject(t, db, "p1")

	if err := repo.Update(ctx, &secondary.ProjectRecord{ID: "p1", Name: "renamed", RepoPath: "/new"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	got, _ := repo.GetByID(ctx, "p1")
	if got.Name != "renamed" || got.RepoPath != "/new" {
		t.Errorf("unexpected project %+v", got)
	}
	if types := outboxTypes(t, db); !equalStrings(types, []string{"project.updated"}) {
		t.Errorf("unexpected outbox %v", types)
	}

	if err := repo.Update(ctx, &secondary.ProjectRecord{ID: "missing", Name: "x"}); err == nil {
		t.Error("expected error updating missing project")
	}
	if len(outboxRows(t, db)) != 1 {
		t.Error("failed update must not write an outbox row")
	}
}

func TestProjectRepository_Delete_CascadesEvents(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewProjectRepository(db)
	ctx := context.Background()
	seedProject(t, db, "p1")
	seedTask(t, db, "t1", "p1")
	seedExecution(t, db, "e1", "t1")

	if err := repo.Delete(ctx, "p1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	expected := []string{"execution_process.deleted", "task.deleted", "project.deleted"}
	if types := outboxTypes(t, db); !equalStrings(types, expected) {
		t.Errorf("expected %v, got %v", expected, types)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM tasks").Scan(&count)
	if count != 0 {
		t.Errorf("expected tasks removed by cascade, got %d", count)
	}

	if err := repo.Delete(ctx, "p1"); err == nil {
		t.Error("expected error deleting missing project")
	}
}
