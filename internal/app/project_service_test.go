package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/example/kanband/internal/ports/primary"
)

func newTestProjectService() (*ProjectServiceImpl, *mockProjectRepository) {
	repo := newMockProjectRepository()
	return NewProjectService(repo), repo
}

func TestCreateProject_Success(t *testing.T) {
	service, repo := newTestProjectService()

	project, err := service.CreateProject(context.Background(), primary.CreateProjectRequest{
		Name:     "  kanband  ",
		RepoPath: "/src/kanband",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if project.ID == "" {
		t.Error("expected project ID to be set")
	}
	if project.Name != "kanband" {
		t.Errorf("expected trimmed name 'kanband', got '%s'", project.Name)
	}
	if project.CreatedAt == "" {
		t.Error("expected created project to be re-read from the repository")
	}
	if len(repo.projects) != 1 {
		t.Errorf("expected 1 stored project, got %d", len(repo.projects))
	}
}

func TestCreateProject_RelativeRepoPath(t *testing.T) {
	service, _ := newTestProjectService()

	project, err := service.CreateProject(context.Background(), primary.CreateProjectRequest{Name: "x", RepoPath: "repo"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !filepath.IsAbs(project.RepoPath) {
		t.Errorf("expected absolute repo path, got %s", project.RepoPath)
	}
}

func TestCreateProject_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  primary.CreateProjectRequest
	}{
		{name: "missing name", req: primary.CreateProjectRequest{RepoPath: "/src"}},
		{name: "blank name", req: primary.CreateProjectRequest{Name: "   ", RepoPath: "/src"}},
		{name: "missing repo path", req: primary.CreateProjectRequest{Name: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, repo := newTestProjectService()
			if _, err := service.CreateProject(context.Background(), tt.req); err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if len(repo.projects) != 0 {
				t.Error("expected nothing stored")
			}
		})
	}
}

func TestCreateProject_RepositoryError(t *testing.T) {
	service, repo := newTestProjectService()
	repo.createErr = errors.New("disk full")

	_, err := service.CreateProject(context.Background(), primary.CreateProjectRequest{Name: "x", RepoPath: "/src"})
	if err == nil || !errors.Is(err, repo.createErr) {
		t.Fatalf("expected wrapped repository error, got %v", err)
	}
}

func TestUpdateProject_KeepsUnsetFields(t *testing.T) {
	service, repo := newTestProjectService()
	created, _ := service.CreateProject(context.Background(), primary.CreateProjectRequest{Name: "old", RepoPath: "/src/old"})

	if err := service.UpdateProject(context.Background(), primary.UpdateProjectRequest{ProjectID: created.ID, Name: "new"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	stored := repo.projects[created.ID]
	if stored.Name != "new" {
		t.Errorf("expected name 'new', got '%s'", stored.Name)
	}
	if stored.RepoPath != "/src/old" {
		t.Errorf("expected repo path unchanged, got '%s'", stored.RepoPath)
	}
}

func TestDeleteProject(t *testing.T) {
	service, repo := newTestProjectService()
	created, _ := service.CreateProject(context.Background(), primary.CreateProjectRequest{Name: "x", RepoPath: "/src"})

	if err := service.DeleteProject(context.Background(), created.ID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(repo.deleted) != 1 || repo.deleted[0] != created.ID {
		t.Errorf("expected project %s deleted, got %v", created.ID, repo.deleted)
	}

	if err := service.DeleteProject(context.Background(), "missing"); err == nil {
		t.Error("expected error deleting a missing project")
	}
}

func TestListProjects(t *testing.T) {
	service, _ := newTestProjectService()
	service.CreateProject(context.Background(), primary.CreateProjectRequest{Name: "beta", RepoPath: "/b"})
	service.CreateProject(context.Background(), primary.CreateProjectRequest{Name: "alpha", RepoPath: "/a"})

	projects, err := service.ListProjects(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(projects) != 2 || projects[0].Name != "alpha" {
		t.Errorf("expected projects ordered by name, got %+v", projects)
	}
}
