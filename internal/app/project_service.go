package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/example/kanband/internal/ports/primary"
	"github.com/example/kanband/internal/ports/secondary"
)

// ProjectServiceImpl implements the ProjectService interface.
type ProjectServiceImpl struct {
	projectRepo secondary.ProjectRepository
}

// NewProjectService creates a new ProjectService with injected dependencies.
func NewProjectService(projectRepo secondary.ProjectRepository) *ProjectServiceImpl {
	return &ProjectServiceImpl{projectRepo: projectRepo}
}

// CreateProject creates a new project.
func (s *ProjectServiceImpl) CreateProject(ctx context.Context, req primary.CreateProjectRequest) (*primary.Project, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("project name is required")
	}

	repoPath, err := cleanRepoPath(req.RepoPath)
	if err != nil {
		return nil, err
	}

	record := &secondary.ProjectRecord{
		ID:       uuid.NewString(),
		Name:     name,
		RepoPath: repoPath,
	}
	if err := s.projectRepo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	created, err := s.projectRepo.GetByID(ctx, record.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch created project: %w", err)
	}
	return recordToProject(created), nil
}

// GetProject retrieves a project by ID.
func (s *ProjectServiceImpl) GetProject(ctx context.Context, projectID string) (*primary.Project, error) {
	record, err := s.projectRepo.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return recordToProject(record), nil
}

// ListProjects lists all projects.
func (s *ProjectServiceImpl) ListProjects(ctx context.Context) ([]*primary.Project, error) {
	records, err := s.projectRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	projects := make([]*primary.Project, len(records))
	for i, r := range records {
		projects[i] = recordToProject(r)
	}
	return projects, nil
}

// UpdateProject updates a project's name and/or repository path.
func (s *ProjectServiceImpl) UpdateProject(ctx context.Context, req primary.UpdateProjectRequest) error {
	record, err := s.projectRepo.GetByID(ctx, req.ProjectID)
	if err != nil {
		return err
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		record.Name = name
	}
	if req.RepoPath != "" {
		repoPath, err := cleanRepoPath(req.RepoPath)
		if err != nil {
			return err
		}
		record.RepoPath = repoPath
	}

	return s.projectRepo.Update(ctx, record)
}

// DeleteProject deletes a project and its tasks.
func (s *ProjectServiceImpl) DeleteProject(ctx context.Context, projectID string) error {
	if _, err := s.projectRepo.GetByID(ctx, projectID); err != nil {
		return err
	}
	return s.projectRepo.Delete(ctx, projectID)
}

// cleanRepoPath makes a repository path absolute.
func cleanRepoPath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("project repository path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve repository path: %w", err)
	}
	return abs, nil
}

func recordToProject(r *secondary.ProjectRecord) *primary.Project {
	return &primary.Project{
		ID:        r.ID,
		Name:      r.Name,
		RepoPath:  r.RepoPath,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// Ensure ProjectServiceImpl implements the interface
var _ primary.ProjectService = (*ProjectServiceImpl)(nil)
