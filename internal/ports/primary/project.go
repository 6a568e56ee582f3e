// Package primary defines the primary ports (driving adapters) for the application.
// These are the interfaces through which the CLI drives the application.
package primary

import "context"

// ProjectService defines the primary port for project operations.
type ProjectService interface {
	// CreateProject creates a new project.
	CreateProject(ctx context.Context, req CreateProjectRequest) (*Project, error)

	// GetProject retrieves a project by ID.
	GetProject(ctx context.Context, projectID string) (*Project, error)

	// ListProjects lists all projects.
	ListProjects(ctx context.Context) ([]*Project, error)

	// UpdateProject updates a project's name and/or repository path.
	UpdateProject(ctx context.Context, req UpdateProjectRequest) error

	// DeleteProject deletes a project and its tasks.
	DeleteProject(ctx context.Context, projectID string) error
}

// CreateProjectRequest contains parameters for creating a project.
type CreateProjectRequest struct {
	Name     string
	RepoPath string
}

// UpdateProjectRequest contains parameters for updating a project.
// Empty fields are left unchanged.
type UpdateProjectRequest struct {
	ProjectID string
	Name      string
	RepoPath  string
}

// Project represents a project entity at the port boundary.
type Project struct {
	ID        string
	Name      string
	RepoPath  string
	CreatedAt string
	UpdatedAt string
}
