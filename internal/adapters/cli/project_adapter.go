// Package cli provides thin CLI adapters that translate between CLI concerns
// and application services. Adapters handle output formatting, but delegate
// business logic to services.
package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/example/kanband/internal/ports/primary"
)

// ProjectAdapter is a thin adapter that translates CLI operations to ProjectService calls.
// It depends only on the ProjectService interface, enabling easy testing with mocks.
type ProjectAdapter struct {
	service primary.ProjectService
	out     io.Writer
}

// NewProjectAdapter creates a new ProjectAdapter with the given service.
func NewProjectAdapter(service primary.ProjectService, out io.Writer) *ProjectAdapter {
	return &ProjectAdapter{
		service: service,
		out:     out,
	}
}

// Create creates a new project.
func (a *ProjectAdapter) Create(ctx context.Context, name, repoPath string) (*primary.Project, error) {
	project, err := a.service.CreateProject(ctx, primary.CreateProjectRequest{
		Name:     name,
		RepoPath: repoPath,
	})
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(a.out, "✓ Created project %s: %s\n", project.ID, project.Name)
	fmt.Fprintf(a.out, "  Repo: %s\n", project.RepoPath)
	return project, nil
}

// List lists all projects.
func (a *ProjectAdapter) List(ctx context.Context) ([]*primary.Project, error) {
	projects, err := a.service.ListProjects(ctx)
	if err != nil {
		return nil, err
	}

	if len(projects) == 0 {
		fmt.Fprintln(a.out, "No projects found.")
		fmt.Fprintln(a.out)
		fmt.Fprintln(a.out, "Create your first project:")
		fmt.Fprintln(a.out, "  kanband project create my-app --repo ~/src/my-app")
		return projects, nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tREPO\tCREATED")
	fmt.Fprintln(w, "--\t----\t----\t-------")
	for _, p := range projects {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID, p.Name, p.RepoPath, relativeTime(p.CreatedAt))
	}
	w.Flush()

	return projects, nil
}

// Update renames a project or moves its repository.
func (a *ProjectAdapter) Update(ctx context.Context, projectID, name, repoPath string) error {
	if name == "" && repoPath == "" {
		return fmt.Errorf("must specify at least --name or --repo")
	}

	err := a.service.UpdateProject(ctx, primary.UpdateProjectRequest{
		ProjectID: projectID,
		Name:      name,
		RepoPath:  repoPath,
	})
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}

	fmt.Fprintf(a.out, "✓ Project %s updated\n", projectID)
	return nil
}

// Delete deletes a project and its tasks.
func (a *ProjectAdapter) Delete(ctx context.Context, projectID string) error {
	project, err := a.service.GetProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to get project: %w", err)
	}

	if err := a.service.DeleteProject(ctx, projectID); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "✓ Deleted project %s: %s\n", project.ID, project.Name)
	return nil
}
