package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/kanband/internal/outbox"
	"github.com/example/kanband/internal/ports/secondary"
)

// ProjectRepository implements secondary.ProjectRepository with SQLite.
type ProjectRepository struct {
	db *sql.DB
}

// NewProjectRepository creates a new SQLite project repository.
func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

var _ secondary.ProjectRepository = (*ProjectRepository)(nil)

const projectSelectCols = "id, name, repo_path, created_at, updated_at"

func scanProject(scanner interface {
	Scan(dest ...any) error
}) (*secondary.ProjectRecord, error) {
	var createdAt, updatedAt time.Time

	record := &secondary.ProjectRecord{}
	if err := scanner.Scan(&record.ID, &record.Name, &record.RepoPath, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	record.CreatedAt = createdAt.Format(time.RFC3339)
	record.UpdatedAt = updatedAt.Format(time.RFC3339)

	return record, nil
}

// Create persists a new project.
func (r *ProjectRepository) Create(ctx context.Context, project *secondary.ProjectRecord) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO projects (id, name, repo_path) VALUES (?, ?, ?)",
			project.ID, project.Name, project.RepoPath,
		)
		if err != nil {
			return fmt.Errorf("failed to create project: %w", err)
		}

		return insertOutbox(ctx, tx, outbox.NewEvent(outbox.ProjectCreated, outbox.Payload{ID: project.ID}))
	})
}

// GetByID retrieves a project by its ID.
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*secondary.ProjectRecord, error) {
	record, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("project %s not found", id)
	}
	return record, nil
}

// FindByID retrieves a project by its ID, returning nil when it does not exist.
func (r *ProjectRepository) FindByID(ctx context.Context, id string) (*secondary.ProjectRecord, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+projectSelectCols+" FROM projects WHERE id = ?", id)

	record, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return record, nil
}

// List retrieves all projects ordered by name.
func (r *ProjectRepository) List(ctx context.Context) ([]*secondary.ProjectRecord, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+projectSelectCols+" FROM projects ORDER BY name ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*secondary.ProjectRecord
	for rows.Next() {
		record, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, record)
	}

	return projects, nil
}

// Update updates an existing project's name and repository path.
func (r *ProjectRepository) Update(ctx context.Context, project *secondary.ProjectRecord) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			"UPDATE projects SET name = ?, repo_path = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
			project.Name, project.RepoPath, project.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update project: %w", err)
		}

		rowsAffected, _ := result.RowsAffected()
		if rowsAffected == 0 {
			return fmt.Errorf("project %s not found", project.ID)
		}

		return insertOutbox(ctx, tx, outbox.NewEvent(outbox.ProjectUpdated, outbox.Payload{ID: project.ID}))
	})
}

// Delete removes a project. Its tasks and their executions are removed by
// cascade; a deleted event is written for each of them so subscribers of
// those streams see the removal.
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		taskIDs, err := queryIDs(ctx, tx, "SELECT id FROM tasks WHERE project_id = ? ORDER BY created_at, id", id)
		if err != nil {
			return fmt.Errorf("failed to list project tasks: %w", err)
		}
		for _, taskID := range taskIDs {
			if err := writeTaskDeletedEvents(ctx, tx, id, taskID); err != nil {
				return err
			}
		}

		result, err := tx.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete project: %w", err)
		}

		rowsAffected, _ := result.RowsAffected()
		if rowsAffected == 0 {
			return fmt.Errorf("project %s not found", id)
		}

		return insertOutbox(ctx, tx, outbox.NewEvent(outbox.ProjectDeleted, outbox.Payload{ID: id}))
	})
}

// queryIDs collects the single id column of query.
func queryIDs(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
