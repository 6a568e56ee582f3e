package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/kanband/internal/outbox"
	"github.com/example/kanband/internal/ports/secondary"
)

// TaskRepository implements secondary.TaskRepository with SQLite.
type TaskRepository struct {
	db *sql.DB
}

// NewTaskRepository creates a new SQLite task repository.
func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

var _ secondary.TaskRepository = (*TaskRepository)(nil)

const taskSelectCols = "id, project_id, title, description, status, parent_task_id, created_at, updated_at"

// scanTask scans a task row into a TaskRecord.
func scanTask(scanner interface {
	Scan(dest ...any) error
}) (*secondary.TaskRecord, error) {
	var (
		desc         sql.NullString
		parentTaskID sql.NullString
		createdAt    time.Time
		updatedAt    time.Time
	)

	record := &secondary.TaskRecord{}
	err := scanner.Scan(
		&record.ID, &record.ProjectID, &record.Title, &desc, &record.Status, &parentTaskID,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Description = desc.String
	record.ParentTaskID = parentTaskID.String
	record.CreatedAt = createdAt.Format(time.RFC3339)
	record.UpdatedAt = updatedAt.Format(time.RFC3339)

	return record, nil
}

func taskPayload(projectID, taskID string) outbox.Payload {
	return outbox.Payload{ID: taskID, ProjectID: projectID}
}

// Create persists a new task. An empty status defaults to todo.
func (r *TaskRepository) Create(ctx context.Context, task *secondary.TaskRecord) error {
	status := task.Status
	if status == "" {
		status = "todo"
	}

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO tasks (id, project_id, title, description, status, parent_task_id) VALUES (?, ?, ?, ?, ?, ?)",
			task.ID, task.ProjectID, task.Title, nullString(task.Description), status, nullString(task.ParentTaskID),
		)
		if err != nil {
			return fmt.Errorf("failed to create task: %w", err)
		}

		return insertOutbox(ctx, tx, outbox.NewEvent(outbox.TaskCreated, taskPayload(task.ProjectID, task.ID)))
	})
}

// GetByID retrieves a task by its ID.
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*secondary.TaskRecord, error) {
	record, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("task %s not found", id)
	}
	return record, nil
}

// FindByID retrieves a task by its ID, returning nil when it does not exist.
func (r *TaskRepository) FindByID(ctx context.Context, id string) (*secondary.TaskRecord, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+taskSelectCols+" FROM tasks WHERE id = ?", id)

	record, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return record, nil
}

// List retrieves tasks matching the given filters.
func (r *TaskRepository) List(ctx context.Context, filters secondary.TaskFilters) ([]*secondary.TaskRecord, error) {
	query := "SELECT " + taskSelectCols + " FROM tasks WHERE 1=1"
	args := []any{}

	if filters.ProjectID != "" {
		query += " AND project_id = ?"
		args = append(args, filters.ProjectID)
	}

	if filters.Status != "" {
		query += " AND status = ?"
		args = append(args, filters.Status)
	}

	query += " ORDER BY created_at ASC, id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*secondary.TaskRecord
	for rows.Next() {
		record, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, record)
	}

	return tasks, nil
}

// Update updates an existing task's title, description, status and parent.
func (r *TaskRepository) Update(ctx context.Context, task *secondary.TaskRecord) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		projectID, err := taskProject(ctx, tx, task.ID)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE tasks SET title = ?, description = ?, status = ?, parent_task_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
			task.Title, nullString(task.Description), task.Status, nullString(task.ParentTaskID), task.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}

		return insertOutbox(ctx, tx, outbox.NewEvent(outbox.TaskUpdated, taskPayload(projectID, task.ID)))
	})
}

// UpdateStatus updates only the status.
func (r *TaskRepository) UpdateStatus(ctx context.Context, id, status string) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		projectID, err := taskProject(ctx, tx, id)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE tasks SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
			status, id,
		)
		if err != nil {
			return fmt.Errorf("failed to update task status: %w", err)
		}

		return insertOutbox(ctx, tx, outbox.NewEvent(outbox.TaskUpdated, taskPayload(projectID, id)))
	})
}

// Delete removes a task. Subtasks lose their parent and get an updated
// event; the task's executions are removed by cascade and get a deleted
// event each.
func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		projectID, err := taskProject(ctx, tx, id)
		if err != nil {
			return err
		}

		childIDs, err := queryIDs(ctx, tx, "SELECT id FROM tasks WHERE parent_task_id = ? ORDER BY created_at, id", id)
		if err != nil {
			return fmt.Errorf("failed to list subtasks: %w", err)
		}

		if err := writeTaskDeletedEvents(ctx, tx, projectID, id); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to delete task: %w", err)
		}

		for _, childID := range childIDs {
			if err := insertOutbox(ctx, tx, outbox.NewEvent(outbox.TaskUpdated, taskPayload(projectID, childID))); err != nil {
				return err
			}
		}
		return nil
	})
}

// ProjectExists checks if a project exists.
func (r *TaskRepository) ProjectExists(ctx context.Context, projectID string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM projects WHERE id = ?", projectID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check project existence: %w", err)
	}
	return count > 0, nil
}

// taskProject returns the project of task id inside tx.
func taskProject(ctx context.Context, tx *sql.Tx, id string) (string, error) {
	var projectID string
	err := tx.QueryRowContext(ctx, "SELECT project_id FROM tasks WHERE id = ?", id).Scan(&projectID)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("task %s not found", id)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get task: %w", err)
	}
	return projectID, nil
}

// writeTaskDeletedEvents writes the deleted events for a task and its
// executions. The rows themselves are removed by the caller or by cascade.
func writeTaskDeletedEvents(ctx context.Context, tx *sql.Tx, projectID, taskID string) error {
	executionIDs, err := queryIDs(ctx, tx, "SELECT id FROM execution_processes WHERE task_id = ? ORDER BY started_at, id", taskID)
	if err != nil {
		return fmt.Errorf("failed to list task executions: %w", err)
	}
	for _, executionID := range executionIDs {
		ev := outbox.NewEvent(outbox.ExecutionProcessDeleted, outbox.Payload{ID: executionID, TaskID: taskID})
		if err := insertOutbox(ctx, tx, ev); err != nil {
			return err
		}
	}
	return insertOutbox(ctx, tx, outbox.NewEvent(outbox.TaskDeleted, taskPayload(projectID, taskID)))
}
