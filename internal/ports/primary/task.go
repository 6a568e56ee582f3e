package primary

import "context"

// TaskService defines the primary port for task operations.
type TaskService interface {
	// CreateTask creates a new task.
	CreateTask(ctx context.Context, req CreateTaskRequest) (*CreateTaskResponse, error)

	// GetTask retrieves a task by ID.
	GetTask(ctx context.Context, taskID string) (*Task, error)

	// ListTasks lists tasks with optional filters.
	ListTasks(ctx context.Context, filters TaskFilters) ([]*Task, error)

	// UpdateTask updates a task's title, description and/or parent.
	UpdateTask(ctx context.Context, req UpdateTaskRequest) error

	// SetStatus moves a task to a new status.
	SetStatus(ctx context.Context, taskID, status string) error

	// DeleteTask deletes a task.
	DeleteTask(ctx context.Context, taskID string) error
}

// CreateTaskRequest contains parameters for creating a task.
type CreateTaskRequest struct {
	ProjectID    string
	Title        string
	Description  string
	ParentTaskID string // Optional
}

// CreateTaskResponse contains the result of creating a task.
type CreateTaskResponse struct {
	TaskID string
	Task   *Task
}

// UpdateTaskRequest contains parameters for updating a task.
// Nil fields are left unchanged; an empty ParentTaskID detaches the task.
type UpdateTaskRequest struct {
	TaskID       string
	Title        *string
	Description  *string
	ParentTaskID *string
}

// Task represents a task entity at the port boundary.
type Task struct {
	ID           string
	ProjectID    string
	Title        string
	Description  string
	Status       string
	ParentTaskID string
	CreatedAt    string
	UpdatedAt    string
}

// TaskFilters contains filter options for listing tasks.
type TaskFilters struct {
	ProjectID string
	Status    string
}
