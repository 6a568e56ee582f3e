// Package secondary defines the secondary ports (driven adapters) for the application.
// These are the interfaces through which the application drives external systems.
package secondary

import "context"

// ProjectRepository defines the secondary port for project persistence.
// Every mutation writes its outbox event in the same transaction.
type ProjectRepository interface {
	// Create persists a new project.
	Create(ctx context.Context, project *ProjectRecord) error

	// GetByID retrieves a project by its ID, failing when it does not exist.
	GetByID(ctx context.Context, id string) (*ProjectRecord, error)

	// FindByID retrieves a project by its ID, returning nil when it does not exist.
	FindByID(ctx context.Context, id string) (*ProjectRecord, error)

	// List retrieves all projects ordered by name.
	List(ctx context.Context) ([]*ProjectRecord, error)

	// Update updates an existing project.
	Update(ctx context.Context, project *ProjectRecord) error

	// Delete removes a project and, by cascade, its tasks.
	Delete(ctx context.Context, id string) error
}

// ProjectRecord represents a project as stored in persistence. It is also
// the value published on the projects stream.
type ProjectRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	RepoPath  string `json:"repo_path"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// TaskRepository defines the secondary port for task persistence.
type TaskRepository interface {
	// Create persists a new task.
	Create(ctx context.Context, task *TaskRecord) error

	// GetByID retrieves a task by its ID, failing when it does not exist.
	GetByID(ctx context.Context, id string) (*TaskRecord, error)

	// FindByID retrieves a task by its ID, returning nil when it does not exist.
	FindByID(ctx context.Context, id string) (*TaskRecord, error)

	// List retrieves tasks matching the given filters.
	List(ctx context.Context, filters TaskFilters) ([]*TaskRecord, error)

	// Update updates an existing task's title, description, status and parent.
	Update(ctx context.Context, task *TaskRecord) error

	// UpdateStatus updates only the status.
	UpdateStatus(ctx context.Context, id, status string) error

	// Delete removes a task.
	Delete(ctx context.Context, id string) error

	// ProjectExists checks if a project exists (for validation).
	ProjectExists(ctx context.Context, projectID string) (bool, error)
}

// TaskRecord represents a task as stored in persistence.
type TaskRecord struct {
	ID           string `json:"id"`
	ProjectID    string `json:"project_id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Status       string `json:"status"`
	ParentTaskID string `json:"parent_task_id,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// TaskFilters contains filter options for querying tasks.
type TaskFilters struct {
	ProjectID string
	Status    string
}

// ExecutionRepository defines the secondary port for execution process persistence.
type ExecutionRepository interface {
	// Create persists a new execution process.
	Create(ctx context.Context, execution *ExecutionRecord) error

	// GetByID retrieves an execution process by its ID, failing when it does not exist.
	GetByID(ctx context.Context, id string) (*ExecutionRecord, error)

	// FindByID retrieves an execution process by its ID, returning nil when it does not exist.
	FindByID(ctx context.Context, id string) (*ExecutionRecord, error)

	// ListByTask retrieves the execution processes of a task, newest first.
	ListByTask(ctx context.Context, taskID string) ([]*ExecutionRecord, error)

	// SetSessionID records the agent session id of a running execution.
	SetSessionID(ctx context.Context, id, sessionID string) error

	// Complete sets the terminal status, exit code and completion time.
	Complete(ctx context.Context, id, status string, exitCode *int) error

	// CountRunning returns the number of running executions for a task.
	CountRunning(ctx context.Context, taskID string) (int, error)
}

// ExecutionRecord represents an execution process as stored in persistence.
type ExecutionRecord struct {
	ID          string `json:"id"`
	TaskID      string `json:"task_id"`
	RunReason   string `json:"run_reason"`
	Executor    string `json:"executor"`
	Status      string `json:"status"`
	ExitCode    *int   `json:"exit_code"`
	SessionID   string `json:"session_id,omitempty"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at,omitempty"`
}

// OutboxRepository defines the secondary port for the event outbox.
type OutboxRepository interface {
	// FetchPending retrieves up to limit unpublished, unparked rows in
	// creation order.
	FetchPending(ctx context.Context, limit int) ([]*OutboxRecord, error)

	// MarkPublished stamps published_at on a row.
	MarkPublished(ctx context.Context, id int64) error

	// RecordFailure increments attempts and stores the error, leaving the
	// row pending.
	RecordFailure(ctx context.Context, id int64, lastError string) error

	// Park increments attempts, stores the error and removes the row from
	// polling until it is retried.
	Park(ctx context.Context, id int64, lastError string) error

	// List retrieves rows matching the given filters, newest first.
	List(ctx context.Context, filters OutboxFilters) ([]*OutboxRecord, error)

	// Retry clears parked_at and last_error so the row is polled again.
	Retry(ctx context.Context, id int64) error

	// PruneOlderThan deletes published rows older than days and returns
	// the number removed.
	PruneOlderThan(ctx context.Context, days int) (int64, error)
}

// OutboxRecord represents an outbox row.
type OutboxRecord struct {
	ID          int64
	UUID        string
	EventType   string
	EntityType  string
	EntityUUID  string
	Payload     string
	CreatedAt   string
	PublishedAt string
	Attempts    int
	LastError   string
	ParkedAt    string
}

// Outbox row states for OutboxFilters.
const (
	OutboxStatePending   = "pending"
	OutboxStateParked    = "parked"
	OutboxStatePublished = "published"
)

// OutboxFilters contains filter options for listing outbox rows.
type OutboxFilters struct {
	State string // empty for all rows
	Limit int
}
