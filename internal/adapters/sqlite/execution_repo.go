package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/kanband/internal/outbox"
	"github.com/example/kanband/internal/ports/secondary"
)

// ExecutionRepository implements secondary.ExecutionRepository with SQLite.
type ExecutionRepository struct {
	db *sql.DB
}

// NewExecutionRepository creates a new SQLite execution process repository.
func NewExecutionRepository(db *sql.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

var _ secondary.ExecutionRepository = (*ExecutionRepository)(nil)

const executionSelectCols = "id, task_id, run_reason, executor, status, exit_code, session_id, started_at, completed_at"

func scanExecution(scanner interface {
	Scan(dest ...any) error
}) (*secondary.ExecutionRecord, error) {
	var (
		exitCode    sql.NullInt64
		sessionID   sql.NullString
		startedAt   time.Time
		completedAt sql.NullTime
	)

	record := &secondary.ExecutionRecord{}
	err := scanner.Scan(
		&record.ID, &record.TaskID, &record.RunReason, &record.Executor, &record.Status,
		&exitCode, &sessionID, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	if exitCode.Valid {
		code := int(exitCode.Int64)
		record.ExitCode = &code
	}
	record.SessionID = sessionID.String
	record.StartedAt = startedAt.Format(time.RFC3339)
	if completedAt.Valid {
		record.CompletedAt = completedAt.Time.Format(time.RFC3339)
	}

	return record, nil
}

func executionPayload(taskID, id string) outbox.Payload {
	return outbox.Payload{ID: id, TaskID: taskID}
}

// Create persists a new running execution process.
func (r *ExecutionRepository) Create(ctx context.Context, execution *secondary.ExecutionRecord) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO execution_processes (id, task_id, run_reason, executor, status) VALUES (?, ?, ?, ?, 'running')",
			execution.ID, execution.TaskID, execution.RunReason, execution.Executor,
		)
		if err != nil {
			return fmt.Errorf("failed to create execution process: %w", err)
		}

		return insertOutbox(ctx, tx, outbox.NewEvent(outbox.ExecutionProcessCreated, executionPayload(execution.TaskID, execution.ID)))
	})
}

// GetByID retrieves an execution process by its ID.
func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*secondary.ExecutionRecord, error) {
	record, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("execution process %s not found", id)
	}
	return record, nil
}

// FindByID retrieves an execution process by its ID, returning nil when it does not exist.
func (r *ExecutionRepository) FindByID(ctx context.Context, id string) (*secondary.ExecutionRecord, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+executionSelectCols+" FROM execution_processes WHERE id = ?", id)

	record, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution process: %w", err)
	}

	return record, nil
}

// ListByTask retrieves the execution processes of a task, newest first.
func (r *ExecutionRepository) ListByTask(ctx context.Context, taskID string) ([]*secondary.ExecutionRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+executionSelectCols+" FROM execution_processes WHERE task_id = ? ORDER BY started_at DESC, id DESC",
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list execution processes: %w", err)
	}
	defer rows.Close()

	var executions []*secondary.ExecutionRecord
	for rows.Next() {
		record, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution process: %w", err)
		}
		executions = append(executions, record)
	}

	return executions, nil
}

// SetSessionID records the agent session id of an execution.
func (r *ExecutionRepository) SetSessionID(ctx context.Context, id, sessionID string) error {
	return r.update(ctx, id, "UPDATE execution_processes SET session_id = ? WHERE id = ?", sessionID, id)
}

// Complete sets the terminal status, exit code and completion time.
func (r *ExecutionRepository) Complete(ctx context.Context, id, status string, exitCode *int) error {
	var code sql.NullInt64
	if exitCode != nil {
		code = sql.NullInt64{Int64: int64(*exitCode), Valid: true}
	}
	return r.update(ctx, id,
		"UPDATE execution_processes SET status = ?, exit_code = ?, completed_at = CURRENT_TIMESTAMP WHERE id = ?",
		status, code, id,
	)
}

func (r *ExecutionRepository) update(ctx context.Context, id, query string, args ...any) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var taskID string
		err := tx.QueryRowContext(ctx, "SELECT task_id FROM execution_processes WHERE id = ?", id).Scan(&taskID)
		if err == sql.ErrNoRows {
			return fmt.Errorf("execution process %s not found", id)
		}
		if err != nil {
			return fmt.Errorf("failed to get execution process: %w", err)
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to update execution process: %w", err)
		}

		return insertOutbox(ctx, tx, outbox.NewEvent(outbox.ExecutionProcessUpdated, executionPayload(taskID, id)))
	})
}

// CountRunning returns the number of running executions for a task.
func (r *ExecutionRepository) CountRunning(ctx context.Context, taskID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM execution_processes WHERE task_id = ? AND status = 'running'",
		taskID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count running executions: %w", err)
	}
	return count, nil
}
