// Package task contains the pure business logic for task operations.
// Guards are pure functions that evaluate preconditions without side effects.
package task

import "fmt"

// Task statuses.
const (
	StatusTodo       = "todo"
	StatusInProgress = "inprogress"
	StatusInReview   = "inreview"
	StatusDone       = "done"
	StatusCancelled  = "cancelled"
)

// Statuses lists every task status in board order.
var Statuses = []string{StatusTodo, StatusInProgress, StatusInReview, StatusDone, StatusCancelled}

// IsValidStatus reports whether status is a known task status.
func IsValidStatus(status string) bool {
	for _, s := range Statuses {
		if s == status {
			return true
		}
	}
	return false
}

// IsClosed reports whether a task in status no longer accepts executions.
func IsClosed(status string) bool {
	return status == StatusDone || status == StatusCancelled
}

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
}

// Error converts the guard result to an error if not allowed.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

// CreateTaskContext provides context for task creation guards.
type CreateTaskContext struct {
	ProjectID       string
	ProjectExists   bool
	Title           string
	ParentTaskID    string // optional, empty if not specified
	ParentExists    bool   // only checked if ParentTaskID != ""
	ParentProjectID string
}

// ParentContext provides context for changing a task's parent.
type ParentContext struct {
	TaskID          string
	ProjectID       string
	ParentTaskID    string
	ParentExists    bool
	ParentProjectID string
}

// StatusChangeContext provides context for status change guards.
type StatusChangeContext struct {
	TaskID        string
	CurrentStatus string
	NewStatus     string
}

// DeleteTaskContext provides context for task deletion guards.
type DeleteTaskContext struct {
	TaskID            string
	RunningExecutions int
}

// CanCreateTask evaluates whether a task can be created.
// Rules:
// - Title must not be empty
// - Project must exist
// - Parent task must exist in the same project (if parent_task_id provided)
func CanCreateTask(ctx CreateTaskContext) GuardResult {
	if ctx.Title == "" {
		return GuardResult{Allowed: false, Reason: "task title is required"}
	}

	if !ctx.ProjectExists {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("project %s not found", ctx.ProjectID),
		}
	}

	if ctx.ParentTaskID != "" {
		return CanSetParent(ParentContext{
			ProjectID:       ctx.ProjectID,
			ParentTaskID:    ctx.ParentTaskID,
			ParentExists:    ctx.ParentExists,
			ParentProjectID: ctx.ParentProjectID,
		})
	}

	return GuardResult{Allowed: true}
}

// CanSetParent evaluates whether a task can be moved under a parent.
// Rules:
// - A task cannot be its own parent
// - Parent must exist
// - Parent must belong to the same project
func CanSetParent(ctx ParentContext) GuardResult {
	if ctx.TaskID != "" && ctx.TaskID == ctx.ParentTaskID {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("task %s cannot be its own parent", ctx.TaskID),
		}
	}

	if !ctx.ParentExists {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("parent task %s not found", ctx.ParentTaskID),
		}
	}

	if ctx.ParentProjectID != ctx.ProjectID {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("parent task %s belongs to another project", ctx.ParentTaskID),
		}
	}

	return GuardResult{Allowed: true}
}

// CanChangeStatus evaluates whether a task can move to a new status.
// Rules:
// - New status must be a known status
// - Cancelled tasks can only be reopened to todo
func CanChangeStatus(ctx StatusChangeContext) GuardResult {
	if !IsValidStatus(ctx.NewStatus) {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("invalid status %q (valid: todo, inprogress, inreview, done, cancelled)", ctx.NewStatus),
		}
	}

	if ctx.CurrentStatus == StatusCancelled && ctx.NewStatus != StatusTodo && ctx.NewStatus != StatusCancelled {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("task %s is cancelled. Reopen it first with: kanband task update %s --status todo", ctx.TaskID, ctx.TaskID),
		}
	}

	return GuardResult{Allowed: true}
}

// CanDeleteTask evaluates whether a task can be deleted.
// Rules:
// - Task must have no running executions
func CanDeleteTask(ctx DeleteTaskContext) GuardResult {
	if ctx.RunningExecutions > 0 {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("task %s has %d running execution(s). Wait for them to finish or stop them first", ctx.TaskID, ctx.RunningExecutions),
		}
	}

	return GuardResult{Allowed: true}
}
