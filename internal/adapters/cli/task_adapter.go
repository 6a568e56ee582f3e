package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/example/kanband/internal/ports/primary"
)

// TaskAdapter is a thin adapter that translates CLI operations to TaskService calls.
type TaskAdapter struct {
	service    primary.TaskService
	executions primary.ExecutionService
	out        io.Writer
}

// NewTaskAdapter creates a new TaskAdapter with the given services.
func NewTaskAdapter(service primary.TaskService, executions primary.ExecutionService, out io.Writer) *TaskAdapter {
	return &TaskAdapter{
		service:    service,
		executions: executions,
		out:        out,
	}
}

// Create creates a new task.
func (a *TaskAdapter) Create(ctx context.Context, req primary.CreateTaskRequest) (*primary.Task, error) {
	resp, err := a.service.CreateTask(ctx, req)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(a.out, "✓ Created task %s: %s\n", resp.TaskID, resp.Task.Title)
	if resp.Task.ParentTaskID != "" {
		fmt.Fprintf(a.out, "  Parent: %s\n", resp.Task.ParentTaskID)
	}
	return resp.Task, nil
}

// List lists tasks with optional filters.
func (a *TaskAdapter) List(ctx context.Context, filters primary.TaskFilters) ([]*primary.Task, error) {
	tasks, err := a.service.ListTasks(ctx, filters)
	if err != nil {
		return nil, err
	}

	if len(tasks) == 0 {
		fmt.Fprintln(a.out, "No tasks found.")
		return tasks, nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tTITLE\tUPDATED")
	fmt.Fprintln(w, "--\t------\t-----\t-------")
	for _, t := range tasks {
		title := t.Title
		if t.ParentTaskID != "" {
			title = "↳ " + title
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, colorStatus(t.Status), title, relativeTime(t.UpdatedAt))
	}
	w.Flush()

	return tasks, nil
}

// Show displays a task and its executions.
func (a *TaskAdapter) Show(ctx context.Context, taskID string) (*primary.Task, error) {
	task, err := a.service.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	fmt.Fprintf(a.out, "\nTask:    %s\n", task.ID)
	fmt.Fprintf(a.out, "Title:   %s\n", task.Title)
	fmt.Fprintf(a.out, "Status:  %s\n", colorStatus(task.Status))
	fmt.Fprintf(a.out, "Project: %s\n", task.ProjectID)
	if task.ParentTaskID != "" {
		fmt.Fprintf(a.out, "Parent:  %s\n", task.ParentTaskID)
	}
	if task.Description != "" {
		fmt.Fprintf(a.out, "Description: %s\n", task.Description)
	}
	fmt.Fprintf(a.out, "Created: %s\n", task.CreatedAt)

	executions, err := a.executions.ListExecutions(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if len(executions) > 0 {
		fmt.Fprintln(a.out, "\nExecutions:")
		w := tabwriter.NewWriter(a.out, 0, 0, 3, ' ', 0)
		for _, e := range executions {
			exit := "-"
			if e.ExitCode != nil {
				exit = fmt.Sprint(*e.ExitCode)
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\texit %s\t%s\n", e.ID, e.RunReason, e.Executor, colorStatus(e.Status), exit, relativeTime(e.StartedAt))
		}
		w.Flush()
	}
	fmt.Fprintln(a.out)

	return task, nil
}

// Update updates a task's fields and/or status.
func (a *TaskAdapter) Update(ctx context.Context, req primary.UpdateTaskRequest, status string) error {
	if req.Title == nil && req.Description == nil && req.ParentTaskID == nil && status == "" {
		return fmt.Errorf("must specify at least one of --title, --description, --parent or --status")
	}

	if req.Title != nil || req.Description != nil || req.ParentTaskID != nil {
		if err := a.service.UpdateTask(ctx, req); err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}
	}
	if status != "" {
		if err := a.service.SetStatus(ctx, req.TaskID, status); err != nil {
			return err
		}
	}

	fmt.Fprintf(a.out, "✓ Task %s updated\n", req.TaskID)
	return nil
}

// Delete deletes a task.
func (a *TaskAdapter) Delete(ctx context.Context, taskID string) error {
	task, err := a.service.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to get task: %w", err)
	}

	if err := a.service.DeleteTask(ctx, taskID); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "✓ Deleted task %s: %s\n", task.ID, task.Title)
	return nil
}
