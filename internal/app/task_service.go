package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	coretask "github.com/example/kanband/internal/core/task"
	"github.com/example/kanband/internal/ports/primary"
	"github.com/example/kanband/internal/ports/secondary"
)

// TaskServiceImpl implements the TaskService interface.
type TaskServiceImpl struct {
	taskRepo      secondary.TaskRepository
	executionRepo secondary.ExecutionRepository
}

// NewTaskService creates a new TaskService with injected dependencies.
func NewTaskService(
	taskRepo secondary.TaskRepository,
	executionRepo secondary.ExecutionRepository,
) *TaskServiceImpl {
	return &TaskServiceImpl{
		taskRepo:      taskRepo,
		executionRepo: executionRepo,
	}
}

// CreateTask creates a new task.
func (s *TaskServiceImpl) CreateTask(ctx context.Context, req primary.CreateTaskRequest) (*primary.CreateTaskResponse, error) {
	exists, err := s.taskRepo.ProjectExists(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to validate project: %w", err)
	}

	guardCtx := coretask.CreateTaskContext{
		ProjectID:     req.ProjectID,
		ProjectExists: exists,
		Title:         strings.TrimSpace(req.Title),
		ParentTaskID:  req.ParentTaskID,
	}
	if req.ParentTaskID != "" {
		parent, err := s.taskRepo.FindByID(ctx, req.ParentTaskID)
		if err != nil {
			return nil, fmt.Errorf("failed to validate parent task: %w", err)
		}
		if parent != nil {
			guardCtx.ParentExists = true
			guardCtx.ParentProjectID = parent.ProjectID
		}
	}
	if err := coretask.CanCreateTask(guardCtx).Error(); err != nil {
		return nil, err
	}

	record := &secondary.TaskRecord{
		ID:           uuid.NewString(),
		ProjectID:    req.ProjectID,
		Title:        guardCtx.Title,
		Description:  req.Description,
		Status:       coretask.StatusTodo,
		ParentTaskID: req.ParentTaskID,
	}
	if err := s.taskRepo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	created, err := s.taskRepo.GetByID(ctx, record.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch created task: %w", err)
	}

	return &primary.CreateTaskResponse{
		TaskID: created.ID,
		Task:   recordToTask(created),
	}, nil
}

// GetTask retrieves a task by ID.
func (s *TaskServiceImpl) GetTask(ctx context.Context, taskID string) (*primary.Task, error) {
	record, err := s.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return recordToTask(record), nil
}

// ListTasks lists tasks with optional filters.
func (s *TaskServiceImpl) ListTasks(ctx context.Context, filters primary.TaskFilters) ([]*primary.Task, error) {
	if filters.Status != "" && !coretask.IsValidStatus(filters.Status) {
		return nil, fmt.Errorf("invalid status %q", filters.Status)
	}

	records, err := s.taskRepo.List(ctx, secondary.TaskFilters{
		ProjectID: filters.ProjectID,
		Status:    filters.Status,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	tasks := make([]*primary.Task, len(records))
	for i, r := range records {
		tasks[i] = recordToTask(r)
	}
	return tasks, nil
}

// UpdateTask updates a task's title, description and/or parent.
func (s *TaskServiceImpl) UpdateTask(ctx context.Context, req primary.UpdateTaskRequest) error {
	record, err := s.taskRepo.GetByID(ctx, req.TaskID)
	if err != nil {
		return err
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return fmt.Errorf("task title is required")
		}
		record.Title = title
	}
	if req.Description != nil {
		record.Description = *req.Description
	}
	if req.ParentTaskID != nil {
		parentID := *req.ParentTaskID
		if parentID != "" {
			parent, err := s.taskRepo.FindByID(ctx, parentID)
			if err != nil {
				return fmt.Errorf("failed to validate parent task: %w", err)
			}
			guardCtx := coretask.ParentContext{
				TaskID:       record.ID,
				ProjectID:    record.ProjectID,
				ParentTaskID: parentID,
			}
			if parent != nil {
				guardCtx.ParentExists = true
				guardCtx.ParentProjectID = parent.ProjectID
			}
			if err := coretask.CanSetParent(guardCtx).Error(); err != nil {
				return err
			}
		}
		record.ParentTaskID = parentID
	}

	return s.taskRepo.Update(ctx, record)
}

// SetStatus moves a task to a new status.
func (s *TaskServiceImpl) SetStatus(ctx context.Context, taskID, status string) error {
	record, err := s.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		return err
	}

	result := coretask.CanChangeStatus(coretask.StatusChangeContext{
		TaskID:        taskID,
		CurrentStatus: record.Status,
		NewStatus:     status,
	})
	if err := result.Error(); err != nil {
		return err
	}
	if record.Status == status {
		return nil
	}

	return s.taskRepo.UpdateStatus(ctx, taskID, status)
}

// DeleteTask deletes a task.
func (s *TaskServiceImpl) DeleteTask(ctx context.Context, taskID string) error {
	if _, err := s.taskRepo.GetByID(ctx, taskID); err != nil {
		return err
	}

	running, err := s.executionRepo.CountRunning(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to count running executions: %w", err)
	}
	if err := coretask.CanDeleteTask(coretask.DeleteTaskContext{TaskID: taskID, RunningExecutions: running}).Error(); err != nil {
		return err
	}

	return s.taskRepo.Delete(ctx, taskID)
}

// Helper functions

func recordToTask(r *secondary.TaskRecord) *primary.Task {
	return &primary.Task{
		ID:           r.ID,
		ProjectID:    r.ProjectID,
		Title:        r.Title,
		Description:  r.Description,
		Status:       r.Status,
		ParentTaskID: r.ParentTaskID,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// Ensure TaskServiceImpl implements the interface
var _ primary.TaskService = (*TaskServiceImpl)(nil)
