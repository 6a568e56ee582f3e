package primary

import "context"

// ExecutionService defines the primary port for execution processes.
type ExecutionService interface {
	// StartScript spawns a command for a task and streams its output.
	StartScript(ctx context.Context, req StartScriptRequest) (*Execution, error)

	// StartAgent spawns the configured app-server agent and sends it a prompt.
	StartAgent(ctx context.Context, req StartAgentRequest) (*Execution, error)

	// Wait blocks until the execution has finished and returns its final state.
	Wait(ctx context.Context, executionID string) (*Execution, error)

	// Stop kills a running execution started by this process.
	Stop(ctx context.Context, executionID string) error

	// GetExecution retrieves an execution by ID.
	GetExecution(ctx context.Context, executionID string) (*Execution, error)

	// ListExecutions lists the executions of a task, newest first.
	ListExecutions(ctx context.Context, taskID string) ([]*Execution, error)
}

// StartScriptRequest contains parameters for a script execution.
type StartScriptRequest struct {
	TaskID    string
	RunReason string // Optional, defaults to setupscript
	Command   string
	Args      []string
	Dir       string // Optional, defaults to the project repository
}

// StartAgentRequest contains parameters for an agent execution.
type StartAgentRequest struct {
	TaskID string
	Prompt string
	Model  string // Optional, overrides the configured model
	Dir    string // Optional, defaults to the project repository
}

// Execution represents an execution process at the port boundary.
type Execution struct {
	ID          string
	TaskID      string
	RunReason   string
	Executor    string
	Status      string
	ExitCode    *int
	SessionID   string
	StartedAt   string
	CompletedAt string
	// StoreKey names the message store carrying this execution's log.
	StoreKey string
}
