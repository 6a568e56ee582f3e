// Package execution contains the pure business logic for execution processes.
package execution

import "fmt"

// Run reasons.
const (
	RunReasonSetupScript   = "setupscript"
	RunReasonCodingAgent   = "codingagent"
	RunReasonCleanupScript = "cleanupscript"
	RunReasonDevServer     = "devserver"
)

// Executors.
const (
	ExecutorScript    = "script"
	ExecutorAppServer = "appserver"
)

// Execution statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusKilled    = "killed"
)

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

// StartContext provides context for starting an execution.
type StartContext struct {
	TaskID     string
	TaskExists bool
	TaskClosed bool // done or cancelled
	RunReason  string
	Executor   string
	HasCommand bool
}

// StopContext provides context for stopping an execution.
type StopContext struct {
	ExecutionID string
	Status      string
	Tracked     bool // a live process is known for this execution
}

// CanStart evaluates whether an execution can be started.
// Rules:
// - Task must exist and be open
// - Run reason and executor must be known
// - A command is required
func CanStart(ctx StartContext) GuardResult {
	if !ctx.TaskExists {
		return GuardResult{Allowed: false, Reason: fmt.Sprintf("task %s not found", ctx.TaskID)}
	}
	if ctx.TaskClosed {
		return GuardResult{Allowed: false, Reason: fmt.Sprintf("task %s is closed. Reopen it before starting executions", ctx.TaskID)}
	}

	switch ctx.RunReason {
	case RunReasonSetupScript, RunReasonCodingAgent, RunReasonCleanupScript, RunReasonDevServer:
	default:
		return GuardResult{Allowed: false, Reason: fmt.Sprintf("invalid run reason %q", ctx.RunReason)}
	}

	switch ctx.Executor {
	case ExecutorScript, ExecutorAppServer:
	default:
		return GuardResult{Allowed: false, Reason: fmt.Sprintf("invalid executor %q", ctx.Executor)}
	}

	if !ctx.HasCommand {
		return GuardResult{Allowed: false, Reason: "a command is required"}
	}

	return GuardResult{Allowed: true}
}

// CanStop evaluates whether an execution can be stopped.
// Rules:
// - Status must be running
// - This process must own the running execution
func CanStop(ctx StopContext) GuardResult {
	if ctx.Status != StatusRunning {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("can only stop running executions (execution %s is %s)", ctx.ExecutionID, ctx.Status),
		}
	}
	if !ctx.Tracked {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("execution %s is not running in this process", ctx.ExecutionID),
		}
	}

	return GuardResult{Allowed: true}
}

// StatusForExit maps a process exit to a terminal status.
func StatusForExit(exitCode int, killed bool) string {
	switch {
	case killed:
		return StatusKilled
	case exitCode == 0:
		return StatusCompleted
	default:
		return StatusFailed
	}
}
