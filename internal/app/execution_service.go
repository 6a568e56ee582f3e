package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/kanband/internal/agent"
	"github.com/example/kanband/internal/config"
	"github.com/example/kanband/internal/core/execution"
	coretask "github.com/example/kanband/internal/core/task"
	"github.com/example/kanband/internal/msgstore"
	"github.com/example/kanband/internal/ports/primary"
	"github.com/example/kanband/internal/ports/secondary"
)

// DefaultAgentExitGrace is how long an agent may take to exit after its
// session ends before it is killed.
const DefaultAgentExitGrace = 5 * time.Second

// ExecutionServiceImpl implements the ExecutionService interface. It owns
// the processes it starts: each runs under a supervisor goroutine that
// forwards output into the execution's log store, records the outcome and
// pushes Finished.
type ExecutionServiceImpl struct {
	executionRepo secondary.ExecutionRepository
	taskRepo      secondary.TaskRepository
	projectRepo   secondary.ProjectRepository
	spawner       secondary.ProcessSpawner
	stores        *msgstore.Registry
	agentCfg      config.AgentConfig
	logger        zerolog.Logger
	exitGrace     time.Duration

	mu      sync.Mutex
	running map[string]*runningExecution
}

type runningExecution struct {
	proc   secondary.Process
	cancel context.CancelFunc
	killed atomic.Bool
	done   chan struct{}
}

// NewExecutionService creates a new ExecutionService with injected dependencies.
func NewExecutionService(
	executionRepo secondary.ExecutionRepository,
	taskRepo secondary.TaskRepository,
	projectRepo secondary.ProjectRepository,
	spawner secondary.ProcessSpawner,
	stores *msgstore.Registry,
	agentCfg config.AgentConfig,
	logger zerolog.Logger,
) *ExecutionServiceImpl {
	return &ExecutionServiceImpl{
		executionRepo: executionRepo,
		taskRepo:      taskRepo,
		projectRepo:   projectRepo,
		spawner:       spawner,
		stores:        stores,
		agentCfg:      agentCfg,
		logger:        logger.With().Str("component", "executions").Logger(),
		exitGrace:     DefaultAgentExitGrace,
		running:       make(map[string]*runningExecution),
	}
}

// StartScript spawns a command for a task and streams its output.
func (s *ExecutionServiceImpl) StartScript(ctx context.Context, req primary.StartScriptRequest) (*primary.Execution, error) {
	runReason := req.RunReason
	if runReason == "" {
		runReason = execution.RunReasonSetupScript
	}

	task, dir, err := s.resolve(ctx, req.TaskID, req.Dir)
	if err != nil {
		return nil, err
	}
	if err := execution.CanStart(startContext(req.TaskID, task, runReason, execution.ExecutorScript, req.Command != "")).Error(); err != nil {
		return nil, err
	}

	record, store, err := s.create(ctx, req.TaskID, runReason, execution.ExecutorScript)
	if err != nil {
		return nil, err
	}

	proc, err := s.spawner.Spawn(ctx, secondary.ProcessSpec{Command: req.Command, Args: req.Args, Dir: dir})
	if err != nil {
		s.abort(record.ID, store, err)
		return nil, fmt.Errorf("failed to start execution: %w", err)
	}
	// Scripts get no input.
	proc.Stdin().Close()

	run := s.track(record.ID, proc, nil)
	s.logger.Info().Str("execution", record.ID).Str("task", req.TaskID).Int("pid", proc.Pid()).Str("command", req.Command).Msg("script started")

	go s.superviseScript(record.ID, store, run)

	return s.GetExecution(ctx, record.ID)
}

// StartAgent spawns the configured app-server agent and sends it a prompt.
func (s *ExecutionServiceImpl) StartAgent(ctx context.Context, req primary.StartAgentRequest) (*primary.Execution, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("prompt is required")
	}

	task, dir, err := s.resolve(ctx, req.TaskID, req.Dir)
	if err != nil {
		return nil, err
	}
	guard := startContext(req.TaskID, task, execution.RunReasonCodingAgent, execution.ExecutorAppServer, s.agentCfg.Command != "")
	if err := execution.CanStart(guard).Error(); err != nil {
		return nil, err
	}

	record, store, err := s.create(ctx, req.TaskID, execution.RunReasonCodingAgent, execution.ExecutorAppServer)
	if err != nil {
		return nil, err
	}

	proc, err := s.spawner.Spawn(ctx, secondary.ProcessSpec{Command: s.agentCfg.Command, Args: s.agentCfg.Args, Dir: dir})
	if err != nil {
		s.abort(record.ID, store, err)
		return nil, fmt.Errorf("failed to start agent: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	run := s.track(record.ID, proc, cancel)
	s.logger.Info().Str("execution", record.ID).Str("task", req.TaskID).Int("pid", proc.Pid()).Str("command", s.agentCfg.Command).Msg("agent started")

	model := req.Model
	if model == "" {
		model = s.agentCfg.Model
	}
	executionID := record.ID
	opts := agent.Options{
		Cwd:      dir,
		Model:    model,
		Prompt:   req.Prompt,
		Approval: s.agentCfg.Approval,
		Logger:   s.logger.With().Str("execution", executionID).Logger(),
		OnSessionID: func(sessionID string) {
			if err := s.executionRepo.SetSessionID(context.Background(), executionID, sessionID); err != nil {
				s.logger.Error().Err(err).Str("execution", executionID).Msg("failed to record session id")
			}
		},
	}

	go s.superviseAgent(runCtx, executionID, store, run, opts)

	return s.GetExecution(ctx, record.ID)
}

// Wait blocks until the execution has finished and returns its final state.
func (s *ExecutionServiceImpl) Wait(ctx context.Context, executionID string) (*primary.Execution, error) {
	s.mu.Lock()
	run, ok := s.running[executionID]
	s.mu.Unlock()

	if ok {
		select {
		case <-run.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.GetExecution(ctx, executionID)
}

// Stop kills a running execution started by this process.
func (s *ExecutionServiceImpl) Stop(ctx context.Context, executionID string) error {
	record, err := s.executionRepo.GetByID(ctx, executionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	run, tracked := s.running[executionID]
	s.mu.Unlock()

	guard := execution.CanStop(execution.StopContext{
		ExecutionID: executionID,
		Status:      record.Status,
		Tracked:     tracked,
	})
	if err := guard.Error(); err != nil {
		return err
	}

	run.killed.Store(true)
	if run.cancel != nil {
		run.cancel()
	}
	s.logger.Info().Str("execution", executionID).Msg("stopping execution")
	return run.proc.Kill()
}

// Shutdown stops every running execution and waits for their supervisors
// to record the outcome.
func (s *ExecutionServiceImpl) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.running))
	for id := range s.running {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := s.Stop(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := s.Wait(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GetExecution retrieves an execution by ID.
func (s *ExecutionServiceImpl) GetExecution(ctx context.Context, executionID string) (*primary.Execution, error) {
	record, err := s.executionRepo.GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}
	return recordToExecution(record), nil
}

// ListExecutions lists the executions of a task, newest first.
func (s *ExecutionServiceImpl) ListExecutions(ctx context.Context, taskID string) ([]*primary.Execution, error) {
	records, err := s.executionRepo.ListByTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	executions := make([]*primary.Execution, len(records))
	for i, r := range records {
		executions[i] = recordToExecution(r)
	}
	return executions, nil
}

// resolve loads the task and picks the working directory. A missing task is
// reported as nil so the start guard can name it.
func (s *ExecutionServiceImpl) resolve(ctx context.Context, taskID, dir string) (*secondary.TaskRecord, string, error) {
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load task: %w", err)
	}
	if task == nil || dir != "" {
		return task, dir, nil
	}

	project, err := s.projectRepo.FindByID(ctx, task.ProjectID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load project: %w", err)
	}
	if project != nil {
		dir = project.RepoPath
	}
	return task, dir, nil
}

func startContext(taskID string, task *secondary.TaskRecord, runReason, executor string, hasCommand bool) execution.StartContext {
	guard := execution.StartContext{
		TaskID:     taskID,
		TaskExists: task != nil,
		RunReason:  runReason,
		Executor:   executor,
		HasCommand: hasCommand,
	}
	if task != nil {
		guard.TaskClosed = coretask.IsClosed(task.Status)
	}
	return guard
}

// create records a running execution and opens its log store.
func (s *ExecutionServiceImpl) create(ctx context.Context, taskID, runReason, executor string) (*secondary.ExecutionRecord, *msgstore.Store, error) {
	record := &secondary.ExecutionRecord{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		RunReason: runReason,
		Executor:  executor,
		Status:    execution.StatusRunning,
	}
	if err := s.executionRepo.Create(ctx, record); err != nil {
		return nil, nil, fmt.Errorf("failed to create execution: %w", err)
	}
	return record, s.stores.GetOrCreate(msgstore.ExecutionLogKey(record.ID)), nil
}

// abort closes out an execution whose process never started.
func (s *ExecutionServiceImpl) abort(executionID string, store *msgstore.Store, cause error) {
	store.PushStderr(cause.Error() + "\n")
	s.finish(executionID, store, execution.StatusFailed, nil)
}

func (s *ExecutionServiceImpl) track(executionID string, proc secondary.Process, cancel context.CancelFunc) *runningExecution {
	run := &runningExecution{proc: proc, cancel: cancel, done: make(chan struct{})}
	s.mu.Lock()
	s.running[executionID] = run
	s.mu.Unlock()
	return run
}

func (s *ExecutionServiceImpl) superviseScript(executionID string, store *msgstore.Store, run *runningExecution) {
	var wg sync.WaitGroup
	forward := func(r io.Reader, kind msgstore.Kind) {
		defer wg.Done()
		if err := store.ForwardLines(context.Background(), r, kind); err != nil {
			s.logger.Warn().Err(err).Str("execution", executionID).Msg("output forwarding stopped")
		}
	}
	wg.Add(2)
	go forward(run.proc.Stdout(), msgstore.KindStdout)
	go forward(run.proc.Stderr(), msgstore.KindStderr)
	wg.Wait()

	code, err := run.proc.Wait()
	if err != nil {
		s.logger.Error().Err(err).Str("execution", executionID).Msg("wait failed")
		s.complete(executionID, store, run, execution.StatusFailed, nil)
		return
	}

	status := execution.StatusForExit(code, run.killed.Load())
	s.complete(executionID, store, run, status, exitCodePtr(code))
}

func (s *ExecutionServiceImpl) superviseAgent(ctx context.Context, executionID string, store *msgstore.Store, run *runningExecution, opts agent.Options) {
	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		if err := store.ForwardLines(context.Background(), run.proc.Stderr(), msgstore.KindStderr); err != nil {
			s.logger.Warn().Err(err).Str("execution", executionID).Msg("stderr forwarding stopped")
		}
	}()

	result, runErr := agent.Run(ctx, run.proc.Stdout(), run.proc.Stdin(), store, opts)
	run.proc.Stdin().Close()
	if runErr != nil && !run.killed.Load() {
		s.logger.Warn().Err(runErr).Str("execution", executionID).Msg("agent session failed")
		store.PushStderr(fmt.Sprintf("agent session failed: %v\n", runErr))
	}

	type exit struct {
		code int
		err  error
	}
	exited := make(chan exit, 1)
	go func() {
		if result.Drained != nil {
			<-result.Drained
		}
		<-stderrDone
		code, err := run.proc.Wait()
		exited <- exit{code: code, err: err}
	}()

	var res exit
	select {
	case res = <-exited:
	case <-time.After(s.exitGrace):
		s.logger.Warn().Str("execution", executionID).Dur("grace", s.exitGrace).Msg("agent did not exit, killing")
		if err := run.proc.Kill(); err != nil {
			s.logger.Error().Err(err).Str("execution", executionID).Msg("failed to kill agent")
		}
		res = <-exited
	}
	if res.err != nil {
		s.logger.Error().Err(res.err).Str("execution", executionID).Msg("wait failed")
	}

	status := execution.StatusCompleted
	switch {
	case run.killed.Load():
		status = execution.StatusKilled
	case runErr != nil || res.err != nil:
		status = execution.StatusFailed
	}
	s.logger.Info().Str("execution", executionID).Str("conversation", result.ConversationID).Str("status", status).Msg("agent finished")
	s.complete(executionID, store, run, status, exitCodePtr(res.code))
}

// complete records the outcome, finishes the log and releases waiters.
func (s *ExecutionServiceImpl) complete(executionID string, store *msgstore.Store, run *runningExecution, status string, exitCode *int) {
	s.finish(executionID, store, status, exitCode)

	s.mu.Lock()
	delete(s.running, executionID)
	s.mu.Unlock()
	if run.cancel != nil {
		run.cancel()
	}
	close(run.done)
}

func (s *ExecutionServiceImpl) finish(executionID string, store *msgstore.Store, status string, exitCode *int) {
	if err := s.executionRepo.Complete(context.Background(), executionID, status, exitCode); err != nil {
		s.logger.Error().Err(err).Str("execution", executionID).Msg("failed to record execution outcome")
	}
	store.PushFinished()
	s.logger.Info().Str("execution", executionID).Str("status", status).Msg("execution finished")
}

// exitCodePtr drops the -1 reported for signalled processes.
func exitCodePtr(code int) *int {
	if code < 0 {
		return nil
	}
	return &code
}

func recordToExecution(r *secondary.ExecutionRecord) *primary.Execution {
	return &primary.Execution{
		ID:          r.ID,
		TaskID:      r.TaskID,
		RunReason:   r.RunReason,
		Executor:    r.Executor,
		Status:      r.Status,
		ExitCode:    r.ExitCode,
		SessionID:   r.SessionID,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		StoreKey:    msgstore.ExecutionLogKey(r.ID),
	}
}

// Ensure ExecutionServiceImpl implements the interface
var _ primary.ExecutionService = (*ExecutionServiceImpl)(nil)
