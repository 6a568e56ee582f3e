package app

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/example/kanband/internal/ports/secondary"
)

// ============================================================================
// Repository mocks shared across service tests
// ============================================================================

// mockProjectRepository implements secondary.ProjectRepository for testing.
type mockProjectRepository struct {
	projects  map[string]*secondary.ProjectRecord
	createErr error
	listErr   error
	deleted   []string
}

func newMockProjectRepository() *mockProjectRepository {
	return &mockProjectRepository{projects: make(map[string]*secondary.ProjectRecord)}
}

func (m *mockProjectRepository) Create(ctx context.Context, project *secondary.ProjectRecord) error {
	if m.createErr != nil {
		return m.createErr
	}
	cp := *project
	cp.CreatedAt = "2026-01-01 00:00:00"
	cp.UpdatedAt = cp.CreatedAt
	m.projects[project.ID] = &cp
	return nil
}

func (m *mockProjectRepository) GetByID(ctx context.Context, id string) (*secondary.ProjectRecord, error) {
	if p, ok := m.projects[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, errors.New("project " + id + " not found")
}

func (m *mockProjectRepository) FindByID(ctx context.Context, id string) (*secondary.ProjectRecord, error) {
	if p, ok := m.projects[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (m *mockProjectRepository) List(ctx context.Context) ([]*secondary.ProjectRecord, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []*secondary.ProjectRecord
	for _, p := range m.projects {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *mockProjectRepository) Update(ctx context.Context, project *secondary.ProjectRecord) error {
	if _, ok := m.projects[project.ID]; !ok {
		return errors.New("project " + project.ID + " not found")
	}
	cp := *project
	m.projects[project.ID] = &cp
	return nil
}

func (m *mockProjectRepository) Delete(ctx context.Context, id string) error {
	delete(m.projects, id)
	m.deleted = append(m.deleted, id)
	return nil
}

// mockTaskRepository implements secondary.TaskRepository for testing.
type mockTaskRepository struct {
	tasks         map[string]*secondary.TaskRecord
	projects      map[string]bool
	createErr     error
	statusUpdates []string
	deleted       []string
}

func newMockTaskRepository() *mockTaskRepository {
	return &mockTaskRepository{
		tasks:    make(map[string]*secondary.TaskRecord),
		projects: map[string]bool{"p1": true},
	}
}

func (m *mockTaskRepository) Create(ctx context.Context, task *secondary.TaskRecord) error {
	if m.createErr != nil {
		return m.createErr
	}
	cp := *task
	m.tasks[task.ID] = &cp
	return nil
}

func (m *mockTaskRepository) GetByID(ctx context.Context, id string) (*secondary.TaskRecord, error) {
	if t, ok := m.tasks[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, errors.New("task " + id + " not found")
}

func (m *mockTaskRepository) FindByID(ctx context.Context, id string) (*secondary.TaskRecord, error) {
	if t, ok := m.tasks[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (m *mockTaskRepository) List(ctx context.Context, filters secondary.TaskFilters) ([]*secondary.TaskRecord, error) {
	var result []*secondary.TaskRecord
	for _, t := range m.tasks {
		if filters.ProjectID != "" && t.ProjectID != filters.ProjectID {
			continue
		}
		if filters.Status != "" && t.Status != filters.Status {
			continue
		}
		result = append(result, t)
	}
	return result, nil
}

func (m *mockTaskRepository) Update(ctx context.Context, task *secondary.TaskRecord) error {
	if _, ok := m.tasks[task.ID]; !ok {
		return errors.New("task " + task.ID + " not found")
	}
	cp := *task
	m.tasks[task.ID] = &cp
	return nil
}

func (m *mockTaskRepository) UpdateStatus(ctx context.Context, id, status string) error {
	t, ok := m.tasks[id]
	if !ok {
		return errors.New("task " + id + " not found")
	}
	t.Status = status
	m.statusUpdates = append(m.statusUpdates, status)
	return nil
}

func (m *mockTaskRepository) Delete(ctx context.Context, id string) error {
	delete(m.tasks, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockTaskRepository) ProjectExists(ctx context.Context, projectID string) (bool, error) {
	return m.projects[projectID], nil
}

// mockExecutionRepository implements secondary.ExecutionRepository for
// testing. Supervisors write to it from their own goroutines.
type mockExecutionRepository struct {
	mu         sync.Mutex
	executions map[string]*secondary.ExecutionRecord
	order      []string
	running    map[string]int // task id -> CountRunning override
	createErr  error
}

func newMockExecutionRepository() *mockExecutionRepository {
	return &mockExecutionRepository{
		executions: make(map[string]*secondary.ExecutionRecord),
		running:    make(map[string]int),
	}
}

func (m *mockExecutionRepository) Create(ctx context.Context, execution *secondary.ExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *execution
	cp.Status = "running"
	m.executions[execution.ID] = &cp
	m.order = append(m.order, execution.ID)
	return nil
}

func (m *mockExecutionRepository) GetByID(ctx context.Context, id string) (*secondary.ExecutionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.executions[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, errors.New("execution process " + id + " not found")
}

func (m *mockExecutionRepository) FindByID(ctx context.Context, id string) (*secondary.ExecutionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.executions[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

func (m *mockExecutionRepository) ListByTask(ctx context.Context, taskID string) ([]*secondary.ExecutionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*secondary.ExecutionRecord
	for i := len(m.order) - 1; i >= 0; i-- {
		e := m.executions[m.order[i]]
		if e.TaskID == taskID {
			cp := *e
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *mockExecutionRepository) SetSessionID(ctx context.Context, id, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok {
		return errors.New("execution process " + id + " not found")
	}
	e.SessionID = sessionID
	return nil
}

func (m *mockExecutionRepository) Complete(ctx context.Context, id, status string, exitCode *int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok {
		return errors.New("execution process " + id + " not found")
	}
	e.Status = status
	e.ExitCode = exitCode
	e.CompletedAt = "2026-01-01 00:00:01"
	return nil
}

func (m *mockExecutionRepository) CountRunning(ctx context.Context, taskID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running[taskID], nil
}

// ============================================================================
// Process fakes
// ============================================================================

// fakeProcess is an in-memory child process. The test plays the child by
// writing to stdoutW/stderrW and reading stdinR, then calls exit.
type fakeProcess struct {
	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	stderrR *io.PipeReader
	stderrW *io.PipeWriter

	exitCh chan int
	once   sync.Once
	killed atomic.Bool
}

func newFakeProcess() *fakeProcess {
	p := &fakeProcess{exitCh: make(chan int, 1)}
	p.stdinR, p.stdinW = io.Pipe()
	p.stdoutR, p.stdoutW = io.Pipe()
	p.stderrR, p.stderrW = io.Pipe()
	return p
}

func (p *fakeProcess) Pid() int              { return 4242 }
func (p *fakeProcess) Stdin() io.WriteCloser { return p.stdinW }
func (p *fakeProcess) Stdout() io.Reader     { return p.stdoutR }
func (p *fakeProcess) Stderr() io.Reader     { return p.stderrR }

// exit closes the child's side of the pipes and reports code from Wait.
func (p *fakeProcess) exit(code int) {
	p.once.Do(func() {
		p.stdoutW.Close()
		p.stderrW.Close()
		p.stdinR.Close()
		p.exitCh <- code
	})
}

func (p *fakeProcess) Wait() (int, error) {
	return <-p.exitCh, nil
}

func (p *fakeProcess) Kill() error {
	p.killed.Store(true)
	p.exit(-1)
	return nil
}

// fakeSpawner implements secondary.ProcessSpawner. Each spawned process is
// driven by run on its own goroutine.
type fakeSpawner struct {
	mu       sync.Mutex
	spawnErr error
	run      func(p *fakeProcess)
	specs    []secondary.ProcessSpec
	procs    []*fakeProcess
}

func (s *fakeSpawner) Spawn(ctx context.Context, spec secondary.ProcessSpec) (secondary.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specs = append(s.specs, spec)
	if s.spawnErr != nil {
		return nil, s.spawnErr
	}
	p := newFakeProcess()
	s.procs = append(s.procs, p)
	if s.run != nil {
		go s.run(p)
	}
	return p, nil
}

func (s *fakeSpawner) lastSpec() secondary.ProcessSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.specs[len(s.specs)-1]
}
