// Package wire assembles the kanband application from its configuration.
// A Container owns the database handle, the store registry, the outbox
// dispatcher and the services built on them; nothing here is global.
package wire

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	cliadapter "github.com/example/kanband/internal/adapters/cli"
	"github.com/example/kanband/internal/adapters/process"
	"github.com/example/kanband/internal/adapters/sqlite"
	"github.com/example/kanband/internal/app"
	"github.com/example/kanband/internal/config"
	"github.com/example/kanband/internal/db"
	"github.com/example/kanband/internal/msgstore"
	"github.com/example/kanband/internal/outbox"
)

// Container holds every long-lived component of one kanband process.
type Container struct {
	Config config.Config
	Logger zerolog.Logger

	DB         *sql.DB
	Stores     *msgstore.Registry
	Dispatcher *outbox.Dispatcher

	Projects   *app.ProjectServiceImpl
	Tasks      *app.TaskServiceImpl
	Executions *app.ExecutionServiceImpl
	Streams    *app.StreamServiceImpl
	Outbox     *app.OutboxServiceImpl
}

// New opens the database named by cfg and builds the container.
func New(cfg config.Config, logger zerolog.Logger) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return NewWithDB(cfg, database, logger), nil
}

// NewWithDB builds the container over an already initialized database.
func NewWithDB(cfg config.Config, database *sql.DB, logger zerolog.Logger) *Container {
	// Repository adapters (secondary ports)
	projectRepo := sqlite.NewProjectRepository(database)
	taskRepo := sqlite.NewTaskRepository(database)
	executionRepo := sqlite.NewExecutionRepository(database)
	outboxRepo := sqlite.NewOutboxRepository(database)

	stores := msgstore.NewRegistry(cfg.MessageStore())
	dispatcher := outbox.NewDispatcher(outboxRepo, projectRepo, taskRepo, executionRepo, stores, outbox.Settings{
		PollInterval: cfg.Outbox.PollInterval.Duration,
		BatchSize:    cfg.Outbox.BatchSize,
	}, logger)

	// Services (primary ports implementation)
	return &Container{
		Config:     cfg,
		Logger:     logger,
		DB:         database,
		Stores:     stores,
		Dispatcher: dispatcher,
		Projects:   app.NewProjectService(projectRepo),
		Tasks:      app.NewTaskService(taskRepo, executionRepo),
		Executions: app.NewExecutionService(executionRepo, taskRepo, projectRepo, process.NewSpawner(), stores, cfg.Agent, logger),
		Streams:    app.NewStreamService(stores),
		Outbox:     app.NewOutboxService(outboxRepo, cfg.Outbox.RetentionDays),
	}
}

// Close stops running executions and closes the database.
func (c *Container) Close(ctx context.Context) error {
	return errors.Join(c.Executions.Shutdown(ctx), c.DB.Close())
}

// ProjectAdapter returns a ProjectAdapter writing to out.
// Each call creates a new adapter (adapters are stateless translators).
func (c *Container) ProjectAdapter(out io.Writer) *cliadapter.ProjectAdapter {
	return cliadapter.NewProjectAdapter(c.Projects, out)
}

// TaskAdapter returns a TaskAdapter writing to out.
func (c *Container) TaskAdapter(out io.Writer) *cliadapter.TaskAdapter {
	return cliadapter.NewTaskAdapter(c.Tasks, c.Executions, out)
}

// OutboxAdapter returns an OutboxAdapter writing to out.
func (c *Container) OutboxAdapter(out io.Writer) *cliadapter.OutboxAdapter {
	return cliadapter.NewOutboxAdapter(c.Outbox, out)
}

// StreamAdapter returns a StreamAdapter writing to out.
func (c *Container) StreamAdapter(out io.Writer) *cliadapter.StreamAdapter {
	return cliadapter.NewStreamAdapter(c.Streams, out)
}
