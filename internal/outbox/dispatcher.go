package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/kanband/internal/msgstore"
	"github.com/example/kanband/internal/patch"
	"github.com/example/kanband/internal/ports/secondary"
)

// Default polling settings.
const (
	DefaultPollInterval = 250 * time.Millisecond
	DefaultBatchSize    = 100
)

// Settings tunes the dispatcher loop.
type Settings struct {
	PollInterval time.Duration
	BatchSize    int
}

// Result counts what one DispatchOnce pass did.
type Result struct {
	Published int
	Failed    int
	Parked    int
}

// Dispatcher publishes outbox rows to the message stores.
type Dispatcher struct {
	outbox     secondary.OutboxRepository
	projects   secondary.ProjectRepository
	tasks      secondary.TaskRepository
	executions secondary.ExecutionRepository
	stores     *msgstore.Registry
	settings   Settings
	logger     zerolog.Logger
}

// NewDispatcher creates a dispatcher. Zero settings take the defaults.
func NewDispatcher(
	outboxRepo secondary.OutboxRepository,
	projects secondary.ProjectRepository,
	tasks secondary.TaskRepository,
	executions secondary.ExecutionRepository,
	stores *msgstore.Registry,
	settings Settings,
	logger zerolog.Logger,
) *Dispatcher {
	if settings.PollInterval <= 0 {
		settings.PollInterval = DefaultPollInterval
	}
	if settings.BatchSize < 1 {
		settings.BatchSize = DefaultBatchSize
	}
	return &Dispatcher{
		outbox:     outboxRepo,
		projects:   projects,
		tasks:      tasks,
		executions: executions,
		stores:     stores,
		settings:   settings,
		logger:     logger.With().Str("component", "outbox").Logger(),
	}
}

// Run polls until ctx is cancelled. Poll errors are logged and retried on
// the next tick.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.settings.PollInterval)
	defer ticker.Stop()

	d.logger.Info().Dur("poll_interval", d.settings.PollInterval).Int("batch_size", d.settings.BatchSize).Msg("dispatcher started")
	for {
		if _, err := d.DispatchOnce(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error().Err(err).Msg("dispatch failed")
		}

		select {
		case <-ctx.Done():
			d.logger.Info().Msg("dispatcher stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// DispatchOnce publishes one batch of pending rows in order. Row failures
// are recorded on the row; only a failed fetch is returned.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (Result, error) {
	var result Result

	rows, err := d.outbox.FetchPending(ctx, d.settings.BatchSize)
	if err != nil {
		return result, err
	}

	for _, row := range rows {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		logger := d.logger.With().Int64("row", row.ID).Str("event_type", row.EventType).Str("entity", row.EntityUUID).Logger()

		eventType, err := ParseEventType(row.EventType)
		if err != nil {
			d.park(ctx, logger, row, err)
			result.Parked++
			continue
		}
		payload, err := DecodePayload(eventType, row.Payload)
		if err != nil {
			d.park(ctx, logger, row, err)
			result.Parked++
			continue
		}

		if err := d.publish(ctx, eventType, payload); err != nil {
			logger.Warn().Err(err).Int("attempts", row.Attempts+1).Msg("publish failed, will retry")
			if ferr := d.outbox.RecordFailure(ctx, row.ID, err.Error()); ferr != nil {
				logger.Error().Err(ferr).Msg("failed to record outbox failure")
			}
			result.Failed++
			continue
		}

		if err := d.outbox.MarkPublished(ctx, row.ID); err != nil {
			// The patch is out; the row will be delivered again.
			logger.Error().Err(err).Msg("failed to mark outbox row published")
			result.Failed++
			continue
		}
		result.Published++
	}

	return result, nil
}

func (d *Dispatcher) park(ctx context.Context, logger zerolog.Logger, row *secondary.OutboxRecord, cause error) {
	logger.Error().Err(cause).Msg("parking outbox row")
	if err := d.outbox.Park(ctx, row.ID, cause.Error()); err != nil {
		logger.Error().Err(err).Msg("failed to park outbox row")
	}
}

// publish re-reads the entity and pushes the patch for t onto its store.
func (d *Dispatcher) publish(ctx context.Context, t EventType, p Payload) error {
	route := RouteFor(t, p)

	var ops patch.Patch
	if t.Action() == ActionDeleted {
		ops = patch.Remove(route.Collection, p.ID)
	} else {
		entity, err := d.fetch(ctx, t.Entity(), p.ID)
		if err != nil {
			return err
		}
		if entity == nil {
			// Deleted before we got here; its deleted event follows.
			d.logger.Debug().Str("event_type", t.String()).Str("entity", p.ID).Msg("entity gone, skipping")
			return nil
		}

		build := patch.Replace
		if t.Action() == ActionCreated {
			build = patch.Add
		}
		ops, err = build(route.Collection, p.ID, entity)
		if err != nil {
			return err
		}
	}

	d.stores.GetOrCreate(route.StoreKey).PushPatch(ops)
	return nil
}

// fetch returns the current row for an entity, or nil when it is gone.
func (d *Dispatcher) fetch(ctx context.Context, entity EntityType, id string) (any, error) {
	switch entity {
	case EntityProject:
		record, err := d.projects.FindByID(ctx, id)
		if err != nil || record == nil {
			return nil, err
		}
		return record, nil
	case EntityTask:
		record, err := d.tasks.FindByID(ctx, id)
		if err != nil || record == nil {
			return nil, err
		}
		return record, nil
	case EntityExecutionProcess:
		record, err := d.executions.FindByID(ctx, id)
		if err != nil || record == nil {
			return nil, err
		}
		return record, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnroutable, entity)
	}
}
