package app

import (
	"context"
	"fmt"

	"github.com/example/kanband/internal/ports/primary"
	"github.com/example/kanband/internal/ports/secondary"
)

// OutboxServiceImpl implements the OutboxService interface.
type OutboxServiceImpl struct {
	outboxRepo    secondary.OutboxRepository
	retentionDays int
}

// NewOutboxService creates a new OutboxService. retentionDays is the
// default age for Prune.
func NewOutboxService(outboxRepo secondary.OutboxRepository, retentionDays int) *OutboxServiceImpl {
	return &OutboxServiceImpl{
		outboxRepo:    outboxRepo,
		retentionDays: retentionDays,
	}
}

// ListRows lists outbox rows, newest first.
func (s *OutboxServiceImpl) ListRows(ctx context.Context, filters primary.OutboxFilters) ([]*primary.OutboxRow, error) {
	switch filters.State {
	case "", secondary.OutboxStatePending, secondary.OutboxStateParked, secondary.OutboxStatePublished:
	default:
		return nil, fmt.Errorf("invalid outbox state %q (valid: pending, parked, published)", filters.State)
	}

	records, err := s.outboxRepo.List(ctx, secondary.OutboxFilters{
		State: filters.State,
		Limit: filters.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list outbox rows: %w", err)
	}

	rows := make([]*primary.OutboxRow, len(records))
	for i, r := range records {
		rows[i] = recordToOutboxRow(r)
	}
	return rows, nil
}

// RetryRow returns a parked or failing row to the polling set.
func (s *OutboxServiceImpl) RetryRow(ctx context.Context, rowID int64) error {
	return s.outboxRepo.Retry(ctx, rowID)
}

// Prune deletes published rows older than days.
func (s *OutboxServiceImpl) Prune(ctx context.Context, days int) (int64, error) {
	if days == 0 {
		days = s.retentionDays
	}
	if days < 1 {
		return 0, fmt.Errorf("retention must be at least one day, got %d", days)
	}

	removed, err := s.outboxRepo.PruneOlderThan(ctx, days)
	if err != nil {
		return 0, fmt.Errorf("failed to prune outbox: %w", err)
	}
	return removed, nil
}

func recordToOutboxRow(r *secondary.OutboxRecord) *primary.OutboxRow {
	return &primary.OutboxRow{
		ID:          r.ID,
		UUID:        r.UUID,
		EventType:   r.EventType,
		EntityType:  r.EntityType,
		EntityID:    r.EntityUUID,
		Payload:     r.Payload,
		CreatedAt:   r.CreatedAt,
		PublishedAt: r.PublishedAt,
		ParkedAt:    r.ParkedAt,
		Attempts:    r.Attempts,
		LastError:   r.LastError,
	}
}

// Ensure OutboxServiceImpl implements the interface
var _ primary.OutboxService = (*OutboxServiceImpl)(nil)
