package primary

import "context"

// OutboxService defines the primary port for outbox administration.
type OutboxService interface {
	// ListRows lists outbox rows, newest first.
	ListRows(ctx context.Context, filters OutboxFilters) ([]*OutboxRow, error)

	// RetryRow returns a parked or failing row to the polling set.
	RetryRow(ctx context.Context, rowID int64) error

	// Prune deletes published rows older than days. Zero takes the
	// configured retention.
	Prune(ctx context.Context, days int) (int64, error)
}

// OutboxFilters contains filter options for listing outbox rows.
type OutboxFilters struct {
	State string // pending, parked, published or empty for all
	Limit int
}

// OutboxRow represents an outbox row at the port boundary.
type OutboxRow struct {
	ID          int64
	UUID        string
	EventType   string
	EntityType  string
	EntityID    string
	Payload     string
	CreatedAt   string
	PublishedAt string
	ParkedAt    string
	Attempts    int
	LastError   string
}

// Outbox row states accepted by OutboxFilters.
const (
	OutboxStatePending   = "pending"
	OutboxStateParked    = "parked"
	OutboxStatePublished = "published"
)

// State reports whether the row is pending, parked or published.
func (r *OutboxRow) State() string {
	switch {
	case r.PublishedAt != "":
		return OutboxStatePublished
	case r.ParkedAt != "":
		return OutboxStateParked
	default:
		return OutboxStatePending
	}
}
