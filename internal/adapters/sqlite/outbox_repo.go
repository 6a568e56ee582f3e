// Package sqlite contains SQLite implementations of repository interfaces.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/kanband/internal/outbox"
	"github.com/example/kanband/internal/ports/secondary"
)

// OutboxRepository implements secondary.OutboxRepository with SQLite.
type OutboxRepository struct {
	db *sql.DB
}

// NewOutboxRepository creates a new SQLite outbox repository.
func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

var _ secondary.OutboxRepository = (*OutboxRepository)(nil)

const outboxSelectCols = "id, uuid, event_type, entity_type, entity_uuid, payload, created_at, published_at, attempts, last_error, parked_at"

// scanOutbox scans an outbox row into an OutboxRecord.
func scanOutbox(scanner interface {
	Scan(dest ...any) error
}) (*secondary.OutboxRecord, error) {
	var (
		createdAt   time.Time
		publishedAt sql.NullTime
		lastError   sql.NullString
		parkedAt    sql.NullTime
	)

	record := &secondary.OutboxRecord{}
	err := scanner.Scan(
		&record.ID, &record.UUID, &record.EventType, &record.EntityType, &record.EntityUUID, &record.Payload,
		&createdAt, &publishedAt, &record.Attempts, &lastError, &parkedAt,
	)
	if err != nil {
		return nil, err
	}

	record.CreatedAt = createdAt.Format(time.RFC3339)
	record.LastError = lastError.String
	if publishedAt.Valid {
		record.PublishedAt = publishedAt.Time.Format(time.RFC3339)
	}
	if parkedAt.Valid {
		record.ParkedAt = parkedAt.Time.Format(time.RFC3339)
	}

	return record, nil
}

// FetchPending retrieves up to limit unpublished, unparked rows in creation order.
func (r *OutboxRepository) FetchPending(ctx context.Context, limit int) ([]*secondary.OutboxRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+outboxSelectCols+" FROM event_outbox WHERE published_at IS NULL AND parked_at IS NULL ORDER BY created_at ASC, id ASC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending outbox rows: %w", err)
	}
	defer rows.Close()

	var records []*secondary.OutboxRecord
	for rows.Next() {
		record, err := scanOutbox(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to fetch pending outbox rows: %w", err)
	}

	return records, nil
}

// MarkPublished stamps published_at on a row.
func (r *OutboxRepository) MarkPublished(ctx context.Context, id int64) error {
	return r.exec(ctx, "mark outbox row published", id,
		"UPDATE event_outbox SET published_at = CURRENT_TIMESTAMP WHERE id = ?", id)
}

// RecordFailure increments attempts and stores the error.
func (r *OutboxRepository) RecordFailure(ctx context.Context, id int64, lastError string) error {
	return r.exec(ctx, "record outbox failure", id,
		"UPDATE event_outbox SET attempts = attempts + 1, last_error = ? WHERE id = ?", lastError, id)
}

// Park removes a row from polling until it is retried.
func (r *OutboxRepository) Park(ctx context.Context, id int64, lastError string) error {
	return r.exec(ctx, "park outbox row", id,
		"UPDATE event_outbox SET attempts = attempts + 1, last_error = ?, parked_at = CURRENT_TIMESTAMP WHERE id = ?", lastError, id)
}

// Retry clears parked_at and last_error so the row is polled again.
func (r *OutboxRepository) Retry(ctx context.Context, id int64) error {
	return r.exec(ctx, "retry outbox row", id,
		"UPDATE event_outbox SET parked_at = NULL, last_error = NULL WHERE id = ? AND published_at IS NULL", id)
}

func (r *OutboxRepository) exec(ctx context.Context, action string, id int64, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", action, err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("outbox row %d not found", id)
	}

	return nil
}

// List retrieves rows matching the given filters, newest first.
func (r *OutboxRepository) List(ctx context.Context, filters secondary.OutboxFilters) ([]*secondary.OutboxRecord, error) {
	query := "SELECT " + outboxSelectCols + " FROM event_outbox WHERE 1=1"
	args := []any{}

	switch filters.State {
	case secondary.OutboxStatePending:
		query += " AND published_at IS NULL AND parked_at IS NULL"
	case secondary.OutboxStateParked:
		query += " AND parked_at IS NOT NULL"
	case secondary.OutboxStatePublished:
		query += " AND published_at IS NOT NULL"
	case "":
	default:
		return nil, fmt.Errorf("unknown outbox state %q", filters.State)
	}

	query += " ORDER BY id DESC"

	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list outbox rows: %w", err)
	}
	defer rows.Close()

	var records []*secondary.OutboxRecord
	for rows.Next() {
		record, err := scanOutbox(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox row: %w", err)
		}
		records = append(records, record)
	}

	return records, nil
}

// PruneOlderThan deletes published rows older than days.
func (r *OutboxRepository) PruneOlderThan(ctx context.Context, days int) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM event_outbox WHERE published_at IS NOT NULL AND published_at < datetime('now', ?)",
		fmt.Sprintf("-%d days", days),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune outbox: %w", err)
	}

	removed, _ := result.RowsAffected()
	return removed, nil
}

// insertOutbox writes ev inside tx. Callers commit it together with the
// entity mutation it describes.
func insertOutbox(ctx context.Context, tx *sql.Tx, ev outbox.Event) error {
	payload, err := ev.EncodePayload()
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO event_outbox (uuid, event_type, entity_type, entity_uuid, payload) VALUES (?, ?, ?, ?, ?)",
		ev.UUID, ev.Type.String(), string(ev.Type.Entity()), ev.Payload.ID, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to write %s event: %w", ev.Type, err)
	}

	return nil
}

// withTx runs fn in a transaction, committing on success.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
