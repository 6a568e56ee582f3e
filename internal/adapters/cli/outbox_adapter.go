package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/example/kanband/internal/ports/primary"
)

// OutboxAdapter translates outbox administration commands to OutboxService calls.
type OutboxAdapter struct {
	service primary.OutboxService
	out     io.Writer
}

// NewOutboxAdapter creates a new OutboxAdapter with the given service.
func NewOutboxAdapter(service primary.OutboxService, out io.Writer) *OutboxAdapter {
	return &OutboxAdapter{
		service: service,
		out:     out,
	}
}

// List lists outbox rows in the given state.
func (a *OutboxAdapter) List(ctx context.Context, state string, limit int) ([]*primary.OutboxRow, error) {
	rows, err := a.service.ListRows(ctx, primary.OutboxFilters{State: state, Limit: limit})
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		if state == "" {
			fmt.Fprintln(a.out, "Outbox is empty.")
		} else {
			fmt.Fprintf(a.out, "No %s outbox rows.\n", state)
		}
		return rows, nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tEVENT\tENTITY\tATTEMPTS\tCREATED\tLAST ERROR")
	for _, r := range rows {
		lastError := r.LastError
		if lastError == "" {
			lastError = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
			r.ID, colorStatus(r.State()), r.EventType, r.EntityID, r.Attempts, relativeTime(r.CreatedAt), lastError)
	}
	w.Flush()

	return rows, nil
}

// Retry returns a row to the polling set.
func (a *OutboxAdapter) Retry(ctx context.Context, rowID int64) error {
	if err := a.service.RetryRow(ctx, rowID); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "✓ Outbox row %d queued for retry\n", rowID)
	return nil
}

// Prune deletes published rows older than days.
func (a *OutboxAdapter) Prune(ctx context.Context, days int) error {
	removed, err := a.service.Prune(ctx, days)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "✓ Pruned %s published outbox row(s)\n", humanize.Comma(removed))
	return nil
}
