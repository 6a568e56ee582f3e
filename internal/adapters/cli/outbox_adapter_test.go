package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/example/kanband/internal/ports/primary"
)

// mockOutboxService implements primary.OutboxService for testing
type mockOutboxService struct {
	rows    []*primary.OutboxRow
	retried int64
	pruned  int64
}

func (m *mockOutboxService) ListRows(ctx context.Context, filters primary.OutboxFilters) ([]*primary.OutboxRow, error) {
	return m.rows, nil
}

func (m *mockOutboxService) RetryRow(ctx context.Context, rowID int64) error {
	m.retried = rowID
	return nil
}

func (m *mockOutboxService) Prune(ctx context.Context, days int) (int64, error) {
	return m.pruned, nil
}

func TestOutboxAdapter_List(t *testing.T) {
	var out bytes.Buffer
	service := &mockOutboxService{rows: []*primary.OutboxRow{
		{ID: 7, EventType: "task.frobbed", EntityID: "t-1", Attempts: 1, ParkedAt: "2026-01-01 00:00:00", LastError: "unroutable event type"},
		{ID: 6, EventType: "task.created", EntityID: "t-1"},
	}}
	adapter := NewOutboxAdapter(service, &out)

	if _, err := adapter.List(context.Background(), "", 50); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	output := out.String()
	for _, want := range []string{"ATTEMPTS", "task.frobbed", "parked", "unroutable event type", "pending"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestOutboxAdapter_ListEmpty(t *testing.T) {
	var out bytes.Buffer
	adapter := NewOutboxAdapter(&mockOutboxService{}, &out)

	adapter.List(context.Background(), "parked", 0)
	if !strings.Contains(out.String(), "No parked outbox rows.") {
		t.Errorf("unexpected output: %s", out.String())
	}
}

func TestOutboxAdapter_RetryAndPrune(t *testing.T) {
	var out bytes.Buffer
	service := &mockOutboxService{pruned: 1234}
	adapter := NewOutboxAdapter(service, &out)

	if err := adapter.Retry(context.Background(), 7); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if service.retried != 7 {
		t.Errorf("expected row 7 retried, got %d", service.retried)
	}
	if err := adapter.Prune(context.Background(), 0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(out.String(), "Pruned 1,234 published") {
		t.Errorf("unexpected output: %s", out.String())
	}
}
