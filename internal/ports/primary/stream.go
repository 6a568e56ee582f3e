package primary

import (
	"context"

	"github.com/example/kanband/internal/ledger"
	"github.com/example/kanband/internal/msgstore"
)

// StreamService defines the primary port for reading message stores.
type StreamService interface {
	// RawHistory returns one page of a store's stdout/stderr ledger.
	RawHistory(ctx context.Context, req HistoryRequest) (*HistoryPage, error)

	// NormalizedHistory returns one page of a store's normalized entries.
	NormalizedHistory(ctx context.Context, req HistoryRequest) (*HistoryPage, error)

	// Follow replays a store's messages and then streams new ones until
	// ctx is done or the store finishes.
	Follow(ctx context.Context, storeKey string) (<-chan msgstore.Message, error)

	// FollowRaw streams the newest raw entries and then live raw events.
	FollowRaw(ctx context.Context, storeKey string, limit int) (<-chan ledger.Event, error)

	// FollowNormalized streams the newest normalized entries and then live
	// normalized events.
	FollowNormalized(ctx context.Context, storeKey string, limit int) (<-chan ledger.Event, error)

	// ListStores summarises the stores currently held in memory.
	ListStores(ctx context.Context) []StoreSummary
}

// HistoryRequest addresses one history page. A zero Limit takes the
// channel default.
type HistoryRequest struct {
	StoreKey string
	Limit    int
	Cursor   *uint64 // exclusive upper bound on entry_index
}

// HistoryPage is the response to a history request.
type HistoryPage struct {
	Entries          []ledger.Entry `json:"entries"`
	NextCursor       *uint64        `json:"next_cursor"`
	HasMore          bool           `json:"has_more"`
	HistoryTruncated bool           `json:"history_truncated"`
}

// StoreSummary describes one in-memory store.
type StoreSummary struct {
	Key   string
	Stats msgstore.Stats
}
