package app

import (
	"context"
	"fmt"

	"github.com/example/kanband/internal/ledger"
	"github.com/example/kanband/internal/msgstore"
	"github.com/example/kanband/internal/ports/primary"
)

// History page limits.
const (
	DefaultRawHistoryLimit        = 500
	DefaultNormalizedHistoryLimit = 100
	MaxHistoryLimit               = 1000
)

// StreamServiceImpl implements the StreamService interface over a store
// registry.
type StreamServiceImpl struct {
	stores *msgstore.Registry
}

// NewStreamService creates a new StreamService with injected dependencies.
func NewStreamService(stores *msgstore.Registry) *StreamServiceImpl {
	return &StreamServiceImpl{stores: stores}
}

// ClampLimit applies the channel default to a zero limit and bounds the
// rest to [1, MaxHistoryLimit].
func ClampLimit(limit, defaultLimit int) int {
	switch {
	case limit == 0:
		return defaultLimit
	case limit < 1:
		return 1
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return limit
	}
}

// RawHistory returns one page of a store's stdout/stderr ledger.
func (s *StreamServiceImpl) RawHistory(ctx context.Context, req primary.HistoryRequest) (*primary.HistoryPage, error) {
	store, err := s.store(req.StoreKey)
	if err != nil {
		return nil, err
	}
	return toHistoryPage(store.RawHistoryPage(ClampLimit(req.Limit, DefaultRawHistoryLimit), req.Cursor)), nil
}

// NormalizedHistory returns one page of a store's normalized entries.
func (s *StreamServiceImpl) NormalizedHistory(ctx context.Context, req primary.HistoryRequest) (*primary.HistoryPage, error) {
	store, err := s.store(req.StoreKey)
	if err != nil {
		return nil, err
	}
	return toHistoryPage(store.NormalizedHistoryPage(ClampLimit(req.Limit, DefaultNormalizedHistoryLimit), req.Cursor)), nil
}

// Follow replays a store's messages and then streams new ones. The store is
// created if it does not exist yet, so entity streams can be followed
// before their first change.
func (s *StreamServiceImpl) Follow(ctx context.Context, storeKey string) (<-chan msgstore.Message, error) {
	if storeKey == "" {
		return nil, fmt.Errorf("store key is required")
	}
	return s.stores.GetOrCreate(storeKey).HistoryPlusStream(ctx), nil
}

// FollowRaw streams the newest raw entries and then live raw events.
func (s *StreamServiceImpl) FollowRaw(ctx context.Context, storeKey string, limit int) (<-chan ledger.Event, error) {
	if storeKey == "" {
		return nil, fmt.Errorf("store key is required")
	}
	return s.stores.GetOrCreate(storeKey).RawHistoryPlusStream(ctx, ClampLimit(limit, DefaultRawHistoryLimit)), nil
}

// FollowNormalized streams the newest normalized entries and then live
// normalized events.
func (s *StreamServiceImpl) FollowNormalized(ctx context.Context, storeKey string, limit int) (<-chan ledger.Event, error) {
	if storeKey == "" {
		return nil, fmt.Errorf("store key is required")
	}
	return s.stores.GetOrCreate(storeKey).NormalizedHistoryPlusStream(ctx, ClampLimit(limit, DefaultNormalizedHistoryLimit)), nil
}

// ListStores summarises the stores currently held in memory.
func (s *StreamServiceImpl) ListStores(ctx context.Context) []primary.StoreSummary {
	keys := s.stores.Keys()
	summaries := make([]primary.StoreSummary, 0, len(keys))
	for _, key := range keys {
		store, ok := s.stores.Get(key)
		if !ok {
			continue
		}
		summaries = append(summaries, primary.StoreSummary{Key: key, Stats: store.Stats()})
	}
	return summaries
}

func (s *StreamServiceImpl) store(key string) (*msgstore.Store, error) {
	store, ok := s.stores.Get(key)
	if !ok {
		return nil, fmt.Errorf("store %s not found", key)
	}
	return store, nil
}

// toHistoryPage points next_cursor at the oldest returned entry whenever
// older entries may exist.
func toHistoryPage(page ledger.Page) *primary.HistoryPage {
	resp := &primary.HistoryPage{
		Entries:          page.Entries,
		HasMore:          page.HasMore,
		HistoryTruncated: page.Evicted,
	}
	if resp.Entries == nil {
		resp.Entries = []ledger.Entry{}
	}
	if page.HasMore && len(page.Entries) > 0 {
		cursor := page.Entries[0].Index
		resp.NextCursor = &cursor
	}
	return resp
}

// Ensure StreamServiceImpl implements the interface
var _ primary.StreamService = (*StreamServiceImpl)(nil)
