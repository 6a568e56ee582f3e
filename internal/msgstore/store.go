// Package msgstore implements the single-writer, multi-reader message bus
// that carries execution output and entity patches to live and late
// subscribers.
//
// A Store keeps three things in step: the message history itself, a raw
// ledger of stdout/stderr entries, and a normalized ledger of structured
// entries upserted by patches. History snapshots and live subscriptions are
// taken together so that a subscriber sees every message exactly once.
package msgstore

import (
	"context"
	"sync"

	"github.com/example/kanband/internal/broadcast"
	"github.com/example/kanband/internal/ledger"
	"github.com/example/kanband/internal/patch"
)

// DefaultHistoryMaxBytes bounds the retained message history.
const DefaultHistoryMaxBytes = 100 * 1024 * 1024

// Config sizes a store. It is shared by every store in a Registry.
type Config struct {
	RawLimits         ledger.Limits
	NormalizedLimits  ledger.Limits
	HistoryMaxBytes   int
	BroadcastCapacity int
}

// DefaultConfig returns the standard sizing.
func DefaultConfig() Config {
	return Config{
		RawLimits:         ledger.DefaultLimits(),
		NormalizedLimits:  ledger.DefaultLimits(),
		HistoryMaxBytes:   DefaultHistoryMaxBytes,
		BroadcastCapacity: broadcast.DefaultCapacity,
	}
}

// Store is a message bus with bounded replay.
type Store struct {
	// pushMu serializes writers and history-plus-stream registration so
	// broadcast order always matches history order.
	pushMu sync.Mutex

	// mu guards the fields below. Writers hold it only while mutating
	// in-memory state; broadcasts happen after it is released.
	mu              sync.RWMutex
	history         []Message
	historyBytes    int
	historyMaxBytes int
	raw             *ledger.Ledger
	normalized      *ledger.Ledger
	finished        bool

	messages         *broadcast.Broadcaster[Message]
	rawEvents        *broadcast.Broadcaster[ledger.Event]
	normalizedEvents *broadcast.Broadcaster[ledger.Event]
}

// New creates an empty store.
func New(cfg Config) *Store {
	if cfg.HistoryMaxBytes < 1 {
		cfg.HistoryMaxBytes = DefaultHistoryMaxBytes
	}
	return &Store{
		historyMaxBytes:  cfg.HistoryMaxBytes,
		raw:              ledger.New(cfg.RawLimits),
		normalized:       ledger.New(cfg.NormalizedLimits),
		messages:         broadcast.New[Message](cfg.BroadcastCapacity),
		rawEvents:        broadcast.New[ledger.Event](cfg.BroadcastCapacity),
		normalizedEvents: broadcast.New[ledger.Event](cfg.BroadcastCapacity),
	}
}

// Push appends msg to the bus. Messages pushed after Finished are dropped.
func (s *Store) Push(msg Message) {
	s.pushMu.Lock()
	defer s.pushMu.Unlock()

	var rawEvents, normalizedEvents []ledger.Event

	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.appendHistory(msg)
	switch msg.Kind {
	case KindStdout:
		rawEvents = append(rawEvents, s.appendRaw(patch.TypeStdout, msg.Text))
	case KindStderr:
		rawEvents = append(rawEvents, s.appendRaw(patch.TypeStderr, msg.Text))
	case KindPatch:
		for _, op := range msg.Patch {
			index, value, ok := patch.NormalizedEntryAt(op)
			if !ok {
				continue
			}
			kind := ledger.EventAppend
			if op.Op == patch.OpReplace {
				kind = ledger.EventReplace
			}
			normalizedEvents = append(normalizedEvents, s.normalized.Upsert(index, value, kind))
		}
	case KindFinished:
		s.finished = true
		rawEvents = append(rawEvents, ledger.Finished())
		normalizedEvents = append(normalizedEvents, ledger.Finished())
	}
	s.mu.Unlock()

	s.messages.Send(msg)
	for _, ev := range rawEvents {
		s.rawEvents.Send(ev)
	}
	for _, ev := range normalizedEvents {
		s.normalizedEvents.Send(ev)
	}
}

// PushStdout pushes a stdout chunk.
func (s *Store) PushStdout(text string) { s.Push(Stdout(text)) }

// PushStderr pushes a stderr chunk.
func (s *Store) PushStderr(text string) { s.Push(Stderr(text)) }

// PushPatch pushes a patch.
func (s *Store) PushPatch(p patch.Patch) { s.Push(Patch(p)) }

// PushSessionID pushes a session id note.
func (s *Store) PushSessionID(id string) { s.Push(SessionID(id)) }

// PushFinished marks the store terminal.
func (s *Store) PushFinished() { s.Push(Finished()) }

func (s *Store) appendRaw(typ, text string) ledger.Event {
	// Encoding a string cannot fail.
	payload, _ := patch.Wrap(typ, text)
	return s.raw.Append(payload)
}

func (s *Store) appendHistory(msg Message) {
	s.history = append(s.history, msg)
	s.historyBytes += msg.approxBytes()
	for s.historyBytes > s.historyMaxBytes && len(s.history) > 1 {
		s.historyBytes -= s.history[0].approxBytes()
		s.history[0] = Message{}
		s.history = s.history[1:]
	}
}

// History returns a snapshot of the retained messages in push order.
func (s *Store) History() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}

// IsFinished reports whether Finished has been pushed.
func (s *Store) IsFinished() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finished
}

// HistoryPlusStream returns the retained history followed by live messages.
// The channel closes after Finished is delivered or when ctx is done.
func (s *Store) HistoryPlusStream(ctx context.Context) <-chan Message {
	s.pushMu.Lock()
	snapshot := s.History()
	var sub *broadcast.Subscription[Message]
	if !s.IsFinished() {
		sub = s.messages.Subscribe()
	}
	s.pushMu.Unlock()

	out := make(chan Message)
	go func() {
		defer close(out)
		if sub != nil {
			defer sub.Close()
		}
		for _, msg := range snapshot {
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
		if sub == nil {
			return
		}
		for {
			select {
			case msg, ok := <-sub.C():
				if !ok {
					return
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
				if msg.Kind == KindFinished {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// RawHistoryPage returns a page of the raw ledger.
func (s *Store) RawHistoryPage(limit int, cursor *uint64) ledger.Page {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.raw.Page(limit, cursor)
}

// NormalizedHistoryPage returns a page of the normalized ledger.
func (s *Store) NormalizedHistoryPage(limit int, cursor *uint64) ledger.Page {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.normalized.Page(limit, cursor)
}

// RawHistoryPlusStream emits the newest limit raw entries as append events,
// then live raw events. A limit below 1 replays everything retained.
func (s *Store) RawHistoryPlusStream(ctx context.Context, limit int) <-chan ledger.Event {
	return s.ledgerStream(ctx, s.raw, s.rawEvents, limit)
}

// NormalizedHistoryPlusStream is RawHistoryPlusStream for normalized entries.
func (s *Store) NormalizedHistoryPlusStream(ctx context.Context, limit int) <-chan ledger.Event {
	return s.ledgerStream(ctx, s.normalized, s.normalizedEvents, limit)
}

func (s *Store) ledgerStream(ctx context.Context, l *ledger.Ledger, events *broadcast.Broadcaster[ledger.Event], limit int) <-chan ledger.Event {
	s.pushMu.Lock()
	s.mu.RLock()
	if limit < 1 {
		limit = l.Len()
	}
	page := l.Page(limit, nil)
	finished := s.finished
	s.mu.RUnlock()
	var sub *broadcast.Subscription[ledger.Event]
	if !finished {
		sub = events.Subscribe()
	}
	s.pushMu.Unlock()

	out := make(chan ledger.Event)
	go func() {
		defer close(out)
		if sub != nil {
			defer sub.Close()
		}
		send := func(ev ledger.Event) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for _, entry := range page.Entries {
			if !send(ledger.Event{Type: ledger.EventAppend, EntryIndex: entry.Index, Entry: entry.Payload}) {
				return
			}
		}
		if sub == nil {
			send(ledger.Finished())
			return
		}
		for {
			select {
			case ev, ok := <-sub.C():
				if !ok || !send(ev) || ev.Type == ledger.EventFinished {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Stats summarises a store for diagnostics.
type Stats struct {
	Messages          int
	HistoryBytes      int
	RawEntries        int
	RawBytes          int
	RawEvicted        bool
	NormalizedEntries int
	NormalizedBytes   int
	NormalizedEvicted bool
	Finished          bool
}

// Stats returns current sizes.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Messages:          len(s.history),
		HistoryBytes:      s.historyBytes,
		RawEntries:        s.raw.Len(),
		RawBytes:          s.raw.TotalBytes(),
		RawEvicted:        s.raw.Evicted(),
		NormalizedEntries: s.normalized.Len(),
		NormalizedBytes:   s.normalized.TotalBytes(),
		NormalizedEvicted: s.normalized.Evicted(),
		Finished:          s.finished,
	}
}
