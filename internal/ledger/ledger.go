// Package ledger implements the bounded, evicting, indexed buffer that backs
// both raw and normalized log history.
//
// A Ledger keeps entries sorted by index. Raw ledgers assign a dense index on
// Append; normalized ledgers Upsert at a caller-assigned index. After every
// write the ledger evicts its oldest entries until it is back within its
// entry and byte ceilings, and remembers that it has done so.
//
// Ledger is not safe for concurrent use; the owning message store guards it.
package ledger

import (
	"encoding/json"
	"sort"
)

// Default ceilings.
const (
	DefaultMaxEntries = 5000
	DefaultMaxBytes   = 8 * 1024 * 1024
)

// Entry is one retained ledger record.
type Entry struct {
	Index   uint64          `json:"entry_index"`
	Payload json.RawMessage `json:"entry"`
	Size    int             `json:"-"`
}

// Limits bounds a ledger. Values below 1 are raised to 1.
type Limits struct {
	MaxEntries int
	MaxBytes   int
}

// DefaultLimits returns the standard 5000 entry / 8 MiB ceilings.
func DefaultLimits() Limits {
	return Limits{MaxEntries: DefaultMaxEntries, MaxBytes: DefaultMaxBytes}
}

func (l Limits) normalized() Limits {
	if l.MaxEntries < 1 {
		l.MaxEntries = 1
	}
	if l.MaxBytes < 1 {
		l.MaxBytes = 1
	}
	return l
}

// Ledger is a bounded append-only buffer of indexed entries.
type Ledger struct {
	limits     Limits
	entries    []Entry
	totalBytes int
	nextIndex  uint64
	evicted    bool
}

// New creates an empty ledger with the given limits.
func New(limits Limits) *Ledger {
	return &Ledger{limits: limits.normalized()}
}

// Append stores payload under the next dense index and returns the append
// event describing it.
func (l *Ledger) Append(payload json.RawMessage) Event {
	entry := Entry{Index: l.nextIndex, Payload: payload, Size: len(payload)}
	l.nextIndex++
	l.entries = append(l.entries, entry)
	l.totalBytes += entry.Size
	l.evict()
	return Event{Type: EventAppend, EntryIndex: entry.Index, Entry: payload}
}

// Upsert stores payload at index, replacing any entry already there. kind
// only selects the tag of the returned event; storage is the same for
// EventAppend and EventReplace.
func (l *Ledger) Upsert(index uint64, payload json.RawMessage, kind EventType) Event {
	if kind != EventReplace {
		kind = EventAppend
	}
	entry := Entry{Index: index, Payload: payload, Size: len(payload)}

	pos := l.search(index)
	if pos < len(l.entries) && l.entries[pos].Index == index {
		l.totalBytes += entry.Size - l.entries[pos].Size
		l.entries[pos] = entry
	} else {
		l.entries = append(l.entries, Entry{})
		copy(l.entries[pos+1:], l.entries[pos:])
		l.entries[pos] = entry
		l.totalBytes += entry.Size
	}
	if index >= l.nextIndex {
		l.nextIndex = index + 1
	}
	l.evict()
	return Event{Type: kind, EntryIndex: index, Entry: payload}
}

// evict pops the oldest entries while either ceiling is exceeded.
func (l *Ledger) evict() {
	for len(l.entries) > l.limits.MaxEntries || l.totalBytes > l.limits.MaxBytes {
		if len(l.entries) == 0 {
			return
		}
		l.totalBytes -= l.entries[0].Size
		l.entries[0] = Entry{}
		l.entries = l.entries[1:]
		l.evicted = true
	}
}

// search returns the position of the first entry with Index >= index.
func (l *Ledger) search(index uint64) int {
	return sort.Search(len(l.entries), func(i int) bool {
		return l.entries[i].Index >= index
	})
}

// Page is one page of history, oldest first.
type Page struct {
	Entries []Entry
	// HasMore is true when older entries may exist before Entries[0]:
	// either older entries are still retained or the ledger has evicted
	// at some point and can no longer prove completeness.
	HasMore bool
	// Evicted reports whether the ledger has ever dropped an entry.
	Evicted bool
}

// Page returns up to limit entries with index strictly below cursor (or the
// newest entries when cursor is nil), in ascending index order. A limit
// below 1 is treated as 1.
func (l *Ledger) Page(limit int, cursor *uint64) Page {
	if limit < 1 {
		limit = 1
	}

	end := len(l.entries)
	if cursor != nil {
		end = l.search(*cursor)
	}
	start := end - limit
	if start < 0 {
		start = 0
	}

	entries := make([]Entry, end-start)
	copy(entries, l.entries[start:end])

	return Page{
		Entries: entries,
		HasMore: start > 0 || l.evicted,
		Evicted: l.evicted,
	}
}

// Len returns the number of retained entries.
func (l *Ledger) Len() int { return len(l.entries) }

// TotalBytes returns the summed payload size of retained entries.
func (l *Ledger) TotalBytes() int { return l.totalBytes }

// Evicted reports whether any entry has ever been dropped. It never resets.
func (l *Ledger) Evicted() bool { return l.evicted }

// Limits returns the effective ceilings.
func (l *Ledger) Limits() Limits { return l.limits }
