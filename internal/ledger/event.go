package ledger

import "encoding/json"

// EventType tags a live ledger event.
type EventType string

const (
	EventAppend   EventType = "append"
	EventReplace  EventType = "replace"
	EventFinished EventType = "finished"
)

// Event is emitted for every ledger write and once when the owning store
// finishes.
type Event struct {
	Type       EventType
	EntryIndex uint64
	Entry      json.RawMessage
}

// Finished returns the terminal control event.
func Finished() Event {
	return Event{Type: EventFinished}
}

// MarshalJSON renders {"type":"append","entry_index":N,"entry":...} for
// entry events and {"type":"finished"} for the terminal event.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Type == EventFinished {
		return json.Marshal(struct {
			Type EventType `json:"type"`
		}{Type: e.Type})
	}
	entry := e.Entry
	if entry == nil {
		entry = json.RawMessage("null")
	}
	return json.Marshal(struct {
		Type       EventType       `json:"type"`
		EntryIndex uint64          `json:"entry_index"`
		Entry      json.RawMessage `json:"entry"`
	}{Type: e.Type, EntryIndex: e.EntryIndex, Entry: entry})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	var wire struct {
		Type       EventType       `json:"type"`
		EntryIndex uint64          `json:"entry_index"`
		Entry      json.RawMessage `json:"entry"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*e = Event{Type: wire.Type, EntryIndex: wire.EntryIndex, Entry: wire.Entry}
	return nil
}
