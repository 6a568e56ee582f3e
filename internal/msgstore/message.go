package msgstore

import (
	"encoding/json"
	"fmt"

	"github.com/example/kanband/internal/patch"
)

// Kind identifies the variant of a Message.
type Kind int

const (
	KindStdout Kind = iota + 1
	KindStderr
	KindPatch
	KindSessionID
	KindFinished
)

// String returns the kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindStdout:
		return "stdout"
	case KindStderr:
		return "stderr"
	case KindPatch:
		return "patch"
	case KindSessionID:
		return "session_id"
	case KindFinished:
		return "finished"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Message is one unit on a store's bus. Text carries Stdout, Stderr and
// SessionID content; Patch carries the operations of a Patch message.
type Message struct {
	Kind  Kind
	Text  string
	Patch patch.Patch
}

// Stdout returns a stdout text message.
func Stdout(text string) Message { return Message{Kind: KindStdout, Text: text} }

// Stderr returns a stderr text message.
func Stderr(text string) Message { return Message{Kind: KindStderr, Text: text} }

// Patch returns a patch message.
func Patch(p patch.Patch) Message { return Message{Kind: KindPatch, Patch: p} }

// SessionID returns a session id note.
func SessionID(id string) Message { return Message{Kind: KindSessionID, Text: id} }

// Finished returns the terminal sentinel.
func Finished() Message { return Message{Kind: KindFinished} }

// approxBytes estimates the retained size of a message for history budgets.
func (m Message) approxBytes() int {
	const overhead = 16
	size := overhead + len(m.Text)
	for _, op := range m.Patch {
		size += overhead + len(op.Path) + len(op.Value)
	}
	return size
}

type messageWire struct {
	Stdout    *string     `json:"Stdout,omitempty"`
	Stderr    *string     `json:"Stderr,omitempty"`
	JSONPatch patch.Patch `json:"JsonPatch,omitempty"`
	SessionID *string     `json:"SessionId,omitempty"`
	Finished  bool        `json:"finished,omitempty"`
}

// MarshalJSON renders the externally tagged form, e.g. {"Stdout":"..."},
// {"JsonPatch":[...]}, {"SessionId":"..."} or {"finished":true}.
func (m Message) MarshalJSON() ([]byte, error) {
	var wire messageWire
	switch m.Kind {
	case KindStdout:
		wire.Stdout = &m.Text
	case KindStderr:
		wire.Stderr = &m.Text
	case KindPatch:
		wire.JSONPatch = m.Patch
		if wire.JSONPatch == nil {
			return []byte(`{"JsonPatch":[]}`), nil
		}
	case KindSessionID:
		wire.SessionID = &m.Text
	case KindFinished:
		wire.Finished = true
	default:
		return nil, fmt.Errorf("cannot encode message of %s", m.Kind)
	}
	return json.Marshal(wire)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var wire messageWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	switch {
	case wire.Stdout != nil:
		*m = Stdout(*wire.Stdout)
	case wire.Stderr != nil:
		*m = Stderr(*wire.Stderr)
	case raw["JsonPatch"] != nil:
		*m = Patch(wire.JSONPatch)
	case wire.SessionID != nil:
		*m = SessionID(*wire.SessionID)
	case wire.Finished:
		*m = Finished()
	default:
		return fmt.Errorf("unrecognised message: %s", data)
	}
	return nil
}
