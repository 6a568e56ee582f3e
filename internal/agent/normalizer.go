package agent

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/example/kanband/internal/msgstore"
	"github.com/example/kanband/internal/patch"
)

// Event message types carried in codex/event notifications.
const (
	MsgAgentMessage      = "agent_message"
	MsgAgentMessageDelta = "agent_message_delta"
	MsgAgentReasoning    = "agent_reasoning"
	MsgExecCommandBegin  = "exec_command_begin"
	MsgError             = "error"
	MsgTaskComplete      = "task_complete"
	MsgShutdownComplete  = "shutdown_complete"
)

// EventMsg is the msg member of a codex/event notification. Only the fields
// the normalizer reads are decoded.
type EventMsg struct {
	Type    string   `json:"type"`
	Message string   `json:"message,omitempty"`
	Delta   string   `json:"delta,omitempty"`
	Text    string   `json:"text,omitempty"`
	Command []string `json:"command,omitempty"`
	CallID  string   `json:"call_id,omitempty"`
	Cwd     string   `json:"cwd,omitempty"`
}

// Normalizer turns agent events into normalized entries on a store. Entry
// indexes are allocated in order starting at zero; streamed assistant
// messages keep replacing the entry they opened until the full message
// arrives. It is safe for concurrent use.
type Normalizer struct {
	store *msgstore.Store
	now   func() time.Time

	mu   sync.Mutex
	next uint64

	streaming bool
	openIndex uint64
	delta     strings.Builder
}

// NewNormalizer creates a normalizer writing to store.
func NewNormalizer(store *msgstore.Store) *Normalizer {
	return &Normalizer{store: store, now: time.Now}
}

// UserMessage records the prompt sent to the agent.
func (n *Normalizer) UserMessage(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.add(patch.EntryUserMessage, text, nil)
}

// System records a note about the session itself.
func (n *Normalizer) System(text string, metadata any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.add(patch.EntrySystemMessage, text, metadata)
}

// Handle normalizes msg and reports whether it ends the session.
func (n *Normalizer) Handle(msg EventMsg) (finished bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch msg.Type {
	case MsgAgentMessageDelta:
		n.appendDelta(msg.Delta)
	case MsgAgentMessage:
		if n.streaming {
			n.replace(n.openIndex, patch.EntryAssistantMessage, msg.Message)
			n.closeStream()
			return false
		}
		n.add(patch.EntryAssistantMessage, msg.Message, nil)
	case MsgAgentReasoning:
		n.add(patch.EntryThinking, msg.Text, nil)
	case MsgExecCommandBegin:
		n.add(patch.EntryToolUse, strings.Join(msg.Command, " "), map[string]string{
			"call_id": msg.CallID,
			"cwd":     msg.Cwd,
		})
	case MsgError:
		n.closeStream()
		n.add(patch.EntryErrorMessage, msg.Message, nil)
	case MsgTaskComplete, MsgShutdownComplete:
		n.closeStream()
		return true
	}
	return false
}

func (n *Normalizer) appendDelta(delta string) {
	n.delta.WriteString(delta)
	if !n.streaming {
		n.streaming = true
		n.openIndex = n.add(patch.EntryAssistantMessage, n.delta.String(), nil)
		return
	}
	n.replace(n.openIndex, patch.EntryAssistantMessage, n.delta.String())
}

func (n *Normalizer) closeStream() {
	n.streaming = false
	n.delta.Reset()
}

func (n *Normalizer) entry(typ patch.EntryType, content string, metadata any) patch.NormalizedEntry {
	ts := n.now().UTC()
	entry := patch.NormalizedEntry{Timestamp: &ts, EntryType: typ, Content: content}
	if metadata != nil {
		if raw, err := json.Marshal(metadata); err == nil {
			entry.Metadata = raw
		}
	}
	return entry
}

// add pushes a new entry and returns its index.
func (n *Normalizer) add(typ patch.EntryType, content string, metadata any) uint64 {
	index := n.next
	n.next++
	if p, err := patch.AddNormalizedEntry(index, n.entry(typ, content, metadata)); err == nil {
		n.store.PushPatch(p)
	}
	return index
}

func (n *Normalizer) replace(index uint64, typ patch.EntryType, content string) {
	if p, err := patch.ReplaceNormalizedEntry(index, n.entry(typ, content, nil)); err == nil {
		n.store.PushPatch(p)
	}
}
