package patch

import (
	"encoding/json"
	"time"
)

// EntryType classifies a normalized log entry.
type EntryType string

const (
	EntryUserMessage      EntryType = "user_message"
	EntryAssistantMessage EntryType = "assistant_message"
	EntryToolUse          EntryType = "tool_use"
	EntrySystemMessage    EntryType = "system_message"
	EntryErrorMessage     EntryType = "error_message"
	EntryThinking         EntryType = "thinking"
	EntryLoading          EntryType = "loading"
)

// NormalizedEntry is a structured, mutable-by-index log record produced by
// an agent log normalizer.
type NormalizedEntry struct {
	Timestamp *time.Time      `json:"timestamp,omitempty"`
	EntryType EntryType       `json:"entry_type"`
	Content   string          `json:"content"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}
