// Package transcript holds the chat transcript and the state machine that
// turns a reply's stream records into transcript mutations.
package transcript

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Event types the state machine reacts to.
const (
	EventThinking   = "thinking"
	EventContent    = "content"
	EventToolCall   = "tool_call"
	EventToolResult = "tool_result"
	EventToolError  = "tool_error"
	EventDone       = "done"
	EventError      = "error"
)

// LogEntry is one reasoning or tool event recorded against a message.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	RawData   string    `json:"raw_data"`
}

// Message is one transcript entry.
type Message struct {
	ID          string     `json:"id"`
	Role        Role       `json:"role"`
	Content     string     `json:"content"`
	Timestamp   time.Time  `json:"timestamp"`
	IsThinking  bool       `json:"is_thinking"`
	ThinkingLog []LogEntry `json:"thinking_log"`
}

// NewMessage returns a message with a fresh id and the current time.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:          uuid.NewString(),
		Role:        role,
		Content:     content,
		Timestamp:   time.Now(),
		ThinkingLog: []LogEntry{},
	}
}

// clone returns a copy that shares no mutable state with m.
func (m *Message) clone() Message {
	c := *m
	c.ThinkingLog = slices.Clone(m.ThinkingLog)
	if c.ThinkingLog == nil {
		c.ThinkingLog = []LogEntry{}
	}
	return c
}

// isLogged reports whether records of eventType go to the thinking log.
func isLogged(eventType string) bool {
	switch eventType {
	case EventThinking, EventToolCall, EventToolResult, EventToolError:
		return true
	default:
		return false
	}
}
