package eventstream

import (
	"time"

	"github.com/llmcli/streamchat/pkg/transcript"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnCompleted is emitted after a chat turn reaches a terminal
	// phase and has been recorded.
	EventTypeTurnCompleted = "streamchat.turn.completed"
)

// TurnCompletedEvent is a transport-neutral event payload for a finished
// chat turn.
type TurnCompletedEvent struct {
	SchemaVersion int              `json:"schema_version"`
	EventType     string           `json:"event_type"`
	EventID       string           `json:"event_id"`
	EmittedAt     time.Time        `json:"emitted_at"`
	Source        EventSource      `json:"source"`
	Conversation  ConversationMeta `json:"conversation"`
	Timing        TurnTiming       `json:"timing"`
	Turn          Turn             `json:"turn"`
}

// EventSource identifies where the turn originated.
type EventSource struct {
	Client    string `json:"client"`
	APITarget string `json:"api_target,omitempty"`
}

// ConversationMeta identifies the conversation the turn was stored in.
type ConversationMeta struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title,omitempty"`
}

// TurnTiming captures the stream lifecycle of the turn.
type TurnTiming struct {
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
}

// Turn is the user message and the assistant reply it produced.
type Turn struct {
	User      transcript.Message `json:"user"`
	Assistant transcript.Message `json:"assistant"`

	// Phase is the terminal phase the reply ended in ("done" or "failed").
	Phase string `json:"phase"`
	Error string `json:"error,omitempty"`
}
