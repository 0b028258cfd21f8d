package transcript

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/llmcli/streamchat/pkg/sse"
)

// Phase is the state of one assistant turn.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseThinking
	PhaseStreaming
	PhaseDone
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseThinking:
		return "thinking"
	case PhaseStreaming:
		return "streaming"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Terminal reports whether no further records are accepted.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// ErrorNoticePrefix starts every error notice appended to a message.
const ErrorNoticePrefix = "\nError: "

// ServerError is the failure reported by an "error" record.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

// Machine applies one reply's records to one message. It is driven by a
// single goroutine; readers on other goroutines use Store snapshots.
//
//	Idle ──thinking/tool_*──▶ Thinking ◀──▶ Streaming ──done──▶ Done
//	  │                          │               │
//	  └──────────content─────────┼───────────────┘
//	                             └──error (any)──────────────▶ Failed
type Machine struct {
	store  *Store
	id     string
	phase  Phase
	err    error
	logger *slog.Logger
}

// ID returns the id of the message the machine writes to.
func (m *Machine) ID() string {
	return m.id
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	return m.phase
}

// Err returns the failure that moved the machine to PhaseFailed, if any.
func (m *Machine) Err() error {
	return m.err
}

// Snapshot returns a copy of the message.
func (m *Machine) Snapshot() Message {
	msg, _ := m.store.Get(m.id)
	return msg
}

// Apply folds one record into the message and returns the new phase.
// Reasoning and tool records are logged before the transition. Records
// arriving after a terminal phase, and unknown event types, are ignored.
func (m *Machine) Apply(rec sse.Record) Phase {
	if m.phase.Terminal() {
		m.logger.Debug("record after terminal phase ignored", "type", rec.Type, "phase", m.phase)
		return m.phase
	}

	next := m.phase
	m.store.mutate(m.id, func(msg *Message) {
		if isLogged(rec.Type) {
			msg.ThinkingLog = append(msg.ThinkingLog, LogEntry{
				Timestamp: m.store.now(),
				EventType: rec.Type,
				RawData:   rec.Payload.Raw(),
			})
			msg.IsThinking = true
		}

		switch rec.Type {
		case EventContent:
			msg.Content += rec.Payload.Text()
			msg.IsThinking = false
			next = PhaseStreaming
		case EventThinking, EventToolCall, EventToolResult, EventToolError:
			next = PhaseThinking
		case EventDone:
			msg.IsThinking = false
			next = PhaseDone
		case EventError:
			m.err = &ServerError{Message: errorMessage(rec.Payload)}
			msg.IsThinking = false
			msg.Content += ErrorNoticePrefix + m.err.Error()
			next = PhaseFailed
		default:
			m.logger.Debug("unhandled record type", "type", rec.Type)
		}
	})

	m.transition(next)
	return m.phase
}

// Fail records a failure outside the record stream, such as a transport
// error or cancellation. It appends exactly one error notice and is a no-op
// once the machine is terminal.
func (m *Machine) Fail(err error) {
	if m.phase.Terminal() {
		return
	}
	if err == nil {
		err = errors.New("stream failed")
	}

	m.err = err
	m.store.mutate(m.id, func(msg *Message) {
		msg.IsThinking = false
		msg.Content += ErrorNoticePrefix + err.Error()
	})
	m.transition(PhaseFailed)
}

// Finish ends a stream that closed without a "done" record. The message
// stops thinking and the turn completes.
func (m *Machine) Finish() {
	if m.phase.Terminal() {
		return
	}
	m.store.mutate(m.id, func(msg *Message) {
		msg.IsThinking = false
	})
	m.transition(PhaseDone)
}

func (m *Machine) transition(next Phase) {
	if next != m.phase {
		m.logger.Debug("phase transition", "from", m.phase, "to", next)
		m.phase = next
	}
	if m.phase.Terminal() {
		m.store.release(m.id)
	}
}

// errorMessage extracts the human readable message of an "error" record:
// the "message" member of an object payload, a bare JSON string, or the raw
// text.
func errorMessage(p sse.Payload) string {
	if msg, ok := p.StringField("message"); ok {
		return msg
	}
	return p.Text()
}
