// Package sse decodes the "event:"/"data:" framed byte stream a chat backend
// answers with into typed records. It is built for the lenient framing the
// backend actually emits: records are not always terminated by blank lines,
// payloads may be JSON or bare text, and chunks may split UTF-8 sequences.
//
// The pipeline is a chain of small incremental stages:
//
//	[]byte ──▶ Decoder ──▶ string ──▶ LineFramer ──▶ lines ──▶ Assembler ──▶ Record
//
// Each stage keeps its own carry-over between calls so the records produced
// never depend on where the transport happened to split the body.
//
// This package intentionally does NOT provide reconnection, Last-Event-ID
// handling or an SSE writer.
package sse

import (
	"encoding/json"
	"fmt"
)

// DefaultEventType is the record type used when no "event:" line preceded
// the data.
const DefaultEventType = "message"

// Kind tags which variant of Payload is populated.
type Kind int

const (
	// KindText is a payload that did not parse as JSON.
	KindText Kind = iota

	// KindStructured is a payload that parsed as a JSON value.
	KindStructured
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindStructured:
		return "structured"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Payload is the tagged union carried by a Record: either raw text or a
// parsed JSON value. The raw text is always retained so it can be logged
// or appended verbatim.
type Payload struct {
	kind  Kind
	raw   string
	value any
}

// TextPayload returns a text payload holding s.
func TextPayload(s string) Payload {
	return Payload{kind: KindText, raw: s}
}

// StructuredPayload returns a structured payload for the decoded value v
// that was parsed from raw.
func StructuredPayload(raw string, v any) Payload {
	return Payload{kind: KindStructured, raw: raw, value: v}
}

// ParsePayload attempts a JSON parse of raw and falls back to text. It never
// fails: anything that is not valid JSON (including the empty string) is
// text.
func ParsePayload(raw string) Payload {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return TextPayload(raw)
	}
	return StructuredPayload(raw, v)
}

// Kind reports which variant is populated.
func (p Payload) Kind() Kind { return p.kind }

// IsStructured reports whether the payload parsed as JSON.
func (p Payload) IsStructured() bool { return p.kind == KindStructured }

// Raw returns the payload text exactly as it appeared on the wire.
func (p Payload) Raw() string { return p.raw }

// Value returns the decoded JSON value for structured payloads and the raw
// string for text payloads.
func (p Payload) Value() any {
	if p.kind == KindStructured {
		return p.value
	}
	return p.raw
}

// Text returns the payload as display text. A structured payload that
// decoded to a JSON string yields the unquoted string, numbers and booleans
// yield their JSON form, and everything else yields the raw text.
func (p Payload) Text() string {
	if p.kind == KindStructured {
		if s, ok := p.value.(string); ok {
			return s
		}
	}
	return p.raw
}

// Field returns the named member of a structured object payload.
func (p Payload) Field(name string) (any, bool) {
	obj, ok := p.value.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := obj[name]
	return v, ok
}

// StringField returns the named member of a structured object payload when it
// holds a JSON string.
func (p Payload) StringField(name string) (string, bool) {
	v, ok := p.Field(name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Record is one logical event emitted by the Assembler.
type Record struct {
	// Type is the event type from the most recent "event:" line, or
	// DefaultEventType. It is never empty.
	Type string

	// Payload is the accumulated "data:" content for the record.
	Payload Payload
}

func (r Record) String() string {
	return fmt.Sprintf("%s: %s", r.Type, r.Payload.Raw())
}
