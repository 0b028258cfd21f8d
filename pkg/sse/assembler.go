package sse

import (
	"fmt"
	"strings"
)

// Policy selects how lines are grouped into records.
type Policy int

const (
	// PolicyBuffered accumulates "data:" lines and emits a record when the
	// next "event:" line arrives, on a blank line, or at stream end.
	PolicyBuffered Policy = iota

	// PolicyPerLine emits a record for every "data:" line, tagged with the
	// most recent "event:" type.
	PolicyPerLine
)

const (
	policyBufferedName = "buffered"
	policyPerLineName  = "per_line"
)

func (p Policy) String() string {
	switch p {
	case PolicyBuffered:
		return policyBufferedName
	case PolicyPerLine:
		return policyPerLineName
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy parses a policy name as it appears in configuration. The empty
// string selects PolicyBuffered.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", policyBufferedName:
		return PolicyBuffered, nil
	case policyPerLineName, "per-line", "perline":
		return PolicyPerLine, nil
	default:
		return 0, fmt.Errorf("unknown framing policy %q (want %q or %q)", s, policyBufferedName, policyPerLineName)
	}
}

// Assembler groups lines into records according to its Policy. It keeps the
// current event type and the data accumulator across calls to Line.
type Assembler struct {
	policy    Policy
	eventType string
	data      strings.Builder
	hasData   bool
}

// NewAssembler returns an Assembler using policy.
func NewAssembler(policy Policy) *Assembler {
	return &Assembler{policy: policy}
}

// Policy returns the grouping policy in use.
func (a *Assembler) Policy() Policy {
	return a.policy
}

// Line consumes one line (without its "\n") and returns the record it
// completes, if any.
//
// Lines have the form "field:value". The value of an "event:" line is
// whitespace trimmed. The value of a "data:" line loses a single space after
// the colon, if present, and nothing else. Comment lines (leading ':') and
// other fields ("id:", "retry:", unknown) are ignored.
func (a *Assembler) Line(line string) (Record, bool) {
	line = strings.TrimSuffix(line, "\r")

	if line == "" {
		if a.policy == PolicyBuffered {
			return a.flush()
		}
		return Record{}, false
	}

	if strings.HasPrefix(line, ":") {
		return Record{}, false
	}

	field, value, _ := strings.Cut(line, ":")

	switch field {
	case "event":
		var (
			rec Record
			ok  bool
		)
		if a.policy == PolicyBuffered {
			rec, ok = a.flush()
		}
		a.eventType = strings.TrimSpace(value)
		return rec, ok

	case "data":
		value = strings.TrimPrefix(value, " ")
		if a.policy == PolicyPerLine {
			return Record{Type: a.currentType(), Payload: ParsePayload(value)}, true
		}
		a.data.WriteString(value)
		a.hasData = true
	}

	return Record{}, false
}

// Flush ends the stream and returns the pending record, if any. Under
// PolicyPerLine nothing is ever pending.
func (a *Assembler) Flush() (Record, bool) {
	if a.policy != PolicyBuffered {
		return Record{}, false
	}
	return a.flush()
}

// flush emits the accumulated record when at least one data line was seen.
// The event type resets to the default either way.
func (a *Assembler) flush() (Record, bool) {
	if !a.hasData {
		a.eventType = ""
		return Record{}, false
	}

	rec := Record{
		Type:    a.currentType(),
		Payload: ParsePayload(a.data.String()),
	}

	a.eventType = ""
	a.data.Reset()
	a.hasData = false

	return rec, true
}

func (a *Assembler) currentType() string {
	if a.eventType == "" {
		return DefaultEventType
	}
	return a.eventType
}
