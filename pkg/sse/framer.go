package sse

import (
	"iter"
	"strings"
)

// LineFramer splits decoded text into lines on "\n", holding the trailing
// partial line until a later Feed completes it.
type LineFramer struct {
	buf          string
	emitTrailing bool
}

// NewLineFramer returns an empty LineFramer. When emitTrailing is true,
// Flush returns an unterminated final line instead of discarding it.
func NewLineFramer(emitTrailing bool) *LineFramer {
	return &LineFramer{emitTrailing: emitTrailing}
}

// Feed appends text to the carry-over and returns the sequence of lines it
// completes, without their terminators. The sequence is lazy: lines are cut
// from the buffer as they are yielded, and lines not reached (because the
// caller stopped early or never ranged) are yielded by the next sequence.
func (f *LineFramer) Feed(text string) iter.Seq[string] {
	f.buf += text
	return f.lines
}

func (f *LineFramer) lines(yield func(string) bool) {
	for {
		i := strings.IndexByte(f.buf, '\n')
		if i < 0 {
			return
		}
		line := f.buf[:i]
		f.buf = f.buf[i+1:]
		if !yield(line) {
			return
		}
	}
}

// Flush ends the stream and reports the unterminated final line, if the
// framer is configured to emit it.
func (f *LineFramer) Flush() (string, bool) {
	line := f.buf
	f.buf = ""
	if line == "" || !f.emitTrailing {
		return "", false
	}
	return line, true
}
