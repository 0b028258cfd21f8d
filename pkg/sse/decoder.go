package sse

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrDecode is matched by every *DecodeError via errors.Is.
var ErrDecode = errors.New("sse: decode error")

// DecodeError is returned when the stream ends in the middle of a multi-byte
// UTF-8 sequence.
type DecodeError struct {
	// Bytes holds the undecodable remainder.
	Bytes []byte
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("sse: stream ended inside a utf-8 sequence (% x)", e.Bytes)
}

// Is reports whether target is ErrDecode.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// Decoder turns a sequence of byte chunks into text. A multi-byte sequence
// split across chunk boundaries is held back until the rest of it arrives,
// so the concatenation of every Feed result plus the Flush result equals a
// one-shot decode of the concatenated chunks.
//
// Bytes that can never form a valid sequence are replaced with U+FFFD the
// way a browser TextDecoder does: one replacement per maximal subpart, i.e.
// the longest prefix of a well-formed sequence, or a single byte when there
// is none.
type Decoder struct {
	pending  []byte
	replaced int
}

// NewDecoder returns an empty Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed decodes chunk, prefixed with any carry-over from the previous call,
// and returns the text that is complete so far. The chunk is not retained.
func (d *Decoder) Feed(chunk []byte) string {
	buf := chunk
	if len(d.pending) > 0 {
		buf = append(d.pending, chunk...)
		d.pending = nil
	}

	var sb strings.Builder
	sb.Grow(len(buf))

	for len(buf) > 0 {
		r, size := utf8.DecodeRune(buf)
		if r == utf8.RuneError && size <= 1 {
			if !utf8.FullRune(buf) {
				// At most utf8.UTFMax-1 bytes of an unfinished sequence.
				d.pending = append(make([]byte, 0, utf8.UTFMax), buf...)
				break
			}
			sb.WriteRune(utf8.RuneError)
			d.replaced++
			buf = buf[maximalSubpart(buf):]
			continue
		}
		sb.Write(buf[:size])
		buf = buf[size:]
	}

	return sb.String()
}

// Flush ends the stream. It returns a *DecodeError if an incomplete sequence
// is still buffered; the Decoder is empty afterwards either way.
func (d *Decoder) Flush() (string, error) {
	if len(d.pending) == 0 {
		return "", nil
	}
	rest := d.pending
	d.pending = nil
	return "", &DecodeError{Bytes: rest}
}

// Pending reports how many bytes are waiting for the rest of their sequence.
func (d *Decoder) Pending() int {
	return len(d.pending)
}

// Replaced reports how many U+FFFD replacements have been written.
func (d *Decoder) Replaced() int {
	return d.replaced
}

// maximalSubpart returns how many bytes at the start of p form a prefix of a
// well-formed UTF-8 sequence, at least 1. p must start with an invalid or
// truncated sequence.
func maximalSubpart(p []byte) int {
	lo, hi := byte(0x80), byte(0xbf)
	var need int
	switch lead := p[0]; {
	case lead >= 0xc2 && lead <= 0xdf:
		need = 1
	case lead == 0xe0:
		need, lo = 2, 0xa0
	case lead == 0xed:
		need, hi = 2, 0x9f
	case lead >= 0xe1 && lead <= 0xef:
		need = 2
	case lead == 0xf0:
		need, lo = 3, 0x90
	case lead >= 0xf1 && lead <= 0xf3:
		need = 3
	case lead == 0xf4:
		need, hi = 3, 0x8f
	default:
		return 1
	}

	n := 1
	for ; n <= need && n < len(p); n++ {
		if c := p[n]; c < lo || c > hi {
			break
		}
		lo, hi = 0x80, 0xbf
	}
	return n
}
