package sse

import (
	"errors"
	"io"
	"iter"
)

const defaultReadSize = 4 * 1024

// Option configures a Reader.
type Option func(*readerConfig)

type readerConfig struct {
	policy       Policy
	emitTrailing bool
	tee          io.Writer
	readSize     int
}

// WithPolicy sets the record grouping policy. Defaults to PolicyBuffered.
func WithPolicy(p Policy) Option {
	return func(c *readerConfig) {
		c.policy = p
	}
}

// WithTrailingLine makes the Reader treat an unterminated final line as a
// complete line instead of discarding it.
func WithTrailingLine(emit bool) Option {
	return func(c *readerConfig) {
		c.emitTrailing = emit
	}
}

// WithTee copies every raw byte read from the source to w before it is
// decoded.
func WithTee(w io.Writer) Option {
	return func(c *readerConfig) {
		c.tee = w
	}
}

// WithReadSize sets the size of the buffer handed to the source's Read.
func WithReadSize(n int) Option {
	return func(c *readerConfig) {
		if n > 0 {
			c.readSize = n
		}
	}
}

// Reader pulls records out of a byte stream. It owns one Decoder, one
// LineFramer and one Assembler, so it carries the full decode state of a
// single stream and must not be reused for another.
//
// ┌────────────────────┐
// │ source io.Reader   │──────────▶ tee io.Writer (optional, verbatim)
// └────────────────────┘
// │
// ▼
// ┌────────────────────┐
// │ Decoder/Framer/    │
// │ Assembler          │
// └────────────────────┘
// │
// ▼
// ┌────────────────────┐
// │ Reader.Next()      │
// └────────────────────┘
type Reader struct {
	src io.Reader
	cfg readerConfig
	buf []byte

	decoder   *Decoder
	framer    *LineFramer
	assembler *Assembler

	queue []Record
	done  bool
	err   error
}

// NewReader returns a Reader over src.
func NewReader(src io.Reader, opts ...Option) *Reader {
	cfg := readerConfig{
		policy:   PolicyBuffered,
		readSize: defaultReadSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Reader{
		src:       src,
		cfg:       cfg,
		buf:       make([]byte, cfg.readSize),
		decoder:   NewDecoder(),
		framer:    NewLineFramer(cfg.emitTrailing),
		assembler: NewAssembler(cfg.policy),
	}
}

// Next returns the next record. It blocks on the source until a record is
// complete. At the end of a clean stream it returns io.EOF; otherwise it
// returns the read error, a *DecodeError, or a tee write error. Records
// completed before a failure are always returned first.
func (r *Reader) Next() (Record, error) {
	for {
		if len(r.queue) > 0 {
			rec := r.queue[0]
			r.queue = r.queue[1:]
			return rec, nil
		}

		if r.done {
			if r.err != nil {
				return Record{}, r.err
			}
			return Record{}, io.EOF
		}

		r.fill()
	}
}

// All returns an iterator over the remaining records. The iteration stops
// after the first non-nil error, which is yielded with a zero Record; a
// clean end of stream yields no error.
func (r *Reader) All() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for {
			rec, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Record{}, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// Decoder exposes the underlying Decoder, mostly for its counters.
func (r *Reader) Decoder() *Decoder {
	return r.decoder
}

// fill performs one Read on the source and queues whatever records it
// completes.
func (r *Reader) fill() {
	n, err := r.src.Read(r.buf)
	if n > 0 {
		if r.cfg.tee != nil {
			if _, werr := r.cfg.tee.Write(r.buf[:n]); werr != nil {
				r.done = true
				r.err = werr
				return
			}
		}
		r.push(r.decoder.Feed(r.buf[:n]))
	}

	switch {
	case err == nil:
		return
	case errors.Is(err, io.EOF):
		r.finish()
	default:
		r.done = true
		r.err = err
	}
}

func (r *Reader) push(text string) {
	for line := range r.framer.Feed(text) {
		if rec, ok := r.assembler.Line(line); ok {
			r.queue = append(r.queue, rec)
		}
	}
}

// finish drains every stage at end of stream.
func (r *Reader) finish() {
	r.done = true

	text, err := r.decoder.Flush()
	r.push(text)
	if line, ok := r.framer.Flush(); ok {
		if rec, ok := r.assembler.Line(line); ok {
			r.queue = append(r.queue, rec)
		}
	}
	if rec, ok := r.assembler.Flush(); ok {
		r.queue = append(r.queue, rec)
	}

	r.err = err
}
