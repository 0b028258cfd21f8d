// Package stream drives a single streamed reply from request to completion:
// it opens the transport, pulls the body through the sse pipeline and
// delivers records, in arrival order, to a Handler.
package stream

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"

	"github.com/llmcli/streamchat/pkg/logger"
	"github.com/llmcli/streamchat/pkg/sse"
)

// Handler receives the outcome of one stream. OnRecord is called zero or
// more times, then exactly one of OnComplete or OnError.
type Handler interface {
	OnRecord(rec sse.Record)
	OnError(err error)
	OnComplete()
}

// HandlerFuncs adapts plain functions to a Handler. Nil fields are skipped.
type HandlerFuncs struct {
	Record   func(rec sse.Record)
	Error    func(err error)
	Complete func()
}

func (h HandlerFuncs) OnRecord(rec sse.Record) {
	if h.Record != nil {
		h.Record(rec)
	}
}

func (h HandlerFuncs) OnError(err error) {
	if h.Error != nil {
		h.Error(err)
	}
}

func (h HandlerFuncs) OnComplete() {
	if h.Complete != nil {
		h.Complete()
	}
}

// Dispatcher runs streams over a Transport.
type Dispatcher struct {
	transport  Transport
	logger     *slog.Logger
	readerOpts []sse.Option
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// WithReaderOptions sets the options every stream's sse.Reader is built
// with, such as the framing policy or a raw tee.
func WithReaderOptions(opts ...sse.Option) Option {
	return func(d *Dispatcher) {
		d.readerOpts = append(d.readerOpts, opts...)
	}
}

// NewDispatcher returns a Dispatcher over transport.
func NewDispatcher(transport Transport, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		transport: transport,
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run opens req and dispatches its records to h, blocking until the stream
// ends. It returns the same error passed to h.OnError, or nil after
// h.OnComplete.
func (d *Dispatcher) Run(ctx context.Context, req *Request, h Handler, opts ...sse.Option) error {
	resp, err := d.transport.Open(ctx, req)
	if err != nil {
		err = d.classify(ctx, err)
		d.logger.Warn("stream open failed", "path", req.Path, "error", err)
		h.OnError(err)
		return err
	}

	if resp == nil || resp.Body == nil {
		d.logger.Warn("stream has no body", "path", req.Path)
		h.OnError(ErrStreamUnavailable)
		return ErrStreamUnavailable
	}
	defer resp.Body.Close()

	d.logger.Debug("stream opened", "path", req.Path, "status", resp.StatusCode)

	count := 0
	for rec, err := range d.Records(ctx, resp.Body, opts...) {
		if err != nil {
			d.logger.Warn("stream failed", "path", req.Path, "records", count, "error", err)
			h.OnError(err)
			return err
		}
		count++
		h.OnRecord(rec)
	}

	d.logger.Debug("stream completed", "path", req.Path, "records", count)
	h.OnComplete()
	return nil
}

// Records returns a pull iterator over the records in body. Each step
// performs at most the reads needed for the next record; the loop checks ctx
// between records. Iteration ends after the first error, which is yielded
// with a zero record. Cancellation is reported as an error matching
// ErrAborted.
func (d *Dispatcher) Records(ctx context.Context, body io.Reader, opts ...sse.Option) iter.Seq2[sse.Record, error] {
	readerOpts := append(append([]sse.Option(nil), d.readerOpts...), opts...)

	return func(yield func(sse.Record, error) bool) {
		r := sse.NewReader(body, readerOpts...)
		for {
			if err := ctx.Err(); err != nil {
				yield(sse.Record{}, aborted(err))
				return
			}

			rec, err := r.Next()
			if errors.Is(err, io.EOF) {
				if n := r.Decoder().Replaced(); n > 0 {
					d.logger.Debug("invalid utf-8 replaced", "bytes", n)
				}
				return
			}
			if err != nil {
				if n := r.Decoder().Pending(); n > 0 {
					d.logger.Debug("stream failed inside a utf-8 sequence", "pending_bytes", n)
				}
				yield(sse.Record{}, d.classify(ctx, err))
				return
			}

			if !yield(rec, nil) {
				return
			}
		}
	}
}

// classify maps errors caused by cancellation to ErrAborted and leaves
// everything else untouched.
func (d *Dispatcher) classify(ctx context.Context, err error) error {
	if errors.Is(err, ErrAborted) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return aborted(ctxErr)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return aborted(err)
	}
	return err
}
