// Package chat runs chat turns: it records the user's message, streams the
// assistant's reply into the transcript and hands the finished turn to a
// recorder.
package chat

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/llmcli/streamchat/pkg/logger"
	"github.com/llmcli/streamchat/pkg/sse"
	"github.com/llmcli/streamchat/pkg/stream"
	"github.com/llmcli/streamchat/pkg/transcript"
	"github.com/llmcli/streamchat/pkg/worker"
)

// DefaultStreamPath is the chat stream endpoint of the backend.
const DefaultStreamPath = "/api/chat/stream"

// State is the client's loading state.
type State struct {
	// IsLoading is true from the moment a turn starts until it is terminal.
	IsLoading bool

	// IsStreaming is true while the reply stream is open.
	IsStreaming bool

	// Error is the failure of the last turn, if any.
	Error error
}

// Observer is called after each record is applied, with a snapshot of the
// assistant message as it stands.
type Observer func(rec sse.Record, msg transcript.Message)

// Recorder accepts finished turns. *worker.Pool implements it.
type Recorder interface {
	Enqueue(job worker.Job) bool
}

// Client runs turns against a Dispatcher. It allows one turn at a time.
type Client struct {
	dispatcher *stream.Dispatcher
	transcript *transcript.Store
	recorder   Recorder
	logger     *slog.Logger

	streamPath string
	method     string
	readerOpts []sse.Option

	mu             sync.Mutex
	state          State
	conversationID string
}

// Option configures a Client.
type Option func(*Client)

// WithTranscript sets the message store. Defaults to an empty store.
func WithTranscript(s *transcript.Store) Option {
	return func(c *Client) {
		c.transcript = s
	}
}

// WithRecorder sets where finished turns are sent.
func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		c.recorder = r
	}
}

// WithConversation sets the conversation finished turns are recorded under.
func WithConversation(id string) Option {
	return func(c *Client) {
		c.conversationID = id
	}
}

// WithStreamPath sets the chat stream endpoint path.
func WithStreamPath(path string) Option {
	return func(c *Client) {
		c.streamPath = path
	}
}

// WithMethod sets the HTTP method used to open the stream: GET sends the
// message in the query, POST as a JSON body.
func WithMethod(method string) Option {
	return func(c *Client) {
		c.method = strings.ToUpper(method)
	}
}

// WithReaderOptions sets per-turn stream reader options, such as a raw tee.
func WithReaderOptions(opts ...sse.Option) Option {
	return func(c *Client) {
		c.readerOpts = append(c.readerOpts, opts...)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient returns a Client streaming through d.
func NewClient(d *stream.Dispatcher, opts ...Option) *Client {
	c := &Client{
		dispatcher: d,
		logger:     logger.Nop(),
		streamPath: DefaultStreamPath,
		method:     http.MethodGet,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transcript == nil {
		c.transcript = transcript.NewStore(transcript.WithStoreLogger(c.logger))
	}
	return c
}

// StreamMessage sends text and streams the reply into a new assistant
// message, blocking until the reply is terminal. It returns the final
// snapshot of that message and true.
//
// Blank text, or a call while another turn is in progress, does nothing and
// returns (nil, false, nil). The returned error is the transport, decode or
// cancellation failure of the stream; a failure reported by the server in an
// "error" record is only visible in the message and in State().Error.
func (c *Client) StreamMessage(ctx context.Context, text string, obs Observer) (*transcript.Message, bool, error) {
	if strings.TrimSpace(text) == "" {
		return nil, false, nil
	}

	c.mu.Lock()
	if c.state.IsLoading || c.state.IsStreaming {
		c.mu.Unlock()
		return nil, false, nil
	}
	c.state = State{IsLoading: true, IsStreaming: true}
	conversationID := c.conversationID
	c.mu.Unlock()

	started := time.Now()

	user, machine, err := c.begin(text)
	if err != nil {
		c.finish(err)
		return nil, false, err
	}

	log := c.logger.With("message_id", machine.ID())
	log.Debug("turn started", "method", c.method, "path", c.streamPath)

	h := stream.HandlerFuncs{
		Record: func(rec sse.Record) {
			machine.Apply(rec)
			if obs != nil {
				obs(rec, machine.Snapshot())
			}
		},
		Error:    machine.Fail,
		Complete: machine.Finish,
	}
	runErr := c.dispatcher.Run(ctx, c.request(text), h, c.readerOpts...)

	final := machine.Snapshot()
	turnErr := runErr
	if turnErr == nil {
		turnErr = machine.Err()
	}
	c.finish(turnErr)

	log.Debug("turn finished", "phase", machine.Phase().String(), "content_len", len(final.Content), "error", turnErr)

	if c.recorder != nil {
		c.recorder.Enqueue(worker.Job{
			ConversationID: conversationID,
			User:           user,
			Assistant:      final,
			Phase:          machine.Phase(),
			Err:            turnErr,
			StartedAt:      started,
			CompletedAt:    time.Now(),
		})
	}

	return &final, true, runErr
}

// begin adds the user message and the empty assistant placeholder and opens
// a turn on the placeholder.
func (c *Client) begin(text string) (transcript.Message, *transcript.Machine, error) {
	user, err := c.transcript.Add(transcript.NewMessage(transcript.RoleUser, text))
	if err != nil {
		return transcript.Message{}, nil, err
	}

	placeholder, err := c.transcript.Add(transcript.NewMessage(transcript.RoleAssistant, ""))
	if err != nil {
		return transcript.Message{}, nil, err
	}

	machine, err := c.transcript.Begin(placeholder.ID)
	if err != nil {
		return transcript.Message{}, nil, err
	}
	return user, machine, nil
}

func (c *Client) request(text string) *stream.Request {
	return &stream.Request{
		Method: c.method,
		Path:   c.streamPath,
		Query:  url.Values{"message": {text}},
	}
}

func (c *Client) finish(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.IsLoading = false
	c.state.IsStreaming = false
	c.state.Error = err
}

// State returns the current loading state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Messages returns snapshots of every message, oldest first.
func (c *Client) Messages() []transcript.Message {
	return c.transcript.List()
}

// Clear removes every message. It fails with transcript.ErrTurnActive while
// a turn is streaming.
func (c *Client) Clear() error {
	if err := c.transcript.Clear(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Error = nil
	return nil
}

// ConversationID returns the conversation turns are recorded under.
func (c *Client) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

// SetConversation changes the conversation later turns are recorded under.
func (c *Client) SetConversation(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conversationID = id
}
