// Package worker provides an asynchronous worker pool for recording finished
// chat turns: the messages are appended to a conversation.Store and a turn
// event is published to the configured eventstream.Publisher.
//
// The pool decouples persistence from the chat loop so a slow or unreachable
// store never delays the next prompt.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/llmcli/streamchat/pkg/conversation"
	"github.com/llmcli/streamchat/pkg/eventstream"
	"github.com/llmcli/streamchat/pkg/logger"
	"github.com/llmcli/streamchat/pkg/transcript"
)

var (
	// turns of one conversation must be appended in order, so a single
	// worker is the default
	defaultNumWorkers   uint = 1
	defaultJobQueueSize uint = 256
)

// Job is one finished turn for the worker pool to record.
type Job struct {
	// ConversationID is the conversation to append to. Empty skips the store
	// and only publishes.
	ConversationID string

	User      transcript.Message
	Assistant transcript.Message

	// Phase is the terminal phase the reply ended in.
	Phase transcript.Phase
	Err   error

	StartedAt   time.Time
	CompletedAt time.Time
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Store is the conversation backend turns are appended to.
	Store conversation.Store

	// Publisher receives a TurnCompletedEvent per recorded turn. Optional.
	Publisher eventstream.Publisher

	// Source is stamped on every published event.
	Source eventstream.EventSource

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	Logger *slog.Logger

	// Now is the event clock. Defaults to time.Now.
	Now func() time.Time
}

// Pool records turns asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	closeOnce sync.Once
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	if c.Now == nil {
		c.Now = time.Now
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger.With("component", "recorder"),
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			"conversation_id", job.ConversationID,
			"phase", job.Phase.String(),
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			"conversation_id", job.ConversationID,
			"phase", job.Phase.String(),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during shutdown after the chat loop has stopped enqueueing.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.queue)
	})
	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("recorder worker stopped", "worker_id", id)
}

// processJob stores the turn and publishes its event. A store failure is
// logged and the event is still published.
func (p *Pool) processJob(job Job) {
	ctx := context.Background()

	var conv *conversation.Conversation
	if job.ConversationID != "" && p.config.Store != nil {
		var err error
		conv, err = p.storeTurn(ctx, job)
		if err != nil {
			p.logger.Error("turn storage failed",
				"conversation_id", job.ConversationID,
				"error", err,
			)
		} else {
			p.logger.Info("turn stored",
				"conversation_id", conv.ID,
				"message_count", conv.MessageCount,
			)
		}
	}

	if p.config.Publisher == nil {
		return
	}

	event := p.newEvent(job, conv)
	if err := p.config.Publisher.PublishTurn(ctx, event); err != nil {
		p.logger.Warn("failed to publish turn event",
			"event_id", event.EventID,
			"error", err,
		)
		return
	}

	p.logger.Debug("published turn event", "event_id", event.EventID)
}

// storeTurn appends both messages, titles the conversation after its first
// user message and refreshes the preview.
func (p *Pool) storeTurn(ctx context.Context, job Job) (*conversation.Conversation, error) {
	store := p.config.Store

	if _, err := store.AppendMessage(ctx, job.ConversationID, string(job.User.Role), job.User.Content); err != nil {
		return nil, fmt.Errorf("storing user message: %w", err)
	}
	if _, err := store.AppendMessage(ctx, job.ConversationID, string(job.Assistant.Role), job.Assistant.Content); err != nil {
		// The store has no batch append, so the user message stays without a
		// reply and the preview is not refreshed.
		p.logger.Warn("turn stored partially, user message has no reply",
			"conversation_id", job.ConversationID,
			"error", err,
		)
		return nil, fmt.Errorf("storing assistant message: %w", err)
	}

	conv, err := store.Get(ctx, job.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}

	preview := conversation.PreviewFor(job.Assistant.Content)
	u := conversation.Update{Preview: &preview}
	if conv.Title == conversation.DefaultTitle {
		title := conversation.TitleFor(job.User.Content)
		u.Title = &title
	}

	conv, err = store.Update(ctx, job.ConversationID, u)
	if err != nil {
		return nil, fmt.Errorf("updating conversation: %w", err)
	}
	return conv, nil
}

func (p *Pool) newEvent(job Job, conv *conversation.Conversation) *eventstream.TurnCompletedEvent {
	event := &eventstream.TurnCompletedEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeTurnCompleted,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     p.config.Now().UTC(),
		Source:        p.config.Source,
		Conversation:  eventstream.ConversationMeta{ID: job.ConversationID},
		Timing: eventstream.TurnTiming{
			StartedAt:   job.StartedAt,
			CompletedAt: job.CompletedAt,
			DurationMs:  job.CompletedAt.Sub(job.StartedAt).Milliseconds(),
		},
		Turn: eventstream.Turn{
			User:      job.User,
			Assistant: job.Assistant,
			Phase:     job.Phase.String(),
		},
	}
	if conv != nil {
		event.Conversation.Title = conv.Title
	}
	if job.Err != nil {
		event.Turn.Error = job.Err.Error()
	}
	return event
}
