// Package inmemory provides a conversation.Store backed by maps.
package inmemory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/llmcli/streamchat/pkg/conversation"
)

// Driver implements conversation.Store in memory.
type Driver struct {
	// mu guards every map below
	mu sync.RWMutex

	conversations map[string]*conversation.Conversation

	// messages maps a conversation id to its messages in append order
	messages map[string][]*conversation.Message

	// seq records creation order to break update time ties
	seq  map[string]int
	next int

	now func() time.Time
}

// Option configures a Driver.
type Option func(*Driver)

// WithClock sets the clock used for ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		d.now = now
	}
}

// NewDriver returns an empty Driver.
func NewDriver(opts ...Option) *Driver {
	d := &Driver{
		conversations: make(map[string]*conversation.Conversation),
		messages:      make(map[string][]*conversation.Message),
		seq:           make(map[string]int),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Driver) Create(_ context.Context, title string) (*conversation.Conversation, error) {
	c := conversation.New(title, d.now())

	d.mu.Lock()
	defer d.mu.Unlock()

	d.conversations[c.ID] = c
	d.seq[c.ID] = d.next
	d.next++

	copied := *c
	return &copied, nil
}

func (d *Driver) List(_ context.Context) ([]*conversation.Conversation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*conversation.Conversation, 0, len(d.conversations))
	for _, c := range d.conversations {
		copied := *c
		out = append(out, &copied)
	}

	slices.SortFunc(out, func(a, b *conversation.Conversation) int {
		if n := cmp.Compare(b.UpdateTime, a.UpdateTime); n != 0 {
			return n
		}
		return cmp.Compare(d.seq[b.ID], d.seq[a.ID])
	})

	return out, nil
}

func (d *Driver) Get(_ context.Context, id string) (*conversation.Conversation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.conversations[id]
	if !ok {
		return nil, conversation.NotFoundError{ID: id}
	}
	copied := *c
	return &copied, nil
}

func (d *Driver) Update(_ context.Context, id string, u conversation.Update) (*conversation.Conversation, error) {
	if u.Empty() {
		return nil, conversation.ErrNoUpdate
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.conversations[id]
	if !ok {
		return nil, conversation.NotFoundError{ID: id}
	}
	u.Apply(c, d.now())

	copied := *c
	return &copied, nil
}

func (d *Driver) Delete(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.conversations[id]; !ok {
		return conversation.NotFoundError{ID: id}
	}
	delete(d.conversations, id)
	delete(d.messages, id)
	delete(d.seq, id)
	return nil
}

func (d *Driver) Messages(_ context.Context, conversationID string) ([]*conversation.Message, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if _, ok := d.conversations[conversationID]; !ok {
		return nil, conversation.NotFoundError{ID: conversationID}
	}

	out := make([]*conversation.Message, 0, len(d.messages[conversationID]))
	for _, m := range d.messages[conversationID] {
		copied := *m
		out = append(out, &copied)
	}
	return out, nil
}

func (d *Driver) AppendMessage(_ context.Context, conversationID, role, content string) (*conversation.Message, error) {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.conversations[conversationID]
	if !ok {
		return nil, conversation.NotFoundError{ID: conversationID}
	}

	m := conversation.NewMessage(conversationID, role, content, now)
	d.messages[conversationID] = append(d.messages[conversationID], m)
	c.MessageCount++
	c.UpdateTime = now.UnixMilli()

	copied := *m
	return &copied, nil
}

// Close is a no-op.
func (d *Driver) Close() error {
	return nil
}
