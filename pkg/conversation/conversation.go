// Package conversation defines saved conversations, their messages, and the
// Store interface the storage drivers implement.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/llmcli/streamchat/pkg/utils"
)

const (
	// DefaultTitle names a conversation created without a title.
	DefaultTitle = "New conversation"

	titleLimit   = 20
	previewLimit = 30
)

// Conversation is a saved chat. Times are Unix milliseconds, matching the
// wire format of the conversations API.
type Conversation struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Preview      string `json:"preview"`
	CreateTime   int64  `json:"createTime"`
	UpdateTime   int64  `json:"updateTime"`
	MessageCount int    `json:"messageCount"`
}

// Message is one persisted transcript entry of a conversation.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	Timestamp      int64  `json:"timestamp"`
}

// Update holds the fields to change on a conversation. Nil fields are left
// alone.
type Update struct {
	Title        *string
	Preview      *string
	MessageCount *int
}

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return u.Title == nil && u.Preview == nil && u.MessageCount == nil
}

// Apply copies the set fields of u onto c and bumps its update time.
func (u Update) Apply(c *Conversation, now time.Time) {
	if u.Title != nil {
		c.Title = *u.Title
	}
	if u.Preview != nil {
		c.Preview = *u.Preview
	}
	if u.MessageCount != nil {
		c.MessageCount = *u.MessageCount
	}
	c.UpdateTime = now.UnixMilli()
}

// Store persists conversations and their messages.
type Store interface {
	// Create stores a new conversation. An empty title becomes DefaultTitle.
	Create(ctx context.Context, title string) (*Conversation, error)

	// List returns every conversation, most recently updated first.
	List(ctx context.Context) ([]*Conversation, error)

	// Get returns one conversation.
	Get(ctx context.Context, id string) (*Conversation, error)

	// Update changes the fields set in u.
	Update(ctx context.Context, id string, u Update) (*Conversation, error)

	// Delete removes a conversation and its messages.
	Delete(ctx context.Context, id string) error

	// Messages returns the messages of a conversation, oldest first.
	Messages(ctx context.Context, conversationID string) ([]*Message, error)

	// AppendMessage stores a message and bumps the conversation's message
	// count and update time.
	AppendMessage(ctx context.Context, conversationID, role, content string) (*Message, error)

	// Close releases the store's resources.
	Close() error
}

// NotFoundError is returned for an unknown conversation id.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return "conversation not found"
	}
	return "conversation not found: " + e.ID
}

// Is matches any NotFoundError, so errors.Is(err, NotFoundError{}) works
// regardless of the id.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	return ok
}

// ErrNoUpdate is returned by Update when no field is set.
var ErrNoUpdate = errors.New("no fields to update")

// New returns a conversation with a fresh id created at now.
func New(title string, now time.Time) *Conversation {
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	ms := now.UnixMilli()
	return &Conversation{
		ID:         NewID("conv", now),
		Title:      title,
		CreateTime: ms,
		UpdateTime: ms,
	}
}

// NewMessage returns a message with a fresh id stamped at now.
func NewMessage(conversationID, role, content string, now time.Time) *Message {
	return &Message{
		ID:             NewID("msg", now),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Timestamp:      now.UnixMilli(),
	}
}

// NewID returns an id of the form "<prefix>_<unix ms>_<6 hex chars>".
func NewID(prefix string, now time.Time) string {
	u := uuid.New()
	return fmt.Sprintf("%s_%d_%x", prefix, now.UnixMilli(), u[:3])
}

// TitleFor derives a conversation title from its first user message.
func TitleFor(firstMessage string) string {
	firstMessage = strings.TrimSpace(firstMessage)
	if firstMessage == "" {
		return DefaultTitle
	}
	return utils.Truncate(firstMessage, titleLimit)
}

// PreviewFor derives the list preview from a message.
func PreviewFor(text string) string {
	return utils.Truncate(strings.TrimSpace(text), previewLimit)
}
