package transcript

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/llmcli/streamchat/pkg/logger"
)

var (
	// ErrNotFound is returned for an unknown message id.
	ErrNotFound = errors.New("message not found")

	// ErrDuplicateID is returned when adding a message whose id is taken.
	ErrDuplicateID = errors.New("duplicate message id")

	// ErrTurnActive is returned when a message already has an active turn,
	// or when clearing a store with an active turn.
	ErrTurnActive = errors.New("turn already active")
)

// Store is the ordered transcript, keyed by message id. Readers get
// snapshots; the only writer of an existing message is the Machine that
// currently holds its turn.
type Store struct {
	mu       sync.RWMutex
	order    []string
	messages map[string]*Message
	active   map[string]bool
	now      func() time.Time
	logger   *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock sets the clock used for log entry timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// WithStoreLogger sets the logger machines report transitions to.
func WithStoreLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = l
	}
}

// NewStore returns an empty Store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		messages: make(map[string]*Message),
		active:   make(map[string]bool),
		now:      time.Now,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add appends m to the transcript. An empty id is filled in.
func (s *Store) Add(m Message) (Message, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[m.ID]; ok {
		return Message{}, ErrDuplicateID
	}

	stored := m.clone()
	s.messages[m.ID] = &stored
	s.order = append(s.order, m.ID)

	return stored.clone(), nil
}

// Get returns a snapshot of the message with id.
func (s *Store) Get(id string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[id]
	if !ok {
		return Message{}, false
	}
	return m.clone(), true
}

// List returns snapshots of every message in transcript order.
func (s *Store) List() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Message, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.messages[id].clone())
	}
	return out
}

// Clear removes every message. It fails while any turn is active.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.active) > 0 {
		return ErrTurnActive
	}
	s.order = nil
	s.messages = make(map[string]*Message)
	return nil
}

// Begin starts a turn on the message with id and returns the Machine that
// owns it until it reaches a terminal phase.
func (s *Store) Begin(id string) (*Machine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[id]; !ok {
		return nil, ErrNotFound
	}
	if s.active[id] {
		return nil, ErrTurnActive
	}
	s.active[id] = true

	return &Machine{
		store:  s,
		id:     id,
		phase:  PhaseIdle,
		logger: s.logger.With("message_id", id),
	}, nil
}

// mutate applies fn to the stored message under the write lock.
func (s *Store) mutate(id string, fn func(m *Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.messages[id]; ok {
		fn(m)
	}
}

// release ends the active turn on id.
func (s *Store) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
}
