// Package sqlstore provides a conversation.Store over database/sql, with
// SQLite (github.com/mattn/go-sqlite3) and PostgreSQL (pgx stdlib) dialects.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/llmcli/streamchat/pkg/conversation"
)

// Dialect names the SQL flavour a Driver speaks.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Driver implements conversation.Store over a *sql.DB.
type Driver struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// Option configures a Driver.
type Option func(*Driver)

// WithClock sets the clock used for ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		d.now = now
	}
}

// New wraps an open database and creates the schema if needed.
func New(ctx context.Context, db *sql.DB, dialect Dialect, opts ...Option) (*Driver, error) {
	d := &Driver{
		db:      db,
		dialect: dialect,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}

	if err := d.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return d, nil
}

// DB exposes the underlying database handle.
func (d *Driver) DB() *sql.DB {
	return d.db
}

func (d *Driver) migrate(ctx context.Context) error {
	seqColumn := "seq INTEGER PRIMARY KEY AUTOINCREMENT"
	if d.dialect == DialectPostgres {
		seqColumn = "seq BIGSERIAL PRIMARY KEY"
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			preview TEXT NOT NULL DEFAULT '',
			create_time BIGINT NOT NULL,
			update_time BIGINT NOT NULL,
			message_count INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			` + seqColumn + `,
			id TEXT NOT NULL UNIQUE,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			timestamp BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation_id ON messages(conversation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_update_time ON conversations(update_time)`,
	}

	for _, stmt := range statements {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites '?' placeholders to '$n' for PostgreSQL.
func (d *Driver) rebind(query string) string {
	if d.dialect != DialectPostgres {
		return query
	}

	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

const conversationColumns = `id, title, preview, create_time, update_time, message_count`

func (d *Driver) Create(ctx context.Context, title string) (*conversation.Conversation, error) {
	c := conversation.New(title, d.now())

	query := d.rebind(`INSERT INTO conversations (` + conversationColumns + `) VALUES (?, ?, ?, ?, ?, ?)`)
	if _, err := d.db.ExecContext(ctx, query, c.ID, c.Title, c.Preview, c.CreateTime, c.UpdateTime, c.MessageCount); err != nil {
		return nil, fmt.Errorf("failed to insert conversation: %w", err)
	}
	return c, nil
}

func (d *Driver) List(ctx context.Context) ([]*conversation.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations ORDER BY update_time DESC, create_time DESC, id DESC`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	out := []*conversation.Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (d *Driver) Get(ctx context.Context, id string) (*conversation.Conversation, error) {
	return d.get(ctx, d.db, id)
}

// querier is the subset of *sql.DB and *sql.Tx that get needs.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (d *Driver) get(ctx context.Context, q querier, id string) (*conversation.Conversation, error) {
	row := q.QueryRowContext(ctx, d.rebind(`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`), id)

	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, conversation.NotFoundError{ID: id}
	}
	return c, err
}

func (d *Driver) Update(ctx context.Context, id string, u conversation.Update) (*conversation.Conversation, error) {
	if u.Empty() {
		return nil, conversation.ErrNoUpdate
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	c, err := d.get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	u.Apply(c, d.now())

	query := d.rebind(`UPDATE conversations SET title = ?, preview = ?, update_time = ?, message_count = ? WHERE id = ?`)
	if _, err := tx.ExecContext(ctx, query, c.Title, c.Preview, c.UpdateTime, c.MessageCount, c.ID); err != nil {
		return nil, fmt.Errorf("failed to update conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit update: %w", err)
	}
	return c, nil
}

func (d *Driver) Delete(ctx context.Context, id string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM messages WHERE conversation_id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}

	res, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM conversations WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return conversation.NotFoundError{ID: id}
	}

	return tx.Commit()
}

func (d *Driver) Messages(ctx context.Context, conversationID string) ([]*conversation.Message, error) {
	if _, err := d.Get(ctx, conversationID); err != nil {
		return nil, err
	}

	query := d.rebind(`SELECT id, conversation_id, role, content, timestamp FROM messages WHERE conversation_id = ? ORDER BY seq ASC`)
	rows, err := d.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	out := []*conversation.Message{}
	for rows.Next() {
		var m conversation.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (d *Driver) AppendMessage(ctx context.Context, conversationID, role, content string) (*conversation.Message, error) {
	m := conversation.NewMessage(conversationID, role, content, d.now())

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		d.rebind(`UPDATE conversations SET message_count = message_count + 1, update_time = ? WHERE id = ?`),
		m.Timestamp, conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to bump conversation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, conversation.NotFoundError{ID: conversationID}
	}

	_, err = tx.ExecContext(ctx,
		d.rebind(`INSERT INTO messages (id, conversation_id, role, content, timestamp) VALUES (?, ?, ?, ?, ?)`),
		m.ID, m.ConversationID, m.Role, m.Content, m.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit message: %w", err)
	}
	return m, nil
}

// Close closes the database.
func (d *Driver) Close() error {
	return d.db.Close()
}

// scanner is the subset of *sql.Row and *sql.Rows that scanConversation needs.
type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(s scanner) (*conversation.Conversation, error) {
	var c conversation.Conversation
	if err := s.Scan(&c.ID, &c.Title, &c.Preview, &c.CreateTime, &c.UpdateTime, &c.MessageCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan conversation: %w", err)
	}
	return &c, nil
}
