// Package httpstore provides a conversation.Store that talks to a remote
// conversations API over HTTP.
package httpstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/llmcli/streamchat/pkg/conversation"
)

const (
	conversationsPath = "/api/conversations"
	messagesPath      = "/api/conversations/messages"
)

// Client implements conversation.Store against the conversations API.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// New returns a Client rooted at baseURL, e.g. "http://localhost:3002".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Create(ctx context.Context, title string) (*conversation.Conversation, error) {
	params := url.Values{}
	if title != "" {
		params.Set("title", title)
	}

	var out conversation.Conversation
	if err := c.do(ctx, http.MethodPost, conversationsPath, params, "", &out); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	return &out, nil
}

func (c *Client) List(ctx context.Context) ([]*conversation.Conversation, error) {
	out := []*conversation.Conversation{}
	if err := c.do(ctx, http.MethodGet, conversationsPath, nil, "", &out); err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	return out, nil
}

// Get finds id in the listing; the API has no single-item endpoint.
func (c *Client) Get(ctx context.Context, id string) (*conversation.Conversation, error) {
	list, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, conv := range list {
		if conv.ID == id {
			return conv, nil
		}
	}
	return nil, conversation.NotFoundError{ID: id}
}

func (c *Client) Update(ctx context.Context, id string, u conversation.Update) (*conversation.Conversation, error) {
	if u.Empty() {
		return nil, conversation.ErrNoUpdate
	}

	params := url.Values{"id": {id}}
	if u.Title != nil {
		params.Set("title", *u.Title)
	}
	if u.Preview != nil {
		params.Set("preview", *u.Preview)
	}
	if u.MessageCount != nil {
		params.Set("messageCount", strconv.Itoa(*u.MessageCount))
	}

	var out conversation.Conversation
	if err := c.do(ctx, http.MethodPatch, conversationsPath, params, id, &out); err != nil {
		return nil, fmt.Errorf("updating conversation: %w", err)
	}
	return &out, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	var out conversation.DeleteResult
	if err := c.do(ctx, http.MethodDelete, conversationsPath, url.Values{"id": {id}}, id, &out); err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	if !out.Success {
		return conversation.NotFoundError{ID: id}
	}
	return nil
}

func (c *Client) Messages(ctx context.Context, conversationID string) ([]*conversation.Message, error) {
	var out conversation.MessagesPage
	params := url.Values{"conversationId": {conversationID}}
	if err := c.do(ctx, http.MethodGet, messagesPath, params, conversationID, &out); err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	if out.Messages == nil {
		out.Messages = []*conversation.Message{}
	}
	return out.Messages, nil
}

func (c *Client) AppendMessage(ctx context.Context, conversationID, role, content string) (*conversation.Message, error) {
	params := url.Values{
		"conversationId": {conversationID},
		"role":           {role},
		"content":        {content},
	}

	var out conversation.Message
	if err := c.do(ctx, http.MethodPost, messagesPath, params, conversationID, &out); err != nil {
		return nil, fmt.Errorf("appending message: %w", err)
	}
	return &out, nil
}

// Close is a no-op.
func (c *Client) Close() error {
	return nil
}

// do sends a request with params in the query and decodes the envelope's
// data into out. A 404 becomes conversation.NotFoundError{ID: id}.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, id string, out any) error {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return conversation.NotFoundError{ID: id}
	}

	var env conversation.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		return fmt.Errorf("decoding response: %w", err)
	}

	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = env.Error
		}
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		return errors.New(msg)
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decoding data: %w", err)
	}
	return nil
}
