package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Request describes the stream to open.
type Request struct {
	// Method is http.MethodGet or http.MethodPost. Empty means GET.
	Method string

	// Path is resolved against the transport's base URL.
	Path string

	// Query holds the request parameters. For GET they are sent in the URL
	// query; for POST with a nil Body they are sent as a JSON object.
	Query url.Values

	// Body, when set on a POST, is JSON encoded as the request body.
	Body any
}

// Response is an opened stream.
type Response struct {
	StatusCode int
	Body       io.ReadCloser
}

// Transport opens a byte stream for a Request.
type Transport interface {
	Open(ctx context.Context, req *Request) (*Response, error)
}

// HTTPTransport opens streams over HTTP against a base URL.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
	headers http.Header
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithHTTPClient sets the client used for requests. The client should not
// set an overall Timeout, as that would cut long streams short; use the
// request context instead.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTPTransport) {
		t.client = c
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) HTTPOption {
	return func(t *HTTPTransport) {
		t.headers.Add(key, value)
	}
}

// NewHTTPTransport returns a transport rooted at baseURL, e.g.
// "http://localhost:3002".
func NewHTTPTransport(baseURL string, opts ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		headers: http.Header{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// BaseURL returns the URL requests are resolved against.
func (t *HTTPTransport) BaseURL() string {
	return t.baseURL
}

// Open sends req and returns the response body for streaming. A non-2xx
// status is returned as a *TransportError after the body is closed.
func (t *HTTPTransport) Open(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := t.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &TransportError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	return &Response{StatusCode: resp.StatusCode, Body: resp.Body}, nil
}

func (t *HTTPTransport) newRequest(ctx context.Context, req *Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target := t.baseURL + "/" + strings.TrimLeft(req.Path, "/")

	var body io.Reader
	switch method {
	case http.MethodGet:
		if len(req.Query) > 0 {
			target += "?" + req.Query.Encode()
		}
	case http.MethodPost:
		payload := req.Body
		if payload == nil {
			payload = flattenQuery(req.Query)
		}
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	default:
		return nil, fmt.Errorf("unsupported stream method %q", method)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	for key, values := range t.headers {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	return httpReq, nil
}

// flattenQuery turns single-valued parameters into a JSON object.
func flattenQuery(q url.Values) map[string]any {
	out := make(map[string]any, len(q))
	for key, values := range q {
		if len(values) == 1 {
			out[key] = values[0]
			continue
		}
		out[key] = values
	}
	return out
}
