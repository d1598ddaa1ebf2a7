// Package chatclient talks to the remote chat service: it fetches the history
// of a conversation and posts new user messages.
//
// The service exposes two endpoints:
//
//	GET  {base}/chat/history/{conversationId}?showToolCalls=true
//	POST {base}/chat   {"message": "...", "conversationId": "..."}
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-go-golems/catchat/pkg/chat"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultMaxResponseSize caps how much of a response body is read.
	DefaultMaxResponseSize = 10 * 1024 * 1024

	defaultUserAgent = "catchat"
)

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// SendRequest is the JSON body of POST /chat.
type SendRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
}

// Client is safe for concurrent use.
type Client struct {
	baseURL         *url.URL
	httpClient      *http.Client
	headers         http.Header
	userAgent       string
	maxResponseSize int64
}

type Option func(*Client) error

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("nil http client")
		}
		c.httpClient = hc
		return nil
	}
}

// WithTimeout sets a per-request timeout. Zero means no timeout beyond the
// caller's context.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d < 0 {
			return errors.Errorf("negative timeout %s", d)
		}
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
		return nil
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) Option {
	return func(c *Client) error {
		c.headers.Add(key, value)
		return nil
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) error {
		c.userAgent = ua
		return nil
	}
}

func WithMaxResponseSize(n int64) Option {
	return func(c *Client) error {
		if n <= 0 {
			return errors.Errorf("invalid max response size %d", n)
		}
		c.maxResponseSize = n
		return nil
	}
}

// New creates a client for the service rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := ParseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:         u,
		httpClient:      &http.Client{},
		headers:         http.Header{},
		userAgent:       defaultUserAgent,
		maxResponseSize: DefaultMaxResponseSize,
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, errors.Wrap(err, "chat client option")
		}
	}
	return c, nil
}

// ParseBaseURL validates a service base URL. A trailing slash is dropped.
func ParseBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("empty base url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "parse base url %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("base url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return nil, errors.Errorf("base url %q: missing host", raw)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string { return c.baseURL.String() }

// HistoryURL is the endpoint that returns the messages of conversationID.
func (c *Client) HistoryURL(conversationID string) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + "/chat/history/" + url.PathEscape(conversationID)
	u.RawPath = c.baseURL.EscapedPath() + "/chat/history/" + url.PathEscape(conversationID)
	u.RawQuery = url.Values{"showToolCalls": []string{"true"}}.Encode()
	return u.String()
}

// ChatURL is the endpoint user messages are posted to.
func (c *Client) ChatURL() string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + "/chat"
	u.RawPath = ""
	return u.String()
}

// FetchHistory returns the full message list of a conversation.
func (c *Client) FetchHistory(ctx context.Context, conversationID string) ([]chat.Message, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, errors.New("fetch history: empty conversation id")
	}
	req, err := c.newRequest(ctx, http.MethodGet, c.HistoryURL(conversationID), nil)
	if err != nil {
		return nil, err
	}
	body, err := c.do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch history")
	}

	var msgs []chat.Message
	if err := json.Unmarshal(body, &msgs); err != nil {
		return nil, errors.Wrap(err, "fetch history: decode response")
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	log.Debug().
		Str("conversation_id", conversationID).
		Int("messages", len(msgs)).
		Msg("fetched chat history")
	return msgs, nil
}

// PostMessage submits a user message. The response body is not interpreted
// beyond the status code.
func (c *Client) PostMessage(ctx context.Context, conversationID, message string) error {
	if strings.TrimSpace(conversationID) == "" {
		return errors.New("post message: empty conversation id")
	}
	payload, err := json.Marshal(SendRequest{Message: message, ConversationID: conversationID})
	if err != nil {
		return errors.Wrap(err, "post message: encode request")
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.ChatURL(), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if _, err := c.do(req); err != nil {
		return errors.Wrap(err, "post message")
	}
	log.Debug().Str("conversation_id", conversationID).Int("length", len(message)).Msg("posted chat message")
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, errors.Wrapf(err, "build %s request", method)
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return req, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize+1))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if int64(len(body)) > c.maxResponseSize {
		return nil, errors.Errorf("response exceeds %d bytes", c.maxResponseSize)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, &StatusError{
			Method:     req.Method,
			URL:        req.URL.String(),
			StatusCode: resp.StatusCode,
			Body:       snippet,
		}
	}
	return body, nil
}
