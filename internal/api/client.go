// Package api is a thin client for the questlog backend REST API.
//
// Every endpoint answers with the envelope
//
//	{"success": true, "data": ...}
//	{"success": false, "error": "..."}
//
// and every request carries the user's bearer token. Failures come back as
// *Error values whose Kind tells "not found" apart from everything else, so
// callers never inspect message text:
//
//	task, err := client.GetTask(ctx, id)
//	if errors.Is(err, api.ErrNotFound) {
//	    // record doesn't exist remotely yet
//	}
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultTimeout bounds a single request when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// TokenSource supplies the bearer credential for each request.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token() (string, error) {
	if s == "" {
		return "", fmt.Errorf("no token configured")
	}
	return string(s), nil
}

// Options configures a Client.
type Options struct {
	// Timeout bounds each request (default: DefaultTimeout)
	Timeout time.Duration

	// HTTPClient overrides the transport (default: a new http.Client)
	HTTPClient *http.Client

	// UserAgent is sent with every request
	UserAgent string

	// Logger for request tracing (default: discard)
	Logger *log.Logger
}

// Client issues authenticated CRUD requests.
type Client struct {
	baseURL   *url.URL
	tokens    TokenSource
	http      *http.Client
	timeout   time.Duration
	userAgent string
	logger    *log.Logger

	requests atomic.Int64
}

// New creates a client for the backend at baseURL.
func New(baseURL string, tokens TokenSource, opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse api base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api base url must be http or https (got %q)", baseURL)
	}
	if tokens == nil {
		return nil, fmt.Errorf("token source cannot be nil")
	}

	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "questlog"
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}

	return &Client{
		baseURL:   u,
		tokens:    tokens,
		http:      opts.HTTPClient,
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
		logger:    opts.Logger,
	}, nil
}

// BaseURL returns the backend address.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Counter returns the number of HTTP requests issued so far.
func (c *Client) Counter() int64 {
	return c.requests.Load()
}

// envelope is the uniform response body.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// do sends one request and decodes envelope.data into out (if non-nil).
func (c *Client) do(ctx context.Context, op, method, path string, in, out interface{}) error {
	token, err := c.tokens.Token()
	if err != nil {
		return &Error{Kind: KindUnauthorized, Op: op, Message: "no credential", Err: err}
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &Error{Kind: KindOther, Op: op, Message: "failed to encode request", Err: err}
		}
		body = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return &Error{Kind: KindOther, Op: op, Message: "failed to build request", Err: err}
	}
	requestID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.requests.Add(1)
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Kind: KindOther, Op: op, Err: err}
	}
	defer resp.Body.Close()
	c.logger.Printf("%s %s -> %d (%v, request %s)", method, path, resp.StatusCode, time.Since(start).Round(time.Millisecond), requestID)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return &Error{Kind: KindOther, Op: op, Status: resp.StatusCode, Message: "failed to read response", Err: err}
	}

	var env envelope
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return &Error{Kind: KindOther, Op: op, Status: resp.StatusCode, Message: "failed to decode response", Err: err}
		}
	}

	if resp.StatusCode >= 300 || !env.Success {
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &Error{Kind: kindForStatus(resp.StatusCode), Op: op, Status: resp.StatusCode, Message: msg}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &Error{Kind: KindOther, Op: op, Status: resp.StatusCode, Message: "failed to decode data", Err: err}
	}
	return nil
}

// User is the authenticated account.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Me returns the account the token belongs to.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, "get current user", http.MethodGet, "/api/auth/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// DefaultLogger returns a stderr logger for request tracing.
func DefaultLogger() *log.Logger {
	return log.New(os.Stderr, "[api] ", log.LstdFlags)
}
