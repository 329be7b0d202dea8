// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package client is a Go client for the cfpilot monitor API.
//
// The monitor exposes a live scripting session: its command pipeline,
// cached game state and event stream.
//
//	c := client.New("http://127.0.0.1:8765")
//
//	inv, err := c.Items.Inventory(ctx)
//
//	cmd, err := c.Commands.Dispatch(ctx, client.DispatchRequest{Text: "north"})
//	res, err := c.Commands.Settle(ctx, cmd.Seq, 5*time.Second)
//
// Every response uses the {data, error, meta} envelope. API failures are
// returned as *APIError:
//
//	var apiErr *client.APIError
//	if errors.As(err, &apiErr) && apiErr.Code == client.ErrCodeSessionClosed {
//		...
//	}
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a monitor API client.
//
// The Client is safe for concurrent use by multiple goroutines.
type Client struct {
	baseURL    string
	version    string
	httpClient *http.Client

	// Session reads pipeline counters, player identity and stats.
	Session *SessionClient

	// Items reads cached item listings.
	Items *ItemClient

	// Commands dispatches, inspects and settles commands.
	Commands *CommandClient

	// Events reads event history and streams live events.
	Events *EventClient
}

// Option configures a [Client]. Options are passed to [New] to customize
// client behavior.
type Option func(*Client)

// New creates a new monitor client with the given base URL and options.
//
// The baseURL is the root URL of the monitor (e.g., "http://127.0.0.1:8765").
// Any trailing slash is removed.
//
// By default, the client uses:
//   - The latest API version ([LatestVersion])
//   - A 30-second HTTP timeout
//
// Use options like [WithVersion], [WithTimeout], or [WithHTTPClient] to customize.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		version: LatestVersion,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	c.Session = &SessionClient{c: c}
	c.Items = &ItemClient{c: c}
	c.Commands = &CommandClient{c: c}
	c.Events = &EventClient{c: c}

	return c
}

// WithVersion pins the API version sent with every request.
func WithVersion(v string) Option {
	return func(c *Client) {
		c.version = v
	}
}

// WithHTTPClient sets a custom HTTP client for making requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the HTTP client timeout for all requests.
//
// The default is 30 seconds. Settle requests whose own timeout is longer
// are given that timeout plus a margin instead.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// Version returns the API version being used.
func (c *Client) Version() string {
	return c.version
}

// BaseURL returns the base URL of the API.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// envelope is the {data, error, meta} wrapper around every response.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *APIError       `json:"error"`
}

// Error codes returned by the monitor.
const (
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeInternal      = "INTERNAL_ERROR"
	ErrCodeSessionClosed = "SESSION_CLOSED"
)

// APIError is an error response from the monitor.
type APIError struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int `json:"-"`

	// Code is a machine-readable error code such as ErrCodeNotFound.
	Code string `json:"code"`

	// Message is a human-readable description of the error.
	Message string `json:"message"`

	// Details contains additional error information, if available.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// request describes one API call.
type request struct {
	method string
	path   string
	body   interface{}

	// wait is how long the server may hold the request open.
	wait time.Duration
}

func get(path string) request {
	return request{method: http.MethodGet, path: path}
}

func post(path string, body interface{}) request {
	return request{method: http.MethodPost, path: path, body: body}
}

// call performs req and decodes the envelope's data into a T. what names
// the payload in decode errors.
func call[T any](ctx context.Context, c *Client, req request, what string) (T, error) {
	var out T
	data, err := c.send(ctx, req)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("failed to parse %s: %w", what, err)
	}
	return out, nil
}

func (c *Client) send(ctx context.Context, req request) (json.RawMessage, error) {
	var body io.Reader
	if req.body != nil {
		buf, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	hreq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	hreq.Header.Set(VersionHeader, c.version)
	if body != nil {
		hreq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClientFor(req.wait).Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return readEnvelope(resp)
}

// httpClientFor returns an HTTP client whose timeout outlasts a server-side
// wait of d.
func (c *Client) httpClientFor(d time.Duration) *http.Client {
	need := d + 5*time.Second
	if c.httpClient.Timeout == 0 || c.httpClient.Timeout >= need {
		return c.httpClient
	}
	hc := *c.httpClient
	hc.Timeout = need
	return &hc
}

// readEnvelope unwraps a response body. Error statuses without an
// envelope become an *APIError carrying the status text.
func readEnvelope(resp *http.Response) (json.RawMessage, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 400 {
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				Message:    strings.TrimSpace(string(raw)),
			}
		}
		return raw, nil
	}
	if env.Error != nil {
		env.Error.StatusCode = resp.StatusCode
		return nil, env.Error
	}
	if resp.StatusCode >= 400 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return env.Data, nil
}
