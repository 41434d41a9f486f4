// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package agentapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Configuration constants for the agent console API.
const (
	// DefaultTimeout is the timeout for plain JSON requests.
	DefaultTimeout = 15 * time.Second

	// DefaultChatPath is the streaming chat endpoint.
	DefaultChatPath = "/agent/chat"

	// DefaultSessionsPath lists the turns of one conversation record.
	DefaultSessionsPath = "/agent/chat/sessions"

	// DefaultRecordsPath lists the conversation records of an agent.
	DefaultRecordsPath = "/agent/chat/history"

	// DefaultAgentsPath lists the agents the user may chat with.
	DefaultAgentsPath = "/agents"

	// DefaultRequestsPerSecond limits plain JSON requests. Streams are not limited.
	DefaultRequestsPerSecond = 5

	// DefaultBurst is the limiter burst size.
	DefaultBurst = 5

	// MaxResponseSize is the maximum allowed JSON response body size.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB limit

	// userAgent identifies the client to the backend.
	userAgent = "agentlz/0.3.0"
)

var (
	// sharedHTTPClient pools connections for plain JSON requests.
	sharedHTTPClient = &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		},
		Timeout: DefaultTimeout,
	}

	// sharedStreamingClient is used for streaming requests (no timeout, context-controlled).
	sharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		},
	}
)

// =============================================================================
// ERRORS
// =============================================================================

// Error variables for common backend failures.
var (
	// ErrNotConfigured indicates no base URL is set.
	ErrNotConfigured = errors.New("agent API base URL not configured")

	// ErrUnauthorized indicates the bearer token was rejected (HTTP 401).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the user lacks permission (HTTP 403).
	ErrForbidden = errors.New("forbidden")

	// ErrValidation indicates the request failed server validation (HTTP 422).
	ErrValidation = errors.New("validation failed")

	// ErrServer indicates a server-side failure (HTTP 5xx).
	ErrServer = errors.New("server error")

	// ErrNoBody indicates a successful stream response without a body.
	ErrNoBody = errors.New("response has no body")
)

// APIError represents a non-OK response from the backend.
type APIError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("agent API error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("agent API error (HTTP %d)", e.Status)
}

// Is maps the HTTP status onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	case ErrValidation:
		return e.Status == http.StatusUnprocessableEntity
	case ErrServer:
		return e.Status >= 500
	}
	return false
}

// StreamOpenError reports that the streaming endpoint did not produce a
// readable stream: a transport failure, a non-OK status, or a missing body.
// No events are emitted for the send.
type StreamOpenError struct {
	Status int // 0 when the request never got a response
	Err    error
}

// Error implements the error interface.
func (e *StreamOpenError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("open stream (HTTP %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("open stream: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamOpenError) Unwrap() error {
	return e.Err
}

// apiErrorResponse covers the error bodies the backend is known to send.
type apiErrorResponse struct {
	Message string `json:"message"`
	Msg     string `json:"msg"`
	Detail  string `json:"detail"`
	Error   struct {
		Message string `json:"message"`
	} `json:"error"`
}

// errorFromResponse converts an error response into an *APIError.
func errorFromResponse(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	var parsed apiErrorResponse
	if err := json.Unmarshal(body, &parsed); err == nil {
		for _, m := range []string{parsed.Message, parsed.Error.Message, parsed.Msg, parsed.Detail} {
			if m != "" {
				apiErr.Message = m
				return apiErr
			}
		}
	}
	apiErr.Message = strings.TrimSpace(string(body))
	if len(apiErr.Message) > 200 {
		apiErr.Message = apiErr.Message[:200]
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

// =============================================================================
// CLIENT
// =============================================================================

// Options configures a Client.
type Options struct {
	BaseURL  string
	Token    string
	TenantID string

	ChatPath     string
	SessionsPath string
	RecordsPath  string
	AgentsPath   string

	// Timeout applies to plain JSON requests. Streams are bounded only by
	// their context.
	Timeout time.Duration

	RequestsPerSecond float64
	Burst             int

	// HTTPClient and StreamClient override the shared pooled clients.
	HTTPClient   *http.Client
	StreamClient *http.Client

	Logger *slog.Logger
}

// Client talks to the agent console backend.
type Client struct {
	baseURL string
	paths   struct {
		chat, sessions, records, agents string
	}
	timeout time.Duration

	mu     sync.RWMutex
	token  string
	tenant string

	httpClient   *http.Client
	streamClient *http.Client
	limiter      *rate.Limiter
	logger       *slog.Logger
}

// NewClient creates a client from opts, filling unset fields with defaults.
func NewClient(opts Options) *Client {
	c := &Client{
		baseURL:      strings.TrimSuffix(strings.TrimSpace(opts.BaseURL), "/"),
		timeout:      opts.Timeout,
		token:        strings.TrimSpace(opts.Token),
		tenant:       strings.TrimSpace(opts.TenantID),
		httpClient:   opts.HTTPClient,
		streamClient: opts.StreamClient,
		logger:       opts.Logger,
	}
	c.paths.chat = orDefault(opts.ChatPath, DefaultChatPath)
	c.paths.sessions = orDefault(opts.SessionsPath, DefaultSessionsPath)
	c.paths.records = orDefault(opts.RecordsPath, DefaultRecordsPath)
	c.paths.agents = orDefault(opts.AgentsPath, DefaultAgentsPath)

	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.httpClient == nil {
		c.httpClient = sharedHTTPClient
	}
	if c.streamClient == nil {
		c.streamClient = sharedStreamingClient
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = DefaultBurst
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return c
}

func orDefault(v, def string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	if !strings.HasPrefix(v, "/") {
		v = "/" + v
	}
	return v
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// IsConfigured returns true if the client has a base URL.
func (c *Client) IsConfigured() bool {
	return c.baseURL != ""
}

// SetToken replaces the bearer token, e.g. after the config file changed.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = strings.TrimSpace(token)
	c.mu.Unlock()
}

// SetTenant replaces the tenant id sent with every request.
func (c *Client) SetTenant(tenant string) {
	c.mu.Lock()
	c.tenant = strings.TrimSpace(tenant)
	c.mu.Unlock()
}

// setHeaders sets the headers shared by every request.
func (c *Client) setHeaders(req *http.Request) {
	c.mu.RLock()
	token, tenant := c.token, c.tenant
	c.mu.RUnlock()

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if tenant != "" {
		req.Header.Set("X-Tenant-ID", tenant)
	}
}

// =============================================================================
// JSON REQUESTS
// =============================================================================

// readResponse reads the response body with size limits to prevent memory exhaustion.
func readResponse(resp *http.Response) ([]byte, error) {
	limitedReader := io.LimitReader(resp.Body, MaxResponseSize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// doJSON performs a rate-limited JSON request and returns the raw body of a
// 2xx response. Non-2xx responses become *APIError.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, in any) ([]byte, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("api request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
		"request_id", req.Header.Get("X-Request-ID"))

	raw, err := readResponse(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errorFromResponse(resp.StatusCode, raw)
	}
	return raw, nil
}
