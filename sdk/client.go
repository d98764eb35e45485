package sdk

import (
	"context"
	"fmt"
	"net/http"
	"sync"
)

// Client is an access client scoped to one logical backend. It injects the
// bearer token, applies default headers, retries idempotent calls and
// normalizes every failure into *Error.
//
// All methods are safe for concurrent use.
//
// Example:
//
//	client, err := sdk.NewClient(sdk.DefaultConfig().
//	    WithTokenSource(sdk.NewStorageTokenSource(store)))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	var out Envelope
//	if err := client.Get(ctx, "airtable?maxRecords=10", &out); err != nil {
//	    if apiErr, ok := sdk.AsAPIError(err); ok {
//	        log.Printf("status %d: %s", apiErr.Status, apiErr.Message)
//	    }
//	}
type Client interface {
	// Get performs a GET and decodes a 2xx body into out.
	Get(ctx context.Context, path string, out interface{}, opts ...RequestOption) error

	// Post sends body as JSON. POST is never retried.
	Post(ctx context.Context, path string, body, out interface{}, opts ...RequestOption) error

	// Put sends body as JSON.
	Put(ctx context.Context, path string, body, out interface{}, opts ...RequestOption) error

	// Patch sends body as JSON. PATCH is never retried.
	Patch(ctx context.Context, path string, body, out interface{}, opts ...RequestOption) error

	// Delete performs a DELETE without a body.
	Delete(ctx context.Context, path string, out interface{}, opts ...RequestOption) error

	// Do performs a call with an arbitrary method.
	Do(ctx context.Context, method, path string, body, out interface{}, opts ...RequestOption) error

	// BaseURL returns the resolved base URL.
	BaseURL() string

	// Raw exposes the underlying HTTP client.
	Raw() *http.Client

	// Close releases idle connections. Close is safe to call multiple times.
	Close() error
}

// client is the concrete implementation of the Client interface
type client struct {
	transport *httpTransport
	config    *Config
	mu        sync.RWMutex
	closed    bool
}

// NewClient creates the local-storage variant: the client is meant to be
// built once and injected where it is needed. An empty BaseURL resolves to
// $PINCH_API_BASE_URL, then "http://localhost:8080/api".
//
// Example:
//
//	store, _ := storage.NewSQLite(ctx, "~/.pinch/state.db")
//	client, err := sdk.NewClient(sdk.DefaultConfig().
//	    WithTokenSource(sdk.NewStorageTokenSource(store)))
func NewClient(config *Config) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := config.clone()
	cfg.BaseURL = resolveBaseURL(cfg.BaseURL)
	return newClient(cfg)
}

// NewRequestClient creates the request-context variant. It is built fresh
// for each incoming request with the token captured from that request, and
// must never be shared across requests. BaseURL is required.
//
// Example:
//
//	src := sdk.NewRequestTokenSource(c.Cookies(sdk.TokenKey), c.Get("Authorization"))
//	client, err := sdk.NewRequestClient(cfg, src)
func NewRequestClient(config *Config, tokens TokenSource) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := config.clone()
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: request client requires a base URL", ErrInvalidConfig)
	}
	cfg.TokenSource = tokens
	return newClient(cfg)
}

func newClient(cfg *Config) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	transport, err := newHTTPTransport(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	return &client{
		transport: transport,
		config:    cfg,
	}, nil
}

// Get performs a GET request
func (c *client) Get(ctx context.Context, path string, out interface{}, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodGet, path, nil, out, opts...)
}

// Post performs a POST request
func (c *client) Post(ctx context.Context, path string, body, out interface{}, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPost, path, body, out, opts...)
}

// Put performs a PUT request
func (c *client) Put(ctx context.Context, path string, body, out interface{}, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPut, path, body, out, opts...)
}

// Patch performs a PATCH request
func (c *client) Patch(ctx context.Context, path string, body, out interface{}, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPatch, path, body, out, opts...)
}

// Delete performs a DELETE request
func (c *client) Delete(ctx context.Context, path string, out interface{}, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out, opts...)
}

// Do performs a request with any method
func (c *client) Do(ctx context.Context, method, path string, body, out interface{}, opts ...RequestOption) error {
	if err := c.checkClosed(); err != nil {
		return err
	}
	if method == "" {
		return NewValidationError("method is required", "method")
	}
	return c.transport.do(ctx, method, path, body, out, opts...)
}

// BaseURL returns the resolved base URL
func (c *client) BaseURL() string {
	return c.transport.baseURL
}

// Raw returns the underlying HTTP client
func (c *client) Raw() *http.Client {
	return c.transport.client
}

// Close closes the client and releases resources
func (c *client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	return c.transport.close()
}

// checkClosed checks if the client is closed
func (c *client) checkClosed() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return fmt.Errorf("client is closed")
	}
	return nil
}
