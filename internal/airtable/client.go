// Package airtable is a typed client for the upstream record resource.
// A Client is built per incoming request so a forwarded caller token never
// outlives the request it came from.
package airtable

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gcoo-labs/pinch/sdk"
)

// Record is one row of the table
type Record struct {
	ID          string         `json:"id"`
	Fields      map[string]any `json:"fields"`
	CreatedTime string         `json:"createdTime,omitempty"`
}

// ListResponse is one page of records
type ListResponse struct {
	Records []Record `json:"records"`
	Offset  string   `json:"offset,omitempty"`
}

// DeleteResponse confirms a deletion
type DeleteResponse struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

type fieldsBody struct {
	Fields map[string]any `json:"fields"`
}

// Factory builds request-scoped clients that share one connection pool
type Factory struct {
	config   *Config
	http     *http.Client
	observer sdk.Observer
}

// NewFactory creates a factory for cfg. observer may be nil.
func NewFactory(cfg *Config, observer sdk.Observer) *Factory {
	base := sdk.DefaultConfig()
	return &Factory{
		config:   cfg,
		http:     &http.Client{Transport: sdk.NewHTTPTransport(base.TransportConfig)},
		observer: observer,
	}
}

// Config returns the upstream configuration
func (f *Factory) Config() *Config {
	return f.config
}

// ForRequest builds a client for one incoming request. callerTokens is
// consulted only when ForwardAuth is on; otherwise the API key is used.
func (f *Factory) ForRequest(callerTokens sdk.TokenSource) (*Client, error) {
	cfg := sdk.DefaultConfig().
		WithBaseURL(f.config.ResourceRoot()).
		WithRetries(f.config.Retry).
		WithHTTPClient(f.http)
	if f.config.Timeout > 0 {
		cfg.WithTimeout(f.config.Timeout)
	}
	if f.config.APIKey != "" {
		cfg.WithHeader("Authorization", "Bearer "+f.config.APIKey)
	}
	if f.observer != nil {
		cfg.WithObserver(f.observer)
	}

	var tokens sdk.TokenSource
	if f.config.ForwardAuth {
		tokens = callerTokens
	}

	api, err := sdk.NewRequestClient(cfg, tokens)
	if err != nil {
		return nil, err
	}
	return &Client{api: api, table: f.config.Table}, nil
}

// Close releases the shared connection pool
func (f *Factory) Close() {
	f.http.CloseIdleConnections()
}

// Client performs CRUD against one table
type Client struct {
	api   sdk.Client
	table string
}

// NewClient wraps an existing access client
func NewClient(api sdk.Client, table string) *Client {
	return &Client{api: api, table: table}
}

func (c *Client) recordPath(id string) string {
	return url.PathEscape(c.table) + "/" + url.PathEscape(id)
}

// List returns up to maxRecords records
func (c *Client) List(ctx context.Context, maxRecords int) (*ListResponse, error) {
	q := url.Values{}
	q.Set("maxRecords", strconv.Itoa(maxRecords))
	return sdk.Get[*ListResponse](ctx, c.api, url.PathEscape(c.table)+"?"+q.Encode())
}

// Get returns one record
func (c *Client) Get(ctx context.Context, id string) (*Record, error) {
	return sdk.Get[*Record](ctx, c.api, c.recordPath(id))
}

// Create inserts a record
func (c *Client) Create(ctx context.Context, fields map[string]any) (*Record, error) {
	return sdk.Post[*Record](ctx, c.api, url.PathEscape(c.table), fieldsBody{Fields: fields})
}

// Update patches the given fields of a record
func (c *Client) Update(ctx context.Context, id string, fields map[string]any) (*Record, error) {
	return sdk.Patch[*Record](ctx, c.api, c.recordPath(id), fieldsBody{Fields: fields})
}

// Delete removes a record
func (c *Client) Delete(ctx context.Context, id string) (*DeleteResponse, error) {
	return sdk.Delete[*DeleteResponse](ctx, c.api, c.recordPath(id))
}

// Close releases the request-scoped client
func (c *Client) Close() error {
	return c.api.Close()
}
