package sdk

import (
	"net/http"
	"os"
	"time"
)

// DefaultBaseURLEnv names the environment variable consulted when a
// local-storage client is created without a base URL.
const DefaultBaseURLEnv = "PINCH_API_BASE_URL"

const fallbackBaseURL = "http://localhost:8080/api"

// Config holds the configuration for an access client.
// All fields are optional and have sensible defaults.
//
// Configuration can be built using the fluent builder pattern:
//
//	config := sdk.DefaultConfig().
//	    WithBaseURL("https://api.airtable.com/v0/appXXXX").
//	    WithTimeout(10 * time.Second).
//	    WithRetries(2).
//	    WithHeader("X-Client", "pinch")
//
//	client, err := sdk.NewClient(config)
type Config struct {
	// BaseURL prefixes every request path.
	// Local-storage clients fall back to $PINCH_API_BASE_URL, then
	// "http://localhost:8080/api". Request-context clients require it.
	BaseURL string

	// Timeout bounds a single attempt, including reading the body.
	// Default: 30s
	Timeout time.Duration

	// Retry is the maximum number of retries for idempotent methods.
	// Set to 0 to disable retries.
	// Default: 2
	Retry int

	// RetryConfig tunes the delay between retries.
	RetryConfig RetryConfig

	// TransportConfig holds HTTP transport settings.
	TransportConfig TransportConfig

	// Headers are sent with every request and override the defaults.
	Headers map[string]string

	// TokenSource supplies the bearer token. Nil means no token.
	TokenSource TokenSource

	// Observer for monitoring operations. Nil means NoopObserver.
	Observer Observer

	// HTTPClient, when set, is used instead of a client built from
	// TransportConfig. Request-context clients built per request share one
	// pool this way. Close leaves a shared client open.
	HTTPClient *http.Client
}

// RetryConfig controls the backoff between retries.
//
// Example:
//
//	config.RetryConfig = sdk.RetryConfig{
//	    InitialInterval: 300 * time.Millisecond,
//	    MaxInterval:     10 * time.Second,
//	    Multiplier:      2.0,
//	}
type RetryConfig struct {
	// InitialInterval is the delay before the first retry.
	// Default: 300ms
	InitialInterval time.Duration

	// MaxInterval caps every delay, including Retry-After hints.
	// Default: 10s
	MaxInterval time.Duration

	// Multiplier is the exponential backoff multiplier.
	// Default: 2.0
	Multiplier float64

	// Jitter is the randomization factor (0.0 to 1.0).
	// Default: 0
	Jitter float64
}

// TransportConfig holds HTTP transport configuration for connection pooling.
type TransportConfig struct {
	// MaxIdleConns controls the maximum number of idle connections
	// across all hosts. Zero means no limit.
	// Default: 100
	MaxIdleConns int

	// MaxConnsPerHost controls the maximum connections per host.
	// Default: 10
	MaxConnsPerHost int

	// IdleConnTimeout is the maximum time an idle connection will remain idle
	// before closing itself. Zero means no limit.
	// Default: 90s
	IdleConnTimeout time.Duration
}

// DefaultConfig returns a Config with the defaults described on each field.
// BaseURL is left empty so each client variant can resolve it.
func DefaultConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
		Retry:   2,
		RetryConfig: RetryConfig{
			InitialInterval: 300 * time.Millisecond,
			MaxInterval:     10 * time.Second,
			Multiplier:      2.0,
		},
		TransportConfig: TransportConfig{
			MaxIdleConns:    100,
			MaxConnsPerHost: 10,
			IdleConnTimeout: 90 * time.Second,
		},
		Headers:  make(map[string]string),
		Observer: &NoopObserver{},
	}
}

// WithBaseURL sets the base URL that prefixes every request path.
func (c *Config) WithBaseURL(url string) *Config {
	c.BaseURL = url
	return c
}

// WithTimeout sets the per-attempt timeout.
func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.Timeout = timeout
	return c
}

// WithRetries sets the maximum number of retries for idempotent methods.
func (c *Config) WithRetries(retry int) *Config {
	c.Retry = retry
	return c
}

// WithHeader adds a header sent with all requests.
//
// Example:
//
//	config := sdk.DefaultConfig().
//	    WithHeader("X-Request-Source", "cli")
func (c *Config) WithHeader(key, value string) *Config {
	if c.Headers == nil {
		c.Headers = make(map[string]string)
	}
	c.Headers[key] = value
	return c
}

// WithTokenSource sets where the bearer token comes from.
func (c *Config) WithTokenSource(src TokenSource) *Config {
	c.TokenSource = src
	return c
}

// WithHTTPClient shares an existing HTTP client and its connection pool.
func (c *Config) WithHTTPClient(hc *http.Client) *Config {
	c.HTTPClient = hc
	return c
}

// WithObserver sets a custom observer for monitoring SDK operations.
func (c *Config) WithObserver(observer Observer) *Config {
	c.Observer = observer
	return c
}

// Validate fills in defaults for zero values and rejects unusable settings.
// This is called automatically by the client constructors.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Retry < 0 {
		c.Retry = 0
	}
	if c.RetryConfig.InitialInterval <= 0 {
		c.RetryConfig.InitialInterval = 300 * time.Millisecond
	}
	if c.RetryConfig.MaxInterval <= 0 {
		c.RetryConfig.MaxInterval = 10 * time.Second
	}
	if c.RetryConfig.Multiplier <= 1 {
		c.RetryConfig.Multiplier = 2.0
	}
	if c.RetryConfig.Jitter < 0 || c.RetryConfig.Jitter > 1 {
		return ErrInvalidConfig
	}
	if c.TransportConfig.MaxIdleConns < 0 || c.TransportConfig.MaxConnsPerHost < 0 {
		return ErrInvalidConfig
	}
	if c.Observer == nil {
		c.Observer = &NoopObserver{}
	}
	return nil
}

// clone returns a deep copy so later mutations of the caller's Config
// do not reach a constructed client.
func (c *Config) clone() *Config {
	cp := *c
	cp.Headers = make(map[string]string, len(c.Headers))
	for k, v := range c.Headers {
		cp.Headers[k] = v
	}
	return &cp
}

func resolveBaseURL(configured string) string {
	if configured != "" {
		return configured
	}
	if env := os.Getenv(DefaultBaseURLEnv); env != "" {
		return env
	}
	return fallbackBaseURL
}
