package sdk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	userAgent       = "pinch-go-sdk/1.0.0"
	tracerName      = "github.com/gcoo-labs/pinch/sdk"
	maxErrorBodyLen = 1 << 20
)

// httpTransport handles HTTP communication with one logical backend.
// It owns the connection pool, the retry executor and token injection.
type httpTransport struct {
	// client is the underlying HTTP client
	client *http.Client
	// config holds the immutable client configuration
	config *Config
	// baseURL is the validated base URL without a trailing slash
	baseURL string
	// retryExecutor handles retry logic
	retryExecutor *retryExecutor
	// tokens supplies the bearer token per request
	tokens TokenSource
	// observer for monitoring operations
	observer Observer
	tracer   trace.Tracer
	// shared is set when the HTTP client belongs to the caller
	shared bool
}

// requestOptions carries per-call overrides.
type requestOptions struct {
	headers map[string]string
	timeout time.Duration
}

// RequestOption customizes a single call.
type RequestOption func(*requestOptions)

// WithRequestHeader sets a header for one call, overriding the defaults.
func WithRequestHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = make(map[string]string)
		}
		o.headers[key] = value
	}
}

// WithRequestTimeout overrides the per-attempt timeout for one call.
func WithRequestTimeout(timeout time.Duration) RequestOption {
	return func(o *requestOptions) {
		o.timeout = timeout
	}
}

// newHTTPTransport creates a transport from a validated config.
func newHTTPTransport(config *Config) (*httpTransport, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL cannot be empty", ErrInvalidConfig)
	}

	parsed, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base URL: %v", ErrInvalidConfig, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%w: base URL must have a scheme and host", ErrInvalidConfig)
	}

	hc, shared := config.HTTPClient, true
	if hc == nil {
		shared = false
		// Timeouts are applied per attempt through the request context.
		hc = &http.Client{Transport: NewHTTPTransport(config.TransportConfig)}
	}

	strategy := newExponentialBackoff(config.RetryConfig, config.Retry)

	return &httpTransport{
		client:        hc,
		shared:        shared,
		config:        config,
		baseURL:       strings.TrimRight(config.BaseURL, "/"),
		retryExecutor: newRetryExecutor(strategy, config.RetryConfig.MaxInterval, config.Observer),
		tokens:        config.TokenSource,
		observer:      config.Observer,
		tracer:        otel.Tracer(tracerName),
	}, nil
}

// NewHTTPTransport builds the pooled transport used by clients that do not
// share an HTTP client.
func NewHTTPTransport(cfg TransportConfig) *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

// resolve joins path onto the base URL. Absolute URLs are used as-is.
func (t *httpTransport) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	path = strings.TrimLeft(path, "/")
	if path == "" {
		return t.baseURL
	}
	if strings.HasPrefix(path, "?") {
		return t.baseURL + path
	}
	return t.baseURL + "/" + path
}

// do executes a call with retry logic
func (t *httpTransport) do(ctx context.Context, method, path string, body, result interface{}, opts ...RequestOption) error {
	method = strings.ToUpper(method)

	var ro requestOptions
	for _, opt := range opts {
		opt(&ro)
	}
	timeout := t.config.Timeout
	if ro.timeout > 0 {
		timeout = ro.timeout
	}

	payload, err := encodeBody(body)
	if err != nil {
		return err
	}

	fullURL := t.resolve(path)

	ctx, span := t.tracer.Start(ctx, "HTTP "+method, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", fullURL),
		))
	defer span.End()

	t.observer.OnRequestStart(method, path)
	start := time.Now()

	attempts, err := t.retryExecutor.Execute(ctx, method, path, func(ctx context.Context, attempt int) (time.Duration, error) {
		return t.attempt(ctx, method, fullURL, payload, result, ro.headers, timeout)
	})

	if err != nil {
		var sdkErr *Error
		if errors.As(err, &sdkErr) {
			if sdkErr.Context == nil {
				sdkErr.WithContext(&ErrorContext{URL: fullURL, Method: method})
			}
			sdkErr.Context.Attempts = attempts
			if status := sdkErr.Status(); status > 0 {
				span.SetAttributes(attribute.Int("http.response.status_code", status))
			}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.Int("http.request.resend_count", attempts-1))

	t.observer.OnRequestEnd(method, path, time.Since(start), err)
	return err
}

// attempt performs a single HTTP request under its own timeout.
func (t *httpTransport) attempt(ctx context.Context, method, fullURL string, payload []byte, result interface{}, headers map[string]string, timeout time.Duration) (time.Duration, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, method, fullURL, bodyReader(payload))
	if err != nil {
		return 0, NewValidationError(fmt.Sprintf("failed to create request: %v", err), "path")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for key, value := range t.config.Headers {
		req.Header.Set(key, value)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	// Token lookup failures fall back to an unauthenticated request.
	if t.tokens != nil {
		if token, err := t.tokens.Token(ctx); err == nil && token != "" {
			req.Header.Set("Authorization", bearerPrefix+token)
		}
	}

	otel.GetTextMapPropagator().Inject(attemptCtx, propagation.HeaderCarrier(req.Header))

	op := method + " " + fullURL
	resp, err := t.client.Do(req)
	if err != nil {
		return 0, classifyTransportError(ctx, attemptCtx, op, timeout, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, classifyTransportError(ctx, attemptCtx, "reading response", timeout, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := decodeSuccess(respBody, result); err != nil {
			return 0, (&NetworkError{Op: "decoding response", Err: err}).ToError()
		}
		return 0, nil
	}

	if len(respBody) > maxErrorBodyLen {
		respBody = respBody[:maxErrorBodyLen]
	}
	apiErr := parseAPIError(resp.StatusCode, respBody)
	enhanced := apiErr.ToError().WithContext(&ErrorContext{URL: fullURL, Method: method})
	if reqID := resp.Header.Get("X-Request-ID"); reqID != "" {
		enhanced.RequestID = reqID
	}
	return parseRetryAfter(resp.StatusCode, resp.Header.Get("Retry-After"), time.Now()), enhanced
}

// classifyTransportError separates attempt timeouts from other
// connection-level failures.
func classifyTransportError(parent, attemptCtx context.Context, op string, timeout time.Duration, err error) error {
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) || errors.Is(parent.Err(), context.DeadlineExceeded) {
		return (&TimeoutError{Op: op, After: timeout}).ToError()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return (&TimeoutError{Op: op, After: timeout}).ToError()
	}
	return (&NetworkError{Op: op, Err: err}).ToError()
}

// close releases idle connections unless the HTTP client is shared
func (t *httpTransport) close() error {
	if !t.shared {
		t.client.CloseIdleConnections()
	}
	return nil
}
