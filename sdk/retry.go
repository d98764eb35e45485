package sdk

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// retryMethods is the allow-list of methods eligible for automatic retry.
// POST and PATCH are never retried.
var retryMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodPut:     {},
	http.MethodHead:    {},
	http.MethodDelete:  {},
	http.MethodOptions: {},
	http.MethodTrace:   {},
}

// retryStatusCodes are the only response statuses that trigger a retry.
var retryStatusCodes = map[int]struct{}{
	http.StatusRequestTimeout:        {},
	http.StatusRequestEntityTooLarge: {},
	http.StatusTooManyRequests:       {},
	http.StatusInternalServerError:   {},
	http.StatusBadGateway:            {},
	http.StatusServiceUnavailable:    {},
	http.StatusGatewayTimeout:        {},
}

// retryAfterStatusCodes may carry a Retry-After hint worth honouring.
var retryAfterStatusCodes = map[int]struct{}{
	http.StatusRequestEntityTooLarge: {},
	http.StatusTooManyRequests:       {},
	http.StatusServiceUnavailable:    {},
}

// IsRetryableMethod reports whether requests with the given method may be
// retried automatically.
func IsRetryableMethod(method string) bool {
	_, ok := retryMethods[strings.ToUpper(method)]
	return ok
}

// RetryStrategy decides whether and when a failed attempt is retried.
//
// A custom strategy can be plugged in for tests or special backends:
//
//	type fixed struct{}
//
//	func (fixed) NextInterval(attempt int) time.Duration { return 10 * time.Millisecond }
//	func (fixed) ShouldRetry(err error, attempt int) bool  { return sdk.IsRetryable(err) && attempt <= 2 }
type RetryStrategy interface {
	// NextInterval returns the delay before retry number attempt (1-based).
	NextInterval(attempt int) time.Duration

	// ShouldRetry reports whether retry number attempt should happen.
	ShouldRetry(err error, attempt int) bool
}

// ExponentialBackoffStrategy waits InitialInterval * Multiplier^(attempt-1),
// capped at MaxInterval, with optional jitter.
type ExponentialBackoffStrategy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// Jitter is the randomization factor (0.0 to 1.0).
	Jitter float64
	// MaxRetries bounds the number of retries after the first attempt.
	MaxRetries int
}

func newExponentialBackoff(cfg RetryConfig, maxRetries int) *ExponentialBackoffStrategy {
	return &ExponentialBackoffStrategy{
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
		Multiplier:      cfg.Multiplier,
		Jitter:          cfg.Jitter,
		MaxRetries:      maxRetries,
	}
}

// NextInterval calculates the next retry interval
func (s *ExponentialBackoffStrategy) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	interval := float64(s.InitialInterval) * math.Pow(s.Multiplier, float64(attempt-1))
	if interval > float64(s.MaxInterval) {
		interval = float64(s.MaxInterval)
	}

	if s.Jitter > 0 {
		jitterRange := interval * s.Jitter
		interval += jitterRange * (2*rand.Float64() - 1)
	}
	if interval < 0 {
		interval = 0
	}

	return time.Duration(interval)
}

// ShouldRetry allows retryable protocol errors until MaxRetries is spent.
func (s *ExponentialBackoffStrategy) ShouldRetry(err error, attempt int) bool {
	return attempt <= s.MaxRetries && IsRetryable(err)
}

// NoRetryStrategy disables retries entirely.
type NoRetryStrategy struct{}

// NextInterval always returns 0
func (NoRetryStrategy) NextInterval(int) time.Duration { return 0 }

// ShouldRetry always returns false
func (NoRetryStrategy) ShouldRetry(error, int) bool { return false }

// attemptFunc performs one attempt. A positive hint asks the executor to
// wait that long instead of the strategy's interval.
type attemptFunc func(ctx context.Context, attempt int) (hint time.Duration, err error)

// retryExecutor runs attempts under a strategy.
type retryExecutor struct {
	strategy    RetryStrategy
	maxInterval time.Duration
	observer    Observer
}

func newRetryExecutor(strategy RetryStrategy, maxInterval time.Duration, observer Observer) *retryExecutor {
	if strategy == nil {
		strategy = NoRetryStrategy{}
	}
	if observer == nil {
		observer = &NoopObserver{}
	}
	return &retryExecutor{strategy: strategy, maxInterval: maxInterval, observer: observer}
}

// Execute runs fn until it succeeds, the strategy gives up or ctx ends.
// Methods outside the allow-list get exactly one attempt. The returned
// count is the number of attempts made.
func (re *retryExecutor) Execute(ctx context.Context, method, path string, fn attemptFunc) (int, error) {
	retryable := IsRetryableMethod(method)

	for attempt := 1; ; attempt++ {
		hint, err := fn(ctx, attempt)
		if err == nil {
			return attempt, nil
		}

		if !retryable || !re.strategy.ShouldRetry(err, attempt) {
			return attempt, err
		}

		interval := re.strategy.NextInterval(attempt)
		if hint > 0 && (re.maxInterval <= 0 || hint <= re.maxInterval) {
			interval = hint
		}

		re.observer.OnRetryAttempt(method, path, attempt, interval, err)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			op := method + " " + path
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return attempt, (&TimeoutError{Op: op}).ToError()
			}
			return attempt, (&NetworkError{Op: op, Err: ctx.Err()}).ToError()
		case <-timer.C:
		}
	}
}

// parseRetryAfter reads a Retry-After header given in seconds or as an
// HTTP date. Only statuses that define the header are considered.
func parseRetryAfter(status int, value string, now time.Time) time.Duration {
	if _, ok := retryAfterStatusCodes[status]; !ok || value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
