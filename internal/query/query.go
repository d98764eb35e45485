package query

import (
	"context"
	"time"

	"github.com/gcoo-labs/pinch/internal/telemetry"
	"github.com/gcoo-labs/pinch/sdk"
)

// FetchFunc loads the data for one query
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Result is the state of a query as seen by its caller
type Result[T any] struct {
	Data       T
	Status     Status
	Err        error
	IsLoading  bool
	IsFetching bool
	IsStale    bool
	UpdatedAt  time.Time
}

// IsSuccess reports whether the last fetch succeeded
func (r Result[T]) IsSuccess() bool { return r.Status == StatusSuccess }

// IsError reports whether the last fetch failed
func (r Result[T]) IsError() bool { return r.Status == StatusError }

type queryConfig struct {
	enabled    bool
	retry      int
	retryDelay time.Duration
}

// QueryOption configures a single query
type QueryOption func(*queryConfig)

// WithEnabled turns fetching on or off. A disabled query only reports what
// is already cached.
func WithEnabled(enabled bool) QueryOption {
	return func(c *queryConfig) { c.enabled = enabled }
}

// WithRetry retries a failed fetch n more times, waiting delay between
// attempts. The access client already retries idempotent calls, so the
// default is no retry.
func WithRetry(n int, delay time.Duration) QueryOption {
	return func(c *queryConfig) {
		if n < 0 {
			n = 0
		}
		c.retry = n
		c.retryDelay = delay
	}
}

// Query is a key-addressed, cached read
type Query[T any] struct {
	client *Client
	key    Key
	fetch  FetchFunc[T]
	cfg    queryConfig
}

// NewQuery registers fetch as the loader for key
func NewQuery[T any](qc *Client, key Key, fetch FetchFunc[T], opts ...QueryOption) *Query[T] {
	cfg := queryConfig{enabled: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Query[T]{client: qc, key: key.clone(), fetch: fetch, cfg: cfg}
}

// APIQuery builds a query that GETs path through api
//
// Example:
//
//	records := query.APIQuery[[]Record](qc, api, query.Key{"airtable", "records"}, "airtable?maxRecords=10")
//	res := records.Fetch(ctx)
//	if res.IsError() {
//	    return res.Err
//	}
func APIQuery[T any](qc *Client, api sdk.Client, key Key, path string, opts ...QueryOption) *Query[T] {
	return NewQuery(qc, key, func(ctx context.Context) (T, error) {
		return sdk.Get[T](ctx, api, path)
	}, opts...)
}

// Key returns the cache key
func (q *Query[T]) Key() Key {
	return q.key.clone()
}

// Fetch returns fresh cached data when present, otherwise loads it.
// Concurrent fetches of the same key share one call.
func (q *Query[T]) Fetch(ctx context.Context) Result[T] {
	snap := q.client.peek(q.key)
	if !q.cfg.enabled {
		return toResult[T](snap)
	}
	if snap.status == StatusSuccess && !snap.stale {
		if _, ok := snap.data.(T); ok {
			telemetry.RecordQueryFetch("cached")
			return toResult[T](snap)
		}
	}
	return q.Refetch(ctx)
}

// Refetch loads the data regardless of freshness
func (q *Query[T]) Refetch(ctx context.Context) Result[T] {
	if !q.cfg.enabled {
		return toResult[T](q.client.peek(q.key))
	}
	return toResult[T](q.client.fetch(ctx, q.key, q.load))
}

// Peek returns the cached state without fetching
func (q *Query[T]) Peek() Result[T] {
	return toResult[T](q.client.peek(q.key))
}

// Subscribe calls fn with every new result for the key. While subscribed,
// invalidating the key refetches it in the background. The returned
// function unsubscribes.
func (q *Query[T]) Subscribe(fn func(Result[T])) func() {
	return q.client.subscribe(q.key, observer{
		notify: func(s snapshot) { fn(toResult[T](s)) },
		refetch: func(ctx context.Context) {
			q.Refetch(ctx)
		},
	})
}

func (q *Query[T]) load(ctx context.Context) (any, error) {
	var (
		data T
		err  error
	)
	for attempt := 0; attempt <= q.cfg.retry; attempt++ {
		if attempt > 0 && q.cfg.retryDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(q.cfg.retryDelay):
			}
		}
		data, err = q.fetch(ctx)
		if err == nil {
			return data, nil
		}
	}
	return nil, err
}

func toResult[T any](s snapshot) Result[T] {
	r := Result[T]{
		Status:     s.status,
		Err:        s.err,
		IsLoading:  s.status == StatusLoading,
		IsFetching: s.fetching,
		IsStale:    s.stale,
		UpdatedAt:  s.updatedAt,
	}
	if v, ok := s.data.(T); ok {
		r.Data = v
	}
	return r
}
