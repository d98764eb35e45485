// Package query binds the access client to a key-addressed cache. Queries
// read through the cache and deduplicate concurrent fetches of one key;
// mutations write through the access client and invalidate cached entries.
package query

import (
	"context"
	"sync"
	"time"

	"github.com/gcoo-labs/pinch/internal/telemetry"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// DefaultMaxEntries bounds the number of cached keys
const DefaultMaxEntries = 256

// Status is the lifecycle state of a cached entry
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

type observer struct {
	notify  func(snapshot)
	refetch func(context.Context)
}

type entry struct {
	key       Key
	data      any
	hasData   bool
	status    Status
	err       error
	updatedAt time.Time
	stale     bool
	fetching  bool
	observers map[int]observer
}

// snapshot is an immutable copy of an entry handed to readers
type snapshot struct {
	data      any
	hasData   bool
	status    Status
	err       error
	updatedAt time.Time
	stale     bool
	fetching  bool
}

// Client is the process-wide query cache. It is safe for concurrent use.
type Client struct {
	mu        sync.Mutex
	entries   *lru.Cache[string, *entry]
	group     singleflight.Group
	staleTime time.Duration
	log       *logrus.Entry
	now       func() time.Time
	nextID    int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Client
type Option func(*Client)

// WithStaleTime sets how long fetched data counts as fresh. Zero makes
// data stale immediately; a negative value never expires data by age.
func WithStaleTime(d time.Duration) Option {
	return func(c *Client) { c.staleTime = d }
}

// WithMaxEntries bounds the cache; the least recently used key is evicted
// first
func WithMaxEntries(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.entries, _ = lru.NewWithEvict[string, *entry](n, c.onEvict)
		}
	}
}

// WithLogger replaces the default logger
func WithLogger(log *logrus.Entry) Option {
	return func(c *Client) { c.log = log }
}

// NewClient creates an empty query cache
func NewClient(opts ...Option) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		log:    telemetry.WithFields(logrus.Fields{"component": "query"}),
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
	c.entries, _ = lru.NewWithEvict[string, *entry](DefaultMaxEntries, c.onEvict)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) onEvict(_ string, e *entry) {
	c.log.WithField("key", e.key.String()).Debug("Evicted query entry")
}

// entryLocked returns the entry for key, creating it if needed. c.mu must
// be held.
func (c *Client) entryLocked(key Key) *entry {
	h := key.hash()
	if e, ok := c.entries.Get(h); ok {
		return e
	}
	e := &entry{key: key.clone(), status: StatusIdle, observers: make(map[int]observer)}
	c.entries.Add(h, e)
	return e
}

func (c *Client) snapshotLocked(e *entry) snapshot {
	return snapshot{
		data:      e.data,
		hasData:   e.hasData,
		status:    e.status,
		err:       e.err,
		updatedAt: e.updatedAt,
		stale:     e.stale || c.expired(e),
		fetching:  e.fetching,
	}
}

func (c *Client) expired(e *entry) bool {
	if e.status != StatusSuccess && !e.hasData {
		return true
	}
	if c.staleTime < 0 {
		return false
	}
	return c.now().Sub(e.updatedAt) >= c.staleTime
}

func (c *Client) peek(key Key) snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries.Peek(key.hash())
	if !ok {
		return snapshot{status: StatusIdle, stale: true}
	}
	return c.snapshotLocked(e)
}

// fetch runs fn for key unless a fetch for the same key is in flight, in
// which case the caller shares its result
func (c *Client) fetch(ctx context.Context, key Key, fn func(context.Context) (any, error)) snapshot {
	v, _, _ := c.group.Do(key.hash(), func() (interface{}, error) {
		c.mu.Lock()
		e := c.entryLocked(key)
		e.fetching = true
		if !e.hasData {
			e.status = StatusLoading
		}
		c.mu.Unlock()

		data, err := fn(ctx)

		c.mu.Lock()
		e = c.entryLocked(key)
		e.fetching = false
		if err != nil {
			e.status = StatusError
			e.err = err
		} else {
			e.data = data
			e.hasData = true
			e.status = StatusSuccess
			e.err = nil
			e.stale = false
			e.updatedAt = c.now()
		}
		snap := c.snapshotLocked(e)
		notify := observersOf(e)
		c.mu.Unlock()

		if err != nil {
			telemetry.RecordQueryFetch("error")
			c.log.WithError(err).WithField("key", key.String()).Debug("Query fetch failed")
		} else {
			telemetry.RecordQueryFetch("success")
		}
		for _, o := range notify {
			o.notify(snap)
		}
		return snap, nil
	})
	return v.(snapshot)
}

func observersOf(e *entry) []observer {
	out := make([]observer, 0, len(e.observers))
	for _, o := range e.observers {
		out = append(out, o)
	}
	return out
}

func (c *Client) subscribe(key Key, o observer) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.entryLocked(key).observers[id] = o
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if e, ok := c.entries.Peek(key.hash()); ok {
			delete(e.observers, id)
		}
	}
}

// Invalidate marks every entry whose key starts with one of keys as stale.
// With no keys every entry is marked. Observed entries are refetched in
// the background. It returns the number of entries marked.
func (c *Client) Invalidate(keys ...Key) int {
	var refetch []func(context.Context)

	c.mu.Lock()
	marked := 0
	for _, h := range c.entries.Keys() {
		e, ok := c.entries.Peek(h)
		if !ok || !matches(e.key, keys) {
			continue
		}
		e.stale = true
		marked++
		for _, o := range e.observers {
			if o.refetch != nil {
				refetch = append(refetch, o.refetch)
				break
			}
		}
	}
	c.mu.Unlock()

	telemetry.RecordQueryInvalidations(marked)
	c.log.WithFields(logrus.Fields{"keys": keys, "marked": marked}).Debug("Invalidated queries")

	for _, fn := range refetch {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			fn(c.ctx)
		}()
	}
	return marked
}

func matches(k Key, prefixes []Key) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if k.HasPrefix(p) {
			return true
		}
	}
	return false
}

// SetData stores data for key as a fresh successful result and notifies
// observers
func (c *Client) SetData(key Key, data any) {
	c.mu.Lock()
	e := c.entryLocked(key)
	e.data = data
	e.hasData = true
	e.status = StatusSuccess
	e.err = nil
	e.stale = false
	e.updatedAt = c.now()
	snap := c.snapshotLocked(e)
	notify := observersOf(e)
	c.mu.Unlock()

	for _, o := range notify {
		o.notify(snap)
	}
}

// Remove drops key from the cache
func (c *Client) Remove(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(key.hash())
}

// Len returns the number of cached keys
func (c *Client) Len() int {
	return c.entries.Len()
}

// Close stops background refetches and waits for them to finish
func (c *Client) Close() {
	c.cancel()
	c.wg.Wait()
}

// GetData returns the cached data for key if it holds a T
func GetData[T any](c *Client, key Key) (T, bool) {
	snap := c.peek(key)
	v, ok := snap.data.(T)
	return v, ok && snap.hasData
}
