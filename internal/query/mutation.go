package query

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gcoo-labs/pinch/sdk"
)

// Method is the HTTP verb of an API mutation
type Method string

const (
	MethodPost   Method = "post"
	MethodPut    Method = "put"
	MethodPatch  Method = "patch"
	MethodDelete Method = "delete"
)

// MutationState is the lifecycle of a mutation: idle, then pending, then
// success or error. A settled mutation can be run again.
type MutationState string

const (
	MutationIdle    MutationState = "idle"
	MutationPending MutationState = "pending"
	MutationSuccess MutationState = "success"
	MutationError   MutationState = "error"
)

// PathParamsKey is the variables field that overrides the path of a delete
const PathParamsKey = "pathParamsUrl"

// PathOverride is implemented by delete variables that carry their own
// path, including any query string
type PathOverride interface {
	PathParamsURL() string
}

// PathParams is a ready-made PathOverride
type PathParams struct {
	URL string `json:"pathParamsUrl"`
}

// PathParamsURL implements PathOverride
func (p PathParams) PathParamsURL() string { return p.URL }

// MutationFunc performs one write
type MutationFunc[T, V any] func(ctx context.Context, vars V) (T, error)

// MutationOptions holds lifecycle callbacks. A nil OnSuccess invalidates
// every cached query; a non-nil OnSuccess replaces that behavior.
type MutationOptions[T, V any] struct {
	OnMutate  func(ctx context.Context, vars V)
	OnSuccess func(ctx context.Context, data T, vars V)
	OnError   func(ctx context.Context, err error, vars V)
	OnSettled func(ctx context.Context, data T, err error, vars V)
}

// Mutation runs writes and tracks the state of the most recent one.
// Concurrent calls are not deduplicated.
type Mutation[T, V any] struct {
	client *Client
	fn     MutationFunc[T, V]
	opts   MutationOptions[T, V]

	mu    sync.RWMutex
	gen   uint64
	state MutationState
	data  T
	err   error
	wg    sync.WaitGroup
}

// NewMutation wraps fn with state tracking and callbacks
func NewMutation[T, V any](qc *Client, fn MutationFunc[T, V], opts MutationOptions[T, V]) *Mutation[T, V] {
	return &Mutation[T, V]{client: qc, fn: fn, opts: opts, state: MutationIdle}
}

// APIMutation builds a mutation that sends vars to path with method. An
// empty method means post. For delete, vars implementing PathOverride or a
// map with a "pathParamsUrl" string replace path, and no body is sent.
//
// Example:
//
//	del, err := query.APIMutation[Envelope, query.PathParams](qc, api, "airtable", query.MethodDelete, query.MutationOptions[Envelope, query.PathParams]{})
//	_, err = del.Mutate(ctx, query.PathParams{URL: "airtable?recordId=rec5"})
func APIMutation[T, V any](qc *Client, api sdk.Client, path string, method Method, opts MutationOptions[T, V]) (*Mutation[T, V], error) {
	if method == "" {
		method = MethodPost
	}
	var fn MutationFunc[T, V]
	switch Method(strings.ToLower(string(method))) {
	case MethodPost:
		fn = func(ctx context.Context, vars V) (T, error) { return sdk.Post[T](ctx, api, path, vars) }
	case MethodPut:
		fn = func(ctx context.Context, vars V) (T, error) { return sdk.Put[T](ctx, api, path, vars) }
	case MethodPatch:
		fn = func(ctx context.Context, vars V) (T, error) { return sdk.Patch[T](ctx, api, path, vars) }
	case MethodDelete:
		fn = func(ctx context.Context, vars V) (T, error) {
			return sdk.Delete[T](ctx, api, DeletePath(vars, path))
		}
	default:
		return nil, sdk.NewValidationError(fmt.Sprintf("unsupported mutation method %q", method), "method")
	}
	return NewMutation(qc, fn, opts), nil
}

// DeletePath returns the override carried by vars, or fallback
func DeletePath(vars any, fallback string) string {
	switch v := vars.(type) {
	case PathOverride:
		if u := v.PathParamsURL(); u != "" {
			return u
		}
	case map[string]string:
		if u := v[PathParamsKey]; u != "" {
			return u
		}
	case map[string]any:
		if u, ok := v[PathParamsKey].(string); ok && u != "" {
			return u
		}
	}
	return fallback
}

// Mutate runs one write and returns its outcome. Callbacks run before
// Mutate returns.
func (m *Mutation[T, V]) Mutate(ctx context.Context, vars V) (T, error) {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.state = MutationPending
	m.err = nil
	m.mu.Unlock()

	if m.opts.OnMutate != nil {
		m.opts.OnMutate(ctx, vars)
	}

	data, err := m.fn(ctx, vars)

	m.mu.Lock()
	if gen == m.gen {
		if err != nil {
			var zero T
			m.state, m.data, m.err = MutationError, zero, err
		} else {
			m.state, m.data, m.err = MutationSuccess, data, nil
		}
	}
	m.mu.Unlock()

	if err != nil {
		if m.opts.OnError != nil {
			m.opts.OnError(ctx, err, vars)
		}
	} else if m.opts.OnSuccess != nil {
		m.opts.OnSuccess(ctx, data, vars)
	} else if m.client != nil {
		m.client.Invalidate()
	}

	if m.opts.OnSettled != nil {
		m.opts.OnSettled(ctx, data, err, vars)
	}
	return data, err
}

// MutateAsync runs Mutate in a goroutine. Use the callbacks or Wait to
// observe the outcome.
func (m *Mutation[T, V]) MutateAsync(ctx context.Context, vars V) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		_, _ = m.Mutate(ctx, vars)
	}()
}

// Wait blocks until every MutateAsync call has settled
func (m *Mutation[T, V]) Wait() {
	m.wg.Wait()
}

// Reset returns the mutation to idle. A call still in flight no longer
// updates the state.
func (m *Mutation[T, V]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero T
	m.gen++
	m.state, m.data, m.err = MutationIdle, zero, nil
}

// State returns the state of the most recent call
func (m *Mutation[T, V]) State() MutationState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsIdle reports whether the mutation has not run since creation or Reset
func (m *Mutation[T, V]) IsIdle() bool { return m.State() == MutationIdle }

// IsPending reports whether the most recent call is in flight
func (m *Mutation[T, V]) IsPending() bool { return m.State() == MutationPending }

// IsSuccess reports whether the most recent call succeeded
func (m *Mutation[T, V]) IsSuccess() bool { return m.State() == MutationSuccess }

// IsError reports whether the most recent call failed
func (m *Mutation[T, V]) IsError() bool { return m.State() == MutationError }

// Error returns the error of the most recent call
func (m *Mutation[T, V]) Error() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// Data returns the result of the most recent successful call
func (m *Mutation[T, V]) Data() T {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data
}
