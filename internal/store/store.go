// Package store builds global state containers. A container is a value of
// type T changed only through transition functions; optional behaviors are
// layered on as an ordered middleware chain:
//
//	selector -> persist -> devtools
//
// Each middleware wraps the commit of the one before it, so persist sees
// transitions after subscribers were notified and devtools observes the
// fully wrapped behavior.
package store

import (
	"errors"
	"sync"
)

// ErrSelectorDisabled is returned by SubscribeSelect on a store built
// without Config.Subscribe
var ErrSelectorDisabled = errors.New("store: selector subscriptions are disabled")

// Transition is one committed state change
type Transition[T any] struct {
	Action  string
	Prev    T
	Next    T
	Version uint64
}

// Commit applies update under action and returns the committed transition
type Commit[T any] func(action string, update func(T) T) Transition[T]

// Middleware is one optional store behavior
type Middleware[T any] interface {
	Name() string
	// Attach runs once while the store is built, in chain order
	Attach(s *Store[T])
	// Wrap decorates the commit of the previous middleware
	Wrap(next Commit[T]) Commit[T]
}

// Listener is called after every transition
type Listener[T any] func(state, prev T)

// Store is a reactive state container. It is safe for concurrent use.
type Store[T any] struct {
	mu        sync.RWMutex
	state     T
	version   uint64
	listeners map[int]Listener[T]
	nextID    int
	destroyed bool

	commit      Commit[T]
	middlewares []Middleware[T]
	selector    bool
	devtools    *devtools[T]
}

// New builds a store holding initial with the middlewares Chain picks for
// cfg
//
// Example:
//
//	type Counter struct{ Count int }
//
//	counter := store.New(Counter{}, store.Config{Name: "example-store", Persist: true},
//	    store.WithStorage[Counter](sqliteStore))
//	counter.Set(func(c Counter) Counter { c.Count++; return c })
func New[T any](initial T, cfg Config, opts ...Option[T]) *Store[T] {
	return NewWithChain(initial, Chain(cfg, opts...))
}

// NewWithChain builds a store holding initial with an explicit chain
func NewWithChain[T any](initial T, chain []Middleware[T]) *Store[T] {
	s := &Store[T]{
		state:       initial,
		listeners:   make(map[int]Listener[T]),
		middlewares: chain,
	}
	s.commit = s.baseCommit
	for _, m := range chain {
		m.Attach(s)
		s.commit = m.Wrap(s.commit)
	}
	return s
}

// Chain returns the middlewares enabled by cfg in their fixed order.
// Devtools are skipped in production.
func Chain[T any](cfg Config, opts ...Option[T]) []Middleware[T] {
	o := buildOptions(opts)
	var chain []Middleware[T]
	if cfg.Subscribe {
		chain = append(chain, selectorMiddleware[T]{})
	}
	if cfg.Persist {
		chain = append(chain, newPersist(cfg.persistName(), o))
	}
	if !cfg.DisableDevtools && o.env != EnvProduction {
		chain = append(chain, newDevtools(cfg.devtoolsName(), o))
	}
	return chain
}

func (s *Store[T]) baseCommit(action string, update func(T) T) Transition[T] {
	s.mu.Lock()
	if s.destroyed {
		t := Transition[T]{Action: action, Prev: s.state, Next: s.state, Version: s.version}
		s.mu.Unlock()
		return t
	}
	prev := s.state
	s.state = update(prev)
	s.version++
	t := Transition[T]{Action: action, Prev: prev, Next: s.state, Version: s.version}
	listeners := make([]Listener[T], 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(t.Next, t.Prev)
	}
	return t
}

// Get returns the current state
func (s *Store[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Set applies fn to the current state
func (s *Store[T]) Set(fn func(T) T) {
	s.Apply("set", fn)
}

// Apply applies fn to the current state, labelling the transition action
func (s *Store[T]) Apply(action string, fn func(T) T) Transition[T] {
	return s.commit(action, fn)
}

// Replace swaps the whole state
func (s *Store[T]) Replace(state T) {
	s.Apply("replace", func(T) T { return state })
}

// Subscribe registers listener for every transition. The returned function
// unsubscribes.
func (s *Store[T]) Subscribe(listener Listener[T]) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = listener
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Destroy drops every listener; later transitions are ignored
func (s *Store[T]) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = true
	s.listeners = make(map[int]Listener[T])
}

// Middlewares returns the names of the active middlewares in chain order
func (s *Store[T]) Middlewares() []string {
	names := make([]string, len(s.middlewares))
	for i, m := range s.middlewares {
		names[i] = m.Name()
	}
	return names
}

// History returns the devtools transition history, oldest first. It is
// nil when devtools are inactive.
func (s *Store[T]) History() []HistoryEntry[T] {
	if s.devtools == nil {
		return nil
	}
	return s.devtools.history()
}

// setInitial replaces the state without running the chain
func (s *Store[T]) setInitial(fn func(T) T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = fn(s.state)
}
