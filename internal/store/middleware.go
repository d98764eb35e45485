package store

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"time"

	"github.com/gcoo-labs/pinch/internal/storage"
	"github.com/gcoo-labs/pinch/internal/telemetry"
	"github.com/sirupsen/logrus"
)

const persistTimeout = 5 * time.Second

// selectorMiddleware enables SubscribeSelect
type selectorMiddleware[T any] struct{}

func (selectorMiddleware[T]) Name() string { return "subscribeWithSelector" }

func (selectorMiddleware[T]) Attach(s *Store[T]) { s.selector = true }

func (selectorMiddleware[T]) Wrap(next Commit[T]) Commit[T] { return next }

// SubscribeSelect calls listener only when the slice picked by selector
// changes, compared with reflect.DeepEqual
func SubscribeSelect[T, S any](s *Store[T], selector func(T) S, listener func(cur, prev S)) (func(), error) {
	if !s.selector {
		return nil, ErrSelectorDisabled
	}
	return s.Subscribe(func(state, prev T) {
		cur, old := selector(state), selector(prev)
		if !reflect.DeepEqual(cur, old) {
			listener(cur, old)
		}
	}), nil
}

// snapshot is the persisted document
type snapshot struct {
	State   json.RawMessage `json:"state"`
	Version uint64          `json:"version"`
}

// persist hydrates the store from storage and writes a snapshot after
// every transition
type persist[T any] struct {
	name  string
	opts  *options[T]
	mu    sync.Mutex
	saved uint64
}

func newPersist[T any](name string, o *options[T]) *persist[T] {
	return &persist[T]{name: name, opts: o}
}

func (p *persist[T]) Name() string { return "persist" }

func (p *persist[T]) Attach(s *Store[T]) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	log := p.opts.log.WithField("store", p.name)
	raw, err := p.opts.storage.Get(ctx, p.name)
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		log.WithError(err).Warn("Failed to read persisted state")
		return
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		log.WithError(err).Warn("Discarding unreadable persisted state")
		return
	}
	s.setInitial(func(cur T) T {
		if err := json.Unmarshal(snap.State, &cur); err != nil {
			log.WithError(err).Warn("Discarding unreadable persisted state")
		}
		return cur
	})
	log.Debug("Hydrated state from storage")
}

func (p *persist[T]) Wrap(next Commit[T]) Commit[T] {
	return func(action string, update func(T) T) Transition[T] {
		t := next(action, update)
		p.save(t)
		return t
	}
}

func (p *persist[T]) save(t Transition[T]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t.Version <= p.saved {
		return
	}

	log := p.opts.log.WithFields(logrus.Fields{"store": p.name, "action": t.Action})
	state, err := json.Marshal(p.opts.partialize(t.Next))
	if err != nil {
		telemetry.RecordStorePersistFailure(p.name)
		log.WithError(err).Error("Failed to encode state")
		return
	}
	data, err := json.Marshal(snapshot{State: state, Version: t.Version})
	if err != nil {
		telemetry.RecordStorePersistFailure(p.name)
		log.WithError(err).Error("Failed to encode state")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := p.opts.storage.Set(ctx, p.name, data); err != nil {
		telemetry.RecordStorePersistFailure(p.name)
		log.WithError(err).Error("Failed to persist state")
		return
	}
	p.saved = t.Version
}

// HistoryEntry is one transition recorded by devtools
type HistoryEntry[T any] struct {
	Action  string
	Version uint64
	State   T
	At      time.Time
}

// devtools logs transitions and keeps a bounded history of them
type devtools[T any] struct {
	name    string
	limit   int
	log     *logrus.Entry
	mu      sync.Mutex
	entries []HistoryEntry[T]
}

func newDevtools[T any](name string, o *options[T]) *devtools[T] {
	return &devtools[T]{
		name:  name,
		limit: o.historyLimit,
		log:   o.log.WithField("devtools", name),
	}
}

func (d *devtools[T]) Name() string { return "devtools" }

func (d *devtools[T]) Attach(s *Store[T]) {
	s.devtools = d
	d.record("@@INIT", 0, s.Get())
}

func (d *devtools[T]) Wrap(next Commit[T]) Commit[T] {
	return func(action string, update func(T) T) Transition[T] {
		t := next(action, update)
		d.record(t.Action, t.Version, t.Next)
		if d.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
			d.log.WithFields(logrus.Fields{
				"action":  t.Action,
				"version": t.Version,
				"state":   t.Next,
			}).Debug("State transition")
		}
		return t
	}
}

func (d *devtools[T]) record(action string, version uint64, state T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, HistoryEntry[T]{Action: action, Version: version, State: state, At: time.Now()})
	if over := len(d.entries) - d.limit; over > 0 {
		d.entries = append(d.entries[:0:0], d.entries[over:]...)
	}
}

func (d *devtools[T]) history() []HistoryEntry[T] {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]HistoryEntry[T](nil), d.entries...)
}
