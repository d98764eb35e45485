package store

import (
	"context"
	"errors"
	"testing"

	"github.com/gcoo-labs/pinch/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	Count int    `json:"count"`
	Label string `json:"label"`
}

func increment(c counter) counter {
	c.Count++
	return c
}

func TestChain_Order(t *testing.T) {
	all := Config{Subscribe: true, Persist: true}

	s := New(counter{}, all, WithEnvironment[counter]("development"))
	assert.Equal(t, []string{"subscribeWithSelector", "persist", "devtools"}, s.Middlewares())

	s = New(counter{}, all, WithEnvironment[counter](EnvProduction))
	assert.Equal(t, []string{"subscribeWithSelector", "persist"}, s.Middlewares())

	s = New(counter{}, Config{}, WithEnvironment[counter]("development"))
	assert.Equal(t, []string{"devtools"}, s.Middlewares())

	s = New(counter{}, Config{DisableDevtools: true})
	assert.Empty(t, s.Middlewares())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, Config{}, cfg)
	assert.False(t, cfg.DisableDevtools)
	assert.False(t, cfg.Persist)
	assert.False(t, cfg.Subscribe)
	assert.Equal(t, DefaultPersistName, cfg.persistName())
	assert.Equal(t, DefaultDevtoolsName, cfg.devtoolsName())

	cfg.Name = "example-store"
	assert.Equal(t, "example-store", cfg.persistName())
	assert.Equal(t, "example-store", cfg.devtoolsName())
}

func TestStore_SetReplaceSubscribe(t *testing.T) {
	s := New(counter{}, Config{})

	var seen [][2]int
	unsubscribe := s.Subscribe(func(state, prev counter) {
		seen = append(seen, [2]int{prev.Count, state.Count})
	})

	s.Set(increment)
	s.Set(increment)
	s.Replace(counter{Count: 10})
	assert.Equal(t, 10, s.Get().Count)
	assert.Equal(t, [][2]int{{0, 1}, {1, 2}, {2, 10}}, seen)

	unsubscribe()
	s.Set(increment)
	assert.Len(t, seen, 3)
}

func TestStore_ListenerMaySet(t *testing.T) {
	s := New(counter{}, Config{})
	s.Subscribe(func(state, _ counter) {
		if state.Count == 1 {
			s.Set(increment)
		}
	})
	s.Set(increment)
	assert.Equal(t, 2, s.Get().Count)
}

func TestStore_Destroy(t *testing.T) {
	s := New(counter{}, Config{})
	called := false
	s.Subscribe(func(counter, counter) { called = true })
	s.Destroy()
	s.Set(increment)

	assert.False(t, called)
	assert.Equal(t, 0, s.Get().Count)
}

func TestSubscribeSelect(t *testing.T) {
	plain := New(counter{}, Config{})
	_, err := SubscribeSelect(plain, func(c counter) int { return c.Count }, func(int, int) {})
	assert.ErrorIs(t, err, ErrSelectorDisabled)

	s := New(counter{}, Config{Subscribe: true})
	var changes []int
	_, err = SubscribeSelect(s, func(c counter) int { return c.Count }, func(cur, _ int) {
		changes = append(changes, cur)
	})
	require.NoError(t, err)

	s.Set(func(c counter) counter { c.Label = "x"; return c })
	s.Set(increment)
	s.Set(func(c counter) counter { c.Label = "y"; return c })
	s.Set(increment)

	assert.Equal(t, []int{1, 2}, changes)
}

func TestPersist_RoundTrip(t *testing.T) {
	mem := storage.NewMemory()
	cfg := Config{Name: "example-store", Persist: true}

	first := New(counter{}, cfg, WithStorage[counter](mem))
	first.Set(increment)
	first.Set(func(c counter) counter { c.Label = "saved"; return c })

	second := New(counter{}, cfg, WithStorage[counter](mem))
	assert.Equal(t, counter{Count: 1, Label: "saved"}, second.Get())

	other := New(counter{}, Config{Name: "other-store", Persist: true}, WithStorage[counter](mem))
	assert.Equal(t, counter{}, other.Get())
}

func TestPersist_RoundTripWithDefaultStorage(t *testing.T) {
	cfg := Config{Name: "default-storage-round-trip", Persist: true}
	t.Cleanup(func() { _ = defaultStorage.Delete(context.Background(), cfg.Name) })

	first := New(counter{}, cfg)
	first.Set(increment)

	second := New(counter{}, cfg)
	assert.Equal(t, 1, second.Get().Count)
}

func TestPersist_DefaultNameCollidesInDefaultStorage(t *testing.T) {
	t.Cleanup(func() { _ = defaultStorage.Delete(context.Background(), DefaultPersistName) })

	a := New(counter{}, Config{Persist: true})
	a.Replace(counter{Count: 7, Label: "a"})

	b := New(counter{}, Config{Persist: true})
	assert.Equal(t, counter{Count: 7, Label: "a"}, b.Get())
}

func TestPersist_DefaultNameCollides(t *testing.T) {
	mem := storage.NewMemory()
	a := New(counter{}, Config{Persist: true}, WithStorage[counter](mem))
	a.Set(increment)

	b := New(counter{}, Config{Persist: true}, WithStorage[counter](mem))
	assert.Equal(t, 1, b.Get().Count)

	_, err := mem.Get(context.Background(), DefaultPersistName)
	assert.NoError(t, err)
}

func TestPersist_Partialize(t *testing.T) {
	mem := storage.NewMemory()
	cfg := Config{Name: "partial", Persist: true}
	onlyCount := WithPartialize[counter](func(c counter) any {
		return map[string]int{"count": c.Count}
	})

	s := New(counter{}, cfg, WithStorage[counter](mem), onlyCount)
	s.Replace(counter{Count: 3, Label: "not persisted"})

	restored := New(counter{Label: "initial"}, cfg, WithStorage[counter](mem), onlyCount)
	assert.Equal(t, counter{Count: 3, Label: "initial"}, restored.Get())
}

type failingStore struct{ storage.Store }

func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("disk on fire")
}

func (failingStore) Set(context.Context, string, []byte) error {
	return errors.New("disk on fire")
}

func TestPersist_FailuresAreNotFatal(t *testing.T) {
	s := New(counter{Count: 5}, Config{Persist: true}, WithStorage[counter](failingStore{}))
	assert.Equal(t, 5, s.Get().Count)

	s.Set(increment)
	assert.Equal(t, 6, s.Get().Count)
}

func TestPersist_CorruptSnapshotIgnored(t *testing.T) {
	mem := storage.NewMemory()
	require.NoError(t, mem.Set(context.Background(), "broken", []byte("{not json")))

	s := New(counter{Count: 2}, Config{Name: "broken", Persist: true}, WithStorage[counter](mem))
	assert.Equal(t, 2, s.Get().Count)
}

func TestDevtools_History(t *testing.T) {
	s := New(counter{}, Config{},
		WithEnvironment[counter]("development"),
		WithHistoryLimit[counter](3))

	for i := 0; i < 5; i++ {
		s.Apply("increment", increment)
	}

	h := s.History()
	require.Len(t, h, 3)
	assert.Equal(t, "increment", h[2].Action)
	assert.Equal(t, 5, h[2].State.Count)
	assert.Equal(t, uint64(5), h[2].Version)

	prod := New(counter{}, Config{}, WithEnvironment[counter](EnvProduction))
	prod.Set(increment)
	assert.Nil(t, prod.History())
}

func TestNewWithChain_CustomMiddleware(t *testing.T) {
	var actions []string
	audit := auditMiddleware{actions: &actions}

	s := NewWithChain(counter{}, []Middleware[counter]{audit})
	s.Apply("bump", increment)

	assert.Equal(t, []string{"audit"}, s.Middlewares())
	assert.Equal(t, []string{"bump"}, actions)
}

type auditMiddleware struct{ actions *[]string }

func (auditMiddleware) Name() string { return "audit" }

func (auditMiddleware) Attach(*Store[counter]) {}

func (a auditMiddleware) Wrap(next Commit[counter]) Commit[counter] {
	return func(action string, update func(counter) counter) Transition[counter] {
		*a.actions = append(*a.actions, action)
		return next(action, update)
	}
}
