package events

import (
	"context"
	"sync"
)

// Handler receives mutation events. It must not block for long.
type Handler func(*MutationEvent)

// Publisher announces mutations
type Publisher interface {
	Publish(ctx context.Context, event *MutationEvent) error
}

// Subscriber delivers mutations announced by any publisher. The returned
// function cancels the subscription.
type Subscriber interface {
	Subscribe(handler Handler) (func() error, error)
}

// Bus is both sides of the event channel
type Bus interface {
	Publisher
	Subscriber
	Close() error
}

// MemoryBus is an in-process Bus for single-process setups and tests.
// Handlers run synchronously in Publish order.
type MemoryBus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
}

// NewMemoryBus creates an empty in-process bus
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[int]Handler)}
}

// Publish delivers the event to all current subscribers
func (b *MemoryBus) Publish(ctx context.Context, event *MutationEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
	return nil
}

// Subscribe registers handler
func (b *MemoryBus) Subscribe(handler Handler) (func() error, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	return func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
		return nil
	}, nil
}

// Close drops all subscribers
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[int]Handler)
	return nil
}

// NoopPublisher discards events
type NoopPublisher struct{}

// Publish does nothing
func (NoopPublisher) Publish(context.Context, *MutationEvent) error { return nil }
