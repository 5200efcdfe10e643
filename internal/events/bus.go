// Package events provides the in-process mutation event bus. Stores of the
// knowledge base emit events after entity and value writes so that downstream
// listeners (provider synchronisation, the knowledge-map cache, the websocket
// feed) can react without the services knowing about them.
package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/chatforge/nlukit/pkg/types"
)

// EntityCreatedHandler receives an entity right after it is persisted.
type EntityCreatedHandler func(ctx context.Context, entity *types.Entity)

// EntityUpdatedHandler receives the pre-update and post-update states.
type EntityUpdatedHandler func(ctx context.Context, before, after *types.Entity)

// EntityDeletingHandler runs before an entity is deleted. An error aborts
// the deletion.
type EntityDeletingHandler func(ctx context.Context, entity *types.Entity) error

// ValueCreatedHandler receives a value right after it is persisted.
type ValueCreatedHandler func(ctx context.Context, value *types.Value)

// ValueUpdatedHandler receives the pre-update and post-update states.
type ValueUpdatedHandler func(ctx context.Context, before, after *types.Value)

// ValueDeletingHandler runs before a value is deleted. An error aborts the
// deletion.
type ValueDeletingHandler func(ctx context.Context, value *types.Value) error

// Bus dispatches mutation events synchronously, in subscription order.
// Post-write handlers (created, updated) must not fail the originating
// write, so panics are recovered and logged. Pre-delete handlers are the
// exception: they exist to run cascades and vetoes, so their errors
// propagate to the caller and abort the delete.
type Bus struct {
	mu     sync.RWMutex
	logger zerolog.Logger

	entityCreated  []EntityCreatedHandler
	entityUpdated  []EntityUpdatedHandler
	entityDeleting []EntityDeletingHandler
	valueCreated   []ValueCreatedHandler
	valueUpdated   []ValueUpdatedHandler
	valueDeleting  []ValueDeletingHandler
}

// NewBus creates an event bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{logger: logger}
}

// OnEntityCreated subscribes to entity creation events.
func (b *Bus) OnEntityCreated(h EntityCreatedHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entityCreated = append(b.entityCreated, h)
}

// OnEntityUpdated subscribes to entity update events.
func (b *Bus) OnEntityUpdated(h EntityUpdatedHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entityUpdated = append(b.entityUpdated, h)
}

// OnEntityDeleting subscribes to pre-delete entity events.
func (b *Bus) OnEntityDeleting(h EntityDeletingHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entityDeleting = append(b.entityDeleting, h)
}

// OnValueCreated subscribes to value creation events.
func (b *Bus) OnValueCreated(h ValueCreatedHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.valueCreated = append(b.valueCreated, h)
}

// OnValueUpdated subscribes to value update events.
func (b *Bus) OnValueUpdated(h ValueUpdatedHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.valueUpdated = append(b.valueUpdated, h)
}

// OnValueDeleting subscribes to pre-delete value events.
func (b *Bus) OnValueDeleting(h ValueDeletingHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.valueDeleting = append(b.valueDeleting, h)
}

// EmitEntityCreated notifies entity creation subscribers.
func (b *Bus) EmitEntityCreated(ctx context.Context, entity *types.Entity) {
	b.mu.RLock()
	handlers := b.entityCreated
	b.mu.RUnlock()

	for _, h := range handlers {
		b.safeCall(func() { h(ctx, entity) }, "entity.created")
	}
}

// EmitEntityUpdated notifies entity update subscribers.
func (b *Bus) EmitEntityUpdated(ctx context.Context, before, after *types.Entity) {
	b.mu.RLock()
	handlers := b.entityUpdated
	b.mu.RUnlock()

	for _, h := range handlers {
		b.safeCall(func() { h(ctx, before, after) }, "entity.updated")
	}
}

// EmitEntityDeleting notifies pre-delete subscribers. The first handler
// error stops dispatch and is returned to the caller.
func (b *Bus) EmitEntityDeleting(ctx context.Context, entity *types.Entity) error {
	b.mu.RLock()
	handlers := b.entityDeleting
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, entity); err != nil {
			return err
		}
	}
	return nil
}

// EmitValueCreated notifies value creation subscribers.
func (b *Bus) EmitValueCreated(ctx context.Context, value *types.Value) {
	b.mu.RLock()
	handlers := b.valueCreated
	b.mu.RUnlock()

	for _, h := range handlers {
		b.safeCall(func() { h(ctx, value) }, "value.created")
	}
}

// EmitValueUpdated notifies value update subscribers.
func (b *Bus) EmitValueUpdated(ctx context.Context, before, after *types.Value) {
	b.mu.RLock()
	handlers := b.valueUpdated
	b.mu.RUnlock()

	for _, h := range handlers {
		b.safeCall(func() { h(ctx, before, after) }, "value.updated")
	}
}

// EmitValueDeleting notifies pre-delete subscribers. The first handler error
// stops dispatch and is returned to the caller.
func (b *Bus) EmitValueDeleting(ctx context.Context, value *types.Value) error {
	b.mu.RLock()
	handlers := b.valueDeleting
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, value); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bus) safeCall(fn func(), topic string) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Str("topic", topic).Interface("panic", r).
				Msg("event handler panicked")
		}
	}()
	fn()
}
