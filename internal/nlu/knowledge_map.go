// Package nlu implements the knowledge-base services: entity and value
// deduplication, sample annotation linking, keyword span extraction, the
// cached knowledge map, inference scoring and dataset export.
package nlu

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/chatforge/nlukit/internal/events"
	"github.com/chatforge/nlukit/internal/metrics"
	"github.com/chatforge/nlukit/internal/storage"
	"github.com/chatforge/nlukit/pkg/types"
)

// KnowledgeMap caches the entity-name to entity-with-values snapshot used by
// scoring and lookup-strategy queries.
//
// The cache is all-or-nothing: cold (no map) or warm (full map). Any entity
// or value mutation invalidates the whole map; the next Get recomputes it
// from storage. There is no TTL and no partial update path. A narrow window
// exists where a reader can observe a warm cache between a mutation commit
// and the invalidation event; callers needing strict coherence must not rely
// on the cache.
type KnowledgeMap struct {
	entities storage.EntityStore
	logger   zerolog.Logger

	mu       sync.Mutex
	snapshot map[string]*types.Entity // nil when cold
}

// NewKnowledgeMap creates a cold knowledge-map cache.
func NewKnowledgeMap(entities storage.EntityStore, logger zerolog.Logger) *KnowledgeMap {
	return &KnowledgeMap{entities: entities, logger: logger}
}

// Get returns the cached map, recomputing it from storage when cold.
func (m *KnowledgeMap) Get(ctx context.Context) (map[string]*types.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.snapshot != nil {
		return m.snapshot, nil
	}

	all, err := m.entities.ListAllWithValues(ctx)
	if err != nil {
		return nil, err
	}
	m.snapshot = types.EntityMap(all)
	metrics.KnowledgeMapRecomputes.Inc()
	m.logger.Debug().Int("entities", len(m.snapshot)).Msg("knowledge map recomputed")
	return m.snapshot, nil
}

// Invalidate discards the cached map. Idempotent when already cold.
func (m *KnowledgeMap) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.snapshot == nil {
		return
	}
	m.snapshot = nil
	metrics.KnowledgeMapInvalidations.Inc()
}

// Subscribe wires cache invalidation to every entity and value mutation
// event on the bus.
func (m *KnowledgeMap) Subscribe(bus *events.Bus) {
	bus.OnEntityCreated(func(ctx context.Context, e *types.Entity) { m.Invalidate() })
	bus.OnEntityUpdated(func(ctx context.Context, before, after *types.Entity) { m.Invalidate() })
	bus.OnEntityDeleting(func(ctx context.Context, e *types.Entity) error {
		m.Invalidate()
		return nil
	})
	bus.OnValueCreated(func(ctx context.Context, v *types.Value) { m.Invalidate() })
	bus.OnValueUpdated(func(ctx context.Context, before, after *types.Value) { m.Invalidate() })
	bus.OnValueDeleting(func(ctx context.Context, v *types.Value) error {
		m.Invalidate()
		return nil
	})
}
