package nlu

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatforge/nlukit/internal/storage"
	"github.com/chatforge/nlukit/pkg/types"
)

// countingEntityStore counts recompute loads to observe cache behaviour.
type countingEntityStore struct {
	storage.EntityStore
	loads atomic.Int64
}

func (c *countingEntityStore) ListAllWithValues(ctx context.Context) ([]*types.Entity, error) {
	c.loads.Add(1)
	return c.EntityStore.ListAllWithValues(ctx)
}

func TestKnowledgeMapRecomputesOnlyWhenCold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.store.Entities().Create(ctx, &types.Entity{Name: "intent"}))

	counting := &countingEntityStore{EntityStore: env.store.Entities()}
	cache := NewKnowledgeMap(counting, zerolog.Nop())

	first, err := cache.Get(ctx)
	require.NoError(t, err)
	second, err := cache.Get(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(1), counting.loads.Load(), "warm cache must not recompute")
	assert.Equal(t, first, second)

	cache.Invalidate()
	cache.Invalidate() // idempotent when already cold

	_, err = cache.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counting.loads.Load())
}

func TestKnowledgeMapInvalidatedByMutationEvents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.store.Entities().Create(ctx, &types.Entity{Name: "intent"}))

	snapshot, err := env.cache.Get(ctx)
	require.NoError(t, err)
	assert.Len(t, snapshot, 1)

	// FindOrCreateEntities emits entity.created, which must invalidate.
	_, err = env.entities.FindOrCreateEntities(ctx,
		[]types.Annotation{{Entity: "subject", Value: "x"}}, nil)
	require.NoError(t, err)

	snapshot, err = env.cache.Get(ctx)
	require.NoError(t, err)
	assert.Len(t, snapshot, 2, "mutation between reads must force a recompute")
}

func TestKnowledgeMapSnapshotIncludesValues(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	entity := &types.Entity{Name: "product"}
	require.NoError(t, env.store.Entities().Create(ctx, entity))
	require.NoError(t, env.store.Values().Create(ctx, &types.Value{
		EntityID: entity.ID, Value: "pizza",
	}))

	snapshot, err := env.cache.Get(ctx)
	require.NoError(t, err)
	require.Contains(t, snapshot, "product")
	require.Len(t, snapshot["product"].Values, 1)
	assert.Equal(t, "pizza", snapshot["product"].Values[0].Value)
}
