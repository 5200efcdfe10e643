package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatforge/nlukit/internal/events"
	"github.com/chatforge/nlukit/internal/storage/sqlite"
	"github.com/chatforge/nlukit/pkg/types"
)

// fakeProvider records calls and can be forced to fail.
type fakeProvider struct {
	fail    bool
	calls   []string
	deleted []string
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Train(ctx context.Context, d *types.Dataset) error {
	f.calls = append(f.calls, "train")
	return nil
}

func (f *fakeProvider) Evaluate(ctx context.Context, d *types.Dataset) (*EvaluationReport, error) {
	f.calls = append(f.calls, "evaluate")
	return &EvaluationReport{Provider: "fake"}, nil
}

func (f *fakeProvider) Parse(ctx context.Context, text string) (*types.ParseResult, error) {
	f.calls = append(f.calls, "parse")
	return &types.ParseResult{}, nil
}

func (f *fakeProvider) AddEntity(ctx context.Context, e *types.Entity) (string, error) {
	f.calls = append(f.calls, "add_entity")
	if f.fail {
		return "", errors.New("provider down")
	}
	return "ext-entity-" + e.Name, nil
}

func (f *fakeProvider) UpdateEntity(ctx context.Context, e *types.Entity) error {
	f.calls = append(f.calls, "update_entity")
	if f.fail {
		return errors.New("provider down")
	}
	return nil
}

func (f *fakeProvider) DeleteEntity(ctx context.Context, foreignID string) error {
	f.calls = append(f.calls, "delete_entity")
	f.deleted = append(f.deleted, foreignID)
	if f.fail {
		return errors.New("provider down")
	}
	return nil
}

func (f *fakeProvider) AddValue(ctx context.Context, v *types.Value) (string, error) {
	f.calls = append(f.calls, "add_value")
	if f.fail {
		return "", errors.New("provider down")
	}
	return "ext-value-" + v.Value, nil
}

func (f *fakeProvider) UpdateValue(ctx context.Context, v *types.Value) error {
	f.calls = append(f.calls, "update_value")
	if f.fail {
		return errors.New("provider down")
	}
	return nil
}

func (f *fakeProvider) DeleteValue(ctx context.Context, foreignID string) error {
	f.calls = append(f.calls, "delete_value")
	f.deleted = append(f.deleted, foreignID)
	if f.fail {
		return errors.New("provider down")
	}
	return nil
}

func (f *fakeProvider) Forget(ctx context.Context) error {
	f.calls = append(f.calls, "forget")
	return nil
}

func newSyncEnv(t *testing.T, fake *fakeProvider) (*sqlite.Store, *events.Bus) {
	t.Helper()

	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	bus := events.NewBus(zerolog.Nop())
	NewSync(fake, store.Entities(), store.Values(), zerolog.Nop()).Subscribe(bus)
	return store, bus
}

func TestSyncStoresForeignIDOnCreate(t *testing.T) {
	fake := &fakeProvider{}
	store, bus := newSyncEnv(t, fake)
	ctx := context.Background()

	entity := &types.Entity{Name: "intent"}
	require.NoError(t, store.Entities().Create(ctx, entity))
	bus.EmitEntityCreated(ctx, entity)

	stored, err := store.Entities().Get(ctx, entity.ID)
	require.NoError(t, err)
	assert.Equal(t, "ext-entity-intent", stored.ForeignID)

	value := &types.Value{EntityID: entity.ID, Value: "greeting"}
	require.NoError(t, store.Values().Create(ctx, value))
	bus.EmitValueCreated(ctx, value)

	storedValue, err := store.Values().Get(ctx, value.ID)
	require.NoError(t, err)
	assert.Equal(t, "ext-value-greeting", storedValue.ForeignID)
}

func TestSyncFailureDoesNotBlockLocalMutation(t *testing.T) {
	fake := &fakeProvider{fail: true}
	store, bus := newSyncEnv(t, fake)
	ctx := context.Background()

	entity := &types.Entity{Name: "intent"}
	require.NoError(t, store.Entities().Create(ctx, entity))
	bus.EmitEntityCreated(ctx, entity)

	// The local row survives with no foreign ID.
	stored, err := store.Entities().Get(ctx, entity.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.ForeignID)

	// A failing provider delete must not veto the local pre-delete phase.
	stored.ForeignID = "ext-1"
	require.NoError(t, bus.EmitEntityDeleting(ctx, stored))
	assert.Contains(t, fake.deleted, "ext-1")
}

func TestSyncIgnoresBuiltinRows(t *testing.T) {
	fake := &fakeProvider{}
	_, bus := newSyncEnv(t, fake)
	ctx := context.Background()

	bus.EmitEntityCreated(ctx, &types.Entity{Name: "intent", Builtin: true})
	bus.EmitValueCreated(ctx, &types.Value{Value: "greeting", Builtin: true})

	assert.Empty(t, fake.calls)
}

func TestSyncSkipsUpdateWithoutForeignID(t *testing.T) {
	fake := &fakeProvider{}
	_, bus := newSyncEnv(t, fake)
	ctx := context.Background()

	before := &types.Entity{Name: "intent"}
	after := &types.Entity{Name: "intent", Weight: 2}
	bus.EmitEntityUpdated(ctx, before, after)

	assert.Empty(t, fake.calls, "rows never synced must not be updated remotely")
}
