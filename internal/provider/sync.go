package provider

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/chatforge/nlukit/internal/events"
	"github.com/chatforge/nlukit/internal/metrics"
	"github.com/chatforge/nlukit/internal/storage"
	"github.com/chatforge/nlukit/pkg/types"
)

// Sync mirrors local entity and value mutations onto the external NLU
// provider. Every handler is best-effort: failures are counted and logged
// but never propagated, so the local mutation is never rolled back. A
// successful create stores the provider-side ID as the row's ForeignID for
// later update and delete calls.
type Sync struct {
	provider Provider
	entities storage.EntityStore
	values   storage.ValueStore
	logger   zerolog.Logger
}

// NewSync creates the provider sync handlers.
func NewSync(p Provider, entities storage.EntityStore, values storage.ValueStore, logger zerolog.Logger) *Sync {
	return &Sync{provider: p, entities: entities, values: values, logger: logger}
}

// Subscribe wires the handlers to the mutation event bus. Builtin rows are
// shipped with the system and assumed known to the provider already, so
// their events are ignored.
func (s *Sync) Subscribe(bus *events.Bus) {
	bus.OnEntityCreated(s.entityCreated)
	bus.OnEntityUpdated(s.entityUpdated)
	bus.OnEntityDeleting(s.entityDeleting)
	bus.OnValueCreated(s.valueCreated)
	bus.OnValueUpdated(s.valueUpdated)
	bus.OnValueDeleting(s.valueDeleting)
}

func (s *Sync) entityCreated(ctx context.Context, entity *types.Entity) {
	if entity.Builtin {
		return
	}

	foreignID, err := s.provider.AddEntity(ctx, entity)
	if err != nil {
		s.fail("add_entity", err, entity.Name)
		return
	}

	entity.ForeignID = foreignID
	if err := s.entities.Update(ctx, entity); err != nil {
		s.fail("store_entity_foreign_id", err, entity.Name)
	}
}

func (s *Sync) entityUpdated(ctx context.Context, before, after *types.Entity) {
	if after.Builtin || after.ForeignID == "" {
		return
	}
	if err := s.provider.UpdateEntity(ctx, after); err != nil {
		s.fail("update_entity", err, after.Name)
	}
}

func (s *Sync) entityDeleting(ctx context.Context, entity *types.Entity) error {
	if entity.Builtin || entity.ForeignID == "" {
		return nil
	}
	if err := s.provider.DeleteEntity(ctx, entity.ForeignID); err != nil {
		// Best-effort: a provider failure must not block the local delete.
		s.fail("delete_entity", err, entity.Name)
	}
	return nil
}

func (s *Sync) valueCreated(ctx context.Context, value *types.Value) {
	if value.Builtin {
		return
	}

	foreignID, err := s.provider.AddValue(ctx, value)
	if err != nil {
		s.fail("add_value", err, value.Value)
		return
	}

	value.ForeignID = foreignID
	if err := s.values.Update(ctx, value); err != nil {
		s.fail("store_value_foreign_id", err, value.Value)
	}
}

func (s *Sync) valueUpdated(ctx context.Context, before, after *types.Value) {
	if after.Builtin || after.ForeignID == "" {
		return
	}
	if err := s.provider.UpdateValue(ctx, after); err != nil {
		s.fail("update_value", err, after.Value)
	}
}

func (s *Sync) valueDeleting(ctx context.Context, value *types.Value) error {
	if value.Builtin || value.ForeignID == "" {
		return nil
	}
	if err := s.provider.DeleteValue(ctx, value.ForeignID); err != nil {
		s.fail("delete_value", err, value.Value)
	}
	return nil
}

func (s *Sync) fail(operation string, err error, subject string) {
	metrics.ProviderSyncFailures.WithLabelValues(operation).Inc()
	s.logger.Warn().Err(err).
		Str("provider", s.provider.Name()).
		Str("operation", operation).
		Str("subject", subject).
		Msg("nlu provider sync failed")
}
