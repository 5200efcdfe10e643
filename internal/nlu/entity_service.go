package nlu

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/chatforge/nlukit/internal/events"
	"github.com/chatforge/nlukit/internal/storage"
	"github.com/chatforge/nlukit/pkg/types"
)

// EntityService owns canonical entities, their lookup strategies and scoring
// weights, and cascades value resolution when new entities appear.
type EntityService struct {
	entities storage.EntityStore
	values   *ValueService
	cache    *KnowledgeMap
	bus      *events.Bus
	logger   zerolog.Logger
}

// NewEntityService creates an entity service.
func NewEntityService(entities storage.EntityStore, values *ValueService, cache *KnowledgeMap, bus *events.Bus, logger zerolog.Logger) *EntityService {
	return &EntityService{
		entities: entities,
		values:   values,
		cache:    cache,
		bus:      bus,
		logger:   logger,
	}
}

// FindOrCreateEntities resolves every distinct entity name referenced by the
// annotations: existing rows are reused, missing ones are bulk-created with
// the given lookup strategies (default keywords when nil). The result is
// ordered by first reference in the annotation list.
func (s *EntityService) FindOrCreateEntities(ctx context.Context, annotations []types.Annotation, lookups []types.Lookup) ([]*types.Entity, error) {
	names := make([]string, 0, len(annotations))
	seen := make(map[string]struct{}, len(annotations))
	for _, ann := range annotations {
		if ann.Entity == "" {
			return nil, fmt.Errorf("%w: annotation entity name is required", storage.ErrInvalidInput)
		}
		if _, dup := seen[ann.Entity]; dup {
			continue
		}
		seen[ann.Entity] = struct{}{}
		names = append(names, ann.Entity)
	}
	if len(names) == 0 {
		return nil, nil
	}

	existing, err := s.entities.FindByNames(ctx, names)
	if err != nil {
		return nil, err
	}
	byName := types.EntityMap(existing)

	var batch []*types.Entity
	for _, name := range names {
		if _, ok := byName[name]; ok {
			continue
		}
		e := &types.Entity{Name: name, Lookups: lookups}
		batch = append(batch, e)
	}

	if len(batch) > 0 {
		if err := s.entities.CreateMany(ctx, batch); err != nil {
			return nil, err
		}
		for _, e := range batch {
			s.bus.EmitEntityCreated(ctx, e)
			byName[e.Name] = e
		}
	}

	out := make([]*types.Entity, 0, len(names))
	for _, name := range names {
		out = append(out, byName[name])
	}
	return out, nil
}

// StoreNewEntities bulk-creates the entity names the annotations reference
// that are not yet stored, then delegates value resolution. Returns the
// annotations with entity and value names replaced by resolved row IDs.
func (s *EntityService) StoreNewEntities(ctx context.Context, sampleText string, annotations []types.Annotation, lookups []types.Lookup) ([]types.Annotation, error) {
	stored, err := s.FindOrCreateEntities(ctx, annotations, lookups)
	if err != nil {
		return nil, err
	}
	return s.values.StoreNewValues(ctx, sampleText, annotations, stored)
}

// Get retrieves an entity by ID.
func (s *EntityService) Get(ctx context.Context, id string) (*types.Entity, error) {
	return s.entities.Get(ctx, id)
}

// UpdateWeight sets the entity's scoring weight. Zero and negative weights
// are rejected before any mutation. This is the only mutable field on
// builtin entities.
func (s *EntityService) UpdateWeight(ctx context.Context, id string, weight float64) (*types.Entity, error) {
	if weight <= 0 {
		return nil, fmt.Errorf("%w: entity weight must be strictly positive", storage.ErrInvalidInput)
	}

	entity, err := s.entities.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	before := *entity
	entity.Weight = weight
	if err := s.entities.Update(ctx, entity); err != nil {
		return nil, err
	}
	s.bus.EmitEntityUpdated(ctx, &before, entity)
	return entity, nil
}

// Update persists entity edits. Builtin entities may only change weight, so
// callers route those through UpdateWeight; this path rejects them outright.
func (s *EntityService) Update(ctx context.Context, entity *types.Entity) error {
	before, err := s.entities.Get(ctx, entity.ID)
	if err != nil {
		return err
	}
	if before.Builtin {
		return fmt.Errorf("%w: builtin entities may only have their weight updated", storage.ErrInvalidInput)
	}
	if err := s.entities.Update(ctx, entity); err != nil {
		return err
	}
	s.bus.EmitEntityUpdated(ctx, before, entity)
	return nil
}

// DeleteCascade removes a non-builtin entity after running pre-delete
// subscribers. Dependent values and sample links are removed by the storage
// cascade rules.
func (s *EntityService) DeleteCascade(ctx context.Context, id string) error {
	entity, err := s.entities.Get(ctx, id)
	if err != nil {
		return err
	}
	if entity.Builtin {
		return fmt.Errorf("%w: builtin entities cannot be deleted", storage.ErrInvalidInput)
	}
	if err := s.bus.EmitEntityDeleting(ctx, entity); err != nil {
		return err
	}
	return s.entities.Delete(ctx, id)
}

// ByLookup returns every cached entity whose lookup-strategy set intersects
// the requested strategies, values included.
func (s *EntityService) ByLookup(ctx context.Context, lookups []types.Lookup) ([]*types.Entity, error) {
	snapshot, err := s.cache.Get(ctx)
	if err != nil {
		return nil, err
	}

	var out []*types.Entity
	for _, entity := range snapshot {
		for _, l := range lookups {
			if entity.HasLookup(l) {
				out = append(out, entity)
				break
			}
		}
	}
	return out, nil
}
