package nlu

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/chatforge/nlukit/internal/events"
	"github.com/chatforge/nlukit/internal/storage"
	"github.com/chatforge/nlukit/pkg/types"
)

// ValueService owns canonical entity values, their synonym lists and the
// merge/dedup logic applied when training samples reintroduce known values
// under new surface forms.
type ValueService struct {
	values storage.ValueStore
	bus    *events.Bus
	logger zerolog.Logger
}

// NewValueService creates a value service.
func NewValueService(values storage.ValueStore, bus *events.Bus, logger zerolog.Logger) *ValueService {
	return &ValueService{values: values, bus: bus, logger: logger}
}

// FindOrCreate looks up a value row by exact value text, creating it attached
// to entityID with empty expressions when absent. No synonym merge happens on
// this path.
func (s *ValueService) FindOrCreate(ctx context.Context, text, entityID string) (*types.Value, error) {
	existing, err := s.values.GetByValue(ctx, text)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	v := &types.Value{EntityID: entityID, Value: text, Expressions: []string{}}
	if err := s.values.Create(ctx, v); err != nil {
		// Concurrent creator won the race; surface its row.
		if errors.Is(err, storage.ErrConflict) {
			return s.values.GetByValue(ctx, text)
		}
		return nil, err
	}
	s.bus.EmitValueCreated(ctx, v)
	return v, nil
}

// MergeSynonym appends an observed surface form to the value's expressions
// when it differs from the canonical value and is not already recorded.
// Dedup is case-sensitive exact match, order-preserving.
func (s *ValueService) MergeSynonym(ctx context.Context, value *types.Value, surface string) error {
	if surface == "" || surface == value.Value || value.HasExpression(surface) {
		return nil
	}

	before := *value
	before.Expressions = append([]string(nil), value.Expressions...)

	value.Expressions = append(value.Expressions, surface)
	if err := s.values.Update(ctx, value); err != nil {
		return fmt.Errorf("failed to merge synonym %q into %q: %w", surface, value.Value, err)
	}
	s.bus.EmitValueUpdated(ctx, &before, value)
	return nil
}

// StoreNewValues resolves every annotation against knownEntities and the
// value store: genuinely new value texts are bulk-created in one batch
// (deduplicated by value text within the batch), while already-stored values
// receive any newly observed synonym. The synonym of an annotation is the
// literal sampleText substring at its span when that substring differs from
// the canonical value.
//
// Returns the annotation list with Entity and Value replaced by resolved row
// IDs, preserving input order.
func (s *ValueService) StoreNewValues(ctx context.Context, sampleText string, annotations []types.Annotation, knownEntities []*types.Entity) ([]types.Annotation, error) {
	if len(annotations) == 0 {
		return nil, nil
	}

	entityByName := types.EntityMap(knownEntities)

	texts := make([]string, 0, len(annotations))
	for _, ann := range annotations {
		texts = append(texts, ann.Value)
	}
	existing, err := s.values.FindByValues(ctx, texts)
	if err != nil {
		return nil, err
	}
	valueByText := types.ValueMap(existing)

	var batch []*types.Value
	batchByText := make(map[string]*types.Value)

	for _, ann := range annotations {
		entity, ok := entityByName[ann.Entity]
		if !ok {
			return nil, fmt.Errorf("unable to find the stored entity %q", ann.Entity)
		}

		synonym := annotationSynonym(sampleText, ann)

		if stored, ok := valueByText[ann.Value]; ok {
			if synonym != "" {
				if err := s.MergeSynonym(ctx, stored, synonym); err != nil {
					return nil, err
				}
			}
			continue
		}

		if pending, ok := batchByText[ann.Value]; ok {
			// Batch-level dedup: same new value twice in one call.
			if synonym != "" && !pending.HasExpression(synonym) {
				pending.Expressions = append(pending.Expressions, synonym)
			}
			continue
		}

		v := &types.Value{EntityID: entity.ID, Value: ann.Value, Expressions: []string{}}
		if synonym != "" {
			v.Expressions = append(v.Expressions, synonym)
		}
		batch = append(batch, v)
		batchByText[ann.Value] = v
	}

	if len(batch) > 0 {
		if err := s.values.CreateMany(ctx, batch); err != nil {
			return nil, err
		}
		for _, v := range batch {
			s.bus.EmitValueCreated(ctx, v)
			valueByText[v.Value] = v
		}
	}

	resolved := make([]types.Annotation, 0, len(annotations))
	for _, ann := range annotations {
		entity := entityByName[ann.Entity]
		value := valueByText[ann.Value]
		if entity == nil || value == nil {
			return nil, fmt.Errorf("unable to resolve the stored entity or value for %q", ann.Value)
		}
		resolved = append(resolved, types.Annotation{
			Entity: entity.ID,
			Value:  value.ID,
			Start:  ann.Start,
			End:    ann.End,
		})
	}
	return resolved, nil
}

// StoreValues is the StoreNewValues variant used when entities are not
// pre-resolved: entity names are looked up in bulk first, and an annotation
// referencing an unknown entity fails the whole call naming the offender.
func (s *ValueService) StoreValues(ctx context.Context, entities storage.EntityStore, sampleText string, annotations []types.Annotation) ([]types.Annotation, error) {
	if len(annotations) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(annotations))
	seen := make(map[string]struct{}, len(annotations))
	for _, ann := range annotations {
		if _, dup := seen[ann.Entity]; dup {
			continue
		}
		seen[ann.Entity] = struct{}{}
		names = append(names, ann.Entity)
	}

	stored, err := entities.FindByNames(ctx, names)
	if err != nil {
		return nil, err
	}
	byName := types.EntityMap(stored)
	for _, name := range names {
		if _, ok := byName[name]; !ok {
			return nil, fmt.Errorf("unable to find the stored entity %q", name)
		}
	}

	return s.StoreNewValues(ctx, sampleText, annotations, stored)
}

// Update persists value edits and notifies subscribers with both states.
func (s *ValueService) Update(ctx context.Context, value *types.Value) error {
	before, err := s.values.Get(ctx, value.ID)
	if err != nil {
		return err
	}
	if err := s.values.Update(ctx, value); err != nil {
		return err
	}
	s.bus.EmitValueUpdated(ctx, before, value)
	return nil
}

// Delete runs pre-delete subscribers (cascades, provider cleanup) and then
// removes the value. Builtin values are rejected.
func (s *ValueService) Delete(ctx context.Context, id string) error {
	value, err := s.values.Get(ctx, id)
	if err != nil {
		return err
	}
	if value.Builtin {
		return fmt.Errorf("%w: builtin values cannot be deleted", storage.ErrInvalidInput)
	}
	if err := s.bus.EmitValueDeleting(ctx, value); err != nil {
		return err
	}
	return s.values.Delete(ctx, id)
}

// annotationSynonym returns the sample substring covered by the annotation's
// span when it is in bounds and differs from the canonical value text.
func annotationSynonym(sampleText string, ann types.Annotation) string {
	start, end, ok := ann.Span()
	if !ok || start < 0 || end > len(sampleText) || start >= end {
		return ""
	}
	surface := sampleText[start:end]
	if surface == ann.Value {
		return ""
	}
	return surface
}
