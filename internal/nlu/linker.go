package nlu

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/chatforge/nlukit/internal/storage"
	"github.com/chatforge/nlukit/pkg/types"
)

// Linker persists sample annotations as sample-entity join rows, delegating
// entity and value deduplication to their services.
type Linker struct {
	entities  *EntityService
	values    *ValueService
	samples   storage.SampleStore
	links     storage.SampleEntityStore
	annotator *KeywordAnnotator
	logger    zerolog.Logger
}

// NewLinker creates a sample annotation linker.
func NewLinker(entities *EntityService, values *ValueService, samples storage.SampleStore, links storage.SampleEntityStore, annotator *KeywordAnnotator, logger zerolog.Logger) *Linker {
	return &Linker{
		entities:  entities,
		values:    values,
		samples:   samples,
		links:     links,
		annotator: annotator,
		logger:    logger,
	}
}

// LinkSampleAnnotations resolves each annotation's entity and value to
// stored rows (creating missing ones) and persists one link row per
// annotation, spans copied through unchanged. A failed resolution fails the
// whole call; bulk-creates already persisted by earlier steps are not rolled
// back.
func (l *Linker) LinkSampleAnnotations(ctx context.Context, sample *types.Sample, annotations []types.Annotation) ([]*types.SampleEntity, error) {
	if len(annotations) == 0 {
		return nil, nil
	}

	stored, err := l.entities.FindOrCreateEntities(ctx, annotations, nil)
	if err != nil {
		return nil, err
	}

	resolved, err := l.values.StoreNewValues(ctx, sample.Text, annotations, stored)
	if err != nil {
		return nil, err
	}

	out := make([]*types.SampleEntity, 0, len(resolved))
	for _, ann := range resolved {
		if ann.Entity == "" || ann.Value == "" {
			return nil, fmt.Errorf("unable to resolve the stored entity or value for sample %q", sample.ID)
		}
		link, err := l.links.FindOneOrCreate(ctx, &types.SampleEntity{
			SampleID: sample.ID,
			EntityID: ann.Entity,
			ValueID:  ann.Value,
			Start:    ann.Start,
			End:      ann.End,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, link)
	}
	return out, nil
}

// RelinkSample replaces a sample's annotations. Existing links are removed,
// the new annotation set is persisted, and the sample's trained flag is
// cleared so the next training run picks it up again.
func (l *Linker) RelinkSample(ctx context.Context, sample *types.Sample, annotations []types.Annotation) ([]*types.SampleEntity, error) {
	if _, err := l.links.DeleteBySample(ctx, sample.ID); err != nil {
		return nil, err
	}

	if sample.Trained {
		sample.Trained = false
		if err := l.samples.Update(ctx, sample); err != nil {
			return nil, err
		}
	}

	return l.LinkSampleAnnotations(ctx, sample, annotations)
}

// ExtractKeywordEntities runs keyword span extraction over the sample text
// using the value's canonical text plus its synonyms, and returns candidate
// link rows stamped with the sample and value references. Nothing is
// persisted.
func (l *Linker) ExtractKeywordEntities(sample *types.Sample, value *types.Value) []*types.SampleEntity {
	keywords := append([]string{value.Value}, value.Expressions...)
	spans := l.annotator.Extract(sample.Text, keywords)

	out := make([]*types.SampleEntity, 0, len(spans))
	for _, span := range spans {
		start, end := span.Start, span.End
		out = append(out, &types.SampleEntity{
			SampleID: sample.ID,
			EntityID: value.EntityID,
			ValueID:  value.ID,
			Start:    &start,
			End:      &end,
		})
	}
	return out
}

// AnnotateWithKeywords runs keyword extraction for every value of every
// keyword-lookup entity against the sample and persists the resulting links.
// Per-value failures are logged and skipped; the loop continues.
func (l *Linker) AnnotateWithKeywords(ctx context.Context, sample *types.Sample) ([]*types.SampleEntity, error) {
	entities, err := l.entities.ByLookup(ctx, []types.Lookup{types.LookupKeywords})
	if err != nil {
		return nil, err
	}

	var out []*types.SampleEntity
	for _, entity := range entities {
		for _, value := range entity.Values {
			for _, candidate := range l.ExtractKeywordEntities(sample, value) {
				link, err := l.links.FindOneOrCreate(ctx, candidate)
				if err != nil {
					l.logger.Warn().Err(err).
						Str("sample", sample.ID).
						Str("value", value.Value).
						Msg("failed to persist keyword annotation")
					continue
				}
				out = append(out, link)
			}
		}
	}
	return out, nil
}
