package nlu

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/chatforge/nlukit/internal/storage"
	"github.com/chatforge/nlukit/pkg/types"
)

// intentEntityName is the pseudo-entity carrying the sample's intent in
// exported examples. Samples without an intent annotation are not exportable.
const intentEntityName = "intent"

// languageEntityName is the pseudo-entity carrying the sample's language in
// exported examples and lookup tables.
const languageEntityName = "language"

// DatasetBuilder exports the sample graph as a Rasa-style training dataset.
type DatasetBuilder struct {
	store  storage.Store
	logger zerolog.Logger
}

// NewDatasetBuilder creates a dataset builder.
func NewDatasetBuilder(store storage.Store, logger zerolog.Logger) *DatasetBuilder {
	return &DatasetBuilder{store: store, logger: logger}
}

// Build exports every sample of the given type with its annotations resolved
// to entity and value names. The document contains:
//
//   - common_examples: one per exportable sample, intent annotation lifted
//     into the intent field, remaining annotations as entity tags, plus a
//     language pseudo-entity when the sample has one;
//   - lookup_tables: distinct value texts per keyword/trait entity, plus a
//     language table over the registered language codes;
//   - entity_synonyms: one entry per value with at least one synonym.
//
// Samples without an intent annotation are skipped and logged.
func (b *DatasetBuilder) Build(ctx context.Context, sampleType types.SampleType) (*types.Dataset, error) {
	entities, err := b.store.Entities().ListAllWithValues(ctx)
	if err != nil {
		return nil, err
	}

	entityByID := make(map[string]*types.Entity, len(entities))
	valueByID := make(map[string]*types.Value)
	for _, e := range entities {
		entityByID[e.ID] = e
		for _, v := range e.Values {
			valueByID[v.ID] = v
		}
	}

	languages, err := b.store.Languages().List(ctx)
	if err != nil {
		return nil, err
	}
	langByID := make(map[string]*types.Language, len(languages))
	langCodes := make([]string, 0, len(languages))
	for _, lang := range languages {
		langByID[lang.ID] = lang
		langCodes = append(langCodes, lang.Code)
	}

	dataset := &types.Dataset{
		CommonExamples: []types.DatasetExample{},
		RegexFeatures:  []string{},
		LookupTables:   []types.LookupTable{},
		EntitySynonyms: []types.EntitySynonym{},
	}

	for page := 1; ; page++ {
		result, err := b.store.Samples().FindFull(ctx,
			storage.SampleFilter{Type: sampleType},
			storage.ListOptions{Page: page, Limit: 100, SortBy: "created_at", SortOrder: "asc"})
		if err != nil {
			return nil, err
		}

		for _, sample := range result.Items {
			example, ok := b.buildExample(sample, entityByID, valueByID, langByID)
			if !ok {
				b.logger.Debug().Str("sample", sample.ID).
					Msg("skipping sample without intent annotation")
				continue
			}
			dataset.CommonExamples = append(dataset.CommonExamples, example)
		}

		if !result.HasMore {
			break
		}
	}

	for _, entity := range entities {
		if !entity.HasLookup(types.LookupKeywords) && !entity.HasLookup(types.LookupTrait) {
			continue
		}
		elements := make([]string, 0, len(entity.Values))
		for _, v := range entity.Values {
			elements = append(elements, v.Value)
		}
		dataset.LookupTables = append(dataset.LookupTables, types.LookupTable{
			Name:     entity.Name,
			Elements: elements,
		})

		for _, v := range entity.Values {
			if len(v.Expressions) == 0 {
				continue
			}
			dataset.EntitySynonyms = append(dataset.EntitySynonyms, types.EntitySynonym{
				Value:    v.Value,
				Synonyms: v.Expressions,
			})
		}
	}

	dataset.LookupTables = append(dataset.LookupTables, types.LookupTable{
		Name:     languageEntityName,
		Elements: langCodes,
	})

	return dataset, nil
}

// buildExample converts one populated sample into a dataset example. The
// second return is false when the sample carries no intent annotation.
func (b *DatasetBuilder) buildExample(sample *types.Sample, entityByID map[string]*types.Entity, valueByID map[string]*types.Value, langByID map[string]*types.Language) (types.DatasetExample, bool) {
	example := types.DatasetExample{
		Text:     sample.Text,
		Entities: []types.ExampleEntity{},
	}

	for _, link := range sample.Entities {
		entity := entityByID[link.EntityID]
		value := valueByID[link.ValueID]
		if entity == nil || value == nil {
			b.logger.Warn().Str("sample", sample.ID).Str("link", link.ID).
				Msg("dangling annotation reference, skipping")
			continue
		}

		if entity.Name == intentEntityName {
			example.Intent = value.Value
			continue
		}

		example.Entities = append(example.Entities, types.ExampleEntity{
			Entity: entity.Name,
			Value:  value.Value,
			Start:  link.Start,
			End:    link.End,
		})
	}

	if example.Intent == "" {
		return types.DatasetExample{}, false
	}

	if lang, ok := langByID[sample.LanguageID]; ok {
		example.Entities = append(example.Entities, types.ExampleEntity{
			Entity: languageEntityName,
			Value:  lang.Code,
		})
	}

	return example, true
}
