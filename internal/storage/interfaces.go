package storage

import (
	"context"

	"github.com/chatforge/nlukit/pkg/types"
)

// EntityStore provides CRUD and dedup lookups for entities.
type EntityStore interface {
	// Create inserts a new entity. A duplicate name yields ErrConflict.
	Create(ctx context.Context, entity *types.Entity) error

	// CreateMany inserts a batch of entities in one transaction.
	CreateMany(ctx context.Context, entities []*types.Entity) error

	// Get retrieves an entity by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*types.Entity, error)

	// GetByName retrieves an entity by its unique name.
	GetByName(ctx context.Context, name string) (*types.Entity, error)

	// FindByNames retrieves every entity whose name is in names.
	// Missing names are simply absent from the result, not an error.
	FindByNames(ctx context.Context, names []string) ([]*types.Entity, error)

	// FindOneOrCreate looks up an entity by name and creates defaults when
	// absent. Central dedup primitive; see package doc for race semantics.
	FindOneOrCreate(ctx context.Context, name string, defaults *types.Entity) (*types.Entity, error)

	// List retrieves entities with pagination.
	List(ctx context.Context, opts ListOptions) (*PaginatedResult[types.Entity], error)

	// ListAllWithValues retrieves every entity with its nested values.
	// This is the knowledge-map recompute path.
	ListAllWithValues(ctx context.Context) ([]*types.Entity, error)

	// Update persists the mutable fields of an existing entity.
	// Returns ErrNotFound if the entity doesn't exist.
	Update(ctx context.Context, entity *types.Entity) error

	// Delete removes an entity. Dependent values and sample links are
	// removed by referential cascade.
	Delete(ctx context.Context, id string) error

	// Close releases any resources held by the store.
	Close() error
}

// ValueStore provides CRUD and dedup lookups for entity values.
type ValueStore interface {
	// Create inserts a new value. A duplicate value string yields
	// ErrConflict (value text is globally unique across entities).
	Create(ctx context.Context, value *types.Value) error

	// CreateMany inserts a batch of values in one transaction.
	CreateMany(ctx context.Context, values []*types.Value) error

	// Get retrieves a value by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*types.Value, error)

	// GetByValue retrieves a value row by its unique value string.
	GetByValue(ctx context.Context, value string) (*types.Value, error)

	// FindByValues retrieves every row whose value string is in values.
	FindByValues(ctx context.Context, values []string) ([]*types.Value, error)

	// FindOneOrCreate looks up a value by its text and creates defaults
	// when absent.
	FindOneOrCreate(ctx context.Context, value string, defaults *types.Value) (*types.Value, error)

	// ListByEntity retrieves all values attached to the given entity.
	ListByEntity(ctx context.Context, entityID string) ([]*types.Value, error)

	// List retrieves values with pagination.
	List(ctx context.Context, opts ListOptions) (*PaginatedResult[types.Value], error)

	// Update persists the mutable fields of an existing value.
	// Returns ErrNotFound if the value doesn't exist.
	Update(ctx context.Context, value *types.Value) error

	// Delete removes a value. Dependent sample links are removed by
	// referential cascade.
	Delete(ctx context.Context, id string) error
}

// SampleStore provides CRUD and pattern queries for samples.
type SampleStore interface {
	// Create inserts a new sample.
	Create(ctx context.Context, sample *types.Sample) error

	// Get retrieves a sample by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*types.Sample, error)

	// Find retrieves samples matching the filter with pagination.
	Find(ctx context.Context, filter SampleFilter, opts ListOptions) (*PaginatedResult[types.Sample], error)

	// FindFull is Find with languages and sample-entity links populated.
	FindFull(ctx context.Context, filter SampleFilter, opts ListOptions) (*PaginatedResult[types.Sample], error)

	// FindByPattern retrieves samples whose annotation tag-set is a
	// superset of the query's required pairs (see PatternQuery).
	FindByPattern(ctx context.Context, query PatternQuery, opts ListOptions) (*PaginatedResult[types.Sample], error)

	// FindFullByPattern is FindByPattern with relations populated.
	FindFullByPattern(ctx context.Context, query PatternQuery, opts ListOptions) (*PaginatedResult[types.Sample], error)

	// CountByPattern counts samples matching the pattern query.
	CountByPattern(ctx context.Context, query PatternQuery) (int, error)

	// Update persists the mutable fields of an existing sample.
	Update(ctx context.Context, sample *types.Sample) error

	// MarkTrained sets the trained flag on every sample of the given type.
	// Returns the number of updated rows.
	MarkTrained(ctx context.Context, sampleType types.SampleType, trained bool) (int, error)

	// Delete removes a sample. Dependent links are removed by cascade.
	Delete(ctx context.Context, id string) error
}

// SampleEntityStore manages the sample ↔ (entity, value) join rows.
type SampleEntityStore interface {
	// Create inserts a new link row.
	Create(ctx context.Context, link *types.SampleEntity) error

	// CreateMany inserts a batch of link rows in one transaction.
	CreateMany(ctx context.Context, links []*types.SampleEntity) error

	// FindOneOrCreate looks up a link with the same sample, entity, value
	// and span, creating it when absent. Bulk annotation relies on this
	// for duplicate avoidance.
	FindOneOrCreate(ctx context.Context, link *types.SampleEntity) (*types.SampleEntity, error)

	// ListBySample retrieves all links owned by the given sample.
	ListBySample(ctx context.Context, sampleID string) ([]*types.SampleEntity, error)

	// DeleteBySample removes every link owned by the given sample.
	DeleteBySample(ctx context.Context, sampleID string) (int, error)
}

// LanguageStore manages the supported-language registry.
type LanguageStore interface {
	// Create inserts a new language. A duplicate code yields ErrConflict.
	Create(ctx context.Context, lang *types.Language) error

	// GetByCode retrieves a language by its unique code.
	GetByCode(ctx context.Context, code string) (*types.Language, error)

	// GetDefault retrieves the default language.
	// Returns ErrNotFound when no default is configured.
	GetDefault(ctx context.Context) (*types.Language, error)

	// List retrieves all languages.
	List(ctx context.Context) ([]*types.Language, error)

	// Delete removes a language. Samples referencing it have their
	// language cleared rather than being deleted.
	Delete(ctx context.Context, id string) error
}

// Store bundles the five stores of one backend.
type Store interface {
	Entities() EntityStore
	Values() ValueStore
	Samples() SampleStore
	SampleEntities() SampleEntityStore
	Languages() LanguageStore

	// Close releases the underlying database handle.
	Close() error
}
