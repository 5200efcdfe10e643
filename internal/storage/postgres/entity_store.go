package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/chatforge/nlukit/internal/storage"
	"github.com/chatforge/nlukit/pkg/types"
)

// EntityStore implements storage.EntityStore using PostgreSQL.
type EntityStore struct {
	db *sql.DB
}

const entityColumns = "id, name, lookups, description, builtin, weight, foreign_id, created_at, updated_at"

// Create inserts a new entity.
func (s *EntityStore) Create(ctx context.Context, entity *types.Entity) error {
	if entity == nil {
		return storage.ErrInvalidInput
	}
	if entity.Name == "" {
		return fmt.Errorf("%w: entity name is required", storage.ErrInvalidInput)
	}
	if entity.Weight < 0 {
		return fmt.Errorf("%w: entity weight must be strictly positive", storage.ErrInvalidInput)
	}

	if entity.ID == "" {
		entity.ID = uuid.NewString()
	}
	if entity.Weight == 0 {
		entity.Weight = 1
	}
	if len(entity.Lookups) == 0 {
		entity.Lookups = []types.Lookup{types.LookupKeywords}
	}
	touchTimestamps(&entity.CreatedAt, &entity.UpdatedAt)

	lookupsJSON, err := json.Marshal(entity.Lookups)
	if err != nil {
		return fmt.Errorf("failed to marshal lookups: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entities (id, name, lookups, description, builtin, weight, foreign_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, entity.ID, entity.Name, string(lookupsJSON), entity.Description,
		entity.Builtin, entity.Weight, entity.ForeignID, entity.CreatedAt, entity.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to create entity: %w", translateErr(err))
	}
	return nil
}

// CreateMany inserts a batch of entities in one transaction.
func (s *EntityStore) CreateMany(ctx context.Context, entities []*types.Entity) error {
	if len(entities) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, entity := range entities {
		if entity.Name == "" {
			return fmt.Errorf("%w: entity name is required", storage.ErrInvalidInput)
		}
		if entity.ID == "" {
			entity.ID = uuid.NewString()
		}
		if entity.Weight == 0 {
			entity.Weight = 1
		}
		if len(entity.Lookups) == 0 {
			entity.Lookups = []types.Lookup{types.LookupKeywords}
		}
		touchTimestamps(&entity.CreatedAt, &entity.UpdatedAt)

		lookupsJSON, err := json.Marshal(entity.Lookups)
		if err != nil {
			return fmt.Errorf("failed to marshal lookups: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO entities (id, name, lookups, description, builtin, weight, foreign_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, entity.ID, entity.Name, string(lookupsJSON), entity.Description,
			entity.Builtin, entity.Weight, entity.ForeignID, entity.CreatedAt, entity.UpdatedAt)
		if err != nil {
			return fmt.Errorf("postgres: failed to create entity %q: %w", entity.Name, translateErr(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: failed to commit entity batch: %w", err)
	}
	return nil
}

// Get retrieves an entity by ID.
func (s *EntityStore) Get(ctx context.Context, id string) (*types.Entity, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+entityColumns+" FROM entities WHERE id = $1", id)
	return scanEntity(row)
}

// GetByName retrieves an entity by its unique name.
func (s *EntityStore) GetByName(ctx context.Context, name string) (*types.Entity, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+entityColumns+" FROM entities WHERE name = $1", name)
	return scanEntity(row)
}

// FindByNames retrieves every entity whose name is in names.
func (s *EntityStore) FindByNames(ctx context.Context, names []string) ([]*types.Entity, error) {
	if len(names) == 0 {
		return nil, nil
	}

	args := make([]interface{}, len(names))
	for i, n := range names {
		args[i] = n
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+entityColumns+" FROM entities WHERE name IN ("+placeholders(0, len(names))+")", args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query entities by name: %w", err)
	}
	defer rows.Close()

	return scanEntities(rows)
}

// FindOneOrCreate looks up an entity by name and creates defaults when absent.
func (s *EntityStore) FindOneOrCreate(ctx context.Context, name string, defaults *types.Entity) (*types.Entity, error) {
	existing, err := s.GetByName(ctx, name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	if defaults == nil {
		defaults = &types.Entity{}
	}
	defaults.Name = name
	if err := s.Create(ctx, defaults); err != nil {
		// Concurrent creator won the race; surface its row.
		if errors.Is(err, storage.ErrConflict) {
			return s.GetByName(ctx, name)
		}
		return nil, err
	}
	return defaults, nil
}

// List retrieves entities with pagination.
func (s *EntityStore) List(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Entity], error) {
	opts.Normalize()

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entities").Scan(&total); err != nil {
		return nil, fmt.Errorf("postgres: failed to count entities: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT "+entityColumns+" FROM entities ORDER BY %s %s LIMIT $1 OFFSET $2",
		opts.SortBy, opts.SortOrder)
	rows, err := s.db.QueryContext(ctx, query, opts.Limit, opts.Offset())
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list entities: %w", err)
	}
	defer rows.Close()

	items, err := scanEntities(rows)
	if err != nil {
		return nil, err
	}

	return &storage.PaginatedResult[types.Entity]{
		Items:    items,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  opts.Offset()+len(items) < total,
	}, nil
}

// ListAllWithValues retrieves every entity with its nested values.
func (s *EntityStore) ListAllWithValues(ctx context.Context) ([]*types.Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+entityColumns+" FROM entities ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list entities: %w", err)
	}
	defer rows.Close()

	entities, err := scanEntities(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*types.Entity, len(entities))
	for _, e := range entities {
		byID[e.ID] = e
	}

	valueRows, err := s.db.QueryContext(ctx,
		"SELECT "+valueColumns+" FROM entity_values ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list values: %w", err)
	}
	defer valueRows.Close()

	for valueRows.Next() {
		v, err := scanValueRow(valueRows)
		if err != nil {
			return nil, err
		}
		if owner, ok := byID[v.EntityID]; ok {
			owner.Values = append(owner.Values, v)
		}
	}
	if err := valueRows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to iterate values: %w", err)
	}

	return entities, nil
}

// Update persists the mutable fields of an existing entity.
func (s *EntityStore) Update(ctx context.Context, entity *types.Entity) error {
	if entity == nil || entity.ID == "" {
		return fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}

	lookupsJSON, err := json.Marshal(entity.Lookups)
	if err != nil {
		return fmt.Errorf("failed to marshal lookups: %w", err)
	}

	entity.UpdatedAt = timeNowUTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE entities
		SET name = $1, lookups = $2, description = $3, weight = $4, foreign_id = $5,
		    updated_at = $6
		WHERE id = $7
	`, entity.Name, string(lookupsJSON), entity.Description, entity.Weight,
		entity.ForeignID, entity.UpdatedAt, entity.ID)
	if err != nil {
		return fmt.Errorf("postgres: failed to update entity: %w", translateErr(err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Delete removes an entity; values and sample links cascade.
func (s *EntityStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM entities WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete entity: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Close is a no-op; the shared pool is owned by Store.
func (s *EntityStore) Close() error { return nil }

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntityFrom(sc rowScanner) (*types.Entity, error) {
	var (
		e           types.Entity
		lookupsJSON []byte
	)
	err := sc.Scan(&e.ID, &e.Name, &lookupsJSON, &e.Description, &e.Builtin,
		&e.Weight, &e.ForeignID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(lookupsJSON, &e.Lookups); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lookups: %w", err)
	}
	return &e, nil
}

func scanEntity(row *sql.Row) (*types.Entity, error) {
	e, err := scanEntityFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to scan entity: %w", err)
	}
	return e, nil
}

func scanEntities(rows *sql.Rows) ([]*types.Entity, error) {
	var out []*types.Entity
	for rows.Next() {
		e, err := scanEntityFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan entity: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to iterate entities: %w", err)
	}
	return out, nil
}
