package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/chatforge/nlukit/internal/storage"
	"github.com/chatforge/nlukit/pkg/types"
)

// ValueStore implements storage.ValueStore using SQLite.
type ValueStore struct {
	db *sql.DB
}

const valueColumns = "id, entity_id, value, expressions, metadata, builtin, foreign_id, created_at, updated_at"

// Create inserts a new value.
func (s *ValueStore) Create(ctx context.Context, value *types.Value) error {
	if value == nil {
		return storage.ErrInvalidInput
	}
	if value.Value == "" {
		return fmt.Errorf("%w: value text is required", storage.ErrInvalidInput)
	}
	if value.EntityID == "" {
		return fmt.Errorf("%w: value entity reference is required", storage.ErrInvalidInput)
	}

	if value.ID == "" {
		value.ID = uuid.NewString()
	}
	if value.Expressions == nil {
		value.Expressions = []string{}
	}
	touchTimestamps(&value.CreatedAt, &value.UpdatedAt)

	expressionsJSON, metadataJSON, err := marshalValueJSON(value)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entity_values (id, entity_id, value, expressions, metadata, builtin, foreign_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, value.ID, value.EntityID, value.Value, expressionsJSON, metadataJSON,
		value.Builtin, value.ForeignID, value.CreatedAt, value.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create value: %w", translateErr(err))
	}
	return nil
}

// CreateMany inserts a batch of values in one transaction.
func (s *ValueStore) CreateMany(ctx context.Context, values []*types.Value) error {
	if len(values) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, value := range values {
		if value.Value == "" || value.EntityID == "" {
			return fmt.Errorf("%w: value text and entity reference are required", storage.ErrInvalidInput)
		}
		if value.ID == "" {
			value.ID = uuid.NewString()
		}
		if value.Expressions == nil {
			value.Expressions = []string{}
		}
		touchTimestamps(&value.CreatedAt, &value.UpdatedAt)

		expressionsJSON, metadataJSON, err := marshalValueJSON(value)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO entity_values (id, entity_id, value, expressions, metadata, builtin, foreign_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, value.ID, value.EntityID, value.Value, expressionsJSON, metadataJSON,
			value.Builtin, value.ForeignID, value.CreatedAt, value.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create value %q: %w", value.Value, translateErr(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit value batch: %w", err)
	}
	return nil
}

// Get retrieves a value by ID.
func (s *ValueStore) Get(ctx context.Context, id string) (*types.Value, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+valueColumns+" FROM entity_values WHERE id = ?", id)
	return scanValue(row)
}

// GetByValue retrieves a value row by its unique value string.
func (s *ValueStore) GetByValue(ctx context.Context, value string) (*types.Value, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+valueColumns+" FROM entity_values WHERE value = ?", value)
	return scanValue(row)
}

// FindByValues retrieves every row whose value string is in values.
func (s *ValueStore) FindByValues(ctx context.Context, values []string) ([]*types.Value, error) {
	if len(values) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(values))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+valueColumns+" FROM entity_values WHERE value IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query values: %w", err)
	}
	defer rows.Close()

	return scanValues(rows)
}

// FindOneOrCreate looks up a value by its text and creates defaults when absent.
func (s *ValueStore) FindOneOrCreate(ctx context.Context, value string, defaults *types.Value) (*types.Value, error) {
	existing, err := s.GetByValue(ctx, value)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	if defaults == nil {
		defaults = &types.Value{}
	}
	defaults.Value = value
	if err := s.Create(ctx, defaults); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return s.GetByValue(ctx, value)
		}
		return nil, err
	}
	return defaults, nil
}

// ListByEntity retrieves all values attached to the given entity.
func (s *ValueStore) ListByEntity(ctx context.Context, entityID string) ([]*types.Value, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+valueColumns+" FROM entity_values WHERE entity_id = ? ORDER BY created_at ASC", entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list values: %w", err)
	}
	defer rows.Close()

	return scanValues(rows)
}

// List retrieves values with pagination.
func (s *ValueStore) List(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Value], error) {
	opts.Normalize()

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entity_values").Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count values: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT "+valueColumns+" FROM entity_values ORDER BY %s %s LIMIT ? OFFSET ?",
		opts.SortBy, opts.SortOrder)
	rows, err := s.db.QueryContext(ctx, query, opts.Limit, opts.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to list values: %w", err)
	}
	defer rows.Close()

	items, err := scanValues(rows)
	if err != nil {
		return nil, err
	}

	return &storage.PaginatedResult[types.Value]{
		Items:    items,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  opts.Offset()+len(items) < total,
	}, nil
}

// Update persists the mutable fields of an existing value.
func (s *ValueStore) Update(ctx context.Context, value *types.Value) error {
	if value == nil || value.ID == "" {
		return fmt.Errorf("%w: value ID is required", storage.ErrInvalidInput)
	}

	expressionsJSON, metadataJSON, err := marshalValueJSON(value)
	if err != nil {
		return err
	}

	value.UpdatedAt = timeNowUTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE entity_values
		SET value = ?, expressions = ?, metadata = ?, foreign_id = ?, updated_at = ?
		WHERE id = ?
	`, value.Value, expressionsJSON, metadataJSON, value.ForeignID,
		value.UpdatedAt, value.ID)
	if err != nil {
		return fmt.Errorf("failed to update value: %w", translateErr(err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Delete removes a value; sample links cascade.
func (s *ValueStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM entity_values WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete value: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func marshalValueJSON(value *types.Value) (expressions string, metadata interface{}, err error) {
	expressionsBytes, err := json.Marshal(value.Expressions)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal expressions: %w", err)
	}
	if value.Metadata == nil {
		return string(expressionsBytes), nil, nil
	}
	metadataBytes, err := json.Marshal(value.Metadata)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(expressionsBytes), string(metadataBytes), nil
}

func scanValueFrom(sc rowScanner) (*types.Value, error) {
	var (
		v               types.Value
		expressionsJSON string
		metadataJSON    sql.NullString
	)
	err := sc.Scan(&v.ID, &v.EntityID, &v.Value, &expressionsJSON, &metadataJSON,
		&v.Builtin, &v.ForeignID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(expressionsJSON), &v.Expressions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal expressions: %w", err)
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &v.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &v, nil
}

func scanValue(row *sql.Row) (*types.Value, error) {
	v, err := scanValueFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan value: %w", err)
	}
	return v, nil
}

func scanValueRow(rows *sql.Rows) (*types.Value, error) {
	v, err := scanValueFrom(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan value: %w", err)
	}
	return v, nil
}

func scanValues(rows *sql.Rows) ([]*types.Value, error) {
	var out []*types.Value
	for rows.Next() {
		v, err := scanValueRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate values: %w", err)
	}
	return out, nil
}
