package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/chatforge/nlukit/internal/storage"
	"github.com/chatforge/nlukit/pkg/types"
)

// SampleEntityStore implements storage.SampleEntityStore using PostgreSQL.
type SampleEntityStore struct {
	db *sql.DB
}

const sampleEntityColumns = "id, sample_id, entity_id, value_id, start_pos, end_pos, created_at, updated_at"

// Create inserts a new link row.
func (s *SampleEntityStore) Create(ctx context.Context, link *types.SampleEntity) error {
	if link == nil {
		return storage.ErrInvalidInput
	}
	if link.SampleID == "" || link.EntityID == "" || link.ValueID == "" {
		return fmt.Errorf("%w: sample, entity and value references are required", storage.ErrInvalidInput)
	}

	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	touchTimestamps(&link.CreatedAt, &link.UpdatedAt)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sample_entities (id, sample_id, entity_id, value_id, start_pos, end_pos, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, link.ID, link.SampleID, link.EntityID, link.ValueID,
		link.Start, link.End, link.CreatedAt, link.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to create sample link: %w", translateErr(err))
	}
	return nil
}

// CreateMany inserts a batch of link rows in one transaction.
func (s *SampleEntityStore) CreateMany(ctx context.Context, links []*types.SampleEntity) error {
	if len(links) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, link := range links {
		if link.SampleID == "" || link.EntityID == "" || link.ValueID == "" {
			return fmt.Errorf("%w: sample, entity and value references are required", storage.ErrInvalidInput)
		}
		if link.ID == "" {
			link.ID = uuid.NewString()
		}
		touchTimestamps(&link.CreatedAt, &link.UpdatedAt)

		_, err := tx.ExecContext(ctx, `
			INSERT INTO sample_entities (id, sample_id, entity_id, value_id, start_pos, end_pos, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, link.ID, link.SampleID, link.EntityID, link.ValueID,
			link.Start, link.End, link.CreatedAt, link.UpdatedAt)
		if err != nil {
			return fmt.Errorf("postgres: failed to create sample link: %w", translateErr(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: failed to commit link batch: %w", err)
	}
	return nil
}

// FindOneOrCreate looks up a link with the same sample, entity, value and
// span, creating it when absent.
func (s *SampleEntityStore) FindOneOrCreate(ctx context.Context, link *types.SampleEntity) (*types.SampleEntity, error) {
	if link == nil {
		return nil, storage.ErrInvalidInput
	}

	query := "SELECT " + sampleEntityColumns + ` FROM sample_entities
		WHERE sample_id = $1 AND entity_id = $2 AND value_id = $3`
	args := []interface{}{link.SampleID, link.EntityID, link.ValueID}

	if link.Start != nil {
		query += fmt.Sprintf(" AND start_pos = $%d", len(args)+1)
		args = append(args, *link.Start)
	} else {
		query += " AND start_pos IS NULL"
	}
	if link.End != nil {
		query += fmt.Sprintf(" AND end_pos = $%d", len(args)+1)
		args = append(args, *link.End)
	} else {
		query += " AND end_pos IS NULL"
	}

	row := s.db.QueryRowContext(ctx, query, args...)
	existing, err := scanSampleEntityFrom(row)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("postgres: failed to scan sample link: %w", err)
	}

	if err := s.Create(ctx, link); err != nil {
		return nil, err
	}
	return link, nil
}

// ListBySample retrieves all links owned by the given sample.
func (s *SampleEntityStore) ListBySample(ctx context.Context, sampleID string) ([]*types.SampleEntity, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+sampleEntityColumns+" FROM sample_entities WHERE sample_id = $1 ORDER BY created_at ASC",
		sampleID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list sample links: %w", err)
	}
	defer rows.Close()

	var out []*types.SampleEntity
	for rows.Next() {
		link, err := scanSampleEntityFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan sample link: %w", err)
		}
		out = append(out, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to iterate sample links: %w", err)
	}
	return out, nil
}

// DeleteBySample removes every link owned by the given sample.
func (s *SampleEntityStore) DeleteBySample(ctx context.Context, sampleID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM sample_entities WHERE sample_id = $1", sampleID)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to delete sample links: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to read affected rows: %w", err)
	}
	return int(affected), nil
}

func scanSampleEntityFrom(sc rowScanner) (*types.SampleEntity, error) {
	var (
		link  types.SampleEntity
		start sql.NullInt64
		end   sql.NullInt64
	)
	err := sc.Scan(&link.ID, &link.SampleID, &link.EntityID, &link.ValueID,
		&start, &end, &link.CreatedAt, &link.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if start.Valid {
		v := int(start.Int64)
		link.Start = &v
	}
	if end.Valid {
		v := int(end.Int64)
		link.End = &v
	}
	return &link, nil
}
