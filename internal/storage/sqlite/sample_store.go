package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/chatforge/nlukit/internal/storage"
	"github.com/chatforge/nlukit/pkg/types"
)

// SampleStore implements storage.SampleStore using SQLite.
type SampleStore struct {
	db *sql.DB
}

const sampleColumns = "id, text, type, trained, language_id, created_at, updated_at"

// Create inserts a new sample.
func (s *SampleStore) Create(ctx context.Context, sample *types.Sample) error {
	if sample == nil {
		return storage.ErrInvalidInput
	}
	if sample.Text == "" {
		return fmt.Errorf("%w: sample text is required", storage.ErrInvalidInput)
	}

	if sample.ID == "" {
		sample.ID = uuid.NewString()
	}
	if sample.Type == "" {
		sample.Type = types.SampleTrain
	}
	touchTimestamps(&sample.CreatedAt, &sample.UpdatedAt)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO samples (id, text, type, trained, language_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sample.ID, sample.Text, string(sample.Type), sample.Trained,
		nullString(sample.LanguageID), sample.CreatedAt, sample.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create sample: %w", translateErr(err))
	}
	return nil
}

// Get retrieves a sample by ID.
func (s *SampleStore) Get(ctx context.Context, id string) (*types.Sample, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+sampleColumns+" FROM samples WHERE id = ?", id)
	sample, err := scanSampleFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan sample: %w", err)
	}
	return sample, nil
}

// Find retrieves samples matching the filter with pagination.
func (s *SampleStore) Find(ctx context.Context, filter storage.SampleFilter, opts storage.ListOptions) (*storage.PaginatedResult[types.Sample], error) {
	opts.Normalize()

	where, args := buildSampleWhere(filter)

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM samples"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count samples: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT "+sampleColumns+" FROM samples%s ORDER BY %s %s LIMIT ? OFFSET ?",
		where, opts.SortBy, opts.SortOrder)
	rows, err := s.db.QueryContext(ctx, query, append(args, opts.Limit, opts.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	items, err := scanSamples(rows)
	if err != nil {
		return nil, err
	}

	return &storage.PaginatedResult[types.Sample]{
		Items:    items,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  opts.Offset()+len(items) < total,
	}, nil
}

// FindFull is Find with languages and sample-entity links populated.
func (s *SampleStore) FindFull(ctx context.Context, filter storage.SampleFilter, opts storage.ListOptions) (*storage.PaginatedResult[types.Sample], error) {
	page, err := s.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	if err := s.populate(ctx, page.Items); err != nil {
		return nil, err
	}
	return page, nil
}

// FindByPattern retrieves samples whose annotation tag-set is a superset of
// the query's required pairs.
func (s *SampleStore) FindByPattern(ctx context.Context, query storage.PatternQuery, opts storage.ListOptions) (*storage.PaginatedResult[types.Sample], error) {
	if len(query.Pairs) == 0 {
		return s.Find(ctx, query.Filter, opts)
	}
	opts.Normalize()

	ids, err := s.matchPattern(ctx, query)
	if err != nil {
		return nil, err
	}

	total := len(ids)
	start := opts.Offset()
	if start > total {
		start = total
	}
	end := start + opts.Limit
	if end > total {
		end = total
	}
	pageIDs := ids[start:end]

	items, err := s.fetchByIDs(ctx, pageIDs)
	if err != nil {
		return nil, err
	}

	return &storage.PaginatedResult[types.Sample]{
		Items:    items,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  end < total,
	}, nil
}

// FindFullByPattern is FindByPattern with relations populated.
func (s *SampleStore) FindFullByPattern(ctx context.Context, query storage.PatternQuery, opts storage.ListOptions) (*storage.PaginatedResult[types.Sample], error) {
	page, err := s.FindByPattern(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	if err := s.populate(ctx, page.Items); err != nil {
		return nil, err
	}
	return page, nil
}

// CountByPattern counts samples matching the pattern query.
func (s *SampleStore) CountByPattern(ctx context.Context, query storage.PatternQuery) (int, error) {
	if len(query.Pairs) == 0 {
		where, args := buildSampleWhere(query.Filter)
		var total int
		if err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM samples"+where, args...).Scan(&total); err != nil {
			return 0, fmt.Errorf("failed to count samples: %w", err)
		}
		return total, nil
	}

	ids, err := s.matchPattern(ctx, query)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// matchPattern executes the shared pattern-query plan and returns matching
// sample IDs ordered by sample creation time descending. Steps 1-2 run in
// SQL (filter + restriction to required pairs); the cardinality pre-filter
// and the exact set-intersection check run on the grouped rows.
func (s *SampleStore) matchPattern(ctx context.Context, query storage.PatternQuery) ([]string, error) {
	required := query.DedupePairs()

	conds, args := sampleConds(query.Filter, "s.")
	where := " WHERE 1=1"
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	pairConds := make([]string, 0, len(required))
	for _, p := range required {
		pairConds = append(pairConds, "(se.entity_id = ? AND se.value_id = ?)")
		args = append(args, p.EntityID, p.ValueID)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, se.entity_id, se.value_id
		FROM samples s
		JOIN sample_entities se ON se.sample_id = s.id`+where+`
		AND (`+strings.Join(pairConds, " OR ")+`)
		ORDER BY s.created_at DESC, s.id DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run pattern query: %w", err)
	}
	defer rows.Close()

	type candidate struct {
		matched []storage.EntityValuePair
	}
	order := make([]string, 0)
	bySample := make(map[string]*candidate)
	for rows.Next() {
		var sampleID string
		var pair storage.EntityValuePair
		if err := rows.Scan(&sampleID, &pair.EntityID, &pair.ValueID); err != nil {
			return nil, fmt.Errorf("failed to scan pattern row: %w", err)
		}
		c, ok := bySample[sampleID]
		if !ok {
			c = &candidate{}
			bySample[sampleID] = c
			order = append(order, sampleID)
		}
		c.matched = append(c.matched, pair)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pattern rows: %w", err)
	}

	ids := make([]string, 0, len(order))
	for _, id := range order {
		c := bySample[id]
		// Cardinality pre-filter: not enough matched rows, cannot cover.
		if len(c.matched) < len(required) {
			continue
		}
		if storage.CoversPairs(c.matched, required) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Update persists the mutable fields of an existing sample.
func (s *SampleStore) Update(ctx context.Context, sample *types.Sample) error {
	if sample == nil || sample.ID == "" {
		return fmt.Errorf("%w: sample ID is required", storage.ErrInvalidInput)
	}

	sample.UpdatedAt = timeNowUTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE samples
		SET text = ?, type = ?, trained = ?, language_id = ?, updated_at = ?
		WHERE id = ?
	`, sample.Text, string(sample.Type), sample.Trained,
		nullString(sample.LanguageID), sample.UpdatedAt, sample.ID)
	if err != nil {
		return fmt.Errorf("failed to update sample: %w", err)
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

// MarkTrained sets the trained flag on every sample of the given type.
func (s *SampleStore) MarkTrained(ctx context.Context, sampleType types.SampleType, trained bool) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE samples SET trained = ?, updated_at = ? WHERE type = ?",
		trained, timeNowUTC(), string(sampleType))
	if err != nil {
		return 0, fmt.Errorf("failed to mark samples trained: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(affected), nil
}

// Delete removes a sample; links cascade.
func (s *SampleStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM samples WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete sample: %w", err)
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

// populate attaches languages and sample-entity links to the given samples.
func (s *SampleStore) populate(ctx context.Context, samples []*types.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	byID := make(map[string]*types.Sample, len(samples))
	ids := make([]interface{}, 0, len(samples))
	placeholders := make([]string, 0, len(samples))
	for _, sample := range samples {
		byID[sample.ID] = sample
		ids = append(ids, sample.ID)
		placeholders = append(placeholders, "?")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sample_id, entity_id, value_id, start_pos, end_pos, created_at, updated_at
		FROM sample_entities
		WHERE sample_id IN (`+strings.Join(placeholders, ",")+`)
		ORDER BY created_at ASC
	`, ids...)
	if err != nil {
		return fmt.Errorf("failed to query sample links: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		link, err := scanSampleEntityFrom(rows)
		if err != nil {
			return fmt.Errorf("failed to scan sample link: %w", err)
		}
		if owner, ok := byID[link.SampleID]; ok {
			owner.Entities = append(owner.Entities, link)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate sample links: %w", err)
	}

	for _, sample := range samples {
		if sample.LanguageID == "" {
			continue
		}
		var lang types.Language
		err := s.db.QueryRowContext(ctx,
			"SELECT id, title, code, is_default, created_at, updated_at FROM languages WHERE id = ?",
			sample.LanguageID,
		).Scan(&lang.ID, &lang.Title, &lang.Code, &lang.IsDefault, &lang.CreatedAt, &lang.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to load sample language: %w", err)
		}
		sample.Language = &lang
	}
	return nil
}

// fetchByIDs loads samples preserving the order of ids.
func (s *SampleStore) fetchByIDs(ctx context.Context, ids []string) ([]*types.Sample, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+sampleColumns+" FROM samples WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch samples: %w", err)
	}
	defer rows.Close()

	fetched, err := scanSamples(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*types.Sample, len(fetched))
	for _, sample := range fetched {
		byID[sample.ID] = sample
	}
	out := make([]*types.Sample, 0, len(ids))
	for _, id := range ids {
		if sample, ok := byID[id]; ok {
			out = append(out, sample)
		}
	}
	return out, nil
}

func buildSampleWhere(filter storage.SampleFilter) (string, []interface{}) {
	conds, args := sampleConds(filter, "")
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// sampleConds builds filter conditions, optionally qualified with a table
// alias prefix for use inside joins.
func sampleConds(filter storage.SampleFilter, prefix string) ([]string, []interface{}) {
	conds := make([]string, 0, 4)
	args := make([]interface{}, 0, 4)

	if filter.Text != "" {
		conds = append(conds, prefix+"text = ?")
		args = append(args, filter.Text)
	}
	if filter.Type != "" {
		conds = append(conds, prefix+"type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.LanguageID != "" {
		conds = append(conds, prefix+"language_id = ?")
		args = append(args, filter.LanguageID)
	}
	if filter.Trained != nil {
		conds = append(conds, prefix+"trained = ?")
		args = append(args, *filter.Trained)
	}
	return conds, args
}

func scanSampleFrom(sc rowScanner) (*types.Sample, error) {
	var (
		sample     types.Sample
		sampleType string
		languageID sql.NullString
	)
	err := sc.Scan(&sample.ID, &sample.Text, &sampleType, &sample.Trained,
		&languageID, &sample.CreatedAt, &sample.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sample.Type = types.SampleType(sampleType)
	if languageID.Valid {
		sample.LanguageID = languageID.String
	}
	return &sample, nil
}

func scanSamples(rows *sql.Rows) ([]*types.Sample, error) {
	var out []*types.Sample
	for rows.Next() {
		sample, err := scanSampleFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		out = append(out, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate samples: %w", err)
	}
	return out, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
