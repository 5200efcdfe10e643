package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/chatforge/nlukit/internal/storage"
	"github.com/chatforge/nlukit/pkg/types"
)

// LanguageStore implements storage.LanguageStore using SQLite.
type LanguageStore struct {
	db *sql.DB
}

const languageColumns = "id, title, code, is_default, created_at, updated_at"

// Create inserts a new language.
func (s *LanguageStore) Create(ctx context.Context, lang *types.Language) error {
	if lang == nil {
		return storage.ErrInvalidInput
	}
	if lang.Code == "" {
		return fmt.Errorf("%w: language code is required", storage.ErrInvalidInput)
	}

	if lang.ID == "" {
		lang.ID = uuid.NewString()
	}
	touchTimestamps(&lang.CreatedAt, &lang.UpdatedAt)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO languages (id, title, code, is_default, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, lang.ID, lang.Title, lang.Code, lang.IsDefault, lang.CreatedAt, lang.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create language: %w", translateErr(err))
	}
	return nil
}

// GetByCode retrieves a language by its unique code.
func (s *LanguageStore) GetByCode(ctx context.Context, code string) (*types.Language, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+languageColumns+" FROM languages WHERE code = ?", code)
	return scanLanguage(row)
}

// GetDefault retrieves the default language.
func (s *LanguageStore) GetDefault(ctx context.Context) (*types.Language, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+languageColumns+" FROM languages WHERE is_default = 1 LIMIT 1")
	return scanLanguage(row)
}

// List retrieves all languages ordered by code.
func (s *LanguageStore) List(ctx context.Context) ([]*types.Language, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+languageColumns+" FROM languages ORDER BY code ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list languages: %w", err)
	}
	defer rows.Close()

	var out []*types.Language
	for rows.Next() {
		lang, err := scanLanguageFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan language: %w", err)
		}
		out = append(out, lang)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate languages: %w", err)
	}
	return out, nil
}

// Delete removes a language; dependent samples keep their rows with the
// language reference cleared.
func (s *LanguageStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM languages WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete language: %w", err)
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

func scanLanguageFrom(sc rowScanner) (*types.Language, error) {
	var lang types.Language
	err := sc.Scan(&lang.ID, &lang.Title, &lang.Code, &lang.IsDefault,
		&lang.CreatedAt, &lang.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &lang, nil
}

func scanLanguage(row *sql.Row) (*types.Language, error) {
	lang, err := scanLanguageFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan language: %w", err)
	}
	return lang, nil
}
