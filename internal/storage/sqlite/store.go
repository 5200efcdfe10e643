// Package sqlite implements the storage interfaces on SQLite via the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/chatforge/nlukit/internal/storage"
)

// Schema creates all tables and indexes. Cascade rules implement the
// referential contract: deleting an entity removes its values and sample
// links, deleting a sample removes its links, deleting a language clears the
// reference on dependent samples.
const Schema = `
CREATE TABLE IF NOT EXISTS languages (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	code       TEXT NOT NULL UNIQUE,
	is_default INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS entities (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	lookups     TEXT NOT NULL DEFAULT '["keywords"]',
	description TEXT NOT NULL DEFAULT '',
	builtin     INTEGER NOT NULL DEFAULT 0,
	weight      REAL NOT NULL DEFAULT 1 CHECK (weight > 0),
	foreign_id  TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS entity_values (
	id          TEXT PRIMARY KEY,
	entity_id   TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	value       TEXT NOT NULL UNIQUE,
	expressions TEXT NOT NULL DEFAULT '[]',
	metadata    TEXT,
	builtin     INTEGER NOT NULL DEFAULT 0,
	foreign_id  TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_entity_values_entity ON entity_values(entity_id);

CREATE TABLE IF NOT EXISTS samples (
	id          TEXT PRIMARY KEY,
	text        TEXT NOT NULL,
	type        TEXT NOT NULL DEFAULT 'train',
	trained     INTEGER NOT NULL DEFAULT 0,
	language_id TEXT REFERENCES languages(id) ON DELETE SET NULL,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_samples_text ON samples(text);
CREATE INDEX IF NOT EXISTS idx_samples_type ON samples(type);

CREATE TABLE IF NOT EXISTS sample_entities (
	id         TEXT PRIMARY KEY,
	sample_id  TEXT NOT NULL REFERENCES samples(id) ON DELETE CASCADE,
	entity_id  TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	value_id   TEXT NOT NULL REFERENCES entity_values(id) ON DELETE CASCADE,
	start_pos  INTEGER,
	end_pos    INTEGER,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sample_entities_sample ON sample_entities(sample_id);
CREATE INDEX IF NOT EXISTS idx_sample_entities_pair ON sample_entities(entity_id, value_id);
`

// Store bundles the SQLite-backed stores over one shared connection.
type Store struct {
	db *sql.DB

	entities       *EntityStore
	values         *ValueStore
	samples        *SampleStore
	sampleEntities *SampleEntityStore
	languages      *LanguageStore
}

// Open opens a SQLite database, configures WAL mode, and creates the schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Using a single open
	// connection serialises writes and avoids SQLITE_BUSY errors under
	// concurrent load. WAL mode lets readers proceed without blocking the
	// writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	s := &Store{db: db}
	s.entities = &EntityStore{db: db}
	s.values = &ValueStore{db: db}
	s.samples = &SampleStore{db: db}
	s.sampleEntities = &SampleEntityStore{db: db}
	s.languages = &LanguageStore{db: db}
	return s, nil
}

// Entities returns the entity store.
func (s *Store) Entities() storage.EntityStore { return s.entities }

// Values returns the value store.
func (s *Store) Values() storage.ValueStore { return s.values }

// Samples returns the sample store.
func (s *Store) Samples() storage.SampleStore { return s.samples }

// SampleEntities returns the sample-entity link store.
func (s *Store) SampleEntities() storage.SampleEntityStore { return s.sampleEntities }

// Languages returns the language store.
func (s *Store) Languages() storage.LanguageStore { return s.languages }

// GetDB exposes the database handle for operational endpoints.
func (s *Store) GetDB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// translateErr maps driver-level errors onto the storage sentinel errors.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", storage.ErrConflict, err)
	}
	return err
}

func timeNowUTC() time.Time { return time.Now().UTC() }

// touchTimestamps fills zero created/updated timestamps in place.
func touchTimestamps(createdAt, updatedAt *time.Time) {
	now := timeNowUTC()
	if createdAt.IsZero() {
		*createdAt = now
	}
	if updatedAt.IsZero() {
		*updatedAt = now
	}
}
