package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ModelRecord is one row of the model catalog
type ModelRecord struct {
	Kind      string    `json:"kind"`
	Name      string    `json:"name"`
	Language  string    `json:"language,omitempty"`
	LoadedAt  time.Time `json:"loaded_at"`
	LoadMS    int64     `json:"load_ms"`
	LoadCount int       `json:"load_count"`
}

// ModelCatalog records which models this worker has loaded
type ModelCatalog struct {
	db *sql.DB
}

// NewModelCatalog opens (or creates) the catalog database
func NewModelCatalog(dbPath string) (*ModelCatalog, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Loads for several languages can finish at once
	db.SetMaxOpenConns(1)

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS models (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT '',
		loaded_at INTEGER NOT NULL,
		load_ms INTEGER NOT NULL,
		load_count INTEGER NOT NULL DEFAULT 1,
		UNIQUE(kind, name, language)
	);

	CREATE INDEX IF NOT EXISTS idx_models_loaded_at ON models(loaded_at);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &ModelCatalog{db: db}, nil
}

// RecordLoad upserts the catalog row for a model that just finished loading
func (c *ModelCatalog) RecordLoad(ctx context.Context, kind, name, language string, elapsed time.Duration) error {
	query := `
	INSERT INTO models (kind, name, language, loaded_at, load_ms, load_count)
	VALUES (?, ?, ?, ?, ?, 1)
	ON CONFLICT(kind, name, language) DO UPDATE SET
		loaded_at = excluded.loaded_at,
		load_ms = excluded.load_ms,
		load_count = models.load_count + 1
	`

	_, err := c.db.ExecContext(ctx, query, kind, name, language,
		time.Now().UnixMilli(), elapsed.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to record model load: %w", err)
	}
	return nil
}

// ListModels returns catalog rows, most recently loaded first
func (c *ModelCatalog) ListModels(ctx context.Context, limit int) ([]ModelRecord, error) {
	query := `
	SELECT kind, name, language, loaded_at, load_ms, load_count
	FROM models ORDER BY loaded_at DESC, id DESC LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer rows.Close()

	models := []ModelRecord{}
	for rows.Next() {
		var (
			rec      ModelRecord
			loadedAt int64
		)
		if err := rows.Scan(&rec.Kind, &rec.Name, &rec.Language, &loadedAt, &rec.LoadMS, &rec.LoadCount); err != nil {
			return nil, fmt.Errorf("failed to scan model row: %w", err)
		}
		rec.LoadedAt = time.UnixMilli(loadedAt).UTC()
		models = append(models, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	return models, nil
}

// Close closes the database connection
func (c *ModelCatalog) Close() error {
	return c.db.Close()
}
