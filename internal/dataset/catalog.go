// Package dataset manages the historical price data catalog: locating,
// validating, and self-healing catalog entries against the files on disk,
// and downloading new datasets from the market-data API.
package dataset

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"algoace/internal/domain"
)

// ErrNotFound is returned when a catalog entry does not exist.
var ErrNotFound = errors.New("dataset not found")

// Catalog stores dataset entries in SQLite.
type Catalog struct {
	db *sql.DB
}

// NewCatalog creates a Catalog on the given database, creating its table if
// needed.
func NewCatalog(db *sql.DB) (*Catalog, error) {
	const schema = `
CREATE TABLE IF NOT EXISTS datasets (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	name         TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	category     TEXT NOT NULL,
	format       TEXT NOT NULL,
	path         TEXT NOT NULL,
	last_updated TEXT NOT NULL,
	metadata     TEXT NOT NULL DEFAULT '{}',
	tags         TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_datasets_name ON datasets(name);`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("creating datasets table: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Create inserts a new dataset entry and returns it with its assigned ID.
func (c *Catalog) Create(ctx context.Context, ds domain.Dataset) (domain.Dataset, error) {
	metadata, err := json.Marshal(ds.Metadata)
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("encoding metadata: %w", err)
	}
	tags, err := json.Marshal(ds.Tags)
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("encoding tags: %w", err)
	}

	ds.LastUpdated = time.Now().UTC()
	res, err := c.db.ExecContext(ctx, `
		INSERT INTO datasets (name, description, category, format, path, last_updated, metadata, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ds.Name, ds.Description, string(ds.Category), string(ds.Format), ds.Path,
		ds.LastUpdated.Format(time.RFC3339Nano), string(metadata), string(tags),
	)
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("inserting dataset: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Dataset{}, err
	}
	ds.ID = id
	return ds, nil
}

// Get returns a dataset by ID, or ErrNotFound.
func (c *Catalog) Get(ctx context.Context, id int64) (domain.Dataset, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, name, description, category, format, path, last_updated, metadata, tags
		FROM datasets WHERE id = ?`, id)
	return scanDataset(row)
}

// Search returns datasets whose name contains the search term, optionally
// restricted to a timeframe.
func (c *Catalog) Search(ctx context.Context, term, timeframe string) ([]domain.Dataset, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, name, description, category, format, path, last_updated, metadata, tags
		FROM datasets WHERE name LIKE ? ORDER BY id`, "%"+term+"%")
	if err != nil {
		return nil, fmt.Errorf("searching datasets: %w", err)
	}
	defer rows.Close()

	var out []domain.Dataset
	for rows.Next() {
		ds, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		if timeframe != "" && ds.Metadata.Timeframe != timeframe {
			continue
		}
		out = append(out, ds)
	}
	return out, rows.Err()
}

// Update rewrites a dataset entry in full.
func (c *Catalog) Update(ctx context.Context, ds domain.Dataset) error {
	metadata, err := json.Marshal(ds.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	tags, err := json.Marshal(ds.Tags)
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}

	res, err := c.db.ExecContext(ctx, `
		UPDATE datasets
		SET name = ?, description = ?, category = ?, format = ?, path = ?, last_updated = ?, metadata = ?, tags = ?
		WHERE id = ?`,
		ds.Name, ds.Description, string(ds.Category), string(ds.Format), ds.Path,
		time.Now().UTC().Format(time.RFC3339Nano), string(metadata), string(tags), ds.ID,
	)
	if err != nil {
		return fmt.Errorf("updating dataset %d: %w", ds.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a dataset entry.
func (c *Catalog) Delete(ctx context.Context, id int64) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM datasets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting dataset %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDataset(s scanner) (domain.Dataset, error) {
	var (
		ds          domain.Dataset
		category    string
		format      string
		lastUpdated string
		metadata    string
		tags        string
	)
	err := s.Scan(&ds.ID, &ds.Name, &ds.Description, &category, &format, &ds.Path, &lastUpdated, &metadata, &tags)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Dataset{}, ErrNotFound
	}
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("scanning dataset row: %w", err)
	}

	ds.Category = domain.DatasetCategory(category)
	ds.Format = domain.DatasetFormat(strings.ToLower(format))
	if ts, err := time.Parse(time.RFC3339Nano, lastUpdated); err == nil {
		ds.LastUpdated = ts
	}
	if err := json.Unmarshal([]byte(metadata), &ds.Metadata); err != nil {
		return domain.Dataset{}, fmt.Errorf("decoding metadata for dataset %d: %w", ds.ID, err)
	}
	if err := json.Unmarshal([]byte(tags), &ds.Tags); err != nil {
		return domain.Dataset{}, fmt.Errorf("decoding tags for dataset %d: %w", ds.ID, err)
	}
	return ds, nil
}
