package strategy

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a strategy ID resolves to nothing.
var ErrNotFound = errors.New("strategy not found")

// CatalogEntry is a user-saved strategy: a registry key plus parameters,
// stored under a numeric ID.
type CatalogEntry struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	RegistryKey string `json:"registryKey"`
	Params      Params `json:"params"`
}

// Catalog stores saved strategies in SQLite.
type Catalog struct {
	db *sql.DB
}

// NewCatalog creates a Catalog on the given database, creating its table if
// needed.
func NewCatalog(db *sql.DB) (*Catalog, error) {
	const schema = `
CREATE TABLE IF NOT EXISTS strategies (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	name         TEXT NOT NULL,
	registry_key TEXT NOT NULL,
	params       TEXT NOT NULL DEFAULT '{}',
	created_at   TEXT NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("creating strategies table: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Create saves a strategy entry and returns it with its assigned ID.
func (c *Catalog) Create(ctx context.Context, e CatalogEntry) (CatalogEntry, error) {
	params, err := json.Marshal(e.Params)
	if err != nil {
		return CatalogEntry{}, fmt.Errorf("encoding params: %w", err)
	}
	res, err := c.db.ExecContext(ctx, `
		INSERT INTO strategies (name, registry_key, params, created_at)
		VALUES (?, ?, ?, ?)`,
		e.Name, e.RegistryKey, string(params), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return CatalogEntry{}, fmt.Errorf("inserting strategy: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return CatalogEntry{}, err
	}
	e.ID = id
	return e, nil
}

// Get returns a saved strategy by numeric ID, or ErrNotFound.
func (c *Catalog) Get(ctx context.Context, id int64) (CatalogEntry, error) {
	var (
		e      CatalogEntry
		params string
	)
	err := c.db.QueryRowContext(ctx, `
		SELECT id, name, registry_key, params FROM strategies WHERE id = ?`, id).
		Scan(&e.ID, &e.Name, &e.RegistryKey, &params)
	if errors.Is(err, sql.ErrNoRows) {
		return CatalogEntry{}, ErrNotFound
	}
	if err != nil {
		return CatalogEntry{}, fmt.Errorf("scanning strategy row: %w", err)
	}
	if err := json.Unmarshal([]byte(params), &e.Params); err != nil {
		return CatalogEntry{}, fmt.Errorf("decoding strategy params: %w", err)
	}
	return e, nil
}
