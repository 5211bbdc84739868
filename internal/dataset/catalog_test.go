package dataset

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"algoace/internal/domain"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	c, err := NewCatalog(db)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	return c
}

func TestCatalogCreateGet(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	ds, err := c.Create(ctx, domain.Dataset{
		Name:     "EURUSD Historical (1h)",
		Category: domain.CategoryForex,
		Format:   domain.FormatCSV,
		Path:     "/data/forex/eurusd_1h.csv",
		Metadata: domain.DatasetMetadata{
			Timeframe:  "1h",
			StartDate:  "2024-01-02",
			EndDate:    "2024-06-28",
			RowCount:   3120,
			Columns:    []string{"timestamp", "open", "high", "low", "close", "volume"},
			Compatible: true,
		},
		Tags: []string{"eurusd", "1h"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ds.ID == 0 {
		t.Fatal("Create did not assign an ID")
	}

	got, err := c.Get(ctx, ds.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != ds.Name || got.Category != domain.CategoryForex || got.Format != domain.FormatCSV {
		t.Errorf("Get returned %+v", got)
	}
	if got.Metadata.RowCount != 3120 || got.Metadata.Timeframe != "1h" || !got.Metadata.Compatible {
		t.Errorf("metadata did not round-trip: %+v", got.Metadata)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "eurusd" {
		t.Errorf("tags did not round-trip: %v", got.Tags)
	}
}

func TestCatalogGetNotFound(t *testing.T) {
	c := newTestCatalog(t)
	if _, err := c.Get(context.Background(), 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get of missing entry returned %v, want ErrNotFound", err)
	}
}

func TestCatalogSearch(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	seed := []domain.Dataset{
		{Name: "eurusd 1h", Category: domain.CategoryForex, Format: domain.FormatCSV, Path: "a.csv",
			Metadata: domain.DatasetMetadata{Timeframe: "1h"}},
		{Name: "eurusd 1d", Category: domain.CategoryForex, Format: domain.FormatCSV, Path: "b.csv",
			Metadata: domain.DatasetMetadata{Timeframe: "1d"}},
		{Name: "btcusd 1h", Category: domain.CategoryCrypto, Format: domain.FormatCSV, Path: "c.csv",
			Metadata: domain.DatasetMetadata{Timeframe: "1h"}},
	}
	for _, ds := range seed {
		if _, err := c.Create(ctx, ds); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	got, err := c.Search(ctx, "eurusd", "1h")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Name != "eurusd 1h" {
		t.Errorf("Search(eurusd, 1h) = %+v, want one entry", got)
	}

	all, err := c.Search(ctx, "eurusd", "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Search(eurusd, any) returned %d entries, want 2", len(all))
	}
}

func TestCatalogUpdateDelete(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	ds, err := c.Create(ctx, domain.Dataset{
		Name: "spy 1d", Category: domain.CategoryStocks, Format: domain.FormatCSV, Path: "old.csv",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	ds.Path = "new.csv"
	ds.Metadata.RowCount = 42
	if err := c.Update(ctx, ds); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := c.Get(ctx, ds.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Path != "new.csv" || got.Metadata.RowCount != 42 {
		t.Errorf("Update not persisted: %+v", got)
	}

	if err := c.Delete(ctx, ds.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := c.Get(ctx, ds.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete returned %v, want ErrNotFound", err)
	}
	if err := c.Delete(ctx, ds.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete returned %v, want ErrNotFound", err)
	}
}
