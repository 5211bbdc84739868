package dataset

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"algoace/internal/domain"
)

const fixtureCSV = "timestamp,open,high,low,close,volume\n" +
	"2024-01-02,100,105,99,104,1000\n" +
	"2024-01-03,104,110,103,108,1500\n" +
	"2024-01-04,108,112,106,111,1200\n"

func seedDataset(t *testing.T, c *Catalog, ds domain.Dataset) domain.Dataset {
	t.Helper()
	created, err := c.Create(context.Background(), ds)
	if err != nil {
		t.Fatalf("seeding dataset: %v", err)
	}
	return created
}

func TestResolveValid(t *testing.T) {
	c := newTestCatalog(t)
	dataDir := t.TempDir()
	path := writeCSV(t, dataDir, "spy_1d.csv", fixtureCSV)

	seedDataset(t, c, domain.Dataset{
		Name: "spy 1d", Category: domain.CategoryStocks, Format: domain.FormatCSV, Path: path,
		Metadata: domain.DatasetMetadata{
			Timeframe: "1d", StartDate: "2024-01-02", EndDate: "2024-01-04", RowCount: 3, Compatible: true,
		},
	})

	r := NewResolver(c, dataDir)
	res, err := r.Resolve(context.Background(), "spy", "1d")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(res.Valid) != 1 || len(res.Invalid) != 0 {
		t.Fatalf("Resolve = %d valid, %d invalid", len(res.Valid), len(res.Invalid))
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}
}

func TestResolveNoCandidates(t *testing.T) {
	c := newTestCatalog(t)
	r := NewResolver(c, t.TempDir())

	_, err := r.Resolve(context.Background(), "spy", "1d")
	if !errors.Is(err, ErrNoValidDataset) {
		t.Errorf("Resolve returned %v, want ErrNoValidDataset", err)
	}
}

func TestResolveHealsStaleMetadata(t *testing.T) {
	c := newTestCatalog(t)
	dataDir := t.TempDir()
	path := writeCSV(t, dataDir, "spy_1d.csv", fixtureCSV)

	// Stale row count and date range.
	ds := seedDataset(t, c, domain.Dataset{
		Name: "spy 1d", Category: domain.CategoryStocks, Format: domain.FormatCSV, Path: path,
		Metadata: domain.DatasetMetadata{
			Timeframe: "1d", StartDate: "2023-01-01", EndDate: "2023-12-31", RowCount: 9999, Compatible: true,
		},
	})

	r := NewResolver(c, dataDir)
	res, err := r.Resolve(context.Background(), "spy", "1d")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(res.Valid) != 1 {
		t.Fatalf("expected one valid dataset, got %d", len(res.Valid))
	}
	got := res.Valid[0]
	if got.Metadata.RowCount != 3 || got.Metadata.StartDate != "2024-01-02" || got.Metadata.EndDate != "2024-01-04" {
		t.Errorf("resolved metadata not corrected: %+v", got.Metadata)
	}

	// The heal must be persisted back into the catalog.
	stored, err := c.Get(context.Background(), ds.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Metadata.RowCount != 3 || stored.Metadata.StartDate != "2024-01-02" {
		t.Errorf("catalog not healed: %+v", stored.Metadata)
	}
}

func TestResolveFallbackPath(t *testing.T) {
	c := newTestCatalog(t)
	dataDir := t.TempDir()

	// Stored path is stale; the real file lives at the conventional location.
	stocksDir := filepath.Join(dataDir, "stocks")
	if err := os.MkdirAll(stocksDir, 0o755); err != nil {
		t.Fatal(err)
	}
	real := writeCSV(t, stocksDir, "spy_1d_2024.csv", fixtureCSV)

	ds := seedDataset(t, c, domain.Dataset{
		Name: "spy 1d", Category: domain.CategoryStocks, Format: domain.FormatCSV,
		Path: filepath.Join(dataDir, "gone", "spy.csv"),
		Metadata: domain.DatasetMetadata{
			Timeframe: "1d", StartDate: "2024-01-02", EndDate: "2024-01-04", RowCount: 3, Compatible: true,
		},
	})

	r := NewResolver(c, dataDir)
	res, err := r.Resolve(context.Background(), "spy", "1d")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(res.Valid) != 1 {
		t.Fatalf("expected fallback to heal the entry, got %d valid / %d invalid: %+v",
			len(res.Valid), len(res.Invalid), res.Invalid)
	}
	if res.Valid[0].Path != real {
		t.Errorf("resolved path = %s, want %s", res.Valid[0].Path, real)
	}
	if len(res.Warnings) == 0 {
		t.Error("expected a stale-path warning")
	}

	stored, err := c.Get(context.Background(), ds.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Path != real {
		t.Errorf("catalog path not healed: %s", stored.Path)
	}
}

func TestResolveMissingFileNoFallback(t *testing.T) {
	c := newTestCatalog(t)
	dataDir := t.TempDir()

	seedDataset(t, c, domain.Dataset{
		Name: "spy 1d", Category: domain.CategoryStocks, Format: domain.FormatCSV,
		Path:     filepath.Join(dataDir, "missing.csv"),
		Metadata: domain.DatasetMetadata{Timeframe: "1d"},
	})

	r := NewResolver(c, dataDir)
	res, err := r.Resolve(context.Background(), "spy", "1d")
	if !errors.Is(err, ErrNoValidDataset) {
		t.Fatalf("Resolve returned %v, want ErrNoValidDataset", err)
	}
	if len(res.Invalid) != 1 || len(res.Invalid[0].Errors) == 0 {
		t.Errorf("expected one invalid candidate with errors, got %+v", res.Invalid)
	}
}

func TestResolveIncompatibleWarns(t *testing.T) {
	c := newTestCatalog(t)
	dataDir := t.TempDir()
	path := writeCSV(t, dataDir, "spy_1d.csv", fixtureCSV)

	seedDataset(t, c, domain.Dataset{
		Name: "spy 1d", Category: domain.CategoryStocks, Format: domain.FormatCSV, Path: path,
		Metadata: domain.DatasetMetadata{
			Timeframe: "1d", StartDate: "2024-01-02", EndDate: "2024-01-04", RowCount: 3, Compatible: false,
		},
	})

	r := NewResolver(c, dataDir)
	res, err := r.Resolve(context.Background(), "spy", "1d")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(res.Valid) != 1 {
		t.Fatalf("incompatible dataset must still resolve, got %d valid", len(res.Valid))
	}
	if len(res.Warnings) == 0 {
		t.Error("expected a compatibility warning")
	}
}

func TestCheckAvailability(t *testing.T) {
	c := newTestCatalog(t)
	r := NewResolver(c, t.TempDir())
	ctx := context.Background()

	av, err := r.CheckAvailability(ctx, "eurusd", "1h")
	if err != nil {
		t.Fatalf("CheckAvailability: %v", err)
	}
	if av.Available || av.Count != 0 || av.HasDateRange {
		t.Errorf("empty catalog availability = %+v", av)
	}

	seedDataset(t, c, domain.Dataset{
		Name: "eurusd 1h", Category: domain.CategoryForex, Format: domain.FormatCSV, Path: "x.csv",
		Metadata: domain.DatasetMetadata{
			Timeframe: "1h", StartDate: "2024-01-02", EndDate: "2024-06-28",
		},
	})

	av, err = r.CheckAvailability(ctx, "eurusd", "1h")
	if err != nil {
		t.Fatalf("CheckAvailability: %v", err)
	}
	if !av.Available || av.Count != 1 || !av.HasDateRange {
		t.Errorf("availability = %+v", av)
	}
	if av.StartDate != "2024-01-02" || av.EndDate != "2024-06-28" {
		t.Errorf("date range = [%s, %s]", av.StartDate, av.EndDate)
	}
}

func TestSymbolKey(t *testing.T) {
	cases := map[string]string{
		"EUR/USD": "eurusd",
		"SPY":     "spy",
		"btc/usd": "btcusd",
	}
	for in, want := range cases {
		if got := SymbolKey(in); got != want {
			t.Errorf("SymbolKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCategoryOf(t *testing.T) {
	cases := []struct {
		symbol string
		want   domain.DatasetCategory
	}{
		{"BTC/USD", domain.CategoryCrypto},
		{"eth/usd", domain.CategoryCrypto},
		{"EUR/USD", domain.CategoryForex},
		{"SPY", domain.CategoryStocks},
	}
	for _, tc := range cases {
		t.Run(tc.symbol, func(t *testing.T) {
			if got := CategoryOf(tc.symbol); got != tc.want {
				t.Errorf("CategoryOf(%q) = %q, want %q", tc.symbol, got, tc.want)
			}
		})
	}
}
