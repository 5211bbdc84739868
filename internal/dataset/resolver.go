package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"algoace/internal/domain"
)

// ErrNoValidDataset is returned when no catalog candidate validates for the
// requested symbol and timeframe. Submissions are rejected before a job is
// created.
var ErrNoValidDataset = errors.New("no valid dataset available")

// Candidate is one catalog entry that failed validation, with the reasons.
type Candidate struct {
	Dataset  domain.Dataset `json:"dataset"`
	Errors   []string       `json:"errors,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
}

// Resolution partitions the catalog candidates for a (symbol, timeframe)
// request into usable and unusable sets.
type Resolution struct {
	Valid    []domain.Dataset
	Invalid  []Candidate
	Warnings []string
}

// Availability is the response of a dataset availability check.
type Availability struct {
	Available    bool   `json:"available"`
	Count        int    `json:"count"`
	StartDate    string `json:"startDate,omitempty"`
	EndDate      string `json:"endDate,omitempty"`
	HasDateRange bool   `json:"hasDateRange"`
}

// Resolver validates catalog entries against the files on disk and heals
// stale paths and metadata.
type Resolver struct {
	catalog *Catalog
	dataDir string
	log     *slog.Logger

	// Per-dataset locks scope the read-validate-write self-heal so two
	// concurrent validations of the same entry cannot clobber each other.
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewResolver creates a Resolver over the given catalog and data directory.
func NewResolver(catalog *Catalog, dataDir string) *Resolver {
	return &Resolver{
		catalog: catalog,
		dataDir: dataDir,
		log:     slog.Default().With("component", "dataset-resolver"),
		locks:   make(map[int64]*sync.Mutex),
	}
}

// entryLock returns the lock for one dataset entry, creating it on first use.
func (r *Resolver) entryLock(id int64) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[id]
	if !ok {
		l = &sync.Mutex{}
		r.locks[id] = l
	}
	return l
}

// Resolve validates every catalog candidate for the symbol and timeframe.
// It returns ErrNoValidDataset when nothing validates; when valid datasets
// exist but none is flagged engine-compatible, it proceeds with a warning.
func (r *Resolver) Resolve(ctx context.Context, symbol, timeframe string) (*Resolution, error) {
	candidates, err := r.catalog.Search(ctx, symbol, timeframe)
	if err != nil {
		return nil, fmt.Errorf("searching catalog for %s %s: %w", symbol, timeframe, err)
	}

	res := &Resolution{}
	for _, ds := range candidates {
		cand := r.validate(ctx, ds, symbol, timeframe)
		if len(cand.Errors) > 0 {
			res.Invalid = append(res.Invalid, cand)
			continue
		}
		res.Valid = append(res.Valid, cand.Dataset)
		res.Warnings = append(res.Warnings, cand.Warnings...)
	}

	if len(res.Valid) == 0 {
		return res, fmt.Errorf("%w for %s with timeframe %s", ErrNoValidDataset, symbol, timeframe)
	}

	compatible := false
	for _, ds := range res.Valid {
		if ds.Metadata.Compatible {
			compatible = true
			break
		}
	}
	if !compatible {
		w := fmt.Sprintf("no engine-compatible dataset for %s %s, proceeding with the internal engine", symbol, timeframe)
		res.Warnings = append(res.Warnings, w)
		r.log.Warn("no engine-compatible dataset", "symbol", symbol, "timeframe", timeframe)
	}
	return res, nil
}

// validate checks one candidate: the backing file must exist (stale paths are
// retried against conventional locations), parse as OHLCV, and match the
// cached metadata. Divergent metadata is healed back into the catalog.
func (r *Resolver) validate(ctx context.Context, ds domain.Dataset, symbol, timeframe string) Candidate {
	cand := Candidate{Dataset: ds}

	path := ds.Path
	healed := false
	if _, err := os.Stat(path); err != nil {
		alt, ok := r.findFallback(ds, symbol, timeframe)
		if !ok {
			cand.Errors = append(cand.Errors, fmt.Sprintf("backing file %s not found and no fallback matched", ds.Path))
			return cand
		}
		cand.Warnings = append(cand.Warnings, fmt.Sprintf("stale path %s healed to %s", ds.Path, alt))
		path = alt
		healed = true
	}

	stats, err := Inspect(path, ds.Format)
	if err != nil {
		cand.Errors = append(cand.Errors, fmt.Sprintf("parsing %s: %v", path, err))
		return cand
	}
	if stats.RowCount == 0 {
		cand.Errors = append(cand.Errors, fmt.Sprintf("%s contains no rows", path))
		return cand
	}

	startDate := stats.Start.Format("2006-01-02")
	endDate := stats.End.Format("2006-01-02")
	diverged := healed ||
		ds.Metadata.RowCount != stats.RowCount ||
		ds.Metadata.StartDate != startDate ||
		ds.Metadata.EndDate != endDate

	if diverged {
		if err := r.heal(ctx, ds.ID, path, stats); err != nil {
			// Healing is best-effort: the dataset is still usable.
			cand.Warnings = append(cand.Warnings, fmt.Sprintf("catalog heal failed: %v", err))
			r.log.Warn("catalog heal failed", "dataset", ds.ID, "error", err)
		} else {
			r.log.Info("healed catalog entry",
				"dataset", ds.ID, "rows", stats.RowCount, "start", startDate, "end", endDate)
		}
	}

	cand.Dataset.Path = path
	cand.Dataset.Metadata.RowCount = stats.RowCount
	cand.Dataset.Metadata.StartDate = startDate
	cand.Dataset.Metadata.EndDate = endDate
	cand.Dataset.Metadata.Columns = stats.Columns
	return cand
}

// heal rewrites a catalog entry's derived metadata in one read-validate-write
// transaction under the entry's lock.
func (r *Resolver) heal(ctx context.Context, id int64, path string, stats *FileStats) error {
	lock := r.entryLock(id)
	lock.Lock()
	defer lock.Unlock()

	// Re-read inside the lock so a concurrent heal of the same entry is not
	// clobbered with stale fields.
	current, err := r.catalog.Get(ctx, id)
	if err != nil {
		return err
	}
	current.Path = path
	current.Metadata.RowCount = stats.RowCount
	current.Metadata.StartDate = stats.Start.Format("2006-01-02")
	current.Metadata.EndDate = stats.End.Format("2006-01-02")
	current.Metadata.Columns = stats.Columns
	return r.catalog.Update(ctx, current)
}

// findFallback searches the conventional on-disk locations for a dataset
// whose stored path went stale.
// Layout: <dataDir>/<category>/<symbol>_<timeframe>*.{csv,parquet}
func (r *Resolver) findFallback(ds domain.Dataset, symbol, timeframe string) (string, bool) {
	category := ds.Category
	if category == "" {
		category = CategoryOf(symbol)
	}
	key := SymbolKey(symbol)

	patterns := []string{
		filepath.Join(r.dataDir, string(category), fmt.Sprintf("%s_%s*.csv", key, timeframe)),
		filepath.Join(r.dataDir, string(category), fmt.Sprintf("%s_%s*.parquet", key, timeframe)),
		filepath.Join(r.dataDir, string(category), key, fmt.Sprintf("%s*.csv", timeframe)),
	}
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil || len(matches) == 0 {
			continue
		}
		return matches[0], true
	}
	return "", false
}

// CheckAvailability reports whether any dataset matches the symbol and
// timeframe, with the date range from the first entry that has one.
func (r *Resolver) CheckAvailability(ctx context.Context, symbol, timeframe string) (*Availability, error) {
	candidates, err := r.catalog.Search(ctx, symbol, timeframe)
	if err != nil {
		return nil, fmt.Errorf("searching catalog for %s %s: %w", symbol, timeframe, err)
	}

	av := &Availability{
		Available: len(candidates) > 0,
		Count:     len(candidates),
	}
	for _, ds := range candidates {
		if ds.Metadata.StartDate != "" && ds.Metadata.EndDate != "" {
			av.StartDate = ds.Metadata.StartDate
			av.EndDate = ds.Metadata.EndDate
			av.HasDateRange = true
			break
		}
	}
	return av, nil
}

// SymbolKey normalizes a symbol for use in file names: lower case with the
// pair separator removed ("EUR/USD" -> "eurusd").
func SymbolKey(symbol string) string {
	return strings.ToLower(strings.ReplaceAll(symbol, "/", ""))
}

// CategoryOf infers the asset class of a symbol from its shape.
func CategoryOf(symbol string) domain.DatasetCategory {
	upper := strings.ToUpper(symbol)
	if strings.HasPrefix(upper, "BTC") || strings.HasPrefix(upper, "ETH") {
		return domain.CategoryCrypto
	}
	if strings.Contains(symbol, "/") {
		return domain.CategoryForex
	}
	return domain.CategoryStocks
}
