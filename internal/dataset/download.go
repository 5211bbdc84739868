package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"algoace/internal/domain"
	"algoace/internal/util"
)

// Downloader fetches historical bars from the Alpaca market-data API, writes
// them to a dataset file, and registers the catalog entry.
type Downloader struct {
	client  *marketdata.Client
	catalog *Catalog
	dataDir string
	format  domain.DatasetFormat
	limiter *util.RateLimiter
	log     *slog.Logger

	// retryDelay is the base backoff between fetch attempts. Shortened in
	// tests.
	retryDelay time.Duration
}

// NewDownloader creates a Downloader with the given Alpaca credentials.
func NewDownloader(apiKey, apiSecret, dataURL string, catalog *Catalog, dataDir string, rateLimitPerMin int) *Downloader {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}

	return &Downloader{
		client:     marketdata.NewClient(opts),
		catalog:    catalog,
		dataDir:    dataDir,
		format:     domain.FormatCSV,
		limiter:    util.NewRateLimiter(rateLimitPerMin),
		log:        slog.Default().With("component", "dataset-downloader"),
		retryDelay: 2 * time.Second,
	}
}

// Download fetches bars for (symbol, timeframe) over [start, end], persists
// them, and creates the catalog entry. When a matching dataset already exists
// the existing entry is returned with created=false.
func (d *Downloader) Download(ctx context.Context, symbol, timeframe, startDate, endDate string) (domain.Dataset, bool, error) {
	existing, err := d.catalog.Search(ctx, symbol, timeframe)
	if err != nil {
		return domain.Dataset{}, false, fmt.Errorf("checking for existing dataset: %w", err)
	}
	if len(existing) > 0 {
		d.log.Info("dataset already exists", "symbol", symbol, "timeframe", timeframe, "id", existing[0].ID)
		return existing[0], false, nil
	}

	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return domain.Dataset{}, false, fmt.Errorf("parsing start date %q: %w", startDate, err)
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return domain.Dataset{}, false, fmt.Errorf("parsing end date %q: %w", endDate, err)
	}

	tf, err := parseTimeframe(timeframe)
	if err != nil {
		return domain.Dataset{}, false, err
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return domain.Dataset{}, false, err
	}

	// The market-data client retries 429/500 internally; this covers the
	// rest (connection resets, other transient API errors).
	var alpacaBars []marketdata.Bar
	err = util.Retry(ctx, 3, d.retryDelay, func() error {
		alpacaBars, err = d.client.GetBars(strings.ToUpper(SymbolKey(symbol)), marketdata.GetBarsRequest{
			TimeFrame: tf,
			Start:     start,
			End:       end.AddDate(0, 0, 1), // end date is inclusive
		})
		return err
	})
	if err != nil {
		return domain.Dataset{}, false, fmt.Errorf("fetching bars for %s: %w", symbol, err)
	}
	if len(alpacaBars) == 0 {
		return domain.Dataset{}, false, fmt.Errorf("no bars returned for %s %s in [%s, %s]", symbol, timeframe, startDate, endDate)
	}

	bars := make([]domain.Bar, 0, len(alpacaBars))
	for _, ab := range alpacaBars {
		bars = append(bars, domain.Bar{
			Symbol:    strings.ToUpper(symbol),
			Timestamp: ab.Timestamp,
			Open:      ab.Open,
			High:      ab.High,
			Low:       ab.Low,
			Close:     ab.Close,
			Volume:    float64(ab.Volume),
		})
	}

	category := CategoryOf(symbol)
	dir := filepath.Join(d.dataDir, string(category))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.Dataset{}, false, fmt.Errorf("creating dataset dir: %w", err)
	}

	name := fmt.Sprintf("%s_%s_%s_%s.%s", SymbolKey(symbol), timeframe, startDate, endDate, d.format)
	path := filepath.Join(dir, name)
	switch d.format {
	case domain.FormatParquet:
		err = WriteParquetBars(path, bars)
	default:
		err = WriteCSVBars(path, bars)
	}
	if err != nil {
		return domain.Dataset{}, false, fmt.Errorf("writing dataset file %s: %w", path, err)
	}

	ds := domain.Dataset{
		Name:        fmt.Sprintf("%s Historical (%s)", strings.ToUpper(symbol), timeframe),
		Description: fmt.Sprintf("Historical price data for %s with %s timeframe", strings.ToUpper(symbol), timeframe),
		Category:    category,
		Format:      d.format,
		Path:        path,
		Metadata: domain.DatasetMetadata{
			Timeframe:  timeframe,
			StartDate:  bars[0].Timestamp.Format("2006-01-02"),
			EndDate:    bars[len(bars)-1].Timestamp.Format("2006-01-02"),
			RowCount:   int64(len(bars)),
			Columns:    []string{"timestamp", "open", "high", "low", "close", "volume"},
			Compatible: true,
		},
		Tags: []string{SymbolKey(symbol), timeframe, "downloaded"},
	}
	created, err := d.catalog.Create(ctx, ds)
	if err != nil {
		return domain.Dataset{}, false, fmt.Errorf("registering dataset: %w", err)
	}

	d.log.Info("downloaded dataset",
		"symbol", symbol, "timeframe", timeframe, "rows", len(bars), "path", path)
	return created, true, nil
}

// parseTimeframe maps the wire timeframe strings ("1m", "15m", "1h", "1d")
// to Alpaca timeframes.
func parseTimeframe(timeframe string) (marketdata.TimeFrame, error) {
	tf := strings.ToLower(strings.TrimSpace(timeframe))
	switch tf {
	case "1d", "d", "day":
		return marketdata.OneDay, nil
	case "1h", "h", "hour":
		return marketdata.OneHour, nil
	case "1m", "min":
		return marketdata.OneMin, nil
	}
	if strings.HasSuffix(tf, "m") {
		if n, err := strconv.Atoi(strings.TrimSuffix(tf, "m")); err == nil && n > 0 {
			return marketdata.NewTimeFrame(n, marketdata.Min), nil
		}
	}
	if strings.HasSuffix(tf, "h") {
		if n, err := strconv.Atoi(strings.TrimSuffix(tf, "h")); err == nil && n > 0 {
			return marketdata.NewTimeFrame(n, marketdata.Hour), nil
		}
	}
	return marketdata.TimeFrame{}, fmt.Errorf("unsupported timeframe %q", timeframe)
}
