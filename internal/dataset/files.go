package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"algoace/internal/domain"
)

// FileStats summarizes what the resolver derived from a backing file.
type FileStats struct {
	RowCount int64
	Start    time.Time
	End      time.Time
	Columns  []string
}

// ---------------------------------------------------------------------------
// Parquet record type (on-disk schema)
// ---------------------------------------------------------------------------

// barRecord is the Parquet schema for historical bar files.
type barRecord struct {
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

// ReadBars loads the full bar series from a dataset's backing file, sorted by
// timestamp. The symbol is stamped onto every bar.
func ReadBars(ds domain.Dataset, symbol string) ([]domain.Bar, error) {
	var (
		bars []domain.Bar
		err  error
	)
	switch ds.Format {
	case domain.FormatParquet:
		bars, err = readParquetBars(ds.Path, symbol)
	default:
		// CSV is the catalog default; unknown formats are tried as CSV.
		bars, _, err = readCSVBars(ds.Path, symbol)
	}
	if err != nil {
		return nil, err
	}

	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
	return bars, nil
}

// Inspect parses a backing file and returns its derived stats without
// retaining the bars.
func Inspect(path string, format domain.DatasetFormat) (*FileStats, error) {
	switch format {
	case domain.FormatParquet:
		bars, err := readParquetBars(path, "")
		if err != nil {
			return nil, err
		}
		return statsOf(bars, []string{"timestamp", "open", "high", "low", "close", "volume"}), nil
	default:
		bars, columns, err := readCSVBars(path, "")
		if err != nil {
			return nil, err
		}
		return statsOf(bars, columns), nil
	}
}

func statsOf(bars []domain.Bar, columns []string) *FileStats {
	st := &FileStats{RowCount: int64(len(bars)), Columns: columns}
	for _, b := range bars {
		if st.Start.IsZero() || b.Timestamp.Before(st.Start) {
			st.Start = b.Timestamp
		}
		if b.Timestamp.After(st.End) {
			st.End = b.Timestamp
		}
	}
	return st
}

func readParquetBars(path, symbol string) ([]domain.Bar, error) {
	records, err := parquet.ReadFile[barRecord](path)
	if err != nil {
		return nil, fmt.Errorf("reading parquet file %s: %w", path, err)
	}
	bars := make([]domain.Bar, 0, len(records))
	for _, r := range records {
		bars = append(bars, domain.Bar{
			Symbol:    symbol,
			Timestamp: time.UnixMilli(r.Timestamp).UTC(),
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		})
	}
	return bars, nil
}

// WriteParquetBars writes bars to a Parquet file at path.
func WriteParquetBars(path string, bars []domain.Bar) error {
	records := make([]barRecord, 0, len(bars))
	for _, b := range bars {
		records = append(records, barRecord{
			Timestamp: b.Timestamp.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}
	return parquet.WriteFile(path, records)
}

// ---------------------------------------------------------------------------
// CSV parsing
// ---------------------------------------------------------------------------

// csvColumns maps required OHLCV fields to their column index in the header.
type csvColumns struct {
	timestamp int
	open      int
	high      int
	low       int
	close     int
	volume    int // -1 when absent (derivable as 0)
}

// readCSVBars parses an OHLCV CSV file. The header row must name a timestamp
// column and the four price columns; volume is optional.
func readCSVBars(path, symbol string) ([]domain.Bar, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening csv file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("reading csv header from %s: %w", path, err)
	}

	cols, err := detectColumns(header)
	if err != nil {
		return nil, header, fmt.Errorf("%s: %w", path, err)
	}

	var bars []domain.Bar
	line := 1
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A ragged or malformed row invalidates the whole file.
			return nil, header, fmt.Errorf("%s: %w", path, err)
		}
		line++

		ts, err := parseTimestamp(record[cols.timestamp])
		if err != nil {
			return nil, header, fmt.Errorf("%s line %d: %w", path, line, err)
		}

		bar := domain.Bar{Symbol: symbol, Timestamp: ts}
		if bar.Open, err = strconv.ParseFloat(record[cols.open], 64); err != nil {
			return nil, header, fmt.Errorf("%s line %d: bad open %q", path, line, record[cols.open])
		}
		if bar.High, err = strconv.ParseFloat(record[cols.high], 64); err != nil {
			return nil, header, fmt.Errorf("%s line %d: bad high %q", path, line, record[cols.high])
		}
		if bar.Low, err = strconv.ParseFloat(record[cols.low], 64); err != nil {
			return nil, header, fmt.Errorf("%s line %d: bad low %q", path, line, record[cols.low])
		}
		if bar.Close, err = strconv.ParseFloat(record[cols.close], 64); err != nil {
			return nil, header, fmt.Errorf("%s line %d: bad close %q", path, line, record[cols.close])
		}
		if cols.volume >= 0 {
			// Volume is best-effort; a blank cell reads as 0.
			bar.Volume, _ = strconv.ParseFloat(record[cols.volume], 64)
		}
		bars = append(bars, bar)
	}
	return bars, header, nil
}

// detectColumns finds the OHLCV columns in a CSV header, matching names
// case-insensitively.
func detectColumns(header []string) (csvColumns, error) {
	cols := csvColumns{timestamp: -1, open: -1, high: -1, low: -1, close: -1, volume: -1}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "timestamp", "date", "datetime", "time":
			if cols.timestamp == -1 {
				cols.timestamp = i
			}
		case "open", "o":
			cols.open = i
		case "high", "h":
			cols.high = i
		case "low", "l":
			cols.low = i
		case "close", "c", "adj close", "adj_close":
			if cols.close == -1 {
				cols.close = i
			}
		case "volume", "vol", "v":
			cols.volume = i
		}
	}

	var missing []string
	if cols.timestamp == -1 {
		missing = append(missing, "timestamp")
	}
	if cols.open == -1 {
		missing = append(missing, "open")
	}
	if cols.high == -1 {
		missing = append(missing, "high")
	}
	if cols.low == -1 {
		missing = append(missing, "low")
	}
	if cols.close == -1 {
		missing = append(missing, "close")
	}
	if len(missing) > 0 {
		return cols, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

// timestampLayouts are the accepted textual timestamp formats, tried in order.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02",
	"01/02/2006",
}

// parseTimestamp accepts the common textual layouts plus Unix seconds or
// milliseconds.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		// Heuristic: values this large are Unix milliseconds.
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// WriteCSVBars writes bars as an OHLCV CSV file at path.
func WriteCSVBars(path string, bars []domain.Bar) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating csv file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"timestamp", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, b := range bars {
		record := []string{
			b.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatFloat(b.Volume, 'f', -1, 64),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
