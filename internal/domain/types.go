// Package domain defines the shared types used across the algoace platform:
// market data bars, simulated trades, equity curves, backtest results, and
// dataset catalog entries.
package domain

import "time"

// Market identifies which market a symbol trades in.
type Market string

// Supported markets.
const (
	MarketUS Market = "us"
	MarketCN Market = "cn"
)

// Bar is one OHLCV sample for a symbol at a given timeframe.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// SignalType classifies a strategy signal.
type SignalType string

// Signal types emitted by strategies.
const (
	SignalTypeBuy  SignalType = "buy"
	SignalTypeSell SignalType = "sell"
)

// Signal is a trading signal produced by a strategy while processing bars.
type Signal struct {
	Type   SignalType `json:"type"`
	Symbol string     `json:"symbol"`
	Reason string     `json:"reason,omitempty"`
}

// Direction is the side of a simulated trade.
type Direction string

// Trade directions.
const (
	DirectionLong  Direction = "Long"
	DirectionShort Direction = "Short"
)

// Trade is one round trip (or still-open position) produced by a simulation.
// ExitTime, ExitPrice, and PnL are nil while the trade is open.
type Trade struct {
	EntryTime  time.Time  `json:"entryTimestamp"`
	ExitTime   *time.Time `json:"exitTimestamp,omitempty"`
	Symbol     string     `json:"symbol"`
	Direction  Direction  `json:"direction"`
	EntryPrice float64    `json:"entryPrice"`
	ExitPrice  *float64   `json:"exitPrice,omitempty"`
	Quantity   float64    `json:"quantity"`
	PnL        *float64   `json:"pnl,omitempty"`
}

// Closed reports whether the trade has been exited.
func (t Trade) Closed() bool { return t.ExitTime != nil }

// RealizedPnL returns the trade's realized profit, or 0 while still open.
func (t Trade) RealizedPnL() float64 {
	if t.PnL == nil {
		return 0
	}
	return *t.PnL
}

// EquityPoint is one sample of total account value (cash plus mark-to-market
// of open positions) on the equity curve.
type EquityPoint struct {
	Timestamp time.Time `json:"date"`
	Equity    float64   `json:"portfolioValue"`
}

// SummaryMetrics holds the performance metrics computed over one backtest.
// WinRate and MaxDrawdown are 0-1 fractions, never percentages.
type SummaryMetrics struct {
	NetProfit    float64 `json:"netProfit"`
	ProfitFactor float64 `json:"profitFactor"`
	MaxDrawdown  float64 `json:"maxDrawdown"`
	WinRate      float64 `json:"winRate"`
	TotalTrades  int     `json:"totalTrades"`
	AvgTradePnL  float64 `json:"avgTradePnl"`
	SharpeRatio  float64 `json:"sharpeRatio"`
	SortinoRatio float64 `json:"sortinoRatio"`
	StartDate    string  `json:"startDate"`
	EndDate      string  `json:"endDate"`
	Symbol       string  `json:"symbol"`
	Timeframe    string  `json:"timeframe"`
}

// BacktestParams are the user-supplied parameters of a backtest run. Dates
// use the YYYY-MM-DD wire format.
type BacktestParams struct {
	Symbol         string  `json:"symbol"`
	Timeframe      string  `json:"timeframe"`
	StartDate      string  `json:"startDate"`
	EndDate        string  `json:"endDate"`
	InitialCapital float64 `json:"initialCapital"`
}

// DateRange parses the start and end dates. End is inclusive.
func (p BacktestParams) DateRange() (start, end time.Time, err error) {
	start, err = time.Parse("2006-01-02", p.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err = time.Parse("2006-01-02", p.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

// JobStatus is the lifecycle state of a backtest job.
type JobStatus string

// Job lifecycle states. Transitions only move forward:
// PENDING -> RUNNING -> COMPLETED | FAILED.
const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// BacktestResult is the durable record of one finished backtest.
type BacktestResult struct {
	ID          int64          `json:"id"`
	StrategyID  string         `json:"strategyId"`
	Timestamp   time.Time      `json:"timestamp"`
	Params      BacktestParams `json:"parameters"`
	Summary     SummaryMetrics `json:"summaryMetrics"`
	EquityCurve []EquityPoint  `json:"equityCurve"`
	Trades      []Trade        `json:"trades"`
	LogOutput   string         `json:"logOutput"`
	AIAnalysis  *string        `json:"aiAnalysis,omitempty"`
	Locked      bool           `json:"locked"`
}

// DatasetCategory groups datasets by asset class.
type DatasetCategory string

// Dataset categories.
const (
	CategoryForex   DatasetCategory = "forex"
	CategoryCrypto  DatasetCategory = "crypto"
	CategoryStocks  DatasetCategory = "stocks"
	CategoryFutures DatasetCategory = "futures"
)

// DatasetFormat is the on-disk file format of a dataset.
type DatasetFormat string

// Dataset file formats.
const (
	FormatCSV     DatasetFormat = "csv"
	FormatParquet DatasetFormat = "parquet"
)

// DatasetMetadata holds the derived and declared properties of a dataset.
// RowCount, StartDate, and EndDate are derived from the backing file by the
// resolver; the catalog copy is reconciled against the file on validation.
type DatasetMetadata struct {
	Timeframe  string   `json:"timeframe"`
	StartDate  string   `json:"startDate,omitempty"`
	EndDate    string   `json:"endDate,omitempty"`
	RowCount   int64    `json:"rowCount,omitempty"`
	Columns    []string `json:"columns,omitempty"`
	Compatible bool     `json:"engineCompatible"`
}

// Dataset is a catalog entry pointing at a historical price data file.
type Dataset struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    DatasetCategory `json:"category"`
	Format      DatasetFormat   `json:"format"`
	Path        string          `json:"path"`
	LastUpdated time.Time       `json:"lastUpdated"`
	Metadata    DatasetMetadata `json:"metadata"`
	Tags        []string        `json:"tags,omitempty"`
}
