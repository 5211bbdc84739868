// Package httpapi provides the REST API for backtest execution, history,
// and dataset management.
package httpapi

import (
	"time"

	"algoace/internal/domain"
)

// RunRequest is the body of POST /api/backtesting/run.
type RunRequest struct {
	StrategyID     string  `json:"strategyId"`
	Symbol         string  `json:"symbol"`
	Timeframe      string  `json:"timeframe"`
	StartDate      string  `json:"startDate"`
	EndDate        string  `json:"endDate"`
	InitialCapital float64 `json:"initialCapital"`
}

// RunResponse acknowledges a submitted backtest job.
type RunResponse struct {
	JobID   string           `json:"jobId"`
	Status  domain.JobStatus `json:"status"`
	Message string           `json:"message"`
}

// HistorySummary is one row of the history listing; heavyweight payloads
// (trades, equity curve) are omitted.
type HistorySummary struct {
	ID            int64                 `json:"id"`
	StrategyID    string                `json:"strategyId"`
	Timestamp     time.Time             `json:"timestamp"`
	Params        domain.BacktestParams `json:"parameters"`
	Summary       domain.SummaryMetrics `json:"summaryMetrics"`
	HasAIAnalysis bool                  `json:"hasAiAnalysis"`
	Locked        bool                  `json:"locked"`
}

// LockRequest is the body of POST /api/backtest-history/{id}/lock.
type LockRequest struct {
	Locked bool `json:"locked"`
}

// AnalyzeRequest is the body of POST /api/backtest-history/{id}/analyze.
type AnalyzeRequest struct {
	Force bool `json:"force"`
}

// AnalyzeResponse returns the stored analysis; Cached reports whether an
// existing analysis was returned instead of generating a new one.
type AnalyzeResponse struct {
	Analysis string `json:"analysis"`
	Cached   bool   `json:"cached"`
}

// DownloadRequest is the body of POST /api/datasets/download.
type DownloadRequest struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// DownloadResponse returns the downloaded (or pre-existing) dataset entry.
type DownloadResponse struct {
	Dataset domain.Dataset `json:"dataset"`
	Created bool           `json:"created"`
}

// DeleteResponse acknowledges a delete or prune.
type DeleteResponse struct {
	Success bool `json:"success"`
	Deleted int  `json:"deleted,omitempty"`
}

func summarize(r domain.BacktestResult) HistorySummary {
	return HistorySummary{
		ID:            r.ID,
		StrategyID:    r.StrategyID,
		Timestamp:     r.Timestamp,
		Params:        r.Params,
		Summary:       r.Summary,
		HasAIAnalysis: r.AIAnalysis != nil && *r.AIAnalysis != "",
		Locked:        r.Locked,
	}
}
