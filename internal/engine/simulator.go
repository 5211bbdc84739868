// Package engine executes backtests: a deterministic internal simulator, a
// client for an external engine service, and the front door that picks
// between them.
package engine

import (
	"context"
	"time"

	"algoace/internal/domain"
	"algoace/internal/strategy"
)

// RunInput carries everything a simulator needs for one backtest run.
type RunInput struct {
	// Strategy is the initialized instance driving the run.
	Strategy strategy.Strategy

	// Key and Params identify the strategy to an external engine, which
	// cannot execute the in-process instance.
	Key    string
	Params strategy.Params

	// Bars are the pre-filtered, timestamp-ordered bars to replay.
	Bars []domain.Bar

	InitialCapital float64

	// Progress, when non-nil, is called as simulated time advances with a
	// 0-100 percentage and the bar date reached.
	Progress func(pct float64, date time.Time)

	// Deadline, when non-zero, is the cooperative cutoff: simulators check
	// it at bar granularity and abort with an execution error past it.
	Deadline time.Time
}

// RunOutput is the raw simulation result before metrics are computed.
type RunOutput struct {
	Trades      []domain.Trade
	EquityCurve []domain.EquityPoint
}

// Simulator replays bars through a strategy and produces trades and an
// equity curve.
type Simulator interface {
	Run(ctx context.Context, in RunInput) (*RunOutput, error)
}
