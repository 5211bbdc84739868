package engine

import (
	"context"
	"fmt"
	"time"

	"algoace/internal/domain"
)

// Compile-time interface check.
var _ Simulator = (*LoopSimulator)(nil)

// LoopSimulator is the deterministic in-process simulator: it replays bars
// in order, holds at most one open position, and sizes entries with the
// full cash balance. Identical inputs always produce identical outputs.
type LoopSimulator struct{}

// NewLoopSimulator creates a LoopSimulator.
func NewLoopSimulator() *LoopSimulator {
	return &LoopSimulator{}
}

// Run replays the bars through the strategy. Fills happen at the close of
// the signal bar. The equity curve gets one point per bar.
func (s *LoopSimulator) Run(ctx context.Context, in RunInput) (*RunOutput, error) {
	if len(in.Bars) == 0 {
		return nil, fmt.Errorf("%w: no bars to simulate", domain.ErrExecution)
	}

	var (
		cash     = in.InitialCapital
		quantity float64
		open     *domain.Trade
		out      = &RunOutput{
			EquityCurve: make([]domain.EquityPoint, 0, len(in.Bars)),
		}
	)

	first := in.Bars[0].Timestamp
	last := in.Bars[len(in.Bars)-1].Timestamp
	totalDays := last.Sub(first).Hours() / 24

	for _, bar := range in.Bars {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: simulation cancelled: %v", domain.ErrExecution, err)
		}
		if !in.Deadline.IsZero() && time.Now().After(in.Deadline) {
			return nil, fmt.Errorf("%w: simulation exceeded its deadline at %s",
				domain.ErrExecution, bar.Timestamp.Format("2006-01-02"))
		}

		signals, err := in.Strategy.OnBar(ctx, bar)
		if err != nil {
			return nil, fmt.Errorf("%w: strategy failed on bar %s: %v",
				domain.ErrExecution, bar.Timestamp.Format("2006-01-02"), err)
		}

		for _, sig := range signals {
			switch sig.Type {
			case domain.SignalTypeBuy:
				if open != nil || bar.Close <= 0 {
					continue
				}
				quantity = cash / bar.Close
				cash = 0
				trade := domain.Trade{
					EntryTime:  bar.Timestamp,
					Symbol:     bar.Symbol,
					Direction:  domain.DirectionLong,
					EntryPrice: bar.Close,
					Quantity:   quantity,
				}
				out.Trades = append(out.Trades, trade)
				open = &out.Trades[len(out.Trades)-1]

			case domain.SignalTypeSell:
				if open == nil {
					continue
				}
				exitTime := bar.Timestamp
				exitPrice := bar.Close
				pnl := (exitPrice - open.EntryPrice) * open.Quantity
				open.ExitTime = &exitTime
				open.ExitPrice = &exitPrice
				open.PnL = &pnl
				cash += quantity * exitPrice
				quantity = 0
				open = nil
			}
		}

		out.EquityCurve = append(out.EquityCurve, domain.EquityPoint{
			Timestamp: bar.Timestamp,
			Equity:    cash + quantity*bar.Close,
		})

		if in.Progress != nil {
			pct := 100.0
			if totalDays > 0 {
				pct = bar.Timestamp.Sub(first).Hours() / 24 / totalDays * 100
			}
			in.Progress(pct, bar.Timestamp)
		}
	}

	return out, nil
}
