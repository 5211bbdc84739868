package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"algoace/internal/domain"
)

// Engine is the execution front door: it filters bars to the requested
// range, prefers the remote simulator when one is configured, and falls
// back to the internal loop on remote failure.
type Engine struct {
	remote Simulator
	loop   Simulator
	log    *slog.Logger
}

// New creates an Engine. remote may be nil, in which case every run uses
// the internal simulator.
func New(remote Simulator) *Engine {
	return &Engine{
		remote: remote,
		loop:   NewLoopSimulator(),
		log:    slog.Default().With("component", "engine"),
	}
}

// Run filters the bars to the requested date range and executes the
// simulation. Returned warnings describe range mismatches that did not stop
// the run.
func (e *Engine) Run(ctx context.Context, in RunInput, start, end time.Time) (*RunOutput, []string, error) {
	filtered, warnings := filterBars(in.Bars, start, end)
	if len(filtered) == 0 {
		return nil, warnings, fmt.Errorf("%w: no data for requested range %s to %s",
			domain.ErrValidation, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	in.Bars = filtered

	if e.remote != nil {
		out, err := e.remote.Run(ctx, in)
		if err == nil {
			return out, warnings, nil
		}
		w := fmt.Sprintf("external engine failed, falling back to internal simulator: %v", err)
		warnings = append(warnings, w)
		e.log.Warn("external engine failed",
			"strategy", in.Key, "error", err)
	}

	out, err := e.loop.Run(ctx, in)
	return out, warnings, err
}

// filterBars keeps the bars within [start, end] (end inclusive, by day) and
// reports when the data covers less than the requested range.
func filterBars(bars []domain.Bar, start, end time.Time) ([]domain.Bar, []string) {
	cutoff := end.AddDate(0, 0, 1)
	out := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		if b.Timestamp.Before(start) || !b.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, b)
	}

	var warnings []string
	if len(out) > 0 {
		first, last := out[0].Timestamp, out[len(out)-1].Timestamp
		if first.Sub(start) > 24*time.Hour || end.Sub(last) > 24*time.Hour {
			warnings = append(warnings, fmt.Sprintf(
				"data covers %s to %s, requested %s to %s",
				first.Format("2006-01-02"), last.Format("2006-01-02"),
				start.Format("2006-01-02"), end.Format("2006-01-02")))
		}
	}
	return out, warnings
}
