// Package builtins provides the strategy implementations that ship with the
// platform. Each file is one strategy; RegisterAll wires them into a
// Registry at startup.
package builtins

import (
	"context"
	"fmt"

	"algoace/internal/domain"
	"algoace/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*EMACross)(nil)

// EMACross is an exponential moving average crossover strategy: buy when the
// short EMA crosses above the long EMA, sell when it crosses below.
type EMACross struct {
	shortPeriod int
	longPeriod  int

	seen      int
	shortEMA  float64
	longEMA   float64
	prevDelta float64
}

// NewEMACross creates an EMACross from parameters (shortPeriod, longPeriod).
func NewEMACross(params strategy.Params) (strategy.Strategy, error) {
	short := int(params.Get("shortPeriod", 12))
	long := int(params.Get("longPeriod", 26))
	if short <= 0 || long <= 0 || short >= long {
		return nil, fmt.Errorf("ema-cross: need 0 < shortPeriod < longPeriod, got %d/%d", short, long)
	}
	return &EMACross{shortPeriod: short, longPeriod: long}, nil
}

// Name returns "ema-cross".
func (s *EMACross) Name() string { return "ema-cross" }

// Init resets the strategy state.
func (s *EMACross) Init(_ context.Context) error {
	s.seen = 0
	s.shortEMA = 0
	s.longEMA = 0
	s.prevDelta = 0
	return nil
}

// OnBar updates both EMAs and signals on crossovers once the long EMA has
// warmed up.
func (s *EMACross) OnBar(_ context.Context, bar domain.Bar) ([]domain.Signal, error) {
	s.seen++
	if s.seen == 1 {
		s.shortEMA = bar.Close
		s.longEMA = bar.Close
		return nil, nil
	}

	s.shortEMA = ema(s.shortEMA, bar.Close, s.shortPeriod)
	s.longEMA = ema(s.longEMA, bar.Close, s.longPeriod)

	delta := s.shortEMA - s.longEMA
	defer func() { s.prevDelta = delta }()

	if s.seen <= s.longPeriod {
		return nil, nil
	}
	if s.prevDelta <= 0 && delta > 0 {
		return []domain.Signal{{
			Type:   domain.SignalTypeBuy,
			Symbol: bar.Symbol,
			Reason: "short EMA crossed above long EMA",
		}}, nil
	}
	if s.prevDelta >= 0 && delta < 0 {
		return []domain.Signal{{
			Type:   domain.SignalTypeSell,
			Symbol: bar.Symbol,
			Reason: "short EMA crossed below long EMA",
		}}, nil
	}
	return nil, nil
}

// ema folds the next value into a running EMA with the standard 2/(n+1)
// smoothing factor.
func ema(prev, value float64, period int) float64 {
	alpha := 2.0 / (float64(period) + 1)
	return alpha*value + (1-alpha)*prev
}
