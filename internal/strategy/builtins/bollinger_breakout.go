package builtins

import (
	"context"
	"fmt"
	"math"

	"algoace/internal/domain"
	"algoace/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*BollingerBreakout)(nil)

// BollingerBreakout buys when the close breaks above the upper Bollinger
// band and sells when it falls back through the middle band.
type BollingerBreakout struct {
	period int
	width  float64

	closes []float64
	inBuy  bool
}

// NewBollingerBreakout creates the strategy from parameters (period, stdDev).
func NewBollingerBreakout(params strategy.Params) (strategy.Strategy, error) {
	period := int(params.Get("period", 20))
	width := params.Get("stdDev", 2)
	if period <= 1 {
		return nil, fmt.Errorf("bollinger-breakout: period must be at least 2, got %d", period)
	}
	if width <= 0 {
		return nil, fmt.Errorf("bollinger-breakout: stdDev must be positive, got %.2f", width)
	}
	return &BollingerBreakout{period: period, width: width}, nil
}

// Name returns "bollinger-breakout".
func (s *BollingerBreakout) Name() string { return "bollinger-breakout" }

// Init pre-allocates the price buffer.
func (s *BollingerBreakout) Init(_ context.Context) error {
	s.closes = make([]float64, 0, s.period)
	s.inBuy = false
	return nil
}

// OnBar maintains the rolling band and signals on breakouts.
func (s *BollingerBreakout) OnBar(_ context.Context, bar domain.Bar) ([]domain.Signal, error) {
	s.closes = append(s.closes, bar.Close)
	if len(s.closes) > s.period {
		s.closes = s.closes[1:]
	}
	if len(s.closes) < s.period {
		return nil, nil
	}

	middle := mean(s.closes)
	variance := 0.0
	for _, c := range s.closes {
		d := c - middle
		variance += d * d
	}
	std := math.Sqrt(variance / float64(len(s.closes)))
	upper := middle + s.width*std

	if !s.inBuy && bar.Close > upper {
		s.inBuy = true
		return []domain.Signal{{
			Type:   domain.SignalTypeBuy,
			Symbol: bar.Symbol,
			Reason: fmt.Sprintf("close %.2f broke above upper band %.2f", bar.Close, upper),
		}}, nil
	}
	if s.inBuy && bar.Close < middle {
		s.inBuy = false
		return []domain.Signal{{
			Type:   domain.SignalTypeSell,
			Symbol: bar.Symbol,
			Reason: fmt.Sprintf("close %.2f fell below middle band %.2f", bar.Close, middle),
		}}, nil
	}
	return nil, nil
}
