package builtins

import (
	"context"
	"fmt"

	"algoace/internal/domain"
	"algoace/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACross is a simple moving average crossover strategy: buy when the
// short-period SMA crosses above the long-period SMA, sell when it crosses
// below.
type SMACross struct {
	shortPeriod int
	longPeriod  int

	closes    []float64
	prevDelta float64
	warmedUp  bool
}

// NewSMACross creates an SMACross from parameters (shortPeriod, longPeriod).
func NewSMACross(params strategy.Params) (strategy.Strategy, error) {
	short := int(params.Get("shortPeriod", 10))
	long := int(params.Get("longPeriod", 30))
	if short <= 0 || long <= 0 || short >= long {
		return nil, fmt.Errorf("sma-cross: need 0 < shortPeriod < longPeriod, got %d/%d", short, long)
	}
	return &SMACross{shortPeriod: short, longPeriod: long}, nil
}

// Name returns "sma-cross".
func (s *SMACross) Name() string { return "sma-cross" }

// Init pre-allocates the price buffer.
func (s *SMACross) Init(_ context.Context) error {
	s.closes = make([]float64, 0, s.longPeriod)
	s.prevDelta = 0
	s.warmedUp = false
	return nil
}

// OnBar appends the close, computes both SMAs once enough data is available,
// and signals on crossovers.
func (s *SMACross) OnBar(_ context.Context, bar domain.Bar) ([]domain.Signal, error) {
	s.closes = append(s.closes, bar.Close)
	if len(s.closes) > s.longPeriod {
		s.closes = s.closes[1:]
	}
	if len(s.closes) < s.longPeriod {
		return nil, nil
	}

	short := mean(s.closes[len(s.closes)-s.shortPeriod:])
	long := mean(s.closes)
	delta := short - long

	if !s.warmedUp {
		s.warmedUp = true
		s.prevDelta = delta
		return nil, nil
	}
	defer func() { s.prevDelta = delta }()

	if s.prevDelta <= 0 && delta > 0 {
		return []domain.Signal{{
			Type:   domain.SignalTypeBuy,
			Symbol: bar.Symbol,
			Reason: "short SMA crossed above long SMA",
		}}, nil
	}
	if s.prevDelta >= 0 && delta < 0 {
		return []domain.Signal{{
			Type:   domain.SignalTypeSell,
			Symbol: bar.Symbol,
			Reason: "short SMA crossed below long SMA",
		}}, nil
	}
	return nil, nil
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
