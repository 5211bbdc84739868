package builtins

import (
	"context"
	"fmt"

	"algoace/internal/domain"
	"algoace/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*RSIMeanReversion)(nil)

// RSIMeanReversion buys when the RSI drops below the oversold threshold and
// sells when it rises above the overbought threshold. RSI uses Wilder's
// smoothing.
type RSIMeanReversion struct {
	period     int
	oversold   float64
	overbought float64

	seen      int
	prevClose float64
	avgGain   float64
	avgLoss   float64
	inBuy     bool
}

// NewRSIMeanReversion creates the strategy from parameters
// (period, oversold, overbought).
func NewRSIMeanReversion(params strategy.Params) (strategy.Strategy, error) {
	period := int(params.Get("period", 14))
	oversold := params.Get("oversold", 30)
	overbought := params.Get("overbought", 70)
	if period <= 0 {
		return nil, fmt.Errorf("rsi-mean-reversion: period must be positive, got %d", period)
	}
	if oversold >= overbought {
		return nil, fmt.Errorf("rsi-mean-reversion: oversold %.1f must be below overbought %.1f", oversold, overbought)
	}
	return &RSIMeanReversion{period: period, oversold: oversold, overbought: overbought}, nil
}

// Name returns "rsi-mean-reversion".
func (s *RSIMeanReversion) Name() string { return "rsi-mean-reversion" }

// Init resets the strategy state.
func (s *RSIMeanReversion) Init(_ context.Context) error {
	s.seen = 0
	s.prevClose = 0
	s.avgGain = 0
	s.avgLoss = 0
	s.inBuy = false
	return nil
}

// OnBar folds the bar into Wilder's RSI and signals at the thresholds.
func (s *RSIMeanReversion) OnBar(_ context.Context, bar domain.Bar) ([]domain.Signal, error) {
	s.seen++
	if s.seen == 1 {
		s.prevClose = bar.Close
		return nil, nil
	}

	change := bar.Close - s.prevClose
	s.prevClose = bar.Close
	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	n := float64(s.period)
	if s.seen-1 <= s.period {
		// Accumulate the seed averages over the first period changes.
		s.avgGain += gain / n
		s.avgLoss += loss / n
		if s.seen-1 < s.period {
			return nil, nil
		}
	} else {
		s.avgGain = (s.avgGain*(n-1) + gain) / n
		s.avgLoss = (s.avgLoss*(n-1) + loss) / n
	}

	rsi := 100.0
	if s.avgLoss > 0 {
		rs := s.avgGain / s.avgLoss
		rsi = 100 - 100/(1+rs)
	}

	if rsi < s.oversold && !s.inBuy {
		s.inBuy = true
		return []domain.Signal{{
			Type:   domain.SignalTypeBuy,
			Symbol: bar.Symbol,
			Reason: fmt.Sprintf("RSI %.1f below oversold threshold %.1f", rsi, s.oversold),
		}}, nil
	}
	if rsi > s.overbought && s.inBuy {
		s.inBuy = false
		return []domain.Signal{{
			Type:   domain.SignalTypeSell,
			Symbol: bar.Symbol,
			Reason: fmt.Sprintf("RSI %.1f above overbought threshold %.1f", rsi, s.overbought),
		}}, nil
	}
	return nil, nil
}
