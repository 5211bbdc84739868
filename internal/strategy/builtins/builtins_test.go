package builtins

import (
	"context"
	"testing"
	"time"

	"algoace/internal/domain"
	"algoace/internal/strategy"
)

// feedCloses runs a close-price series through a strategy and collects every
// emitted signal.
func feedCloses(t *testing.T, s strategy.Strategy, closes []float64) []domain.Signal {
	t.Helper()
	ctx := context.Background()
	if err := s.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}

	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	var signals []domain.Signal
	for i, c := range closes {
		bar := domain.Bar{
			Symbol:    "TEST",
			Timestamp: base.AddDate(0, 0, i),
			Open:      c, High: c, Low: c, Close: c,
			Volume: 1000,
		}
		sigs, err := s.OnBar(ctx, bar)
		if err != nil {
			t.Fatalf("OnBar %d: %v", i, err)
		}
		signals = append(signals, sigs...)
	}
	return signals
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestSMACrossSignals(t *testing.T) {
	s, err := NewSMACross(strategy.Params{"shortPeriod": 2, "longPeriod": 4})
	if err != nil {
		t.Fatalf("NewSMACross: %v", err)
	}

	// Flat, then a sustained rally, then a sustained drop.
	closes := append(constant(6, 100), 110, 120, 130, 140, 90, 80, 70, 60)
	signals := feedCloses(t, s, closes)

	if len(signals) < 2 {
		t.Fatalf("got %d signals, want at least buy and sell: %+v", len(signals), signals)
	}
	if signals[0].Type != domain.SignalTypeBuy {
		t.Errorf("first signal = %s, want buy", signals[0].Type)
	}
	if signals[len(signals)-1].Type != domain.SignalTypeSell {
		t.Errorf("last signal = %s, want sell", signals[len(signals)-1].Type)
	}
}

func TestSMACrossRejectsBadPeriods(t *testing.T) {
	if _, err := NewSMACross(strategy.Params{"shortPeriod": 30, "longPeriod": 10}); err == nil {
		t.Error("expected error for short >= long")
	}
	if _, err := NewSMACross(strategy.Params{"shortPeriod": 0}); err == nil {
		t.Error("expected error for zero short period")
	}
}

func TestEMACrossSignals(t *testing.T) {
	s, err := NewEMACross(strategy.Params{"shortPeriod": 3, "longPeriod": 6})
	if err != nil {
		t.Fatalf("NewEMACross: %v", err)
	}

	closes := append(constant(8, 100), 115, 125, 135, 145, 155, 95, 85, 75, 65, 55)
	signals := feedCloses(t, s, closes)

	var buys, sells int
	for _, sig := range signals {
		switch sig.Type {
		case domain.SignalTypeBuy:
			buys++
		case domain.SignalTypeSell:
			sells++
		}
	}
	if buys == 0 || sells == 0 {
		t.Errorf("got %d buys, %d sells, want both: %+v", buys, sells, signals)
	}
}

func TestEMACrossDeterministic(t *testing.T) {
	closes := append(constant(8, 100), 115, 125, 135, 95, 85, 75)
	params := strategy.Params{"shortPeriod": 3, "longPeriod": 6}

	s1, _ := NewEMACross(params)
	s2, _ := NewEMACross(params)
	a := feedCloses(t, s1, closes)
	b := feedCloses(t, s2, closes)
	if len(a) != len(b) {
		t.Fatalf("runs diverged: %d vs %d signals", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("signal %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestRSIMeanReversionSignals(t *testing.T) {
	s, err := NewRSIMeanReversion(strategy.Params{"period": 5, "oversold": 30, "overbought": 70})
	if err != nil {
		t.Fatalf("NewRSIMeanReversion: %v", err)
	}

	// A steady slide drives RSI toward 0, then a steady climb toward 100.
	closes := []float64{100, 98, 96, 94, 92, 90, 88, 86, 90, 94, 98, 102, 106, 110, 114}
	signals := feedCloses(t, s, closes)

	if len(signals) != 2 {
		t.Fatalf("got %d signals, want buy then sell: %+v", len(signals), signals)
	}
	if signals[0].Type != domain.SignalTypeBuy || signals[1].Type != domain.SignalTypeSell {
		t.Errorf("signals = %+v", signals)
	}
}

func TestRSIMeanReversionRejectsBadThresholds(t *testing.T) {
	if _, err := NewRSIMeanReversion(strategy.Params{"oversold": 70, "overbought": 30}); err == nil {
		t.Error("expected error for inverted thresholds")
	}
}

func TestBollingerBreakoutSignals(t *testing.T) {
	s, err := NewBollingerBreakout(strategy.Params{"period": 5, "stdDev": 1})
	if err != nil {
		t.Fatalf("NewBollingerBreakout: %v", err)
	}

	// Mild noise inside the band, then a breakout, then a collapse through
	// the middle band.
	closes := []float64{100, 101, 99, 100, 101, 100, 99, 120, 121, 122, 80, 79}
	signals := feedCloses(t, s, closes)

	if len(signals) < 2 {
		t.Fatalf("got %d signals, want breakout buy and exit sell: %+v", len(signals), signals)
	}
	if signals[0].Type != domain.SignalTypeBuy {
		t.Errorf("first signal = %s, want buy", signals[0].Type)
	}
	if signals[1].Type != domain.SignalTypeSell {
		t.Errorf("second signal = %s, want sell", signals[1].Type)
	}
}

func TestRegisterAll(t *testing.T) {
	r := strategy.NewRegistry()
	RegisterAll(r)

	want := []string{"bollinger-breakout", "ema-cross", "rsi-mean-reversion", "sma-cross"}
	got := r.List()
	if len(got) != len(want) {
		t.Fatalf("List = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	// Every builtin constructs with default params.
	for _, key := range got {
		s, ok, err := r.New(key, nil)
		if !ok || err != nil || s == nil {
			t.Errorf("New(%s) = %v, %v, %v", key, s, ok, err)
		}
	}
}
