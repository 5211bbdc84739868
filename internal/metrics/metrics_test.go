package metrics

import (
	"math"
	"testing"
	"time"

	"algoace/internal/domain"
)

func closedTrade(pnl float64) domain.Trade {
	exit := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	price := 100.0
	return domain.Trade{
		EntryTime:  time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		ExitTime:   &exit,
		Symbol:     "EUR/USD",
		Direction:  domain.DirectionLong,
		EntryPrice: price,
		ExitPrice:  &price,
		Quantity:   1,
		PnL:        &pnl,
	}
}

func curveOf(values ...float64) []domain.EquityPoint {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	curve := make([]domain.EquityPoint, len(values))
	for i, v := range values {
		curve[i] = domain.EquityPoint{Timestamp: base.AddDate(0, 0, i), Equity: v}
	}
	return curve
}

func TestSummarizeBasics(t *testing.T) {
	trades := []domain.Trade{closedTrade(100), closedTrade(-40), closedTrade(60)}

	m := Summarize(trades, nil, 10000)

	if m.NetProfit != 120 {
		t.Errorf("NetProfit = %v, want 120", m.NetProfit)
	}
	if math.Abs(m.WinRate-2.0/3.0) > 1e-9 {
		t.Errorf("WinRate = %v, want 2/3", m.WinRate)
	}
	if m.ProfitFactor != 4.0 {
		t.Errorf("ProfitFactor = %v, want 4.0 (160/40)", m.ProfitFactor)
	}
	if m.AvgTradePnL != 40 {
		t.Errorf("AvgTradePnL = %v, want 40", m.AvgTradePnL)
	}
	if m.TotalTrades != 3 {
		t.Errorf("TotalTrades = %d, want 3", m.TotalTrades)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	m := Summarize(nil, nil, 10000)

	if m.NetProfit != 0 {
		t.Errorf("NetProfit = %v, want 0", m.NetProfit)
	}
	if m.WinRate != 0 {
		t.Errorf("WinRate = %v, want 0 for no trades", m.WinRate)
	}
	if m.ProfitFactor != 0 {
		t.Errorf("ProfitFactor = %v, want 0 for no trades", m.ProfitFactor)
	}
	if m.AvgTradePnL != 0 {
		t.Errorf("AvgTradePnL = %v, want 0 for no trades", m.AvgTradePnL)
	}
	if m.SharpeRatio != 0 || m.SortinoRatio != 0 {
		t.Errorf("ratios = %v/%v, want 0/0 on empty input", m.SharpeRatio, m.SortinoRatio)
	}
}

func TestProfitFactorNoLosses(t *testing.T) {
	trades := []domain.Trade{closedTrade(50), closedTrade(70)}

	m := Summarize(trades, nil, 10000)

	if m.ProfitFactor != ProfitFactorCap {
		t.Errorf("ProfitFactor = %v, want sentinel %v", m.ProfitFactor, ProfitFactorCap)
	}
	if math.IsInf(m.ProfitFactor, 0) || math.IsNaN(m.ProfitFactor) {
		t.Error("ProfitFactor must be finite")
	}
}

func TestNetProfitFromCurveIncludesOpenPosition(t *testing.T) {
	// An open trade contributes no realized pnl, but the curve marks it to
	// market: net profit follows the curve when one is supplied.
	open := domain.Trade{EntryTime: time.Now(), Direction: domain.DirectionLong, EntryPrice: 100, Quantity: 10}
	m := Summarize([]domain.Trade{open}, curveOf(10000, 10250), 10000)

	if m.NetProfit != 250 {
		t.Errorf("NetProfit = %v, want 250 (final equity - initial capital)", m.NetProfit)
	}
}

func TestMaxDrawdown(t *testing.T) {
	got := MaxDrawdown(curveOf(1000, 1100, 900, 1200))
	want := (1100.0 - 900.0) / 1100.0
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("MaxDrawdown = %v, want %v", got, want)
	}
}

func TestMaxDrawdownNonDecreasing(t *testing.T) {
	if dd := MaxDrawdown(curveOf(1000, 1000, 1100, 1300)); dd != 0 {
		t.Errorf("MaxDrawdown of non-decreasing curve = %v, want 0", dd)
	}
	if dd := MaxDrawdown(nil); dd != 0 {
		t.Errorf("MaxDrawdown of empty curve = %v, want 0", dd)
	}
}

func TestMaxDrawdownNeverNegative(t *testing.T) {
	curves := [][]float64{
		{1000},
		{1000, 500},
		{500, 1000, 250, 2000, 100},
		{100, 100, 100},
	}
	for _, values := range curves {
		if dd := MaxDrawdown(curveOf(values...)); dd < 0 {
			t.Errorf("MaxDrawdown(%v) = %v, want >= 0", values, dd)
		}
	}
}

func TestSharpeZeroDeviation(t *testing.T) {
	// Flat curve: all returns zero, std is zero.
	m := Summarize(nil, curveOf(1000, 1000, 1000), 1000)
	if m.SharpeRatio != 0 {
		t.Errorf("SharpeRatio = %v, want 0 for zero-deviation returns", m.SharpeRatio)
	}
}

func TestSortinoNoNegativeReturns(t *testing.T) {
	m := Summarize(nil, curveOf(1000, 1010, 1030, 1060), 1000)
	if m.SortinoRatio != 0 {
		t.Errorf("SortinoRatio = %v, want 0 when no negative returns exist", m.SortinoRatio)
	}
	if m.SharpeRatio <= 0 {
		t.Errorf("SharpeRatio = %v, want > 0 for a rising curve", m.SharpeRatio)
	}
}

func TestSortinoNegativeReturns(t *testing.T) {
	m := Summarize(nil, curveOf(1000, 1050, 980, 1100, 1020), 1000)
	if m.SortinoRatio == 0 {
		t.Error("SortinoRatio = 0, want non-zero with mixed returns")
	}
	if math.IsNaN(m.SortinoRatio) || math.IsInf(m.SortinoRatio, 0) {
		t.Errorf("SortinoRatio = %v, must be finite", m.SortinoRatio)
	}
}
