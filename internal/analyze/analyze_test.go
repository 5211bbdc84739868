package analyze

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"algoace/internal/domain"
)

type fakeCompleter struct {
	gotPrompt string
	reply     string
	err       error
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.gotPrompt = prompt
	return f.reply, f.err
}

func resultWithTrades(n int) domain.BacktestResult {
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	trades := make([]domain.Trade, n)
	for i := range trades {
		exit := base.AddDate(0, 0, i+1)
		price := 105.0
		pnl := 50.0
		trades[i] = domain.Trade{
			EntryTime: base.AddDate(0, 0, i), Symbol: "SPY", Direction: domain.DirectionLong,
			EntryPrice: 100, Quantity: 10,
			ExitTime: &exit, ExitPrice: &price, PnL: &pnl,
		}
	}
	return domain.BacktestResult{
		ID:         7,
		StrategyID: "strat-ema-cross",
		Params: domain.BacktestParams{
			Symbol: "SPY", Timeframe: "1d",
			StartDate: "2024-01-02", EndDate: "2024-06-28", InitialCapital: 10000,
		},
		Summary: domain.SummaryMetrics{
			NetProfit: 500, ProfitFactor: 2.1, WinRate: 0.6, MaxDrawdown: 0.12,
			TotalTrades: n, SharpeRatio: 1.4,
		},
		Trades: trades,
	}
}

func TestAnalyzePassesPromptThrough(t *testing.T) {
	fc := &fakeCompleter{reply: "Solid strategy with moderate drawdown."}
	a := NewAnalyzer(fc)

	text, err := a.Analyze(context.Background(), resultWithTrades(3))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if text != fc.reply {
		t.Errorf("Analyze returned %q", text)
	}
	for _, want := range []string{"strat-ema-cross", "SPY", "Net profit: 500.00", "Win rate: 60.0%"} {
		if !strings.Contains(fc.gotPrompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, fc.gotPrompt)
		}
	}
}

func TestAnalyzePropagatesError(t *testing.T) {
	fc := &fakeCompleter{err: fmt.Errorf("rate limited")}
	a := NewAnalyzer(fc)

	if _, err := a.Analyze(context.Background(), resultWithTrades(1)); err == nil {
		t.Error("expected error from failing completer")
	}
}

func TestBuildPromptCapsTrades(t *testing.T) {
	prompt := BuildPrompt(resultWithTrades(35))
	if !strings.Contains(prompt, "20 most recent of 35") {
		t.Errorf("prompt does not note the trade cap:\n%s", prompt)
	}
	if got := strings.Count(prompt, "Long SPY"); got != 20 {
		t.Errorf("prompt contains %d trades, want 20", got)
	}
}

func TestBuildPromptOpenTrade(t *testing.T) {
	r := resultWithTrades(1)
	r.Trades[0].ExitTime = nil
	r.Trades[0].ExitPrice = nil
	r.Trades[0].PnL = nil

	prompt := BuildPrompt(r)
	if !strings.Contains(prompt, "open") {
		t.Errorf("prompt does not mark the open trade:\n%s", prompt)
	}
}
