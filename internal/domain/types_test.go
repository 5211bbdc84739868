package domain

import (
	"testing"
	"time"
)

func TestJobStatusTerminal(t *testing.T) {
	cases := []struct {
		status JobStatus
		want   bool
	}{
		{JobPending, false},
		{JobRunning, false},
		{JobCompleted, true},
		{JobFailed, true},
	}
	for _, c := range cases {
		if got := c.status.Terminal(); got != c.want {
			t.Errorf("%s.Terminal() = %v, want %v", c.status, got, c.want)
		}
	}
}

func TestTradeClosed(t *testing.T) {
	tr := Trade{Symbol: "EUR/USD", Direction: DirectionLong, EntryPrice: 1.08, Quantity: 100}
	if tr.Closed() {
		t.Error("open trade reported Closed")
	}
	if tr.RealizedPnL() != 0 {
		t.Errorf("open trade RealizedPnL = %v, want 0", tr.RealizedPnL())
	}

	exit := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	price := 1.10
	pnl := 2.0
	tr.ExitTime = &exit
	tr.ExitPrice = &price
	tr.PnL = &pnl
	if !tr.Closed() {
		t.Error("exited trade reported open")
	}
	if tr.RealizedPnL() != 2.0 {
		t.Errorf("RealizedPnL = %v, want 2.0", tr.RealizedPnL())
	}
}

func TestBacktestParamsDateRange(t *testing.T) {
	p := BacktestParams{StartDate: "2024-01-01", EndDate: "2024-04-30"}
	start, end, err := p.DateRange()
	if err != nil {
		t.Fatalf("DateRange: %v", err)
	}
	if start.After(end) {
		t.Errorf("start %v after end %v", start, end)
	}
	if start.Year() != 2024 || start.Month() != time.January {
		t.Errorf("unexpected start %v", start)
	}

	p.EndDate = "not-a-date"
	if _, _, err := p.DateRange(); err == nil {
		t.Error("DateRange accepted malformed end date")
	}
}
