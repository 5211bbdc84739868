// Package metrics computes performance metrics over the trades and equity
// curve produced by a backtest run. All functions are pure.
//
// Unit conventions: win rate and max drawdown are 0-1 fractions, Sharpe and
// Sortino ratios are annualized by sqrt(252), and profit factor is capped at
// ProfitFactorCap when there are no losing trades so a finite value always
// crosses the serialization boundary.
package metrics

import (
	"math"

	"algoace/internal/domain"
)

// ProfitFactorCap is the finite sentinel returned when gross loss is zero
// but gross profit is positive. A non-finite ratio would not survive JSON
// encoding.
const ProfitFactorCap = 999.99

// annualization is the trading-days-per-year factor for Sharpe and Sortino.
const annualization = 252

// Summarize computes the full set of summary metrics for one backtest run.
func Summarize(trades []domain.Trade, curve []domain.EquityPoint, initialCapital float64) domain.SummaryMetrics {
	var grossProfit, grossLoss float64
	winning := 0
	for _, t := range trades {
		pnl := t.RealizedPnL()
		if pnl > 0 {
			grossProfit += pnl
			winning++
		} else {
			grossLoss += pnl
		}
	}

	netProfit := grossProfit + grossLoss
	if len(curve) > 0 {
		// Final equity includes mark-to-market of any still-open position.
		netProfit = curve[len(curve)-1].Equity - initialCapital
	}

	m := domain.SummaryMetrics{
		NetProfit:    netProfit,
		ProfitFactor: profitFactor(grossProfit, grossLoss),
		MaxDrawdown:  MaxDrawdown(curve),
		TotalTrades:  len(trades),
	}

	if len(trades) > 0 {
		m.WinRate = float64(winning) / float64(len(trades))
		m.AvgTradePnL = netProfit / float64(len(trades))
	}

	returns := barReturns(curve)
	m.SharpeRatio = sharpe(returns)
	m.SortinoRatio = sortino(returns)

	return m
}

// profitFactor returns grossProfit / |grossLoss|, capped at ProfitFactorCap
// when there are no losses, and 0 when there is no profit either.
func profitFactor(grossProfit, grossLoss float64) float64 {
	if grossLoss == 0 {
		if grossProfit == 0 {
			return 0
		}
		return ProfitFactorCap
	}
	pf := grossProfit / math.Abs(grossLoss)
	if pf > ProfitFactorCap {
		return ProfitFactorCap
	}
	return pf
}

// MaxDrawdown returns the largest peak-to-trough decline of the equity curve
// relative to the running peak, as a 0-1 fraction. It is 0 for an empty or
// monotonically non-decreasing curve.
func MaxDrawdown(curve []domain.EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}

	runningPeak := curve[0].Equity
	maxDD := 0.0
	for _, p := range curve {
		if p.Equity > runningPeak {
			runningPeak = p.Equity
		}
		if runningPeak > 0 {
			dd := (runningPeak - p.Equity) / runningPeak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// barReturns computes per-bar simple returns from the equity curve.
func barReturns(curve []domain.EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, (curve[i].Equity-prev)/prev)
	}
	return returns
}

// sharpe returns the annualized Sharpe ratio of the given returns, or 0 when
// there are fewer than 2 points or the deviation is zero.
func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	m := mean(returns)
	sd := stddev(returns, m)
	if sd == 0 {
		return 0
	}
	return m / sd * math.Sqrt(annualization)
}

// sortino is like sharpe but its deviation is computed only over the subset
// of negative returns. It is 0 when no negative returns exist.
func sortino(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	var negative []float64
	for _, r := range returns {
		if r < 0 {
			negative = append(negative, r)
		}
	}
	if len(negative) == 0 {
		return 0
	}

	downside := stddev(negative, mean(negative))
	if downside == 0 {
		return 0
	}
	return mean(returns) / downside * math.Sqrt(annualization)
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the population standard deviation around the given mean.
func stddev(xs []float64, m float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}
