// Package analyze generates AI-backed analyses of backtest results through
// an OpenAI-compatible chat-completions API.
package analyze

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"algoace/internal/domain"
)

// maxTradesInPrompt caps the trade detail included in the prompt so large
// backtests fit the model context.
const maxTradesInPrompt = 20

// Completer is the LLM boundary; the real implementation is an
// OpenAI-compatible client.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Client wraps an OpenAI-compatible chat-completions API.
type Client struct {
	client *openai.Client
	model  string
	log    *slog.Logger
}

// Compile-time interface check.
var _ Completer = (*Client)(nil)

// NewClient creates a Client. baseURL may be empty for the default OpenAI
// endpoint; any OpenAI-compatible service works.
func NewClient(apiKey, baseURL, model string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		log:    slog.Default().With("component", "analyze"),
	}
}

// Complete sends one user prompt and returns the completion text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Analyzer builds analysis prompts from backtest results and runs them
// through a Completer.
type Analyzer struct {
	completer Completer
	log       *slog.Logger
}

// NewAnalyzer creates an Analyzer over the given completer.
func NewAnalyzer(completer Completer) *Analyzer {
	return &Analyzer{
		completer: completer,
		log:       slog.Default().With("component", "analyze"),
	}
}

// Analyze produces an analysis of one backtest result.
func (a *Analyzer) Analyze(ctx context.Context, result domain.BacktestResult) (string, error) {
	prompt := BuildPrompt(result)
	a.log.Info("requesting analysis", "result", result.ID, "strategy", result.StrategyID)

	text, err := a.completer.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("analyzing result %d: %w", result.ID, err)
	}
	return text, nil
}

// BuildPrompt renders the analysis prompt: strategy, parameters, summary
// metrics, and up to maxTradesInPrompt trades.
func BuildPrompt(result domain.BacktestResult) string {
	var sb strings.Builder
	sb.WriteString("You are a quantitative trading analyst. Analyze this backtest result ")
	sb.WriteString("and assess the strategy's strengths, weaknesses, and risk profile.\n\n")

	fmt.Fprintf(&sb, "Strategy: %s\n", result.StrategyID)
	p := result.Params
	fmt.Fprintf(&sb, "Symbol: %s  Timeframe: %s  Range: %s to %s  Initial capital: %.2f\n\n",
		p.Symbol, p.Timeframe, p.StartDate, p.EndDate, p.InitialCapital)

	s := result.Summary
	sb.WriteString("Summary metrics:\n")
	fmt.Fprintf(&sb, "  Net profit: %.2f\n", s.NetProfit)
	fmt.Fprintf(&sb, "  Profit factor: %.2f\n", s.ProfitFactor)
	fmt.Fprintf(&sb, "  Win rate: %.1f%%\n", s.WinRate*100)
	fmt.Fprintf(&sb, "  Max drawdown: %.1f%%\n", s.MaxDrawdown*100)
	fmt.Fprintf(&sb, "  Total trades: %d\n", s.TotalTrades)
	fmt.Fprintf(&sb, "  Sharpe: %.2f  Sortino: %.2f\n\n", s.SharpeRatio, s.SortinoRatio)

	trades := result.Trades
	if len(trades) > maxTradesInPrompt {
		fmt.Fprintf(&sb, "Trades (%d most recent of %d):\n", maxTradesInPrompt, len(trades))
		trades = trades[len(trades)-maxTradesInPrompt:]
	} else {
		fmt.Fprintf(&sb, "Trades (%d):\n", len(trades))
	}
	for _, tr := range trades {
		exit := "open"
		pnl := 0.0
		if tr.Closed() {
			exit = tr.ExitTime.Format("2006-01-02")
			pnl = tr.RealizedPnL()
		}
		fmt.Fprintf(&sb, "  %s %s %s -> %s qty %.4f pnl %.2f\n",
			tr.Direction, tr.Symbol, tr.EntryTime.Format("2006-01-02"), exit, tr.Quantity, pnl)
	}

	sb.WriteString("\nRespond with 3-5 short paragraphs: performance overview, ")
	sb.WriteString("risk assessment, and concrete suggestions for improvement.")
	return sb.String()
}
