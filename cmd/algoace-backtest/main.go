package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"algoace/internal/config"
	"algoace/internal/dataset"
	"algoace/internal/domain"
	"algoace/internal/engine"
	"algoace/internal/metrics"
	"algoace/internal/store"
	"algoace/internal/strategy"
	"algoace/internal/strategy/builtins"
	"algoace/internal/util"
)

func main() {
	strategyID := flag.String("strategy", "", "strategy ID, e.g. strat-ema-cross or strat-1699890528481")
	symbol := flag.String("symbol", "", "symbol to backtest, e.g. EUR/USD or BTC/USD")
	timeframe := flag.String("timeframe", "1d", "bar timeframe: 1m, 1h, 1d")
	startDate := flag.String("start", "", "start date (YYYY-MM-DD)")
	endDate := flag.String("end", "", "end date (YYYY-MM-DD, inclusive)")
	capital := flag.Float64("capital", 10000, "initial capital")
	save := flag.Bool("save", false, "persist the result to the history store")
	flag.Parse()

	if *strategyID == "" || *symbol == "" || *startDate == "" || *endDate == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfgPath := "config/algoace.yaml"
	if p := os.Getenv("ALGOACE_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level)
	slog.SetDefault(logger)

	db, err := store.Open(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	datasetCatalog, err := dataset.NewCatalog(db)
	if err != nil {
		log.Fatalf("failed to init dataset catalog: %v", err)
	}
	strategyCatalog, err := strategy.NewCatalog(db)
	if err != nil {
		log.Fatalf("failed to init strategy catalog: %v", err)
	}

	registry := strategy.NewRegistry()
	builtins.RegisterAll(registry)
	loader := strategy.NewLoader(strategyCatalog, registry)
	resolver := dataset.NewResolver(datasetCatalog, cfg.Storage.DataDir)

	var remote engine.Simulator
	if cfg.Backtest.Engine == "remote" && cfg.Backtest.RemoteURL != "" {
		remote = engine.NewRemoteSimulator(cfg.Backtest.RemoteURL, time.Duration(cfg.Backtest.TimeoutSeconds)*time.Second)
	}
	eng := engine.New(remote)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	params := domain.BacktestParams{
		Symbol:         *symbol,
		Timeframe:      *timeframe,
		StartDate:      *startDate,
		EndDate:        *endDate,
		InitialCapital: *capital,
	}
	start, end, err := params.DateRange()
	if err != nil {
		log.Fatalf("invalid date range: %v", err)
	}

	def, err := loader.Load(ctx, *strategyID)
	if err != nil {
		log.Fatalf("failed to load strategy: %v", err)
	}

	res, err := resolver.Resolve(ctx, *symbol, *timeframe)
	if err != nil {
		log.Fatalf("failed to resolve dataset: %v", err)
	}
	for _, w := range res.Warnings {
		slog.Warn("dataset warning", "warning", w)
	}

	bars, err := dataset.ReadBars(res.Valid[0], *symbol)
	if err != nil {
		log.Fatalf("failed to read bars: %v", err)
	}

	slog.Info("running backtest",
		"strategy", def.ID, "symbol", *symbol, "timeframe", *timeframe,
		"start", *startDate, "end", *endDate, "bars", len(bars))

	in := engine.RunInput{
		Strategy:       def.Strategy,
		Key:            def.Key,
		Params:         def.Params,
		Bars:           bars,
		InitialCapital: *capital,
	}
	out, warnings, err := eng.Run(ctx, in, start, end)
	if err != nil {
		log.Fatalf("backtest failed: %v", err)
	}
	for _, w := range warnings {
		slog.Warn("backtest warning", "warning", w)
	}

	summary := metrics.Summarize(out.Trades, out.EquityCurve, *capital)
	summary.Symbol = *symbol
	summary.Timeframe = *timeframe
	summary.StartDate = *startDate
	summary.EndDate = *endDate

	fmt.Printf("\nBacktest: %s on %s %s (%s .. %s)\n", def.Name, *symbol, *timeframe, *startDate, *endDate)
	fmt.Printf("  Net profit:    %.2f\n", summary.NetProfit)
	fmt.Printf("  Profit factor: %.2f\n", summary.ProfitFactor)
	fmt.Printf("  Max drawdown:  %.2f%%\n", summary.MaxDrawdown*100)
	fmt.Printf("  Win rate:      %.2f%%\n", summary.WinRate*100)
	fmt.Printf("  Trades:        %d\n", summary.TotalTrades)
	fmt.Printf("  Avg trade PnL: %.2f\n", summary.AvgTradePnL)
	fmt.Printf("  Sharpe:        %.2f\n", summary.SharpeRatio)
	fmt.Printf("  Sortino:       %.2f\n", summary.SortinoRatio)

	if *save {
		results, err := store.NewResultStore(db)
		if err != nil {
			log.Fatalf("failed to init result store: %v", err)
		}
		saved, err := results.Create(ctx, domain.BacktestResult{
			StrategyID:  def.ID,
			Timestamp:   time.Now().UTC(),
			Params:      params,
			Summary:     summary,
			EquityCurve: out.EquityCurve,
			Trades:      out.Trades,
		})
		if err != nil {
			log.Fatalf("failed to save result: %v", err)
		}
		fmt.Printf("\nSaved as result %d\n", saved.ID)
	}
}
