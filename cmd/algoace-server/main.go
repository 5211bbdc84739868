package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"algoace/internal/analyze"
	"algoace/internal/backtest"
	"algoace/internal/config"
	"algoace/internal/dataset"
	"algoace/internal/domain"
	"algoace/internal/engine"
	"algoace/internal/httpapi"
	"algoace/internal/store"
	"algoace/internal/strategy"
	"algoace/internal/strategy/builtins"
	"algoace/internal/util"
)

func main() {
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

	results, err := store.NewResultStore(db)
	if err != nil {
		log.Fatalf("failed to init result store: %v", err)
	}
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

	timeout := time.Duration(cfg.Backtest.TimeoutSeconds) * time.Second
	var remote engine.Simulator
	if cfg.Backtest.Engine == "remote" && cfg.Backtest.RemoteURL != "" {
		remote = engine.NewRemoteSimulator(cfg.Backtest.RemoteURL, timeout)
		logger.Info("using remote engine", "url", cfg.Backtest.RemoteURL)
	}
	eng := engine.New(remote)

	manager := backtest.NewManager(loader, resolver, eng, results, backtest.Options{
		Timeout:       timeout,
		MaxConcurrent: cfg.Backtest.MaxConcurrent,
	})

	var analyzer httpapi.AnalysisService
	if cfg.LLM.APIKey != "" {
		analyzer = analyze.NewAnalyzer(analyze.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model))
	} else {
		logger.Warn("no LLM API key configured, analysis endpoint disabled")
	}

	downloader := dataset.NewDownloader(
		cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL,
		datasetCatalog, cfg.Storage.DataDir, cfg.Alpaca.RateLimitPerMin,
	)

	api := httpapi.NewServer(manager, results, &datasetService{
		resolver:   resolver,
		downloader: downloader,
	}, analyzer, cfg.Backtest.KeepCount)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.Handler(),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("algoace-server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}

// datasetService joins the resolver and downloader into the single dataset
// surface the API expects.
type datasetService struct {
	resolver   *dataset.Resolver
	downloader *dataset.Downloader
}

func (s *datasetService) CheckAvailability(ctx context.Context, symbol, timeframe string) (*dataset.Availability, error) {
	return s.resolver.CheckAvailability(ctx, symbol, timeframe)
}

func (s *datasetService) Download(ctx context.Context, symbol, timeframe, startDate, endDate string) (domain.Dataset, bool, error) {
	return s.downloader.Download(ctx, symbol, timeframe, startDate, endDate)
}
