package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"algoace/internal/backtest"
	"algoace/internal/dataset"
	"algoace/internal/domain"
	"algoace/internal/store"
	"algoace/internal/strategy"
)

// JobService is the backtest job surface the API needs.
type JobService interface {
	Submit(ctx context.Context, strategyID string, params domain.BacktestParams) (string, error)
	Status(jobID string) (backtest.Job, error)
	LatestCompleted(strategyID string) (*domain.BacktestResult, bool)
	HasActive(strategyID string) bool
}

// ResultService is the persistence surface the API needs.
type ResultService interface {
	Create(ctx context.Context, r domain.BacktestResult) (domain.BacktestResult, error)
	Get(ctx context.Context, id int64) (domain.BacktestResult, error)
	List(ctx context.Context, limit int) ([]domain.BacktestResult, error)
	ListByStrategy(ctx context.Context, strategyID string) ([]domain.BacktestResult, error)
	Latest(ctx context.Context, strategyID string) (domain.BacktestResult, error)
	Delete(ctx context.Context, id int64) error
	SetLocked(ctx context.Context, id int64, locked bool) error
	PruneOld(ctx context.Context, strategyID string, keep int) (int, error)
	AttachAnalysis(ctx context.Context, id int64, analysis string, force bool) (string, bool, error)
}

// DatasetService covers availability checks and downloads.
type DatasetService interface {
	CheckAvailability(ctx context.Context, symbol, timeframe string) (*dataset.Availability, error)
	Download(ctx context.Context, symbol, timeframe, startDate, endDate string) (domain.Dataset, bool, error)
}

// AnalysisService generates analyses of results.
type AnalysisService interface {
	Analyze(ctx context.Context, result domain.BacktestResult) (string, error)
}

// Server serves the backtest REST API.
type Server struct {
	jobs      JobService
	results   ResultService
	datasets  DatasetService
	analyzer  AnalysisService
	keepCount int
	log       *slog.Logger
}

// NewServer creates a Server. analyzer may be nil when no LLM is
// configured; the analyze endpoint then returns 503. keepCount is the
// default for history pruning.
func NewServer(jobs JobService, results ResultService, datasets DatasetService, analyzer AnalysisService, keepCount int) *Server {
	if keepCount <= 0 {
		keepCount = 5
	}
	return &Server{
		jobs:      jobs,
		results:   results,
		datasets:  datasets,
		analyzer:  analyzer,
		keepCount: keepCount,
		log:       slog.Default().With("component", "httpapi"),
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/backtesting/run", s.handleRun)
	mux.HandleFunc("GET /api/backtesting/jobs/{id}/status", s.handleJobStatus)
	mux.HandleFunc("GET /api/backtesting/results/{strategyId}", s.handleResults)

	mux.HandleFunc("GET /api/backtest-history", s.handleHistoryList)
	mux.HandleFunc("POST /api/backtest-history", s.handleHistorySave)
	mux.HandleFunc("GET /api/backtest-history/{id}", s.handleHistoryGet)
	mux.HandleFunc("DELETE /api/backtest-history/{id}", s.handleHistoryDelete)
	mux.HandleFunc("DELETE /api/backtest-history/strategy/{strategyId}", s.handleHistoryPrune)
	mux.HandleFunc("POST /api/backtest-history/{id}/lock", s.handleHistoryLock)
	mux.HandleFunc("POST /api/backtest-history/{id}/analyze", s.handleHistoryAnalyze)

	mux.HandleFunc("GET /api/datasets/check", s.handleDatasetCheck)
	mux.HandleFunc("POST /api/datasets/download", s.handleDatasetDownload)
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ---------------------------------------------------------------------------
// Backtest execution
// ---------------------------------------------------------------------------

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	jobID, err := s.jobs.Submit(r.Context(), req.StrategyID, domain.BacktestParams{
		Symbol:         req.Symbol,
		Timeframe:      req.Timeframe,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		InitialCapital: req.InitialCapital,
	})
	if err != nil {
		s.writeErr(w, err)
		return
	}

	writeJSON(w, RunResponse{
		JobID:   jobID,
		Status:  domain.JobPending,
		Message: "backtest job accepted",
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Status(r.PathValue("id"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, job)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	strategyID := r.PathValue("strategyId")

	result, err := s.results.Latest(r.Context(), strategyID)
	if err == nil {
		writeJSON(w, result)
		return
	}
	if !errors.Is(err, store.ErrNotFound) {
		s.writeErr(w, err)
		return
	}

	if inFlight, ok := s.jobs.LatestCompleted(strategyID); ok {
		writeJSON(w, *inFlight)
		return
	}

	if s.jobs.HasActive(strategyID) {
		writeError(w, http.StatusNotFound, "backtest still running, results not ready yet")
		return
	}
	writeError(w, http.StatusNotFound, "no backtest results for this strategy")
}

// ---------------------------------------------------------------------------
// Backtest history
// ---------------------------------------------------------------------------

func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	strategyID := r.URL.Query().Get("strategy_id")
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	var (
		results []domain.BacktestResult
		err     error
	)
	if strategyID != "" {
		results, err = s.results.ListByStrategy(r.Context(), strategyID)
		if err == nil && limit > 0 && len(results) > limit {
			results = results[:limit]
		}
	} else {
		results, err = s.results.List(r.Context(), limit)
	}
	if err != nil {
		s.writeErr(w, err)
		return
	}

	summaries := make([]HistorySummary, 0, len(results))
	for _, res := range results {
		summaries = append(summaries, summarize(res))
	}
	writeJSON(w, summaries)
}

func (s *Server) handleHistorySave(w http.ResponseWriter, r *http.Request) {
	var result domain.BacktestResult
	if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if result.StrategyID == "" {
		writeError(w, http.StatusBadRequest, "strategyId is required")
		return
	}

	stored, err := s.results.Create(r.Context(), result)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(stored); err != nil {
		s.log.Error("encoding JSON response", "error", err)
	}
}

func (s *Server) handleHistoryGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	result, err := s.results.Get(r.Context(), id)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, result)
}

func (s *Server) handleHistoryDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := s.results.Delete(r.Context(), id); err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, DeleteResponse{Success: true})
}

func (s *Server) handleHistoryPrune(w http.ResponseWriter, r *http.Request) {
	strategyID := r.PathValue("strategyId")
	keep := s.keepCount
	if k := r.URL.Query().Get("keep_count"); k != "" {
		n, err := strconv.Atoi(k)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "keep_count must be a non-negative integer")
			return
		}
		keep = n
	}

	deleted, err := s.results.PruneOld(r.Context(), strategyID, keep)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, DeleteResponse{Success: true, Deleted: deleted})
}

func (s *Server) handleHistoryLock(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req LockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.results.SetLocked(r.Context(), id, req.Locked); err != nil {
		s.writeErr(w, err)
		return
	}
	result, err := s.results.Get(r.Context(), id)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, result)
}

func (s *Server) handleHistoryAnalyze(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req AnalyzeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	result, err := s.results.Get(r.Context(), id)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	if result.AIAnalysis != nil && *result.AIAnalysis != "" && !req.Force {
		writeJSON(w, AnalyzeResponse{Analysis: *result.AIAnalysis, Cached: true})
		return
	}

	if s.analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis service not configured")
		return
	}
	text, err := s.analyzer.Analyze(r.Context(), result)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	stored, _, err := s.results.AttachAnalysis(r.Context(), id, text, req.Force)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, AnalyzeResponse{Analysis: stored})
}

// ---------------------------------------------------------------------------
// Datasets
// ---------------------------------------------------------------------------

func (s *Server) handleDatasetCheck(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	timeframe := r.URL.Query().Get("timeframe")
	if symbol == "" || timeframe == "" {
		writeError(w, http.StatusBadRequest, "symbol and timeframe are required")
		return
	}

	av, err := s.datasets.CheckAvailability(r.Context(), symbol, timeframe)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, av)
}

func (s *Server) handleDatasetDownload(w http.ResponseWriter, r *http.Request) {
	var req DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Symbol == "" || req.Timeframe == "" || req.StartDate == "" || req.EndDate == "" {
		writeError(w, http.StatusBadRequest, "symbol, timeframe, startDate, and endDate are required")
		return
	}

	ds, created, err := s.datasets.Download(r.Context(), req.Symbol, req.Timeframe, req.StartDate, req.EndDate)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, DownloadResponse{Dataset: ds, Created: created})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id must be numeric")
		return 0, false
	}
	return id, true
}

// writeErr maps typed errors onto status codes.
func (s *Server) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrLocked):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, strategy.ErrNotFound),
		errors.Is(err, backtest.ErrNotFound),
		errors.Is(err, dataset.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.log.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
