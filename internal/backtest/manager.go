// Package backtest owns the job lifecycle: submission, background
// execution, progress tracking, and terminal-state bookkeeping.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"algoace/internal/dataset"
	"algoace/internal/domain"
	"algoace/internal/engine"
	"algoace/internal/metrics"
	"algoace/internal/strategy"
)

// ErrNotFound is returned when a job ID is unknown.
var ErrNotFound = errors.New("job not found")

// StrategyLoader resolves strategy IDs to runnable definitions.
type StrategyLoader interface {
	Load(ctx context.Context, strategyID string) (*strategy.Definition, error)
}

// DatasetResolver validates datasets for a symbol and timeframe.
type DatasetResolver interface {
	Resolve(ctx context.Context, symbol, timeframe string) (*dataset.Resolution, error)
}

// Runner executes a simulation over a date range.
type Runner interface {
	Run(ctx context.Context, in engine.RunInput, start, end time.Time) (*engine.RunOutput, []string, error)
}

// ResultWriter persists completed results.
type ResultWriter interface {
	Create(ctx context.Context, r domain.BacktestResult) (domain.BacktestResult, error)
}

// Job is one backtest run tracked by the manager. Jobs live in memory only;
// completed results are persisted separately.
type Job struct {
	ID          string                 `json:"jobId"`
	StrategyID  string                 `json:"strategyId"`
	Params      domain.BacktestParams  `json:"parameters"`
	Status      domain.JobStatus       `json:"status"`
	Progress    float64                `json:"progress"`
	CurrentDate string                 `json:"currentDate,omitempty"`
	TotalDays   int                    `json:"totalDays"`
	Message     string                 `json:"message,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	UpdatedAt   time.Time              `json:"updatedAt"`
	Result      *domain.BacktestResult `json:"-"`
}

// Options tune the manager.
type Options struct {
	// Timeout is the cooperative per-job deadline.
	Timeout time.Duration
	// MaxConcurrent bounds the number of simultaneously running jobs.
	MaxConcurrent int
}

// Manager tracks backtest jobs and runs them on a bounded worker pool.
// All job reads and writes go through the manager's mutex; callers only
// ever see snapshot copies.
type Manager struct {
	loader   StrategyLoader
	resolver DatasetResolver
	runner   Runner
	results  ResultWriter
	timeout  time.Duration
	log      *slog.Logger

	// readBars loads the bar series of a resolved dataset. Swappable so
	// tests run without files.
	readBars func(ds domain.Dataset, symbol string) ([]domain.Bar, error)

	sem  chan struct{}
	mu   sync.Mutex
	jobs map[string]*Job
}

// NewManager creates a Manager with the given collaborators.
func NewManager(loader StrategyLoader, resolver DatasetResolver, runner Runner, results ResultWriter, opts Options) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = 300 * time.Second
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	return &Manager{
		loader:   loader,
		resolver: resolver,
		runner:   runner,
		results:  results,
		timeout:  opts.Timeout,
		log:      slog.Default().With("component", "job-manager"),
		readBars: dataset.ReadBars,
		sem:      make(chan struct{}, opts.MaxConcurrent),
		jobs:     make(map[string]*Job),
	}
}

// Submit validates the request, registers a PENDING job, and dispatches it
// to the worker pool. It returns once the job is registered; only
// validation blocks the caller.
func (m *Manager) Submit(ctx context.Context, strategyID string, params domain.BacktestParams) (string, error) {
	def, err := m.loader.Load(ctx, strategyID)
	if err != nil {
		return "", err
	}

	start, end, err := params.DateRange()
	if err != nil {
		return "", fmt.Errorf("%w: invalid date range: %v", domain.ErrValidation, err)
	}
	if !end.After(start) {
		return "", fmt.Errorf("%w: endDate must be after startDate", domain.ErrValidation)
	}
	if params.InitialCapital <= 0 {
		return "", fmt.Errorf("%w: initialCapital must be positive", domain.ErrValidation)
	}

	res, err := m.resolver.Resolve(ctx, params.Symbol, params.Timeframe)
	if err != nil {
		if errors.Is(err, dataset.ErrNoValidDataset) {
			return "", fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		return "", err
	}
	ds := res.Valid[0]

	jobID := uuid.NewString()
	now := time.Now().UTC()
	job := &Job{
		ID:         jobID,
		StrategyID: strategyID,
		Params:     params,
		Status:     domain.JobPending,
		TotalDays:  int(end.Sub(start).Hours()/24) + 1,
		Message:    strings.Join(res.Warnings, "; "),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	m.mu.Lock()
	m.jobs[jobID] = job
	m.mu.Unlock()

	m.log.Info("job submitted",
		"job", jobID, "strategy", strategyID, "symbol", params.Symbol, "timeframe", params.Timeframe)

	go m.runJob(jobID, def, ds, params, start, end)
	return jobID, nil
}

// Status returns a snapshot of the job, or ErrNotFound.
func (m *Manager) Status(jobID string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	return *job, nil
}

// LatestCompleted returns the most recently completed in-flight job result
// for a strategy, if any.
func (m *Manager) LatestCompleted(strategyID string) (*domain.BacktestResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		best     *Job
		bestTime time.Time
	)
	for _, job := range m.jobs {
		if job.StrategyID != strategyID || job.Status != domain.JobCompleted || job.Result == nil {
			continue
		}
		if best == nil || job.UpdatedAt.After(bestTime) {
			best, bestTime = job, job.UpdatedAt
		}
	}
	if best == nil {
		return nil, false
	}
	result := *best.Result
	return &result, true
}

// HasActive reports whether any job for the strategy is pending or running.
func (m *Manager) HasActive(strategyID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if job.StrategyID == strategyID && !job.Status.Terminal() {
			return true
		}
	}
	return false
}

// runJob executes one job on the worker pool. Every failure mode, panics
// included, lands in FAILED.
func (m *Manager) runJob(jobID string, def *strategy.Definition, ds domain.Dataset, params domain.BacktestParams, start, end time.Time) {
	m.sem <- struct{}{}
	defer func() { <-m.sem }()

	defer func() {
		if r := recover(); r != nil {
			m.log.Error("job panicked", "job", jobID, "panic", r)
			m.markFailed(jobID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	deadline := time.Now().Add(m.timeout)
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	m.markRunning(jobID)

	bars, err := m.readBars(ds, params.Symbol)
	if err != nil {
		m.markFailed(jobID, fmt.Sprintf("loading dataset: %v", err))
		return
	}

	out, warnings, err := m.runner.Run(ctx, engine.RunInput{
		Strategy:       def.Strategy,
		Key:            def.Key,
		Params:         def.Params,
		Bars:           bars,
		InitialCapital: params.InitialCapital,
		Deadline:       deadline,
		Progress: func(pct float64, date time.Time) {
			m.updateProgress(jobID, pct, date)
		},
	}, start, end)
	if err != nil {
		m.markFailed(jobID, err.Error())
		return
	}

	summary := metrics.Summarize(out.Trades, out.EquityCurve, params.InitialCapital)
	summary.Symbol = params.Symbol
	summary.Timeframe = params.Timeframe
	summary.StartDate = params.StartDate
	summary.EndDate = params.EndDate

	result := domain.BacktestResult{
		StrategyID:  def.ID,
		Timestamp:   time.Now().UTC(),
		Params:      params,
		Summary:     summary,
		EquityCurve: out.EquityCurve,
		Trades:      out.Trades,
		LogOutput:   strings.Join(warnings, "\n"),
	}
	stored, err := m.results.Create(ctx, result)
	if err != nil {
		m.markFailed(jobID, fmt.Sprintf("persisting result: %v", err))
		return
	}

	m.markCompleted(jobID, stored)
	m.log.Info("job completed",
		"job", jobID, "strategy", def.ID, "trades", len(stored.Trades), "netProfit", stored.Summary.NetProfit)
}

func (m *Manager) markRunning(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok || job.Status.Terminal() {
		return
	}
	job.Status = domain.JobRunning
	job.UpdatedAt = time.Now().UTC()
}

func (m *Manager) updateProgress(jobID string, pct float64, date time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok || job.Status != domain.JobRunning {
		return
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	job.Progress = pct
	job.CurrentDate = date.Format("2006-01-02")
	job.UpdatedAt = time.Now().UTC()
}

func (m *Manager) markCompleted(jobID string, result domain.BacktestResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok || job.Status.Terminal() {
		return
	}
	job.Status = domain.JobCompleted
	job.Progress = 100
	job.Message = "backtest completed"
	job.Result = &result
	job.UpdatedAt = time.Now().UTC()
}

func (m *Manager) markFailed(jobID, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok || job.Status.Terminal() {
		return
	}
	job.Status = domain.JobFailed
	job.Message = message
	job.UpdatedAt = time.Now().UTC()
}
