package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"algoace/internal/domain"
	"algoace/internal/strategy"
)

// Compile-time interface check.
var _ Simulator = (*RemoteSimulator)(nil)

// RemoteSimulator delegates a run to an external backtest engine service
// over HTTP. The external service reports no incremental progress, so a
// time-sliced estimator feeds the progress callback while the request is
// in flight and stops the moment the response lands.
type RemoteSimulator struct {
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

// NewRemoteSimulator creates a RemoteSimulator against the engine service
// at baseURL.
func NewRemoteSimulator(baseURL string, timeout time.Duration) *RemoteSimulator {
	return &RemoteSimulator{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		log:     slog.Default().With("component", "remote-simulator"),
	}
}

type remoteRunRequest struct {
	Strategy       string          `json:"strategy"`
	Params         strategy.Params `json:"params,omitempty"`
	InitialCapital float64         `json:"initialCapital"`
	Bars           []domain.Bar    `json:"bars"`
}

type remoteRunResponse struct {
	Trades      []domain.Trade       `json:"trades"`
	EquityCurve []domain.EquityPoint `json:"equityCurve"`
	Error       string               `json:"error,omitempty"`
}

// Run posts the bars and strategy parameters to the engine service. Any failure
// returns an error so the caller can fall back to the internal simulator.
func (s *RemoteSimulator) Run(ctx context.Context, in RunInput) (*RunOutput, error) {
	if len(in.Bars) == 0 {
		return nil, fmt.Errorf("%w: no bars to simulate", domain.ErrExecution)
	}

	body, err := json.Marshal(remoteRunRequest{
		Strategy:       in.Key,
		Params:         in.Params,
		InitialCapital: in.InitialCapital,
		Bars:           in.Bars,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding engine request: %w", err)
	}

	if !in.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, in.Deadline)
		defer cancel()
	}

	stop := s.startProgressEstimator(ctx, in)
	defer stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/run", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building engine request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling engine service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("engine service returned %d: %s", resp.StatusCode, payload)
	}

	var rr remoteRunResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, fmt.Errorf("decoding engine response: %w", err)
	}
	if rr.Error != "" {
		return nil, fmt.Errorf("%w: engine service: %s", domain.ErrExecution, rr.Error)
	}

	return &RunOutput{Trades: rr.Trades, EquityCurve: rr.EquityCurve}, nil
}

// startProgressEstimator emits estimated progress over the simulated date
// range while the remote call is in flight. The returned stop func must be
// called when the call completes; estimates never reach 100.
func (s *RemoteSimulator) startProgressEstimator(ctx context.Context, in RunInput) func() {
	if in.Progress == nil {
		return func() {}
	}

	first := in.Bars[0].Timestamp
	last := in.Bars[len(in.Bars)-1].Timestamp
	window := time.Until(in.Deadline)
	if in.Deadline.IsZero() || window <= 0 {
		window = time.Minute
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		started := time.Now()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				frac := time.Since(started).Seconds() / window.Seconds()
				if frac > 0.95 {
					frac = 0.95
				}
				date := first.Add(time.Duration(frac * float64(last.Sub(first))))
				in.Progress(frac*100, date)
			}
		}
	}()
	return func() { close(done) }
}
