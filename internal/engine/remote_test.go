package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"algoace/internal/domain"
	"algoace/internal/strategy"
)

func TestRemoteSimulatorRun(t *testing.T) {
	var gotReq remoteRunRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/run" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(remoteRunResponse{
			EquityCurve: []domain.EquityPoint{
				{Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Equity: 10000},
			},
		})
	}))
	defer srv.Close()

	sim := NewRemoteSimulator(srv.URL, 5*time.Second)
	out, err := sim.Run(context.Background(), RunInput{
		Key:            "ema-cross",
		Params:         strategy.Params{"shortPeriod": 5},
		Bars:           dailyBars(3),
		InitialCapital: 10000,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gotReq.Strategy != "ema-cross" || gotReq.InitialCapital != 10000 || len(gotReq.Bars) != 3 {
		t.Errorf("request payload = %+v", gotReq)
	}
	if len(out.EquityCurve) != 1 {
		t.Errorf("got %d equity points, want 1", len(out.EquityCurve))
	}
}

func TestRemoteSimulatorServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "engine crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	sim := NewRemoteSimulator(srv.URL, 5*time.Second)
	if _, err := sim.Run(context.Background(), RunInput{Bars: dailyBars(3)}); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestRemoteSimulatorApplicationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(remoteRunResponse{Error: "unknown strategy"})
	}))
	defer srv.Close()

	sim := NewRemoteSimulator(srv.URL, 5*time.Second)
	if _, err := sim.Run(context.Background(), RunInput{Bars: dailyBars(3)}); err == nil {
		t.Error("expected error for application-level failure")
	}
}

func TestRemoteSimulatorUnreachable(t *testing.T) {
	sim := NewRemoteSimulator("http://127.0.0.1:1", time.Second)
	if _, err := sim.Run(context.Background(), RunInput{Bars: dailyBars(3)}); err == nil {
		t.Error("expected error for unreachable engine")
	}
}
