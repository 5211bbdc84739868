package dataset

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestDownloadRetriesTransientErrors(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/stocks/bars" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		// First attempt fails with a non-retryable client status; the
		// downloader's own retry must issue a second request.
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code":40010001,"message":"transient"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"bars":{"SPY":[
			{"t":"2024-01-02T05:00:00Z","o":100,"h":105,"l":99,"c":104,"v":1000,"n":10,"vw":102},
			{"t":"2024-01-03T05:00:00Z","o":104,"h":110,"l":103,"c":108,"v":1500,"n":12,"vw":106}
		]},"next_page_token":null}`))
	}))
	defer srv.Close()

	catalog := newTestCatalog(t)
	d := NewDownloader("key", "secret", srv.URL, catalog, t.TempDir(), 200)
	d.retryDelay = time.Millisecond

	ds, created, err := d.Download(context.Background(), "SPY", "1d", "2024-01-02", "2024-01-03")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !created {
		t.Error("created = false, want true")
	}
	if got := requests.Load(); got != 2 {
		t.Errorf("server saw %d requests, want 2", got)
	}
	if ds.Metadata.RowCount != 2 {
		t.Errorf("RowCount = %d, want 2", ds.Metadata.RowCount)
	}
	if ds.Metadata.StartDate != "2024-01-02" || ds.Metadata.EndDate != "2024-01-03" {
		t.Errorf("date range = [%s, %s]", ds.Metadata.StartDate, ds.Metadata.EndDate)
	}
}
