package oracle_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/btcguess/guess-engine/internal/oracle"
)

const quoteBody = `{
	"status": {"error_code": 0, "error_message": ""},
	"data": {
		"BTC": {
			"quote": {
				"USD": {
					"price": 64250.55,
					"percent_change_24h": 1.8,
					"last_updated": "2026-08-31T12:00:00.000Z"
				}
			}
		}
	}
}`

func newClient(t *testing.T, handler http.HandlerFunc) *oracle.CMCClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return oracle.NewCMCClient("test-key",
		oracle.WithBaseURL(srv.URL),
		oracle.WithRetryBudget(100*time.Millisecond),
	)
}

func TestLatestSnapshot(t *testing.T) {
	var gotKey string
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-CMC_PRO_API_KEY")
		if r.URL.Path != "/cryptocurrency/quotes/latest" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, quoteBody)
	})

	snap, err := client.LatestSnapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if gotKey != "test-key" {
		t.Errorf("expected api key header, got %q", gotKey)
	}
	if snap.Price.String() != "64250.55" {
		t.Errorf("expected price 64250.55, got %s", snap.Price)
	}
	if snap.Change24hPct.String() != "1.8" {
		t.Errorf("expected change 1.8, got %s", snap.Change24hPct)
	}
}

func TestCurrentPrice(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, quoteBody)
	})

	price, err := client.CurrentPrice(context.Background())
	if err != nil {
		t.Fatalf("current price failed: %v", err)
	}
	if price.String() != "64250.55" {
		t.Errorf("expected 64250.55, got %s", price)
	}
}

func TestServerError_WrapsUnavailable(t *testing.T) {
	var attempts atomic.Int64
	client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.LatestSnapshot(context.Background())
	if !errors.Is(err, oracle.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
	if attempts.Load() == 0 {
		t.Error("expected at least one attempt")
	}
}

func TestRecoversAfterTransientFailure(t *testing.T) {
	var attempts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, quoteBody)
	}))
	defer srv.Close()

	client := oracle.NewCMCClient("test-key",
		oracle.WithBaseURL(srv.URL),
		oracle.WithRetryBudget(10*time.Second),
	)

	snap, err := client.LatestSnapshot(context.Background())
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if snap.Price.String() != "64250.55" {
		t.Errorf("expected price 64250.55, got %s", snap.Price)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestUnauthorized_NoRetry(t *testing.T) {
	var attempts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	// A long budget that a permanent error must cut short.
	client := oracle.NewCMCClient("bad-key",
		oracle.WithBaseURL(srv.URL),
		oracle.WithRetryBudget(10*time.Second),
	)

	start := time.Now()
	_, err := client.LatestSnapshot(context.Background())
	if !errors.Is(err, oracle.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("expected exactly 1 attempt for an auth failure, got %d", attempts.Load())
	}
	if time.Since(start) > 5*time.Second {
		t.Error("auth failure must not burn the retry budget")
	}
}

func TestUpstreamErrorBody(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status": {"error_code": 1008, "error_message": "rate limit"}, "data": {}}`)
	})

	_, err := client.LatestSnapshot(context.Background())
	if !errors.Is(err, oracle.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestNonPositivePriceRejected(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{
			"status": {"error_code": 0},
			"data": {"BTC": {"quote": {"USD": {"price": 0}}}}
		}`)
	})

	_, err := client.LatestSnapshot(context.Background())
	if !errors.Is(err, oracle.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestCanceledContext(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, quoteBody)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.LatestSnapshot(ctx); !errors.Is(err, oracle.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}
