package whattomine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

const coinsBody = `{"coins": {
	"Bitcoin":  {"tag": "BTC", "profitability": 100.5},
	"Ethereum": {"tag": "ETH", "profitability": 215.2},
	"Ravencoin": {"tag": "RVN", "profitability": 80.1},
	"NoTag":    {"profitability": 999},
	"NoProfit": {"tag": "XXX"}
}}`

func TestBestCoinPicksHighestProfitability(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(coinsBody))
	}))
	defer srv.Close()

	c := NewCache(srv.URL, DefaultTTL, nil)
	best := c.BestCoin(context.Background())

	// Entries missing a tag or a profitability figure must not win.
	if best.Tag != "ETH" {
		t.Errorf("best coin = %q, want ETH", best.Tag)
	}
	if !best.Profitability.Equal(decimal.NewFromFloat(215.2)) {
		t.Errorf("profitability = %s, want 215.2", best.Profitability)
	}
}

func TestBestCoinSingleFetchWithinTTL(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(coinsBody))
	}))
	defer srv.Close()

	now := time.Now()
	c := NewCache(srv.URL, DefaultTTL, nil)
	c.now = func() time.Time { return now }

	c.BestCoin(context.Background())
	c.BestCoin(context.Background())
	if calls != 1 {
		t.Errorf("upstream fetched %d times within TTL, want 1", calls)
	}

	// Past the TTL the next call refetches.
	now = now.Add(DefaultTTL + time.Second)
	c.BestCoin(context.Background())
	if calls != 2 {
		t.Errorf("upstream fetched %d times after TTL expiry, want 2", calls)
	}
}

func TestBestCoinUnknownWhenNeverPopulated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewCache(srv.URL, DefaultTTL, nil)
	best := c.BestCoin(context.Background())
	if best.Tag != "Unknown" {
		t.Errorf("tag = %q, want Unknown", best.Tag)
	}
	if !best.Profitability.IsZero() {
		t.Errorf("profitability = %s, want 0", best.Profitability)
	}
}

func TestBestCoinServesStaleSnapshotOnRefreshFailure(t *testing.T) {
	var fail bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(coinsBody))
	}))
	defer srv.Close()

	now := time.Now()
	c := NewCache(srv.URL, DefaultTTL, nil)
	c.now = func() time.Time { return now }

	if got := c.BestCoin(context.Background()); got.Tag != "ETH" {
		t.Fatalf("initial best = %q, want ETH", got.Tag)
	}

	fail = true
	now = now.Add(DefaultTTL + time.Second)
	if got := c.BestCoin(context.Background()); got.Tag != "ETH" {
		t.Errorf("best after failed refresh = %q, want stale ETH snapshot", got.Tag)
	}
}

func TestRefreshAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": "rate limited"}`))
	}))
	defer srv.Close()

	c := NewCache(srv.URL, DefaultTTL, nil)
	if err := c.Refresh(context.Background()); err == nil {
		t.Fatal("want error for api error body")
	}
}

func TestBestCoinConcurrentAccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(coinsBody))
	}))
	defer srv.Close()

	c := NewCache(srv.URL, time.Nanosecond, nil) // every call refreshes

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if got := c.BestCoin(context.Background()); got.Tag != "ETH" {
					t.Errorf("best = %q, want ETH", got.Tag)
				}
			}
		}()
	}
	wg.Wait()
}
