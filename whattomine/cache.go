package whattomine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const DefaultAPIURL = "https://whattomine.com/coins.json"

const DefaultTTL = 300 * time.Second

// Coin is a coin tag with its current profitability figure.
type Coin struct {
	Tag           string
	Profitability decimal.Decimal
}

// Unknown is served while the cache has never been populated. Its zero
// profitability keeps downstream profit estimates non-positive, so an
// unavailable reference service cannot produce false-positive alerts.
var Unknown = Coin{Tag: "Unknown", Profitability: decimal.Zero}

// Cache holds a TTL-bounded snapshot of the WhatToMine coin table. It is
// shared read-mostly by every user's poll loop; a stale snapshot is
// refreshed by whichever caller finds it expired, and concurrent
// refreshes are harmless (last writer wins). On refresh failure the
// previous snapshot keeps being served.
type Cache struct {
	apiURL     string
	ttl        time.Duration
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	mu        sync.RWMutex
	coins     []Coin
	fetchedAt time.Time
}

func NewCache(apiURL string, ttl time.Duration, logger *slog.Logger) *Cache {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		apiURL:     apiURL,
		ttl:        ttl,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		now:        time.Now,
	}
}

type rawCoin struct {
	Tag           string       `json:"tag"`
	Profitability *json.Number `json:"profitability"`
}

type coinsResponse struct {
	Coins map[string]rawCoin `json:"coins"`
	Error string             `json:"error"`
}

// BestCoin returns the coin with the highest profitability from the
// current snapshot, refreshing it first if the TTL has expired. Ties are
// broken by map iteration order; callers must not rely on which maximal
// coin wins. Refresh failures are swallowed: stale data beats no data.
func (c *Cache) BestCoin(ctx context.Context) Coin {
	c.mu.RLock()
	fresh := len(c.coins) > 0 && c.now().Sub(c.fetchedAt) < c.ttl
	coins := c.coins
	c.mu.RUnlock()

	if !fresh {
		if err := c.Refresh(ctx); err != nil {
			c.logger.Warn("whattomine refresh failed", "err", err)
		}
		c.mu.RLock()
		coins = c.coins
		c.mu.RUnlock()
	}

	if len(coins) == 0 {
		return Unknown
	}

	best := coins[0]
	for _, coin := range coins[1:] {
		if coin.Profitability.GreaterThan(best.Profitability) {
			best = coin
		}
	}
	return best
}

// Refresh fetches the coin table unconditionally and swaps the snapshot
// on success. Also run periodically by the warm-refresh cron job so
// interactive paths rarely pay the upstream latency.
func (c *Cache) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	var cr coinsResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if cr.Error != "" {
		return fmt.Errorf("api error: %s", cr.Error)
	}

	coins := make([]Coin, 0, len(cr.Coins))
	for _, raw := range cr.Coins {
		if raw.Tag == "" || raw.Profitability == nil {
			continue
		}
		profit, err := decimal.NewFromString(raw.Profitability.String())
		if err != nil {
			continue
		}
		coins = append(coins, Coin{Tag: raw.Tag, Profitability: profit})
	}
	if len(coins) == 0 {
		return fmt.Errorf("no valid coins in response")
	}

	c.mu.Lock()
	c.coins = coins
	c.fetchedAt = c.now()
	c.mu.Unlock()

	c.logger.Info("whattomine snapshot refreshed", "coins", len(coins))
	return nil
}
