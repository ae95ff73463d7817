package clore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DefaultAPIURL = "https://api.clore.ai/v1/marketplace"

const (
	maxAttempts  = 3
	backoffBase  = 4 * time.Second
	backoffCap   = 10 * time.Second
	fetchTimeout = 10 * time.Second
)

// Listing is a single rentable server offer from the marketplace.
type Listing struct {
	ID       string
	GPUModel string
	GPUCount int
	Price    decimal.Decimal // on-demand hourly rate, USD
	Rented   bool
	Owner    string
}

// Client fetches marketplace listings from the Clore API.
type Client struct {
	APIURL     string
	Token      string
	HTTPClient *http.Client
	Logger     *slog.Logger

	backoff func(attempt int) time.Duration
}

func NewClient(apiURL, token string, logger *slog.Logger) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		APIURL:     apiURL,
		Token:      token,
		HTTPClient: &http.Client{Timeout: fetchTimeout},
		Logger:     logger,
		backoff:    backoffDelay,
	}
}

// backoffDelay grows linearly with the attempt number, capped: 4s before
// the second attempt, 8s before the third, never above 10s.
func backoffDelay(attempt int) time.Duration {
	delay := backoffBase * time.Duration(attempt-1)
	if delay > backoffCap {
		delay = backoffCap
	}
	return delay
}

// flexString accepts a JSON string or number. Clore returns listing ids
// and owner ids as numbers but the rest of the system treats them as
// opaque strings.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexPrice accepts either a flat number or the nested
// price.original_usd.on_demand shape.
type flexPrice decimal.Decimal

func (p *flexPrice) UnmarshalJSON(data []byte) error {
	var nested struct {
		OriginalUSD struct {
			OnDemand json.Number `json:"on_demand"`
		} `json:"original_usd"`
	}
	if err := json.Unmarshal(data, &nested); err == nil && nested.OriginalUSD.OnDemand != "" {
		d, err := decimal.NewFromString(nested.OriginalUSD.OnDemand.String())
		if err != nil {
			return nil // malformed price defaults to zero
		}
		*p = flexPrice(d)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return nil
	}
	*p = flexPrice(d)
	return nil
}

type rawListing struct {
	ID     flexString `json:"id"`
	Owner  flexString `json:"owner"`
	Rented bool       `json:"rented"`
	Specs  struct {
		GPU string `json:"gpu"`
	} `json:"specs"`
	GPUCount int               `json:"gpu_count"`
	GPUArray []json.RawMessage `json:"gpu_array"`
	Price    flexPrice         `json:"price"`
}

type marketplaceResponse struct {
	Servers []rawListing `json:"servers"`
}

// Fetch retrieves the current marketplace listings. Transient upstream
// failures are retried with capped backoff; once the retry budget is
// exhausted the error is returned and callers should treat the tick as
// "no data", not as an empty marketplace.
func (c *Client) Fetch(ctx context.Context) ([]Listing, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.backoff(attempt)
			c.Logger.Info("retrying marketplace fetch", "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		servers, err := c.fetchOnce(ctx)
		if err == nil {
			return servers, nil
		}
		lastErr = err
		c.Logger.Warn("marketplace fetch failed", "attempt", attempt, "err", err)
	}
	return nil, fmt.Errorf("marketplace fetch: %w", lastErr)
}

func (c *Client) fetchOnce(ctx context.Context) ([]Listing, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("auth", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var mr marketplaceResponse
	if err := json.Unmarshal(body, &mr); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	listings := make([]Listing, 0, len(mr.Servers))
	for _, srv := range mr.Servers {
		listings = append(listings, srv.normalize())
	}
	return listings, nil
}

// normalize maps the heterogeneous upstream shape onto Listing. Missing
// fields end up as zero values so one malformed record never drops the
// batch.
func (r rawListing) normalize() Listing {
	count := r.GPUCount
	if count == 0 {
		count = len(r.GPUArray)
	}
	return Listing{
		ID:       string(r.ID),
		GPUModel: stripMultiplicity(r.Specs.GPU),
		GPUCount: count,
		Price:    decimal.Decimal(r.Price),
		Rented:   r.Rented,
		Owner:    string(r.Owner),
	}
}

// stripMultiplicity removes a leading "Nx " prefix from a GPU model
// string, e.g. "1x RTX 3090" -> "RTX 3090".
func stripMultiplicity(model string) string {
	i := strings.Index(model, "x ")
	if i > 0 {
		for _, ch := range model[:i] {
			if ch < '0' || ch > '9' {
				return model
			}
		}
		return model[i+2:]
	}
	return model
}
