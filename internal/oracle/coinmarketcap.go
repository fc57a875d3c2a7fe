package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://pro-api.coinmarketcap.com/v1"

// CMCClient fetches the BTC/USD quote from CoinMarketCap. Requests are rate
// limited and retried with exponential backoff; the per-attempt timeout
// comes from the embedded http.Client.
type CMCClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxElapsed time.Duration
}

// CMCOption customizes a CMCClient.
type CMCOption func(*CMCClient)

// WithBaseURL overrides the API base URL (tests point it at a local server).
func WithBaseURL(url string) CMCOption {
	return func(c *CMCClient) { c.baseURL = url }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) CMCOption {
	return func(c *CMCClient) { c.httpClient = hc }
}

// WithRetryBudget caps the total time spent retrying one fetch.
func WithRetryBudget(d time.Duration) CMCOption {
	return func(c *CMCClient) { c.maxElapsed = d }
}

// NewCMCClient creates a CoinMarketCap price client.
func NewCMCClient(apiKey string, opts ...CMCOption) *CMCClient {
	c := &CMCClient{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		// CMC free tier allows ~30 calls/minute.
		limiter:    rate.NewLimiter(rate.Every(2*time.Second), 1),
		maxElapsed: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// quoteResponse mirrors the fields we use from
// GET /cryptocurrency/quotes/latest.
type quoteResponse struct {
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
	Data map[string]struct {
		Quote map[string]struct {
			Price            decimal.Decimal `json:"price"`
			PercentChange24h decimal.Decimal `json:"percent_change_24h"`
			LastUpdated      string          `json:"last_updated"`
		} `json:"quote"`
	} `json:"data"`
}

// CurrentPrice returns the latest BTC/USD price.
func (c *CMCClient) CurrentPrice(ctx context.Context) (decimal.Decimal, error) {
	snap, err := c.LatestSnapshot(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return snap.Price, nil
}

// LatestSnapshot returns the latest BTC/USD quote with feed metadata.
func (c *CMCClient) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var snap *Snapshot
	fetch := func() error {
		var err error
		snap, err = c.fetchQuote(ctx)
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.maxElapsed
	if err := backoff.Retry(fetch, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	slog.Debug("fetched BTC price", "price", snap.Price.String())
	return snap, nil
}

func (c *CMCClient) fetchQuote(ctx context.Context) (*Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/cryptocurrency/quotes/latest?symbol=BTC&convert=USD", nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("X-CMC_PRO_API_KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		// Bad API key never recovers by retrying.
		return nil, backoff.Permanent(fmt.Errorf("upstream status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream status %d", resp.StatusCode)
	}

	var body quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if body.Status.ErrorCode != 0 {
		return nil, fmt.Errorf("upstream error %d: %s",
			body.Status.ErrorCode, body.Status.ErrorMessage)
	}

	btc, ok := body.Data["BTC"]
	if !ok {
		return nil, fmt.Errorf("BTC missing from response")
	}
	usd, ok := btc.Quote["USD"]
	if !ok {
		return nil, fmt.Errorf("USD quote missing from response")
	}
	if usd.Price.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("non-positive price %s", usd.Price)
	}

	return &Snapshot{
		Price:          usd.Price,
		Change24hPct:   usd.PercentChange24h,
		UpstreamUpdate: usd.LastUpdated,
	}, nil
}
