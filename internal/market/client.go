package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// ClientConfig holds HTTP market data client configuration
type ClientConfig struct {
	BaseURL        string
	Timeout        time.Duration
	RequestsPerSec int
	MaxRetryTime   time.Duration
}

// Client fetches candles from an OHLCV REST endpoint with rate limiting and
// a bounded retry budget. Upstream failures surface to the caller so the
// current analysis cycle can be skipped without corrupting signal state.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetry   time.Duration
}

// NewClient creates a new market data client
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerSec == 0 {
		cfg.RequestsPerSec = 5
	}
	if cfg.MaxRetryTime == 0 {
		cfg.MaxRetryTime = 30 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Every(time.Second/time.Duration(cfg.RequestsPerSec)), cfg.RequestsPerSec),
		maxRetry:   cfg.MaxRetryTime,
	}
}

// GetCandles fetches candlestick data for the instrument and timeframe
func (c *Client) GetCandles(ctx context.Context, instrument string, tf Timeframe, limit int) ([]Candle, error) {
	params := url.Values{}
	params.Set("symbol", instrument)
	params.Set("interval", string(tf))
	params.Set("limit", strconv.Itoa(limit))

	endpoint := fmt.Sprintf("%s/api/v3/klines?%s", c.baseURL, params.Encode())

	body, err := c.doRequest(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("error fetching candles for %s %s: %w", instrument, tf, err)
	}

	var raw [][]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("error parsing candles: %w", err)
	}

	candles := make([]Candle, len(raw))
	for i, row := range raw {
		if len(row) < 6 {
			return nil, fmt.Errorf("malformed candle row at index %d", i)
		}
		openMillis, _ := row[0].(float64)
		candles[i] = Candle{
			OpenTime: int64(openMillis) / 1000,
			Open:     parseFloat(row[1]),
			High:     parseFloat(row[2]),
			Low:      parseFloat(row[3]),
			Close:    parseFloat(row[4]),
			Volume:   parseFloat(row[5]),
		}
	}

	return candles, nil
}

// doRequest performs a GET with rate limiting and exponential backoff retries
func (c *Client) doRequest(ctx context.Context, endpoint string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
		}
		return nil
	}

	strategy := backoff.NewExponentialBackOff()
	strategy.MaxElapsedTime = c.maxRetry

	if err := backoff.Retry(operation, backoff.WithContext(strategy, ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

func parseFloat(v interface{}) float64 {
	switch val := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	case float64:
		return val
	default:
		return 0
	}
}
