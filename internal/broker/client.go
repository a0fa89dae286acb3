package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"smc-trading-engine/internal/cooldown"
)

// ClientConfig configures the HTTP broker client.
type ClientConfig struct {
	BaseURL      string        `json:"base_url"`
	APIKey       string        `json:"api_key"`
	Timeout      time.Duration `json:"timeout"`
	MaxRetryTime time.Duration `json:"max_retry_time"`
}

// Client talks to the broker's REST API with a bounded timeout and a fixed
// retry budget per call.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	log        zerolog.Logger
}

var _ Broker = (*Client)(nil)

// NewClient creates an HTTP broker client.
func NewClient(cfg ClientConfig, log zerolog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetryTime == 0 {
		cfg.MaxRetryTime = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log.With().Str("component", "broker").Logger(),
	}
}

type priceResponse struct {
	Instrument string  `json:"instrument"`
	Price      float64 `json:"price"`
}

// CurrentPrice fetches the latest traded price for an instrument.
func (c *Client) CurrentPrice(ctx context.Context, instrument string) (float64, error) {
	endpoint := fmt.Sprintf("%s/v1/price?instrument=%s", c.cfg.BaseURL, url.QueryEscape(instrument))

	var resp priceResponse
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return 0, fmt.Errorf("fetch price for %s: %w", instrument, err)
	}
	if resp.Price <= 0 {
		return 0, fmt.Errorf("broker returned non-positive price %v for %s", resp.Price, instrument)
	}
	return resp.Price, nil
}

type openResponse struct {
	ContractID string `json:"contract_id"`
}

// OpenPosition opens a position. Open is not retried: a timeout after the
// request left the process could otherwise double-open.
func (c *Client) OpenPosition(ctx context.Context, req OrderRequest) (string, error) {
	endpoint := c.cfg.BaseURL + "/v1/positions"
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode order: %w", err)
	}

	var resp openResponse
	if err := c.doOnce(ctx, http.MethodPost, endpoint, body, &resp); err != nil {
		return "", fmt.Errorf("open %s %s: %w", req.Side, req.Instrument, err)
	}
	if resp.ContractID == "" {
		return "", fmt.Errorf("broker returned empty contract id for %s", req.Instrument)
	}
	return resp.ContractID, nil
}

type closeResponse struct {
	Closed []cooldown.ClosedTrade `json:"closed"`
	Failed []string               `json:"failed,omitempty"`
}

// CloseContracts closes the named contracts. Per-contract failures come back
// in the failed list; already-closed contracts stay closed.
func (c *Client) CloseContracts(ctx context.Context, contractIDs []string) ([]cooldown.ClosedTrade, []string, error) {
	if len(contractIDs) == 0 {
		return nil, nil, nil
	}
	endpoint := c.cfg.BaseURL + "/v1/positions/close"
	body, err := json.Marshal(map[string][]string{"contract_ids": contractIDs})
	if err != nil {
		return nil, nil, fmt.Errorf("encode close request: %w", err)
	}

	var resp closeResponse
	if err := c.doOnce(ctx, http.MethodPost, endpoint, body, &resp); err != nil {
		return nil, nil, fmt.Errorf("close %d contracts: %w", len(contractIDs), err)
	}
	return resp.Closed, resp.Failed, nil
}

// doJSON performs an idempotent request with exponential backoff inside the
// retry budget.
func (c *Client) doJSON(ctx context.Context, method, endpoint string, body []byte, out interface{}) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.cfg.MaxRetryTime

	return backoff.Retry(func() error {
		err := c.doOnce(ctx, method, endpoint, body, out)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		c.log.Warn().Err(err).Str("endpoint", endpoint).Msg("broker request failed, retrying")
		return err
	}, backoff.WithContext(bo, ctx))
}

func (c *Client) doOnce(ctx context.Context, method, endpoint string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(data))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
