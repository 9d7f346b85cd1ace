package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"strategy-pipeline-go/internal/config"
	"strategy-pipeline-go/internal/models"
)

// ClientInterface defines the historical data client the pipeline
// consumes. The backtester itself never touches the network; this client
// only supplies bar series and listing evidence for the auditor.
type ClientInterface interface {
	GetServerTime() (int64, error)
	GetKlines(symbol, interval string, limit int) ([]models.MarketBar, error)
	GetListedSymbols() (map[string]bool, error)
}

// RestClient fetches historical bars from a Binance-style public REST
// API. It implements ClientInterface.
type RestClient struct {
	client  *resty.Client
	logger  *zap.Logger
	limiter *rate.Limiter
}

// ensure RestClient implements the interface
var _ ClientInterface = (*RestClient)(nil)

// NewRestClient creates a rate-limited market data client.
func NewRestClient(cfg *config.MarketData, logger *zap.Logger) *RestClient {
	client := resty.New().SetBaseURL(cfg.BaseURL)
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &RestClient{
		client:  client,
		logger:  logger,
		limiter: limiter,
	}
}

// doRequest executes a request with rate limiting and retry on 429/5xx.
func (c *RestClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil
		}

		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests || statusCode == 418 {
				shouldRetry = true
				if seconds, err := strconv.Atoi(resp.Header().Get("Retry-After")); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 {
				shouldRetry = true
			}
		} else {
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}

		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

// GetServerTime fetches the data source's clock. Used as a connectivity
// check at startup.
func (c *RestClient) GetServerTime() (int64, error) {
	type serverTimeResponse struct {
		ServerTime int64 `json:"serverTime"`
	}

	req := c.client.R().SetResult(&serverTimeResponse{})
	resp, err := c.doRequest(context.Background(), "GET", "/time", req)
	if err != nil {
		return 0, fmt.Errorf("failed to get server time: %w", err)
	}

	return resp.Result().(*serverTimeResponse).ServerTime, nil
}

// GetKlines fetches up to limit historical bars for a symbol at the given
// interval, oldest first. Every bar is validated before it is returned;
// a malformed bar fails the whole fetch rather than slipping a corrupt
// observation into a backtest.
func (c *RestClient) GetKlines(symbol, interval string, limit int) ([]models.MarketBar, error) {
	req := c.client.R().
		SetQueryParams(map[string]string{
			"symbol":   symbol,
			"interval": interval,
			"limit":    strconv.Itoa(limit),
		})

	resp, err := c.doRequest(context.Background(), "GET", "/klines", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get klines for %s: %w", symbol, err)
	}

	// Klines arrive as arrays of mixed numbers and numeric strings:
	// [openTime, open, high, low, close, volume, closeTime, ...]
	var raw [][]json.RawMessage
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, fmt.Errorf("failed to decode klines for %s: %w", symbol, err)
	}

	bars := make([]models.MarketBar, 0, len(raw))
	for i, k := range raw {
		if len(k) < 6 {
			return nil, fmt.Errorf("kline %d for %s has %d fields, want >= 6", i, symbol, len(k))
		}
		var openTime int64
		if err := json.Unmarshal(k[0], &openTime); err != nil {
			return nil, fmt.Errorf("kline %d for %s: bad open time: %w", i, symbol, err)
		}
		fields := make([]float64, 5)
		for j := 1; j <= 5; j++ {
			var s string
			if err := json.Unmarshal(k[j], &s); err != nil {
				return nil, fmt.Errorf("kline %d for %s: bad field %d: %w", i, symbol, j, err)
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("kline %d for %s: unparsable field %d %q: %w", i, symbol, j, s, err)
			}
			fields[j-1] = v
		}

		bar := models.MarketBar{
			Symbol:    symbol,
			Timestamp: time.UnixMilli(openTime).UTC(),
			Open:      fields[0],
			High:      fields[1],
			Low:       fields[2],
			Close:     fields[3],
			Volume:    fields[4],
		}
		if err := bar.Validate(); err != nil {
			return nil, fmt.Errorf("kline %d for %s failed validation: %w", i, symbol, err)
		}
		bars = append(bars, bar)
	}

	c.logger.Debug("Fetched klines",
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.Int("bars", len(bars)))
	return bars, nil
}

// exchangeInfoResponse mirrors the /exchangeInfo payload.
type exchangeInfoResponse struct {
	Symbols []symbolInfo `json:"symbols"`
}

type symbolInfo struct {
	Symbol string `json:"symbol"`
	Status string `json:"status"`
}

// GetListedSymbols returns the set of symbols currently trading. The
// auditor uses this as survivorship evidence for the backtest universe.
func (c *RestClient) GetListedSymbols() (map[string]bool, error) {
	var info exchangeInfoResponse
	req := c.client.R().
		SetResult(&info).
		SetHeader("Content-Type", "application/json")

	_, err := c.doRequest(context.Background(), "GET", "/exchangeInfo", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get exchange info: %w", err)
	}

	listed := make(map[string]bool, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status == "TRADING" {
			listed[s.Symbol] = true
		}
	}
	return listed, nil
}
