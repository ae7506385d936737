package quote

import (
	"context"
	"fmt"
	"strings"
	"time"

	"TrendCascade/internal/domain/models"
	"TrendCascade/internal/service/ratelimit"
	xhttp "TrendCascade/pkg/http"
	"TrendCascade/pkg/logger"
	"TrendCascade/pkg/util"
)

type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RatePerSec float64
	Burst      float64
}

// Client reads the last traded price from an HTTP quote API:
// GET <base>/quote?symbol=BTCUSDT -> {"price": 101.5}
type Client struct {
	http    *xhttp.Client
	baseURL string
	timeout time.Duration
	limiter *ratelimit.Limiter
	log     *logger.Logger
}

type quoteResponse struct {
	Symbol string         `json:"symbol"`
	Price  util.FlexFloat `json:"price"`
}

func NewClient(cfg Config, lgr *logger.Logger, opts ...xhttp.ClientOption) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if lgr == nil {
		lgr = logger.NewNop()
	}
	base := []xhttp.ClientOption{xhttp.WithTimeout(cfg.Timeout)}
	if cfg.APIKey != "" {
		base = append(base, xhttp.WithHeader("X-API-Key", cfg.APIKey))
	}
	return &Client{
		http:    xhttp.NewClient(append(base, opts...)...),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		limiter: ratelimit.New(cfg.RatePerSec, cfg.Burst),
		log:     lgr,
	}
}

// CurrentPrice wraps every failure in models.ErrUpstreamUnavailable so callers can skip and retry later.
func (c *Client) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx, "quote"); err != nil {
		return 0, fmt.Errorf("%w: rate limit wait for %s: %w", models.ErrUpstreamUnavailable, symbol, err)
	}

	var resp quoteResponse
	err := c.http.GetJSON(ctx, c.baseURL+"/quote", map[string][]string{"symbol": {symbol}}, &resp)
	if err != nil {
		c.log.Debug("quote request failed", logger.String("symbol", symbol), logger.Error(err))
		return 0, fmt.Errorf("%w: quote %s: %w", models.ErrUpstreamUnavailable, symbol, err)
	}
	if !resp.Price.Valid() || resp.Price.Value <= 0 {
		return 0, fmt.Errorf("%w: quote %s: no usable price", models.ErrUpstreamUnavailable, symbol)
	}
	return resp.Price.Value, nil
}
