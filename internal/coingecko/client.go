// Package coingecko fetches market prices from the CoinGecko public API.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/seantiz/coinpulse/internal/cache"
	"github.com/seantiz/coinpulse/internal/model"
	"github.com/seantiz/coinpulse/internal/upstream"
)

// DefaultBaseURL is the CoinGecko v3 endpoint.
const DefaultBaseURL = "https://api.coingecko.com/api/v3"

const requestTimeout = 10 * time.Second

// DefaultIDs are the coins shown when the client does not ask for any.
var DefaultIDs = []string{"bitcoin", "ethereum", "solana"}

// Prices is the response body of GET /api/crypto-prices.
type Prices struct {
	Prices []model.CryptoPrice `json:"prices"`
}

// Client calls the CoinGecko markets endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      cache.Cache
	ttl        time.Duration
	logger     *slog.Logger
}

// NewClient creates a CoinGecko client. A nil cache disables caching.
func NewClient(baseURL string, c cache.Cache, ttl time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
		cache:      c,
		ttl:        ttl,
		logger:     logger,
	}
}

// Name identifies the upstream in logs and metrics.
func (c *Client) Name() string { return "coingecko" }

type market struct {
	ID                       string   `json:"id"`
	Symbol                   string   `json:"symbol"`
	Name                     string   `json:"name"`
	CurrentPrice             float64  `json:"current_price"`
	PriceChangePercentage24h *float64 `json:"price_change_percentage_24h"`
	MarketCap                float64  `json:"market_cap"`
	TotalVolume              float64  `json:"total_volume"`
	Image                    string   `json:"image"`
}

// GetPrices returns market snapshots for ids. It never fails: when CoinGecko
// is unavailable the static fallback set is returned and the error is logged.
func (c *Client) GetPrices(ctx context.Context, ids []string) Prices {
	ids = normalizeIDs(ids)
	key := "prices:" + strings.Join(ids, ",")

	if c.cache != nil {
		if b, ok, err := c.cache.Get(ctx, key); err == nil && ok {
			var p Prices
			if json.Unmarshal(b, &p) == nil {
				return p
			}
		}
	}

	prices, err := c.fetch(ctx, ids)
	if err != nil {
		c.logger.Warn("fetch crypto prices, serving fallback", "error", err)
		return Prices{Prices: Fallback()}
	}

	p := Prices{Prices: prices}
	if c.cache != nil {
		if b, err := json.Marshal(p); err == nil {
			if err := c.cache.Set(ctx, key, b, c.ttl); err != nil {
				c.logger.Warn("cache crypto prices", "error", err)
			}
		}
	}
	return p
}

func (c *Client) fetch(ctx context.Context, ids []string) ([]model.CryptoPrice, error) {
	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("ids", strings.Join(ids, ","))
	params.Set("order", "market_cap_desc")
	params.Set("per_page", "10")
	params.Set("page", "1")
	params.Set("sparkline", "false")
	params.Set("price_change_percentage", "24h")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/coins/markets?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	upstream.Observe(c.Name(), start, resp, err)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("crypto api error: %s", resp.Status)
	}

	var markets []market
	if err := json.NewDecoder(resp.Body).Decode(&markets); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	prices := make([]model.CryptoPrice, 0, len(markets))
	for _, m := range markets {
		p := model.CryptoPrice{
			ID:           m.ID,
			Symbol:       strings.ToUpper(m.Symbol),
			Name:         m.Name,
			CurrentPrice: m.CurrentPrice,
			MarketCap:    m.MarketCap,
			TotalVolume:  m.TotalVolume,
			Image:        m.Image,
		}
		if m.PriceChangePercentage24h != nil {
			p.PriceChangePercentage24h = *m.PriceChangePercentage24h
		}
		prices = append(prices, p)
	}
	return prices, nil
}

// normalizeIDs trims and lower-cases ids, drops blanks and duplicates, and
// falls back to DefaultIDs when nothing is left.
func normalizeIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	if len(out) == 0 {
		return DefaultIDs
	}
	return out
}
