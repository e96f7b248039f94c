// Package coinbase opens Coinbase Commerce charges and authenticates the
// webhooks Coinbase sends back when a charge changes state.
package coinbase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/seantiz/coinpulse/internal/upstream"
)

const (
	// DefaultBaseURL is the Coinbase Commerce API endpoint.
	DefaultBaseURL = "https://api.commerce.coinbase.com"

	// APIVersion is sent in X-CC-Version on every request.
	APIVersion = "2018-03-22"

	requestTimeout = 15 * time.Second
	maxErrorBody   = 4 << 10
)

// ChargeRequest describes a fixed-price charge.
type ChargeRequest struct {
	Name        string
	Description string
	Amount      string
	Currency    string
	Metadata    map[string]any
}

// Money is an amount in a single currency.
type Money struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// Charge is the subset of a Coinbase charge the site relies on.
type Charge struct {
	ID        string     `json:"id"`
	Code      string     `json:"code"`
	HostedURL string     `json:"hosted_url"`
	ExpiresAt *time.Time `json:"expires_at"`
	Pricing   struct {
		Local Money `json:"local"`
	} `json:"pricing"`
}

// Client talks to the Coinbase Commerce REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Coinbase Commerce client.
func NewClient(baseURL, apiKey string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}
}

// Name identifies the upstream in logs and metrics.
func (c *Client) Name() string { return "coinbase" }

type createChargeBody struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	PricingType string         `json:"pricing_type"`
	LocalPrice  Money          `json:"local_price"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// CreateCharge opens a fixed-price charge and returns it.
func (c *Client) CreateCharge(ctx context.Context, cr ChargeRequest) (*Charge, error) {
	payload, err := json.Marshal(createChargeBody{
		Name:        cr.Name,
		Description: cr.Description,
		PricingType: "fixed_price",
		LocalPrice:  Money{Amount: cr.Amount, Currency: cr.Currency},
		Metadata:    cr.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("encode charge: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/charges", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CC-Api-Key", c.apiKey)
	req.Header.Set("X-CC-Version", APIVersion)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	upstream.Observe(c.Name(), start, resp, err)
	if err != nil {
		return nil, fmt.Errorf("create charge: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("coinbase api error: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var out struct {
		Data Charge `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode charge: %w", err)
	}
	if out.Data.ID == "" {
		return nil, fmt.Errorf("coinbase api returned a charge without an id")
	}

	c.logger.Info("charge created", "charge_id", out.Data.ID, "code", out.Data.Code)
	return &out.Data, nil
}
