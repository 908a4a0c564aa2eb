package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultGammaURL = "https://gamma-api.polymarket.com"

// GammaClient queries the Gamma markets directory. Used as the metadata
// fallback when a token has no live order book.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGammaClient creates a Gamma directory client. An empty URL uses the
// production endpoint.
func NewGammaClient(baseURL string) *GammaClient {
	if baseURL == "" {
		baseURL = defaultGammaURL
	}
	return &GammaClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ActiveMarket is one active market from the directory with its outcome
// token ids.
type ActiveMarket struct {
	MarketID string
	TokenIDs []string
	TickSize float64
	NegRisk  bool
}

// ListActiveMarkets fetches currently active, unresolved markets.
func (c *GammaClient) ListActiveMarkets(ctx context.Context) ([]ActiveMarket, error) {
	url := fmt.Sprintf("%s/markets?active=true&closed=false&limit=500", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list active markets: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list active markets: unexpected status %d", resp.StatusCode)
	}

	// Gamma encodes token id arrays as JSON strings inside JSON.
	var raw []struct {
		ConditionID  string  `json:"conditionId"`
		ClobTokenIds string  `json:"clobTokenIds"`
		TickSize     float64 `json:"orderPriceMinTickSize"`
		NegRisk      bool    `json:"negRisk"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode markets response: %w", err)
	}

	markets := make([]ActiveMarket, 0, len(raw))
	for _, m := range raw {
		var tokenIDs []string
		if err := json.Unmarshal([]byte(m.ClobTokenIds), &tokenIDs); err != nil {
			continue // malformed directory entry, skip
		}
		tick := m.TickSize
		if tick <= 0 {
			tick = 0.01
		}
		markets = append(markets, ActiveMarket{
			MarketID: m.ConditionID,
			TokenIDs: tokenIDs,
			TickSize: tick,
			NegRisk:  m.NegRisk,
		})
	}
	return markets, nil
}
