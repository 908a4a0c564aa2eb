package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultClobURL = "https://clob.polymarket.com"
	defaultDataURL = "https://data-api.polymarket.com"
)

// MarketClient talks to the Polymarket CLOB and Data APIs for order books,
// best bid/ask and wallet balances. All endpoints used here are public and
// unauthenticated; order submission belongs to the execution service.
type MarketClient struct {
	clobURL    string
	dataURL    string
	httpClient *http.Client
}

// NewMarketClient creates a market-data client. Empty URLs use the production
// endpoints.
func NewMarketClient(clobURL, dataURL string) *MarketClient {
	if clobURL == "" {
		clobURL = defaultClobURL
	}
	if dataURL == "" {
		dataURL = defaultDataURL
	}
	return &MarketClient{
		clobURL: clobURL,
		dataURL: dataURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// OrderBook is the CLOB order book for one outcome token. Price and size are
// kept as strings the way the API returns them; callers parse as needed.
type OrderBook struct {
	MarketID string           `json:"market"`
	AssetID  string           `json:"asset_id"`
	Bids     []OrderBookLevel `json:"bids"`
	Asks     []OrderBookLevel `json:"asks"`
	TickSize string           `json:"tick_size"`
	NegRisk  bool             `json:"neg_risk"`
}

// OrderBookLevel is a single price level.
type OrderBookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// TickSizeFloat parses the book's tick size, defaulting to 0.01.
func (b *OrderBook) TickSizeFloat() float64 {
	ts, err := strconv.ParseFloat(b.TickSize, 64)
	if err != nil || ts <= 0 {
		return 0.01
	}
	return ts
}

// GetOrderBook fetches the order book for a token.
func (c *MarketClient) GetOrderBook(ctx context.Context, tokenID string) (*OrderBook, error) {
	u := fmt.Sprintf("%s/book?token_id=%s", c.clobURL, url.QueryEscape(tokenID))

	var book OrderBook
	if err := c.getJSON(ctx, u, &book); err != nil {
		return nil, fmt.Errorf("get order book for token %s: %w", tokenID, err)
	}
	return &book, nil
}

// Spread is the current best bid and ask for a token.
type Spread struct {
	BestBid float64
	BestAsk float64
}

// Mid returns the midpoint of the spread.
func (s Spread) Mid() float64 {
	return (s.BestBid + s.BestAsk) / 2
}

// GetBestBidAsk fetches the best bid and ask via the CLOB price endpoint.
func (c *MarketClient) GetBestBidAsk(ctx context.Context, tokenID string) (*Spread, error) {
	bid, err := c.getPrice(ctx, tokenID, "sell")
	if err != nil {
		return nil, err
	}
	ask, err := c.getPrice(ctx, tokenID, "buy")
	if err != nil {
		return nil, err
	}
	return &Spread{BestBid: bid, BestAsk: ask}, nil
}

func (c *MarketClient) getPrice(ctx context.Context, tokenID, side string) (float64, error) {
	u := fmt.Sprintf("%s/price?token_id=%s&side=%s", c.clobURL, url.QueryEscape(tokenID), side)

	var resp struct {
		Price string `json:"price"`
	}
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return 0, fmt.Errorf("get %s price for token %s: %w", side, tokenID, err)
	}

	p, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s price %q for token %s: %w", side, resp.Price, tokenID, err)
	}
	return p, nil
}

// GetBalance fetches the USDC portfolio value of a wallet from the Data API.
func (c *MarketClient) GetBalance(ctx context.Context, address string) (float64, error) {
	u := fmt.Sprintf("%s/value?user=%s", c.dataURL, url.QueryEscape(address))

	var resp []struct {
		User  string  `json:"user"`
		Value float64 `json:"value"`
	}
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return 0, fmt.Errorf("get balance for %s: %w", address, err)
	}
	if len(resp) == 0 {
		return 0, fmt.Errorf("no balance record for %s", address)
	}
	return resp[0].Value, nil
}

func (c *MarketClient) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
