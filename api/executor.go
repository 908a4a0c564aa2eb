package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/AzrielTheHellrazor/polymarket-agent/models"
)

// ExecutorClient submits replica orders to the external order-execution
// service over HTTP. Signing and exchange submission happen there; the agent
// only decides and sizes.
type ExecutorClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewExecutorClient creates an executor client for the given service URL.
func NewExecutorClient(baseURL string, timeout time.Duration) *ExecutorClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ExecutorClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// PlaceOrderRequest is sent to the execution service.
type PlaceOrderRequest struct {
	ClientOrderID string  `json:"client_order_id"`
	TokenID       string  `json:"token_id"`
	Price         float64 `json:"price"`
	Size          float64 `json:"size"`
	Side          string  `json:"side"`
	TickSize      float64 `json:"tick_size"`
	NegRisk       bool    `json:"neg_risk"`
}

// PlaceOrderResponse is the execution service's reply. Success=false is an
// explicit rejection, distinct from a transport error.
type PlaceOrderResponse struct {
	Success  bool   `json:"success"`
	OrderID  string `json:"order_id,omitempty"`
	Status   string `json:"status,omitempty"`
	ErrorMsg string `json:"error_msg,omitempty"`
}

// PlaceOrder submits one order. A transport or decode failure returns an
// error; an explicit rejection returns a response with Success=false.
func (c *ExecutorClient) PlaceOrder(ctx context.Context, params models.OrderParams) (*PlaceOrderResponse, error) {
	req := PlaceOrderRequest{
		ClientOrderID: uuid.NewString(),
		TokenID:       params.TokenID,
		Price:         params.Price,
		Size:          params.Size,
		Side:          string(params.Side),
		TickSize:      params.TickSize,
		NegRisk:       params.NegRisk,
	}

	jsonBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal order request: %w", err)
	}

	url := c.baseURL + "/api/orders"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create order request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("submit order: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read order response: %w", err)
	}

	var result PlaceOrderResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("unmarshal order response: %w", err)
	}
	return &result, nil
}
