package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gin-gonic/gin"

	"github.com/AzrielTheHellrazor/polymarket-agent/api"
	"github.com/AzrielTheHellrazor/polymarket-agent/models"
	"github.com/AzrielTheHellrazor/polymarket-agent/storage"
	"github.com/AzrielTheHellrazor/polymarket-agent/syncer"
)

type fakeChain struct{}

func (fakeChain) BlockNumber(_ context.Context) (uint64, error) { return 100, nil }
func (fakeChain) FilterLogs(_ context.Context, _ ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}
func (fakeChain) HeaderByNumber(_ context.Context, n *big.Int) (*types.Header, error) {
	return &types.Header{Number: n, Time: 1_700_000_000}, nil
}

type fakeMarket struct{}

func (fakeMarket) GetOrderBook(_ context.Context, _ string) (*api.OrderBook, error) {
	return nil, errors.New("not found")
}
func (fakeMarket) GetBestBidAsk(_ context.Context, _ string) (*api.Spread, error) {
	return &api.Spread{}, nil
}
func (fakeMarket) GetBalance(_ context.Context, _ string) (float64, error) { return 0, nil }

type fakeDirectory struct{}

func (fakeDirectory) ListActiveMarkets(_ context.Context) ([]api.ActiveMarket, error) {
	return nil, nil
}

type fakeExecutor struct{}

func (fakeExecutor) PlaceOrder(_ context.Context, _ models.OrderParams) (*api.PlaceOrderResponse, error) {
	return &api.PlaceOrderResponse{Success: true, OrderID: "ord-1"}, nil
}

func newTestServer(t *testing.T) (*gin.Engine, *storage.MockLog) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	market := fakeMarket{}
	cache := syncer.NewMetadataCache(market, fakeDirectory{}, time.Hour)
	book := syncer.NewPositionBook(0)
	audit := storage.NewMockLog()

	engine, err := syncer.NewEngine(syncer.EngineConfig{Strategy: syncer.StrategyExact}, market, cache, fakeExecutor{}, book, audit)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	scanner, err := syncer.NewBlockLogScanner(fakeChain{}, nil, syncer.ScannerConfig{})
	if err != nil {
		t.Fatalf("scanner: %v", err)
	}
	router := syncer.NewRouter(scanner, engine, audit)

	r := gin.New()
	New(scanner, router, engine, cache, audit).RegisterRoutes(r)
	return r, audit
}

func TestHealth(t *testing.T) {
	r, _ := newTestServer(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("health = %d", w.Code)
	}
}

func TestWalletLifecycle(t *testing.T) {
	r, _ := newTestServer(t)
	addr := "0x1111111111111111111111111111111111111111"

	body := strings.NewReader(`{"address":"` + addr + `","enabled":true,"strategy":"exact"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/wallets", body)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("add wallet = %d: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/wallets", nil))
	var resp struct {
		Wallets []struct {
			Address string `json:"address"`
		} `json:"wallets"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Wallets) != 1 || resp.Wallets[0].Address != addr {
		t.Errorf("wallets = %+v", resp.Wallets)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/wallets/"+addr, nil))
	if w.Code != http.StatusOK {
		t.Errorf("delete wallet = %d", w.Code)
	}
}

func TestAddWalletRejectsBadAddress(t *testing.T) {
	r, _ := newTestServer(t)

	body := strings.NewReader(`{"address":"not-an-address","enabled":true}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/wallets", body)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestDeleteWalletRejectsBadAddress(t *testing.T) {
	r, _ := newTestServer(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/wallets/garbage", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestStatus(t *testing.T) {
	r, _ := newTestServer(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"scanner", "router", "engine", "cache", "day"} {
		if _, ok := resp[key]; !ok {
			t.Errorf("status missing %q", key)
		}
	}
}
