package syncer

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AzrielTheHellrazor/polymarket-agent/api"
	"github.com/AzrielTheHellrazor/polymarket-agent/models"
	"github.com/AzrielTheHellrazor/polymarket-agent/storage"
	"github.com/AzrielTheHellrazor/polymarket-agent/utils"
)

// MarketDataSource serves the live market data the engine prices against.
// Satisfied by api.MarketClient.
type MarketDataSource interface {
	GetOrderBook(ctx context.Context, tokenID string) (*api.OrderBook, error)
	GetBestBidAsk(ctx context.Context, tokenID string) (*api.Spread, error)
	GetBalance(ctx context.Context, address string) (float64, error)
}

// OrderExecutor places orders with the external execution service. Satisfied
// by api.ExecutorClient.
type OrderExecutor interface {
	PlaceOrder(ctx context.Context, params models.OrderParams) (*api.PlaceOrderResponse, error)
}

// EngineConfig holds the copy strategy and the risk ceilings.
type EngineConfig struct {
	Strategy            Strategy `yaml:"strategy" json:"strategy"`
	ScaleFactor         float64  `yaml:"scale_factor" json:"scale_factor"`
	PercentageOfBalance float64  `yaml:"percentage_of_balance" json:"percentage_of_balance"`
	MaxSlippage         float64  `yaml:"max_slippage" json:"max_slippage"`

	MaxDailyLoss     float64 `yaml:"max_daily_loss" json:"max_daily_loss"`
	MaxOrderValue    float64 `yaml:"max_order_value" json:"max_order_value"`
	MaxPositionValue float64 `yaml:"max_position_value" json:"max_position_value"`
	MinLiquidity     float64 `yaml:"min_liquidity" json:"min_liquidity"`

	Whitelist []string `yaml:"whitelist" json:"whitelist"`
	Blacklist []string `yaml:"blacklist" json:"blacklist"`

	// WalletAddress is our own funding wallet, used for balance lookups.
	WalletAddress string `yaml:"wallet_address" json:"wallet_address"`
}

// EngineMetrics counts trade evaluations by outcome.
type EngineMetrics struct {
	Evaluated    uint64 `json:"evaluated"`
	Filtered     uint64 `json:"filtered"`
	SizeRejected uint64 `json:"size_rejected"`
	Executed     uint64 `json:"executed"`
	Failed       uint64 `json:"failed"`
}

// Fraction of an order's value assumed lost when projecting daily loss
// before the fill happens.
const projectedLossFraction = 0.10

// liquidityDepth is how many levels per side count toward the liquidity gate.
const liquidityDepth = 5

// Engine turns detected source trades into our own orders. Each trade runs
// through the filter gates, gets sized by the configured strategy, passes the
// risk ceilings and finally goes to the executor. Trades on the same token
// are serialized; different tokens proceed independently.
type Engine struct {
	cfg      EngineConfig
	market   MarketDataSource
	cache    *MetadataCache
	executor OrderExecutor
	book     *PositionBook
	audit    storage.TradeLog // optional

	whitelist map[string]bool
	blacklist map[string]bool

	lockMu     sync.Mutex
	tokenLocks map[string]*sync.Mutex

	metricsMu sync.Mutex
	metrics   EngineMetrics
}

func NewEngine(cfg EngineConfig, market MarketDataSource, cache *MetadataCache, executor OrderExecutor, book *PositionBook, audit storage.TradeLog) (*Engine, error) {
	if !ValidStrategy(cfg.Strategy) {
		return nil, &ConfigurationError{Field: "strategy", Reason: fmt.Sprintf("unknown strategy %q", cfg.Strategy)}
	}
	if cfg.Strategy == StrategyScaled && cfg.ScaleFactor <= 0 {
		return nil, &ConfigurationError{Field: "scale_factor", Reason: "must be positive for the scaled strategy"}
	}
	if cfg.Strategy == StrategyPercentage && (cfg.PercentageOfBalance <= 0 || cfg.PercentageOfBalance > 1) {
		return nil, &ConfigurationError{Field: "percentage_of_balance", Reason: "must be in (0, 1] for the percentage strategy"}
	}

	e := &Engine{
		cfg:        cfg,
		market:     market,
		cache:      cache,
		executor:   executor,
		book:       book,
		audit:      audit,
		whitelist:  make(map[string]bool, len(cfg.Whitelist)),
		blacklist:  make(map[string]bool, len(cfg.Blacklist)),
		tokenLocks: make(map[string]*sync.Mutex),
	}
	for _, t := range cfg.Whitelist {
		e.whitelist[t] = true
	}
	for _, t := range cfg.Blacklist {
		e.blacklist[t] = true
	}
	return e, nil
}

// Metrics returns a snapshot of engine counters.
func (e *Engine) Metrics() EngineMetrics {
	e.metricsMu.Lock()
	defer e.metricsMu.Unlock()
	return e.metrics
}

// Positions exposes the engine's position book.
func (e *Engine) Positions() *PositionBook {
	return e.book
}

// HandleTrade evaluates one source trade end to end. strategyOverride, when
// non-empty, replaces the configured strategy for this trade only.
func (e *Engine) HandleTrade(ctx context.Context, trade models.DetectedTrade, strategyOverride Strategy) error {
	lock := e.tokenLock(trade.TokenID)
	lock.Lock()
	defer lock.Unlock()

	e.count(func(m *EngineMetrics) { m.Evaluated++ })

	if bal, err := e.market.GetBalance(ctx, e.cfg.WalletAddress); err == nil {
		e.book.RolloverIfNeeded(bal)
	}

	md, reason, err := e.evaluate(ctx, trade)
	if err != nil {
		return err
	}
	if reason != "" {
		e.count(func(m *EngineMetrics) { m.Filtered++ })
		e.record(ctx, trade, nil, storage.DecisionFiltered, reason)
		log.Printf("[Engine] filtered %s %s: %s", trade.Side, utils.ShortHash(trade.TokenID), reason)
		return nil
	}

	order, reason, err := e.size(ctx, trade, md, strategyOverride)
	if err != nil {
		return err
	}
	if order == nil {
		e.count(func(m *EngineMetrics) { m.SizeRejected++ })
		e.record(ctx, trade, nil, storage.DecisionSizeRejected, reason)
		log.Printf("[Engine] size rejected %s %s: %s", trade.Side, utils.ShortHash(trade.TokenID), reason)
		return nil
	}

	resp, err := e.executor.PlaceOrder(ctx, *order)
	if err != nil || resp == nil || !resp.Success {
		e.count(func(m *EngineMetrics) { m.Failed++ })
		msg := "executor rejected order"
		if err != nil {
			msg = err.Error()
		} else if resp != nil && resp.ErrorMsg != "" {
			msg = resp.ErrorMsg
		}
		e.record(ctx, trade, order, storage.DecisionFailed, msg)
		return &ExecutionError{
			TokenID: order.TokenID,
			Side:    string(order.Side),
			Price:   order.Price,
			Size:    order.Size,
			Reason:  msg,
		}
	}

	e.book.ApplyFill(*order)
	e.count(func(m *EngineMetrics) { m.Executed++ })
	e.record(ctx, trade, order, storage.DecisionExecuted, resp.OrderID)
	log.Printf("[Engine] executed %s %s price=%.4f size=%.2f order=%s",
		order.Side, utils.ShortHash(order.TokenID), order.Price, order.Size, resp.OrderID)
	return nil
}

// evaluate runs the filter gates. A non-empty reason means the trade is
// dropped; a nil metadata with empty reason never happens.
func (e *Engine) evaluate(ctx context.Context, trade models.DetectedTrade) (*models.MarketMetadata, string, error) {
	if trade.Size <= 0 {
		return nil, "source trade has no size", nil
	}
	if e.blacklist[trade.TokenID] {
		return nil, "token blacklisted", nil
	}
	if len(e.whitelist) > 0 && !e.whitelist[trade.TokenID] {
		return nil, "token not whitelisted", nil
	}

	md, err := e.cache.Get(ctx, trade.TokenID)
	if err != nil {
		return nil, "", fmt.Errorf("metadata lookup: %w", err)
	}
	if md == nil {
		return nil, "unknown market", nil
	}

	if e.cfg.MinLiquidity > 0 {
		book, err := e.market.GetOrderBook(ctx, trade.TokenID)
		if err != nil {
			return nil, "", fmt.Errorf("order book lookup: %w", err)
		}
		if liq := bookLiquidity(book); liq < e.cfg.MinLiquidity {
			return nil, fmt.Sprintf("liquidity %.2f below floor %.2f", liq, e.cfg.MinLiquidity), nil
		}
	}

	srcNotional := trade.Price * trade.Size
	if e.cfg.MaxOrderValue > 0 && srcNotional > e.cfg.MaxOrderValue {
		return nil, fmt.Sprintf("source notional %.2f above cap %.2f", srcNotional, e.cfg.MaxOrderValue), nil
	}
	if e.cfg.MaxDailyLoss > 0 {
		projected := e.book.Day().Loss + srcNotional*projectedLossFraction
		if projected > e.cfg.MaxDailyLoss {
			return nil, fmt.Sprintf("projected daily loss %.2f above limit %.2f", projected, e.cfg.MaxDailyLoss), nil
		}
	}
	return md, "", nil
}

// size runs the configured strategy and the post-sizing ceilings. A nil order
// with a reason means the trade is skipped without error.
func (e *Engine) size(ctx context.Context, trade models.DetectedTrade, md *models.MarketMetadata, override Strategy) (*models.OrderParams, string, error) {
	strategy := e.cfg.Strategy
	if override != "" {
		if !ValidStrategy(override) {
			return nil, "", &ConfigurationError{Field: "strategy", Reason: fmt.Sprintf("unknown strategy override %q", override)}
		}
		strategy = override
	}

	price := trade.Price
	if price == 0 {
		// Transfers carry no price. Fall back to the live midpoint.
		spread, err := e.market.GetBestBidAsk(ctx, trade.TokenID)
		if err != nil {
			return nil, "", fmt.Errorf("midpoint lookup: %w", err)
		}
		price = spread.Mid()
		if price <= 0 {
			return nil, "no market price available", nil
		}
	}

	var size float64
	switch strategy {
	case StrategyExact:
		size = SizeExact(trade.Size)
	case StrategyScaled:
		size = SizeScaled(trade.Size, e.cfg.ScaleFactor)
	case StrategyPercentage:
		bal, err := e.market.GetBalance(ctx, e.cfg.WalletAddress)
		if err != nil {
			return nil, "", fmt.Errorf("balance lookup: %w", err)
		}
		if bal <= 0 {
			return nil, "no balance available", nil
		}
		size = SizePercentage(bal, e.cfg.PercentageOfBalance, price)
	case StrategyAdaptive:
		spread, err := e.market.GetBestBidAsk(ctx, trade.TokenID)
		if err != nil {
			return nil, "", fmt.Errorf("midpoint lookup: %w", err)
		}
		price = AdaptivePrice(price, spread.Mid(), e.cfg.MaxSlippage, trade.Side)
		size = SizeExact(trade.Size)
	}

	price = RoundToTick(price, md.TickSize, trade.Side)
	if price <= 0 || size <= 0 {
		return nil, "", &ConfigurationError{Field: "strategy", Reason: fmt.Sprintf("computed non-positive order (price=%.4f size=%.4f)", price, size)}
	}

	if trade.Side == models.SideSell {
		pos, ok := e.book.Position(trade.TokenID)
		if !ok || pos.Quantity <= 0 {
			return nil, "no position to sell", nil
		}
		size = utils.MinFloat(size, pos.Quantity)
	}

	if trade.Side == models.SideBuy && e.cfg.MaxPositionValue > 0 {
		held := 0.0
		if pos, ok := e.book.Position(trade.TokenID); ok {
			held = pos.ValueUSD
		}
		if held+price*size > e.cfg.MaxPositionValue {
			return nil, fmt.Sprintf("position value %.2f would exceed cap %.2f", held+price*size, e.cfg.MaxPositionValue), nil
		}
	}

	return &models.OrderParams{
		TokenID:  trade.TokenID,
		Price:    price,
		Size:     size,
		Side:     trade.Side,
		TickSize: md.TickSize,
		NegRisk:  md.NegRisk,
	}, "", nil
}

func (e *Engine) tokenLock(tokenID string) *sync.Mutex {
	e.lockMu.Lock()
	defer e.lockMu.Unlock()
	lock, ok := e.tokenLocks[tokenID]
	if !ok {
		lock = &sync.Mutex{}
		e.tokenLocks[tokenID] = lock
	}
	return lock
}

func (e *Engine) count(fn func(*EngineMetrics)) {
	e.metricsMu.Lock()
	fn(&e.metrics)
	e.metricsMu.Unlock()
}

// record writes the decision to the audit log. Failures only get logged; the
// audit trail never blocks trading.
func (e *Engine) record(ctx context.Context, trade models.DetectedTrade, order *models.OrderParams, status, detail string) {
	if e.audit == nil {
		return
	}
	dec := storage.CopyDecision{
		ID:        uuid.NewString(),
		Wallet:    trade.Wallet,
		TokenID:   trade.TokenID,
		Side:      string(trade.Side),
		SrcPrice:  trade.Price,
		SrcSize:   trade.Size,
		Status:    status,
		Detail:    detail,
		TxHash:    trade.TxHash,
		CreatedAt: time.Now().UTC(),
	}
	if order != nil {
		dec.Price = order.Price
		dec.Size = order.Size
	}
	if err := e.audit.SaveCopyDecision(ctx, dec); err != nil {
		log.Printf("[Engine] audit log write failed: %v", err)
	}
}

// bookLiquidity averages the visible size on the top levels of both sides.
func bookLiquidity(book *api.OrderBook) float64 {
	if book == nil {
		return 0
	}
	sum := func(levels []api.OrderBookLevel) float64 {
		total := 0.0
		for i, lvl := range levels {
			if i >= liquidityDepth {
				break
			}
			if sz, err := strconv.ParseFloat(lvl.Size, 64); err == nil {
				total += sz
			}
		}
		return total
	}
	return (sum(book.Bids) + sum(book.Asks)) / 2
}
