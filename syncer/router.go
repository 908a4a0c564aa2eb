package syncer

import (
	"context"
	"log"
	"sync"

	"github.com/AzrielTheHellrazor/polymarket-agent/models"
	"github.com/AzrielTheHellrazor/polymarket-agent/storage"
	"github.com/AzrielTheHellrazor/polymarket-agent/utils"
)

const defaultQueueSize = 256

// RouterMetrics counts routed, skipped and dropped trades.
type RouterMetrics struct {
	Received uint64 `json:"received"`
	Routed   uint64 `json:"routed"`
	Skipped  uint64 `json:"skipped"`
	Dropped  uint64 `json:"dropped"`
	Errors   uint64 `json:"errors"`
}

// Router sits between the scanner and the engine. It keeps the per-wallet
// copy settings, drops trades from disabled wallets and hands the rest to the
// engine on its own goroutine so slow execution never stalls the scan loop.
type Router struct {
	scanner *BlockLogScanner
	engine  *Engine
	audit   storage.TradeLog // optional

	mu        sync.RWMutex
	wallets   map[string]models.WatchedWallet
	running   bool
	observing bool

	queue  chan models.DetectedTrade
	stopCh chan struct{}
	doneCh chan struct{}

	metricsMu sync.Mutex
	metrics   RouterMetrics
}

var _ TradeObserver = (*Router)(nil)

func NewRouter(scanner *BlockLogScanner, engine *Engine, audit storage.TradeLog) *Router {
	return &Router{
		scanner: scanner,
		engine:  engine,
		audit:   audit,
		wallets: make(map[string]models.WatchedWallet),
		queue:   make(chan models.DetectedTrade, defaultQueueSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// SetWallet adds or updates one watched wallet and keeps the scanner's
// address set in sync.
func (r *Router) SetWallet(w models.WatchedWallet) error {
	addr := utils.NormalizeAddress(w.Address)
	if w.Strategy != "" && !ValidStrategy(Strategy(w.Strategy)) {
		return &ConfigurationError{Field: "strategy", Reason: "unknown strategy " + w.Strategy}
	}
	if err := r.scanner.AddWallet(addr); err != nil {
		return err
	}
	w.Address = addr
	r.mu.Lock()
	r.wallets[addr] = w
	r.mu.Unlock()
	return nil
}

// RemoveWallet stops copying a wallet entirely.
func (r *Router) RemoveWallet(address string) {
	addr := utils.NormalizeAddress(address)
	r.scanner.RemoveWallet(addr)
	r.mu.Lock()
	delete(r.wallets, addr)
	r.mu.Unlock()
}

// Wallets returns a snapshot of the configured wallets.
func (r *Router) Wallets() []models.WatchedWallet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.WatchedWallet, 0, len(r.wallets))
	for _, w := range r.wallets {
		out = append(out, w)
	}
	return out
}

// Metrics returns a snapshot of router counters.
func (r *Router) Metrics() RouterMetrics {
	r.metricsMu.Lock()
	defer r.metricsMu.Unlock()
	return r.metrics
}

// Start wires the router into the scanner and starts both. fromBlock zero
// means "head minus lookback".
func (r *Router) Start(ctx context.Context, fromBlock uint64) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.mu.Unlock()

	r.mu.Lock()
	if !r.observing {
		r.scanner.AddObserver(r)
		r.observing = true
	}
	stopCh := r.stopCh
	doneCh := r.doneCh
	r.mu.Unlock()
	go r.dispatchLoop(ctx, stopCh, doneCh)

	if err := r.scanner.Start(ctx, fromBlock); err != nil {
		close(stopCh)
		<-doneCh
		// Fresh channels so a corrected config can Start again.
		r.mu.Lock()
		r.stopCh = make(chan struct{})
		r.doneCh = make(chan struct{})
		r.running = false
		r.mu.Unlock()
		return err
	}
	log.Printf("[Router] started with %d wallet(s)", len(r.Wallets()))
	return nil
}

// Stop shuts the scanner down first so no new trades arrive, then drains the
// dispatch goroutine.
func (r *Router) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	stopCh := r.stopCh
	doneCh := r.doneCh
	r.mu.Unlock()

	r.scanner.Stop()
	close(stopCh)
	<-doneCh
	log.Printf("[Router] stopped")
}

// OnTrade implements TradeObserver. Runs on the scanner goroutine, so it only
// filters and enqueues; the engine work happens on the dispatch goroutine.
func (r *Router) OnTrade(t models.DetectedTrade) {
	r.count(func(m *RouterMetrics) { m.Received++ })

	r.mu.RLock()
	w, ok := r.wallets[utils.NormalizeAddress(t.Wallet)]
	r.mu.RUnlock()
	if !ok || !w.Enabled {
		r.count(func(m *RouterMetrics) { m.Skipped++ })
		return
	}

	select {
	case r.queue <- t:
	default:
		r.count(func(m *RouterMetrics) { m.Dropped++ })
		log.Printf("[Router] queue full, dropping trade %s", t.ID())
	}
}

// OnError implements TradeObserver.
func (r *Router) OnError(err error) {
	r.count(func(m *RouterMetrics) { m.Errors++ })
	log.Printf("[Router] scan error: %v", err)
}

func (r *Router) dispatchLoop(ctx context.Context, stopCh chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case t := <-r.queue:
			r.dispatch(ctx, t)
		}
	}
}

func (r *Router) dispatch(ctx context.Context, t models.DetectedTrade) {
	if r.audit != nil {
		if err := r.audit.SaveDetectedTrade(ctx, t); err != nil {
			log.Printf("[Router] audit log write failed: %v", err)
		}
	}

	r.mu.RLock()
	w := r.wallets[t.Wallet]
	r.mu.RUnlock()

	if err := r.engine.HandleTrade(ctx, t, Strategy(w.Strategy)); err != nil {
		r.count(func(m *RouterMetrics) { m.Errors++ })
		log.Printf("[Router] engine error for %s: %v", t.ID(), err)
		return
	}
	r.count(func(m *RouterMetrics) { m.Routed++ })
}

func (r *Router) count(fn func(*RouterMetrics)) {
	r.metricsMu.Lock()
	fn(&r.metrics)
	r.metricsMu.Unlock()
}
