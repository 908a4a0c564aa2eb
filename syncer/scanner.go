package syncer

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/AzrielTheHellrazor/polymarket-agent/api"
	"github.com/AzrielTheHellrazor/polymarket-agent/models"
	"github.com/AzrielTheHellrazor/polymarket-agent/utils"
)

// Default contract set on Polygon.
const (
	CTFExchangeAddress        = "0x4bfb41d5b3570defd03c39a9a4d8de6bd8b8982e"
	NegRiskCTFExchangeAddress = "0xc5d563a36ae78145c45a50134d48a1215220f80a"
	ConditionalTokensAddress  = "0x4d97dcd97ec945f40cf65f87097ace5ea0476045"
)

const (
	defaultWindowBlocks   = 1000
	defaultLookbackBlocks = 1000
	defaultPollInterval   = 5 * time.Second
)

// TradeObserver receives normalized trades and scan errors from the scanner.
// Callbacks run on the scanner's goroutine and should return quickly.
type TradeObserver interface {
	OnTrade(models.DetectedTrade)
	OnError(err error)
}

// ScannerConfig controls which contracts get scanned and how windows are cut.
type ScannerConfig struct {
	ExchangeContracts []string
	TransferContracts []string
	WindowBlocks      uint64
	LookbackBlocks    uint64
	PollInterval      time.Duration
}

// ScannerMetrics is a point-in-time snapshot of scanner counters.
type ScannerMetrics struct {
	WindowsScanned    uint64    `json:"windows_scanned"`
	LogsSeen          uint64    `json:"logs_seen"`
	TradesEmitted     uint64    `json:"trades_emitted"`
	DuplicatesSkipped uint64    `json:"duplicates_skipped"`
	QueryErrors       uint64    `json:"query_errors"`
	LastBlock         uint64    `json:"last_block"`
	LastScanAt        time.Time `json:"last_scan_at"`
}

// BlockLogScanner tails exchange logs for a set of watched wallets, turning
// raw fill, match and transfer events into DetectedTrades. Backfill runs in
// fixed windows from a start block to the current head, then the scanner
// follows new blocks from a head subscription or a polling ticker.
type BlockLogScanner struct {
	chain api.ChainSource
	heads *api.BlockHeadsClient

	windowBlocks   uint64
	lookbackBlocks uint64
	pollInterval   time.Duration

	exchanges []common.Address
	transfers []common.Address

	mu        sync.RWMutex
	watched   map[common.Address]bool
	observers []TradeObserver
	running   bool

	seenMu sync.Mutex
	seen   map[string]bool

	metricsMu sync.Mutex
	metrics   ScannerMetrics

	cursor   uint64
	notifyCh chan uint64
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewBlockLogScanner builds a scanner over the given chain source. heads may
// be nil, in which case the live tail falls back to polling.
func NewBlockLogScanner(chain api.ChainSource, heads *api.BlockHeadsClient, cfg ScannerConfig) (*BlockLogScanner, error) {
	if cfg.WindowBlocks == 0 {
		cfg.WindowBlocks = defaultWindowBlocks
	}
	if cfg.LookbackBlocks == 0 {
		cfg.LookbackBlocks = defaultLookbackBlocks
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if len(cfg.ExchangeContracts) == 0 {
		cfg.ExchangeContracts = []string{CTFExchangeAddress, NegRiskCTFExchangeAddress}
	}
	if len(cfg.TransferContracts) == 0 {
		cfg.TransferContracts = []string{ConditionalTokensAddress}
	}

	exchanges, err := parseAddresses("exchange_contracts", cfg.ExchangeContracts)
	if err != nil {
		return nil, err
	}
	transfers, err := parseAddresses("transfer_contracts", cfg.TransferContracts)
	if err != nil {
		return nil, err
	}

	return &BlockLogScanner{
		chain:          chain,
		heads:          heads,
		windowBlocks:   cfg.WindowBlocks,
		lookbackBlocks: cfg.LookbackBlocks,
		pollInterval:   cfg.PollInterval,
		exchanges:      exchanges,
		transfers:      transfers,
		watched:        make(map[common.Address]bool),
		seen:           make(map[string]bool),
		notifyCh:       make(chan uint64, 1),
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}, nil
}

func parseAddresses(field string, raw []string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(raw))
	for _, a := range raw {
		if !common.IsHexAddress(a) {
			return nil, &ConfigurationError{Field: field, Reason: fmt.Sprintf("invalid address %q", a)}
		}
		out = append(out, common.HexToAddress(a))
	}
	return out, nil
}

// SetWallets replaces the watched wallet set. Invalid entries are skipped and
// reported in the returned error; the valid entries are installed either way.
func (s *BlockLogScanner) SetWallets(addrs []string) error {
	next := make(map[common.Address]bool, len(addrs))
	var invalid []string
	for _, a := range addrs {
		if !common.IsHexAddress(a) {
			invalid = append(invalid, a)
			continue
		}
		next[common.HexToAddress(a)] = true
	}
	s.mu.Lock()
	s.watched = next
	s.mu.Unlock()

	if len(invalid) > 0 {
		log.Printf("[Scanner] skipped %d invalid wallet address(es): %s", len(invalid), strings.Join(invalid, ", "))
		return &ConfigurationError{Field: "wallets", Reason: fmt.Sprintf("invalid addresses skipped: %s", strings.Join(invalid, ", "))}
	}
	return nil
}

// AddWallet starts watching one wallet.
func (s *BlockLogScanner) AddWallet(addr string) error {
	if !common.IsHexAddress(addr) {
		return &ConfigurationError{Field: "wallets", Reason: fmt.Sprintf("invalid address %q", addr)}
	}
	s.mu.Lock()
	s.watched[common.HexToAddress(addr)] = true
	s.mu.Unlock()
	return nil
}

// RemoveWallet stops watching one wallet. Unknown addresses are a no-op.
func (s *BlockLogScanner) RemoveWallet(addr string) {
	if !common.IsHexAddress(addr) {
		return
	}
	s.mu.Lock()
	delete(s.watched, common.HexToAddress(addr))
	s.mu.Unlock()
}

// AddObserver registers a trade observer. Must be called before Start.
func (s *BlockLogScanner) AddObserver(obs TradeObserver) {
	s.mu.Lock()
	s.observers = append(s.observers, obs)
	s.mu.Unlock()
}

// Metrics returns a snapshot of scanner counters.
func (s *BlockLogScanner) Metrics() ScannerMetrics {
	s.metricsMu.Lock()
	defer s.metricsMu.Unlock()
	return s.metrics
}

// Start backfills from fromBlock (or head minus the configured lookback when
// fromBlock is zero) and then tails the chain until Stop is called.
func (s *BlockLogScanner) Start(ctx context.Context, fromBlock uint64) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scanner already running")
	}
	if len(s.watched) == 0 {
		s.mu.Unlock()
		return &ConfigurationError{Field: "wallets", Reason: "no watched wallets configured"}
	}
	s.running = true
	s.mu.Unlock()

	head, err := s.chain.BlockNumber(ctx)
	if err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return &ConfigurationError{Field: "rpc_url", Reason: fmt.Sprintf("chain unreachable: %v", err)}
	}

	if fromBlock == 0 {
		if head > s.lookbackBlocks {
			fromBlock = head - s.lookbackBlocks
		} else {
			fromBlock = 1
		}
	}
	s.cursor = fromBlock - 1

	if s.heads != nil {
		s.heads.SetHandler(s.notify)
		if err := s.heads.Start(); err != nil {
			log.Printf("[Scanner] head subscription unavailable, polling instead: %v", err)
			s.heads = nil
		}
	}

	log.Printf("[Scanner] starting from block %d (head %d, window %d)", fromBlock, head, s.windowBlocks)
	go s.run(ctx, head)
	return nil
}

// Stop shuts the scanner down and waits for the scan loop to exit. No
// observer callbacks fire after Stop returns. Safe to call more than once.
func (s *BlockLogScanner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	if s.heads != nil {
		s.heads.Stop()
	}
	close(s.stopCh)
	<-s.doneCh
	log.Printf("[Scanner] stopped at block %d", s.cursor)
}

// notify records a new head height. The channel holds at most one pending
// height; a newer notification replaces an unconsumed older one.
func (s *BlockLogScanner) notify(height uint64) {
	for {
		select {
		case s.notifyCh <- height:
			return
		default:
			select {
			case <-s.notifyCh:
			default:
			}
		}
	}
}

func (s *BlockLogScanner) run(ctx context.Context, head uint64) {
	defer close(s.doneCh)

	s.catchUp(ctx, head)

	var ticker *time.Ticker
	var tick <-chan time.Time
	if s.heads == nil {
		ticker = time.NewTicker(s.pollInterval)
		tick = ticker.C
		defer ticker.Stop()
	}

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case h := <-s.notifyCh:
			s.catchUp(ctx, h)
		case <-tick:
			h, err := s.chain.BlockNumber(ctx)
			if err != nil {
				s.reportError(fmt.Errorf("head poll: %w", err))
				continue
			}
			s.catchUp(ctx, h)
		}
	}
}

// catchUp scans from the cursor to the target head in fixed windows. The
// cursor only advances once a whole window has been processed.
func (s *BlockLogScanner) catchUp(ctx context.Context, target uint64) {
	for s.cursor < target {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		from := s.cursor + 1
		to := from + s.windowBlocks - 1
		if to > target {
			to = target
		}
		s.scanWindow(ctx, from, to)
		s.cursor = to

		s.metricsMu.Lock()
		s.metrics.WindowsScanned++
		s.metrics.LastBlock = to
		s.metrics.LastScanAt = time.Now()
		s.metricsMu.Unlock()
	}
}

// roleQuery targets one event signature with the watched wallets bound to one
// indexed topic position.
type roleQuery struct {
	contracts []common.Address
	sig       common.Hash
	topicPos  int
}

func (s *BlockLogScanner) scanWindow(ctx context.Context, from, to uint64) {
	s.mu.RLock()
	wallets := make([]common.Hash, 0, len(s.watched))
	for addr := range s.watched {
		wallets = append(wallets, common.BytesToHash(addr.Bytes()))
	}
	s.mu.RUnlock()
	if len(wallets) == 0 {
		return
	}

	queries := []roleQuery{
		{s.exchanges, sigOrderFilled, 2},
		{s.exchanges, sigOrderFilled, 3},
		{s.exchanges, sigOrdersMatched, 2},
		{s.transfers, sigTransferSingle, 2},
		{s.transfers, sigTransferSingle, 3},
	}

	var (
		wg      sync.WaitGroup
		collMu  sync.Mutex
		allLogs []types.Log
	)
	for _, q := range queries {
		wg.Add(1)
		go func(q roleQuery) {
			defer wg.Done()

			topics := make([][]common.Hash, q.topicPos+1)
			topics[0] = []common.Hash{q.sig}
			topics[q.topicPos] = wallets

			logs, err := s.chain.FilterLogs(ctx, ethereum.FilterQuery{
				FromBlock: new(big.Int).SetUint64(from),
				ToBlock:   new(big.Int).SetUint64(to),
				Addresses: q.contracts,
				Topics:    topics,
			})
			if err != nil {
				s.reportError(&ChainQueryError{
					Contract:  q.contracts[0].Hex(),
					FromBlock: from,
					ToBlock:   to,
					Err:       err,
				})
				return
			}
			collMu.Lock()
			allLogs = append(allLogs, logs...)
			collMu.Unlock()
		}(q)
	}
	wg.Wait()

	if len(allLogs) == 0 {
		return
	}

	sort.Slice(allLogs, func(i, j int) bool {
		if allLogs[i].BlockNumber != allLogs[j].BlockNumber {
			return allLogs[i].BlockNumber < allLogs[j].BlockNumber
		}
		return allLogs[i].Index < allLogs[j].Index
	})

	blockTimes := make(map[uint64]time.Time)
	for _, lg := range allLogs {
		s.processLog(ctx, lg, blockTimes)
	}
}

func (s *BlockLogScanner) processLog(ctx context.Context, lg types.Log, blockTimes map[uint64]time.Time) {
	s.metricsMu.Lock()
	s.metrics.LogsSeen++
	s.metricsMu.Unlock()

	key := fmt.Sprintf("%s:%d", lg.TxHash.Hex(), lg.Index)
	s.seenMu.Lock()
	if s.seen[key] {
		s.seenMu.Unlock()
		s.metricsMu.Lock()
		s.metrics.DuplicatesSkipped++
		s.metricsMu.Unlock()
		return
	}
	s.seen[key] = true
	if len(s.seen) > 1000 {
		for k := range s.seen {
			delete(s.seen, k)
			if len(s.seen) <= 500 {
				break
			}
		}
	}
	s.seenMu.Unlock()

	dec := decodeExchangeLog(lg)
	if dec.Kind == "" {
		return
	}

	trades := tradesFromLog(lg, dec, s.isWatched, s.blockTime(ctx, lg.Address, lg.BlockNumber, blockTimes))
	for _, t := range trades {
		log.Printf("[Scanner] %s %s %s token=%s price=%.4f size=%.2f block=%d",
			utils.ShortAddress(t.Wallet), t.Side, t.Event, utils.ShortHash(t.TokenID), t.Price, t.Size, t.BlockNumber)
		s.emitTrade(t)
	}
}

func (s *BlockLogScanner) isWatched(addr common.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.watched[addr]
}

// blockTime resolves a block's header timestamp. A header fetch failure is
// reported and the trade goes out with a zero Timestamp; the wall clock is
// never substituted for chain time.
func (s *BlockLogScanner) blockTime(ctx context.Context, contract common.Address, number uint64, cache map[uint64]time.Time) time.Time {
	if ts, ok := cache[number]; ok {
		return ts
	}
	hdr, err := s.chain.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		s.reportError(&ChainQueryError{
			Contract:  contract.Hex(),
			FromBlock: number,
			ToBlock:   number,
			Err:       fmt.Errorf("header fetch: %w", err),
		})
		cache[number] = time.Time{}
		return time.Time{}
	}
	ts := time.Unix(int64(hdr.Time), 0).UTC()
	cache[number] = ts
	return ts
}

func (s *BlockLogScanner) emitTrade(t models.DetectedTrade) {
	s.metricsMu.Lock()
	s.metrics.TradesEmitted++
	s.metricsMu.Unlock()

	s.mu.RLock()
	observers := s.observers
	s.mu.RUnlock()
	for _, obs := range observers {
		safeNotify(func() { obs.OnTrade(t) })
	}
}

func (s *BlockLogScanner) reportError(err error) {
	s.metricsMu.Lock()
	s.metrics.QueryErrors++
	s.metricsMu.Unlock()

	log.Printf("[Scanner] query error: %v", err)
	s.mu.RLock()
	observers := s.observers
	s.mu.RUnlock()
	for _, obs := range observers {
		safeNotify(func() { obs.OnError(err) })
	}
}

// safeNotify isolates observer panics so one bad observer cannot take the
// scan loop down.
func safeNotify(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Scanner] observer panic: %v", r)
		}
	}()
	fn()
}
