package syncer

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/AzrielTheHellrazor/polymarket-agent/models"
)

// fakeChain is an in-memory ChainSource serving canned logs.
type fakeChain struct {
	mu          sync.Mutex
	head        uint64
	logs        []types.Log
	failFor     map[common.Address]error
	headerErr   error
	filterCalls int
}

func (f *fakeChain) BlockNumber(_ context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.head == 0 {
		return 0, errors.New("rpc down")
	}
	return f.head, nil
}

func (f *fakeChain) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filterCalls++

	for _, addr := range q.Addresses {
		if err := f.failFor[addr]; err != nil {
			return nil, err
		}
	}

	var out []types.Log
	for _, lg := range f.logs {
		if lg.BlockNumber < q.FromBlock.Uint64() || lg.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		if !containsAddr(q.Addresses, lg.Address) {
			continue
		}
		if !topicsMatch(q.Topics, lg.Topics) {
			continue
		}
		out = append(out, lg)
	}
	return out, nil
}

func (f *fakeChain) HeaderByNumber(_ context.Context, number *big.Int) (*types.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headerErr != nil {
		return nil, f.headerErr
	}
	return &types.Header{Number: number, Time: 1_700_000_000}, nil
}

func containsAddr(addrs []common.Address, a common.Address) bool {
	for _, x := range addrs {
		if x == a {
			return true
		}
	}
	return false
}

func topicsMatch(filter [][]common.Hash, topics []common.Hash) bool {
	for i, set := range filter {
		if len(set) == 0 {
			continue
		}
		if i >= len(topics) {
			return false
		}
		found := false
		for _, h := range set {
			if h == topics[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// collector records observer callbacks for assertions.
type collector struct {
	mu     sync.Mutex
	trades []models.DetectedTrade
	errs   []error
}

func (c *collector) OnTrade(t models.DetectedTrade) {
	c.mu.Lock()
	c.trades = append(c.trades, t)
	c.mu.Unlock()
}

func (c *collector) OnError(err error) {
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
}

func (c *collector) snapshot() ([]models.DetectedTrade, []error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.DetectedTrade(nil), c.trades...), append([]error(nil), c.errs...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func newTestScanner(t *testing.T, chain *fakeChain, wallets ...common.Address) (*BlockLogScanner, *collector) {
	t.Helper()
	s, err := NewBlockLogScanner(chain, nil, ScannerConfig{PollInterval: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("new scanner: %v", err)
	}
	addrs := make([]string, len(wallets))
	for i, w := range wallets {
		addrs[i] = w.Hex()
	}
	if err := s.SetWallets(addrs); err != nil {
		t.Fatalf("set wallets: %v", err)
	}
	col := &collector{}
	s.AddObserver(col)
	return s, col
}

func exchangeLog(lg types.Log) types.Log {
	lg.Address = common.HexToAddress(CTFExchangeAddress)
	return lg
}

func TestScannerStartRequiresWallets(t *testing.T) {
	s, err := NewBlockLogScanner(&fakeChain{head: 100}, nil, ScannerConfig{})
	if err != nil {
		t.Fatalf("new scanner: %v", err)
	}
	err = s.Start(context.Background(), 0)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestScannerStartUnreachableChain(t *testing.T) {
	s, _ := newTestScanner(t, &fakeChain{head: 0}, walletA)
	err := s.Start(context.Background(), 0)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestScannerSetWalletsSkipsInvalidEntries(t *testing.T) {
	s, err := NewBlockLogScanner(&fakeChain{head: 100}, nil, ScannerConfig{})
	if err != nil {
		t.Fatalf("new scanner: %v", err)
	}

	// A bad entry is reported but must not take the valid ones down with it.
	err = s.SetWallets([]string{walletA.Hex(), "not-an-address", walletB.Hex()})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError naming the skipped entry, got %v", err)
	}
	if !s.isWatched(walletA) || !s.isWatched(walletB) {
		t.Error("valid entries must be installed despite the invalid one")
	}
	if s.isWatched(walletC) {
		t.Error("unexpected wallet watched")
	}

	if err := s.SetWallets([]string{walletA.Hex(), walletB.Hex()}); err != nil {
		t.Errorf("all-valid batch should not error: %v", err)
	}
}

func TestScannerBackfillEmitsTrades(t *testing.T) {
	chain := &fakeChain{
		head: 2000,
		logs: []types.Log{
			exchangeLog(fillLog(walletA, walletB, big.NewInt(777), big.NewInt(0), usdc6(100), usdc6(60))),
		},
	}
	chain.logs[0].BlockNumber = 1500

	s, col := newTestScanner(t, chain, walletA)
	if err := s.Start(context.Background(), 1400); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	waitFor(t, func() bool {
		trades, _ := col.snapshot()
		return len(trades) == 1
	})

	trades, _ := col.snapshot()
	tr := trades[0]
	if tr.Side != models.SideSell || tr.TokenID != "777" || tr.Size != 100 {
		t.Errorf("unexpected trade: %+v", tr)
	}
	if tr.BlockNumber != 1500 {
		t.Errorf("expected block 1500, got %d", tr.BlockNumber)
	}
	if tr.Timestamp.Unix() != 1_700_000_000 {
		t.Errorf("expected header timestamp, got %v", tr.Timestamp)
	}
}

func TestScannerDedupAcrossRoleQueries(t *testing.T) {
	// Both parties watched: the same log matches the maker query and the
	// taker query. It must be processed once, yielding one trade per party.
	chain := &fakeChain{
		head: 1100,
		logs: []types.Log{
			exchangeLog(fillLog(walletA, walletB, big.NewInt(777), big.NewInt(888), usdc6(100), usdc6(50))),
		},
	}
	chain.logs[0].BlockNumber = 1050

	s, col := newTestScanner(t, chain, walletA, walletB)
	if err := s.Start(context.Background(), 1000); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	waitFor(t, func() bool {
		trades, _ := col.snapshot()
		return len(trades) == 2
	})

	m := s.Metrics()
	if m.DuplicatesSkipped != 1 {
		t.Errorf("expected 1 duplicate skipped, got %d", m.DuplicatesSkipped)
	}
	if m.TradesEmitted != 2 {
		t.Errorf("expected 2 trades emitted, got %d", m.TradesEmitted)
	}
}

func TestScannerContractErrorDoesNotBlockOthers(t *testing.T) {
	transferLg := types.Log{
		Address: common.HexToAddress(ConditionalTokensAddress),
		Topics: []common.Hash{
			sigTransferSingle,
			common.HexToHash("0x1"),
			addrTopic(walletC),
			addrTopic(walletA),
		},
		Data:        packWords(big.NewInt(555), usdc6(10)),
		TxHash:      common.HexToHash("0xaaaa"),
		Index:       2,
		BlockNumber: 1020,
	}
	chain := &fakeChain{
		head: 1100,
		logs: []types.Log{transferLg},
		failFor: map[common.Address]error{
			common.HexToAddress(CTFExchangeAddress): errors.New("query limit exceeded"),
		},
	}

	s, col := newTestScanner(t, chain, walletA)
	if err := s.Start(context.Background(), 1000); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	waitFor(t, func() bool {
		trades, errs := col.snapshot()
		return len(trades) == 1 && len(errs) > 0
	})

	_, errs := col.snapshot()
	var qErr *ChainQueryError
	if !errors.As(errs[0], &qErr) {
		t.Fatalf("expected ChainQueryError, got %v", errs[0])
	}

	// The window still completes and the cursor moves past it.
	waitFor(t, func() bool { return s.Metrics().LastBlock == 1100 })
}

func TestScannerHeaderFailureReportedWithZeroTimestamp(t *testing.T) {
	chain := &fakeChain{
		head:      1100,
		headerErr: errors.New("header rpc down"),
		logs: []types.Log{
			exchangeLog(fillLog(walletA, walletB, big.NewInt(777), big.NewInt(0), usdc6(100), usdc6(60))),
		},
	}
	chain.logs[0].BlockNumber = 1050

	s, col := newTestScanner(t, chain, walletA)
	if err := s.Start(context.Background(), 1000); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	waitFor(t, func() bool {
		trades, errs := col.snapshot()
		return len(trades) == 1 && len(errs) > 0
	})

	trades, errs := col.snapshot()
	if !trades[0].Timestamp.IsZero() {
		t.Errorf("timestamp must stay zero when the header is unavailable, got %v", trades[0].Timestamp)
	}
	var qErr *ChainQueryError
	if !errors.As(errs[0], &qErr) {
		t.Fatalf("expected ChainQueryError, got %v", errs[0])
	}
	if qErr.FromBlock != 1050 || qErr.ToBlock != 1050 {
		t.Errorf("error should name the failing block, got %d-%d", qErr.FromBlock, qErr.ToBlock)
	}
}

func TestScannerStopIsIdempotent(t *testing.T) {
	chain := &fakeChain{head: 1100}
	s, _ := newTestScanner(t, chain, walletA)
	if err := s.Start(context.Background(), 1000); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Stop()
	s.Stop()
}
