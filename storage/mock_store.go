package storage

import (
	"context"
	"sync"

	"github.com/AzrielTheHellrazor/polymarket-agent/models"
)

// MockLog is an in-memory TradeLog for tests. Calls counts invocations per
// method; setting ErrorOnNext makes the next call fail once.
type MockLog struct {
	mu sync.Mutex

	Trades    []models.DetectedTrade
	Decisions []CopyDecision

	Calls       map[string]int
	ErrorOnNext error
}

var _ TradeLog = (*MockLog)(nil)

func NewMockLog() *MockLog {
	return &MockLog{Calls: make(map[string]int)}
}

func (m *MockLog) takeError(method string) error {
	m.Calls[method]++
	if err := m.ErrorOnNext; err != nil {
		m.ErrorOnNext = nil
		return err
	}
	return nil
}

func (m *MockLog) SaveDetectedTrade(_ context.Context, t models.DetectedTrade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeError("SaveDetectedTrade"); err != nil {
		return err
	}
	m.Trades = append(m.Trades, t)
	return nil
}

func (m *MockLog) SaveCopyDecision(_ context.Context, d CopyDecision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeError("SaveCopyDecision"); err != nil {
		return err
	}
	m.Decisions = append(m.Decisions, d)
	return nil
}

func (m *MockLog) RecentDecisions(_ context.Context, limit int) ([]CopyDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeError("RecentDecisions"); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > len(m.Decisions) {
		limit = len(m.Decisions)
	}
	out := make([]CopyDecision, limit)
	copy(out, m.Decisions[len(m.Decisions)-limit:])
	return out, nil
}

func (m *MockLog) Close() {}

// DecisionsWithStatus filters recorded decisions for assertions.
func (m *MockLog) DecisionsWithStatus(status string) []CopyDecision {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []CopyDecision
	for _, d := range m.Decisions {
		if d.Status == status {
			out = append(out, d)
		}
	}
	return out
}
