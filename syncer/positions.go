package syncer

import (
	"sync"
	"time"

	"github.com/AzrielTheHellrazor/polymarket-agent/models"
	"github.com/AzrielTheHellrazor/polymarket-agent/utils"
)

// PositionBook tracks per-token positions and the running day's balance. All
// state is process-lifetime; a fresh run reseeds from the live balance.
type PositionBook struct {
	mu        sync.RWMutex
	positions map[string]*models.Position
	day       models.DailyStats
}

func NewPositionBook(openingBalance float64) *PositionBook {
	return &PositionBook{
		positions: make(map[string]*models.Position),
		day: models.DailyStats{
			Date:           time.Now().UTC().Format("2006-01-02"),
			OpeningBalance: openingBalance,
			Balance:        openingBalance,
		},
	}
}

// ApplyFill folds an executed order into positions and the day's balance.
// BUYs add quantity at the fill price and debit the balance by the notional;
// SELLs remove quantity at the average entry price and credit the proceeds.
// A position whose quantity reaches zero is dropped.
func (b *PositionBook) ApplyFill(order models.OrderParams) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pos, ok := b.positions[order.TokenID]
	if !ok {
		pos = &models.Position{TokenID: order.TokenID}
		b.positions[order.TokenID] = pos
	}

	notional := order.Price * order.Size
	if order.Side == models.SideBuy {
		pos.Quantity += order.Size
		pos.ValueUSD += notional
		if pos.Quantity > 0 {
			pos.AvgEntryPrice = pos.ValueUSD / pos.Quantity
		}
		b.day.Balance -= notional
	} else {
		pos.ValueUSD = utils.MaxFloat(pos.ValueUSD-pos.AvgEntryPrice*order.Size, 0)
		pos.Quantity -= order.Size
		if pos.Quantity <= 0 {
			delete(b.positions, order.TokenID)
		}
		b.day.Balance += notional
	}

	b.day.Trades++
	b.refreshPnLLocked()
}

func (b *PositionBook) refreshPnLLocked() {
	diff := b.day.OpeningBalance - b.day.Balance
	if diff > 0 {
		b.day.Loss = diff
		b.day.Profit = 0
	} else {
		b.day.Loss = 0
		b.day.Profit = -diff
	}
}

// Position returns a copy of the current position in a token.
func (b *PositionBook) Position(tokenID string) (models.Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	pos, ok := b.positions[tokenID]
	if !ok {
		return models.Position{}, false
	}
	return *pos, true
}

// Positions returns copies of all open positions.
func (b *PositionBook) Positions() []models.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]models.Position, 0, len(b.positions))
	for _, pos := range b.positions {
		out = append(out, *pos)
	}
	return out
}

// Day returns a snapshot of today's stats.
func (b *PositionBook) Day() models.DailyStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.day
}

// RolloverIfNeeded resets the daily stats when the UTC date has changed,
// reseeding the opening balance from freshBalance. Returns true on rollover.
func (b *PositionBook) RolloverIfNeeded(freshBalance float64) bool {
	today := time.Now().UTC().Format("2006-01-02")
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.day.Date == today {
		return false
	}
	b.day = models.DailyStats{
		Date:           today,
		OpeningBalance: freshBalance,
		Balance:        freshBalance,
	}
	return true
}
