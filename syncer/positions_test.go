package syncer

import (
	"testing"

	"github.com/AzrielTheHellrazor/polymarket-agent/models"
)

func TestPositionBookBuySell(t *testing.T) {
	book := NewPositionBook(100)

	book.ApplyFill(models.OrderParams{TokenID: "777", Side: models.SideBuy, Price: 1.00, Size: 10})

	pos, ok := book.Position("777")
	if !ok {
		t.Fatal("expected open position")
	}
	if pos.Quantity != 10 || !almostEqual(pos.AvgEntryPrice, 1.00) || !almostEqual(pos.ValueUSD, 10) {
		t.Errorf("unexpected position after buy: %+v", pos)
	}
	day := book.Day()
	if !almostEqual(day.Balance, 90) {
		t.Errorf("expected balance 90 after buy, got %f", day.Balance)
	}
	if !almostEqual(day.Loss, 10) || day.Profit != 0 {
		t.Errorf("expected loss 10 / profit 0, got %f / %f", day.Loss, day.Profit)
	}

	book.ApplyFill(models.OrderParams{TokenID: "777", Side: models.SideSell, Price: 1.20, Size: 10})

	if _, ok := book.Position("777"); ok {
		t.Error("fully sold position should be dropped")
	}
	day = book.Day()
	if !almostEqual(day.Balance, 102) {
		t.Errorf("expected balance 102 after sell, got %f", day.Balance)
	}
	if day.Loss != 0 || !almostEqual(day.Profit, 2) {
		t.Errorf("expected loss 0 / profit 2, got %f / %f", day.Loss, day.Profit)
	}
	if day.Trades != 2 {
		t.Errorf("expected 2 trades, got %d", day.Trades)
	}
}

func TestPositionBookAveragesEntries(t *testing.T) {
	book := NewPositionBook(1000)

	book.ApplyFill(models.OrderParams{TokenID: "777", Side: models.SideBuy, Price: 0.40, Size: 10})
	book.ApplyFill(models.OrderParams{TokenID: "777", Side: models.SideBuy, Price: 0.60, Size: 10})

	pos, _ := book.Position("777")
	if pos.Quantity != 20 {
		t.Errorf("expected quantity 20, got %f", pos.Quantity)
	}
	if !almostEqual(pos.AvgEntryPrice, 0.50) {
		t.Errorf("expected avg entry 0.50, got %f", pos.AvgEntryPrice)
	}
}

func TestPositionBookPartialSell(t *testing.T) {
	book := NewPositionBook(1000)

	book.ApplyFill(models.OrderParams{TokenID: "777", Side: models.SideBuy, Price: 0.50, Size: 20})
	book.ApplyFill(models.OrderParams{TokenID: "777", Side: models.SideSell, Price: 0.70, Size: 5})

	pos, ok := book.Position("777")
	if !ok {
		t.Fatal("expected position to remain open")
	}
	if pos.Quantity != 15 {
		t.Errorf("expected quantity 15, got %f", pos.Quantity)
	}
	if !almostEqual(pos.ValueUSD, 7.5) {
		t.Errorf("expected value 7.5 at entry price, got %f", pos.ValueUSD)
	}
}

func TestPositionBookRollover(t *testing.T) {
	book := NewPositionBook(100)
	if book.RolloverIfNeeded(200) {
		t.Error("should not roll over on the same day")
	}

	// Force yesterday's date.
	book.day.Date = "2020-01-01"
	if !book.RolloverIfNeeded(200) {
		t.Fatal("expected rollover on a new day")
	}
	day := book.Day()
	if day.OpeningBalance != 200 || day.Balance != 200 || day.Trades != 0 {
		t.Errorf("rollover should reseed from fresh balance: %+v", day)
	}
}
