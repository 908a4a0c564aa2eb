// Package models defines the core domain types shared across the agent.
package models

import (
	"strconv"
	"time"
)

// Side is the direction of a trade from the watched wallet's perspective.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// EventKind identifies which on-chain event shape a trade was decoded from.
type EventKind string

const (
	EventFill     EventKind = "fill"     // two-party OrderFilled
	EventMatched  EventKind = "matched"  // single-party OrdersMatched
	EventTransfer EventKind = "transfer" // ERC1155 TransferSingle fallback
)

// DetectedTrade is a normalized trade observed on-chain for a watched wallet.
// Price is USD-denominated and Size token-denominated regardless of the raw
// fixed-point scale of the originating log. A Price of 0 on a transfer event
// means "not determinable from this event", not a real price of zero.
// Immutable once produced by the scanner.
type DetectedTrade struct {
	Wallet      string
	TokenID     string
	Price       float64
	Size        float64
	Side        Side
	Event       EventKind
	TxHash      string
	LogIndex    uint
	BlockNumber uint64
	Timestamp   time.Time
}

// ID returns the unique identifier for this trade. One transaction can carry
// multiple fills, so the log index is part of the key.
func (t DetectedTrade) ID() string {
	return t.TxHash + ":" + strconv.FormatUint(uint64(t.LogIndex), 10)
}

// WatchedWallet is a monitored address with its routing configuration.
type WatchedWallet struct {
	Address  string `json:"address"` // canonical lower-case form
	Enabled  bool   `json:"enabled"`
	Strategy string `json:"strategy,omitempty"` // per-wallet override, empty = engine default
}

// MarketMetadata is cached venue metadata for one outcome token.
type MarketMetadata struct {
	TokenID  string
	TickSize float64
	NegRisk  bool
	MarketID string
	CachedAt time.Time
}

// Position tracks our holdings in one outcome token. A position is deleted,
// never kept at zero, once its quantity reaches zero.
type Position struct {
	TokenID       string
	Quantity      float64
	AvgEntryPrice float64
	ValueUSD      float64 // notional at entry, never negative
}

// DailyStats tracks balance and P&L for exactly one UTC calendar day.
type DailyStats struct {
	Date           string // 2006-01-02
	OpeningBalance float64
	Balance        float64
	Loss           float64 // cumulative, >= 0
	Profit         float64 // cumulative, >= 0
	Trades         int
}

// OrderParams are the computed parameters for a replica order.
type OrderParams struct {
	TokenID  string
	Price    float64
	Size     float64
	Side     Side
	TickSize float64
	NegRisk  bool
}

// Value returns the order notional (price x size) in USD.
func (p OrderParams) Value() float64 {
	return p.Price * p.Size
}
