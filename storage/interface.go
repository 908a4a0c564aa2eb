// Package storage provides the optional audit trail for detected trades and
// copy decisions. Core agent state lives in memory; the audit log is
// best-effort history for later inspection.
package storage

import (
	"context"
	"time"

	"github.com/AzrielTheHellrazor/polymarket-agent/models"
)

// Decision statuses recorded in the audit log.
const (
	DecisionFiltered     = "filtered"
	DecisionSizeRejected = "size_rejected"
	DecisionExecuted     = "executed"
	DecisionFailed       = "failed"
)

// CopyDecision is one engine outcome for one source trade.
type CopyDecision struct {
	ID       string  `json:"id"`
	Wallet   string  `json:"wallet"`
	TokenID  string  `json:"token_id"`
	Side     string  `json:"side"`
	SrcPrice float64 `json:"src_price"`
	SrcSize  float64 `json:"src_size"`
	Price    float64 `json:"price"`
	Size     float64 `json:"size"`
	Status   string  `json:"status"`
	Detail   string  `json:"detail"`
	TxHash   string  `json:"tx_hash"`

	CreatedAt time.Time `json:"created_at"`
}

// TradeLog is the audit sink. Implementations must tolerate duplicate trade
// writes, since the scanner can replay a log across overlapping windows.
type TradeLog interface {
	SaveDetectedTrade(ctx context.Context, trade models.DetectedTrade) error
	SaveCopyDecision(ctx context.Context, decision CopyDecision) error
	RecentDecisions(ctx context.Context, limit int) ([]CopyDecision, error)
	Close()
}
