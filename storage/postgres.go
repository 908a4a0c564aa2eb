package storage

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AzrielTheHellrazor/polymarket-agent/models"
)

const createTablesSQL = `
CREATE TABLE IF NOT EXISTS detected_trades (
	tx_hash      TEXT NOT NULL,
	log_index    BIGINT NOT NULL,
	wallet       TEXT NOT NULL,
	token_id     TEXT NOT NULL,
	side         TEXT NOT NULL,
	event        TEXT NOT NULL,
	price        DOUBLE PRECISION NOT NULL,
	size         DOUBLE PRECISION NOT NULL,
	block_number BIGINT NOT NULL,
	traded_at    TIMESTAMPTZ,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tx_hash, log_index)
);

CREATE TABLE IF NOT EXISTS copy_decisions (
	id         TEXT PRIMARY KEY,
	wallet     TEXT NOT NULL,
	token_id   TEXT NOT NULL,
	side       TEXT NOT NULL,
	src_price  DOUBLE PRECISION NOT NULL,
	src_size   DOUBLE PRECISION NOT NULL,
	price      DOUBLE PRECISION NOT NULL,
	size       DOUBLE PRECISION NOT NULL,
	status     TEXT NOT NULL,
	detail     TEXT,
	tx_hash    TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_detected_trades_wallet ON detected_trades(wallet);
CREATE INDEX IF NOT EXISTS idx_copy_decisions_created ON copy_decisions(created_at DESC);
`

// Postgres is the pgx-backed TradeLog.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ TradeLog = (*Postgres)(nil)

// NewPostgres connects using DATABASE_URL and creates the audit tables.
func NewPostgres(ctx context.Context) (*Postgres, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL not set")
	}
	return NewPostgresURL(ctx, dsn)
}

// NewPostgresURL connects to the given DSN.
func NewPostgresURL(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 5
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createTablesSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	log.Printf("[Storage] connected to postgres")
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) SaveDetectedTrade(ctx context.Context, t models.DetectedTrade) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO detected_trades
			(tx_hash, log_index, wallet, token_id, side, event, price, size, block_number, traded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tx_hash, log_index) DO NOTHING`,
		t.TxHash, t.LogIndex, t.Wallet, t.TokenID, string(t.Side), string(t.Event),
		t.Price, t.Size, t.BlockNumber, t.Timestamp)
	if err != nil {
		return fmt.Errorf("save detected trade: %w", err)
	}
	return nil
}

func (p *Postgres) SaveCopyDecision(ctx context.Context, d CopyDecision) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO copy_decisions
			(id, wallet, token_id, side, src_price, src_size, price, size, status, detail, tx_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		d.ID, d.Wallet, d.TokenID, d.Side, d.SrcPrice, d.SrcSize,
		d.Price, d.Size, d.Status, d.Detail, d.TxHash, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("save copy decision: %w", err)
	}
	return nil
}

func (p *Postgres) RecentDecisions(ctx context.Context, limit int) ([]CopyDecision, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, wallet, token_id, side, src_price, src_size, price, size, status, detail, tx_hash, created_at
		FROM copy_decisions
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []CopyDecision
	for rows.Next() {
		var d CopyDecision
		if err := rows.Scan(&d.ID, &d.Wallet, &d.TokenID, &d.Side, &d.SrcPrice, &d.SrcSize,
			&d.Price, &d.Size, &d.Status, &d.Detail, &d.TxHash, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) Close() {
	p.pool.Close()
}
