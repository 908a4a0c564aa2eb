package syncer

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/AzrielTheHellrazor/polymarket-agent/api"
	"github.com/AzrielTheHellrazor/polymarket-agent/models"
)

// BookSource serves per-token order books. Satisfied by api.MarketClient.
type BookSource interface {
	GetOrderBook(ctx context.Context, tokenID string) (*api.OrderBook, error)
}

// MarketDirectory lists the active market universe. Satisfied by
// api.GammaClient.
type MarketDirectory interface {
	ListActiveMarkets(ctx context.Context) ([]api.ActiveMarket, error)
}

const defaultMetadataTTL = 60 * time.Minute

// MetadataCache is a read-through cache of per-token market metadata (tick
// size, neg-risk flag, market id). Staleness is tracked for the cache as a
// whole: once the oldest populated entry ages past the TTL, everything is
// dropped and lookups repopulate from source.
type MetadataCache struct {
	books     BookSource
	directory MarketDirectory
	ttl       time.Duration

	mu      sync.Mutex
	entries map[string]models.MarketMetadata
	oldest  time.Time

	hits         uint64
	misses       uint64
	refreshCount uint64
}

func NewMetadataCache(books BookSource, directory MarketDirectory, ttl time.Duration) *MetadataCache {
	if ttl <= 0 {
		ttl = defaultMetadataTTL
	}
	return &MetadataCache{
		books:     books,
		directory: directory,
		ttl:       ttl,
		entries:   make(map[string]models.MarketMetadata),
	}
}

// Get resolves metadata for a token. Cache hits cost nothing; a miss tries
// the order book endpoint first, then falls back to a full directory refresh.
// A token unknown to both sources yields (nil, nil) so callers can filter it
// out without treating it as a failure.
func (c *MetadataCache) Get(ctx context.Context, tokenID string) (*models.MarketMetadata, error) {
	c.mu.Lock()
	c.expireLocked()
	if md, ok := c.entries[tokenID]; ok {
		c.hits++
		c.mu.Unlock()
		return &md, nil
	}
	c.misses++
	c.mu.Unlock()

	if book, err := c.books.GetOrderBook(ctx, tokenID); err == nil && book != nil {
		md := models.MarketMetadata{
			TokenID:  tokenID,
			TickSize: book.TickSizeFloat(),
			NegRisk:  book.NegRisk,
			MarketID: book.MarketID,
			CachedAt: time.Now().UTC(),
		}
		c.store(md)
		return &md, nil
	}

	markets, err := c.directory.ListActiveMarkets(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.refreshCount++
	now := time.Now().UTC()
	for _, m := range markets {
		for _, tid := range m.TokenIDs {
			if _, exists := c.entries[tid]; exists {
				continue
			}
			c.storeLocked(models.MarketMetadata{
				TokenID:  tid,
				TickSize: m.TickSize,
				NegRisk:  m.NegRisk,
				MarketID: m.MarketID,
				CachedAt: now,
			})
		}
	}
	md, ok := c.entries[tokenID]
	c.mu.Unlock()
	if !ok {
		log.Printf("[MetadataCache] token %s unknown to book and directory", tokenID)
		return nil, nil
	}
	return &md, nil
}

// Invalidate drops a single entry.
func (c *MetadataCache) Invalidate(tokenID string) {
	c.mu.Lock()
	delete(c.entries, tokenID)
	if len(c.entries) == 0 {
		c.oldest = time.Time{}
	}
	c.mu.Unlock()
}

// Clear drops everything.
func (c *MetadataCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]models.MarketMetadata)
	c.oldest = time.Time{}
	c.mu.Unlock()
}

// Len reports the number of cached entries.
func (c *MetadataCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns hit/miss/refresh counters.
func (c *MetadataCache) Stats() (hits, misses, refreshes uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, c.refreshCount
}

func (c *MetadataCache) store(md models.MarketMetadata) {
	c.mu.Lock()
	c.storeLocked(md)
	c.mu.Unlock()
}

func (c *MetadataCache) storeLocked(md models.MarketMetadata) {
	if len(c.entries) == 0 {
		c.oldest = md.CachedAt
	}
	c.entries[md.TokenID] = md
}

func (c *MetadataCache) expireLocked() {
	if c.oldest.IsZero() || time.Since(c.oldest) <= c.ttl {
		return
	}
	log.Printf("[MetadataCache] cache stale after %v, dropping %d entries", c.ttl, len(c.entries))
	c.entries = make(map[string]models.MarketMetadata)
	c.oldest = time.Time{}
}
