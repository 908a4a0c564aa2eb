package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const metricsKey = "copyagent:metrics"

// MetricsSnapshot bundles all component counters for one publish.
type MetricsSnapshot struct {
	Scanner ScannerMetrics `json:"scanner"`
	Router  RouterMetrics  `json:"router"`
	Engine  EngineMetrics  `json:"engine"`

	CacheHits   uint64 `json:"cache_hits"`
	CacheMisses uint64 `json:"cache_misses"`

	OpenPositions int       `json:"open_positions"`
	DayBalance    float64   `json:"day_balance"`
	DayLoss       float64   `json:"day_loss"`
	DayProfit     float64   `json:"day_profit"`
	PublishedAt   time.Time `json:"published_at"`
}

// MetricsStore snapshots agent counters into redis so dashboards can read
// them without touching the process.
type MetricsStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewMetricsStore connects to redis at the given address (host:port).
func NewMetricsStore(ctx context.Context, addr string) (*MetricsStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &MetricsStore{client: client, ttl: 10 * time.Minute}, nil
}

// Publish writes one snapshot.
func (m *MetricsStore) Publish(ctx context.Context, snap MetricsSnapshot) error {
	snap.PublishedAt = time.Now().UTC()
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	if err := m.client.Set(ctx, metricsKey, data, m.ttl).Err(); err != nil {
		return fmt.Errorf("publish metrics: %w", err)
	}
	return nil
}

// Latest reads the last published snapshot, nil when none exists.
func (m *MetricsStore) Latest(ctx context.Context) (*MetricsSnapshot, error) {
	data, err := m.client.Get(ctx, metricsKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read metrics: %w", err)
	}
	var snap MetricsSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal metrics: %w", err)
	}
	return &snap, nil
}

// PublishLoop publishes on a fixed interval until the context ends.
func (m *MetricsStore) PublishLoop(ctx context.Context, interval time.Duration, collect func() MetricsSnapshot) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Publish(ctx, collect()); err != nil {
				log.Printf("[Metrics] publish failed: %v", err)
			}
		}
	}
}

// Close releases the redis connection.
func (m *MetricsStore) Close() error {
	return m.client.Close()
}
