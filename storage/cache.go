package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/wynnblevins/kanban/domain"
)

// Cache keeps the latest snapshot of every board in Redis so that other
// instances can serve reads and bootstrap streams.
type Cache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a snapshot cache. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{redis: client, ttl: ttl}
}

// StoreSnapshot writes the snapshot unless the cache already holds a newer version.
func (c *Cache) StoreSnapshot(ctx context.Context, boardID string, snap domain.Snapshot) error {
	if c.redis == nil || c.ttl == 0 {
		return nil
	}
	if cur, ok := c.LoadSnapshot(ctx, boardID); ok && cur.Version > snap.Version {
		return nil
	}
	data, err := sonic.Marshal(snap)
	if err != nil {
		return err
	}
	return c.redis.Set(ctx, snapshotCacheKey(boardID), data, c.ttl).Err()
}

func (c *Cache) LoadSnapshot(ctx context.Context, boardID string) (domain.Snapshot, bool) {
	if c.redis == nil {
		return domain.Snapshot{}, false
	}
	data, err := c.redis.Get(ctx, snapshotCacheKey(boardID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the caller's own state without failing.
			_ = c.redis.Del(ctx, snapshotCacheKey(boardID)).Err()
		}
		return domain.Snapshot{}, false
	}
	var snap domain.Snapshot
	if err := sonic.Unmarshal(data, &snap); err != nil {
		_ = c.redis.Del(ctx, snapshotCacheKey(boardID)).Err()
		return domain.Snapshot{}, false
	}
	return snap, true
}

func (c *Cache) Evict(ctx context.Context, boardID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, snapshotCacheKey(boardID)).Result()
}

func snapshotCacheKey(boardID string) string {
	return "board:" + boardID
}
