package storage

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/wynnblevins/kanban/domain"
	"github.com/wynnblevins/kanban/stream"
)

// Publisher announces board changes on a Redis channel and refreshes the
// snapshot cache, mirroring the read model refresh-then-publish order.
type Publisher struct {
	redis   *redis.Client
	channel string
	cache   *Cache
}

func NewPublisher(client *redis.Client, channel string, cache *Cache) *Publisher {
	return &Publisher{redis: client, channel: channel, cache: cache}
}

// Publish refreshes the cached snapshot and publishes the encoded update.
// A closed board is evicted instead. The cache write is best effort; only a
// failed publish is reported.
func (p *Publisher) Publish(ctx context.Context, boardID string, change domain.Change) error {
	data, err := stream.EncodeUpdate(stream.Update{BoardID: boardID, Change: change})
	if err != nil {
		return err
	}
	if p.cache != nil {
		if change.Event == domain.EventBoardClosed {
			p.cache.Evict(ctx, boardID)
		} else {
			_ = p.cache.StoreSnapshot(ctx, boardID, change.Snapshot)
		}
	}
	return p.redis.Publish(ctx, p.channel, data).Err()
}
