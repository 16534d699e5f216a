package stream

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const reconnectDelay = time.Second

// SubscribeUpdates listens for board updates published on channel and hands
// each one to broadcast. It reconnects when the pubsub channel closes and
// returns once ctx is done.
func SubscribeUpdates(
	ctx context.Context,
	logger *log.Logger,
	rc *redis.Client,
	channel string,
	broadcast func(boardID string, data []byte),
) {
	for {
		sub := rc.Subscribe(ctx, channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				u, err := DecodeUpdate([]byte(msg.Payload))
				if err != nil {
					logger.Errorf("unable to parse board update: %v", err)
					continue
				}
				if u.BoardID == "" {
					logger.Warn("board update without board id")
					continue
				}
				broadcast(u.BoardID, []byte(msg.Payload))
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Error("pubsub channel closed, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}
