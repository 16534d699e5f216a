package session

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/wynnblevins/kanban/domain"
	"github.com/wynnblevins/kanban/storage"
	"github.com/wynnblevins/kanban/stream"
)

// Publisher receives every change of every board. Implementations must not
// block for long; they run while the board's session is locked.
type Publisher interface {
	Publish(boardID string, change domain.Change)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(boardID string, change domain.Change)

func (f PublisherFunc) Publish(boardID string, change domain.Change) { f(boardID, change) }

// MultiPublisher hands each change to all publishers in order.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(boardID string, change domain.Change) {
	for _, p := range m {
		if p != nil {
			p.Publish(boardID, change)
		}
	}
}

// RemotePublisher announces changes to other instances.
type RemotePublisher interface {
	Publish(ctx context.Context, boardID string, change domain.Change) error
}

// Broadcaster delivers encoded updates to local subscribers.
type Broadcaster interface {
	Broadcast(boardID string, data []byte)
}

// ActivityDispatcher queues activity feed entries.
type ActivityDispatcher interface {
	Dispatch(a storage.Activity) bool
}

// Fanout routes changes to subscribers. With a remote publisher configured
// local subscribers are reached through the Redis subscription loop, and
// only a failed publish is broadcast locally.
type Fanout struct {
	local    Broadcaster
	remote   RemotePublisher
	activity ActivityDispatcher
	timeout  time.Duration
	log      *log.Logger
	now      func() time.Time
}

type FanoutOption func(*Fanout)

func WithRemote(p RemotePublisher, timeout time.Duration) FanoutOption {
	return func(f *Fanout) {
		f.remote = p
		if timeout > 0 {
			f.timeout = timeout
		}
	}
}

func WithActivity(d ActivityDispatcher) FanoutOption {
	return func(f *Fanout) { f.activity = d }
}

func NewFanout(local Broadcaster, logger *log.Logger, opts ...FanoutOption) *Fanout {
	f := &Fanout{local: local, timeout: 5 * time.Second, log: logger, now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fanout) Publish(boardID string, change domain.Change) {
	if f.remote != nil {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		err := f.remote.Publish(ctx, boardID, change)
		cancel()
		if err == nil {
			f.dispatchActivity(boardID, change)
			return
		}
		f.log.Warnf("remote publish failed, board: %s, version: %d, err: %v", boardID, change.Version, err)
	}
	if f.local != nil {
		data, err := stream.EncodeUpdate(stream.Update{BoardID: boardID, Change: change})
		if err != nil {
			f.log.Errorf("encode update: %v", err)
		} else {
			f.local.Broadcast(boardID, data)
		}
	}
	f.dispatchActivity(boardID, change)
}

func (f *Fanout) dispatchActivity(boardID string, change domain.Change) {
	if f.activity == nil {
		return
	}
	if !f.activity.Dispatch(storage.NewActivity(boardID, change, f.now())) {
		f.log.Warnf("activity dropped, board: %s, version: %d", boardID, change.Version)
	}
}
