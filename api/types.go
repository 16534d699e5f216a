package api

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/wynnblevins/kanban/domain"
	"github.com/wynnblevins/kanban/session"
)

// Boards manages the live board sessions of this instance.
type Boards interface {
	Create(owner string, titles []string) (*session.Session, error)
	Get(id string) (*session.Session, error)
	Delete(id string) error
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents processing of duplicate commands.
type Deduper interface {
	// AddMany records the keys and reports which of them were newly added.
	AddMany(ctx context.Context, scope string, keys []string) ([]bool, error)
	// Remove deletes previously added keys, used when a command was not applied.
	Remove(ctx context.Context, scope string, keys ...string) error
}

// SnapshotCache serves boards owned by other instances.
type SnapshotCache interface {
	LoadSnapshot(ctx context.Context, boardID string) (domain.Snapshot, bool)
}

// Templates resolves a template name to column titles.
type Templates interface {
	Columns(ctx context.Context, name string) ([]string, error)
}

// Updates delivers encoded board updates to stream clients.
type Updates interface {
	Subscribe(boardID string, buffer int) chan []byte
	Unsubscribe(boardID string, ch chan []byte)
}

// Deps are the collaborators of the HTTP handlers. Deduper, Cache, Templates
// and Metrics are optional.
type Deps struct {
	Boards    Boards
	Auth      Authenticator
	Deduper   Deduper
	Cache     SnapshotCache
	Templates Templates
	Updates   Updates
	Metrics   *Metrics
	Log       *log.Logger
}
