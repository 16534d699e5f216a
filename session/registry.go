package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/wynnblevins/kanban/domain"
)

// ErrSessionNotFound is returned for unknown or closed boards.
var ErrSessionNotFound = errors.New("board not found")

// Options configures the engine of every new session.
type Options struct {
	IDStrategy   string
	OrphanPolicy domain.OrphanPolicy
	// ActivationDistance is how far the pointer travels before a press
	// becomes a drag. Zero starts a drag on the first move.
	ActivationDistance float64
}

// Registry owns the live board sessions of this instance.
type Registry struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	publisher Publisher
	opts      Options
	log       *log.Logger
	now       func() time.Time
}

// NewRegistry creates an empty registry. A nil publisher discards changes.
func NewRegistry(publisher Publisher, opts Options, logger *log.Logger) *Registry {
	if publisher == nil {
		publisher = PublisherFunc(func(string, domain.Change) {})
	}
	if logger == nil {
		logger = log.New()
	}
	return &Registry{
		sessions:  make(map[string]*Session),
		publisher: publisher,
		opts:      opts,
		log:       logger,
		now:       time.Now,
	}
}

// Create opens a board for owner seeded with titles. Nil titles use
// domain.DefaultColumnTitles. The initial state is published as
// domain.EventBoardOpened.
func (r *Registry) Create(owner string, titles []string) (*Session, error) {
	if titles == nil {
		titles = domain.DefaultColumnTitles
	}
	ids, err := domain.NewIDGenerator(r.opts.IDStrategy, domain.ID(len(titles)))
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	board := domain.NewBoard(
		domain.WithColumnTitles(titles...),
		domain.WithIDGenerator(ids),
		domain.WithOrphanPolicy(r.opts.OrphanPolicy),
		domain.WithPublisher(domain.PublisherFunc(func(c domain.Change) {
			r.publisher.Publish(id, c)
		})),
	)
	now := r.now()
	s := &Session{
		id:         id,
		owner:      owner,
		created:    now,
		now:        r.now,
		engine:     domain.NewEngine(board, domain.WithActivationDistance(r.opts.ActivationDistance)),
		lastActive: now,
	}

	// Opened goes out before the session is reachable so it precedes every
	// change an Apply can publish.
	r.publisher.Publish(id, domain.Change{Version: board.Version(), Event: domain.EventBoardOpened, Snapshot: board.Snapshot()})

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	r.log.WithFields(log.Fields{"board": id, "owner": owner, "columns": len(titles)}).Debug("board opened")
	return s, nil
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete closes a board and publishes domain.EventBoardClosed.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	r.close(s)
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// StartCleanup closes sessions idle for longer than idle, checking every
// interval until ctx is done.
func (r *Registry) StartCleanup(ctx context.Context, interval, idle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.cleanupIdle(idle)
			}
		}
	}()
}

func (r *Registry) cleanupIdle(idle time.Duration) int {
	now := r.now()
	var stale []*Session

	r.mu.Lock()
	for id, s := range r.sessions {
		if now.Sub(s.idleSince()) > idle {
			delete(r.sessions, id)
			stale = append(stale, s)
		}
	}
	r.mu.Unlock()

	for _, s := range stale {
		r.close(s)
		r.log.Infof("cleaned up idle board: %s", s.id)
	}
	return len(stale)
}

func (r *Registry) close(s *Session) {
	r.publisher.Publish(s.id, domain.Change{Version: s.version() + 1, Event: domain.EventBoardClosed})
}
