package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/wynnblevins/kanban/domain"
)

// CommandError reports which command of a batch failed. Commands before it
// stay applied.
type CommandError struct {
	Index int
	Type  string
	Err   error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %d (%s): %v", e.Index, e.Type, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Session is one live board. All access goes through its mutex, so a
// session applies commands strictly one at a time.
type Session struct {
	id      string
	owner   string
	created time.Time
	now     func() time.Time

	mu         sync.Mutex
	engine     *domain.Engine
	lastActive time.Time
}

func (s *Session) ID() string { return s.id }

func (s *Session) Owner() string { return s.owner }

func (s *Session) CreatedAt() time.Time { return s.created }

// Apply runs cmds in order and returns the resulting view. It stops at the
// first command that cannot be decoded.
func (s *Session) Apply(cmds []domain.Command) (domain.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = s.now()
	for i, cmd := range cmds {
		if err := s.engine.Apply(cmd); err != nil {
			return s.engine.View(), &CommandError{Index: i, Type: cmd.Type, Err: err}
		}
	}
	return s.engine.View(), nil
}

// View returns the current board and drag state.
func (s *Session) View() domain.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.View()
}

// Touch marks the session as in use, e.g. while a client is streaming it.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = s.now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Board().Version()
}
