package session

import (
	"sync"
	"time"

	"github.com/danmuck/fxchange/internal/transfer"
	"github.com/google/uuid"
)

// Session is the server-side state for one connection. Only the connection's
// handler goroutine mutates it; the lock exists so status readers can take
// consistent snapshots.
type Session struct {
	mu sync.RWMutex

	id       string
	peer     string
	openedAt time.Time

	state    State
	username string
	transfer *transfer.Context
}

// Snapshot is a point-in-time copy of a session for status reporting.
type Snapshot struct {
	ID       string             `json:"id"`
	Peer     string             `json:"peer"`
	Username string             `json:"username,omitempty"`
	State    string             `json:"state"`
	OpenedAt time.Time          `json:"opened_at"`
	Transfer *transfer.Progress `json:"transfer,omitempty"`
}

func New(peer string) *Session {
	return &Session{
		id:       uuid.NewString(),
		peer:     peer,
		openedAt: time.Now(),
		state:    StateUnauthenticated,
	}
}

func (s *Session) ID() string   { return s.id }
func (s *Session) Peer() string { return s.peer }

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

func (s *Session) Authenticated() bool {
	st := s.State()
	return st == StateAuthenticated || st == StateTransferring
}

// Transfer returns the active transfer context, or nil when idle.
func (s *Session) Transfer() *transfer.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transfer
}

// Authenticate moves Unauthenticated -> Authenticated.
func (s *Session) Authenticate(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUnauthenticated {
		return transitionError(s.state, StateAuthenticated)
	}
	s.state = StateAuthenticated
	s.username = username
	return nil
}

// BeginTransfer attaches tc and moves Authenticated -> Transferring.
func (s *Session) BeginTransfer(tc *transfer.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !CanTransition(s.state, StateTransferring) {
		return transitionError(s.state, StateTransferring)
	}
	s.state = StateTransferring
	s.transfer = tc
	return nil
}

// EndTransfer drops the transfer context and moves Transferring -> Authenticated.
func (s *Session) EndTransfer() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateTransferring {
		return transitionError(s.state, StateAuthenticated)
	}
	s.state = StateAuthenticated
	s.transfer = nil
	return nil
}

// Close is terminal and idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
	s.transfer = nil
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := Snapshot{
		ID:       s.id,
		Peer:     s.peer,
		Username: s.username,
		State:    s.state.String(),
		OpenedAt: s.openedAt,
	}
	if s.transfer != nil {
		p := s.transfer.Progress()
		out.Transfer = &p
	}
	return out
}
