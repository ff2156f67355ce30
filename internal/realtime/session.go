package realtime

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lmsedutechkpr/Slate-sub000/internal/auth"
)

// State is the lifecycle position of a session's connection.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateAuthenticating
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one live connection. Identity stays nil until a credential
// verifies; an anonymous session only receives all-scoped events.
type Session struct {
	ID        string
	CreatedAt time.Time

	state atomic.Int32

	mu       sync.RWMutex
	identity *auth.Identity

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(sendBuffer int) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		send:      make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
	}
	s.state.Store(int32(StateConnecting))
	return s
}

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// Identity returns the authenticated identity, if any.
func (s *Session) Identity() (auth.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return auth.Identity{}, false
	}
	return *s.identity, true
}

func (s *Session) setIdentity(id *auth.Identity) {
	s.mu.Lock()
	s.identity = id
	s.mu.Unlock()
}

// Outbound is the queue a transport drains for this session, in publish order.
func (s *Session) Outbound() <-chan []byte { return s.send }

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} { return s.done }

// enqueue never blocks; it reports false when the queue is full or the session is gone.
func (s *Session) enqueue(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

func (s *Session) close() bool {
	closed := false
	s.closeOnce.Do(func() {
		s.setState(StateClosed)
		close(s.done)
		closed = true
	})
	return closed
}
