package realtime

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lmsedutechkpr/Slate-sub000/internal/auth"
	"github.com/lmsedutechkpr/Slate-sub000/internal/metrics"
)

var (
	ErrTooManySessions = errors.New("realtime: session limit reached")
	ErrHubClosed       = errors.New("realtime: hub closed")
)

const DefaultSendBuffer = 256

// CredentialVerifier turns an opaque credential into an identity.
type CredentialVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// Publisher is what mutation handlers depend on. Publish is fire and forget:
// it returns the number of sessions the event was queued for, and zero
// recipients is not an error.
type Publisher interface {
	Publish(topic Topic, payload any, scope Scope) int
}

type Options struct {
	// SendBuffer is the per-session outbound queue length.
	SendBuffer int
	// MaxConnections caps live sessions; zero means unlimited.
	MaxConnections int
	Logger         zerolog.Logger
}

// Hub owns the live sessions and their room memberships.
type Hub struct {
	verifier CredentialVerifier
	opts     Options
	log      zerolog.Logger
	rooms    *Registry

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

func NewHub(verifier CredentialVerifier, opts Options) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}
	return &Hub{
		verifier: verifier,
		opts:     opts,
		log:      opts.Logger.With().Str("component", "realtime").Logger(),
		rooms:    NewRegistry(),
		sessions: make(map[string]*Session),
	}
}

// Registry exposes room membership for read-only inspection.
func (h *Hub) Registry() *Registry { return h.rooms }

// Open registers a new anonymous session.
func (h *Hub) Open() (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	if h.opts.MaxConnections > 0 && len(h.sessions) >= h.opts.MaxConnections {
		return nil, ErrTooManySessions
	}
	s := newSession(h.opts.SendBuffer)
	s.setState(StateOpen)
	h.sessions[s.ID] = s
	metrics.Sessions.Inc()
	h.log.Debug().Str("session", s.ID).Msg("session opened")
	return s, nil
}

// Authenticate verifies cred and attaches the identity and rooms to s.
// A failed verification leaves the session open and anonymous; it is
// reported through the return value only. Re-authenticating drops the rooms
// granted by the previous credential first.
func (h *Hub) Authenticate(s *Session, cred string) bool {
	if s.State() == StateClosed {
		return false
	}
	s.setState(StateAuthenticating)

	id, err := h.verifier.Verify(cred)

	h.mu.Lock()
	if _, live := h.sessions[s.ID]; !live {
		h.mu.Unlock()
		return false
	}
	h.rooms.LeaveAll(s.ID)
	if err != nil {
		s.setIdentity(nil)
		s.setState(StateOpen)
		h.mu.Unlock()
		metrics.AuthAttempts.WithLabelValues("anonymous").Inc()
		h.log.Info().Err(err).Str("session", s.ID).Msg("credential rejected, session stays anonymous")
		h.notifyAuth(s, nil)
		return false
	}
	s.setIdentity(&id)
	h.rooms.Join(s.ID, UserRoom(id.SubjectID))
	if id.IsAdmin() {
		h.rooms.Join(s.ID, RoomAdmin)
	}
	s.setState(StateAuthenticated)
	rooms := h.rooms.RoomsOf(s.ID)
	h.mu.Unlock()

	metrics.AuthAttempts.WithLabelValues("ok").Inc()
	h.log.Debug().Str("session", s.ID).Str("subject", id.SubjectID).Str("role", id.Role).Strs("rooms", rooms).Msg("session authenticated")
	h.notifyAuth(s, rooms)
	return true
}

func (h *Hub) notifyAuth(s *Session, rooms []string) {
	frame, err := json.Marshal(Frame{Type: FrameAuthResult, SessionID: s.ID, Rooms: rooms})
	if err != nil {
		return
	}
	s.enqueue(frame)
}

// Close ends s and drops every room membership it held. Safe to call twice.
func (h *Hub) Close(s *Session) {
	h.mu.Lock()
	_, live := h.sessions[s.ID]
	if live {
		delete(h.sessions, s.ID)
		h.rooms.LeaveAll(s.ID)
	}
	h.mu.Unlock()
	if s.close() && live {
		metrics.Sessions.Dec()
		h.log.Debug().Str("session", s.ID).Msg("session closed")
	}
}

// Publish queues an event for every session matching scope. Privileged
// topics published to everyone are narrowed to the admin room.
func (h *Hub) Publish(topic Topic, payload any, scope Scope) int {
	if topic.Privileged() && scope.Kind == ScopeAll {
		scope = Room(RoomAdmin)
	}
	raw, err := encodePayload(payload)
	if err != nil {
		h.log.Error().Err(err).Str("topic", topic.String()).Msg("publish: encode payload")
		return 0
	}
	frame, err := json.Marshal(Frame{Type: FrameEvent, Topic: topic, Payload: raw})
	if err != nil {
		h.log.Error().Err(err).Str("topic", topic.String()).Msg("publish: encode frame")
		return 0
	}
	metrics.EventsPublished.WithLabelValues(scope.Kind.String()).Inc()

	targets := h.resolve(scope)
	if len(targets) == 0 {
		h.log.Debug().Str("topic", topic.String()).Str("scope", scope.String()).Msg("publish: no recipients")
		return 0
	}
	sent := 0
	for _, s := range targets {
		if s.enqueue(frame) {
			sent++
			metrics.Deliveries.WithLabelValues("sent").Inc()
			continue
		}
		metrics.Deliveries.WithLabelValues("dropped").Inc()
		h.log.Warn().Str("session", s.ID).Str("topic", topic.String()).Msg("send queue full, event dropped")
	}
	return sent
}

func (h *Hub) resolve(scope Scope) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	switch scope.Kind {
	case ScopeRoom:
		ids := h.rooms.MembersOf(scope.Target)
		out := make([]*Session, 0, len(ids))
		for _, id := range ids {
			if s, ok := h.sessions[id]; ok {
				out = append(out, s)
			}
		}
		return out
	case ScopeSession:
		if s, ok := h.sessions[scope.Target]; ok {
			return []*Session{s}
		}
		return nil
	default:
		out := make([]*Session, 0, len(h.sessions))
		for _, s := range h.sessions {
			out = append(out, s)
		}
		return out
	}
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(p) == 0 {
			return nil, nil
		}
		if !json.Valid(p) {
			return nil, errors.New("payload is not valid JSON")
		}
		return p, nil
	default:
		return json.Marshal(payload)
	}
}

// Session looks up a live session by id.
func (h *Hub) Session(id string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

// Stats is a point-in-time view of the hub.
type Stats struct {
	Sessions      int            `json:"sessions"`
	Authenticated int            `json:"authenticated"`
	Rooms         map[string]int `json:"rooms"`
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st := Stats{Sessions: len(h.sessions), Rooms: h.rooms.RoomSizes()}
	for _, s := range h.sessions {
		if _, ok := s.Identity(); ok {
			st.Authenticated++
		}
	}
	return st
}

// Shutdown closes every session and refuses new ones.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	all := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		all = append(all, s)
	}
	h.mu.Unlock()
	for _, s := range all {
		h.Close(s)
	}
}

var _ Publisher = (*Hub)(nil)
