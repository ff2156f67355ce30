package realtime

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lmsedutechkpr/Slate-sub000/internal/auth"
)

// Frame types on the websocket.
const (
	FrameHello      = "hello"       // server -> client, carries the session id
	FrameAuth       = "auth"        // client -> server, carries the credential
	FrameAuthResult = "auth_result" // server -> client, rooms joined (empty when anonymous)
	FrameEvent      = "event"       // server -> client
	FramePing       = "ping"
	FramePong       = "pong"
)

// Frame is the single JSON envelope used in both directions.
type Frame struct {
	Type      string          `json:"type"`
	Token     string          `json:"token,omitempty"`
	Topic     Topic           `json:"topic,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Rooms     []string        `json:"rooms,omitempty"`
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

// Handler upgrades GET /ws requests and pumps frames between the socket and the hub.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewHandler builds the websocket endpoint. An empty or "*" origin list accepts any origin.
func NewHandler(hub *Hub, allowedOrigins []string, logger zerolog.Logger) *Handler {
	h := &Handler{hub: hub, log: logger.With().Str("component", "ws").Logger()}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := map[string]struct{}{}
	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(strings.ToLower(o)), "/")
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			set[o] = struct{}{}
		}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s, err := h.hub.Open()
	if err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, ErrHubClosed) {
			status = http.StatusGone
		}
		http.Error(w, err.Error(), status)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.Close(s)
		h.log.Debug().Err(err).Msg("upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	hello, _ := json.Marshal(Frame{Type: FrameHello, SessionID: s.ID})
	s.enqueue(hello)

	// A bearer header on the upgrade counts as the first auth frame.
	if tok := auth.BearerToken(r); tok != "" {
		h.hub.Authenticate(s, tok)
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writePump(conn, s)
	}()
	h.readPump(conn, s)
	h.hub.Close(s)
	<-writerDone
}

func (h *Handler) readPump(conn *websocket.Conn, s *Session) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Str("session", s.ID).Msg("read")
			}
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			h.log.Debug().Err(err).Str("session", s.ID).Msg("ignoring malformed frame")
			continue
		}
		switch f.Type {
		case FrameAuth:
			h.hub.Authenticate(s, f.Token)
		case FramePing:
			pong, _ := json.Marshal(Frame{Type: FramePong})
			s.enqueue(pong)
		default:
			// unknown frames are ignored
		}
	}
}

func (h *Handler) writePump(conn *websocket.Conn, s *Session) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg := <-s.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.fail(conn, s)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.fail(conn, s)
				return
			}
		case <-s.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			// unblocks readPump when the hub closed the session
			_ = conn.Close()
			return
		}
	}
}

func (h *Handler) fail(conn *websocket.Conn, s *Session) {
	h.hub.Close(s)
	_ = conn.Close()
}
