// Package client is the subscriber side of the realtime channel: one owned
// websocket connection that reconnects on its own and fans events out to
// per-topic handlers.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lmsedutechkpr/Slate-sub000/internal/realtime"
)

// Handler receives the raw payload of one event. It runs on the connection's
// read goroutine.
type Handler = func(payload json.RawMessage)

type Options struct {
	// URL of the server websocket endpoint, ws:// or wss://.
	URL string
	// Token returns the credential sent after every (re)connect. Nil or ""
	// keeps the session anonymous.
	Token  func() string
	Header http.Header
	Dialer *websocket.Dialer

	MinBackoff time.Duration
	MaxBackoff time.Duration

	// OnAuth is called with the rooms granted after each authentication.
	OnAuth func(rooms []string)
	Logger zerolog.Logger
}

const (
	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
	writeWait         = 10 * time.Second
	readWait          = 75 * time.Second
)

type subscription struct {
	topic realtime.Topic
	fn    Handler
}

// Conn is an explicitly owned realtime connection. Subscriptions are local
// and survive reconnects; the server sees each reconnect as a new session.
type Conn struct {
	opts Options
	log  zerolog.Logger

	mu     sync.RWMutex
	subs   map[uint64]subscription
	nextID uint64

	wsMu sync.Mutex
	ws   *websocket.Conn

	sessionID atomic.Value // string
	connected atomic.Bool

	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

func New(opts Options) (*Conn, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("client: parse url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("client: url scheme must be ws or wss, got %q", u.Scheme)
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = defaultMinBackoff
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = max(defaultMaxBackoff, opts.MinBackoff)
	}
	c := &Conn{
		opts: opts,
		log:  opts.Logger.With().Str("component", "client").Logger(),
		subs: make(map[uint64]subscription),
		done: make(chan struct{}),
	}
	c.sessionID.Store("")
	return c, nil
}

// Start connects in the background and keeps reconnecting until ctx ends or
// Close is called.
func (c *Conn) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		c.cancel = cancel
		go c.run(ctx)
	})
}

// Close stops reconnecting and closes the socket. Safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		started := false
		c.startOnce.Do(func() { close(c.done) })
		if c.cancel != nil {
			started = true
			c.cancel()
		}
		c.wsMu.Lock()
		if c.ws != nil {
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = c.ws.Close()
		}
		c.wsMu.Unlock()
		if started {
			<-c.done
		}
	})
	return nil
}

// Done is closed once the connection loop has exited.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Connected reports whether a socket is currently established.
func (c *Conn) Connected() bool { return c.connected.Load() }

// SessionID is the server-assigned id of the current connection, "" while down.
func (c *Conn) SessionID() string { return c.sessionID.Load().(string) }

// Subscribe registers fn for topic. The returned function removes it; calls
// after the first do nothing.
func (c *Conn) Subscribe(topic realtime.Topic, fn Handler) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.subs[id] = subscription{topic: topic, fn: fn}
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// Subscriptions returns the number of live handlers.
func (c *Conn) Subscriptions() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

func (c *Conn) run(ctx context.Context) {
	defer close(c.done)
	attempt := 0
	for {
		established, err := c.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if established {
			attempt = 0
		}
		delay := nextBackoff(attempt, c.opts.MinBackoff, c.opts.MaxBackoff)
		attempt++
		c.log.Warn().Err(err).Dur("retry_in", delay).Msg("realtime connection lost")
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// session runs one physical connection until it fails. established reports
// whether the dial succeeded.
func (c *Conn) session(ctx context.Context) (established bool, err error) {
	ws, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, c.opts.Header)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	c.wsMu.Lock()
	if ctx.Err() != nil {
		c.wsMu.Unlock()
		_ = ws.Close()
		return true, ctx.Err()
	}
	c.ws = ws
	c.wsMu.Unlock()
	c.connected.Store(true)
	defer func() {
		c.connected.Store(false)
		c.sessionID.Store("")
		c.wsMu.Lock()
		c.ws = nil
		c.wsMu.Unlock()
		_ = ws.Close()
	}()

	_ = ws.SetReadDeadline(time.Now().Add(readWait))
	ws.SetPingHandler(func(data string) error {
		_ = ws.SetReadDeadline(time.Now().Add(readWait))
		err := ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	if c.opts.Token != nil {
		if tok := c.opts.Token(); tok != "" {
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(realtime.Frame{Type: realtime.FrameAuth, Token: tok}); err != nil {
				return true, fmt.Errorf("send auth: %w", err)
			}
		}
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return true, err
		}
		_ = ws.SetReadDeadline(time.Now().Add(readWait))
		var f realtime.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Debug().Err(err).Msg("ignoring malformed frame")
			continue
		}
		c.handle(f)
	}
}

func (c *Conn) handle(f realtime.Frame) {
	switch f.Type {
	case realtime.FrameHello:
		c.sessionID.Store(f.SessionID)
	case realtime.FrameAuthResult:
		if len(f.Rooms) == 0 {
			c.log.Info().Msg("credential not accepted, connected anonymously")
		}
		if c.opts.OnAuth != nil {
			c.opts.OnAuth(f.Rooms)
		}
	case realtime.FrameEvent:
		c.dispatch(f.Topic, f.Payload)
	}
}

// dispatch runs every handler of topic. A handler removed while earlier ones
// run is skipped; a panicking handler does not stop the rest.
func (c *Conn) dispatch(topic realtime.Topic, payload json.RawMessage) {
	c.mu.RLock()
	ids := make([]uint64, 0, 4)
	for id, s := range c.subs {
		if s.topic == topic {
			ids = append(ids, id)
		}
	}
	c.mu.RUnlock()
	slices.Sort(ids)

	for _, id := range ids {
		c.mu.RLock()
		s, ok := c.subs[id]
		c.mu.RUnlock()
		if !ok {
			continue
		}
		c.invoke(topic, s.fn, payload)
	}
}

func (c *Conn) invoke(topic realtime.Topic, fn Handler, payload json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Str("topic", topic.String()).Msg("subscription handler panicked")
		}
	}()
	fn(payload)
}

// nextBackoff doubles from lo per attempt and caps at hi.
func nextBackoff(attempt int, lo, hi time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 20 {
		attempt = 20
	}
	d := lo * time.Duration(1<<attempt)
	if d > hi || d <= 0 {
		d = hi
	}
	return d
}
