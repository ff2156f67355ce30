package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lmsedutechkpr/Slate-sub000/internal/auth"
	"github.com/lmsedutechkpr/Slate-sub000/internal/config"
	"github.com/lmsedutechkpr/Slate-sub000/internal/feed"
	"github.com/lmsedutechkpr/Slate-sub000/internal/metrics"
	"github.com/lmsedutechkpr/Slate-sub000/internal/realtime"
	"github.com/lmsedutechkpr/Slate-sub000/internal/store"
)

const (
	adminToken = "Bearer root:admin"
	userToken  = "Bearer u1:student"
)

type testEnv struct {
	srv     *Server
	h       http.Handler
	archive *store.Memory
}

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Rate.RPS = 0
	for _, m := range mutate {
		m(&cfg)
	}
	v, err := auth.NewVerifier(auth.Options{Mode: cfg.Auth.Mode, AdminRoles: cfg.Auth.AdminRoles})
	require.NoError(t, err)
	hub := realtime.NewHub(v, realtime.Options{Logger: zerolog.Nop()})
	t.Cleanup(hub.Shutdown)
	archive := store.NewMemory()
	f := feed.New(feed.WithPublisher(hub), feed.WithArchiver(archive), feed.WithLogger(zerolog.Nop()))
	s := NewServer(cfg, hub, f, archive, v, zerolog.Nop())
	t.Cleanup(s.Close)
	return &testEnv{srv: s, h: s.Routes(), archive: archive}
}

func (e *testEnv) do(method, target, authz string, body []byte) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if body == nil {
		rd = bytes.NewReader(nil)
	} else {
		rd = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("Content-Type", "application/json")
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rr := httptest.NewRecorder()
	e.h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

type listResponse struct {
	Notifications []feed.Notification `json:"notifications"`
	Now           int64               `json:"now"`
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("down") }

func TestHealthReady(t *testing.T) {
	e := newTestServer(t)
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/readyz", "", nil).Code)

	e.srv.AddReadinessCheck("redis", failingPinger{})
	rr := e.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	p := decode[Problem](t, rr)
	assert.Equal(t, "redis: down", p.Detail)
}

func TestNotifications_CreateAndPoll(t *testing.T) {
	e := newTestServer(t)

	rr := e.do(http.MethodPost, "/notifications", adminToken, []byte(`{"title":"X"}`))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[map[string]feed.Notification](t, rr)["notification"]
	assert.Equal(t, "X", created.Title)
	assert.Equal(t, feed.LevelInfo, created.Level)
	assert.NotEmpty(t, created.ID)

	rr = e.do(http.MethodGet, "/notifications", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[listResponse](t, rr)
	require.Len(t, list.Notifications, 1)
	assert.Equal(t, created.ID, list.Notifications[0].ID)
	assert.GreaterOrEqual(t, list.Now, created.CreatedAt)

	rr = e.do(http.MethodGet, "/notifications?since="+strconv.FormatInt(list.Now, 10), "", nil)
	assert.Empty(t, decode[listResponse](t, rr).Notifications)

	rr = e.do(http.MethodPost, "/notifications", adminToken, []byte(`{"message":"second","level":"WARNING"}`))
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = e.do(http.MethodGet, "/notifications?since="+strconv.FormatInt(list.Now, 10), "", nil)
	next := decode[listResponse](t, rr)
	require.Len(t, next.Notifications, 1)
	assert.Equal(t, "second", next.Notifications[0].Message)
	assert.Equal(t, feed.LevelWarning, next.Notifications[0].Level)
}

func TestNotifications_BadInput(t *testing.T) {
	e := newTestServer(t)
	for name, body := range map[string]string{
		"empty":      `{}`,
		"blank":      `{"title":"  ","message":""}`,
		"bad level":  `{"title":"x","level":"fatal"}`,
		"not json":   `{"title":`,
		"wrong type": `{"title":5}`,
	} {
		rr := e.do(http.MethodPost, "/notifications", adminToken, []byte(body))
		assert.Equal(t, http.StatusBadRequest, rr.Code, name)
	}
	assert.Equal(t, 0, e.srv.Feed.Len())

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/notifications?since=abc", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/notifications?since=-1", "", nil).Code)
}

func TestNotifications_RequiresPrivilege(t *testing.T) {
	e := newTestServer(t)
	body := []byte(`{"title":"X"}`)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodPost, "/notifications", "", body).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodPost, "/notifications", "Bearer nocolon", body).Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPost, "/notifications", userToken, body).Code)
	assert.Equal(t, 0, e.srv.Feed.Len())
}

func TestNotifications_ServiceSignature(t *testing.T) {
	e := newTestServer(t, func(c *config.Config) { c.Auth.ServiceSecret = "svc" })
	body := []byte(`{"title":"Order paid","level":"success"}`)

	req := httptest.NewRequest(http.MethodPost, "/notifications", bytes.NewReader(body))
	req.Header.Set(auth.SignatureHeader, auth.SignBody("svc", body))
	rr := httptest.NewRecorder()
	e.h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/notifications", bytes.NewReader(body))
	req.Header.Set(auth.SignatureHeader, auth.SignBody("other", body))
	rr = httptest.NewRecorder()
	e.h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, 1, e.srv.Feed.Len())
}

func TestNotifications_PushedToAdminRoom(t *testing.T) {
	e := newTestServer(t)
	hub := e.srv.Hub
	admin, err := hub.Open()
	require.NoError(t, err)
	require.True(t, hub.Authenticate(admin, "root:admin"))
	user, err := hub.Open()
	require.NoError(t, err)
	require.True(t, hub.Authenticate(user, "u1:student"))
	<-admin.Outbound()
	<-user.Outbound()

	rr := e.do(http.MethodPost, "/notifications", adminToken, []byte(`{"title":"X"}`))
	require.Equal(t, http.StatusCreated, rr.Code)

	select {
	case raw := <-admin.Outbound():
		var f realtime.Frame
		require.NoError(t, json.Unmarshal(raw, &f))
		assert.Equal(t, realtime.FrameEvent, f.Type)
		assert.Equal(t, realtime.TopicNotificationsCreate, f.Topic)
	case <-time.After(time.Second):
		t.Fatal("admin got no notification event")
	}
	assert.Empty(t, user.Outbound())
}

func TestPublishEvent(t *testing.T) {
	e := newTestServer(t, func(c *config.Config) { c.Auth.ServiceSecret = "svc" })
	hub := e.srv.Hub
	s, err := hub.Open()
	require.NoError(t, err)
	require.True(t, hub.Authenticate(s, "root:admin"))
	<-s.Outbound()

	body := []byte(`{"topic":"courses:update","payload":{"id":"c1"},"scope":{"room":"admin"}}`)
	rr := e.do(http.MethodPost, "/v1/events", adminToken, body)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	assert.Equal(t, 1, decode[map[string]int](t, rr)["delivered"])

	var f realtime.Frame
	require.NoError(t, json.Unmarshal(<-s.Outbound(), &f))
	assert.Equal(t, realtime.TopicCoursesUpdate, f.Topic)
	assert.JSONEq(t, `{"id":"c1"}`, string(f.Payload))

	req := httptest.NewRequest(http.MethodPost, "/v1/events", bytes.NewReader([]byte(`{"topic":"api:update","scope":"all"}`)))
	req.Header.Set(auth.SignatureHeader, auth.SignBody("svc", []byte(`{"topic":"api:update","scope":"all"}`)))
	rr = httptest.NewRecorder()
	e.h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusAccepted, rr.Code)

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/v1/events", adminToken, []byte(`{"scope":"all"}`)).Code)
	assert.Equal(t, http.StatusBadRequest,
		e.do(http.MethodPost, "/v1/events", adminToken, []byte(`{"topic":"x","scope":{"room":"admin","sessionId":"s"}}`)).Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPost, "/v1/events", userToken, body).Code)
}

func TestAdminEndpoints(t *testing.T) {
	e := newTestServer(t)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/v1/admin/realtime", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/v1/admin/realtime", userToken, nil).Code)

	s, err := e.srv.Hub.Open()
	require.NoError(t, err)
	e.srv.Hub.Authenticate(s, "root:admin")

	rr := e.do(http.MethodGet, "/v1/admin/realtime", adminToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var presence struct {
		Sessions      int            `json:"sessions"`
		Authenticated int            `json:"authenticated"`
		Rooms         map[string]int `json:"rooms"`
		Admins        []string       `json:"admins"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &presence))
	assert.Equal(t, 1, presence.Sessions)
	assert.Equal(t, 1, presence.Authenticated)
	assert.Equal(t, 1, presence.Rooms[realtime.RoomAdmin])
	assert.Equal(t, []string{s.ID}, presence.Admins)

	for _, title := range []string{"a", "b", "c"} {
		require.Equal(t, http.StatusCreated, e.do(http.MethodPost, "/notifications", adminToken, []byte(`{"title":"`+title+`"}`)).Code)
	}
	e.srv.Feed.Wait()

	rr = e.do(http.MethodGet, "/v1/admin/notifications/archive?limit=2", adminToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var archive struct {
		Items []feed.Notification `json:"items"`
		Count int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &archive))
	require.Equal(t, 2, archive.Count)
	assert.Equal(t, "c", archive.Items[0].Title)
	assert.Equal(t, "b", archive.Items[1].Title)

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/v1/admin/notifications/archive?limit=0", adminToken, nil).Code)
}

func TestRateLimit(t *testing.T) {
	e := newTestServer(t, func(c *config.Config) {
		c.Rate.RPS = 0.001
		c.Rate.Burst = 1
	})
	body := []byte(`{"title":"X"}`)
	assert.Equal(t, http.StatusCreated, e.do(http.MethodPost, "/notifications", adminToken, body).Code)

	rr := e.do(http.MethodPost, "/notifications", adminToken, body)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	assert.Equal(t, "1", rr.Header().Get("X-RateLimit-Burst"))

	// polling is not limited
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/notifications", "", nil).Code)
	}
}

func TestDebugAndMetrics(t *testing.T) {
	metrics.RegisterDefault()
	e := newTestServer(t, func(c *config.Config) { c.Auth.ServiceSecret = "topsecret" })

	rr := e.do(http.MethodGet, "/debug/info", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"build"`)
	assert.NotContains(t, rr.Body.String(), "topsecret")

	e.do(http.MethodGet, "/healthz", "", nil)
	rr = e.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `http_requests_total{method="GET",path="/healthz",status="200"}`)
}

func TestWebsocketThroughRouter(t *testing.T) {
	e := newTestServer(t)
	srv := httptest.NewServer(e.h)
	t.Cleanup(srv.Close)

	c, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f realtime.Frame
	require.NoError(t, c.ReadJSON(&f))
	assert.Equal(t, realtime.FrameHello, f.Type)

	require.NoError(t, c.WriteJSON(realtime.Frame{Type: realtime.FrameAuth, Token: "root:admin"}))
	require.NoError(t, c.ReadJSON(&f))
	assert.Equal(t, realtime.FrameAuthResult, f.Type)
	assert.Contains(t, f.Rooms, realtime.RoomAdmin)

	rr := e.do(http.MethodPost, "/notifications", adminToken, []byte(`{"title":"live"}`))
	require.Equal(t, http.StatusCreated, rr.Code)
	require.NoError(t, c.ReadJSON(&f))
	assert.Equal(t, realtime.TopicNotificationsCreate, f.Topic)
}
