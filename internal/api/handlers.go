package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/lmsedutechkpr/Slate-sub000/internal/feed"
	"github.com/lmsedutechkpr/Slate-sub000/internal/ingress"
	"github.com/lmsedutechkpr/Slate-sub000/internal/realtime"
	"github.com/lmsedutechkpr/Slate-sub000/internal/store"
)

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	for name, p := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		err := p.Ping(ctx)
		cancel()
		if err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", name+": "+err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// GET /notifications?since=<millis>
func (s *Server) ListNotifications(w http.ResponseWriter, r *http.Request) {
	var since int64
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeProblem(w, http.StatusBadRequest, "Bad Request", "since must be a non-negative integer", r.URL.Path)
			return
		}
		since = n
	}
	// Read the watermark first so a record created between the two calls is
	// returned again on the next poll rather than skipped.
	now := s.Feed.Now()
	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": s.Feed.List(since),
		"now":           now,
	})
}

// POST /notifications
func (s *Server) CreateNotification(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readPrivileged(w, r)
	if !ok {
		return
	}
	var in feed.Input
	if err := json.Unmarshal(body, &in); err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "invalid JSON", r.URL.Path)
		return
	}
	n, err := s.Feed.Create(in)
	switch {
	case errors.Is(err, feed.ErrEmptyNotification), errors.Is(err, feed.ErrInvalidLevel):
		writeProblem(w, http.StatusBadRequest, "Bad Request", err.Error(), r.URL.Path)
		return
	case err != nil:
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"notification": n})
}

// POST /v1/events publishes a committed mutation on behalf of a CRUD service.
func (s *Server) PublishEvent(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readPrivileged(w, r)
	if !ok {
		return
	}
	m, err := ingress.Decode(body)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", err.Error(), r.URL.Path)
		return
	}
	delivered, err := m.Apply(s.Hub)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", err.Error(), r.URL.Path)
		return
	}
	s.log.Debug().Str("topic", string(m.Topic)).Int("delivered", delivered).Msg("event published")
	writeJSON(w, http.StatusAccepted, map[string]int{"delivered": delivered})
}

// GET /v1/admin/realtime
func (s *Server) PresenceHandler(w http.ResponseWriter, r *http.Request) {
	st := s.Hub.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions":      st.Sessions,
		"authenticated": st.Authenticated,
		"rooms":         st.Rooms,
		"admins":        s.Hub.Registry().MembersOf(realtime.RoomAdmin),
	})
}

// GET /v1/admin/notifications/archive?limit=
func (s *Server) ArchiveHandler(w http.ResponseWriter, r *http.Request) {
	limit := store.DefaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeProblem(w, http.StatusBadRequest, "Bad Request", "limit must be a positive integer", r.URL.Path)
			return
		}
		limit = n
	}
	items, err := s.Archive.Recent(r.Context(), limit)
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			writeProblem(w, http.StatusServiceUnavailable, "Service Unavailable", err.Error(), r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}
