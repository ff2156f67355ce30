package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lmsedutechkpr/Slate-sub000/internal/auth"
	"github.com/lmsedutechkpr/Slate-sub000/internal/config"
	"github.com/lmsedutechkpr/Slate-sub000/internal/feed"
	"github.com/lmsedutechkpr/Slate-sub000/internal/metrics"
	"github.com/lmsedutechkpr/Slate-sub000/internal/realtime"
	"github.com/lmsedutechkpr/Slate-sub000/internal/store"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

type pinger interface{ Ping(ctx context.Context) error }

type Server struct {
	Hub     *realtime.Hub
	Feed    *feed.Feed
	Archive store.NotificationStore
	Auth    *auth.Verifier
	Config  config.Config

	log     zerolog.Logger
	limiter *ipLimiter
	checks  map[string]pinger
}

// NewServer wires the HTTP surface over already constructed components.
// A nil archive is replaced with store.Nop.
func NewServer(cfg config.Config, hub *realtime.Hub, f *feed.Feed, archive store.NotificationStore, verifier *auth.Verifier, logger zerolog.Logger) *Server {
	if archive == nil {
		archive = store.Nop{}
	}
	s := &Server{
		Hub:     hub,
		Feed:    f,
		Archive: archive,
		Auth:    verifier,
		Config:  cfg,
		log:     logger.With().Str("component", "api").Logger(),
		checks:  map[string]pinger{"archive": archive},
	}
	if cfg.Rate.RPS > 0 {
		s.limiter = newIPLimiter(cfg.Rate.RPS, cfg.Rate.Burst)
	}
	return s
}

// AddReadinessCheck makes /readyz depend on p.
func (s *Server) AddReadinessCheck(name string, p pinger) { s.checks[name] = p }

// Routes builds the router. The websocket endpoint sits outside the request
// timeout since its handler runs for the life of the connection.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logMiddleware)
	r.Use(middleware.Recoverer)

	r.With(s.rateLimit).Handle("/ws", realtime.NewHandler(s.Hub, s.Config.Realtime.AllowedOrigins, s.log))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(15 * time.Second))

		r.Get("/healthz", s.HealthHandler)
		r.Get("/readyz", s.ReadyHandler)
		r.Get("/debug/info", s.DebugJSON)
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

		r.Get("/notifications", s.ListNotifications)
		r.With(s.rateLimit).Post("/notifications", s.CreateNotification)

		r.Route("/v1", func(r chi.Router) {
			r.With(s.rateLimit).Post("/events", s.PublishEvent)
			r.Route("/admin", func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Get("/realtime", s.PresenceHandler)
				r.Get("/notifications/archive", s.ArchiveHandler)
			})
		})
	})
	return r
}

// Close releases background resources held by the server.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}
