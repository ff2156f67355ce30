package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/lmsedutechkpr/Slate-sub000/internal/api"
	"github.com/lmsedutechkpr/Slate-sub000/internal/auth"
	"github.com/lmsedutechkpr/Slate-sub000/internal/config"
	"github.com/lmsedutechkpr/Slate-sub000/internal/dispose"
	"github.com/lmsedutechkpr/Slate-sub000/internal/feed"
	"github.com/lmsedutechkpr/Slate-sub000/internal/ingress"
	"github.com/lmsedutechkpr/Slate-sub000/internal/metrics"
	"github.com/lmsedutechkpr/Slate-sub000/internal/realtime"
	"github.com/lmsedutechkpr/Slate-sub000/internal/store"
)

func serveCmd(f *flags) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP and websocket server",
		Action: func(ctx context.Context, c *cli.Command) error {
			return serve(ctx, f.Config)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.With().Str("component", "realtime").Logger()
	metrics.RegisterDefault()

	verifier, err := auth.NewVerifier(auth.Options{
		Mode:         cfg.Auth.Mode,
		HMACSecret:   cfg.Auth.HMACSecret,
		SubjectClaim: cfg.Auth.SubjectClaim,
		RoleClaim:    cfg.Auth.RoleClaim,
		AdminRoles:   cfg.Auth.AdminRoles,
	})
	if err != nil {
		return err
	}

	archive, err := store.Open(ctx, cfg.Archive.Driver, cfg.Archive.URL, cfg.Archive.Database)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}

	// torn down newest first
	var teardown dispose.Bag
	_ = teardown.Add(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return archive.Close(ctx)
	})

	hub := realtime.NewHub(verifier, realtime.Options{
		SendBuffer:     cfg.Realtime.SendBuffer,
		MaxConnections: cfg.Realtime.MaxConnections,
		Logger:         log.Logger,
	})
	notifications := feed.New(
		feed.WithCapacity(cfg.Feed.Capacity),
		feed.WithPublisher(hub),
		feed.WithArchiver(archive),
		feed.WithLogger(log.Logger),
	)
	teardown.Defer(notifications.Wait)
	teardown.Defer(hub.Shutdown)

	srv := api.NewServer(*cfg, hub, notifications, archive, verifier, log.Logger)
	teardown.Defer(srv.Close)

	if cfg.Redis.URL != "" {
		in, err := ingress.NewRedis(cfg.Redis.URL, cfg.Redis.Channel, hub, log.Logger)
		if err != nil {
			_ = teardown.DisposeAll()
			return err
		}
		srv.AddReadinessCheck("redis", in)
		_ = teardown.Add(in.Close)
		go func() {
			if err := in.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("mutation ingress stopped")
			}
		}()
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}
	errc := make(chan error, 1)
	go func() { errc <- httpSrv.ListenAndServe() }()
	logger.Info().
		Str("addr", cfg.HTTP.Addr).
		Str("auth_mode", verifier.Mode()).
		Str("archive", cfg.Archive.Driver).
		Bool("redis", cfg.Redis.URL != "").
		Msg("listening")

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	if err := teardown.DisposeAll(); err != nil {
		logger.Warn().Err(err).Msg("teardown")
	}
	return serveErr
}
