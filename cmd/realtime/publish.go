package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/lmsedutechkpr/Slate-sub000/internal/ingress"
	"github.com/lmsedutechkpr/Slate-sub000/internal/realtime"
)

// publishCmd sends one mutation over the Redis ingress channel, the same path
// the CRUD services use after a commit.
func publishCmd(f *flags) *cli.Command {
	var (
		room    string
		session string
		payload string
	)
	return &cli.Command{
		Name:      "publish",
		Usage:     "publish a mutation to the ingress channel",
		ArgsUsage: "<topic>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "room", Usage: "deliver to one room (admin, user:<id>)", Destination: &room},
			&cli.StringFlag{Name: "session", Usage: "deliver to one session id", Destination: &session},
			&cli.StringFlag{Name: "payload", Usage: "JSON payload", Destination: &payload},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if f.Config.Redis.URL == "" {
				return errors.New("REDIS_URL is not configured")
			}
			if c.Args().Len() != 1 {
				return fmt.Errorf("expected exactly one topic, got %d args", c.Args().Len())
			}
			m := ingress.Mutation{
				Topic: realtime.Topic(c.Args().First()),
				Scope: realtime.ScopeSpec{Room: room, SessionID: session},
			}
			if payload != "" {
				if !json.Valid([]byte(payload)) {
					return errors.New("payload is not valid JSON")
				}
				m.Payload = json.RawMessage(payload)
			}

			r, err := ingress.NewRedis(f.Config.Redis.URL, f.Config.Redis.Channel, nil, log.Logger)
			if err != nil {
				return err
			}
			defer func() { _ = r.Close() }()
			if err := r.Publish(ctx, m); err != nil {
				return fmt.Errorf("publish: %w", err)
			}
			log.Info().Str("topic", string(m.Topic)).Str("channel", f.Config.Redis.Channel).Msg("mutation sent")
			return nil
		},
	}
}
