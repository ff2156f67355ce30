// Package main runs a demo realtime client: it connects as an admin, prints
// every event it receives and, with --demo, posts a notification to trigger one.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/lmsedutechkpr/Slate-sub000/internal/client"
	"github.com/lmsedutechkpr/Slate-sub000/internal/dispose"
	"github.com/lmsedutechkpr/Slate-sub000/internal/invalidate"
	"github.com/lmsedutechkpr/Slate-sub000/internal/realtime"
)

var (
	topicColor = color.New(color.FgHiCyan, color.Bold)
	keyColor   = color.New(color.FgHiYellow)
	infoColor  = color.New(color.FgHiGreen)
)

var defaultTopics = []string{
	string(realtime.TopicAPIUpdate),
	string(realtime.TopicUsersUpdate),
	string(realtime.TopicCoursesUpdate),
	string(realtime.TopicInstructorsUpdate),
	string(realtime.TopicRolesUpdate),
	string(realtime.TopicOrdersUpdate),
	string(realtime.TopicNotificationsCreate),
	string(realtime.TopicAdminSettingsUpdate),
}

func main() {
	var (
		base    string
		token   string
		topics  []string
		watch   []string
		demo    bool
		verbose bool
	)

	app := &cli.Command{
		Name:  "ws_client",
		Usage: "Print realtime events from a running server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Usage: "server base URL", Sources: cli.EnvVars("REALTIME_URL"), Value: "http://localhost:8080", Destination: &base},
			&cli.StringFlag{Name: "token", Usage: "bearer credential", Sources: cli.EnvVars("REALTIME_TOKEN"), Value: "demo-admin:admin", Destination: &token},
			&cli.StringSliceFlag{Name: "topic", Usage: "topic to print (repeatable)", Value: defaultTopics, Destination: &topics},
			&cli.StringSliceFlag{Name: "watch", Usage: "resource whose updates invalidate a cache key of the same name", Destination: &watch},
			&cli.BoolFlag{Name: "demo", Usage: "post a notification once connected", Destination: &demo},
			&cli.BoolFlag{Name: "verbose", Usage: "log connection state", Destination: &verbose},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
			defer stop()

			logger := zerolog.Nop()
			if verbose {
				logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
			}
			wsURL, err := websocketURL(base)
			if err != nil {
				return err
			}

			authed := make(chan []string, 1)
			conn, err := client.New(client.Options{
				URL:   wsURL,
				Token: func() string { return token },
				OnAuth: func(rooms []string) {
					infoColor.Fprintf(os.Stderr, "authenticated, rooms=%v\n", rooms)
					select {
					case authed <- rooms:
					default:
					}
				},
				Logger: logger,
			})
			if err != nil {
				return err
			}

			var bag dispose.Bag
			defer func() { _ = bag.DisposeAll() }()
			_ = bag.Add(conn.Close)

			for _, t := range topics {
				topic := realtime.Topic(t)
				bag.Defer(conn.Subscribe(topic, func(p json.RawMessage) {
					fmt.Printf("%s %s\n", topicColor.Sprint(topic), string(p))
				}))
			}
			if len(watch) > 0 {
				bridge := invalidate.New(conn, func(keys []string) {
					fmt.Printf("%s %s\n", keyColor.Sprint("refetch"), strings.Join(keys, ","))
				}, invalidate.Options{Window: 250 * time.Millisecond, Logger: logger})
				_ = bag.Add(bridge.Close)
				for _, r := range watch {
					bridge.Watch([]string{r}, r)
				}
			}

			conn.Start(ctx)

			if demo {
				select {
				case <-authed:
				case <-time.After(5 * time.Second):
					return fmt.Errorf("not authenticated after 5s")
				}
				if err := postNotification(ctx, base, token); err != nil {
					fmt.Fprintf(os.Stderr, "%s %s\n", color.RedString("Error:"), err)
				}
			}

			select {
			case <-ctx.Done():
			case <-conn.Done():
			}
			return nil
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", color.RedString("Error:"), err)
		os.Exit(1)
	}
}

func websocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	return u.String(), nil
}

func postNotification(ctx context.Context, base, token string) error {
	body := []byte(`{"title":"ws_client demo","message":"sent from the demo client","level":"info"}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+"/notifications", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("POST /notifications: %s", resp.Status)
	}
	return nil
}
