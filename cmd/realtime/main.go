// Command realtime runs the LMS realtime hub: the websocket endpoint, the
// notification feed and the mutation ingress.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/lmsedutechkpr/Slate-sub000/internal/buildinfo"
	"github.com/lmsedutechkpr/Slate-sub000/internal/config"
)

type flags struct {
	LogLevel   string
	LogFile    string
	ConfigPath string

	Config *config.Config
}

func main() {
	f := &flags{}

	app := &cli.Command{
		Name:    "realtime",
		Usage:   "Push cache invalidations and notifications to LMS clients",
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Sources:     cli.EnvVars("LOG_LEVEL"),
				Value:       "info",
				Destination: &f.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (optional)",
				Sources:     cli.EnvVars("LOG_FILE"),
				Destination: &f.LogFile,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to YAML config file",
				Sources:     cli.EnvVars("REALTIME_CONFIG"),
				Destination: &f.ConfigPath,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			cfg, err := config.Load(f.ConfigPath, os.Getenv)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			// explicit flags win over the file
			if c.IsSet("log-level") {
				cfg.Log.Level = f.LogLevel
			}
			if c.IsSet("log-file") {
				cfg.Log.File = f.LogFile
			}
			if err := setupLogger(cfg.Log.Level, cfg.Log.File); err != nil {
				return ctx, err
			}
			f.Config = cfg
			return ctx, nil
		},
		Commands: []*cli.Command{
			serveCmd(f),
			publishCmd(f),
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() > 0 {
				return fmt.Errorf("unknown command %q. Run 'realtime --help' for usage", c.Args().First())
			}
			return serve(ctx, f.Config)
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Error().Err(err).Msg("realtime exited")
		os.Exit(1)
	}
}

func setupLogger(level string, logFile string) error {
	parsedLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	var output io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}

	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		output = io.MultiWriter(zerolog.ConsoleWriter{Out: os.Stderr}, file)
	}

	log.Logger = log.Output(output).Level(parsedLevel).With().Timestamp().Logger()
	return nil
}
