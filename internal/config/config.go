// Package config loads the realtime service configuration from defaults, an
// optional YAML file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config holds the service configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Auth     AuthConfig     `yaml:"auth"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Feed     FeedConfig     `yaml:"feed"`
	Rate     RateConfig     `yaml:"rate"`
	Redis    RedisConfig    `yaml:"redis"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Log      LogConfig      `yaml:"log"`
}

type HTTPConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

type AuthConfig struct {
	Mode         string   `yaml:"mode"` // dev | hmac
	HMACSecret   string   `yaml:"hmac_secret"`
	SubjectClaim string   `yaml:"subject_claim"`
	RoleClaim    string   `yaml:"role_claim"`
	AdminRoles   []string `yaml:"admin_roles"`
	// ServiceSecret signs POST /v1/events bodies from other services.
	ServiceSecret string `yaml:"service_secret"`
}

type RealtimeConfig struct {
	SendBuffer     int      `yaml:"send_buffer"`
	MaxConnections int      `yaml:"max_connections"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type FeedConfig struct {
	Capacity int `yaml:"capacity"`
}

// RateConfig limits requests per client IP. RPS zero disables limiting.
type RateConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type RedisConfig struct {
	URL     string `yaml:"url"`
	Channel string `yaml:"channel"`
}

type ArchiveConfig struct {
	Driver   string `yaml:"driver"` // none | memory | mongo | postgres
	URL      string `yaml:"url"`
	Database string `yaml:"database"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Auth: AuthConfig{
			Mode:         "dev",
			SubjectClaim: "sub",
			RoleClaim:    "role",
			AdminRoles:   []string{"admin", "superadmin"},
		},
		Realtime: RealtimeConfig{SendBuffer: 256},
		Feed:     FeedConfig{Capacity: 200},
		Rate:     RateConfig{RPS: 20, Burst: 40},
		Redis:    RedisConfig{Channel: "lms:mutations"},
		Archive:  ArchiveConfig{Driver: "none", Database: "lms"},
		Log:      LogConfig{Level: "info"},
	}
}

// Load reads configuration from path (skipped when empty or missing), then
// applies environment overrides read through getenv.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	if getenv == nil {
		getenv = os.Getenv
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = splitList(v)
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	if port := strings.TrimSpace(getenv("PORT")); port != "" {
		c.HTTP.Addr = ":" + port
	}
	str("HTTP_ADDR", &c.HTTP.Addr)

	str("AUTH_MODE", &c.Auth.Mode)
	str("AUTH_HMAC_SECRET", &c.Auth.HMACSecret)
	str("AUTH_SUBJECT_CLAIM", &c.Auth.SubjectClaim)
	str("AUTH_ROLE_CLAIM", &c.Auth.RoleClaim)
	list("AUTH_ADMIN_ROLES", &c.Auth.AdminRoles)
	str("INGEST_HMAC_SECRET", &c.Auth.ServiceSecret)

	num("SEND_BUFFER", &c.Realtime.SendBuffer)
	num("MAX_CONNECTIONS", &c.Realtime.MaxConnections)
	list("ALLOW_ORIGINS", &c.Realtime.AllowedOrigins)

	num("FEED_CAPACITY", &c.Feed.Capacity)

	if v := strings.TrimSpace(getenv("RATE_RPS")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("RATE_RPS: %w", err))
		} else {
			c.Rate.RPS = f
		}
	}
	num("RATE_BURST", &c.Rate.Burst)

	str("REDIS_URL", &c.Redis.URL)
	str("REDIS_CHANNEL", &c.Redis.Channel)

	// A bare database URL selects its driver, as the CRUD services do.
	if v := strings.TrimSpace(getenv("MONGO_URL")); v != "" {
		c.Archive.Driver, c.Archive.URL = "mongo", v
	}
	if v := strings.TrimSpace(getenv("DATABASE_URL")); v != "" {
		c.Archive.Driver, c.Archive.URL = "postgres", v
	}
	str("ARCHIVE_DRIVER", &c.Archive.Driver)
	str("ARCHIVE_URL", &c.Archive.URL)
	str("ARCHIVE_DATABASE", &c.Archive.Database)

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FILE", &c.Log.File)

	return errors.Join(errs...)
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = defaults.HTTP.Addr
	}
	if c.HTTP.ReadHeaderTimeout == 0 {
		c.HTTP.ReadHeaderTimeout = defaults.HTTP.ReadHeaderTimeout
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = defaults.HTTP.ShutdownTimeout
	}
	if c.Auth.Mode == "" {
		c.Auth.Mode = defaults.Auth.Mode
	}
	if len(c.Auth.AdminRoles) == 0 {
		c.Auth.AdminRoles = defaults.Auth.AdminRoles
	}
	if c.Realtime.SendBuffer == 0 {
		c.Realtime.SendBuffer = defaults.Realtime.SendBuffer
	}
	if c.Feed.Capacity == 0 {
		c.Feed.Capacity = defaults.Feed.Capacity
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = defaults.Redis.Channel
	}
	if c.Archive.Driver == "" {
		c.Archive.Driver = defaults.Archive.Driver
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	c.Auth.Mode = strings.ToLower(c.Auth.Mode)
	c.Archive.Driver = strings.ToLower(c.Archive.Driver)
}

// Validate checks the configuration and reports every bad field at once.
func (c *Config) Validate() error {
	var errs criterio.FieldErrorsBuilder

	if c.HTTP.Addr == "" {
		errs = errs.Append("http.addr", errors.New("cannot be empty"))
	}

	switch c.Auth.Mode {
	case "dev":
	case "hmac":
		if c.Auth.HMACSecret == "" {
			errs = errs.Append("auth.hmac_secret", errors.New("required in hmac mode"))
		}
	default:
		errs = errs.Append("auth.mode", fmt.Errorf("unknown mode %q (want dev or hmac)", c.Auth.Mode))
	}

	if c.Realtime.SendBuffer < 1 {
		errs = errs.Append("realtime.send_buffer", errors.New("must be at least 1"))
	}
	if c.Realtime.MaxConnections < 0 {
		errs = errs.Append("realtime.max_connections", errors.New("cannot be negative"))
	}
	if c.Feed.Capacity < 1 {
		errs = errs.Append("feed.capacity", errors.New("must be at least 1"))
	}
	if c.Rate.RPS < 0 {
		errs = errs.Append("rate.rps", errors.New("cannot be negative"))
	}
	if c.Rate.RPS > 0 && c.Rate.Burst < 1 {
		errs = errs.Append("rate.burst", errors.New("must be at least 1 when rate.rps is set"))
	}

	switch c.Archive.Driver {
	case "none", "memory":
	case "mongo", "postgres":
		if c.Archive.URL == "" {
			errs = errs.Append("archive.url", fmt.Errorf("required for driver %q", c.Archive.Driver))
		}
	default:
		errs = errs.Append("archive.driver", fmt.Errorf("unknown driver %q", c.Archive.Driver))
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = errs.Append("log.level", err)
	}

	return errs.ToError()
}

// Redacted returns a copy safe to expose on debug endpoints.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***"
	}
	c.Auth.HMACSecret = mask(c.Auth.HMACSecret)
	c.Auth.ServiceSecret = mask(c.Auth.ServiceSecret)
	c.Redis.URL = mask(c.Redis.URL)
	c.Archive.URL = mask(c.Archive.URL)
	return c
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
