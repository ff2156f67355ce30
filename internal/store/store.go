package store

import (
    "context"
    "errors"
    "fmt"
    "strings"

    "github.com/lmsedutechkpr/Slate-sub000/internal/feed"
)

// NotificationStore is the durable archive of feed notifications. The ring
// buffer never reads from it; it backs the admin archive screen.
type NotificationStore interface {
    Archive(ctx context.Context, n feed.Notification) error
    // Recent returns up to limit notifications, newest first.
    Recent(ctx context.Context, limit int) ([]feed.Notification, error)
    Ping(ctx context.Context) error
    Close(ctx context.Context) error
}

// ErrUnavailable wraps connection failures of a remote archive.
var ErrUnavailable = errors.New("archive unavailable")

// Drivers accepted by Open.
const (
    DriverNone     = "none"
    DriverMemory   = "memory"
    DriverMongo    = "mongo"
    DriverPostgres = "postgres"
)

const (
    DefaultRecentLimit = 50
    MaxRecentLimit     = 500
)

// Open returns the archive selected by driver.
func Open(ctx context.Context, driver, url, database string) (NotificationStore, error) {
    switch strings.ToLower(strings.TrimSpace(driver)) {
    case "", DriverNone:
        return Nop{}, nil
    case DriverMemory:
        return NewMemory(), nil
    case DriverMongo:
        return NewMongo(ctx, url, database)
    case DriverPostgres:
        return NewPostgres(ctx, url)
    default:
        return nil, fmt.Errorf("store: unknown driver %q", driver)
    }
}

func clampLimit(limit int) int {
    if limit <= 0 {
        return DefaultRecentLimit
    }
    if limit > MaxRecentLimit {
        return MaxRecentLimit
    }
    return limit
}

// Nop archives nothing.
type Nop struct{}

func (Nop) Archive(context.Context, feed.Notification) error           { return nil }
func (Nop) Recent(context.Context, int) ([]feed.Notification, error) { return []feed.Notification{}, nil }
func (Nop) Ping(context.Context) error                               { return nil }
func (Nop) Close(context.Context) error                              { return nil }
