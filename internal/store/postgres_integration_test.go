//go:build postgres_integration

package store

import (
    "os"
    "testing"

    "github.com/lmsedutechkpr/Slate-sub000/internal/feed"
)

func TestPostgresArchiveRoundTrip(t *testing.T) {
    dsn := os.Getenv("DATABASE_URL")
    if dsn == "" { t.Skip("DATABASE_URL not set; skipping integration test") }
    p, err := NewPostgres(t.Context(), dsn)
    if err != nil { t.Fatalf("NewPostgres: %v", err) }
    defer func() { _ = p.Close(t.Context()) }()
    if err := p.Ping(t.Context()); err != nil { t.Fatalf("Ping: %v", err) }
    n := feed.Notification{ID: "it-" + t.Name(), Title: "integration", Level: feed.LevelInfo, CreatedAt: 1}
    if err := p.Archive(t.Context(), n); err != nil { t.Fatalf("Archive: %v", err) }
    if err := p.Archive(t.Context(), n); err != nil { t.Fatalf("Archive twice: %v", err) }
    if _, err := p.Recent(t.Context(), 5); err != nil { t.Fatalf("Recent: %v", err) }
}
