package store

import (
    "context"
    "database/sql"
    "errors"
    "fmt"

    _ "github.com/jackc/pgx/v5/stdlib"

    "github.com/lmsedutechkpr/Slate-sub000/internal/feed"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS notifications (
    id         TEXT PRIMARY KEY,
    title      TEXT NOT NULL DEFAULT '',
    message    TEXT NOT NULL DEFAULT '',
    level      TEXT NOT NULL,
    created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS notifications_created_at_idx ON notifications (created_at DESC);
`

type Postgres struct {
    db *sql.DB
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
    if dsn == "" {
        return nil, errors.New("store: postgres requires a DSN")
    }
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.PingContext(ctx); err != nil {
        _ = db.Close()
        return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
    }
    p := &Postgres{db: db}
    if err := p.Migrate(ctx); err != nil {
        _ = db.Close()
        return nil, err
    }
    return p, nil
}

// Migrate creates the notifications table if missing.
func (p *Postgres) Migrate(ctx context.Context) error {
    if _, err := p.db.ExecContext(ctx, pgSchema); err != nil {
        return fmt.Errorf("store: migrate: %w", err)
    }
    return nil
}

// Archive inserts n; a record with the same id is left untouched.
func (p *Postgres) Archive(ctx context.Context, n feed.Notification) error {
    _, err := p.db.ExecContext(ctx,
        `INSERT INTO notifications (id, title, message, level, created_at) VALUES ($1,$2,$3,$4,$5) ON CONFLICT (id) DO NOTHING`,
        n.ID, n.Title, n.Message, string(n.Level), n.CreatedAt)
    if err != nil {
        return fmt.Errorf("store: archive notification: %w", err)
    }
    return nil
}

func (p *Postgres) Recent(ctx context.Context, limit int) ([]feed.Notification, error) {
    rows, err := p.db.QueryContext(ctx,
        `SELECT id, title, message, level, created_at FROM notifications ORDER BY created_at DESC LIMIT $1`,
        clampLimit(limit))
    if err != nil {
        return nil, fmt.Errorf("store: recent notifications: %w", err)
    }
    defer func() { _ = rows.Close() }()
    out := []feed.Notification{}
    for rows.Next() {
        var n feed.Notification
        var level string
        if err := rows.Scan(&n.ID, &n.Title, &n.Message, &level, &n.CreatedAt); err != nil {
            return nil, err
        }
        n.Level = feed.Level(level)
        out = append(out, n)
    }
    return out, rows.Err()
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close(context.Context) error { return p.db.Close() }
