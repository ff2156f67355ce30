package store

import (
    "context"
    "sort"
    "sync"

    "github.com/lmsedutechkpr/Slate-sub000/internal/feed"
)

// Memory is an in-process archive used for development and tests.
type Memory struct {
    mu    sync.Mutex
    items []feed.Notification
    byID  map[string]int // id -> index in items
}

func NewMemory() *Memory {
    return &Memory{byID: map[string]int{}}
}

// Archive upserts n by id.
func (m *Memory) Archive(_ context.Context, n feed.Notification) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    if i, ok := m.byID[n.ID]; ok {
        m.items[i] = n
        return nil
    }
    m.byID[n.ID] = len(m.items)
    m.items = append(m.items, n)
    return nil
}

func (m *Memory) Recent(_ context.Context, limit int) ([]feed.Notification, error) {
    limit = clampLimit(limit)
    m.mu.Lock()
    out := make([]feed.Notification, len(m.items))
    copy(out, m.items)
    m.mu.Unlock()
    sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
    if len(out) > limit {
        out = out[:limit]
    }
    return out, nil
}

func (m *Memory) Ping(context.Context) error  { return nil }
func (m *Memory) Close(context.Context) error { return nil }
