// Package invalidate maps realtime topics to local cache keys and asks for a
// refetch of exactly the keys that went stale, once per tick.
package invalidate

import (
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lmsedutechkpr/Slate-sub000/internal/dispose"
	"github.com/lmsedutechkpr/Slate-sub000/internal/realtime"
)

// Subscriber is the subscribe side of a realtime connection.
type Subscriber interface {
	Subscribe(topic realtime.Topic, fn func(payload json.RawMessage)) func()
}

// Refetch is asked to reload keys. It owns its own error reporting.
type Refetch func(keys []string)

// Scheduler runs fn at the end of the current tick.
type Scheduler func(fn func())

const DefaultWindow = 16 * time.Millisecond

type Options struct {
	// Window is the batching tick used when Schedule is nil.
	Window   time.Duration
	Schedule Scheduler
	Logger   zerolog.Logger
}

type Bridge struct {
	sub      Subscriber
	refetch  Refetch
	schedule Scheduler
	log      zerolog.Logger

	mu        sync.Mutex
	stale     map[string]struct{}
	pending   map[string]struct{}
	scheduled bool
	watches   dispose.Bag
}

func New(sub Subscriber, refetch Refetch, opts Options) *Bridge {
	b := &Bridge{
		sub:      sub,
		refetch:  refetch,
		schedule: opts.Schedule,
		log:      opts.Logger.With().Str("component", "invalidate").Logger(),
		stale:    make(map[string]struct{}),
		pending:  make(map[string]struct{}),
	}
	if b.schedule == nil {
		window := opts.Window
		if window <= 0 {
			window = DefaultWindow
		}
		b.schedule = func(fn func()) { time.AfterFunc(window, fn) }
	}
	return b
}

// Watch ties keys to api:update and to "<resource>:update" for every
// resource. Each distinct topic is subscribed once. The returned func
// removes this watch; Close removes all of them.
func (b *Bridge) Watch(keys []string, resources ...string) func() {
	keys = slices.Clone(keys)
	topics := []realtime.Topic{realtime.TopicAPIUpdate}
	for _, r := range resources {
		t := realtime.UpdateTopic(r)
		if !slices.Contains(topics, t) {
			topics = append(topics, t)
		}
	}

	var bag dispose.Bag
	for _, t := range topics {
		bag.Defer(b.sub.Subscribe(t, func(json.RawMessage) { b.Invalidate(keys...) }))
	}
	var once sync.Once
	unwatch := func() {
		once.Do(func() {
			if err := bag.DisposeAll(); err != nil {
				b.log.Error().Err(err).Msg("unwatch")
			}
		})
	}
	b.watches.Defer(unwatch)
	return unwatch
}

// Invalidate marks keys stale and schedules one refetch for the tick.
func (b *Bridge) Invalidate(keys ...string) {
	if len(keys) == 0 {
		return
	}
	b.mu.Lock()
	for _, k := range keys {
		b.stale[k] = struct{}{}
		b.pending[k] = struct{}{}
	}
	if b.scheduled {
		b.mu.Unlock()
		return
	}
	b.scheduled = true
	b.mu.Unlock()
	b.schedule(b.flush)
}

func (b *Bridge) flush() {
	b.mu.Lock()
	keys := make([]string, 0, len(b.pending))
	for k := range b.pending {
		keys = append(keys, k)
	}
	clear(b.pending)
	b.scheduled = false
	b.mu.Unlock()

	if len(keys) == 0 {
		return
	}
	slices.Sort(keys)
	b.log.Debug().Strs("keys", keys).Msg("refetch")
	b.refetch(keys)
}

// Stale reports whether key was invalidated and not yet marked fresh.
func (b *Bridge) Stale(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.stale[key]
	return ok
}

// Fresh clears the stale mark, typically after a successful refetch.
func (b *Bridge) Fresh(keys ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		delete(b.stale, k)
	}
}

// Close removes every watch.
func (b *Bridge) Close() error { return b.watches.DisposeAll() }
