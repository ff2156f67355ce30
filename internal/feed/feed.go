// Package feed is the bounded in-memory notification ring. Records are pushed
// to the admin room as they are created and can be polled by watermark.
package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lmsedutechkpr/Slate-sub000/internal/metrics"
	"github.com/lmsedutechkpr/Slate-sub000/internal/realtime"
)

const DefaultCapacity = 200

var (
	ErrEmptyNotification = errors.New("notification needs a title or a message")
	ErrInvalidLevel      = errors.New("invalid notification level")
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

func (l Level) Valid() bool {
	switch l {
	case LevelInfo, LevelSuccess, LevelWarning, LevelError:
		return true
	}
	return false
}

// Notification is one human-readable record. CreatedAt is epoch millis and
// strictly increases across records of one feed.
type Notification struct {
	ID        string `json:"id" bson:"_id"`
	Title     string `json:"title,omitempty" bson:"title,omitempty"`
	Message   string `json:"message,omitempty" bson:"message,omitempty"`
	Level     Level  `json:"level" bson:"level"`
	CreatedAt int64  `json:"createdAt" bson:"createdAt"`
}

// Input is the caller-supplied part of a notification.
type Input struct {
	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`
	Level   Level  `json:"level,omitempty"`
}

// Archiver keeps a durable copy of created notifications. It is never read
// back into the ring.
type Archiver interface {
	Archive(ctx context.Context, n Notification) error
}

type Option func(*Feed)

func WithCapacity(n int) Option { return func(f *Feed) { f.capacity = n } }

func WithPublisher(p realtime.Publisher) Option { return func(f *Feed) { f.pub = p } }

func WithArchiver(a Archiver) Option { return func(f *Feed) { f.archive = a } }

func WithClock(now func() time.Time) Option { return func(f *Feed) { f.now = now } }

func WithLogger(l zerolog.Logger) Option {
	return func(f *Feed) { f.log = l.With().Str("component", "feed").Logger() }
}

type Feed struct {
	capacity int
	pub      realtime.Publisher
	archive  Archiver
	now      func() time.Time
	log      zerolog.Logger

	mu    sync.Mutex
	buf   []Notification
	head  int // index of the oldest record
	size  int
	clock int64 // highest millis handed out, as createdAt or as a poll watermark

	archiving sync.WaitGroup
}

func New(opts ...Option) *Feed {
	f := &Feed{capacity: DefaultCapacity, now: time.Now, log: zerolog.Nop()}
	for _, o := range opts {
		o(f)
	}
	if f.capacity <= 0 {
		f.capacity = DefaultCapacity
	}
	f.buf = make([]Notification, f.capacity)
	return f
}

// Create validates in, appends it (evicting the oldest record when full),
// pushes it to the admin room and hands it to the archiver.
func (f *Feed) Create(in Input) (Notification, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Message = strings.TrimSpace(in.Message)
	if in.Title == "" && in.Message == "" {
		return Notification{}, ErrEmptyNotification
	}
	if in.Level == "" {
		in.Level = LevelInfo
	}
	in.Level = Level(strings.ToLower(string(in.Level)))
	if !in.Level.Valid() {
		return Notification{}, fmt.Errorf("%w: %q", ErrInvalidLevel, in.Level)
	}

	f.mu.Lock()
	n := Notification{
		ID:        uuid.NewString(),
		Title:     in.Title,
		Message:   in.Message,
		Level:     in.Level,
		CreatedAt: f.tick(true),
	}
	if f.size < f.capacity {
		f.buf[(f.head+f.size)%f.capacity] = n
		f.size++
	} else {
		f.buf[f.head] = n
		f.head = (f.head + 1) % f.capacity
	}
	f.mu.Unlock()

	metrics.Notifications.Inc()
	if f.pub != nil {
		f.pub.Publish(realtime.TopicNotificationsCreate, n, realtime.Room(realtime.RoomAdmin))
	}
	if f.archive != nil {
		f.archiving.Add(1)
		go func() {
			defer f.archiving.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := f.archive.Archive(ctx, n); err != nil {
				f.log.Warn().Err(err).Str("id", n.ID).Msg("archive notification")
			}
		}()
	}
	return n, nil
}

// tick returns the next millis value. Record timestamps are always past
// every value returned before, so a poll with since=Now() never misses one.
func (f *Feed) tick(record bool) int64 {
	ms := f.now().UnixMilli()
	switch {
	case record && ms <= f.clock:
		ms = f.clock + 1
	case !record && ms < f.clock:
		ms = f.clock
	}
	f.clock = ms
	return ms
}

// Now returns the watermark a poller should send on its next List call.
func (f *Feed) Now() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tick(false)
}

// List returns records with CreatedAt > since, oldest first. A watermark
// older than the oldest surviving record yields the whole ring.
func (f *Feed) List(since int64) []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Notification, 0, f.size)
	for i := 0; i < f.size; i++ {
		n := f.buf[(f.head+i)%f.capacity]
		if n.CreatedAt > since {
			out = append(out, n)
		}
	}
	return out
}

func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size
}

func (f *Feed) Capacity() int { return f.capacity }

// Wait blocks until pending archive writes finish.
func (f *Feed) Wait() { f.archiving.Wait() }
