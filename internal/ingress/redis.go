package ingress

import (
    "context"
    "encoding/json"
    "fmt"
    "time"

    redis "github.com/redis/go-redis/v9"
    "github.com/rs/zerolog"

    "github.com/lmsedutechkpr/Slate-sub000/internal/metrics"
    "github.com/lmsedutechkpr/Slate-sub000/internal/realtime"
)

// Redis reads mutations from one Pub/Sub channel and republishes them through
// the local hub. It is an ingress only; hub state is never shared between
// processes.
type Redis struct {
    rdb     *redis.Client
    channel string
    pub     realtime.Publisher
    log     zerolog.Logger
}

func NewRedis(url, channel string, pub realtime.Publisher, logger zerolog.Logger) (*Redis, error) {
    opt, err := redis.ParseURL(url)
    if err != nil {
        return nil, fmt.Errorf("ingress: parse redis url: %w", err)
    }
    return &Redis{
        rdb:     redis.NewClient(opt),
        channel: channel,
        pub:     pub,
        log:     logger.With().Str("component", "ingress").Str("channel", channel).Logger(),
    }, nil
}

// Run consumes the channel until ctx is cancelled.
func (r *Redis) Run(ctx context.Context) error {
    ps := r.rdb.Subscribe(ctx, r.channel)
    defer func() { _ = ps.Close() }()
    // initial receive confirms the subscription
    if _, err := ps.Receive(ctx); err != nil {
        return fmt.Errorf("ingress: subscribe %s: %w", r.channel, err)
    }
    r.log.Info().Msg("mutation ingress subscribed")

    ch := ps.Channel()
    for {
        select {
        case <-ctx.Done():
            return nil
        case msg, ok := <-ch:
            if !ok {
                return nil
            }
            r.handle(msg.Payload)
        }
    }
}

func (r *Redis) handle(payload string) {
    m, err := Decode([]byte(payload))
    if err != nil {
        metrics.IngressMessages.WithLabelValues("rejected").Inc()
        r.log.Warn().Err(err).Msg("dropping malformed mutation")
        return
    }
    n, _ := m.Apply(r.pub)
    metrics.IngressMessages.WithLabelValues("published").Inc()
    r.log.Debug().Str("topic", m.Topic.String()).Int("sessions", n).Msg("mutation published")
}

// Publish sends m on the channel; used by producers and tooling.
func (r *Redis) Publish(ctx context.Context, m Mutation) error {
    if _, err := m.Resolve(); err != nil {
        return err
    }
    data, err := json.Marshal(m)
    if err != nil {
        return err
    }
    ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    return r.rdb.Publish(ctx, r.channel, data).Err()
}

func (r *Redis) Ping(ctx context.Context) error { return r.rdb.Ping(ctx).Err() }

func (r *Redis) Close() error { return r.rdb.Close() }
