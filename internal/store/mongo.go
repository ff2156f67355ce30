package store

import (
    "context"
    "errors"
    "fmt"
    "time"

    "go.mongodb.org/mongo-driver/bson"
    "go.mongodb.org/mongo-driver/mongo"
    "go.mongodb.org/mongo-driver/mongo/options"

    "github.com/lmsedutechkpr/Slate-sub000/internal/feed"
)

const (
    mongoCollection = "notifications"
    mongoDefaultDB  = "lms"
)

// Mongo archives notifications in the same document database the LMS uses.
type Mongo struct {
    client *mongo.Client
    coll   *mongo.Collection
}

func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
    if uri == "" {
        return nil, errors.New("store: mongo requires a URI")
    }
    if database == "" {
        database = mongoDefaultDB
    }
    opts := options.Client().ApplyURI(uri).
        SetAppName("lms-realtime").
        SetConnectTimeout(10 * time.Second)
    client, err := mongo.Connect(ctx, opts)
    if err != nil {
        return nil, fmt.Errorf("%w: connect: %w", ErrUnavailable, err)
    }
    if err := client.Ping(ctx, nil); err != nil {
        _ = client.Disconnect(ctx)
        return nil, fmt.Errorf("%w: ping: %w", ErrUnavailable, err)
    }
    coll := client.Database(database).Collection(mongoCollection)
    _, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
        Keys:    bson.D{{Key: "createdAt", Value: -1}},
        Options: options.Index().SetName("notifications_created_at"),
    })
    if err != nil {
        _ = client.Disconnect(ctx)
        return nil, fmt.Errorf("store: create index: %w", err)
    }
    return &Mongo{client: client, coll: coll}, nil
}

// Archive upserts n keyed by its id.
func (m *Mongo) Archive(ctx context.Context, n feed.Notification) error {
    filter := bson.D{{Key: "_id", Value: n.ID}}
    _, err := m.coll.ReplaceOne(ctx, filter, n, options.Replace().SetUpsert(true))
    if err != nil {
        return fmt.Errorf("store: archive notification: %w", err)
    }
    return nil
}

func (m *Mongo) Recent(ctx context.Context, limit int) ([]feed.Notification, error) {
    opts := options.Find().
        SetSort(bson.D{{Key: "createdAt", Value: -1}}).
        SetLimit(int64(clampLimit(limit)))
    cur, err := m.coll.Find(ctx, bson.D{}, opts)
    if err != nil {
        return nil, fmt.Errorf("store: recent notifications: %w", err)
    }
    out := []feed.Notification{}
    if err := cur.All(ctx, &out); err != nil {
        return nil, fmt.Errorf("store: decode notifications: %w", err)
    }
    return out, nil
}

func (m *Mongo) Ping(ctx context.Context) error { return m.client.Ping(ctx, nil) }

func (m *Mongo) Close(ctx context.Context) error { return m.client.Disconnect(ctx) }
