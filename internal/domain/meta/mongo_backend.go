package meta

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type MongoConfig struct {
	URI        string `toml:"uri"`
	Database   string `toml:"database"`
	Collection string `toml:"collection"`
}

type mongoEntry struct {
	Scope     string    `bson:"scope"`
	Key       string    `bson:"key"`
	Title     string    `bson:"title,omitempty"`
	Notes     string    `bson:"notes,omitempty"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoBackend stores one document per (scope, key).
type MongoBackend struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func NewMongoBackend(ctx context.Context, cfg MongoConfig) (*MongoBackend, error) {
	if cfg.Collection == "" {
		cfg.Collection = "record_meta"
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	_, err = coll.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys:    bson.D{{Key: "scope", Value: 1}, {Key: "key", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create meta index: %w", err)
	}

	slog.Info("Connected to mongo",
		slog.String("type", "db"),
		slog.String("database", cfg.Database),
		slog.String("collection", cfg.Collection),
	)
	return &MongoBackend{client: client, coll: coll}, nil
}

func (b *MongoBackend) Get(ctx context.Context, scope, key string) (Entry, bool, error) {
	var doc mongoEntry
	err := b.coll.FindOne(ctx, bson.M{"scope": scope, "key": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to load meta %s: %w", key, err)
	}
	return Entry{Title: doc.Title, Notes: doc.Notes, UpdatedAt: doc.UpdatedAt}, true, nil
}

func (b *MongoBackend) Put(ctx context.Context, scope, key string, e Entry) error {
	_, err := b.coll.UpdateOne(ctx,
		bson.M{"scope": scope, "key": key},
		bson.M{"$set": bson.M{
			"title":      e.Title,
			"notes":      e.Notes,
			"updated_at": e.UpdatedAt,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to store meta %s: %w", key, err)
	}
	return nil
}

func (b *MongoBackend) Close(ctx context.Context) error {
	return b.client.Disconnect(ctx)
}
