package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// ConnectMongoDB opens a client with majority writes, so a version check in
// SaveCart is never answered by a lagging secondary.
func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetAppName("cart-service").
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetReadPreference(readpref.Primary()).
		SetWriteConcern(writeconcern.Majority()).
		SetRetryWrites(true).
		SetMaxPoolSize(100).
		SetMinPoolSize(10)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}

// OpenMongoRepository connects and makes sure the owner and TTL indexes exist.
func OpenMongoRepository(ctx context.Context, uri, database string) (CartRepository, func(context.Context) error, error) {
	db, err := ConnectMongoDB(ctx, uri, database)
	if err != nil {
		return nil, nil, err
	}
	repo := NewMongoRepository(db).(*mongoRepository)
	if err := repo.CreateIndexes(ctx); err != nil {
		_ = db.Client().Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to create cart indexes: %w", err)
	}
	return repo, db.Client().Disconnect, nil
}
