package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// ConnectDB initializes and returns a MongoDB client and database instance.
func ConnectDB(uri, dbName string) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping the primary node
	ctxPing, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := client.Ping(ctxPing, readpref.Primary()); err != nil {
		// Disconnect if ping fails
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(dbName)
	fmt.Println("Successfully connected to MongoDB!")

	return client, db, nil
}

// DisconnectDB closes the MongoDB client connection.
func DisconnectDB(client *mongo.Client) error {
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect MongoDB: %w", err)
	}
	fmt.Println("MongoDB connection closed.")
	return nil
}

// EnsureAuctionIndexes creates the indexes the auction engine relies on:
// due-auction scans, per-auction bid ranking, and the unique watch pair.
func EnsureAuctionIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("auctions").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "end_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create auctions index: %w", err)
	}

	_, err = db.Collection("bids").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "auction_id", Value: 1}, {Key: "amount", Value: -1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create bids index: %w", err)
	}

	_, err = db.Collection("watches").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "auction_id", Value: 1}, {Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create watches index: %w", err)
	}

	return nil
}
