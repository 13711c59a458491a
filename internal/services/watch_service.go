package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/231Brooks/HBH-2-sub003/internal/db"
	"github.com/231Brooks/HBH-2-sub003/internal/models"
)

// IWatchService manages interest registrations used for notification
// targeting. Watching confers no bidding rights.
type IWatchService interface {
	Watch(ctx context.Context, auctionID, userID primitive.ObjectID) (*models.Watch, error)
	Unwatch(ctx context.Context, auctionID, userID primitive.ObjectID) error
	FindWatchersByAuction(ctx context.Context, auctionID primitive.ObjectID) ([]models.Watch, error)
}

const watchesCollection = "watches"

// watchService implements IWatchService.
type watchService struct {
	db *mongo.Database
}

// NewWatchService creates a new WatchService.
func NewWatchService(mongoDb *mongo.Database) IWatchService {
	return &watchService{db: mongoDb}
}

// Watch registers a user's interest in an auction. Watching twice is a
// no-op: the unique (auction_id, user_id) index rejects the duplicate
// and the existing registration is returned.
func (s *watchService) Watch(ctx context.Context, auctionID, userID primitive.ObjectID) (*models.Watch, error) {
	watch := &models.Watch{
		ID:        primitive.NewObjectID(),
		AuctionID: auctionID,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.Collection(watchesCollection).InsertOne(ctx, watch)
	if err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			var existing models.Watch
			findErr := s.db.Collection(watchesCollection).FindOne(ctx, bson.M{"auction_id": auctionID, "user_id": userID}).Decode(&existing)
			if findErr == nil {
				return &existing, nil
			}
		}
		return nil, fmt.Errorf("failed to register watch for auction %s: %w", auctionID.Hex(), err)
	}
	return watch, nil
}

// Unwatch removes a user's interest registration.
func (s *watchService) Unwatch(ctx context.Context, auctionID, userID primitive.ObjectID) error {
	res, err := s.db.Collection(watchesCollection).DeleteOne(ctx, bson.M{"auction_id": auctionID, "user_id": userID})
	if err != nil {
		return fmt.Errorf("failed to remove watch for auction %s: %w", auctionID.Hex(), err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("user %s is not watching auction %s", userID.Hex(), auctionID.Hex())
	}
	return nil
}

// FindWatchersByAuction returns all watch registrations for an auction.
func (s *watchService) FindWatchersByAuction(ctx context.Context, auctionID primitive.ObjectID) ([]models.Watch, error) {
	cursor, err := s.db.Collection(watchesCollection).Find(ctx, bson.M{"auction_id": auctionID})
	if err != nil {
		return nil, fmt.Errorf("failed to query watches for auction %s: %w", auctionID.Hex(), err)
	}
	defer cursor.Close(ctx)

	var watches []models.Watch
	if err = cursor.All(ctx, &watches); err != nil {
		return nil, fmt.Errorf("failed to decode watches for auction %s: %w", auctionID.Hex(), err)
	}
	return watches, nil
}
