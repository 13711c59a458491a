package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/231Brooks/HBH-2-sub003/internal/models"
	"github.com/231Brooks/HBH-2-sub003/internal/policy"
)

// IAnalyticsService maintains the derived per-auction analytics
// projection. It is recomputed from bid and extension history on demand,
// so a stale or missing projection is never an integrity problem.
type IAnalyticsService interface {
	Recompute(ctx context.Context, auctionID primitive.ObjectID) (*models.AuctionAnalytics, error)
	Get(ctx context.Context, auctionID primitive.ObjectID) (*models.AuctionAnalytics, error)
}

const analyticsCollection = "auction_analytics"

// analyticsService implements IAnalyticsService.
type analyticsService struct {
	db *mongo.Database
}

// NewAnalyticsService creates a new AnalyticsService.
func NewAnalyticsService(mongoDb *mongo.Database) IAnalyticsService {
	return &analyticsService{db: mongoDb}
}

// Recompute rebuilds the projection for one auction from its bid ledger
// and extension history and upserts it.
func (s *analyticsService) Recompute(ctx context.Context, auctionID primitive.ObjectID) (*models.AuctionAnalytics, error) {
	var auction models.Auction
	err := s.db.Collection(auctionsCollection).FindOne(ctx, bson.M{"_id": auctionID}).Decode(&auction)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrAuctionNotFound
		}
		return nil, fmt.Errorf("error finding auction %s for analytics: %w", auctionID.Hex(), err)
	}

	cursor, err := s.db.Collection(bidsCollection).Find(ctx, bson.M{"auction_id": auctionID})
	if err != nil {
		return nil, fmt.Errorf("failed to query bids for analytics on auction %s: %w", auctionID.Hex(), err)
	}
	defer cursor.Close(ctx)

	var bids []models.Bid
	if err = cursor.All(ctx, &bids); err != nil {
		return nil, fmt.Errorf("failed to decode bids for analytics on auction %s: %w", auctionID.Hex(), err)
	}

	extensionCount, err := s.db.Collection(extensionsCollection).CountDocuments(ctx, bson.M{"auction_id": auctionID})
	if err != nil {
		return nil, fmt.Errorf("failed to count extensions for analytics on auction %s: %w", auctionID.Hex(), err)
	}

	analytics := &models.AuctionAnalytics{
		AuctionID:      auctionID,
		TotalBids:      len(bids),
		ExtensionCount: int(extensionCount),
		FinalSalePrice: auction.FinalPrice,
		ComputedAt:     time.Now().UTC(),
	}

	bidders := make(map[primitive.ObjectID]struct{})
	sum := 0.0
	for _, bid := range bids {
		bidders[bid.BidderID] = struct{}{}
		sum += bid.Amount
		if bid.Amount > analytics.HighestBid {
			analytics.HighestBid = bid.Amount
		}
	}
	analytics.UniqueBidders = len(bidders)
	if len(bids) > 0 {
		analytics.AverageBid = sum / float64(len(bids))
		analytics.ReserveMet = policy.ReserveMet(auction.ReservePrice, analytics.HighestBid)
	}

	filter := bson.M{"_id": auctionID}
	_, err = s.db.Collection(analyticsCollection).ReplaceOne(ctx, filter, analytics, options.Replace().SetUpsert(true))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert analytics for auction %s: %w", auctionID.Hex(), err)
	}
	return analytics, nil
}

// Get returns the stored projection, recomputing it when absent.
func (s *analyticsService) Get(ctx context.Context, auctionID primitive.ObjectID) (*models.AuctionAnalytics, error) {
	var analytics models.AuctionAnalytics
	err := s.db.Collection(analyticsCollection).FindOne(ctx, bson.M{"_id": auctionID}).Decode(&analytics)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return s.Recompute(ctx, auctionID)
		}
		return nil, fmt.Errorf("error reading analytics for auction %s: %w", auctionID.Hex(), err)
	}
	return &analytics, nil
}
