package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/231Brooks/HBH-2-sub003/internal/config"
	"github.com/231Brooks/HBH-2-sub003/internal/db"
	"github.com/231Brooks/HBH-2-sub003/internal/models"
	"github.com/231Brooks/HBH-2-sub003/internal/policy"
)

// IAuctionService owns the auction lifecycle: creation, reads, and the
// terminal ACTIVE -> ENDED_* settlement transition.
type IAuctionService interface {
	CreateAuction(ctx context.Context, ownerID primitive.ObjectID, title string, minimumBid float64, reservePrice *float64, currencyCode string, endAt time.Time) (*models.Auction, error)
	FindAuctionByID(ctx context.Context, auctionID primitive.ObjectID) (*models.Auction, error)
	MinimumNextBid(ctx context.Context, auction *models.Auction) float64
	Settle(ctx context.Context, auctionID primitive.ObjectID, now time.Time) (*SettlementResult, error)
	FindDueAuctions(ctx context.Context, now time.Time) ([]models.Auction, error)
	FindAuctionsEndingWithin(ctx context.Context, now time.Time, window time.Duration) ([]models.Auction, error)
}

// SettlementResult reports the outcome of settling one auction.
// Transitioned is false when the auction was already terminal, i.e. the
// call was an idempotent no-op.
type SettlementResult struct {
	AuctionID     primitive.ObjectID   `json:"auction_id"`
	Status        models.AuctionStatus `json:"status"`
	WinnerID      *primitive.ObjectID  `json:"winner_id,omitempty"`
	FinalPrice    *float64             `json:"final_price,omitempty"`
	ReserveMet    bool                 `json:"reserve_met"`
	TotalBids     int                  `json:"total_bids"`
	UniqueBidders int                  `json:"unique_bidders"`
	Transitioned  bool                 `json:"transitioned"`
}

const (
	auctionsCollection   = "auctions"
	bidsCollection       = "bids"
	extensionsCollection = "extensions"
)

// auctionService implements IAuctionService.
type auctionService struct {
	db        *mongo.Database
	cfg       *config.Config
	configSvc IConfigService
}

// NewAuctionService creates a new AuctionService. configSvc may be nil,
// in which case the static config values are used.
func NewAuctionService(mongoDb *mongo.Database, cfg *config.Config, configSvc IConfigService) IAuctionService {
	return &auctionService{db: mongoDb, cfg: cfg, configSvc: configSvc}
}

// CreateAuction creates a new ACTIVE auction for a property.
func (s *auctionService) CreateAuction(ctx context.Context, ownerID primitive.ObjectID, title string, minimumBid float64, reservePrice *float64, currencyCode string, endAt time.Time) (*models.Auction, error) {
	if minimumBid <= 0 {
		return nil, fmt.Errorf("minimum bid must be positive, got %.2f", minimumBid)
	}
	if reservePrice != nil && *reservePrice < minimumBid {
		return nil, fmt.Errorf("reserve price %.2f cannot be below minimum bid %.2f", *reservePrice, minimumBid)
	}
	now := time.Now().UTC()
	if !endAt.After(now) {
		return nil, fmt.Errorf("end time %s is not in the future", endAt.Format(time.RFC3339))
	}
	if currencyCode == "" {
		currencyCode = "USD"
	}

	auction := &models.Auction{
		ID:           primitive.NewObjectID(),
		OwnerID:      ownerID,
		Title:        title,
		Status:       models.AuctionActive,
		MinimumBid:   minimumBid,
		ReservePrice: reservePrice,
		CurrencyCode: currencyCode,
		EndAt:        endAt.UTC(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	operation := func() error {
		_, insertErr := s.db.Collection(auctionsCollection).InsertOne(ctx, auction)
		return insertErr
	}
	if err := db.Try(operation); err != nil {
		return nil, fmt.Errorf("failed to insert auction for owner %s: %w", ownerID.Hex(), err)
	}
	return auction, nil
}

// FindAuctionByID finds a non-deleted auction by its ID.
func (s *auctionService) FindAuctionByID(ctx context.Context, auctionID primitive.ObjectID) (*models.Auction, error) {
	var auction models.Auction
	filter := bson.M{"_id": auctionID, "deleted": false}
	err := s.db.Collection(auctionsCollection).FindOne(ctx, filter).Decode(&auction)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrAuctionNotFound
		}
		return nil, fmt.Errorf("error finding auction %s: %w", auctionID.Hex(), err)
	}
	return &auction, nil
}

// MinimumNextBid returns the lowest amount the next bid must reach for
// this auction. The increment is deployment-wide, overridable at
// runtime through the config service.
func (s *auctionService) MinimumNextBid(ctx context.Context, auction *models.Auction) float64 {
	return policy.MinimumNextBid(auction.CurrentHighest(), s.bidIncrement(ctx))
}

func (s *auctionService) bidIncrement(ctx context.Context) float64 {
	if s.configSvc != nil {
		return s.configSvc.GetFloat64(ctx, "BID_INCREMENT", s.cfg.BidIncrement)
	}
	return s.cfg.BidIncrement
}

// Settle drives one auction to its terminal state once its end time has
// passed. It is idempotent: settling an already-terminal auction returns
// the recorded outcome with Transitioned=false and performs no writes.
// Settling before the end time returns ErrNotYetEnded.
//
// The terminal transition is a compare-and-set on (status, end_at,
// current_bid), so a concurrent bid that extends the auction or raises
// the high bid between our read and the write forces a re-read rather
// than settling on stale data.
func (s *auctionService) Settle(ctx context.Context, auctionID primitive.ObjectID, now time.Time) (*SettlementResult, error) {
	var result *SettlementResult

	operation := func() error {
		auction, err := s.FindAuctionByID(ctx, auctionID)
		if err != nil {
			return err
		}

		if auction.Status.IsTerminal() {
			// Idempotent no-op: report the recorded outcome.
			result = s.terminalResult(ctx, auction)
			return nil
		}

		if now.Before(auction.EndAt) {
			return ErrNotYetEnded
		}

		highest, err := s.findHighestActiveBid(ctx, auctionID)
		if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("failed to read highest bid for auction %s: %w", auctionID.Hex(), err)
		}

		// An acceptance in flight commits the auction CAS before its
		// ledger insert, so the two can briefly disagree. Settle only
		// once they match; a mismatch is a conflict, not an outcome.
		if highest != nil {
			if !auction.HasBids() || highest.Amount != *auction.CurrentBid {
				return db.ErrConflict
			}
		} else if auction.HasBids() {
			return db.ErrConflict
		}

		var targetStatus models.AuctionStatus
		reserveMet := false
		switch {
		case highest == nil:
			targetStatus = models.AuctionEndedNoSale
		case !policy.ReserveMet(auction.ReservePrice, highest.Amount):
			targetStatus = models.AuctionEndedReserveNotMet
		default:
			targetStatus = models.AuctionEndedSold
			reserveMet = true
		}

		set := bson.M{
			"status":     targetStatus,
			"settled_at": now.UTC(),
			"updated_at": now.UTC(),
		}
		if targetStatus == models.AuctionEndedSold {
			set["winner_id"] = highest.BidderID
			set["final_price"] = highest.Amount
		}
		// The filter pins status, end time and current bid to what we just
		// read; any concurrent acceptance or extension fails the match.
		filter := bson.M{
			"_id":    auctionID,
			"status": models.AuctionActive,
			"end_at": auction.EndAt,
		}
		if auction.CurrentBid != nil {
			filter["current_bid"] = *auction.CurrentBid
		} else {
			filter["current_bid"] = bson.M{"$exists": false}
		}

		res, err := s.db.Collection(auctionsCollection).UpdateOne(ctx, filter, bson.M{"$set": set})
		if err != nil {
			return fmt.Errorf("db error settling auction %s: %w", auctionID.Hex(), err)
		}
		if res.MatchedCount == 0 {
			return db.ErrConflict
		}

		// Transition won: finalize bid statuses below.
		totalBids, uniqueBidders, err := s.bidCounts(ctx, auctionID)
		if err != nil {
			log.Printf("WARN: failed to count bids for settled auction %s: %v", auctionID.Hex(), err)
		}

		if highest != nil {
			if err := s.finalizeBidStatuses(ctx, auctionID, highest.ID, targetStatus); err != nil {
				// The auction itself is settled; bid status cleanup failing is
				// logged and left for the next recompute, not rolled back.
				log.Printf("ERROR: failed to finalize bid statuses for auction %s: %v", auctionID.Hex(), err)
			}
		}

		result = &SettlementResult{
			AuctionID:     auctionID,
			Status:        targetStatus,
			ReserveMet:    reserveMet,
			TotalBids:     totalBids,
			UniqueBidders: uniqueBidders,
			Transitioned:  true,
		}
		if targetStatus == models.AuctionEndedSold {
			winnerID := highest.BidderID
			finalPrice := highest.Amount
			result.WinnerID = &winnerID
			result.FinalPrice = &finalPrice
		}
		return nil
	}

	err := db.Try(operation)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// terminalResult rebuilds a SettlementResult from an already-settled
// auction document so repeated settle calls stay idempotent.
func (s *auctionService) terminalResult(ctx context.Context, auction *models.Auction) *SettlementResult {
	totalBids, uniqueBidders, err := s.bidCounts(ctx, auction.ID)
	if err != nil {
		log.Printf("WARN: failed to count bids for auction %s: %v", auction.ID.Hex(), err)
	}
	return &SettlementResult{
		AuctionID:     auction.ID,
		Status:        auction.Status,
		WinnerID:      auction.WinnerID,
		FinalPrice:    auction.FinalPrice,
		ReserveMet:    auction.Status == models.AuctionEndedSold,
		TotalBids:     totalBids,
		UniqueBidders: uniqueBidders,
		Transitioned:  false,
	}
}

// findHighestActiveBid returns the highest ACTIVE bid for the auction,
// ranked by amount descending with earliest-created first on equal
// amounts.
func (s *auctionService) findHighestActiveBid(ctx context.Context, auctionID primitive.ObjectID) (*models.Bid, error) {
	var bid models.Bid
	filter := bson.M{"auction_id": auctionID, "status": models.BidActive}
	opts := options.FindOne().SetSort(bson.D{{Key: "amount", Value: -1}, {Key: "created_at", Value: 1}})
	err := s.db.Collection(bidsCollection).FindOne(ctx, filter, opts).Decode(&bid)
	if err != nil {
		return nil, err
	}
	return &bid, nil
}

// finalizeBidStatuses marks the winning bid WINNING (sold outcome only)
// and expires every other still-ACTIVE bid.
func (s *auctionService) finalizeBidStatuses(ctx context.Context, auctionID, highestBidID primitive.ObjectID, outcome models.AuctionStatus) error {
	coll := s.db.Collection(bidsCollection)

	if outcome == models.AuctionEndedSold {
		_, err := coll.UpdateOne(ctx,
			bson.M{"_id": highestBidID, "auction_id": auctionID},
			bson.M{"$set": bson.M{"status": models.BidWinning}},
		)
		if err != nil {
			return fmt.Errorf("failed to mark bid %s winning: %w", highestBidID.Hex(), err)
		}
	}

	_, err := coll.UpdateMany(ctx,
		bson.M{"auction_id": auctionID, "status": models.BidActive},
		bson.M{"$set": bson.M{"status": models.BidExpired}},
	)
	if err != nil {
		return fmt.Errorf("failed to expire remaining bids for auction %s: %w", auctionID.Hex(), err)
	}
	return nil
}

// bidCounts returns (total bids, unique bidders) for the auction.
func (s *auctionService) bidCounts(ctx context.Context, auctionID primitive.ObjectID) (int, int, error) {
	coll := s.db.Collection(bidsCollection)
	total, err := coll.CountDocuments(ctx, bson.M{"auction_id": auctionID})
	if err != nil {
		return 0, 0, err
	}
	bidders, err := coll.Distinct(ctx, "bidder_id", bson.M{"auction_id": auctionID})
	if err != nil {
		return int(total), 0, err
	}
	return int(total), len(bidders), nil
}

// FindDueAuctions returns ACTIVE auctions whose end time has passed.
func (s *auctionService) FindDueAuctions(ctx context.Context, now time.Time) ([]models.Auction, error) {
	filter := bson.M{
		"status":  models.AuctionActive,
		"deleted": false,
		"end_at":  bson.M{"$lte": now.UTC()},
	}
	return s.findAuctions(ctx, filter)
}

// FindAuctionsEndingWithin returns ACTIVE auctions ending after now but
// within the lead window, for the "time running out" notification scans.
func (s *auctionService) FindAuctionsEndingWithin(ctx context.Context, now time.Time, window time.Duration) ([]models.Auction, error) {
	filter := bson.M{
		"status":  models.AuctionActive,
		"deleted": false,
		"end_at": bson.M{
			"$gt":  now.UTC(),
			"$lte": now.UTC().Add(window),
		},
	}
	return s.findAuctions(ctx, filter)
}

func (s *auctionService) findAuctions(ctx context.Context, filter bson.M) ([]models.Auction, error) {
	cursor, err := s.db.Collection(auctionsCollection).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "end_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query auctions: %w", err)
	}
	defer cursor.Close(ctx)

	var auctions []models.Auction
	if err = cursor.All(ctx, &auctions); err != nil {
		return nil, fmt.Errorf("failed to decode auctions: %w", err)
	}
	return auctions, nil
}
