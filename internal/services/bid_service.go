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

// IBidService is the append-only bid ledger plus the bid-acceptance
// trigger of the auction lifecycle (current-bid update and anti-sniping
// extension).
type IBidService interface {
	PlaceBid(ctx context.Context, auctionID, bidderID primitive.ObjectID, amount float64, now time.Time) (*PlaceBidResult, error)
	CurrentHighest(ctx context.Context, auctionID primitive.ObjectID) (float64, error)
	FindBidsByAuction(ctx context.Context, auctionID primitive.ObjectID) ([]models.Bid, error)
	FindExtensionsByAuction(ctx context.Context, auctionID primitive.ObjectID) ([]models.Extension, error)
}

// PlaceBidResult reports an accepted bid together with everything the
// caller needs for the response and the outbid notification.
type PlaceBidResult struct {
	Bid            *models.Bid
	Auction        *models.Auction // post-acceptance snapshot
	MinimumNextBid float64         // hint for the next bidder
	Extended       bool
	Extension      *models.Extension
	OutbidBidderID *primitive.ObjectID // previous highest bidder, when a different user
	OutbidAmount   float64             // their superseded amount
}

// bidService implements IBidService.
type bidService struct {
	db        *mongo.Database
	cfg       *config.Config
	configSvc IConfigService
}

// NewBidService creates a new BidService. configSvc may be nil, in which
// case the static config values are used.
func NewBidService(mongoDb *mongo.Database, cfg *config.Config, configSvc IConfigService) IBidService {
	return &bidService{db: mongoDb, cfg: cfg, configSvc: configSvc}
}

// PlaceBid validates and appends a bid for an auction.
//
// Acceptance requires the auction to be ACTIVE and not past its end
// time, the bidder to be someone other than the property owner, and the
// amount to reach the current highest plus the configured increment.
// Rejections return InvalidBidError carrying the minimum acceptable
// next bid, or ErrAuctionClosed.
//
// Serialization: acceptance is a compare-and-set against the auction
// document pinning (status, end_at, current_bid) to the values just
// read. Two concurrent bids on the same auction cannot both match; the
// loser re-reads and re-validates against the new highest. The ledger
// writes that follow are bounded by the accepted amount, and Settle
// refuses to run while the document and ledger disagree, so a slow
// insert cannot hand the win to a lower bid.
func (s *bidService) PlaceBid(ctx context.Context, auctionID, bidderID primitive.ObjectID, amount float64, now time.Time) (*PlaceBidResult, error) {
	var result *PlaceBidResult

	operation := func() error {
		var auction models.Auction
		err := s.db.Collection(auctionsCollection).FindOne(ctx, bson.M{"_id": auctionID, "deleted": false}).Decode(&auction)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return ErrAuctionNotFound
			}
			return fmt.Errorf("error finding auction %s: %w", auctionID.Hex(), err)
		}

		if auction.Status.IsTerminal() || !now.Before(auction.EndAt) {
			return ErrAuctionClosed
		}

		minimumNext := policy.MinimumNextBid(auction.CurrentHighest(), s.bidIncrement(ctx))

		if bidderID == auction.OwnerID {
			return &InvalidBidError{Reason: "owners cannot bid on their own property", MinimumNextBid: minimumNext}
		}
		if amount < minimumNext {
			return &InvalidBidError{
				Reason:         fmt.Sprintf("amount %.2f is below the minimum acceptable bid", amount),
				MinimumNextBid: minimumNext,
			}
		}

		// Snapshot the bid being superseded before we commit the new one.
		previous, err := s.findHighestActiveBid(ctx, auctionID)
		if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("failed to read previous highest bid for auction %s: %w", auctionID.Hex(), err)
		}

		extended := policy.ShouldExtend(auction.EndAt, now, s.extensionThreshold(ctx))
		newEndAt := auction.EndAt
		if extended {
			newEndAt = policy.NextEndAt(auction.EndAt, s.extensionDuration(ctx))
		}

		newBidID := primitive.NewObjectID()

		set := bson.M{
			"current_bid":       amount,
			"current_bidder_id": bidderID,
			"updated_at":        now.UTC(),
		}
		inc := bson.M{"bid_count": 1}
		if extended {
			set["end_at"] = newEndAt
			inc["extension_count"] = 1
		}

		// Compare-and-set: pin what we validated against.
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

		res, err := s.db.Collection(auctionsCollection).UpdateOne(ctx, filter, bson.M{"$set": set, "$inc": inc})
		if err != nil {
			return fmt.Errorf("db error accepting bid on auction %s: %w", auctionID.Hex(), err)
		}
		if res.MatchedCount == 0 {
			return db.ErrConflict
		}

		// From here the acceptance round is ours; the remaining writes are
		// appends and status flips keyed to it.
		bid := &models.Bid{
			ID:        newBidID,
			AuctionID: auctionID,
			BidderID:  bidderID,
			Amount:    amount,
			Status:    models.BidActive,
			CreatedAt: now.UTC(),
		}
		if _, err := s.db.Collection(bidsCollection).InsertOne(ctx, bid); err != nil {
			log.Printf("CRITICAL: auction %s advanced to %.2f but bid insert failed: %v", auctionID.Hex(), amount, err)
			return fmt.Errorf("failed to append bid to ledger for auction %s: %w", auctionID.Hex(), err)
		}

		// Superseded bids become OUTBID immediately.
		if previous != nil {
			if err := s.markOutbid(ctx, auctionID, newBidID, amount); err != nil {
				log.Printf("ERROR: failed to mark superseded bids OUTBID for auction %s: %v", auctionID.Hex(), err)
			}
		}

		var extension *models.Extension
		if extended {
			extension = &models.Extension{
				ID:               primitive.NewObjectID(),
				AuctionID:        auctionID,
				BidID:            newBidID,
				OriginalEndDate:  auction.EndAt,
				NewEndDate:       newEndAt,
				ExtensionMinutes: int(s.extensionDuration(ctx) / time.Minute),
				CreatedAt:        now.UTC(),
			}
			if _, err := s.db.Collection(extensionsCollection).InsertOne(ctx, extension); err != nil {
				// The end time already moved; a missing audit row is logged,
				// not rolled back.
				log.Printf("ERROR: failed to record extension for auction %s: %v", auctionID.Hex(), err)
				extension = nil
			}
		}

		snapshot := auction
		snapshot.CurrentBid = &amount
		snapshot.CurrentBidderID = &bidderID
		snapshot.BidCount++
		snapshot.EndAt = newEndAt
		if extended {
			snapshot.ExtensionCount++
		}

		result = &PlaceBidResult{
			Bid:            bid,
			Auction:        &snapshot,
			MinimumNextBid: policy.MinimumNextBid(amount, s.bidIncrement(ctx)),
			Extended:       extended,
			Extension:      extension,
		}
		if previous != nil && previous.BidderID != bidderID {
			outbidBidder := previous.BidderID
			result.OutbidBidderID = &outbidBidder
			result.OutbidAmount = previous.Amount
		}
		return nil
	}

	err := db.Try(operation)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// markOutbid flips still-ACTIVE bids below the newly accepted amount to
// OUTBID. The amount bound keeps a concurrent acceptance that committed
// its auction CAS after ours, and is therefore higher, out of reach:
// the top of the ledger is never demoted.
func (s *bidService) markOutbid(ctx context.Context, auctionID, newBidID primitive.ObjectID, amount float64) error {
	_, err := s.db.Collection(bidsCollection).UpdateMany(ctx,
		bson.M{
			"auction_id": auctionID,
			"status":     models.BidActive,
			"_id":        bson.M{"$ne": newBidID},
			"amount":     bson.M{"$lt": amount},
		},
		bson.M{"$set": bson.M{"status": models.BidOutbid}},
	)
	return err
}

// CurrentHighest returns the maximum accepted bid amount for the
// auction, or its minimum-bid base if no bids exist.
func (s *bidService) CurrentHighest(ctx context.Context, auctionID primitive.ObjectID) (float64, error) {
	var auction models.Auction
	err := s.db.Collection(auctionsCollection).FindOne(ctx, bson.M{"_id": auctionID, "deleted": false}).Decode(&auction)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrAuctionNotFound
		}
		return 0, fmt.Errorf("error finding auction %s: %w", auctionID.Hex(), err)
	}
	return auction.CurrentHighest(), nil
}

// FindBidsByAuction returns the auction's bids ranked by amount
// descending, earliest-created first on the (impossible) tie.
func (s *bidService) FindBidsByAuction(ctx context.Context, auctionID primitive.ObjectID) ([]models.Bid, error) {
	opts := options.Find().SetSort(bson.D{{Key: "amount", Value: -1}, {Key: "created_at", Value: 1}})
	cursor, err := s.db.Collection(bidsCollection).Find(ctx, bson.M{"auction_id": auctionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query bids for auction %s: %w", auctionID.Hex(), err)
	}
	defer cursor.Close(ctx)

	var bids []models.Bid
	if err = cursor.All(ctx, &bids); err != nil {
		return nil, fmt.Errorf("failed to decode bids for auction %s: %w", auctionID.Hex(), err)
	}
	return bids, nil
}

// FindExtensionsByAuction returns the auction's extension audit records
// in creation order.
func (s *bidService) FindExtensionsByAuction(ctx context.Context, auctionID primitive.ObjectID) ([]models.Extension, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.db.Collection(extensionsCollection).Find(ctx, bson.M{"auction_id": auctionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query extensions for auction %s: %w", auctionID.Hex(), err)
	}
	defer cursor.Close(ctx)

	var extensions []models.Extension
	if err = cursor.All(ctx, &extensions); err != nil {
		return nil, fmt.Errorf("failed to decode extensions for auction %s: %w", auctionID.Hex(), err)
	}
	return extensions, nil
}

func (s *bidService) findHighestActiveBid(ctx context.Context, auctionID primitive.ObjectID) (*models.Bid, error) {
	var bid models.Bid
	filter := bson.M{"auction_id": auctionID, "status": models.BidActive}
	opts := options.FindOne().SetSort(bson.D{{Key: "amount", Value: -1}, {Key: "created_at", Value: 1}})
	err := s.db.Collection(bidsCollection).FindOne(ctx, filter, opts).Decode(&bid)
	if err != nil {
		return nil, err
	}
	return &bid, nil
}

func (s *bidService) bidIncrement(ctx context.Context) float64 {
	if s.configSvc != nil {
		return s.configSvc.GetFloat64(ctx, "BID_INCREMENT", s.cfg.BidIncrement)
	}
	return s.cfg.BidIncrement
}

func (s *bidService) extensionThreshold(ctx context.Context) time.Duration {
	if s.configSvc != nil {
		return s.configSvc.GetDuration(ctx, "EXTENSION_THRESHOLD", s.cfg.ExtensionThreshold)
	}
	return s.cfg.ExtensionThreshold
}

func (s *bidService) extensionDuration(ctx context.Context) time.Duration {
	if s.configSvc != nil {
		return s.configSvc.GetDuration(ctx, "EXTENSION_DURATION", s.cfg.ExtensionDuration)
	}
	return s.cfg.ExtensionDuration
}
