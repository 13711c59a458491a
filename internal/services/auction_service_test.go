package services

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	dbpkg "github.com/231Brooks/HBH-2-sub003/internal/db"
	"github.com/231Brooks/HBH-2-sub003/internal/models"
)

var testMongoURIAuction = ""

func init() {
	testMongoURIAuction = os.Getenv("MONGO_URI_TEST")
	if testMongoURIAuction == "" {
		testMongoURIAuction = "mongodb://localhost:27017"
	}
}

func setupTestDBAuction(t *testing.T, dbName string) *mongo.Database {
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(testMongoURIAuction))
	if err != nil {
		t.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	db := client.Database(dbName)
	_ = db.Collection("auctions").Drop(context.Background())
	_ = db.Collection("bids").Drop(context.Background())
	_ = db.Collection("extensions").Drop(context.Background())
	return db
}

func TestAuctionService_CreateAuction_Validation(t *testing.T) {
	db := setupTestDBAuction(t, "testdb_auction_create")
	cfg := testAuctionConfig()
	svc := NewAuctionService(db, cfg, nil)
	ctx := context.Background()
	ownerID := primitive.NewObjectID()
	future := time.Now().Add(24 * time.Hour)

	_, err := svc.CreateAuction(ctx, ownerID, "House", 0, nil, "USD", future)
	assert.Error(t, err)

	reserve := 500.0
	_, err = svc.CreateAuction(ctx, ownerID, "House", 1000, &reserve, "USD", future)
	assert.Error(t, err) // reserve below minimum bid

	_, err = svc.CreateAuction(ctx, ownerID, "House", 1000, nil, "USD", time.Now().Add(-time.Hour))
	assert.Error(t, err) // end time in the past

	auction, err := svc.CreateAuction(ctx, ownerID, "House", 1000, nil, "", future)
	require.NoError(t, err)
	assert.Equal(t, models.AuctionActive, auction.Status)
	assert.Equal(t, "USD", auction.CurrencyCode)
	assert.Equal(t, 1000.0, auction.CurrentHighest())
	assert.False(t, auction.HasBids())

	found, err := svc.FindAuctionByID(ctx, auction.ID)
	require.NoError(t, err)
	assert.Equal(t, auction.ID, found.ID)

	_, err = svc.FindAuctionByID(ctx, primitive.NewObjectID())
	assert.True(t, errors.Is(err, ErrAuctionNotFound))
}

func TestAuctionService_Settle_NoBids(t *testing.T) {
	db := setupTestDBAuction(t, "testdb_settle_no_bids")
	cfg := testAuctionConfig()
	svc := NewAuctionService(db, cfg, nil)
	ctx := context.Background()

	now := time.Now().UTC()
	auctionID := insertTestAuction(t, db, primitive.NewObjectID(), 1000, nil, now.Add(-time.Minute))

	result, err := svc.Settle(ctx, auctionID, now)
	require.NoError(t, err)

	assert.Equal(t, models.AuctionEndedNoSale, result.Status)
	assert.Nil(t, result.WinnerID)
	assert.Nil(t, result.FinalPrice)
	assert.Equal(t, 0, result.TotalBids)
	assert.True(t, result.Transitioned)
}

func TestAuctionService_Settle_Idempotent(t *testing.T) {
	db := setupTestDBAuction(t, "testdb_settle_idempotent")
	cfg := testAuctionConfig()
	svc := NewAuctionService(db, cfg, nil)
	ctx := context.Background()

	now := time.Now().UTC()
	auctionID := insertTestAuction(t, db, primitive.NewObjectID(), 1000, nil, now.Add(-time.Minute))

	first, err := svc.Settle(ctx, auctionID, now)
	require.NoError(t, err)
	assert.True(t, first.Transitioned)

	second, err := svc.Settle(ctx, auctionID, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, second.Transitioned)
	assert.Equal(t, first.Status, second.Status)
}

func TestAuctionService_Settle_NotYetEnded(t *testing.T) {
	db := setupTestDBAuction(t, "testdb_settle_early")
	cfg := testAuctionConfig()
	svc := NewAuctionService(db, cfg, nil)
	ctx := context.Background()

	now := time.Now().UTC()
	auctionID := insertTestAuction(t, db, primitive.NewObjectID(), 1000, nil, now.Add(time.Hour))

	_, err := svc.Settle(ctx, auctionID, now)
	assert.True(t, errors.Is(err, ErrNotYetEnded))

	// The auction is untouched.
	var stored models.Auction
	require.NoError(t, db.Collection("auctions").FindOne(ctx, bson.M{"_id": auctionID}).Decode(&stored))
	assert.Equal(t, models.AuctionActive, stored.Status)
}

func TestAuctionService_Settle_ReserveNotMet(t *testing.T) {
	db := setupTestDBAuction(t, "testdb_settle_reserve")
	cfg := testAuctionConfig()
	auctionSvc := NewAuctionService(db, cfg, nil)
	bidSvc := NewBidService(db, cfg, nil)
	ctx := context.Background()

	reserve := 5000.0
	bidTime := time.Now().UTC().Add(-time.Hour)
	auctionID := insertTestAuction(t, db, primitive.NewObjectID(), 1000, &reserve, bidTime.Add(30*time.Minute))

	_, err := bidSvc.PlaceBid(ctx, auctionID, primitive.NewObjectID(), 4000, bidTime)
	require.NoError(t, err)

	result, err := auctionSvc.Settle(ctx, auctionID, time.Now().UTC())
	require.NoError(t, err)

	assert.Equal(t, models.AuctionEndedReserveNotMet, result.Status)
	assert.Nil(t, result.WinnerID)
	assert.False(t, result.ReserveMet)
	assert.Equal(t, 1, result.TotalBids)

	// The bid expires rather than winning.
	var bid models.Bid
	require.NoError(t, db.Collection("bids").FindOne(ctx, bson.M{"auction_id": auctionID}).Decode(&bid))
	assert.Equal(t, models.BidExpired, bid.Status)
}

func TestAuctionService_Settle_Sold(t *testing.T) {
	db := setupTestDBAuction(t, "testdb_settle_sold")
	cfg := testAuctionConfig()
	auctionSvc := NewAuctionService(db, cfg, nil)
	bidSvc := NewBidService(db, cfg, nil)
	ctx := context.Background()

	// Bidder X leads, Y overtakes, X retakes the lead and wins.
	bidderX := primitive.NewObjectID()
	bidderY := primitive.NewObjectID()
	start := time.Now().UTC().Add(-time.Hour)
	auctionID := insertTestAuction(t, db, primitive.NewObjectID(), 1000, nil, start.Add(30*time.Minute))

	_, err := bidSvc.PlaceBid(ctx, auctionID, bidderX, 3000, start)
	require.NoError(t, err)
	_, err = bidSvc.PlaceBid(ctx, auctionID, bidderY, 4000, start.Add(time.Minute))
	require.NoError(t, err)
	winning, err := bidSvc.PlaceBid(ctx, auctionID, bidderX, 4500, start.Add(2*time.Minute))
	require.NoError(t, err)

	result, err := auctionSvc.Settle(ctx, auctionID, time.Now().UTC())
	require.NoError(t, err)

	assert.Equal(t, models.AuctionEndedSold, result.Status)
	require.NotNil(t, result.WinnerID)
	assert.Equal(t, bidderX, *result.WinnerID)
	require.NotNil(t, result.FinalPrice)
	assert.Equal(t, 4500.0, *result.FinalPrice)
	assert.True(t, result.ReserveMet)
	assert.Equal(t, 3, result.TotalBids)
	assert.Equal(t, 2, result.UniqueBidders)

	var winningBid models.Bid
	require.NoError(t, db.Collection("bids").FindOne(ctx, bson.M{"_id": winning.Bid.ID}).Decode(&winningBid))
	assert.Equal(t, models.BidWinning, winningBid.Status)

	// No ACTIVE bids survive settlement.
	active, err := db.Collection("bids").CountDocuments(ctx, bson.M{"auction_id": auctionID, "status": models.BidActive})
	require.NoError(t, err)
	assert.Equal(t, int64(0), active)

	var stored models.Auction
	require.NoError(t, db.Collection("auctions").FindOne(ctx, bson.M{"_id": auctionID}).Decode(&stored))
	assert.Equal(t, models.AuctionEndedSold, stored.Status)
	require.NotNil(t, stored.SettledAt)
}

func TestAuctionService_FindDueAuctions(t *testing.T) {
	db := setupTestDBAuction(t, "testdb_auction_due")
	cfg := testAuctionConfig()
	svc := NewAuctionService(db, cfg, nil)
	ctx := context.Background()

	now := time.Now().UTC()
	dueID := insertTestAuction(t, db, primitive.NewObjectID(), 1000, nil, now.Add(-time.Minute))
	insertTestAuction(t, db, primitive.NewObjectID(), 1000, nil, now.Add(time.Hour))

	due, err := svc.FindDueAuctions(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, dueID, due[0].ID)
}

func TestAuctionService_FindAuctionsEndingWithin(t *testing.T) {
	db := setupTestDBAuction(t, "testdb_auction_ending")
	cfg := testAuctionConfig()
	svc := NewAuctionService(db, cfg, nil)
	ctx := context.Background()

	now := time.Now().UTC()
	soonID := insertTestAuction(t, db, primitive.NewObjectID(), 1000, nil, now.Add(30*time.Minute))
	insertTestAuction(t, db, primitive.NewObjectID(), 1000, nil, now.Add(3*time.Hour))
	insertTestAuction(t, db, primitive.NewObjectID(), 1000, nil, now.Add(-time.Minute)) // already due, not "ending"

	ending, err := svc.FindAuctionsEndingWithin(ctx, now, time.Hour)
	require.NoError(t, err)
	require.Len(t, ending, 1)
	assert.Equal(t, soonID, ending[0].ID)
}

func TestAuctionService_MinimumNextBid(t *testing.T) {
	cfg := testAuctionConfig()
	svc := NewAuctionService(nil, cfg, nil)

	auction := &models.Auction{MinimumBid: 1000}
	assert.Equal(t, 1100.0, svc.MinimumNextBid(context.Background(), auction))

	current := 2500.0
	auction.CurrentBid = &current
	assert.Equal(t, 2600.0, svc.MinimumNextBid(context.Background(), auction))
}

func TestAuctionService_Settle_StaleLedgerForcesRetry(t *testing.T) {
	db := setupTestDBAuction(t, "test_auction_settle_stale")
	defer db.Client().Disconnect(context.Background())
	ctx := context.Background()
	cfg := testAuctionConfig()

	endAt := time.Now().Add(-time.Minute)
	auctionID := insertTestAuction(t, db, primitive.NewObjectID(), 1000, nil, endAt)
	svc := NewAuctionService(db, cfg, nil)

	// An acceptance mid-flight: the auction document already carries the
	// 4000 bid, but only the superseded 3000 bid has reached the ledger.
	loser := models.Bid{ID: primitive.NewObjectID(), AuctionID: auctionID, BidderID: primitive.NewObjectID(), Amount: 3000, Status: models.BidActive, CreatedAt: time.Now().UTC()}
	_, err := db.Collection("bids").InsertOne(ctx, loser)
	require.NoError(t, err)

	winnerID := primitive.NewObjectID()
	_, err = db.Collection("auctions").UpdateOne(ctx, bson.M{"_id": auctionID},
		bson.M{"$set": bson.M{"current_bid": 4000.0, "current_bidder_id": winnerID, "bid_count": 2}})
	require.NoError(t, err)

	// Settlement must not crown the stale 3000 bid.
	_, err = svc.Settle(ctx, auctionID, time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, dbpkg.ErrConflict))

	var auction models.Auction
	require.NoError(t, db.Collection("auctions").FindOne(ctx, bson.M{"_id": auctionID}).Decode(&auction))
	assert.Equal(t, models.AuctionActive, auction.Status)

	// Once the in-flight writes land, settlement crowns the real winner.
	winning := models.Bid{ID: primitive.NewObjectID(), AuctionID: auctionID, BidderID: winnerID, Amount: 4000, Status: models.BidActive, CreatedAt: time.Now().UTC()}
	_, err = db.Collection("bids").InsertOne(ctx, winning)
	require.NoError(t, err)
	_, err = db.Collection("bids").UpdateOne(ctx, bson.M{"_id": loser.ID},
		bson.M{"$set": bson.M{"status": models.BidOutbid}})
	require.NoError(t, err)

	result, err := svc.Settle(ctx, auctionID, time.Now())
	require.NoError(t, err)
	assert.True(t, result.Transitioned)
	assert.Equal(t, models.AuctionEndedSold, result.Status)
	require.NotNil(t, result.WinnerID)
	assert.Equal(t, winnerID, *result.WinnerID)
	require.NotNil(t, result.FinalPrice)
	assert.Equal(t, 4000.0, *result.FinalPrice)
}
