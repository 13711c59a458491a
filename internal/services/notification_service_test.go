package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/231Brooks/HBH-2-sub003/internal/models"
)

// --- Stubs ---

type dispatchCall struct {
	to      string
	kind    models.EventKind
	payload models.EventPayload
}

type recordingDispatcher struct {
	calls []dispatchCall
	err   error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, to string, kind models.EventKind, payload models.EventPayload) error {
	if d.err != nil {
		return d.err
	}
	d.calls = append(d.calls, dispatchCall{to: to, kind: kind, payload: payload})
	return nil
}

func (d *recordingDispatcher) kinds() []models.EventKind {
	kinds := make([]models.EventKind, 0, len(d.calls))
	for _, c := range d.calls {
		kinds = append(kinds, c.kind)
	}
	return kinds
}

type stubBidService struct {
	IBidService
	bids []models.Bid
}

func (s *stubBidService) FindBidsByAuction(ctx context.Context, auctionID primitive.ObjectID) ([]models.Bid, error) {
	return s.bids, nil
}

type stubWatchService struct {
	IWatchService
	watches []models.Watch
}

func (s *stubWatchService) FindWatchersByAuction(ctx context.Context, auctionID primitive.ObjectID) ([]models.Watch, error) {
	return s.watches, nil
}

type stubUserService struct {
	IUserService
	users map[primitive.ObjectID]*models.User
}

func (s *stubUserService) FindByIDs(ctx context.Context, userIDs []primitive.ObjectID) (map[primitive.ObjectID]*models.User, error) {
	out := make(map[primitive.ObjectID]*models.User)
	for _, id := range userIDs {
		if u, ok := s.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func newStubUsers(ids ...primitive.ObjectID) *stubUserService {
	users := make(map[primitive.ObjectID]*models.User)
	for i, id := range ids {
		users[id] = &models.User{ID: id, Email: string(rune('a'+i)) + "@example.com"}
	}
	return &stubUserService{users: users}
}

func testNotificationAuction(ownerID primitive.ObjectID) *models.Auction {
	current := 4500.0
	return &models.Auction{
		ID:           primitive.NewObjectID(),
		OwnerID:      ownerID,
		Title:        "Waterfront Cottage",
		CurrencyCode: "USD",
		Status:       models.AuctionActive,
		MinimumBid:   1000,
		CurrentBid:   &current,
		EndAt:        time.Now().UTC().Add(time.Hour),
	}
}

// --- Recipient computation ---

func TestComputeEndingRecipients_DedupsBiddersAndWatchers(t *testing.T) {
	bidderA := primitive.NewObjectID()
	bidderB := primitive.NewObjectID()
	watcher := primitive.NewObjectID()

	bids := []models.Bid{
		{BidderID: bidderA, Amount: 3000},
		{BidderID: bidderB, Amount: 4000},
		{BidderID: bidderA, Amount: 4500},
	}
	watches := []models.Watch{
		{UserID: bidderB}, // also a bidder: must not appear twice
		{UserID: watcher},
	}

	recipients := ComputeEndingRecipients(bids, watches)
	require.Len(t, recipients, 3)

	assert.Equal(t, bidderA, recipients[0].UserID)
	assert.Equal(t, 4500.0, recipients[0].HighestBid) // their own highest, not the first
	assert.Equal(t, bidderB, recipients[1].UserID)
	assert.Equal(t, 4000.0, recipients[1].HighestBid)
	assert.Equal(t, watcher, recipients[2].UserID)
	assert.True(t, recipients[2].IsWatcher)
	assert.Equal(t, 0.0, recipients[2].HighestBid)
}

func TestComputeSettlementRecipients_WinnerAndLosers(t *testing.T) {
	bidderX := primitive.NewObjectID()
	bidderY := primitive.NewObjectID()

	bids := []models.Bid{
		{BidderID: bidderX, Amount: 3000, Status: models.BidOutbid},
		{BidderID: bidderY, Amount: 4000, Status: models.BidOutbid},
		{BidderID: bidderX, Amount: 4500, Status: models.BidWinning},
	}

	winner, losers := ComputeSettlementRecipients(&bidderX, bids)
	require.NotNil(t, winner)
	assert.Equal(t, bidderX, winner.UserID)
	assert.Equal(t, 4500.0, winner.HighestBid)

	// Y's bid was outbid before the end; they still hear they lost.
	require.Len(t, losers, 1)
	assert.Equal(t, bidderY, losers[0].UserID)
	assert.Equal(t, 4000.0, losers[0].HighestBid)
}

func TestComputeSettlementRecipients_NoWinner(t *testing.T) {
	bidderX := primitive.NewObjectID()
	bids := []models.Bid{{BidderID: bidderX, Amount: 4000}}

	winner, losers := ComputeSettlementRecipients(nil, bids)
	assert.Nil(t, winner)
	require.Len(t, losers, 1)
	assert.Equal(t, bidderX, losers[0].UserID)
}

// --- Fan-out ---

func TestNotificationService_NotifyOutbid(t *testing.T) {
	cfg := testAuctionConfig()
	dispatcher := &recordingDispatcher{}
	outbidBidder := primitive.NewObjectID()
	users := newStubUsers(outbidBidder)

	svc := NewNotificationService(cfg, nil, dispatcher, &stubBidService{}, &stubWatchService{}, users, nil)
	auction := testNotificationAuction(primitive.NewObjectID())

	n, err := svc.NotifyOutbid(context.Background(), auction, outbidBidder, 4000)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, dispatcher.calls, 1)
	call := dispatcher.calls[0]
	assert.Equal(t, models.EventOutbid, call.kind)
	assert.Equal(t, 4000.0, call.payload.Amount)
	assert.Equal(t, 4500.0, call.payload.NewHighestBid)
	assert.Equal(t, 4600.0, call.payload.MinimumNextBid)
}

type stubConfigService struct {
	IConfigService
	overrides map[string]float64
}

func (s *stubConfigService) GetFloat64(ctx context.Context, key string, defaultValue float64) float64 {
	if v, ok := s.overrides[key]; ok {
		return v
	}
	return defaultValue
}

func TestNotificationService_NotifyOutbid_RuntimeIncrementOverride(t *testing.T) {
	cfg := testAuctionConfig()
	dispatcher := &recordingDispatcher{}
	outbidBidder := primitive.NewObjectID()
	users := newStubUsers(outbidBidder)
	configSvc := &stubConfigService{overrides: map[string]float64{"BID_INCREMENT": 250}}

	svc := NewNotificationService(cfg, nil, dispatcher, &stubBidService{}, &stubWatchService{}, users, configSvc)
	auction := testNotificationAuction(primitive.NewObjectID())

	// The hint must reflect the overridden increment, not the static one.
	_, err := svc.NotifyOutbid(context.Background(), auction, outbidBidder, 4000)
	require.NoError(t, err)
	require.Len(t, dispatcher.calls, 1)
	assert.Equal(t, 4750.0, dispatcher.calls[0].payload.MinimumNextBid)
}

func TestNotificationService_NotifyEnding(t *testing.T) {
	cfg := testAuctionConfig()
	dispatcher := &recordingDispatcher{}
	bidder := primitive.NewObjectID()
	watcher := primitive.NewObjectID()
	users := newStubUsers(bidder, watcher)

	bidSvc := &stubBidService{bids: []models.Bid{{BidderID: bidder, Amount: 4500}}}
	watchSvc := &stubWatchService{watches: []models.Watch{{UserID: watcher}}}

	svc := NewNotificationService(cfg, nil, dispatcher, bidSvc, watchSvc, users, nil)
	auction := testNotificationAuction(primitive.NewObjectID())

	n, err := svc.NotifyEnding(context.Background(), auction, models.EventEndingSoon)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Rejects non-ending kinds outright.
	_, err = svc.NotifyEnding(context.Background(), auction, models.EventWon)
	assert.Error(t, err)
}

func TestNotificationService_NotifySettled_Sold(t *testing.T) {
	cfg := testAuctionConfig()
	dispatcher := &recordingDispatcher{}
	ownerID := primitive.NewObjectID()
	bidderX := primitive.NewObjectID()
	bidderY := primitive.NewObjectID()
	users := newStubUsers(ownerID, bidderX, bidderY)

	bidSvc := &stubBidService{bids: []models.Bid{
		{BidderID: bidderX, Amount: 3000, Status: models.BidOutbid},
		{BidderID: bidderY, Amount: 4000, Status: models.BidOutbid},
		{BidderID: bidderX, Amount: 4500, Status: models.BidWinning},
	}}

	svc := NewNotificationService(cfg, nil, dispatcher, bidSvc, &stubWatchService{}, users, nil)

	auction := testNotificationAuction(ownerID)
	auction.Status = models.AuctionEndedSold
	finalPrice := 4500.0
	result := &SettlementResult{
		AuctionID:    auction.ID,
		Status:       models.AuctionEndedSold,
		WinnerID:     &bidderX,
		FinalPrice:   &finalPrice,
		ReserveMet:   true,
		Transitioned: true,
	}

	n, err := svc.NotifySettled(context.Background(), auction, result)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.ElementsMatch(t, []models.EventKind{models.EventWon, models.EventLost, models.EventSoldToOwner}, dispatcher.kinds())
}

func TestNotificationService_NotifySettled_ReserveNotMet(t *testing.T) {
	cfg := testAuctionConfig()
	dispatcher := &recordingDispatcher{}
	ownerID := primitive.NewObjectID()
	bidder := primitive.NewObjectID()
	users := newStubUsers(ownerID, bidder)

	bidSvc := &stubBidService{bids: []models.Bid{
		{BidderID: bidder, Amount: 4000, Status: models.BidExpired},
	}}

	svc := NewNotificationService(cfg, nil, dispatcher, bidSvc, &stubWatchService{}, users, nil)

	auction := testNotificationAuction(ownerID)
	auction.Status = models.AuctionEndedReserveNotMet
	result := &SettlementResult{
		AuctionID:    auction.ID,
		Status:       models.AuctionEndedReserveNotMet,
		Transitioned: true,
	}

	n, err := svc.NotifySettled(context.Background(), auction, result)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []models.EventKind{models.EventLost, models.EventNoSale}, dispatcher.kinds())
}

func TestNotificationService_SkipsRecipientsWithoutContact(t *testing.T) {
	cfg := testAuctionConfig()
	dispatcher := &recordingDispatcher{}
	outbidBidder := primitive.NewObjectID()
	// User record missing entirely.
	users := &stubUserService{users: map[primitive.ObjectID]*models.User{}}

	svc := NewNotificationService(cfg, nil, dispatcher, &stubBidService{}, &stubWatchService{}, users, nil)
	auction := testNotificationAuction(primitive.NewObjectID())

	n, err := svc.NotifyOutbid(context.Background(), auction, outbidBidder, 4000)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, dispatcher.calls)
}
