package handlers_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/231Brooks/HBH-2-sub003/internal/models"
	"github.com/231Brooks/HBH-2-sub003/internal/services"
)

// --- Mocks ---

// MockAuctionService
type MockAuctionService struct {
	mock.Mock
}

func (m *MockAuctionService) CreateAuction(ctx context.Context, ownerID primitive.ObjectID, title string, minimumBid float64, reservePrice *float64, currencyCode string, endAt time.Time) (*models.Auction, error) {
	args := m.Called(ctx, ownerID, title, minimumBid, reservePrice, currencyCode, endAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Auction), args.Error(1)
}

func (m *MockAuctionService) FindAuctionByID(ctx context.Context, auctionID primitive.ObjectID) (*models.Auction, error) {
	args := m.Called(ctx, auctionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Auction), args.Error(1)
}

func (m *MockAuctionService) MinimumNextBid(ctx context.Context, auction *models.Auction) float64 {
	args := m.Called(ctx, auction)
	return args.Get(0).(float64)
}

func (m *MockAuctionService) Settle(ctx context.Context, auctionID primitive.ObjectID, now time.Time) (*services.SettlementResult, error) {
	args := m.Called(ctx, auctionID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.SettlementResult), args.Error(1)
}

func (m *MockAuctionService) FindDueAuctions(ctx context.Context, now time.Time) ([]models.Auction, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Auction), args.Error(1)
}

func (m *MockAuctionService) FindAuctionsEndingWithin(ctx context.Context, now time.Time, window time.Duration) ([]models.Auction, error) {
	args := m.Called(ctx, now, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Auction), args.Error(1)
}

// MockBidService
type MockBidService struct {
	mock.Mock
}

func (m *MockBidService) PlaceBid(ctx context.Context, auctionID, bidderID primitive.ObjectID, amount float64, now time.Time) (*services.PlaceBidResult, error) {
	args := m.Called(ctx, auctionID, bidderID, amount, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.PlaceBidResult), args.Error(1)
}

func (m *MockBidService) CurrentHighest(ctx context.Context, auctionID primitive.ObjectID) (float64, error) {
	args := m.Called(ctx, auctionID)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockBidService) FindBidsByAuction(ctx context.Context, auctionID primitive.ObjectID) ([]models.Bid, error) {
	args := m.Called(ctx, auctionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Bid), args.Error(1)
}

func (m *MockBidService) FindExtensionsByAuction(ctx context.Context, auctionID primitive.ObjectID) ([]models.Extension, error) {
	args := m.Called(ctx, auctionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Extension), args.Error(1)
}

// MockAnalyticsService
type MockAnalyticsService struct {
	mock.Mock
}

func (m *MockAnalyticsService) Recompute(ctx context.Context, auctionID primitive.ObjectID) (*models.AuctionAnalytics, error) {
	args := m.Called(ctx, auctionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AuctionAnalytics), args.Error(1)
}

func (m *MockAnalyticsService) Get(ctx context.Context, auctionID primitive.ObjectID) (*models.AuctionAnalytics, error) {
	args := m.Called(ctx, auctionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AuctionAnalytics), args.Error(1)
}

// MockNotificationService
type MockNotificationService struct {
	mock.Mock
}

func (m *MockNotificationService) NotifyOutbid(ctx context.Context, auction *models.Auction, outbidBidderID primitive.ObjectID, outbidAmount float64) (int, error) {
	args := m.Called(ctx, auction, outbidBidderID, outbidAmount)
	return args.Int(0), args.Error(1)
}

func (m *MockNotificationService) NotifyEnding(ctx context.Context, auction *models.Auction, kind models.EventKind) (int, error) {
	args := m.Called(ctx, auction, kind)
	return args.Int(0), args.Error(1)
}

func (m *MockNotificationService) NotifySettled(ctx context.Context, auction *models.Auction, result *services.SettlementResult) (int, error) {
	args := m.Called(ctx, auction, result)
	return args.Int(0), args.Error(1)
}

// MockWatchService
type MockWatchService struct {
	mock.Mock
}

func (m *MockWatchService) Watch(ctx context.Context, auctionID, userID primitive.ObjectID) (*models.Watch, error) {
	args := m.Called(ctx, auctionID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Watch), args.Error(1)
}

func (m *MockWatchService) Unwatch(ctx context.Context, auctionID, userID primitive.ObjectID) error {
	args := m.Called(ctx, auctionID, userID)
	return args.Error(0)
}

func (m *MockWatchService) FindWatchersByAuction(ctx context.Context, auctionID primitive.ObjectID) ([]models.Watch, error) {
	args := m.Called(ctx, auctionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Watch), args.Error(1)
}
