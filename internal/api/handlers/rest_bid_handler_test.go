package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/231Brooks/HBH-2-sub003/internal/api/handlers"
	"github.com/231Brooks/HBH-2-sub003/internal/models"
	"github.com/231Brooks/HBH-2-sub003/internal/services"
)

func placeBidBody(t *testing.T, amount float64) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{"amount": amount})
	assert.NoError(t, err)
	return bytes.NewReader(body)
}

func TestRestBidHandler_PlaceBid_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockBidSvc := new(MockBidService)
	mockNotifySvc := new(MockNotificationService)
	handler := handlers.NewRestBidHandler(mockBidSvc, mockNotifySvc)

	bidderID := primitive.NewObjectID()
	r := gin.New()
	r.POST("/v1/auction/:id/bid", authAs(bidderID), handler.PlaceBid)

	auction := activeAuction()
	result := &services.PlaceBidResult{
		Bid: &models.Bid{
			ID:        primitive.NewObjectID(),
			AuctionID: auction.ID,
			BidderID:  bidderID,
			Amount:    2600,
			Status:    models.BidActive,
			CreatedAt: time.Now().UTC(),
		},
		Auction:        auction,
		MinimumNextBid: 2700,
	}
	mockBidSvc.On("PlaceBid", mock.Anything, auction.ID, bidderID, 2600.0, mock.AnythingOfType("time.Time")).Return(result, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", fmt.Sprintf("/v1/auction/%s/bid", auction.ID.Hex()), placeBidBody(t, 2600))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var respBody map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &respBody)
	assert.NoError(t, err)
	assert.Equal(t, 2700.0, respBody["minimum_next_bid"])
	assert.Equal(t, false, respBody["extended"])
	_, hasExtension := respBody["extension"]
	assert.False(t, hasExtension)
	mockBidSvc.AssertExpectations(t)
	mockNotifySvc.AssertNotCalled(t, "NotifyOutbid", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRestBidHandler_PlaceBid_OutbidNotification(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockBidSvc := new(MockBidService)
	mockNotifySvc := new(MockNotificationService)
	handler := handlers.NewRestBidHandler(mockBidSvc, mockNotifySvc)

	bidderID := primitive.NewObjectID()
	outbidBidderID := primitive.NewObjectID()
	r := gin.New()
	r.POST("/v1/auction/:id/bid", authAs(bidderID), handler.PlaceBid)

	auction := activeAuction()
	result := &services.PlaceBidResult{
		Bid:            &models.Bid{ID: primitive.NewObjectID(), AuctionID: auction.ID, BidderID: bidderID, Amount: 2600},
		Auction:        auction,
		MinimumNextBid: 2700,
		OutbidBidderID: &outbidBidderID,
		OutbidAmount:   2500,
	}
	mockBidSvc.On("PlaceBid", mock.Anything, auction.ID, bidderID, 2600.0, mock.AnythingOfType("time.Time")).Return(result, nil)
	mockNotifySvc.On("NotifyOutbid", mock.Anything, auction, outbidBidderID, 2500.0).Return(1, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", fmt.Sprintf("/v1/auction/%s/bid", auction.ID.Hex()), placeBidBody(t, 2600))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	mockBidSvc.AssertExpectations(t)
	mockNotifySvc.AssertExpectations(t)
}

func TestRestBidHandler_PlaceBid_ExtensionInResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockBidSvc := new(MockBidService)
	handler := handlers.NewRestBidHandler(mockBidSvc, new(MockNotificationService))

	bidderID := primitive.NewObjectID()
	r := gin.New()
	r.POST("/v1/auction/:id/bid", authAs(bidderID), handler.PlaceBid)

	auction := activeAuction()
	previousEnd := auction.EndAt
	auction.EndAt = previousEnd.Add(10 * time.Minute)
	result := &services.PlaceBidResult{
		Bid:            &models.Bid{ID: primitive.NewObjectID(), AuctionID: auction.ID, BidderID: bidderID, Amount: 2600},
		Auction:        auction,
		MinimumNextBid: 2700,
		Extended:       true,
		Extension: &models.Extension{
			ID:              primitive.NewObjectID(),
			AuctionID:       auction.ID,
			OriginalEndDate: previousEnd,
			NewEndDate:      auction.EndAt,
		},
	}
	mockBidSvc.On("PlaceBid", mock.Anything, auction.ID, bidderID, 2600.0, mock.AnythingOfType("time.Time")).Return(result, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", fmt.Sprintf("/v1/auction/%s/bid", auction.ID.Hex()), placeBidBody(t, 2600))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var respBody map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &respBody)
	assert.NoError(t, err)
	assert.Equal(t, true, respBody["extended"])
	_, hasExtension := respBody["extension"]
	assert.True(t, hasExtension)
	mockBidSvc.AssertExpectations(t)
}

func TestRestBidHandler_PlaceBid_TooLow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockBidSvc := new(MockBidService)
	handler := handlers.NewRestBidHandler(mockBidSvc, new(MockNotificationService))

	bidderID := primitive.NewObjectID()
	r := gin.New()
	r.POST("/v1/auction/:id/bid", authAs(bidderID), handler.PlaceBid)

	auctionID := primitive.NewObjectID()
	invalid := &services.InvalidBidError{Reason: "bid must be at least the current highest plus the increment", MinimumNextBid: 2600}
	mockBidSvc.On("PlaceBid", mock.Anything, auctionID, bidderID, 2550.0, mock.AnythingOfType("time.Time")).Return(nil, invalid)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", fmt.Sprintf("/v1/auction/%s/bid", auctionID.Hex()), placeBidBody(t, 2550))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var respBody map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &respBody)
	assert.NoError(t, err)
	assert.Equal(t, invalid.Reason, respBody["error"])
	assert.Equal(t, 2600.0, respBody["minimum_next_bid"])
	mockBidSvc.AssertExpectations(t)
}

func TestRestBidHandler_PlaceBid_AuctionClosed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockBidSvc := new(MockBidService)
	handler := handlers.NewRestBidHandler(mockBidSvc, new(MockNotificationService))

	bidderID := primitive.NewObjectID()
	r := gin.New()
	r.POST("/v1/auction/:id/bid", authAs(bidderID), handler.PlaceBid)

	auctionID := primitive.NewObjectID()
	mockBidSvc.On("PlaceBid", mock.Anything, auctionID, bidderID, 2600.0, mock.AnythingOfType("time.Time")).Return(nil, services.ErrAuctionClosed)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", fmt.Sprintf("/v1/auction/%s/bid", auctionID.Hex()), placeBidBody(t, 2600))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	mockBidSvc.AssertExpectations(t)
}

func TestRestBidHandler_PlaceBid_NotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockBidSvc := new(MockBidService)
	handler := handlers.NewRestBidHandler(mockBidSvc, new(MockNotificationService))

	bidderID := primitive.NewObjectID()
	r := gin.New()
	r.POST("/v1/auction/:id/bid", authAs(bidderID), handler.PlaceBid)

	auctionID := primitive.NewObjectID()
	mockBidSvc.On("PlaceBid", mock.Anything, auctionID, bidderID, 2600.0, mock.AnythingOfType("time.Time")).Return(nil, services.ErrAuctionNotFound)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", fmt.Sprintf("/v1/auction/%s/bid", auctionID.Hex()), placeBidBody(t, 2600))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	mockBidSvc.AssertExpectations(t)
}

func TestRestBidHandler_PlaceBid_MissingAmount(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := handlers.NewRestBidHandler(new(MockBidService), new(MockNotificationService))

	r := gin.New()
	r.POST("/v1/auction/:id/bid", authAs(primitive.NewObjectID()), handler.PlaceBid)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", fmt.Sprintf("/v1/auction/%s/bid", primitive.NewObjectID().Hex()), bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
