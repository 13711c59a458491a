package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/231Brooks/HBH-2-sub003/internal/services"
)

// RestBidHandler handles REST requests for placing bids.
type RestBidHandler struct {
	bidService          services.IBidService
	notificationService services.INotificationService
}

// NewRestBidHandler creates a new RestBidHandler.
func NewRestBidHandler(bidService services.IBidService, notificationService services.INotificationService) *RestBidHandler {
	return &RestBidHandler{
		bidService:          bidService,
		notificationService: notificationService,
	}
}

// placeBidRequest is the body for POST /v1/auction/:id/bid.
type placeBidRequest struct {
	Amount float64 `json:"amount" binding:"required"`
}

// PlaceBid handles POST /v1/auction/:id/bid
func (h *RestBidHandler) PlaceBid(c *gin.Context) {
	auctionID, ok := parseAuctionID(c)
	if !ok {
		return
	}
	bidderID, ok := requestUserID(c)
	if !ok {
		return
	}

	var req placeBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	result, err := h.bidService.PlaceBid(c.Request.Context(), auctionID, bidderID, req.Amount, time.Now().UTC())
	if err != nil {
		if invalid, ok := services.IsInvalidBid(err); ok {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":            invalid.Reason,
				"minimum_next_bid": invalid.MinimumNextBid,
			})
			return
		}
		switch {
		case errors.Is(err, services.ErrAuctionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Auction not found"})
		case errors.Is(err, services.ErrAuctionClosed):
			c.JSON(http.StatusConflict, gin.H{"error": "Auction is closed to bidding"})
		default:
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to place bid"})
		}
		return
	}

	// The bid stands regardless of whether the outbid notice lands.
	if result.OutbidBidderID != nil {
		if _, err := h.notificationService.NotifyOutbid(c.Request.Context(), result.Auction, *result.OutbidBidderID, result.OutbidAmount); err != nil {
			log.Printf("ERROR: failed to dispatch outbid notification for auction %s: %v", auctionID.Hex(), err)
		}
	}

	response := gin.H{
		"bid":              result.Bid,
		"auction":          result.Auction,
		"minimum_next_bid": result.MinimumNextBid,
		"extended":         result.Extended,
	}
	if result.Extension != nil {
		response["extension"] = result.Extension
	}
	c.JSON(http.StatusCreated, response)
}
