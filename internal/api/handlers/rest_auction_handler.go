package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/231Brooks/HBH-2-sub003/internal/api/middleware"
	"github.com/231Brooks/HBH-2-sub003/internal/services"
)

// RestAuctionHandler handles REST requests for auctions.
type RestAuctionHandler struct {
	auctionService   services.IAuctionService
	bidService       services.IBidService
	analyticsService services.IAnalyticsService
}

// NewRestAuctionHandler creates a new RestAuctionHandler.
func NewRestAuctionHandler(auctionService services.IAuctionService, bidService services.IBidService, analyticsService services.IAnalyticsService) *RestAuctionHandler {
	return &RestAuctionHandler{
		auctionService:   auctionService,
		bidService:       bidService,
		analyticsService: analyticsService,
	}
}

// createAuctionRequest is the body for POST /v1/auction.
type createAuctionRequest struct {
	Title        string   `json:"title" binding:"required"`
	MinimumBid   float64  `json:"minimum_bid" binding:"required"`
	ReservePrice *float64 `json:"reserve_price"`
	CurrencyCode string   `json:"currency_code"`
	EndAt        string   `json:"end_at" binding:"required"` // RFC 3339
}

// CreateAuction handles POST /v1/auction
func (h *RestAuctionHandler) CreateAuction(c *gin.Context) {
	ownerID, ok := requestUserID(c)
	if !ok {
		return
	}

	var req createAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	endAt, err := time.Parse(time.RFC3339, req.EndAt)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_at must be an RFC 3339 timestamp"})
		return
	}

	auction, err := h.auctionService.CreateAuction(c.Request.Context(), ownerID, req.Title, req.MinimumBid, req.ReservePrice, req.CurrencyCode, endAt)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, auction)
}

// GetAuctionByID handles GET /v1/auction/:id
func (h *RestAuctionHandler) GetAuctionByID(c *gin.Context) {
	auctionID, ok := parseAuctionID(c)
	if !ok {
		return
	}

	auction, err := h.auctionService.FindAuctionByID(c.Request.Context(), auctionID)
	if err != nil {
		if errors.Is(err, services.ErrAuctionNotFound) || errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Auction not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve auction"})
		}
		return
	}

	response := gin.H{"auction": auction}
	if !auction.Status.IsTerminal() {
		response["minimum_next_bid"] = h.auctionService.MinimumNextBid(c.Request.Context(), auction)
	}
	c.JSON(http.StatusOK, response)
}

// GetAuctionBids handles GET /v1/auction/:id/bids
func (h *RestAuctionHandler) GetAuctionBids(c *gin.Context) {
	auctionID, ok := parseAuctionID(c)
	if !ok {
		return
	}

	bids, err := h.bidService.FindBidsByAuction(c.Request.Context(), auctionID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve bids"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": bids})
}

// GetAuctionExtensions handles GET /v1/auction/:id/extensions
func (h *RestAuctionHandler) GetAuctionExtensions(c *gin.Context) {
	auctionID, ok := parseAuctionID(c)
	if !ok {
		return
	}

	extensions, err := h.bidService.FindExtensionsByAuction(c.Request.Context(), auctionID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve extensions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": extensions})
}

// GetAuctionAnalytics handles GET /v1/auction/:id/analytics
func (h *RestAuctionHandler) GetAuctionAnalytics(c *gin.Context) {
	auctionID, ok := parseAuctionID(c)
	if !ok {
		return
	}

	analytics, err := h.analyticsService.Get(c.Request.Context(), auctionID)
	if err != nil {
		if errors.Is(err, services.ErrAuctionNotFound) || errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Auction not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve analytics"})
		}
		return
	}

	c.JSON(http.StatusOK, analytics)
}

// SettleAuction handles POST /v1/auction/:id/settle (admin only).
// Settlement is normally driven by the background scheduler; this
// endpoint exists for operators to force a single auction through.
func (h *RestAuctionHandler) SettleAuction(c *gin.Context) {
	auctionID, ok := parseAuctionID(c)
	if !ok {
		return
	}

	result, err := h.auctionService.Settle(c.Request.Context(), auctionID, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAuctionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Auction not found"})
		case errors.Is(err, services.ErrNotYetEnded):
			c.JSON(http.StatusConflict, gin.H{"error": "Auction has not ended yet"})
		default:
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to settle auction"})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

// parseAuctionID extracts and validates the :id path parameter. On
// failure it writes the 400 response and returns ok=false.
func parseAuctionID(c *gin.Context) (primitive.ObjectID, bool) {
	auctionID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid auction ID format"})
		return primitive.NilObjectID, false
	}
	return auctionID, true
}

// requestUserID extracts the authenticated user's ID set by the auth
// middleware. On failure it writes the 401 response and returns ok=false.
func requestUserID(c *gin.Context) (primitive.ObjectID, bool) {
	userIDHex := c.GetString(middleware.ContextKeyUserID)
	userID, err := primitive.ObjectIDFromHex(userIDHex)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user identity"})
		return primitive.NilObjectID, false
	}
	return userID, true
}

// RegisterRestAuctionRoutes wires the public auction read routes.
func RegisterRestAuctionRoutes(r *gin.Engine, handler *RestAuctionHandler) {
	r.GET("/v1/auction/:id", handler.GetAuctionByID)
	r.GET("/v1/auction/:id/bids", handler.GetAuctionBids)
	r.GET("/v1/auction/:id/extensions", handler.GetAuctionExtensions)
	r.GET("/v1/auction/:id/analytics", handler.GetAuctionAnalytics)
}
