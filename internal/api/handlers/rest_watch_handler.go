package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/231Brooks/HBH-2-sub003/internal/services"
)

// RestWatchHandler handles REST requests for auction watches.
type RestWatchHandler struct {
	watchService services.IWatchService
}

// NewRestWatchHandler creates a new RestWatchHandler.
func NewRestWatchHandler(watchService services.IWatchService) *RestWatchHandler {
	return &RestWatchHandler{watchService: watchService}
}

// Watch handles PUT /v1/auction/:id/watch
func (h *RestWatchHandler) Watch(c *gin.Context) {
	auctionID, ok := parseAuctionID(c)
	if !ok {
		return
	}
	userID, ok := requestUserID(c)
	if !ok {
		return
	}

	watch, err := h.watchService.Watch(c.Request.Context(), auctionID, userID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to watch auction"})
		return
	}

	c.JSON(http.StatusOK, watch)
}

// Unwatch handles DELETE /v1/auction/:id/watch
func (h *RestWatchHandler) Unwatch(c *gin.Context) {
	auctionID, ok := parseAuctionID(c)
	if !ok {
		return
	}
	userID, ok := requestUserID(c)
	if !ok {
		return
	}

	if err := h.watchService.Unwatch(c.Request.Context(), auctionID, userID); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to unwatch auction"})
		return
	}

	c.Status(http.StatusNoContent)
}
