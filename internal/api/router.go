package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/231Brooks/HBH-2-sub003/internal/api/handlers"
	"github.com/231Brooks/HBH-2-sub003/internal/api/middleware"
	"github.com/231Brooks/HBH-2-sub003/internal/config"
	"github.com/231Brooks/HBH-2-sub003/internal/services"
)

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, db *mongo.Database, rdb *redis.Client, dispatcher services.NotificationDispatcher, configSvc services.IConfigService) *gin.Engine {
	// Initialize services needed by API handlers
	userService := services.NewUserService(db)
	auctionService := services.NewAuctionService(db, cfg, configSvc)
	bidService := services.NewBidService(db, cfg, configSvc)
	watchService := services.NewWatchService(db)
	analyticsService := services.NewAnalyticsService(db)
	notificationService := services.NewNotificationService(cfg, rdb, dispatcher, bidService, watchService, userService, configSvc)

	r := gin.Default()

	// Initialize Middleware
	rateLimiter := middleware.NewRateLimiterMiddleware(cfg, configSvc)

	// Apply global middleware first (order matters)
	r.Use(middleware.CORSMiddleware())
	r.Use(rateLimiter.Limit())

	// Initialize handlers
	restAuctionHandler := handlers.NewRestAuctionHandler(auctionService, bidService, analyticsService)
	restBidHandler := handlers.NewRestBidHandler(bidService, notificationService)
	restWatchHandler := handlers.NewRestWatchHandler(watchService)

	v1 := r.Group("/v1")
	{
		// Public Routes (Rate limiting already applied globally)
		v1.GET("/auction/:id", restAuctionHandler.GetAuctionByID)
		v1.GET("/auction/:id/bids", restAuctionHandler.GetAuctionBids)
		v1.GET("/auction/:id/extensions", restAuctionHandler.GetAuctionExtensions)
		v1.GET("/auction/:id/analytics", restAuctionHandler.GetAuctionAnalytics)

		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		// Authenticated Routes (already have rate limiting from global middleware)
		authRequired := v1.Group("/")
		authRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			authRequired.POST("/auction", restAuctionHandler.CreateAuction)
			authRequired.POST("/auction/:id/bid", restBidHandler.PlaceBid)
			authRequired.PUT("/auction/:id/watch", restWatchHandler.Watch)
			authRequired.DELETE("/auction/:id/watch", restWatchHandler.Unwatch)
		}

		// Admin Routes (already have rate limiting from global middleware)
		adminRequired := v1.Group("/admin")
		adminRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret), middleware.AdminMiddleware())
		{
			adminRequired.POST("/auction/:id/settle", restAuctionHandler.SettleAuction)
		}
	}

	return r
}

// SetupServiceRouter configures and returns the service Gin engine.
// Requires Redis for the getTestEmail endpoint and the settlement
// service for the forceSettlementPass method.
func SetupServiceRouter(cfg *config.Config, rdb *redis.Client, settlementSvc services.ISettlementService, auctionSvc services.IAuctionService, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			fmt.Println("Received shutdown command via Service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
				fmt.Println("Shutdown signal sent successfully.")
			default:
				fmt.Println("Shutdown channel already signaled or blocked.")
			}

		case "forceSettlementPass":
			report, err := settlementSvc.RunSettlementPass(c.Request.Context(), time.Now().UTC())
			if err != nil {
				log.Printf("Service API: forced settlement pass failed: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "data": report})

		case "settleAuction":
			var args []string // Expect ["auction_id"]
			if err := json.Unmarshal(req.Arguments, &args); err != nil || len(args) != 1 {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [auctionID]"})
				return
			}
			auctionID, err := primitive.ObjectIDFromHex(args[0])
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid auction ID format"})
				return
			}
			result, err := auctionSvc.Settle(c.Request.Context(), auctionID, time.Now().UTC())
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "data": result})

		case "getTestEmail":
			var args []string // Expect ["event_kind", "email"]
			if err := json.Unmarshal(req.Arguments, &args); err != nil || len(args) != 2 {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [eventKind, email]"})
				return
			}
			eventKind := args[0]
			emailAddr := args[1]
			redisKey := fmt.Sprintf("mockemail:%s:%s", emailAddr, eventKind)

			// Poll Redis briefly for the key
			var emailJsonData string
			var getErr error
			found := false
			for i := 0; i < 10; i++ { // Poll up to ~2 seconds
				emailJsonData, getErr = rdb.Get(c.Request.Context(), redisKey).Result()
				if getErr == nil {
					found = true
					rdb.Del(c.Request.Context(), redisKey) // Delete after fetching
					break
				}
				if getErr != redis.Nil {
					log.Printf("Service API: Error getting key %s from Redis: %v", redisKey, getErr)
					c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Redis error"})
					return
				}
				time.Sleep(200 * time.Millisecond)
			}

			if !found {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Test email not found in Redis for key %s", redisKey)})
				return
			}

			var emailData map[string]interface{}
			if err := json.Unmarshal([]byte(emailJsonData), &emailData); err != nil {
				log.Printf("Service API: Error unmarshalling email data from key %s: %v", redisKey, err)
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to parse stored email data"})
				return
			}

			c.JSON(http.StatusOK, gin.H{"success": true, "data": emailData})

		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}
