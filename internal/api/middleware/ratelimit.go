package middleware

import (
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/231Brooks/HBH-2-sub003/internal/config"
	"github.com/231Brooks/HBH-2-sub003/internal/services"
)

// clientLimiter stores rate limiters for a specific client.
type clientLimiter struct {
	softLimiter *rate.Limiter
	hardLimiter *rate.Limiter
	lastSeen    time.Time
}

// RateLimiterMiddleware manages rate limiting for API endpoints.
// The soft limiter flags bursty clients in the logs; only the hard
// limiter rejects requests.
type RateLimiterMiddleware struct {
	clients       map[string]*clientLimiter
	mu            sync.Mutex
	cfg           *config.Config          // For defaults
	configService services.IConfigService // For runtime overrides
}

// NewRateLimiterMiddleware creates a new RateLimiterMiddleware.
func NewRateLimiterMiddleware(cfg *config.Config, configService services.IConfigService) *RateLimiterMiddleware {
	rm := &RateLimiterMiddleware{
		clients:       make(map[string]*clientLimiter),
		cfg:           cfg,
		configService: configService,
	}
	// Start a background goroutine to clean up old client entries
	go rm.cleanupClients()
	return rm
}

// getClientIdentifier creates a unique key based on IP and the SPA session header.
func getClientIdentifier(c *gin.Context) string {
	ip := c.ClientIP()
	spaSession := c.GetHeader("X-SPA")
	return fmt.Sprintf("%s|%s", ip, spaSession)
}

// getClientLimiter retrieves or creates the rate limiters for a given client identifier.
func (rm *RateLimiterMiddleware) getClientLimiter(identifier string, softRate, softBurst int, hardRate, hardBurst int) *clientLimiter {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	limiter, exists := rm.clients[identifier]
	if !exists {
		limiter = &clientLimiter{
			softLimiter: rate.NewLimiter(rate.Limit(softRate), softBurst),
			hardLimiter: rate.NewLimiter(rate.Limit(hardRate), hardBurst),
		}
		rm.clients[identifier] = limiter
		log.Printf("Created new rate limiter entry for client: %s", identifier)
	}
	limiter.lastSeen = time.Now()
	return limiter
}

// cleanupClients periodically removes old client entries from the map.
func (rm *RateLimiterMiddleware) cleanupClients() {
	for {
		time.Sleep(10 * time.Minute)
		rm.mu.Lock()
		count := 0
		for id, client := range rm.clients {
			if time.Since(client.lastSeen) > 30*time.Minute {
				delete(rm.clients, id)
				count++
			}
		}
		rm.mu.Unlock()
		if count > 0 {
			log.Printf("Rate limiter cleanup removed %d old client entries.", count)
		}
	}
}

// Limit creates the Gin middleware handler.
func (rm *RateLimiterMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientKey := getClientIdentifier(c)
		endpoint := c.FullPath()

		// Runtime overrides let operators tighten limits without a restart.
		ctx := c.Request.Context()
		softRate := rm.configService.GetInt(ctx, "ratelimit.soft.refill_rate", rm.cfg.RateLimitSoftRefillRate)
		softBurst := rm.configService.GetInt(ctx, "ratelimit.soft.bucket_size", rm.cfg.RateLimitSoftBucketSize)
		hardRate := rm.configService.GetInt(ctx, "ratelimit.hard.refill_rate", rm.cfg.RateLimitHardRefillRate)
		hardBurst := rm.configService.GetInt(ctx, "ratelimit.hard.bucket_size", rm.cfg.RateLimitHardBucketSize)

		limiter := rm.getClientLimiter(clientKey, softRate, softBurst, hardRate, hardBurst)

		if !limiter.hardLimiter.Allow() {
			log.Printf("Hard rate limit exceeded for client: %s on %s", clientKey, endpoint)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}

		if !limiter.softLimiter.Allow() {
			log.Printf("Soft rate limit exceeded for client: %s on %s", clientKey, endpoint)
		}

		c.Next()
	}
}
