package middleware

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/owuorvin/jubabuy/internal/config"
)

// Limits is one token bucket configuration.
type Limits struct {
	Rate  int // tokens per second
	Burst int
}

// clientLimiter stores rate limiters for a specific client.
type clientLimiter struct {
	softLimiter *rate.Limiter
	hardLimiter *rate.Limiter
	lastSeen    time.Time
}

// RateLimiterMiddleware manages rate limiting for API endpoints. Every caller is held to
// the hard bucket; anonymous callers are also held to the smaller soft bucket.
type RateLimiterMiddleware struct {
	clients   map[string]*clientLimiter
	mu        sync.Mutex
	soft      Limits
	hard      Limits
	overrides map[string]Limits // route path -> hard limits
	now       func() time.Time
	done      chan struct{}
	stopOnce  sync.Once
}

// NewRateLimiterMiddleware creates a new RateLimiterMiddleware.
func NewRateLimiterMiddleware(cfg *config.Config) *RateLimiterMiddleware {
	rm := &RateLimiterMiddleware{
		clients:   make(map[string]*clientLimiter),
		soft:      Limits{Rate: cfg.RateLimitSoftRefillRate, Burst: cfg.RateLimitSoftBucketSize},
		hard:      Limits{Rate: cfg.RateLimitHardRefillRate, Burst: cfg.RateLimitHardBucketSize},
		overrides: make(map[string]Limits),
		now:       time.Now,
		done:      make(chan struct{}),
	}
	// Start a background goroutine to clean up old client entries
	go rm.cleanupLoop(10 * time.Minute)
	return rm
}

// Override sets per-route hard limits, keyed by gin's FullPath (e.g. "/v1/favorites/:id/toggle").
func (rm *RateLimiterMiddleware) Override(fullPath string, l Limits) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.overrides[fullPath] = l
}

// Stop ends the cleanup goroutine.
func (rm *RateLimiterMiddleware) Stop() {
	rm.stopOnce.Do(func() { close(rm.done) })
}

// clientIdentifier is the user id when authenticated, else IP plus the client's session header.
func clientIdentifier(c *gin.Context) string {
	if userID := c.GetString(ContextKeyUserID); userID != "" {
		return "user|" + userID
	}
	return "anon|" + c.ClientIP() + "|" + c.GetHeader("X-Client-ID")
}

// getClientLimiter retrieves or creates the rate limiters for a given client and route.
func (rm *RateLimiterMiddleware) getClientLimiter(identifier, route string) *clientLimiter {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	hard := rm.hard
	if o, ok := rm.overrides[route]; ok {
		hard = o
		identifier += "|" + route
	}

	limiter, exists := rm.clients[identifier]
	if !exists {
		limiter = &clientLimiter{
			softLimiter: rate.NewLimiter(rate.Limit(rm.soft.Rate), rm.soft.Burst),
			hardLimiter: rate.NewLimiter(rate.Limit(hard.Rate), hard.Burst),
		}
		rm.clients[identifier] = limiter
	}
	limiter.lastSeen = rm.now()
	return limiter
}

func (rm *RateLimiterMiddleware) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-rm.done:
			return
		case <-ticker.C:
			if n := rm.cleanup(30 * time.Minute); n > 0 {
				log.Printf("Rate limiter cleanup removed %d old client entries.", n)
			}
		}
	}
}

// cleanup removes clients not seen within idle and returns how many were dropped.
func (rm *RateLimiterMiddleware) cleanup(idle time.Duration) int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	count := 0
	now := rm.now()
	for id, client := range rm.clients {
		if now.Sub(client.lastSeen) > idle {
			delete(rm.clients, id)
			count++
		}
	}
	return count
}

// Limit creates the Gin middleware handler.
func (rm *RateLimiterMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientKey := clientIdentifier(c)
		route := c.FullPath()
		limiter := rm.getClientLimiter(clientKey, route)

		if !limiter.hardLimiter.Allow() {
			log.Printf("WARN: hard rate limit exceeded for client %s on %s %s", clientKey, c.Request.Method, route)
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}

		authenticated := c.GetString(ContextKeyUserID) != ""
		if !authenticated && !limiter.softLimiter.Allow() {
			log.Printf("WARN: soft rate limit exceeded for anonymous client %s on %s %s", clientKey, c.Request.Method, route)
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests, sign in or slow down"})
			return
		}

		c.Next()
	}
}
