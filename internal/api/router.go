package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/owuorvin/jubabuy/internal/api/handlers"
	"github.com/owuorvin/jubabuy/internal/api/middleware"
	"github.com/owuorvin/jubabuy/internal/cache"
	"github.com/owuorvin/jubabuy/internal/config"
	"github.com/owuorvin/jubabuy/internal/services"
)

// Services bundles what the public router serves.
type Services struct {
	Listings  services.IListingService
	Favorites services.IFavoriteService
}

// SetupRouter configures and returns the main Gin engine. The returned limiter must be
// stopped on shutdown.
func SetupRouter(cfg *config.Config, svc Services) (*gin.Engine, *middleware.RateLimiterMiddleware) {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)
	// Toggling is cheap to spam from a UI; hold it to a tighter bucket.
	rateLimiter.Override("/v1/favorites/:id/toggle", middleware.Limits{
		Rate:  max(1, cfg.RateLimitHardRefillRate/4),
		Burst: max(1, cfg.RateLimitHardBucketSize/4),
	})

	// Apply global middleware first (order matters)
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(middleware.OptionalAuthMiddleware(cfg.JwtSecret))
	r.Use(rateLimiter.Limit())

	listingHandler := handlers.NewRestListingHandler(svc.Listings)
	favoriteHandler := handlers.NewRestFavoriteHandler(svc.Favorites)

	v1 := r.Group("/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		// Public Routes
		v1.GET("/listings/:kind", listingHandler.ListListings)
		v1.GET("/listings/:kind/:idOrSlug", listingHandler.GetListing)
		v1.GET("/featured", listingHandler.GetFeatured)

		// Authenticated Routes
		authRequired := v1.Group("/")
		authRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			authRequired.POST("/listings/:kind", listingHandler.CreateListing)
			authRequired.PUT("/listings/:kind/:id", listingHandler.UpdateListing)
			authRequired.DELETE("/listings/:kind/:id", middleware.AdminMiddleware(), listingHandler.DeleteListing)

			authRequired.GET("/favorites", favoriteHandler.ListFavorites)
			authRequired.POST("/favorites/:id/toggle", favoriteHandler.ToggleFavorite)
		}
	}

	return r, rateLimiter
}

// SetupServiceRouter configures and returns the service Gin engine. pages may be nil when
// no Redis page cache is configured.
func SetupServiceRouter(pages cache.IPageCache, shutdownChan chan<- struct{}) *gin.Engine {
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
		case "flushCache":
			if pages == nil {
				c.JSON(http.StatusConflict, gin.H{"success": false, "error": "Page cache is not configured"})
				return
			}
			// Optional argument: ["prefix"]; no argument flushes every page.
			var args []string
			if len(req.Arguments) > 0 && string(req.Arguments) != "null" {
				if err := json.Unmarshal(req.Arguments, &args); err != nil || len(args) > 1 {
					c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [prefix]"})
					return
				}
			}
			ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
			defer cancel()

			var n int
			var err error
			if len(args) == 1 && args[0] != "" {
				n, err = pages.InvalidatePrefix(ctx, args[0])
			} else {
				n, err = pages.Flush(ctx)
			}
			if err != nil {
				log.Printf("Service API: flushCache failed: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Redis error"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "result": gin.H{"removed": n}})
		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}
