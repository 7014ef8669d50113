package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/owuorvin/jubabuy/internal/api/middleware"
	"github.com/owuorvin/jubabuy/internal/filters"
	"github.com/owuorvin/jubabuy/internal/services"
)

// respondError maps service and normalizer errors to HTTP responses. Anything else,
// services.UpstreamError included, is a 500 carrying fallback.
func respondError(c *gin.Context, err error, fallback string) {
	var verr *filters.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message, "field": verr.Field})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
	case errors.Is(err, services.ErrInvalidListing):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("ERROR: request %s: %v", middleware.RequestID(c), err)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
