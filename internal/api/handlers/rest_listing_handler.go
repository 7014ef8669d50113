package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/owuorvin/jubabuy/internal/api/middleware"
	"github.com/owuorvin/jubabuy/internal/filters"
	"github.com/owuorvin/jubabuy/internal/models"
	"github.com/owuorvin/jubabuy/internal/services"
)

// DefaultFeaturedLimit is the per-kind size of the featured view.
const DefaultFeaturedLimit = 6

// RestListingHandler handles REST requests for listings.
type RestListingHandler struct {
	listingService services.IListingService
}

// NewRestListingHandler creates a new RestListingHandler.
func NewRestListingHandler(listingService services.IListingService) *RestListingHandler {
	return &RestListingHandler{listingService: listingService}
}

func kindParam(c *gin.Context) (models.Kind, bool) {
	kind, err := models.ParseKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown listing kind"})
		return "", false
	}
	return kind, true
}

// ListListings handles GET /v1/listings/:kind
func (h *RestListingHandler) ListListings(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	criteria, err := filters.Normalize(kind, c.Request.URL.Query())
	if err != nil {
		respondError(c, err, "Failed to fetch listings")
		return
	}

	env, err := h.listingService.FetchPage(c.Request.Context(), criteria)
	if err != nil {
		respondError(c, err, "Failed to fetch listings")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": env})
}

// GetListing handles GET /v1/listings/:kind/:idOrSlug
func (h *RestListingHandler) GetListing(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	listing, err := h.listingService.GetListing(c.Request.Context(), kind, c.Param("idOrSlug"))
	if err != nil {
		respondError(c, err, "Failed to retrieve listing")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": listing})
}

// GetFeatured handles GET /v1/featured
func (h *RestListingHandler) GetFeatured(c *gin.Context) {
	limit := DefaultFeaturedLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer", "field": "limit"})
			return
		}
		limit = min(n, filters.MaxLimit)
	}

	featured, err := h.listingService.FetchFeatured(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err, "Failed to fetch listings")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": featured})
}

// CreateListing handles POST /v1/listings/:kind. Only admins may choose the initial status.
func (h *RestListingHandler) CreateListing(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	var listing models.Listing
	if err := c.ShouldBindJSON(&listing); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing payload"})
		return
	}
	listing.Kind = kind
	if !c.GetBool(middleware.ContextKeyIsAdmin) {
		listing.Status = ""
	}

	created, err := h.listingService.CreateListing(c.Request.Context(), &listing)
	if err != nil {
		respondError(c, err, "Failed to create listing")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": created})
}

// UpdateListing handles PUT /v1/listings/:kind/:id. Status changes belong to the approval
// workflow and are ignored for non-admin callers.
func (h *RestListingHandler) UpdateListing(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	var patch models.Listing
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing payload"})
		return
	}
	if !c.GetBool(middleware.ContextKeyIsAdmin) {
		patch.Status = ""
	}

	updated, err := h.listingService.UpdateListing(c.Request.Context(), kind, c.Param("id"), &patch)
	if err != nil {
		respondError(c, err, "Failed to update listing")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": updated})
}

// DeleteListing handles DELETE /v1/listings/:kind/:id
func (h *RestListingHandler) DeleteListing(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if err := h.listingService.DeleteListing(c.Request.Context(), kind, id); err != nil {
		respondError(c, err, "Failed to delete listing")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"id": id, "deleted": true}})
}
