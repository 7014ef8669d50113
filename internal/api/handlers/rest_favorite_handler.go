package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/owuorvin/jubabuy/internal/api/middleware"
	"github.com/owuorvin/jubabuy/internal/services"
)

// RestFavoriteHandler serves the signed-in user's favorites.
type RestFavoriteHandler struct {
	favoriteService services.IFavoriteService
}

func NewRestFavoriteHandler(favoriteService services.IFavoriteService) *RestFavoriteHandler {
	return &RestFavoriteHandler{favoriteService: favoriteService}
}

// ListFavorites handles GET /v1/favorites
func (h *RestFavoriteHandler) ListFavorites(c *gin.Context) {
	userID := c.GetString(middleware.ContextKeyUserID)
	ids, err := h.favoriteService.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "Failed to fetch favorites")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"ids": ids}})
}

// ToggleFavorite handles POST /v1/favorites/:id/toggle and returns the authoritative state.
func (h *RestFavoriteHandler) ToggleFavorite(c *gin.Context) {
	userID := c.GetString(middleware.ContextKeyUserID)
	listingID := c.Param("id")
	if listingID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Listing id required"})
		return
	}
	on, err := h.favoriteService.Toggle(c.Request.Context(), userID, listingID)
	if err != nil {
		respondError(c, err, "Failed to update favorite")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"id": listingID, "favorited": on}})
}
