package handlers_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/owuorvin/jubabuy/internal/api/handlers"
	"github.com/owuorvin/jubabuy/internal/api/middleware"
	"github.com/owuorvin/jubabuy/internal/filters"
	"github.com/owuorvin/jubabuy/internal/models"
	"github.com/owuorvin/jubabuy/internal/services"
)

func setupListingRouter(svc *MockListingService, isAdmin bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := handlers.NewRestListingHandler(svc)
	r := gin.New()
	r.Use(middleware.RequestIDMiddleware())
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextKeyUserID, "U1")
		c.Set(middleware.ContextKeyIsAdmin, isAdmin)
	})
	r.GET("/v1/listings/:kind", handler.ListListings)
	r.GET("/v1/listings/:kind/:idOrSlug", handler.GetListing)
	r.POST("/v1/listings/:kind", handler.CreateListing)
	r.PUT("/v1/listings/:kind/:id", handler.UpdateListing)
	r.DELETE("/v1/listings/:kind/:id", handler.DeleteListing)
	r.GET("/v1/featured", handler.GetFeatured)
	return r
}

func serve(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestRestListingHandler_ListListings_Success(t *testing.T) {
	svc := new(MockListingService)
	r := setupListingRouter(svc, false)

	env := &models.PageEnvelope{
		Items: []models.Listing{
			{ID: "D1", Kind: models.KindDwelling, Title: "Two bed in Kilimani", Price: 90000, Dwelling: &models.Dwelling{Bedrooms: 2}},
		},
		Pagination: models.NewPagination(1, 12, 30),
	}
	svc.On("FetchPage", mock.Anything, mock.MatchedBy(func(c filters.Criteria) bool {
		return c.Kind == models.KindDwelling &&
			c.Page == 1 && c.Limit == 12 &&
			c.Values["priceMax"] == int64(100000) &&
			c.Values["bedrooms"] == int64(2) &&
			c.Values["category"] == "sale"
	})).Return(env, nil).Once()

	w := serve(r, "GET", "/v1/listings/dwellings?category=sale&priceMax=100000&bedrooms=2&page=1&limit=12", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	data := body["data"].(map[string]interface{})
	pagination := data["pagination"].(map[string]interface{})
	assert.Equal(t, float64(30), pagination["total"])
	assert.Equal(t, float64(3), pagination["pages"])
	assert.Len(t, data["items"], 1)
	svc.AssertExpectations(t)
}

func TestRestListingHandler_ListListings_ValidationError(t *testing.T) {
	svc := new(MockListingService)
	r := setupListingRouter(svc, false)

	w := serve(r, "GET", "/v1/listings/vehicles?yearMin=recent", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "yearMin", body["field"])
	svc.AssertNotCalled(t, "FetchPage", mock.Anything, mock.Anything)
}

func TestRestListingHandler_ListListings_UnknownKind(t *testing.T) {
	svc := new(MockListingService)
	r := setupListingRouter(svc, false)

	w := serve(r, "GET", "/v1/listings/boats", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRestListingHandler_ListListings_UpstreamError(t *testing.T) {
	svc := new(MockListingService)
	r := setupListingRouter(svc, false)
	svc.On("FetchPage", mock.Anything, mock.Anything).
		Return(nil, &services.UpstreamError{Op: "count parcels", Err: errors.New("connection reset")})

	w := serve(r, "GET", "/v1/listings/parcels", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to fetch listings", decode(t, w)["error"])
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))
}

func TestRestListingHandler_GetListing(t *testing.T) {
	svc := new(MockListingService)
	r := setupListingRouter(svc, false)

	listing := &models.Listing{ID: "V1", Kind: models.KindVehicle, Slug: "toyota-prado-v1", Title: "Toyota Prado"}
	svc.On("GetListing", mock.Anything, models.KindVehicle, "toyota-prado-v1").Return(listing, nil)
	svc.On("GetListing", mock.Anything, models.KindVehicle, "missing").Return(nil, services.ErrNotFound)

	w := serve(r, "GET", "/v1/listings/vehicle/toyota-prado-v1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "V1", data["id"])

	w = serve(r, "GET", "/v1/listings/vehicle/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, decode(t, w)["error"], "Listing not found")
}

func TestRestListingHandler_CreateListing_NonAdminStatusIgnored(t *testing.T) {
	svc := new(MockListingService)
	r := setupListingRouter(svc, false)

	svc.On("CreateListing", mock.Anything, mock.MatchedBy(func(l *models.Listing) bool {
		return l.Kind == models.KindParcel && l.Status == "" && l.Parcel != nil
	})).Return(&models.Listing{ID: "P1", Kind: models.KindParcel, Status: models.StatusPending}, nil).Once()

	w := serve(r, "POST", "/v1/listings/parcels", map[string]any{
		"title":  "Quarter acre in Juba",
		"price":  1500000,
		"status": "active",
		"parcel": map[string]any{"area": 0.25, "area_unit": "acres"},
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "pending", data["status"])
	svc.AssertExpectations(t)
}

func TestRestListingHandler_CreateListing_Invalid(t *testing.T) {
	svc := new(MockListingService)
	r := setupListingRouter(svc, true)
	svc.On("CreateListing", mock.Anything, mock.Anything).
		Return(nil, errors.Join(services.ErrInvalidListing, errors.New("title is required")))

	w := serve(r, "POST", "/v1/listings/dwellings", map[string]any{"dwelling": map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(r, "POST", "/v1/listings/dwellings", "not an object")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRestListingHandler_UpdateAndDelete(t *testing.T) {
	svc := new(MockListingService)
	r := setupListingRouter(svc, true)

	svc.On("UpdateListing", mock.Anything, models.KindDwelling, "D1", mock.MatchedBy(func(p *models.Listing) bool {
		return p.Status == models.StatusSold
	})).Return(&models.Listing{ID: "D1", Status: models.StatusSold}, nil)
	svc.On("DeleteListing", mock.Anything, models.KindDwelling, "D1").Return(nil)
	svc.On("DeleteListing", mock.Anything, models.KindDwelling, "D2").Return(services.ErrNotFound)

	w := serve(r, "PUT", "/v1/listings/dwellings/D1", map[string]any{"title": "Sold", "status": "sold", "dwelling": map[string]any{}})
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, "DELETE", "/v1/listings/dwellings/D1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["data"].(map[string]interface{})["deleted"])

	w = serve(r, "DELETE", "/v1/listings/dwellings/D2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	svc.AssertExpectations(t)
}

func TestRestListingHandler_GetFeatured(t *testing.T) {
	svc := new(MockListingService)
	r := setupListingRouter(svc, false)

	featured := models.Featured{
		models.KindDwelling: {{ID: "D1"}},
		models.KindVehicle:  {},
		models.KindParcel:   {{ID: "P1"}, {ID: "P2"}},
	}
	svc.On("FetchFeatured", mock.Anything, handlers.DefaultFeaturedLimit).Return(featured, nil).Once()
	svc.On("FetchFeatured", mock.Anything, filters.MaxLimit).Return(featured, nil).Once()

	w := serve(r, "GET", "/v1/featured", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Len(t, data["parcel"], 2)

	w = serve(r, "GET", "/v1/featured?limit=500", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, "GET", "/v1/featured?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertExpectations(t)
}
