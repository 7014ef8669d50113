package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/owuorvin/jubabuy/internal/filters"
	"github.com/owuorvin/jubabuy/internal/models"
)

const headerRequestID = "X-Request-ID"

// UpstreamError is a failed call to the marketplace API. Status is zero when the
// request never got a response.
type UpstreamError struct {
	Status    int
	Message   string
	RequestID string
	Err       error
}

func (e *UpstreamError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status == 0 {
		return "marketplace unreachable: " + msg
	}
	if e.RequestID != "" {
		return fmt.Sprintf("marketplace returned %d: %s (request %s)", e.Status, msg, e.RequestID)
	}
	return fmt.Sprintf("marketplace returned %d: %s", e.Status, msg)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the same request may succeed.
func (e *UpstreamError) Retryable() bool {
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// IsNotFound reports whether err is a 404 from the marketplace.
func IsNotFound(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Status == http.StatusNotFound
}

// IMarketAPI is the marketplace surface the client consumes.
type IMarketAPI interface {
	FetchPage(ctx context.Context, c filters.Criteria) (*models.PageEnvelope, error)
	FetchFeatured(ctx context.Context, limit int) (models.Featured, error)
	GetListing(ctx context.Context, kind models.Kind, idOrSlug string) (*models.Listing, error)
	CreateListing(ctx context.Context, listing *models.Listing) (*models.Listing, error)
	UpdateListing(ctx context.Context, kind models.Kind, id string, patch *models.Listing) (*models.Listing, error)
	DeleteListing(ctx context.Context, kind models.Kind, id string) error
	ToggleFavorite(ctx context.Context, listingID string) (bool, error)
	ListFavorites(ctx context.Context) ([]string, error)
}

// API talks JSON to the marketplace HTTP API.
type API struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

// NewAPI creates a client for baseURL. Every request is bounded by timeout.
func NewAPI(baseURL string, timeout time.Duration) *API {
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// SetToken sets the bearer token sent with every request. Empty signs out.
func (a *API) SetToken(token string) {
	a.mu.Lock()
	a.token = token
	a.mu.Unlock()
}

// Token returns the current bearer token.
func (a *API) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

func listingsPath(kind models.Kind) string {
	return "/v1/listings/" + kind.Plural()
}

// FetchPage requests one page of a kind.
func (a *API) FetchPage(ctx context.Context, c filters.Criteria) (*models.PageEnvelope, error) {
	var env models.PageEnvelope
	if err := a.do(ctx, http.MethodGet, listingsPath(c.Kind), c.Query(), nil, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// FetchFeatured requests the featured listings of every kind.
func (a *API) FetchFeatured(ctx context.Context, limit int) (models.Featured, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	featured := models.Featured{}
	if err := a.do(ctx, http.MethodGet, "/v1/featured", q, nil, &featured); err != nil {
		return nil, err
	}
	return featured, nil
}

func (a *API) GetListing(ctx context.Context, kind models.Kind, idOrSlug string) (*models.Listing, error) {
	var l models.Listing
	if err := a.do(ctx, http.MethodGet, listingsPath(kind)+"/"+url.PathEscape(idOrSlug), nil, nil, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (a *API) CreateListing(ctx context.Context, listing *models.Listing) (*models.Listing, error) {
	var l models.Listing
	if err := a.do(ctx, http.MethodPost, listingsPath(listing.Kind), nil, listing, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (a *API) UpdateListing(ctx context.Context, kind models.Kind, id string, patch *models.Listing) (*models.Listing, error) {
	var l models.Listing
	if err := a.do(ctx, http.MethodPut, listingsPath(kind)+"/"+url.PathEscape(id), nil, patch, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (a *API) DeleteListing(ctx context.Context, kind models.Kind, id string) error {
	return a.do(ctx, http.MethodDelete, listingsPath(kind)+"/"+url.PathEscape(id), nil, nil, nil)
}

// ToggleFavorite flips the favorite and returns the server's resulting membership.
func (a *API) ToggleFavorite(ctx context.Context, listingID string) (bool, error) {
	var out struct {
		ID        string `json:"id"`
		Favorited bool   `json:"favorited"`
	}
	if err := a.do(ctx, http.MethodPost, "/v1/favorites/"+url.PathEscape(listingID)+"/toggle", nil, nil, &out); err != nil {
		return false, err
	}
	return out.Favorited, nil
}

func (a *API) ListFavorites(ctx context.Context) ([]string, error) {
	var out struct {
		IDs []string `json:"ids"`
	}
	if err := a.do(ctx, http.MethodGet, "/v1/favorites", nil, nil, &out); err != nil {
		return nil, err
	}
	if out.IDs == nil {
		out.IDs = []string{}
	}
	return out.IDs, nil
}

// do sends one request and decodes the {"data": ...} envelope into out. Error bodies
// carry {"error": msg} and, for rejected filters, {"field": name}.
func (a *API) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := a.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := a.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return &UpstreamError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &UpstreamError{Status: resp.StatusCode, Message: "failed to read response", Err: err}
	}

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
			Field string `json:"field"`
		}
		_ = json.Unmarshal(raw, &apiErr)
		if resp.StatusCode == http.StatusBadRequest && apiErr.Field != "" {
			return &filters.ValidationError{Field: apiErr.Field, Message: apiErr.Error}
		}
		if apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return &UpstreamError{
			Status:    resp.StatusCode,
			Message:   apiErr.Error,
			RequestID: resp.Header.Get(headerRequestID),
		}
	}

	if out == nil {
		return nil
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return &UpstreamError{Status: resp.StatusCode, Message: "malformed response body", Err: err}
	}
	if len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return &UpstreamError{Status: resp.StatusCode, Message: "malformed response data", Err: err}
	}
	return nil
}
