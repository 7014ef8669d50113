package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/owuorvin/jubabuy/internal/api"
	"github.com/owuorvin/jubabuy/internal/config"
	"github.com/owuorvin/jubabuy/internal/models"
	"github.com/owuorvin/jubabuy/internal/services"
	"github.com/owuorvin/jubabuy/internal/store"
)

const cliTestSecret = "cli-test-secret"

type harness struct {
	server string
	prefs  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	m := store.NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 30; i++ {
		require.NoError(t, m.InsertListing(ctx, &models.Listing{
			ID:        fmt.Sprintf("D%02d", i+1),
			Kind:      models.KindDwelling,
			Slug:      fmt.Sprintf("house-%d", i+1),
			Title:     fmt.Sprintf("House %d in Munuki", i+1),
			Price:     int64(30000 + i*1000),
			Status:    models.StatusActive,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
			Dwelling:  &models.Dwelling{Category: "sale", Bedrooms: 2},
		}))
	}

	cfg := &config.Config{
		JwtSecret:               cliTestSecret,
		AllowedOrigins:          []string{"*"},
		RateLimitSoftRefillRate: 1000, RateLimitSoftBucketSize: 1000,
		RateLimitHardRefillRate: 1000, RateLimitHardBucketSize: 1000,
	}
	r, limiter := api.SetupRouter(cfg, api.Services{
		Listings:  services.NewListingService(m),
		Favorites: services.NewFavoriteService(m),
	})
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		limiter.Stop()
	})
	return &harness{server: srv.URL, prefs: filepath.Join(t.TempDir(), "prefs.db")}
}

func (h *harness) run(args ...string) (stdout, stderr string, code int) {
	var out, errOut bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	args = append([]string{"--server", h.server, "--prefs", h.prefs}, args...)
	code = Execute(context.Background(), cmd, args)
	return out.String(), errOut.String(), code
}

func decodeData(t *testing.T, stdout string, into any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp), stdout)
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, into))
}

func TestBrowse_StitchesRequestedPages(t *testing.T) {
	h := newHarness(t)

	stdout, stderr, code := h.run("--format", "json", "browse", "dwellings", "-f", "bedrooms=2", "-f", "category=sale", "--pages", "2")
	require.Equal(t, ExitSuccess, code, stderr)

	var got browseResult
	decodeData(t, stdout, &got)
	assert.Equal(t, models.KindDwelling, got.Kind)
	assert.Equal(t, map[string]string{"bedrooms": "2", "category": "sale"}, got.Filters)
	assert.Equal(t, 2, got.Page)
	assert.Equal(t, 3, got.Pages)
	assert.Equal(t, int64(30), got.Total)
	assert.True(t, got.HasNext)
	require.Len(t, got.Items, 24)
	assert.Equal(t, "D30", got.Items[0].ID, "newest first")
	assert.Equal(t, "D07", got.Items[23].ID)
}

func TestBrowse_TextOutput(t *testing.T) {
	h := newHarness(t)

	stdout, _, code := h.run("browse", "dwelling", "--pages", "5")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "House 30 in Munuki")
	assert.Contains(t, stdout, "30 of 30 dwellings (page 3 of 3)")
	assert.NotContains(t, stdout, "More available")
}

func TestBrowse_RejectsInvalidFilterLocally(t *testing.T) {
	h := newHarness(t)

	stdout, _, code := h.run("--format", "json", "browse", "vehicles", "-f", "yearMin=recent")
	assert.Equal(t, ExitCommandError, code)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "yearMin", resp.Error.Field)
}

func TestBrowse_BadArguments(t *testing.T) {
	h := newHarness(t)

	_, stderr, code := h.run("browse", "boats")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "unknown listing kind")

	_, _, code = h.run("--format", "xml", "browse", "dwellings")
	assert.Equal(t, ExitCommandError, code)

	_, _, code = h.run("browse", "dwellings", "--pages", "nope")
	assert.Equal(t, ExitCommandError, code)
}

func TestShow(t *testing.T) {
	h := newHarness(t)

	stdout, _, code := h.run("show", "dwellings", "house-3")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "D03")
	assert.Contains(t, stdout, "2bd/0ba sale")

	_, stderr, code := h.run("show", "dwellings", "missing")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stderr, `no dwelling "missing"`)
}

func TestAuthAndFavoritesFlow(t *testing.T) {
	h := newHarness(t)

	_, _, code := h.run("whoami")
	assert.Equal(t, ExitFailure, code)
	_, _, code = h.run("favorite", "toggle", "D01")
	assert.Equal(t, ExitCommandError, code, "toggle needs a signed-in user")

	tokenOut, stderr, code := h.run("dev-token", "--user", "U7", "--secret", cliTestSecret)
	require.Equal(t, ExitSuccess, code, stderr)
	token := strings.TrimSpace(tokenOut)

	stdout, stderr, code := h.run("login", "--token", token)
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, stdout, "Signed in as U7 (user)")

	stdout, _, code = h.run("whoami")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "U7")

	stdout, stderr, code = h.run("--format", "json", "favorite", "toggle", "D05")
	require.Equal(t, ExitSuccess, code, stderr)
	var toggled favoriteResult
	decodeData(t, stdout, &toggled)
	assert.Equal(t, favoriteResult{ID: "D05", Favorited: true}, toggled)

	// Read back from prefs, then from the server.
	stdout, _, code = h.run("favorite", "list")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "D05\n", stdout)
	stdout, _, code = h.run("favorite", "list", "--refresh")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "D05\n", stdout)

	stdout, _, code = h.run("browse", "dwellings")
	require.Equal(t, ExitSuccess, code)
	assert.Regexp(t, `\*\s+D05`, stdout)

	_, _, code = h.run("logout")
	require.Equal(t, ExitSuccess, code)
	_, _, code = h.run("whoami")
	assert.Equal(t, ExitFailure, code)
	stdout, _, _ = h.run("favorite", "list")
	assert.Equal(t, "No favorites.\n", stdout)
}

func TestLogin_RejectsGarbageToken(t *testing.T) {
	h := newHarness(t)

	_, stderr, code := h.run("login", "--token", "not-a-token")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "login failed")
}

func TestDevToken_RequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	h := newHarness(t)

	_, _, code := h.run("dev-token", "--user", "U1")
	assert.Equal(t, ExitCommandError, code)
}
