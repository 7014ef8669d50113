package main_test

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/owuorvin/jubabuy/internal/auth"
	"github.com/owuorvin/jubabuy/internal/models"
)

const (
	testAppBinary         = "./jubabuy_test_app"
	testCliBinary         = "./marketctl_test_app"
	testAppPort           = "8089"
	testServiceApiPortApi = "8091"
	testAppURL            = "http://localhost:" + testAppPort
	testServiceApiURL     = "http://localhost:" + testServiceApiPortApi
	testJwtSecret         = "integration-test-secret"
	startupTimeout        = 15 * time.Second
	pingEndpoint          = testAppURL + "/v1/ping"
)

// TestMain builds both binaries, starts the API process on the in-memory store and
// stops it through the service API once the tests are done.
func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		log.Println("Skipping integration tests in short mode")
		return
	}
	defer func() {
		log.Println("Integration Test Teardown: Cleaning up test binaries...")
		_ = os.Remove(testAppBinary)
		_ = os.Remove(testCliBinary)
	}()

	log.Println("Integration Test Setup: Building application...")
	for _, build := range [][]string{
		{"build", "-o", testAppBinary, "."},
		{"build", "-o", testCliBinary, "./cmd/marketctl"},
	} {
		out, err := exec.Command("go", build...).CombinedOutput()
		if err != nil {
			log.Printf("Failed to build %s: %v\nOutput:\n%s", build[2], err, string(out))
			return
		}
	}

	apiCmd := exec.Command(testAppBinary, "-m", "api")
	apiCmd.Env = append(os.Environ(),
		"STORE_DRIVER=memory",
		"API_PORT="+testAppPort,
		"SERVICE_API_PORT="+testServiceApiPortApi,
		"JWT_SECRET="+testJwtSecret,
		"GIN_MODE=release",
		"REDIS_ADDR=",
		"RATE_LIMIT_SOFT_BUCKET_SIZE=100",
		"RATE_LIMIT_SOFT_REFILL_RATE=100",
		"RATE_LIMIT_HARD_BUCKET_SIZE=200",
		"RATE_LIMIT_HARD_REFILL_RATE=200",
	)
	apiCmd.Stderr = os.Stderr
	apiCmd.Stdout = os.Stdout

	log.Println("Integration Test Setup: Starting API process...")
	if err := apiCmd.Start(); err != nil {
		log.Printf("Failed to start API process: %v", err)
		return
	}
	log.Printf("Integration Test Setup: API process started (PID: %d)...", apiCmd.Process.Pid)

	defer func() {
		log.Println("Integration Test Teardown: Requesting shutdown via Service API...")
		resp, err := http.Post(testServiceApiURL+"/api", "application/json", strings.NewReader(`{"method":"shutdown"}`))
		if err != nil {
			log.Printf("Integration Test Teardown: Service API unreachable: %v. Sending SIGTERM.", err)
			_ = apiCmd.Process.Signal(syscall.SIGTERM)
		} else {
			resp.Body.Close()
		}
		done := make(chan error, 1)
		go func() { done <- apiCmd.Wait() }()
		select {
		case <-done:
		case <-time.After(20 * time.Second):
			log.Println("Integration Test Teardown: API process did not exit. Killing.")
			_ = apiCmd.Process.Kill()
		}
		log.Println("Integration Test Teardown: Application process stopped.")
	}()

	log.Printf("Integration Test Setup: Waiting for API application to become ready at %s...", pingEndpoint)
	startTime := time.Now()
	ready := false
	for time.Since(startTime) < startupTimeout {
		resp, err := http.Get(pingEndpoint)
		if err == nil {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK && string(body) == "pong" {
				ready = true
				break
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	if !ready {
		log.Printf("Application failed to start within %v", startupTimeout)
		return
	}

	if err := seedListings(); err != nil {
		log.Printf("Failed to seed listings: %v", err)
		return
	}

	exitCode := m.Run()
	log.Printf("Integration Test Teardown: Tests finished with exit code %d.", exitCode)
}

func adminToken() (string, error) {
	return auth.GenerateJWT("integration-admin", true, testJwtSecret, time.Hour)
}

// doJSON sends body as JSON and decodes the "data" member of the response into out.
func doJSON(method, url, token string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out == nil {
		return resp.StatusCode, nil
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return resp.StatusCode, err
	}
	if len(envelope.Data) == 0 {
		return resp.StatusCode, nil
	}
	return resp.StatusCode, json.Unmarshal(envelope.Data, out)
}

// seedListings creates 15 active vehicles through the API, oldest first.
func seedListings() error {
	token, err := adminToken()
	if err != nil {
		return err
	}
	makes := []string{"Toyota", "Nissan", "Isuzu"}
	for i := 0; i < 15; i++ {
		l := models.Listing{
			Kind:   models.KindVehicle,
			Title:  fmt.Sprintf("%s number %d", makes[i%3], i+1),
			Price:  int64(10000 + i*1000),
			Status: models.StatusActive,
			Vehicle: &models.Vehicle{
				Make: makes[i%3], Model: "Pickup", Year: 2010 + i, Mileage: 100000 - i*5000,
			},
		}
		status, err := doJSON(http.MethodPost, testAppURL+"/v1/listings/vehicles", token, l, &models.Listing{})
		if err != nil {
			return err
		}
		if status != http.StatusCreated {
			return fmt.Errorf("create vehicle %d: status %d", i+1, status)
		}
		time.Sleep(2 * time.Millisecond)
	}
	return nil
}

func TestIntegration_Ping(t *testing.T) {
	resp, err := http.Get(pingEndpoint)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong", string(body))
}

func TestIntegration_ListVehiclesFiltered(t *testing.T) {
	var env models.PageEnvelope
	status, err := doJSON(http.MethodGet, testAppURL+"/v1/listings/vehicles?make=Toyota&yearMin=2012&limit=2", "", nil, &env)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)

	// Toyotas are numbers 1, 4, 7, 10, 13; 2012 onwards leaves 4.
	assert.Equal(t, models.Pagination{Page: 1, Limit: 2, Total: 4, Pages: 2}, env.Pagination)
	require.Len(t, env.Items, 2)
	assert.Equal(t, "Toyota number 13", env.Items[0].Title)
	for _, l := range env.Items {
		assert.Equal(t, "Toyota", l.Vehicle.Make)
	}
}

func TestIntegration_InvalidFilterIsRejected(t *testing.T) {
	resp, err := http.Get(testAppURL + "/v1/listings/vehicles?yearMin=recent")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "yearMin", body["field"])
}

func TestIntegration_FavoritesRequireAuth(t *testing.T) {
	status, err := doJSON(http.MethodPost, testAppURL+"/v1/favorites/any/toggle", "", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestIntegration_MarketctlBrowse(t *testing.T) {
	prefs := filepath.Join(t.TempDir(), "prefs.db")
	cmd := exec.Command(testCliBinary, "--server", testAppURL, "--prefs", prefs, "--format", "json",
		"browse", "vehicles", "-f", "make=Nissan", "--pages", "2", "-f", "limit=2")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	require.NoError(t, cmd.Run(), stderr.String())

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Total   int64            `json:"total"`
			HasNext bool             `json:"has_next"`
			Items   []models.Listing `json:"items"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &resp), stdout.String())
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, int64(5), resp.Data.Total)
	assert.Len(t, resp.Data.Items, 4)
	assert.True(t, resp.Data.HasNext)
}

func TestIntegration_MarketctlRejectsBadFilter(t *testing.T) {
	cmd := exec.Command(testCliBinary, "--server", testAppURL, "--prefs", filepath.Join(t.TempDir(), "p.db"),
		"browse", "vehicles", "-f", "yearMin=recent")
	err := cmd.Run()
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.ExitCode())
}
