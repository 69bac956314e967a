package web

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/facematch"
	"github.com/kozaktomas/facegate/internal/locator"
	"github.com/kozaktomas/facegate/internal/web/middleware"
)

const testAPIKey = "secret-key"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	profile := config.DefaultSecurityProfile()
	profile.Features.Resolution = 64
	profile.Features.GridSize = 8
	profile.Features.GaborKernelSize = 11
	cfg := &config.Config{
		Profile: profile,
		Server: config.ServerConfig{
			MaxUploadBytes: 1 << 20,
			APIKey:         testAPIKey,
		},
	}
	engine, err := facematch.New(profile, database.NewMemoryStore(), facematch.WithLocator(locator.FullFrame{}))
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	srv := httptest.NewServer(NewServer(cfg, engine, zap.NewNop(), "127.0.0.1", 0).Router())
	t.Cleanup(srv.Close)
	return srv
}

func texturePNG(t *testing.T) []byte {
	t.Helper()
	g := image.NewGray(image.Rect(0, 0, 96, 96))
	for y := range 96 {
		for x := range 96 {
			v := 128 + 60*math.Sin(2*math.Pi*float64(x)/10) + 60*math.Sin(2*math.Pi*float64(y)/14)
			g.SetGray(x, y, color.Gray{Y: uint8(math.Max(0, math.Min(255, v)))})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, g); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func do(t *testing.T, method, url string, body []byte, key string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "image/png")
	}
	if key != "" {
		req.Header.Set(middleware.APIKeyHeader, key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServer_HealthWithoutKey(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/api/v1/health", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}
	if resp.Header.Get(middleware.RequestIDHeader) == "" {
		t.Error("request id header missing")
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestServer_RequiresAPIKey(t *testing.T) {
	srv := newTestServer(t)

	for _, key := range []string{"", "wrong"} {
		resp := do(t, http.MethodGet, srv.URL+"/api/v1/stats", nil, key)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("key %q: status = %d, want 401", key, resp.StatusCode)
		}
	}
	resp := do(t, http.MethodGet, srv.URL+"/api/v1/stats", nil, testAPIKey)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestServer_EnrolRecognizeRevoke(t *testing.T) {
	srv := newTestServer(t)
	img := texturePNG(t)

	resp := do(t, http.MethodPut, srv.URL+"/api/v1/profiles/alice", img, testAPIKey)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("enrol status = %d", resp.StatusCode)
	}

	resp = do(t, http.MethodPost, srv.URL+"/api/v1/recognize", img, testAPIKey)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("recognize status = %d", resp.StatusCode)
	}
	var result struct {
		Accepted bool   `json:"accepted"`
		Identity string `json:"identity"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if !result.Accepted || result.Identity != "alice" {
		t.Errorf("unexpected result %+v", result)
	}

	resp = do(t, http.MethodDelete, srv.URL+"/api/v1/profiles/alice", nil, testAPIKey)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("revoke status = %d", resp.StatusCode)
	}

	resp = do(t, http.MethodGet, srv.URL+"/api/v1/stats", nil, testAPIKey)
	var stats struct {
		Enrolled int `json:"enrolled"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.Enrolled != 0 {
		t.Errorf("enrolled = %d after revoke", stats.Enrolled)
	}
}
