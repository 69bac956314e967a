package handlers

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/facematch"
	"github.com/kozaktomas/facegate/internal/locator"
)

// testConfig creates a minimal config for testing
func testConfig() *config.Config {
	profile := config.DefaultSecurityProfile()
	profile.Features.Resolution = 64
	profile.Features.GridSize = 8
	profile.Features.GaborKernelSize = 11
	return &config.Config{
		Profile: profile,
		Server:  config.ServerConfig{MaxUploadBytes: 1 << 20},
	}
}

// testEngine creates an engine over an empty in-memory store
func testEngine(t *testing.T, cfg *config.Config) *facematch.Engine {
	t.Helper()
	e, err := facematch.New(cfg.Profile, database.NewMemoryStore(), facematch.WithLocator(locator.FullFrame{}))
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return e
}

// textureImage returns a well-lit face-sized crop with a sinusoidal texture
func textureImage(period float64) *image.Gray {
	const size = 96
	g := image.NewGray(image.Rect(0, 0, size, size))
	for y := range size {
		for x := range size {
			v := 128 + 60*math.Sin(2*math.Pi*float64(x)/period) + 60*math.Sin(2*math.Pi*float64(y)/(period*1.4))
			g.SetGray(x, y, color.Gray{Y: uint8(math.Max(0, math.Min(255, v)))})
		}
	}
	return g
}

// flatImage returns a uniformly gray crop the quality gate rejects
func flatImage() *image.Gray {
	g := image.NewGray(image.Rect(0, 0, 96, 96))
	for i := range g.Pix {
		g.Pix[i] = 128
	}
	return g
}

// encodePNG encodes img as PNG bytes
func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// oversizedPNG returns a valid PNG whose header claims width x height
// pixels. Only the header is consistent: decoding the pixels would fail.
func oversizedPNG(t *testing.T, width, height uint32) []byte {
	t.Helper()
	data := encodePNG(t, image.NewGray(image.Rect(0, 0, 1, 1)))
	// Signature (8), IHDR length (4) and type (4), then width and height.
	binary.BigEndian.PutUint32(data[16:], width)
	binary.BigEndian.PutUint32(data[20:], height)
	binary.BigEndian.PutUint32(data[29:], crc32.ChecksumIEEE(data[12:29]))
	return data
}

// multipartBody wraps data in a multipart form under the image field
func multipartBody(t *testing.T, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(imageFormField, filename)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// enroll puts img as identity through the handler and checks the status
func enroll(t *testing.T, h *ProfilesHandler, identity string, img image.Image, want int) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/profiles/"+url.PathEscape(identity), bytes.NewReader(encodePNG(t, img)))
	req.Header.Set("Content-Type", "image/png")
	req = requestWithChiParams(req, map[string]string{"identity": identity})
	recorder := httptest.NewRecorder()
	h.Enroll(recorder, req)
	assertStatusCode(t, recorder, want)
	return recorder
}

var testLogger = zap.NewNop()

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertErrorCode checks if the response is a JSON error with the expected code
func assertErrorCode(t *testing.T, recorder *httptest.ResponseRecorder, expectedCode string) {
	t.Helper()
	var result ErrorResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result.Code != expectedCode {
		t.Errorf("expected code '%s', got '%s' (%s)", expectedCode, result.Code, result.Error)
	}
}
