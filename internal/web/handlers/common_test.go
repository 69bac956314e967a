package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/facegate/internal/facematch"
)

func TestRespondJSON_SetsContentType(t *testing.T) {
	recorder := httptest.NewRecorder()
	data := map[string]string{"status": "ok"}

	respondJSON(recorder, http.StatusOK, data)

	contentType := recorder.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("expected Content-Type 'application/json', got '%s'", contentType)
	}
}

func TestRespondJSON_NilData(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondJSON(recorder, http.StatusNoContent, nil)

	if recorder.Code != http.StatusNoContent {
		t.Errorf("expected status %d, got %d", http.StatusNoContent, recorder.Code)
	}
	if recorder.Body.Len() != 0 {
		t.Errorf("expected empty body for nil data, got '%s'", recorder.Body.String())
	}
}

func TestRespondError_ContainsErrorKey(t *testing.T) {
	recorder := httptest.NewRecorder()
	errorMessage := "something went wrong"

	respondError(recorder, http.StatusBadRequest, errorMessage)

	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if result["error"] != errorMessage {
		t.Errorf("expected error '%s', got '%s'", errorMessage, result["error"])
	}
	if _, ok := result["code"]; ok {
		t.Error("plain errors carry no code")
	}
}

func TestRespondEngineError(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondEngineError(recorder, "req-1", fmt.Errorf("enrol: %w", facematch.ErrTooBlurry))

	assertStatusCode(t, recorder, http.StatusUnprocessableEntity)
	var result ErrorResponse
	parseJSONResponse(t, recorder, &result)
	if result.Code != "too_blurry" || result.RequestID != "req-1" {
		t.Errorf("unexpected body %+v", result)
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{facematch.ErrInvalidImage, http.StatusBadRequest},
		{facematch.ErrInvalidIdentity, http.StatusBadRequest},
		{facematch.ErrUnknownIdentity, http.StatusNotFound},
		{facematch.ErrDuplicateFace, http.StatusConflict},
		{facematch.ErrNoFaceDetected, http.StatusUnprocessableEntity},
		{facematch.ErrLowContrast, http.StatusUnprocessableEntity},
		{facematch.ErrFeatureExtraction, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: list: %w", facematch.ErrProfileStore, errors.New("down")), http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{facematch.ErrConfigurationMismatch, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(facematch.Code(tc.err), func(t *testing.T) {
			if got := errorStatus(tc.err); got != tc.status {
				t.Errorf("errorStatus(%v) = %d, want %d", tc.err, got, tc.status)
			}
		})
	}
}

func TestIsDecision(t *testing.T) {
	if !isDecision(facematch.ErrInsufficientConsensus) || !isDecision(facematch.ErrPoorLighting) {
		t.Error("rejections are decisions")
	}
	if isDecision(facematch.ErrProfileStore) || isDecision(facematch.ErrConfigurationMismatch) {
		t.Error("failures are not decisions")
	}
}

func TestSanitizeForLog(t *testing.T) {
	if got := sanitizeForLog("alice\r\nFAKE entry"); got != "aliceFAKE entry" {
		t.Errorf("sanitizeForLog = %q", got)
	}
}

func TestHealthCheck(t *testing.T) {
	recorder := httptest.NewRecorder()
	HealthCheck(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	assertContentType(t, recorder, "application/json")
}
