// Package handlers implements the JSON API over the recognition engine.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kozaktomas/facegate/internal/facematch"
)

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}

// respondEngineError sends an engine error with its reason code and the
// status errorStatus picks for it.
func respondEngineError(w http.ResponseWriter, requestID string, err error) {
	respondJSON(w, errorStatus(err), ErrorResponse{
		Error:     err.Error(),
		Code:      facematch.Code(err),
		RequestID: requestID,
	})
}

// errorStatus maps an engine error to an HTTP status.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, facematch.ErrInvalidImage), errors.Is(err, facematch.ErrInvalidIdentity):
		return http.StatusBadRequest
	case errors.Is(err, facematch.ErrUnknownIdentity):
		return http.StatusNotFound
	case errors.Is(err, facematch.ErrDuplicateFace):
		return http.StatusConflict
	case errors.Is(err, facematch.ErrNoFaceDetected), facematch.IsQualityRejection(err),
		errors.Is(err, facematch.ErrFeatureExtraction):
		return http.StatusUnprocessableEntity
	case errors.Is(err, facematch.ErrProfileStore):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// isDecision reports whether err is a recognition outcome rather than a
// request or server failure. Such outcomes are answered with 200.
func isDecision(err error) bool {
	return errors.Is(err, facematch.ErrNoFaceDetected) ||
		facematch.IsQualityRejection(err) ||
		errors.Is(err, facematch.ErrFeatureExtraction) ||
		errors.Is(err, facematch.ErrNoEnrolledProfiles) ||
		errors.Is(err, facematch.ErrInsufficientConsensus)
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
