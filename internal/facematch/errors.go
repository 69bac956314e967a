package facematch

import (
	"context"
	"errors"

	"github.com/kozaktomas/facegate/internal/features"
	"github.com/kozaktomas/facegate/internal/quality"
)

// Rejection reasons. Every error returned by the engine wraps exactly one
// of these (or a context error); classify with errors.Is.
var (
	ErrInvalidImage   = errors.New("image could not be decoded")
	ErrNoFaceDetected = errors.New("no face detected")

	ErrFaceTooSmall = quality.ErrFaceTooSmall
	ErrTooBlurry    = quality.ErrTooBlurry
	ErrPoorLighting = quality.ErrPoorLighting
	ErrLowContrast  = quality.ErrLowContrast

	ErrFeatureExtraction = features.ErrExtraction

	ErrNoEnrolledProfiles    = errors.New("no enrolled profiles")
	ErrConfigurationMismatch = errors.New("enrolled profile does not match the extractor configuration")
	ErrInsufficientConsensus = errors.New("insufficient consensus")

	ErrInvalidIdentity = errors.New("invalid identity")
	ErrUnknownIdentity = errors.New("identity is not enrolled")
	ErrDuplicateFace   = errors.New("face already enrolled under another identity")
	ErrProfileStore    = errors.New("profile store failure")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrInvalidImage, "invalid_image"},
	{ErrNoFaceDetected, "no_face_detected"},
	{ErrFaceTooSmall, "face_too_small"},
	{ErrTooBlurry, "too_blurry"},
	{ErrPoorLighting, "poor_lighting"},
	{ErrLowContrast, "low_contrast"},
	{ErrFeatureExtraction, "feature_extraction"},
	{ErrNoEnrolledProfiles, "no_enrolled_profiles"},
	{ErrConfigurationMismatch, "configuration_mismatch"},
	{ErrInsufficientConsensus, "insufficient_consensus"},
	{ErrInvalidIdentity, "invalid_identity"},
	{ErrUnknownIdentity, "unknown_identity"},
	{ErrDuplicateFace, "duplicate_face"},
	{ErrProfileStore, "profile_store"},
	{context.Canceled, "canceled"},
	{context.DeadlineExceeded, "deadline_exceeded"},
}

// Code maps an error to a stable reason code for clients and logs. It
// returns "" for nil and "internal" for unknown errors.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

// IsQualityRejection reports whether err is one of the quality gate failures.
func IsQualityRejection(err error) bool {
	return errors.Is(err, ErrFaceTooSmall) || errors.Is(err, ErrTooBlurry) ||
		errors.Is(err, ErrPoorLighting) || errors.Is(err, ErrLowContrast)
}
