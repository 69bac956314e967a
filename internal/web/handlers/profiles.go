package handlers

import (
	"net/http"
	"net/url"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/facematch"
)

// ProfilesHandler handles enrolment, revocation and verification.
type ProfilesHandler struct {
	config *config.Config
	engine *facematch.Engine
	stats  *StatsHandler
	log    *zap.Logger
}

// NewProfilesHandler creates a new profiles handler. Changes invalidate the
// stats cache of stats, which may be nil.
func NewProfilesHandler(cfg *config.Config, engine *facematch.Engine, stats *StatsHandler, log *zap.Logger) *ProfilesHandler {
	return &ProfilesHandler{config: cfg, engine: engine, stats: stats, log: log}
}

func (h *ProfilesHandler) invalidateStats() {
	if h.stats != nil {
		h.stats.InvalidateCache()
	}
}

// identityParam returns the decoded {identity} path segment.
func identityParam(r *http.Request) string {
	raw := chi.URLParam(r, "identity")
	if id, err := url.PathUnescape(raw); err == nil {
		return id
	}
	return raw
}

// List returns the enrolled profiles, optionally filtered by ?q= which
// matches ignoring case and diacritics.
func (h *ProfilesHandler) List(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.engine.Store().List(r.Context())
	if err != nil {
		h.log.Error("failed to list profiles", zap.Error(err))
		respondJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error:     "failed to list profiles",
			Code:      facematch.Code(facematch.ErrProfileStore),
			RequestID: requestID(r),
		})
		return
	}

	query := r.URL.Query().Get("q")
	out := make([]ProfileResponse, 0, len(profiles))
	for _, p := range profiles {
		if facematch.MatchesQuery(p.Identity, query) {
			out = append(out, profileResponse(p))
		}
	}
	respondJSON(w, http.StatusOK, out)
}

// Enroll stores the uploaded face as the profile of {identity}. The
// source reference is ?source= or the uploaded file name.
func (h *ProfilesHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	id := requestID(r)
	identity := identityParam(r)

	img, err := readImage(w, r, h.config.Server.MaxUploadBytes, h.config.Detector.MaxImagePixels)
	if err != nil {
		respondEngineError(w, id, err)
		return
	}

	source := r.URL.Query().Get("source")
	if source == "" && r.MultipartForm != nil {
		if files := r.MultipartForm.File[imageFormField]; len(files) > 0 {
			source = filepath.Base(files[0].Filename)
		}
	}

	p, err := h.engine.Enroll(r.Context(), identity, img, source)
	if err != nil {
		h.log.Info("enrolment rejected",
			zap.String("request_id", id),
			zap.String("identity", sanitizeForLog(identity)),
			zap.Error(err))
		respondEngineError(w, id, err)
		return
	}
	h.invalidateStats()
	respondJSON(w, http.StatusCreated, profileResponse(*p))
}

// Delete revokes the profile of {identity}.
func (h *ProfilesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := requestID(r)
	identity := identityParam(r)

	removed, err := h.engine.Revoke(r.Context(), identity)
	if err != nil {
		respondEngineError(w, id, err)
		return
	}
	if !removed {
		respondJSON(w, http.StatusNotFound, ErrorResponse{
			Error:     "identity is not enrolled",
			Code:      facematch.Code(facematch.ErrUnknownIdentity),
			RequestID: id,
		})
		return
	}
	h.invalidateStats()
	w.WriteHeader(http.StatusNoContent)
}

// Verify checks the uploaded face against the claimed {identity}.
func (h *ProfilesHandler) Verify(w http.ResponseWriter, r *http.Request) {
	id := requestID(r)
	identity := identityParam(r)

	img, err := readImage(w, r, h.config.Server.MaxUploadBytes, h.config.Detector.MaxImagePixels)
	if err != nil {
		respondEngineError(w, id, err)
		return
	}

	vr, err := h.engine.Verify(r.Context(), identity, img)
	if err != nil && (vr.Result == nil || !isDecision(err)) {
		respondEngineError(w, id, err)
		return
	}

	out := VerifyResponse{
		RequestID: id,
		Claimed:   vr.Claimed,
		Verified:  vr.Verified,
		Result:    recognitionResponse(id, vr.Result, err, candidateLimit(r)),
	}
	if vr.Claim != nil {
		c := candidateResponse(*vr.Claim)
		out.Claim = &c
	}
	h.log.Info("verification",
		zap.String("request_id", id),
		zap.String("claimed", sanitizeForLog(vr.Claimed)),
		zap.Bool("verified", vr.Verified))
	respondJSON(w, http.StatusOK, out)
}
