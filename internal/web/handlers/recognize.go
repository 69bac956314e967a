package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/facematch"
	"github.com/kozaktomas/facegate/internal/web/middleware"
)

// RecognizeHandler handles recognition requests.
type RecognizeHandler struct {
	config *config.Config
	engine *facematch.Engine
	log    *zap.Logger
}

// NewRecognizeHandler creates a new recognize handler.
func NewRecognizeHandler(cfg *config.Config, engine *facematch.Engine, log *zap.Logger) *RecognizeHandler {
	return &RecognizeHandler{config: cfg, engine: engine, log: log}
}

func requestID(r *http.Request) string {
	return middleware.GetRequestID(r.Context())
}

// candidateLimit reads ?candidates=N, falling back to the default.
func candidateLimit(r *http.Request) int {
	if n, err := strconv.Atoi(r.URL.Query().Get("candidates")); err == nil && n >= 0 {
		return n
	}
	return defaultCandidateLimit
}

// Recognize identifies the face in the uploaded image. Rejections are
// answered with 200 and accepted=false; only request and server failures
// use error statuses.
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	id := requestID(r)
	img, err := readImage(w, r, h.config.Server.MaxUploadBytes, h.config.Detector.MaxImagePixels)
	if err != nil {
		respondEngineError(w, id, err)
		return
	}

	res, err := h.engine.Recognize(r.Context(), img)
	if err != nil && !isDecision(err) {
		h.log.Error("recognition failed", zap.String("request_id", id), zap.Error(err))
		respondEngineError(w, id, err)
		return
	}

	h.log.Info("recognition",
		zap.String("request_id", id),
		zap.Bool("accepted", res.Accepted),
		zap.String("identity", res.Identity),
		zap.Stringer("tier", res.Tier),
		zap.String("code", facematch.Code(err)))
	respondJSON(w, http.StatusOK, recognitionResponse(id, res, err, candidateLimit(r)))
}
