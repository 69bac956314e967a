package handlers

import (
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/facegate/internal/facematch"
)

const statsCacheTTL = 30 * time.Second

// statsCache holds cached stats with expiry
type statsCache struct {
	mu        sync.RWMutex
	data      *StatsResponse
	expiresAt time.Time
}

func (c *statsCache) get() (*StatsResponse, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.data == nil || time.Now().After(c.expiresAt) {
		return nil, false
	}
	return c.data, true
}

func (c *statsCache) set(data *StatsResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = data
	c.expiresAt = time.Now().Add(statsCacheTTL)
}

func (c *statsCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = nil
}

// StatsHandler handles statistics endpoints
type StatsHandler struct {
	engine *facematch.Engine
	log    *zap.Logger
	cache  statsCache
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(engine *facematch.Engine, log *zap.Logger) *StatsHandler {
	return &StatsHandler{engine: engine, log: log}
}

// InvalidateCache clears the cached stats so the next request fetches fresh data
func (h *StatsHandler) InvalidateCache() {
	h.cache.invalidate()
}

// StatsResponse represents the statistics response
type StatsResponse struct {
	Profile     string         `json:"profile"`
	Description string         `json:"description,omitempty"`
	Enrolled    int            `json:"enrolled"`
	Layout      map[string]int `json:"layout"`
	Aggregation string         `json:"aggregation"`
	Thresholds  struct {
		Ultra             float64 `json:"ultra"`
		High              float64 `json:"high"`
		Medium            float64 `json:"medium"`
		Minimum           float64 `json:"minimum"`
		MinConsensusCount int     `json:"min_consensus_count"`
		MaxVariance       float64 `json:"max_variance"`
	} `json:"thresholds"`
	Mismatched []string `json:"mismatched,omitempty"`
}

func statsResponse(st *facematch.Stats) *StatsResponse {
	out := &StatsResponse{
		Profile:     st.Profile,
		Description: st.Description,
		Enrolled:    st.Enrolled,
		Layout:      make(map[string]int, len(st.Layout)),
		Aggregation: st.Aggregation,
		Mismatched:  st.Mismatched,
	}
	for f, n := range st.Layout {
		out.Layout[string(f)] = n
	}
	out.Thresholds.Ultra = st.Policy.Ultra
	out.Thresholds.High = st.Policy.High
	out.Thresholds.Medium = st.Policy.Medium
	out.Thresholds.Minimum = st.Policy.Minimum
	out.Thresholds.MinConsensusCount = st.Policy.MinConsensusCount
	out.Thresholds.MaxVariance = st.Policy.MaxVariance
	return out
}

// Get returns the engine configuration and gallery size
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if cached, ok := h.cache.get(); ok {
		respondJSON(w, http.StatusOK, cached)
		return
	}

	st, err := h.engine.Stats(r.Context())
	if err != nil {
		h.log.Error("failed to collect stats", zap.Error(err))
		respondEngineError(w, requestID(r), err)
		return
	}

	stats := statsResponse(st)
	h.cache.set(stats)
	respondJSON(w, http.StatusOK, stats)
}
