package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/facegate/internal/features"
)

// ShortlistMetadata stores metadata for validating cached shortlist indexes.
type ShortlistMetadata struct {
	ProfileCount   int       `json:"profile_count"`
	LastEnrollment time.Time `json:"last_enrollment"`
	Layout         string    `json:"layout"`
	BuildTime      time.Time `json:"build_time"`
	Version        int       `json:"version"`
}

const shortlistMetadataVersion = 1

// Matches reports whether the metadata describes an index built from profiles.
func (m ShortlistMetadata) Matches(profiles []FaceProfile) bool {
	want := metadataFor(profiles)
	return m.Version == shortlistMetadataVersion &&
		m.ProfileCount == want.ProfileCount &&
		m.LastEnrollment.Equal(want.LastEnrollment) &&
		m.Layout == want.Layout
}

func metadataFor(profiles []FaceProfile) ShortlistMetadata {
	m := ShortlistMetadata{ProfileCount: len(profiles), Version: shortlistMetadataVersion}
	for _, p := range profiles {
		if p.EnrolledAt.After(m.LastEnrollment) {
			m.LastEnrollment = p.EnrolledAt
		}
	}
	if len(profiles) > 0 {
		m.Layout = profiles[0].Bundle.Layout().String()
	}
	return m
}

// ShortlistIndex is an HNSW graph over profile signatures. It narrows a
// large gallery to the nearest identities before exhaustive scoring.
type ShortlistIndex struct {
	graph *hnsw.Graph[string]
	meta  ShortlistMetadata
	mu    sync.RWMutex
}

// NewShortlistIndex creates a new empty index.
func NewShortlistIndex() *ShortlistIndex {
	return &ShortlistIndex{}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance
	g.Rng = rand.New(rand.NewSource(hnswSeed)) //nolint:gosec // level assignment only
	return g
}

// Build replaces the index with the signatures of profiles.
func (s *ShortlistIndex) Build(profiles []FaceProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(profiles) == 0 {
		s.graph = nil
		s.meta = metadataFor(nil)
		return nil
	}

	g := newGraph()
	dim := -1
	for _, p := range profiles {
		sig := Signature(p.Bundle)
		if len(sig) == 0 {
			continue
		}
		if dim >= 0 && len(sig) != dim {
			return fmt.Errorf("profile %s: signature length %d, index uses %d", p.Identity, len(sig), dim)
		}
		dim = len(sig)
		g.Add(hnsw.MakeNode(p.Identity, sig))
	}

	s.graph = g
	s.meta = metadataFor(profiles)
	return nil
}

// Search returns up to k identities nearest to probe with their cosine
// distances, closest first.
func (s *ShortlistIndex) Search(probe features.Bundle, k int) ([]string, []float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.graph == nil {
		return nil, nil, errors.New("index not initialized")
	}
	if k <= 0 || s.graph.Len() == 0 {
		return nil, nil, nil
	}
	query := Signature(probe)
	if dims := s.graph.Dims(); dims != len(query) {
		return nil, nil, fmt.Errorf("probe signature length %d, index uses %d", len(query), dims)
	}

	neighbors := s.graph.Search(query, k)
	ids := make([]string, len(neighbors))
	distances := make([]float64, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.Key
		distances[i] = CosineDistance(query, n.Value)
	}
	return ids, distances, nil
}

// Count returns the number of indexed profiles.
func (s *ShortlistIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.graph == nil {
		return 0
	}
	return s.graph.Len()
}

// IsEmpty returns true if no graph is loaded.
func (s *ShortlistIndex) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph == nil
}

// Fresh reports whether the index was built from exactly this profile set.
func (s *ShortlistIndex) Fresh(profiles []FaceProfile) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph != nil && s.meta.Matches(profiles)
}

// Save persists the graph to path and its metadata to path.meta.
func (s *ShortlistIndex) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.graph == nil {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	if err := s.graph.Export(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close HNSW index file: %w", err)
	}

	meta := s.meta
	meta.BuildTime = time.Now().UTC()
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", data, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// Load reads an index saved by Save. It returns false without error when the
// files are missing or were built from a different profile set, in which
// case the caller should Build and Save again.
func (s *ShortlistIndex) Load(path string, profiles []FaceProfile) (bool, error) {
	meta, err := LoadShortlistMetadata(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !meta.Matches(profiles) {
		return false, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}
	saved, err := hnsw.LoadSavedGraph[string](path)
	if err != nil {
		return false, fmt.Errorf("failed to load HNSW index: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph = saved.Graph
	s.graph.Distance = hnsw.CosineDistance
	s.graph.EfSearch = HNSWEfSearch
	s.meta = meta
	return true, nil
}

// LoadShortlistMetadata loads metadata from the .meta file next to path.
func LoadShortlistMetadata(path string) (ShortlistMetadata, error) {
	var meta ShortlistMetadata
	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return meta, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return meta, nil
}
