package database

// HNSW parameters for the profile shortlist. Signatures are the
// concatenated feature families, so vectors are a few thousand wide.
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 100

	// HNSWSearchMultiplier is the factor to request more candidates from HNSW
	// than the shortlist needs, so that approximate misses near the cut-off
	// still make it into exhaustive scoring.
	HNSWSearchMultiplier = 3

	// hnswSeed fixes level assignment so a rebuilt index is reproducible.
	hnswSeed = 1
)
