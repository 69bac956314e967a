// Package facematch runs face crops through detection, quality gating,
// feature extraction and consensus scoring against enrolled profiles. It is
// shared by the CLI and the HTTP handlers.
package facematch

import (
	"image"

	"github.com/kozaktomas/facegate/internal/consensus"
	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/features"
	"github.com/kozaktomas/facegate/internal/quality"
)

// Stage is a step of the recognition pipeline.
type Stage string

const (
	StageReceived          Stage = "RECEIVED"
	StageLocated           Stage = "LOCATED"
	StageQualityChecked    Stage = "QUALITY_CHECKED"
	StageFeaturesExtracted Stage = "FEATURES_EXTRACTED"
	StageScored            Stage = "SCORED"
	StageDecided           Stage = "DECIDED"
)

// RecognitionResult is the outcome of one Recognize call. It is returned on
// rejection too, filled as far as the pipeline got.
type RecognitionResult struct {
	Accepted        bool           `json:"accepted"`
	Identity        string         `json:"identity,omitempty"`
	Tier            consensus.Tier `json:"tier"`
	AggregatedScore float64        `json:"aggregated_score"`
	Reason          string         `json:"reason"`
	Stage           Stage          `json:"stage"` // last stage reached

	Face    image.Rectangle `json:"face"`
	Quality *quality.Report `json:"quality,omitempty"`
	// Candidates holds every scored profile, best first.
	Candidates []consensus.Verdict `json:"candidates,omitempty"`
	// Best is the winning verdict, or the best rejected one.
	Best *consensus.Verdict `json:"best,omitempty"`
}

// VerifyResult is the outcome of checking an image against a claimed identity.
type VerifyResult struct {
	Claimed  string             `json:"claimed"`
	Verified bool               `json:"verified"`
	Result   *RecognitionResult `json:"result"`
	// Claim is the verdict for the claimed identity when it was scored.
	Claim *consensus.Verdict `json:"claim,omitempty"`
}

// EnrollRequest is one item of a batch enrolment.
type EnrollRequest struct {
	Identity        string
	SourceReference string
	// Open decodes the image. It is called from a worker goroutine.
	Open func() (*image.Gray, error)
}

// BatchOptions tune EnrollBatch.
type BatchOptions struct {
	Concurrency int                // parallel workers (default 4)
	OnProgress  func(ProgressInfo) // optional, called after every item
}

// ProgressInfo contains progress information for callbacks
type ProgressInfo struct {
	Current  int
	Total    int
	Identity string
	Err      error
}

// BatchItemError records why one batch item failed.
type BatchItemError struct {
	Index           int    `json:"index"`
	Identity        string `json:"identity"`
	SourceReference string `json:"source_reference,omitempty"`
	Code            string `json:"code"`
	Err             error  `json:"-"`
	Message         string `json:"message"`
}

// BatchReport summarises a batch enrolment.
type BatchReport struct {
	BatchID   string                 `json:"batch_id"`
	Processed int                    `json:"processed"`
	Succeeded int                    `json:"succeeded"`
	Failed    int                    `json:"failed"`
	Profiles  []database.FaceProfile `json:"-"`
	Errors    []BatchItemError       `json:"errors,omitempty"`
}

// Stats describes the engine and its gallery.
type Stats struct {
	Profile     string             `json:"profile"`
	Description string             `json:"description,omitempty"`
	Enrolled    int                `json:"enrolled"`
	Identities  []string           `json:"identities"`
	Layout      features.Layout    `json:"layout"`
	Policy      consensus.Policy   `json:"policy"`
	Quality     quality.Thresholds `json:"quality"`
	Aggregation string             `json:"aggregation"`
	// Mismatched lists profiles enrolled with a different feature layout.
	Mismatched []string `json:"mismatched,omitempty"`
}
