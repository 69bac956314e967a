package handlers

import (
	"time"

	"github.com/kozaktomas/facegate/internal/consensus"
	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/facematch"
	"github.com/kozaktomas/facegate/internal/quality"
)

// defaultCandidateLimit is how many ranked candidates a response carries
// unless the request asks otherwise.
const defaultCandidateLimit = 5

// BoxResponse is the located face in image coordinates.
type BoxResponse struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// CandidateResponse is one scored profile.
type CandidateResponse struct {
	Identity   string             `json:"identity"`
	Tier       string             `json:"tier"`
	Accepted   bool               `json:"accepted"`
	Aggregated float64            `json:"aggregated"`
	Variance   float64            `json:"variance"`
	Consensus  int                `json:"consensus"`
	Families   map[string]float64 `json:"families"`
	Reason     string             `json:"reason"`
}

// RecognitionResponse is the body of a recognition.
type RecognitionResponse struct {
	RequestID       string              `json:"request_id,omitempty"`
	Accepted        bool                `json:"accepted"`
	Identity        string              `json:"identity,omitempty"`
	Tier            string              `json:"tier"`
	AggregatedScore float64             `json:"aggregated_score"`
	Code            string              `json:"code,omitempty"`
	Reason          string              `json:"reason"`
	Stage           string              `json:"stage"`
	Face            *BoxResponse        `json:"face,omitempty"`
	Quality         *quality.Report     `json:"quality,omitempty"`
	Candidates      []CandidateResponse `json:"candidates"`
}

// VerifyResponse is the body of a verification.
type VerifyResponse struct {
	RequestID string               `json:"request_id,omitempty"`
	Claimed   string               `json:"claimed"`
	Verified  bool                 `json:"verified"`
	Claim     *CandidateResponse   `json:"claim,omitempty"`
	Result    *RecognitionResponse `json:"result,omitempty"`
}

// ProfileResponse describes an enrolled profile without its vectors.
type ProfileResponse struct {
	Identity        string    `json:"identity"`
	EnrolledAt      time.Time `json:"enrolled_at"`
	SourceReference string    `json:"source_reference,omitempty"`
	Layout          string    `json:"layout"`
}

func candidateResponse(v consensus.Verdict) CandidateResponse {
	families := make(map[string]float64, len(v.Score.Families))
	for f, s := range v.Score.Families {
		families[string(f)] = s.Value
	}
	return CandidateResponse{
		Identity:   v.Identity(),
		Tier:       v.Tier.String(),
		Accepted:   v.Accepted,
		Aggregated: v.Score.Aggregated,
		Variance:   v.Score.Variance,
		Consensus:  v.Consensus,
		Families:   families,
		Reason:     v.Reason,
	}
}

func recognitionResponse(requestID string, res *facematch.RecognitionResult, err error, limit int) *RecognitionResponse {
	out := &RecognitionResponse{
		RequestID:       requestID,
		Accepted:        res.Accepted,
		Identity:        res.Identity,
		Tier:            res.Tier.String(),
		AggregatedScore: res.AggregatedScore,
		Code:            facematch.Code(err),
		Reason:          res.Reason,
		Stage:           string(res.Stage),
		Quality:         res.Quality,
		Candidates:      []CandidateResponse{},
	}
	if !res.Face.Empty() {
		out.Face = &BoxResponse{X: res.Face.Min.X, Y: res.Face.Min.Y, Width: res.Face.Dx(), Height: res.Face.Dy()}
	}
	for i, v := range res.Candidates {
		if i == limit {
			break
		}
		out.Candidates = append(out.Candidates, candidateResponse(v))
	}
	return out
}

func profileResponse(p database.FaceProfile) ProfileResponse {
	return ProfileResponse{
		Identity:        p.Identity,
		EnrolledAt:      p.EnrolledAt,
		SourceReference: p.SourceReference,
		Layout:          p.Bundle.Layout().String(),
	}
}
