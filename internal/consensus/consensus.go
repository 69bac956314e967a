// Package consensus turns candidate similarity scores into accept/reject
// verdicts. A candidate is only accepted when several independent feature
// families agree, which suppresses matches carried by a single descriptor.
package consensus

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kozaktomas/facegate/internal/similarity"
)

// Tier is a confidence bucket. Higher values mean stronger support.
type Tier int

const (
	TierRejected Tier = iota
	TierMinimum
	TierMedium
	TierHigh
	TierUltraHigh
)

var tierNames = map[Tier]string{
	TierRejected:  "REJECTED",
	TierMinimum:   "MINIMUM",
	TierMedium:    "MEDIUM",
	TierHigh:      "HIGH",
	TierUltraHigh: "ULTRA_HIGH",
}

func (t Tier) String() string {
	if s, ok := tierNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Tier(%d)", int(t))
}

// MarshalText renders the tier name in JSON and YAML.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a tier name.
func (t *Tier) UnmarshalText(b []byte) error {
	p, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = p
	return nil
}

// ParseTier resolves a tier name case-insensitively.
func ParseTier(s string) (Tier, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for t, name := range tierNames {
		if name == s {
			return t, nil
		}
	}
	return TierRejected, fmt.Errorf("unknown tier %q", s)
}

// Policy holds the tier thresholds and consensus requirements.
type Policy struct {
	Ultra   float64 `yaml:"ultra"`
	High    float64 `yaml:"high"`
	Medium  float64 `yaml:"medium"`
	Minimum float64 `yaml:"minimum"`

	// Families that must clear the tier threshold for each tier.
	UltraCount  int `yaml:"ultra_count"`
	HighCount   int `yaml:"high_count"`
	MediumCount int `yaml:"medium_count"`

	// MinConsensusCount families must clear Minimum for any acceptance.
	MinConsensusCount int `yaml:"min_consensus_count"`
	// Cross-family variance must stay strictly below MaxVariance.
	MaxVariance float64 `yaml:"max_variance"`
}

// DefaultPolicy returns the standard thresholds.
func DefaultPolicy() Policy {
	return Policy{
		Ultra:             0.95,
		High:              0.85,
		Medium:            0.75,
		Minimum:           0.65,
		UltraCount:        3,
		HighCount:         3,
		MediumCount:       4,
		MinConsensusCount: 3,
		MaxVariance:       0.15,
	}
}

// Validate checks that the thresholds are ordered and in range.
func (p Policy) Validate() error {
	if !(p.Minimum > 0 && p.Minimum <= p.Medium && p.Medium <= p.High && p.High <= p.Ultra && p.Ultra <= 1) {
		return fmt.Errorf("thresholds must satisfy 0 < minimum <= medium <= high <= ultra <= 1, got %v/%v/%v/%v",
			p.Minimum, p.Medium, p.High, p.Ultra)
	}
	if p.UltraCount <= 0 || p.HighCount <= 0 || p.MediumCount <= 0 || p.MinConsensusCount <= 0 {
		return errors.New("family counts must be positive")
	}
	if p.MaxVariance <= 0 {
		return errors.New("max_variance must be positive")
	}
	return nil
}

// Verdict is the decision for one candidate.
type Verdict struct {
	Score    similarity.CandidateScore `json:"score"`
	Tier     Tier                      `json:"tier"`
	Accepted bool                      `json:"accepted"`
	// Consensus is the number of families at or above Minimum.
	Consensus int    `json:"consensus"`
	Reason    string `json:"reason"`
}

// Identity is the candidate's identity.
func (v Verdict) Identity() string {
	return v.Score.Identity
}

// Validator applies a Policy.
type Validator struct {
	p Policy
}

// New creates a validator.
func New(p Policy) *Validator {
	return &Validator{p: p}
}

// Policy returns the validator policy.
func (v *Validator) Policy() Policy {
	return v.p
}

func countAtLeast(vals []float64, threshold float64) int {
	n := 0
	for _, x := range vals {
		if x >= threshold {
			n++
		}
	}
	return n
}

// Evaluate decides the tier of one candidate. Tiers are tried from the
// strongest down; every tier needs its family count, the aggregated score
// at its threshold, the minimum consensus and a variance below the limit.
func (v *Validator) Evaluate(score similarity.CandidateScore) Verdict {
	vals := score.Values()
	consensus := countAtLeast(vals, v.p.Minimum)
	base := consensus >= v.p.MinConsensusCount && score.Variance < v.p.MaxVariance

	tiers := []struct {
		tier      Tier
		threshold float64
		count     int
	}{
		{TierUltraHigh, v.p.Ultra, v.p.UltraCount},
		{TierHigh, v.p.High, v.p.HighCount},
		{TierMedium, v.p.Medium, v.p.MediumCount},
	}

	verdict := Verdict{Score: score, Consensus: consensus, Tier: TierRejected}
	if base {
		for _, t := range tiers {
			if countAtLeast(vals, t.threshold) >= t.count && score.Aggregated >= t.threshold {
				verdict.Tier = t.tier
				verdict.Accepted = true
				break
			}
		}
		if !verdict.Accepted && score.Aggregated >= v.p.Minimum {
			verdict.Tier = TierMinimum
		}
	}

	verdict.Reason = fmt.Sprintf("%s: aggregated %.4f, consensus %d/%d, variance %.4f",
		verdict.Tier, score.Aggregated, consensus, len(vals), score.Variance)
	return verdict
}

// Rank orders verdicts by aggregated score, highest first, breaking ties by
// identity so the order is stable across runs.
func Rank(verdicts []Verdict) []Verdict {
	out := make([]Verdict, len(verdicts))
	copy(out, verdicts)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Score, out[j].Score
		if a.Aggregated != b.Aggregated {
			return a.Aggregated > b.Aggregated
		}
		return a.Identity < b.Identity
	})
	return out
}

// Select returns the accepted verdict with the highest aggregated score.
// When nothing is accepted it returns the best rejected verdict and false;
// an empty input yields a zero Verdict.
func Select(verdicts []Verdict) (best Verdict, accepted bool) {
	ranked := Rank(verdicts)
	for _, v := range ranked {
		if v.Accepted {
			return v, true
		}
	}
	if len(ranked) > 0 {
		return ranked[0], false
	}
	return Verdict{}, false
}
