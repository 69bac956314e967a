// Package similarity scores a probe feature bundle against an enrolled one,
// family by family and metric by metric.
package similarity

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/kozaktomas/facegate/internal/features"
)

// ErrLayoutMismatch is returned when two bundles do not share families and
// vector lengths.
var ErrLayoutMismatch = errors.New("feature layout mismatch")

const epsilon = 1e-7

// flatVariance is the sum of squared deviations below which a vector is
// treated as constant; rounding leaves residue far below it.
const flatVariance = 1e-20

// Metric names one similarity measure. Every metric maps onto [0, 1].
type Metric string

const (
	Cosine      Metric = "cosine"
	Euclidean   Metric = "euclidean"
	Correlation Metric = "correlation"
)

// AllMetrics lists the metrics in reporting order.
var AllMetrics = []Metric{Cosine, Euclidean, Correlation}

// Aggregation decides how the per-metric values of one family collapse to
// the family similarity.
type Aggregation string

const (
	// AggregateMax keeps the best of the three metrics.
	AggregateMax Aggregation = "max"
	// AggregateMean averages the three metrics.
	AggregateMean Aggregation = "mean"
)

// ParseAggregation accepts "max", "mean" or a single metric name.
func ParseAggregation(s string) (Aggregation, error) {
	a := Aggregation(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case "":
		return AggregateMax, nil
	case AggregateMax, AggregateMean:
		return a, nil
	}
	for _, m := range AllMetrics {
		if Aggregation(m) == a {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown aggregation %q", s)
}

// FamilyScore is the similarity of one family under every metric.
type FamilyScore struct {
	Metrics map[Metric]float64 `json:"metrics"`
	Value   float64            `json:"value"`
}

// CandidateScore is the comparison of a probe against one enrolled profile.
type CandidateScore struct {
	Identity   string                         `json:"identity"`
	Families   map[features.Family]FamilyScore `json:"families"`
	Aggregated float64                        `json:"aggregated"`
	Variance   float64                        `json:"variance"`
}

// Values returns the family similarities in canonical family order.
func (c CandidateScore) Values() []float64 {
	var out []float64
	for _, f := range features.AllFamilies {
		if s, ok := c.Families[f]; ok {
			out = append(out, s.Value)
		}
	}
	return out
}

// NewCandidateScore fills in the aggregated score (mean of the family
// similarities) and their population variance.
func NewCandidateScore(identity string, families map[features.Family]FamilyScore) CandidateScore {
	c := CandidateScore{Identity: identity, Families: families}
	vals := c.Values()
	if len(vals) == 0 {
		return c
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	c.Aggregated = sum / float64(len(vals))
	var ss float64
	for _, v := range vals {
		d := v - c.Aggregated
		ss += d * d
	}
	c.Variance = ss / float64(len(vals))
	return c
}

// Comparer scores bundles with a fixed aggregation rule.
type Comparer struct {
	agg Aggregation
}

// NewComparer creates a comparer.
func NewComparer(agg Aggregation) (*Comparer, error) {
	a, err := ParseAggregation(string(agg))
	if err != nil {
		return nil, err
	}
	return &Comparer{agg: a}, nil
}

// Aggregation returns the configured rule.
func (c *Comparer) Aggregation() Aggregation {
	return c.agg
}

// Compare scores probe against ref. Both bundles must share the same layout.
func (c *Comparer) Compare(identity string, probe, ref features.Bundle) (CandidateScore, error) {
	if !probe.Layout().Equal(ref.Layout()) {
		return CandidateScore{}, fmt.Errorf("%w: probe %s, enrolled %s", ErrLayoutMismatch, probe.Layout(), ref.Layout())
	}

	families := make(map[features.Family]FamilyScore, len(probe))
	for _, f := range probe.Families() {
		m := Metrics(probe[f], ref[f])
		families[f] = FamilyScore{Metrics: m, Value: c.aggregate(m)}
	}
	return NewCandidateScore(identity, families), nil
}

func (c *Comparer) aggregate(m map[Metric]float64) float64 {
	switch c.agg {
	case AggregateMax:
		best := 0.0
		for _, metric := range AllMetrics {
			best = math.Max(best, m[metric])
		}
		return best
	case AggregateMean:
		var sum float64
		for _, metric := range AllMetrics {
			sum += m[metric]
		}
		return sum / float64(len(AllMetrics))
	default:
		return m[Metric(c.agg)]
	}
}

// Metrics L2-normalises both vectors and computes every metric. a and b
// must have equal length.
func Metrics(a, b []float64) map[Metric]float64 {
	na, nb := l2Normalize(a), l2Normalize(b)
	return map[Metric]float64{
		Cosine:      clamp01(dot(na, nb)),
		Euclidean:   1 / (1 + euclidean(na, nb)),
		Correlation: (pearson(na, nb) + 1) / 2,
	}
}

func l2Normalize(v []float64) []float64 {
	var ss float64
	for _, x := range v {
		ss += x * x
	}
	norm := math.Sqrt(ss) + epsilon
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func euclidean(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return math.Sqrt(s)
}

// pearson returns the correlation coefficient, or 0 when it is undefined
// (constant or single-element vectors).
func pearson(a, b []float64) float64 {
	n := float64(len(a))
	if len(a) < 2 {
		return 0
	}
	var ma, mb float64
	for i := range a {
		ma += a[i]
		mb += b[i]
	}
	ma /= n
	mb /= n

	var cov, va, vb float64
	for i := range a {
		da, db := a[i]-ma, b[i]-mb
		cov += da * db
		va += da * da
		vb += db * db
	}
	if va < flatVariance || vb < flatVariance {
		return 0
	}
	r := cov / math.Sqrt(va*vb)
	if math.IsNaN(r) {
		return 0
	}
	return max(-1, min(1, r))
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}
