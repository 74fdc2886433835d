// Package scoring assigns each extracted data point a weighted confidence
// score and a review disposition. Scoring is pure: same point, same score.
package scoring

import (
	"go.uber.org/zap"

	"github.com/vantdge/evidence-cli/internal/model"
)

// Weights are the four confidence components. They should sum to 1.0;
// Scorer does not renormalize.
type Weights struct {
	Completeness float64
	Source       float64
	Significance float64
	Quality      float64
}

// DefaultWeights returns the standard component weighting.
func DefaultWeights() Weights {
	return Weights{
		Completeness: 0.4,
		Source:       0.3,
		Significance: 0.2,
		Quality:      0.1,
	}
}

// DefaultReviewThreshold is the confidence at or above which a point is
// auto-accepted. The single knob governing manual-review load.
const DefaultReviewThreshold = 0.7

// sourceReliability is fixed per source kind. Peer-reviewed publications
// rank highest, uncorroborated web search lowest.
var sourceReliability = map[model.SourceKind]float64{
	model.SourcePublication: 1.0,
	model.SourceLabel:       0.9,
	model.SourceRegistry:    0.75,
	model.SourceWebSearch:   0.6,
}

// Scorer scores and flags data points.
type Scorer struct {
	weights   Weights
	threshold float64
}

// New creates a Scorer. Zero weights fall back to the defaults; a zero
// threshold falls back to DefaultReviewThreshold.
func New(weights Weights, threshold float64) *Scorer {
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	if threshold <= 0 {
		threshold = DefaultReviewThreshold
	}
	return &Scorer{weights: weights, threshold: threshold}
}

// ScoreAndFlag sets ConfidenceScore and ReviewStatus on every point in
// place. The threshold applies identically regardless of source kind.
func (s *Scorer) ScoreAndFlag(points []model.EfficacyDataPoint) {
	for i := range points {
		p := &points[i]
		p.ConfidenceScore = s.Score(*p)
		if p.ConfidenceScore >= s.threshold {
			p.ReviewStatus = model.ReviewAutoAccepted
		} else {
			p.ReviewStatus = model.ReviewPending
		}
	}

	zap.L().Debug("scoring: flagged points",
		zap.Int("total", len(points)),
		zap.Int("pending", pendingCount(points)),
	)
}

// Score computes the weighted confidence for one point, clamped to [0,1].
func (s *Scorer) Score(p model.EfficacyDataPoint) float64 {
	v := s.weights.Completeness*completeness(p) +
		s.weights.Source*sourceScore(p.SourceKind) +
		s.weights.Significance*significance(p.PValue) +
		s.weights.Quality*qualityIndicators(p)

	if v > 1 {
		v = 1
	}
	if v < 0 {
		v = 0
	}
	return v
}

// completeness weighs the three core fields at 0.7 and six optional fields
// at 0.3.
func completeness(p model.EfficacyDataPoint) float64 {
	core := 0
	if p.EndpointName != "" {
		core++
	}
	if p.DrugArm.Result != nil {
		core++
	}
	if p.SourceURL != "" {
		core++
	}

	optional := 0
	if p.ComparatorArm.Result != nil {
		optional++
	}
	if p.PValue != nil {
		optional++
	}
	if p.Timepoint != "" {
		optional++
	}
	if p.TrialName != "" {
		optional++
	}
	if p.DrugArm.Name != "" {
		optional++
	}
	if p.DrugArm.N != nil {
		optional++
	}

	return 0.7*(float64(core)/3) + 0.3*(float64(optional)/6)
}

func sourceScore(kind model.SourceKind) float64 {
	if v, ok := sourceReliability[kind]; ok {
		return v
	}
	return 0.6
}

// significance maps a p-value to a score tier. A missing p-value scores
// 0.5: unknown, not penalized as "not significant".
func significance(pValue *float64) float64 {
	if pValue == nil {
		return 0.5
	}
	p := *pValue
	switch {
	case p <= 0.001:
		return 1.0
	case p <= 0.01:
		return 0.9
	case p <= 0.05:
		return 0.8
	case p <= 0.10:
		return 0.6
	default:
		return 0.4
	}
}

// qualityIndicators starts at 0.5 and adds 0.1 per corroborating detail,
// capped at 1.0. Comparator N only counts when the drug arm N is also
// reported.
func qualityIndicators(p model.EfficacyDataPoint) float64 {
	v := 0.5
	if p.DrugArm.N != nil {
		v += 0.1
		if p.ComparatorArm.N != nil {
			v += 0.1
		}
	}
	if p.ConfidenceCI != "" {
		v += 0.1
	}
	if p.PaperID != "" || p.NCTID != "" {
		v += 0.1
	}
	if p.RawText != "" {
		v += 0.1
	}
	if v > 1 {
		v = 1
	}
	return v
}

func pendingCount(points []model.EfficacyDataPoint) int {
	n := 0
	for _, p := range points {
		if p.ReviewStatus == model.ReviewPending {
			n++
		}
	}
	return n
}
