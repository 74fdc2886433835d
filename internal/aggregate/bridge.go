package aggregate

import (
	"strconv"

	"github.com/vantdge/evidence-cli/internal/model"
)

// significanceLevel is the p-value below which a comparison counts as a
// significant effect when deriving a paper's signal label.
const significanceLevel = 0.05

// BuildPaperEvidence folds a drug×disease slice of accepted data points
// into one PaperEvidence row per source paper. Points group by paper
// identity (paper ID, then registry ID, then source URL); points with no
// identity at all each stand alone. Rejected points never reach this
// function, but a second guard here keeps the invariant local.
func BuildPaperEvidence(drugKey, disease string, points []model.EfficacyDataPoint) []PaperEvidence {
	var order []string
	groups := make(map[string][]model.EfficacyDataPoint)

	for i, p := range points {
		if p.Rejected() {
			continue
		}
		key := paperKey(p, i)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], p)
	}

	out := make([]PaperEvidence, 0, len(order))
	for _, key := range order {
		out = append(out, buildPaper(drugKey, disease, key, groups[key]))
	}
	return out
}

func paperKey(p model.EfficacyDataPoint, ordinal int) string {
	switch {
	case p.PaperID != "":
		return p.PaperID
	case p.NCTID != "":
		return p.NCTID
	case p.SourceURL != "":
		return p.SourceURL
	default:
		// No stable identity; the ordinal keeps the point in its own group.
		return "point-" + strconv.Itoa(ordinal)
	}
}

// buildPaper derives one paper's rollup inputs from its data points. The
// paper score is the best point confidence rescaled onto the 0-10 band the
// aggregation scale uses.
func buildPaper(drugKey, disease, paperID string, points []model.EfficacyDataPoint) PaperEvidence {
	pe := PaperEvidence{
		PaperID: paperID,
		DrugKey: drugKey,
		Disease: disease,
	}

	best := 0.0
	for _, p := range points {
		if p.ConfidenceScore > best {
			best = p.ConfidenceScore
		}
		if n := p.DrugArm.N; n != nil && (pe.N == nil || *n > *pe.N) {
			pe.N = n
		}
	}
	pe.Score = best * 10

	pe.ResponseRate = responseRate(points)
	pe.EvidenceLevel = evidenceLevel(points)
	pe.Signal = signalLabel(points)
	return pe
}

// responseRate picks the drug arm's percentage result, preferring the
// primary endpoint. Non-percentage results are not response rates.
func responseRate(points []model.EfficacyDataPoint) *float64 {
	var fallback *float64
	for _, p := range points {
		r := p.DrugArm.Result
		if r == nil || p.DrugArm.Unit != "%" {
			continue
		}
		if p.EndpointType == model.EndpointPrimary {
			return r
		}
		if fallback == nil {
			fallback = r
		}
	}
	return fallback
}

// evidenceLevel classifies the paper's design from what the points carry:
// a comparator arm means a controlled trial, a bare trial record without
// one reads as open-label, and anything else is unknown.
func evidenceLevel(points []model.EfficacyDataPoint) string {
	sawTrial := false
	for _, p := range points {
		if p.ComparatorArm.N != nil || p.ComparatorArm.Result != nil {
			return "RCT"
		}
		if p.NCTID != "" || p.TrialName != "" {
			sawTrial = true
		}
	}
	if sawTrial {
		return "Open-Label"
	}
	return "Unknown"
}

// signalLabel grades the paper's efficacy signal. Significant favorable
// comparisons dominate; a paper mixing favorable and unfavorable effects
// reads as Mixed, and directional trends without significance cap at
// Moderate.
func signalLabel(points []model.EfficacyDataPoint) string {
	var favorable, unfavorable, trend int

	for _, p := range points {
		drug, comp := p.DrugArm.Result, p.ComparatorArm.Result

		significant := p.PValue != nil && *p.PValue < significanceLevel
		if significant {
			if drug != nil && comp != nil && *drug < *comp {
				unfavorable++
			} else {
				favorable++
			}
			continue
		}

		if drug != nil && comp != nil {
			if *drug > *comp {
				trend++
			} else if *drug < *comp {
				unfavorable++
			}
		}
	}

	switch {
	case favorable > 0 && unfavorable > 0:
		return "Mixed"
	case favorable > 0:
		return "Strong"
	case trend > 0 && unfavorable > 0:
		return "Mixed"
	case trend > 0:
		return "Moderate"
	case unfavorable > 0:
		return "Weak"
	default:
		return "None"
	}
}
