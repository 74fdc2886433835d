// Package aggregate rolls per-paper evidence up into disease-level
// Opportunity records. Aggregation is idempotent: the same evidence set
// always produces the same scores and ranks, and ranks are recomputed
// wholesale on every pass rather than patched.
package aggregate

import (
	"math"
	"sort"

	"github.com/vantdge/evidence-cli/internal/model"
)

// Config holds the aggregation policy constants. The CV thresholds and
// hierarchy encode product policy, not clinical law, so they stay tunable.
type Config struct {
	// CVHighMax and CVModerateMax are the coefficient-of-variation cutoffs
	// for the High and Moderate consistency labels. Defaults: 25, 50.
	CVHighMax     float64
	CVModerateMax float64

	// DefaultScore is the aggregate score used when every contributing
	// paper has zero weight. Default: 5.0.
	DefaultScore float64

	// StrongSignal, ModerateSignal and WeakSignal bucket the averaged
	// per-paper signal score. Defaults: 2.5, 1.5, 0.5.
	StrongSignal   float64
	ModerateSignal float64
	WeakSignal     float64
}

// DefaultConfig returns the standard aggregation policy.
func DefaultConfig() Config {
	return Config{
		CVHighMax:      25,
		CVModerateMax:  50,
		DefaultScore:   5.0,
		StrongSignal:   2.5,
		ModerateSignal: 1.5,
		WeakSignal:     0.5,
	}
}

// PaperEvidence is one paper's contribution to a drug×disease group.
type PaperEvidence struct {
	PaperID       string
	DrugKey       string
	Disease       string
	Score         float64
	N             *int
	ResponseRate  *float64
	EvidenceLevel string
	Signal        string
}

// evidenceHierarchy ranks study designs; the highest rank among a group's
// papers wins. Unlisted levels rank as Unknown.
var evidenceHierarchy = map[string]int{
	"RCT":               10,
	"Meta-Analysis":     9,
	"Systematic Review": 8,
	"Cohort":            7,
	"Case-Control":      6,
	"Open-Label":        5,
	"Case Series":       4,
	"Case Report":       3,
	"Preclinical":       2,
	"Unknown":           1,
}

// signalScores maps per-paper signal labels onto the numeric scale that is
// averaged and re-bucketed per group.
var signalScores = map[string]float64{
	"Strong":   3,
	"Moderate": 2,
	"Mixed":    1.5,
	"Weak":     1,
	"None":     0,
}

// Aggregator computes Opportunity rollups.
type Aggregator struct {
	cfg Config
}

// New creates an Aggregator. Zero config fields fall back to defaults.
func New(cfg Config) *Aggregator {
	def := DefaultConfig()
	if cfg.CVHighMax <= 0 {
		cfg.CVHighMax = def.CVHighMax
	}
	if cfg.CVModerateMax <= 0 {
		cfg.CVModerateMax = def.CVModerateMax
	}
	if cfg.DefaultScore <= 0 {
		cfg.DefaultScore = def.DefaultScore
	}
	if cfg.StrongSignal <= 0 {
		cfg.StrongSignal = def.StrongSignal
	}
	if cfg.ModerateSignal <= 0 {
		cfg.ModerateSignal = def.ModerateSignal
	}
	if cfg.WeakSignal <= 0 {
		cfg.WeakSignal = def.WeakSignal
	}
	return &Aggregator{cfg: cfg}
}

// Aggregate groups papers by drug×disease, computes one Opportunity per
// group, and assigns per-drug dense ranks over descending aggregate score.
// Group and paper encounter order is preserved, so output is deterministic.
func (a *Aggregator) Aggregate(papers []PaperEvidence) []model.Opportunity {
	type groupKey struct{ drug, disease string }
	var order []groupKey
	groups := make(map[groupKey][]PaperEvidence)

	for _, p := range papers {
		k := groupKey{p.DrugKey, p.Disease}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], p)
	}

	out := make([]model.Opportunity, 0, len(order))
	for _, k := range order {
		out = append(out, a.rollup(k.drug, k.disease, groups[k]))
	}

	a.rank(out)
	return out
}

func (a *Aggregator) rollup(drug, disease string, papers []PaperEvidence) model.Opportunity {
	opp := model.Opportunity{
		DrugKey:    drug,
		Disease:    disease,
		StudyCount: len(papers),
	}

	var weightSum, weightedScore float64
	bestIdx := 0
	for i, p := range papers {
		if p.N != nil {
			opp.TotalPatients += *p.N
		}

		w := 1.0
		if p.N != nil {
			w = float64(*p.N)
		}
		weightSum += w
		weightedScore += w * p.Score

		if p.Score > papers[bestIdx].Score {
			bestIdx = i
		}
		opp.PaperIDs = append(opp.PaperIDs, p.PaperID)
	}

	if weightSum > 0 {
		opp.AggregateScore = weightedScore / weightSum
	} else {
		opp.AggregateScore = a.cfg.DefaultScore
	}

	opp.BestPaperID = papers[bestIdx].PaperID
	opp.BestPaperScore = papers[bestIdx].Score

	opp.AvgResponseRate = meanResponseRate(papers)
	opp.CV, opp.Consistency = a.consistency(papers)
	opp.EvidenceLevel = bestEvidenceLevel(papers)
	opp.Signal = a.signal(papers)

	return opp
}

func meanResponseRate(papers []PaperEvidence) *float64 {
	var sum float64
	n := 0
	for _, p := range papers {
		if p.ResponseRate != nil {
			sum += *p.ResponseRate
			n++
		}
	}
	if n == 0 {
		return nil
	}
	mean := sum / float64(n)
	return &mean
}

// consistency computes the coefficient of variation over non-null,
// non-zero response rates. Fewer than two valid values yields "N/A" with a
// nil CV.
func (a *Aggregator) consistency(papers []PaperEvidence) (*float64, model.Consistency) {
	var rates []float64
	for _, p := range papers {
		if p.ResponseRate != nil && *p.ResponseRate != 0 {
			rates = append(rates, *p.ResponseRate)
		}
	}
	if len(rates) < 2 {
		return nil, model.ConsistencyNA
	}

	var sum float64
	for _, r := range rates {
		sum += r
	}
	mean := sum / float64(len(rates))
	if mean == 0 {
		return nil, model.ConsistencyNA
	}

	var sq float64
	for _, r := range rates {
		d := r - mean
		sq += d * d
	}
	cv := math.Sqrt(sq/float64(len(rates))) / mean * 100

	switch {
	case cv < a.cfg.CVHighMax:
		return &cv, model.ConsistencyHigh
	case cv < a.cfg.CVModerateMax:
		return &cv, model.ConsistencyModerate
	default:
		return &cv, model.ConsistencyLow
	}
}

func bestEvidenceLevel(papers []PaperEvidence) string {
	best := "Unknown"
	bestRank := 0
	for _, p := range papers {
		rank, ok := evidenceHierarchy[p.EvidenceLevel]
		if !ok {
			rank = evidenceHierarchy["Unknown"]
		}
		if rank > bestRank {
			bestRank = rank
			if ok {
				best = p.EvidenceLevel
			}
		}
	}
	return best
}

func (a *Aggregator) signal(papers []PaperEvidence) model.Signal {
	var sum float64
	n := 0
	for _, p := range papers {
		if v, ok := signalScores[p.Signal]; ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return model.SignalNone
	}

	avg := sum / float64(n)
	switch {
	case avg >= a.cfg.StrongSignal:
		return model.SignalStrong
	case avg >= a.cfg.ModerateSignal:
		return model.SignalModerate
	case avg >= a.cfg.WeakSignal:
		return model.SignalWeak
	default:
		return model.SignalNone
	}
}

// rank assigns a dense per-drug row number over descending aggregate
// score, recomputed in full. Ties keep encounter order.
func (a *Aggregator) rank(opps []model.Opportunity) {
	byDrug := make(map[string][]*model.Opportunity)
	for i := range opps {
		byDrug[opps[i].DrugKey] = append(byDrug[opps[i].DrugKey], &opps[i])
	}

	for _, group := range byDrug {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].AggregateScore > group[j].AggregateScore
		})
		for i, opp := range group {
			opp.Rank = i + 1
		}
	}
}
