package model

import "time"

// ExtractionStatus is the per-drug outcome of a benchmark run.
type ExtractionStatus string

const (
	ExtractionPending ExtractionStatus = "pending"
	ExtractionSuccess ExtractionStatus = "success"
	ExtractionPartial ExtractionStatus = "partial"
	ExtractionFailed  ExtractionStatus = "failed"
)

// DrugBenchmarkResult is one drug's full extraction outcome.
type DrugBenchmarkResult struct {
	Drug       ApprovedDrug        `json:"drug"`
	DataPoints []EfficacyDataPoint `json:"data_points"`
	Status     ExtractionStatus    `json:"status"`
	Errors     []string            `json:"errors,omitempty"`
}

// DeriveStatus computes the extraction status from the collected points:
// at least one primary endpoint → success, secondary-only → partial,
// nothing → failed.
func (r *DrugBenchmarkResult) DeriveStatus() {
	if len(r.DataPoints) == 0 {
		r.Status = ExtractionFailed
		return
	}
	for _, p := range r.DataPoints {
		if p.EndpointType == EndpointPrimary {
			r.Status = ExtractionSuccess
			return
		}
	}
	r.Status = ExtractionPartial
}

// SessionStatus is the benchmark session state machine.
type SessionStatus string

const (
	SessionInitializing SessionStatus = "initializing"
	SessionExtracting   SessionStatus = "extracting"
	SessionReviewNeeded SessionStatus = "review_needed"
	SessionComplete     SessionStatus = "complete"
	SessionFailed       SessionStatus = "failed"
)

// BenchmarkSession is the unit of work for one user-triggered run.
type BenchmarkSession struct {
	ID        string                `json:"id"`
	Disease   DiseaseMatch          `json:"disease"`
	Drugs     []ApprovedDrug        `json:"drugs"`
	Results   []DrugBenchmarkResult `json:"results"`
	Status    SessionStatus         `json:"status"`
	CreatedAt time.Time             `json:"created_at"`
}

// TerminalStatus derives the finished session state from per-point
// dispositions: any pending point holds the session in review_needed.
// Kept separate from scoring so each stays independently testable.
func TerminalStatus(results []DrugBenchmarkResult) SessionStatus {
	for _, r := range results {
		for _, p := range r.DataPoints {
			if p.ReviewStatus == ReviewPending {
				return SessionReviewNeeded
			}
		}
	}
	return SessionComplete
}

// PendingReviewCount tallies data points awaiting human review.
func PendingReviewCount(results []DrugBenchmarkResult) int {
	n := 0
	for _, r := range results {
		for _, p := range r.DataPoints {
			if p.ReviewStatus == ReviewPending {
				n++
			}
		}
	}
	return n
}
