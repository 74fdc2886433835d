package model

import "time"

// SourceKind identifies where an EfficacyDataPoint was extracted from.
type SourceKind string

const (
	SourcePublication SourceKind = "publication"
	SourceRegistry    SourceKind = "registry"
	SourceLabel       SourceKind = "label"
	SourceWebSearch   SourceKind = "web_search"
)

// EndpointType classifies a clinical endpoint.
type EndpointType string

const (
	EndpointPrimary     EndpointType = "primary"
	EndpointSecondary   EndpointType = "secondary"
	EndpointExploratory EndpointType = "exploratory"
)

// ReviewStatus is the disposition of an extracted data point.
type ReviewStatus string

const (
	ReviewAutoAccepted  ReviewStatus = "auto_accepted"
	ReviewPending       ReviewStatus = "pending_review"
	ReviewUserConfirmed ReviewStatus = "user_confirmed"
	ReviewUserRejected  ReviewStatus = "user_rejected"
)

// DefaultConfidence is the placeholder assigned by extractors before the
// confidence scorer runs.
const DefaultConfidence = 0.85

// Arm holds one treatment group's reported values.
type Arm struct {
	Name   string   `json:"name,omitempty"`
	N      *int     `json:"n,omitempty"`
	Result *float64 `json:"result,omitempty"`
	Unit   string   `json:"unit,omitempty"`
}

// EfficacyDataPoint is the atomic unit of extracted clinical evidence.
// Created by an extractor with a placeholder confidence, mutated exactly
// once by the confidence scorer, and optionally once more by a human
// reviewer resolving a pending disposition.
type EfficacyDataPoint struct {
	SourceKind SourceKind `json:"source_kind"`
	SourceURL  string     `json:"source_url"`
	PaperID    string     `json:"paper_id,omitempty"`
	NCTID      string     `json:"nct_id,omitempty"`

	TrialName string `json:"trial_name,omitempty"`
	Phase     string `json:"phase,omitempty"`

	EndpointName string       `json:"endpoint_name"`
	EndpointType EndpointType `json:"endpoint_type,omitempty"`

	DrugArm       Arm `json:"drug_arm"`
	ComparatorArm Arm `json:"comparator_arm"`

	PValue       *float64 `json:"p_value,omitempty"`
	ConfidenceCI string   `json:"confidence_interval,omitempty"`
	Timepoint    string   `json:"timepoint,omitempty"`

	RawText string `json:"raw_text,omitempty"`

	ConfidenceScore float64      `json:"confidence_score"`
	ReviewStatus    ReviewStatus `json:"review_status"`
	CreatedAt       time.Time    `json:"created_at"`
}

// Rejected reports whether a human reviewer discarded the point. Rejected
// points are excluded from all downstream aggregation.
func (p EfficacyDataPoint) Rejected() bool {
	return p.ReviewStatus == ReviewUserRejected
}

// Resolve transitions a pending point to a reviewer decision. It is a no-op
// for points that are not pending review.
func (p *EfficacyDataPoint) Resolve(confirmed bool) {
	if p.ReviewStatus != ReviewPending {
		return
	}
	if confirmed {
		p.ReviewStatus = ReviewUserConfirmed
	} else {
		p.ReviewStatus = ReviewUserRejected
	}
}
