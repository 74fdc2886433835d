package model

// Consistency labels cross-study agreement derived from the coefficient
// of variation of response rates.
type Consistency string

const (
	ConsistencyHigh     Consistency = "High"
	ConsistencyModerate Consistency = "Moderate"
	ConsistencyLow      Consistency = "Low"
	ConsistencyNA       Consistency = "N/A"
)

// Signal labels the aggregate efficacy signal for an opportunity.
type Signal string

const (
	SignalStrong   Signal = "Strong"
	SignalModerate Signal = "Moderate"
	SignalWeak     Signal = "Weak"
	SignalNone     Signal = "None"
)

// Opportunity is the disease×drug evidence rollup. It is recomputed
// wholesale on every aggregation pass and persisted by full replace,
// never patched field-by-field.
type Opportunity struct {
	DrugKey         string      `json:"drug_key"`
	Disease         string      `json:"disease"`
	TotalPatients   int         `json:"total_patients"`
	StudyCount      int         `json:"study_count"`
	AggregateScore  float64     `json:"aggregate_score"`
	BestPaperID     string      `json:"best_paper_id,omitempty"`
	BestPaperScore  float64     `json:"best_paper_score"`
	AvgResponseRate *float64    `json:"avg_response_rate,omitempty"`
	CV              *float64    `json:"cv,omitempty"`
	Consistency     Consistency `json:"consistency"`
	EvidenceLevel   string      `json:"evidence_level"`
	Signal          Signal      `json:"signal"`
	PaperIDs        []string    `json:"paper_ids"`
	Rank            int         `json:"rank"`
}
