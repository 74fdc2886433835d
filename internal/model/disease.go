package model

// MatchType identifies which resolution step produced a DiseaseMatch.
type MatchType string

const (
	MatchPredefined MatchType = "predefined"
	MatchDatabase   MatchType = "database"
	MatchThesaurus  MatchType = "thesaurus"
	MatchFuzzy      MatchType = "fuzzy"
	MatchNone       MatchType = "none"
)

// DiseaseMatch is the result of standardizing a free-text disease name.
// Immutable once created; cached by the standardizer for the process lifetime.
type DiseaseMatch struct {
	RawName         string    `json:"raw_name"`
	StandardName    string    `json:"standard_name"`
	ThesaurusID     string    `json:"thesaurus_id,omitempty"`
	TherapeuticArea string    `json:"therapeutic_area,omitempty"`
	MatchType       MatchType `json:"match_type"`
	Confidence      float64   `json:"confidence"`
	Synonyms        []string  `json:"synonyms,omitempty"`
}

// Matched reports whether the standardizer found any mapping at all.
func (d DiseaseMatch) Matched() bool {
	return d.MatchType != MatchNone && d.Confidence > 0
}
