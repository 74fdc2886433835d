package trialname

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blissAbstract = `In the BLISS-52 trial, 52.4% of patients receiving ` +
	`belimumab 10 mg/kg achieved SRI-4 vs 30.9% placebo (p<0.001). ` +
	`Results from BLISS-52 were consistent with the BLISS-76 study. ` +
	`Patients with SLE were randomized; SAEs were balanced across arms.`

func TestExtract_FindsHyphenNumberNames(t *testing.T) {
	ex := New()
	names := ex.Extract(blissAbstract, 0.5)
	assert.Contains(t, names, "BLISS-52")
	assert.Contains(t, names, "BLISS-76")
}

func TestExtract_ExclusionSetsFilter(t *testing.T) {
	ex := New()
	scored := ex.ExtractScored(blissAbstract)
	// Disease and AE abbreviations must never surface as trial names.
	assert.NotContains(t, scored, "SLE")
	assert.NotContains(t, scored, "SAES")
	assert.NotContains(t, scored, "SRI-4") // statistical index, but also too context-free
}

func TestExtract_PositiveContextBoostsScore(t *testing.T) {
	ex := New()
	scored := ex.ExtractScored(blissAbstract)
	require.Contains(t, scored, "BLISS-52")
	// "the BLISS-52 trial" plus "results from BLISS-52" plus repeat count
	// should push the name well past the context bonus alone.
	assert.GreaterOrEqual(t, scored["BLISS-52"], 0.7)
}

func TestExtract_MinConfidenceCut(t *testing.T) {
	ex := New()
	// A single bare mention with no announcing context.
	text := "Enrollment continued. ACME-999 recruited at 12 sites."
	low := ex.Extract(text, 0.9)
	assert.Empty(t, low)
	high := ex.Extract(text, 0.3)
	assert.Contains(t, high, "ACME-999")
}

func TestExtract_Deterministic(t *testing.T) {
	ex := New()
	a := ex.ExtractScored(blissAbstract)
	b := ex.ExtractScored(blissAbstract)
	assert.Equal(t, a, b)
}

func TestPlausible(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"BLISS-52", true},
		{"KEYNOTE 189", true},
		{"AE", false},      // too short
		{"12345", false},   // purely numeric
		{"FDA", false},     // regulatory acronym
		{"ANOVA", false},   // statistical
		{"NEJM", false},    // journal
		{"PLACEBO", false}, // generic vocabulary
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Plausible(tt.name), tt.name)
	}
}

func TestScore_ZeroCountNeverNegative(t *testing.T) {
	// A candidate that was constructed but never counted must still score
	// from pattern and format components alone, never below zero.
	c := &candidate{name: "BLISS-52", count: 0, pattern: PatternHyphenNumber}
	s := score(c)
	assert.GreaterOrEqual(t, s, 0.0)
	assert.LessOrEqual(t, s, 1.0)
	// 0 frequency + no context + 0.2 pattern + 0.05 length + 0.05 digit
	assert.InDelta(t, 0.3, s, 0.001)
}

func TestScore_ClampedToOne(t *testing.T) {
	c := &candidate{
		name:    "BLISS-52",
		count:   50,
		pattern: PatternHyphenNumber,
		contexts: []string{
			"RESULTS FROM THE BLISS-52 TRIAL WERE PRESENTED. THE BLISS-52 TRIAL MET ITS PRIMARY ENDPOINT.",
		},
	}
	assert.Equal(t, 1.0, score(c))
}

func TestExtract_ExtensionPattern(t *testing.T) {
	ex := New()
	scored := ex.ExtractScored("Long-term data came from the BLISS-LTE study of belimumab.")
	require.Contains(t, scored, "BLISS-LTE")
}
