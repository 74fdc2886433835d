// Package trialname mines candidate clinical-trial acronyms out of raw text.
// Extraction is pure and deterministic: no I/O, same input yields the same
// candidate set and scores.
package trialname

import (
	"regexp"
	"sort"
	"strings"
)

// Pattern identifies which regex family matched a candidate. Families differ
// in reliability: hyphenated acronym+number and extension-suffix names are
// rarely false positives, bare two-word acronyms often are.
type Pattern string

const (
	PatternHyphenNumber Pattern = "hyphen_number"
	PatternWordNumber   Pattern = "word_number"
	PatternRouteSuffix  Pattern = "route_suffix"
	PatternExtension    Pattern = "extension"
	PatternTwoWord      Pattern = "two_word"
	PatternPhaseSuffix  Pattern = "phase_suffix"
)

var patterns = []struct {
	kind Pattern
	re   *regexp.Regexp
}{
	// BLISS-52, CHECKMATE-227, EMPA-REG
	{PatternHyphenNumber, regexp.MustCompile(`\b([A-Z][A-Z]{2,11}-\d{1,4})\b`)},
	// KEYNOTE 189, SOLO 1
	{PatternWordNumber, regexp.MustCompile(`\b([A-Z]{4,12} \d{1,3})\b`)},
	// BLISS-SC, ASCEND-IV
	{PatternRouteSuffix, regexp.MustCompile(`\b([A-Z]{3,12}-(?:SC|IV|IM|PO|INH))\b`)},
	// BLISS-LTE, AURORA-EXT, DAPA-OLE
	{PatternExtension, regexp.MustCompile(`\b([A-Z]{3,12}-(?:LTE|EXT|OLE|X))\b`)},
	// TULIP SLE, AURORA LN (two all-caps tokens)
	{PatternTwoWord, regexp.MustCompile(`\b([A-Z]{4,12} [A-Z]{2,6})\b`)},
	// EMBRACE-2B, MUSE-3
	{PatternPhaseSuffix, regexp.MustCompile(`\b([A-Z]{3,12}-\d[AB]?)\b`)},
}

// contextTemplates mark a candidate as appearing in trial-announcing prose.
// %s is replaced with the quoted candidate name before compiling.
var contextTemplates = []string{
	`(?i)\bthe %s (?:trial|study)\b`,
	`(?i)\bresults (?:from|of) (?:the )?%s\b`,
	`(?i)\bphase (?:1|2|3|4|I{1,3}V?) %s\b`,
	`(?i)\b%s \(NCT\d+\)`,
	`(?i)\bin (?:the )?%s,`,
}

// patternReliability maps each regex family to its score contribution.
var patternReliability = map[Pattern]float64{
	PatternHyphenNumber: 0.2,
	PatternExtension:    0.2,
	PatternRouteSuffix:  0.15,
	PatternPhaseSuffix:  0.15,
	PatternWordNumber:   0.1,
	PatternTwoWord:      0.1,
}

const (
	contextWindow = 100
	maxFreqCount  = 5
	freqWeight    = 0.3
	contextBonus  = 0.4
)

// candidate accumulates evidence for one potential trial name.
type candidate struct {
	name     string
	count    int
	contexts []string
	pattern  Pattern
}

// Extractor finds candidate trial acronyms in text and scores them.
type Extractor struct{}

// New returns a trial name extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract returns the validated trial names found in text whose confidence
// is at least minConfidence, ordered by descending confidence (name as the
// tiebreaker, so output is stable).
func (e *Extractor) Extract(text string, minConfidence float64) []string {
	scored := e.ExtractScored(text)
	var out []string
	for name, score := range scored {
		if score >= minConfidence {
			out = append(out, name)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if scored[out[i]] != scored[out[j]] {
			return scored[out[i]] > scored[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

// ExtractScored returns every surviving candidate with its confidence score.
func (e *Extractor) ExtractScored(text string) map[string]float64 {
	upper := strings.ToUpper(text)
	cands := collect(upper)

	out := make(map[string]float64, len(cands))
	for _, c := range cands {
		if !Plausible(c.name) {
			continue
		}
		out[c.name] = score(c)
	}
	return out
}

// Plausible applies the cheap validity filters: minimum length, not purely
// numeric, and not in any curated exclusion set. Exported so extractors can
// vet names proposed by model output.
func Plausible(name string) bool {
	name = strings.ToUpper(strings.TrimSpace(name))
	if len(name) < 3 {
		return false
	}
	if allDigits(name) {
		return false
	}
	return !Excluded(name)
}

func collect(upper string) []*candidate {
	byName := make(map[string]*candidate)
	var order []string

	for _, p := range patterns {
		for _, loc := range p.re.FindAllStringSubmatchIndex(upper, -1) {
			start, end := loc[2], loc[3]
			name := upper[start:end]

			c, ok := byName[name]
			if !ok {
				c = &candidate{name: name, pattern: p.kind}
				byName[name] = c
				order = append(order, name)
			}
			c.count++
			c.contexts = append(c.contexts, window(upper, start, end))

			// Keep the most reliable pattern seen for this name.
			if patternReliability[p.kind] > patternReliability[c.pattern] {
				c.pattern = p.kind
			}
		}
	}

	out := make([]*candidate, 0, len(order))
	for _, name := range order {
		out = append(out, byName[name])
	}
	return out
}

func window(text string, start, end int) string {
	lo := start - contextWindow
	if lo < 0 {
		lo = 0
	}
	hi := end + contextWindow
	if hi > len(text) {
		hi = len(text)
	}
	return text[lo:hi]
}

// score computes the weighted confidence for one candidate, clamped to [0,1].
// Frequency contributes up to 0.3, announcing context 0.4, pattern
// reliability 0.1-0.2, and name format up to 0.1.
func score(c *candidate) float64 {
	s := 0.0

	count := c.count
	if count > maxFreqCount {
		count = maxFreqCount
	}
	s += float64(count) / maxFreqCount * freqWeight

	if hasPositiveContext(c.name, c.contexts) {
		s += contextBonus
	}

	s += patternReliability[c.pattern]

	if len(c.name) >= 3 && len(c.name) <= 15 {
		s += 0.05
	}
	if strings.ContainsAny(c.name, "0123456789") {
		s += 0.05
	}

	if s > 1 {
		s = 1
	}
	if s < 0 {
		s = 0
	}
	return s
}

func hasPositiveContext(name string, contexts []string) bool {
	quoted := regexp.QuoteMeta(name)
	for _, tmpl := range contextTemplates {
		re, err := regexp.Compile(strings.Replace(tmpl, "%s", quoted, 1))
		if err != nil {
			continue
		}
		for _, ctx := range contexts {
			if re.MatchString(ctx) {
				return true
			}
		}
	}
	return false
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
