// Package condition maps free-text disease names onto a canonical
// vocabulary. Resolution tries, in order: the curated synonym table, the
// persisted mapping store, the thesaurus service, and finally fuzzy matching
// against the curated table. The first hit wins.
package condition

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/vantdge/evidence-cli/internal/model"
)

// thesaurusAcceptThreshold and fuzzyAcceptThreshold gate the two lossy
// resolution steps.
const (
	thesaurusAcceptThreshold = 0.8
	fuzzyAcceptThreshold     = 0.8
)

// Thesaurus looks up disease concepts in an external vocabulary service
// (e.g., NCI Thesaurus). Implementations return the preferred name, the
// concept ID, and known synonyms.
type Thesaurus interface {
	Lookup(ctx context.Context, name string) (preferred, conceptID string, synonyms []string, err error)
}

// MappingStore reads previously persisted condition mappings.
type MappingStore interface {
	GetConditionMapping(ctx context.Context, normalized string) (standard string, confidence float64, err error)
}

// Standardizer resolves raw disease names to DiseaseMatch records. The
// cache is owned by the instance and lives for the process lifetime;
// standardization of a given string is assumed stable within a run.
type Standardizer struct {
	thesaurus Thesaurus
	mappings  MappingStore

	mu    sync.RWMutex
	cache map[string]model.DiseaseMatch
}

// New creates a Standardizer. Both collaborators are optional; a nil
// thesaurus or mapping store simply skips that resolution step.
func New(thesaurus Thesaurus, mappings MappingStore) *Standardizer {
	return &Standardizer{
		thesaurus: thesaurus,
		mappings:  mappings,
		cache:     make(map[string]model.DiseaseMatch),
	}
}

// Standardize resolves a raw disease name. It never returns a zero match
// for non-empty input: unresolvable names come back with the input as the
// standard name, confidence 0, match type "none".
func (s *Standardizer) Standardize(ctx context.Context, rawName string) model.DiseaseMatch {
	key := Normalize(rawName)
	if key == "" {
		return model.DiseaseMatch{RawName: rawName, StandardName: rawName, MatchType: model.MatchNone}
	}

	s.mu.RLock()
	cached, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		// Preserve the caller's raw spelling; everything else is shared.
		cached.RawName = rawName
		return cached
	}

	match := s.resolve(ctx, rawName, key)
	match.TherapeuticArea = TherapeuticArea(match.StandardName)

	s.mu.Lock()
	s.cache[key] = match
	s.mu.Unlock()

	return match
}

func (s *Standardizer) resolve(ctx context.Context, rawName, key string) model.DiseaseMatch {
	// 1. Curated synonym table, exact.
	if std, ok := curatedSynonyms[key]; ok {
		return model.DiseaseMatch{
			RawName:      rawName,
			StandardName: std,
			MatchType:    model.MatchPredefined,
			Confidence:   1.0,
			Synonyms:     synonymsFor(std),
		}
	}

	// 2. Persisted mapping store, exact.
	if s.mappings != nil {
		std, conf, err := s.mappings.GetConditionMapping(ctx, key)
		if err == nil && std != "" {
			return model.DiseaseMatch{
				RawName:      rawName,
				StandardName: std,
				MatchType:    model.MatchDatabase,
				Confidence:   conf,
			}
		}
	}

	// 3. Thesaurus service.
	if s.thesaurus != nil {
		if m, ok := s.lookupThesaurus(ctx, rawName, key); ok {
			return m
		}
	}

	// 4. Fuzzy match against the curated table.
	if m, ok := fuzzyMatch(rawName, key); ok {
		return m
	}

	zap.L().Info("condition: no standardization match",
		zap.String("raw_name", rawName),
	)
	return model.DiseaseMatch{
		RawName:      rawName,
		StandardName: rawName,
		MatchType:    model.MatchNone,
	}
}

func (s *Standardizer) lookupThesaurus(ctx context.Context, rawName, key string) (model.DiseaseMatch, bool) {
	preferred, conceptID, synonyms, err := s.thesaurus.Lookup(ctx, rawName)
	if err != nil {
		zap.L().Warn("condition: thesaurus lookup failed",
			zap.String("raw_name", rawName),
			zap.Error(err),
		)
		return model.DiseaseMatch{}, false
	}
	if preferred == "" {
		return model.DiseaseMatch{}, false
	}

	conf := thesaurusConfidence(key, Normalize(preferred))
	if conf < thesaurusAcceptThreshold {
		return model.DiseaseMatch{}, false
	}

	return model.DiseaseMatch{
		RawName:      rawName,
		StandardName: preferred,
		ThesaurusID:  conceptID,
		MatchType:    model.MatchThesaurus,
		Confidence:   conf,
		Synonyms:     synonyms,
	}, true
}

// thesaurusConfidence grades a thesaurus hit: exact 1.0, substring
// containment either direction 0.9, otherwise the similarity ratio.
func thesaurusConfidence(input, preferred string) float64 {
	if input == preferred {
		return 1.0
	}
	if strings.Contains(preferred, input) || strings.Contains(input, preferred) {
		return 0.9
	}
	return Ratio(input, preferred)
}

func fuzzyMatch(rawName, key string) (model.DiseaseMatch, bool) {
	bestScore := 0.0
	bestStd := ""
	for syn, std := range curatedSynonyms {
		if r := Ratio(key, syn); r > bestScore {
			bestScore = r
			bestStd = std
		}
	}
	if bestScore < fuzzyAcceptThreshold {
		return model.DiseaseMatch{}, false
	}
	return model.DiseaseMatch{
		RawName:      rawName,
		StandardName: bestStd,
		MatchType:    model.MatchFuzzy,
		Confidence:   bestScore,
		Synonyms:     synonymsFor(bestStd),
	}, true
}

// Normalize lowercases, NFKC-folds, and collapses whitespace so lookups are
// insensitive to casing and stray unicode.
func Normalize(name string) string {
	folded := norm.NFKC.String(name)
	folded = strings.ToLower(strings.TrimSpace(folded))
	return strings.Join(strings.Fields(folded), " ")
}
