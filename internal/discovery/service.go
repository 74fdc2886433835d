// Package discovery resolves a drug+indication pair into a set of named
// clinical trials. The registry is the primary source; LLM lookup and web
// search fill in names the registry does not carry. Every step degrades to
// zero trials on failure rather than aborting the pipeline.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/vantdge/evidence-cli/internal/model"
	"github.com/vantdge/evidence-cli/internal/trialname"
	"github.com/vantdge/evidence-cli/pkg/ctgov"
	"github.com/vantdge/evidence-cli/pkg/llm"
)

// minNamedTrials is the named-trial count below which the web-search
// fallback engages.
const minNamedTrials = 2

// Registry is the trial-registry surface discovery depends on.
type Registry interface {
	Search(ctx context.Context, q ctgov.SearchQuery) ([]ctgov.Study, error)
}

// Searcher is the web-search surface used for the last-resort name lookup.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Config tunes the discovery service.
type Config struct {
	LookupModel string
	MaxTokens   int64
}

// Service discovers trials for drug+indication pairs.
type Service struct {
	registry  Registry
	generator llm.Client
	web       Searcher
	extractor *trialname.Extractor
	cfg       Config
}

// New creates a discovery Service. generator and web are optional; nil
// skips the corresponding fallback step.
func New(registry Registry, generator llm.Client, web Searcher, cfg Config) *Service {
	return &Service{
		registry:  registry,
		generator: generator,
		web:       web,
		extractor: trialname.New(),
		cfg:       cfg,
	}
}

// DiscoverTrials runs the ordered discovery pipeline: registry search,
// batched LLM name lookup for unnamed trials, web-search fallback when
// fewer than two named trials remain, then dedup.
func (s *Service) DiscoverTrials(ctx context.Context, drug model.ApprovedDrug, indication string, useWebSearch bool) model.DrugTrialInfo {
	generic := CleanGenericName(drug.GenericName)
	info := model.DrugTrialInfo{
		DrugName:    drug.DisplayName(),
		GenericName: generic,
		Indication:  indication,
	}

	trials := s.fromRegistry(ctx, generic, indication)
	trials = s.lookupUnnamed(ctx, generic, trials)

	if countNamed(trials) < minNamedTrials && useWebSearch && s.web != nil {
		trials = append(trials, s.fromWebSearch(ctx, generic, indication)...)
	}

	info.Trials = dedupe(trials)
	return info
}

// fromRegistry searches the registry for industry-funded Phase 2/3 trials.
// The server-side filters cut the page down before the phase check here,
// which only guards against mixed-phase labels like "Phase 1/Phase 2". The
// official acronym field wins; otherwise a name is mined from the title.
func (s *Service) fromRegistry(ctx context.Context, generic, indication string) []model.DiscoveredTrial {
	studies, err := s.registry.Search(ctx, ctgov.SearchQuery{
		Intervention: generic,
		Condition:    indication,
		Phases:       []string{"2", "3"},
		FunderType:   "industry",
	})
	if err != nil {
		zap.L().Warn("discovery: registry search failed",
			zap.String("drug", generic),
			zap.String("indication", indication),
			zap.Error(err),
		)
		return nil
	}

	var out []model.DiscoveredTrial
	for _, st := range studies {
		if phaseRank(st.Phase) < 2 {
			continue
		}

		name := st.Acronym
		if name == "" {
			name = s.nameFromTitle(st.BriefTitle)
		}

		out = append(out, model.DiscoveredTrial{
			Name:       name,
			NCTID:      st.NCTID,
			BriefTitle: st.BriefTitle,
			Phase:      st.Phase,
			Indication: indication,
			Status:     st.OverallStatus,
			Source:     model.TrialSourceRegistry,
		})
	}
	return out
}

func (s *Service) nameFromTitle(title string) string {
	names := s.extractor.Extract(title, 0.5)
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// lookupUnnamed issues one batched LLM request for all trials that resolved
// only to a registry ID. Returned names pass the ownership table before
// acceptance; a name claimed by another drug is dropped with a warning.
func (s *Service) lookupUnnamed(ctx context.Context, generic string, trials []model.DiscoveredTrial) []model.DiscoveredTrial {
	if s.generator == nil {
		return trials
	}

	var unnamed []string
	for _, t := range trials {
		if t.Name == "" && t.NCTID != "" {
			unnamed = append(unnamed, t.NCTID)
		}
	}
	if len(unnamed) == 0 {
		return trials
	}

	resp, err := s.generator.Generate(ctx, llm.GenerateRequest{
		Model:     s.cfg.LookupModel,
		MaxTokens: s.cfg.MaxTokens,
		Messages: []llm.Message{
			{Role: "user", Content: fmt.Sprintf(nameLookupPrompt, generic, strings.Join(unnamed, "\n"))},
		},
	})
	if err != nil {
		zap.L().Warn("discovery: trial name lookup failed",
			zap.String("drug", generic),
			zap.Int("trial_count", len(unnamed)),
			zap.Error(err),
		)
		return trials
	}
	resp.Usage.LogCost(s.cfg.LookupModel, "trial_name_lookup")

	names := parseNameLookup(resp.Text)
	for i, t := range trials {
		if t.Name != "" {
			continue
		}
		name, ok := names[t.NCTID]
		if !ok || name == "" {
			continue
		}
		name = strings.ToUpper(strings.TrimSpace(name))
		if !trialname.Plausible(name) || trialname.Excluded(name) {
			continue
		}
		if !validateOwnership(name, generic) {
			zap.L().Warn("discovery: rejected trial name owned by another drug",
				zap.String("name", name),
				zap.String("drug", generic),
				zap.String("owner", nameOwner(name)),
			)
			continue
		}
		trials[i].Name = name
		trials[i].Source = model.TrialSourceLLMLookup
	}
	return trials
}

// fromWebSearch asks the web-search provider for trial acronyms and mines
// them from the reply. No ownership cross-validation runs here; these
// names carry the lowest-confidence provenance tag instead.
func (s *Service) fromWebSearch(ctx context.Context, generic, indication string) []model.DiscoveredTrial {
	query := fmt.Sprintf(
		"List the names or acronyms of phase 2 and phase 3 clinical trials of %s in %s. Reply with trial names only.",
		generic, indication,
	)
	text, err := s.web.Search(ctx, query)
	if err != nil {
		zap.L().Warn("discovery: web search failed",
			zap.String("drug", generic),
			zap.String("indication", indication),
			zap.Error(err),
		)
		return nil
	}

	var out []model.DiscoveredTrial
	for _, name := range s.extractor.Extract(text, 0.5) {
		out = append(out, model.DiscoveredTrial{
			Name:       name,
			Indication: indication,
			Source:     model.TrialSourceWebSearch,
		})
	}
	return out
}

// dedupe collapses trials by upper-cased name (registry ID for unnamed
// entries), preferring registry provenance and then higher phase.
func dedupe(trials []model.DiscoveredTrial) []model.DiscoveredTrial {
	var order []string
	best := make(map[string]model.DiscoveredTrial)

	for _, t := range trials {
		key := strings.ToUpper(t.Identifier())
		if key == "" {
			continue
		}
		cur, seen := best[key]
		if !seen {
			order = append(order, key)
			best[key] = t
			continue
		}
		if preferOver(t, cur) {
			best[key] = t
		}
	}

	out := make([]model.DiscoveredTrial, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	return out
}

func preferOver(a, b model.DiscoveredTrial) bool {
	ra, rb := sourceRank(a.Source), sourceRank(b.Source)
	if ra != rb {
		return ra > rb
	}
	return phaseRank(a.Phase) > phaseRank(b.Phase)
}

func sourceRank(s model.TrialSource) int {
	switch s {
	case model.TrialSourceRegistry:
		return 3
	case model.TrialSourceLLMLookup:
		return 2
	case model.TrialSourceWebSearch:
		return 1
	default:
		return 0
	}
}

var phaseDigit = regexp.MustCompile(`[1-4]`)

func phaseRank(phase string) int {
	digits := phaseDigit.FindAllString(phase, -1)
	rank := 0
	for _, d := range digits {
		r := int(d[0] - '0')
		if r > rank {
			rank = r
		}
	}
	return rank
}

func countNamed(trials []model.DiscoveredTrial) int {
	n := 0
	for _, t := range trials {
		if t.Name != "" {
			n++
		}
	}
	return n
}

// antibodySuffix matches the paired biosimilar/antibody designation suffix
// on generic names, e.g. "adalimumab-atto".
var antibodySuffix = regexp.MustCompile(`(?i)^([a-z]+(?:mab|cept))-[a-z]{3,4}$`)

// CleanGenericName strips the trailing antibody designation suffix so
// registry queries match the base generic name.
func CleanGenericName(name string) string {
	name = strings.TrimSpace(name)
	if m := antibodySuffix.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	return name
}

// parseNameLookup pulls the first JSON object out of a model reply and
// decodes it as a registry-ID → trial-name map. Anything unparseable
// yields an empty map.
func parseNameLookup(text string) map[string]string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil
	}

	var raw map[string]*string
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		zap.L().Warn("discovery: unparseable name lookup response", zap.Error(err))
		return nil
	}

	out := make(map[string]string, len(raw))
	for id, name := range raw {
		if name != nil {
			out[id] = *name
		}
	}
	return out
}
