// Package extract turns papers and registry records into structured
// EfficacyDataPoints. The publication path runs LLM extraction over paper
// text; the registry path reads posted outcome measures directly. Neither
// path raises on a bad item: a paper that cannot be parsed contributes zero
// points and the pipeline moves on.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vantdge/evidence-cli/internal/model"
	"github.com/vantdge/evidence-cli/internal/trialname"
	"github.com/vantdge/evidence-cli/pkg/llm"
	"github.com/vantdge/evidence-cli/pkg/pubmed"
)

// Config tunes the publication extractor.
type Config struct {
	Model             string
	MaxTokens         int64
	MaxPapersPerTrial int
}

// PublicationExtractor extracts data points from papers found for a drug's
// discovered trials.
type PublicationExtractor struct {
	papers    PaperIndex
	generator llm.Client
	cfg       Config
}

// NewPublicationExtractor creates a publication extractor.
func NewPublicationExtractor(papers PaperIndex, generator llm.Client, cfg Config) *PublicationExtractor {
	if cfg.MaxPapersPerTrial <= 0 {
		cfg.MaxPapersPerTrial = 3
	}
	return &PublicationExtractor{
		papers:    papers,
		generator: generator,
		cfg:       cfg,
	}
}

// Extract searches papers per named trial (falling back to direct
// drug+disease search when discovery produced no names) and runs LLM
// extraction over each paper.
func (e *PublicationExtractor) Extract(ctx context.Context, drug model.ApprovedDrug, disease model.DiseaseMatch, info model.DrugTrialInfo, expectedEndpoints []string) []model.EfficacyDataPoint {
	var points []model.EfficacyDataPoint
	seen := make(map[string]bool)

	named := info.NamedTrials()
	if len(named) == 0 {
		articles := searchFallbackPapers(ctx, e.papers, info.GenericName, disease.StandardName)
		return e.extractFromArticles(ctx, articles, drug, disease, model.DiscoveredTrial{}, expectedEndpoints, seen)
	}

	for _, trial := range named {
		articles := searchTrialPapers(ctx, e.papers, trial, info.GenericName)
		points = append(points, e.extractFromArticles(ctx, articles, drug, disease, trial, expectedEndpoints, seen)...)
	}
	return points
}

func (e *PublicationExtractor) extractFromArticles(ctx context.Context, articles []pubmed.Article, drug model.ApprovedDrug, disease model.DiseaseMatch, trial model.DiscoveredTrial, expectedEndpoints []string, seen map[string]bool) []model.EfficacyDataPoint {
	var points []model.EfficacyDataPoint
	taken := 0

	for _, a := range articles {
		if taken >= e.cfg.MaxPapersPerTrial {
			break
		}
		if a.PMID == "" || seen[a.PMID] {
			continue
		}
		seen[a.PMID] = true
		taken++

		content := e.paperContent(ctx, a)
		if content == "" {
			continue
		}

		wires, ok := e.generate(ctx, drug, disease, content, expectedEndpoints)
		if !ok {
			continue
		}

		for _, w := range wires {
			if w.EndpointName == "" {
				continue
			}
			points = append(points, w.toDataPoint(trial, a))
		}
	}
	return points
}

// paperContent prefers open-access full text over the abstract.
func (e *PublicationExtractor) paperContent(ctx context.Context, a pubmed.Article) string {
	if a.HasFullText() {
		text, err := e.papers.FetchFullText(ctx, a.PMCID)
		if err == nil && text != "" {
			return text
		}
		zap.L().Warn("extract: full text fetch failed, using abstract",
			zap.String("pmcid", a.PMCID),
			zap.Error(err),
		)
	}
	return a.Abstract
}

func (e *PublicationExtractor) generate(ctx context.Context, drug model.ApprovedDrug, disease model.DiseaseMatch, content string, expectedEndpoints []string) ([]wirePoint, bool) {
	endpoints := "any reported efficacy endpoints"
	if len(expectedEndpoints) > 0 {
		endpoints = strings.Join(expectedEndpoints, ", ")
	}

	resp, err := e.generator.Generate(ctx, llm.GenerateRequest{
		Model:     e.cfg.Model,
		MaxTokens: e.cfg.MaxTokens,
		System: []llm.SystemBlock{
			{Text: extractionSystemPrompt, CacheControl: &llm.CacheControl{TTL: "5m"}},
		},
		Messages: []llm.Message{
			{Role: "user", Content: fmt.Sprintf(publicationPrompt, drug.DisplayName(), disease.StandardName, endpoints, content)},
		},
	})
	if err != nil {
		zap.L().Warn("extract: generation failed", zap.Error(err))
		return nil, false
	}
	resp.Usage.LogCost(e.cfg.Model, "publication_extraction")

	if resp.Truncated() {
		zap.L().Info("extract: response truncated at token limit, repairing")
	}

	repaired, err := RepairTruncatedArray(resp.Text)
	if err != nil {
		zap.L().Warn("extract: no parseable array in response", zap.Error(err))
		return nil, false
	}

	var wires []wirePoint
	if err := json.Unmarshal([]byte(repaired), &wires); err != nil {
		zap.L().Warn("extract: unmarshal repaired array", zap.Error(err))
		return nil, false
	}
	return wires, true
}

// wirePoint mirrors one element of the model's extraction array. Numeric
// fields tolerate decorated strings like "<0.001".
type wirePoint struct {
	EndpointName  string     `json:"endpoint_name"`
	EndpointType  string     `json:"endpoint_type"`
	TrialName     string     `json:"trial_name"`
	Phase         string     `json:"phase"`
	DrugArm       wireArm    `json:"drug_arm"`
	ComparatorArm wireArm    `json:"comparator_arm"`
	PValue        looseFloat `json:"p_value"`
	ConfidenceCI  string     `json:"confidence_interval"`
	Timepoint     string     `json:"timepoint"`
	RawText       string     `json:"raw_text"`
}

type wireArm struct {
	Name   string     `json:"name"`
	N      looseInt   `json:"n"`
	Result looseFloat `json:"result"`
	Unit   string     `json:"unit"`
}

func (w wirePoint) toDataPoint(trial model.DiscoveredTrial, a pubmed.Article) model.EfficacyDataPoint {
	p := model.EfficacyDataPoint{
		SourceKind:   model.SourcePublication,
		SourceURL:    pubmedURL(a.PMID),
		PaperID:      a.PMID,
		NCTID:        trial.NCTID,
		TrialName:    attributeTrialName(w.TrialName, trial, a),
		Phase:        w.Phase,
		EndpointName: w.EndpointName,
		EndpointType: endpointType(w.EndpointType),
		DrugArm: model.Arm{
			Name:   w.DrugArm.Name,
			N:      w.DrugArm.N.Value,
			Result: w.DrugArm.Result.Value,
			Unit:   w.DrugArm.Unit,
		},
		ComparatorArm: model.Arm{
			Name:   w.ComparatorArm.Name,
			N:      w.ComparatorArm.N.Value,
			Result: w.ComparatorArm.Result.Value,
		},
		PValue:          w.PValue.Value,
		ConfidenceCI:    w.ConfidenceCI,
		Timepoint:       w.Timepoint,
		RawText:         w.RawText,
		ConfidenceScore: model.DefaultConfidence,
		CreatedAt:       time.Now().UTC(),
	}
	if p.Phase == "" {
		p.Phase = trial.Phase
	}
	return p
}

// attributeTrialName resolves the point's trial name by priority: the name
// discovery resolved, then a validated name from the model's own output,
// then the registry brief title, then the registry ID, then the paper title.
func attributeTrialName(modelName string, trial model.DiscoveredTrial, a pubmed.Article) string {
	if trial.Name != "" {
		return trial.Name
	}

	candidate := strings.ToUpper(strings.TrimSpace(modelName))
	if candidate != "" && trialname.Plausible(candidate) {
		return candidate
	}

	if trial.BriefTitle != "" {
		return trial.BriefTitle
	}
	if trial.NCTID != "" {
		return trial.NCTID
	}
	return a.Title
}

func endpointType(s string) model.EndpointType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "primary":
		return model.EndpointPrimary
	case "secondary":
		return model.EndpointSecondary
	case "exploratory":
		return model.EndpointExploratory
	default:
		return ""
	}
}

func pubmedURL(pmid string) string {
	return "https://pubmed.ncbi.nlm.nih.gov/" + pmid + "/"
}
