package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantdge/evidence-cli/internal/model"
	"github.com/vantdge/evidence-cli/pkg/llm"
	"github.com/vantdge/evidence-cli/pkg/pubmed"
)

type fakePaperIndex struct {
	// byQuery maps a search query to its result; unmatched queries return
	// nothing.
	byQuery  map[string][]pubmed.Article
	fullText map[string]string
	queries  []string
	err      error
}

func (f *fakePaperIndex) SearchArticles(_ context.Context, query string) ([]pubmed.Article, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.byQuery[query], nil
}

func (f *fakePaperIndex) FetchFullText(_ context.Context, pmcid string) (string, error) {
	if text, ok := f.fullText[pmcid]; ok {
		return text, nil
	}
	return "", errors.New("not open access")
}

type fakeGenerator struct {
	text       string
	stopReason string
	err        error
	calls      int
	lastPrompt string
}

func (f *fakeGenerator) Generate(_ context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	f.calls++
	f.lastPrompt = req.Messages[len(req.Messages)-1].Content
	if f.err != nil {
		return nil, f.err
	}
	stop := f.stopReason
	if stop == "" {
		stop = "end_turn"
	}
	return &llm.GenerateResponse{Text: f.text, StopReason: stop}, nil
}

const blissExtraction = `[{"endpoint_name": "SRI-4", "endpoint_type": "primary", "trial_name": null, "phase": "Phase 3",
"drug_arm": {"name": "belimumab 10 mg/kg", "n": 290, "result": 52.4, "unit": "%"},
"comparator_arm": {"name": "placebo", "n": 287, "result": 30.9},
"p_value": "<0.001", "confidence_interval": null, "timepoint": "Week 52",
"raw_text": "52.4% of patients receiving belimumab 10 mg/kg achieved SRI-4 vs 30.9% placebo (p<0.001)"}]`

func blissArticle() pubmed.Article {
	return pubmed.Article{
		PMID:     "21292285",
		Title:    "Efficacy and safety of belimumab in patients with active SLE (BLISS-52)",
		Abstract: "52.4% of patients receiving belimumab 10 mg/kg achieved SRI-4 vs 30.9% placebo (p<0.001).",
		Journal:  "Lancet",
		Year:     2011,
	}
}

func blissTrialInfo() model.DrugTrialInfo {
	return model.DrugTrialInfo{
		DrugName:    "belimumab",
		GenericName: "belimumab",
		Indication:  "Systemic Lupus Erythematosus",
		Trials: []model.DiscoveredTrial{
			{Name: "BLISS-52", NCTID: "NCT00424476", Phase: "Phase 3", Source: model.TrialSourceRegistry},
		},
	}
}

func sleMatch() model.DiseaseMatch {
	return model.DiseaseMatch{
		RawName:      "SLE",
		StandardName: "Systemic Lupus Erythematosus",
		MatchType:    model.MatchPredefined,
		Confidence:   1.0,
	}
}

func TestExtract_PublicationPoint(t *testing.T) {
	papers := &fakePaperIndex{byQuery: map[string][]pubmed.Article{
		"NCT00424476": {blissArticle()},
	}}
	gen := &fakeGenerator{text: blissExtraction}

	e := NewPublicationExtractor(papers, gen, Config{Model: "claude-sonnet-4-5-20250929", MaxTokens: 4096})
	points := e.Extract(context.Background(), model.ApprovedDrug{Key: "belimumab", GenericName: "belimumab"}, sleMatch(), blissTrialInfo(), []string{"SRI-4"})

	require.Len(t, points, 1)
	p := points[0]
	assert.Equal(t, model.SourcePublication, p.SourceKind)
	assert.Equal(t, "https://pubmed.ncbi.nlm.nih.gov/21292285/", p.SourceURL)
	assert.Equal(t, "21292285", p.PaperID)
	assert.Equal(t, "NCT00424476", p.NCTID)
	assert.Equal(t, "BLISS-52", p.TrialName)
	assert.Equal(t, "Phase 3", p.Phase)
	assert.Equal(t, "SRI-4", p.EndpointName)
	assert.Equal(t, model.EndpointPrimary, p.EndpointType)

	require.NotNil(t, p.DrugArm.Result)
	assert.InDelta(t, 52.4, *p.DrugArm.Result, 0.001)
	require.NotNil(t, p.DrugArm.N)
	assert.Equal(t, 290, *p.DrugArm.N)
	require.NotNil(t, p.ComparatorArm.Result)
	assert.InDelta(t, 30.9, *p.ComparatorArm.Result, 0.001)

	require.NotNil(t, p.PValue)
	assert.InDelta(t, 0.001, *p.PValue, 1e-9, "comparison operator stripped")
	assert.Equal(t, "Week 52", p.Timepoint)
	assert.InDelta(t, model.DefaultConfidence, p.ConfidenceScore, 0.001, "placeholder until scored")

	assert.Contains(t, gen.lastPrompt, "SRI-4", "expected endpoints reach the prompt")
	assert.Contains(t, gen.lastPrompt, "belimumab")
}

func TestExtract_TruncatedResponseRepaired(t *testing.T) {
	papers := &fakePaperIndex{byQuery: map[string][]pubmed.Article{
		"NCT00424476": {blissArticle()},
	}}
	truncated := blissExtraction[:len(blissExtraction)-1] + `, {"endpoint_name": "SLEDAI imp`
	gen := &fakeGenerator{text: truncated, stopReason: "max_tokens"}

	e := NewPublicationExtractor(papers, gen, Config{})
	points := e.Extract(context.Background(), model.ApprovedDrug{GenericName: "belimumab"}, sleMatch(), blissTrialInfo(), nil)

	require.Len(t, points, 1, "complete first object survives, partial second is dropped")
	assert.Equal(t, "SRI-4", points[0].EndpointName)
}

func TestExtract_StrategyChainOrder(t *testing.T) {
	// Registry ID search comes up empty; the name+drug strategy hits.
	papers := &fakePaperIndex{byQuery: map[string][]pubmed.Article{
		"BLISS-52 belimumab": {blissArticle()},
	}}
	gen := &fakeGenerator{text: blissExtraction}

	e := NewPublicationExtractor(papers, gen, Config{})
	points := e.Extract(context.Background(), model.ApprovedDrug{GenericName: "belimumab"}, sleMatch(), blissTrialInfo(), nil)

	require.Len(t, points, 1)
	require.GreaterOrEqual(t, len(papers.queries), 2)
	assert.Equal(t, "NCT00424476", papers.queries[0], "registry ID is tried first")
	assert.Equal(t, "BLISS-52 belimumab", papers.queries[1])
}

func TestExtract_FallbackSearchWithoutNamedTrials(t *testing.T) {
	papers := &fakePaperIndex{byQuery: map[string][]pubmed.Article{
		"belimumab Systemic Lupus Erythematosus randomized controlled trial": {blissArticle()},
	}}
	gen := &fakeGenerator{text: blissExtraction}

	info := model.DrugTrialInfo{GenericName: "belimumab", Indication: "Systemic Lupus Erythematosus"}
	e := NewPublicationExtractor(papers, gen, Config{})
	points := e.Extract(context.Background(), model.ApprovedDrug{GenericName: "belimumab"}, sleMatch(), info, nil)

	require.Len(t, points, 1)
	assert.Equal(t, "belimumab Systemic Lupus Erythematosus randomized controlled trial", papers.queries[0])
}

func TestExtract_FullTextPreferredOverAbstract(t *testing.T) {
	article := blissArticle()
	article.PMCID = "PMC3272302"
	papers := &fakePaperIndex{
		byQuery:  map[string][]pubmed.Article{"NCT00424476": {article}},
		fullText: map[string]string{"PMC3272302": "FULL TEXT: SRI-4 response was 57.6% vs 43.6%."},
	}
	gen := &fakeGenerator{text: blissExtraction}

	e := NewPublicationExtractor(papers, gen, Config{})
	_ = e.Extract(context.Background(), model.ApprovedDrug{GenericName: "belimumab"}, sleMatch(), blissTrialInfo(), nil)

	assert.Contains(t, gen.lastPrompt, "FULL TEXT:", "full text should reach the prompt when available")
}

func TestExtract_GenerationFailureYieldsZeroPoints(t *testing.T) {
	papers := &fakePaperIndex{byQuery: map[string][]pubmed.Article{
		"NCT00424476": {blissArticle()},
	}}
	gen := &fakeGenerator{err: errors.New("model overloaded")}

	e := NewPublicationExtractor(papers, gen, Config{})
	points := e.Extract(context.Background(), model.ApprovedDrug{GenericName: "belimumab"}, sleMatch(), blissTrialInfo(), nil)
	assert.Empty(t, points)
}

func TestExtract_DuplicatePapersAcrossTrialsSkipped(t *testing.T) {
	article := blissArticle()
	papers := &fakePaperIndex{byQuery: map[string][]pubmed.Article{
		"NCT00424476": {article},
		"NCT00410384": {article},
	}}
	gen := &fakeGenerator{text: blissExtraction}

	info := blissTrialInfo()
	info.Trials = append(info.Trials, model.DiscoveredTrial{
		Name: "BLISS-76", NCTID: "NCT00410384", Phase: "Phase 3", Source: model.TrialSourceRegistry,
	})

	e := NewPublicationExtractor(papers, gen, Config{})
	points := e.Extract(context.Background(), model.ApprovedDrug{GenericName: "belimumab"}, sleMatch(), info, nil)

	assert.Len(t, points, 1, "the same paper must not be extracted twice")
	assert.Equal(t, 1, gen.calls)
}

func TestAttributeTrialName(t *testing.T) {
	article := pubmed.Article{Title: "Some paper title"}

	withName := model.DiscoveredTrial{Name: "BLISS-52", NCTID: "NCT00424476"}
	assert.Equal(t, "BLISS-52", attributeTrialName("WRONG-1", withName, article),
		"discovery name wins over model output")

	idOnly := model.DiscoveredTrial{NCTID: "NCT00424476"}
	assert.Equal(t, "TULIP-2", attributeTrialName("tulip-2", idOnly, article),
		"plausible model-proposed name is accepted, upper-cased")
	assert.Equal(t, "NCT00424476", attributeTrialName("RANDOMIZED", idOnly, article),
		"excluded vocabulary falls through to the registry ID")

	withTitle := model.DiscoveredTrial{NCTID: "NCT00424476", BriefTitle: "A Study of Belimumab in Subjects With SLE"}
	assert.Equal(t, "A Study of Belimumab in Subjects With SLE", attributeTrialName("", withTitle, article),
		"registry brief title beats the bare registry ID")

	assert.Equal(t, "Some paper title", attributeTrialName("", model.DiscoveredTrial{}, article),
		"paper title is the last resort")
}

func TestEndpointType(t *testing.T) {
	assert.Equal(t, model.EndpointPrimary, endpointType("Primary"))
	assert.Equal(t, model.EndpointSecondary, endpointType("secondary"))
	assert.Equal(t, model.EndpointExploratory, endpointType("exploratory"))
	assert.Equal(t, model.EndpointType(""), endpointType("something else"))
}
