package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vantdge/evidence-cli/internal/aggregate"
	"github.com/vantdge/evidence-cli/internal/condition"
	"github.com/vantdge/evidence-cli/internal/discovery"
	"github.com/vantdge/evidence-cli/internal/extract"
	"github.com/vantdge/evidence-cli/internal/resilience"
	"github.com/vantdge/evidence-cli/internal/scoring"
	"github.com/vantdge/evidence-cli/internal/session"
	"github.com/vantdge/evidence-cli/internal/store"
	"github.com/vantdge/evidence-cli/pkg/ctgov"
	"github.com/vantdge/evidence-cli/pkg/llm"
	"github.com/vantdge/evidence-cli/pkg/pubmed"
	"github.com/vantdge/evidence-cli/pkg/websearch"
)

// pipelineEnv holds the initialized store, clients, and pipeline pieces the
// benchmark/discover/serve commands share.
type pipelineEnv struct {
	Store        store.Store
	Standardizer *condition.Standardizer
	Discovery    *discovery.Service
	Runner       *session.Runner
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline sets up the store, all API clients, and the session runner.
// Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate("benchmark"); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	generator := llm.NewClient(cfg.Anthropic.Key)

	registry := ctgov.NewClient(
		ctgov.WithBaseURL(cfg.CTGov.BaseURL),
		ctgov.WithMinInterval(time.Duration(cfg.CTGov.MinIntervalMs)*time.Millisecond),
		ctgov.WithMaxResults(cfg.CTGov.MaxResults),
		ctgov.WithDetailFanout(cfg.CTGov.DetailFanout),
		ctgov.WithRetryConfig(resilience.FromRegistryRetryConfig(cfg.CTGov.RetryAttempts, cfg.CTGov.RetryBackoffMs)),
		ctgov.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.CTGov.TimeoutSecs) * time.Second}),
	)

	pubmedOpts := []pubmed.Option{
		pubmed.WithBaseURL(cfg.PubMed.BaseURL),
		pubmed.WithMaxResults(cfg.PubMed.MaxResults),
		pubmed.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.PubMed.TimeoutSecs) * time.Second}),
	}
	if cfg.PubMed.APIKey != "" {
		pubmedOpts = append(pubmedOpts, pubmed.WithAPIKey(cfg.PubMed.APIKey))
	}
	papers := pubmed.NewClient(pubmedOpts...)

	// Web search is the last-resort discovery fallback; without a key the
	// pipeline simply runs without it.
	var web discovery.Searcher
	if cfg.WebSearch.Key != "" {
		web = discovery.Guard(websearch.NewClient(cfg.WebSearch.Key,
			websearch.WithBaseURL(cfg.WebSearch.BaseURL),
			websearch.WithModel(cfg.WebSearch.Model),
		), resilience.NewCircuitBreaker(resilience.FromCircuitConfig(cfg.WebSearch.BreakerFailures, cfg.WebSearch.BreakerResetSecs)))
	} else {
		zap.L().Debug("EVIDENCE_WEBSEARCH_KEY not set, web-search fallback disabled")
	}

	standardizer := condition.New(nil, st)

	disc := discovery.New(registry, generator, web, discovery.Config{
		LookupModel: cfg.Anthropic.LookupModel,
		MaxTokens:   int64(cfg.Anthropic.MaxTokens),
	})

	publications := extract.NewPublicationExtractor(papers, generator, extract.Config{
		Model:     cfg.Anthropic.ExtractionModel,
		MaxTokens: int64(cfg.Anthropic.MaxTokens),
	})
	registryExtractor := extract.NewRegistryExtractor(registry, cfg.Session.MaxSecondaryOutcomes)

	scorer := scoring.New(scoring.Weights{
		Completeness: cfg.Scoring.CompletenessWeight,
		Source:       cfg.Scoring.SourceWeight,
		Significance: cfg.Scoring.SignificanceWeight,
		Quality:      cfg.Scoring.QualityWeight,
	}, cfg.Scoring.ReviewThreshold)

	runner := session.New(standardizer, disc, publications, registryExtractor, scorer, st, session.Config{
		InterDrugDelay:       time.Duration(cfg.Session.InterDrugDelaySecs) * time.Second,
		MinPublicationPoints: cfg.Session.MinPublicationPoints,
		UseWebSearch:         benchWebSearch && web != nil,
	})

	return &pipelineEnv{
		Store:        st,
		Standardizer: standardizer,
		Discovery:    disc,
		Runner:       runner,
	}, nil
}

// aggregatorFromConfig maps the aggregation policy section onto the
// aggregator's own config type.
func aggregatorFromConfig() *aggregate.Aggregator {
	return aggregate.New(aggregate.Config{
		CVHighMax:      cfg.Aggregate.CVHighMax,
		CVModerateMax:  cfg.Aggregate.CVModerateMax,
		DefaultScore:   cfg.Aggregate.DefaultScore,
		StrongSignal:   cfg.Aggregate.StrongSignal,
		ModerateSignal: cfg.Aggregate.ModerateSignal,
		WeakSignal:     cfg.Aggregate.WeakSignal,
	})
}
