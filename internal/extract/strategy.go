package extract

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vantdge/evidence-cli/internal/model"
	"github.com/vantdge/evidence-cli/pkg/pubmed"
)

// PaperIndex is the publication-search surface extraction depends on.
type PaperIndex interface {
	SearchArticles(ctx context.Context, query string) ([]pubmed.Article, error)
	FetchFullText(ctx context.Context, pmcid string) (string, error)
}

// paperStrategy builds one search query for a trial. An empty query means
// the strategy does not apply to this trial.
type paperStrategy struct {
	name  string
	query func(trial model.DiscoveredTrial, drug string) string
}

// trialPaperStrategies is the ordered chain for finding a named trial's
// papers. Registry ID comes first: primary results papers often omit the
// trial nickname from title and abstract and are only findable by NCT ID.
var trialPaperStrategies = []paperStrategy{
	{
		name: "registry_id",
		query: func(t model.DiscoveredTrial, _ string) string {
			return t.NCTID
		},
	},
	{
		name: "name_and_drug",
		query: func(t model.DiscoveredTrial, drug string) string {
			if t.Name == "" {
				return ""
			}
			return fmt.Sprintf("%s %s", t.Name, drug)
		},
	},
	{
		name: "name_and_efficacy",
		query: func(t model.DiscoveredTrial, _ string) string {
			if t.Name == "" {
				return ""
			}
			return t.Name + " efficacy"
		},
	},
}

// searchTrialPapers walks the strategy chain and returns the first
// strategy's non-empty result. Search errors advance the chain rather than
// aborting it.
func searchTrialPapers(ctx context.Context, papers PaperIndex, trial model.DiscoveredTrial, drug string) []pubmed.Article {
	for _, strat := range trialPaperStrategies {
		q := strat.query(trial, drug)
		if q == "" {
			continue
		}

		found, err := papers.SearchArticles(ctx, q)
		if err != nil {
			zap.L().Warn("extract: paper search failed",
				zap.String("strategy", strat.name),
				zap.String("trial", trial.Identifier()),
				zap.Error(err),
			)
			continue
		}
		if len(found) > 0 {
			return found
		}
	}
	return nil
}

// fallbackQueries are the direct drug+disease searches used when discovery
// produced no named trials, tried in order until one returns papers.
func fallbackQueries(drug, disease string) []string {
	return []string{
		fmt.Sprintf("%s %s randomized controlled trial", drug, disease),
		fmt.Sprintf("%s %s phase 3", drug, disease),
		fmt.Sprintf("%s %s efficacy systematic review", drug, disease),
	}
}

func searchFallbackPapers(ctx context.Context, papers PaperIndex, drug, disease string) []pubmed.Article {
	for _, q := range fallbackQueries(drug, disease) {
		found, err := papers.SearchArticles(ctx, q)
		if err != nil {
			zap.L().Warn("extract: fallback paper search failed",
				zap.String("query", q),
				zap.Error(err),
			)
			continue
		}
		if len(found) > 0 {
			return found
		}
	}
	return nil
}
