package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vantdge/evidence-cli/internal/aggregate"
	"github.com/vantdge/evidence-cli/internal/store"
)

var aggregateDisease string

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Roll accepted evidence up into ranked opportunities",
	Long: `Collects every accepted data point across past sessions, rolls the
evidence up per drug and disease, and replaces the stored opportunity
table. Re-running is safe: ranks and scores are recomputed wholesale.`,
	RunE: runAggregate,
}

func init() {
	aggregateCmd.Flags().StringVar(&aggregateDisease, "disease", "", "restrict aggregation to one disease")

	rootCmd.AddCommand(aggregateCmd)
}

func runAggregate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate("aggregate"); err != nil {
		return err
	}

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	if err := st.Migrate(ctx); err != nil {
		return eris.Wrap(err, "migrate store")
	}

	pairs, err := sessionPairs(ctx, st, aggregateDisease)
	if err != nil {
		return err
	}
	if len(pairs) == 0 {
		fmt.Println("no sessions with extracted evidence found")
		return nil
	}

	var papers []aggregate.PaperEvidence
	for _, pair := range pairs {
		points, err := st.ListNonRejectedPoints(ctx, pair.drugKey, pair.disease)
		if err != nil {
			return eris.Wrap(err, fmt.Sprintf("list points for %s in %s", pair.drugKey, pair.disease))
		}
		papers = append(papers, aggregate.BuildPaperEvidence(pair.drugKey, pair.disease, points)...)
	}

	opps := aggregatorFromConfig().Aggregate(papers)
	for _, opp := range opps {
		if err := st.ReplaceOpportunity(ctx, opp); err != nil {
			return eris.Wrap(err, fmt.Sprintf("replace opportunity %s/%s", opp.DrugKey, opp.Disease))
		}
	}

	zap.L().Info("aggregation complete",
		zap.Int("pairs", len(pairs)),
		zap.Int("papers", len(papers)),
		zap.Int("opportunities", len(opps)),
	)

	for _, opp := range opps {
		rate := "-"
		if opp.AvgResponseRate != nil {
			rate = fmt.Sprintf("%.1f%%", *opp.AvgResponseRate)
		}
		fmt.Printf("#%d %-20s %-35s score %.2f  n=%d  rate %s  %s/%s\n",
			opp.Rank, opp.DrugKey, opp.Disease, opp.AggregateScore,
			opp.TotalPatients, rate, opp.Consistency, opp.Signal)
	}
	return nil
}

type drugDiseasePair struct {
	drugKey string
	disease string
}

// sessionPairs walks past sessions and collects the distinct drug×disease
// pairs that have evidence worth aggregating.
func sessionPairs(ctx context.Context, st store.Store, diseaseFilter string) ([]drugDiseasePair, error) {
	sessions, err := st.ListSessions(ctx, store.SessionFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "list sessions")
	}

	seen := make(map[drugDiseasePair]bool)
	var out []drugDiseasePair
	for _, sess := range sessions {
		disease := sess.Disease.StandardName
		if disease == "" {
			continue
		}
		if diseaseFilter != "" && disease != diseaseFilter {
			continue
		}
		for _, drug := range sess.Drugs {
			pair := drugDiseasePair{drugKey: drug.Key, disease: disease}
			if seen[pair] {
				continue
			}
			seen[pair] = true
			out = append(out, pair)
		}
	}
	return out, nil
}
