package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vantdge/evidence-cli/internal/model"
)

var (
	benchDisease   string
	benchDrugs     string
	benchEndpoints string
	benchWebSearch bool
)

var benchmarkCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Run an extraction session for one disease across a set of drugs",
	Long: `Standardizes the disease name, then for each drug discovers clinical
trials, extracts efficacy data points from publications (falling back to
registry records on thin yields), scores extraction confidence, and
persists everything under a new session.

Examples:
  # Benchmark three lupus drugs
  benchmark --disease "SLE" --drugs belimumab,anifrolumab,voclosporin

  # Guide extraction toward known endpoints and allow web search
  benchmark --disease "ulcerative colitis" --drugs tofacitinib \
    --endpoints "clinical remission,endoscopic improvement" --web-search`,
	RunE: runBenchmark,
}

func init() {
	f := benchmarkCmd.Flags()
	f.StringVar(&benchDisease, "disease", "", "disease or indication to benchmark (required)")
	f.StringVar(&benchDrugs, "drugs", "", "comma-separated drug generic names (required)")
	f.StringVar(&benchEndpoints, "endpoints", "", "comma-separated expected endpoint names")
	f.BoolVar(&benchWebSearch, "web-search", false, "enable the web-search discovery fallback")
	_ = benchmarkCmd.MarkFlagRequired("disease")
	_ = benchmarkCmd.MarkFlagRequired("drugs")

	rootCmd.AddCommand(benchmarkCmd)
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := initPipeline(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	drugs := parseDrugList(benchDrugs)
	if len(drugs) == 0 {
		return eris.New("no drugs given")
	}
	for _, d := range drugs {
		if err := env.Store.UpsertDrug(ctx, d); err != nil {
			zap.L().Warn("drug snapshot upsert failed",
				zap.String("drug", d.Key),
				zap.Error(err),
			)
		}
	}

	progress := func(fraction float64, message string) {
		fmt.Printf("[%3.0f%%] %s\n", fraction*100, message)
	}

	sess, err := env.Runner.Run(ctx, benchDisease, drugs, splitList(benchEndpoints), progress)
	if err != nil {
		return err
	}

	fmt.Printf("\nsession %s: %s\n", sess.ID, sess.Status)
	for _, result := range sess.Results {
		fmt.Printf("  %-20s %-8s %d points\n",
			result.Drug.DisplayName(), result.Status, len(result.DataPoints))
		for _, e := range result.Errors {
			fmt.Printf("    ! %s\n", e)
		}
	}
	if pending := model.PendingReviewCount(sess.Results); pending > 0 {
		fmt.Printf("\n%d points need review: evidence-cli serve, then GET /api/sessions/%s/pending\n",
			pending, sess.ID)
	}
	return nil
}

func parseDrugList(s string) []model.ApprovedDrug {
	var out []model.ApprovedDrug
	for _, name := range splitList(s) {
		key := strings.ToLower(name)
		out = append(out, model.ApprovedDrug{
			Key:         key,
			GenericName: name,
		})
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
