package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vantdge/evidence-cli/internal/model"
)

var (
	discoverDrug       string
	discoverIndication string
	discoverWebSearch  bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover named clinical trials for one drug and indication",
	Long: `Runs the trial discovery pipeline in isolation and prints the
resulting trial set as JSON. Useful for checking what the benchmark
command would find before committing to a full extraction run.`,
	RunE: runDiscover,
}

func init() {
	f := discoverCmd.Flags()
	f.StringVar(&discoverDrug, "drug", "", "drug generic name (required)")
	f.StringVar(&discoverIndication, "indication", "", "indication to search under (required)")
	f.BoolVar(&discoverWebSearch, "web-search", false, "enable the web-search fallback")
	_ = discoverCmd.MarkFlagRequired("drug")
	_ = discoverCmd.MarkFlagRequired("indication")

	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := initPipeline(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	drug := model.ApprovedDrug{
		Key:         strings.ToLower(discoverDrug),
		GenericName: discoverDrug,
	}
	info := env.Discovery.DiscoverTrials(ctx, drug, discoverIndication, discoverWebSearch)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}
