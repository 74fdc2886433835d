package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vantdge/evidence-cli/internal/condition"
	"github.com/vantdge/evidence-cli/internal/store"
)

var standardizeCmd = &cobra.Command{
	Use:   "standardize <disease name>",
	Short: "Resolve a free-text disease name to its canonical form",
	Long: `Resolves a raw disease name through the standardization chain
(curated synonyms, persisted mappings, fuzzy matching) and prints the
match as JSON. Runs without a database; when one is configured the
persisted mapping table joins the chain.`,
	Args: cobra.ExactArgs(1),
	RunE: runStandardize,
}

func init() {
	rootCmd.AddCommand(standardizeCmd)
}

func runStandardize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var mappings condition.MappingStore
	if cfg.Store.DatabaseURL != "" {
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()
		if err := st.Migrate(ctx); err == nil {
			mappings = st
		} else {
			zap.L().Warn("store migration failed, standardizing without persisted mappings", zap.Error(err))
		}
	}

	match := condition.New(nil, mappings).Standardize(ctx, args[0])

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(match)
}

// compile-time check that the store satisfies the mapping-store seam.
var _ condition.MappingStore = (store.Store)(nil)
