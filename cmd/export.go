package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/vantdge/evidence-cli/internal/export"
)

var (
	exportOutput string
	exportDrug   string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export aggregated opportunities to an xlsx workbook",
	RunE:  runExport,
}

func init() {
	f := exportCmd.Flags()
	f.StringVar(&exportOutput, "output", "opportunities.xlsx", "output workbook path")
	f.StringVar(&exportDrug, "drug", "", "restrict the export to one drug")

	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
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

	opps, err := st.ListOpportunities(ctx, exportDrug)
	if err != nil {
		return eris.Wrap(err, "list opportunities")
	}
	if len(opps) == 0 {
		return eris.New("no opportunities to export; run aggregate first")
	}

	workbook, err := export.Workbook(opps)
	if err != nil {
		return err
	}
	if err := workbook.Save(exportOutput); err != nil {
		return eris.Wrap(err, "save workbook")
	}

	fmt.Printf("exported %d opportunities to %s\n", len(opps), exportOutput)
	return nil
}
