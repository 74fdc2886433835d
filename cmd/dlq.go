package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vantdge/evidence-cli/internal/resilience"
)

const dlqReplayDelay = 5 * time.Minute

var dlqLimit int

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect the dead letter queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
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

		n, err := st.CountDLQ(ctx)
		if err != nil {
			return eris.Wrap(err, "count dlq")
		}
		fmt.Printf("%d entries in the dead letter queue\n", n)
		return nil
	},
}

var dlqRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Replay due dead-letter entries",
	Long: `Re-attempts persistence of data points whose inserts failed during a
benchmark run. Entries that fail again are rescheduled until their retry
budget is exhausted; exhausted entries stay parked for inspection.`,
	RunE: runDLQRetry,
}

func init() {
	dlqRetryCmd.Flags().IntVar(&dlqLimit, "limit", 50, "maximum entries to replay")
	dlqCmd.AddCommand(dlqRetryCmd)

	rootCmd.AddCommand(dlqCmd)
}

func runDLQRetry(cmd *cobra.Command, args []string) error {
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

	entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{Limit: dlqLimit})
	if err != nil {
		return eris.Wrap(err, "dequeue dlq")
	}

	replayed, rescheduled := 0, 0
	for _, entry := range entries {
		if !entry.CanRetry() {
			continue
		}

		_, insertErr := st.InsertDataPoint(ctx, entry.SessionID, entry.DrugKey, entry.Point)
		if insertErr == nil {
			if err := st.RemoveDLQ(ctx, entry.ID); err != nil {
				return eris.Wrap(err, "remove dlq entry")
			}
			replayed++
			continue
		}

		zap.L().Warn("dlq replay failed",
			zap.String("id", entry.ID),
			zap.String("drug", entry.DrugKey),
			zap.Error(insertErr),
		)
		next := time.Now().UTC().Add(dlqReplayDelay)
		if err := st.IncrementDLQRetry(ctx, entry.ID, next, insertErr.Error()); err != nil {
			return eris.Wrap(err, "reschedule dlq entry")
		}
		rescheduled++
	}

	fmt.Printf("replayed %d, rescheduled %d of %d due entries\n", replayed, rescheduled, len(entries))
	return nil
}
