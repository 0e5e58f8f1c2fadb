package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kpiscribe/kpiscribe/internal/facts"
	"github.com/kpiscribe/kpiscribe/internal/progress"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Generate narratives for a range of past periods",
	Long: `Generates one narrative per period from --from through --to, oldest first.
Each period is independent: a failure is reported and the backfill moves on
to the next period.`,
	RunE: runBackfill,
}

func init() {
	backfillCmd.Flags().String("from", "", "first period to generate (YYYY-MM, required)")
	backfillCmd.Flags().String("to", "", "last period to generate (YYYY-MM, required)")
	backfillCmd.MarkFlagRequired("from")
	backfillCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rawFrom, _ := cmd.Flags().GetString("from")
	rawTo, _ := cmd.Flags().GetString("to")

	from, err := facts.ParsePeriodKey(rawFrom)
	if err != nil {
		return fmt.Errorf("invalid --from: %w", err)
	}
	to, err := facts.ParsePeriodKey(rawTo)
	if err != nil {
		return fmt.Errorf("invalid --to: %w", err)
	}

	periods, err := facts.PeriodRange(from, to)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := newLogger()
	database, factStore, sinkStore, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	requester, err := buildRequester(cfg, log, factStore, sinkStore)
	if err != nil {
		return err
	}

	reporter := progress.NewReporter()
	reporter.Start(len(periods))

	var failed int
	for i, period := range periods {
		reporter.Update(i, string(period))
		if _, err := requester.Generate(ctx, period); err != nil {
			if ctx.Err() != nil {
				reporter.Finish()
				return ctx.Err()
			}
			failed++
			fmt.Fprintf(os.Stderr, "Warning: period %s failed: %v\n", period, err)
		}
	}
	reporter.Update(len(periods), "done")
	reporter.Finish()

	fmt.Printf("Backfill complete: %d periods, %d failed\n", len(periods), failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d periods failed", failed, len(periods))
	}
	return nil
}
