package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kpiscribe/kpiscribe/internal/facts"
	"github.com/kpiscribe/kpiscribe/internal/llm"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate the narrative for one analysis period",
	Long: `Loads the KPI history through the analysis period, builds the prompt, and
requests a narrative from the configured provider. By default the target is
the most recent closed month; --period overrides it.`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().String("period", "", "analysis period to generate (YYYY-MM, default: latest closed month)")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	start := time.Now()
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	period := facts.LatestClosed(time.Now(), cfg.ClosingLagDays)
	if raw, _ := cmd.Flags().GetString("period"); raw != "" {
		period, err = facts.ParsePeriodKey(raw)
		if err != nil {
			return err
		}
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

	res, err := requester.Generate(ctx, period)
	if err != nil {
		return fmt.Errorf("generating narrative for %s: %w", period, err)
	}

	fmt.Println(res.Text)
	fmt.Println()
	fmt.Printf("  Period:      %s\n", res.Period)
	fmt.Printf("  Attempts:    %d\n", res.Attempts)
	fmt.Printf("  Tokens used: %d input, %d output\n", res.InputTokens, res.OutputTokens)

	if cost := llm.EstimateCost(cfg.Model, res.InputTokens, res.OutputTokens); cost > 0 {
		fmt.Printf("  Estimated cost: $%.4f\n", cost)
	}
	fmt.Printf("  Duration:    %s\n", time.Since(start).Round(time.Millisecond))

	return nil
}
