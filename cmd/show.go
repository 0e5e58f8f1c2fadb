package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/kpiscribe/kpiscribe/internal/facts"
	"github.com/kpiscribe/kpiscribe/internal/sink"
)

var showCmd = &cobra.Command{
	Use:   "show [period]",
	Short: "Show stored narratives and run records",
	Long: `Without arguments, lists all stored narratives. With a period argument,
prints that period's narrative text. --runs lists recent run records
instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runShow,
}

func init() {
	showCmd.Flags().Bool("runs", false, "list recent run records instead of narratives")
	showCmd.Flags().Int("limit", 20, "max run records to list with --runs")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	database, _, sinkStore, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	showRuns, _ := cmd.Flags().GetBool("runs")
	if showRuns {
		limit, _ := cmd.Flags().GetInt("limit")
		return printRuns(ctx, sinkStore, limit)
	}

	if len(args) == 1 {
		period, err := facts.ParsePeriodKey(args[0])
		if err != nil {
			return err
		}
		n, err := sinkStore.GetNarrative(ctx, period)
		if err != nil {
			return err
		}
		if n == nil {
			return fmt.Errorf("no narrative stored for %s", period)
		}
		fmt.Println(n.Text)
		fmt.Println()
		fmt.Printf("  Generated: %s (%s)\n", n.GeneratedAt.Format(time.RFC3339), n.Model)
		return nil
	}

	return printNarratives(ctx, sinkStore)
}

func printNarratives(ctx context.Context, store *sink.Store) error {
	narratives, err := store.ListNarratives(ctx)
	if err != nil {
		return err
	}
	if len(narratives) == 0 {
		fmt.Println("No narratives stored yet. Run `kpiscribe generate` first.")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Period", "Generated", "Model", "Preview"})
	for _, n := range narratives {
		table.Append([]string{
			string(n.AnalysisPeriod),
			n.GeneratedAt.Format("2006-01-02 15:04"),
			n.Model,
			truncate(n.Text, 60),
		})
	}
	table.Render()
	return nil
}

func printRuns(ctx context.Context, store *sink.Store, limit int) error {
	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Period", "State", "Attempts", "Tokens (in/out)", "Cost", "Started", "Error"})
	for _, r := range runs {
		table.Append([]string{
			string(r.AnalysisPeriod),
			string(r.State),
			strconv.Itoa(r.Attempts),
			fmt.Sprintf("%d/%d", r.InputTokens, r.OutputTokens),
			fmt.Sprintf("$%.4f", r.EstimatedCostUSD),
			r.StartedAt.Format("2006-01-02 15:04"),
			truncate(r.LastError, 40),
		})
	}
	table.Render()
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
