package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var loadCmd = &cobra.Command{
	Use:   "load <file.csv>",
	Short: "Load monthly KPI facts from a CSV file",
	Long: `Imports KPI facts from a CSV file whose first column is the period key
(YYYY-MM) and whose remaining columns are one KPI each. Re-loading a period
overwrites its existing values.`,
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening CSV: %w", err)
	}
	defer f.Close()

	database, factStore, _, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	n, err := factStore.ImportCSV(ctx, f)
	if err != nil {
		return fmt.Errorf("importing %s: %w", args[0], err)
	}

	fmt.Printf("Loaded %d periods from %s\n", n, args[0])
	return nil
}
