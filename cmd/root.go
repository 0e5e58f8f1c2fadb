package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "kpiscribe",
	Short: "Turn monthly KPI history into dashboard-ready narratives",
	Long: `kpiscribe reads a company's monthly KPI history, serializes it into a
deterministic JSON payload, and asks a text-generation model to write a
short business narrative for the most recent closed month. Narratives
are persisted per period and can be served to dashboards over HTTP.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", ".kpiscribe.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
