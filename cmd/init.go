package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kpiscribe/kpiscribe/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize kpiscribe configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to configure kpiscribe and generates a .kpiscribe.yml file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard()
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
