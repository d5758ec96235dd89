package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/compliance-rag/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a crag configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to choose providers, storage and retention, and writes the result to the config file (default .crag.yml).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard(cfgFile)
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
