package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the gateway tables and exit",
	Run: func(_ *cobra.Command, _ []string) {
		// initApp already ran every repository's AutoMigrate
		logrus.Infof("[MIGRATION] Schema is up to date (%s)", cfg.Database.Driver)
		StopApp()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
