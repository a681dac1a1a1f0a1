package main

import (
	"github.com/spf13/cobra"

	"hermes/internal/app"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadServerConfig(cmd)
		if err != nil {
			return err
		}
		store, err := app.OpenStore(cmd.Context(), cfg.Database)
		if err != nil {
			return err
		}
		defer store.Close()
		logger.Info().Str("driver", cfg.Database.Driver).Msg("schema up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	addStoreFlags(migrateCmd)
	addLogFlags(migrateCmd)
}
