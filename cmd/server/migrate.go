// cmd/server/migrate.go
package main

import (
	"esplit/internal/config"
	"esplit/internal/database"
	"esplit/internal/logger"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(envFile)
		if err != nil {
			return err
		}
		logger.SetLevelString(cfg.LogLevel)

		db, err := database.InitDB(cfg.DatabaseDSN)
		if err != nil {
			return err
		}
		if err := database.MigrateDB(db); err != nil {
			return err
		}

		logger.Info().Msg("database schema is up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
