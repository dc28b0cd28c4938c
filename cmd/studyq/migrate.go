package main

import (
	"fmt"

	"github.com/conorfennell/studyq/internal/storage"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		db, err := storage.Open(cmd.Context(), cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		logger.Info("schema applied", "driver", cfg.Database.Driver)
		return nil
	},
}
