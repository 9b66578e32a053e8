package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"poplift/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, log, manager, err := openDatabase()
		if err != nil {
			return err
		}
		defer manager.Close()

		db, err := manager.Connect()
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		if err := manager.CheckpointWAL("FULL"); err != nil {
			log.Warn("failed to checkpoint WAL after migration", zap.Error(err))
		}

		fmt.Fprintln(cmd.OutOrStdout(), "✓ Database schema is up to date")
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Migrate and load demo data",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, manager, err := openDatabase()
		if err != nil {
			return err
		}
		defer manager.Close()

		if cfg.IsProduction() {
			return fmt.Errorf("refusing to seed a production database")
		}

		db, err := manager.Connect()
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		return database.Seed(db, time.Now())
	},
}
