package main

import (
	"errors"
	"fmt"

	"github.com/JustJay7/ecourts-capture/internal/config"
	"github.com/JustJay7/ecourts-capture/internal/database"
	"github.com/JustJay7/ecourts-capture/pkg/logger"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Bring the database schema up to date",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			log, err := logger.NewLogger(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer log.Sync()

			db, err := database.Initialize(cfg.DatabaseDriver, databaseTarget(cfg))
			if err != nil {
				return err
			}
			store := database.NewStore(db, log)
			defer store.Close()

			warnings, err := store.Migrate(cmd.Context())
			for _, w := range warnings {
				fmt.Printf("  %s %s\n", color.New(color.FgYellow).Sprint("repaired"), w)
			}
			if err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}

			version, err := database.SchemaVersion(db)
			if err != nil {
				return err
			}
			fmt.Printf("Schema at version %d %s\n", version, color.New(color.FgGreen).Sprint("OK"))
			return nil
		},
	}
}

func resetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop and recreate every table",
		Long:  "Delete all captured cases and stored PDFs. Files under DOWNLOAD_DIR are left alone.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to reset without --yes")
			}

			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.store.Reset(cmd.Context()); err != nil {
				return fmt.Errorf("failed to reset database: %w", err)
			}
			a.log.Warn("Database reset")
			fmt.Println(color.New(color.FgRed).Sprint("All case records deleted."))
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deleting every record")
	return cmd
}
